package record

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// SlugMaxLen is the identifier length ceiling.
	SlugMaxLen = 64
	// DescriptionMaxLen is the description rune ceiling.
	DescriptionMaxLen = 1024
)

var (
	// ErrHeaderMissing marks records whose header delimiter is missing,
	// unterminated, or preceded by stray characters.
	ErrHeaderMissing = errors.New("header block missing")
	// ErrHeaderSyntax marks records whose header block is not parseable YAML.
	ErrHeaderSyntax = errors.New("header block is not valid YAML")
)

var (
	slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)
	// Tag-like substrings of the form <word>, </word> or <word/>. Attribute
	// soup is out of scope; the host loader chokes on the bare form already.
	tagPattern     = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9-]*\s*/?>`)
	dashRunPattern = regexp.MustCompile(`-+`)
)

// ValueKind classifies the YAML shape of a header value.
type ValueKind int

const (
	// KindAbsent means the key is missing or explicitly null.
	KindAbsent ValueKind = iota
	// KindScalar is a plain single value.
	KindScalar
	// KindSequence is a YAML list.
	KindSequence
	// KindMapping is a YAML map.
	KindMapping
)

// Header is the parsed declarative block at the top of SKILL.md. The
// underlying YAML document is retained so rewrites preserve key order,
// comments, and scalar styles.
type Header struct {
	Slug            string
	Description     string // scalar value; empty when absent or non-scalar
	DescriptionKind ValueKind
	UnknownKeys     []string // unrecognized top-level keys, in order

	descItems []string // flattened values for sequence/mapping descriptions
	doc       *yaml.Node
}

// ParseHeader splits src into the delimited header block and the body, and
// parses the block. It returns the header, the byte offset where the body
// begins, and an error classifying the failure mode when the block is
// missing (ErrHeaderMissing) or unparseable (ErrHeaderSyntax). The body
// offset is valid even on error so callers can still inspect body content.
func ParseHeader(src []byte) (*Header, int, error) {
	block, bodyStart, err := splitHeaderBlock(src)
	if err != nil {
		return nil, bodyStart, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		return nil, bodyStart, errors.Wrap(ErrHeaderSyntax, err.Error())
	}

	h := &Header{doc: &doc}

	mapping := documentMapping(&doc)
	if mapping == nil {
		if len(doc.Content) > 0 {
			// A bare scalar or sequence between the delimiters.
			return nil, bodyStart, errors.Wrap(ErrHeaderSyntax, "header is not a key/value mapping")
		}
		// Empty block: a parsed header with no keys. Field checks report it.
		return h, bodyStart, nil
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		value := mapping.Content[i+1]

		switch key.Value {
		case "slug":
			if value.Kind == yaml.ScalarNode && value.Tag != "!!null" {
				h.Slug = value.Value
			}
		case "description":
			h.DescriptionKind, h.Description, h.descItems = classifyValue(value)
		default:
			h.UnknownKeys = append(h.UnknownKeys, key.Value)
		}
	}

	return h, bodyStart, nil
}

// splitHeaderBlock locates the --- delimited block at the start of src.
// Returns the block content (delimiters excluded) and the body offset.
func splitHeaderBlock(src []byte) ([]byte, int, error) {
	if len(src) == 0 {
		return nil, 0, errors.Wrap(ErrHeaderMissing, "file is empty")
	}

	firstLine, rest := cutLine(src)
	if !isDelimiterLine(firstLine) {
		if isDelimiterLine(bytes.TrimLeft(firstLine, " \t")) || bytes.Contains(src, []byte("\n---")) {
			return nil, 0, errors.Wrap(ErrHeaderMissing, "stray characters precede the opening --- delimiter")
		}
		return nil, 0, errors.Wrap(ErrHeaderMissing, "no opening --- delimiter")
	}

	offset := len(src) - len(rest)
	blockStart := offset
	for len(rest) > 0 {
		line, next := cutLine(rest)
		if isDelimiterLine(line) {
			block := src[blockStart:offset]
			return block, len(src) - len(next), nil
		}
		offset += len(rest) - len(next)
		rest = next
	}

	return nil, len(src), errors.Wrap(ErrHeaderMissing, "no closing --- delimiter")
}

// cutLine returns the first line (newline excluded) and the remainder after it.
func cutLine(src []byte) (line, rest []byte) {
	if idx := bytes.IndexByte(src, '\n'); idx >= 0 {
		return src[:idx], src[idx+1:]
	}
	return src, nil
}

func isDelimiterLine(line []byte) bool {
	return string(bytes.TrimRight(line, "\r")) == "---"
}

// documentMapping returns the top-level mapping node of a parsed document.
func documentMapping(doc *yaml.Node) *yaml.Node {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	if doc.Content[0].Kind != yaml.MappingNode {
		return nil
	}
	return doc.Content[0]
}

func classifyValue(value *yaml.Node) (ValueKind, string, []string) {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return KindAbsent, "", nil
		}
		return KindScalar, value.Value, nil
	case yaml.SequenceNode:
		var items []string
		for _, item := range value.Content {
			if item.Kind == yaml.ScalarNode {
				items = append(items, item.Value)
			}
		}
		return KindSequence, "", items
	case yaml.MappingNode:
		var items []string
		for i := 1; i < len(value.Content); i += 2 {
			if value.Content[i].Kind == yaml.ScalarNode {
				items = append(items, value.Content[i].Value)
			}
		}
		return KindMapping, "", items
	default:
		return KindAbsent, "", nil
	}
}

// FlattenedDescription collapses a non-scalar description into a single
// value: sequences joined with "; ", mappings reduced to their first value.
func (h *Header) FlattenedDescription() string {
	switch h.DescriptionKind {
	case KindSequence:
		return strings.Join(h.descItems, "; ")
	case KindMapping:
		if len(h.descItems) > 0 {
			return h.descItems[0]
		}
		return ""
	default:
		return h.Description
	}
}

// SetSlug rewrites the slug value in the retained document, adding the key
// when absent.
func (h *Header) SetSlug(slug string) {
	h.setScalar("slug", slug)
	h.Slug = slug
}

// SetDescription rewrites the description as a plain scalar, replacing any
// sequence or mapping value.
func (h *Header) SetDescription(desc string) {
	h.setScalar("description", desc)
	h.Description = desc
	h.DescriptionKind = KindScalar
	h.descItems = nil
}

func (h *Header) setScalar(key, value string) {
	upsertScalar(h.ensureMapping(), key, value)
}

func (h *Header) ensureMapping() *yaml.Node {
	if h.doc == nil {
		h.doc = &yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(h.doc.Content) == 0 {
		h.doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	return h.doc.Content[0]
}

// Encode serializes the header back to its delimited on-disk form.
func (h *Header) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")

	if h.doc != nil && len(h.doc.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(h.doc); err != nil {
			return nil, errors.Wrap(err, "failed to encode header")
		}
		if err := enc.Close(); err != nil {
			return nil, errors.Wrap(err, "failed to finalize header encoding")
		}
	}

	buf.WriteString("---\n")
	return buf.Bytes(), nil
}

// SlugValid reports whether s is a well-formed identifier.
func SlugValid(s string) bool {
	return len(s) <= SlugMaxLen && slugPattern.MatchString(s)
}

// Slugify rewrites an arbitrary name into a well-formed identifier:
// lowercase, invalid runs collapsed to a single dash, edge dashes trimmed,
// truncated to SlugMaxLen.
func Slugify(name string) string {
	lower := strings.ToLower(name)

	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}

	slug := dashRunPattern.ReplaceAllString(b.String(), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > SlugMaxLen {
		slug = strings.TrimRight(slug[:SlugMaxLen], "-")
	}
	return slug
}

// HasTagLike reports whether s contains a markup-tag-like substring.
func HasTagLike(s string) bool {
	return tagPattern.MatchString(s)
}

// StripTags removes markup-tag-like substrings.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// TruncateDescription cuts s to at most limit runes, preferring the last
// sentence boundary (. ! ?) that fits. Counting is in runes, not bytes.
func TruncateDescription(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	cut := -1
	for i := 0; i < limit; i++ {
		switch runes[i] {
		case '.', '!', '?':
			cut = i + 1
		}
	}
	if cut == -1 {
		cut = limit
	}
	return string(runes[:cut])
}
