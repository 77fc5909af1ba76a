package record

import (
	"bytes"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MandatorySections lists the required body sections in canonical order.
var MandatorySections = []string{"objective", "quick_start", "success_criteria"}

// SectionHeading returns the canonical heading line for a section name,
// e.g. "quick_start" -> "## Quick Start".
func SectionHeading(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return "## " + strings.Join(words, " ")
}

// normalizeSectionTitle lowers a heading title and collapses underscores,
// dashes, and whitespace runs so "Quick Start", "quick_start" and
// "Quick  start" all compare equal.
func normalizeSectionTitle(title string) string {
	lower := strings.ToLower(title)
	lower = strings.NewReplacer("_", " ", "-", " ").Replace(lower)
	return strings.Join(strings.Fields(lower), " ")
}

// canonicalSectionName maps a heading title to its mandatory-section name,
// or "" when the heading is not one of the mandatory sections.
func canonicalSectionName(title string) string {
	normalized := normalizeSectionTitle(title)
	for _, name := range MandatorySections {
		if normalized == normalizeSectionTitle(name) {
			return name
		}
	}
	return ""
}

// Section is one heading found in the body.
type Section struct {
	Title string // heading text as written
	Name  string // canonical mandatory-section name, or ""
	Level int
	Start int // byte offset of the heading line within the body
}

// Reference is one link or image whose destination is a record-relative path.
type Reference struct {
	Target string // destination as written in the document
	Path   string // cleaned slash-separated path relative to the record dir
	Image  bool
}

// Body is the parsed markdown after the header block. Headings and
// references inside fenced code blocks never appear here; the markdown AST
// treats fence content as opaque.
type Body struct {
	Sections []Section
	Refs     []Reference
	Lines    int
}

// ParseBody extracts section headings and internal references from body
// markdown.
func ParseBody(src []byte) *Body {
	body := &Body{Lines: countLines(src)}
	if len(src) == 0 {
		return body
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			if section, ok := headingSection(node, src); ok {
				body.Sections = append(body.Sections, section)
			}
		case *ast.Link:
			if ref, ok := internalRef(string(node.Destination), false); ok {
				body.Refs = append(body.Refs, ref)
			}
		case *ast.Image:
			if ref, ok := internalRef(string(node.Destination), true); ok {
				body.Refs = append(body.Refs, ref)
			}
		}
		return ast.WalkContinue, nil
	})

	return body
}

// HasSection reports whether a mandatory section is present.
func (b *Body) HasSection(name string) bool {
	for _, s := range b.Sections {
		if s.Name == name {
			return true
		}
	}
	return false
}

// SectionStart returns the byte offset of a mandatory section's heading line.
func (b *Body) SectionStart(name string) (int, bool) {
	for _, s := range b.Sections {
		if s.Name == name {
			return s.Start, true
		}
	}
	return 0, false
}

func headingSection(node *ast.Heading, src []byte) (Section, bool) {
	lines := node.Lines()
	if lines.Len() == 0 {
		return Section{}, false
	}

	var title strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		title.Write(seg.Value(src))
	}

	first := lines.At(0)
	lineStart := 0
	if idx := bytes.LastIndexByte(src[:first.Start], '\n'); idx >= 0 {
		lineStart = idx + 1
	}

	text := strings.TrimSpace(title.String())
	return Section{
		Title: text,
		Name:  canonicalSectionName(text),
		Level: node.Level,
		Start: lineStart,
	}, true
}

// internalRef classifies a link destination. Only bare relative paths that
// stay inside the record directory count as internal references; URLs,
// fragments, absolute paths, and parent escapes are someone else's problem.
func internalRef(dest string, image bool) (Reference, bool) {
	if dest == "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "/") {
		return Reference{}, false
	}
	if strings.Contains(dest, ":") {
		// Covers scheme://, mailto:, data: and friends.
		return Reference{}, false
	}

	target := dest
	if idx := strings.IndexAny(target, "#?"); idx >= 0 {
		target = target[:idx]
	}
	if target == "" {
		return Reference{}, false
	}

	clean := path.Clean(target)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return Reference{}, false
	}

	return Reference{Target: dest, Path: clean, Image: image}, true
}

func countLines(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := bytes.Count(src, []byte("\n"))
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}
