package record

import (
	"bytes"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// BaselineVersion is the version stamped into synthesized configs.
	BaselineVersion = "0.1.0"
	// DefaultCategory is the category stamped into synthesized configs.
	DefaultCategory = "uncategorized"
)

// ErrConfigSyntax marks records whose config file is not parseable YAML.
var ErrConfigSyntax = errors.New("config is not valid YAML")

// ConfigRequiredKeys are the keys every config must carry.
var ConfigRequiredKeys = []string{"name", "version", "category"}

// ConfigLegacyKeys maps retired key names to their replacements. Values
// under a retired name are ignored until the key is renamed.
var ConfigLegacyKeys = map[string]string{
	"requires":   "depends_on",
	"works_with": "integrates_with",
	"triggers":   "activation_triggers",
	"type":       "category",
}

// Config is the parsed sibling skill.yaml. Like Header, the underlying
// document is retained so rewrites preserve key order and comments.
type Config struct {
	Name               string
	Version            string
	Category           string
	DependsOn          []string
	IntegratesWith     []string
	ActivationTriggers []string
	Keys               []string // top-level keys in document order

	doc *yaml.Node
}

// ParseConfig parses skill.yaml content. Returns ErrConfigSyntax when the
// content is not YAML or not a top-level mapping.
func ParseConfig(src []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, errors.Wrap(ErrConfigSyntax, err.Error())
	}

	c := &Config{doc: &doc}

	mapping := documentMapping(&doc)
	if mapping == nil {
		if len(doc.Content) > 0 {
			return nil, errors.Wrap(ErrConfigSyntax, "config is not a key/value mapping")
		}
		return c, nil
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		value := mapping.Content[i+1]
		c.Keys = append(c.Keys, key.Value)

		switch key.Value {
		case "name":
			c.Name = scalarValue(value)
		case "version":
			c.Version = scalarValue(value)
		case "category":
			c.Category = scalarValue(value)
		case "depends_on":
			c.DependsOn = stringList(value)
		case "integrates_with":
			c.IntegratesWith = stringList(value)
		case "activation_triggers":
			c.ActivationTriggers = stringList(value)
		}
	}

	return c, nil
}

// Has reports whether a top-level key is present, regardless of value.
func (c *Config) Has(key string) bool {
	for _, k := range c.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// MissingRequired returns the required keys that are absent or empty, in
// canonical order.
func (c *Config) MissingRequired() []string {
	var missing []string
	for _, key := range ConfigRequiredKeys {
		var value string
		switch key {
		case "name":
			value = c.Name
		case "version":
			value = c.Version
		case "category":
			value = c.Category
		}
		if value == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// LegacyKeys returns the retired key names present, in document order.
func (c *Config) LegacyKeys() []string {
	var legacy []string
	for _, k := range c.Keys {
		if _, ok := ConfigLegacyKeys[k]; ok {
			legacy = append(legacy, k)
		}
	}
	return legacy
}

// RenameKey rewrites a key in place, keeping its value and position.
// Returns false when the key is absent or the new name already exists.
func (c *Config) RenameKey(old, new string) bool {
	if c.Has(new) {
		return false
	}
	mapping := documentMapping(c.doc)
	if mapping == nil {
		return false
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		if key.Value != old {
			continue
		}
		key.Value = new
		for j, k := range c.Keys {
			if k == old {
				c.Keys[j] = new
				break
			}
		}
		return true
	}
	return false
}

// SetScalar upserts a scalar value, adding the key at the end when absent.
func (c *Config) SetScalar(key, value string) {
	if !c.Has(key) {
		c.Keys = append(c.Keys, key)
	}
	upsertScalar(c.ensureMapping(), key, value)

	switch key {
	case "name":
		c.Name = value
	case "version":
		c.Version = value
	case "category":
		c.Category = value
	}
}

func (c *Config) ensureMapping() *yaml.Node {
	if c.doc == nil {
		c.doc = &yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(c.doc.Content) == 0 {
		c.doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	return c.doc.Content[0]
}

// Encode serializes the config back to YAML.
func (c *Config) Encode() ([]byte, error) {
	if c.doc == nil || len(c.doc.Content) == 0 {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.doc); err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finalize config encoding")
	}
	return buf.Bytes(), nil
}

// SynthesizeConfig builds a minimal skill.yaml for a record that has none,
// naming it after the header slug when one is readable.
func SynthesizeConfig(h *Header, fallbackName string) ([]byte, error) {
	name := fallbackName
	if h != nil && h.Slug != "" {
		name = h.Slug
	}

	minimal := struct {
		Name     string `yaml:"name"`
		Version  string `yaml:"version"`
		Category string `yaml:"category"`
	}{
		Name:     name,
		Version:  BaselineVersion,
		Category: DefaultCategory,
	}

	out, err := yaml.Marshal(minimal)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode synthesized config")
	}
	return out, nil
}

func scalarValue(value *yaml.Node) string {
	if value.Kind == yaml.ScalarNode && value.Tag != "!!null" {
		return value.Value
	}
	return ""
}

// stringList accepts either a sequence of scalars or a single scalar.
func stringList(value *yaml.Node) []string {
	kind, scalar, items := classifyValue(value)
	switch kind {
	case KindScalar:
		if scalar == "" {
			return nil
		}
		return []string{scalar}
	case KindSequence:
		return items
	}
	return nil
}

// upsertScalar replaces a mapping value with a plain scalar, preserving the
// existing scalar style, or appends the pair when the key is absent.
func upsertScalar(mapping *yaml.Node, key, value string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			node := mapping.Content[i+1]
			style := node.Style
			if node.Kind != yaml.ScalarNode {
				style = 0
			}
			*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value, Style: style}
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}
