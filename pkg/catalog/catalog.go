// Package catalog is the host's eye view of a skill library, backing the
// list and show commands. It reads records the way a consuming host would:
// front matter through goldmark, config through a plain unmarshal. Records a
// host cannot see (no SKILL.md, no parseable slug) are simply absent here;
// diagnosing them is pkg/validate's job.
package catalog

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/skilldoctor/pkg/record"
)

// Entry is one host-visible record.
type Entry struct {
	Slug        string
	Description string
	Category    string
	Version     string
	Triggers    []string
	Directory   string
	Body        string // SKILL.md content after the front matter
}

// Catalog reads entries from a library root.
type Catalog struct {
	root    string
	buckets []string
}

// Option configures a Catalog.
type Option func(*Catalog) error

// WithBuckets sets the subdirectories to read. "." means the root itself.
func WithBuckets(buckets ...string) Option {
	return func(c *Catalog) error {
		c.buckets = buckets
		return nil
	}
}

// NewCatalog creates a catalog over a library root. Without options it
// follows the loader's convention: the default bucket when present,
// otherwise the root itself.
func NewCatalog(root string, opts ...Option) (*Catalog, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve library root %s", root)
	}

	c := &Catalog{root: abs}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if len(c.buckets) == 0 {
		if info, err := os.Stat(filepath.Join(abs, record.DefaultBucket)); err == nil && info.IsDir() {
			c.buckets = []string{record.DefaultBucket}
		} else {
			c.buckets = []string{"."}
		}
	}
	return c, nil
}

// Entries reads every host-visible record, keyed by slug. On duplicate
// slugs the first directory in walk order wins, matching host behavior.
func (c *Catalog) Entries() (map[string]*Entry, error) {
	entries := make(map[string]*Entry)
	for _, bucket := range c.buckets {
		dir := filepath.Join(c.root, bucket)
		children, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "failed to read %s", dir)
		}

		for _, child := range children {
			if !child.IsDir() || strings.HasPrefix(child.Name(), ".") {
				continue
			}
			entry, err := loadEntry(filepath.Join(dir, child.Name()))
			if err != nil || entry == nil {
				continue
			}
			if _, exists := entries[entry.Slug]; !exists {
				entries[entry.Slug] = entry
			}
		}
	}
	return entries, nil
}

// List returns all entries sorted by slug.
func (c *Catalog) List() ([]*Entry, error) {
	byslug, err := c.Entries()
	if err != nil {
		return nil, err
	}

	list := make([]*Entry, 0, len(byslug))
	for _, entry := range byslug {
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Slug < list[j].Slug })
	return list, nil
}

// Get returns the entry for a slug.
func (c *Catalog) Get(slug string) (*Entry, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	entry, exists := entries[slug]
	if !exists {
		return nil, errors.Errorf("record %q not found", slug)
	}
	return entry, nil
}

// loadEntry reads one record directory the way a host would. A nil entry
// with nil error means the directory is not host-visible.
func loadEntry(dir string) (*Entry, error) {
	content, err := os.ReadFile(filepath.Join(dir, record.SkillFileName))
	if err != nil {
		return nil, nil
	}

	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, nil
	}
	slug, _ := metaData["slug"].(string)
	if slug == "" {
		return nil, nil
	}
	description, _ := metaData["description"].(string)

	entry := &Entry{
		Slug:        slug,
		Description: description,
		Directory:   dir,
		Body:        bodyAfterFrontMatter(string(content)),
	}
	entry.readConfig(dir)
	return entry, nil
}

// readConfig fills category, version, and triggers from skill.yaml when one
// parses; a missing or malformed config leaves them empty.
func (e *Entry) readConfig(dir string) {
	data, err := os.ReadFile(filepath.Join(dir, record.ConfigFileName))
	if err != nil {
		return
	}

	var cfg struct {
		Version  string   `yaml:"version"`
		Category string   `yaml:"category"`
		Triggers []string `yaml:"activation_triggers"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return
	}
	e.Version = cfg.Version
	e.Category = cfg.Category
	e.Triggers = cfg.Triggers
}

// bodyAfterFrontMatter strips the leading front matter block.
func bodyAfterFrontMatter(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
		}
	}
	return content
}
