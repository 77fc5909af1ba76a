package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEntry(t *testing.T, root, dir string, files map[string]string) {
	t.Helper()
	dirPath := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(dirPath, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dirPath, name), []byte(content), 0o644))
	}
}

func TestCatalogList(t *testing.T) {
	root := t.TempDir()
	writeEntry(t, root, "summarizer-skill", map[string]string{
		"SKILL.md": `---
slug: summarizer
description: Condenses long documents.
---

## Objective
Summarize things.
`,
		"skill.yaml": `name: summarizer
version: 1.2.0
category: text
activation_triggers:
  - summarize
  - tldr
`,
	})
	writeEntry(t, root, "translator-skill", map[string]string{
		"SKILL.md": `---
slug: translator
description: Translates between languages.
---

Body.
`,
	})

	c, err := NewCatalog(root)
	require.NoError(t, err)

	list, err := c.List()
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "summarizer", list[0].Slug)
	assert.Equal(t, "Condenses long documents.", list[0].Description)
	assert.Equal(t, "1.2.0", list[0].Version)
	assert.Equal(t, "text", list[0].Category)
	assert.Equal(t, []string{"summarize", "tldr"}, list[0].Triggers)
	assert.Contains(t, list[0].Body, "## Objective")
	assert.NotContains(t, list[0].Body, "slug: summarizer")

	// Missing config leaves the config-backed fields empty.
	assert.Equal(t, "translator", list[1].Slug)
	assert.Empty(t, list[1].Version)
	assert.Empty(t, list[1].Triggers)
}

func TestCatalogSkipsHostInvisibleRecords(t *testing.T) {
	root := t.TempDir()
	writeEntry(t, root, "visible-skill", map[string]string{
		"SKILL.md": "---\nslug: visible\ndescription: Fine.\n---\n\nBody.\n",
	})
	writeEntry(t, root, "no-slug-skill", map[string]string{
		"SKILL.md": "---\ndescription: No slug here.\n---\n\nBody.\n",
	})
	writeEntry(t, root, "config-only-skill", map[string]string{
		"skill.yaml": "name: orphan\nversion: 1.0.0\ncategory: general\n",
	})
	writeEntry(t, root, ".hidden-skill", map[string]string{
		"SKILL.md": "---\nslug: hidden\ndescription: Skipped.\n---\n\nBody.\n",
	})

	c, err := NewCatalog(root)
	require.NoError(t, err)

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries, "visible")
}

func TestCatalogUsesDefaultBucket(t *testing.T) {
	root := t.TempDir()
	writeEntry(t, root, "active/bucketed-skill", map[string]string{
		"SKILL.md": "---\nslug: bucketed\ndescription: Lives in the bucket.\n---\n\nBody.\n",
	})
	writeEntry(t, root, "stray-skill", map[string]string{
		"SKILL.md": "---\nslug: stray\ndescription: Outside the bucket.\n---\n\nBody.\n",
	})

	c, err := NewCatalog(root)
	require.NoError(t, err)

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries, "bucketed")

	c, err = NewCatalog(root, WithBuckets("."))
	require.NoError(t, err)
	entries, err = c.Entries()
	require.NoError(t, err)
	assert.Contains(t, entries, "stray")
}

func TestCatalogGet(t *testing.T) {
	root := t.TempDir()
	writeEntry(t, root, "known-skill", map[string]string{
		"SKILL.md": "---\nslug: known\ndescription: Present.\n---\n\nBody.\n",
	})

	c, err := NewCatalog(root)
	require.NoError(t, err)

	entry, err := c.Get("known")
	require.NoError(t, err)
	assert.Equal(t, "known", entry.Slug)

	_, err = c.Get("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
