package record

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecordDir(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func minimalSkill(slug string) string {
	return "---\nslug: " + slug + "\ndescription: A test record.\n---\n\n## Objective\nDo it.\n"
}

func TestDiscoverDefaultBucket(t *testing.T) {
	root := t.TempDir()
	writeRecordDir(t, filepath.Join(root, "active", "b-skill"), map[string]string{
		"SKILL.md": minimalSkill("b"),
	})
	writeRecordDir(t, filepath.Join(root, "active", "a-skill"), map[string]string{
		"SKILL.md": minimalSkill("a"),
	})
	// Sits outside the bucket, must not be picked up.
	writeRecordDir(t, filepath.Join(root, "drafts", "c-skill"), map[string]string{
		"SKILL.md": minimalSkill("c"),
	})

	loader, err := NewLoader()
	require.NoError(t, err)
	lib, err := loader.Discover(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, lib.Records, 2)
	assert.Equal(t, "a-skill", lib.Records[0].DirName)
	assert.Equal(t, "b-skill", lib.Records[1].DirName)
}

func TestDiscoverRootWithoutBucket(t *testing.T) {
	root := t.TempDir()
	writeRecordDir(t, filepath.Join(root, "solo-skill"), map[string]string{
		"SKILL.md": minimalSkill("solo"),
	})

	loader, err := NewLoader()
	require.NoError(t, err)
	lib, err := loader.Discover(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, lib.Records, 1)
	assert.Equal(t, "solo-skill", lib.Records[0].DirName)
}

func TestDiscoverExplicitBuckets(t *testing.T) {
	root := t.TempDir()
	writeRecordDir(t, filepath.Join(root, "active", "a-skill"), map[string]string{
		"SKILL.md": minimalSkill("a"),
	})
	writeRecordDir(t, filepath.Join(root, "drafts", "d-skill"), map[string]string{
		"SKILL.md": minimalSkill("d"),
	})

	loader, err := NewLoader(WithBuckets("active", "drafts", "missing"))
	require.NoError(t, err)
	lib, err := loader.Discover(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, lib.Records, 2)
	assert.Equal(t, "a-skill", lib.Records[0].DirName)
	assert.Equal(t, "d-skill", lib.Records[1].DirName)
}

func TestDiscoverIgnoreGlobs(t *testing.T) {
	root := t.TempDir()
	writeRecordDir(t, filepath.Join(root, "keep-skill"), map[string]string{
		"SKILL.md": minimalSkill("keep"),
	})
	writeRecordDir(t, filepath.Join(root, "archived-skill"), map[string]string{
		"SKILL.md": minimalSkill("archived"),
	})

	loader, err := NewLoader(WithIgnoreGlobs("archived-*"))
	require.NoError(t, err)
	lib, err := loader.Discover(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, lib.Records, 1)
	assert.Equal(t, "keep-skill", lib.Records[0].DirName)
}

func TestWithIgnoreGlobsRejectsInvalidPattern(t *testing.T) {
	_, err := NewLoader(WithIgnoreGlobs("[unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ignore pattern")
}

func TestDiscoverSkipsNonCandidates(t *testing.T) {
	root := t.TempDir()
	writeRecordDir(t, filepath.Join(root, "real-skill"), map[string]string{
		"SKILL.md": minimalSkill("real"),
	})
	writeRecordDir(t, filepath.Join(root, "just-assets"), map[string]string{
		"readme.txt": "nothing to see",
	})
	writeRecordDir(t, filepath.Join(root, ".hidden-skill"), map[string]string{
		"SKILL.md": minimalSkill("hidden"),
	})

	loader, err := NewLoader()
	require.NoError(t, err)
	lib, err := loader.Discover(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, lib.Records, 1)
	assert.Equal(t, "real-skill", lib.Records[0].DirName)
}

func TestDiscoverConfigOnlyDirIsCandidate(t *testing.T) {
	root := t.TempDir()
	writeRecordDir(t, filepath.Join(root, "config-only"), map[string]string{
		"skill.yaml": "name: config-only\nversion: 0.1.0\ncategory: misc\n",
	})

	loader, err := NewLoader()
	require.NoError(t, err)
	lib, err := loader.Discover(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, lib.Records, 1)
	rec := lib.Records[0]
	assert.False(t, rec.HasSkillFile)
	assert.True(t, rec.HasConfigFile)
	assert.Equal(t, "config-only", rec.Config.Name)
}

func TestDiscoverMissingRoot(t *testing.T) {
	loader, err := NewLoader()
	require.NoError(t, err)
	_, err = loader.Discover(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "library root")
}

func TestLoadRecordPartials(t *testing.T) {
	t.Run("header error retained", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "broken-skill")
		writeRecordDir(t, dir, map[string]string{
			"SKILL.md": "# No header at all\n",
		})

		rec, err := LoadRecord(dir)
		require.NoError(t, err)
		assert.True(t, rec.HasSkillFile)
		assert.Nil(t, rec.Header)
		assert.ErrorIs(t, rec.HeaderErr, ErrHeaderMissing)
		assert.Equal(t, "broken-skill", rec.ID())
	})

	t.Run("config parse error retained", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "badcfg-skill")
		writeRecordDir(t, dir, map[string]string{
			"SKILL.md":   minimalSkill("badcfg"),
			"skill.yaml": "name: [unclosed\n",
		})

		rec, err := LoadRecord(dir)
		require.NoError(t, err)
		assert.True(t, rec.HasConfigFile)
		assert.Nil(t, rec.Config)
		assert.ErrorIs(t, rec.ConfigErr, ErrConfigSyntax)
	})

	t.Run("fully loaded", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "whole-skill")
		writeRecordDir(t, dir, map[string]string{
			"SKILL.md":   minimalSkill("whole"),
			"skill.yaml": "name: whole\nversion: 0.1.0\ncategory: misc\n",
		})

		rec, err := LoadRecord(dir)
		require.NoError(t, err)
		assert.Equal(t, "whole", rec.ID())
		require.NoError(t, rec.HeaderErr)
		assert.True(t, rec.HasBody())
		assert.True(t, rec.Body.HasSection("objective"))
		assert.Equal(t, "whole", rec.Config.Name)
	})
}

func TestLibraryHelpers(t *testing.T) {
	recA := &Record{Dir: "/lib/a-skill", DirName: "a-skill", Header: &Header{Slug: "a"}}
	recB := &Record{Dir: "/lib/b-skill", DirName: "b-skill", Header: &Header{Slug: "dup"}}
	recC := &Record{Dir: "/lib/c-skill", DirName: "c-skill", Header: &Header{Slug: "dup"}}
	lib := &Library{Root: "/lib", Records: []*Record{recA, recB, recC}}

	assert.Same(t, recA, lib.Get("a"))
	assert.Nil(t, lib.Get("zzz"))

	slugs := lib.Slugs()
	assert.Len(t, slugs["dup"], 2)
	assert.Len(t, slugs["a"], 1)

	fresh := &Record{Dir: "/lib/b-skill", DirName: "b-skill", Header: &Header{Slug: "renamed"}}
	lib.Replace(fresh)
	assert.Same(t, fresh, lib.Records[1])
}
