package validate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jingkaihe/skilldoctor/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLibrary(t *testing.T, dirs map[string]map[string]string) *record.Library {
	t.Helper()
	root := t.TempDir()
	for dir, files := range dirs {
		dirPath := filepath.Join(root, dir)
		require.NoError(t, os.MkdirAll(dirPath, 0o755))
		for name, content := range files {
			filePath := filepath.Join(dirPath, name)
			require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
			require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
		}
	}

	loader, err := record.NewLoader()
	require.NoError(t, err)
	lib, err := loader.Discover(context.Background(), root)
	require.NoError(t, err)
	return lib
}

func validateLibrary(t *testing.T, lib *record.Library, opts Options) *Result {
	t.Helper()
	v, err := New(opts)
	require.NoError(t, err)
	result, err := v.Validate(context.Background(), lib)
	require.NoError(t, err)
	return result
}

func healthySkill(slug string) string {
	return `---
slug: ` + slug + `
description: Walks through ` + slug + ` workflows end to end.
---

## Objective
Do the thing.

## Quick Start
Run the thing.

## Success Criteria
The thing ran.
`
}

func healthyConfig(name string) string {
	return "name: " + name + "\nversion: 0.1.0\ncategory: general\n"
}

func healthyRecord(slug string) map[string]string {
	return map[string]string{
		"SKILL.md":   healthySkill(slug),
		"skill.yaml": healthyConfig(slug),
	}
}

func findingsFor(result *Result, checkID string) []Finding {
	var out []Finding
	for _, f := range result.Findings {
		if f.Check == checkID {
			out = append(out, f)
		}
	}
	return out
}

// A fully healthy record attempts 10 structural, 4 content, and 4 config
// and cross-reference checks; the 3 library-wide checks run once per scan.
const (
	checksPerHealthyRecord = 18
	libraryWideChecks      = 3
)

func TestValidateHealthyLibrary(t *testing.T) {
	lib := buildLibrary(t, map[string]map[string]string{
		"alpha-skill": healthyRecord("alpha"),
		"beta-skill":  healthyRecord("beta"),
	})

	result := validateLibrary(t, lib, NewOptions())

	assert.Empty(t, result.Findings)
	assert.Equal(t, 2, result.Records)
	assert.Zero(t, result.UnrecoverableRecords)
	assert.Equal(t, 2*checksPerHealthyRecord+libraryWideChecks, result.Attempted)
	assert.Equal(t, result.Attempted, result.Passed)
	assert.Zero(t, result.Fixable)
	assert.Equal(t, 1.0, result.HealthScore())
}

func TestValidateScenario(t *testing.T) {
	// Three records: one missing its success criteria section, two forming
	// a dependency cycle of length 2.
	missingSection := map[string]string{
		"SKILL.md": `---
slug: alpha
description: Covers alpha workflows.
---

## Objective
Do it.

## Quick Start
Run it.
`,
		"skill.yaml": healthyConfig("alpha"),
	}
	beta := healthyRecord("beta")
	beta["skill.yaml"] = healthyConfig("beta") + "depends_on:\n  - gamma\n"
	gamma := healthyRecord("gamma")
	gamma["skill.yaml"] = healthyConfig("gamma") + "depends_on:\n  - beta\n"

	lib := buildLibrary(t, map[string]map[string]string{
		"alpha-skill": missingSection,
		"beta-skill":  beta,
		"gamma-skill": gamma,
	})

	result := validateLibrary(t, lib, NewOptions())

	require.Len(t, result.Findings, 2)

	// Most severe first.
	cycle := result.Findings[0]
	assert.Equal(t, CheckDependencyCycle, cycle.Check)
	assert.Equal(t, SeverityCritical, cycle.Severity)
	assert.False(t, cycle.Fixable)
	assert.Contains(t, cycle.Message, "closes a cycle")

	section := result.Findings[1]
	assert.Equal(t, CheckSectionMissing, section.Check)
	assert.Equal(t, SeverityHigh, section.Severity)
	assert.True(t, section.Fixable)
	assert.Equal(t, "alpha", section.Record)
	assert.Contains(t, section.Message, "success_criteria")

	// Two failing checks out of everything attempted.
	assert.Equal(t, 3*checksPerHealthyRecord+libraryWideChecks, result.Attempted)
	assert.Equal(t, result.Attempted-2, result.Passed)
	assert.InDelta(t, float64(result.Attempted-2)/float64(result.Attempted), result.HealthScore(), 1e-9)
}

func TestValidateTwoIndependentCycles(t *testing.T) {
	withDep := func(slug, dep string) map[string]string {
		rec := healthyRecord(slug)
		rec["skill.yaml"] = healthyConfig(slug) + "depends_on:\n  - " + dep + "\n"
		return rec
	}

	lib := buildLibrary(t, map[string]map[string]string{
		"a-skill": withDep("a", "b"),
		"b-skill": withDep("b", "a"),
		"x-skill": withDep("x", "y"),
		"y-skill": withDep("y", "z"),
		"z-skill": withDep("z", "x"),
	})

	result := validateLibrary(t, lib, NewOptions())

	cycles := findingsFor(result, CheckDependencyCycle)
	require.Len(t, cycles, 2)
	assert.Equal(t, "b", cycles[0].Record)
	assert.Contains(t, cycles[0].Message, "b -> a")
	assert.Equal(t, "z", cycles[1].Record)
	assert.Contains(t, cycles[1].Message, "z -> x")
}

func TestValidateHeaderMissingGating(t *testing.T) {
	lib := buildLibrary(t, map[string]map[string]string{
		"broken-skill": {
			"SKILL.md":   "# Just a markdown file\n\nNo header block.\n",
			"skill.yaml": healthyConfig("broken"),
		},
	})

	result := validateLibrary(t, lib, NewOptions())

	require.Len(t, result.Findings, 1)
	assert.Equal(t, CheckHeaderMissing, result.Findings[0].Check)
	assert.Equal(t, SeverityCritical, result.Findings[0].Severity)
	assert.Equal(t, 1, result.UnrecoverableRecords)

	// Only file-level checks attempted: header, body presence, config.
	assert.Equal(t, 3+libraryWideChecks, result.Attempted)
	assert.Equal(t, result.Attempted-1, result.Passed)
}

func TestValidateStructuralFindings(t *testing.T) {
	t.Run("slug format", func(t *testing.T) {
		files := healthyRecord("ignored")
		files["SKILL.md"] = strings.Replace(healthySkill("ignored"), "slug: ignored", "slug: My Skill!!", 1)
		lib := buildLibrary(t, map[string]map[string]string{"my-skill-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckSlugFormat)
		require.Len(t, fs, 1)
		assert.True(t, fs[0].Fixable)
		assert.Equal(t, SeverityCritical, fs[0].Severity)
	})

	t.Run("description too long", func(t *testing.T) {
		files := map[string]string{
			"SKILL.md": "---\nslug: longdesc\ndescription: " + strings.Repeat("a", 1100) + "\n---\n\n## Objective\nx\n\n## Quick Start\nx\n\n## Success Criteria\nx\n",
		}
		lib := buildLibrary(t, map[string]map[string]string{"longdesc-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckDescriptionLength)
		require.Len(t, fs, 1)
		assert.True(t, fs[0].Fixable)
	})

	t.Run("description markup", func(t *testing.T) {
		files := map[string]string{
			"SKILL.md": "---\nslug: markup\ndescription: Uses <tool> internally.\n---\n\n## Objective\nx\n\n## Quick Start\nx\n\n## Success Criteria\nx\n",
		}
		lib := buildLibrary(t, map[string]map[string]string{"markup-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckDescriptionMarkup)
		require.Len(t, fs, 1)
		assert.True(t, fs[0].Fixable)
	})

	t.Run("description is a list", func(t *testing.T) {
		files := map[string]string{
			"SKILL.md": "---\nslug: listy\ndescription:\n  - part one\n  - part two\n---\n\n## Objective\nx\n\n## Quick Start\nx\n\n## Success Criteria\nx\n",
		}
		lib := buildLibrary(t, map[string]map[string]string{"listy-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckDescriptionScalar)
		require.Len(t, fs, 1)
		assert.True(t, fs[0].Fixable)
		assert.Empty(t, findingsFor(result, CheckDescriptionMissing))
	})

	t.Run("unknown header keys", func(t *testing.T) {
		files := map[string]string{
			"SKILL.md": "---\nslug: extras\ndescription: Fine.\nowner: me\nweight: 3\n---\n\n## Objective\nx\n\n## Quick Start\nx\n\n## Success Criteria\nx\n",
		}
		lib := buildLibrary(t, map[string]map[string]string{"extras-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckUnknownKeys)
		require.Len(t, fs, 1)
		assert.Equal(t, SeverityWarning, fs[0].Severity)
		assert.False(t, fs[0].Fixable)
		assert.Contains(t, fs[0].Message, "owner, weight")
	})

	t.Run("empty body is unrecoverable", func(t *testing.T) {
		files := map[string]string{
			"SKILL.md": "---\nslug: hollow\ndescription: Header only.\n---\n",
		}
		lib := buildLibrary(t, map[string]map[string]string{"hollow-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckBodyMissing)
		require.Len(t, fs, 1)
		assert.False(t, fs[0].Fixable)
		assert.Equal(t, 1, result.UnrecoverableRecords)
		assert.Empty(t, findingsFor(result, CheckSectionMissing))
	})
}

func TestValidateConfigChecks(t *testing.T) {
	t.Run("missing config is fixable", func(t *testing.T) {
		lib := buildLibrary(t, map[string]map[string]string{
			"noconf-skill": {"SKILL.md": healthySkill("noconf")},
		})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckConfig)
		require.Len(t, fs, 1)
		assert.True(t, fs[0].Fixable)
		assert.Zero(t, result.UnrecoverableRecords)
	})

	t.Run("malformed config is not fixable", func(t *testing.T) {
		files := healthyRecord("badconf")
		files["skill.yaml"] = "name: [oops\n"
		lib := buildLibrary(t, map[string]map[string]string{"badconf-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckConfig)
		require.Len(t, fs, 1)
		assert.False(t, fs[0].Fixable)
		assert.Equal(t, 1, result.UnrecoverableRecords)
	})

	t.Run("missing required keys", func(t *testing.T) {
		files := healthyRecord("sparse")
		files["skill.yaml"] = "name: sparse\n"
		lib := buildLibrary(t, map[string]map[string]string{"sparse-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckConfigSchema)
		require.Len(t, fs, 1)
		assert.Equal(t, SeverityMedium, fs[0].Severity)
		assert.True(t, fs[0].Fixable)
		assert.Contains(t, fs[0].Message, "version, category")
	})

	t.Run("legacy keys renameable", func(t *testing.T) {
		files := healthyRecord("legacy")
		files["skill.yaml"] = healthyConfig("legacy") + "triggers:\n  - build stuff\n"
		lib := buildLibrary(t, map[string]map[string]string{"legacy-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckLegacyKeys)
		require.Len(t, fs, 1)
		assert.True(t, fs[0].Fixable)
		assert.Contains(t, fs[0].Message, "triggers (use activation_triggers)")
	})

	t.Run("legacy key conflicting with canonical", func(t *testing.T) {
		files := healthyRecord("clash")
		files["skill.yaml"] = healthyConfig("clash") + "type: tools\n"
		lib := buildLibrary(t, map[string]map[string]string{"clash-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckLegacyKeys)
		require.Len(t, fs, 1)
		assert.False(t, fs[0].Fixable)
		assert.Contains(t, fs[0].Message, "conflicts with existing category")
	})
}

func TestValidateContentChecks(t *testing.T) {
	t.Run("dead reference", func(t *testing.T) {
		files := healthyRecord("refs")
		files["SKILL.md"] = strings.Replace(healthySkill("refs"),
			"Run the thing.",
			"Use [the template](templates/base.md) and [old notes](notes/gone.md).", 1)
		files["templates/base.md"] = "template body\n"
		lib := buildLibrary(t, map[string]map[string]string{"refs-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckDeadReference)
		require.Len(t, fs, 1)
		assert.Equal(t, SeverityHigh, fs[0].Severity)
		assert.True(t, fs[0].Fixable)
		assert.Contains(t, fs[0].Message, "notes/gone.md")
	})

	t.Run("body over the advisory limit", func(t *testing.T) {
		lib := buildLibrary(t, map[string]map[string]string{
			"long-skill": healthyRecord("long"),
		})

		opts := NewOptions()
		opts.BodyLineLimit = 3
		result := validateLibrary(t, lib, opts)

		fs := findingsFor(result, CheckBodyLength)
		require.Len(t, fs, 1)
		assert.Equal(t, SeverityWarning, fs[0].Severity)
	})

	t.Run("directory missing suffix", func(t *testing.T) {
		lib := buildLibrary(t, map[string]map[string]string{
			"alpha": healthyRecord("alpha"),
		})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckDirNaming)
		require.Len(t, fs, 1)
		assert.Contains(t, fs[0].Message, `lacks the "-skill" suffix`)
	})

	t.Run("directory does not match slug", func(t *testing.T) {
		lib := buildLibrary(t, map[string]map[string]string{
			"beta-skill": healthyRecord("alpha"),
		})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckDirNaming)
		require.Len(t, fs, 1)
		assert.Contains(t, fs[0].Message, `does not match slug "alpha"`)
	})
}

func TestValidateCrossRecordChecks(t *testing.T) {
	t.Run("unknown dependency and integration", func(t *testing.T) {
		files := healthyRecord("solo")
		files["skill.yaml"] = healthyConfig("solo") + "depends_on:\n  - ghost\nintegrates_with:\n  - phantom\n"
		lib := buildLibrary(t, map[string]map[string]string{"solo-skill": files})

		result := validateLibrary(t, lib, NewOptions())

		deps := findingsFor(result, CheckUnknownDependency)
		require.Len(t, deps, 1)
		assert.Contains(t, deps[0].Message, `"ghost"`)

		ints := findingsFor(result, CheckUnknownIntegration)
		require.Len(t, ints, 1)
		assert.Contains(t, ints[0].Message, `"phantom"`)
	})

	t.Run("duplicate slug", func(t *testing.T) {
		lib := buildLibrary(t, map[string]map[string]string{
			"first-skill":  healthyRecord("shared"),
			"second-skill": healthyRecord("shared"),
		})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckDuplicateSlug)
		require.Len(t, fs, 2)
		assert.Equal(t, SeverityCritical, fs[0].Severity)
		assert.Contains(t, fs[0].Message, "first-skill")
		assert.Contains(t, fs[1].Message, "second-skill")
	})

	t.Run("trigger overlap", func(t *testing.T) {
		one := healthyRecord("one")
		one["skill.yaml"] = healthyConfig("one") + "activation_triggers:\n  - build a voice agent\n"
		two := healthyRecord("two")
		two["skill.yaml"] = healthyConfig("two") + "activation_triggers:\n  - build a voice agent\n"
		lib := buildLibrary(t, map[string]map[string]string{
			"one-skill": one,
			"two-skill": two,
		})

		result := validateLibrary(t, lib, NewOptions())

		fs := findingsFor(result, CheckTriggerOverlap)
		require.Len(t, fs, 2)
		assert.Equal(t, SeverityWarning, fs[0].Severity)
		assert.Equal(t, "one", fs[0].Record)
		assert.Contains(t, fs[0].Message, "two")
	})

	t.Run("repeated trigger within one record is not an overlap", func(t *testing.T) {
		solo := healthyRecord("solo")
		solo["skill.yaml"] = healthyConfig("solo") + "activation_triggers:\n  - build a voice agent\n  - build a voice agent\n"
		lib := buildLibrary(t, map[string]map[string]string{"solo-skill": solo})

		result := validateLibrary(t, lib, NewOptions())

		assert.Empty(t, findingsFor(result, CheckTriggerOverlap))
	})
}

func TestValidateCheckFilters(t *testing.T) {
	lib := buildLibrary(t, map[string]map[string]string{
		"alpha-skill": healthyRecord("alpha"),
	})

	t.Run("only structural", func(t *testing.T) {
		opts := NewOptions()
		opts.Only = []string{"structural/*"}
		result := validateLibrary(t, lib, opts)
		assert.Equal(t, 10, result.Attempted)
	})

	t.Run("skip content", func(t *testing.T) {
		opts := NewOptions()
		opts.Skip = []string{"content/*"}
		result := validateLibrary(t, lib, opts)
		assert.Equal(t, checksPerHealthyRecord-4+libraryWideChecks, result.Attempted)
	})
}

func TestValidateScoped(t *testing.T) {
	missingSection := map[string]string{
		"SKILL.md": `---
slug: alpha
description: Covers alpha workflows.
---

## Objective
Do it.

## Quick Start
Run it.
`,
		"skill.yaml": healthyConfig("alpha"),
	}
	lib := buildLibrary(t, map[string]map[string]string{
		"alpha-skill": missingSection,
		"beta-skill":  healthyRecord("beta"),
	})

	result := validateLibrary(t, lib, NewOptions())
	scoped := result.Scoped("alpha")

	assert.Equal(t, 1, scoped.Records)
	require.Len(t, scoped.Findings, 1)
	assert.Equal(t, "alpha", scoped.Findings[0].Record)
	assert.Equal(t, checksPerHealthyRecord+libraryWideChecks, scoped.Attempted)
	assert.Equal(t, scoped.Attempted-1, scoped.Passed)
	assert.Equal(t, 1, scoped.Fixable)
}

func TestValidateIdempotent(t *testing.T) {
	files := healthyRecord("alpha")
	files["skill.yaml"] = healthyConfig("alpha") + "depends_on:\n  - ghost\n"
	lib := buildLibrary(t, map[string]map[string]string{
		"alpha-skill": files,
		"beta":        healthyRecord("beta"),
	})

	first := validateLibrary(t, lib, NewOptions())
	second := validateLibrary(t, lib, NewOptions())

	assert.Equal(t, first.Findings, second.Findings)
	assert.Equal(t, first.Attempted, second.Attempted)
	assert.Equal(t, first.Passed, second.Passed)
}

func TestValidateCanceledContext(t *testing.T) {
	lib := buildLibrary(t, map[string]map[string]string{
		"alpha-skill": healthyRecord("alpha"),
	})

	v, err := New(NewOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = v.Validate(ctx, lib)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan canceled")
}
