package autofix

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skilldoctor/pkg/record"
	"github.com/jingkaihe/skilldoctor/pkg/validate"
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

func scanLibrary(t *testing.T, lib *record.Library) *validate.Result {
	t.Helper()
	v, err := validate.New(validate.NewOptions())
	require.NoError(t, err)
	result, err := v.Validate(context.Background(), lib)
	require.NoError(t, err)
	return result
}

func newTestEngine(t *testing.T, confirmer Confirmer, opts ...EngineOption) *Engine {
	t.Helper()
	v, err := validate.New(validate.NewOptions())
	require.NoError(t, err)
	engine, err := NewEngine(v, confirmer, opts...)
	require.NoError(t, err)
	return engine
}

// scriptedConfirmer replays one decision per round and records what it saw.
type scriptedConfirmer struct {
	decide func(round int, proposals []*Proposal) []*Proposal
	rounds [][]*Proposal
}

func (c *scriptedConfirmer) Confirm(_ context.Context, proposals []*Proposal) ([]*Proposal, error) {
	c.rounds = append(c.rounds, proposals)
	if c.decide == nil {
		return proposals, nil
	}
	return c.decide(len(c.rounds), proposals), nil
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestEngineConvergesToZeroFixable(t *testing.T) {
	lib := buildLibrary(t, map[string]map[string]string{
		"text-tools-skill": {
			"SKILL.md": `---
slug: Text Tools!!
description: Uses <b>markup</b> in text.
---

## Objective
Transform text.
`,
		},
	})
	initial := scanLibrary(t, lib)
	require.Equal(t, 5, initial.Fixable)

	confirmer := &scriptedConfirmer{}
	engine := newTestEngine(t, confirmer)

	outcome, err := engine.Run(context.Background(), lib, initial)
	require.NoError(t, err)

	// Both SKILL.md repairs after the first share the file with an earlier
	// one, so they land in later rounds.
	assert.Equal(t, 3, outcome.Rounds)
	require.Len(t, outcome.Applied, 4)
	assert.Equal(t, validate.CheckConfig, outcome.Applied[0].Check)
	assert.Equal(t, validate.CheckDescriptionMarkup, outcome.Applied[1].Check)
	assert.Equal(t, validate.CheckSlugFormat, outcome.Applied[2].Check)
	assert.Equal(t, validate.CheckSectionMissing, outcome.Applied[3].Check)
	assert.False(t, outcome.Declined)
	assert.Empty(t, outcome.Stale)
	assert.NoError(t, outcome.Errors)

	assert.Equal(t, 0, outcome.Final.Fixable)
	assert.Empty(t, outcome.Final.Findings)
	assert.Equal(t, 1.0, outcome.Final.HealthScore())

	require.Len(t, confirmer.rounds, 3)
	assert.Len(t, confirmer.rounds[0], 2)
	assert.Len(t, confirmer.rounds[1], 1)
	assert.Len(t, confirmer.rounds[2], 1)

	dir := lib.Records[0].Dir
	skill := readFile(t, filepath.Join(dir, "SKILL.md"))
	assert.Contains(t, skill, "slug: text-tools\n")
	assert.NotContains(t, skill, "<b>")
	assert.Contains(t, skill, "## Quick Start")
	assert.Contains(t, skill, "## Success Criteria")

	config := readFile(t, filepath.Join(dir, "skill.yaml"))
	assert.Contains(t, config, "version: 0.1.0")
	assert.Contains(t, config, "category: uncategorized")
}

func TestEngineSecondRunProposesNothing(t *testing.T) {
	lib := buildLibrary(t, map[string]map[string]string{
		"text-tools-skill": {
			"SKILL.md": `---
slug: Text Tools!!
description: Uses <b>markup</b> in text.
---

## Objective
Transform text.
`,
		},
	})
	engine := newTestEngine(t, AutoApprove{})

	outcome, err := engine.Run(context.Background(), lib, scanLibrary(t, lib))
	require.NoError(t, err)
	require.Equal(t, 0, outcome.Final.Fixable)

	// A library that was just repaired yields no proposals at all, so a
	// second run terminates before ever consulting the confirmer.
	confirmer := &scriptedConfirmer{}
	engine = newTestEngine(t, confirmer)
	again, err := engine.Run(context.Background(), lib, scanLibrary(t, lib))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Rounds)
	assert.Empty(t, again.Applied)
	assert.Empty(t, confirmer.rounds)
}

func TestEngineDeclineStopsLoop(t *testing.T) {
	lib := buildLibrary(t, map[string]map[string]string{
		"markup-skill": {
			"SKILL.md": `---
slug: markup
description: Uses <b>bold</b> text.
---

## Objective
x.

## Quick Start
x.

## Success Criteria
x.
`,
			"skill.yaml": "name: markup\nversion: 0.1.0\ncategory: general\n",
		},
	})
	skillPath := lib.Records[0].SkillPath
	before := readFile(t, skillPath)

	confirmer := &scriptedConfirmer{decide: func(int, []*Proposal) []*Proposal { return nil }}
	engine := newTestEngine(t, confirmer)

	outcome, err := engine.Run(context.Background(), lib, scanLibrary(t, lib))
	require.NoError(t, err)

	assert.True(t, outcome.Declined)
	assert.Equal(t, 0, outcome.Rounds)
	assert.Empty(t, outcome.Applied)
	assert.Len(t, confirmer.rounds, 1)
	assert.Equal(t, before, readFile(t, skillPath))
}

func TestEngineSkipsStaleProposals(t *testing.T) {
	t.Run("rewrite target changed underneath", func(t *testing.T) {
		lib := buildLibrary(t, map[string]map[string]string{
			"markup-skill": {
				"SKILL.md": `---
slug: markup
description: Uses <b>bold</b> text.
---

## Objective
x.

## Quick Start
x.

## Success Criteria
x.
`,
				"skill.yaml": "name: markup\nversion: 0.1.0\ncategory: general\n",
			},
		})

		interference := "# rewritten while the preview was on screen\n"
		confirmer := &scriptedConfirmer{decide: func(_ int, proposals []*Proposal) []*Proposal {
			require.NoError(t, os.WriteFile(proposals[0].Path, []byte(interference), 0o644))
			return proposals
		}}
		engine := newTestEngine(t, confirmer)

		outcome, err := engine.Run(context.Background(), lib, scanLibrary(t, lib))
		require.NoError(t, err)

		require.Len(t, outcome.Stale, 1)
		assert.Empty(t, outcome.Applied)
		assert.Equal(t, 0, outcome.Rounds)
		assert.Equal(t, interference, readFile(t, outcome.Stale[0].Path))
	})

	t.Run("create target appeared underneath", func(t *testing.T) {
		lib := buildLibrary(t, map[string]map[string]string{
			"solo-skill": {
				"SKILL.md": `---
slug: solo
description: Runs solo workflows.
---

## Objective
x.

## Quick Start
x.

## Success Criteria
x.
`,
			},
		})

		manual := "name: solo\nversion: 2.0.0\ncategory: general\n"
		confirmer := &scriptedConfirmer{decide: func(_ int, proposals []*Proposal) []*Proposal {
			require.NoError(t, os.WriteFile(proposals[0].Path, []byte(manual), 0o644))
			return proposals
		}}
		engine := newTestEngine(t, confirmer)

		outcome, err := engine.Run(context.Background(), lib, scanLibrary(t, lib))
		require.NoError(t, err)

		require.Len(t, outcome.Stale, 1)
		assert.True(t, outcome.Stale[0].Creates())
		assert.Empty(t, outcome.Applied)
		assert.Equal(t, manual, readFile(t, outcome.Stale[0].Path))
	})
}

func TestEngineRestrictsLaterRoundsToModifiedRecords(t *testing.T) {
	markupSkill := func(slug string) string {
		return `---
slug: ` + slug + `
description: Uses <b>bold</b> ` + slug + ` text.
---

## Objective
x.

## Quick Start
x.

## Success Criteria
x.
`
	}
	lib := buildLibrary(t, map[string]map[string]string{
		"alpha-skill": {
			"SKILL.md":   markupSkill("alpha"),
			"skill.yaml": "name: alpha\nversion: 0.1.0\ncategory: general\n",
		},
		"beta-skill": {
			"SKILL.md":   markupSkill("beta"),
			"skill.yaml": "name: beta\nversion: 0.1.0\ncategory: general\n",
		},
	})
	betaPath := lib.Get("beta").SkillPath
	betaBefore := readFile(t, betaPath)

	confirmer := &scriptedConfirmer{decide: func(_ int, proposals []*Proposal) []*Proposal {
		var accepted []*Proposal
		for _, p := range proposals {
			if p.Record == "alpha" {
				accepted = append(accepted, p)
			}
		}
		return accepted
	}}
	engine := newTestEngine(t, confirmer)

	initial := scanLibrary(t, lib)
	require.Equal(t, 2, initial.Fixable)

	outcome, err := engine.Run(context.Background(), lib, initial)
	require.NoError(t, err)

	// beta was proposed in round one, left unapplied, and never re-proposed:
	// later rounds only revisit records the previous round modified.
	require.Len(t, confirmer.rounds, 1)
	assert.Len(t, confirmer.rounds[0], 2)
	require.Len(t, outcome.Applied, 1)
	assert.Equal(t, "alpha", outcome.Applied[0].Record)
	assert.Equal(t, 1, outcome.Final.Fixable)
	assert.Equal(t, betaBefore, readFile(t, betaPath))
}

func TestEngineScopedRunRepairsAcrossRounds(t *testing.T) {
	lib := buildLibrary(t, map[string]map[string]string{
		"alpha-skill": {
			"SKILL.md": `---
slug: alpha
description: Uses <b>markup</b> in text.
---

## Objective
Transform text.
`,
			"skill.yaml": "name: alpha\nversion: 0.1.0\ncategory: general\n",
		},
		"beta-skill": {
			"SKILL.md": `---
slug: beta
description: Uses <b>markup</b> in text.
---

## Objective
x.

## Quick Start
x.

## Success Criteria
x.
`,
			"skill.yaml": "name: beta\nversion: 0.1.0\ncategory: general\n",
		},
	})
	betaPath := lib.Get("beta").SkillPath
	betaBefore := readFile(t, betaPath)

	engine := newTestEngine(t, AutoApprove{})

	// The CLI hands the engine a result narrowed to one record when scan
	// targets a single skill; beta's fixable finding must neither be
	// proposed nor counted against alpha's progress.
	initial := scanLibrary(t, lib).Scoped("alpha")
	require.Equal(t, 3, initial.Fixable)

	outcome, err := engine.Run(context.Background(), lib, initial)
	require.NoError(t, err)

	// Markup claims SKILL.md in round one, the section stubs land in round
	// two after the re-read.
	assert.Equal(t, 2, outcome.Rounds)
	require.Len(t, outcome.Applied, 2)
	assert.Equal(t, validate.CheckDescriptionMarkup, outcome.Applied[0].Check)
	assert.Equal(t, validate.CheckSectionMissing, outcome.Applied[1].Check)

	assert.Equal(t, 0, outcome.Final.Scoped("alpha").Fixable)
	assert.Equal(t, 1, outcome.Final.Fixable)

	alpha := readFile(t, lib.Get("alpha").SkillPath)
	assert.NotContains(t, alpha, "<b>")
	assert.Contains(t, alpha, "## Quick Start")
	assert.Contains(t, alpha, "## Success Criteria")
	assert.Equal(t, betaBefore, readFile(t, betaPath))
}

func TestEngineTruncatesOverlongDescription(t *testing.T) {
	description := strings.Repeat("a", 899) + "." + strings.Repeat("b", 1100)
	lib := buildLibrary(t, map[string]map[string]string{
		"wordy-skill": {
			"SKILL.md": `---
slug: wordy
description: ` + description + `
---

## Objective
x.

## Quick Start
x.

## Success Criteria
x.
`,
			"skill.yaml": "name: wordy\nversion: 0.1.0\ncategory: general\n",
		},
	})
	engine := newTestEngine(t, AutoApprove{})

	outcome, err := engine.Run(context.Background(), lib, scanLibrary(t, lib))
	require.NoError(t, err)

	require.Len(t, outcome.Applied, 1)
	assert.Equal(t, 0, outcome.Final.Fixable)

	header, _, err := record.ParseHeader([]byte(readFile(t, lib.Get("wordy").SkillPath)))
	require.NoError(t, err)
	// Truncation backs up to the sentence boundary, not the hard cap.
	assert.Equal(t, 900, utf8.RuneCountInString(header.Description))
	assert.True(t, strings.HasSuffix(header.Description, "."))
}

func TestEngineStripsDeadReferencesInPlace(t *testing.T) {
	lib := buildLibrary(t, map[string]map[string]string{
		"refs-skill": {
			"SKILL.md": `---
slug: refs
description: Collects reference material.
---

## Objective
See [the guide](missing/guide.md) for details.

![diagram](assets/diagram.png)

## Quick Start
Open [the config](skill.yaml) and go.

## Success Criteria
Done.
`,
			"skill.yaml": "name: refs\nversion: 0.1.0\ncategory: general\n",
		},
	})
	engine := newTestEngine(t, AutoApprove{})

	initial := scanLibrary(t, lib)
	require.Equal(t, 2, initial.Fixable)

	outcome, err := engine.Run(context.Background(), lib, initial)
	require.NoError(t, err)

	require.Len(t, outcome.Applied, 1)
	assert.Equal(t, 0, outcome.Final.Fixable)

	body := readFile(t, lib.Get("refs").SkillPath)
	assert.Contains(t, body, "See the guide for details.\n")
	assert.Contains(t, body, "\ndiagram\n")
	assert.Contains(t, body, "[the config](skill.yaml)")
	assert.NotContains(t, body, "missing/guide.md")
	assert.NotContains(t, body, "assets/diagram.png")
}

func TestEngineHonorsRoundCap(t *testing.T) {
	lib := buildLibrary(t, map[string]map[string]string{
		"text-tools-skill": {
			"SKILL.md": `---
slug: Text Tools!!
description: Uses <b>markup</b> in text.
---

## Objective
Transform text.
`,
		},
	})
	engine := newTestEngine(t, AutoApprove{}, WithMaxRounds(1))

	outcome, err := engine.Run(context.Background(), lib, scanLibrary(t, lib))
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Rounds)
	assert.Len(t, outcome.Applied, 2)
	assert.Equal(t, 3, outcome.Final.Fixable)
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	v, err := validate.New(validate.NewOptions())
	require.NoError(t, err)

	_, err = NewEngine(nil, AutoApprove{})
	assert.Error(t, err)

	_, err = NewEngine(v, nil)
	assert.Error(t, err)

	_, err = NewEngine(v, AutoApprove{}, WithMaxRounds(0))
	assert.Error(t, err)
}
