package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jingkaihe/skilldoctor/pkg/record"
)

// integrationChecks runs the per-record part of layer 3: config schema,
// retired keys, and references to other records. Records without a config
// skip the lot; structural/config already flagged the absence.
func integrationChecks(rec *record.Record, slugs map[string][]*record.Record, col *collector) {
	cfg := rec.Config
	if cfg == nil {
		return
	}

	col.run(CheckConfigSchema, func() []Finding {
		missing := cfg.MissingRequired()
		if len(missing) == 0 {
			return nil
		}
		return col.fail(CheckConfigSchema,
			fmt.Sprintf("config is missing required keys: %s", strings.Join(missing, ", ")))
	})

	col.run(CheckLegacyKeys, func() []Finding {
		legacy := cfg.LegacyKeys()
		if len(legacy) == 0 {
			return nil
		}

		renameable := false
		parts := make([]string, 0, len(legacy))
		for _, key := range legacy {
			canonical := record.ConfigLegacyKeys[key]
			if !cfg.Has(canonical) {
				renameable = true
				parts = append(parts, fmt.Sprintf("%s (use %s)", key, canonical))
			} else {
				parts = append(parts, fmt.Sprintf("%s (conflicts with existing %s)", key, canonical))
			}
		}

		f := col.fail(CheckLegacyKeys,
			fmt.Sprintf("config uses retired keys: %s", strings.Join(parts, ", ")))
		f[0].Fixable = renameable
		return f
	})

	col.run(CheckUnknownIntegration, func() []Finding {
		var findings []Finding
		for _, target := range cfg.IntegratesWith {
			if len(slugs[target]) == 0 {
				findings = append(findings, col.finding(CheckUnknownIntegration,
					fmt.Sprintf("integrates_with references unknown skill %q", target)))
			}
		}
		return findings
	})

	col.run(CheckUnknownDependency, func() []Finding {
		var findings []Finding
		for _, target := range cfg.DependsOn {
			if len(slugs[target]) == 0 {
				findings = append(findings, col.finding(CheckUnknownDependency,
					fmt.Sprintf("depends_on references unknown skill %q", target)))
			}
		}
		return findings
	})
}

// libraryChecks runs the once-per-scan part of layer 3 over the whole
// library: slug uniqueness, dependency cycles, and trigger overlap.
func libraryChecks(lib *record.Library, recoverable []*record.Record, col *collector) {
	col.run(CheckDuplicateSlug, func() []Finding {
		slugs := lib.Slugs()
		dupes := make([]string, 0, len(slugs))
		for slug, carriers := range slugs {
			if len(carriers) > 1 {
				dupes = append(dupes, slug)
			}
		}
		sort.Strings(dupes)

		var findings []Finding
		for _, slug := range dupes {
			carriers := slugs[slug]
			for _, rec := range carriers {
				others := make([]string, 0, len(carriers)-1)
				for _, other := range carriers {
					if other != rec {
						others = append(others, other.DirName)
					}
				}
				findings = append(findings, newFinding(rec.ID(), CheckDuplicateSlug,
					fmt.Sprintf("slug %q in %s is also carried by %s", slug, rec.DirName, strings.Join(others, ", "))))
			}
		}
		return findings
	})

	col.run(CheckDependencyCycle, func() []Finding {
		adj := dependencyGraph(recoverable)
		var findings []Finding
		for _, edge := range detectCycles(adj) {
			findings = append(findings, newFinding(edge.From, CheckDependencyCycle,
				fmt.Sprintf("dependency edge %s -> %s closes a cycle", edge.From, edge.To)))
		}
		return findings
	})

	col.run(CheckTriggerOverlap, func() []Finding {
		// Overlap means the same trigger on two or more records; a record
		// repeating its own trigger is not an overlap with itself.
		carriers := make(map[string][]string)
		seen := make(map[string]map[string]bool)
		for _, rec := range recoverable {
			if rec.Config == nil {
				continue
			}
			id := rec.ID()
			for _, trigger := range rec.Config.ActivationTriggers {
				if strings.TrimSpace(trigger) == "" {
					continue
				}
				if seen[trigger] == nil {
					seen[trigger] = make(map[string]bool)
				}
				if seen[trigger][id] {
					continue
				}
				seen[trigger][id] = true
				carriers[trigger] = append(carriers[trigger], id)
			}
		}

		triggers := make([]string, 0, len(carriers))
		for trigger, ids := range carriers {
			if len(ids) > 1 {
				triggers = append(triggers, trigger)
			}
		}
		sort.Strings(triggers)

		var findings []Finding
		for _, trigger := range triggers {
			ids := carriers[trigger]
			for i, id := range ids {
				others := make([]string, 0, len(ids)-1)
				for j, other := range ids {
					if j != i {
						others = append(others, other)
					}
				}
				findings = append(findings, newFinding(id, CheckTriggerOverlap,
					fmt.Sprintf("activation trigger %q is also declared by %s", trigger, strings.Join(others, ", "))))
			}
		}
		return findings
	})
}
