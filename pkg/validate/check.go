package validate

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// Layer is the validation pass a check belongs to.
type Layer int

const (
	// LayerStructural checks a record's files and header in isolation.
	LayerStructural Layer = iota + 1
	// LayerContent checks the markdown body.
	LayerContent
	// LayerIntegration checks the config schema and cross-record consistency.
	LayerIntegration
)

// Scope distinguishes checks evaluated once per record from checks
// evaluated once per scan.
type Scope int

const (
	// ScopeRecord checks run against each record.
	ScopeRecord Scope = iota
	// ScopeLibrary checks run once over the whole library.
	ScopeLibrary
)

// Check identifiers. The set is closed: adding a rule means adding a
// constant and a registry row here, not registering from elsewhere.
const (
	CheckHeaderMissing      = "structural/header-missing"
	CheckSlugMissing        = "structural/slug-missing"
	CheckSlugFormat         = "structural/slug-format"
	CheckDescriptionMissing = "structural/description-missing"
	CheckDescriptionLength  = "structural/description-length"
	CheckDescriptionMarkup  = "structural/description-markup"
	CheckDescriptionScalar  = "structural/description-scalar"
	CheckUnknownKeys        = "structural/unknown-keys"
	CheckBodyMissing        = "structural/body-missing"
	CheckConfig             = "structural/config"

	CheckSectionMissing = "content/section-missing"
	CheckBodyLength     = "content/body-length"
	CheckDeadReference  = "content/dead-reference"
	CheckDirNaming      = "content/dir-naming"

	CheckConfigSchema       = "integration/config-schema"
	CheckLegacyKeys         = "integration/legacy-keys"
	CheckDependencyCycle    = "integration/dependency-cycle"
	CheckUnknownIntegration = "integration/unknown-integration"
	CheckUnknownDependency  = "integration/unknown-dependency"
	CheckTriggerOverlap     = "integration/trigger-overlap"
	CheckDuplicateSlug      = "integration/duplicate-slug"
)

// Check describes one rule: where it runs, how severe its findings are,
// and whether the auto-fix engine carries a strategy for it. Individual
// findings may still be unfixable (a malformed config cannot be rewritten
// even though a missing one can be synthesized).
type Check struct {
	ID       string
	Layer    Layer
	Severity Severity
	Scope    Scope
	Fixable  bool
}

var registry = []Check{
	{CheckHeaderMissing, LayerStructural, SeverityCritical, ScopeRecord, false},
	{CheckSlugMissing, LayerStructural, SeverityCritical, ScopeRecord, false},
	{CheckSlugFormat, LayerStructural, SeverityCritical, ScopeRecord, true},
	{CheckDescriptionMissing, LayerStructural, SeverityCritical, ScopeRecord, false},
	{CheckDescriptionLength, LayerStructural, SeverityCritical, ScopeRecord, true},
	{CheckDescriptionMarkup, LayerStructural, SeverityCritical, ScopeRecord, true},
	{CheckDescriptionScalar, LayerStructural, SeverityCritical, ScopeRecord, true},
	{CheckUnknownKeys, LayerStructural, SeverityWarning, ScopeRecord, false},
	{CheckBodyMissing, LayerStructural, SeverityCritical, ScopeRecord, false},
	{CheckConfig, LayerStructural, SeverityCritical, ScopeRecord, true},

	{CheckSectionMissing, LayerContent, SeverityHigh, ScopeRecord, true},
	{CheckBodyLength, LayerContent, SeverityWarning, ScopeRecord, false},
	{CheckDeadReference, LayerContent, SeverityHigh, ScopeRecord, true},
	{CheckDirNaming, LayerContent, SeverityWarning, ScopeRecord, false},

	{CheckConfigSchema, LayerIntegration, SeverityMedium, ScopeRecord, true},
	{CheckLegacyKeys, LayerIntegration, SeverityMedium, ScopeRecord, true},
	{CheckDependencyCycle, LayerIntegration, SeverityCritical, ScopeLibrary, false},
	{CheckUnknownIntegration, LayerIntegration, SeverityMedium, ScopeRecord, false},
	{CheckUnknownDependency, LayerIntegration, SeverityMedium, ScopeRecord, false},
	{CheckTriggerOverlap, LayerIntegration, SeverityWarning, ScopeLibrary, false},
	{CheckDuplicateSlug, LayerIntegration, SeverityCritical, ScopeLibrary, false},
}

// Checks returns every registered check.
func Checks() []Check {
	out := make([]Check, len(registry))
	copy(out, registry)
	return out
}

// CheckByID looks up a check by its identifier.
func CheckByID(id string) (Check, bool) {
	for _, c := range registry {
		if c.ID == id {
			return c, true
		}
	}
	return Check{}, false
}

// checkFilter selects which checks run, driven by --only and --skip
// patterns. Patterns are exact IDs or globs like "structural/*".
type checkFilter struct {
	only []glob.Glob
	skip []glob.Glob
}

func newCheckFilter(only, skip []string) (*checkFilter, error) {
	compile := func(patterns []string) ([]glob.Glob, error) {
		var compiled []glob.Glob
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			g, err := glob.Compile(p)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid check pattern %q", p)
			}
			compiled = append(compiled, g)
		}
		return compiled, nil
	}

	onlyGlobs, err := compile(only)
	if err != nil {
		return nil, err
	}
	skipGlobs, err := compile(skip)
	if err != nil {
		return nil, err
	}
	return &checkFilter{only: onlyGlobs, skip: skipGlobs}, nil
}

// Enabled reports whether a check should run.
func (f *checkFilter) Enabled(id string) bool {
	if f == nil {
		return true
	}
	for _, g := range f.skip {
		if g.Match(id) {
			return false
		}
	}
	if len(f.only) == 0 {
		return true
	}
	for _, g := range f.only {
		if g.Match(id) {
			return true
		}
	}
	return false
}
