// Package validate is the layered rule checker: structural checks on each
// record's header and files, content checks on the markdown body, and
// integration checks across the whole library, including dependency-graph
// cycle detection. It only reads; repairs live in pkg/autofix.
package validate

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Severity ranks findings. The zero value is the least severe so the
// constants order ascending; reports render descending.
type Severity int

const (
	// SeverityWarning findings are advisory and never gate the exit code.
	SeverityWarning Severity = iota
	// SeverityMedium findings are schema and consistency problems.
	SeverityMedium
	// SeverityHigh findings make a record unreliable in use.
	SeverityHigh
	// SeverityCritical findings make a record unusable or the library
	// inconsistent.
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityWarning:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders the severity name rather than the numeric rank.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts the severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	name := strings.Trim(string(data), `"`)
	for _, candidate := range Severities() {
		if candidate.String() == name {
			*s = candidate
			return nil
		}
	}
	return errors.Errorf("unknown severity %q", name)
}

// Severities lists all severities from most to least severe, the order
// reports render them in.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityWarning}
}

// Finding is one rule violation. Findings are immutable values; fixing one
// means rewriting the record and re-validating, never editing the finding.
type Finding struct {
	Record   string   `json:"record"`
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Fixable  bool     `json:"fixable"`
}

// sortFindings orders findings for stable output: most severe first, then
// by record, check, and message.
func sortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Record != b.Record {
			return a.Record < b.Record
		}
		if a.Check != b.Check {
			return a.Check < b.Check
		}
		return a.Message < b.Message
	})
}
