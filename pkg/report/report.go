// Package report renders a validation result in a fixed layout: one summary
// line, one block per non-empty severity, and a trailing auto-fix count. The
// same structure serializes to JSON for tooling and the history store.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skilldoctor/pkg/validate"
)

// Counts buckets findings by severity.
type Counts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Warning  int `json:"warning"`
}

// Summary is the header block of a report.
type Summary struct {
	Records       int     `json:"records"`
	Unrecoverable int     `json:"unrecoverable_records"`
	Attempted     int     `json:"checks_attempted"`
	Passed        int     `json:"checks_passed"`
	HealthScore   float64 `json:"health_score"`
	Fixable       int     `json:"fixable_findings"`
	DurationMS    int64   `json:"duration_ms"`
}

// Report is the renderable view of one validation pass.
type Report struct {
	Summary  Summary            `json:"summary"`
	Counts   Counts             `json:"counts"`
	Findings []validate.Finding `json:"findings"`
}

// New builds a report from a validation result, keeping the result's
// severity-first finding order.
func New(result *validate.Result) *Report {
	rep := &Report{
		Summary: Summary{
			Records:       result.Records,
			Unrecoverable: result.UnrecoverableRecords,
			Attempted:     result.Attempted,
			Passed:        result.Passed,
			HealthScore:   result.HealthScore(),
			Fixable:       result.Fixable,
			DurationMS:    result.Duration.Milliseconds(),
		},
		Findings: result.Findings,
	}
	if rep.Findings == nil {
		rep.Findings = []validate.Finding{}
	}

	for _, f := range rep.Findings {
		switch f.Severity {
		case validate.SeverityCritical:
			rep.Counts.Critical++
		case validate.SeverityHigh:
			rep.Counts.High++
		case validate.SeverityMedium:
			rep.Counts.Medium++
		case validate.SeverityWarning:
			rep.Counts.Warning++
		}
	}
	return rep
}

// HasBlocking reports whether any CRITICAL or HIGH finding remains. The
// scan exit code keys off this.
func (r *Report) HasBlocking() bool {
	return r.Counts.Critical > 0 || r.Counts.High > 0
}

// RenderText writes the fixed textual layout.
func (r *Report) RenderText(w io.Writer) error {
	var b strings.Builder

	b.WriteString(r.summaryLine())
	b.WriteString("\n")

	for _, sev := range validate.Severities() {
		var block []validate.Finding
		for _, f := range r.Findings {
			if f.Severity == sev {
				block = append(block, f)
			}
		}
		if len(block) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d)\n", sev, len(block))
		for _, f := range block {
			fmt.Fprintf(&b, "  %s: %s [%s]\n", f.Record, f.Message, f.Check)
		}
	}

	b.WriteString("\n")
	if len(r.Findings) == 0 {
		b.WriteString("No findings.\n")
	} else {
		fmt.Fprintf(&b, "%d %s, %d auto-fixable\n",
			len(r.Findings), plural("finding", len(r.Findings)), r.Summary.Fixable)
	}

	_, err := io.WriteString(w, b.String())
	return errors.Wrap(err, "failed to write report")
}

// RenderJSON writes the report as indented JSON.
func (r *Report) RenderJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return errors.Wrap(err, "failed to write report")
}

func (r *Report) summaryLine() string {
	records := fmt.Sprintf("%d %s", r.Summary.Records, plural("record", r.Summary.Records))
	if r.Summary.Unrecoverable > 0 {
		records += fmt.Sprintf(" (%d unrecoverable)", r.Summary.Unrecoverable)
	}
	return fmt.Sprintf("Scanned %s: %d/%d checks passed, health %.1f%%, took %dms",
		records, r.Summary.Passed, r.Summary.Attempted,
		r.Summary.HealthScore*100, r.Summary.DurationMS)
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
