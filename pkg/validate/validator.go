package validate

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/jingkaihe/skilldoctor/pkg/logger"
	"github.com/jingkaihe/skilldoctor/pkg/record"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options tune a validation pass.
type Options struct {
	BodyLineLimit int      // advisory body size ceiling in lines
	DirSuffix     string   // expected record directory suffix, "" disables
	Jobs          int      // worker pool size for the per-record layers
	Only          []string // run only checks matching these glob patterns
	Skip          []string // skip checks matching these glob patterns
}

// NewOptions returns the default options.
func NewOptions() Options {
	return Options{
		BodyLineLimit: 500,
		DirSuffix:     "-skill",
		Jobs:          runtime.NumCPU(),
	}
}

// Validator runs the three check layers over a library. It holds no state
// between passes; one Validator can serve many libraries.
type Validator struct {
	opts   Options
	filter *checkFilter
}

// New builds a Validator, compiling the only/skip patterns.
func New(opts Options) (*Validator, error) {
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	if opts.BodyLineLimit < 1 {
		opts.BodyLineLimit = NewOptions().BodyLineLimit
	}

	filter, err := newCheckFilter(opts.Only, opts.Skip)
	if err != nil {
		return nil, err
	}
	return &Validator{opts: opts, filter: filter}, nil
}

func newFinding(recordID, checkID, message string) Finding {
	check, _ := CheckByID(checkID)
	return Finding{
		Record:   recordID,
		Check:    checkID,
		Severity: check.Severity,
		Message:  message,
		Fixable:  check.Fixable,
	}
}

// collector accumulates findings and attempt accounting for one record, or
// for the library-wide checks with an empty record ID.
type collector struct {
	record    string
	filter    *checkFilter
	findings  []Finding
	attempted int
	failed    int
}

// run evaluates one check when enabled. The attempt is counted either way;
// the check fails when the evaluation yields any findings.
func (c *collector) run(checkID string, eval func() []Finding) {
	if !c.filter.Enabled(checkID) {
		return
	}
	c.attempted++
	if fs := eval(); len(fs) > 0 {
		c.failed++
		c.findings = append(c.findings, fs...)
	}
}

func (c *collector) finding(checkID, message string) Finding {
	return newFinding(c.record, checkID, message)
}

func (c *collector) fail(checkID, message string) []Finding {
	return []Finding{c.finding(checkID, message)}
}

type stats struct {
	attempted int
	failed    int
}

// Result is the outcome of one validation pass.
type Result struct {
	Records              int
	UnrecoverableRecords int
	Findings             []Finding
	Attempted            int
	Passed               int
	Fixable              int
	Duration             time.Duration

	perRecord map[string]stats
	library   stats
}

// HealthScore is passed over attempted checks; an empty run scores 1.
func (r *Result) HealthScore() float64 {
	if r.Attempted == 0 {
		return 1.0
	}
	return float64(r.Passed) / float64(r.Attempted)
}

// Scoped narrows the result to one record: its findings, including
// library-wide findings that name it, scored over its checks plus the
// once-per-scan checks.
func (r *Result) Scoped(id string) *Result {
	rs := r.perRecord[id]

	var findings []Finding
	libFailed := make(map[string]bool)
	fixable := 0
	for _, f := range r.Findings {
		if f.Record != id {
			continue
		}
		findings = append(findings, f)
		if f.Fixable {
			fixable++
		}
		if check, ok := CheckByID(f.Check); ok && check.Scope == ScopeLibrary {
			libFailed[f.Check] = true
		}
	}

	attempted := rs.attempted + r.library.attempted
	failed := rs.failed + len(libFailed)

	return &Result{
		Records:   1,
		Findings:  findings,
		Attempted: attempted,
		Passed:    attempted - failed,
		Fixable:   fixable,
		Duration:  r.Duration,
		perRecord: map[string]stats{id: rs},
		library:   stats{attempted: r.library.attempted, failed: len(libFailed)},
	}
}

// Validate runs all three layers. Layers 1 and 2 fan out per record across
// a bounded pool with results landing in an indexed slice; layer 3 starts
// only after every record's result is in. A canceled context aborts the
// pass without a result.
func (v *Validator) Validate(ctx context.Context, lib *record.Library) (*Result, error) {
	start := time.Now()
	log := logger.G(ctx)

	type outcome struct {
		id            string
		unrecoverable bool
		findings      []Finding
		stats         stats
	}

	outcomes := make([]outcome, len(lib.Records))
	sem := make(chan struct{}, v.opts.Jobs)
	wg := sync.WaitGroup{}
	wg.Add(len(lib.Records))

	for i, rec := range lib.Records {
		go func(rec *record.Record, i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}

			col := &collector{record: rec.ID(), filter: v.filter}
			structuralChecks(rec, col)

			unrecoverable := Unrecoverable(rec)
			if !unrecoverable {
				contentChecks(rec, v.opts, col)
			}

			outcomes[i] = outcome{
				id:            rec.ID(),
				unrecoverable: unrecoverable,
				findings:      col.findings,
				stats:         stats{attempted: col.attempted, failed: col.failed},
			}
		}(rec, i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "scan canceled")
	}

	slugs := lib.Slugs()
	var recoverable []*record.Record
	for i, rec := range lib.Records {
		if outcomes[i].unrecoverable {
			continue
		}
		recoverable = append(recoverable, rec)

		col := &collector{record: rec.ID(), filter: v.filter}
		integrationChecks(rec, slugs, col)
		outcomes[i].findings = append(outcomes[i].findings, col.findings...)
		outcomes[i].stats.attempted += col.attempted
		outcomes[i].stats.failed += col.failed
	}

	libCol := &collector{filter: v.filter}
	libraryChecks(lib, recoverable, libCol)

	result := &Result{
		Records:   len(lib.Records),
		perRecord: make(map[string]stats, len(outcomes)),
		library:   stats{attempted: libCol.attempted, failed: libCol.failed},
	}

	failed := libCol.failed
	for _, out := range outcomes {
		if out.unrecoverable {
			result.UnrecoverableRecords++
		}
		result.Findings = append(result.Findings, out.findings...)
		prev := result.perRecord[out.id]
		result.perRecord[out.id] = stats{
			attempted: prev.attempted + out.stats.attempted,
			failed:    prev.failed + out.stats.failed,
		}
		result.Attempted += out.stats.attempted
		failed += out.stats.failed
	}
	result.Findings = append(result.Findings, libCol.findings...)
	result.Attempted += libCol.attempted
	result.Passed = result.Attempted - failed

	sortFindings(result.Findings)
	for _, f := range result.Findings {
		if f.Fixable {
			result.Fixable++
		}
	}
	result.Duration = time.Since(start)

	log.WithFields(logrus.Fields{
		"records":   result.Records,
		"findings":  len(result.Findings),
		"attempted": result.Attempted,
		"passed":    result.Passed,
		"duration":  result.Duration,
	}).Debug("validation complete")
	return result, nil
}
