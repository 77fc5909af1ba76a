package autofix

import (
	"context"
	"io/fs"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
	"github.com/sirupsen/logrus"

	"github.com/jingkaihe/skilldoctor/pkg/logger"
	"github.com/jingkaihe/skilldoctor/pkg/record"
	"github.com/jingkaihe/skilldoctor/pkg/validate"
)

// DefaultMaxRounds bounds the repair loop when callers pass no override.
const DefaultMaxRounds = 10

// ErrStale marks a proposal whose target file changed after the preview was
// built. Stale proposals are skipped, never force-applied.
var ErrStale = errors.New("file changed since the proposal was built")

// Engine drives the repair loop: propose fixes for the current findings,
// preview them, apply whatever the confirmer accepts, re-read the touched
// records from disk, and re-validate. Rounds after the first only re-propose
// against records modified in the previous round, so records the operator
// left alone are never churned.
type Engine struct {
	validator *validate.Validator
	confirmer Confirmer
	maxRounds int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine) error

// WithMaxRounds caps the number of confirm/apply cycles.
func WithMaxRounds(n int) EngineOption {
	return func(e *Engine) error {
		if n < 1 {
			return errors.Errorf("max rounds must be at least 1, got %d", n)
		}
		e.maxRounds = n
		return nil
	}
}

// NewEngine builds an engine around an existing validator and confirmer.
func NewEngine(validator *validate.Validator, confirmer Confirmer, opts ...EngineOption) (*Engine, error) {
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if confirmer == nil {
		return nil, errors.New("confirmer is required")
	}
	e := &Engine{
		validator: validator,
		confirmer: confirmer,
		maxRounds: DefaultMaxRounds,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Outcome summarizes one repair run.
type Outcome struct {
	Rounds   int              // confirm/apply cycles that wrote at least one file
	Applied  []*Proposal      // proposals written to disk
	Stale    []*Proposal      // accepted proposals skipped because the file changed underneath
	Declined bool             // the confirmer rejected a whole round
	Errors   error            // per-proposal apply failures; the run continues past them
	Final    *validate.Result // validation state after the last applied round
}

// Run executes repair rounds until no fixable findings remain, the fixable
// count stops shrinking, the confirmer declines, or the round cap is hit.
// The library is mutated in place as repaired records are re-read from disk.
func (e *Engine) Run(ctx context.Context, lib *record.Library, initial *validate.Result) (*Outcome, error) {
	log := logger.G(ctx)
	outcome := &Outcome{Final: initial}
	result := initial

	var allowed map[string]bool // nil on the first round: every record is eligible
	var applyErrs *multierror.Error

	for round := 1; round <= e.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return outcome, errors.Wrap(err, "repair loop canceled")
		}

		proposals := e.propose(ctx, lib, result, allowed)
		if len(proposals) == 0 {
			break
		}

		accepted, err := e.confirmer.Confirm(ctx, proposals)
		if err != nil {
			return outcome, errors.Wrap(err, "confirmation failed")
		}
		if len(accepted) == 0 {
			outcome.Declined = true
			break
		}

		modifiedDirs := make(map[string]bool)
		for _, p := range accepted {
			if err := apply(p); err != nil {
				if errors.Is(err, ErrStale) {
					outcome.Stale = append(outcome.Stale, p)
					log.WithField("path", p.Path).Warn("file changed since preview, skipping proposal")
					continue
				}
				applyErrs = multierror.Append(applyErrs, errors.Wrapf(err, "applying %s", p.Label()))
				continue
			}
			outcome.Applied = append(outcome.Applied, p)
			if rec := lib.Get(p.Record); rec != nil {
				modifiedDirs[rec.Dir] = true
			}
		}
		outcome.Errors = applyErrs.ErrorOrNil()
		if len(modifiedDirs) == 0 {
			break
		}
		outcome.Rounds++

		modified, err := reload(lib, modifiedDirs)
		if err != nil {
			return outcome, err
		}

		// The initial result may be scoped to one record and later rounds
		// re-validate the whole library, so raw Fixable totals are not
		// comparable across rounds. Progress is measured over the records
		// eligible for repair instead.
		previous := fixableIn(result, allowed)
		result, err = e.validator.Validate(ctx, lib)
		if err != nil {
			return outcome, err
		}
		outcome.Final = result

		remaining := fixableIn(result, modified)
		log.WithFields(logrus.Fields{
			"round":   round,
			"applied": len(outcome.Applied),
			"fixable": remaining,
		}).Debug("repair round complete")

		if remaining == 0 {
			break
		}
		if remaining >= previous {
			// A round that did not shrink the fixable count will not start
			// shrinking it later; stop instead of spinning.
			break
		}
		allowed = modified
	}

	return outcome, nil
}

// propose builds at most one proposal per (record, check) pair and at most
// one per physical file. A file claimed by a higher-severity finding defers
// the rest of its repairs to the next round, after the record is re-read.
func (e *Engine) propose(ctx context.Context, lib *record.Library, result *validate.Result, allowed map[string]bool) []*Proposal {
	log := logger.G(ctx)

	var proposals []*Proposal
	visited := make(map[string]bool)
	claimed := make(map[string]bool)

	for _, f := range result.Findings {
		if !f.Fixable {
			continue
		}
		if allowed != nil && !allowed[f.Record] {
			continue
		}
		key := f.Record + "\x00" + f.Check
		if visited[key] {
			continue
		}
		visited[key] = true

		strat, ok := strategyFor(f.Check)
		if !ok {
			continue
		}
		rec := lib.Get(f.Record)
		if rec == nil {
			continue
		}

		p, err := strat(rec)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"record": f.Record,
				"check":  f.Check,
			}).Warn("could not build repair proposal")
			continue
		}
		if p == nil {
			continue
		}
		if claimed[p.Path] {
			continue
		}
		claimed[p.Path] = true
		proposals = append(proposals, p)
	}
	return proposals
}

// fixableIn counts the fixable findings carried by the given records, or
// every fixable finding when ids is nil.
func fixableIn(result *validate.Result, ids map[string]bool) int {
	n := 0
	for _, f := range result.Findings {
		if !f.Fixable {
			continue
		}
		if ids != nil && !ids[f.Record] {
			continue
		}
		n++
	}
	return n
}

// apply writes one proposal under a file lock. The file must still hold the
// exact bytes the preview was built from, otherwise ErrStale.
func apply(p *Proposal) error {
	if p.Creates() {
		if _, err := os.Stat(p.Path); err == nil {
			return ErrStale
		} else if !errors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(err, "failed to stat %s", p.Path)
		}
		return lockedfile.Write(p.Path, strings.NewReader(p.After), 0o644)
	}

	return lockedfile.Transform(p.Path, func(data []byte) ([]byte, error) {
		if string(data) != p.Before {
			return nil, ErrStale
		}
		return []byte(p.After), nil
	})
}

// reload re-reads the modified records and swaps them into the library,
// returning the set of post-repair record IDs. IDs can change across a
// reload when the repair rewrote the slug.
func reload(lib *record.Library, dirs map[string]bool) (map[string]bool, error) {
	ids := make(map[string]bool, len(dirs))
	for dir := range dirs {
		fresh, err := record.LoadRecord(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to re-read %s after repair", dir)
		}
		lib.Replace(fresh)
		ids[fresh.ID()] = true
	}
	return ids, nil
}
