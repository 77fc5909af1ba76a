// Package autofix turns fixable findings into concrete file rewrites and
// walks them through a four-state loop: propose, preview, confirm, apply.
// Nothing touches disk before the confirm step, and every applied record is
// re-read and re-validated before any further proposal targets it.
package autofix

import (
	"fmt"
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"
)

// Proposal is one repair: rewrite Path from Before to After. It is pure
// data; building one has no side effect.
type Proposal struct {
	Record  string // record ID the finding was raised against
	Check   string // check that raised it
	Path    string // file to rewrite
	Before  string // content the file must still hold at apply time
	After   string // replacement content
	Summary string // one-line description for confirmation prompts
}

// Creates reports whether the proposal creates a new file rather than
// rewriting an existing one.
func (p *Proposal) Creates() bool {
	return p.Before == ""
}

// Diff renders a unified before/after diff of the rewrite.
func (p *Proposal) Diff() string {
	name := filepath.Base(p.Path)
	return udiff.Unified(name, name, p.Before, p.After)
}

// Label identifies the proposal in prompts and logs.
func (p *Proposal) Label() string {
	return fmt.Sprintf("%s: %s [%s]", p.Record, p.Summary, p.Check)
}
