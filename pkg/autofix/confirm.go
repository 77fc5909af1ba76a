package autofix

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jingkaihe/skilldoctor/pkg/presenter"
)

// Confirmer decides which previewed proposals get applied. Nothing is
// written to disk before a Confirmer has accepted a proposal.
type Confirmer interface {
	Confirm(ctx context.Context, proposals []*Proposal) ([]*Proposal, error)
}

// AutoApprove accepts every proposal without asking, for --yes runs.
type AutoApprove struct{}

// Confirm returns all proposals unchanged.
func (AutoApprove) Confirm(_ context.Context, proposals []*Proposal) ([]*Proposal, error) {
	return proposals, nil
}

// PromptConfirmer previews each proposal's diff and reads a line-oriented
// decision: accept all, reject all, or a comma-separated subset.
type PromptConfirmer struct {
	Presenter presenter.Presenter
}

// Confirm renders the previews grouped by record, then prompts.
func (c *PromptConfirmer) Confirm(_ context.Context, proposals []*Proposal) ([]*Proposal, error) {
	p := c.Presenter

	lastRecord := ""
	for i, proposal := range proposals {
		if proposal.Record != lastRecord {
			p.Section(proposal.Record)
			lastRecord = proposal.Record
		}
		p.Info(fmt.Sprintf("%d. %s", i+1, proposal.Label()))
		p.Info(proposal.Diff())
	}

	for {
		answer := p.Prompt(fmt.Sprintf("Apply %d proposals", len(proposals)), "yes", "no", "e.g. 1,3")
		switch strings.ToLower(answer) {
		case "", "n", "no":
			return nil, nil
		case "y", "yes", "a", "all":
			return proposals, nil
		}

		accepted, err := pickByNumber(proposals, answer)
		if err != nil {
			p.Warning(err.Error())
			continue
		}
		return accepted, nil
	}
}

func pickByNumber(proposals []*Proposal, answer string) ([]*Proposal, error) {
	var accepted []*Proposal
	seen := make(map[int]bool)
	for _, part := range strings.Split(answer, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > len(proposals) {
			return nil, fmt.Errorf("expected numbers between 1 and %d, got %q", len(proposals), part)
		}
		if !seen[n] {
			seen[n] = true
			accepted = append(accepted, proposals[n-1])
		}
	}
	return accepted, nil
}
