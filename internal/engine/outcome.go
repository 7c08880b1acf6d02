package engine

import (
	"github.com/samber/lo"

	"github.com/skaphos/gitlab-sync/internal/model"
)

// OutcomeKind is the typed outcome category for one reconciliation stage.
type OutcomeKind string

const (
	OutcomeCloned          OutcomeKind = "cloned"
	OutcomePulled          OutcomeKind = "pulled"
	OutcomeFetchedDirty    OutcomeKind = "fetched_dirty"
	OutcomePullFailed      OutcomeKind = "pull_failed"
	OutcomePushSucceeded   OutcomeKind = "push_succeeded"
	OutcomePushFailed      OutcomeKind = "push_failed"
	OutcomeSkippedArchived OutcomeKind = "skipped_archived"
	OutcomeSkippedAbsent   OutcomeKind = "skipped_absent"
	OutcomeSkippedEmpty    OutcomeKind = "skipped_empty"
)

// Failed reports whether the kind records a failed step.
func (k OutcomeKind) Failed() bool {
	return k == OutcomePullFailed || k == OutcomePushFailed
}

// NeedsAttention reports outcomes that succeeded but want a human to look.
func (k OutcomeKind) NeedsAttention() bool {
	return k == OutcomeFetchedDirty || k == OutcomeSkippedEmpty
}

// Outcome is one stage's result. Which fields are set depends on Kind:
// Fetched for cloned/pulled/fetched_dirty, FastForward for pulled,
// RefUpdates for push results, Reason and ErrorClass for failures.
type Outcome struct {
	Kind        OutcomeKind       `json:"kind"`
	FastForward bool              `json:"fast_forward,omitempty"`
	Fetched     []model.RefChange `json:"fetched,omitempty"`
	RefUpdates  []model.RefUpdate `json:"ref_updates,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	ErrorClass  string            `json:"error_class,omitempty"`
}

// SubmoduleResult records one best-effort submodule update.
type SubmoduleResult struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
}

// Result records everything a run did for one project.
type Result struct {
	// Project is the project name.
	Project string `json:"project"`
	// Path is the local working copy path.
	Path string `json:"path"`
	// Outcomes holds the pull-stage outcome, followed by the push-stage
	// outcome when the push was reached.
	Outcomes []Outcome `json:"outcomes"`
	// Submodules lists submodule updates. Failures here never change Outcomes.
	Submodules []SubmoduleResult `json:"submodules,omitempty"`
}

// Final returns the last recorded outcome.
func (r Result) Final() Outcome {
	if len(r.Outcomes) == 0 {
		return Outcome{}
	}
	return r.Outcomes[len(r.Outcomes)-1]
}

// Failed reports whether any stage failed.
func (r Result) Failed() bool {
	return lo.ContainsBy(r.Outcomes, func(o Outcome) bool { return o.Kind.Failed() })
}

// NeedsAttention reports whether any stage wants a human to look.
func (r Result) NeedsAttention() bool {
	return lo.ContainsBy(r.Outcomes, func(o Outcome) bool { return o.Kind.NeedsAttention() })
}

func (r Result) with(o Outcome) Result {
	r.Outcomes = append(r.Outcomes, o)
	return r
}

// Summary aggregates a run.
type Summary struct {
	Total     int                 `json:"total"`
	Failed    int                 `json:"failed"`
	Attention int                 `json:"attention"`
	ByKind    map[OutcomeKind]int `json:"by_kind"`
}

// Summarize counts results by their final outcome.
func Summarize(results []Result) Summary {
	summary := Summary{
		Total:     len(results),
		Failed:    lo.CountBy(results, func(r Result) bool { return r.Failed() }),
		Attention: lo.CountBy(results, func(r Result) bool { return r.NeedsAttention() }),
		ByKind:    make(map[OutcomeKind]int),
	}
	for _, r := range results {
		summary.ByKind[r.Final().Kind]++
	}
	return summary
}
