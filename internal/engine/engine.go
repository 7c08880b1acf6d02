// Package engine reconciles GitLab projects with their local working copies.
// Reconcile runs the per-project state machine; Run drives a whole batch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skaphos/gitlab-sync/internal/endpoint"
	"github.com/skaphos/gitlab-sync/internal/gitx"
	"github.com/skaphos/gitlab-sync/internal/model"
	"github.com/skaphos/gitlab-sync/internal/report"
	"github.com/skaphos/gitlab-sync/internal/vcs"
)

// ErrRemoteInvariant is returned when a freshly created canonical remote
// cannot be read back. It aborts the run.
var ErrRemoteInvariant = errors.New("canonical remote missing after creation")

const (
	fetchFailedHint = "fetching failed, possible reasons: the upstream repository is empty, the provided credentials are wrong"
	dirtyWarning    = "repository is dirty, fetching updates, please merge manually"
	emptyMessage    = "empty repository, nothing to do"
)

// Options is the per-run configuration passed to the engine once.
type Options struct {
	// Transport selects ssh or http(s) clone URLs.
	Transport model.Transport
	// RemoteName is the canonical remote name. Defaults to "gitlab".
	RemoteName string
}

// Engine reconciles projects against local working copies.
type Engine struct {
	opts     Options
	adapter  vcs.Adapter
	prober   vcs.StateProber
	reporter report.Reporter

	locks pathLocks
}

// New creates an Engine. Nil collaborators fall back to the git CLI adapter,
// the go-git prober and a discarding reporter.
func New(opts Options, adapter vcs.Adapter, prober vcs.StateProber, reporter report.Reporter) *Engine {
	if adapter == nil {
		adapter = vcs.NewGitAdapter(nil)
	}
	if prober == nil {
		prober = vcs.NewProber()
	}
	if reporter == nil {
		reporter = report.Nop
	}
	if strings.TrimSpace(opts.RemoteName) == "" {
		opts.RemoteName = model.DefaultRemoteName
	}
	return &Engine{opts: opts, adapter: adapter, prober: prober, reporter: reporter}
}

// Reconcile runs the state machine for one project. Per-project failures are
// recorded as outcomes; the returned error is reserved for ErrRemoteInvariant.
func (e *Engine) Reconcile(ctx context.Context, project model.Project, mode model.Mode) (Result, error) {
	res := Result{Project: project.Name, Path: project.LocalPath}

	if project.Archived {
		e.emit(project, report.LevelDebug, report.StepStart, "archived, skipping")
		return res.with(Outcome{Kind: OutcomeSkippedArchived}), nil
	}

	state, err := e.prober.Probe(project.LocalPath, e.opts.RemoteName)
	if err != nil {
		return res.with(e.pullFailed(project, report.StepStart, err)), nil
	}
	if state.Absent && mode != model.ModeSync {
		e.emit(project, report.LevelDebug, report.StepStart, "not cloned locally, skipping")
		return res.with(Outcome{Kind: OutcomeSkippedAbsent}), nil
	}

	e.emit(project, report.LevelInfo, report.StepStart, "repository %s", project.Name)
	resolution := endpoint.Resolve(project, e.opts.Transport, e.opts.RemoteName)
	if resolution.Advisory != "" {
		e.emit(project, report.LevelInfo, report.StepResolve, "%s", resolution.Advisory)
	}
	remote := resolution.Spec

	if state.Absent {
		e.emit(project, report.LevelInfo, report.StepInit, "cloning into %s", project.LocalPath)
		if err := e.adapter.Init(ctx, project.LocalPath); err != nil {
			return res.with(e.pullFailed(project, report.StepInit, err)), nil
		}
		if err := e.createRemote(ctx, project, remote); err != nil {
			if errors.Is(err, ErrRemoteInvariant) {
				return res, err
			}
			return res.with(e.pullFailed(project, report.StepInit, err)), nil
		}
		state = model.RepoState{Path: project.LocalPath, Empty: true}
	} else {
		if err := e.attach(ctx, project, remote, state); err != nil {
			if errors.Is(err, ErrRemoteInvariant) {
				return res, err
			}
			return res.with(e.pullFailed(project, report.StepAttach, err)), nil
		}
	}

	pull := e.pull(ctx, project, remote, state)
	res = res.with(pull)
	switch {
	case pull.Kind == OutcomeFetchedDirty && state.Empty:
		// No local history yet, so there is nothing to push.
		return res, nil
	case pull.Kind != OutcomeCloned && pull.Kind != OutcomePulled && pull.Kind != OutcomeFetchedDirty:
		return res, nil
	}

	res.Submodules = e.updateSubmodules(ctx, project)
	if mode == model.ModePull {
		return res, nil
	}
	return res.with(e.push(ctx, project, remote)), nil
}

func (e *Engine) createRemote(ctx context.Context, project model.Project, remote model.RemoteSpec) error {
	if err := e.adapter.AddRemote(ctx, project.LocalPath, remote.Name, remote.URL); err != nil {
		return fmt.Errorf("add remote %s: %w", remote.Name, err)
	}
	got, err := e.adapter.RemoteURL(ctx, project.LocalPath, remote.Name)
	if err != nil {
		return fmt.Errorf("%w: %s in %s: %w", ErrRemoteInvariant, remote.Name, project.LocalPath, err)
	}
	if got == "" {
		return fmt.Errorf("%w: %s in %s has no URL", ErrRemoteInvariant, remote.Name, project.LocalPath)
	}
	return nil
}

func (e *Engine) attach(ctx context.Context, project model.Project, remote model.RemoteSpec, state model.RepoState) error {
	if state.MissingRemote {
		e.emit(project, report.LevelWarn, report.StepAttach, "repository does not have a %s remote, adding it", remote.Name)
		return e.createRemote(ctx, project, remote)
	}
	if state.RemoteURL != "" && !gitx.SameRepository(state.RemoteURL, remote.URL) {
		e.emit(project, report.LevelWarn, report.StepAttach, "remote %s points at %s, expected %s", remote.Name, state.RemoteURL, remote.URL)
	}
	return nil
}

// pull applies the pull policy: dirty fetches only, empty stops quietly,
// clean fetches and merges. A freshly initialized repository goes through
// branch tracking instead of merging.
func (e *Engine) pull(ctx context.Context, project model.Project, remote model.RemoteSpec, state model.RepoState) Outcome {
	dir := project.LocalPath
	e.emit(project, report.LevelInfo, report.StepPull, "pulling %s", project.Name)

	if state.Dirty {
		e.emit(project, report.LevelWarn, report.StepPull, dirtyWarning)
		fetched, err := e.fetch(ctx, project, remote)
		if err != nil {
			return e.fetchFailed(project, err)
		}
		return Outcome{Kind: OutcomeFetchedDirty, Fetched: fetched}
	}

	fetched, err := e.fetch(ctx, project, remote)
	if err != nil {
		return e.fetchFailed(project, err)
	}

	head, err := e.adapter.Head(ctx, dir)
	if err != nil {
		return e.pullFailed(project, report.StepPull, err)
	}
	if state.Empty || head.Unborn {
		hasRefs, err := e.adapter.HasRefs(ctx, dir)
		if err != nil {
			return e.pullFailed(project, report.StepPull, err)
		}
		if !hasRefs {
			e.emit(project, report.LevelInfo, report.StepPull, emptyMessage)
			return Outcome{Kind: OutcomeSkippedEmpty, Fetched: fetched}
		}
		if head.Unborn {
			return e.track(ctx, project, remote, fetched)
		}
	}
	if head.Detached {
		return e.pullFailed(project, report.StepPull, errors.New("HEAD is detached, not merging"))
	}
	// Only the default branch is synced; never merge into another checkout.
	if project.DefaultBranch != "" && head.Branch != project.DefaultBranch {
		return e.pullFailed(project, report.StepPull, fmt.Errorf("HEAD is on %s, not %s, not merging", head.Branch, project.DefaultBranch))
	}
	return e.merge(ctx, project, remote, fetched)
}

func (e *Engine) fetch(ctx context.Context, project model.Project, remote model.RemoteSpec) ([]model.RefChange, error) {
	fetched, err := e.adapter.Fetch(ctx, project.LocalPath, remote.Name)
	if err != nil {
		return nil, err
	}
	for _, change := range fetched {
		if change.New == "" {
			e.emit(project, report.LevelInfo, report.StepFetch, "pruned %s", change.Ref)
			continue
		}
		e.emit(project, report.LevelInfo, report.StepFetch, "fetched %s to %s (%s)", change.Ref, shortID(change.New), change.Note)
	}
	return fetched, nil
}

func (e *Engine) merge(ctx context.Context, project model.Project, remote model.RemoteSpec, fetched []model.RefChange) Outcome {
	dir := project.LocalPath
	upstream := e.adapter.Upstream(ctx, dir)
	if upstream == "" {
		upstream = remote.Name + "/" + project.DefaultBranch
	}
	if _, err := e.adapter.RevParse(ctx, dir, upstream); err != nil {
		return e.pullFailed(project, report.StepPull, fmt.Errorf("upstream %s: %w", upstream, err))
	}

	behind, err := e.adapter.IsAncestor(ctx, dir, "HEAD", upstream)
	if err != nil {
		return e.pullFailed(project, report.StepPull, err)
	}
	if behind {
		if err := e.adapter.MergeFastForward(ctx, dir, upstream); err != nil {
			return e.pullFailed(project, report.StepPull, err)
		}
		e.emit(project, report.LevelDebug, report.StepPull, "fast-forwarded to %s", upstream)
		return Outcome{Kind: OutcomePulled, FastForward: true, Fetched: fetched}
	}

	ahead, err := e.adapter.IsAncestor(ctx, dir, upstream, "HEAD")
	if err != nil {
		return e.pullFailed(project, report.StepPull, err)
	}
	if ahead {
		e.emit(project, report.LevelDebug, report.StepPull, "local branch is ahead of %s", upstream)
		return Outcome{Kind: OutcomePulled, FastForward: true, Fetched: fetched}
	}

	e.emit(project, report.LevelInfo, report.StepPull, "merging %s", upstream)
	if err := e.adapter.Merge(ctx, dir, upstream); err != nil {
		if errors.Is(err, gitx.ErrMergeConflict) {
			if abortErr := e.adapter.AbortMerge(ctx, dir); abortErr != nil {
				e.emit(project, report.LevelError, report.StepPull, "aborting merge failed: %v", abortErr)
			}
		}
		return e.pullFailed(project, report.StepPull, err)
	}
	return Outcome{Kind: OutcomePulled, FastForward: false, Fetched: fetched}
}

// track creates the default branch at the remote ref with tracking configured,
// then checks it out. Checkout alone would fail for a branch that does not
// exist locally yet.
func (e *Engine) track(ctx context.Context, project model.Project, remote model.RemoteSpec, fetched []model.RefChange) Outcome {
	dir := project.LocalPath
	branch := project.DefaultBranch
	if branch == "" {
		return e.pullFailed(project, report.StepTrack, fmt.Errorf("%w: project has no default branch", gitx.ErrMissingRemoteRef))
	}
	upstream := remote.Name + "/" + branch
	if _, err := e.adapter.RevParse(ctx, dir, upstream); err != nil {
		return e.pullFailed(project, report.StepTrack, fmt.Errorf("remote branch %s: %w", upstream, err))
	}
	if _, err := e.adapter.RevParse(ctx, dir, "refs/heads/"+branch); err != nil {
		if err := e.adapter.CreateTrackingBranch(ctx, dir, branch, upstream); err != nil {
			return e.pullFailed(project, report.StepTrack, err)
		}
		e.emit(project, report.LevelDebug, report.StepTrack, "created local branch %s tracking %s", branch, upstream)
	}
	if err := e.adapter.Checkout(ctx, dir, branch); err != nil {
		return e.pullFailed(project, report.StepTrack, err)
	}
	e.emit(project, report.LevelDebug, report.StepTrack, "checked out branch %s", branch)
	return Outcome{Kind: OutcomeCloned, Fetched: fetched}
}

func (e *Engine) updateSubmodules(ctx context.Context, project model.Project) []SubmoduleResult {
	subs, err := e.adapter.Submodules(ctx, project.LocalPath)
	if err != nil {
		e.emit(project, report.LevelWarn, report.StepSubmodule, "listing submodules failed: %v", err)
		return nil
	}
	var results []SubmoduleResult
	for _, sub := range subs {
		e.emit(project, report.LevelDebug, report.StepSubmodule, "updating submodule %s", sub.Name)
		result := SubmoduleResult{Name: sub.Name, Path: sub.Path}
		if err := e.adapter.UpdateSubmodule(ctx, project.LocalPath, sub.Path); err != nil {
			result.Error = err.Error()
			e.emit(project, report.LevelWarn, report.StepSubmodule, "updating submodule %s failed: %v", sub.Name, err)
		}
		results = append(results, result)
	}
	return results
}

func (e *Engine) push(ctx context.Context, project model.Project, remote model.RemoteSpec) Outcome {
	e.emit(project, report.LevelInfo, report.StepPush, "pushing %s", project.Name)
	refspec := fmt.Sprintf("refs/heads/%[1]s:refs/heads/%[1]s", project.DefaultBranch)
	updates, err := e.adapter.Push(ctx, project.LocalPath, remote.Name, refspec)
	if err != nil {
		e.emit(project, report.LevelWarn, report.StepPush, "push failed: %v", err)
		return Outcome{Kind: OutcomePushFailed, RefUpdates: updates, Reason: err.Error(), ErrorClass: gitx.ClassifyError(err)}
	}
	for _, u := range updates {
		e.emit(project, report.LevelInfo, report.StepPush, "pushed %s to %s (%s)", u.Local, u.Remote, u.Summary)
	}
	return Outcome{Kind: OutcomePushSucceeded, RefUpdates: updates}
}

func (e *Engine) fetchFailed(project model.Project, err error) Outcome {
	e.emit(project, report.LevelWarn, report.StepFetch, fetchFailedHint)
	return e.pullFailed(project, report.StepFetch, err)
}

func (e *Engine) pullFailed(project model.Project, step report.Step, err error) Outcome {
	class := gitx.ClassifyError(err)
	e.emit(project, report.LevelError, step, "pull failed (%s): %v", class, err)
	return Outcome{Kind: OutcomePullFailed, Reason: err.Error(), ErrorClass: class}
}

func (e *Engine) emit(project model.Project, level report.Level, step report.Step, format string, args ...any) {
	repo := project.Name
	if repo == "" {
		repo = project.Path
	}
	e.reporter.Report(report.Event{
		Time:    time.Now(),
		Level:   level,
		Repo:    repo,
		Step:    step,
		Message: fmt.Sprintf(format, args...),
	})
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
