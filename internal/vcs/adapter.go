package vcs

import (
	"context"

	"github.com/skaphos/gitlab-sync/internal/gitx"
	"github.com/skaphos/gitlab-sync/internal/model"
)

// Adapter defines the repository operations the sync engine relies on.
// Every operation that touches the network or mutates a working copy goes
// through it.
type Adapter interface {
	Init(ctx context.Context, dir string) error
	AddRemote(ctx context.Context, dir, name, url string) error
	RemoteURL(ctx context.Context, dir, name string) (string, error)
	Fetch(ctx context.Context, dir, remote string) ([]model.RefChange, error)
	HasRefs(ctx context.Context, dir string) (bool, error)
	Head(ctx context.Context, dir string) (model.Head, error)
	Upstream(ctx context.Context, dir string) string
	RevParse(ctx context.Context, dir, rev string) (string, error)
	IsAncestor(ctx context.Context, dir, ancestor, descendant string) (bool, error)
	MergeFastForward(ctx context.Context, dir, ref string) error
	Merge(ctx context.Context, dir, ref string) error
	AbortMerge(ctx context.Context, dir string) error
	CreateTrackingBranch(ctx context.Context, dir, branch, upstream string) error
	Checkout(ctx context.Context, dir, branch string) error
	Submodules(ctx context.Context, dir string) ([]gitx.Submodule, error)
	UpdateSubmodule(ctx context.Context, dir, path string) error
	Push(ctx context.Context, dir, remote, refspec string) ([]model.RefUpdate, error)
}

// StateProber classifies a local path before reconciliation.
type StateProber interface {
	Probe(path, remoteName string) (model.RepoState, error)
}

// GitAdapter implements Adapter using the git CLI via gitx.
type GitAdapter struct {
	Runner gitx.Runner
}

func NewGitAdapter(runner gitx.Runner) *GitAdapter {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	return &GitAdapter{Runner: runner}
}

func (g *GitAdapter) Init(ctx context.Context, dir string) error {
	return gitx.Init(ctx, g.Runner, dir)
}

func (g *GitAdapter) AddRemote(ctx context.Context, dir, name, url string) error {
	return gitx.AddRemote(ctx, g.Runner, dir, name, url)
}

func (g *GitAdapter) RemoteURL(ctx context.Context, dir, name string) (string, error) {
	return gitx.RemoteURL(ctx, g.Runner, dir, name)
}

func (g *GitAdapter) Fetch(ctx context.Context, dir, remote string) ([]model.RefChange, error) {
	return gitx.Fetch(ctx, g.Runner, dir, remote)
}

func (g *GitAdapter) HasRefs(ctx context.Context, dir string) (bool, error) {
	return gitx.HasRefs(ctx, g.Runner, dir)
}

func (g *GitAdapter) Head(ctx context.Context, dir string) (model.Head, error) {
	return gitx.Head(ctx, g.Runner, dir)
}

func (g *GitAdapter) Upstream(ctx context.Context, dir string) string {
	return gitx.Upstream(ctx, g.Runner, dir)
}

func (g *GitAdapter) RevParse(ctx context.Context, dir, rev string) (string, error) {
	return gitx.RevParse(ctx, g.Runner, dir, rev)
}

func (g *GitAdapter) IsAncestor(ctx context.Context, dir, ancestor, descendant string) (bool, error) {
	return gitx.IsAncestor(ctx, g.Runner, dir, ancestor, descendant)
}

func (g *GitAdapter) MergeFastForward(ctx context.Context, dir, ref string) error {
	return gitx.MergeFastForward(ctx, g.Runner, dir, ref)
}

func (g *GitAdapter) Merge(ctx context.Context, dir, ref string) error {
	return gitx.Merge(ctx, g.Runner, dir, ref)
}

func (g *GitAdapter) AbortMerge(ctx context.Context, dir string) error {
	return gitx.AbortMerge(ctx, g.Runner, dir)
}

func (g *GitAdapter) CreateTrackingBranch(ctx context.Context, dir, branch, upstream string) error {
	return gitx.CreateTrackingBranch(ctx, g.Runner, dir, branch, upstream)
}

func (g *GitAdapter) Checkout(ctx context.Context, dir, branch string) error {
	return gitx.Checkout(ctx, g.Runner, dir, branch)
}

func (g *GitAdapter) Submodules(ctx context.Context, dir string) ([]gitx.Submodule, error) {
	return gitx.Submodules(ctx, g.Runner, dir)
}

func (g *GitAdapter) UpdateSubmodule(ctx context.Context, dir, path string) error {
	return gitx.UpdateSubmodule(ctx, g.Runner, dir, path)
}

func (g *GitAdapter) Push(ctx context.Context, dir, remote, refspec string) ([]model.RefUpdate, error) {
	return gitx.Push(ctx, g.Runner, dir, remote, refspec)
}
