// SPDX-License-Identifier: MIT
package vcs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/skaphos/gitlab-sync/internal/gitx"
	"github.com/skaphos/gitlab-sync/internal/model"
)

// Prober inspects local working copies in-process with go-git.
type Prober struct{}

// NewProber returns a go-git backed StateProber.
func NewProber() *Prober { return &Prober{} }

// Probe classifies path. A path that exists but cannot be opened as a
// repository is reported as an error wrapping gitx.ErrCorruptRepo.
func (p *Prober) Probe(path, remoteName string) (model.RepoState, error) {
	state := model.RepoState{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			state.Absent = true
			return state, nil
		}
		return state, err
	}
	if !info.IsDir() {
		state.Absent = true
		return state, nil
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return state, fmt.Errorf("%w: open %s: %w", gitx.ErrCorruptRepo, path, err)
	}

	remote, err := repo.Remote(remoteName)
	switch {
	case errors.Is(err, git.ErrRemoteNotFound):
		state.MissingRemote = true
	case err != nil:
		return state, fmt.Errorf("read remote %q: %w", remoteName, err)
	default:
		if urls := remote.Config().URLs; len(urls) > 0 {
			state.RemoteURL = urls[0]
		}
	}

	empty, err := hasNoRefs(repo)
	if err != nil {
		return state, err
	}
	state.Empty = empty

	wt, err := repo.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return state, fmt.Errorf("worktree status: %w", err)
	}
	state.Dirty = !status.IsClean()
	return state, nil
}

// hasNoRefs ignores HEAD, which exists as a symbolic ref even before the
// first commit.
func hasNoRefs(repo *git.Repository) (bool, error) {
	iter, err := repo.References()
	if err != nil {
		return false, fmt.Errorf("list refs: %w", err)
	}
	defer iter.Close()

	found := false
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Name() == plumbing.HEAD {
			return nil
		}
		found = true
		return storer.ErrStop
	})
	if err != nil {
		return false, fmt.Errorf("list refs: %w", err)
	}
	return !found, nil
}
