// Package discovery walks the sync root to find local git repositories that
// the GitLab group no longer lists.
package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"

	"github.com/skaphos/gitlab-sync/internal/model"
	"github.com/skaphos/gitlab-sync/internal/vcs"
)

// Stray is a working copy under the root that matches no listed project.
type Stray struct {
	Path      string // absolute path to the repo root
	RemoteURL string // URL of the canonical remote, if configured
}

// Options configures the stray scan.
type Options struct {
	Root string
	// Projects are the listed projects; their local paths are not strays.
	Projects []model.Project
	// Skip holds doublestar patterns, relative to Root, that are not walked.
	Skip       []string
	RemoteName string
	Prober     vcs.StateProber
}

// Strays walks Root and returns repositories that belong to no project, in
// walk order. It never descends into a repository or a .git directory. A
// missing root yields no strays.
func Strays(ctx context.Context, opts Options) ([]Stray, error) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if opts.Prober == nil {
		opts.Prober = vcs.NewProber()
	}
	if opts.RemoteName == "" {
		opts.RemoteName = model.DefaultRemoteName
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	known := lo.SliceToMap(opts.Projects, func(p model.Project) (string, struct{}) {
		abs, err := filepath.Abs(p.LocalPath)
		if err != nil {
			abs = p.LocalPath
		}
		return filepath.Clean(abs), struct{}{}
	})

	var strays []Stray
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return fs.SkipDir
		}
		if path != root && MatchesSkip(root, path, opts.Skip) {
			return fs.SkipDir
		}
		if !isRepoRoot(path) {
			return nil
		}
		if _, ok := known[path]; ok {
			return fs.SkipDir
		}
		stray := Stray{Path: path}
		if state, err := opts.Prober.Probe(path, opts.RemoteName); err == nil {
			stray.RemoteURL = state.RemoteURL
		}
		strays = append(strays, stray)
		return fs.SkipDir
	})
	if err != nil {
		return nil, err
	}
	return strays, nil
}

// MatchesSkip reports whether path, taken relative to root, matches any of
// the doublestar patterns.
func MatchesSkip(root, path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	_, ok := lo.Find(patterns, func(pattern string) bool {
		match, err := doublestar.Match(filepath.ToSlash(pattern), rel)
		return err == nil && match
	})
	return ok
}

// isRepoRoot detects both a .git directory and a "gitdir:" file.
func isRepoRoot(dir string) bool {
	gitPath := filepath.Join(dir, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return true
	}
	data, err := os.ReadFile(gitPath)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(string(data)), "gitdir:")
}
