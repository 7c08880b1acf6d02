// Package gitx provides helpers for executing git commands and parsing
// their output. It shells out to the installed git binary.
package gitx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/skaphos/gitlab-sync/internal/model"
)

// Runner executes git commands in a given repo directory.
// This interface allows mocking in tests.
type Runner interface {
	// Run executes a git command in the given directory and returns
	// combined stdout/stderr output.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// GitRunner is the default Runner implementation that shells out to git.
type GitRunner struct {
	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
	// Env is appended to the process environment when set.
	Env []string
}

// CommandError carries the output of a failed git invocation.
type CommandError struct {
	Args     []string
	Output   string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	cmd := "git " + strings.Join(e.Args, " ")
	if e.Output != "" {
		return fmt.Sprintf("%s: %s: %v", cmd, e.Output, e.Err)
	}
	return fmt.Sprintf("%s: %v", cmd, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Run executes a git command.
func (g *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.GitBin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	if len(g.Env) > 0 {
		cmd.Env = append(cmd.Environ(), g.Env...)
	}
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return output, &CommandError{Args: args, Output: output, ExitCode: code, Err: err}
	}
	return output, nil
}

// interrupted reports whether err came from a cancelled or expired context.
func interrupted(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func exitCode(err error) int {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.ExitCode
	}
	return -1
}

// Init creates an empty repository at dir. Parent directories are created by git.
func Init(ctx context.Context, r Runner, dir string) error {
	if _, err := r.Run(ctx, "", "init", "--quiet", dir); err != nil {
		return fmt.Errorf("git init %s: %w", dir, err)
	}
	return nil
}

// AddRemote configures a new remote.
func AddRemote(ctx context.Context, r Runner, dir, name, url string) error {
	_, err := r.Run(ctx, dir, "remote", "add", name, url)
	return err
}

// RemoteURL returns the configured URL of a remote.
func RemoteURL(ctx context.Context, r Runner, dir, name string) (string, error) {
	out, err := r.Run(ctx, dir, "remote", "get-url", name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrMissingRemoteRef, name, err)
	}
	return strings.TrimSpace(out), nil
}

// RemoteRefs returns the remote-tracking refs of a remote keyed by full ref name.
func RemoteRefs(ctx context.Context, r Runner, dir, remote string) (map[string]string, error) {
	out, err := r.Run(ctx, dir, "for-each-ref", "--format=%(refname) %(objectname)", "refs/remotes/"+remote)
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref: %w", err)
	}
	return ParseRefList(out), nil
}

// HasRefs reports whether the repository has at least one ref.
func HasRefs(ctx context.Context, r Runner, dir string) (bool, error) {
	out, err := r.Run(ctx, dir, "for-each-ref", "--count=1", "--format=%(refname)")
	if err != nil {
		return false, fmt.Errorf("git for-each-ref: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// Fetch fetches one remote with submodule recursion disabled and returns the
// remote-tracking refs it moved.
func Fetch(ctx context.Context, r Runner, dir, remote string) ([]model.RefChange, error) {
	before, err := RemoteRefs(ctx, r, dir, remote)
	if err != nil {
		return nil, err
	}
	if _, err := r.Run(ctx, dir, "-c", "fetch.recurseSubmodules=false", "fetch", "--prune", "--no-recurse-submodules", remote); err != nil {
		return nil, err
	}
	after, err := RemoteRefs(ctx, r, dir, remote)
	if err != nil {
		return nil, err
	}
	return DiffRefs(before, after), nil
}

// Head returns the current branch, detached and unborn state.
func Head(ctx context.Context, r Runner, dir string) (model.Head, error) {
	out, err := r.Run(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		// symbolic-ref --quiet exits 1 only when HEAD is not a symbolic ref.
		if exitCode(err) != 1 || interrupted(err) {
			return model.Head{}, fmt.Errorf("read HEAD: %w", err)
		}
		return model.Head{Detached: true}, nil
	}
	head := model.Head{Branch: strings.TrimSpace(out)}
	if _, err := r.Run(ctx, dir, "rev-parse", "--verify", "--quiet", "HEAD"); err != nil {
		if interrupted(err) {
			return model.Head{}, fmt.Errorf("resolve HEAD: %w", err)
		}
		head.Unborn = true
	}
	return head, nil
}

// Upstream returns the short upstream name of the current branch, or "" when
// none is configured.
func Upstream(ctx context.Context, r Runner, dir string) string {
	out, err := r.Run(ctx, dir, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// RevParse resolves rev to a commit id.
func RevParse(ctx context.Context, r Runner, dir, rev string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		if interrupted(err) {
			return "", fmt.Errorf("resolve %s: %w", rev, err)
		}
		return "", fmt.Errorf("%w: %s", ErrMissingRemoteRef, rev)
	}
	return strings.TrimSpace(out), nil
}

// IsAncestor reports whether ancestor is reachable from descendant.
func IsAncestor(ctx context.Context, r Runner, dir, ancestor, descendant string) (bool, error) {
	_, err := r.Run(ctx, dir, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	if exitCode(err) == 1 {
		return false, nil
	}
	return false, err
}

// MergeFastForward advances the current branch to ref without a merge commit.
func MergeFastForward(ctx context.Context, r Runner, dir, ref string) error {
	_, err := r.Run(ctx, dir, "merge", "--ff-only", "--quiet", ref)
	return err
}

// Merge merges ref into the current branch. Conflicts are reported as ErrMergeConflict.
func Merge(ctx context.Context, r Runner, dir, ref string) error {
	out, err := r.Run(ctx, dir, "merge", "--no-edit", ref)
	if err != nil {
		if strings.Contains(out, "CONFLICT") || strings.Contains(out, "Automatic merge failed") {
			return fmt.Errorf("%w: %w", ErrMergeConflict, err)
		}
		return err
	}
	return nil
}

// AbortMerge restores the pre-merge state after a conflicted merge.
func AbortMerge(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "merge", "--abort")
	return err
}

// CreateTrackingBranch creates branch at upstream and configures it to track upstream.
func CreateTrackingBranch(ctx context.Context, r Runner, dir, branch, upstream string) error {
	_, err := r.Run(ctx, dir, "branch", "--track", branch, upstream)
	return err
}

// Checkout switches the working tree to branch.
func Checkout(ctx context.Context, r Runner, dir, branch string) error {
	_, err := r.Run(ctx, dir, "checkout", "--quiet", branch)
	return err
}

// Submodules lists the submodules registered in .gitmodules.
func Submodules(ctx context.Context, r Runner, dir string) ([]Submodule, error) {
	out, err := r.Run(ctx, dir, "config", "--file", ".gitmodules", "--get-regexp", `^submodule\..*\.path$`)
	if err != nil {
		// Exit code 1 means no matching keys, which includes a missing .gitmodules.
		if exitCode(err) == 1 || strings.TrimSpace(out) == "" {
			return nil, nil
		}
		return nil, err
	}
	return ParseSubmodulePaths(out), nil
}

// UpdateSubmodule checks out the commit recorded by the superproject for one submodule.
func UpdateSubmodule(ctx context.Context, r Runner, dir, path string) error {
	_, err := r.Run(ctx, dir, "submodule", "update", "--init", "--", path)
	return err
}

// Push pushes refspec to remote and returns the refs the remote reported as
// changed or rejected. Up-to-date refs are omitted.
func Push(ctx context.Context, r Runner, dir, remote, refspec string) ([]model.RefUpdate, error) {
	out, err := r.Run(ctx, dir, "push", "--porcelain", remote, refspec)
	updates := ParsePushPorcelain(out)
	if err != nil {
		return updates, err
	}
	return updates, nil
}
