package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/skaphos/gitlab-sync/internal/model"
)

// RunOptions configures a batch run.
type RunOptions struct {
	// Mode selects sync, pull or push. Defaults to sync.
	Mode model.Mode
	// Concurrency bounds parallel reconciliations. Values <= 1 run sequentially.
	Concurrency int
	// Timeout bounds each reconciliation. Zero disables it.
	Timeout time.Duration
	// OnStart is invoked before a project is reconciled.
	OnStart StartCallback
	// OnComplete is invoked for each result as it is produced.
	OnComplete ResultCallback
}

// ResultCallback is invoked for each result as it is produced.
// Callbacks run on the coordinator goroutine, so callers can safely write
// terminal output without additional synchronization.
type ResultCallback func(Result)

// StartCallback is invoked when a project begins reconciliation.
type StartCallback func(model.Project)

// ParseMode validates a mode name.
func ParseMode(raw string) (model.Mode, error) {
	switch mode := model.Mode(raw); mode {
	case "":
		return model.ModeSync, nil
	case model.ModeSync, model.ModePull, model.ModePush:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode %q (expected sync, pull, or push)", raw)
	}
}

type indexedResult struct {
	index  int
	result Result
	err    error
}

// Run reconciles projects in listing order. Results are returned in the same
// order regardless of completion order. A failed project never stops the
// batch; only ErrRemoteInvariant does, in which case the results completed so
// far are returned with the error.
func (e *Engine) Run(ctx context.Context, projects []model.Project, opts RunOptions) ([]Result, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode

	if opts.Concurrency <= 1 {
		return e.runSequential(ctx, projects, opts)
	}
	return e.runConcurrent(ctx, projects, opts)
}

func (e *Engine) runSequential(ctx context.Context, projects []model.Project, opts RunOptions) ([]Result, error) {
	results := make([]Result, 0, len(projects))
	for _, project := range projects {
		if opts.OnStart != nil {
			opts.OnStart(project)
		}
		res, err := e.reconcileOne(ctx, project, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if opts.OnComplete != nil {
			opts.OnComplete(res)
		}
	}
	return results, nil
}

func (e *Engine) runConcurrent(ctx context.Context, projects []model.Project, opts RunOptions) ([]Result, error) {
	// Buffered to the batch size so finished workers never block on send.
	out := make(chan indexedResult, max(1, len(projects)))
	results := make([]Result, len(projects))
	done := make([]bool, len(projects))

	next, inflight := 0, 0
	var runErr error
	for (next < len(projects) && runErr == nil) || inflight > 0 {
		if next < len(projects) && runErr == nil && inflight < opts.Concurrency {
			project := projects[next]
			if opts.OnStart != nil {
				opts.OnStart(project)
			}
			go func(index int, project model.Project) {
				res, err := e.reconcileOne(ctx, project, opts)
				out <- indexedResult{index: index, result: res, err: err}
			}(next, project)
			next++
			inflight++
			continue
		}

		item := <-out
		inflight--
		if item.err != nil {
			runErr = errors.Join(runErr, item.err)
			continue
		}
		results[item.index] = item.result
		done[item.index] = true
		if opts.OnComplete != nil {
			opts.OnComplete(item.result)
		}
	}

	ordered := make([]Result, 0, len(projects))
	for i := range results {
		if done[i] {
			ordered = append(ordered, results[i])
		}
	}
	return ordered, runErr
}

func (e *Engine) reconcileOne(ctx context.Context, project model.Project, opts RunOptions) (Result, error) {
	unlock := e.locks.lock(project.LocalPath)
	defer unlock()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return e.Reconcile(ctx, project, opts.Mode)
}

// pathLocks serializes reconciliations that target the same local path.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *pathLocks) lock(path string) func() {
	key := filepath.Clean(path)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}

	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
