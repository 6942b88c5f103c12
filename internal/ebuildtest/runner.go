package ebuildtest

import (
	"context"
	"sync"

	"github.com/yldrefruz/ebuild/internal/process"
)

// Invoked records one call made through a Runner, for assertions in
// orchestrator and driver tests.
type Invoked struct {
	Invocation process.Invocation
}

// Runner is a fake process.Runner: it records every invocation and returns
// a scripted Result, rather than spawning a real child. Configure Results
// (keyed by the invoked path) ahead of time, or leave it nil to always
// succeed with exit code 0.
type Runner struct {
	mu   sync.Mutex
	Invs []Invoked

	// Results maps an executable path (e.g. "gcc", "ar") to the Result its
	// invocations should return. A missing entry succeeds with ExitCode 0.
	Results map[string]process.Result

	// Errors maps an executable path to an error its invocations should
	// return instead of a Result, simulating a process-runner-level
	// failure (e.g. the executable not found).
	Errors map[string]error

	// Cancellable, when non-empty, names paths whose Run blocks until ctx
	// is cancelled instead of returning immediately, for exercising the
	// orchestrator's cancellation-forwarding behavior.
	Cancellable map[string]bool
}

// NewRunner returns an empty fake Runner.
func NewRunner() *Runner {
	return &Runner{
		Results:     make(map[string]process.Result),
		Errors:      make(map[string]error),
		Cancellable: make(map[string]bool),
	}
}

// Run implements process.Runner.
func (r *Runner) Run(ctx context.Context, inv process.Invocation) (process.Result, error) {
	r.mu.Lock()
	r.Invs = append(r.Invs, Invoked{Invocation: inv})
	r.mu.Unlock()

	if r.Cancellable[inv.Path] {
		<-ctx.Done()
		return process.Result{ExitCode: -1}, ctx.Err()
	}
	if err, ok := r.Errors[inv.Path]; ok {
		return process.Result{}, err
	}
	if res, ok := r.Results[inv.Path]; ok {
		return res, nil
	}
	return process.Result{ExitCode: 0}, nil
}

// Invocations returns a snapshot of every recorded call, in call order.
func (r *Runner) Invocations() []Invoked {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invoked(nil), r.Invs...)
}

// ConcurrentCount returns how many Run calls have been recorded so far,
// whether or not they have returned. It does not track how many calls are
// in flight at once, so it does not measure peak concurrency; this fake
// only tracks invocation order.
func (r *Runner) ConcurrentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Invs)
}
