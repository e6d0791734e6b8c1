// Package runner orchestrates test runs: it owns the result store, starts
// framework runs and relays their events onto the UI goroutine.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jask/testdock/internal/filter"
	"github.com/jask/testdock/internal/framework"
	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/testtree"
	"github.com/jask/testdock/internal/uiqueue"
)

var (
	// ErrNoTestTree means discovery failed and there is nothing to show.
	ErrNoTestTree = errors.New("no test tree available")
	// ErrRunActive means the framework is still executing a previous run.
	ErrRunActive = errors.New("test run already active")
)

// Runner is not safe for concurrent use; every method except IsRunning and
// Discover belongs to the UI goroutine.
type Runner struct {
	fw    framework.Framework
	queue *uiqueue.Queue
	store *results.Store
	tree  *testtree.Tree
	log   zerolog.Logger

	runID         string
	runFilter     filter.Filter
	onRunFinished func(runID string)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithRunFinished registers fn to be called on the UI goroutine after the
// last event of each run.
func WithRunFinished(fn func(runID string)) Option {
	return func(r *Runner) { r.onRunFinished = fn }
}

// New creates a runner driving fw. Callbacks are delivered through queue.
func New(fw framework.Framework, queue *uiqueue.Queue, opts ...Option) *Runner {
	r := &Runner{
		fw:    fw,
		queue: queue,
		store: results.NewStore(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover asks the framework for its tests. It touches no runner state and
// may be called from any goroutine; pass the tree to Install afterwards.
func (r *Runner) Discover(ctx context.Context) (*testtree.Tree, error) {
	tree, err := r.fw.LoadTests(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTestTree, err)
	}
	if tree == nil {
		return nil, ErrNoTestTree
	}
	return tree, nil
}

// Install adopts tree, discarding every stored result.
func (r *Runner) Install(tree *testtree.Tree) {
	r.tree = tree
	r.store.Reset()
	r.log.Debug().Int("nodes", tree.Len()).Int("tests", tree.Root().TestCaseCount).Msg("test tree installed")
}

// Init discovers tests the first time it is called. Once a tree is
// installed later calls do nothing. A failed discovery leaves no state
// behind, so the next call tries again.
func (r *Runner) Init(ctx context.Context) error {
	if r.tree != nil {
		return nil
	}
	tree, err := r.Discover(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("test discovery failed")
		return err
	}
	r.Install(tree)
	return nil
}

// Reload discovers tests again and replaces the tree.
func (r *Runner) Reload(ctx context.Context) error {
	if r.fw.IsRunning() {
		return ErrRunActive
	}
	tree, err := r.Discover(ctx)
	if err != nil {
		return err
	}
	r.Install(tree)
	return nil
}

// Tree returns the installed tree.
func (r *Runner) Tree() (*testtree.Tree, bool) {
	return r.tree, r.tree != nil
}

// Store exposes the result store to UI-goroutine readers.
func (r *Runner) Store() *results.Store {
	return r.store
}

// Result returns the stored entry for id; see results.Store.Lookup.
func (r *Runner) Result(id testtree.ID) (*results.Result, bool) {
	return r.store.Lookup(id)
}

// IsRunning reports whether the framework is executing a run.
func (r *Runner) IsRunning() bool {
	return r.fw.IsRunning()
}

// RunID identifies the most recently started run.
func (r *Runner) RunID() string {
	return r.runID
}

// RunFilter returns the filter of the most recently started run.
func (r *Runner) RunFilter() filter.Filter {
	return r.runFilter
}

// StartRun clears the stored results of every test f matches, calling
// onReset for each, then starts an asynchronous run. Store updates and
// listener calls happen on the UI goroutine when the queue is drained.
func (r *Runner) StartRun(ctx context.Context, f filter.Filter, onReset func(testtree.ID), l framework.Listener) error {
	if err := r.Init(ctx); err != nil {
		return err
	}
	if r.fw.IsRunning() {
		return ErrRunActive
	}

	for _, id := range r.store.IDs() {
		if !f.Pass(id) {
			continue
		}
		r.store.Remove(id)
		if onReset != nil {
			onReset(id)
		}
	}

	runID := uuid.NewString()
	relay := &relay{r: r, runID: runID, next: l}
	if err := r.fw.RunAsync(ctx, relay, f); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	r.runID = runID
	r.runFilter = f
	r.log.Info().Str("run", runID).Stringer("filter", f).Msg("run started")
	return nil
}

// relay moves framework callbacks onto the UI queue before they touch the
// store.
type relay struct {
	r     *Runner
	runID string
	next  framework.Listener
}

func (rl *relay) known(id testtree.ID) bool {
	if _, ok := rl.r.tree.Node(id); ok {
		return true
	}
	rl.r.log.Debug().Int("test", int(id)).Msg("event for unknown test dropped")
	return false
}

func (rl *relay) TestStarted(id testtree.ID) {
	rl.r.queue.Post(func() {
		if !rl.known(id) {
			return
		}
		rl.r.store.MarkInProgress(id)
		if rl.next != nil {
			rl.next.TestStarted(id)
		}
	})
}

func (rl *relay) TestFinished(res results.Result) {
	rl.r.queue.Post(func() {
		if !rl.known(res.Test) {
			return
		}
		rl.r.store.Finish(res)
		if rl.next != nil {
			rl.next.TestFinished(res)
		}
	})
}

func (rl *relay) RunFinished() {
	rl.r.queue.Post(func() {
		rl.r.log.Info().Str("run", rl.runID).Msg("run finished")
		if rl.next != nil {
			framework.NotifyRunFinished(rl.next)
		}
		if rl.r.onRunFinished != nil {
			rl.r.onRunFinished(rl.runID)
		}
	})
}
