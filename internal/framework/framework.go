// Package framework defines the boundary between the dock and the test
// framework that discovers and executes tests.
package framework

import (
	"context"

	"github.com/jask/testdock/internal/filter"
	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/testtree"
)

// Listener receives per-test lifecycle events. Frameworks call it from their
// own goroutines; every matched test gets a start before its finish.
type Listener interface {
	TestStarted(id testtree.ID)
	TestFinished(r results.Result)
}

// RunListener is implemented by listeners that also want to know when the
// whole run is over. Frameworks call RunFinished once, after the last
// TestFinished.
type RunListener interface {
	Listener
	RunFinished()
}

// Framework discovers and runs tests.
type Framework interface {
	// LoadTests discovers the available tests.
	LoadTests(ctx context.Context) (*testtree.Tree, error)
	// IsRunning reports whether a run started by RunAsync is still active.
	IsRunning() bool
	// RunAsync starts executing every test f matches and returns without
	// waiting for them.
	RunAsync(ctx context.Context, l Listener, f filter.Filter) error
}

// ListenerFuncs adapts plain functions to a RunListener. Nil fields are
// skipped.
type ListenerFuncs struct {
	Started  func(id testtree.ID)
	Finished func(r results.Result)
	Done     func()
}

func (l ListenerFuncs) TestStarted(id testtree.ID) {
	if l.Started != nil {
		l.Started(id)
	}
}

func (l ListenerFuncs) TestFinished(r results.Result) {
	if l.Finished != nil {
		l.Finished(r)
	}
}

func (l ListenerFuncs) RunFinished() {
	if l.Done != nil {
		l.Done()
	}
}

// NotifyRunFinished calls RunFinished when l supports it.
func NotifyRunFinished(l Listener) {
	if rl, ok := l.(RunListener); ok {
		rl.RunFinished()
	}
}
