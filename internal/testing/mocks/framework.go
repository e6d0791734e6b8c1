// Package mocks provides shared test doubles for testdock packages.
package mocks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jask/testdock/internal/filter"
	"github.com/jask/testdock/internal/framework"
	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/testtree"
	"github.com/jask/testdock/internal/uiqueue"
)

// ErrBusy is returned by RunAsync while a previous run is still going.
var ErrBusy = errors.New("mock framework: run in progress")

// Framework implements framework.Framework with a fixed tree and scripted
// outcomes. Leaves without a scripted outcome pass.
// Use NewFramework() to create instances with a fluent builder API.
type Framework struct {
	tree     *testtree.Tree
	loadErr  error
	outcomes map[testtree.ID]results.Result
	hold     chan struct{}

	running atomic.Bool
	loads   int32
	mu      sync.Mutex
	filters []filter.Filter
}

// NewFramework creates a mock framework serving tree.
func NewFramework(tree *testtree.Tree) *Framework {
	return &Framework{tree: tree, outcomes: make(map[testtree.ID]results.Result)}
}

// WithLoadError makes LoadTests fail with err.
func (m *Framework) WithLoadError(err error) *Framework {
	m.loadErr = err
	return m
}

// WithOutcome scripts the result reported for id.
func (m *Framework) WithOutcome(id testtree.ID, status results.Status, message string) *Framework {
	m.outcomes[id] = results.Result{Test: id, Status: status, Message: message}
	return m
}

// WithResult scripts a full result.
func (m *Framework) WithResult(r results.Result) *Framework {
	m.outcomes[r.Test] = r
	return m
}

// Hold makes runs wait until Release is called before emitting events.
func (m *Framework) Hold() *Framework {
	m.hold = make(chan struct{})
	return m
}

// Release lets a held run proceed.
func (m *Framework) Release() {
	if m.hold != nil {
		close(m.hold)
	}
}

// framework.Framework interface implementation

func (m *Framework) LoadTests(context.Context) (*testtree.Tree, error) {
	atomic.AddInt32(&m.loads, 1)
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.tree, nil
}

func (m *Framework) IsRunning() bool { return m.running.Load() }

func (m *Framework) RunAsync(ctx context.Context, l framework.Listener, f filter.Filter) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	m.mu.Lock()
	m.filters = append(m.filters, f)
	m.mu.Unlock()

	go func() {
		if m.hold != nil {
			select {
			case <-m.hold:
			case <-ctx.Done():
			}
		}
		m.emit(l, f, m.tree.Root().ID)
		m.running.Store(false)
		framework.NotifyRunFinished(l)
	}()
	return nil
}

// emit reports id and its matched descendants, suites wrapping their
// children. It returns whether anything under id failed.
func (m *Framework) emit(l framework.Listener, f filter.Filter, id testtree.ID) bool {
	n, _ := m.tree.Node(id)
	if !n.Suite {
		if !f.Pass(id) {
			return false
		}
		l.TestStarted(id)
		r, ok := m.outcomes[id]
		if !ok {
			r = results.Result{Test: id, Status: results.StatusPassed}
		}
		r.Test = id
		r.Duration = time.Millisecond
		l.TestFinished(r)
		return r.Status == results.StatusFailed
	}
	if !f.Pass(id) && !anyDescendantPasses(m.tree, f, id) {
		return false
	}
	l.TestStarted(id)
	failed := false
	for _, child := range m.tree.Children(id) {
		if m.emit(l, f, child.ID) {
			failed = true
		}
	}
	status := results.StatusPassed
	if failed {
		status = results.StatusFailed
	}
	l.TestFinished(results.Result{Test: id, Status: status})
	return failed
}

func anyDescendantPasses(tree *testtree.Tree, f filter.Filter, id testtree.ID) bool {
	found := false
	tree.Walk(id, func(n *testtree.Node) bool {
		if found {
			return false
		}
		if f.Pass(n.ID) {
			found = true
		}
		return !found
	})
	return found
}

// Test inspection methods

// LoadCount returns how many times LoadTests was called.
func (m *Framework) LoadCount() int32 {
	return atomic.LoadInt32(&m.loads)
}

// Filters returns the filters passed to RunAsync, in order.
func (m *Framework) Filters() []filter.Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]filter.Filter, len(m.filters))
	copy(out, m.filters)
	return out
}

// DrainUntil drains q on the calling goroutine until done reports true or
// the timeout elapses. It returns whether done became true.
func DrainUntil(q *uiqueue.Queue, timeout time.Duration, done func() bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		q.Drain()
		if done() {
			return true
		}
		if err := q.Wait(ctx); err != nil {
			q.Drain()
			return done()
		}
	}
}
