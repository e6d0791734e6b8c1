package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/testdock/internal/filter"
	"github.com/jask/testdock/internal/framework"
	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/testing/mocks"
	"github.com/jask/testdock/internal/testtree"
	"github.com/jask/testdock/internal/uiqueue"
)

type ids struct {
	suiteA, test1, test2, suiteB, test3 testtree.ID
}

func sampleTree() (*testtree.Tree, ids) {
	b := testtree.NewBuilder("root")
	var i ids
	i.suiteA = b.AddSuite(b.Root(), "SuiteA")
	i.test1 = b.AddTest(i.suiteA, "Test1")
	i.test2 = b.AddTest(i.suiteA, "Test2")
	i.suiteB = b.AddSuite(b.Root(), "SuiteB")
	i.test3 = b.AddTest(i.suiteB, "Test3")
	return b.Build(), i
}

func runToCompletion(t *testing.T, r *Runner, q *uiqueue.Queue, f filter.Filter, l framework.Listener) []testtree.ID {
	t.Helper()
	var reset []testtree.ID
	done := false
	wrapped := framework.ListenerFuncs{
		Started:  func(id testtree.ID) { l.TestStarted(id) },
		Finished: func(res results.Result) { l.TestFinished(res) },
		Done:     func() { done = true },
	}
	if l == nil {
		wrapped = framework.ListenerFuncs{Done: func() { done = true }}
	}
	require.NoError(t, r.StartRun(context.Background(), f, func(id testtree.ID) { reset = append(reset, id) }, wrapped))
	require.True(t, mocks.DrainUntil(q, 2*time.Second, func() bool { return done }), "run did not finish")
	return reset
}

func TestInitIsLazyAndIdempotent(t *testing.T) {
	tree, _ := sampleTree()
	fw := mocks.NewFramework(tree)
	r := New(fw, uiqueue.New())

	_, ok := r.Tree()
	require.False(t, ok)
	require.Zero(t, fw.LoadCount())

	require.NoError(t, r.Init(context.Background()))
	require.NoError(t, r.Init(context.Background()))
	require.EqualValues(t, 1, fw.LoadCount())

	got, ok := r.Tree()
	require.True(t, ok)
	require.Same(t, tree, got)
}

func TestInitFailureStartsNothing(t *testing.T) {
	tree, _ := sampleTree()
	cause := errors.New("assembly missing")
	fw := mocks.NewFramework(tree).WithLoadError(cause)
	q := uiqueue.New()
	r := New(fw, q)

	err := r.StartRun(context.Background(), filter.Everything, nil, nil)
	require.ErrorIs(t, err, ErrNoTestTree)
	require.ErrorIs(t, err, cause)
	require.Empty(t, fw.Filters())
	require.Zero(t, q.Len())
	require.Zero(t, r.Store().Len())

	_, ok := r.Tree()
	require.False(t, ok)

	// A later call retries discovery.
	require.Error(t, r.Init(context.Background()))
	require.EqualValues(t, 2, fw.LoadCount())
}

func TestRunUpdatesStoreOnlyWhenDrained(t *testing.T) {
	tree, i := sampleTree()
	fw := mocks.NewFramework(tree).Hold()
	q := uiqueue.New()
	finished := ""
	r := New(fw, q, WithRunFinished(func(runID string) { finished = runID }))

	require.NoError(t, r.StartRun(context.Background(), filter.Everything, nil, nil))
	require.True(t, r.IsRunning())
	require.NotEmpty(t, r.RunID())
	require.Equal(t, filter.Everything, r.RunFilter())

	fw.Release()
	require.Eventually(t, func() bool { return !r.IsRunning() }, 2*time.Second, 5*time.Millisecond)

	// Nothing touched the store before the owner drained the queue.
	require.Zero(t, r.Store().Len())
	require.NotZero(t, q.Len())

	require.True(t, mocks.DrainUntil(q, 2*time.Second, func() bool { return finished != "" }))
	res, ok := r.Result(i.test1)
	require.True(t, ok)
	require.Equal(t, results.StatusPassed, res.Status)
	require.Equal(t, r.RunID(), finished)
}

func TestListenerSeesStartThenFinish(t *testing.T) {
	tree, i := sampleTree()
	fw := mocks.NewFramework(tree).WithOutcome(i.test2, results.StatusFailed, "boom")
	q := uiqueue.New()
	r := New(fw, q)

	var events []string
	var states []results.State
	l := framework.ListenerFuncs{
		Started: func(id testtree.ID) {
			n, _ := tree.Node(id)
			events = append(events, "start "+n.Name)
			if id == i.test2 {
				states = append(states, results.LeafState(r.Store(), id))
			}
		},
		Finished: func(res results.Result) {
			n, _ := tree.Node(res.Test)
			events = append(events, "finish "+n.Name)
		},
	}
	runToCompletion(t, r, q, filter.MatchDescendantsOf(tree, i.suiteA), l)

	require.Equal(t, []string{
		"start root", "start SuiteA",
		"start Test1", "finish Test1",
		"start Test2", "finish Test2",
		"finish SuiteA", "finish root",
	}, events)
	require.Equal(t, []results.State{results.StateInProgress}, states)
	require.Equal(t, results.StateFailed, results.StateOf(tree, r.Store(), i.suiteA))
	require.Equal(t, results.StateNotRun, results.StateOf(tree, r.Store(), i.test3))
}

func TestStartRunClearsOnlyMatchedResults(t *testing.T) {
	tree, i := sampleTree()
	fw := mocks.NewFramework(tree).Hold()
	q := uiqueue.New()
	r := New(fw, q)
	require.NoError(t, r.Init(context.Background()))

	r.Store().Finish(results.Result{Test: i.test1, Status: results.StatusFailed})
	r.Store().Finish(results.Result{Test: i.test2, Status: results.StatusPassed})
	r.Store().Finish(results.Result{Test: i.test3, Status: results.StatusFailed})

	var reset []testtree.ID
	err := r.StartRun(context.Background(), filter.MatchDescendantsOf(tree, i.suiteA),
		func(id testtree.ID) { reset = append(reset, id) }, nil)
	require.NoError(t, err)

	require.Equal(t, []testtree.ID{i.test1, i.test2}, reset)
	_, ok := r.Result(i.test1)
	require.False(t, ok)
	_, ok = r.Result(i.test2)
	require.False(t, ok)
	res, ok := r.Result(i.test3)
	require.True(t, ok)
	require.Equal(t, results.StatusFailed, res.Status)

	fw.Release()
	require.True(t, mocks.DrainUntil(q, 2*time.Second, func() bool { return !r.IsRunning() && q.Len() == 0 }))
}

func TestStartRunWhileActive(t *testing.T) {
	tree, _ := sampleTree()
	fw := mocks.NewFramework(tree).Hold()
	q := uiqueue.New()
	r := New(fw, q)

	require.NoError(t, r.StartRun(context.Background(), filter.Everything, nil, nil))
	err := r.StartRun(context.Background(), filter.Everything, nil, nil)
	require.ErrorIs(t, err, ErrRunActive)
	require.ErrorIs(t, r.Reload(context.Background()), ErrRunActive)

	fw.Release()
	require.True(t, mocks.DrainUntil(q, 2*time.Second, func() bool { return !r.IsRunning() && q.Len() == 0 }))
}

func TestReloadResetsStore(t *testing.T) {
	tree, i := sampleTree()
	fw := mocks.NewFramework(tree)
	q := uiqueue.New()
	r := New(fw, q)

	runToCompletion(t, r, q, filter.Everything, nil)
	require.NotZero(t, r.Store().Len())

	require.NoError(t, r.Reload(context.Background()))
	require.Zero(t, r.Store().Len())
	require.EqualValues(t, 2, fw.LoadCount())
	require.Equal(t, results.StateNotRun, results.StateOf(tree, r.Store(), i.suiteA))
}

func TestRerunRevertsThenRefills(t *testing.T) {
	tree, i := sampleTree()
	fw := mocks.NewFramework(tree).WithOutcome(i.test3, results.StatusSkipped, "")
	q := uiqueue.New()
	r := New(fw, q)

	runToCompletion(t, r, q, filter.Everything, nil)
	reset := runToCompletion(t, r, q, filter.MatchDescendantsOf(tree, i.suiteB), nil)

	require.Equal(t, []testtree.ID{i.suiteB, i.test3}, reset)
	require.Equal(t, results.StateSkipped, results.StateOf(tree, r.Store(), i.test3))
	require.Equal(t, results.StatePassed, results.StateOf(tree, r.Store(), i.suiteA))
}
