package framework

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/testtree"
)

type startOnly struct{ started []testtree.ID }

func (s *startOnly) TestStarted(id testtree.ID)  { s.started = append(s.started, id) }
func (s *startOnly) TestFinished(results.Result) {}

func TestListenerFuncs(t *testing.T) {
	var started []testtree.ID
	var finished []results.Result
	done := 0
	l := ListenerFuncs{
		Started:  func(id testtree.ID) { started = append(started, id) },
		Finished: func(r results.Result) { finished = append(finished, r) },
		Done:     func() { done++ },
	}

	l.TestStarted(3)
	l.TestFinished(results.Result{Test: 3, Status: results.StatusPassed})
	NotifyRunFinished(l)

	require.Equal(t, []testtree.ID{3}, started)
	require.Len(t, finished, 1)
	require.Equal(t, 1, done)
}

func TestListenerFuncsNilFields(t *testing.T) {
	l := ListenerFuncs{}
	require.NotPanics(t, func() {
		l.TestStarted(1)
		l.TestFinished(results.Result{})
		l.RunFinished()
	})
}

func TestNotifyRunFinishedIgnoresPlainListener(t *testing.T) {
	l := &startOnly{}
	require.NotPanics(t, func() { NotifyRunFinished(l) })
}
