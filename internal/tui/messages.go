package tui

import (
	"time"

	"github.com/jask/testdock/internal/history"
	"github.com/jask/testdock/internal/testtree"
)

type discoveredMsg struct {
	tree   *testtree.Tree
	err    error
	reload bool
}

// queueReadyMsg means worker callbacks are waiting on the UI queue.
type queueReadyMsg struct{}

type tickMsg time.Time

type lastRunMsg struct {
	summary history.RunSummary
	ok      bool
}

type lastResultMsg struct {
	id  testtree.ID
	rec history.Recorded
	ok  bool
}

type errMsg struct{ err error }
