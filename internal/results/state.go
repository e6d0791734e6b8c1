package results

import (
	"fmt"

	"github.com/jask/testdock/internal/testtree"
)

// State is what the dock shows next to a test.
type State int

const (
	StateNotRun State = iota
	StateInProgress
	StatePassed
	StateFailed
	StateSkipped
	StateWarning
	StateInconclusive
)

func (s State) String() string {
	switch s {
	case StateNotRun:
		return "not run"
	case StateInProgress:
		return "in progress"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	case StateWarning:
		return "warning"
	case StateInconclusive:
		return "inconclusive"
	default:
		return "unknown"
	}
}

// severity orders states from worst (0) to best.
func (s State) severity() int {
	switch s {
	case StateFailed:
		return 0
	case StateInconclusive:
		return 1
	case StateWarning:
		return 2
	case StateSkipped:
		return 3
	case StateInProgress:
		return 4
	case StateNotRun:
		return 5
	case StatePassed:
		return 6
	default:
		return 1
	}
}

// Worse reports whether s ranks below other.
func (s State) Worse(other State) bool {
	return s.severity() < other.severity()
}

// Worst returns the lowest ranked of states, or StateNotRun when empty.
func Worst(states ...State) State {
	if len(states) == 0 {
		return StateNotRun
	}
	worst := states[0]
	for _, st := range states[1:] {
		if st.Worse(worst) {
			worst = st
		}
	}
	return worst
}

// StatusState maps a framework status onto a display state.
func StatusState(s Status) State {
	switch s {
	case StatusFailed:
		return StateFailed
	case StatusPassed:
		return StatePassed
	case StatusSkipped:
		return StateSkipped
	case StatusWarning:
		return StateWarning
	case StatusInconclusive:
		return StateInconclusive
	default:
		return StateInconclusive
	}
}

// LeafState is the state of a single entry in the store.
func LeafState(store *Store, id testtree.ID) State {
	r, ok := store.Lookup(id)
	if !ok {
		return StateNotRun
	}
	if r == nil {
		return StateInProgress
	}
	return StatusState(r.Status)
}

// StateOf computes the state of id. Suites take the worst state of their
// children; the result is recomputed on every call.
func StateOf(tree *testtree.Tree, store *Store, id testtree.ID) State {
	n, ok := tree.Node(id)
	if !ok {
		return StateNotRun
	}
	if !n.HasChildren() {
		if n.Suite {
			return StateNotRun
		}
		return LeafState(store, id)
	}
	worst := StatePassed
	for _, child := range tree.Children(id) {
		st := StateOf(tree, store, child.ID)
		if st.Worse(worst) {
			worst = st
		}
	}
	return worst
}

// Summary counts the leaf states below a node.
type Summary struct {
	Passed       int
	Failed       int
	Skipped      int
	Warning      int
	Inconclusive int
	InProgress   int
	NotRun       int
	Total        int
}

// Finished is the number of leaves with a terminal result.
func (s Summary) Finished() int {
	return s.Passed + s.Failed + s.Skipped + s.Warning + s.Inconclusive
}

// Summarize tallies the leaves at or below id.
func Summarize(tree *testtree.Tree, store *Store, id testtree.ID) Summary {
	var sum Summary
	for _, leaf := range tree.Leaves(id) {
		sum.Total++
		switch LeafState(store, leaf.ID) {
		case StatePassed:
			sum.Passed++
		case StateFailed:
			sum.Failed++
		case StateSkipped:
			sum.Skipped++
		case StateWarning:
			sum.Warning++
		case StateInconclusive:
			sum.Inconclusive++
		case StateInProgress:
			sum.InProgress++
		default:
			sum.NotRun++
		}
	}
	return sum
}

// Label renders the tree label of id. Leaves show their name; suites show how
// many tests were found, or how many pass once any of them finished.
func Label(tree *testtree.Tree, store *Store, id testtree.ID) string {
	n, ok := tree.Node(id)
	if !ok {
		return ""
	}
	if !n.Suite {
		return n.Name
	}
	sum := Summarize(tree, store, id)
	if sum.Finished() == 0 {
		return fmt.Sprintf("%s (%d found)", n.Name, n.TestCaseCount)
	}
	return fmt.Sprintf("%s (%d / %d passing)", n.Name, sum.Passed, n.TestCaseCount)
}
