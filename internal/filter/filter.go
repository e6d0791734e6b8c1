// Package filter selects subsets of a test tree for a run.
package filter

import (
	"fmt"

	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/testtree"
)

// Filter decides which tests take part in a run. Frameworks consult
// IsExplicitMatch when deciding whether a matched suite includes everything
// beneath it.
type Filter interface {
	Pass(id testtree.ID) bool
	IsExplicitMatch(id testtree.ID) bool
	String() string
}

type matchEverything struct{}

// Everything matches every test.
var Everything Filter = matchEverything{}

func (matchEverything) Pass(testtree.ID) bool            { return true }
func (matchEverything) IsExplicitMatch(testtree.ID) bool { return true }
func (matchEverything) String() string                   { return "all tests" }

// DescendantsOf matches an anchor node and everything below it.
type DescendantsOf struct {
	tree   *testtree.Tree
	anchor testtree.ID
}

// MatchDescendantsOf returns a filter for anchor and its descendants.
func MatchDescendantsOf(tree *testtree.Tree, anchor testtree.ID) *DescendantsOf {
	return &DescendantsOf{tree: tree, anchor: anchor}
}

// Pass reports whether id is the anchor or one of its descendants.
func (f *DescendantsOf) Pass(id testtree.ID) bool {
	return f.tree.IsAncestorOrSelf(f.anchor, id)
}

func (f *DescendantsOf) IsExplicitMatch(id testtree.ID) bool {
	return f.Pass(id)
}

func (f *DescendantsOf) String() string {
	if n, ok := f.tree.Node(f.anchor); ok {
		return n.FullName
	}
	return fmt.Sprintf("node %d", f.anchor)
}

// Failed matches the tests whose latest result failed and the suites that
// contain them. The set is captured when the filter is built, so clearing the
// store at run start does not change what runs.
type Failed struct {
	ids map[testtree.ID]bool
}

// MatchFailed snapshots the failed leaves of tree.
func MatchFailed(tree *testtree.Tree, store *results.Store) *Failed {
	f := &Failed{ids: make(map[testtree.ID]bool)}
	for _, leaf := range tree.Leaves(tree.Root().ID) {
		if results.LeafState(store, leaf.ID) != results.StateFailed {
			continue
		}
		for cur := leaf.ID; cur != testtree.NoID; {
			f.ids[cur] = true
			n, _ := tree.Node(cur)
			cur = n.Parent()
		}
	}
	return f
}

// Empty reports whether nothing failed.
func (f *Failed) Empty() bool { return len(f.ids) == 0 }

func (f *Failed) Pass(id testtree.ID) bool { return f.ids[id] }

// IsExplicitMatch is false for suites so frameworks do not widen a suite
// match to its passing children.
func (f *Failed) IsExplicitMatch(testtree.ID) bool { return false }

func (f *Failed) String() string { return "failed tests" }
