package tui

import (
	"github.com/jask/testdock/internal/projection"
	"github.com/jask/testdock/internal/results"
)

type surfaceNode struct {
	parent    projection.Handle
	hasParent bool
	label     string
	state     results.State
	children  []projection.Handle
	collapsed bool
}

// row is one visible line of the tree pane.
type row struct {
	Handle   projection.Handle
	Depth    int
	Label    string
	State    results.State
	Children bool
	Folded   bool
}

// treeSurface is the tree pane's node store. Folding is a view concern and
// survives label and state updates.
type treeSurface struct {
	next  projection.Handle
	nodes map[projection.Handle]*surfaceNode
	top   []projection.Handle
}

func newTreeSurface() *treeSurface {
	return &treeSurface{nodes: make(map[projection.Handle]*surfaceNode)}
}

func (s *treeSurface) CreateNode(parent projection.Handle, hasParent bool) projection.Handle {
	s.next++
	h := s.next
	s.nodes[h] = &surfaceNode{parent: parent, hasParent: hasParent}
	if p, ok := s.nodes[parent]; hasParent && ok {
		p.children = append(p.children, h)
	} else {
		s.top = append(s.top, h)
	}
	return h
}

func (s *treeSurface) SetLabel(h projection.Handle, label string) {
	if n, ok := s.nodes[h]; ok {
		n.label = label
	}
}

func (s *treeSurface) SetState(h projection.Handle, st results.State) {
	if n, ok := s.nodes[h]; ok {
		n.state = st
	}
}

func (s *treeSurface) Clear() {
	s.nodes = make(map[projection.Handle]*surfaceNode)
	s.top = nil
}

// Toggle folds or unfolds h. Leaves cannot be folded.
func (s *treeSurface) Toggle(h projection.Handle) {
	n, ok := s.nodes[h]
	if !ok || len(n.children) == 0 {
		return
	}
	n.collapsed = !n.collapsed
}

// Reveal unfolds every ancestor of h.
func (s *treeSurface) Reveal(h projection.Handle) {
	n, ok := s.nodes[h]
	for ok && n.hasParent {
		n, ok = s.nodes[n.parent]
		if ok {
			n.collapsed = false
		}
	}
}

// Rows flattens the unfolded part of the tree in display order.
func (s *treeSurface) Rows() []row {
	var out []row
	var walk func(h projection.Handle, depth int)
	walk = func(h projection.Handle, depth int) {
		n, ok := s.nodes[h]
		if !ok {
			return
		}
		out = append(out, row{
			Handle:   h,
			Depth:    depth,
			Label:    n.label,
			State:    n.state,
			Children: len(n.children) > 0,
			Folded:   n.collapsed,
		})
		if n.collapsed {
			return
		}
		for _, c := range n.children {
			walk(c, depth+1)
		}
	}
	for _, h := range s.top {
		walk(h, 0)
	}
	return out
}
