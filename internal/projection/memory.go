package projection

import "github.com/jask/testdock/internal/results"

// MemoryNode is one node held by a MemorySurface.
type MemoryNode struct {
	Handle   Handle
	Parent   Handle
	Top      bool
	Label    string
	State    results.State
	Children []Handle
	Writes   int
}

// MemorySurface keeps the projected tree in memory. Handles start at 1.
type MemorySurface struct {
	nodes map[Handle]*MemoryNode
	top   []Handle
	next  Handle
}

// NewMemorySurface returns an empty surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{nodes: make(map[Handle]*MemoryNode)}
}

func (s *MemorySurface) CreateNode(parent Handle, hasParent bool) Handle {
	s.next++
	n := &MemoryNode{Handle: s.next, Parent: parent, Top: !hasParent}
	s.nodes[n.Handle] = n
	if hasParent {
		if p, ok := s.nodes[parent]; ok {
			p.Children = append(p.Children, n.Handle)
		}
	} else {
		s.top = append(s.top, n.Handle)
	}
	return n.Handle
}

func (s *MemorySurface) SetLabel(h Handle, label string) {
	if n, ok := s.nodes[h]; ok {
		n.Label = label
		n.Writes++
	}
}

func (s *MemorySurface) SetState(h Handle, st results.State) {
	if n, ok := s.nodes[h]; ok {
		n.State = st
	}
}

func (s *MemorySurface) Clear() {
	s.nodes = make(map[Handle]*MemoryNode)
	s.top = nil
}

// Node returns the node for h.
func (s *MemorySurface) Node(h Handle) (*MemoryNode, bool) {
	n, ok := s.nodes[h]
	return n, ok
}

// Top returns the top-level handles in creation order.
func (s *MemorySurface) Top() []Handle {
	return s.top
}

// Len returns the number of nodes.
func (s *MemorySurface) Len() int {
	return len(s.nodes)
}

// Walk visits every node depth first with its depth.
func (s *MemorySurface) Walk(fn func(n *MemoryNode, depth int)) {
	var visit func(h Handle, depth int)
	visit = func(h Handle, depth int) {
		n, ok := s.nodes[h]
		if !ok {
			return
		}
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, h := range s.top {
		visit(h, 0)
	}
}
