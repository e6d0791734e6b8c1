// Package testtree holds the read-only hierarchy of suites and tests reported
// by a test framework.
//
// Nodes live in an arena indexed by ID. Parent links are plain IDs so ancestor
// walks never share ownership of a node.
package testtree

import "strings"

// ID identifies a node for the lifetime of the tree that issued it.
type ID int

// NoID is the parent of the root.
const NoID ID = -1

// Node is one suite or test.
type Node struct {
	ID            ID
	Name          string
	FullName      string
	Suite         bool
	TestCaseCount int

	parent   ID
	children []ID
}

// Parent returns the parent ID, or NoID for the root.
func (n *Node) Parent() ID { return n.parent }

// HasChildren reports whether the node has any child nodes.
func (n *Node) HasChildren() bool { return len(n.children) > 0 }

// Tree is an immutable arena of nodes. The root always has ID 0.
type Tree struct {
	nodes  []*Node
	byName map[string]ID
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.nodes[0]
}

// Len returns the number of nodes, suites included.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node for id.
func (t *Tree) Node(id ID) (*Node, bool) {
	if t == nil || id < 0 || int(id) >= len(t.nodes) {
		return nil, false
	}
	return t.nodes[id], true
}

// Parent returns the parent of id. The root has no parent.
func (t *Tree) Parent(id ID) (*Node, bool) {
	n, ok := t.Node(id)
	if !ok || n.parent == NoID {
		return nil, false
	}
	return t.nodes[n.parent], true
}

// Children returns the children of id in insertion order.
func (t *Tree) Children(id ID) []*Node {
	n, ok := t.Node(id)
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, t.nodes[c])
	}
	return out
}

// Lookup finds a node by its full name.
func (t *Tree) Lookup(fullName string) (*Node, bool) {
	if t == nil {
		return nil, false
	}
	id, ok := t.byName[fullName]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// IsAncestorOrSelf reports whether anchor is id itself or one of its
// ancestors. It walks the parent chain of id up to the root.
func (t *Tree) IsAncestorOrSelf(anchor, id ID) bool {
	for cur := id; cur != NoID; {
		if cur == anchor {
			return true
		}
		n, ok := t.Node(cur)
		if !ok {
			return false
		}
		cur = n.parent
	}
	return false
}

// Walk visits id and its descendants in pre-order. Returning false from fn
// skips the node's children.
func (t *Tree) Walk(id ID, fn func(n *Node) bool) {
	n, ok := t.Node(id)
	if !ok {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		t.Walk(c, fn)
	}
}

// Leaves returns every non-suite node at or below id.
func (t *Tree) Leaves(id ID) []*Node {
	var out []*Node
	t.Walk(id, func(n *Node) bool {
		if !n.Suite {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Builder assembles a Tree. It is not safe for concurrent use.
type Builder struct {
	nodes  []*Node
	byName map[string]ID
}

// NewBuilder starts a tree whose root suite is named rootName.
func NewBuilder(rootName string) *Builder {
	b := &Builder{byName: make(map[string]ID)}
	root := &Node{ID: 0, Name: rootName, FullName: rootName, Suite: true, parent: NoID}
	b.nodes = append(b.nodes, root)
	return b
}

// Root returns the root ID.
func (b *Builder) Root() ID { return 0 }

// AddSuite appends a suite under parent and returns its ID.
func (b *Builder) AddSuite(parent ID, name string) ID {
	return b.add(parent, name, true)
}

// AddTest appends a leaf test under parent and returns its ID.
func (b *Builder) AddTest(parent ID, name string) ID {
	return b.add(parent, name, false)
}

func (b *Builder) fullName(parent ID, name string) string {
	if parent == 0 {
		return name
	}
	return strings.Join([]string{b.nodes[parent].FullName, name}, "/")
}

func (b *Builder) add(parent ID, name string, suite bool) ID {
	if parent < 0 || int(parent) >= len(b.nodes) {
		panic("testtree: unknown parent")
	}
	full := b.fullName(parent, name)
	if id, ok := b.byName[full]; ok {
		return id
	}
	n := &Node{ID: ID(len(b.nodes)), Name: name, FullName: full, Suite: suite, parent: parent}
	b.nodes = append(b.nodes, n)
	b.byName[full] = n.ID
	p := b.nodes[parent]
	p.children = append(p.children, n.ID)
	p.Suite = true
	return n.ID
}

// Build computes test case counts and returns the finished tree. The builder
// must not be used afterwards.
func (b *Builder) Build() *Tree {
	t := &Tree{nodes: b.nodes, byName: b.byName}
	// Top-level names are not prefixed with the root, so a child may
	// already own the root's name.
	root := t.nodes[0]
	if _, taken := t.byName[root.FullName]; !taken {
		t.byName[root.FullName] = root.ID
	}
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := t.nodes[i]
		if !n.Suite {
			n.TestCaseCount = 1
		}
		if n.parent != NoID {
			t.nodes[n.parent].TestCaseCount += n.TestCaseCount
		}
	}
	b.nodes = nil
	b.byName = nil
	return t
}
