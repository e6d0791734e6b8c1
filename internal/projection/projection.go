// Package projection mirrors a test tree onto a presentation surface and
// keeps labels and state indicators current as results arrive.
package projection

import (
	"github.com/rs/zerolog"

	"github.com/jask/testdock/internal/results"
	"github.com/jask/testdock/internal/testtree"
)

// Handle identifies a node created by a Surface.
type Handle uint64

// Surface is the tree widget the projection draws on.
type Surface interface {
	// CreateNode appends a node under parent, or at the top level when
	// hasParent is false.
	CreateNode(parent Handle, hasParent bool) Handle
	SetLabel(h Handle, label string)
	SetState(h Handle, st results.State)
	Clear()
}

// Source supplies the tree being mirrored and the results to render.
type Source interface {
	Tree() (*testtree.Tree, bool)
	Store() *results.Store
}

// Projection keeps one surface node per visited test. It belongs to the UI
// goroutine.
type Projection struct {
	surface  Surface
	src      Source
	nodes    map[testtree.ID]Handle
	byHandle map[Handle]testtree.ID
	log      zerolog.Logger
}

// New returns an empty projection.
func New(surface Surface, src Source, log zerolog.Logger) *Projection {
	return &Projection{
		surface:  surface,
		src:      src,
		nodes:    make(map[testtree.ID]Handle),
		byHandle: make(map[Handle]testtree.ID),
		log:      log,
	}
}

// CreateIfAbsent materializes id, its missing ancestors and its whole
// subtree. Calling it again for the same test does nothing.
func (p *Projection) CreateIfAbsent(id testtree.ID) {
	if _, ok := p.nodes[id]; ok {
		return
	}
	tree, ok := p.src.Tree()
	if !ok {
		return
	}
	n, ok := tree.Node(id)
	if !ok {
		p.log.Debug().Int("test", int(id)).Msg("projection requested for unknown test")
		return
	}

	var parent Handle
	hasParent := false
	if n.Parent() != testtree.NoID {
		p.CreateIfAbsent(n.Parent())
		// Materializing the parent walks its children, this node included.
		if _, ok := p.nodes[id]; ok {
			return
		}
		parent, hasParent = p.nodes[n.Parent()]
	}

	h := p.surface.CreateNode(parent, hasParent)
	p.nodes[id] = h
	p.byHandle[h] = id

	for _, child := range tree.Children(id) {
		p.CreateIfAbsent(child.ID)
	}
}

// RefreshLabel re-renders id and then each of its ancestors. Siblings are
// left alone.
func (p *Projection) RefreshLabel(id testtree.ID) {
	tree, ok := p.src.Tree()
	if !ok {
		return
	}
	store := p.src.Store()
	for cur := id; cur != testtree.NoID; {
		h, ok := p.nodes[cur]
		if !ok {
			p.log.Debug().Int("test", int(cur)).Msg("no projection node to refresh")
			return
		}
		p.surface.SetLabel(h, results.Label(tree, store, cur))
		p.surface.SetState(h, results.StateOf(tree, store, cur))

		n, _ := tree.Node(cur)
		cur = n.Parent()
	}
}

// Load clears the projection and mirrors the whole tree.
func (p *Projection) Load() bool {
	p.Clear()
	tree, ok := p.src.Tree()
	if !ok {
		return false
	}
	p.CreateIfAbsent(tree.Root().ID)
	p.RefreshAll()
	return true
}

// RefreshAll re-renders every projected node.
func (p *Projection) RefreshAll() {
	tree, ok := p.src.Tree()
	if !ok {
		return
	}
	store := p.src.Store()
	for id, h := range p.nodes {
		p.surface.SetLabel(h, results.Label(tree, store, id))
		p.surface.SetState(h, results.StateOf(tree, store, id))
	}
}

// Clear drops every projection node.
func (p *Projection) Clear() {
	p.nodes = make(map[testtree.ID]Handle)
	p.byHandle = make(map[Handle]testtree.ID)
	p.surface.Clear()
}

// Handle returns the surface node of id.
func (p *Projection) Handle(id testtree.ID) (Handle, bool) {
	h, ok := p.nodes[id]
	return h, ok
}

// Lookup returns the test shown by surface node h.
func (p *Projection) Lookup(h Handle) (testtree.ID, bool) {
	id, ok := p.byHandle[h]
	return id, ok
}

// Len returns the number of projected tests.
func (p *Projection) Len() int {
	return len(p.nodes)
}
