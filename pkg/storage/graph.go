package storage

import (
	"sync"
)

// Graph owns a storage engine, the name interner and the label+property
// indexes, and hands out transactional accessors. One Graph is shared by
// all queries against the same database.
type Graph struct {
	engine Engine
	names  *Interner

	mu      sync.RWMutex
	indexes map[IndexSpec]*labelPropertyIndex
}

// NewGraph wraps an engine.
func NewGraph(engine Engine) *Graph {
	return &Graph{
		engine:  engine,
		names:   NewInterner(),
		indexes: make(map[IndexSpec]*labelPropertyIndex),
	}
}

// Engine returns the underlying storage engine.
func (g *Graph) Engine() Engine { return g.engine }

// Names returns the shared name interner.
func (g *Graph) Names() *Interner { return g.names }

// Access opens a transactional accessor over the graph.
func (g *Graph) Access() *Accessor {
	return &Accessor{
		graph:         g,
		command:       1,
		createdNodes:  make(map[NodeID]*overlayNode),
		modifiedNodes: make(map[NodeID]*overlayNode),
		deletedNodes:  make(map[NodeID]uint64),
		createdEdges:  make(map[EdgeID]*overlayEdge),
		modifiedEdges: make(map[EdgeID]*overlayEdge),
		deletedEdges:  make(map[EdgeID]uint64),
	}
}

// CreateIndex builds a label+property index over the committed data. It
// reports whether a new index was created; creating an index that already
// exists is a no-op returning false.
func (g *Graph) CreateIndex(label, property string) (bool, error) {
	spec := IndexSpec{Label: label, Property: property}

	g.mu.Lock()
	if _, exists := g.indexes[spec]; exists {
		g.mu.Unlock()
		return false, nil
	}
	idx := newLabelPropertyIndex()
	g.indexes[spec] = idx
	g.mu.Unlock()

	nodes, err := g.engine.GetNodesByLabel(label)
	if err != nil {
		return false, err
	}
	for _, n := range nodes {
		if v, ok := n.Properties[property]; ok {
			idx.put(n.ID, v)
		}
	}
	g.names.Label(label)
	g.names.Property(property)
	return true, nil
}

// DropIndex removes a label+property index.
func (g *Graph) DropIndex(label, property string) bool {
	spec := IndexSpec{Label: label, Property: property}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.indexes[spec]; !exists {
		return false
	}
	delete(g.indexes, spec)
	return true
}

// HasIndex reports whether a label+property index exists.
func (g *Graph) HasIndex(label, property string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.indexes[IndexSpec{Label: label, Property: property}]
	return ok
}

// Indexes lists the existing index specs.
func (g *Graph) Indexes() []IndexSpec {
	g.mu.RLock()
	defer g.mu.RUnlock()
	specs := make([]IndexSpec, 0, len(g.indexes))
	for spec := range g.indexes {
		specs = append(specs, spec)
	}
	return specs
}

func (g *Graph) index(label, property string) *labelPropertyIndex {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.indexes[IndexSpec{Label: label, Property: property}]
}

// indexNode refreshes every index entry for a committed node.
func (g *Graph) indexNode(n *Node) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for spec, idx := range g.indexes {
		if n.HasLabel(spec.Label) {
			if v, ok := n.Properties[spec.Property]; ok {
				idx.put(n.ID, v)
				continue
			}
		}
		idx.remove(n.ID)
	}
}

// unindexNode removes a node from every index.
func (g *Graph) unindexNode(id NodeID) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, idx := range g.indexes {
		idx.remove(id)
	}
}
