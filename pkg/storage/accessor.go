package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrTransactionDone is returned by operations on a committed or aborted
// accessor.
var ErrTransactionDone = errors.New("transaction already finished")

type overlayNode struct {
	node  *Node
	stamp uint64
}

type overlayEdge struct {
	edge  *Edge
	stamp uint64
}

// Accessor is a transactional view of a Graph, owned by a single query
// execution. Writes are buffered in the accessor and become visible to its
// own reads only after AdvanceCommand; Commit applies them to the engine.
//
// An accessor is not safe for concurrent use.
type Accessor struct {
	graph   *Graph
	command uint64

	createdNodes  map[NodeID]*overlayNode
	modifiedNodes map[NodeID]*overlayNode
	deletedNodes  map[NodeID]uint64

	createdEdges  map[EdgeID]*overlayEdge
	modifiedEdges map[EdgeID]*overlayEdge
	deletedEdges  map[EdgeID]uint64

	indexCreated bool
	done         bool
}

// Names returns the graph's shared name interner.
func (a *Accessor) Names() *Interner { return a.graph.Names() }

// CommandID returns the current command counter.
func (a *Accessor) CommandID() uint64 { return a.command }

// AdvanceCommand makes writes buffered so far visible to subsequent reads
// through this accessor.
func (a *Accessor) AdvanceCommand() { a.command++ }

// MarkIndexCreated records that this transaction created an index.
func (a *Accessor) MarkIndexCreated() { a.indexCreated = true }

// IndexCreated reports whether this transaction created an index.
func (a *Accessor) IndexCreated() bool { return a.indexCreated }

func (a *Accessor) visible(stamp uint64) bool { return stamp < a.command }

// latestNode returns the newest buffered version of a node, falling back
// to the engine. Visibility is ignored: writers always see their latest
// version.
func (a *Accessor) latestNode(id NodeID) (*Node, error) {
	if entry, ok := a.modifiedNodes[id]; ok {
		return entry.node, nil
	}
	if entry, ok := a.createdNodes[id]; ok {
		return entry.node, nil
	}
	if _, ok := a.deletedNodes[id]; ok {
		return nil, ErrNotFound
	}
	return a.graph.engine.GetNode(id)
}

// GetVertex returns the node as visible at the current command.
func (a *Accessor) GetVertex(id NodeID) (*Node, error) {
	if stamp, ok := a.deletedNodes[id]; ok && a.visible(stamp) {
		return nil, ErrNotFound
	}
	if entry, ok := a.modifiedNodes[id]; ok && a.visible(entry.stamp) {
		return CopyNode(entry.node), nil
	}
	if entry, ok := a.createdNodes[id]; ok {
		if !a.visible(entry.stamp) {
			return nil, ErrNotFound
		}
		return CopyNode(entry.node), nil
	}
	return a.graph.engine.GetNode(id)
}

// GetEdge returns the edge as visible at the current command.
func (a *Accessor) GetEdge(id EdgeID) (*Edge, error) {
	if stamp, ok := a.deletedEdges[id]; ok && a.visible(stamp) {
		return nil, ErrNotFound
	}
	if entry, ok := a.modifiedEdges[id]; ok && a.visible(entry.stamp) {
		return CopyEdge(entry.edge), nil
	}
	if entry, ok := a.createdEdges[id]; ok {
		if !a.visible(entry.stamp) {
			return nil, ErrNotFound
		}
		return CopyEdge(entry.edge), nil
	}
	return a.graph.engine.GetEdge(id)
}

// Vertices returns every node visible at the current command, in
// deterministic ID order.
func (a *Accessor) Vertices() ([]*Node, error) {
	nodes, err := a.graph.engine.GetAllNodes()
	if err != nil {
		return nil, err
	}
	return a.overlayNodes(nodes, nil), nil
}

// VerticesByLabel returns the visible nodes carrying the given label.
func (a *Accessor) VerticesByLabel(label string) ([]*Node, error) {
	nodes, err := a.graph.engine.GetNodesByLabel(label)
	if err != nil {
		return nil, err
	}
	keep := func(n *Node) bool { return n.HasLabel(label) }
	return a.overlayNodes(nodes, keep), nil
}

// overlayNodes merges an engine result set with the visible overlay:
// deleted nodes drop out, modified nodes are replaced, created nodes are
// added. keep filters overlay candidates (nil keeps all).
func (a *Accessor) overlayNodes(engineNodes []*Node, keep func(*Node) bool) []*Node {
	out := make([]*Node, 0, len(engineNodes))
	seen := make(map[NodeID]struct{}, len(engineNodes))
	for _, n := range engineNodes {
		seen[n.ID] = struct{}{}
		if stamp, ok := a.deletedNodes[n.ID]; ok && a.visible(stamp) {
			continue
		}
		if entry, ok := a.modifiedNodes[n.ID]; ok && a.visible(entry.stamp) {
			n = CopyNode(entry.node)
			if keep != nil && !keep(n) {
				continue
			}
		}
		out = append(out, n)
	}
	for id, entry := range a.createdNodes {
		if _, dup := seen[id]; dup {
			continue
		}
		if !a.visible(entry.stamp) {
			continue
		}
		if stamp, ok := a.deletedNodes[id]; ok && a.visible(stamp) {
			continue
		}
		n := entry.node
		if e, ok := a.modifiedNodes[id]; ok && a.visible(e.stamp) {
			n = e.node
		}
		if keep != nil && !keep(n) {
			continue
		}
		out = append(out, CopyNode(n))
	}
	sortNodes(out)
	return out
}

// HasIndex reports whether a label+property index exists.
func (a *Accessor) HasIndex(label, property string) bool {
	return a.graph.HasIndex(label, property)
}

// VerticesByLabelPropertyValue probes the label+property index for nodes
// whose property equals value, merged with the visible overlay. An index
// must exist.
func (a *Accessor) VerticesByLabelPropertyValue(label, property string, value any) ([]*Node, error) {
	idx := a.graph.index(label, property)
	if idx == nil {
		return nil, fmt.Errorf("no index on :%s(%s)", label, property)
	}
	match := func(n *Node) bool {
		if !n.HasLabel(label) {
			return false
		}
		v, ok := n.Properties[property]
		if !ok {
			return false
		}
		c, comparable := compareProperties(v, value)
		return comparable && c == 0
	}
	return a.probe(idx.probeEqual(value), match), nil
}

// VerticesByLabelPropertyRange probes the label+property index for nodes
// whose property lies within the bounds, merged with the visible overlay.
// Either bound may be nil.
func (a *Accessor) VerticesByLabelPropertyRange(label, property string, lower, upper *Bound) ([]*Node, error) {
	idx := a.graph.index(label, property)
	if idx == nil {
		return nil, fmt.Errorf("no index on :%s(%s)", label, property)
	}
	match := func(n *Node) bool {
		if !n.HasLabel(label) {
			return false
		}
		v, ok := n.Properties[property]
		if !ok {
			return false
		}
		return withinBounds(v, lower, upper)
	}
	return a.probe(idx.probeRange(lower, upper), match), nil
}

// probe resolves index hits through the overlay and appends visible
// overlay-only nodes matching the predicate.
func (a *Accessor) probe(ids []NodeID, match func(*Node) bool) []*Node {
	out := make([]*Node, 0, len(ids))
	seen := make(map[NodeID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
		n, err := a.GetVertex(id)
		if err != nil {
			continue
		}
		if !match(n) {
			continue
		}
		out = append(out, n)
	}
	for id, entry := range a.createdNodes {
		if _, dup := seen[id]; dup {
			continue
		}
		if !a.visible(entry.stamp) {
			continue
		}
		n, err := a.GetVertex(id)
		if err != nil {
			continue
		}
		if match(n) {
			out = append(out, n)
		}
	}
	for id, entry := range a.modifiedNodes {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if !a.visible(entry.stamp) {
			continue
		}
		n, err := a.GetVertex(id)
		if err != nil {
			continue
		}
		if match(n) {
			out = append(out, n)
		}
	}
	sortNodes(out)
	return out
}

// Edges returns every edge visible at the current command.
func (a *Accessor) Edges() ([]*Edge, error) {
	edges, err := a.graph.engine.GetAllEdges()
	if err != nil {
		return nil, err
	}
	return a.overlayEdges(edges, nil), nil
}

// OutEdges returns the visible edges starting at the node.
func (a *Accessor) OutEdges(id NodeID) ([]*Edge, error) {
	edges, err := a.graph.engine.GetOutgoingEdges(id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	keep := func(e *Edge) bool { return e.StartNode == id }
	return a.overlayEdges(edges, keep), nil
}

// InEdges returns the visible edges ending at the node.
func (a *Accessor) InEdges(id NodeID) ([]*Edge, error) {
	edges, err := a.graph.engine.GetIncomingEdges(id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	keep := func(e *Edge) bool { return e.EndNode == id }
	return a.overlayEdges(edges, keep), nil
}

func (a *Accessor) overlayEdges(engineEdges []*Edge, keep func(*Edge) bool) []*Edge {
	out := make([]*Edge, 0, len(engineEdges))
	seen := make(map[EdgeID]struct{}, len(engineEdges))
	for _, e := range engineEdges {
		seen[e.ID] = struct{}{}
		if stamp, ok := a.deletedEdges[e.ID]; ok && a.visible(stamp) {
			continue
		}
		if entry, ok := a.modifiedEdges[e.ID]; ok && a.visible(entry.stamp) {
			e = CopyEdge(entry.edge)
			if keep != nil && !keep(e) {
				continue
			}
		}
		out = append(out, e)
	}
	for id, entry := range a.createdEdges {
		if _, dup := seen[id]; dup {
			continue
		}
		if !a.visible(entry.stamp) {
			continue
		}
		if stamp, ok := a.deletedEdges[id]; ok && a.visible(stamp) {
			continue
		}
		e := entry.edge
		if m, ok := a.modifiedEdges[id]; ok && a.visible(m.stamp) {
			e = m.edge
		}
		if keep != nil && !keep(e) {
			continue
		}
		out = append(out, CopyEdge(e))
	}
	sortEdges(out)
	return out
}

// CreateVertex buffers a new node with a minted identifier.
func (a *Accessor) CreateVertex(labels []string, properties map[string]any) (*Node, error) {
	if a.done {
		return nil, ErrTransactionDone
	}
	now := time.Now()
	n := &Node{
		ID:         NodeID(uuid.NewString()),
		Labels:     append([]string(nil), labels...),
		Properties: make(map[string]any, len(properties)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for k, v := range properties {
		n.Properties[k] = v
		a.graph.names.Property(k)
	}
	for _, l := range labels {
		a.graph.names.Label(l)
	}
	a.createdNodes[n.ID] = &overlayNode{node: n, stamp: a.command}
	return CopyNode(n), nil
}

// CreateEdgeBetween buffers a new edge between two existing nodes.
func (a *Accessor) CreateEdgeBetween(start, end NodeID, edgeType string, properties map[string]any) (*Edge, error) {
	if a.done {
		return nil, ErrTransactionDone
	}
	if _, err := a.latestNode(start); err != nil {
		return nil, fmt.Errorf("start node %s: %w", start, err)
	}
	if _, err := a.latestNode(end); err != nil {
		return nil, fmt.Errorf("end node %s: %w", end, err)
	}
	e := &Edge{
		ID:         EdgeID(uuid.NewString()),
		StartNode:  start,
		EndNode:    end,
		Type:       edgeType,
		Properties: make(map[string]any, len(properties)),
		CreatedAt:  time.Now(),
	}
	for k, v := range properties {
		e.Properties[k] = v
		a.graph.names.Property(k)
	}
	a.graph.names.EdgeType(edgeType)
	a.createdEdges[e.ID] = &overlayEdge{edge: e, stamp: a.command}
	return CopyEdge(e), nil
}

// mutateNode applies fn to the latest version of the node and re-buffers
// it stamped at the current command.
func (a *Accessor) mutateNode(id NodeID, fn func(*Node)) error {
	if a.done {
		return ErrTransactionDone
	}
	n, err := a.latestNode(id)
	if err != nil {
		return err
	}
	updated := CopyNode(n)
	fn(updated)
	updated.UpdatedAt = time.Now()
	if _, created := a.createdNodes[id]; created {
		a.createdNodes[id] = &overlayNode{node: updated, stamp: a.createdNodes[id].stamp}
		return nil
	}
	a.modifiedNodes[id] = &overlayNode{node: updated, stamp: a.command}
	return nil
}

// SetProperty sets one property on a node.
func (a *Accessor) SetProperty(id NodeID, key string, value any) error {
	a.graph.names.Property(key)
	return a.mutateNode(id, func(n *Node) {
		if value == nil {
			delete(n.Properties, key)
			return
		}
		n.Properties[key] = value
	})
}

// SetProperties replaces or merges the node's property store.
func (a *Accessor) SetProperties(id NodeID, properties map[string]any, replace bool) error {
	for k := range properties {
		a.graph.names.Property(k)
	}
	return a.mutateNode(id, func(n *Node) {
		if replace {
			n.Properties = make(map[string]any, len(properties))
		}
		for k, v := range properties {
			if v == nil {
				delete(n.Properties, k)
				continue
			}
			n.Properties[k] = v
		}
	})
}

// RemoveProperty deletes one property from a node.
func (a *Accessor) RemoveProperty(id NodeID, key string) error {
	return a.mutateNode(id, func(n *Node) {
		delete(n.Properties, key)
	})
}

// AddLabels adds labels to a node, ignoring duplicates.
func (a *Accessor) AddLabels(id NodeID, labels []string) error {
	for _, l := range labels {
		a.graph.names.Label(l)
	}
	return a.mutateNode(id, func(n *Node) {
		for _, l := range labels {
			if !n.HasLabel(l) {
				n.Labels = append(n.Labels, l)
			}
		}
	})
}

// RemoveLabels removes labels from a node.
func (a *Accessor) RemoveLabels(id NodeID, labels []string) error {
	return a.mutateNode(id, func(n *Node) {
		kept := n.Labels[:0]
		for _, l := range n.Labels {
			drop := false
			for _, r := range labels {
				if l == r {
					drop = true
					break
				}
			}
			if !drop {
				kept = append(kept, l)
			}
		}
		n.Labels = kept
	})
}

// SetEdgeProperty sets one property on an edge.
func (a *Accessor) SetEdgeProperty(id EdgeID, key string, value any) error {
	if a.done {
		return ErrTransactionDone
	}
	var e *Edge
	if entry, ok := a.modifiedEdges[id]; ok {
		e = entry.edge
	} else if entry, ok := a.createdEdges[id]; ok {
		e = entry.edge
	} else {
		stored, err := a.graph.engine.GetEdge(id)
		if err != nil {
			return err
		}
		e = stored
	}
	updated := CopyEdge(e)
	if value == nil {
		delete(updated.Properties, key)
	} else {
		updated.Properties[key] = value
	}
	a.graph.names.Property(key)
	if entry, created := a.createdEdges[id]; created {
		a.createdEdges[id] = &overlayEdge{edge: updated, stamp: entry.stamp}
		return nil
	}
	a.modifiedEdges[id] = &overlayEdge{edge: updated, stamp: a.command}
	return nil
}

// DeleteEdge buffers removal of an edge.
func (a *Accessor) DeleteEdge(id EdgeID) error {
	if a.done {
		return ErrTransactionDone
	}
	if _, ok := a.createdEdges[id]; !ok {
		if _, err := a.graph.engine.GetEdge(id); err != nil {
			if _, modified := a.modifiedEdges[id]; !modified {
				return err
			}
		}
	}
	a.deletedEdges[id] = a.command
	return nil
}

// DeleteVertex buffers removal of a node. It fails with ErrHasEdges when
// any edge incident to the node is still present.
func (a *Accessor) DeleteVertex(id NodeID) error {
	if a.done {
		return ErrTransactionDone
	}
	if _, err := a.latestNode(id); err != nil {
		return err
	}
	incident, err := a.incidentEdges(id)
	if err != nil {
		return err
	}
	if len(incident) > 0 {
		return ErrHasEdges
	}
	a.deletedNodes[id] = a.command
	return nil
}

// DetachDeleteVertex buffers removal of a node together with every edge
// incident to it.
func (a *Accessor) DetachDeleteVertex(id NodeID) error {
	if a.done {
		return ErrTransactionDone
	}
	if _, err := a.latestNode(id); err != nil {
		return err
	}
	incident, err := a.incidentEdges(id)
	if err != nil {
		return err
	}
	for _, e := range incident {
		a.deletedEdges[e.ID] = a.command
	}
	a.deletedNodes[id] = a.command
	return nil
}

// incidentEdges lists the not-yet-deleted edges touching a node,
// regardless of command visibility.
func (a *Accessor) incidentEdges(id NodeID) ([]*Edge, error) {
	var edges []*Edge
	out, err := a.graph.engine.GetOutgoingEdges(id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	edges = append(edges, out...)
	in, err := a.graph.engine.GetIncomingEdges(id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	edges = append(edges, in...)
	for _, entry := range a.createdEdges {
		if entry.edge.StartNode == id || entry.edge.EndNode == id {
			edges = append(edges, entry.edge)
		}
	}
	kept := edges[:0]
	for _, e := range edges {
		if _, deleted := a.deletedEdges[e.ID]; deleted {
			continue
		}
		kept = append(kept, e)
	}
	return kept, nil
}

// VertexCount returns the committed node count, a planner cardinality hint.
func (a *Accessor) VertexCount() int64 {
	n, err := a.graph.engine.NodeCount()
	if err != nil {
		return 0
	}
	return n
}

// VertexCountByLabel returns the committed count of nodes with the label.
func (a *Accessor) VertexCountByLabel(label string) int64 {
	nodes, err := a.graph.engine.GetNodesByLabel(label)
	if err != nil {
		return 0
	}
	return int64(len(nodes))
}

// IndexCardinality returns the entry count of a label+property index, or
// -1 when no such index exists.
func (a *Accessor) IndexCardinality(label, property string) int64 {
	idx := a.graph.index(label, property)
	if idx == nil {
		return -1
	}
	return int64(idx.size())
}

// CreateIndex creates a label+property index over the committed graph and
// marks the transaction as index-creating. Index DDL takes effect
// immediately rather than at Commit.
func (a *Accessor) CreateIndex(label, property string) error {
	if a.done {
		return ErrTransactionDone
	}
	if _, err := a.graph.CreateIndex(label, property); err != nil {
		return err
	}
	a.indexCreated = true
	return nil
}

// DropIndex removes a label+property index.
func (a *Accessor) DropIndex(label, property string) error {
	if a.done {
		return ErrTransactionDone
	}
	a.graph.DropIndex(label, property)
	return nil
}

// Commit applies the buffered writes to the engine and refreshes indexes.
func (a *Accessor) Commit() error {
	if a.done {
		return ErrTransactionDone
	}
	a.done = true

	for id, entry := range a.createdNodes {
		if _, deleted := a.deletedNodes[id]; deleted {
			continue
		}
		if err := a.graph.engine.CreateNode(entry.node); err != nil {
			return fmt.Errorf("commit create node %s: %w", id, err)
		}
		a.graph.indexNode(entry.node)
	}
	for id, entry := range a.createdEdges {
		if _, deleted := a.deletedEdges[id]; deleted {
			continue
		}
		if err := a.graph.engine.CreateEdge(entry.edge); err != nil {
			return fmt.Errorf("commit create edge %s: %w", id, err)
		}
	}
	for id, entry := range a.modifiedNodes {
		if _, deleted := a.deletedNodes[id]; deleted {
			continue
		}
		if _, created := a.createdNodes[id]; created {
			continue
		}
		if err := a.graph.engine.UpdateNode(entry.node); err != nil {
			return fmt.Errorf("commit update node %s: %w", id, err)
		}
		a.graph.indexNode(entry.node)
	}
	for id, entry := range a.modifiedEdges {
		if _, deleted := a.deletedEdges[id]; deleted {
			continue
		}
		if _, created := a.createdEdges[id]; created {
			continue
		}
		if err := a.graph.engine.UpdateEdge(entry.edge); err != nil {
			return fmt.Errorf("commit update edge %s: %w", id, err)
		}
	}
	for id := range a.deletedEdges {
		if _, created := a.createdEdges[id]; created {
			continue
		}
		if err := a.graph.engine.DeleteEdge(id); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("commit delete edge %s: %w", id, err)
		}
	}
	for id := range a.deletedNodes {
		a.graph.unindexNode(id)
		if _, created := a.createdNodes[id]; created {
			continue
		}
		if err := a.graph.engine.DeleteNode(id); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("commit delete node %s: %w", id, err)
		}
	}
	return nil
}

// Abort discards all buffered writes.
func (a *Accessor) Abort() {
	a.done = true
	a.createdNodes = nil
	a.modifiedNodes = nil
	a.deletedNodes = nil
	a.createdEdges = nil
	a.modifiedEdges = nil
	a.deletedEdges = nil
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

func sortEdges(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
}
