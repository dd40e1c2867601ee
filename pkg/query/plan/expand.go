package plan

import (
	"fmt"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// Expand enumerates edges incident to the vertex bound at InSymbol and
// binds the edge and its far endpoint. A null source yields zero rows for
// that input row without exhausting the input.
type Expand struct {
	baseOp
	InSymbol   int
	EdgeSymbol int
	OutSymbol  int
	Direction  storage.Direction
	EdgeTypes  []string
	// ExistingNode makes the cursor match the far endpoint against the
	// vertex already bound at OutSymbol instead of binding it.
	ExistingNode bool
}

func NewExpand(input Operator, in, edge, out int, dir storage.Direction, types []string) *Expand {
	return &Expand{baseOp: baseOp{input: input},
		InSymbol: in, EdgeSymbol: edge, OutSymbol: out, Direction: dir, EdgeTypes: types}
}

func (e *Expand) String() string {
	return fmt.Sprintf("Expand (%s)", e.Direction)
}

func (e *Expand) MakeCursor(acc *storage.Accessor) Cursor {
	return &expandCursor{op: e, acc: acc, input: e.input.MakeCursor(acc)}
}

type neighbor struct {
	edge *storage.Edge
	node storage.NodeID
}

type expandCursor struct {
	op      *Expand
	acc     *storage.Accessor
	input   Cursor
	batch   []neighbor
	pos     int
	pending bool
}

func (c *expandCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if c.pending && c.pos < len(c.batch) {
			nb := c.batch[c.pos]
			c.pos++
			if c.op.ExistingNode {
				bound := f[c.op.OutSymbol]
				if bound.Type() != value.TypeVertex || bound.AsVertex().ID != nb.node {
					continue
				}
				f[c.op.EdgeSymbol] = value.Edge(nb.edge)
				return true, nil
			}
			node, err := c.acc.GetVertex(nb.node)
			if err != nil {
				return false, err
			}
			f[c.op.EdgeSymbol] = value.Edge(nb.edge)
			f[c.op.OutSymbol] = value.Vertex(node)
			return true, nil
		}
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		src := f[c.op.InSymbol]
		if src.IsNull() {
			continue
		}
		if src.Type() != value.TypeVertex {
			return false, &RuntimeError{Message: "expansion source is not a node"}
		}
		batch, err := neighbors(c.acc, src.AsVertex().ID, c.op.Direction, c.op.EdgeTypes)
		if err != nil {
			return false, err
		}
		c.batch, c.pos, c.pending = batch, 0, true
	}
}

func neighbors(acc *storage.Accessor, id storage.NodeID, dir storage.Direction, types []string) ([]neighbor, error) {
	var out []neighbor
	match := func(e *storage.Edge) bool {
		if len(types) == 0 {
			return true
		}
		for _, t := range types {
			if e.Type == t {
				return true
			}
		}
		return false
	}
	if dir == storage.DirectionOut || dir == storage.DirectionBoth {
		edges, err := acc.OutEdges(id)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if match(e) {
				out = append(out, neighbor{edge: e, node: e.EndNode})
			}
		}
	}
	if dir == storage.DirectionIn || dir == storage.DirectionBoth {
		edges, err := acc.InEdges(id)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if !match(e) {
				continue
			}
			// A self-loop already appeared on the outgoing side.
			if dir == storage.DirectionBoth && e.StartNode == id {
				continue
			}
			out = append(out, neighbor{edge: e, node: e.StartNode})
		}
	}
	return out, nil
}

// ExpandVariable performs variable-length expansion with depth bounds,
// binding EdgeSymbol to the edge list of each produced path. Edges are
// unique within one path.
type ExpandVariable struct {
	baseOp
	InSymbol   int
	EdgeSymbol int
	OutSymbol  int
	Direction  storage.Direction
	EdgeTypes  []string
	MinHops    frontend.Ref // NilRef means 1
	MaxHops    frontend.Ref // NilRef means unbounded
}

func NewExpandVariable(input Operator, in, edge, out int, dir storage.Direction, types []string, lo, hi frontend.Ref) *ExpandVariable {
	return &ExpandVariable{baseOp: baseOp{input: input},
		InSymbol: in, EdgeSymbol: edge, OutSymbol: out,
		Direction: dir, EdgeTypes: types, MinHops: lo, MaxHops: hi}
}

func (e *ExpandVariable) String() string {
	return fmt.Sprintf("ExpandVariable (%s)", e.Direction)
}

func (e *ExpandVariable) MakeCursor(acc *storage.Accessor) Cursor {
	return &expandVariableCursor{op: e, acc: acc, input: e.input.MakeCursor(acc)}
}

type varPath struct {
	edges []*storage.Edge
	end   storage.NodeID
}

type expandVariableCursor struct {
	op      *ExpandVariable
	acc     *storage.Accessor
	input   Cursor
	batch   []varPath
	pos     int
	pending bool
}

func (c *expandVariableCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if c.pending && c.pos < len(c.batch) {
			p := c.batch[c.pos]
			c.pos++
			node, err := c.acc.GetVertex(p.end)
			if err != nil {
				return false, err
			}
			edges := make([]value.Value, len(p.edges))
			for i, e := range p.edges {
				edges[i] = value.Edge(e)
			}
			f[c.op.EdgeSymbol] = value.List(edges...)
			f[c.op.OutSymbol] = value.Vertex(node)
			return true, nil
		}
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		src := f[c.op.InSymbol]
		if src.IsNull() {
			continue
		}
		if src.Type() != value.TypeVertex {
			return false, &RuntimeError{Message: "expansion source is not a node"}
		}
		lo, hi, err := c.hops(f, ctx)
		if err != nil {
			return false, err
		}
		c.batch = c.batch[:0]
		seen := map[storage.EdgeID]bool{}
		if err := c.walk(src.AsVertex().ID, nil, seen, lo, hi); err != nil {
			return false, err
		}
		c.pos, c.pending = 0, true
	}
}

func (c *expandVariableCursor) hops(f Frame, ctx *Context) (int64, int64, error) {
	lo, hi := int64(1), int64(-1)
	if c.op.MinHops != frontend.NilRef {
		v, err := Evaluate(c.op.MinHops, f, ctx)
		if err != nil {
			return 0, 0, err
		}
		if v.Type() != value.TypeInt {
			return 0, 0, &RuntimeError{Message: "expansion depth bound must be an integer"}
		}
		lo = v.AsInt()
	}
	if c.op.MaxHops != frontend.NilRef {
		v, err := Evaluate(c.op.MaxHops, f, ctx)
		if err != nil {
			return 0, 0, err
		}
		if v.Type() != value.TypeInt {
			return 0, 0, &RuntimeError{Message: "expansion depth bound must be an integer"}
		}
		hi = v.AsInt()
	}
	return lo, hi, nil
}

// walk depth-firsts from id, accumulating paths whose length falls inside
// [lo, hi]. hi < 0 means unbounded; edge uniqueness bounds the recursion.
func (c *expandVariableCursor) walk(id storage.NodeID, edges []*storage.Edge, seen map[storage.EdgeID]bool, lo, hi int64) error {
	depth := int64(len(edges))
	if depth >= lo {
		c.batch = append(c.batch, varPath{edges: append([]*storage.Edge(nil), edges...), end: id})
	}
	if hi >= 0 && depth >= hi {
		return nil
	}
	nbs, err := neighbors(c.acc, id, c.op.Direction, c.op.EdgeTypes)
	if err != nil {
		return err
	}
	for _, nb := range nbs {
		if seen[nb.edge.ID] {
			continue
		}
		seen[nb.edge.ID] = true
		if err := c.walk(nb.node, append(edges, nb.edge), seen, lo, hi); err != nil {
			return err
		}
		delete(seen, nb.edge.ID)
	}
	return nil
}

// ExpandBFS breadth-firsts from the source, emitting each reached node
// once at its shortest distance, up to Depth hops.
type ExpandBFS struct {
	baseOp
	InSymbol  int
	OutSymbol int
	Direction storage.Direction
	EdgeTypes []string
	Depth     frontend.Ref // NilRef means unbounded
}

func NewExpandBFS(input Operator, in, out int, dir storage.Direction, types []string, depth frontend.Ref) *ExpandBFS {
	return &ExpandBFS{baseOp: baseOp{input: input},
		InSymbol: in, OutSymbol: out, Direction: dir, EdgeTypes: types, Depth: depth}
}

func (e *ExpandBFS) String() string {
	return fmt.Sprintf("ExpandBFS (%s)", e.Direction)
}

func (e *ExpandBFS) MakeCursor(acc *storage.Accessor) Cursor {
	return &expandBFSCursor{op: e, acc: acc, input: e.input.MakeCursor(acc)}
}

type expandBFSCursor struct {
	op      *ExpandBFS
	acc     *storage.Accessor
	input   Cursor
	batch   []storage.NodeID
	pos     int
	pending bool
}

func (c *expandBFSCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if c.pending && c.pos < len(c.batch) {
			node, err := c.acc.GetVertex(c.batch[c.pos])
			if err != nil {
				return false, err
			}
			c.pos++
			f[c.op.OutSymbol] = value.Vertex(node)
			return true, nil
		}
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		src := f[c.op.InSymbol]
		if src.IsNull() {
			continue
		}
		if src.Type() != value.TypeVertex {
			return false, &RuntimeError{Message: "expansion source is not a node"}
		}
		depth := int64(-1)
		if c.op.Depth != frontend.NilRef {
			v, err := Evaluate(c.op.Depth, f, ctx)
			if err != nil {
				return false, err
			}
			if v.Type() != value.TypeInt {
				return false, &RuntimeError{Message: "expansion depth bound must be an integer"}
			}
			depth = v.AsInt()
		}
		batch, err := c.bfs(src.AsVertex().ID, depth)
		if err != nil {
			return false, err
		}
		c.batch, c.pos, c.pending = batch, 0, true
	}
}

func (c *expandBFSCursor) bfs(start storage.NodeID, depth int64) ([]storage.NodeID, error) {
	visited := map[storage.NodeID]bool{start: true}
	frontier := []storage.NodeID{start}
	var reached []storage.NodeID
	for d := int64(0); len(frontier) > 0 && (depth < 0 || d < depth); d++ {
		var next []storage.NodeID
		for _, id := range frontier {
			nbs, err := neighbors(c.acc, id, c.op.Direction, c.op.EdgeTypes)
			if err != nil {
				return nil, err
			}
			for _, nb := range nbs {
				if visited[nb.node] {
					continue
				}
				visited[nb.node] = true
				reached = append(reached, nb.node)
				next = append(next, nb.node)
			}
		}
		frontier = next
	}
	return reached, nil
}

// PathSegment is one element of a named-path construction: a node symbol
// or an edge symbol.
type PathSegment struct {
	Symbol int
	IsEdge bool
}

// ConstructNamedPath assembles a Path value from previously bound
// endpoints and edges. Any null segment makes the whole path null.
type ConstructNamedPath struct {
	baseOp
	PathSymbol int
	Segments   []PathSegment
}

func NewConstructNamedPath(input Operator, pathSymbol int, segments []PathSegment) *ConstructNamedPath {
	return &ConstructNamedPath{baseOp: baseOp{input: input},
		PathSymbol: pathSymbol, Segments: segments}
}

func (c *ConstructNamedPath) String() string { return "ConstructNamedPath" }

func (c *ConstructNamedPath) MakeCursor(acc *storage.Accessor) Cursor {
	return &constructPathCursor{op: c, input: c.input.MakeCursor(acc)}
}

type constructPathCursor struct {
	op    *ConstructNamedPath
	input Cursor
}

func (c *constructPathCursor) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	p := &value.Path{}
	for _, seg := range c.op.Segments {
		v := f[seg.Symbol]
		if v.IsNull() {
			f[c.op.PathSymbol] = value.Null
			return true, nil
		}
		switch {
		case seg.IsEdge && v.Type() == value.TypeEdge:
			p.Edges = append(p.Edges, v.AsEdge())
		case seg.IsEdge && v.Type() == value.TypeList:
			// Variable-length segment: splice the edge list in.
			for _, ev := range v.AsList() {
				if ev.Type() != value.TypeEdge {
					return false, &RuntimeError{Message: "path segment list holds a non-relationship"}
				}
				p.Edges = append(p.Edges, ev.AsEdge())
			}
		case !seg.IsEdge && v.Type() == value.TypeVertex:
			p.Vertices = append(p.Vertices, v.AsVertex())
		default:
			return false, &RuntimeError{Message: "path segment bound to unexpected value"}
		}
	}
	f[c.op.PathSymbol] = value.PathOf(p)
	return true, nil
}

// EdgeUniquenessFilter drops rows where the edge bound at Symbol collides
// with any edge bound at PriorSymbols. Null bindings pass.
type EdgeUniquenessFilter struct {
	baseOp
	Symbol       int
	PriorSymbols []int
}

func NewEdgeUniquenessFilter(input Operator, symbol int, prior []int) *EdgeUniquenessFilter {
	return &EdgeUniquenessFilter{baseOp: baseOp{input: input},
		Symbol: symbol, PriorSymbols: prior}
}

func (e *EdgeUniquenessFilter) String() string { return "EdgeUniquenessFilter" }

func (e *EdgeUniquenessFilter) MakeCursor(acc *storage.Accessor) Cursor {
	return &edgeUniquenessCursor{op: e, input: e.input.MakeCursor(acc)}
}

type edgeUniquenessCursor struct {
	op    *EdgeUniquenessFilter
	input Cursor
}

func (c *edgeUniquenessCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		if uniqueAgainst(f, c.op.Symbol, c.op.PriorSymbols) {
			return true, nil
		}
	}
}

func uniqueAgainst(f Frame, symbol int, prior []int) bool {
	cur := f[symbol]
	if cur.IsNull() {
		return true
	}
	for _, p := range prior {
		other := f[p]
		if other.IsNull() {
			continue
		}
		if edgeIDsOverlap(cur, other) {
			return false
		}
	}
	return true
}

func edgeIDsOverlap(a, b value.Value) bool {
	ids := map[storage.EdgeID]bool{}
	collect := func(v value.Value, fn func(storage.EdgeID) bool) bool {
		switch v.Type() {
		case value.TypeEdge:
			return fn(v.AsEdge().ID)
		case value.TypeList:
			for _, e := range v.AsList() {
				if e.Type() == value.TypeEdge && fn(e.AsEdge().ID) {
					return true
				}
			}
		}
		return false
	}
	collect(a, func(id storage.EdgeID) bool { ids[id] = true; return false })
	return collect(b, func(id storage.EdgeID) bool { return ids[id] })
}
