package plan

import (
	"fmt"
	"strings"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// writeOp marks operators that mutate the graph.
type writeOp struct {
	baseOp
}

func (*writeOp) Writes() bool { return true }

// CreateNode creates one vertex per input row and binds it.
type CreateNode struct {
	writeOp
	Symbol int
	Labels []string
	Props  frontend.Ref // *MapLiteral or NilRef
}

func NewCreateNode(input Operator, symbol int, labels []string, props frontend.Ref) *CreateNode {
	return &CreateNode{writeOp: writeOp{baseOp{input: input}},
		Symbol: symbol, Labels: labels, Props: props}
}

func (op *CreateNode) String() string {
	if len(op.Labels) == 0 {
		return "CreateNode"
	}
	return fmt.Sprintf("CreateNode (:%s)", strings.Join(op.Labels, ":"))
}

func (op *CreateNode) MakeCursor(acc *storage.Accessor) Cursor {
	return &createNodeCursor{op: op, acc: acc, input: op.input.MakeCursor(acc)}
}

type createNodeCursor struct {
	op    *CreateNode
	acc   *storage.Accessor
	input Cursor
}

func (c *createNodeCursor) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	props, err := evalProperties(c.op.Props, f, ctx)
	if err != nil {
		return false, err
	}
	node, err := c.acc.CreateVertex(c.op.Labels, props)
	if err != nil {
		return false, err
	}
	f[c.op.Symbol] = value.Vertex(node)
	return true, nil
}

// CreateExpand creates an edge from the vertex bound at InSymbol, creating
// the far vertex too unless ExistingOut says it is already bound.
type CreateExpand struct {
	writeOp
	InSymbol    int
	EdgeSymbol  int
	OutSymbol   int
	Direction   storage.Direction
	EdgeType    string
	EdgeProps   frontend.Ref
	NodeLabels  []string
	NodeProps   frontend.Ref
	ExistingOut bool
}

func (op *CreateExpand) String() string {
	return fmt.Sprintf("CreateExpand (%s)", op.EdgeType)
}

func (op *CreateExpand) MakeCursor(acc *storage.Accessor) Cursor {
	return &createExpandCursor{op: op, acc: acc, input: op.input.MakeCursor(acc)}
}

type createExpandCursor struct {
	op    *CreateExpand
	acc   *storage.Accessor
	input Cursor
}

func (c *createExpandCursor) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	src := f[c.op.InSymbol]
	if src.Type() != value.TypeVertex {
		return false, &RuntimeError{Message: "relationship start is not a node"}
	}
	var out *storage.Node
	if c.op.ExistingOut {
		bound := f[c.op.OutSymbol]
		if bound.Type() != value.TypeVertex {
			return false, &RuntimeError{Message: "relationship end is not a node"}
		}
		out = bound.AsVertex()
	} else {
		props, err := evalProperties(c.op.NodeProps, f, ctx)
		if err != nil {
			return false, err
		}
		out, err = c.acc.CreateVertex(c.op.NodeLabels, props)
		if err != nil {
			return false, err
		}
		f[c.op.OutSymbol] = value.Vertex(out)
	}
	edgeProps, err := evalProperties(c.op.EdgeProps, f, ctx)
	if err != nil {
		return false, err
	}
	start, end := src.AsVertex().ID, out.ID
	if c.op.Direction == storage.DirectionIn {
		start, end = end, start
	}
	edge, err := c.acc.CreateEdgeBetween(start, end, c.op.EdgeType, edgeProps)
	if err != nil {
		return false, err
	}
	f[c.op.EdgeSymbol] = value.Edge(edge)
	return true, nil
}

func evalProperties(ref frontend.Ref, f Frame, ctx *Context) (map[string]any, error) {
	if ref == frontend.NilRef {
		return nil, nil
	}
	v, err := Evaluate(ref, f, ctx)
	if err != nil {
		return nil, err
	}
	return propertyMap(v)
}

func propertyMap(v value.Value) (map[string]any, error) {
	switch v.Type() {
	case value.TypeNull:
		return nil, nil
	case value.TypeMap:
		out := make(map[string]any, len(v.AsMap()))
		for k, mv := range v.AsMap() {
			p, err := mv.ToProperty()
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	case value.TypeVertex:
		return v.AsVertex().Properties, nil
	case value.TypeEdge:
		return v.AsEdge().Properties, nil
	}
	return nil, &RuntimeError{Message: "properties must be a map"}
}

// SetProperty sets one property on the entity bound at Symbol. A null
// binding is a no-op.
type SetProperty struct {
	writeOp
	Symbol   int
	Property string
	Expr     frontend.Ref
}

func NewSetProperty(input Operator, symbol int, property string, expr frontend.Ref) *SetProperty {
	return &SetProperty{writeOp: writeOp{baseOp{input: input}},
		Symbol: symbol, Property: property, Expr: expr}
}

func (op *SetProperty) String() string {
	return fmt.Sprintf("SetProperty {%s}", op.Property)
}

func (op *SetProperty) MakeCursor(acc *storage.Accessor) Cursor {
	return passThrough(op.input.MakeCursor(acc), func(f Frame, ctx *Context) error {
		target := f[op.Symbol]
		if target.IsNull() {
			return nil
		}
		v, err := Evaluate(op.Expr, f, ctx)
		if err != nil {
			return err
		}
		prop, err := v.ToProperty()
		if err != nil {
			return err
		}
		switch target.Type() {
		case value.TypeVertex:
			if v.IsNull() {
				return acc.RemoveProperty(target.AsVertex().ID, op.Property)
			}
			return acc.SetProperty(target.AsVertex().ID, op.Property, prop)
		case value.TypeEdge:
			return acc.SetEdgeProperty(target.AsEdge().ID, op.Property, prop)
		}
		return &RuntimeError{Message: "SET target is not a node or relationship"}
	})
}

// SetProperties replaces or merges the whole property map of the node
// bound at Symbol.
type SetProperties struct {
	writeOp
	Symbol  int
	Expr    frontend.Ref
	Replace bool
}

func NewSetProperties(input Operator, symbol int, expr frontend.Ref, replace bool) *SetProperties {
	return &SetProperties{writeOp: writeOp{baseOp{input: input}},
		Symbol: symbol, Expr: expr, Replace: replace}
}

func (op *SetProperties) String() string {
	if op.Replace {
		return "SetProperties {replace}"
	}
	return "SetProperties {merge}"
}

func (op *SetProperties) MakeCursor(acc *storage.Accessor) Cursor {
	return passThrough(op.input.MakeCursor(acc), func(f Frame, ctx *Context) error {
		target := f[op.Symbol]
		if target.IsNull() {
			return nil
		}
		if target.Type() != value.TypeVertex {
			return &RuntimeError{Message: "SET target is not a node"}
		}
		v, err := Evaluate(op.Expr, f, ctx)
		if err != nil {
			return err
		}
		props, err := propertyMap(v)
		if err != nil {
			return err
		}
		return acc.SetProperties(target.AsVertex().ID, props, op.Replace)
	})
}

// SetLabels adds labels to the node bound at Symbol.
type SetLabels struct {
	writeOp
	Symbol int
	Labels []string
}

func NewSetLabels(input Operator, symbol int, labels []string) *SetLabels {
	return &SetLabels{writeOp: writeOp{baseOp{input: input}}, Symbol: symbol, Labels: labels}
}

func (op *SetLabels) String() string {
	return fmt.Sprintf("SetLabels (:%s)", strings.Join(op.Labels, ":"))
}

func (op *SetLabels) MakeCursor(acc *storage.Accessor) Cursor {
	return passThrough(op.input.MakeCursor(acc), func(f Frame, _ *Context) error {
		target := f[op.Symbol]
		if target.IsNull() {
			return nil
		}
		if target.Type() != value.TypeVertex {
			return &RuntimeError{Message: "SET target is not a node"}
		}
		return acc.AddLabels(target.AsVertex().ID, op.Labels)
	})
}

// RemoveProperty removes one property from the entity bound at Symbol.
type RemoveProperty struct {
	writeOp
	Symbol   int
	Property string
}

func NewRemoveProperty(input Operator, symbol int, property string) *RemoveProperty {
	return &RemoveProperty{writeOp: writeOp{baseOp{input: input}},
		Symbol: symbol, Property: property}
}

func (op *RemoveProperty) String() string {
	return fmt.Sprintf("RemoveProperty {%s}", op.Property)
}

func (op *RemoveProperty) MakeCursor(acc *storage.Accessor) Cursor {
	return passThrough(op.input.MakeCursor(acc), func(f Frame, _ *Context) error {
		target := f[op.Symbol]
		if target.IsNull() {
			return nil
		}
		switch target.Type() {
		case value.TypeVertex:
			return acc.RemoveProperty(target.AsVertex().ID, op.Property)
		case value.TypeEdge:
			return acc.SetEdgeProperty(target.AsEdge().ID, op.Property, nil)
		}
		return &RuntimeError{Message: "REMOVE target is not a node or relationship"}
	})
}

// RemoveLabels removes labels from the node bound at Symbol.
type RemoveLabels struct {
	writeOp
	Symbol int
	Labels []string
}

func NewRemoveLabels(input Operator, symbol int, labels []string) *RemoveLabels {
	return &RemoveLabels{writeOp: writeOp{baseOp{input: input}}, Symbol: symbol, Labels: labels}
}

func (op *RemoveLabels) String() string {
	return fmt.Sprintf("RemoveLabels (:%s)", strings.Join(op.Labels, ":"))
}

func (op *RemoveLabels) MakeCursor(acc *storage.Accessor) Cursor {
	return passThrough(op.input.MakeCursor(acc), func(f Frame, _ *Context) error {
		target := f[op.Symbol]
		if target.IsNull() {
			return nil
		}
		if target.Type() != value.TypeVertex {
			return &RuntimeError{Message: "REMOVE target is not a node"}
		}
		return acc.RemoveLabels(target.AsVertex().ID, op.Labels)
	})
}

// Delete deletes the entities its expressions evaluate to. Vertex deletion
// without Detach fails when incident edges remain.
type Delete struct {
	writeOp
	Exprs  []frontend.Ref
	Detach bool
}

func NewDelete(input Operator, exprs []frontend.Ref, detach bool) *Delete {
	return &Delete{writeOp: writeOp{baseOp{input: input}}, Exprs: exprs, Detach: detach}
}

func (op *Delete) String() string {
	if op.Detach {
		return "Delete {detach}"
	}
	return "Delete"
}

func (op *Delete) MakeCursor(acc *storage.Accessor) Cursor {
	return passThrough(op.input.MakeCursor(acc), func(f Frame, ctx *Context) error {
		for _, expr := range op.Exprs {
			v, err := Evaluate(expr, f, ctx)
			if err != nil {
				return err
			}
			switch v.Type() {
			case value.TypeNull:
			case value.TypeVertex:
				id := v.AsVertex().ID
				if op.Detach {
					err = acc.DetachDeleteVertex(id)
				} else {
					err = acc.DeleteVertex(id)
				}
				if err != nil {
					return err
				}
			case value.TypeEdge:
				if err := acc.DeleteEdge(v.AsEdge().ID); err != nil {
					return err
				}
			default:
				return &RuntimeError{Message: "DELETE expects nodes or relationships"}
			}
		}
		return nil
	})
}

// passThrough wraps an input cursor with a per-row side effect, keeping
// the input's cardinality.
func passThrough(input Cursor, effect func(Frame, *Context) error) Cursor {
	return &passThroughCursor{input: input, effect: effect}
}

type passThroughCursor struct {
	input  Cursor
	effect func(Frame, *Context) error
}

func (c *passThroughCursor) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	if err := c.effect(f, ctx); err != nil {
		return false, err
	}
	return true, nil
}
