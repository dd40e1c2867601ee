package plan

import (
	"fmt"
	"strings"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// NodeFilter drops rows whose vertex at Symbol lacks one of the required
// labels or mismatches the inline property map. A null binding passes
// nothing.
type NodeFilter struct {
	baseOp
	Symbol int
	Labels []string
	Props  frontend.Ref // *MapLiteral or NilRef
}

func NewNodeFilter(input Operator, symbol int, labels []string, props frontend.Ref) *NodeFilter {
	return &NodeFilter{baseOp: baseOp{input: input}, Symbol: symbol, Labels: labels, Props: props}
}

func (op *NodeFilter) String() string {
	if len(op.Labels) == 0 {
		return "NodeFilter"
	}
	return fmt.Sprintf("NodeFilter (:%s)", strings.Join(op.Labels, ":"))
}

func (op *NodeFilter) MakeCursor(acc *storage.Accessor) Cursor {
	return &nodeFilterCursor{op: op, input: op.input.MakeCursor(acc)}
}

type nodeFilterCursor struct {
	op    *NodeFilter
	input Cursor
}

func (c *nodeFilterCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		v := f[c.op.Symbol]
		if v.Type() != value.TypeVertex {
			continue
		}
		node := v.AsVertex()
		if !hasAllLabels(node, c.op.Labels) {
			continue
		}
		match, err := propsMatch(c.op.Props, node.Properties, f, ctx)
		if err != nil {
			return false, err
		}
		if match {
			return true, nil
		}
	}
}

func hasAllLabels(node *storage.Node, labels []string) bool {
	for _, want := range labels {
		found := false
		for _, have := range node.Labels {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// EdgeFilter drops rows whose edge at Symbol mismatches the inline
// property map. Types are already constrained by the expansion.
type EdgeFilter struct {
	baseOp
	Symbol int
	Props  frontend.Ref
}

func NewEdgeFilter(input Operator, symbol int, props frontend.Ref) *EdgeFilter {
	return &EdgeFilter{baseOp: baseOp{input: input}, Symbol: symbol, Props: props}
}

func (*EdgeFilter) String() string { return "EdgeFilter" }

func (op *EdgeFilter) MakeCursor(acc *storage.Accessor) Cursor {
	return &edgeFilterCursor{op: op, input: op.input.MakeCursor(acc)}
}

type edgeFilterCursor struct {
	op    *EdgeFilter
	input Cursor
}

func (c *edgeFilterCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		v := f[c.op.Symbol]
		if v.Type() != value.TypeEdge {
			continue
		}
		match, err := propsMatch(c.op.Props, v.AsEdge().Properties, f, ctx)
		if err != nil {
			return false, err
		}
		if match {
			return true, nil
		}
	}
}

// propsMatch evaluates each entry of a pattern property map and compares
// it against the entity's stored property.
func propsMatch(ref frontend.Ref, props map[string]any, f Frame, ctx *Context) (bool, error) {
	if ref == frontend.NilRef {
		return true, nil
	}
	m, ok := ctx.Storage.Node(ref).(*frontend.MapLiteral)
	if !ok {
		return false, &RuntimeError{Message: "pattern properties must be a map literal"}
	}
	for i, key := range m.Keys {
		want, err := Evaluate(m.Values[i], f, ctx)
		if err != nil {
			return false, err
		}
		raw, present := props[key]
		if !present {
			return false, nil
		}
		have, err := value.FromProperty(raw)
		if err != nil {
			return false, err
		}
		eq := value.Equals(have, want)
		if eq.IsNull() || !eq.AsBool() {
			return false, nil
		}
	}
	return true, nil
}
