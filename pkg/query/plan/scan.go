package plan

import (
	"fmt"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// ScanAll binds Symbol to every vertex, once per input row.
type ScanAll struct {
	baseOp
	Symbol int
}

func NewScanAll(input Operator, symbol int) *ScanAll {
	return &ScanAll{baseOp: baseOp{input: input}, Symbol: symbol}
}

func (s *ScanAll) String() string { return "ScanAll" }

func (s *ScanAll) MakeCursor(acc *storage.Accessor) Cursor {
	return &scanCursor{
		symbol: s.Symbol,
		input:  s.input.MakeCursor(acc),
		fetch:  func(Frame, *Context) ([]*storage.Node, error) { return acc.Vertices() },
	}
}

// ScanAllByLabel restricts ScanAll to one label.
type ScanAllByLabel struct {
	baseOp
	Symbol int
	Label  string
}

func NewScanAllByLabel(input Operator, symbol int, label string) *ScanAllByLabel {
	return &ScanAllByLabel{baseOp: baseOp{input: input}, Symbol: symbol, Label: label}
}

func (s *ScanAllByLabel) String() string {
	return fmt.Sprintf("ScanAllByLabel (:%s)", s.Label)
}

func (s *ScanAllByLabel) MakeCursor(acc *storage.Accessor) Cursor {
	return &scanCursor{
		symbol: s.Symbol,
		input:  s.input.MakeCursor(acc),
		fetch: func(Frame, *Context) ([]*storage.Node, error) {
			return acc.VerticesByLabel(s.Label)
		},
	}
}

// ScanAllByLabelPropertyValue scans via the label+property index for an
// equality predicate.
type ScanAllByLabelPropertyValue struct {
	baseOp
	Symbol   int
	Label    string
	Property string
	Value    frontend.Ref
}

func NewScanAllByLabelPropertyValue(input Operator, symbol int, label, property string, v frontend.Ref) *ScanAllByLabelPropertyValue {
	return &ScanAllByLabelPropertyValue{
		baseOp: baseOp{input: input}, Symbol: symbol,
		Label: label, Property: property, Value: v,
	}
}

func (s *ScanAllByLabelPropertyValue) String() string {
	return fmt.Sprintf("ScanAllByLabelPropertyValue (:%s {%s})", s.Label, s.Property)
}

func (s *ScanAllByLabelPropertyValue) MakeCursor(acc *storage.Accessor) Cursor {
	return &scanCursor{
		symbol: s.Symbol,
		input:  s.input.MakeCursor(acc),
		fetch: func(f Frame, ctx *Context) ([]*storage.Node, error) {
			v, err := Evaluate(s.Value, f, ctx)
			if err != nil {
				return nil, err
			}
			if v.IsNull() {
				return nil, nil
			}
			prop, err := v.ToProperty()
			if err != nil {
				return nil, err
			}
			return acc.VerticesByLabelPropertyValue(s.Label, s.Property, prop)
		},
	}
}

// RangeBound is one end of a range scan. A nil *RangeBound means unbounded.
type RangeBound struct {
	Expr      frontend.Ref
	Inclusive bool
}

// ScanAllByLabelPropertyRange scans via the label+property index for a
// range predicate. Either bound may be absent.
type ScanAllByLabelPropertyRange struct {
	baseOp
	Symbol   int
	Label    string
	Property string
	Lower    *RangeBound
	Upper    *RangeBound
}

func NewScanAllByLabelPropertyRange(input Operator, symbol int, label, property string, lower, upper *RangeBound) *ScanAllByLabelPropertyRange {
	return &ScanAllByLabelPropertyRange{
		baseOp: baseOp{input: input}, Symbol: symbol,
		Label: label, Property: property, Lower: lower, Upper: upper,
	}
}

func (s *ScanAllByLabelPropertyRange) String() string {
	return fmt.Sprintf("ScanAllByLabelPropertyRange (:%s {%s})", s.Label, s.Property)
}

func (s *ScanAllByLabelPropertyRange) MakeCursor(acc *storage.Accessor) Cursor {
	return &scanCursor{
		symbol: s.Symbol,
		input:  s.input.MakeCursor(acc),
		fetch: func(f Frame, ctx *Context) ([]*storage.Node, error) {
			lower, err := resolveBound(s.Lower, f, ctx)
			if err != nil {
				return nil, err
			}
			upper, err := resolveBound(s.Upper, f, ctx)
			if err != nil {
				return nil, err
			}
			return acc.VerticesByLabelPropertyRange(s.Label, s.Property, lower, upper)
		},
	}
}

func resolveBound(b *RangeBound, f Frame, ctx *Context) (*storage.Bound, error) {
	if b == nil {
		return nil, nil
	}
	v, err := Evaluate(b.Expr, f, ctx)
	if err != nil {
		return nil, err
	}
	prop, err := v.ToProperty()
	if err != nil {
		return nil, err
	}
	return &storage.Bound{Value: prop, Inclusive: b.Inclusive}, nil
}

// scanCursor drives any vertex-producing fetch: one batch per input row,
// one output row per vertex.
type scanCursor struct {
	symbol  int
	input   Cursor
	fetch   func(Frame, *Context) ([]*storage.Node, error)
	batch   []*storage.Node
	pos     int
	pending bool
}

func (c *scanCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if c.pending && c.pos < len(c.batch) {
			f[c.symbol] = value.Vertex(c.batch[c.pos])
			c.pos++
			return true, nil
		}
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		batch, err := c.fetch(f, ctx)
		if err != nil {
			return false, err
		}
		c.batch, c.pos, c.pending = batch, 0, true
	}
}
