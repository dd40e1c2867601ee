package plan

import (
	"fmt"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// AggregationKind selects the aggregation function.
type AggregationKind int

const (
	AggregationCount AggregationKind = iota
	AggregationCountStar
	AggregationSum
	AggregationAvg
	AggregationMin
	AggregationMax
	AggregationCollect
)

func (k AggregationKind) String() string {
	switch k {
	case AggregationCount, AggregationCountStar:
		return "count"
	case AggregationSum:
		return "sum"
	case AggregationAvg:
		return "avg"
	case AggregationMin:
		return "min"
	case AggregationMax:
		return "max"
	case AggregationCollect:
		return "collect"
	}
	return fmt.Sprintf("AggregationKind(%d)", int(k))
}

// AggregationItem is one aggregation output of an Aggregate operator.
type AggregationItem struct {
	Kind     AggregationKind
	Expr     frontend.Ref // NilRef for count(*)
	Distinct bool
	Symbol   int
}

// GroupItem is one grouping key, bound into the output row.
type GroupItem struct {
	Expr   frontend.Ref
	Symbol int
}

// Aggregate drains its input, groups rows on the grouping keys and emits
// one row per group. Without grouping keys an empty input still yields
// one row: count 0, sum 0, avg/min/max null, collect empty.
type Aggregate struct {
	baseOp
	Grouping     []GroupItem
	Aggregations []AggregationItem
}

func NewAggregate(input Operator, grouping []GroupItem, aggregations []AggregationItem) *Aggregate {
	return &Aggregate{baseOp: baseOp{input: input},
		Grouping: grouping, Aggregations: aggregations}
}

func (op *Aggregate) String() string {
	return fmt.Sprintf("Aggregate {%d group key(s), %d aggregation(s)}",
		len(op.Grouping), len(op.Aggregations))
}

func (op *Aggregate) MakeCursor(acc *storage.Accessor) Cursor {
	return &aggregateCursor{op: op, input: op.input.MakeCursor(acc)}
}

type aggState struct {
	count   int64
	sum     value.Value
	min     value.Value
	max     value.Value
	collect []value.Value
	seen    map[string]bool // distinct tracking
}

type aggGroup struct {
	keys   []value.Value
	states []*aggState
}

type aggregateCursor struct {
	op       *Aggregate
	input    Cursor
	groups   []*aggGroup
	byKey    map[string]*aggGroup
	pos      int
	prepared bool
}

func (c *aggregateCursor) Pull(f Frame, ctx *Context) (bool, error) {
	if !c.prepared {
		if err := c.prepare(f, ctx); err != nil {
			return false, err
		}
		c.prepared = true
	}
	if c.pos >= len(c.groups) {
		return false, nil
	}
	g := c.groups[c.pos]
	c.pos++
	for i, item := range c.op.Grouping {
		f[item.Symbol] = g.keys[i]
	}
	for i, item := range c.op.Aggregations {
		v, err := finishAggregation(item.Kind, g.states[i])
		if err != nil {
			return false, err
		}
		f[item.Symbol] = v
	}
	return true, nil
}

func (c *aggregateCursor) prepare(f Frame, ctx *Context) error {
	c.byKey = map[string]*aggGroup{}
	for {
		ok, err := c.input.Pull(f, ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		keys := make([]value.Value, len(c.op.Grouping))
		keyID := ""
		for i, item := range c.op.Grouping {
			v, err := Evaluate(item.Expr, f, ctx)
			if err != nil {
				return err
			}
			keys[i] = v
			keyID += v.Key() + "\x00"
		}
		g, found := c.byKey[keyID]
		if !found {
			g = &aggGroup{keys: keys, states: make([]*aggState, len(c.op.Aggregations))}
			for i := range g.states {
				g.states[i] = &aggState{seen: map[string]bool{}}
			}
			c.byKey[keyID] = g
			c.groups = append(c.groups, g)
		}
		for i, item := range c.op.Aggregations {
			if err := accumulateInto(g.states[i], item, f, ctx); err != nil {
				return err
			}
		}
	}
	// Ungrouped aggregation over an empty input still produces one row.
	if len(c.groups) == 0 && len(c.op.Grouping) == 0 {
		g := &aggGroup{states: make([]*aggState, len(c.op.Aggregations))}
		for i := range g.states {
			g.states[i] = &aggState{seen: map[string]bool{}}
		}
		c.groups = append(c.groups, g)
	}
	return nil
}

func accumulateInto(st *aggState, item AggregationItem, f Frame, ctx *Context) error {
	if item.Kind == AggregationCountStar {
		st.count++
		return nil
	}
	v, err := Evaluate(item.Expr, f, ctx)
	if err != nil {
		return err
	}
	if v.IsNull() {
		return nil
	}
	if item.Distinct {
		key := v.Key()
		if st.seen[key] {
			return nil
		}
		st.seen[key] = true
	}
	st.count++
	switch item.Kind {
	case AggregationCount:
	case AggregationSum, AggregationAvg:
		if !v.IsNumeric() {
			return &RuntimeError{Message: item.Kind.String() + " expects numeric values"}
		}
		if st.sum.IsNull() {
			st.sum = v
		} else if st.sum, err = value.Add(st.sum, v); err != nil {
			return err
		}
	case AggregationMin:
		if err := foldExtreme(&st.min, v, true); err != nil {
			return err
		}
	case AggregationMax:
		if err := foldExtreme(&st.max, v, false); err != nil {
			return err
		}
	case AggregationCollect:
		st.collect = append(st.collect, v)
	}
	return nil
}

func foldExtreme(cur *value.Value, v value.Value, min bool) error {
	if cur.IsNull() {
		*cur = v
		return nil
	}
	less, err := value.Less(v, *cur)
	if err != nil {
		return err
	}
	if !less.IsNull() && less.AsBool() == min {
		*cur = v
	}
	return nil
}

func finishAggregation(kind AggregationKind, st *aggState) (value.Value, error) {
	switch kind {
	case AggregationCount, AggregationCountStar:
		return value.Int(st.count), nil
	case AggregationSum:
		if st.sum.IsNull() {
			return value.Int(0), nil
		}
		return st.sum, nil
	case AggregationAvg:
		if st.count == 0 {
			return value.Null, nil
		}
		return value.Divide(value.Float(st.sum.AsFloat()), value.Float(float64(st.count)))
	case AggregationMin:
		return st.min, nil
	case AggregationMax:
		return st.max, nil
	case AggregationCollect:
		return value.List(st.collect...), nil
	}
	return value.Null, &RuntimeError{Message: "unknown aggregation"}
}
