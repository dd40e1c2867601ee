package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// Filter drops rows whose predicate is not true. Null counts as false.
type Filter struct {
	baseOp
	Predicate frontend.Ref
}

func NewFilter(input Operator, predicate frontend.Ref) *Filter {
	return &Filter{baseOp: baseOp{input: input}, Predicate: predicate}
}

func (*Filter) String() string { return "Filter" }

func (op *Filter) MakeCursor(acc *storage.Accessor) Cursor {
	return &filterCursor{op: op, input: op.input.MakeCursor(acc)}
}

type filterCursor struct {
	op    *Filter
	input Cursor
}

func (c *filterCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		v, err := Evaluate(c.op.Predicate, f, ctx)
		if err != nil {
			return false, err
		}
		keep, err := Truthy(v)
		if err != nil {
			return false, err
		}
		if keep {
			return true, nil
		}
	}
}

// ProduceItem is one projection output. Expr == NilRef means the value is
// already bound at Symbol by a downstream operator (aggregation).
type ProduceItem struct {
	Name     string
	TokenPos int
	Expr     frontend.Ref
	Symbol   int
}

// Produce evaluates projection expressions and rebinds their named
// symbols. It is the row-emitting root of RETURN-bearing plans.
type Produce struct {
	baseOp
	Items []ProduceItem
}

func NewProduce(input Operator, items []ProduceItem) *Produce {
	return &Produce{baseOp: baseOp{input: input}, Items: items}
}

func (op *Produce) String() string {
	names := make([]string, len(op.Items))
	for i, it := range op.Items {
		names[i] = it.Name
	}
	return fmt.Sprintf("Produce {%s}", strings.Join(names, ", "))
}

// OutputItems exposes the projection for header assembly.
func (op *Produce) OutputItems() []ProduceItem { return op.Items }

func (op *Produce) MakeCursor(acc *storage.Accessor) Cursor {
	return &produceCursor{items: op.Items, input: op.input.MakeCursor(acc)}
}

// Projection evaluates projection expressions ahead of row modifiers so
// DISTINCT, ORDER BY and pagination see the output bindings.
type Projection struct {
	baseOp
	Items []ProduceItem
}

func NewProjection(input Operator, items []ProduceItem) *Projection {
	return &Projection{baseOp: baseOp{input: input}, Items: items}
}

func (*Projection) String() string { return "Projection" }

func (op *Projection) MakeCursor(acc *storage.Accessor) Cursor {
	return &produceCursor{items: op.Items, input: op.input.MakeCursor(acc)}
}

type produceCursor struct {
	items []ProduceItem
	input Cursor
}

func (c *produceCursor) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	for _, item := range c.items {
		if item.Expr == frontend.NilRef {
			continue
		}
		v, err := Evaluate(item.Expr, f, ctx)
		if err != nil {
			return false, err
		}
		f[item.Symbol] = v
	}
	return true, nil
}

// Unwind evaluates a list expression and emits one row per element.
type Unwind struct {
	baseOp
	Expr   frontend.Ref
	Symbol int
}

func NewUnwind(input Operator, expr frontend.Ref, symbol int) *Unwind {
	return &Unwind{baseOp: baseOp{input: input}, Expr: expr, Symbol: symbol}
}

func (*Unwind) String() string { return "Unwind" }

func (op *Unwind) MakeCursor(acc *storage.Accessor) Cursor {
	return &unwindCursor{op: op, input: op.input.MakeCursor(acc)}
}

type unwindCursor struct {
	op      *Unwind
	input   Cursor
	batch   []value.Value
	pos     int
	pending bool
}

func (c *unwindCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if c.pending && c.pos < len(c.batch) {
			f[c.op.Symbol] = c.batch[c.pos]
			c.pos++
			return true, nil
		}
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		v, err := Evaluate(c.op.Expr, f, ctx)
		if err != nil {
			return false, err
		}
		if v.IsNull() {
			c.batch, c.pos, c.pending = nil, 0, true
			continue
		}
		if v.Type() != value.TypeList {
			return false, &RuntimeError{Message: "UNWIND expects a list"}
		}
		c.batch, c.pos, c.pending = v.AsList(), 0, true
	}
}

// Distinct deduplicates rows on the projection of Symbols.
type Distinct struct {
	baseOp
	Symbols []int
}

func NewDistinct(input Operator, symbols []int) *Distinct {
	return &Distinct{baseOp: baseOp{input: input}, Symbols: symbols}
}

func (*Distinct) String() string { return "Distinct" }

func (op *Distinct) MakeCursor(acc *storage.Accessor) Cursor {
	return &distinctCursor{op: op, input: op.input.MakeCursor(acc), seen: map[string]bool{}}
}

type distinctCursor struct {
	op    *Distinct
	input Cursor
	seen  map[string]bool
}

func (c *distinctCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		key := frameKey(f, c.op.Symbols)
		if c.seen[key] {
			continue
		}
		c.seen[key] = true
		return true, nil
	}
}

func frameKey(f Frame, symbols []int) string {
	var sb strings.Builder
	for _, s := range symbols {
		sb.WriteString(f[s].Key())
		sb.WriteByte(0)
	}
	return sb.String()
}

// Skip suppresses the first N rows.
type Skip struct {
	baseOp
	Count frontend.Ref
}

func NewSkip(input Operator, count frontend.Ref) *Skip {
	return &Skip{baseOp: baseOp{input: input}, Count: count}
}

func (*Skip) String() string { return "Skip" }

func (op *Skip) MakeCursor(acc *storage.Accessor) Cursor {
	return &skipCursor{op: op, input: op.input.MakeCursor(acc)}
}

type skipCursor struct {
	op      *Skip
	input   Cursor
	skipped bool
}

func (c *skipCursor) Pull(f Frame, ctx *Context) (bool, error) {
	if !c.skipped {
		c.skipped = true
		n, err := rowCount(c.op.Count, f, ctx, "SKIP")
		if err != nil {
			return false, err
		}
		for i := int64(0); i < n; i++ {
			ok, err := c.input.Pull(f, ctx)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return c.input.Pull(f, ctx)
}

// Limit passes at most N rows.
type Limit struct {
	baseOp
	Count frontend.Ref
}

func NewLimit(input Operator, count frontend.Ref) *Limit {
	return &Limit{baseOp: baseOp{input: input}, Count: count}
}

func (*Limit) String() string { return "Limit" }

func (op *Limit) MakeCursor(acc *storage.Accessor) Cursor {
	return &limitCursor{op: op, input: op.input.MakeCursor(acc), remaining: -1}
}

type limitCursor struct {
	op        *Limit
	input     Cursor
	remaining int64
}

func (c *limitCursor) Pull(f Frame, ctx *Context) (bool, error) {
	if c.remaining < 0 {
		n, err := rowCount(c.op.Count, f, ctx, "LIMIT")
		if err != nil {
			return false, err
		}
		c.remaining = n
	}
	if c.remaining == 0 {
		return false, nil
	}
	ok, err := c.input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	c.remaining--
	return true, nil
}

func rowCount(ref frontend.Ref, f Frame, ctx *Context, clause string) (int64, error) {
	v, err := Evaluate(ref, f, ctx)
	if err != nil {
		return 0, err
	}
	if v.Type() != value.TypeInt || v.AsInt() < 0 {
		return 0, &RuntimeError{Message: clause + " expects a non-negative integer"}
	}
	return v.AsInt(), nil
}

// SortKey is one OrderBy key.
type SortKey struct {
	Expr      frontend.Ref
	Ascending bool
}

// OrderBy materializes its input and re-emits it stably sorted. Nulls
// sort last ascending, first descending.
type OrderBy struct {
	baseOp
	Keys []SortKey
}

func NewOrderBy(input Operator, keys []SortKey) *OrderBy {
	return &OrderBy{baseOp: baseOp{input: input}, Keys: keys}
}

func (*OrderBy) String() string { return "OrderBy" }

func (op *OrderBy) MakeCursor(acc *storage.Accessor) Cursor {
	return &orderByCursor{op: op, input: op.input.MakeCursor(acc)}
}

type sortedRow struct {
	frame Frame
	keys  []value.Value
}

type orderByCursor struct {
	op       *OrderBy
	input    Cursor
	rows     []sortedRow
	pos      int
	prepared bool
}

func (c *orderByCursor) Pull(f Frame, ctx *Context) (bool, error) {
	if !c.prepared {
		if err := c.prepare(f, ctx); err != nil {
			return false, err
		}
		c.prepared = true
	}
	if c.pos >= len(c.rows) {
		return false, nil
	}
	copy(f, c.rows[c.pos].frame)
	c.pos++
	return true, nil
}

func (c *orderByCursor) prepare(f Frame, ctx *Context) error {
	for {
		ok, err := c.input.Pull(f, ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		keys := make([]value.Value, len(c.op.Keys))
		for i, k := range c.op.Keys {
			v, err := Evaluate(k.Expr, f, ctx)
			if err != nil {
				return err
			}
			keys[i] = v
		}
		c.rows = append(c.rows, sortedRow{frame: f.Copy(), keys: keys})
	}
	sort.SliceStable(c.rows, func(i, j int) bool {
		for k, key := range c.op.Keys {
			cmp := compareForOrder(c.rows[i].keys[k], c.rows[j].keys[k])
			if cmp == 0 {
				continue
			}
			if key.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
	return nil
}

// compareForOrder is a total order over values: nulls greatest, mixed
// types ordered by type tag, comparable values by Less.
func compareForOrder(a, b value.Value) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return 1
	case b.IsNull():
		return -1
	}
	if less, err := value.Less(a, b); err == nil && !less.IsNull() {
		if less.AsBool() {
			return -1
		}
		if greater, err := value.Less(b, a); err == nil && !greater.IsNull() && greater.AsBool() {
			return 1
		}
		return 0
	}
	if a.Type() != b.Type() {
		if a.Type() < b.Type() {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Key(), b.Key())
}

// Accumulate fully drains its input, then re-emits the buffered bindings
// of Symbols. With Advance set, the accessor's command counter advances
// before re-emission so prior writes become visible.
type Accumulate struct {
	baseOp
	Symbols []int
	Advance bool
}

func NewAccumulate(input Operator, symbols []int, advance bool) *Accumulate {
	return &Accumulate{baseOp: baseOp{input: input}, Symbols: symbols, Advance: advance}
}

func (*Accumulate) String() string { return "Accumulate" }

func (op *Accumulate) MakeCursor(acc *storage.Accessor) Cursor {
	return &accumulateCursor{op: op, acc: acc, input: op.input.MakeCursor(acc)}
}

type accumulateCursor struct {
	op       *Accumulate
	acc      *storage.Accessor
	input    Cursor
	rows     []Frame
	pos      int
	prepared bool
}

func (c *accumulateCursor) Pull(f Frame, ctx *Context) (bool, error) {
	if !c.prepared {
		for {
			ok, err := c.input.Pull(f, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				break
			}
			c.rows = append(c.rows, f.Copy())
		}
		if c.op.Advance {
			c.acc.AdvanceCommand()
		}
		c.prepared = true
	}
	if c.pos >= len(c.rows) {
		return false, nil
	}
	for _, s := range c.op.Symbols {
		f[s] = c.rows[c.pos][s]
	}
	c.pos++
	return true, nil
}

// Optional pulls its branch per input row; an empty branch emits one row
// with the branch's symbols bound to null.
type Optional struct {
	baseOp
	Branch        Operator
	BranchSymbols []int
}

func NewOptional(input Operator, branch Operator, branchSymbols []int) *Optional {
	return &Optional{baseOp: baseOp{input: input}, Branch: branch, BranchSymbols: branchSymbols}
}

func (op *Optional) Inputs() []Operator { return []Operator{op.input, op.Branch} }

func (*Optional) String() string { return "Optional" }

func (op *Optional) MakeCursor(acc *storage.Accessor) Cursor {
	return &optionalCursor{op: op, acc: acc, input: op.input.MakeCursor(acc)}
}

type optionalCursor struct {
	op      *Optional
	acc     *storage.Accessor
	input   Cursor
	branch  Cursor
	matched bool
}

func (c *optionalCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if c.branch != nil {
			ok, err := c.branch.Pull(f, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				c.matched = true
				return true, nil
			}
			noMatch := !c.matched
			c.branch = nil
			if noMatch {
				for _, s := range c.op.BranchSymbols {
					f[s] = value.Null
				}
				return true, nil
			}
		}
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		c.branch = c.op.Branch.MakeCursor(c.acc)
		c.matched = false
	}
}

// Merge forwards its match branch's rows when it matches, otherwise pulls
// the create branch exactly once. Branch effects never interleave.
type Merge struct {
	baseOp
	MatchBranch  Operator
	CreateBranch Operator
}

func NewMerge(input Operator, matchBranch, createBranch Operator) *Merge {
	return &Merge{baseOp: baseOp{input: input},
		MatchBranch: matchBranch, CreateBranch: createBranch}
}

func (op *Merge) Inputs() []Operator {
	return []Operator{op.input, op.MatchBranch, op.CreateBranch}
}

func (*Merge) String() string { return "Merge" }

func (op *Merge) MakeCursor(acc *storage.Accessor) Cursor {
	return &mergeCursor{op: op, acc: acc, input: op.input.MakeCursor(acc)}
}

type mergeCursor struct {
	op      *Merge
	acc     *storage.Accessor
	input   Cursor
	match   Cursor
	matched bool
}

func (c *mergeCursor) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if c.match != nil {
			ok, err := c.match.Pull(f, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				c.matched = true
				return true, nil
			}
			noMatch := !c.matched
			c.match = nil
			if noMatch {
				create := c.op.CreateBranch.MakeCursor(c.acc)
				ok, err := create.Pull(f, ctx)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
		}
		ok, err := c.input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		c.match = c.op.MatchBranch.MakeCursor(c.acc)
		c.matched = false
	}
}

// Cartesian is a nested-loop join with no predicate. The right side is
// materialized once; the planner puts the smaller input there.
type Cartesian struct {
	Left         Operator
	Right        Operator
	RightSymbols []int
}

func NewCartesian(left, right Operator, rightSymbols []int) *Cartesian {
	return &Cartesian{Left: left, Right: right, RightSymbols: rightSymbols}
}

func (op *Cartesian) Inputs() []Operator { return []Operator{op.Left, op.Right} }
func (*Cartesian) Admin() bool           { return false }
func (*Cartesian) Writes() bool          { return false }
func (*Cartesian) String() string        { return "Cartesian" }

func (op *Cartesian) MakeCursor(acc *storage.Accessor) Cursor {
	return &cartesianCursor{op: op,
		left: op.Left.MakeCursor(acc), right: op.Right.MakeCursor(acc)}
}

type cartesianCursor struct {
	op       *Cartesian
	left     Cursor
	right    Cursor
	rows     [][]value.Value
	pos      int
	prepared bool
	haveLeft bool
}

func (c *cartesianCursor) Pull(f Frame, ctx *Context) (bool, error) {
	if !c.prepared {
		scratch := NewFrame(len(f))
		for {
			ok, err := c.right.Pull(scratch, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				break
			}
			row := make([]value.Value, len(c.op.RightSymbols))
			for i, s := range c.op.RightSymbols {
				row[i] = scratch[s]
			}
			c.rows = append(c.rows, row)
		}
		c.prepared = true
	}
	for {
		if c.haveLeft && c.pos < len(c.rows) {
			for i, s := range c.op.RightSymbols {
				f[s] = c.rows[c.pos][i]
			}
			c.pos++
			return true, nil
		}
		ok, err := c.left.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		c.haveLeft = true
		c.pos = 0
	}
}
