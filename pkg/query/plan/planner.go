package plan

import (
	"fmt"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/storage"
)

// PlanError reports a query the planner cannot lower.
type PlanError struct {
	Message string
}

func (e *PlanError) Error() string {
	return "planning error: " + e.Message
}

// Plan lowers an annotated AST into an operator tree and returns the
// tree together with its estimated cost. With costBased set, disjoint
// patterns combine through Cartesian with the cheaper side materialized;
// otherwise patterns chain as nested loops in source order.
func Plan(st *frontend.AstStorage, symbols *frontend.SymbolTable, root frontend.Ref, acc *storage.Accessor, costBased bool) (Operator, float64, error) {
	p := &planner{st: st, symbols: symbols, acc: acc, costBased: costBased, bound: map[int]bool{}}

	if ex, ok := st.Node(root).(*frontend.ExplainClause); ok {
		inner, _, err := Plan(st, symbols, ex.Inner, acc, costBased)
		if err != nil {
			return nil, 0, err
		}
		sym := symbols.Declare("QUERY PLAN", frontend.SymbolVariable)
		op := &Produce{
			baseOp: baseOp{input: &Explain{Inner: inner, Symbol: sym.Position}},
			Items:  []ProduceItem{{Name: "QUERY PLAN", Expr: frontend.NilRef, Symbol: sym.Position}},
		}
		return op, 0, nil
	}

	q, ok := st.Node(root).(*frontend.Query)
	if !ok {
		return nil, 0, &PlanError{Message: "root is not a query"}
	}
	op, err := p.query(q)
	if err != nil {
		return nil, 0, err
	}
	return op, EstimateCost(op, acc), nil
}

type planner struct {
	st        *frontend.AstStorage
	symbols   *frontend.SymbolTable
	acc       *storage.Accessor
	costBased bool

	bound      map[int]bool
	boundOrder []int
	// edge symbols bound so far in the current MATCH clause, for the
	// uniqueness filter
	matchEdges []int
}

func (p *planner) bind(pos int) {
	if !p.bound[pos] {
		p.bound[pos] = true
		p.boundOrder = append(p.boundOrder, pos)
	}
}

func (p *planner) snapshot() (map[int]bool, []int) {
	b := make(map[int]bool, len(p.bound))
	for k, v := range p.bound {
		b[k] = v
	}
	return b, append([]int(nil), p.boundOrder...)
}

func (p *planner) restore(b map[int]bool, order []int) {
	p.bound, p.boundOrder = b, order
}

func (p *planner) query(q *frontend.Query) (Operator, error) {
	if admin := p.adminClause(q); admin != nil {
		if len(q.Clauses) != 1 {
			return nil, &PlanError{Message: "administrative statements cannot be combined with other clauses"}
		}
		return admin, nil
	}

	var op Operator = &Once{}
	for _, cl := range q.Clauses {
		next, err := p.clause(op, cl)
		if err != nil {
			return nil, err
		}
		op = next
	}
	return op, nil
}

// adminClause builds the one-shot operator when the sole clause is an
// administrative statement.
func (p *planner) adminClause(q *frontend.Query) Operator {
	if len(q.Clauses) == 0 {
		return nil
	}
	switch c := p.st.Node(q.Clauses[0]).(type) {
	case *frontend.CreateIndexClause:
		return &CreateIndex{Label: c.Label, Property: c.Property}
	case *frontend.DropIndexClause:
		return &DropIndex{Label: c.Label, Property: c.Property}
	case *frontend.AuthClause:
		return &AuthHandler{Action: c.Action, User: c.User, Password: c.Password}
	case *frontend.StreamClause:
		return &StreamHandler{Action: c.Action, Name: c.Name,
			Topic: c.Topic, Transform: c.Transform, BatchSize: c.BatchSize}
	}
	return nil
}

func (p *planner) clause(input Operator, r frontend.Ref) (Operator, error) {
	switch c := p.st.Node(r).(type) {
	case *frontend.MatchClause:
		return p.match(input, c)
	case *frontend.CreateClause:
		op := input
		for _, pat := range c.Patterns {
			next, err := p.createPattern(op, pat)
			if err != nil {
				return nil, err
			}
			op = next
		}
		return op, nil
	case *frontend.MergeClause:
		return p.merge(input, c)
	case *frontend.UnwindClause:
		sym, err := p.lookup(c.Alias)
		if err != nil {
			return nil, err
		}
		p.bind(sym)
		return NewUnwind(input, c.Expr, sym), nil
	case *frontend.WithClause:
		return p.projection(input, &c.Body, c.Where)
	case *frontend.ReturnClause:
		return p.projection(input, &c.Body, frontend.NilRef)
	case *frontend.DeleteClause:
		return NewDelete(input, c.Exprs, c.Detach), nil
	case *frontend.SetClause:
		return p.set(input, c)
	case *frontend.RemoveClause:
		return p.remove(input, c)
	default:
		return nil, &PlanError{Message: fmt.Sprintf("unexpected clause %T", c)}
	}
}

func (p *planner) lookup(name string) (int, error) {
	s, ok := p.symbols.Lookup(name)
	if !ok {
		return 0, &PlanError{Message: fmt.Sprintf("variable %q not defined", name)}
	}
	return s.Position, nil
}

func (p *planner) nodeSymbol(np *frontend.NodePattern) (int, error) {
	if np.Variable != "" {
		return p.lookup(np.Variable)
	}
	s, ok := p.symbols.AnonymousAt(np.TokenPos)
	if !ok {
		return 0, &PlanError{Message: "missing anonymous node symbol"}
	}
	return s.Position, nil
}

func (p *planner) edgeSymbol(ep *frontend.EdgePattern) (int, error) {
	if ep.Variable != "" {
		return p.lookup(ep.Variable)
	}
	s, ok := p.symbols.AnonymousAt(ep.TokenPos)
	if !ok {
		return 0, &PlanError{Message: "missing anonymous relationship symbol"}
	}
	return s.Position, nil
}

// match lowers MATCH and OPTIONAL MATCH.
func (p *planner) match(input Operator, c *frontend.MatchClause) (Operator, error) {
	p.matchEdges = nil
	if !c.Optional {
		op, err := p.patterns(input, c.Patterns, c.Where)
		if err != nil {
			return nil, err
		}
		if c.Where != frontend.NilRef {
			op = NewFilter(op, c.Where)
		}
		return op, nil
	}

	_, before := p.snapshot()
	branch, err := p.patterns(&Once{}, c.Patterns, c.Where)
	if err != nil {
		return nil, err
	}
	if c.Where != frontend.NilRef {
		branch = NewFilter(branch, c.Where)
	}
	branchSymbols := p.boundOrder[len(before):]
	return NewOptional(input, branch, append([]int(nil), branchSymbols...)), nil
}

func (p *planner) patterns(input Operator, patterns []frontend.Ref, where frontend.Ref) (Operator, error) {
	op := input
	for _, pat := range patterns {
		_, before := p.snapshot()
		if p.costBased && len(before) > 0 && !p.patternTouchesBound(pat) {
			branch, err := p.pattern(&Once{}, pat, where)
			if err != nil {
				return nil, err
			}
			branchSymbols := append([]int(nil), p.boundOrder[len(before):]...)
			if EstimateCost(branch, p.acc) <= EstimateCost(op, p.acc) {
				op = NewCartesian(op, branch, branchSymbols)
			} else {
				op = NewCartesian(branch, op, before)
			}
			continue
		}
		next, err := p.pattern(op, pat, where)
		if err != nil {
			return nil, err
		}
		op = next
	}
	return op, nil
}

// patternTouchesBound reports whether any variable of the pattern is
// already bound, which forces nested-loop chaining over Cartesian.
func (p *planner) patternTouchesBound(r frontend.Ref) bool {
	pat := p.st.Node(r).(*frontend.Pattern)
	for _, n := range pat.Nodes {
		np := p.st.Node(n).(*frontend.NodePattern)
		if sym, err := p.nodeSymbol(np); err == nil && p.bound[sym] {
			return true
		}
	}
	for _, e := range pat.Edges {
		ep := p.st.Node(e).(*frontend.EdgePattern)
		if sym, err := p.edgeSymbol(ep); err == nil && p.bound[sym] {
			return true
		}
	}
	return false
}

func (p *planner) pattern(input Operator, r frontend.Ref, where frontend.Ref) (Operator, error) {
	pat := p.st.Node(r).(*frontend.Pattern)
	op := input

	first := p.st.Node(pat.Nodes[0]).(*frontend.NodePattern)
	firstSym, err := p.nodeSymbol(first)
	if err != nil {
		return nil, err
	}
	if p.bound[firstSym] {
		if len(first.Labels) > 0 || first.Props != frontend.NilRef {
			op = NewNodeFilter(op, firstSym, first.Labels, first.Props)
		}
	} else {
		op = p.scan(op, firstSym, first, where)
		p.bind(firstSym)
	}

	for i, e := range pat.Edges {
		ep := p.st.Node(e).(*frontend.EdgePattern)
		toNode := p.st.Node(pat.Nodes[i+1]).(*frontend.NodePattern)
		fromSym, err := p.nodeSymbol(p.st.Node(pat.Nodes[i]).(*frontend.NodePattern))
		if err != nil {
			return nil, err
		}
		toSym, err := p.nodeSymbol(toNode)
		if err != nil {
			return nil, err
		}
		edgeSym, err := p.edgeSymbol(ep)
		if err != nil {
			return nil, err
		}
		toBound := p.bound[toSym]

		switch {
		case ep.Variable_ && ep.BFS:
			if toBound {
				return nil, &PlanError{Message: "breadth-first expansion cannot target a bound variable"}
			}
			op = NewExpandBFS(op, fromSym, toSym, ep.Direction, ep.Types, ep.MaxHops)
		case ep.Variable_:
			if toBound {
				return nil, &PlanError{Message: "variable-length expansion cannot target a bound variable"}
			}
			op = NewExpandVariable(op, fromSym, edgeSym, toSym, ep.Direction, ep.Types, ep.MinHops, ep.MaxHops)
		default:
			expand := NewExpand(op, fromSym, edgeSym, toSym, ep.Direction, ep.Types)
			expand.ExistingNode = toBound
			op = expand
		}
		p.bind(edgeSym)
		if !toBound {
			p.bind(toSym)
		}

		if !(ep.Variable_ && ep.BFS) {
			if len(p.matchEdges) > 0 {
				op = NewEdgeUniquenessFilter(op, edgeSym, append([]int(nil), p.matchEdges...))
			}
			p.matchEdges = append(p.matchEdges, edgeSym)
		}
		if ep.Props != frontend.NilRef {
			op = NewEdgeFilter(op, edgeSym, ep.Props)
		}
		if len(toNode.Labels) > 0 || toNode.Props != frontend.NilRef {
			op = NewNodeFilter(op, toSym, toNode.Labels, toNode.Props)
		}
	}

	if pat.Name != "" {
		op, err = p.namedPath(op, pat)
		if err != nil {
			return nil, err
		}
	}
	return op, nil
}

func (p *planner) namedPath(input Operator, pat *frontend.Pattern) (Operator, error) {
	pathSym, err := p.lookup(pat.Name)
	if err != nil {
		return nil, err
	}
	var segments []PathSegment
	for i, n := range pat.Nodes {
		sym, err := p.nodeSymbol(p.st.Node(n).(*frontend.NodePattern))
		if err != nil {
			return nil, err
		}
		segments = append(segments, PathSegment{Symbol: sym})
		if i < len(pat.Edges) {
			esym, err := p.edgeSymbol(p.st.Node(pat.Edges[i]).(*frontend.EdgePattern))
			if err != nil {
				return nil, err
			}
			segments = append(segments, PathSegment{Symbol: esym, IsEdge: true})
		}
	}
	p.bind(pathSym)
	return NewConstructNamedPath(input, pathSym, segments), nil
}

// scan picks the cheapest access path for an unbound pattern node:
// an indexed scan when a usable predicate exists, a label scan when the
// pattern names one, a full scan otherwise.
func (p *planner) scan(input Operator, sym int, np *frontend.NodePattern, where frontend.Ref) Operator {
	var op Operator
	if len(np.Labels) > 0 {
		label := np.Labels[0]
		op = p.indexedScan(input, sym, label, np, where)
		if op == nil {
			op = NewScanAllByLabel(input, sym, label)
		}
	} else {
		op = NewScanAll(input, sym)
	}
	if len(np.Labels) > 1 || np.Props != frontend.NilRef {
		var extra []string
		if len(np.Labels) > 1 {
			extra = np.Labels[1:]
		}
		op = NewNodeFilter(op, sym, extra, np.Props)
	}
	return op
}

// indexedScan returns an index-backed scan when the inline property map
// or a WHERE conjunct pins an indexed property, or nil.
func (p *planner) indexedScan(input Operator, sym int, label string, np *frontend.NodePattern, where frontend.Ref) Operator {
	if m, ok := p.st.Node(np.Props).(*frontend.MapLiteral); ok {
		for i, key := range m.Keys {
			if p.acc.HasIndex(label, key) && p.exprIndependent(m.Values[i]) {
				return NewScanAllByLabelPropertyValue(input, sym, label, key, m.Values[i])
			}
		}
	}
	if np.Variable == "" || where == frontend.NilRef {
		return nil
	}

	type keyBounds struct {
		lower, upper *RangeBound
	}
	ranges := map[string]*keyBounds{}
	var rangeOrder []string
	for _, conj := range p.conjuncts(where) {
		key, valueRef, op, ok := p.propertyPredicate(conj, np.Variable)
		if !ok || !p.acc.HasIndex(label, key) {
			continue
		}
		if op == frontend.BinaryEq {
			return NewScanAllByLabelPropertyValue(input, sym, label, key, valueRef)
		}
		kb := ranges[key]
		if kb == nil {
			kb = &keyBounds{}
			ranges[key] = kb
			rangeOrder = append(rangeOrder, key)
		}
		switch op {
		case frontend.BinaryLt:
			kb.upper = &RangeBound{Expr: valueRef}
		case frontend.BinaryLe:
			kb.upper = &RangeBound{Expr: valueRef, Inclusive: true}
		case frontend.BinaryGt:
			kb.lower = &RangeBound{Expr: valueRef}
		case frontend.BinaryGe:
			kb.lower = &RangeBound{Expr: valueRef, Inclusive: true}
		}
	}
	for _, key := range rangeOrder {
		kb := ranges[key]
		if kb.lower != nil || kb.upper != nil {
			return NewScanAllByLabelPropertyRange(input, sym, label, key, kb.lower, kb.upper)
		}
	}
	return nil
}

// conjuncts splits a predicate on top-level AND.
func (p *planner) conjuncts(ref frontend.Ref) []frontend.Ref {
	if b, ok := p.st.Node(ref).(*frontend.Binary); ok && b.Op == frontend.BinaryAnd {
		return append(p.conjuncts(b.L), p.conjuncts(b.R)...)
	}
	return []frontend.Ref{ref}
}

// propertyPredicate matches a conjunct of the form v.key <op> expr or
// expr <op> v.key, with the comparison normalized to the property on the
// left. The value side must not reference pattern variables.
func (p *planner) propertyPredicate(ref frontend.Ref, variable string) (key string, valueRef frontend.Ref, op frontend.BinaryOp, ok bool) {
	b, isBinary := p.st.Node(ref).(*frontend.Binary)
	if !isBinary {
		return "", frontend.NilRef, 0, false
	}
	flip := map[frontend.BinaryOp]frontend.BinaryOp{
		frontend.BinaryEq: frontend.BinaryEq,
		frontend.BinaryLt: frontend.BinaryGt,
		frontend.BinaryLe: frontend.BinaryGe,
		frontend.BinaryGt: frontend.BinaryLt,
		frontend.BinaryGe: frontend.BinaryLe,
	}
	if _, comparison := flip[b.Op]; !comparison {
		return "", frontend.NilRef, 0, false
	}
	if key, ok := p.propertyOf(b.L, variable); ok && p.exprIndependent(b.R) {
		return key, b.R, b.Op, true
	}
	if key, ok := p.propertyOf(b.R, variable); ok && p.exprIndependent(b.L) {
		return key, b.L, flip[b.Op], true
	}
	return "", frontend.NilRef, 0, false
}

func (p *planner) propertyOf(ref frontend.Ref, variable string) (string, bool) {
	pl, ok := p.st.Node(ref).(*frontend.PropertyLookup)
	if !ok {
		return "", false
	}
	id, ok := p.st.Node(pl.Expr).(*frontend.Identifier)
	if !ok || id.Name != variable {
		return "", false
	}
	return pl.Key, true
}

// exprIndependent reports whether an expression evaluates without any
// frame binding, so it can feed an index probe under the scan.
func (p *planner) exprIndependent(ref frontend.Ref) bool {
	switch e := p.st.Node(ref).(type) {
	case *frontend.Literal, *frontend.Parameter:
		return true
	case *frontend.Unary:
		return p.exprIndependent(e.Operand)
	case *frontend.Binary:
		return p.exprIndependent(e.L) && p.exprIndependent(e.R)
	case *frontend.ListLiteral:
		for _, it := range e.Items {
			if !p.exprIndependent(it) {
				return false
			}
		}
		return true
	case *frontend.MapLiteral:
		for _, v := range e.Values {
			if !p.exprIndependent(v) {
				return false
			}
		}
		return true
	}
	return false
}

func (p *planner) createPattern(input Operator, r frontend.Ref) (Operator, error) {
	pat := p.st.Node(r).(*frontend.Pattern)
	op := input

	first := p.st.Node(pat.Nodes[0]).(*frontend.NodePattern)
	firstSym, err := p.nodeSymbol(first)
	if err != nil {
		return nil, err
	}
	if p.bound[firstSym] {
		if len(pat.Edges) == 0 {
			return nil, &PlanError{Message: fmt.Sprintf("variable %q already bound", first.Variable)}
		}
	} else {
		op = NewCreateNode(op, firstSym, first.Labels, first.Props)
		p.bind(firstSym)
	}

	for i, e := range pat.Edges {
		ep := p.st.Node(e).(*frontend.EdgePattern)
		if ep.Variable_ {
			return nil, &PlanError{Message: "created relationships cannot be variable-length"}
		}
		if len(ep.Types) != 1 {
			return nil, &PlanError{Message: "a created relationship needs exactly one type"}
		}
		if ep.Direction == storage.DirectionBoth {
			return nil, &PlanError{Message: "a created relationship must be directed"}
		}
		fromSym, err := p.nodeSymbol(p.st.Node(pat.Nodes[i]).(*frontend.NodePattern))
		if err != nil {
			return nil, err
		}
		toNode := p.st.Node(pat.Nodes[i+1]).(*frontend.NodePattern)
		toSym, err := p.nodeSymbol(toNode)
		if err != nil {
			return nil, err
		}
		edgeSym, err := p.edgeSymbol(ep)
		if err != nil {
			return nil, err
		}
		op = &CreateExpand{
			writeOp:     writeOp{baseOp{input: op}},
			InSymbol:    fromSym,
			EdgeSymbol:  edgeSym,
			OutSymbol:   toSym,
			Direction:   ep.Direction,
			EdgeType:    ep.Types[0],
			EdgeProps:   ep.Props,
			NodeLabels:  toNode.Labels,
			NodeProps:   toNode.Props,
			ExistingOut: p.bound[toSym],
		}
		p.bind(edgeSym)
		p.bind(toSym)
	}

	if pat.Name != "" {
		op, err = p.namedPath(op, pat)
		if err != nil {
			return nil, err
		}
	}
	return op, nil
}

// merge plans MERGE: a match branch and a create branch over the same
// pattern, both entered from the shared frame.
func (p *planner) merge(input Operator, c *frontend.MergeClause) (Operator, error) {
	boundBefore, orderBefore := p.snapshot()

	savedEdges := p.matchEdges
	p.matchEdges = nil
	matchBranch, err := p.pattern(&Once{}, c.Pattern, frontend.NilRef)
	p.matchEdges = savedEdges
	if err != nil {
		return nil, err
	}

	p.restore(boundBefore, orderBefore)
	createBranch, err := p.createPattern(&Once{}, c.Pattern)
	if err != nil {
		return nil, err
	}
	return NewMerge(input, matchBranch, createBranch), nil
}

func (p *planner) set(input Operator, c *frontend.SetClause) (Operator, error) {
	op := input
	for _, item := range c.Items {
		sym, err := p.lookup(item.Target)
		if err != nil {
			return nil, err
		}
		switch item.Kind {
		case frontend.SetItemProperty:
			op = NewSetProperty(op, sym, item.Property, item.Expr)
		case frontend.SetItemProperties:
			op = NewSetProperties(op, sym, item.Expr, true)
		case frontend.SetItemMerge:
			op = NewSetProperties(op, sym, item.Expr, false)
		case frontend.SetItemLabels:
			op = NewSetLabels(op, sym, item.Labels)
		}
	}
	return op, nil
}

func (p *planner) remove(input Operator, c *frontend.RemoveClause) (Operator, error) {
	op := input
	for _, item := range c.Items {
		sym, err := p.lookup(item.Target)
		if err != nil {
			return nil, err
		}
		if item.Property != "" {
			op = NewRemoveProperty(op, sym, item.Property)
		} else {
			op = NewRemoveLabels(op, sym, item.Labels)
		}
	}
	return op, nil
}

// projection lowers WITH and RETURN: aggregation or plain evaluation,
// then DISTINCT, ORDER BY, SKIP, LIMIT, with Produce as the row-emitting
// top and a WITH filter above it.
func (p *planner) projection(input Operator, body *frontend.ProjectionBody, where frontend.Ref) (Operator, error) {
	if TreeWrites(input) {
		input = NewAccumulate(input, append([]int(nil), p.boundOrder...), true)
	}

	items := make([]ProduceItem, 0, len(body.Items))
	symbolsOut := make([]int, 0, len(body.Items))
	aggregating := false
	for _, it := range body.Items {
		ne := p.st.Node(it).(*frontend.NamedExpr)
		if ContainsAggregate(p.st, ne.Expr) {
			aggregating = true
		}
		sym, err := p.lookup(ne.Name)
		if err != nil {
			return nil, err
		}
		items = append(items, ProduceItem{Name: ne.Name, TokenPos: ne.TokenPos, Expr: ne.Expr, Symbol: sym})
		symbolsOut = append(symbolsOut, sym)
	}

	op := input
	if aggregating {
		var groups []GroupItem
		var aggs []AggregationItem
		for i := range items {
			ne := p.st.Node(body.Items[i]).(*frontend.NamedExpr)
			if IsAggregateCall(p.st, ne.Expr) {
				call := p.st.Node(ne.Expr).(*frontend.FunctionCall)
				for _, a := range call.Args {
					if ContainsAggregate(p.st, a) {
						return nil, &PlanError{Message: "aggregations cannot be nested"}
					}
				}
				item, err := aggregationItem(call, items[i].Symbol)
				if err != nil {
					return nil, err
				}
				aggs = append(aggs, item)
			} else if ContainsAggregate(p.st, ne.Expr) {
				return nil, &PlanError{Message: "aggregations must be top-level projection items"}
			} else {
				groups = append(groups, GroupItem{Expr: ne.Expr, Symbol: items[i].Symbol})
			}
			items[i].Expr = frontend.NilRef
		}
		op = NewAggregate(op, groups, aggs)
	}

	modifiers := body.Distinct || len(body.Order) > 0 ||
		body.Skip != frontend.NilRef || body.Limit != frontend.NilRef
	if modifiers && !aggregating {
		// Bind the output names early so the modifiers can see them.
		op = NewProjection(op, append([]ProduceItem(nil), items...))
		for i := range items {
			items[i].Expr = frontend.NilRef
		}
	}
	if body.Distinct {
		op = NewDistinct(op, symbolsOut)
	}
	if len(body.Order) > 0 {
		keys := make([]SortKey, len(body.Order))
		for i, s := range body.Order {
			keys[i] = SortKey{Expr: s.Expr, Ascending: s.Ascending}
		}
		op = NewOrderBy(op, keys)
	}
	if body.Skip != frontend.NilRef {
		op = NewSkip(op, body.Skip)
	}
	if body.Limit != frontend.NilRef {
		op = NewLimit(op, body.Limit)
	}

	op = NewProduce(op, items)
	for _, sym := range symbolsOut {
		p.bind(sym)
	}
	if where != frontend.NilRef {
		op = NewFilter(op, where)
	}
	return op, nil
}

func aggregationItem(call *frontend.FunctionCall, symbol int) (AggregationItem, error) {
	item := AggregationItem{Distinct: call.Distinct, Symbol: symbol, Expr: frontend.NilRef}
	if len(call.Args) == 1 {
		item.Expr = call.Args[0]
	}
	switch call.Name {
	case "count":
		if call.Star {
			item.Kind = AggregationCountStar
		} else {
			item.Kind = AggregationCount
		}
	case "sum":
		item.Kind = AggregationSum
	case "avg":
		item.Kind = AggregationAvg
	case "min":
		item.Kind = AggregationMin
	case "max":
		item.Kind = AggregationMax
	case "collect":
		item.Kind = AggregationCollect
	}
	if item.Kind != AggregationCountStar && item.Expr == frontend.NilRef {
		return item, &PlanError{Message: call.Name + " takes exactly one argument"}
	}
	return item, nil
}
