package plan

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/value"
)

// aggregateFunctions are handled by the Aggregate operator, never by the
// plain evaluator.
var aggregateFunctions = map[string]bool{
	"count": true, "sum": true, "avg": true,
	"min": true, "max": true, "collect": true,
}

// IsAggregateCall reports whether the expression at ref is a call to an
// aggregating function.
func IsAggregateCall(st *frontend.AstStorage, ref frontend.Ref) bool {
	call, ok := st.Node(ref).(*frontend.FunctionCall)
	return ok && aggregateFunctions[call.Name]
}

// ContainsAggregate reports whether any sub-expression aggregates.
func ContainsAggregate(st *frontend.AstStorage, ref frontend.Ref) bool {
	if ref == frontend.NilRef {
		return false
	}
	switch e := st.Node(ref).(type) {
	case *frontend.FunctionCall:
		if aggregateFunctions[e.Name] {
			return true
		}
		for _, a := range e.Args {
			if ContainsAggregate(st, a) {
				return true
			}
		}
	case *frontend.Unary:
		return ContainsAggregate(st, e.Operand)
	case *frontend.Binary:
		return ContainsAggregate(st, e.L) || ContainsAggregate(st, e.R)
	case *frontend.PropertyLookup:
		return ContainsAggregate(st, e.Expr)
	case *frontend.ListLiteral:
		for _, it := range e.Items {
			if ContainsAggregate(st, it) {
				return true
			}
		}
	case *frontend.MapLiteral:
		for _, v := range e.Values {
			if ContainsAggregate(st, v) {
				return true
			}
		}
	}
	return false
}

// Evaluate computes the expression at ref against a frame.
func Evaluate(ref frontend.Ref, f Frame, ctx *Context) (value.Value, error) {
	switch e := ctx.Storage.Node(ref).(type) {
	case *frontend.Literal:
		return e.Value, nil
	case *frontend.Parameter:
		return ctx.Params.Resolve(e)
	case *frontend.Identifier:
		sym, ok := ctx.Symbols.Lookup(e.Name)
		if !ok {
			return value.Null, &RuntimeError{Message: fmt.Sprintf("unbound variable %q", e.Name)}
		}
		return f[sym.Position], nil
	case *frontend.PropertyLookup:
		return evalPropertyLookup(e, f, ctx)
	case *frontend.Unary:
		return evalUnary(e, f, ctx)
	case *frontend.Binary:
		return evalBinary(e, f, ctx)
	case *frontend.ListLiteral:
		items := make([]value.Value, len(e.Items))
		for i, it := range e.Items {
			v, err := Evaluate(it, f, ctx)
			if err != nil {
				return value.Null, err
			}
			items[i] = v
		}
		return value.List(items...), nil
	case *frontend.MapLiteral:
		m := make(map[string]value.Value, len(e.Keys))
		for i, k := range e.Keys {
			v, err := Evaluate(e.Values[i], f, ctx)
			if err != nil {
				return value.Null, err
			}
			m[k] = v
		}
		return value.Map(m), nil
	case *frontend.FunctionCall:
		return evalFunction(e, f, ctx)
	}
	return value.Null, &RuntimeError{Message: "unexpected expression node"}
}

func evalPropertyLookup(e *frontend.PropertyLookup, f Frame, ctx *Context) (value.Value, error) {
	inner, err := Evaluate(e.Expr, f, ctx)
	if err != nil {
		return value.Null, err
	}
	switch inner.Type() {
	case value.TypeNull:
		return value.Null, nil
	case value.TypeVertex:
		p, ok := inner.AsVertex().Properties[e.Key]
		if !ok {
			return value.Null, nil
		}
		return value.FromProperty(p)
	case value.TypeEdge:
		p, ok := inner.AsEdge().Properties[e.Key]
		if !ok {
			return value.Null, nil
		}
		return value.FromProperty(p)
	case value.TypeMap:
		v, ok := inner.AsMap()[e.Key]
		if !ok {
			return value.Null, nil
		}
		return v, nil
	}
	return value.Null, &RuntimeError{
		Message: fmt.Sprintf("property lookup on %s value", inner.Type()),
	}
}

func evalUnary(e *frontend.Unary, f Frame, ctx *Context) (value.Value, error) {
	operand, err := Evaluate(e.Operand, f, ctx)
	if err != nil {
		return value.Null, err
	}
	switch e.Op {
	case frontend.UnaryMinus:
		return value.Negate(operand)
	case frontend.UnaryNot:
		if operand.IsNull() {
			return value.Null, nil
		}
		if operand.Type() != value.TypeBool {
			return value.Null, &RuntimeError{
				Message: fmt.Sprintf("NOT applied to %s value", operand.Type()),
			}
		}
		return value.Bool(!operand.AsBool()), nil
	}
	return value.Null, &RuntimeError{Message: "unknown unary operator"}
}

func evalBinary(e *frontend.Binary, f Frame, ctx *Context) (value.Value, error) {
	l, err := Evaluate(e.L, f, ctx)
	if err != nil {
		return value.Null, err
	}
	r, err := Evaluate(e.R, f, ctx)
	if err != nil {
		return value.Null, err
	}
	switch e.Op {
	case frontend.BinaryAdd:
		return value.Add(l, r)
	case frontend.BinarySub:
		return value.Subtract(l, r)
	case frontend.BinaryMul:
		return value.Multiply(l, r)
	case frontend.BinaryDiv:
		return value.Divide(l, r)
	case frontend.BinaryMod:
		return value.Modulo(l, r)
	case frontend.BinaryEq:
		return value.Equals(l, r), nil
	case frontend.BinaryNe:
		eq := value.Equals(l, r)
		if eq.IsNull() {
			return value.Null, nil
		}
		return value.Bool(!eq.AsBool()), nil
	case frontend.BinaryLt:
		return value.Less(l, r)
	case frontend.BinaryGt:
		return value.Less(r, l)
	case frontend.BinaryLe:
		return negated(value.Less(r, l))
	case frontend.BinaryGe:
		return negated(value.Less(l, r))
	case frontend.BinaryAnd:
		return evalAnd(l, r)
	case frontend.BinaryOr:
		return evalOr(l, r)
	case frontend.BinaryXor:
		return evalXor(l, r)
	case frontend.BinaryIn:
		return evalIn(l, r)
	}
	return value.Null, &RuntimeError{Message: "unknown binary operator"}
}

func negated(v value.Value, err error) (value.Value, error) {
	if err != nil || v.IsNull() {
		return v, err
	}
	return value.Bool(!v.AsBool()), nil
}

func boolOrNull(v value.Value) (b, null bool, err error) {
	if v.IsNull() {
		return false, true, nil
	}
	if v.Type() != value.TypeBool {
		return false, false, &RuntimeError{
			Message: fmt.Sprintf("logical operator applied to %s value", v.Type()),
		}
	}
	return v.AsBool(), false, nil
}

func evalAnd(l, r value.Value) (value.Value, error) {
	lb, ln, err := boolOrNull(l)
	if err != nil {
		return value.Null, err
	}
	rb, rn, err := boolOrNull(r)
	if err != nil {
		return value.Null, err
	}
	switch {
	case !ln && !lb, !rn && !rb:
		return value.Bool(false), nil
	case ln || rn:
		return value.Null, nil
	}
	return value.Bool(true), nil
}

func evalOr(l, r value.Value) (value.Value, error) {
	lb, ln, err := boolOrNull(l)
	if err != nil {
		return value.Null, err
	}
	rb, rn, err := boolOrNull(r)
	if err != nil {
		return value.Null, err
	}
	switch {
	case !ln && lb, !rn && rb:
		return value.Bool(true), nil
	case ln || rn:
		return value.Null, nil
	}
	return value.Bool(false), nil
}

func evalXor(l, r value.Value) (value.Value, error) {
	lb, ln, err := boolOrNull(l)
	if err != nil {
		return value.Null, err
	}
	rb, rn, err := boolOrNull(r)
	if err != nil {
		return value.Null, err
	}
	if ln || rn {
		return value.Null, nil
	}
	return value.Bool(lb != rb), nil
}

func evalIn(l, r value.Value) (value.Value, error) {
	if r.IsNull() {
		return value.Null, nil
	}
	if r.Type() != value.TypeList {
		return value.Null, &RuntimeError{
			Message: fmt.Sprintf("IN applied to %s value", r.Type()),
		}
	}
	sawNull := l.IsNull()
	for _, item := range r.AsList() {
		eq := value.Equals(l, item)
		if eq.IsNull() {
			sawNull = true
			continue
		}
		if eq.AsBool() {
			return value.Bool(true), nil
		}
	}
	if sawNull {
		return value.Null, nil
	}
	return value.Bool(false), nil
}

// Truthy implements predicate semantics: null counts as false, non-bool
// values are a type error.
func Truthy(v value.Value) (bool, error) {
	if v.IsNull() {
		return false, nil
	}
	if v.Type() != value.TypeBool {
		return false, &RuntimeError{
			Message: fmt.Sprintf("predicate evaluated to %s value", v.Type()),
		}
	}
	return v.AsBool(), nil
}

func evalFunction(call *frontend.FunctionCall, f Frame, ctx *Context) (value.Value, error) {
	if aggregateFunctions[call.Name] {
		return value.Null, &RuntimeError{
			Message: fmt.Sprintf("aggregate function %s used outside a projection", call.Name),
		}
	}
	args := make([]value.Value, len(call.Args))
	for i, a := range call.Args {
		v, err := Evaluate(a, f, ctx)
		if err != nil {
			return value.Null, err
		}
		args[i] = v
	}
	fn, ok := builtins[call.Name]
	if !ok {
		return value.Null, &RuntimeError{Message: fmt.Sprintf("unknown function %s", call.Name)}
	}
	return fn(args, ctx)
}

type builtin func(args []value.Value, ctx *Context) (value.Value, error)

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"id":            fnID,
		"labels":        fnLabels,
		"type":          fnType,
		"properties":    fnProperties,
		"keys":          fnKeys,
		"size":          fnSize,
		"length":        fnLength,
		"head":          fnHead,
		"last":          fnLast,
		"range":         fnRange,
		"coalesce":      fnCoalesce,
		"abs":           fnAbs,
		"tointeger":     fnToInteger,
		"tofloat":       fnToFloat,
		"tostring":      fnToString,
		"toupper":       fnToUpper,
		"tolower":       fnToLower,
		"trim":          fnTrim,
		"startnode":     fnStartNode,
		"endnode":       fnEndNode,
		"nodes":         fnNodes,
		"relationships": fnRelationships,
	}
}

func argCount(name string, args []value.Value, want int) error {
	if len(args) != want {
		return &RuntimeError{Message: fmt.Sprintf("%s expects %d argument(s), got %d", name, want, len(args))}
	}
	return nil
}

func fnID(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("id", args, 1); err != nil {
		return value.Null, err
	}
	switch args[0].Type() {
	case value.TypeNull:
		return value.Null, nil
	case value.TypeVertex:
		return value.String(string(args[0].AsVertex().ID)), nil
	case value.TypeEdge:
		return value.String(string(args[0].AsEdge().ID)), nil
	}
	return value.Null, &RuntimeError{Message: "id expects a node or relationship"}
}

func fnLabels(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("labels", args, 1); err != nil {
		return value.Null, err
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if args[0].Type() != value.TypeVertex {
		return value.Null, &RuntimeError{Message: "labels expects a node"}
	}
	n := args[0].AsVertex()
	out := make([]value.Value, len(n.Labels))
	for i, l := range n.Labels {
		out[i] = value.String(l)
	}
	return value.List(out...), nil
}

func fnType(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("type", args, 1); err != nil {
		return value.Null, err
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if args[0].Type() != value.TypeEdge {
		return value.Null, &RuntimeError{Message: "type expects a relationship"}
	}
	return value.String(args[0].AsEdge().Type), nil
}

func fnProperties(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("properties", args, 1); err != nil {
		return value.Null, err
	}
	var props map[string]any
	switch args[0].Type() {
	case value.TypeNull:
		return value.Null, nil
	case value.TypeVertex:
		props = args[0].AsVertex().Properties
	case value.TypeEdge:
		props = args[0].AsEdge().Properties
	default:
		return value.Null, &RuntimeError{Message: "properties expects a node or relationship"}
	}
	m := make(map[string]value.Value, len(props))
	for k, p := range props {
		v, err := value.FromProperty(p)
		if err != nil {
			return value.Null, err
		}
		m[k] = v
	}
	return value.Map(m), nil
}

func fnKeys(args []value.Value, ctx *Context) (value.Value, error) {
	v, err := fnProperties(args, ctx)
	if err != nil || v.IsNull() {
		return v, err
	}
	keys := make([]string, 0, len(v.AsMap()))
	for k := range v.AsMap() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]value.Value, len(keys))
	for i, k := range keys {
		out[i] = value.String(k)
	}
	return value.List(out...), nil
}

func fnSize(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("size", args, 1); err != nil {
		return value.Null, err
	}
	switch args[0].Type() {
	case value.TypeNull:
		return value.Null, nil
	case value.TypeList:
		return value.Int(int64(len(args[0].AsList()))), nil
	case value.TypeString:
		return value.Int(int64(len(args[0].AsString()))), nil
	case value.TypeMap:
		return value.Int(int64(len(args[0].AsMap()))), nil
	}
	return value.Null, &RuntimeError{Message: "size expects a list, string or map"}
}

func fnLength(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("length", args, 1); err != nil {
		return value.Null, err
	}
	switch args[0].Type() {
	case value.TypeNull:
		return value.Null, nil
	case value.TypePath:
		return value.Int(int64(len(args[0].AsPath().Edges))), nil
	case value.TypeList:
		return value.Int(int64(len(args[0].AsList()))), nil
	}
	return value.Null, &RuntimeError{Message: "length expects a path or list"}
}

func fnHead(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("head", args, 1); err != nil {
		return value.Null, err
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if args[0].Type() != value.TypeList {
		return value.Null, &RuntimeError{Message: "head expects a list"}
	}
	list := args[0].AsList()
	if len(list) == 0 {
		return value.Null, nil
	}
	return list[0], nil
}

func fnLast(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("last", args, 1); err != nil {
		return value.Null, err
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if args[0].Type() != value.TypeList {
		return value.Null, &RuntimeError{Message: "last expects a list"}
	}
	list := args[0].AsList()
	if len(list) == 0 {
		return value.Null, nil
	}
	return list[len(list)-1], nil
}

func fnRange(args []value.Value, _ *Context) (value.Value, error) {
	if len(args) != 2 && len(args) != 3 {
		return value.Null, &RuntimeError{Message: "range expects 2 or 3 arguments"}
	}
	step := int64(1)
	if len(args) == 3 {
		if args[2].Type() != value.TypeInt {
			return value.Null, &RuntimeError{Message: "range step must be an integer"}
		}
		step = args[2].AsInt()
		if step == 0 {
			return value.Null, &RuntimeError{Message: "range step must not be zero"}
		}
	}
	if args[0].Type() != value.TypeInt || args[1].Type() != value.TypeInt {
		return value.Null, &RuntimeError{Message: "range bounds must be integers"}
	}
	lo, hi := args[0].AsInt(), args[1].AsInt()
	var out []value.Value
	if step > 0 {
		for i := lo; i <= hi; i += step {
			out = append(out, value.Int(i))
		}
	} else {
		for i := lo; i >= hi; i += step {
			out = append(out, value.Int(i))
		}
	}
	return value.List(out...), nil
}

func fnCoalesce(args []value.Value, _ *Context) (value.Value, error) {
	for _, a := range args {
		if !a.IsNull() {
			return a, nil
		}
	}
	return value.Null, nil
}

func fnAbs(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("abs", args, 1); err != nil {
		return value.Null, err
	}
	switch args[0].Type() {
	case value.TypeNull:
		return value.Null, nil
	case value.TypeInt:
		i := args[0].AsInt()
		if i < 0 {
			i = -i
		}
		return value.Int(i), nil
	case value.TypeFloat:
		return value.Float(math.Abs(args[0].AsFloat())), nil
	}
	return value.Null, &RuntimeError{Message: "abs expects a number"}
}

func fnToInteger(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("tointeger", args, 1); err != nil {
		return value.Null, err
	}
	switch args[0].Type() {
	case value.TypeNull:
		return value.Null, nil
	case value.TypeInt:
		return args[0], nil
	case value.TypeFloat:
		return value.Int(int64(args[0].AsFloat())), nil
	case value.TypeString:
		i, err := strconv.ParseInt(strings.TrimSpace(args[0].AsString()), 10, 64)
		if err != nil {
			return value.Null, nil
		}
		return value.Int(i), nil
	}
	return value.Null, &RuntimeError{Message: "tointeger expects a number or string"}
}

func fnToFloat(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("tofloat", args, 1); err != nil {
		return value.Null, err
	}
	switch args[0].Type() {
	case value.TypeNull:
		return value.Null, nil
	case value.TypeInt:
		return value.Float(float64(args[0].AsInt())), nil
	case value.TypeFloat:
		return args[0], nil
	case value.TypeString:
		f, err := strconv.ParseFloat(strings.TrimSpace(args[0].AsString()), 64)
		if err != nil {
			return value.Null, nil
		}
		return value.Float(f), nil
	}
	return value.Null, &RuntimeError{Message: "tofloat expects a number or string"}
}

func fnToString(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("tostring", args, 1); err != nil {
		return value.Null, err
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	return value.String(args[0].String()), nil
}

func fnToUpper(args []value.Value, _ *Context) (value.Value, error) {
	return stringFn("toupper", args, strings.ToUpper)
}

func fnToLower(args []value.Value, _ *Context) (value.Value, error) {
	return stringFn("tolower", args, strings.ToLower)
}

func fnTrim(args []value.Value, _ *Context) (value.Value, error) {
	return stringFn("trim", args, strings.TrimSpace)
}

func stringFn(name string, args []value.Value, fn func(string) string) (value.Value, error) {
	if err := argCount(name, args, 1); err != nil {
		return value.Null, err
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if args[0].Type() != value.TypeString {
		return value.Null, &RuntimeError{Message: name + " expects a string"}
	}
	return value.String(fn(args[0].AsString())), nil
}

func fnStartNode(args []value.Value, ctx *Context) (value.Value, error) {
	return edgeEndpoint("startnode", args, ctx, true)
}

func fnEndNode(args []value.Value, ctx *Context) (value.Value, error) {
	return edgeEndpoint("endnode", args, ctx, false)
}

func edgeEndpoint(name string, args []value.Value, ctx *Context, start bool) (value.Value, error) {
	if err := argCount(name, args, 1); err != nil {
		return value.Null, err
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if args[0].Type() != value.TypeEdge {
		return value.Null, &RuntimeError{Message: name + " expects a relationship"}
	}
	e := args[0].AsEdge()
	id := e.StartNode
	if !start {
		id = e.EndNode
	}
	n, err := ctx.Acc.GetVertex(id)
	if err != nil {
		return value.Null, err
	}
	return value.Vertex(n), nil
}

func fnNodes(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("nodes", args, 1); err != nil {
		return value.Null, err
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if args[0].Type() != value.TypePath {
		return value.Null, &RuntimeError{Message: "nodes expects a path"}
	}
	p := args[0].AsPath()
	out := make([]value.Value, len(p.Vertices))
	for i, n := range p.Vertices {
		out[i] = value.Vertex(n)
	}
	return value.List(out...), nil
}

func fnRelationships(args []value.Value, _ *Context) (value.Value, error) {
	if err := argCount("relationships", args, 1); err != nil {
		return value.Null, err
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if args[0].Type() != value.TypePath {
		return value.Null, &RuntimeError{Message: "relationships expects a path"}
	}
	p := args[0].AsPath()
	out := make([]value.Value, len(p.Edges))
	for i, e := range p.Edges {
		out[i] = value.Edge(e)
	}
	return value.List(out...), nil
}
