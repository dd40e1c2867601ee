package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/value"
)

// evalExpr parses "RETURN <src>" and evaluates the projected expression
// against an empty frame.
func evalExpr(t *testing.T, src string) (value.Value, error) {
	t.Helper()
	st, root, err := frontend.Parse("RETURN " + src)
	require.NoError(t, err)
	table, err := frontend.GenerateSymbols(st, root)
	require.NoError(t, err)
	q := st.Node(root).(*frontend.Query)
	ret := st.Node(q.Clauses[0]).(*frontend.ReturnClause)
	ne := st.Node(ret.Body.Items[0]).(*frontend.NamedExpr)
	ctx := &Context{Ctx: context.Background(), Storage: st, Symbols: table}
	return Evaluate(ne.Expr, NewFrame(table.MaxPosition()), ctx)
}

func mustEval(t *testing.T, src string) value.Value {
	t.Helper()
	v, err := evalExpr(t, src)
	require.NoError(t, err)
	return v
}

func TestEvaluateArithmetic(t *testing.T) {
	assert.Equal(t, int64(7), mustEval(t, "1 + 2 * 3").AsInt())
	assert.Equal(t, 2.5, mustEval(t, "5 / 2.0").AsFloat())
	assert.Equal(t, int64(1), mustEval(t, "7 % 3").AsInt())
	assert.Equal(t, int64(-4), mustEval(t, "-4").AsInt())
}

func TestEvaluateDivisionByZero(t *testing.T) {
	_, err := evalExpr(t, "1 / 0")
	assert.Error(t, err)
}

func TestEvaluateThreeValuedLogic(t *testing.T) {
	assert.True(t, mustEval(t, "true OR null").AsBool())
	assert.True(t, mustEval(t, "null OR true").AsBool())
	assert.False(t, mustEval(t, "false AND null").AsBool())
	assert.True(t, mustEval(t, "null AND false").IsNull() == false)
	assert.False(t, mustEval(t, "null AND false").AsBool())
	assert.True(t, mustEval(t, "null AND true").IsNull())
	assert.True(t, mustEval(t, "null XOR true").IsNull())
	assert.True(t, mustEval(t, "NOT null").IsNull())
}

func TestEvaluateComparisonsWithNull(t *testing.T) {
	assert.True(t, mustEval(t, "1 = null").IsNull())
	assert.True(t, mustEval(t, "null <> null").IsNull())
	assert.True(t, mustEval(t, "1 < 2").AsBool())
	assert.False(t, mustEval(t, "2 <= 1").AsBool())
}

func TestEvaluateInOperator(t *testing.T) {
	assert.True(t, mustEval(t, "2 IN [1, 2, 3]").AsBool())
	assert.False(t, mustEval(t, "5 IN [1, 2, 3]").AsBool())
	// Unmatched with a null member is unknown, not false.
	assert.True(t, mustEval(t, "5 IN [1, null]").IsNull())
	assert.True(t, mustEval(t, "1 IN [1, null]").AsBool())
}

func TestEvaluateFunctions(t *testing.T) {
	assert.Equal(t, int64(3), mustEval(t, "size([1, 2, 3])").AsInt())
	assert.Equal(t, int64(1), mustEval(t, "head([1, 2])").AsInt())
	assert.Equal(t, int64(2), mustEval(t, "last([1, 2])").AsInt())
	assert.Equal(t, int64(4), mustEval(t, "abs(-4)").AsInt())
	assert.Equal(t, "ABC", mustEval(t, "toUpper('abc')").AsString())
	assert.Equal(t, "abc", mustEval(t, "toLower('ABC')").AsString())
	assert.Equal(t, int64(2), mustEval(t, "coalesce(null, 2, 3)").AsInt())
	assert.Equal(t, int64(42), mustEval(t, "toInteger('42')").AsInt())
	assert.Equal(t, "42", mustEval(t, "toString(42)").AsString())

	r := mustEval(t, "range(1, 5, 2)")
	require.Equal(t, value.TypeList, r.Type())
	items := r.AsList()
	require.Len(t, items, 3)
	assert.Equal(t, int64(5), items[2].AsInt())
}

func TestEvaluateUnknownFunction(t *testing.T) {
	_, err := evalExpr(t, "frobnicate(1)")
	assert.Error(t, err)
}
