package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

func mustParse(t *testing.T, src string) (*AstStorage, *Query) {
	t.Helper()
	st, root, err := Parse(src)
	require.NoError(t, err)
	q, ok := st.Node(root).(*Query)
	require.True(t, ok, "root should be *Query")
	return st, q
}

func TestParseMatchReturn(t *testing.T) {
	st, q := mustParse(t, "MATCH (n:Person {name: 'Alice'}) RETURN n.name AS name")
	require.Len(t, q.Clauses, 2)

	m := st.Node(q.Clauses[0]).(*MatchClause)
	assert.False(t, m.Optional)
	require.Len(t, m.Patterns, 1)
	p := st.Node(m.Patterns[0]).(*Pattern)
	require.Len(t, p.Nodes, 1)
	n := st.Node(p.Nodes[0]).(*NodePattern)
	assert.Equal(t, "n", n.Variable)
	assert.Equal(t, []string{"Person"}, n.Labels)
	props := st.Node(n.Props).(*MapLiteral)
	assert.Equal(t, []string{"name"}, props.Keys)

	r := st.Node(q.Clauses[1]).(*ReturnClause)
	require.Len(t, r.Body.Items, 1)
	ne := st.Node(r.Body.Items[0]).(*NamedExpr)
	assert.Equal(t, "name", ne.Name)
	lookup := st.Node(ne.Expr).(*PropertyLookup)
	assert.Equal(t, "name", lookup.Key)
}

func TestParseReturnItemNameFallsBackToSource(t *testing.T) {
	st, q := mustParse(t, "MATCH (n) RETURN n.age + 1")
	r := st.Node(q.Clauses[1]).(*ReturnClause)
	ne := st.Node(r.Body.Items[0]).(*NamedExpr)
	assert.Equal(t, "n.age + 1", ne.Name)
}

func TestParseEdgeDirections(t *testing.T) {
	cases := []struct {
		src  string
		want storage.Direction
	}{
		{"MATCH (a)-[r:KNOWS]->(b) RETURN r", storage.DirectionOut},
		{"MATCH (a)<-[r:KNOWS]-(b) RETURN r", storage.DirectionIn},
		{"MATCH (a)-[r:KNOWS]-(b) RETURN r", storage.DirectionBoth},
	}
	for _, tc := range cases {
		st, q := mustParse(t, tc.src)
		m := st.Node(q.Clauses[0]).(*MatchClause)
		p := st.Node(m.Patterns[0]).(*Pattern)
		require.Len(t, p.Edges, 1)
		e := st.Node(p.Edges[0]).(*EdgePattern)
		assert.Equal(t, tc.want, e.Direction, tc.src)
		assert.Equal(t, []string{"KNOWS"}, e.Types)
	}
}

func TestParseVariableLengthEdge(t *testing.T) {
	st, q := mustParse(t, "MATCH (a)-[:KNOWS*1..3]->(b) RETURN b")
	m := st.Node(q.Clauses[0]).(*MatchClause)
	p := st.Node(m.Patterns[0]).(*Pattern)
	e := st.Node(p.Edges[0]).(*EdgePattern)
	assert.True(t, e.Variable_)
	assert.False(t, e.BFS)
	lo := st.Node(e.MinHops).(*Literal)
	hi := st.Node(e.MaxHops).(*Literal)
	assert.Equal(t, value.Int(1), lo.Value)
	assert.Equal(t, value.Int(3), hi.Value)
}

func TestParseSingleHopPinsBounds(t *testing.T) {
	st, q := mustParse(t, "MATCH (a)-[*2]->(b) RETURN b")
	m := st.Node(q.Clauses[0]).(*MatchClause)
	p := st.Node(m.Patterns[0]).(*Pattern)
	e := st.Node(p.Edges[0]).(*EdgePattern)
	assert.Equal(t, e.MinHops, e.MaxHops)
}

func TestParseBFSEdge(t *testing.T) {
	st, q := mustParse(t, "MATCH (a)-[*bfs..5]->(b) RETURN b")
	m := st.Node(q.Clauses[0]).(*MatchClause)
	p := st.Node(m.Patterns[0]).(*Pattern)
	e := st.Node(p.Edges[0]).(*EdgePattern)
	assert.True(t, e.BFS)
	assert.Equal(t, NilRef, e.MinHops)
	assert.NotEqual(t, NilRef, e.MaxHops)
}

func TestParseNamedPath(t *testing.T) {
	st, q := mustParse(t, "MATCH p = (a)-[:KNOWS]->(b) RETURN p")
	m := st.Node(q.Clauses[0]).(*MatchClause)
	p := st.Node(m.Patterns[0]).(*Pattern)
	assert.Equal(t, "p", p.Name)
}

func TestParseProjectionModifiers(t *testing.T) {
	st, q := mustParse(t,
		"MATCH (n) RETURN DISTINCT n.name ORDER BY n.age DESC, n.name SKIP 2 LIMIT 5")
	r := st.Node(q.Clauses[1]).(*ReturnClause)
	assert.True(t, r.Body.Distinct)
	require.Len(t, r.Body.Order, 2)
	assert.False(t, r.Body.Order[0].Ascending)
	assert.True(t, r.Body.Order[1].Ascending)
	assert.NotEqual(t, NilRef, r.Body.Skip)
	assert.NotEqual(t, NilRef, r.Body.Limit)
}

func TestParseSetForms(t *testing.T) {
	st, q := mustParse(t,
		"MATCH (n) SET n.age = 31, n = {a: 1}, n += {b: 2}, n:Admin:Owner")
	s := st.Node(q.Clauses[1]).(*SetClause)
	require.Len(t, s.Items, 4)
	assert.Equal(t, SetItemProperty, s.Items[0].Kind)
	assert.Equal(t, "age", s.Items[0].Property)
	assert.Equal(t, SetItemProperties, s.Items[1].Kind)
	assert.Equal(t, SetItemMerge, s.Items[2].Kind)
	assert.Equal(t, SetItemLabels, s.Items[3].Kind)
	assert.Equal(t, []string{"Admin", "Owner"}, s.Items[3].Labels)
}

func TestParseRemoveForms(t *testing.T) {
	st, q := mustParse(t, "MATCH (n) REMOVE n.age, n:Admin")
	r := st.Node(q.Clauses[1]).(*RemoveClause)
	require.Len(t, r.Items, 2)
	assert.Equal(t, "age", r.Items[0].Property)
	assert.Equal(t, []string{"Admin"}, r.Items[1].Labels)
}

func TestParseDeleteDetach(t *testing.T) {
	st, q := mustParse(t, "MATCH (n) DETACH DELETE n")
	d := st.Node(q.Clauses[1]).(*DeleteClause)
	assert.True(t, d.Detach)
	require.Len(t, d.Exprs, 1)
}

func TestParseUnwind(t *testing.T) {
	st, q := mustParse(t, "UNWIND [1, 2, 3] AS x RETURN x")
	u := st.Node(q.Clauses[0]).(*UnwindClause)
	assert.Equal(t, "x", u.Alias)
	list := st.Node(u.Expr).(*ListLiteral)
	assert.Len(t, list.Items, 3)
}

func TestParseMerge(t *testing.T) {
	st, q := mustParse(t, "MERGE (n:Person {name: 'Bob'}) RETURN n")
	m := st.Node(q.Clauses[0]).(*MergeClause)
	assert.NotEqual(t, NilRef, m.Pattern)
}

func TestParseIndexStatements(t *testing.T) {
	st, q := mustParse(t, "CREATE INDEX ON :Person(age)")
	c := st.Node(q.Clauses[0]).(*CreateIndexClause)
	assert.Equal(t, "Person", c.Label)
	assert.Equal(t, "age", c.Property)

	st, q = mustParse(t, "DROP INDEX ON :Person(age)")
	d := st.Node(q.Clauses[0]).(*DropIndexClause)
	assert.Equal(t, "Person", d.Label)
}

func TestParseAuthStatements(t *testing.T) {
	st, q := mustParse(t, "CREATE USER alice PASSWORD 'secret'")
	a := st.Node(q.Clauses[0]).(*AuthClause)
	assert.Equal(t, AuthCreateUser, a.Action)
	assert.Equal(t, "alice", a.User)
	lit := st.Node(a.Password).(*Literal)
	assert.Equal(t, value.String("secret"), lit.Value)

	st, q = mustParse(t, "DROP USER alice")
	a = st.Node(q.Clauses[0]).(*AuthClause)
	assert.Equal(t, AuthDropUser, a.Action)
}

func TestParseStreamStatements(t *testing.T) {
	st, q := mustParse(t,
		"CREATE STREAM feed TOPIC 'events' TRANSFORM 'ingest' BATCH_SIZE 50")
	s := st.Node(q.Clauses[0]).(*StreamClause)
	assert.Equal(t, StreamCreate, s.Action)
	assert.Equal(t, "feed", s.Name)
	assert.NotEqual(t, NilRef, s.Topic)
	assert.NotEqual(t, NilRef, s.BatchSize)

	st, q = mustParse(t, "START ALL STREAMS")
	s = st.Node(q.Clauses[0]).(*StreamClause)
	assert.Equal(t, StreamStartAll, s.Action)

	st, q = mustParse(t, "STOP STREAM feed")
	s = st.Node(q.Clauses[0]).(*StreamClause)
	assert.Equal(t, StreamStop, s.Action)
	assert.Equal(t, "feed", s.Name)
}

func TestParseExplain(t *testing.T) {
	st, root, err := Parse("EXPLAIN MATCH (n) RETURN n")
	require.NoError(t, err)
	e, ok := st.Node(root).(*ExplainClause)
	require.True(t, ok)
	_, ok = st.Node(e.Inner).(*Query)
	assert.True(t, ok)
}

func TestParseExpressionPrecedence(t *testing.T) {
	st, q := mustParse(t, "RETURN 1 + 2 * 3 = 7 AND NOT false")
	r := st.Node(q.Clauses[0]).(*ReturnClause)
	ne := st.Node(r.Body.Items[0]).(*NamedExpr)

	and := st.Node(ne.Expr).(*Binary)
	require.Equal(t, BinaryAnd, and.Op)
	eq := st.Node(and.L).(*Binary)
	require.Equal(t, BinaryEq, eq.Op)
	add := st.Node(eq.L).(*Binary)
	require.Equal(t, BinaryAdd, add.Op)
	mul := st.Node(add.R).(*Binary)
	assert.Equal(t, BinaryMul, mul.Op)
	not := st.Node(and.R).(*Unary)
	assert.Equal(t, UnaryNot, not.Op)
}

func TestParseInOperator(t *testing.T) {
	st, q := mustParse(t, "RETURN 2 IN [1, 2, 3]")
	r := st.Node(q.Clauses[0]).(*ReturnClause)
	ne := st.Node(r.Body.Items[0]).(*NamedExpr)
	in := st.Node(ne.Expr).(*Binary)
	assert.Equal(t, BinaryIn, in.Op)
}

func TestParseFunctionCalls(t *testing.T) {
	st, q := mustParse(t, "MATCH (n) RETURN count(*), collect(DISTINCT n.name), toUpper(n.name)")
	r := st.Node(q.Clauses[1]).(*ReturnClause)
	require.Len(t, r.Body.Items, 3)

	star := st.Node(st.Node(r.Body.Items[0]).(*NamedExpr).Expr).(*FunctionCall)
	assert.True(t, star.Star)
	assert.Equal(t, "count", star.Name)

	coll := st.Node(st.Node(r.Body.Items[1]).(*NamedExpr).Expr).(*FunctionCall)
	assert.True(t, coll.Distinct)

	upper := st.Node(st.Node(r.Body.Items[2]).(*NamedExpr).Expr).(*FunctionCall)
	assert.Equal(t, "toupper", upper.Name)
}

func TestParseParameters(t *testing.T) {
	st, q := mustParse(t, "MATCH (n) WHERE n.name = $name RETURN n LIMIT $0")
	m := st.Node(q.Clauses[0]).(*MatchClause)
	cmp := st.Node(m.Where).(*Binary)
	named := st.Node(cmp.R).(*Parameter)
	assert.Equal(t, "name", named.Name)
	assert.Equal(t, -1, named.Index)

	r := st.Node(q.Clauses[1]).(*ReturnClause)
	positional := st.Node(r.Body.Limit).(*Parameter)
	assert.Equal(t, 0, positional.Index)
	assert.Empty(t, positional.Name)
}

func TestParseSyntaxErrors(t *testing.T) {
	for _, src := range []string{
		"MATCH (n",
		"MATCH (n) RETURN",
		"RETURN 1 2",
		"CREATE INDEX :Person(age)",
		"MATCH (a)-[r]>(b) RETURN r",
	} {
		_, _, err := Parse(src)
		assert.Error(t, err, src)
	}
}
