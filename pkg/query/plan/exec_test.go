package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

func newTestAccessor(t *testing.T) *storage.Accessor {
	t.Helper()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })
	return storage.NewGraph(engine).Access()
}

func mustVertex(t *testing.T, acc *storage.Accessor, labels []string, props map[string]any) *storage.Node {
	t.Helper()
	n, err := acc.CreateVertex(labels, props)
	require.NoError(t, err)
	return n
}

func mustEdge(t *testing.T, acc *storage.Accessor, from, to storage.NodeID, kind string) *storage.Edge {
	t.Helper()
	e, err := acc.CreateEdgeBetween(from, to, kind, nil)
	require.NoError(t, err)
	return e
}

// seedPeople builds Alice -KNOWS-> Bob -KNOWS-> Carol and makes the
// writes visible.
func seedPeople(t *testing.T, acc *storage.Accessor) (alice, bob, carol *storage.Node) {
	t.Helper()
	alice = mustVertex(t, acc, []string{"Person"}, map[string]any{"name": "Alice", "age": int64(32)})
	bob = mustVertex(t, acc, []string{"Person"}, map[string]any{"name": "Bob", "age": int64(25)})
	carol = mustVertex(t, acc, []string{"Person"}, map[string]any{"name": "Carol", "age": int64(41)})
	mustEdge(t, acc, alice.ID, bob.ID, "KNOWS")
	mustEdge(t, acc, bob.ID, carol.ID, "KNOWS")
	acc.AdvanceCommand()
	return alice, bob, carol
}

func runQueryParams(t *testing.T, acc *storage.Accessor, src string, params Parameters) ([]string, [][]value.Value) {
	t.Helper()
	st, root, err := frontend.Parse(src)
	require.NoError(t, err)
	table, err := frontend.GenerateSymbols(st, root)
	require.NoError(t, err)
	op, _, err := Plan(st, table, root, acc, false)
	require.NoError(t, err)

	ctx := &Context{Ctx: context.Background(), Storage: st, Symbols: table, Params: params, Acc: acc}
	f := NewFrame(table.MaxPosition())
	cur := op.MakeCursor(acc)

	produce, _ := op.(*Produce)
	var header []string
	if produce != nil {
		for _, it := range produce.OutputItems() {
			header = append(header, it.Name)
		}
	}
	var rows [][]value.Value
	for {
		ok, err := cur.Pull(f, ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		if produce == nil {
			continue
		}
		row := make([]value.Value, len(produce.Items))
		for i, it := range produce.Items {
			row[i] = f[it.Symbol]
		}
		rows = append(rows, row)
	}
	return header, rows
}

func runQuery(t *testing.T, acc *storage.Accessor, src string) ([]string, [][]value.Value) {
	t.Helper()
	return runQueryParams(t, acc, src, Parameters{})
}

func names(rows [][]value.Value, col int) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r[col].AsString()
	}
	return out
}

func TestScanAllReturnsEveryVertex(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	header, rows := runQuery(t, acc, "MATCH (n) RETURN n")
	assert.Equal(t, []string{"n"}, header)
	assert.Len(t, rows, 3)
}

func TestInlinePropertyMatch(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	_, rows := runQuery(t, acc, "MATCH (n:Person {name: 'Alice'}) RETURN n.age")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(32), rows[0][0].AsInt())
}

func TestExpandFollowsDirection(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	_, rows := runQuery(t, acc, "MATCH (a {name: 'Alice'})-[r:KNOWS]->(b) RETURN b.name")
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0][0].AsString())

	_, rows = runQuery(t, acc, "MATCH (a {name: 'Bob'})<-[r:KNOWS]-(b) RETURN b.name")
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0][0].AsString())
}

func TestEdgeUniquenessWithinMatch(t *testing.T) {
	acc := newTestAccessor(t)
	a := mustVertex(t, acc, []string{"Person"}, map[string]any{"name": "A"})
	b := mustVertex(t, acc, []string{"Person"}, map[string]any{"name": "B"})
	c := mustVertex(t, acc, []string{"Person"}, map[string]any{"name": "C"})
	mustEdge(t, acc, a.ID, b.ID, "KNOWS")
	mustEdge(t, acc, c.ID, b.ID, "KNOWS")
	acc.AdvanceCommand()

	_, rows := runQuery(t, acc, "MATCH (x)-[r1]->(y)<-[r2]-(z) RETURN x.name, z.name")
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotEqual(t, row[0].AsString(), row[1].AsString())
	}
}

func TestVariableLengthExpansion(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	_, rows := runQuery(t, acc,
		"MATCH (a {name: 'Alice'})-[:KNOWS*1..2]->(b) RETURN b.name ORDER BY b.name")
	assert.Equal(t, []string{"Bob", "Carol"}, names(rows, 0))
}

func TestBreadthFirstExpansion(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	_, rows := runQuery(t, acc,
		"MATCH (a {name: 'Alice'})-[*bfs..2]->(b) RETURN b.name ORDER BY b.name")
	assert.Equal(t, []string{"Bob", "Carol"}, names(rows, 0))
}

func TestOptionalMatchBindsNull(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	_, rows := runQuery(t, acc,
		"MATCH (n {name: 'Carol'}) OPTIONAL MATCH (n)-[r:KNOWS]->(m) RETURN m")
	require.Len(t, rows, 1)
	assert.True(t, rows[0][0].IsNull())
}

func TestNamedPath(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	_, rows := runQuery(t, acc,
		"MATCH p = (a {name: 'Alice'})-[:KNOWS]->(b) RETURN length(p)")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0][0].AsInt())
}

func TestAggregateCountAndGrouping(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	_, rows := runQuery(t, acc, "MATCH (n:Person) RETURN count(n)")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0][0].AsInt())

	_, rows = runQuery(t, acc,
		"UNWIND [1, 1, 2] AS x RETURN x, count(x) ORDER BY x")
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0][1].AsInt())
	assert.Equal(t, int64(1), rows[1][1].AsInt())
}

func TestUngroupedAggregateOnEmptyInput(t *testing.T) {
	acc := newTestAccessor(t)

	_, rows := runQuery(t, acc,
		"MATCH (n:Nothing) RETURN count(n), sum(n.age), min(n.age)")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(0), rows[0][0].AsInt())
	assert.Equal(t, int64(0), rows[0][1].AsInt())
	assert.True(t, rows[0][2].IsNull())
}

func TestOrderByNullPlacement(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)
	mustVertex(t, acc, []string{"Person"}, map[string]any{"name": "Dave"})
	acc.AdvanceCommand()

	_, rows := runQuery(t, acc, "MATCH (n:Person) RETURN n.name ORDER BY n.age")
	require.Len(t, rows, 4)
	assert.Equal(t, "Dave", rows[3][0].AsString())

	_, rows = runQuery(t, acc, "MATCH (n:Person) RETURN n.name ORDER BY n.age DESC")
	require.Len(t, rows, 4)
	assert.Equal(t, "Dave", rows[0][0].AsString())
}

func TestDistinctSkipLimit(t *testing.T) {
	acc := newTestAccessor(t)

	_, rows := runQuery(t, acc,
		"UNWIND [1, 1, 2, 2, 3, 3] AS x RETURN DISTINCT x ORDER BY x SKIP 1 LIMIT 1")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0][0].AsInt())
}

func TestWithChainsProjections(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	_, rows := runQuery(t, acc,
		"MATCH (n:Person) WITH n.age AS age WHERE age > 30 RETURN age ORDER BY age")
	require.Len(t, rows, 2)
	assert.Equal(t, int64(32), rows[0][0].AsInt())
	assert.Equal(t, int64(41), rows[1][0].AsInt())
}

func TestCreateThenReturn(t *testing.T) {
	acc := newTestAccessor(t)

	_, rows := runQuery(t, acc, "CREATE (n:City {name: 'Oslo'}) RETURN n.name")
	require.Len(t, rows, 1)
	assert.Equal(t, "Oslo", rows[0][0].AsString())

	_, rows = runQuery(t, acc, "MATCH (n:City) RETURN n.name")
	require.Len(t, rows, 1)
	assert.Equal(t, "Oslo", rows[0][0].AsString())
}

func TestCreateRelationship(t *testing.T) {
	acc := newTestAccessor(t)

	_, rows := runQuery(t, acc,
		"CREATE (a:P {name: 'x'})-[r:REL]->(b:P {name: 'y'}) RETURN r")
	require.Len(t, rows, 1)
	require.Equal(t, value.TypeEdge, rows[0][0].Type())
	assert.Equal(t, "REL", rows[0][0].AsEdge().Type)

	_, rows = runQuery(t, acc, "MATCH (a {name: 'x'})-[r]->(b) RETURN b.name")
	require.Len(t, rows, 1)
	assert.Equal(t, "y", rows[0][0].AsString())
}

func TestSetAndRemoveProperty(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	runQuery(t, acc, "MATCH (n {name: 'Alice'}) SET n.age = 33")
	acc.AdvanceCommand()
	_, rows := runQuery(t, acc, "MATCH (n {name: 'Alice'}) RETURN n.age")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(33), rows[0][0].AsInt())

	runQuery(t, acc, "MATCH (n {name: 'Alice'}) REMOVE n.age")
	acc.AdvanceCommand()
	_, rows = runQuery(t, acc, "MATCH (n {name: 'Alice'}) RETURN n.age")
	require.Len(t, rows, 1)
	assert.True(t, rows[0][0].IsNull())
}

func TestDetachDelete(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	runQuery(t, acc, "MATCH (n {name: 'Bob'}) DETACH DELETE n")
	acc.AdvanceCommand()
	_, rows := runQuery(t, acc, "MATCH (n) RETURN n")
	assert.Len(t, rows, 2)
}

func TestMergeMatchesOrCreates(t *testing.T) {
	acc := newTestAccessor(t)

	runQuery(t, acc, "MERGE (n:Person {name: 'Dave'})")
	acc.AdvanceCommand()
	runQuery(t, acc, "MERGE (n:Person {name: 'Dave'})")
	acc.AdvanceCommand()

	_, rows := runQuery(t, acc, "MATCH (n:Person) RETURN count(n)")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0][0].AsInt())
}

func TestUnwindList(t *testing.T) {
	acc := newTestAccessor(t)

	_, rows := runQuery(t, acc, "UNWIND [1, 2, 3] AS x RETURN x")
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), rows[0][0].AsInt())
	assert.Equal(t, int64(3), rows[2][0].AsInt())
}

func TestNamedParameterResolution(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	params := Parameters{Named: map[string]value.Value{"who": value.String("Alice")}}
	_, rows := runQueryParams(t, acc, "MATCH (n {name: $who}) RETURN n.age", params)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(32), rows[0][0].AsInt())
}

func TestUnprovidedParameterFails(t *testing.T) {
	acc := newTestAccessor(t)
	seedPeople(t, acc)

	st, root, err := frontend.Parse("MATCH (n {name: $who}) RETURN n")
	require.NoError(t, err)
	table, err := frontend.GenerateSymbols(st, root)
	require.NoError(t, err)
	op, _, err := Plan(st, table, root, acc, false)
	require.NoError(t, err)

	ctx := &Context{Ctx: context.Background(), Storage: st, Symbols: table, Acc: acc}
	cur := op.MakeCursor(acc)
	_, err = cur.Pull(NewFrame(table.MaxPosition()), ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unprovided parameter $who")
}
