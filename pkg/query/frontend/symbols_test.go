package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genSymbols(t *testing.T, src string) *SymbolTable {
	t.Helper()
	st, root, err := Parse(src)
	require.NoError(t, err)
	table, err := GenerateSymbols(st, root)
	require.NoError(t, err)
	return table
}

func TestSymbolsBindPatternVariables(t *testing.T) {
	table := genSymbols(t, "MATCH (a)-[r:KNOWS]->(b) RETURN a, r, b")

	a, ok := table.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, SymbolVariable, a.Kind)
	r, ok := table.Lookup("r")
	require.True(t, ok)
	assert.Equal(t, SymbolEdge, r.Kind)
	_, ok = table.Lookup("b")
	assert.True(t, ok)
}

func TestSymbolsAnonymousEntitiesTakeSlots(t *testing.T) {
	table := genSymbols(t, "MATCH (a)-[:KNOWS]->() RETURN a")
	// a, anonymous node, anonymous edge.
	assert.Equal(t, 3, table.MaxPosition())
	_, ok := table.Lookup("a")
	assert.True(t, ok)
}

func TestSymbolsPositionsAreDense(t *testing.T) {
	table := genSymbols(t, "MATCH (a), (b) RETURN a, b")
	seen := map[int]bool{}
	for _, s := range table.Symbols() {
		assert.False(t, seen[s.Position])
		seen[s.Position] = true
		assert.Less(t, s.Position, table.MaxPosition())
	}
}

func TestSymbolsRedeclareKeepsPosition(t *testing.T) {
	table := genSymbols(t, "MATCH (n) MATCH (n)-[:KNOWS]->(m) RETURN n, m")
	n, ok := table.Lookup("n")
	require.True(t, ok)
	assert.Equal(t, 0, n.Position)
}

func TestSymbolsNamedPath(t *testing.T) {
	table := genSymbols(t, "MATCH p = (a)-[:KNOWS]->(b) RETURN p")
	p, ok := table.Lookup("p")
	require.True(t, ok)
	assert.Equal(t, SymbolPath, p.Kind)
}

func TestSymbolsUnwindAlias(t *testing.T) {
	table := genSymbols(t, "UNWIND [1, 2] AS x RETURN x")
	_, ok := table.Lookup("x")
	assert.True(t, ok)
}

func TestSymbolsProjectionAlias(t *testing.T) {
	table := genSymbols(t, "MATCH (n) WITH n.age AS age WHERE age > 21 RETURN age")
	_, ok := table.Lookup("age")
	assert.True(t, ok)
}

func TestSymbolsOrderByCanUseAlias(t *testing.T) {
	table := genSymbols(t, "MATCH (n) RETURN n.name AS name ORDER BY name")
	_, ok := table.Lookup("name")
	assert.True(t, ok)
}

func TestSymbolsUnboundIdentifier(t *testing.T) {
	for _, src := range []string{
		"MATCH (n) RETURN m",
		"MATCH (n) WHERE missing > 1 RETURN n",
		"MATCH (n) SET q.age = 1",
		"MATCH (n) REMOVE q.age",
		"MATCH (n) DELETE m",
	} {
		st, root, err := Parse(src)
		require.NoError(t, err, src)
		_, err = GenerateSymbols(st, root)
		var se *SemanticError
		require.ErrorAs(t, err, &se, src)
		assert.Contains(t, se.Message, "not defined", src)
	}
}
