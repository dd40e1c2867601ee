package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadger(t *testing.T) *BadgerEngine {
	t.Helper()
	engine, err := NewBadgerEngineInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestBadgerNodeCRUD(t *testing.T) {
	b := newTestBadger(t)

	n := testNode("n1", []string{"Person"}, map[string]any{"name": "Alice", "age": int64(30)})
	require.NoError(t, b.CreateNode(n))
	assert.ErrorIs(t, b.CreateNode(n), ErrAlreadyExists)

	got, err := b.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Properties["name"])
	assert.Equal(t, int64(30), got.Properties["age"])

	n.Labels = []string{"Admin"}
	require.NoError(t, b.UpdateNode(n))
	byOld, err := b.GetNodesByLabel("Person")
	require.NoError(t, err)
	assert.Empty(t, byOld)
	byNew, err := b.GetNodesByLabel("Admin")
	require.NoError(t, err)
	assert.Len(t, byNew, 1)

	require.NoError(t, b.DeleteNode("n1"))
	_, err = b.GetNode("n1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerEdgesAndAdjacency(t *testing.T) {
	b := newTestBadger(t)

	require.NoError(t, b.CreateNode(testNode("a", nil, nil)))
	require.NoError(t, b.CreateNode(testNode("b", nil, nil)))
	require.NoError(t, b.CreateEdge(testEdge("e1", "a", "b", "KNOWS")))

	out, err := b.GetOutgoingEdges("a")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "KNOWS", out[0].Type)

	in, err := b.GetIncomingEdges("b")
	require.NoError(t, err)
	assert.Len(t, in, 1)

	// Deleting a node removes its incident edges.
	require.NoError(t, b.DeleteNode("a"))
	count, err := b.EdgeCount()
	require.NoError(t, err)
	assert.Zero(t, count)
	in, err = b.GetIncomingEdges("b")
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestBadgerCounts(t *testing.T) {
	b := newTestBadger(t)
	for _, id := range []NodeID{"a", "b", "c"} {
		require.NoError(t, b.CreateNode(testNode(id, nil, nil)))
	}
	require.NoError(t, b.CreateEdge(testEdge("e1", "a", "b", "T")))

	nodes, err := b.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), nodes)
	edges, err := b.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), edges)
}
