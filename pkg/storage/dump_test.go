package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpLoadRoundTrip(t *testing.T) {
	src := NewMemoryEngine()
	defer src.Close()

	require.NoError(t, src.CreateNode(testNode("a", []string{"Person"}, map[string]any{"name": "Alice", "age": int64(30)})))
	require.NoError(t, src.CreateNode(testNode("b", []string{"Person"}, nil)))
	require.NoError(t, src.CreateEdge(testEdge("e1", "a", "b", "KNOWS")))

	var buf bytes.Buffer
	require.NoError(t, Dump(src, &buf))
	assert.Contains(t, buf.String(), `"nodes"`)
	assert.Contains(t, buf.String(), `"relationships"`)

	dst := NewMemoryEngine()
	defer dst.Close()
	require.NoError(t, Load(dst, &buf))

	n, err := dst.GetNode("a")
	require.NoError(t, err)
	assert.Equal(t, "Alice", n.Properties["name"])
	assert.Equal(t, int64(30), n.Properties["age"])

	out, err := dst.GetOutgoingEdges("a")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, EdgeID("e1"), out[0].ID)
}

func TestLoadRejectsDanglingEdge(t *testing.T) {
	dst := NewMemoryEngine()
	defer dst.Close()

	dump := `{"nodes":[{"id":"a","labels":[],"properties":{}}],
		"relationships":[{"id":"e","start_node":"a","end_node":"missing","type":"T","properties":{}}]}`
	err := Load(dst, bytes.NewReader([]byte(dump)))
	assert.Error(t, err)
}
