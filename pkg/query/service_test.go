package query

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/runegraph/pkg/rpc"
	"github.com/orneryd/runegraph/pkg/storage"
)

func startQueryServer(t *testing.T) string {
	t.Helper()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })
	graph := storage.NewGraph(engine)
	in := NewInterpreter(Options{CostPlanner: true, PlanCache: true, PlanCacheTTL: time.Minute})

	srv := rpc.NewServer()
	srv.Register(ServiceName, NewService(graph, in).Handler())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(listener)
	t.Cleanup(func() { srv.Close() })
	return listener.Addr().String()
}

func call(t *testing.T, c *rpc.Client, query string, params map[string]any) *Response {
	t.Helper()
	var resp Response
	require.NoError(t, c.Call(&Request{Query: query, Parameters: params}, &resp))
	return &resp
}

func TestServiceRoundTrip(t *testing.T) {
	addr := startQueryServer(t)
	c := rpc.NewClient(addr, ServiceName)
	defer c.Close()

	resp := call(t, c, "CREATE (:Person {name: 'Alice', age: 32})", nil)
	require.Empty(t, resp.Error)
	assert.Equal(t, "w", resp.Summary["type"])

	resp = call(t, c, "MATCH (n:Person) RETURN n.name, n.age", nil)
	require.Empty(t, resp.Error)
	assert.Equal(t, []string{"n.name", "n.age"}, resp.Header)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "Alice", resp.Rows[0][0])
	assert.Equal(t, int64(32), resp.Rows[0][1])
	assert.Equal(t, "r", resp.Summary["type"])
}

func TestServiceWritesPersistAcrossRequests(t *testing.T) {
	addr := startQueryServer(t)
	c := rpc.NewClient(addr, ServiceName)
	defer c.Close()

	require.Empty(t, call(t, c, "CREATE (:Person {name: 'Alice'})", nil).Error)
	require.Empty(t, call(t, c, "CREATE (:Person {name: 'Bob'})", nil).Error)

	resp := call(t, c, "MATCH (n:Person) RETURN count(n)", nil)
	require.Empty(t, resp.Error)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, int64(2), resp.Rows[0][0])
}

func TestServiceParameters(t *testing.T) {
	addr := startQueryServer(t)
	c := rpc.NewClient(addr, ServiceName)
	defer c.Close()

	require.Empty(t, call(t, c, "CREATE (:Person {name: 'Alice'})", nil).Error)

	resp := call(t, c, "MATCH (n:Person) WHERE n.name = $who RETURN n.name",
		map[string]any{"who": "Alice"})
	require.Empty(t, resp.Error)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "Alice", resp.Rows[0][0])
}

func TestServiceErrorsDoNotCommit(t *testing.T) {
	addr := startQueryServer(t)
	c := rpc.NewClient(addr, ServiceName)
	defer c.Close()

	resp := call(t, c, "MATCH (n RETURN n", nil)
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.Rows)

	resp = call(t, c, "MATCH (n) RETURN n.missing WHERE", nil)
	assert.NotEmpty(t, resp.Error)
}

func TestServiceEntityRowsRenderAsText(t *testing.T) {
	addr := startQueryServer(t)
	c := rpc.NewClient(addr, ServiceName)
	defer c.Close()

	require.Empty(t, call(t, c, "CREATE (:City {name: 'Oslo'})", nil).Error)

	resp := call(t, c, "MATCH (n:City) RETURN n", nil)
	require.Empty(t, resp.Error)
	require.Len(t, resp.Rows, 1)
	text, ok := resp.Rows[0][0].(string)
	require.True(t, ok)
	assert.Contains(t, text, "City")
}
