package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/runegraph/pkg/query/plan"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// recordStream captures a result while enforcing the Header, Results,
// Summary call order.
type recordStream struct {
	headerSet bool
	header    []string
	rows      [][]value.Value
	summaries []map[string]value.Value
}

func (s *recordStream) Header(names []string) error {
	if s.headerSet {
		panic("header emitted twice")
	}
	s.headerSet = true
	s.header = names
	return nil
}

func (s *recordStream) Result(values []value.Value) error {
	if !s.headerSet {
		panic("result before header")
	}
	if len(s.summaries) > 0 {
		panic("result after summary")
	}
	row := make([]value.Value, len(values))
	copy(row, values)
	s.rows = append(s.rows, row)
	return nil
}

func (s *recordStream) Summary(summary map[string]value.Value) error {
	if len(s.summaries) > 0 {
		panic("summary emitted twice")
	}
	s.summaries = append(s.summaries, summary)
	return nil
}

func (s *recordStream) summary(t *testing.T) map[string]value.Value {
	t.Helper()
	require.Len(t, s.summaries, 1)
	return s.summaries[0]
}

type fakeStreams struct {
	infos []plan.StreamInfo
}

func (f *fakeStreams) CreateStream(name, topic, transform string, batchSize int64) error {
	f.infos = append(f.infos, plan.StreamInfo{Name: name, Topic: topic, Transform: transform, BatchSize: batchSize})
	return nil
}
func (f *fakeStreams) DropStream(string) error          { return nil }
func (f *fakeStreams) ShowStreams() []plan.StreamInfo   { return f.infos }
func (f *fakeStreams) StartStream(string) error         { return nil }
func (f *fakeStreams) StopStream(string) error          { return nil }
func (f *fakeStreams) StartAllStreams() error           { return nil }
func (f *fakeStreams) StopAllStreams() error            { return nil }
func (f *fakeStreams) TestStream(string) ([]string, error) { return nil, nil }

func newTestAccessor(t *testing.T) *storage.Accessor {
	t.Helper()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })
	return storage.NewGraph(engine).Access()
}

func interpret(t *testing.T, in *Interpreter, acc *storage.Accessor, src string, params map[string]value.Value) *recordStream {
	t.Helper()
	rec := &recordStream{}
	require.NoError(t, in.Interpret(context.Background(), src, acc, rec, params, false))
	return rec
}

func TestInterpretReadQuery(t *testing.T) {
	in := NewInterpreter(Options{})
	acc := newTestAccessor(t)

	write := interpret(t, in, acc, "CREATE (:Person {name: 'Alice'}), (:Person {name: 'Bob'})", nil)
	assert.True(t, write.headerSet)
	assert.Empty(t, write.header)
	assert.Empty(t, write.rows)
	assert.Equal(t, "w", write.summary(t)["type"].AsString())

	read := interpret(t, in, acc, "MATCH (n:Person) RETURN n.name ORDER BY n.name", nil)
	assert.Equal(t, []string{"n.name"}, read.header)
	require.Len(t, read.rows, 2)
	assert.Equal(t, "Alice", read.rows[0][0].AsString())
	assert.Equal(t, "Bob", read.rows[1][0].AsString())

	summary := read.summary(t)
	for _, key := range []string{"parsing_time", "planning_time", "plan_execution_time", "cost_estimate", "type"} {
		assert.Contains(t, summary, key)
	}
	assert.Equal(t, "r", summary["type"].AsString())
}

func TestInterpretReadWriteQueryType(t *testing.T) {
	in := NewInterpreter(Options{})
	acc := newTestAccessor(t)
	interpret(t, in, acc, "CREATE (:Person {name: 'Alice'})", nil)

	rec := interpret(t, in, acc, "MATCH (n:Person) SET n.seen = true", nil)
	assert.Equal(t, "rw", rec.summary(t)["type"].AsString())
}

func TestInterpretHeaderPrefersAlias(t *testing.T) {
	in := NewInterpreter(Options{})
	acc := newTestAccessor(t)

	rec := interpret(t, in, acc, "RETURN 1 + 2 AS three, 'x'", nil)
	assert.Equal(t, []string{"three", "'x'"}, rec.header)
	require.Len(t, rec.rows, 1)
	assert.Equal(t, int64(3), rec.rows[0][0].AsInt())
	assert.Equal(t, "x", rec.rows[0][1].AsString())
}

func TestInterpretReusesCachedPlanAcrossLiterals(t *testing.T) {
	in := NewInterpreter(Options{PlanCache: true})
	acc := newTestAccessor(t)
	interpret(t, in, acc, "CREATE (:Person {name: 'Alice'}), (:Person {name: 'Bob'})", nil)
	require.Equal(t, 1, in.Cache().Len())

	a := interpret(t, in, acc, "MATCH (n:Person {name: 'Alice'}) RETURN n.name", nil)
	b := interpret(t, in, acc, "MATCH (n:Person {name: 'Bob'}) RETURN n.name", nil)
	// One shared plan, two different literal bindings.
	assert.Equal(t, 2, in.Cache().Len())
	require.Len(t, a.rows, 1)
	require.Len(t, b.rows, 1)
	assert.Equal(t, "Alice", a.rows[0][0].AsString())
	assert.Equal(t, "Bob", b.rows[0][0].AsString())
}

func TestInterpretReusesASTWithoutPlanCache(t *testing.T) {
	in := NewInterpreter(Options{})
	acc := newTestAccessor(t)
	interpret(t, in, acc, "CREATE (:Person {name: 'Alice'}), (:Person {name: 'Bob'})", nil)

	a := interpret(t, in, acc, "MATCH (n:Person {name: 'Alice'}) RETURN n.name", nil)
	b := interpret(t, in, acc, "MATCH (n:Person {name: 'Bob'}) RETURN n.name", nil)
	require.Len(t, a.rows, 1)
	require.Len(t, b.rows, 1)

	// Plans are rebuilt each run, the parse result is shared by hash.
	assert.Equal(t, 0, in.Cache().Len())
	assert.Equal(t, 2, in.asts.Access().Len())
}

func TestInterpretNamedParameter(t *testing.T) {
	in := NewInterpreter(Options{})
	acc := newTestAccessor(t)
	interpret(t, in, acc, "CREATE (:Person {name: 'Alice'}), (:Person {name: 'Bob'})", nil)

	rec := interpret(t, in, acc, "MATCH (n:Person {name: $who}) RETURN n.name",
		map[string]value.Value{"who": value.String("Bob")})
	require.Len(t, rec.rows, 1)
	assert.Equal(t, "Bob", rec.rows[0][0].AsString())
}

func TestInterpretUnprovidedParameter(t *testing.T) {
	in := NewInterpreter(Options{})
	acc := newTestAccessor(t)

	rec := &recordStream{}
	err := in.Interpret(context.Background(), "MATCH (n {name: $x}) RETURN n", acc, rec, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unprovided parameter $x")
	assert.False(t, rec.headerSet)
	assert.Empty(t, rec.rows)
	assert.Empty(t, rec.summaries)
}

func TestInterpretSyntaxErrorEmitsNothing(t *testing.T) {
	in := NewInterpreter(Options{})
	acc := newTestAccessor(t)

	rec := &recordStream{}
	err := in.Interpret(context.Background(), "MATCH (n RETURN n", acc, rec, nil, false)
	require.Error(t, err)
	assert.False(t, rec.headerSet)
	assert.Empty(t, rec.summaries)
}

func TestInterpretIndexCreationInvalidatesCache(t *testing.T) {
	in := NewInterpreter(Options{PlanCache: true})
	acc := newTestAccessor(t)

	interpret(t, in, acc, "MATCH (n:Person) RETURN n", nil)
	interpret(t, in, acc, "MATCH (n:City) RETURN n.name", nil)
	require.Equal(t, 2, in.Cache().Len())

	interpret(t, in, acc, "CREATE INDEX ON :Person(name)", nil)
	assert.Zero(t, in.Cache().Len())
}

func TestInterpretAdminInExplicitTransaction(t *testing.T) {
	in := NewInterpreter(Options{})
	acc := newTestAccessor(t)

	rec := &recordStream{}
	err := in.Interpret(context.Background(), "CREATE INDEX ON :Person(name)", acc, rec, nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explicit transactions")
}

func TestInterpretShowStreams(t *testing.T) {
	streams := &fakeStreams{}
	in := NewInterpreter(Options{Streams: streams})
	acc := newTestAccessor(t)

	interpret(t, in, acc,
		"CREATE STREAM clicks TOPIC 'clicks' TRANSFORM 'ingest.clicks' BATCH_SIZE 10", nil)

	rec := interpret(t, in, acc, "SHOW STREAMS", nil)
	assert.Equal(t, []string{"name", "topic", "transform", "batch_size", "is_running"}, rec.header)
	require.Len(t, rec.rows, 1)
	assert.Equal(t, "clicks", rec.rows[0][0].AsString())
	assert.Equal(t, int64(10), rec.rows[0][3].AsInt())
}

func TestInterpretOptionalIntoExpand(t *testing.T) {
	in := NewInterpreter(Options{})
	acc := newTestAccessor(t)
	interpret(t, in, acc,
		"CREATE (a:Person {id: 1}), (b:Person {id: 2})-[:Has]->(:Dog)-[:Likes]->(:Food)", nil)

	arrows := []string{"-->", "-[*1]->", "-[*bfs..1]->"}
	orders := []string{"", " DESC"}
	for _, arrow := range arrows {
		for _, order := range orders {
			src := fmt.Sprintf(
				"MATCH (p:Person) WITH p ORDER BY p.id%s OPTIONAL MATCH (p)%s(d:Dog) WITH p, d MATCH (d)%s(f:Food) RETURN p, d, f",
				order, arrow, arrow)
			rec := interpret(t, in, acc, src, nil)
			assert.Len(t, rec.rows, 1, src)
		}
	}
}

func TestInterpretEdgeUniquenessUnderOptional(t *testing.T) {
	in := NewInterpreter(Options{})
	acc := newTestAccessor(t)
	interpret(t, in, acc, "CREATE (), ()-[:Type]->()", nil)

	rec := interpret(t, in, acc,
		"MATCH (n) OPTIONAL MATCH (n)-[r1]->(), (n)-[r2]->() RETURN n, r1, r2", nil)
	assert.Len(t, rec.rows, 3)
}

func TestInterpretRuntimeErrorWithholdsSummary(t *testing.T) {
	in := NewInterpreter(Options{})
	acc := newTestAccessor(t)
	interpret(t, in, acc, "CREATE (:Person {age: 0})", nil)

	rec := &recordStream{}
	err := in.Interpret(context.Background(), "MATCH (n:Person) RETURN 1 / n.age", acc, rec, nil, false)
	require.Error(t, err)
	assert.True(t, rec.headerSet)
	assert.Empty(t, rec.summaries)
}
