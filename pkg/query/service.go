package query

import (
	"context"
	"encoding/gob"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/runegraph/pkg/rpc"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// ServiceName is the handshake name clients send to reach the query
// service.
const ServiceName = "query"

// Lists and maps travel inside interface-typed row slots, so gob needs
// their concrete types registered on both ends.
func init() {
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
}

// Request is one query submission. Parameters hold plain Go values as
// produced by value.ToProperty.
type Request struct {
	Query      string
	Parameters map[string]any
}

// Response carries the full result of a query. Error is set instead of
// rows when the query failed.
type Response struct {
	Header  []string
	Rows    [][]any
	Summary map[string]any
	Error   string
}

// Service executes queries on behalf of RPC clients. Each request runs
// in its own accessor and commits on success.
type Service struct {
	graph *storage.Graph
	in    *Interpreter
	codec rpc.Codec
}

// NewService returns a query service over graph using in.
func NewService(graph *storage.Graph, in *Interpreter) *Service {
	return &Service{graph: graph, in: in, codec: rpc.GobCodec{}}
}

// Handler adapts the service to the RPC server.
func (s *Service) Handler() rpc.Handler {
	return func(body []byte) ([]byte, error) {
		var req Request
		if err := s.codec.Decode(body, &req); err != nil {
			return nil, err
		}
		resp := s.execute(&req)
		return s.codec.Encode(resp)
	}
}

func (s *Service) execute(req *Request) *Response {
	params, err := decodeParameters(req.Parameters)
	if err != nil {
		return &Response{Error: err.Error()}
	}

	acc := s.graph.Access()
	collector := &collectStream{}
	if err := s.in.Interpret(context.Background(), req.Query, acc, collector, params, false); err != nil {
		acc.Abort()
		logrus.WithError(err).Debug("query failed")
		return &Response{Error: err.Error()}
	}
	if err := acc.Commit(); err != nil {
		return &Response{Error: fmt.Sprintf("commit: %v", err)}
	}
	return &Response{Header: collector.header, Rows: collector.rows, Summary: collector.summary}
}

func decodeParameters(raw map[string]any) (map[string]value.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]value.Value, len(raw))
	for name, p := range raw {
		v, err := value.FromProperty(p)
		if err != nil {
			return nil, fmt.Errorf("parameter $%s: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}

// collectStream buffers a whole result for one response body.
type collectStream struct {
	header  []string
	rows    [][]any
	summary map[string]any
}

func (c *collectStream) Header(names []string) error {
	c.header = names
	return nil
}

func (c *collectStream) Result(values []value.Value) error {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = wireValue(v)
	}
	c.rows = append(c.rows, row)
	return nil
}

func (c *collectStream) Summary(summary map[string]value.Value) error {
	c.summary = make(map[string]any, len(summary))
	for k, v := range summary {
		c.summary[k] = wireValue(v)
	}
	return nil
}

// wireValue flattens a value for transport. Graph entities have no
// property form and travel as their rendered text.
func wireValue(v value.Value) any {
	if p, err := v.ToProperty(); err == nil {
		return p
	}
	return v.String()
}
