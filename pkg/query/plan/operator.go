// Package plan contains the physical operator set, the pull-based cursor
// execution model, the planner that lowers an annotated AST into an
// operator tree, and the cost estimator. Operator trees are immutable and
// shared across concurrent executions; all mutable state lives in cursors
// and frames.
package plan

import (
	"context"
	"fmt"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// Frame is the fixed-width row vector, indexed by symbol position.
type Frame []value.Value

// NewFrame returns a frame of the given width, all slots null.
func NewFrame(width int) Frame { return make(Frame, width) }

// Copy returns an independent snapshot of the frame.
func (f Frame) Copy() Frame {
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// Parameters holds resolved query parameters. Positional entries come from
// stripped literals, named entries from the caller.
type Parameters struct {
	Positional []value.Value
	Named      map[string]value.Value
}

// Resolve returns the value a Parameter node refers to.
func (p Parameters) Resolve(param *frontend.Parameter) (value.Value, error) {
	if param.Index >= 0 {
		if param.Index >= len(p.Positional) {
			return value.Null, &RuntimeError{Message: fmt.Sprintf("parameter $%d out of range", param.Index)}
		}
		return p.Positional[param.Index], nil
	}
	v, ok := p.Named[param.Name]
	if !ok {
		return value.Null, &RuntimeError{Message: fmt.Sprintf("unprovided parameter $%s", param.Name)}
	}
	return v, nil
}

// AuthService is the user-administration capability admin operators drive.
type AuthService interface {
	CreateUser(name, password string) error
	DropUser(name string) error
	SetPassword(name, password string) error
}

// StreamRegistry is the stream-administration capability.
type StreamRegistry interface {
	CreateStream(name, topic, transform string, batchSize int64) error
	DropStream(name string) error
	ShowStreams() []StreamInfo
	StartStream(name string) error
	StopStream(name string) error
	StartAllStreams() error
	StopAllStreams() error
	TestStream(name string) ([]string, error)
}

// StreamInfo is one row of SHOW STREAMS.
type StreamInfo struct {
	Name      string
	Topic     string
	Transform string
	BatchSize int64
	Running   bool
}

// Context carries the per-execution environment cursors evaluate under.
type Context struct {
	Ctx     context.Context
	Storage *frontend.AstStorage
	Symbols *frontend.SymbolTable
	Params  Parameters
	Acc     *storage.Accessor
	Auth    AuthService
	Streams StreamRegistry
}

// RuntimeError reports a failure during plan execution: type mismatches,
// arithmetic domain errors, constraint violations.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return "runtime error: " + e.Message
}

// Cursor is a per-execution pull iterator. Pull writes symbol slots in the
// frame and reports whether a new row was produced.
type Cursor interface {
	Pull(f Frame, ctx *Context) (bool, error)
}

// Operator is one node of a physical plan. Operators carry no mutable
// state; MakeCursor returns the per-execution state machine.
type Operator interface {
	MakeCursor(acc *storage.Accessor) Cursor
	Inputs() []Operator
	// Admin reports whether the operator is a top-level one-shot
	// administrative effect that emits no rows.
	Admin() bool
	// Writes reports whether this node itself mutates the graph.
	Writes() bool
	String() string
}

// baseOp supplies the common single-input shape and default capability
// answers. Operators override what differs.
type baseOp struct {
	input Operator
}

func (b *baseOp) Inputs() []Operator {
	if b.input == nil {
		return nil
	}
	return []Operator{b.input}
}

func (b *baseOp) Admin() bool  { return false }
func (b *baseOp) Writes() bool { return false }

// TreeWrites reports whether any operator in the tree mutates the graph.
func TreeWrites(op Operator) bool {
	if op.Writes() {
		return true
	}
	for _, in := range op.Inputs() {
		if TreeWrites(in) {
			return true
		}
	}
	return false
}

// TreeReads reports whether any operator in the tree reads the graph.
func TreeReads(op Operator) bool {
	switch op.(type) {
	case *ScanAll, *ScanAllByLabel, *ScanAllByLabelPropertyValue,
		*ScanAllByLabelPropertyRange, *Expand, *ExpandVariable, *ExpandBFS:
		return true
	}
	for _, in := range op.Inputs() {
		if TreeReads(in) {
			return true
		}
	}
	return false
}

// Once emits a single empty row. It terminates every operator chain.
type Once struct{}

func (*Once) Inputs() []Operator { return nil }
func (*Once) Admin() bool        { return false }
func (*Once) Writes() bool       { return false }
func (*Once) String() string     { return "Once" }

func (*Once) MakeCursor(*storage.Accessor) Cursor { return &onceCursor{} }

type onceCursor struct {
	done bool
}

func (c *onceCursor) Pull(Frame, *Context) (bool, error) {
	if c.done {
		return false, nil
	}
	c.done = true
	return true, nil
}
