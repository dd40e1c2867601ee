package plan

import (
	"fmt"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// adminOp marks top-level one-shot administrative operators.
type adminOp struct{}

func (adminOp) Inputs() []Operator { return nil }
func (adminOp) Admin() bool        { return true }
func (adminOp) Writes() bool       { return false }

// oneShotCursor runs an effect exactly once and emits no rows.
type oneShotCursor struct {
	effect func(*Context) error
	done   bool
}

func (c *oneShotCursor) Pull(_ Frame, ctx *Context) (bool, error) {
	if c.done {
		return false, nil
	}
	c.done = true
	return false, c.effect(ctx)
}

// CreateIndex creates a label+property index and flags the accessor so the
// interpreter invalidates its plan cache.
type CreateIndex struct {
	adminOp
	Label    string
	Property string
}

func (op *CreateIndex) String() string {
	return fmt.Sprintf("CreateIndex (:%s {%s})", op.Label, op.Property)
}

func (op *CreateIndex) Writes() bool { return true }

func (op *CreateIndex) MakeCursor(acc *storage.Accessor) Cursor {
	return &oneShotCursor{effect: func(*Context) error {
		if err := acc.CreateIndex(op.Label, op.Property); err != nil {
			return err
		}
		acc.MarkIndexCreated()
		return nil
	}}
}

// DropIndex drops a label+property index.
type DropIndex struct {
	adminOp
	Label    string
	Property string
}

func (op *DropIndex) String() string {
	return fmt.Sprintf("DropIndex (:%s {%s})", op.Label, op.Property)
}

func (op *DropIndex) Writes() bool { return true }

func (op *DropIndex) MakeCursor(acc *storage.Accessor) Cursor {
	return &oneShotCursor{effect: func(*Context) error {
		return acc.DropIndex(op.Label, op.Property)
	}}
}

// AuthHandler executes a user-administration statement against the auth
// service.
type AuthHandler struct {
	adminOp
	Action   frontend.AuthAction
	User     string
	Password frontend.Ref
}

func (op *AuthHandler) String() string {
	switch op.Action {
	case frontend.AuthCreateUser:
		return fmt.Sprintf("AuthHandler {create user %s}", op.User)
	case frontend.AuthDropUser:
		return fmt.Sprintf("AuthHandler {drop user %s}", op.User)
	}
	return fmt.Sprintf("AuthHandler {set password %s}", op.User)
}

func (op *AuthHandler) MakeCursor(*storage.Accessor) Cursor {
	return &oneShotCursor{effect: func(ctx *Context) error {
		if ctx.Auth == nil {
			return &RuntimeError{Message: "auth service not configured"}
		}
		password := ""
		if op.Password != frontend.NilRef {
			v, err := Evaluate(op.Password, NewFrame(0), ctx)
			if err != nil {
				return err
			}
			if v.Type() != value.TypeString {
				return &RuntimeError{Message: "password must be a string"}
			}
			password = v.AsString()
		}
		switch op.Action {
		case frontend.AuthCreateUser:
			return ctx.Auth.CreateUser(op.User, password)
		case frontend.AuthDropUser:
			return ctx.Auth.DropUser(op.User)
		case frontend.AuthSetPassword:
			return ctx.Auth.SetPassword(op.User, password)
		}
		return &RuntimeError{Message: "unknown auth action"}
	}}
}

// StreamHandler executes a stream-administration statement against the
// stream registry.
type StreamHandler struct {
	adminOp
	Action    frontend.StreamAction
	Name      string
	Topic     frontend.Ref
	Transform frontend.Ref
	BatchSize frontend.Ref
}

func (op *StreamHandler) String() string {
	switch op.Action {
	case frontend.StreamCreate:
		return fmt.Sprintf("CreateStream {%s}", op.Name)
	case frontend.StreamDrop:
		return fmt.Sprintf("DropStream {%s}", op.Name)
	case frontend.StreamShow:
		return "ShowStreams"
	case frontend.StreamStart:
		return fmt.Sprintf("StartStream {%s}", op.Name)
	case frontend.StreamStop:
		return fmt.Sprintf("StopStream {%s}", op.Name)
	case frontend.StreamStartAll:
		return "StartAllStreams"
	case frontend.StreamStopAll:
		return "StopAllStreams"
	}
	return fmt.Sprintf("TestStream {%s}", op.Name)
}

func (op *StreamHandler) MakeCursor(*storage.Accessor) Cursor {
	return &oneShotCursor{effect: func(ctx *Context) error {
		if ctx.Streams == nil {
			return &RuntimeError{Message: "stream registry not configured"}
		}
		switch op.Action {
		case frontend.StreamCreate:
			topic, err := stringArg(op.Topic, "stream topic", ctx)
			if err != nil {
				return err
			}
			transform, err := stringArg(op.Transform, "stream transform", ctx)
			if err != nil {
				return err
			}
			batchSize := int64(0)
			if op.BatchSize != frontend.NilRef {
				v, err := Evaluate(op.BatchSize, NewFrame(0), ctx)
				if err != nil {
					return err
				}
				if v.Type() != value.TypeInt {
					return &RuntimeError{Message: "stream batch size must be an integer"}
				}
				batchSize = v.AsInt()
			}
			return ctx.Streams.CreateStream(op.Name, topic, transform, batchSize)
		case frontend.StreamDrop:
			return ctx.Streams.DropStream(op.Name)
		case frontend.StreamShow:
			// Rows are assembled by the executor via ShowStreams.
			return nil
		case frontend.StreamStart:
			return ctx.Streams.StartStream(op.Name)
		case frontend.StreamStop:
			return ctx.Streams.StopStream(op.Name)
		case frontend.StreamStartAll:
			return ctx.Streams.StartAllStreams()
		case frontend.StreamStopAll:
			return ctx.Streams.StopAllStreams()
		case frontend.StreamTest:
			_, err := ctx.Streams.TestStream(op.Name)
			return err
		}
		return &RuntimeError{Message: "unknown stream action"}
	}}
}

func stringArg(ref frontend.Ref, what string, ctx *Context) (string, error) {
	if ref == frontend.NilRef {
		return "", &RuntimeError{Message: what + " is required"}
	}
	v, err := Evaluate(ref, NewFrame(0), ctx)
	if err != nil {
		return "", err
	}
	if v.Type() != value.TypeString {
		return "", &RuntimeError{Message: what + " must be a string"}
	}
	return v.AsString(), nil
}

// Explain renders its inner plan as text rows bound to Symbol. The inner
// plan is never executed.
type Explain struct {
	Inner  Operator
	Symbol int
}

func (op *Explain) Inputs() []Operator { return []Operator{op.Inner} }
func (*Explain) Admin() bool           { return false }
func (*Explain) Writes() bool          { return false }
func (*Explain) String() string        { return "Explain" }

func (op *Explain) MakeCursor(*storage.Accessor) Cursor {
	return &explainCursor{op: op}
}

type explainCursor struct {
	op       *Explain
	lines    []string
	pos      int
	prepared bool
}

func (c *explainCursor) Pull(f Frame, _ *Context) (bool, error) {
	if !c.prepared {
		c.lines = PrintLines(c.op.Inner)
		c.prepared = true
	}
	if c.pos >= len(c.lines) {
		return false, nil
	}
	f[c.op.Symbol] = value.String(c.lines[c.pos])
	c.pos++
	return true, nil
}
