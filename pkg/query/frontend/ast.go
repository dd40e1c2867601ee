package frontend

import (
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// Ref addresses a node inside an AstStorage. NilRef is the absent node.
type Ref int32

// NilRef marks an absent optional child.
const NilRef Ref = -1

// AstStorage is the arena owning every AST node of one parsed query.
// Nodes reference children by Ref, never by pointer, so the storage can be
// moved and shared read-only.
type AstStorage struct {
	nodes []AstNode
}

// AstNode is the closed set of arena node variants.
type AstNode interface{ astNode() }

// Add appends a node and returns its Ref.
func (s *AstStorage) Add(n AstNode) Ref {
	s.nodes = append(s.nodes, n)
	return Ref(len(s.nodes) - 1)
}

// Node resolves a Ref. NilRef resolves to nil.
func (s *AstStorage) Node(r Ref) AstNode {
	if r == NilRef {
		return nil
	}
	return s.nodes[r]
}

// Len returns the number of stored nodes.
func (s *AstStorage) Len() int { return len(s.nodes) }

// Query is the root: a clause sequence.
type Query struct {
	Clauses []Ref
}

// MatchClause is MATCH or OPTIONAL MATCH with an optional WHERE.
type MatchClause struct {
	Optional bool
	Patterns []Ref // *Pattern
	Where    Ref   // expression or NilRef
}

// CreateClause creates the entities of its patterns.
type CreateClause struct {
	Patterns []Ref
}

// MergeClause matches a pattern or creates it when absent.
type MergeClause struct {
	Pattern Ref
}

// UnwindClause binds each element of a list expression.
type UnwindClause struct {
	Expr  Ref
	Alias string
}

// SortItem is one ORDER BY key.
type SortItem struct {
	Expr      Ref
	Ascending bool
}

// ProjectionBody is the shared shape of WITH and RETURN.
type ProjectionBody struct {
	Distinct bool
	Items    []Ref // *NamedExpr
	Order    []SortItem
	Skip     Ref // expression or NilRef
	Limit    Ref
}

// WithClause projects and optionally filters.
type WithClause struct {
	Body  ProjectionBody
	Where Ref
}

// ReturnClause is the query tail projection.
type ReturnClause struct {
	Body ProjectionBody
}

// DeleteClause deletes the entities its expressions evaluate to.
type DeleteClause struct {
	Detach bool
	Exprs  []Ref
}

// SetItemKind selects the SET form.
type SetItemKind int

const (
	SetItemProperty   SetItemKind = iota // n.p = expr
	SetItemProperties                    // n = expr
	SetItemMerge                         // n += expr
	SetItemLabels                        // n:A:B
)

// SetItem is one assignment of a SET clause.
type SetItem struct {
	Kind     SetItemKind
	Target   string // bound variable name
	Property string // for SetItemProperty
	Labels   []string
	Expr     Ref
}

// SetClause mutates bound entities.
type SetClause struct {
	Items []SetItem
}

// RemoveItem is one removal of a REMOVE clause.
type RemoveItem struct {
	Target   string
	Property string   // empty when removing labels
	Labels   []string // empty when removing a property
}

// RemoveClause removes properties or labels.
type RemoveClause struct {
	Items []RemoveItem
}

// CreateIndexClause is CREATE INDEX ON :Label(property).
type CreateIndexClause struct {
	Label    string
	Property string
}

// DropIndexClause is DROP INDEX ON :Label(property).
type DropIndexClause struct {
	Label    string
	Property string
}

// AuthAction selects an auth admin operation.
type AuthAction int

const (
	AuthCreateUser AuthAction = iota
	AuthDropUser
	AuthSetPassword
)

// AuthClause is a user-administration statement.
type AuthClause struct {
	Action   AuthAction
	User     string
	Password Ref // string expression or NilRef
}

// StreamAction selects a stream admin operation.
type StreamAction int

const (
	StreamCreate StreamAction = iota
	StreamDrop
	StreamShow
	StreamStart
	StreamStop
	StreamStartAll
	StreamStopAll
	StreamTest
)

// StreamClause is a stream-administration statement. Topic, Transform and
// BatchSize are expressions so stripped literals resolve at execution.
type StreamClause struct {
	Action    StreamAction
	Name      string
	Topic     Ref
	Transform Ref
	BatchSize Ref
}

// ExplainClause wraps a query whose plan is to be printed, not executed.
type ExplainClause struct {
	Inner Ref // *Query
}

// Pattern is a linear path pattern: node, (edge, node)*.
type Pattern struct {
	Name     string // named-path variable or empty
	Nodes    []Ref  // *NodePattern, len = len(Edges)+1
	Edges    []Ref  // *EdgePattern
	TokenPos int
}

// NodePattern is one (v:Label {props}) element.
type NodePattern struct {
	Variable string // empty when anonymous
	Labels   []string
	Props    Ref // *MapLiteral or NilRef
	TokenPos int
}

// EdgePattern is one -[r:TYPE*lo..hi]-> element.
type EdgePattern struct {
	Variable  string
	Types     []string
	Direction storage.Direction
	Props     Ref
	Variable_ bool // variable-length expansion
	BFS       bool
	MinHops   Ref // int expression or NilRef
	MaxHops   Ref
	TokenPos  int
}

// Literal is an inline constant. After stripping, literals occur only in
// admin statements; stripped positions parse as Parameter nodes.
type Literal struct {
	Value value.Value
}

// Parameter is a $name or stripped $<index> placeholder.
type Parameter struct {
	Name     string // empty for purely positional
	Index    int    // stripper-assigned position, -1 for named-only
	TokenPos int
}

// Identifier references a bound variable.
type Identifier struct {
	Name     string
	TokenPos int
}

// PropertyLookup is expr.key.
type PropertyLookup struct {
	Expr Ref
	Key  string
}

// UnaryOp is the operator of a Unary expression.
type UnaryOp int

const (
	UnaryMinus UnaryOp = iota
	UnaryNot
)

// Unary applies a prefix operator.
type Unary struct {
	Op      UnaryOp
	Operand Ref
}

// BinaryOp is the operator of a Binary expression.
type BinaryOp int

const (
	BinaryAdd BinaryOp = iota
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryMod
	BinaryEq
	BinaryNe
	BinaryLt
	BinaryLe
	BinaryGt
	BinaryGe
	BinaryAnd
	BinaryOr
	BinaryXor
	BinaryIn
)

// Binary applies an infix operator.
type Binary struct {
	Op   BinaryOp
	L, R Ref
}

// ListLiteral is [e1, e2, ...].
type ListLiteral struct {
	Items []Ref
}

// MapLiteral is {k1: e1, ...}. Keys keep source order.
type MapLiteral struct {
	Keys   []string
	Values []Ref
}

// FunctionCall invokes a built-in, possibly aggregating, function.
type FunctionCall struct {
	Name     string // lowercased
	Distinct bool
	Args     []Ref
	Star     bool // count(*)
}

// NamedExpr is one projection item with its output name.
type NamedExpr struct {
	Name     string
	Expr     Ref
	TokenPos int // position of the item's first token, keys the text-form map
}

func (*Query) astNode()             {}
func (*MatchClause) astNode()       {}
func (*CreateClause) astNode()      {}
func (*MergeClause) astNode()       {}
func (*UnwindClause) astNode()      {}
func (*WithClause) astNode()        {}
func (*ReturnClause) astNode()      {}
func (*DeleteClause) astNode()      {}
func (*SetClause) astNode()         {}
func (*RemoveClause) astNode()      {}
func (*CreateIndexClause) astNode() {}
func (*DropIndexClause) astNode()   {}
func (*AuthClause) astNode()        {}
func (*StreamClause) astNode()      {}
func (*ExplainClause) astNode()     {}
func (*Pattern) astNode()           {}
func (*NodePattern) astNode()       {}
func (*EdgePattern) astNode()       {}
func (*Literal) astNode()           {}
func (*Parameter) astNode()         {}
func (*Identifier) astNode()        {}
func (*PropertyLookup) astNode()    {}
func (*Unary) astNode()             {}
func (*Binary) astNode()            {}
func (*ListLiteral) astNode()       {}
func (*MapLiteral) astNode()        {}
func (*FunctionCall) astNode()      {}
func (*NamedExpr) astNode()         {}
