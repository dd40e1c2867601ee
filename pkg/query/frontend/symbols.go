package frontend

import "fmt"

// SemanticError reports a name-resolution or clause-structure failure.
type SemanticError struct {
	Message string
}

func (e *SemanticError) Error() string {
	return "semantic error: " + e.Message
}

// SymbolKind classifies what a symbol binds.
type SymbolKind int

const (
	SymbolVariable SymbolKind = iota
	SymbolEdge
	SymbolPath
	SymbolAnonymous
)

// Symbol is one frame slot. Position is its index in the runtime frame.
type Symbol struct {
	Name     string
	Position int
	Kind     SymbolKind
}

// SymbolTable maps names to frame positions. Anonymous symbols occupy
// positions and are addressed by the token position of the pattern
// element that introduced them.
type SymbolTable struct {
	symbols []Symbol
	byName  map[string]int // name -> index into symbols
	byToken map[int]int    // anonymous: token position -> index
	anon    int
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]int), byToken: make(map[int]int)}
}

// Declare binds name to a fresh position, or returns the existing symbol
// when the name is already bound.
func (t *SymbolTable) Declare(name string, kind SymbolKind) Symbol {
	if idx, ok := t.byName[name]; ok {
		return t.symbols[idx]
	}
	s := Symbol{Name: name, Position: len(t.symbols), Kind: kind}
	t.symbols = append(t.symbols, s)
	t.byName[name] = s.Position
	return s
}

// DeclareAnonymous allocates a nameless slot keyed by the token position
// of the pattern element it belongs to.
func (t *SymbolTable) DeclareAnonymous(kind SymbolKind, tokenPos int) Symbol {
	if idx, ok := t.byToken[tokenPos]; ok {
		return t.symbols[idx]
	}
	t.anon++
	s := Symbol{
		Name:     fmt.Sprintf("  anon%d", t.anon),
		Position: len(t.symbols),
		Kind:     kind,
	}
	t.symbols = append(t.symbols, s)
	t.byToken[tokenPos] = s.Position
	return s
}

// AnonymousAt resolves the anonymous symbol introduced at a token
// position.
func (t *SymbolTable) AnonymousAt(tokenPos int) (Symbol, bool) {
	idx, ok := t.byToken[tokenPos]
	if !ok {
		return Symbol{}, false
	}
	return t.symbols[idx], true
}

// Lookup resolves a bound name.
func (t *SymbolTable) Lookup(name string) (Symbol, bool) {
	idx, ok := t.byName[name]
	if !ok {
		return Symbol{}, false
	}
	return t.symbols[idx], true
}

// Has reports whether name is bound.
func (t *SymbolTable) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// MaxPosition returns the frame width: one past the highest position.
func (t *SymbolTable) MaxPosition() int { return len(t.symbols) }

// Symbols returns the slots in position order.
func (t *SymbolTable) Symbols() []Symbol { return t.symbols }

// symbolGenerator walks a parsed query, binding pattern variables and
// projection aliases, and rejecting references to unbound names.
type symbolGenerator struct {
	storage *AstStorage
	table   *SymbolTable
}

// GenerateSymbols builds the symbol table for a parsed query. Identifier
// references to names no clause has bound produce a SemanticError.
func GenerateSymbols(storage *AstStorage, root Ref) (*SymbolTable, error) {
	g := &symbolGenerator{storage: storage, table: NewSymbolTable()}
	if ex, ok := storage.Node(root).(*ExplainClause); ok {
		root = ex.Inner
	}
	q, ok := storage.Node(root).(*Query)
	if !ok {
		return nil, &SemanticError{Message: "root is not a query"}
	}
	if err := g.query(q); err != nil {
		return nil, err
	}
	return g.table, nil
}

func (g *symbolGenerator) query(q *Query) error {
	for _, cl := range q.Clauses {
		if err := g.clause(cl); err != nil {
			return err
		}
	}
	return nil
}

func (g *symbolGenerator) clause(r Ref) error {
	switch c := g.storage.Node(r).(type) {
	case *MatchClause:
		for _, p := range c.Patterns {
			if err := g.pattern(p); err != nil {
				return err
			}
		}
		if c.Where != NilRef {
			return g.expr(c.Where)
		}
		return nil
	case *CreateClause:
		for _, p := range c.Patterns {
			if err := g.pattern(p); err != nil {
				return err
			}
		}
		return nil
	case *MergeClause:
		return g.pattern(c.Pattern)
	case *UnwindClause:
		if err := g.expr(c.Expr); err != nil {
			return err
		}
		g.table.Declare(c.Alias, SymbolVariable)
		return nil
	case *WithClause:
		if err := g.projection(&c.Body); err != nil {
			return err
		}
		if c.Where != NilRef {
			return g.expr(c.Where)
		}
		return nil
	case *ReturnClause:
		return g.projection(&c.Body)
	case *DeleteClause:
		for _, e := range c.Exprs {
			if err := g.expr(e); err != nil {
				return err
			}
		}
		return nil
	case *SetClause:
		for _, item := range c.Items {
			if !g.table.Has(item.Target) {
				return &SemanticError{Message: fmt.Sprintf("variable %q not defined", item.Target)}
			}
			if item.Expr != NilRef {
				if err := g.expr(item.Expr); err != nil {
					return err
				}
			}
		}
		return nil
	case *RemoveClause:
		for _, item := range c.Items {
			if !g.table.Has(item.Target) {
				return &SemanticError{Message: fmt.Sprintf("variable %q not defined", item.Target)}
			}
		}
		return nil
	case *CreateIndexClause, *DropIndexClause:
		return nil
	case *AuthClause:
		if c.Password != NilRef {
			return g.expr(c.Password)
		}
		return nil
	case *StreamClause:
		for _, e := range []Ref{c.Topic, c.Transform, c.BatchSize} {
			if e != NilRef {
				if err := g.expr(e); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return &SemanticError{Message: fmt.Sprintf("unexpected clause node %T", c)}
	}
}

func (g *symbolGenerator) projection(body *ProjectionBody) error {
	for _, item := range body.Items {
		ne := g.storage.Node(item).(*NamedExpr)
		if err := g.expr(ne.Expr); err != nil {
			return err
		}
		g.table.Declare(ne.Name, SymbolVariable)
	}
	for _, s := range body.Order {
		if err := g.orderKey(s.Expr); err != nil {
			return err
		}
	}
	for _, e := range []Ref{body.Skip, body.Limit} {
		if e != NilRef {
			if err := g.expr(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// orderKey resolves an ORDER BY expression. Keys may reference projection
// aliases declared by the same body, which Declare has already bound.
func (g *symbolGenerator) orderKey(r Ref) error {
	return g.expr(r)
}

func (g *symbolGenerator) pattern(r Ref) error {
	p := g.storage.Node(r).(*Pattern)
	if p.Name != "" {
		g.table.Declare(p.Name, SymbolPath)
	}
	for _, n := range p.Nodes {
		np := g.storage.Node(n).(*NodePattern)
		if np.Variable != "" {
			g.table.Declare(np.Variable, SymbolVariable)
		} else {
			g.table.DeclareAnonymous(SymbolAnonymous, np.TokenPos)
		}
		if np.Props != NilRef {
			if err := g.expr(np.Props); err != nil {
				return err
			}
		}
	}
	for _, e := range p.Edges {
		ep := g.storage.Node(e).(*EdgePattern)
		if ep.Variable != "" {
			g.table.Declare(ep.Variable, SymbolEdge)
		} else {
			g.table.DeclareAnonymous(SymbolAnonymous, ep.TokenPos)
		}
		if ep.Props != NilRef {
			if err := g.expr(ep.Props); err != nil {
				return err
			}
		}
		for _, h := range []Ref{ep.MinHops, ep.MaxHops} {
			if h != NilRef {
				if err := g.expr(h); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (g *symbolGenerator) expr(r Ref) error {
	switch e := g.storage.Node(r).(type) {
	case *Literal, *Parameter:
		return nil
	case *Identifier:
		if !g.table.Has(e.Name) {
			return &SemanticError{Message: fmt.Sprintf("variable %q not defined", e.Name)}
		}
		return nil
	case *PropertyLookup:
		return g.expr(e.Expr)
	case *Unary:
		return g.expr(e.Operand)
	case *Binary:
		if err := g.expr(e.L); err != nil {
			return err
		}
		return g.expr(e.R)
	case *ListLiteral:
		for _, item := range e.Items {
			if err := g.expr(item); err != nil {
				return err
			}
		}
		return nil
	case *MapLiteral:
		for _, v := range e.Values {
			if err := g.expr(v); err != nil {
				return err
			}
		}
		return nil
	case *FunctionCall:
		for _, a := range e.Args {
			if err := g.expr(a); err != nil {
				return err
			}
		}
		return nil
	default:
		return &SemanticError{Message: fmt.Sprintf("unexpected expression node %T", e)}
	}
}
