package frontend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// Parser builds an AST arena from a token stream. A Parser is single-use
// and carries no shared state, so concurrent Parse calls need no locking.
type Parser struct {
	src     string
	tokens  []Token
	pos     int
	storage *AstStorage
}

// Parse tokenizes and parses a query, returning the arena and the root
// Ref (a *Query or *ExplainClause).
func Parse(src string) (*AstStorage, Ref, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, NilRef, err
	}
	p := &Parser{src: src, tokens: tokens, storage: &AstStorage{}}
	root, err := p.parseTop()
	if err != nil {
		return nil, NilRef, err
	}
	if !p.at(TokenEOF) {
		return nil, NilRef, p.errorf("unexpected trailing input %q", p.peek().Text)
	}
	return p.storage, root, nil
}

func (p *Parser) peek() Token  { return p.tokens[p.pos] }
func (p *Parser) next() Token  { t := p.tokens[p.pos]; p.pos++; return t }
func (p *Parser) at(k TokenKind) bool { return p.peek().Kind == k }

func (p *Parser) atKeyword(kw string) bool { return p.peek().IsKeyword(kw) }

func (p *Parser) atPunct(text string) bool {
	t := p.peek()
	return t.Kind == TokenPunct && t.Text == text
}

func (p *Parser) acceptKeyword(kw string) bool {
	if p.atKeyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) acceptPunct(text string) bool {
	if p.atPunct(text) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		return p.errorf("expected %s, got %q", strings.ToUpper(kw), p.peek().Text)
	}
	return nil
}

func (p *Parser) expectPunct(text string) error {
	if !p.acceptPunct(text) {
		return p.errorf("expected %q, got %q", text, p.peek().Text)
	}
	return nil
}

func (p *Parser) expectIdent() (Token, error) {
	if !p.at(TokenIdent) {
		return Token{}, p.errorf("expected identifier, got %q", p.peek().Text)
	}
	return p.next(), nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: p.peek().Pos, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) parseTop() (Ref, error) {
	if p.acceptKeyword("explain") {
		inner, err := p.parseQuery()
		if err != nil {
			return NilRef, err
		}
		return p.storage.Add(&ExplainClause{Inner: inner}), nil
	}
	return p.parseQuery()
}

func (p *Parser) parseQuery() (Ref, error) {
	var clauses []Ref
	for {
		clause, err := p.parseClause()
		if err != nil {
			return NilRef, err
		}
		clauses = append(clauses, clause)
		p.acceptPunct(";")
		if p.at(TokenEOF) {
			break
		}
		if !p.clauseAhead() {
			return NilRef, p.errorf("expected a clause, got %q", p.peek().Text)
		}
	}
	return p.storage.Add(&Query{Clauses: clauses}), nil
}

func (p *Parser) clauseAhead() bool {
	for _, kw := range []string{
		"match", "optional", "create", "merge", "unwind", "with", "return",
		"delete", "detach", "set", "remove", "drop", "show", "start",
		"stop", "test",
	} {
		if p.atKeyword(kw) {
			return true
		}
	}
	return false
}

func (p *Parser) parseClause() (Ref, error) {
	switch {
	case p.atKeyword("optional"):
		p.next()
		if err := p.expectKeyword("match"); err != nil {
			return NilRef, err
		}
		return p.parseMatch(true)
	case p.acceptKeyword("match"):
		return p.parseMatch(false)
	case p.atKeyword("create"):
		return p.parseCreate()
	case p.acceptKeyword("merge"):
		pattern, err := p.parsePattern()
		if err != nil {
			return NilRef, err
		}
		return p.storage.Add(&MergeClause{Pattern: pattern}), nil
	case p.acceptKeyword("unwind"):
		expr, err := p.parseExpr()
		if err != nil {
			return NilRef, err
		}
		if err := p.expectKeyword("as"); err != nil {
			return NilRef, err
		}
		alias, err := p.expectIdent()
		if err != nil {
			return NilRef, err
		}
		return p.storage.Add(&UnwindClause{Expr: expr, Alias: alias.Text}), nil
	case p.acceptKeyword("with"):
		body, err := p.parseProjectionBody()
		if err != nil {
			return NilRef, err
		}
		where := NilRef
		if p.acceptKeyword("where") {
			where, err = p.parseExpr()
			if err != nil {
				return NilRef, err
			}
		}
		return p.storage.Add(&WithClause{Body: body, Where: where}), nil
	case p.acceptKeyword("return"):
		body, err := p.parseProjectionBody()
		if err != nil {
			return NilRef, err
		}
		return p.storage.Add(&ReturnClause{Body: body}), nil
	case p.atKeyword("delete"), p.atKeyword("detach"):
		return p.parseDelete()
	case p.acceptKeyword("set"):
		return p.parseSet()
	case p.acceptKeyword("remove"):
		return p.parseRemove()
	case p.atKeyword("drop"):
		return p.parseDrop()
	case p.acceptKeyword("show"):
		if err := p.expectKeyword("streams"); err != nil {
			return NilRef, err
		}
		return p.storage.Add(&StreamClause{Action: StreamShow, Topic: NilRef, Transform: NilRef, BatchSize: NilRef}), nil
	case p.atKeyword("start"), p.atKeyword("stop"):
		return p.parseStartStop()
	case p.acceptKeyword("test"):
		if err := p.expectKeyword("stream"); err != nil {
			return NilRef, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return NilRef, err
		}
		return p.storage.Add(&StreamClause{Action: StreamTest, Name: name.Text, Topic: NilRef, Transform: NilRef, BatchSize: NilRef}), nil
	}
	return NilRef, p.errorf("expected a clause, got %q", p.peek().Text)
}

func (p *Parser) parseMatch(optional bool) (Ref, error) {
	patterns, err := p.parsePatternList()
	if err != nil {
		return NilRef, err
	}
	where := NilRef
	if p.acceptKeyword("where") {
		where, err = p.parseExpr()
		if err != nil {
			return NilRef, err
		}
	}
	return p.storage.Add(&MatchClause{Optional: optional, Patterns: patterns, Where: where}), nil
}

func (p *Parser) parseCreate() (Ref, error) {
	p.next() // CREATE
	switch {
	case p.acceptKeyword("index"):
		label, property, err := p.parseIndexTarget()
		if err != nil {
			return NilRef, err
		}
		return p.storage.Add(&CreateIndexClause{Label: label, Property: property}), nil
	case p.acceptKeyword("stream"):
		return p.parseCreateStream()
	case p.acceptKeyword("user"):
		name, err := p.expectIdent()
		if err != nil {
			return NilRef, err
		}
		password := NilRef
		if p.acceptKeyword("password") {
			password, err = p.parseExpr()
			if err != nil {
				return NilRef, err
			}
		}
		return p.storage.Add(&AuthClause{Action: AuthCreateUser, User: name.Text, Password: password}), nil
	}
	patterns, err := p.parsePatternList()
	if err != nil {
		return NilRef, err
	}
	return p.storage.Add(&CreateClause{Patterns: patterns}), nil
}

func (p *Parser) parseIndexTarget() (string, string, error) {
	if err := p.expectKeyword("on"); err != nil {
		return "", "", err
	}
	if err := p.expectPunct(":"); err != nil {
		return "", "", err
	}
	label, err := p.expectIdent()
	if err != nil {
		return "", "", err
	}
	if err := p.expectPunct("("); err != nil {
		return "", "", err
	}
	property, err := p.expectIdent()
	if err != nil {
		return "", "", err
	}
	if err := p.expectPunct(")"); err != nil {
		return "", "", err
	}
	return label.Text, property.Text, nil
}

func (p *Parser) parseCreateStream() (Ref, error) {
	name, err := p.expectIdent()
	if err != nil {
		return NilRef, err
	}
	clause := &StreamClause{Action: StreamCreate, Name: name.Text,
		Topic: NilRef, Transform: NilRef, BatchSize: NilRef}
	if err := p.expectKeyword("topic"); err != nil {
		return NilRef, err
	}
	clause.Topic, err = p.parseExpr()
	if err != nil {
		return NilRef, err
	}
	if err := p.expectKeyword("transform"); err != nil {
		return NilRef, err
	}
	clause.Transform, err = p.parseExpr()
	if err != nil {
		return NilRef, err
	}
	if p.acceptKeyword("batch_size") {
		clause.BatchSize, err = p.parseExpr()
		if err != nil {
			return NilRef, err
		}
	}
	return p.storage.Add(clause), nil
}

func (p *Parser) parseDrop() (Ref, error) {
	p.next() // DROP
	switch {
	case p.acceptKeyword("index"):
		label, property, err := p.parseIndexTarget()
		if err != nil {
			return NilRef, err
		}
		return p.storage.Add(&DropIndexClause{Label: label, Property: property}), nil
	case p.acceptKeyword("stream"):
		name, err := p.expectIdent()
		if err != nil {
			return NilRef, err
		}
		return p.storage.Add(&StreamClause{Action: StreamDrop, Name: name.Text, Topic: NilRef, Transform: NilRef, BatchSize: NilRef}), nil
	case p.acceptKeyword("user"):
		name, err := p.expectIdent()
		if err != nil {
			return NilRef, err
		}
		return p.storage.Add(&AuthClause{Action: AuthDropUser, User: name.Text, Password: NilRef}), nil
	}
	return NilRef, p.errorf("expected INDEX, STREAM or USER after DROP")
}

func (p *Parser) parseStartStop() (Ref, error) {
	start := p.atKeyword("start")
	p.next()
	if p.acceptKeyword("all") {
		if err := p.expectKeyword("streams"); err != nil {
			return NilRef, err
		}
		action := StreamStopAll
		if start {
			action = StreamStartAll
		}
		return p.storage.Add(&StreamClause{Action: action, Topic: NilRef, Transform: NilRef, BatchSize: NilRef}), nil
	}
	if err := p.expectKeyword("stream"); err != nil {
		return NilRef, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return NilRef, err
	}
	action := StreamStop
	if start {
		action = StreamStart
	}
	return p.storage.Add(&StreamClause{Action: action, Name: name.Text, Topic: NilRef, Transform: NilRef, BatchSize: NilRef}), nil
}

func (p *Parser) parseDelete() (Ref, error) {
	detach := p.acceptKeyword("detach")
	if err := p.expectKeyword("delete"); err != nil {
		return NilRef, err
	}
	var exprs []Ref
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return NilRef, err
		}
		exprs = append(exprs, expr)
		if !p.acceptPunct(",") {
			break
		}
	}
	return p.storage.Add(&DeleteClause{Detach: detach, Exprs: exprs}), nil
}

func (p *Parser) parseSet() (Ref, error) {
	var items []SetItem
	for {
		target, err := p.expectIdent()
		if err != nil {
			return NilRef, err
		}
		switch {
		case p.acceptPunct("."):
			prop, err := p.expectIdent()
			if err != nil {
				return NilRef, err
			}
			if err := p.expectPunct("="); err != nil {
				return NilRef, err
			}
			expr, err := p.parseExpr()
			if err != nil {
				return NilRef, err
			}
			items = append(items, SetItem{Kind: SetItemProperty, Target: target.Text,
				Property: prop.Text, Expr: expr})
		case p.acceptPunct("+="):
			expr, err := p.parseExpr()
			if err != nil {
				return NilRef, err
			}
			items = append(items, SetItem{Kind: SetItemMerge, Target: target.Text, Expr: expr})
		case p.acceptPunct("="):
			expr, err := p.parseExpr()
			if err != nil {
				return NilRef, err
			}
			items = append(items, SetItem{Kind: SetItemProperties, Target: target.Text, Expr: expr})
		case p.atPunct(":"):
			var labels []string
			for p.acceptPunct(":") {
				label, err := p.expectIdent()
				if err != nil {
					return NilRef, err
				}
				labels = append(labels, label.Text)
			}
			items = append(items, SetItem{Kind: SetItemLabels, Target: target.Text,
				Labels: labels, Expr: NilRef})
		default:
			return NilRef, p.errorf("malformed SET item after %q", target.Text)
		}
		if !p.acceptPunct(",") {
			break
		}
	}
	return p.storage.Add(&SetClause{Items: items}), nil
}

func (p *Parser) parseRemove() (Ref, error) {
	var items []RemoveItem
	for {
		target, err := p.expectIdent()
		if err != nil {
			return NilRef, err
		}
		switch {
		case p.acceptPunct("."):
			prop, err := p.expectIdent()
			if err != nil {
				return NilRef, err
			}
			items = append(items, RemoveItem{Target: target.Text, Property: prop.Text})
		case p.atPunct(":"):
			var labels []string
			for p.acceptPunct(":") {
				label, err := p.expectIdent()
				if err != nil {
					return NilRef, err
				}
				labels = append(labels, label.Text)
			}
			items = append(items, RemoveItem{Target: target.Text, Labels: labels})
		default:
			return NilRef, p.errorf("malformed REMOVE item after %q", target.Text)
		}
		if !p.acceptPunct(",") {
			break
		}
	}
	return p.storage.Add(&RemoveClause{Items: items}), nil
}

func (p *Parser) parseProjectionBody() (ProjectionBody, error) {
	var body ProjectionBody
	body.Skip, body.Limit = NilRef, NilRef
	body.Distinct = p.acceptKeyword("distinct")
	for {
		item, err := p.parseNamedExpr()
		if err != nil {
			return body, err
		}
		body.Items = append(body.Items, item)
		if !p.acceptPunct(",") {
			break
		}
	}
	if p.acceptKeyword("order") {
		if err := p.expectKeyword("by"); err != nil {
			return body, err
		}
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return body, err
			}
			item := SortItem{Expr: expr, Ascending: true}
			if p.acceptKeyword("desc") || p.acceptKeyword("descending") {
				item.Ascending = false
			} else if p.acceptKeyword("asc") || p.acceptKeyword("ascending") {
				item.Ascending = true
			}
			body.Order = append(body.Order, item)
			if !p.acceptPunct(",") {
				break
			}
		}
	}
	var err error
	if p.acceptKeyword("skip") {
		body.Skip, err = p.parseExpr()
		if err != nil {
			return body, err
		}
	}
	if p.acceptKeyword("limit") {
		body.Limit, err = p.parseExpr()
		if err != nil {
			return body, err
		}
	}
	return body, nil
}

func (p *Parser) parseNamedExpr() (Ref, error) {
	start := p.pos
	expr, err := p.parseExpr()
	if err != nil {
		return NilRef, err
	}
	name := p.textBetween(start, p.pos)
	if p.acceptKeyword("as") {
		alias, err := p.expectIdent()
		if err != nil {
			return NilRef, err
		}
		name = alias.Text
	}
	return p.storage.Add(&NamedExpr{Name: name, Expr: expr, TokenPos: p.tokens[start].Index}), nil
}

// textBetween reconstructs the source text of a token span.
func (p *Parser) textBetween(start, end int) string {
	if start >= end {
		return ""
	}
	from := p.tokens[start].Pos
	to := len(p.src)
	if end < len(p.tokens) {
		to = p.tokens[end].Pos
	}
	return strings.TrimSpace(p.src[from:to])
}

func (p *Parser) parsePatternList() ([]Ref, error) {
	var patterns []Ref
	for {
		pattern, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, pattern)
		if !p.acceptPunct(",") {
			break
		}
	}
	return patterns, nil
}

func (p *Parser) parsePattern() (Ref, error) {
	pattern := &Pattern{TokenPos: p.peek().Index}
	if p.at(TokenIdent) && p.pos+1 < len(p.tokens) &&
		p.tokens[p.pos+1].Kind == TokenPunct && p.tokens[p.pos+1].Text == "=" &&
		!p.tokens[p.pos].IsKeyword("where") {
		name := p.next()
		p.next() // =
		pattern.Name = name.Text
	}
	node, err := p.parseNodePattern()
	if err != nil {
		return NilRef, err
	}
	pattern.Nodes = append(pattern.Nodes, node)
	for p.atPunct("-") || p.atPunct("<-") {
		edge, err := p.parseEdgePattern()
		if err != nil {
			return NilRef, err
		}
		next, err := p.parseNodePattern()
		if err != nil {
			return NilRef, err
		}
		pattern.Edges = append(pattern.Edges, edge)
		pattern.Nodes = append(pattern.Nodes, next)
	}
	return p.storage.Add(pattern), nil
}

func (p *Parser) parseNodePattern() (Ref, error) {
	tokenPos := p.peek().Index
	if err := p.expectPunct("("); err != nil {
		return NilRef, err
	}
	node := &NodePattern{Props: NilRef, TokenPos: tokenPos}
	if p.at(TokenIdent) {
		node.Variable = p.next().Text
	}
	for p.acceptPunct(":") {
		label, err := p.expectIdent()
		if err != nil {
			return NilRef, err
		}
		node.Labels = append(node.Labels, label.Text)
	}
	if p.atPunct("{") {
		props, err := p.parseMapLiteral()
		if err != nil {
			return NilRef, err
		}
		node.Props = props
	}
	if err := p.expectPunct(")"); err != nil {
		return NilRef, err
	}
	return p.storage.Add(node), nil
}

func (p *Parser) parseEdgePattern() (Ref, error) {
	edge := &EdgePattern{Props: NilRef, MinHops: NilRef, MaxHops: NilRef, TokenPos: p.peek().Index}
	leftArrow := false
	if p.acceptPunct("<-") {
		leftArrow = true
	} else if err := p.expectPunct("-"); err != nil {
		return NilRef, err
	}
	if p.acceptPunct("[") {
		if p.at(TokenIdent) && !p.atPunct(":") {
			edge.Variable = p.next().Text
		}
		if p.acceptPunct(":") {
			typ, err := p.expectIdent()
			if err != nil {
				return NilRef, err
			}
			edge.Types = append(edge.Types, typ.Text)
			for p.acceptPunct("|") {
				p.acceptPunct(":")
				typ, err := p.expectIdent()
				if err != nil {
					return NilRef, err
				}
				edge.Types = append(edge.Types, typ.Text)
			}
		}
		if p.acceptPunct("*") {
			edge.Variable_ = true
			if p.atKeyword("bfs") {
				p.next()
				edge.BFS = true
			}
			if err := p.parseHops(edge); err != nil {
				return NilRef, err
			}
		}
		if p.atPunct("{") {
			props, err := p.parseMapLiteral()
			if err != nil {
				return NilRef, err
			}
			edge.Props = props
		}
		if err := p.expectPunct("]"); err != nil {
			return NilRef, err
		}
	}
	if leftArrow {
		edge.Direction = storage.DirectionIn
		if err := p.expectPunct("-"); err != nil {
			return NilRef, err
		}
	} else if p.acceptPunct("->") {
		edge.Direction = storage.DirectionOut
	} else if p.acceptPunct("-") {
		edge.Direction = storage.DirectionBoth
	} else {
		return NilRef, p.errorf("expected -> or - to close relationship pattern")
	}
	return p.storage.Add(edge), nil
}

// parseHops parses the optional [lo][..[hi]] bounds after *. A single
// bound without .. pins lo = hi.
func (p *Parser) parseHops(edge *EdgePattern) error {
	if p.at(TokenInt) || p.at(TokenParam) {
		lo, err := p.parseAtom()
		if err != nil {
			return err
		}
		edge.MinHops = lo
		if p.acceptPunct("..") {
			if p.at(TokenInt) || p.at(TokenParam) {
				hi, err := p.parseAtom()
				if err != nil {
					return err
				}
				edge.MaxHops = hi
			}
			return nil
		}
		edge.MaxHops = lo
		return nil
	}
	if p.acceptPunct("..") {
		if p.at(TokenInt) || p.at(TokenParam) {
			hi, err := p.parseAtom()
			if err != nil {
				return err
			}
			edge.MaxHops = hi
		}
	}
	return nil
}

func (p *Parser) parseMapLiteral() (Ref, error) {
	if err := p.expectPunct("{"); err != nil {
		return NilRef, err
	}
	m := &MapLiteral{}
	if !p.atPunct("}") {
		for {
			key, err := p.expectIdent()
			if err != nil {
				return NilRef, err
			}
			if err := p.expectPunct(":"); err != nil {
				return NilRef, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return NilRef, err
			}
			m.Keys = append(m.Keys, key.Text)
			m.Values = append(m.Values, val)
			if !p.acceptPunct(",") {
				break
			}
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return NilRef, err
	}
	return p.storage.Add(m), nil
}

// Expression precedence, loosest first: OR, XOR, AND, NOT, comparison,
// additive, multiplicative, unary minus, postfix, atom.

func (p *Parser) parseExpr() (Ref, error) { return p.parseOr() }

func (p *Parser) parseOr() (Ref, error) {
	left, err := p.parseXor()
	if err != nil {
		return NilRef, err
	}
	for p.acceptKeyword("or") {
		right, err := p.parseXor()
		if err != nil {
			return NilRef, err
		}
		left = p.storage.Add(&Binary{Op: BinaryOr, L: left, R: right})
	}
	return left, nil
}

func (p *Parser) parseXor() (Ref, error) {
	left, err := p.parseAnd()
	if err != nil {
		return NilRef, err
	}
	for p.acceptKeyword("xor") {
		right, err := p.parseAnd()
		if err != nil {
			return NilRef, err
		}
		left = p.storage.Add(&Binary{Op: BinaryXor, L: left, R: right})
	}
	return left, nil
}

func (p *Parser) parseAnd() (Ref, error) {
	left, err := p.parseNot()
	if err != nil {
		return NilRef, err
	}
	for p.acceptKeyword("and") {
		right, err := p.parseNot()
		if err != nil {
			return NilRef, err
		}
		left = p.storage.Add(&Binary{Op: BinaryAnd, L: left, R: right})
	}
	return left, nil
}

func (p *Parser) parseNot() (Ref, error) {
	if p.acceptKeyword("not") {
		operand, err := p.parseNot()
		if err != nil {
			return NilRef, err
		}
		return p.storage.Add(&Unary{Op: UnaryNot, Operand: operand}), nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]BinaryOp{
	"=": BinaryEq, "<>": BinaryNe,
	"<": BinaryLt, "<=": BinaryLe,
	">": BinaryGt, ">=": BinaryGe,
}

func (p *Parser) parseComparison() (Ref, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return NilRef, err
	}
	for {
		if p.atKeyword("in") {
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return NilRef, err
			}
			left = p.storage.Add(&Binary{Op: BinaryIn, L: left, R: right})
			continue
		}
		t := p.peek()
		if t.Kind != TokenPunct {
			break
		}
		op, ok := comparisonOps[t.Text]
		if !ok {
			break
		}
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return NilRef, err
		}
		left = p.storage.Add(&Binary{Op: op, L: left, R: right})
	}
	return left, nil
}

func (p *Parser) parseAdditive() (Ref, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return NilRef, err
	}
	for {
		var op BinaryOp
		switch {
		case p.atPunct("+"):
			op = BinaryAdd
		case p.atPunct("-"):
			op = BinarySub
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return NilRef, err
		}
		left = p.storage.Add(&Binary{Op: op, L: left, R: right})
	}
}

func (p *Parser) parseMultiplicative() (Ref, error) {
	left, err := p.parseUnary()
	if err != nil {
		return NilRef, err
	}
	for {
		var op BinaryOp
		switch {
		case p.atPunct("*"):
			op = BinaryMul
		case p.atPunct("/"):
			op = BinaryDiv
		case p.atPunct("%"):
			op = BinaryMod
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return NilRef, err
		}
		left = p.storage.Add(&Binary{Op: op, L: left, R: right})
	}
}

func (p *Parser) parseUnary() (Ref, error) {
	if p.acceptPunct("-") {
		operand, err := p.parseUnary()
		if err != nil {
			return NilRef, err
		}
		return p.storage.Add(&Unary{Op: UnaryMinus, Operand: operand}), nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Ref, error) {
	expr, err := p.parseAtom()
	if err != nil {
		return NilRef, err
	}
	for p.acceptPunct(".") {
		key, err := p.expectIdent()
		if err != nil {
			return NilRef, err
		}
		expr = p.storage.Add(&PropertyLookup{Expr: expr, Key: key.Text})
	}
	return expr, nil
}

func (p *Parser) parseAtom() (Ref, error) {
	t := p.peek()
	switch t.Kind {
	case TokenInt:
		p.next()
		i, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return NilRef, &SyntaxError{Pos: t.Pos, Message: "integer literal out of range"}
		}
		return p.storage.Add(&Literal{Value: value.Int(i)}), nil
	case TokenFloat:
		p.next()
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return NilRef, &SyntaxError{Pos: t.Pos, Message: "malformed float literal"}
		}
		return p.storage.Add(&Literal{Value: value.Float(f)}), nil
	case TokenString:
		p.next()
		return p.storage.Add(&Literal{Value: value.String(t.Text)}), nil
	case TokenParam:
		p.next()
		param := &Parameter{Name: t.Text, Index: -1, TokenPos: t.Index}
		if i, err := strconv.Atoi(t.Text); err == nil {
			param.Index = i
			param.Name = ""
		}
		return p.storage.Add(param), nil
	case TokenPunct:
		switch t.Text {
		case "(":
			p.next()
			expr, err := p.parseExpr()
			if err != nil {
				return NilRef, err
			}
			if err := p.expectPunct(")"); err != nil {
				return NilRef, err
			}
			return expr, nil
		case "[":
			p.next()
			list := &ListLiteral{}
			if !p.atPunct("]") {
				for {
					item, err := p.parseExpr()
					if err != nil {
						return NilRef, err
					}
					list.Items = append(list.Items, item)
					if !p.acceptPunct(",") {
						break
					}
				}
			}
			if err := p.expectPunct("]"); err != nil {
				return NilRef, err
			}
			return p.storage.Add(list), nil
		case "{":
			return p.parseMapLiteral()
		}
	case TokenIdent:
		switch {
		case t.IsKeyword("true"):
			p.next()
			return p.storage.Add(&Literal{Value: value.Bool(true)}), nil
		case t.IsKeyword("false"):
			p.next()
			return p.storage.Add(&Literal{Value: value.Bool(false)}), nil
		case t.IsKeyword("null"):
			p.next()
			return p.storage.Add(&Literal{Value: value.Null}), nil
		}
		if p.pos+1 < len(p.tokens) &&
			p.tokens[p.pos+1].Kind == TokenPunct && p.tokens[p.pos+1].Text == "(" {
			return p.parseFunctionCall()
		}
		p.next()
		return p.storage.Add(&Identifier{Name: t.Text, TokenPos: t.Index}), nil
	}
	return NilRef, p.errorf("expected an expression, got %q", t.Text)
}

func (p *Parser) parseFunctionCall() (Ref, error) {
	name := p.next()
	if err := p.expectPunct("("); err != nil {
		return NilRef, err
	}
	call := &FunctionCall{Name: strings.ToLower(name.Text)}
	if p.acceptPunct("*") {
		call.Star = true
		if err := p.expectPunct(")"); err != nil {
			return NilRef, err
		}
		return p.storage.Add(call), nil
	}
	call.Distinct = p.acceptKeyword("distinct")
	if !p.atPunct(")") {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return NilRef, err
			}
			call.Args = append(call.Args, arg)
			if !p.acceptPunct(",") {
				break
			}
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return NilRef, err
	}
	return p.storage.Add(call), nil
}
