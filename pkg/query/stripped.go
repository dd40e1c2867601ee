package query

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/value"
)

// Stripped is a canonicalized query: every literal and named parameter is
// replaced by a positional placeholder so that queries differing only in
// literal values share one canonical text, one hash and one cached plan.
type Stripped struct {
	// Query is the canonical text, tokens joined by single spaces.
	Query string
	// Hash is a stable 64-bit hash of Query.
	Hash uint64
	// Literals maps placeholder index to the extracted literal value.
	Literals map[int]value.Value
	// Params maps placeholder index to the caller-supplied parameter name
	// for $name references present in the source.
	Params map[int]string
	// TextForms maps the token position of an unaliased RETURN or WITH item
	// to its user-written text, for result headers.
	TextForms map[int]string
}

// clause keywords that terminate a projection item list.
var projectionEnders = []string{
	"order", "skip", "limit", "where", "match", "optional", "create",
	"merge", "with", "return", "unwind", "delete", "detach", "set",
	"remove", "union",
}

// Strip tokenizes src and replaces literals and named parameters with
// positional placeholders. Integers directly after "*" or ".." survive
// unstripped so that variable-expansion hop bounds stay part of the plan.
func Strip(src string) (*Stripped, error) {
	tokens, err := frontend.Tokenize(src)
	if err != nil {
		return nil, err
	}

	s := &Stripped{
		Literals:  make(map[int]value.Value),
		Params:    make(map[int]string),
		TextForms: make(map[int]string),
	}

	var out []string
	next := 0
	prevPunct := ""
	for _, t := range tokens {
		switch t.Kind {
		case frontend.TokenEOF:
			continue
		case frontend.TokenInt:
			if prevPunct == "*" || prevPunct == ".." {
				out = append(out, t.Text)
				break
			}
			i, err := strconv.ParseInt(t.Text, 10, 64)
			if err != nil {
				return nil, &frontend.SyntaxError{Pos: t.Pos, Message: "malformed integer literal"}
			}
			s.Literals[next] = value.Int(i)
			out = append(out, placeholder(next))
			next++
		case frontend.TokenFloat:
			f, err := strconv.ParseFloat(t.Text, 64)
			if err != nil {
				return nil, &frontend.SyntaxError{Pos: t.Pos, Message: "malformed float literal"}
			}
			s.Literals[next] = value.Float(f)
			out = append(out, placeholder(next))
			next++
		case frontend.TokenString:
			s.Literals[next] = value.String(t.Text)
			out = append(out, placeholder(next))
			next++
		case frontend.TokenParam:
			s.Params[next] = t.Text
			out = append(out, placeholder(next))
			next++
		default:
			out = append(out, t.Text)
		}
		if t.Kind == frontend.TokenPunct {
			prevPunct = t.Text
		} else {
			prevPunct = ""
		}
	}

	collectTextForms(src, tokens, s.TextForms)

	s.Query = strings.Join(out, " ")
	s.Hash = xxhash.Sum64String(s.Query)
	return s, nil
}

func placeholder(i int) string {
	return "$" + strconv.Itoa(i)
}

// ResolveParameters builds the positional parameter vector the stripped
// text refers to, combining extracted literals with caller bindings. A
// $name placeholder with no binding in named fails.
func (s *Stripped) ResolveParameters(named map[string]value.Value) ([]value.Value, error) {
	positional := make([]value.Value, len(s.Literals)+len(s.Params))
	for i, v := range s.Literals {
		positional[i] = v
	}
	for i, name := range s.Params {
		v, ok := named[name]
		if !ok {
			return nil, &ParameterError{Name: name}
		}
		positional[i] = v
	}
	return positional, nil
}

// collectTextForms records the user-written text of every unaliased
// RETURN or WITH item, keyed by the item's first token position. Aliased
// items are skipped; their alias already names the output column.
func collectTextForms(src string, tokens []frontend.Token, forms map[int]string) {
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.Kind != frontend.TokenIdent || !(t.IsKeyword("return") || t.IsKeyword("with")) {
			continue
		}
		j := i + 1
		if j < len(tokens) && tokens[j].IsKeyword("distinct") {
			j++
		}
		for j < len(tokens) && tokens[j].Kind != frontend.TokenEOF {
			j = collectItem(src, tokens, j, forms)
			if j >= len(tokens) || !isPunct(tokens[j], ",") {
				break
			}
			j++
		}
		i = j - 1
	}
}

// collectItem scans one projection item starting at token j and returns
// the index of the token that ended it.
func collectItem(src string, tokens []frontend.Token, j int, forms map[int]string) int {
	start := j
	depth := 0
	aliased := false
	for ; j < len(tokens); j++ {
		t := tokens[j]
		if t.Kind == frontend.TokenEOF {
			break
		}
		if t.Kind == frontend.TokenPunct {
			switch t.Text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			case ",", ";":
				if depth <= 0 {
					goto done
				}
			}
			continue
		}
		if depth > 0 || t.Kind != frontend.TokenIdent {
			continue
		}
		if t.IsKeyword("as") {
			aliased = true
			continue
		}
		if isProjectionEnder(t) {
			goto done
		}
	}
done:
	if !aliased && j > start {
		end := len(src)
		if j < len(tokens) {
			end = tokens[j].Pos
		}
		forms[tokens[start].Index] = strings.TrimSpace(src[tokens[start].Pos:end])
	}
	return j
}

func isProjectionEnder(t frontend.Token) bool {
	for _, kw := range projectionEnders {
		if t.IsKeyword(kw) {
			return true
		}
	}
	return false
}

func isPunct(t frontend.Token, text string) bool {
	return t.Kind == frontend.TokenPunct && t.Text == text
}
