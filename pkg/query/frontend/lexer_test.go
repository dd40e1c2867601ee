package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeBasics(t *testing.T) {
	tokens, err := Tokenize(`MATCH (n:Person) WHERE n.age >= 21 RETURN n`)
	require.NoError(t, err)

	var texts []string
	for _, tok := range tokens {
		texts = append(texts, tok.Text)
	}
	assert.Equal(t, []string{
		"MATCH", "(", "n", ":", "Person", ")",
		"WHERE", "n", ".", "age", ">=", "21", "RETURN", "n", "",
	}, texts)
	assert.Equal(t, TokenEOF, tokens[len(tokens)-1].Kind)
}

func TestTokenizeNumbers(t *testing.T) {
	tokens, err := Tokenize("1 2.5 1e3 2.5e-2 1..3")
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{
		TokenInt, TokenFloat, TokenFloat, TokenFloat,
		TokenInt, TokenPunct, TokenInt, TokenEOF,
	}, kinds(tokens))
	assert.Equal(t, "..", tokens[5].Text)
}

func TestTokenizeStrings(t *testing.T) {
	tokens, err := Tokenize(`'it''s' "a\nb" 'q\'d'`)
	require.NoError(t, err)
	require.Len(t, tokens, 5)
	assert.Equal(t, "it", tokens[0].Text)
	assert.Equal(t, "s", tokens[1].Text)
	assert.Equal(t, "a\nb", tokens[2].Text)
	assert.Equal(t, "q'd", tokens[3].Text)

	_, err = Tokenize(`'open`)
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "unterminated")
}

func TestTokenizeParams(t *testing.T) {
	tokens, err := Tokenize("$name $0 $12")
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	for _, tok := range tokens[:3] {
		assert.Equal(t, TokenParam, tok.Kind)
	}
	assert.Equal(t, "name", tokens[0].Text)
	assert.Equal(t, "12", tokens[2].Text)

	_, err = Tokenize("$ x")
	assert.Error(t, err)
}

func TestTokenizeComments(t *testing.T) {
	tokens, err := Tokenize("RETURN 1 // trailing\n// whole line\nRETURN 2")
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{
		TokenIdent, TokenInt, TokenIdent, TokenInt, TokenEOF,
	}, kinds(tokens))
}

func TestTokenizeQuotedIdentifier(t *testing.T) {
	tokens, err := Tokenize("MATCH (`weird name`)")
	require.NoError(t, err)
	assert.Equal(t, "weird name", tokens[2].Text)
	assert.Equal(t, TokenIdent, tokens[2].Kind)
}

func TestTokenIndexIsOrdinal(t *testing.T) {
	tokens, err := Tokenize("RETURN 1 + 2")
	require.NoError(t, err)
	for i, tok := range tokens {
		assert.Equal(t, i, tok.Index)
	}
}

func TestTokenizeRejectsUnknownRune(t *testing.T) {
	_, err := Tokenize("RETURN ^")
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "unexpected character")
}
