package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wegfawefgawefg/notscheme-go/token"
)

func collectTokens(t *testing.T, input string) []token.Token {
	t.Helper()
	l := New(input)
	var tokens []token.Token
	for {
		tok, err := l.NextToken()
		require.NoError(t, err)
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens
		}
	}
}

func TestNextTokenBasicForm(t *testing.T) {
	input := `(static a 10)`
	tokens := collectTokens(t, input)

	expected := []token.Type{
		token.LPAREN, token.SYMBOL, token.SYMBOL, token.NUMBER, token.RPAREN, token.EOF,
	}
	require.Len(t, tokens, len(expected))
	for i, typ := range expected {
		require.Equalf(t, typ, tokens[i].Type, "token %d", i)
	}
}

func TestNextTokenLiterals(t *testing.T) {
	input := `"hello\nworld" 3.14 -5 true false nil 'sym`
	tokens := collectTokens(t, input)

	require.Equal(t, token.STRING, tokens[0].Type)
	require.Equal(t, "hello\nworld", tokens[0].Literal)
	require.Equal(t, token.NUMBER, tokens[1].Type)
	require.Equal(t, "3.14", tokens[1].Literal)
	require.Equal(t, token.NUMBER, tokens[2].Type)
	require.Equal(t, "-5", tokens[2].Literal)
	require.Equal(t, token.BOOLEAN, tokens[3].Type)
	require.Equal(t, token.BOOLEAN, tokens[4].Type)
	require.Equal(t, token.NIL, tokens[5].Type)
	require.Equal(t, token.QUOTE, tokens[6].Type)
	require.Equal(t, token.SYMBOL, tokens[7].Type)
	require.Equal(t, "sym", tokens[7].Literal)
}

func TestNextTokenSkipsLineComments(t *testing.T) {
	input := "// a comment\n(+ 1 2) // trailing"
	tokens := collectTokens(t, input)
	require.Equal(t, token.LPAREN, tokens[0].Type)
	require.Equal(t, token.SYMBOL, tokens[1].Type)
	require.Equal(t, "+", tokens[1].Literal)
}

func TestNextTokenOperatorSymbols(t *testing.T) {
	for _, op := range []string{"+", "-", "*", "/", "=", ">", "<", "not", "is_nil?"} {
		tokens := collectTokens(t, op)
		require.Equal(t, token.SYMBOL, tokens[0].Type)
		require.Equal(t, op, tokens[0].Literal)
	}
}

func TestNextTokenUnexpectedCharacter(t *testing.T) {
	l := New("@")
	_, err := l.NextToken()
	require.Error(t, err)
}
