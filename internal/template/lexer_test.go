package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer_PlainText(t *testing.T) {
	input := "0,1,name,5.0"
	lexer := NewLexer(input, "batch.template")

	tokens, err := lexer.Tokenize()
	require.NoError(t, err, "unexpected error")

	require.Len(t, tokens, 2, "expected 2 tokens") // TEXT + EOF

	assert.Equal(t, TokenText, tokens[0].Type, "expected TEXT")
	assert.Equal(t, input, tokens[0].Value, "expected input value")
	assert.Equal(t, TokenEOF, tokens[1].Type, "expected EOF")
}

func TestLexer_Placeholders(t *testing.T) {
	input := "${idx},${sample_number},${batch_name}${sample_number},${P10-HS}"
	lexer := NewLexer(input, "batch.template")

	tokens, err := lexer.Tokenize()
	require.NoError(t, err, "unexpected error")

	expected := []struct {
		typ TokenType
		val string
	}{
		{TokenPlaceholder, "idx"},
		{TokenText, ","},
		{TokenPlaceholder, "sample_number"},
		{TokenText, ","},
		{TokenPlaceholder, "batch_name"},
		{TokenPlaceholder, "sample_number"},
		{TokenText, ","},
		{TokenPlaceholder, "P10-HS"},
		{TokenEOF, ""},
	}

	require.Len(t, tokens, len(expected), "wrong number of tokens")

	for i, exp := range expected {
		assert.Equal(t, exp.typ, tokens[i].Type, "token[%d] type", i)
		if exp.typ != TokenEOF {
			assert.Equal(t, exp.val, tokens[i].Value, "token[%d] value", i)
		}
	}
}

func TestLexer_DollarWithoutBrace(t *testing.T) {
	tokens, err := NewLexer("cost $5", "").Tokenize()
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "cost $5", tokens[0].Value)
}

func TestLexer_Positions(t *testing.T) {
	tokens, err := NewLexerAt("ab${x}", "batch.template", 7).Tokenize()
	require.NoError(t, err)
	require.Len(t, tokens, 3)

	assert.Equal(t, Position{File: "batch.template", Line: 7, Column: 1}, tokens[0].Pos)
	assert.Equal(t, Position{File: "batch.template", Line: 7, Column: 3}, tokens[1].Pos)
}

func TestLexer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"unclosed at end", "0,${water", "unclosed placeholder"},
		{"unclosed before comma", "${water,1", "unclosed placeholder"},
		{"empty", "${}", "empty placeholder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLexer(tt.input, "batch.template").Tokenize()
			require.Error(t, err)

			var lexErr *LexError
			require.ErrorAs(t, err, &lexErr)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Contains(t, err.Error(), "batch.template:1:")
		})
	}
}

func TestTokenType_String(t *testing.T) {
	assert.Equal(t, "TEXT", TokenText.String())
	assert.Equal(t, "PLACEHOLDER", TokenPlaceholder.String())
	assert.Equal(t, "EOF", TokenEOF.String())
	assert.Equal(t, "UNKNOWN", TokenType(99).String())
}
