package contentstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectTokens(t *testing.T, input string) []Token {
	t.Helper()
	lexer := NewLexer([]byte(input))
	var tokens []Token
	for {
		tok, err := lexer.NextToken()
		require.NoError(t, err)
		if tok.Type == TokenEOF {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}

func TestLexer_Tokens(t *testing.T) {
	tokens := collectTokens(t, `(a\(b\)c) <48 65> /Na#6De 12 -3.5 .5 [ ] << >> Tj`)

	expected := []struct {
		typ   TokenType
		value string
	}{
		{TokenString, "a(b)c"},
		{TokenHexString, "He"},
		{TokenName, "Name"},
		{TokenNumber, "12"},
		{TokenNumber, "-3.5"},
		{TokenNumber, ".5"},
		{TokenArrayStart, "["},
		{TokenArrayEnd, "]"},
		{TokenDictStart, "<<"},
		{TokenDictEnd, ">>"},
		{TokenKeyword, "Tj"},
	}

	require.Len(t, tokens, len(expected))
	for i, exp := range expected {
		assert.Equal(t, exp.typ, tokens[i].Type, "token %d", i)
		assert.Equal(t, exp.value, tokens[i].Value, "token %d", i)
	}

	assert.Equal(t, 12.0, tokens[3].Num)
	assert.Equal(t, -3.5, tokens[4].Num)
	assert.Equal(t, 0.5, tokens[5].Num)
}

func TestLexer_Spans(t *testing.T) {
	input := "  /F1 12 Tf"
	tokens := collectTokens(t, input)
	require.Len(t, tokens, 3)

	assert.Equal(t, "/F1", input[tokens[0].Pos:tokens[0].End])
	assert.Equal(t, "12", input[tokens[1].Pos:tokens[1].End])
	assert.Equal(t, "Tf", input[tokens[2].Pos:tokens[2].End])
}

func TestLexer_LiteralStrings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"nested parentheses", `(a(b)c)`, "a(b)c"},
		{"octal escapes", `(\101\102)`, "AB"},
		{"short octal", `(\7x)`, "\x07x"},
		{"named escapes", `(\n\r\t)`, "\n\r\t"},
		{"line continuation", "(ab\\\ncd)", "abcd"},
		{"unknown escape keeps char", `(\q)`, "q"},
		{"empty", `()`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := collectTokens(t, tt.input)
			require.Len(t, tokens, 1)
			assert.Equal(t, TokenString, tokens[0].Type)
			assert.Equal(t, tt.want, tokens[0].Value)
		})
	}
}

func TestLexer_HexStrings(t *testing.T) {
	tokens := collectTokens(t, "<414> <00 4a>")
	require.Len(t, tokens, 2)
	assert.Equal(t, "A@", tokens[0].Value, "odd digit count pads with zero")
	assert.Equal(t, "\x00J", tokens[1].Value)
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"0", 0},
		{"+17", 17},
		{"-.002", -0.002},
		{"--5", -5},
		{"1.2.3", 1.2},
		{"-", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens := collectTokens(t, tt.input)
			require.Len(t, tokens, 1)
			assert.Equal(t, TokenNumber, tokens[0].Type)
			assert.InDelta(t, tt.want, tokens[0].Num, 1e-12)
		})
	}
}

func TestLexer_Comments(t *testing.T) {
	tokens := collectTokens(t, "% leading comment\nBT % trailing\r\nET")
	require.Len(t, tokens, 2)
	assert.Equal(t, "BT", tokens[0].Value)
	assert.Equal(t, "ET", tokens[1].Value)
}

func TestLexer_Errors(t *testing.T) {
	inputs := []string{
		"(unterminated",
		"<4G>",
		"<41",
		")",
		"{",
		"> x",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			lexer := NewLexer([]byte(input))
			_, err := lexer.NextToken()
			require.Error(t, err)
			var perr *ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestLexer_InlineImageData(t *testing.T) {
	input := "ID \x01EI\x02\x03 EI Q"
	lexer := NewLexer([]byte(input))

	tok, err := lexer.NextToken()
	require.NoError(t, err)
	require.Equal(t, "ID", tok.Value)

	data, end, err := lexer.ReadInlineImageData()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x01EI\x02\x03"), data, "EI not preceded by whitespace belongs to the data")
	assert.Equal(t, len("ID \x01EI\x02\x03 EI"), end)

	tok, err = lexer.NextToken()
	require.NoError(t, err)
	assert.Equal(t, "Q", tok.Value)
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{
		0:         "0",
		1:         "1",
		-1000:     "-1000",
		12.5:      "12.5",
		0.123456:  "0.1235",
		-0.00001:  "0",
		792.00001: "792",
	}

	for in, want := range tests {
		assert.Equal(t, want, FormatNumber(in), "FormatNumber(%v)", in)
	}
}
