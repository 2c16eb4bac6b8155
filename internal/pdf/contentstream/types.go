package contentstream

import (
	"fmt"
	"strconv"
	"strings"
)

// Character classes used by the lexer
const (
	NullChar           = 0x00
	TabChar            = 0x09
	LineFeedChar       = 0x0A
	FormFeedChar       = 0x0C
	CarriageReturnChar = 0x0D
	SpaceChar          = 0x20

	LeftParen   = '('
	RightParen  = ')'
	LeftAngle   = '<'
	RightAngle  = '>'
	LeftSquare  = '['
	RightSquare = ']'
	LeftCurly   = '{'
	RightCurly  = '}'
	Solidus     = '/'
	PercentSign = '%'
)

// IsWhitespace checks if a character is PDF whitespace
func IsWhitespace(ch byte) bool {
	return ch == NullChar || ch == TabChar || ch == LineFeedChar ||
		ch == FormFeedChar || ch == CarriageReturnChar || ch == SpaceChar
}

// IsDelimiter checks if a character is a PDF delimiter
func IsDelimiter(ch byte) bool {
	return ch == LeftParen || ch == RightParen || ch == LeftAngle || ch == RightAngle ||
		ch == LeftSquare || ch == RightSquare || ch == LeftCurly || ch == RightCurly ||
		ch == Solidus || ch == PercentSign
}

// IsRegular checks if a character is neither whitespace nor a delimiter
func IsRegular(ch byte) bool {
	return !IsWhitespace(ch) && !IsDelimiter(ch)
}

// TokenType represents the type of a lexical token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenHexString
	TokenName
	TokenArrayStart
	TokenArrayEnd
	TokenDictStart
	TokenDictEnd
	TokenKeyword
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenHexString:
		return "hex_string"
	case TokenName:
		return "name"
	case TokenArrayStart:
		return "array_start"
	case TokenArrayEnd:
		return "array_end"
	case TokenDictStart:
		return "dict_start"
	case TokenDictEnd:
		return "dict_end"
	case TokenKeyword:
		return "keyword"
	default:
		return "unknown"
	}
}

// Token is a lexical token. Value holds decoded bytes for strings and names.
// Pos and End delimit the token in the input.
type Token struct {
	Type  TokenType
	Value string
	Num   float64
	Pos   int
	End   int
}

// ObjectType represents the type of an operand
type ObjectType int

const (
	TypeNull ObjectType = iota
	TypeBool
	TypeNumber
	TypeString
	TypeName
	TypeArray
	TypeDictionary
)

func (t ObjectType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeName:
		return "name"
	case TypeArray:
		return "array"
	case TypeDictionary:
		return "dictionary"
	default:
		return "unknown"
	}
}

// Object is an operand in a content stream
type Object struct {
	Type  ObjectType
	Num   float64
	Bool  bool
	Str   string // decoded string bytes or name value
	Hex   bool
	Array []Object
	Dict  map[string]Object
}

// Number returns the numeric value, or false if the object is not a number
func (o Object) Number() (float64, bool) {
	if o.Type != TypeNumber {
		return 0, false
	}
	return o.Num, true
}

// Name returns the name value, or false if the object is not a name
func (o Object) Name() (string, bool) {
	if o.Type != TypeName {
		return "", false
	}
	return o.Str, true
}

// String renders the object in content stream syntax
func (o Object) String() string {
	switch o.Type {
	case TypeBool:
		return strconv.FormatBool(o.Bool)
	case TypeNumber:
		return FormatNumber(o.Num)
	case TypeString:
		if o.Hex {
			return fmt.Sprintf("<%X>", []byte(o.Str))
		}
		return "(" + escapeLiteral(o.Str) + ")"
	case TypeName:
		return "/" + o.Str
	case TypeArray:
		parts := make([]string, len(o.Array))
		for i, item := range o.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	case TypeDictionary:
		var b strings.Builder
		b.WriteString("<<")
		for k, v := range o.Dict {
			b.WriteString(" /" + k + " " + v.String())
		}
		b.WriteString(" >>")
		return b.String()
	default:
		return "null"
	}
}

// Operation is an operator with its operands. Start and End delimit the
// operation (operands included) in the source stream.
type Operation struct {
	Operator string
	Operands []Object
	Start    int
	End      int
}

// ParseError represents an error that occurred while parsing a content stream
type ParseError struct {
	Message  string
	Position int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("content stream parse error at offset %d: %s", e.Position, e.Message)
}

// NewParseError creates a new parse error
func NewParseError(msg string, pos int) *ParseError {
	return &ParseError{Message: msg, Position: pos}
}

// FormatNumber writes a number the way content streams expect: no exponent,
// at most four decimals, no trailing zeros.
func FormatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

func escapeLiteral(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
