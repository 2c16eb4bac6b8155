package contentstream

import (
	"fmt"
)

// maxNesting bounds array/dictionary recursion in operands
const maxNesting = 64

// Parser turns a decoded content stream into operations
type Parser struct {
	lexer *Lexer
	data  []byte
}

// NewParser creates a parser over a decoded content stream
func NewParser(data []byte) *Parser {
	return &Parser{lexer: NewLexer(data), data: data}
}

// Parse parses a decoded content stream into operations
func Parse(data []byte) ([]Operation, error) {
	return NewParser(data).Parse()
}

// Parse reads every operation. Operands left dangling at the end of the
// stream are dropped; they draw nothing.
func (p *Parser) Parse() ([]Operation, error) {
	var ops []Operation
	var operands []Object
	opStart := -1

	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenEOF {
			return ops, nil
		}
		if opStart < 0 {
			opStart = tok.Pos
		}

		if tok.Type != TokenKeyword {
			obj, err := p.parseObject(tok, 0)
			if err != nil {
				return nil, err
			}
			operands = append(operands, obj)
			continue
		}

		switch tok.Value {
		case "true", "false":
			operands = append(operands, Object{Type: TypeBool, Bool: tok.Value == "true"})
			continue
		case "null":
			operands = append(operands, Object{Type: TypeNull})
			continue
		}

		if tok.Value == "BI" {
			op, err := p.parseInlineImage(opStart)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		} else {
			ops = append(ops, Operation{
				Operator: tok.Value,
				Operands: operands,
				Start:    opStart,
				End:      tok.End,
			})
		}

		operands = nil
		opStart = -1
	}
}

// parseObject parses a single operand starting at tok
func (p *Parser) parseObject(tok Token, depth int) (Object, error) {
	if depth > maxNesting {
		return Object{}, NewParseError("operand nesting too deep", tok.Pos)
	}

	switch tok.Type {
	case TokenNumber:
		return Object{Type: TypeNumber, Num: tok.Num}, nil
	case TokenString:
		return Object{Type: TypeString, Str: tok.Value}, nil
	case TokenHexString:
		return Object{Type: TypeString, Str: tok.Value, Hex: true}, nil
	case TokenName:
		return Object{Type: TypeName, Str: tok.Value}, nil
	case TokenArrayStart:
		return p.parseArray(depth)
	case TokenDictStart:
		return p.parseDict(depth)
	case TokenKeyword:
		switch tok.Value {
		case "true", "false":
			return Object{Type: TypeBool, Bool: tok.Value == "true"}, nil
		case "null":
			return Object{Type: TypeNull}, nil
		}
		return Object{}, NewParseError(fmt.Sprintf("unexpected operator %q inside operand", tok.Value), tok.Pos)
	default:
		return Object{}, NewParseError(fmt.Sprintf("unexpected %s token", tok.Type), tok.Pos)
	}
}

func (p *Parser) parseArray(depth int) (Object, error) {
	arr := Object{Type: TypeArray}
	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return Object{}, err
		}
		switch tok.Type {
		case TokenEOF:
			return Object{}, NewParseError("unterminated array", tok.Pos)
		case TokenArrayEnd:
			return arr, nil
		}
		item, err := p.parseObject(tok, depth+1)
		if err != nil {
			return Object{}, err
		}
		arr.Array = append(arr.Array, item)
	}
}

func (p *Parser) parseDict(depth int) (Object, error) {
	dict := Object{Type: TypeDictionary, Dict: make(map[string]Object)}
	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return Object{}, err
		}
		switch tok.Type {
		case TokenEOF:
			return Object{}, NewParseError("unterminated dictionary", tok.Pos)
		case TokenDictEnd:
			return dict, nil
		case TokenName:
		default:
			return Object{}, NewParseError("dictionary key must be a name", tok.Pos)
		}

		valTok, err := p.lexer.NextToken()
		if err != nil {
			return Object{}, err
		}
		val, err := p.parseObject(valTok, depth+1)
		if err != nil {
			return Object{}, err
		}
		dict.Dict[tok.Value] = val
	}
}

// parseInlineImage reads BI <key value pairs> ID <data> EI as one operation.
// The image dictionary is the single operand.
func (p *Parser) parseInlineImage(start int) (Operation, error) {
	dict := Object{Type: TypeDictionary, Dict: make(map[string]Object)}

	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return Operation{}, err
		}
		if tok.Type == TokenEOF {
			return Operation{}, NewParseError("inline image without ID", start)
		}
		if tok.Type == TokenKeyword && tok.Value == "ID" {
			break
		}
		if tok.Type != TokenName {
			return Operation{}, NewParseError("inline image key must be a name", tok.Pos)
		}

		valTok, err := p.lexer.NextToken()
		if err != nil {
			return Operation{}, err
		}
		val, err := p.parseObject(valTok, 1)
		if err != nil {
			return Operation{}, err
		}
		dict.Dict[tok.Value] = val
	}

	_, end, err := p.lexer.ReadInlineImageData()
	if err != nil {
		return Operation{}, err
	}

	return Operation{
		Operator: "BI",
		Operands: []Object{dict},
		Start:    start,
		End:      end,
	}, nil
}

// Raw returns the source bytes of an operation
func (p *Parser) Raw(op Operation) []byte {
	return p.data[op.Start:op.End]
}
