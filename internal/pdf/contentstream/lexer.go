package contentstream

import (
	"bytes"
	"strconv"
)

// Lexer tokenizes a decoded content stream held in memory. Every token keeps
// its byte span so untouched operations can be copied through verbatim.
type Lexer struct {
	data []byte
	pos  int
}

// NewLexer creates a new content stream lexer
func NewLexer(data []byte) *Lexer {
	return &Lexer{data: data}
}

// Position returns the current offset in the input
func (l *Lexer) Position() int {
	return l.pos
}

func (l *Lexer) hasNext() bool {
	return l.pos < len(l.data)
}

func (l *Lexer) current() byte {
	if !l.hasNext() {
		return 0
	}
	return l.data[l.pos]
}

func (l *Lexer) peek() byte {
	if l.pos+1 >= len(l.data) {
		return 0
	}
	return l.data[l.pos+1]
}

// skipWhitespace skips whitespace and comments
func (l *Lexer) skipWhitespace() {
	for l.hasNext() {
		ch := l.current()
		if IsWhitespace(ch) {
			l.pos++
			continue
		}
		if ch == PercentSign {
			for l.hasNext() && l.current() != LineFeedChar && l.current() != CarriageReturnChar {
				l.pos++
			}
			continue
		}
		return
	}
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()

	if !l.hasNext() {
		return Token{Type: TokenEOF, Pos: l.pos, End: l.pos}, nil
	}

	start := l.pos

	switch ch := l.current(); ch {
	case LeftParen:
		return l.readLiteralString()
	case LeftAngle:
		if l.peek() == LeftAngle {
			l.pos += 2
			return Token{Type: TokenDictStart, Value: "<<", Pos: start, End: l.pos}, nil
		}
		return l.readHexString()
	case RightAngle:
		if l.peek() == RightAngle {
			l.pos += 2
			return Token{Type: TokenDictEnd, Value: ">>", Pos: start, End: l.pos}, nil
		}
		return Token{}, NewParseError("unexpected '>'", start)
	case LeftSquare:
		l.pos++
		return Token{Type: TokenArrayStart, Value: "[", Pos: start, End: l.pos}, nil
	case RightSquare:
		l.pos++
		return Token{Type: TokenArrayEnd, Value: "]", Pos: start, End: l.pos}, nil
	case Solidus:
		return l.readName()
	case RightParen, LeftCurly, RightCurly:
		return Token{}, NewParseError("unexpected '"+string(ch)+"'", start)
	default:
		if isNumberStart(ch) {
			return l.readNumber()
		}
		return l.readKeyword()
	}
}

func isNumberStart(ch byte) bool {
	return (ch >= '0' && ch <= '9') || ch == '+' || ch == '-' || ch == '.'
}

func isOctal(ch byte) bool {
	return ch >= '0' && ch <= '7'
}

func hexValue(ch byte) (byte, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return ch - '0', true
	case ch >= 'a' && ch <= 'f':
		return ch - 'a' + 10, true
	case ch >= 'A' && ch <= 'F':
		return ch - 'A' + 10, true
	}
	return 0, false
}

// readLiteralString reads a literal string enclosed in parentheses
func (l *Lexer) readLiteralString() (Token, error) {
	start := l.pos
	var buffer bytes.Buffer

	l.pos++ // opening parenthesis
	depth := 1

	for l.hasNext() {
		ch := l.current()

		switch ch {
		case LeftParen:
			depth++
			buffer.WriteByte(ch)
		case RightParen:
			depth--
			if depth == 0 {
				l.pos++
				return Token{Type: TokenString, Value: buffer.String(), Pos: start, End: l.pos}, nil
			}
			buffer.WriteByte(ch)
		case '\\':
			l.pos++
			if !l.hasNext() {
				break
			}
			esc := l.current()
			switch esc {
			case 'n':
				buffer.WriteByte('\n')
			case 'r':
				buffer.WriteByte('\r')
			case 't':
				buffer.WriteByte('\t')
			case 'b':
				buffer.WriteByte('\b')
			case 'f':
				buffer.WriteByte('\f')
			case LineFeedChar:
				// line continuation
			case CarriageReturnChar:
				if l.peek() == LineFeedChar {
					l.pos++
				}
			default:
				if isOctal(esc) {
					val := int(esc - '0')
					for i := 0; i < 2 && isOctal(l.peek()); i++ {
						l.pos++
						val = val*8 + int(l.current()-'0')
					}
					buffer.WriteByte(byte(val))
				} else {
					buffer.WriteByte(esc)
				}
			}
		default:
			buffer.WriteByte(ch)
		}

		l.pos++
	}

	return Token{}, NewParseError("unterminated literal string", start)
}

// readHexString reads a hexadecimal string enclosed in angle brackets
func (l *Lexer) readHexString() (Token, error) {
	start := l.pos
	var buffer bytes.Buffer

	l.pos++ // opening angle bracket

	var hi byte
	odd := false
	for l.hasNext() && l.current() != RightAngle {
		ch := l.current()
		l.pos++
		if IsWhitespace(ch) {
			continue
		}
		v, ok := hexValue(ch)
		if !ok {
			return Token{}, NewParseError("invalid hex digit in hex string", l.pos-1)
		}
		if odd {
			buffer.WriteByte(hi<<4 | v)
		} else {
			hi = v
		}
		odd = !odd
	}

	if !l.hasNext() {
		return Token{}, NewParseError("unterminated hex string", start)
	}
	l.pos++ // closing angle bracket

	// odd digit count: the final digit is followed by an implied 0
	if odd {
		buffer.WriteByte(hi << 4)
	}

	return Token{Type: TokenHexString, Value: buffer.String(), Pos: start, End: l.pos}, nil
}

// readName reads a name object starting with /
func (l *Lexer) readName() (Token, error) {
	start := l.pos
	var buffer bytes.Buffer

	l.pos++ // solidus

	for l.hasNext() && IsRegular(l.current()) {
		ch := l.current()
		if ch == '#' && l.pos+2 < len(l.data) {
			h1, ok1 := hexValue(l.data[l.pos+1])
			h2, ok2 := hexValue(l.data[l.pos+2])
			if ok1 && ok2 {
				buffer.WriteByte(h1<<4 | h2)
				l.pos += 3
				continue
			}
		}
		buffer.WriteByte(ch)
		l.pos++
	}

	return Token{Type: TokenName, Value: buffer.String(), Pos: start, End: l.pos}, nil
}

// readNumber reads a numeric value (integer or real)
func (l *Lexer) readNumber() (Token, error) {
	start := l.pos

	if c := l.current(); c == '+' || c == '-' {
		l.pos++
	}
	// some producers emit doubled signs such as "--5"; keep them in the span
	for l.hasNext() && (l.current() == '-' || l.current() == '+') {
		l.pos++
	}
	for l.hasNext() && ((l.current() >= '0' && l.current() <= '9') || l.current() == '.') {
		l.pos++
	}

	raw := string(l.data[start:l.pos])
	n, err := strconv.ParseFloat(normalizeNumber(raw), 64)
	if err != nil {
		return Token{}, NewParseError("invalid number "+strconv.Quote(raw), start)
	}

	return Token{Type: TokenNumber, Value: raw, Num: n, Pos: start, End: l.pos}, nil
}

// normalizeNumber tolerates the malformed numbers real producers write
func normalizeNumber(raw string) string {
	neg := false
	i := 0
	for i < len(raw) && (raw[i] == '+' || raw[i] == '-') {
		if raw[i] == '-' {
			neg = true
		}
		i++
	}
	body := raw[i:]
	if body == "" || body == "." {
		body = "0"
	}
	// a second decimal point ends the number
	if first := bytes.IndexByte([]byte(body), '.'); first >= 0 {
		if second := bytes.IndexByte([]byte(body[first+1:]), '.'); second >= 0 {
			body = body[:first+1+second]
		}
	}
	if neg {
		return "-" + body
	}
	return body
}

// readKeyword reads an operator or the keywords true, false and null
func (l *Lexer) readKeyword() (Token, error) {
	start := l.pos

	for l.hasNext() && IsRegular(l.current()) {
		l.pos++
	}

	return Token{Type: TokenKeyword, Value: string(l.data[start:l.pos]), Pos: start, End: l.pos}, nil
}

// ReadInlineImageData returns the raw bytes following an ID operator up to
// the EI that terminates the inline image. The lexer is left after EI.
func (l *Lexer) ReadInlineImageData() ([]byte, int, error) {
	// exactly one whitespace byte separates ID from the data
	if l.hasNext() && IsWhitespace(l.current()) {
		l.pos++
	}
	start := l.pos

	for i := start; i+1 < len(l.data); i++ {
		if l.data[i] != 'E' || l.data[i+1] != 'I' {
			continue
		}
		if i > start && !IsWhitespace(l.data[i-1]) {
			continue
		}
		after := i + 2
		if after < len(l.data) && !IsWhitespace(l.data[after]) && !IsDelimiter(l.data[after]) {
			continue
		}
		end := i
		if end > start && IsWhitespace(l.data[end-1]) {
			end--
		}
		l.pos = after
		return l.data[start:end], after, nil
	}

	return nil, 0, NewParseError("inline image without EI", start)
}
