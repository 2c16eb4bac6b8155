package contentstream

import (
	"bytes"
	"fmt"

	"github.com/a3tai/pdf-redactor/internal/redact"
)

var pathConstruction = map[string]bool{
	"m": true, "l": true, "c": true, "v": true, "y": true, "h": true, "re": true,
}

// Result is a rewritten page content stream
type Result struct {
	Content []byte
	// Removed counts drawing operations deleted or neutralised
	Removed int
	// Coarse counts images, forms and shadings removed whole although they
	// extend beyond every region
	Coarse int
}

type edit struct {
	drop        bool
	replacement string
}

// Redact removes every drawing operation whose bounding box intersects one
// of rects and appends an opaque cover for each rect. Text operations are
// replaced by an equivalent displacement so the rest of the line keeps its
// position. Untouched operations are copied byte for byte.
func Redact(data []byte, res Resources, pageBox redact.Rect, rects []redact.Rect) (*Result, error) {
	ops, err := Parse(data)
	if err != nil {
		return nil, err
	}

	trace := NewTracer(res, pageBox).Trace(ops)
	edits := make(map[int]edit)
	result := &Result{}

	for _, idx := range trace.Unbalanced {
		edits[idx] = edit{drop: true}
	}

	for _, mark := range trace.Marks {
		if !intersectsAny(mark.Box, rects) {
			continue
		}
		result.Removed++

		switch mark.Kind {
		case MarkText:
			edits[mark.Index] = edit{replacement: textReplacement(ops[mark.Index], mark.Displacement)}
		case MarkPath:
			if mark.Clip {
				edits[mark.Index] = edit{replacement: "n"}
				continue
			}
			for i := mark.PathStart; i <= mark.Index; i++ {
				if pathConstruction[ops[i].Operator] || i == mark.Index {
					edits[i] = edit{drop: true}
				}
			}
		default:
			edits[mark.Index] = edit{drop: true}
			if !containedByAny(mark.Box, rects) {
				result.Coarse++
			}
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 64*len(rects) + 8)
	buf.WriteString("q\n")
	for i, op := range ops {
		e, ok := edits[i]
		switch {
		case !ok:
			buf.Write(data[op.Start:op.End])
		case e.drop:
			continue
		default:
			buf.WriteString(e.replacement)
		}
		buf.WriteByte('\n')
	}
	for i := 0; i < trace.OpenSaves; i++ {
		buf.WriteString("Q\n")
	}
	buf.WriteString("Q\n")
	WriteCovers(&buf, rects)

	result.Content = buf.Bytes()
	return result, nil
}

// WriteCovers appends one opaque black rectangle per rect
func WriteCovers(buf *bytes.Buffer, rects []redact.Rect) {
	for _, r := range rects {
		fmt.Fprintf(buf, "q 0 g %s %s %s %s re f Q\n",
			FormatNumber(r.MinX), FormatNumber(r.MinY), FormatNumber(r.Width()), FormatNumber(r.Height()))
	}
}

// textReplacement builds a glyph free operation that moves the text
// position exactly as op did
func textReplacement(op Operation, displacement float64) string {
	tj := "[] TJ"
	if displacement != 0 {
		tj = "[" + FormatNumber(displacement) + "] TJ"
	}

	switch op.Operator {
	case "'":
		return "T* " + tj
	case "\"":
		if len(op.Operands) == 3 {
			return op.Operands[0].String() + " Tw " + op.Operands[1].String() + " Tc T* " + tj
		}
		return "T* " + tj
	default:
		return tj
	}
}

func intersectsAny(box redact.Rect, rects []redact.Rect) bool {
	for _, r := range rects {
		if r.Intersects(box) {
			return true
		}
	}
	return false
}

func containedByAny(box redact.Rect, rects []redact.Rect) bool {
	for _, r := range rects {
		if box.MinX >= r.MinX && box.MaxX <= r.MaxX && box.MinY >= r.MinY && box.MaxY <= r.MaxY {
			return true
		}
	}
	return false
}
