package contentstream

import (
	"math"

	"github.com/a3tai/pdf-redactor/internal/redact"
)

// MarkKind classifies an operation that puts marks on the page
type MarkKind int

const (
	MarkText MarkKind = iota + 1
	MarkPath
	MarkXObject
	MarkInlineImage
	MarkShading
)

func (k MarkKind) String() string {
	switch k {
	case MarkText:
		return "text"
	case MarkPath:
		return "path"
	case MarkXObject:
		return "xobject"
	case MarkInlineImage:
		return "inline_image"
	case MarkShading:
		return "shading"
	default:
		return "unknown"
	}
}

// Mark is a drawing operation with its bounding box in page space
type Mark struct {
	Index int
	Kind  MarkKind
	Box   redact.Rect

	// PathStart is the first path construction operation of a painted path
	PathStart int
	// Clip is set when the painted path is also a clipping path
	Clip bool
	// Displacement is the TJ adjustment (thousandths of text space) that
	// advances the text position as far as the text operation did
	Displacement float64
}

// Trace is the result of virtually executing a content stream
type Trace struct {
	Marks []Mark
	// Unbalanced lists Q operations without a matching q
	Unbalanced []int
	// OpenSaves is the number of q operations never restored
	OpenSaves int
}

type textParams struct {
	font      *Font
	fontSize  float64
	charSpace float64
	wordSpace float64
	scale     float64
	leading   float64
	rise      float64
}

type graphicsState struct {
	ctm       Matrix
	lineWidth float64
	clip      redact.Rect
	clipped   bool
	text      textParams
}

// Tracer executes content stream operations virtually and records the page
// space bounding box of every operation that draws something.
type Tracer struct {
	res     Resources
	pageBox redact.Rect

	gs    graphicsState
	stack []graphicsState

	tm  Matrix
	tlm Matrix

	pathStart   int
	path        bounds
	pendingClip bool
}

// NewTracer creates a tracer for one page
func NewTracer(res Resources, pageBox redact.Rect) *Tracer {
	return &Tracer{res: res, pageBox: pageBox}
}

func (t *Tracer) reset() {
	t.gs = graphicsState{
		ctm:       Identity(),
		lineWidth: 1,
		text:      textParams{scale: 1},
	}
	t.stack = nil
	t.tm = Identity()
	t.tlm = Identity()
	t.pathStart = -1
	t.path = bounds{}
	t.pendingClip = false
}

// Trace executes ops and returns their marks in stream order
func (t *Tracer) Trace(ops []Operation) *Trace {
	t.reset()
	out := &Trace{}

	for i, op := range ops {
		args := op.Operands

		switch op.Operator {
		// graphics state
		case "q":
			t.stack = append(t.stack, t.gs)
		case "Q":
			n := len(t.stack)
			if n == 0 {
				out.Unbalanced = append(out.Unbalanced, i)
				continue
			}
			t.gs = t.stack[n-1]
			t.stack = t.stack[:n-1]
		case "cm":
			if m, ok := MatrixFromOperands(args); ok {
				t.gs.ctm = m.Multiply(t.gs.ctm)
			}
		case "w":
			if v, ok := number(args, 0); ok {
				t.gs.lineWidth = v
			}

		// text objects and state
		case "BT":
			t.tm = Identity()
			t.tlm = Identity()
		case "Tf":
			if len(args) == 2 {
				if name, ok := args[0].Name(); ok && t.res != nil {
					t.gs.text.font = t.res.Font(name)
				}
				if v, ok := args[1].Number(); ok {
					t.gs.text.fontSize = v
				}
			}
		case "Tc":
			if v, ok := number(args, 0); ok {
				t.gs.text.charSpace = v
			}
		case "Tw":
			if v, ok := number(args, 0); ok {
				t.gs.text.wordSpace = v
			}
		case "Tz":
			if v, ok := number(args, 0); ok {
				t.gs.text.scale = v / 100
			}
		case "TL":
			if v, ok := number(args, 0); ok {
				t.gs.text.leading = v
			}
		case "Ts":
			if v, ok := number(args, 0); ok {
				t.gs.text.rise = v
			}
		case "Td", "TD":
			tx, ok1 := number(args, 0)
			ty, ok2 := number(args, 1)
			if ok1 && ok2 {
				if op.Operator == "TD" {
					t.gs.text.leading = -ty
				}
				t.moveLine(tx, ty)
			}
		case "Tm":
			if m, ok := MatrixFromOperands(args); ok {
				t.tlm = m
				t.tm = m
			}
		case "T*":
			t.moveLine(0, -t.gs.text.leading)

		// text showing
		case "Tj":
			if len(args) == 1 && args[0].Type == TypeString {
				t.markText(out, i, []Object{args[0]})
			}
		case "TJ":
			if len(args) == 1 && args[0].Type == TypeArray {
				t.markText(out, i, args[0].Array)
			}
		case "'":
			t.moveLine(0, -t.gs.text.leading)
			if len(args) == 1 && args[0].Type == TypeString {
				t.markText(out, i, []Object{args[0]})
			}
		case "\"":
			if len(args) == 3 {
				if v, ok := args[0].Number(); ok {
					t.gs.text.wordSpace = v
				}
				if v, ok := args[1].Number(); ok {
					t.gs.text.charSpace = v
				}
				t.moveLine(0, -t.gs.text.leading)
				if args[2].Type == TypeString {
					t.markText(out, i, []Object{args[2]})
				}
			}

		// path construction
		case "m", "l":
			if x, y, ok := point(args, 0); ok {
				t.addPathPoint(i, x, y)
			}
		case "c":
			for k := 0; k < 3; k++ {
				if x, y, ok := point(args, 2*k); ok {
					t.addPathPoint(i, x, y)
				}
			}
		case "v", "y":
			for k := 0; k < 2; k++ {
				if x, y, ok := point(args, 2*k); ok {
					t.addPathPoint(i, x, y)
				}
			}
		case "re":
			if len(args) == 4 {
				x, _ := args[0].Number()
				y, _ := args[1].Number()
				w, _ := args[2].Number()
				h, _ := args[3].Number()
				t.addPathPoint(i, x, y)
				t.addPathPoint(i, x+w, y)
				t.addPathPoint(i, x, y+h)
				t.addPathPoint(i, x+w, y+h)
			}
		case "h":
		case "W", "W*":
			t.pendingClip = true

		// path painting
		case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*", "n":
			t.paintPath(out, i, op.Operator)

		// external objects, inline images and shadings
		case "Do":
			if len(args) == 1 {
				if name, ok := args[0].Name(); ok {
					out.Marks = append(out.Marks, Mark{Index: i, Kind: MarkXObject, Box: t.xobjectBox(name)})
				}
			}
		case "BI":
			out.Marks = append(out.Marks, Mark{Index: i, Kind: MarkInlineImage, Box: t.gs.ctm.TransformRect(unitSquare)})
		case "sh":
			box := t.pageBox
			if t.gs.clipped {
				box = t.gs.clip
			}
			out.Marks = append(out.Marks, Mark{Index: i, Kind: MarkShading, Box: box})
		}
	}

	out.OpenSaves = len(t.stack)
	return out
}

var unitSquare = redact.Rect{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}

func (t *Tracer) moveLine(tx, ty float64) {
	t.tlm = Translate(tx, ty).Multiply(t.tlm)
	t.tm = t.tlm
}

// markText advances the text matrix over a sequence of strings and TJ
// adjustments and records the bounding box of the shown glyphs
func (t *Tracer) markText(out *Trace, index int, items []Object) {
	tp := t.gs.text
	start := t.tm
	trm := start.Multiply(t.gs.ctm)
	var glyphs bounds
	advance := 0.0

	// vertical extent of a glyph in text space: descender to ascender
	yLow := tp.rise - 0.25*tp.fontSize
	yHigh := tp.rise + tp.fontSize

	for _, item := range items {
		switch item.Type {
		case TypeNumber:
			advance += -item.Num / 1000 * tp.fontSize * tp.scale
		case TypeString:
			for _, code := range tp.font.Codes(item.Str) {
				w0 := tp.font.Width(code) / 1000
				glyphs.add(trm.Transform(advance, yLow))
				glyphs.add(trm.Transform(advance+w0*tp.fontSize*tp.scale, yHigh))
				glyphs.add(trm.Transform(advance, yHigh))
				glyphs.add(trm.Transform(advance+w0*tp.fontSize*tp.scale, yLow))

				adv := w0*tp.fontSize + tp.charSpace
				if code == 32 && (tp.font == nil || !tp.font.TwoByte) {
					adv += tp.wordSpace
				}
				advance += adv * tp.scale
			}
		}
	}

	t.tm = Translate(advance, 0).Multiply(start)

	if !glyphs.set {
		return
	}

	displacement := 0.0
	if denom := tp.fontSize * tp.scale; denom != 0 {
		displacement = -advance * 1000 / denom
	}
	out.Marks = append(out.Marks, Mark{
		Index:        index,
		Kind:         MarkText,
		Box:          glyphs.rect(),
		Displacement: displacement,
	})
}

func (t *Tracer) addPathPoint(index int, x, y float64) {
	if t.pathStart < 0 {
		t.pathStart = index
	}
	t.path.add(t.gs.ctm.Transform(x, y))
}

func (t *Tracer) paintPath(out *Trace, index int, operator string) {
	defer func() {
		t.pathStart = -1
		t.path = bounds{}
		t.pendingClip = false
	}()

	if t.pathStart < 0 || !t.path.set {
		return
	}

	box := t.path.rect()
	if t.pendingClip {
		if t.gs.clipped {
			if clip, ok := t.gs.clip.Intersect(box); ok {
				t.gs.clip = clip
			} else {
				t.gs.clip = redact.Rect{MinX: box.MinX, MinY: box.MinY, MaxX: box.MinX, MaxY: box.MinY}
			}
		} else {
			t.gs.clip = box
			t.gs.clipped = true
		}
	}

	if operator == "n" {
		return
	}

	switch operator {
	case "S", "s", "B", "B*", "b", "b*":
		half := math.Max(t.gs.lineWidth*t.gs.ctm.Scale(), 1) / 2
		box = redact.Rect{MinX: box.MinX - half, MinY: box.MinY - half, MaxX: box.MaxX + half, MaxY: box.MaxY + half}
	}

	out.Marks = append(out.Marks, Mark{
		Index:     index,
		Kind:      MarkPath,
		Box:       box,
		PathStart: t.pathStart,
		Clip:      t.pendingClip,
	})
}

func (t *Tracer) xobjectBox(name string) redact.Rect {
	if t.res != nil {
		if x, ok := t.res.XObject(name); ok && x.Kind == XObjectForm {
			m := x.Matrix
			if m == (Matrix{}) {
				m = Identity()
			}
			return m.Multiply(t.gs.ctm).TransformRect(x.BBox)
		}
	}
	return t.gs.ctm.TransformRect(unitSquare)
}

func number(args []Object, i int) (float64, bool) {
	if i >= len(args) {
		return 0, false
	}
	return args[i].Number()
}

func point(args []Object, i int) (float64, float64, bool) {
	x, ok1 := number(args, i)
	y, ok2 := number(args, i+1)
	return x, y, ok1 && ok2
}
