package contentstream

import "github.com/a3tai/pdf-redactor/internal/redact"

// DefaultGlyphWidth is used for codes without a width entry, in thousandths
// of text space
const DefaultGlyphWidth = 600.0

// Font holds the metrics needed to compute glyph advances
type Font struct {
	Name         string
	FirstChar    int
	Widths       []float64       // simple fonts, indexed from FirstChar
	CIDWidths    map[int]float64 // composite fonts
	DefaultWidth float64
	TwoByte      bool
}

// Width returns the advance width of a code in thousandths of text space
func (f *Font) Width(code int) float64 {
	if f == nil {
		return DefaultGlyphWidth
	}
	if f.TwoByte {
		if w, ok := f.CIDWidths[code]; ok {
			return w
		}
	} else if i := code - f.FirstChar; i >= 0 && i < len(f.Widths) {
		return f.Widths[i]
	}
	if f.DefaultWidth > 0 {
		return f.DefaultWidth
	}
	return DefaultGlyphWidth
}

// Codes splits a shown string into character codes
func (f *Font) Codes(s string) []int {
	if f != nil && f.TwoByte {
		codes := make([]int, 0, (len(s)+1)/2)
		for i := 0; i+1 < len(s); i += 2 {
			codes = append(codes, int(s[i])<<8|int(s[i+1]))
		}
		return codes
	}
	codes := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		codes[i] = int(s[i])
	}
	return codes
}

// XObjectKind distinguishes image and form external objects
type XObjectKind int

const (
	XObjectImage XObjectKind = iota
	XObjectForm
)

// XObject describes the placement of an external object
type XObject struct {
	Kind   XObjectKind
	BBox   redact.Rect
	Matrix Matrix
}

// Resources resolves the named resources a content stream refers to
type Resources interface {
	Font(name string) *Font
	XObject(name string) (XObject, bool)
}

// StaticResources is a map backed Resources implementation
type StaticResources struct {
	Fonts    map[string]*Font
	XObjects map[string]XObject
}

// Font returns the named font or nil
func (r *StaticResources) Font(name string) *Font {
	if r == nil {
		return nil
	}
	return r.Fonts[name]
}

// XObject returns the named external object
func (r *StaticResources) XObject(name string) (XObject, bool) {
	if r == nil {
		return XObject{}, false
	}
	x, ok := r.XObjects[name]
	return x, ok
}
