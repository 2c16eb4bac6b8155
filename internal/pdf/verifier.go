package pdf

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/a3tai/pdf-redactor/internal/redact"
)

// Residual is a glyph still present inside a redacted rectangle
type Residual struct {
	Page int     `json:"page"`
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Verifier re-reads a redacted document and looks for text that survived
type Verifier struct{}

// NewVerifier creates a new verifier
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Residuals returns every glyph whose extent touches one of the page space
// rectangles of its page. Edges are inclusive, matching the way the
// structural rewrite decides what to drop.
func (v *Verifier) Residuals(filePath string, covered map[int][]redact.Rect) ([]Residual, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pages := make([]int, 0, len(covered))
	for page := range covered {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	var residuals []Residual
	for _, pageNum := range pages {
		if pageNum < 1 || pageNum > r.NumPage() {
			continue
		}
		texts, err := pageTexts(r, pageNum)
		if err != nil {
			return nil, err
		}
		for _, t := range texts {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			box := glyphBox(t)
			for _, rect := range covered[pageNum] {
				if rect.Intersects(box) {
					residuals = append(residuals, Residual{Page: pageNum, Text: t.S, X: t.X, Y: t.Y})
					break
				}
			}
		}
	}

	return residuals, nil
}

// Verify fails with a StrategyFailure when any residual glyph is found
func (v *Verifier) Verify(filePath string, covered map[int][]redact.Rect) error {
	residuals, err := v.Residuals(filePath, covered)
	if err != nil {
		return err
	}
	if len(residuals) == 0 {
		return nil
	}

	first := residuals[0]
	return redact.StrategyFailure(
		fmt.Sprintf("%d glyph(s) remain inside redacted regions (first %q at %.1f,%.1f)",
			len(residuals), first.Text, first.X, first.Y), nil).WithPage(first.Page)
}

// glyphBox spans the glyph advance horizontally and the font size above the
// baseline with a quarter of it below. Readers without width information
// report a zero advance, which leaves the origin as a vertical segment.
func glyphBox(t pdf.Text) redact.Rect {
	return redact.Rect{
		MinX: t.X,
		MinY: t.Y - 0.25*t.FontSize,
		MaxX: t.X + math.Max(t.W, 0),
		MaxY: t.Y + t.FontSize,
	}
}

// pageTexts extracts positioned text from a page; the reader panics on
// some malformed content so the panic is turned into an error
func pageTexts(r *pdf.Reader, pageNum int) (texts []pdf.Text, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("failed to read page %d: %v", pageNum, rec)
		}
	}()

	p := r.Page(pageNum)
	if p.V.IsNull() {
		return nil, nil
	}
	return p.Content().Text, nil
}
