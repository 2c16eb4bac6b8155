// Package pdftest builds small, well formed PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Page describes one page of a generated document
type Page struct {
	Width  float64
	Height float64
	// Content is the uncompressed content stream. The font /F1 is
	// Helvetica and is always available.
	Content string
	// Annots are annotation rectangles as [llx lly urx ury]
	Annots [][4]float64
	// Rotate is written as the page /Rotate entry when not zero
	Rotate int
}

// Letter returns a US letter page with the given content
func Letter(content string) Page {
	return Page{Width: 612, Height: 792, Content: content}
}

// TextAt returns a content stream showing s at (x, y) in 12pt Helvetica
func TextAt(x, y float64, s string) string {
	return fmt.Sprintf("BT /F1 12 Tf %g %g Td (%s) Tj ET", x, y, s)
}

type writer struct {
	buf     bytes.Buffer
	offsets []int
}

func (w *writer) object(body string) int {
	w.offsets = append(w.offsets, w.buf.Len())
	num := len(w.offsets)
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", num, body)
	return num
}

// reserve allocates an object number that is written later with fill
func (w *writer) reserve() int {
	w.offsets = append(w.offsets, -1)
	return len(w.offsets)
}

func (w *writer) fill(num int, body string) {
	w.offsets[num-1] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

// Build renders pages into a complete PDF file with a classic xref table
// and an information dictionary.
func Build(pages ...Page) []byte {
	w := &writer{}
	w.buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	catalog := w.reserve()
	pagesObj := w.reserve()
	font := w.object("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	info := w.object("<< /Producer (pdftest) /Title (Fixture) /Author (Test Author) >>")

	kids := make([]string, 0, len(pages))
	for _, p := range pages {
		content := w.object(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(p.Content), p.Content))

		extra := ""
		if len(p.Annots) > 0 {
			refs := make([]string, 0, len(p.Annots))
			for _, a := range p.Annots {
				n := w.object(fmt.Sprintf("<< /Type /Annot /Subtype /Square /Rect [%g %g %g %g] >>", a[0], a[1], a[2], a[3]))
				refs = append(refs, fmt.Sprintf("%d 0 R", n))
			}
			extra = fmt.Sprintf(" /Annots [%s]", strings.Join(refs, " "))
		}
		if p.Rotate != 0 {
			extra += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}

		page := w.object(fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R%s >>",
			pagesObj, p.Width, p.Height, font, content, extra))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}

	w.fill(pagesObj, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	w.fill(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))

	xref := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n", len(w.offsets)+1)
	w.buf.WriteString("0000000000 65535 f \n")
	for _, off := range w.offsets {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root %d 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(w.offsets)+1, catalog, info, xref)

	return w.buf.Bytes()
}

// WriteFile builds a document into dir and returns its path
func WriteFile(t testing.TB, dir, name string, pages ...Page) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(pages...), 0o600); err != nil {
		t.Fatalf("failed to write fixture %s: %v", path, err)
	}
	return path
}

// ThreePages returns a three page letter document with one line of text
// per page
func ThreePages() []Page {
	return []Page{
		Letter(TextAt(10, 750, "Secret account 4711") + "\n" + TextAt(300, 400, "Public heading")),
		Letter(TextAt(72, 700, "Second page text")),
		Letter(TextAt(72, 700, "Third page text")),
	}
}
