package pdf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-redactor/internal/pdf/pdftest"
	"github.com/a3tai/pdf-redactor/internal/redact"
)

func openFixture(t *testing.T, pages ...pdftest.Page) (*Document, string) {
	t.Helper()
	dir := t.TempDir()
	path := pdftest.WriteFile(t, dir, "fixture.pdf", pages...)
	doc, err := OpenDocument(path)
	require.NoError(t, err)
	return doc, dir
}

func TestDocument_PageBoxAndContent(t *testing.T) {
	doc, _ := openFixture(t,
		pdftest.Letter(pdftest.TextAt(72, 700, "Hello")),
		pdftest.Page{Width: 300, Height: 200, Content: "0 0 10 10 re f"},
	)

	assert.Equal(t, 2, doc.PageCount())
	assert.False(t, doc.Encrypted())

	box, err := doc.PageBox(1)
	require.NoError(t, err)
	assert.Equal(t, redact.Rect{MinX: 0, MinY: 0, MaxX: 612, MaxY: 792}, box)

	box, err = doc.PageBox(2)
	require.NoError(t, err)
	assert.Equal(t, redact.Rect{MinX: 0, MinY: 0, MaxX: 300, MaxY: 200}, box)

	content, err := doc.PageContent(1)
	require.NoError(t, err)
	assert.Contains(t, string(content), "(Hello) Tj")

	_, err = doc.PageBox(3)
	var docErr *DocumentError
	assert.ErrorAs(t, err, &docErr)
	assert.Equal(t, 3, docErr.Page)
}

func TestDocument_PageRotation(t *testing.T) {
	doc, _ := openFixture(t,
		pdftest.Letter("0 0 10 10 re f"),
		pdftest.Page{Width: 612, Height: 792, Content: "0 0 10 10 re f", Rotate: 90},
		pdftest.Page{Width: 612, Height: 792, Content: "0 0 10 10 re f", Rotate: -90},
		pdftest.Page{Width: 612, Height: 792, Content: "0 0 10 10 re f", Rotate: 540},
	)

	tests := []struct {
		page int
		want int
	}{
		{1, 0},
		{2, 90},
		{3, 270},
		{4, 180},
	}
	for _, tt := range tests {
		got, err := doc.PageRotation(tt.page)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "page %d", tt.page)
	}

	_, err := doc.PageRotation(5)
	assert.Error(t, err)
}

func TestDocument_PageResources(t *testing.T) {
	doc, _ := openFixture(t, pdftest.Letter(pdftest.TextAt(72, 700, "Hello")))

	res, err := doc.PageResources(1)
	require.NoError(t, err)

	font := res.Font("F1")
	require.NotNil(t, font)
	assert.Equal(t, "Helvetica", font.Name)
	assert.False(t, font.TwoByte)

	assert.Nil(t, res.Font("F9"))
	_, ok := res.XObject("Im1")
	assert.False(t, ok)
}

func TestDocument_ReplacePageContentRoundTrip(t *testing.T) {
	doc, dir := openFixture(t, pdftest.ThreePages()...)

	require.NoError(t, doc.ReplacePageContent(1, []byte("q 0 g 10 742 90 30 re f Q")))
	doc.StripMetadata()

	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, doc.Write(out))

	reopened, err := OpenDocument(out)
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.PageCount())

	content, err := reopened.PageContent(1)
	require.NoError(t, err)
	assert.Equal(t, "q 0 g 10 742 90 30 re f Q", string(content))

	untouched, err := reopened.PageContent(2)
	require.NoError(t, err)
	assert.Contains(t, string(untouched), "(Second page text) Tj")

	if reopened.ctx.Info != nil {
		info, err := reopened.ctx.DereferenceDict(*reopened.ctx.Info)
		require.NoError(t, err)
		_, found := info.Find("Author")
		assert.False(t, found, "original information dictionary should be gone")
	}
}

func TestDocument_RemoveAnnotations(t *testing.T) {
	page := pdftest.Letter("")
	page.Annots = [][4]float64{{10, 10, 50, 50}, {400, 400, 450, 450}}
	doc, _ := openFixture(t, page)

	removed, err := doc.RemoveAnnotations(1, []redact.Rect{{MinX: 40, MinY: 40, MaxX: 60, MaxY: 60}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = doc.RemoveAnnotations(1, []redact.Rect{{MinX: 450, MinY: 450, MaxX: 500, MaxY: 500}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "touching edge counts as overlap")

	removed, err = doc.RemoveAnnotations(1, []redact.Rect{{MinX: 0, MinY: 0, MaxX: 612, MaxY: 792}})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestOpenDocument_Errors(t *testing.T) {
	_, err := OpenDocument(filepath.Join(t.TempDir(), "missing.pdf"))
	var docErr *DocumentError
	require.ErrorAs(t, err, &docErr)
	assert.Equal(t, "open", docErr.Op)
	assert.Contains(t, err.Error(), "pdfcpu open")
}
