package pdf

import (
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/pdf-redactor/internal/pdf/contentstream"
	"github.com/a3tai/pdf-redactor/internal/redact"
)

// DocumentError reports a failed low level document operation
type DocumentError struct {
	Op   string
	Page int
	Err  error
}

func (e *DocumentError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("pdfcpu %s (page %d): %v", e.Op, e.Page, e.Err)
	}
	return fmt.Sprintf("pdfcpu %s: %v", e.Op, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// NewConfiguration returns the pdfcpu configuration used throughout the service
func NewConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Document is an editable document backed by a pdfcpu context
type Document struct {
	ctx  *model.Context
	path string
}

// OpenDocument reads a document into memory
func OpenDocument(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DocumentError{Op: "open", Err: fmt.Errorf("failed to open file: %w", err)}
	}
	defer file.Close()

	ctx, err := api.ReadContext(file, NewConfiguration())
	if err != nil {
		return nil, &DocumentError{Op: "open", Err: fmt.Errorf("failed to read PDF context: %w", err)}
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &DocumentError{Op: "open", Err: fmt.Errorf("failed to ensure page count: %w", err)}
	}

	return &Document{ctx: ctx, path: path}, nil
}

// PageCount returns the number of pages in the document
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// Encrypted reports whether the source carried an encryption dictionary
func (d *Document) Encrypted() bool {
	return d.ctx.Encrypt != nil
}

func (d *Document) pageDict(page int) (types.Dict, *model.InheritedPageAttrs, error) {
	if page < 1 || page > d.ctx.PageCount {
		return nil, nil, &DocumentError{Op: "page", Page: page,
			Err: fmt.Errorf("invalid page number %d (document has %d pages)", page, d.ctx.PageCount)}
	}

	dict, _, inherited, err := d.ctx.PageDict(page, true)
	if err != nil {
		return nil, nil, &DocumentError{Op: "page", Page: page, Err: err}
	}
	if dict == nil {
		return nil, nil, &DocumentError{Op: "page", Page: page, Err: fmt.Errorf("page dictionary not found")}
	}
	return dict, inherited, nil
}

// PageBox returns the media box of a page in default user space
func (d *Document) PageBox(page int) (redact.Rect, error) {
	_, inherited, err := d.pageDict(page)
	if err != nil {
		return redact.Rect{}, err
	}

	box := inherited.MediaBox
	if box == nil {
		// letter size is the de facto default when a producer omits the box
		return redact.Rect{MinX: 0, MinY: 0, MaxX: 612, MaxY: 792}, nil
	}

	return redact.Rect{
		MinX: min(box.LL.X, box.UR.X),
		MinY: min(box.LL.Y, box.UR.Y),
		MaxX: max(box.LL.X, box.UR.X),
		MaxY: max(box.LL.Y, box.UR.Y),
	}, nil
}

// PageRotation returns the clockwise display rotation of a page, inherited
// from the page tree when the page does not set one, as 0, 90, 180 or 270
func (d *Document) PageRotation(page int) (int, error) {
	_, inherited, err := d.pageDict(page)
	if err != nil {
		return 0, err
	}

	rotate := inherited.Rotate % 360
	if rotate < 0 {
		rotate += 360
	}
	return rotate - rotate%90, nil
}

// PageContent returns the decoded content of a page. Multiple content
// streams are concatenated the way a renderer reads them.
func (d *Document) PageContent(page int) ([]byte, error) {
	if _, _, err := d.pageDict(page); err != nil {
		return nil, err
	}

	r, err := pdfcpu.ExtractPageContent(d.ctx, page)
	if err != nil {
		return nil, &DocumentError{Op: "contents", Page: page, Err: err}
	}
	if r == nil {
		return nil, nil
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, &DocumentError{Op: "contents", Page: page, Err: err}
	}
	return content, nil
}

// ReplacePageContent stores content as a single new Flate encoded stream
// and points the page at it. The previous streams become unreachable and
// are dropped when the document is written.
func (d *Document) ReplacePageContent(page int, content []byte) error {
	dict, _, err := d.pageDict(page)
	if err != nil {
		return err
	}

	sd := types.StreamDict{
		Dict:           types.NewDict(),
		Content:        content,
		FilterPipeline: []types.PDFFilter{{Name: "FlateDecode"}},
	}
	sd.InsertName("Filter", "FlateDecode")
	if err := sd.Encode(); err != nil {
		return &DocumentError{Op: "encode", Page: page, Err: err}
	}

	ref, err := d.ctx.IndRefForNewObject(sd)
	if err != nil {
		return &DocumentError{Op: "replace contents", Page: page, Err: err}
	}

	dict.Update("Contents", *ref)
	return nil
}

// RemoveAnnotations drops every annotation whose /Rect intersects one of
// rects and returns how many were removed
func (d *Document) RemoveAnnotations(page int, rects []redact.Rect) (int, error) {
	dict, _, err := d.pageDict(page)
	if err != nil {
		return 0, err
	}

	obj, found := dict.Find("Annots")
	if !found || obj == nil {
		return 0, nil
	}
	annots, err := d.ctx.DereferenceArray(obj)
	if err != nil {
		return 0, &DocumentError{Op: "annotations", Page: page, Err: err}
	}

	kept := types.Array{}
	removed := 0
	for _, a := range annots {
		annot, err := d.ctx.DereferenceDict(a)
		if err != nil || annot == nil {
			kept = append(kept, a)
			continue
		}
		r, ok := d.rectEntry(annot, "Rect")
		if ok && intersectsAny(r, rects) {
			removed++
			continue
		}
		kept = append(kept, a)
	}

	if removed == 0 {
		return 0, nil
	}
	if len(kept) == 0 {
		dict.Delete("Annots")
	} else {
		dict.Update("Annots", kept)
	}
	return removed, nil
}

// StripMetadata removes the document information dictionary and the XMP
// metadata stream
func (d *Document) StripMetadata() {
	d.ctx.Info = nil
	if d.ctx.RootDict != nil {
		d.ctx.RootDict.Delete("Metadata")
	}
}

// Write writes the document to path
func (d *Document) Write(path string) error {
	if err := api.WriteContextFile(d.ctx, path); err != nil {
		return &DocumentError{Op: "write", Err: err}
	}
	return nil
}

// PageResources resolves the fonts and external objects of a page
func (d *Document) PageResources(page int) (contentstream.Resources, error) {
	_, inherited, err := d.pageDict(page)
	if err != nil {
		return nil, err
	}
	return newResourceResolver(d.ctx, inherited.Resources), nil
}

func (d *Document) rectEntry(dict types.Dict, key string) (redact.Rect, bool) {
	obj, found := dict.Find(key)
	if !found {
		return redact.Rect{}, false
	}
	nums, ok := numberArray(d.ctx, obj)
	if !ok || len(nums) != 4 {
		return redact.Rect{}, false
	}
	return redact.Rect{
		MinX: min(nums[0], nums[2]),
		MinY: min(nums[1], nums[3]),
		MaxX: max(nums[0], nums[2]),
		MaxY: max(nums[1], nums[3]),
	}, true
}

func intersectsAny(box redact.Rect, rects []redact.Rect) bool {
	for _, r := range rects {
		if r.Intersects(box) {
			return true
		}
	}
	return false
}
