package pdf

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/pdf-redactor/internal/pdf/contentstream"
	"github.com/a3tai/pdf-redactor/internal/redact"
)

// resourceResolver resolves page resources lazily and caches the result
type resourceResolver struct {
	ctx       *model.Context
	resources types.Dict

	fonts    map[string]*contentstream.Font
	xobjects map[string]*contentstream.XObject
}

func newResourceResolver(ctx *model.Context, resources types.Dict) *resourceResolver {
	return &resourceResolver{
		ctx:       ctx,
		resources: resources,
		fonts:     make(map[string]*contentstream.Font),
		xobjects:  make(map[string]*contentstream.XObject),
	}
}

func (r *resourceResolver) category(name string) types.Dict {
	if r.resources == nil {
		return nil
	}
	obj, found := r.resources.Find(name)
	if !found {
		return nil
	}
	d, err := r.ctx.DereferenceDict(obj)
	if err != nil {
		return nil
	}
	return d
}

// Font returns the metrics of a named font, or nil when it cannot be resolved
func (r *resourceResolver) Font(name string) *contentstream.Font {
	if f, ok := r.fonts[name]; ok {
		return f
	}

	var font *contentstream.Font
	if fonts := r.category("Font"); fonts != nil {
		if obj, found := fonts.Find(name); found {
			if fd, err := r.ctx.DereferenceDict(obj); err == nil && fd != nil {
				font = r.fontMetrics(name, fd)
			}
		}
	}

	r.fonts[name] = font
	return font
}

func (r *resourceResolver) fontMetrics(name string, fd types.Dict) *contentstream.Font {
	font := &contentstream.Font{Name: name}

	subtype := ""
	if s := fd.NameEntry("Subtype"); s != nil {
		subtype = *s
	}
	if base := fd.NameEntry("BaseFont"); base != nil {
		font.Name = *base
	}

	if subtype == "Type0" {
		font.TwoByte = true
		font.DefaultWidth = 1000
		r.cidWidths(font, fd)
		return font
	}

	if fc, ok := r.number(fd, "FirstChar"); ok {
		font.FirstChar = int(fc)
	}
	if obj, found := fd.Find("Widths"); found {
		if widths, ok := numberArray(r.ctx, obj); ok {
			font.Widths = widths
		}
	}

	if desc, found := fd.Find("FontDescriptor"); found {
		if dd, err := r.ctx.DereferenceDict(desc); err == nil && dd != nil {
			if mw, ok := r.number(dd, "MissingWidth"); ok && mw > 0 {
				font.DefaultWidth = mw
			}
		}
	}

	// Type3 glyph widths are in glyph space; scale them into thousandths
	if subtype == "Type3" {
		if obj, found := fd.Find("FontMatrix"); found {
			if fm, ok := numberArray(r.ctx, obj); ok && len(fm) == 6 && fm[0] != 0 {
				scale := fm[0] * 1000
				for i := range font.Widths {
					font.Widths[i] *= scale
				}
				font.DefaultWidth *= scale
			}
		}
	}

	return font
}

// cidWidths reads /DW and /W from the descendant font of a composite font
func (r *resourceResolver) cidWidths(font *contentstream.Font, fd types.Dict) {
	obj, found := fd.Find("DescendantFonts")
	if !found {
		return
	}
	descendants, err := r.ctx.DereferenceArray(obj)
	if err != nil || len(descendants) == 0 {
		return
	}
	cid, err := r.ctx.DereferenceDict(descendants[0])
	if err != nil || cid == nil {
		return
	}

	if dw, ok := r.number(cid, "DW"); ok && dw > 0 {
		font.DefaultWidth = dw
	}

	wObj, found := cid.Find("W")
	if !found {
		return
	}
	w, err := r.ctx.DereferenceArray(wObj)
	if err != nil {
		return
	}

	font.CIDWidths = make(map[int]float64)
	for i := 0; i < len(w); {
		first, ok := numberValue(r.ctx, w[i])
		if !ok || i+1 >= len(w) {
			return
		}

		// c [w1 w2 ...]
		if list, ok := numberArray(r.ctx, w[i+1]); ok {
			for k, width := range list {
				font.CIDWidths[int(first)+k] = width
			}
			i += 2
			continue
		}

		// cFirst cLast w
		if i+2 >= len(w) {
			return
		}
		last, ok1 := numberValue(r.ctx, w[i+1])
		width, ok2 := numberValue(r.ctx, w[i+2])
		if !ok1 || !ok2 {
			return
		}
		for c := int(first); c <= int(last) && c-int(first) < 65536; c++ {
			font.CIDWidths[c] = width
		}
		i += 3
	}
}

// XObject resolves the placement of a named external object
func (r *resourceResolver) XObject(name string) (contentstream.XObject, bool) {
	if x, ok := r.xobjects[name]; ok {
		if x == nil {
			return contentstream.XObject{}, false
		}
		return *x, true
	}

	var result *contentstream.XObject
	if xobjects := r.category("XObject"); xobjects != nil {
		if obj, found := xobjects.Find(name); found {
			if o, err := r.ctx.Dereference(obj); err == nil {
				if sd, ok := o.(types.StreamDict); ok {
					result = r.xobjectPlacement(sd)
				}
			}
		}
	}

	r.xobjects[name] = result
	if result == nil {
		return contentstream.XObject{}, false
	}
	return *result, true
}

func (r *resourceResolver) xobjectPlacement(sd types.StreamDict) *contentstream.XObject {
	x := &contentstream.XObject{Kind: contentstream.XObjectImage, Matrix: contentstream.Identity()}

	if s := sd.NameEntry("Subtype"); s == nil || *s != "Form" {
		return x
	}
	x.Kind = contentstream.XObjectForm
	x.BBox = redact.Rect{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}

	if obj, found := sd.Find("BBox"); found {
		if b, ok := numberArray(r.ctx, obj); ok && len(b) == 4 {
			x.BBox = redact.Rect{
				MinX: min(b[0], b[2]), MinY: min(b[1], b[3]),
				MaxX: max(b[0], b[2]), MaxY: max(b[1], b[3]),
			}
		}
	}
	if obj, found := sd.Find("Matrix"); found {
		if m, ok := numberArray(r.ctx, obj); ok && len(m) == 6 {
			copy(x.Matrix[:], m)
		}
	}
	return x
}

func (r *resourceResolver) number(d types.Dict, key string) (float64, bool) {
	obj, found := d.Find(key)
	if !found {
		return 0, false
	}
	return numberValue(r.ctx, obj)
}

func numberValue(ctx *model.Context, obj types.Object) (float64, bool) {
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return 0, false
	}
	switch v := obj.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	default:
		return 0, false
	}
}

func numberArray(ctx *model.Context, obj types.Object) ([]float64, bool) {
	arr, err := ctx.DereferenceArray(obj)
	if err != nil || arr == nil {
		return nil, false
	}
	out := make([]float64, len(arr))
	for i, item := range arr {
		v, ok := numberValue(ctx, item)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
