// Package raster removes regions by replacing every touched page with an
// image of itself on which the regions have been painted over.
package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"math"
	"os"

	"github.com/disintegration/imaging"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/sync/errgroup"

	"github.com/a3tai/pdf-redactor/internal/pdf"
	"github.com/a3tai/pdf-redactor/internal/redact"
)

// OutputName is the artifact written by the strategy
const OutputName = "rasterized.pdf"

// DefaultWorkers bounds the number of pages held in memory at once
const DefaultWorkers = 2

// Renderer draws a single page of a document into a PNG file
type Renderer interface {
	RenderPage(ctx context.Context, input string, page, dpi int, output string) error
}

// Strategy rasterizes the pages named in the plan. Pages outside the plan
// are copied from the source and never rendered.
type Strategy struct {
	renderer Renderer
	workers  int
	debug    bool
}

// New creates a rasterizing strategy
func New(renderer Renderer, workers int, debug bool) *Strategy {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Strategy{renderer: renderer, workers: workers, debug: debug}
}

// Kind implements redact.Strategy
func (s *Strategy) Kind() redact.StrategyKind {
	return redact.Rasterize
}

// Geometry is the unrotated user space size of a page and the clockwise
// rotation a viewer, and therefore the renderer, applies to it
type Geometry struct {
	Width  float64
	Height float64
	Rotate int
}

// Displayed returns the page size in points as it is rendered
func (g Geometry) Displayed() (width, height float64) {
	if g.Rotate == 90 || g.Rotate == 270 {
		return g.Height, g.Width
	}
	return g.Width, g.Height
}

// toDisplay maps a bottom-left origin user space rect onto the rendered
// page, returning it in points with a top-left origin
func (g Geometry) toDisplay(r redact.Rect) (x0, y0, x1, y1 float64) {
	switch g.Rotate {
	case 90:
		return r.MinY, r.MinX, r.MaxY, r.MaxX
	case 180:
		return g.Width - r.MaxX, r.MinY, g.Width - r.MinX, r.MaxY
	case 270:
		return g.Height - r.MaxY, g.Width - r.MaxX, g.Height - r.MinY, g.Width - r.MinX
	default:
		return r.MinX, g.Height - r.MaxY, r.MaxX, g.Height - r.MinY
	}
}

// pageJob is one page to rasterize together with its geometry
type pageJob struct {
	page   int
	geom   Geometry
	rects  []redact.Rect
	output string
}

// Apply implements redact.Strategy
func (s *Strategy) Apply(ctx context.Context, job *redact.Job) (*redact.Outcome, error) {
	dpi := redact.ClampDPI(job.QualityDPI)

	doc, err := pdf.OpenDocument(job.Input)
	if err != nil {
		return nil, redact.StrategyFailure("failed to open document", err)
	}
	pageCount := doc.PageCount()

	outcome := &redact.Outcome{
		Strategy: redact.Rasterize,
		Covered:  make(map[int][]redact.Rect),
	}

	var jobs []*pageJob
	for _, page := range job.Plan.Pages() {
		if page < 1 || page > pageCount {
			return nil, redact.StrategyFailure(fmt.Sprintf("page %d is not in the document", page), nil).WithPage(page)
		}
		box, err := doc.PageBox(page)
		if err != nil {
			return nil, redact.StrategyFailure("failed to read page geometry", err).WithPage(page)
		}
		rotate, err := doc.PageRotation(page)
		if err != nil {
			return nil, redact.StrategyFailure("failed to read page rotation", err).WithPage(page)
		}
		output, err := job.Artifacts.Path(fmt.Sprintf("page-%04d.pdf", page))
		if err != nil {
			return nil, redact.StrategyFailure("failed to allocate page artifact", err).WithPage(page)
		}
		rects := job.Plan.Rects(page)
		jobs = append(jobs, &pageJob{
			page:   page,
			geom:   Geometry{Width: box.Width(), Height: box.Height(), Rotate: rotate},
			rects:  rects,
			output: output,
		})
		outcome.Covered[page] = rects
	}
	if len(jobs) == 0 {
		return nil, redact.InputError("no page to redact", nil)
	}

	if s.debug {
		log.Printf("[%s] Rasterizing %d page(s) at %d dpi with %d worker(s)", job.RequestID, len(jobs), dpi, s.workers)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, pj := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return redact.StrategyFailure("rasterization cancelled", err).WithPage(pj.page)
			}
			return s.rasterizePage(gctx, job, pj, dpi)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, redact.AsError(err, redact.KindStrategyFailure)
	}

	output, err := s.assemble(job, pageCount, jobs)
	if err != nil {
		return nil, err
	}

	outcome.Output = output
	outcome.PagesRedacted = len(jobs)
	return outcome, nil
}

func (s *Strategy) rasterizePage(ctx context.Context, job *redact.Job, pj *pageJob, dpi int) error {
	png, err := job.Artifacts.Path(fmt.Sprintf("page-%04d.png", pj.page))
	if err != nil {
		return redact.StrategyFailure("failed to allocate raster artifact", err).WithPage(pj.page)
	}

	if err := s.renderer.RenderPage(ctx, job.Input, pj.page, dpi, png); err != nil {
		return redact.StrategyFailure("failed to render page", err).WithPage(pj.page)
	}

	img, err := imaging.Open(png)
	if err != nil {
		return redact.StrategyFailure("failed to decode rendered page", err).WithPage(pj.page)
	}

	painted := Paint(img, pj.rects, pj.geom, dpi)
	if err := imaging.Save(painted, png); err != nil {
		return redact.StrategyFailure("failed to encode redacted page", err).WithPage(pj.page)
	}

	// the raster already shows the page upright, so the rebuilt page takes
	// the displayed size and carries no rotation of its own
	width, height := pj.geom.Displayed()
	if err := ImportPage(png, pj.output, width, height); err != nil {
		return redact.StrategyFailure("failed to rebuild page from image", err).WithPage(pj.page)
	}

	if s.debug {
		b := painted.Bounds()
		log.Printf("[%s] Page %d rasterized (%dx%d px, rotate %d, %d region(s))",
			job.RequestID, pj.page, b.Dx(), b.Dy(), pj.geom.Rotate, len(pj.rects))
	}
	return nil
}

// Paint returns a copy of img with every rect filled black. img is the page
// as rendered, with the page rotation applied. Rects are in unrotated user
// space with a bottom-left origin; they are turned with the page and scaled
// by dpi/72. Partially covered pixels are painted.
func Paint(img image.Image, rects []redact.Rect, page Geometry, dpi int) *image.NRGBA {
	dst := imaging.Clone(img)
	scale := float64(dpi) / redact.PointsPerInch
	black := image.NewUniform(color.Black)

	for _, r := range rects {
		x0, y0, x1, y1 := page.toDisplay(r)
		px := image.Rect(
			int(math.Floor(x0*scale)),
			int(math.Floor(y0*scale)),
			int(math.Ceil(x1*scale)),
			int(math.Ceil(y1*scale)),
		).Intersect(dst.Bounds())
		if px.Empty() {
			continue
		}
		draw.Draw(dst, px, black, image.Point{}, draw.Src)
	}
	return dst
}

// ImportPage converts a PNG into a one page document of the given size in
// points. The image is scaled to fill the page.
func ImportPage(png, output string, width, height float64) error {
	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = &types.Dim{Width: width, Height: height}
	imp.UserDim = true
	imp.Pos = types.Center
	imp.Scale = 1.0
	imp.ScaleAbs = false

	if err := pdfapi.ImportImagesFile([]string{png}, output, imp, pdf.NewConfiguration()); err != nil {
		return err
	}
	// the PNG is no longer needed once embedded
	_ = os.Remove(png)
	return nil
}

// assemble interleaves runs of untouched source pages with the rasterized
// pages and merges them in page order
func (s *Strategy) assemble(job *redact.Job, pageCount int, jobs []*pageJob) (string, error) {
	conf := pdf.NewConfiguration()

	var parts []string
	next := 1
	segment := 0
	addSegment := func(from, to int) error {
		if from > to {
			return nil
		}
		segment++
		path, err := job.Artifacts.Path(fmt.Sprintf("segment-%04d.pdf", segment))
		if err != nil {
			return redact.StrategyFailure("failed to allocate segment artifact", err)
		}
		if err := pdfapi.TrimFile(job.Input, path, []string{fmt.Sprintf("%d-%d", from, to)}, conf); err != nil {
			return redact.StrategyFailure(fmt.Sprintf("failed to extract pages %d-%d", from, to), err)
		}
		parts = append(parts, path)
		return nil
	}

	for _, pj := range jobs {
		if err := addSegment(next, pj.page-1); err != nil {
			return "", err
		}
		parts = append(parts, pj.output)
		next = pj.page + 1
	}
	if err := addSegment(next, pageCount); err != nil {
		return "", err
	}

	if len(parts) == 1 {
		return parts[0], nil
	}

	output, err := job.Artifacts.Path(OutputName)
	if err != nil {
		return "", redact.StrategyFailure("failed to allocate output artifact", err)
	}
	if err := pdfapi.MergeCreateFile(parts, output, false, conf); err != nil {
		return "", redact.StrategyFailure("failed to merge pages", err)
	}
	return output, nil
}
