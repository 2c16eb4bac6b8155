// Package pipelinetest assembles a working orchestrator for tests of the
// packages built on top of the pipeline. External tools are replaced by
// in-process fakes.
package pipelinetest

import (
	"context"
	"image/color"
	"io"
	"math"
	"os"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/a3tai/pdf-redactor/internal/metrics"
	"github.com/a3tai/pdf-redactor/internal/pdf"
	"github.com/a3tai/pdf-redactor/internal/pipeline"
	"github.com/a3tai/pdf-redactor/internal/redact"
	"github.com/a3tai/pdf-redactor/internal/strategy/raster"
	"github.com/a3tai/pdf-redactor/internal/strategy/structural"
)

// CopyNormalizer stands in for qpdf by copying the document unchanged
type CopyNormalizer struct{}

// Normalize copies in to out
func (CopyNormalizer) Normalize(_ context.Context, in, out string) error {
	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// BlankRenderer stands in for pdftoppm by writing a white page of the
// requested resolution. Pages are assumed to be US letter.
type BlankRenderer struct {
	mu    sync.Mutex
	Pages []int
}

// RenderPage writes a white PNG to output
func (r *BlankRenderer) RenderPage(_ context.Context, _ string, page, dpi int, output string) error {
	r.mu.Lock()
	r.Pages = append(r.Pages, page)
	r.mu.Unlock()

	scale := float64(dpi) / redact.PointsPerInch
	img := imaging.New(int(math.Ceil(612*scale)), int(math.Ceil(792*scale)), color.White)
	return imaging.Save(img, output)
}

// Rendered returns the pages rendered so far
func (r *BlankRenderer) Rendered() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.Pages...)
}

// Harness is a real orchestrator wired to fakes for the external tools
type Harness struct {
	Orchestrator *pipeline.Orchestrator
	Renderer     *BlankRenderer
	Metrics      *metrics.Metrics
}

// New builds an orchestrator running both strategies, verification and the
// pdfcpu finalization steps
func New(t testing.TB, opts pipeline.Options) *Harness {
	t.Helper()

	renderer := &BlankRenderer{}
	m := metrics.New()
	o, err := pipeline.New(pipeline.Dependencies{
		Validator:  pdf.NewValidator(0, 1),
		Normalizer: CopyNormalizer{},
		Verifier:   pdf.NewVerifier(),
		Finalizer:  pipeline.NewFinalizer(opts.Debug, pipeline.DefaultSteps(nil)...),
		Strategies: []redact.Strategy{
			structural.New(opts.Debug),
			raster.New(renderer, 2, opts.Debug),
		},
		Metrics: m,
	}, opts)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}
	return &Harness{Orchestrator: o, Renderer: renderer, Metrics: m}
}
