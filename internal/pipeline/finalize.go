package pipeline

import (
	"context"
	"fmt"
	"log"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/a3tai/pdf-redactor/internal/pdf"
	"github.com/a3tai/pdf-redactor/internal/redact"
)

// Step is one finalization pass reading in and writing out
type Step struct {
	Name   string
	Output string
	Run    func(ctx context.Context, in, out string) error
}

// Linearizer rewrites a document for fast web view
type Linearizer interface {
	Linearize(ctx context.Context, in, out string) error
}

// Finalizer runs the quality passes over a redacted document. A failing
// step is reported as FinalizationDegraded and the next step continues
// from the last good artifact.
type Finalizer struct {
	steps []Step
	debug bool
}

// NewFinalizer creates a finalizer from explicit steps
func NewFinalizer(debug bool, steps ...Step) *Finalizer {
	return &Finalizer{steps: steps, debug: debug}
}

// DefaultSteps strips metadata, optimizes and, when a linearizer is
// available, linearizes
func DefaultSteps(linearizer Linearizer) []Step {
	steps := []Step{
		{Name: "strip metadata", Output: "stripped.pdf", Run: StripMetadata},
		{Name: "optimize", Output: "optimized.pdf", Run: Optimize},
	}
	if linearizer != nil {
		steps = append(steps, Step{Name: "linearize", Output: "final.pdf", Run: linearizer.Linearize})
	}
	return steps
}

// StripMetadata removes the information dictionary and XMP metadata
func StripMetadata(_ context.Context, in, out string) error {
	doc, err := pdf.OpenDocument(in)
	if err != nil {
		return err
	}
	doc.StripMetadata()
	return doc.Write(out)
}

// Optimize drops unused and duplicate objects
func Optimize(_ context.Context, in, out string) error {
	return pdfapi.OptimizeFile(in, out, pdf.NewConfiguration())
}

// Finalize runs every step and returns the path to deliver
func (f *Finalizer) Finalize(ctx context.Context, requestID string, store redact.ArtifactStore, input string) (string, []*redact.Error) {
	current := input
	var warnings []*redact.Error

	for _, step := range f.steps {
		if err := ctx.Err(); err != nil {
			warnings = append(warnings, redact.FinalizationDegraded(
				fmt.Sprintf("%s skipped", step.Name), err).WithStage(string(StageFinalized)))
			break
		}

		out, err := store.Path(step.Output)
		if err == nil {
			err = step.Run(ctx, current, out)
		}
		if err != nil {
			log.Printf("[%s] Finalization step %q failed, keeping previous artifact: %v", requestID, step.Name, err)
			warnings = append(warnings, redact.FinalizationDegraded(
				fmt.Sprintf("%s failed", step.Name), err).WithStage(string(StageFinalized)))
			continue
		}

		if f.debug {
			log.Printf("[%s] Finalization step %q wrote %s", requestID, step.Name, step.Output)
		}
		current = out
	}

	return current, warnings
}
