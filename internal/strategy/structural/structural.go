// Package structural removes regions by rewriting page content streams.
package structural

import (
	"context"
	"fmt"
	"log"

	"github.com/a3tai/pdf-redactor/internal/pdf"
	"github.com/a3tai/pdf-redactor/internal/pdf/contentstream"
	"github.com/a3tai/pdf-redactor/internal/redact"
)

// OutputName is the artifact written by the strategy
const OutputName = "structural.pdf"

// Strategy edits content streams in place. Pages are processed in ascending
// order over a single in-memory document.
type Strategy struct {
	debug bool
}

// New creates a structural strategy
func New(debug bool) *Strategy {
	return &Strategy{debug: debug}
}

// Kind implements redact.Strategy
func (s *Strategy) Kind() redact.StrategyKind {
	return redact.Structural
}

// Apply implements redact.Strategy
func (s *Strategy) Apply(ctx context.Context, job *redact.Job) (*redact.Outcome, error) {
	doc, err := pdf.OpenDocument(job.Input)
	if err != nil {
		return nil, redact.StrategyFailure("failed to open document", err)
	}

	outcome := &redact.Outcome{
		Strategy: redact.Structural,
		Covered:  make(map[int][]redact.Rect),
	}

	for _, page := range job.Plan.Pages() {
		if err := ctx.Err(); err != nil {
			return nil, redact.StrategyFailure("redaction cancelled", err).WithPage(page)
		}

		rects, skipped, err := s.pageRects(doc, page, job.Plan[page])
		if err != nil {
			return nil, redact.StrategyFailure("failed to read page geometry", err).WithPage(page)
		}
		outcome.Skipped = append(outcome.Skipped, skipped...)
		if len(rects) == 0 {
			continue
		}

		coarse, err := s.redactPage(doc, job.RequestID, page, rects)
		if err != nil {
			return nil, err
		}

		outcome.Covered[page] = rects
		outcome.CoarseRemovals += coarse
		outcome.PagesRedacted++
	}

	if outcome.PagesRedacted == 0 {
		return nil, redact.InputError("no region overlaps its page", nil)
	}

	output, err := job.Artifacts.Path(OutputName)
	if err != nil {
		return nil, redact.StrategyFailure("failed to allocate output artifact", err)
	}
	if err := doc.Write(output); err != nil {
		return nil, redact.StrategyFailure("failed to write redacted document", err)
	}

	outcome.Output = output
	return outcome, nil
}

// pageRects maps the planned regions into the page's user space. Regions
// are expressed relative to the media box origin.
func (s *Strategy) pageRects(doc *pdf.Document, page int, regions []redact.NormalizedRegion) ([]redact.Rect, []*redact.Error, error) {
	box, err := doc.PageBox(page)
	if err != nil {
		return nil, nil, err
	}

	var rects []redact.Rect
	var skipped []*redact.Error
	for _, r := range regions {
		moved := r.Rect.Translate(box.MinX, box.MinY)
		clipped, ok := moved.Intersect(box)
		if !ok || clipped.Degenerate() {
			skipped = append(skipped, redact.RegionSkipped(r.Source, page,
				fmt.Sprintf("region lies outside the page (media box %.0fx%.0f)", box.Width(), box.Height())))
			continue
		}
		rects = append(rects, clipped)
	}
	return rects, skipped, nil
}

func (s *Strategy) redactPage(doc *pdf.Document, requestID string, page int, rects []redact.Rect) (int, error) {
	box, err := doc.PageBox(page)
	if err != nil {
		return 0, redact.StrategyFailure("failed to read page geometry", err).WithPage(page)
	}
	content, err := doc.PageContent(page)
	if err != nil {
		return 0, redact.StrategyFailure("failed to read page content", err).WithPage(page)
	}
	res, err := doc.PageResources(page)
	if err != nil {
		return 0, redact.StrategyFailure("failed to resolve page resources", err).WithPage(page)
	}

	result, err := contentstream.Redact(content, res, box, rects)
	if err != nil {
		return 0, redact.StrategyFailure("page content could not be parsed", err).WithPage(page)
	}
	if err := doc.ReplacePageContent(page, result.Content); err != nil {
		return 0, redact.StrategyFailure("failed to replace page content", err).WithPage(page)
	}

	annots, err := doc.RemoveAnnotations(page, rects)
	if err != nil {
		return 0, redact.StrategyFailure("failed to remove annotations", err).WithPage(page)
	}

	if s.debug {
		log.Printf("[%s] Page %d: %d operation(s) removed, %d coarse, %d annotation(s) dropped",
			requestID, page, result.Removed, result.Coarse, annots)
	}
	return result.Coarse, nil
}
