package redact

import (
	"context"
	"fmt"
	"strings"
)

// StrategyKind names a redaction strategy
type StrategyKind string

const (
	// Structural edits page content streams in place
	Structural StrategyKind = "structural"
	// Rasterize replaces touched pages with redacted page images
	Rasterize StrategyKind = "rasterize"
)

const (
	// DefaultDPI is the render resolution used when none is requested
	DefaultDPI = 600
	// MaxDPI bounds peak raster memory per page
	MaxDPI = 600
	// PointsPerInch is the size of a PDF user space unit
	PointsPerInch = 72.0
)

// ParseStrategy parses a strategy name; the empty string yields ""
// so callers can tell "not requested" apart from an explicit choice.
func ParseStrategy(s string) (StrategyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "structural", "structure", "content":
		return Structural, nil
	case "rasterize", "rasterise", "raster":
		return Rasterize, nil
	default:
		return "", InputError(fmt.Sprintf("unknown strategy %q (expected structural or rasterize)", s), nil)
	}
}

// ClampDPI applies the default and the hard ceiling to a requested DPI
func ClampDPI(dpi int) int {
	if dpi <= 0 {
		return DefaultDPI
	}
	if dpi > MaxDPI {
		return MaxDPI
	}
	return dpi
}

// ArtifactStore hands out request-scoped paths for intermediate files
type ArtifactStore interface {
	Path(name string) (string, error)
}

// Job is the input of a single strategy run
type Job struct {
	RequestID  string
	Input      string
	Plan       Plan
	QualityDPI int
	Artifacts  ArtifactStore
}

// Outcome is the result of a strategy run
type Outcome struct {
	Strategy      StrategyKind
	Output        string
	PagesRedacted int
	Skipped       []*Error
	// Covered holds the page space rectangles painted over on each page
	Covered map[int][]Rect
	// CoarseRemovals counts objects removed whole although only part of
	// them lay inside a region
	CoarseRemovals int
}

// Strategy removes the planned regions from a document
type Strategy interface {
	Kind() StrategyKind
	Apply(ctx context.Context, job *Job) (*Outcome, error)
}
