// Package pipeline sequences the redaction stages for a single request:
// validate, plan, normalize, redact, verify and finalize.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/a3tai/pdf-redactor/internal/metrics"
	"github.com/a3tai/pdf-redactor/internal/pdf"
	"github.com/a3tai/pdf-redactor/internal/redact"
	"github.com/a3tai/pdf-redactor/internal/toolchain"
)

// Stage names a pipeline state
type Stage string

const (
	StageReceived   Stage = "received"
	StageValidated  Stage = "validated"
	StageNormalized Stage = "normalized"
	StageRedacted   Stage = "redacted"
	StageFinalized  Stage = "finalized"
	StageDelivered  Stage = "delivered"
)

// DefaultStageTimeout bounds every stage
const DefaultStageTimeout = 5 * time.Minute

// NormalizedName is the artifact written by the normalization stage
const NormalizedName = "normalized.pdf"

// Validator checks the source document
type Validator interface {
	Validate(ctx context.Context, path string) (*pdf.Report, error)
}

// Normalizer rewrites a document into a canonical form
type Normalizer interface {
	Normalize(ctx context.Context, in, out string) error
}

// Verifier checks a redacted document for surviving content
type Verifier interface {
	Verify(path string, covered map[int][]redact.Rect) error
}

// Request is a single redaction request
type Request struct {
	ID         string
	SourcePath string
	Regions    []redact.RegionSpec
	// Strategy is empty when the caller did not pin one
	Strategy   redact.StrategyKind
	QualityDPI int
	Artifacts  redact.ArtifactStore
}

// Result describes the delivered document
type Result struct {
	RequestID     string              `json:"request_id"`
	Output        string              `json:"output"`
	Strategy      redact.StrategyKind `json:"strategy"`
	PageCount     int                 `json:"page_count"`
	PagesRedacted int                 `json:"pages_redacted"`
	Regions       int                 `json:"regions_applied"`
	Warnings      []*redact.Error     `json:"warnings,omitempty"`
}

// Options configure the orchestrator
type Options struct {
	DefaultStrategy redact.StrategyKind
	// Fallback re-runs an unpinned request with Rasterize when Structural fails
	Fallback     bool
	Verify       bool
	StageTimeout time.Duration
	Debug        bool
}

// Orchestrator runs requests through the pipeline
type Orchestrator struct {
	validator  Validator
	normalizer Normalizer
	verifier   Verifier
	finalizer  *Finalizer
	strategies map[redact.StrategyKind]redact.Strategy
	metrics    *metrics.Metrics
	opts       Options

	mu     sync.RWMutex
	health *toolchain.Health
}

// Dependencies are the collaborators of an orchestrator. Normalizer,
// Verifier and Metrics may be nil.
type Dependencies struct {
	Validator  Validator
	Normalizer Normalizer
	Verifier   Verifier
	Finalizer  *Finalizer
	Strategies []redact.Strategy
	Metrics    *metrics.Metrics
}

// New creates an orchestrator
func New(deps Dependencies, opts Options) (*Orchestrator, error) {
	if deps.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if len(deps.Strategies) == 0 {
		return nil, fmt.Errorf("at least one strategy is required")
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = redact.Structural
	}

	o := &Orchestrator{
		validator:  deps.Validator,
		normalizer: deps.Normalizer,
		verifier:   deps.Verifier,
		finalizer:  deps.Finalizer,
		strategies: make(map[redact.StrategyKind]redact.Strategy),
		metrics:    deps.Metrics,
		opts:       opts,
	}
	if o.finalizer == nil {
		o.finalizer = NewFinalizer(opts.Debug)
	}
	for _, s := range deps.Strategies {
		o.strategies[s.Kind()] = s
	}
	if _, ok := o.strategies[opts.DefaultStrategy]; !ok {
		return nil, fmt.Errorf("default strategy %q is not registered", opts.DefaultStrategy)
	}
	return o, nil
}

// RequiredTools lists the external tools a strategy cannot run without
func RequiredTools(kind redact.StrategyKind) []string {
	switch kind {
	case redact.Structural:
		return []string{"qpdf"}
	case redact.Rasterize:
		return []string{"pdftoppm"}
	default:
		return nil
	}
}

// SetHealth records the latest toolchain probe. Until it is called every
// tool is assumed to be present.
func (o *Orchestrator) SetHealth(h toolchain.Health) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.health = &h
}

// Health returns the latest toolchain probe
func (o *Orchestrator) Health() (toolchain.Health, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.health == nil {
		return toolchain.Health{}, false
	}
	return *o.health, true
}

// Ready reports whether the default strategy can run
func (o *Orchestrator) Ready() bool {
	return len(o.missingTools(o.opts.DefaultStrategy)) == 0
}

// DefaultStrategy returns the strategy used for unpinned requests
func (o *Orchestrator) DefaultStrategy() redact.StrategyKind {
	return o.opts.DefaultStrategy
}

// Available reports, per registered strategy, whether its tools are present
func (o *Orchestrator) Available() map[redact.StrategyKind]bool {
	out := make(map[redact.StrategyKind]bool, len(o.strategies))
	for kind := range o.strategies {
		out[kind] = len(o.missingTools(kind)) == 0
	}
	return out
}

func (o *Orchestrator) missingTools(kind redact.StrategyKind) []string {
	h, ok := o.Health()
	if !ok {
		return nil
	}
	return h.Missing(RequiredTools(kind)...)
}

// Process runs a request to completion. On error no output is returned:
// the source document is never handed back in place of a redacted one.
func (o *Orchestrator) Process(ctx context.Context, req *Request) (*Result, error) {
	done := o.metrics.TrackInFlight()
	defer done()

	result, err := o.process(ctx, req)
	if err != nil {
		e := redact.AsError(err, redact.KindStrategyFailure)
		log.Printf("[%s] Request failed: %v", req.ID, e)
		o.metrics.ObserveRequest(string(req.Strategy), e.Kind.String())
		return nil, e
	}

	for _, w := range result.Warnings {
		o.metrics.ObserveWarning(w.Kind.String())
	}
	o.metrics.ObserveRequest(string(result.Strategy), "ok")
	o.metrics.ObservePages(string(result.Strategy), result.PagesRedacted)
	log.Printf("[%s] Request completed: strategy=%s pages=%d warnings=%d",
		req.ID, result.Strategy, result.PagesRedacted, len(result.Warnings))
	return result, nil
}

func (o *Orchestrator) process(ctx context.Context, req *Request) (*Result, error) {
	if req.Artifacts == nil {
		return nil, redact.InputError("request has no workspace", nil).WithStage(string(StageReceived))
	}

	var warnings redact.Warnings

	// Received -> Validated
	var report *pdf.Report
	err := o.stage(ctx, req.ID, StageValidated, func(sctx context.Context) error {
		var err error
		report, err = o.validator.Validate(sctx, req.SourcePath)
		return err
	})
	if err != nil {
		return nil, err
	}
	if o.opts.Debug {
		log.Printf("[%s] Validated %s: %d page(s), encrypted=%v, readable=%v",
			req.ID, req.SourcePath, report.PageCount, report.Encrypted, report.Readable)
	}

	plan, err := o.plan(req, report.PageCount, &warnings)
	if err != nil {
		return nil, err
	}

	kind := req.Strategy
	pinned := kind != ""
	if !pinned {
		kind = o.opts.DefaultStrategy
	}
	if _, ok := o.strategies[kind]; !ok {
		return nil, redact.InputError(fmt.Sprintf("strategy %q is not available", kind), nil).
			WithStage(string(StageReceived))
	}

	outcome, err := o.redact(ctx, req, kind, plan)
	if err != nil && o.canFallBack(kind, pinned, err) {
		log.Printf("[%s] %s strategy failed, falling back to %s: %v", req.ID, kind, redact.Rasterize, err)
		warnings.Add(redact.StrategyFallback(
			fmt.Sprintf("%s redaction failed, pages were rasterized instead", kind), err))
		o.metrics.ObserveFallback()
		kind = redact.Rasterize
		outcome, err = o.redact(ctx, req, kind, plan)
	}
	if err != nil {
		return nil, err
	}
	warnings.Add(outcome.Skipped...)

	// Redacted -> Finalized
	final, degraded := o.finalizer.Finalize(ctx, req.ID, req.Artifacts, outcome.Output)
	warnings.Add(degraded...)

	return &Result{
		RequestID:     req.ID,
		Output:        final,
		Strategy:      outcome.Strategy,
		PageCount:     report.PageCount,
		PagesRedacted: outcome.PagesRedacted,
		Regions:       plan.RegionCount() - len(outcome.Skipped),
		Warnings:      warnings.List(),
	}, nil
}

// plan normalizes the regions against the validated page count
func (o *Orchestrator) plan(req *Request, pageCount int, warnings *redact.Warnings) (redact.Plan, error) {
	regions, rejected := redact.NormalizeAll(req.Regions)
	for _, r := range rejected {
		log.Printf("[%s] Region skipped: %v", req.ID, r)
	}
	warnings.Add(rejected...)

	plan, outside := redact.BuildPlan(regions).Restrict(pageCount)
	for _, r := range outside {
		log.Printf("[%s] Region skipped: %v", req.ID, r)
	}
	warnings.Add(outside...)

	if plan.RegionCount() == 0 {
		return nil, redact.InputError(
			fmt.Sprintf("no valid region to redact (%s)", warnings.Summary()), nil).
			WithStage(string(StageNormalized))
	}
	if o.opts.Debug {
		log.Printf("[%s] Plan: %s", req.ID, plan)
	}
	return plan, nil
}

// canFallBack reports whether a failed run may be retried with Rasterize
func (o *Orchestrator) canFallBack(kind redact.StrategyKind, pinned bool, err error) bool {
	if pinned || !o.opts.Fallback || kind == redact.Rasterize || !o.rasterAvailable() {
		return false
	}
	return redact.KindOf(err) == redact.KindStrategyFailure
}

func (o *Orchestrator) rasterAvailable() bool {
	if _, ok := o.strategies[redact.Rasterize]; !ok {
		return false
	}
	return len(o.missingTools(redact.Rasterize)) == 0
}

// redact runs Validated -> Normalized -> Redacted for one strategy, always
// starting from the validated source
func (o *Orchestrator) redact(ctx context.Context, req *Request, kind redact.StrategyKind, plan redact.Plan) (*redact.Outcome, error) {
	strategy := o.strategies[kind]

	if missing := o.missingTools(kind); len(missing) > 0 {
		return nil, redact.StrategyFailure(
			fmt.Sprintf("%s strategy unavailable: missing %v", kind, missing), nil).
			WithStage(string(StageRedacted))
	}

	input, err := o.normalize(ctx, req, kind)
	if err != nil {
		return nil, err
	}

	job := &redact.Job{
		RequestID:  req.ID,
		Input:      input,
		Plan:       plan,
		QualityDPI: req.QualityDPI,
		Artifacts:  req.Artifacts,
	}

	var outcome *redact.Outcome
	err = o.stage(ctx, req.ID, StageRedacted, func(sctx context.Context) error {
		var err error
		outcome, err = strategy.Apply(sctx, job)
		return err
	})
	if err != nil {
		return nil, err
	}

	if kind == redact.Structural {
		if err := o.checkStructural(req, outcome); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// normalize produces the strategy input. Structural editing needs the
// canonical form; rasterizing falls back to the source.
func (o *Orchestrator) normalize(ctx context.Context, req *Request, kind redact.StrategyKind) (string, error) {
	if o.normalizer == nil {
		if kind == redact.Structural {
			return "", redact.StrategyFailure("no normalizer configured", nil).WithStage(string(StageNormalized))
		}
		return req.SourcePath, nil
	}

	out, err := req.Artifacts.Path(NormalizedName)
	if err == nil {
		err = o.stage(ctx, req.ID, StageNormalized, func(sctx context.Context) error {
			return o.normalizer.Normalize(sctx, req.SourcePath, out)
		})
	}
	if err == nil {
		return out, nil
	}

	if kind == redact.Structural {
		return "", redact.StrategyFailure("failed to normalize document", err).WithStage(string(StageNormalized))
	}
	log.Printf("[%s] Normalization skipped for %s strategy: %v", req.ID, kind, err)
	return req.SourcePath, nil
}

// checkStructural rejects structural output that is not provably clean
func (o *Orchestrator) checkStructural(req *Request, outcome *redact.Outcome) error {
	if o.verifier != nil && o.opts.Verify {
		err := o.verifier.Verify(outcome.Output, outcome.Covered)
		switch {
		case err == nil:
		case redact.KindOf(err) == redact.KindStrategyFailure:
			return redact.AsError(err, redact.KindStrategyFailure).WithStage(string(StageRedacted))
		default:
			log.Printf("[%s] Verification skipped, output could not be read: %v", req.ID, err)
		}
	}

	if outcome.CoarseRemovals > 0 && req.Strategy == "" && o.opts.Fallback && o.rasterAvailable() {
		return redact.StrategyFailure(
			fmt.Sprintf("%d object(s) only partially inside a region were removed whole", outcome.CoarseRemovals), nil).
			WithStage(string(StageRedacted))
	}
	return nil
}

// stage runs fn under the stage deadline and records its duration
func (o *Orchestrator) stage(ctx context.Context, requestID string, stage Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return redact.StrategyFailure("request cancelled", err).WithStage(string(stage))
	}

	sctx, cancel := context.WithTimeout(ctx, o.opts.StageTimeout)
	defer cancel()

	start := time.Now()
	err := fn(sctx)
	elapsed := time.Since(start)
	o.metrics.ObserveStage(string(stage), elapsed)

	if o.opts.Debug {
		log.Printf("[%s] Stage %s finished in %s", requestID, stage, elapsed.Round(time.Millisecond))
	}
	if err == nil {
		return nil
	}

	if toolchain.IsTimeout(err) {
		log.Printf("[%s] Stage %s exceeded its deadline", requestID, stage)
	}
	e := redact.AsError(err, redact.KindStrategyFailure)
	if e.Stage == "" {
		e.WithStage(string(stage))
	}
	return e
}
