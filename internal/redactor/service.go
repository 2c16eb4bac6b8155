// Package redactor is the entry point shared by the HTTP API and the MCP
// tools: it owns request workspaces and hands documents to the pipeline.
package redactor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/a3tai/pdf-redactor/internal/artifact"
	"github.com/a3tai/pdf-redactor/internal/pdf/security"
	"github.com/a3tai/pdf-redactor/internal/pipeline"
	"github.com/a3tai/pdf-redactor/internal/redact"
	"github.com/a3tai/pdf-redactor/internal/toolchain"
)

// SourceName is the workspace artifact holding the received document
const SourceName = "source.pdf"

// OutputPrefix is prepended to the name of every delivered document
const OutputPrefix = "redacted_"

// Options configure a Service
type Options struct {
	MaxFileSize int64
	// DefaultDPI applies when a request does not ask for a resolution
	DefaultDPI int
	// Directory confines file system requests; empty disables them
	Directory string
	Tools     []toolchain.Tool
}

// Service handles redaction requests by orchestrating workspaces, the
// pipeline and the toolchain probe
type Service struct {
	orchestrator  *pipeline.Orchestrator
	artifacts     *artifact.Manager
	pathValidator *security.PathValidator
	opts          Options
}

// NewService creates a redaction service
func NewService(orchestrator *pipeline.Orchestrator, artifacts *artifact.Manager, opts Options) (*Service, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact manager cannot be nil")
	}

	s := &Service{
		orchestrator: orchestrator,
		artifacts:    artifacts,
		opts:         opts,
	}
	if opts.Directory != "" {
		pv, err := security.NewPathValidator(opts.Directory)
		if err != nil {
			return nil, fmt.Errorf("failed to create path validator: %w", err)
		}
		s.pathValidator = pv
	}
	return s, nil
}

// Delivery is a redacted document waiting to be sent. Release must be
// called once the caller is done with it.
type Delivery struct {
	*pipeline.Result
	// Filename is the name to present to the client
	Filename string

	workspace *artifact.Workspace
}

// Open opens the delivered document for reading
func (d *Delivery) Open() (*os.File, error) {
	return os.Open(d.Output)
}

// Release schedules the request's artifacts for deletion
func (d *Delivery) Release() {
	if d != nil && d.workspace != nil {
		d.workspace.Release()
	}
}

// Redact stores an uploaded document and runs it through the pipeline. On
// error every artifact is already released.
func (s *Service) Redact(ctx context.Context, req UploadRequest) (*Delivery, error) {
	specs, err := redact.ParseRegions(req.Regions)
	if err != nil {
		return nil, err
	}
	kind, err := redact.ParseStrategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	if req.Body == nil {
		return nil, redact.InputError("no file uploaded", nil)
	}

	ws, err := s.artifacts.Create(req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	source, n, err := ws.Import(req.Body, SourceName, s.opts.MaxFileSize)
	if err != nil {
		ws.Release()
		if errors.Is(err, artifact.ErrTooLarge) {
			return nil, redact.InputError(
				fmt.Sprintf("file exceeds the maximum size of %d bytes", s.opts.MaxFileSize), err)
		}
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	log.Printf("[%s] Received %q (%d bytes, %d region(s), strategy=%q)",
		ws.ID, req.Filename, n, len(specs), kind)

	dpi := req.QualityDPI
	if dpi <= 0 {
		dpi = s.opts.DefaultDPI
	}

	result, err := s.orchestrator.Process(ctx, &pipeline.Request{
		ID:         ws.ID,
		SourcePath: source,
		Regions:    specs,
		Strategy:   kind,
		QualityDPI: dpi,
		Artifacts:  ws,
	})
	if err != nil {
		ws.Release()
		return nil, err
	}

	return &Delivery{
		Result:    result,
		Filename:  OutputFilename(req.Filename),
		workspace: ws,
	}, nil
}

// RedactFile redacts a document inside the configured directory and writes
// the result next to it (or to req.Output)
func (s *Service) RedactFile(ctx context.Context, req RedactFileRequest) (*RedactFileResult, error) {
	if s.pathValidator == nil {
		return nil, fmt.Errorf("file system access is not configured")
	}
	start := time.Now()

	source, err := s.pathValidator.SanitizePath(req.Path)
	if err != nil {
		return nil, redact.InputError("security validation failed", err)
	}

	output := req.Output
	if output == "" {
		output = filepath.Join(filepath.Dir(source), OutputFilename(filepath.Base(source)))
	}
	output, err = s.pathValidator.SanitizePath(output)
	if err != nil {
		return nil, redact.InputError("security validation failed", err)
	}
	if output == source {
		return nil, redact.InputError("output must differ from the source document", nil)
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, redact.InputError("cannot open source document", err)
	}
	defer file.Close()

	delivery, err := s.Redact(ctx, UploadRequest{
		Filename:   filepath.Base(source),
		Body:       file,
		Regions:    []byte(req.Regions),
		Strategy:   req.Strategy,
		QualityDPI: req.QualityDPI,
	})
	if err != nil {
		return nil, err
	}
	defer delivery.Release()

	size, err := publish(delivery.Output, output)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", output, err)
	}

	return &RedactFileResult{
		RequestID:     delivery.RequestID,
		Source:        source,
		Output:        output,
		Size:          size,
		Strategy:      delivery.Strategy,
		PageCount:     delivery.PageCount,
		PagesRedacted: delivery.PagesRedacted,
		Regions:       delivery.Regions,
		Warnings:      delivery.Warnings,
		Duration:      time.Since(start),
	}, nil
}

// publish copies src to dst through a temporary file in dst's directory so
// a partially written document never appears under the final name
func publish(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".redact-*.pdf")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, in)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	return n, os.Rename(tmp.Name(), dst)
}

// CheckToolchain probes the external tools and records the result for the
// pipeline's strategy preconditions
func (s *Service) CheckToolchain(ctx context.Context) toolchain.Health {
	health := toolchain.Check(ctx, s.opts.Tools...)
	s.orchestrator.SetHealth(health)
	for _, t := range health.Tools {
		if t.Available {
			log.Printf("Toolchain: %s %s at %s", t.Name, t.Version, t.Path)
		} else {
			log.Printf("Toolchain: %s unavailable: %s", t.Name, t.Error)
		}
	}
	return health
}

// ToolchainStatus reports the last probe, probing first if none ran yet
func (s *Service) ToolchainStatus(ctx context.Context) *ToolchainStatusResult {
	health, ok := s.orchestrator.Health()
	if !ok {
		health = s.CheckToolchain(ctx)
	}

	strategies := make(map[string]bool)
	for kind, ok := range s.orchestrator.Available() {
		strategies[string(kind)] = ok
	}

	status := "ok"
	if !s.orchestrator.Ready() {
		status = "degraded"
	}
	return &ToolchainStatusResult{
		Status:          status,
		DefaultStrategy: s.orchestrator.DefaultStrategy(),
		Strategies:      strategies,
		Tools:           health.Tools,
		CheckedAt:       health.CheckedAt,
	}
}

// Ready reports whether the default strategy can run
func (s *Service) Ready() bool {
	return s.orchestrator.Ready()
}

// GetMaxFileSize returns the maximum upload size
func (s *Service) GetMaxFileSize() int64 {
	return s.opts.MaxFileSize
}

// Directory returns the directory file system requests are confined to
func (s *Service) Directory() string {
	if s.pathValidator == nil {
		return ""
	}
	return s.pathValidator.GetConfiguredDirectory()
}

// OutputFilename derives the delivered file name from the uploaded one
func OutputFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		name = "document.pdf"
	}
	return OutputPrefix + name
}
