package redactor

import (
	"io"
	"time"

	"github.com/a3tai/pdf-redactor/internal/redact"
	"github.com/a3tai/pdf-redactor/internal/toolchain"
)

// Request Types

// UploadRequest is a document received over the HTTP API
type UploadRequest struct {
	// ID becomes the request and workspace identifier; generated when empty
	ID       string
	Filename string
	Body     io.Reader
	// Regions is the raw JSON region payload
	Regions    []byte
	Strategy   string
	QualityDPI int
}

// RedactFileRequest redacts a document on the local file system
type RedactFileRequest struct {
	Path       string `json:"path"`
	Regions    string `json:"regions"`
	Strategy   string `json:"strategy,omitempty"`
	QualityDPI int    `json:"quality_dpi,omitempty"`
	// Output defaults to redacted_<name> next to the source
	Output string `json:"output,omitempty"`
}

// Result Types

// RedactFileResult describes a redacted document written to disk
type RedactFileResult struct {
	RequestID     string              `json:"request_id"`
	Source        string              `json:"source"`
	Output        string              `json:"output"`
	Size          int64               `json:"size"`
	Strategy      redact.StrategyKind `json:"strategy"`
	PageCount     int                 `json:"page_count"`
	PagesRedacted int                 `json:"pages_redacted"`
	Regions       int                 `json:"regions_applied"`
	Warnings      []*redact.Error     `json:"warnings,omitempty"`
	Duration      time.Duration       `json:"duration"`
}

// ToolchainStatusResult reports the external tools and which strategies
// they enable
type ToolchainStatusResult struct {
	Status          string                 `json:"status"`
	DefaultStrategy redact.StrategyKind    `json:"default_strategy"`
	Strategies      map[string]bool        `json:"strategies"`
	Tools           []toolchain.ToolStatus `json:"tools"`
	CheckedAt       time.Time              `json:"checked_at"`
}
