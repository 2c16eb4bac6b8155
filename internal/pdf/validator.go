package pdf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/a3tai/pdf-redactor/internal/redact"
)

// Report describes a validated source document
type Report struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	PageCount int    `json:"page_count"`
	Encrypted bool   `json:"encrypted"`
	// Readable is false when the secondary text reader cannot open the
	// document; structural validation still passed
	Readable bool `json:"readable"`
	Attempts int  `json:"attempts"`
}

// Validator handles PDF file validation operations
type Validator struct {
	maxFileSize int64
	attempts    int
	backoff     time.Duration
}

// NewValidator creates a new PDF validator with the specified constraints
func NewValidator(maxFileSize int64, attempts int) *Validator {
	if attempts < 1 {
		attempts = 1
	}
	return &Validator{
		maxFileSize: maxFileSize,
		attempts:    attempts,
		backoff:     100 * time.Millisecond,
	}
}

// CheckFile performs the cheap checks on a stored upload
func (v *Validator) CheckFile(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("path cannot be empty")
	}

	fileInfo, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}

	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty: %s", filePath)
	}

	if v.maxFileSize > 0 && fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), v.maxFileSize)
	}

	return nil
}

// Validate checks that the document is structurally sound. It never
// modifies the file. Transient I/O failures are retried; a document that
// fails to parse is rejected immediately.
func (v *Validator) Validate(ctx context.Context, filePath string) (*Report, error) {
	if err := v.CheckFile(filePath); err != nil {
		return nil, redact.InputError("uploaded file is not usable", err)
	}

	var lastErr error
	for attempt := 1; attempt <= v.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, redact.UnsupportedDocument("validation cancelled", err)
		}

		report, err := v.inspect(filePath)
		if err == nil {
			report.Attempts = attempt
			return report, nil
		}
		lastErr = err

		if !isTransient(err) {
			break
		}
		if attempt < v.attempts {
			select {
			case <-ctx.Done():
			case <-time.After(v.backoff * time.Duration(attempt)):
			}
		}
	}

	return nil, redact.UnsupportedDocument("input is not a usable PDF document", lastErr)
}

func (v *Validator) inspect(filePath string) (*Report, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	pctx, err := api.ReadContext(file, NewConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := api.ValidateContext(pctx); err != nil {
		return nil, fmt.Errorf("structural validation failed: %w", err)
	}
	if err := pctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}
	if pctx.PageCount < 1 {
		return nil, fmt.Errorf("document has no pages")
	}

	return &Report{
		Path:      filePath,
		Size:      info.Size(),
		PageCount: pctx.PageCount,
		Encrypted: pctx.Encrypt != nil,
		Readable:  v.IsReadable(filePath),
	}, nil
}

// IsReadable reports whether the text reader can open the document
func (v *Validator) IsReadable(filePath string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return false
	}
	defer f.Close()

	return r.NumPage() > 0
}

// isTransient reports whether err comes from the file system rather than
// from the document itself
func isTransient(err error) bool {
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) {
		return false
	}
	return !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission)
}
