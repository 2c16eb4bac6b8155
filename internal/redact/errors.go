package redact

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies redaction failures and warnings
type Kind int

const (
	KindUnknown Kind = iota
	KindInput
	KindUnsupportedDocument
	KindRegionSkipped
	KindStrategyFailure
	KindFinalizationDegraded
	KindStrategyFallback
)

// String returns the taxonomy name reported to callers
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "InputError"
	case KindUnsupportedDocument:
		return "UnsupportedDocumentError"
	case KindRegionSkipped:
		return "RegionSkipped"
	case KindStrategyFailure:
		return "StrategyFailure"
	case KindFinalizationDegraded:
		return "FinalizationDegraded"
	case KindStrategyFallback:
		return "StrategyFallback"
	default:
		return "InternalError"
	}
}

// MarshalText encodes the kind by its taxonomy name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsFatal reports whether an error of this kind aborts the request
func (k Kind) IsFatal() bool {
	switch k {
	case KindRegionSkipped, KindFinalizationDegraded, KindStrategyFallback:
		return false
	default:
		return true
	}
}

// HTTPStatus maps the kind onto a response status code
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInput:
		return http.StatusBadRequest
	case KindRegionSkipped, KindFinalizationDegraded, KindStrategyFallback:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error type produced by the redaction pipeline.
// Page is one-based (0 when not page specific); Region is the index of the
// offending RegionSpec in the request (-1 when not region specific).
type Error struct {
	Kind    Kind   `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Page    int    `json:"page,omitempty"`
	Region  int    `json:"region"`
	Message string `json:"details"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Stage != "" {
		fmt.Fprintf(&b, " [%s]", e.Stage)
	}
	if e.Region >= 0 {
		fmt.Fprintf(&b, " region %d", e.Region)
	}
	if e.Page > 0 {
		fmt.Fprintf(&b, " page %d", e.Page)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil && e.Err.Error() != e.Message {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Details returns the message shown to API callers
func (e *Error) Details() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// WithStage records the pipeline stage the error was raised in
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithPage records the one-based page the error relates to
func (e *Error) WithPage(page int) *Error {
	e.Page = page
	return e
}

// NewError creates a new Error of the given kind
func NewError(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Region:  -1,
		Message: message,
		Err:     err,
	}
}

// InputError reports malformed uploads or region payloads
func InputError(message string, err error) *Error {
	return NewError(KindInput, message, err)
}

// UnsupportedDocument reports a source that failed structural validation
func UnsupportedDocument(message string, err error) *Error {
	return NewError(KindUnsupportedDocument, message, err)
}

// StrategyFailure reports that no safe output could be produced
func StrategyFailure(message string, err error) *Error {
	return NewError(KindStrategyFailure, message, err)
}

// StrategyFallback reports that the default strategy failed and another one
// produced the output
func StrategyFallback(message string, err error) *Error {
	return NewError(KindStrategyFallback, message, err)
}

// FinalizationDegraded reports a failed optimization/linearization step
func FinalizationDegraded(message string, err error) *Error {
	return NewError(KindFinalizationDegraded, message, err)
}

// RegionSkipped reports a single rectangle that could not be applied
func RegionSkipped(region, page int, reason string) *Error {
	return &Error{
		Kind:    KindRegionSkipped,
		Page:    page,
		Region:  region,
		Message: reason,
	}
}

// KindOf classifies any error; errors not produced by this package are unknown
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// AsError converts err into an *Error, defaulting to the given kind
func AsError(err error, fallback Kind) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return NewError(fallback, err.Error(), err)
}

// Warnings accumulates non-fatal errors for a single request
type Warnings struct {
	items []*Error
}

// Add records warnings, ignoring nil entries
func (w *Warnings) Add(errs ...*Error) {
	for _, e := range errs {
		if e != nil {
			w.items = append(w.items, e)
		}
	}
}

// List returns the warnings in the order they were recorded
func (w *Warnings) List() []*Error {
	out := make([]*Error, len(w.items))
	copy(out, w.items)
	return out
}

// Len returns the number of warnings
func (w *Warnings) Len() int {
	return len(w.items)
}

// Count returns the number of warnings of a kind
func (w *Warnings) Count(kind Kind) int {
	n := 0
	for _, e := range w.items {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Summary returns a short human readable summary
func (w *Warnings) Summary() string {
	if len(w.items) == 0 {
		return "No warnings"
	}
	return fmt.Sprintf("%d warning(s): %d region(s) skipped, %d finalization issue(s)",
		len(w.items), w.Count(KindRegionSkipped), w.Count(KindFinalizationDegraded))
}
