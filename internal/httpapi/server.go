// Package httpapi serves the redaction service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/a3tai/pdf-redactor/internal/artifact"
	"github.com/a3tai/pdf-redactor/internal/metrics"
	"github.com/a3tai/pdf-redactor/internal/redact"
	"github.com/a3tai/pdf-redactor/internal/redactor"
)

const (
	// HeaderRequestID carries the request identifier on every response
	HeaderRequestID = "X-Request-ID"
	// HeaderStrategy names the strategy that produced the document
	HeaderStrategy = "X-Redaction-Strategy"
	// HeaderWarnings holds a JSON array of non-fatal warnings
	HeaderWarnings = "X-Redaction-Warnings"

	// multipart fields other than the file stay in memory below this size
	formMemory = 1 << 20

	shutdownTimeout = 10 * time.Second
)

// Options configure the HTTP server
type Options struct {
	MaxFileSize int64
	Debug       bool
}

// Server routes HTTP requests to the redaction service
type Server struct {
	service *redactor.Service
	metrics *metrics.Metrics
	opts    Options
	router  chi.Router
}

// NewServer creates the HTTP API. metrics may be nil.
func NewServer(service *redactor.Service, m *metrics.Metrics, opts Options) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = service.GetMaxFileSize()
	}

	s := &Server{service: service, metrics: m, opts: opts}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/redactions", s.handleRedact)
	r.Post("/remove-content", s.handleRedact)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP API listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down HTTP API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "PDF Redactor API is running")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.service.ToolchainStatus(r.Context())
	code := http.StatusOK
	if !s.service.Ready() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set(HeaderRequestID, requestID)

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxFileSize+formMemory)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		writeError(w, requestID, classifyUploadError(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, requestID, redact.InputError("No file uploaded", err))
		return
	}
	defer file.Close()

	dpi, err := formInt(r, "qualityDpi", "quality_dpi")
	if err != nil {
		writeError(w, requestID, err)
		return
	}

	delivery, err := s.service.Redact(r.Context(), redactor.UploadRequest{
		ID:         requestID,
		Filename:   uploadName(header),
		Body:       file,
		Regions:    []byte(formValue(r, "regions", "locations")),
		Strategy:   formValue(r, "strategy"),
		QualityDPI: dpi,
	})
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	defer delivery.Release()

	s.sendDocument(w, requestID, delivery)
}

func (s *Server) sendDocument(w http.ResponseWriter, requestID string, d *redactor.Delivery) {
	f, err := d.Open()
	if err != nil {
		writeError(w, requestID, fmt.Errorf("failed to open redacted document: %w", err))
		return
	}
	defer f.Close()

	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
	h.Set(HeaderStrategy, string(d.Strategy))
	if info, err := f.Stat(); err == nil {
		h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	if len(d.Warnings) > 0 {
		if data, err := json.Marshal(d.Warnings); err == nil {
			h.Set(HeaderWarnings, string(data))
		}
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		log.Printf("[%s] Failed to stream document: %v", requestID, err)
		return
	}
	if s.opts.Debug {
		log.Printf("[%s] Delivered %s", requestID, d.Filename)
	}
}

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details"`
	Stage     string `json:"stage,omitempty"`
	Page      int    `json:"page,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, requestID string, err error) {
	status := http.StatusInternalServerError
	body := errorResponse{Error: redact.KindUnknown.String(), Details: err.Error(), RequestID: requestID}

	var re *redact.Error
	if errors.As(err, &re) {
		status = re.Kind.HTTPStatus()
		body.Error = re.Kind.String()
		body.Details = re.Details()
		body.Stage = re.Stage
		body.Page = re.Page
	}
	if errors.Is(err, artifact.ErrTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}

	log.Printf("[%s] Request failed with %d: %v", requestID, status, err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// classifyUploadError maps multipart parsing failures onto the taxonomy
func classifyUploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return redact.InputError(
			fmt.Sprintf("upload exceeds the maximum size of %d bytes", tooLarge.Limit), artifact.ErrTooLarge)
	}
	if strings.Contains(err.Error(), "request body too large") {
		return redact.InputError("upload exceeds the maximum size", artifact.ErrTooLarge)
	}
	return redact.InputError("invalid multipart form", err)
}

// formValue returns the first non-empty value among the given field names
func formValue(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.FormValue(name)); v != "" {
			return v
		}
	}
	return ""
}

func formInt(r *http.Request, names ...string) (int, error) {
	raw := formValue(r, names...)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, redact.InputError(fmt.Sprintf("%s must be a positive integer, got %q", names[0], raw), err)
	}
	return v, nil
}

func uploadName(h *multipart.FileHeader) string {
	if h == nil {
		return ""
	}
	return h.Filename
}
