package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-redactor/internal/artifact"
	"github.com/a3tai/pdf-redactor/internal/pdf/pdftest"
	"github.com/a3tai/pdf-redactor/internal/pipeline"
	"github.com/a3tai/pdf-redactor/internal/pipeline/pipelinetest"
	"github.com/a3tai/pdf-redactor/internal/redactor"
	"github.com/a3tai/pdf-redactor/internal/toolchain"
)

const scenarioA = `[{"page":0,"x0":10,"y0":20,"x1":100,"y1":50,"page_height":792,"page_width":612}]`

type stubTool struct {
	name      string
	available bool
}

func (s stubTool) Name() string { return s.name }

func (s stubTool) Binary() string {
	if s.available {
		return "sh"
	}
	return "missing-" + s.name + "-binary"
}

func (s stubTool) Version(context.Context) (string, error) { return s.name + " 11.9.0", nil }

func newTestServer(t *testing.T, maxFileSize int64, tools ...toolchain.Tool) *Server {
	t.Helper()

	h := pipelinetest.New(t, pipeline.Options{Fallback: true, Verify: true})
	m, err := artifact.NewManager(t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	svc, err := redactor.NewService(h.Orchestrator, m, redactor.Options{
		MaxFileSize: maxFileSize,
		DefaultDPI:  72,
		Tools:       tools,
	})
	require.NoError(t, err)

	s, err := NewServer(svc, h.Metrics, Options{})
	require.NoError(t, err)
	return s
}

// multipartBody builds an upload with an optional file and form fields
func multipartBody(t *testing.T, file []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile("file", "statement.pdf")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func post(t *testing.T, s *Server, path string, file []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, file, fields)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestNewServer_NilService(t *testing.T) {
	_, err := NewServer(nil, nil, Options{})
	assert.Error(t, err)
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(t, 1<<20)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "API is running")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t, 1<<20)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/redactions", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestHandleRedact_Structural(t *testing.T) {
	s := newTestServer(t, 1<<20)
	source := pdftest.Build(pdftest.ThreePages()...)

	for _, path := range []string{"/redactions", "/remove-content"} {
		t.Run(path, func(t *testing.T) {
			rec := post(t, s, path, source, map[string]string{"regions": scenarioA})

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
			assert.Equal(t, `attachment; filename="redacted_statement.pdf"`, rec.Header().Get("Content-Disposition"))
			assert.Equal(t, "structural", rec.Header().Get(HeaderStrategy))
			assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
			assert.Empty(t, rec.Header().Get(HeaderWarnings))
			assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
		})
	}
}

func TestHandleRedact_LegacyLocationsField(t *testing.T) {
	s := newTestServer(t, 1<<20)
	source := pdftest.Build(pdftest.ThreePages()...)

	single := `{"page":"0","x0":"10","y0":"20","x1":"100","y1":"50","page_height":"792","page_width":"612"}`
	rec := post(t, s, "/remove-content", source, map[string]string{"locations": single})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "structural", rec.Header().Get(HeaderStrategy))
}

func TestHandleRedact_WarningsHeader(t *testing.T) {
	s := newTestServer(t, 1<<20)
	source := pdftest.Build(pdftest.ThreePages()...)

	regions := `[
		{"page":0,"x0":10,"y0":20,"x1":100,"y1":50,"page_height":792,"page_width":612},
		{"page":1,"x0":10,"y0":20,"x1":100,"y1":50,"page_width":612},
		{"page":2,"x0":10,"y0":20,"x1":100,"y1":50,"page_height":792,"page_width":612}
	]`
	rec := post(t, s, "/redactions", source, map[string]string{"regions": regions})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var warnings []map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get(HeaderWarnings)), &warnings))
	require.Len(t, warnings, 1)
	assert.Equal(t, "RegionSkipped", warnings[0]["kind"])
	assert.Equal(t, float64(1), warnings[0]["region"])
	assert.Contains(t, warnings[0]["details"], "page_height")
}

func TestHandleRedact_Rasterize(t *testing.T) {
	s := newTestServer(t, 1<<20)
	source := pdftest.Build(pdftest.ThreePages()...)

	rec := post(t, s, "/redactions", source, map[string]string{
		"regions":    scenarioA,
		"strategy":   "rasterize",
		"qualityDpi": "36",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "rasterize", rec.Header().Get(HeaderStrategy))
}

func TestHandleRedact_Errors(t *testing.T) {
	source := pdftest.Build(pdftest.ThreePages()...)

	tests := []struct {
		name       string
		file       []byte
		fields     map[string]string
		wantStatus int
		wantKind   string
		wantDetail string
	}{
		{
			name:       "no file",
			fields:     map[string]string{"regions": scenarioA},
			wantStatus: http.StatusBadRequest,
			wantKind:   "InputError",
			wantDetail: "No file uploaded",
		},
		{
			name:       "invalid regions",
			file:       source,
			fields:     map[string]string{"regions": "not json"},
			wantStatus: http.StatusBadRequest,
			wantKind:   "InputError",
			wantDetail: "invalid regions format",
		},
		{
			name:       "no valid region",
			file:       source,
			fields:     map[string]string{"regions": `[{"page":0,"x0":10,"y0":20,"x1":10,"y1":50,"page_height":792,"page_width":612}]`},
			wantStatus: http.StatusBadRequest,
			wantKind:   "InputError",
			wantDetail: "no valid region",
		},
		{
			name:       "invalid dpi",
			file:       source,
			fields:     map[string]string{"regions": scenarioA, "quality_dpi": "high"},
			wantStatus: http.StatusBadRequest,
			wantKind:   "InputError",
			wantDetail: "qualityDpi",
		},
		{
			name:       "unknown strategy",
			file:       source,
			fields:     map[string]string{"regions": scenarioA, "strategy": "magic"},
			wantStatus: http.StatusBadRequest,
			wantKind:   "InputError",
			wantDetail: "unknown strategy",
		},
		{
			name:       "not a pdf",
			file:       []byte("plain text pretending to be a document"),
			fields:     map[string]string{"regions": scenarioA},
			wantStatus: http.StatusInternalServerError,
			wantKind:   "UnsupportedDocumentError",
			wantDetail: "not a usable PDF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, 1<<20)
			rec := post(t, s, "/redactions", tt.file, tt.fields)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

			body := decodeError(t, rec)
			assert.Equal(t, tt.wantKind, body.Error)
			assert.Contains(t, body.Details, tt.wantDetail)
		})
	}
}

func TestHandleRedact_TooLarge(t *testing.T) {
	t.Run("over the stored limit", func(t *testing.T) {
		s := newTestServer(t, 1024)
		rec := post(t, s, "/redactions", bytes.Repeat([]byte("x"), 4096), map[string]string{"regions": scenarioA})

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "InputError", decodeError(t, rec).Error)
	})

	t.Run("over the body limit", func(t *testing.T) {
		s := newTestServer(t, 1024)
		rec := post(t, s, "/redactions", bytes.Repeat([]byte("x"), 3<<20), map[string]string{"regions": scenarioA})

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		s := newTestServer(t, 1<<20, stubTool{name: "qpdf", available: true}, stubTool{name: "pdftoppm", available: true})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body redactor.ToolchainStatusResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		require.Len(t, body.Tools, 2)
		assert.Equal(t, "qpdf 11.9.0", body.Tools[0].Version)
	})

	t.Run("default strategy tool missing", func(t *testing.T) {
		s := newTestServer(t, 1<<20, stubTool{name: "qpdf"}, stubTool{name: "pdftoppm", available: true})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	})
}

func TestHandleMetrics(t *testing.T) {
	s := newTestServer(t, 1<<20)
	post(t, s, "/redactions", pdftest.Build(pdftest.ThreePages()...), map[string]string{"regions": scenarioA})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `pdf_redactor_requests_total{outcome="ok",strategy="structural"} 1`))
	assert.Contains(t, string(body), "pdf_redactor_stage_duration_seconds")
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, 1<<20)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/redactions", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
