package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/pdf-redactor/internal/artifact"
	"github.com/a3tai/pdf-redactor/internal/config"
	"github.com/a3tai/pdf-redactor/internal/pdf/pdftest"
	"github.com/a3tai/pdf-redactor/internal/pipeline"
	"github.com/a3tai/pdf-redactor/internal/pipeline/pipelinetest"
	"github.com/a3tai/pdf-redactor/internal/redactor"
	"github.com/a3tai/pdf-redactor/internal/toolchain"
)

const testRegions = `[{"page":0,"x0":10,"y0":20,"x1":100,"y1":50,"page_height":792,"page_width":612}]`

type testTool struct {
	name      string
	available bool
}

func (t testTool) Name() string { return t.name }

func (t testTool) Binary() string {
	if t.available {
		return "sh"
	}
	return "not-installed-" + t.name
}

func (t testTool) Version(context.Context) (string, error) { return t.name + " 1.0", nil }

func testConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeStdio
	cfg.PDFDirectory = dir
	cfg.Version = "1.0.0"
	cfg.ServerName = "test-server"
	cfg.MaxFileSize = 1024 * 1024
	return cfg
}

func newTestService(t *testing.T, dir string, tools ...toolchain.Tool) *redactor.Service {
	t.Helper()

	h := pipelinetest.New(t, pipeline.Options{Fallback: true, Verify: true})
	m, err := artifact.NewManager(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("failed to create artifact manager: %v", err)
	}
	t.Cleanup(m.Close)

	service, err := redactor.NewService(h.Orchestrator, m, redactor.Options{
		MaxFileSize: 1024 * 1024,
		DefaultDPI:  72,
		Directory:   dir,
		Tools:       tools,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func newTestServer(t *testing.T, tools ...toolchain.Tool) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	server, err := NewServer(testConfig(dir), newTestService(t, dir, tools...))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return server, dir
}

func TestNewServer(t *testing.T) {
	dir := t.TempDir()
	service := newTestService(t, dir)

	tests := []struct {
		name        string
		config      *config.Config
		service     *redactor.Service
		expectError bool
	}{
		{name: "valid config", config: testConfig(dir), service: service},
		{name: "nil config", config: nil, service: service, expectError: true},
		{name: "nil service", config: testConfig(dir), service: nil, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.config, tt.service)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if server.config != tt.config {
				t.Error("server config not set correctly")
			}
			if server.service != tt.service {
				t.Error("server service not set correctly")
			}
			if server.mcpServer == nil {
				t.Error("mcpServer should be initialized")
			}
		})
	}
}

func TestServer_HandleRedactFile(t *testing.T) {
	server, dir := newTestServer(t)
	source := pdftest.WriteFile(t, dir, "statement.pdf", pdftest.ThreePages()...)

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{
				"path":    source,
				"regions": testRegions,
			},
		},
	}

	result, err := server.handleRedactFile(context.Background(), request)
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", extractTextFromResult(result))
	}

	text := extractTextFromResult(result)
	output := filepath.Join(dir, "redacted_statement.pdf")
	for _, want := range []string{"Redacted PDF written to: " + output, "Strategy: structural", "Pages: 3 (1 redacted)", "Regions applied: 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in result, got: %s", want, text)
		}
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestServer_HandleRedactFileOptions(t *testing.T) {
	server, dir := newTestServer(t)
	source := pdftest.WriteFile(t, dir, "scan.pdf", pdftest.ThreePages()...)
	output := filepath.Join(dir, "scan-clean.pdf")

	regions := `[
		{"page":0,"x0":10,"y0":20,"x1":100,"y1":50,"page_height":792,"page_width":612},
		{"page":1,"x0":10,"y0":20,"x1":100,"y1":50,"page_width":612}
	]`
	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{
				"path":        source,
				"regions":     regions,
				"strategy":    "rasterize",
				"quality_dpi": float64(36),
				"output":      output,
			},
		},
	}

	result, err := server.handleRedactFile(context.Background(), request)
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text := extractTextFromResult(result)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	if !strings.Contains(text, "Strategy: rasterize") {
		t.Errorf("expected rasterize strategy, got: %s", text)
	}
	if !strings.Contains(text, "Warnings (1):") || !strings.Contains(text, "RegionSkipped page 2 region 1") {
		t.Errorf("expected a skipped region warning, got: %s", text)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestServer_HandleRedactFileErrors(t *testing.T) {
	server, dir := newTestServer(t)
	source := pdftest.WriteFile(t, dir, "statement.pdf", pdftest.ThreePages()...)
	notPDF := filepath.Join(dir, "notes.pdf")
	if err := os.WriteFile(notPDF, []byte("just some text"), 0o600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{
			name: "missing path",
			args: map[string]interface{}{"regions": testRegions},
			want: "path",
		},
		{
			name: "missing regions",
			args: map[string]interface{}{"path": source},
			want: "regions",
		},
		{
			name: "invalid regions",
			args: map[string]interface{}{"path": source, "regions": "[{"},
			want: "InputError: invalid regions format",
		},
		{
			name: "outside directory",
			args: map[string]interface{}{"path": "/etc/passwd", "regions": testRegions},
			want: "InputError: security validation failed",
		},
		{
			name: "output overwrites source",
			args: map[string]interface{}{"path": source, "regions": testRegions, "output": source},
			want: "output must differ",
		},
		{
			name: "not a pdf",
			args: map[string]interface{}{"path": notPDF, "regions": testRegions},
			want: "UnsupportedDocumentError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: tt.args}}
			result, err := server.handleRedactFile(context.Background(), request)
			if err != nil {
				t.Fatalf("handler should not return error, got: %v", err)
			}
			if !result.IsError {
				t.Fatalf("expected a tool error, got: %s", extractTextFromResult(result))
			}
			if text := extractTextFromResult(result); !strings.Contains(text, tt.want) {
				t.Errorf("expected %q in error, got: %s", tt.want, text)
			}
		})
	}
}

func TestServer_HandleToolchainStatus(t *testing.T) {
	server, _ := newTestServer(t, testTool{name: "qpdf"}, testTool{name: "pdftoppm", available: true})

	result, err := server.handleToolchainStatus(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	text := extractTextFromResult(result)
	for _, want := range []string{
		"Toolchain status: degraded",
		"Default strategy: structural",
		"rasterize: available",
		"structural: unavailable",
		"pdftoppm: pdftoppm 1.0",
		"qpdf: missing",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in status, got: %s", want, text)
		}
	}
}

func TestServer_Run(t *testing.T) {
	server, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := server.Run(ctx); err == nil || !strings.Contains(err.Error(), "context") {
		t.Errorf("Run() error = %v, expected context-related error", err)
	}

	server.config.Mode = config.ModeServer
	if err := server.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "stdio") {
		t.Errorf("Run() error = %v, expected mode error", err)
	}
}

// Helper function to extract text from MCP result
func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}

	return ""
}
