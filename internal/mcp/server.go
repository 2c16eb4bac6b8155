package mcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/pdf-redactor/internal/config"
	"github.com/a3tai/pdf-redactor/internal/descriptions"
	"github.com/a3tai/pdf-redactor/internal/redact"
	"github.com/a3tai/pdf-redactor/internal/redactor"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	service   *redactor.Service
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *redactor.Service) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		config:    cfg,
		service:   service,
		mcpServer: mcpServer,
	}
	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	redactFileTool := mcp.NewTool(
		"pdf_redact_file",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_redact_file")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF file inside the configured directory"),
		),
		mcp.WithString("regions",
			mcp.Required(),
			mcp.Description("JSON array of regions to remove"),
		),
		mcp.WithString("strategy",
			mcp.Description("structural or rasterize (uses the configured default if empty)"),
			mcp.Enum(string(redact.Structural), string(redact.Rasterize)),
		),
		mcp.WithNumber("quality_dpi",
			mcp.Description("Render resolution for the rasterize strategy (max 600)"),
		),
		mcp.WithString("output",
			mcp.Description("Output path (defaults to redacted_<name> next to the source)"),
		),
	)
	s.mcpServer.AddTool(redactFileTool, s.handleRedactFile)

	toolchainStatusTool := mcp.NewTool(
		"pdf_toolchain_status",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_toolchain_status")),
	)
	s.mcpServer.AddTool(toolchainStatusTool, s.handleToolchainStatus)
}

func (s *Server) handleRedactFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	regions, err := request.RequireString("regions")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := redactor.RedactFileRequest{
		Path:       path,
		Regions:    regions,
		Strategy:   request.GetString("strategy", ""),
		QualityDPI: request.GetInt("quality_dpi", 0),
		Output:     request.GetString("output", ""),
	}
	result, err := s.service.RedactFile(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(formatError(err)), nil
	}

	return mcp.NewToolResultText(s.formatRedactFileResult(result)), nil
}

func (s *Server) handleToolchainStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result := s.service.ToolchainStatus(ctx)
	return mcp.NewToolResultText(s.formatToolchainStatusResult(result)), nil
}

// Formatting methods

// formatError renders the error kind so callers can tell bad input from a
// failed redaction
func formatError(err error) string {
	var re *redact.Error
	if errors.As(err, &re) {
		text := fmt.Sprintf("%s: %s", re.Kind, re.Details())
		if re.Stage != "" {
			text += fmt.Sprintf(" (stage: %s)", re.Stage)
		}
		return text
	}
	return err.Error()
}

func (s *Server) formatRedactFileResult(result *redactor.RedactFileResult) string {
	text := fmt.Sprintf("Redacted PDF written to: %s\n", result.Output)
	text += fmt.Sprintf("Source: %s\n", result.Source)
	text += fmt.Sprintf("Strategy: %s\n", result.Strategy)
	text += fmt.Sprintf("Pages: %d (%d redacted)\n", result.PageCount, result.PagesRedacted)
	text += fmt.Sprintf("Regions applied: %d\n", result.Regions)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	text += fmt.Sprintf("Request ID: %s\n", result.RequestID)

	if len(result.Warnings) > 0 {
		text += fmt.Sprintf("\nWarnings (%d):\n", len(result.Warnings))
		for i, w := range result.Warnings {
			text += fmt.Sprintf("%d. %s", i+1, w.Kind)
			if w.Page > 0 {
				text += fmt.Sprintf(" page %d", w.Page)
			}
			if w.Region >= 0 {
				text += fmt.Sprintf(" region %d", w.Region)
			}
			text += fmt.Sprintf(": %s\n", w.Details())
		}
	}

	return text
}

func (s *Server) formatToolchainStatusResult(result *redactor.ToolchainStatusResult) string {
	text := fmt.Sprintf("Toolchain status: %s\n", result.Status)
	text += fmt.Sprintf("Default strategy: %s\n", result.DefaultStrategy)

	kinds := make([]string, 0, len(result.Strategies))
	for kind := range result.Strategies {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	text += "\nStrategies:\n"
	for _, kind := range kinds {
		state := "available"
		if !result.Strategies[kind] {
			state = "unavailable"
		}
		text += fmt.Sprintf("  • %s: %s\n", kind, state)
	}

	if len(result.Tools) > 0 {
		text += "\nTools:\n"
		for _, t := range result.Tools {
			if t.Available {
				text += fmt.Sprintf("  • %s: %s (%s)\n", t.Name, t.Version, t.Path)
			} else {
				text += fmt.Sprintf("  • %s: missing (%s)\n", t.Name, strings.TrimSpace(t.Error))
			}
		}
	}

	if !result.CheckedAt.IsZero() {
		text += fmt.Sprintf("\nChecked at: %s\n", result.CheckedAt.Format("2006-01-02 15:04:05"))
	}
	return text
}

// Run serves the MCP protocol on stdio until the client disconnects
func (s *Server) Run(ctx context.Context) error {
	if !s.config.IsStdioMode() {
		return fmt.Errorf("MCP server requires stdio mode, got %q", s.config.Mode)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting PDF redactor MCP server in stdio mode")
		log.Printf("PDF directory: %s", s.config.PDFDirectory)
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
