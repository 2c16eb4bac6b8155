package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/a3tai/pdf-redactor/internal/artifact"
	"github.com/a3tai/pdf-redactor/internal/config"
	"github.com/a3tai/pdf-redactor/internal/httpapi"
	"github.com/a3tai/pdf-redactor/internal/mcp"
	"github.com/a3tai/pdf-redactor/internal/metrics"
	"github.com/a3tai/pdf-redactor/internal/pdf"
	"github.com/a3tai/pdf-redactor/internal/pipeline"
	"github.com/a3tai/pdf-redactor/internal/redact"
	"github.com/a3tai/pdf-redactor/internal/redactor"
	"github.com/a3tai/pdf-redactor/internal/strategy/raster"
	"github.com/a3tai/pdf-redactor/internal/strategy/structural"
	"github.com/a3tai/pdf-redactor/internal/toolchain"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// staleWorkspaceAge is how old a leftover workspace must be before the
// startup sweep removes it
const staleWorkspaceAge = time.Hour

// setupLogging configures logging based on the server mode
func setupLogging(cfg *config.Config) {
	if cfg.IsStdioMode() {
		// stdout carries the MCP protocol
		log.SetOutput(os.Stderr)
		if !cfg.IsDebug() {
			log.SetOutput(io.Discard)
		}
	} else {
		log.SetOutput(os.Stdout)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
}

// application holds everything main wires together
type application struct {
	service   *redactor.Service
	artifacts *artifact.Manager
	metrics   *metrics.Metrics
}

// buildApplication wires the toolchain, strategies and pipeline from cfg
func buildApplication(cfg *config.Config) (*application, error) {
	defaultStrategy, err := cfg.DefaultStrategy()
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	runner := toolchain.NewRunner(cfg.ToolTimeout)
	runner.Observe = m.ObserveTool
	qpdf := toolchain.NewQpdf(cfg.QpdfPath, runner)
	pdftoppm := toolchain.NewPdftoppm(cfg.PdftoppmPath, runner)

	orchestrator, err := pipeline.New(pipeline.Dependencies{
		Validator:  pdf.NewValidator(cfg.MaxFileSize, cfg.ValidationAttempts),
		Normalizer: qpdf,
		Verifier:   pdf.NewVerifier(),
		Finalizer:  pipeline.NewFinalizer(cfg.IsDebug(), pipeline.DefaultSteps(qpdf)...),
		Strategies: []redact.Strategy{
			structural.New(cfg.IsDebug()),
			raster.New(pdftoppm, cfg.RasterWorkers, cfg.IsDebug()),
		},
		Metrics: m,
	}, pipeline.Options{
		DefaultStrategy: defaultStrategy,
		Fallback:        cfg.Fallback,
		Verify:          cfg.Verify,
		StageTimeout:    cfg.StageTimeout,
		Debug:           cfg.IsDebug(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	artifacts, err := artifact.NewManager(cfg.WorkDirectory, cfg.CleanupDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	if removed, err := artifacts.Sweep(staleWorkspaceAge); err != nil {
		log.Printf("Failed to sweep stale workspaces: %v", err)
	} else if removed > 0 {
		log.Printf("Removed %d stale workspace(s) from %s", removed, cfg.WorkDirectory)
	}

	service, err := redactor.NewService(orchestrator, artifacts, redactor.Options{
		MaxFileSize: cfg.MaxFileSize,
		DefaultDPI:  cfg.DPI,
		Directory:   cfg.PDFDirectory,
		Tools:       []toolchain.Tool{qpdf, pdftoppm},
	})
	if err != nil {
		artifacts.Close()
		return nil, fmt.Errorf("failed to create redaction service: %w", err)
	}

	return &application{service: service, artifacts: artifacts, metrics: m}, nil
}

// runServerMode serves the HTTP API until a shutdown signal arrives
func runServerMode(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, app *application) {
	api, err := httpapi.NewServer(app.service, app.metrics, httpapi.Options{
		MaxFileSize: cfg.MaxFileSize,
		Debug:       cfg.IsDebug(),
	})
	if err != nil {
		log.Fatalf("Failed to create HTTP API: %v", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- api.ListenAndServe(ctx, cfg.Address())
	}()

	select {
	case sig := <-signalCh:
		log.Printf("Received signal: %s", sig)
		log.Println("Initiating graceful shutdown...")
		cancel()

		if err := <-serverErrCh; err != nil {
			log.Printf("Server shutdown with error: %v", err)
			app.artifacts.Close()
			os.Exit(1)
		}

	case err := <-serverErrCh:
		if err != nil {
			log.Printf("Server error: %v", err)
			app.artifacts.Close()
			os.Exit(1)
		}
	}

	app.artifacts.Close()
	log.Println("Server stopped successfully")
}

// runStdioMode serves MCP tools on stdio; the parent process controls our
// lifecycle
func runStdioMode(ctx context.Context, cfg *config.Config, app *application) {
	server, err := mcp.NewServer(cfg, app.service)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}

	err = server.Run(ctx)
	app.artifacts.Close()
	if err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)

	if version != "dev" {
		cfg.Version = version
	}

	if cfg.IsDebug() {
		log.Printf("Starting with configuration: %s", cfg.String())
	}

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if health := app.service.CheckToolchain(ctx); !app.service.Ready() {
		log.Printf("Default strategy cannot run, missing tools: %v", health.Missing("qpdf", "pdftoppm"))
	}

	if cfg.IsServerMode() {
		runServerMode(ctx, cancel, cfg, app)
	} else {
		runStdioMode(ctx, cfg, app)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("PDF Redactor\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
