package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/pdf-redactor/internal/redact"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort               = 8080
	DefaultHost               = "127.0.0.1"
	DefaultLogLevel           = "info"
	DefaultMaxFileSize        = 100 * 1024 * 1024 // 100MB
	DefaultStrategy           = string(redact.Structural)
	DefaultDPI                = redact.DefaultDPI
	DefaultRasterWorkers      = 2
	DefaultStageTimeout       = 5 * time.Minute
	DefaultToolTimeout        = 2 * time.Minute
	DefaultCleanupDelay       = time.Second
	DefaultValidationAttempts = 3

	// Directory permissions
	DefaultDirPerm = 0o750

	// EnvPrefix prefixes every environment variable
	EnvPrefix = "REDACT"
	// EnvFileVar names an alternative dotenv file
	EnvFileVar = "REDACT_ENV_FILE"
)

// Config holds all configuration for the redaction service
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// PDFDirectory confines the paths accepted by the MCP tools
	PDFDirectory string
	// WorkDirectory is the root of per-request scratch directories
	WorkDirectory string

	// Redaction configuration
	Strategy           string
	Fallback           bool
	DPI                int
	RasterWorkers      int
	Verify             bool
	StageTimeout       time.Duration
	ToolTimeout        time.Duration
	CleanupDelay       time.Duration
	ValidationAttempts int

	// External tools
	QpdfPath     string
	PdftoppmPath string

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:               ModeServer,
		Host:               DefaultHost,
		Port:               DefaultPort,
		PDFDirectory:       currentDir,
		WorkDirectory:      filepath.Join(os.TempDir(), "pdf-redactor"),
		Strategy:           DefaultStrategy,
		Fallback:           true,
		DPI:                DefaultDPI,
		RasterWorkers:      DefaultRasterWorkers,
		Verify:             true,
		StageTimeout:       DefaultStageTimeout,
		ToolTimeout:        DefaultToolTimeout,
		CleanupDelay:       DefaultCleanupDelay,
		ValidationAttempts: DefaultValidationAttempts,
		QpdfPath:           "qpdf",
		PdftoppmPath:       "pdftoppm",
		Version:            "1.0.0",
		ServerName:         "pdf-redactor",
		LogLevel:           DefaultLogLevel,
		MaxFileSize:        DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	for _, dir := range []*string{&cfg.PDFDirectory, &cfg.WorkDirectory} {
		if *dir == "" {
			continue
		}
		if expandedPath, err := filepath.Abs(*dir); err == nil {
			*dir = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv reads .env (or the file named by REDACT_ENV_FILE) into the
// process environment. Variables already set win over the file.
func loadDotEnv() error {
	path := os.Getenv(EnvFileVar)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("cannot read env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("cannot load env file %s: %w", path, err)
	}
	return nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.PDFDirectory)
	viper.SetDefault("workdir", cfg.WorkDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("strategy", cfg.Strategy)
	viper.SetDefault("fallback", cfg.Fallback)
	viper.SetDefault("dpi", cfg.DPI)
	viper.SetDefault("rasterworkers", cfg.RasterWorkers)
	viper.SetDefault("verify", cfg.Verify)
	viper.SetDefault("stagetimeout", cfg.StageTimeout)
	viper.SetDefault("tooltimeout", cfg.ToolTimeout)
	viper.SetDefault("cleanupdelay", cfg.CleanupDelay)
	viper.SetDefault("validationattempts", cfg.ValidationAttempts)
	viper.SetDefault("qpdf", cfg.QpdfPath)
	viper.SetDefault("pdftoppm", cfg.PdftoppmPath)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'server' for the HTTP API, 'stdio' for MCP standard I/O")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.PDFDirectory, "Directory the MCP tools may read from and write to")
	pflag.String("workdir", cfg.WorkDirectory, "Root directory for per-request scratch files")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.String("strategy", cfg.Strategy, "Default redaction strategy (structural, rasterize)")
	pflag.Bool("fallback", cfg.Fallback, "Rasterize pages when structural redaction cannot be proven clean")
	pflag.Int("dpi", cfg.DPI, "Default render resolution for the rasterize strategy")
	pflag.Int("rasterworkers", cfg.RasterWorkers, "Pages rendered in parallel per request")
	pflag.Bool("verify", cfg.Verify, "Check structural output for text left inside redacted regions")
	pflag.Duration("stagetimeout", cfg.StageTimeout, "Deadline for each pipeline stage")
	pflag.Duration("tooltimeout", cfg.ToolTimeout, "Deadline for each external tool invocation")
	pflag.Duration("cleanupdelay", cfg.CleanupDelay, "Delay before scratch files are removed after a response")
	pflag.Int("validationattempts", cfg.ValidationAttempts, "Attempts for the read-only validation check")
	pflag.String("qpdf", cfg.QpdfPath, "Path to the qpdf binary")
	pflag.String("pdftoppm", cfg.PdftoppmPath, "Path to the pdftoppm binary")
}

var flagKeys = []string{
	"mode", "host", "port", "dir", "workdir", "loglevel", "maxfilesize",
	"strategy", "fallback", "dpi", "rasterworkers", "verify",
	"stagetimeout", "tooltimeout", "cleanupdelay", "validationattempts",
	"qpdf", "pdftoppm",
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, key := range flagKeys {
		_ = viper.BindPFlag(key, pflag.Lookup(key))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nPDF Redactor - removes rectangular regions from PDF documents\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                          # HTTP API on 127.0.0.1:8080\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --host=0.0.0.0 --port=8081                # HTTP API on all interfaces\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=stdio --dir=/path/to/pdfs         # MCP over stdio\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --strategy=rasterize --dpi=300            # always rasterize\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from .env or $%s):\n", EnvFileVar)
		for _, key := range flagKeys {
			fmt.Fprintf(os.Stderr, "  %s_%s\n", EnvPrefix, strings.ToUpper(key))
		}
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.PDFDirectory = viper.GetString("dir")
	cfg.WorkDirectory = viper.GetString("workdir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.Strategy = viper.GetString("strategy")
	cfg.Fallback = viper.GetBool("fallback")
	cfg.DPI = viper.GetInt("dpi")
	cfg.RasterWorkers = viper.GetInt("rasterworkers")
	cfg.Verify = viper.GetBool("verify")
	cfg.StageTimeout = viper.GetDuration("stagetimeout")
	cfg.ToolTimeout = viper.GetDuration("tooltimeout")
	cfg.CleanupDelay = viper.GetDuration("cleanupdelay")
	cfg.ValidationAttempts = viper.GetInt("validationattempts")
	cfg.QpdfPath = viper.GetString("qpdf")
	cfg.PdftoppmPath = viper.GetString("pdftoppm")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}
	if c.WorkDirectory == "" {
		return errors.New("work directory cannot be empty")
	}
	for _, dir := range []string{c.PDFDirectory, c.WorkDirectory} {
		if err := ensureDir(dir); err != nil {
			return err
		}
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if _, err := c.DefaultStrategy(); err != nil {
		return err
	}
	if c.DPI < 1 || c.DPI > redact.MaxDPI {
		return fmt.Errorf("dpi must be between 1 and %d", redact.MaxDPI)
	}
	if c.RasterWorkers < 1 {
		return errors.New("raster workers must be at least 1")
	}
	if c.StageTimeout <= 0 || c.ToolTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.CleanupDelay < 0 {
		return errors.New("cleanup delay cannot be negative")
	}
	if c.ValidationAttempts < 1 {
		return errors.New("validation attempts must be at least 1")
	}
	if c.QpdfPath == "" || c.PdftoppmPath == "" {
		return errors.New("tool paths cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// ensureDir creates dir when it does not exist
func ensureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	return nil
}

// DefaultStrategy returns the configured strategy, structural when unset
func (c *Config) DefaultStrategy() (redact.StrategyKind, error) {
	kind, err := redact.ParseStrategy(c.Strategy)
	if err != nil {
		return "", err
	}
	if kind == "" {
		return redact.Structural, nil
	}
	return kind, nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, PDFDirectory: %s, WorkDirectory: %s, "+
		"Strategy: %s, Fallback: %v, DPI: %d, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.Host, c.Port, c.PDFDirectory, c.WorkDirectory,
		c.Strategy, c.Fallback, c.DPI, c.LogLevel, c.MaxFileSize)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
