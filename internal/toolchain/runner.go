// Package toolchain invokes the external programs used by the redaction
// pipeline with structured argument lists and bounded run times.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single tool invocation
const DefaultTimeout = 2 * time.Minute

// maxStderr is the amount of stderr kept on a ToolError
const maxStderr = 4096

// ErrNotStarted is returned when the caller's context ended before the tool ran
var ErrNotStarted = errors.New("tool invocation not started")

// ToolError describes a failed external invocation
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *ToolError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("%s timed out", e.Tool)
	case e.ExitCode > 0 && e.Stderr != "":
		return fmt.Sprintf("%s exited with status %d: %s", e.Tool, e.ExitCode, e.Stderr)
	case e.ExitCode > 0:
		return fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	default:
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Result is the output of a successful invocation
type Result struct {
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Observer is notified after every invocation
type Observer func(tool string, elapsed time.Duration, err error)

// Runner executes tools. A started process is detached from the caller's
// cancellation so it can release its files before cleanup, but it is still
// bounded by the timeout and by the caller's deadline.
type Runner struct {
	Timeout time.Duration
	Observe Observer
}

// NewRunner creates a runner with the given per invocation timeout
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Timeout: timeout}
}

// Run executes path with args and waits for it to exit
func (r *Runner) Run(ctx context.Context, path string, args ...string) (*Result, error) {
	tool := toolName(path)
	if err := ctx.Err(); err != nil {
		return nil, &ToolError{Tool: tool, Args: args, Err: fmt.Errorf("%w: %v", ErrNotStarted, err)}
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		err = r.toolError(tool, args, err, stderr.String(), runCtx)
	}
	if r.Observe != nil {
		r.Observe(tool, elapsed, err)
	}
	if err != nil {
		return nil, err
	}

	return &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: elapsed}, nil
}

func (r *Runner) toolError(tool string, args []string, err error, stderr string, runCtx context.Context) *ToolError {
	te := &ToolError{
		Tool:   tool,
		Args:   args,
		Stderr: truncate(strings.TrimSpace(stderr), maxStderr),
		Err:    err,
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		te.TimedOut = true
		return te
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		te.ExitCode = exitErr.ExitCode()
	}
	return te
}

// IsTimeout reports whether err is a timed out tool invocation
func IsTimeout(err error) bool {
	var te *ToolError
	return errors.As(err, &te) && te.TimedOut
}

func toolName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
