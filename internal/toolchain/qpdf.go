package toolchain

import (
	"context"
	"errors"
	"log"
	"strings"
)

// qpdfWarningExit is the status qpdf uses when it succeeded with warnings
const qpdfWarningExit = 3

// Qpdf wraps the qpdf command line tool
type Qpdf struct {
	Path   string
	runner *Runner
}

// NewQpdf creates a qpdf wrapper; path may be a bare command name
func NewQpdf(path string, runner *Runner) *Qpdf {
	if path == "" {
		path = "qpdf"
	}
	return &Qpdf{Path: path, runner: runner}
}

// Name implements Tool
func (q *Qpdf) Name() string { return "qpdf" }

// Binary implements Tool
func (q *Qpdf) Binary() string { return q.Path }

// Normalize rewrites in into out with decrypted, normalized and
// recompressed content streams
func (q *Qpdf) Normalize(ctx context.Context, in, out string) error {
	return q.run(ctx,
		"--decrypt",
		"--normalize-content=y",
		"--compress-streams=y",
		"--decode-level=specialized",
		in, out)
}

// Linearize rewrites in into out for fast web view and drops any
// encryption and its restrictions
func (q *Qpdf) Linearize(ctx context.Context, in, out string) error {
	return q.run(ctx, "--linearize", "--decrypt", in, out)
}

// Version implements Tool
func (q *Qpdf) Version(ctx context.Context) (string, error) {
	res, err := q.runner.Run(ctx, q.Path, "--version")
	if err != nil {
		return "", err
	}
	return firstLine(res.Stdout), nil
}

func (q *Qpdf) run(ctx context.Context, args ...string) error {
	_, err := q.runner.Run(ctx, q.Path, args...)
	var te *ToolError
	if errors.As(err, &te) && te.ExitCode == qpdfWarningExit {
		log.Printf("qpdf completed with warnings: %s", te.Stderr)
		return nil
	}
	return err
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
