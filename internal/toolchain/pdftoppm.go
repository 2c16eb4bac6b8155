package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Pdftoppm wraps the poppler page renderer
type Pdftoppm struct {
	Path   string
	runner *Runner
}

// NewPdftoppm creates a renderer wrapper; path may be a bare command name
func NewPdftoppm(path string, runner *Runner) *Pdftoppm {
	if path == "" {
		path = "pdftoppm"
	}
	return &Pdftoppm{Path: path, runner: runner}
}

// Name implements Tool
func (p *Pdftoppm) Name() string { return "pdftoppm" }

// Binary implements Tool
func (p *Pdftoppm) Binary() string { return p.Path }

// RenderPage renders one page of input at dpi into output, which must end
// in .png
func (p *Pdftoppm) RenderPage(ctx context.Context, input string, page, dpi int, output string) error {
	if page < 1 {
		return fmt.Errorf("invalid page number %d", page)
	}
	if dpi < 1 {
		return fmt.Errorf("invalid resolution %d", dpi)
	}
	prefix, ok := strings.CutSuffix(output, ".png")
	if !ok || prefix == "" {
		return fmt.Errorf("render output must be a .png file: %s", output)
	}

	n := strconv.Itoa(page)
	_, err := p.runner.Run(ctx, p.Path,
		"-f", n, "-l", n,
		"-r", strconv.Itoa(dpi),
		"-png", "-singlefile",
		input, prefix)
	if err != nil {
		return err
	}

	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("pdftoppm produced no output for page %d: %w", page, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("pdftoppm produced an empty image for page %d", page)
	}
	return nil
}

// Version implements Tool. pdftoppm prints its version on stderr and some
// releases exit non-zero when asked for it.
func (p *Pdftoppm) Version(ctx context.Context) (string, error) {
	res, err := p.runner.Run(ctx, p.Path, "-v")
	if err != nil {
		var te *ToolError
		if errors.As(err, &te) && !te.TimedOut && te.ExitCode > 0 && strings.Contains(te.Stderr, "version") {
			return firstLine([]byte(te.Stderr)), nil
		}
		return "", err
	}
	if v := firstLine(res.Stderr); v != "" {
		return v, nil
	}
	return firstLine(res.Stdout), nil
}
