package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator confines file system access to a configured directory.
// Paths are compared after resolving symlinks, so a link inside the
// directory cannot be used to read or write outside it.
type PathValidator struct {
	configuredDirectory string
	// resolved is configuredDirectory with symlinks evaluated
	resolved string
}

// NewPathValidator creates a validator for the given directory
func NewPathValidator(configuredDirectory string) (*PathValidator, error) {
	if configuredDirectory == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}

	abs, err := filepath.Abs(configuredDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}

	resolved, err := resolveExisting(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}

	return &PathValidator{configuredDirectory: abs, resolved: resolved}, nil
}

// GetConfiguredDirectory returns the configured directory path
func (v *PathValidator) GetConfiguredDirectory() string {
	return v.configuredDirectory
}

// ValidatePath checks that an absolute path lies inside the configured
// directory. The path itself need not exist.
func (v *PathValidator) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}

	within, err := v.IsPathWithinDirectory(path)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	if !within {
		return fmt.Errorf("path is outside configured directory: %s", path)
	}
	return nil
}

// IsPathWithinDirectory reports whether path, with symlinks resolved, is the
// configured directory or below it
func (v *PathValidator) IsPathWithinDirectory(path string) (bool, error) {
	resolved, err := resolveExisting(filepath.Clean(path))
	if err != nil {
		return false, err
	}
	return isWithin(v.resolved, resolved), nil
}

// SanitizePath cleans a caller supplied path, resolves it against the
// configured directory when relative, and validates the result. The
// returned path is absolute and lexically clean.
func (v *PathValidator) SanitizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains a null byte")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(v.configuredDirectory, path)
	}
	path = filepath.Clean(path)

	if err := v.ValidatePath(path); err != nil {
		return "", err
	}
	return path, nil
}

// resolveExisting evaluates symlinks in the longest existing prefix of path
// and appends the remaining elements unchanged
func resolveExisting(path string) (string, error) {
	var rest []string
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(rest) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, rest[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		rest = append(rest, filepath.Base(current))
		current = parent
	}
}

func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
