package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPathValidator(t *testing.T) {
	_, err := NewPathValidator("")
	assert.Error(t, err)

	dir := t.TempDir()
	v, err := NewPathValidator(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, v.GetConfiguredDirectory())

	// a directory that does not exist yet is accepted
	missing := filepath.Join(dir, "later")
	v, err = NewPathValidator(missing)
	require.NoError(t, err)
	assert.Equal(t, missing, v.GetConfiguredDirectory())
}

func TestPathValidator_ValidatePath(t *testing.T) {
	dir := t.TempDir()
	v, err := NewPathValidator(dir)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "directory itself", path: dir},
		{name: "existing file", path: filepath.Join(dir, "a.pdf")},
		{name: "missing nested file", path: filepath.Join(dir, "sub", "deeper", "out.pdf")},
		{name: "empty", path: "", wantErr: true},
		{name: "relative", path: "a.pdf", wantErr: true},
		{name: "parent", path: filepath.Dir(dir), wantErr: true},
		{name: "sibling with shared prefix", path: dir + "-other/a.pdf", wantErr: true},
		{name: "outside", path: "/etc/passwd", wantErr: true},
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0o600))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPathValidator_Symlinks(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.pdf"), []byte("x"), 0o600))

	if err := os.Symlink(outside, filepath.Join(dir, "escape")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.pdf"), filepath.Join(dir, "link.pdf")))

	v, err := NewPathValidator(dir)
	require.NoError(t, err)

	assert.Error(t, v.ValidatePath(filepath.Join(dir, "link.pdf")))
	assert.Error(t, v.ValidatePath(filepath.Join(dir, "escape", "secret.pdf")))
	assert.Error(t, v.ValidatePath(filepath.Join(dir, "escape", "new.pdf")))

	// the configured directory may itself be reached through a link
	linked := filepath.Join(t.TempDir(), "docs")
	require.NoError(t, os.Symlink(dir, linked))
	lv, err := NewPathValidator(linked)
	require.NoError(t, err)
	assert.NoError(t, lv.ValidatePath(filepath.Join(linked, "a.pdf")))
	assert.NoError(t, lv.ValidatePath(filepath.Join(dir, "a.pdf")))
}

func TestPathValidator_SanitizePath(t *testing.T) {
	dir := t.TempDir()
	v, err := NewPathValidator(dir)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "relative", path: "reports/q1.pdf", want: filepath.Join(dir, "reports", "q1.pdf")},
		{name: "absolute", path: filepath.Join(dir, "a.pdf"), want: filepath.Join(dir, "a.pdf")},
		{name: "dot segments inside", path: "reports/../a.pdf", want: filepath.Join(dir, "a.pdf")},
		{name: "surrounding spaces", path: "  a.pdf ", want: filepath.Join(dir, "a.pdf")},
		{name: "traversal", path: "../a.pdf", wantErr: true},
		{name: "absolute traversal", path: filepath.Join(dir, "..", "a.pdf"), wantErr: true},
		{name: "null byte", path: "a\x00.pdf", wantErr: true},
		{name: "empty", path: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.SanitizePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
