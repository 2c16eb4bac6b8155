// Package artifact owns the request scoped scratch directories that hold
// every intermediate file produced while redacting a document.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DirPrefix marks directories created by the manager so a sweep never
	// touches anything else under the root
	DirPrefix = "redact-"

	dirPerm  = 0o700
	filePerm = 0o600
)

var (
	// ErrInvalidName is returned for artifact names that are not a plain file name
	ErrInvalidName = errors.New("invalid artifact name")

	// ErrTooLarge is returned when an imported stream exceeds its size limit
	ErrTooLarge = errors.New("artifact exceeds size limit")

	// ErrReleased is returned when a released workspace is used again
	ErrReleased = errors.New("workspace already released")
)

// Manager creates workspaces under a shared root and removes them after a
// fixed delay once they are released
type Manager struct {
	root  string
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewManager creates the scratch root if needed
func NewManager(root string, delay time.Duration) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("scratch directory cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scratch directory: %w", err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	if delay < 0 {
		delay = 0
	}

	return &Manager{
		root:    abs,
		delay:   delay,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Root returns the absolute scratch root
func (m *Manager) Root() string {
	return m.root
}

// Create makes a new workspace. An empty id is replaced by a random one.
func (m *Manager) Create(id string) (*Workspace, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if err := validateName(id); err != nil {
		return nil, err
	}

	dir := filepath.Join(m.root, DirPrefix+id)
	if err := os.Mkdir(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", id, err)
	}

	return &Workspace{ID: id, Dir: dir, manager: m}, nil
}

// Sweep removes workspaces left behind by a previous process that are older
// than maxAge and returns how many were removed
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read scratch directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), DirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err != nil {
			log.Printf("Failed to remove stale workspace %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Pending returns the number of released workspaces awaiting deletion
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close deletes every pending workspace immediately and waits for
// in-flight deletions to finish
func (m *Manager) Close() {
	m.mu.Lock()
	for dir, timer := range m.pending {
		if timer.Stop() {
			delete(m.pending, dir)
			m.wg.Done()
			removeDir(dir)
		}
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) schedule(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[dir]; ok {
		return
	}

	m.wg.Add(1)
	m.pending[dir] = time.AfterFunc(m.delay, func() {
		defer m.wg.Done()
		removeDir(dir)

		m.mu.Lock()
		delete(m.pending, dir)
		m.mu.Unlock()
	})
}

func removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("Failed to remove workspace %s: %v", dir, err)
	}
}

// Workspace is the scratch directory of a single request
type Workspace struct {
	ID  string
	Dir string

	manager  *Manager
	mu       sync.Mutex
	released bool
}

// Path returns the location of a named artifact inside the workspace
func (w *Workspace) Path(name string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return "", ErrReleased
	}
	if err := validateName(name); err != nil {
		return "", err
	}
	return filepath.Join(w.Dir, name), nil
}

// Import copies r into a named artifact. A positive limit bounds the number
// of bytes accepted; exceeding it fails with ErrTooLarge.
func (w *Workspace) Import(r io.Reader, name string, limit int64) (string, int64, error) {
	path, err := w.Path(name)
	if err != nil {
		return "", 0, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create artifact %s: %w", name, err)
	}
	defer f.Close()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		return "", n, fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	if limit > 0 && n > limit {
		return "", n, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	if err := f.Sync(); err != nil {
		return "", n, fmt.Errorf("failed to sync artifact %s: %w", name, err)
	}
	return path, n, nil
}

// Release schedules the workspace for deletion after the manager's delay.
// Releasing twice is a no-op.
func (w *Workspace) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return
	}
	w.released = true
	w.manager.schedule(w.Dir)
}

// Released reports whether Release was called
func (w *Workspace) Released() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
