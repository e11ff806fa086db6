package filex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// ErrReleased is returned by workspace file helpers after Release.
var ErrReleased = errors.New("workspace released")

// Workspace is a scratch directory owned by exactly one ingestion run.
// Everything written below Path is removed by Release.
type Workspace struct {
	path string

	mu       sync.Mutex
	released bool
}

// Path returns the absolute directory of the workspace.
func (w *Workspace) Path() string {
	return w.path
}

// Join returns name resolved inside the workspace.
func (w *Workspace) Join(name string) string {
	return filepath.Join(w.path, filepath.Base(name))
}

// WriteFile stores data under name and returns the full path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	if w.isReleased() {
		return "", ErrReleased
	}
	p := w.Join(name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return p, nil
}

// ReadFile reads a file previously written inside the workspace.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	if w.isReleased() {
		return nil, ErrReleased
	}
	return os.ReadFile(w.Join(name))
}

// Release removes the directory tree. It is safe to call more than once.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return nil
	}
	w.released = true
	if err := os.RemoveAll(w.path); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.path, err)
	}
	return nil
}

func (w *Workspace) isReleased() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

// Provider hands out fresh workspaces under Root. Directory names carry the
// process id and a random suffix, so concurrent runs never share one.
type Provider struct {
	Root   string
	Prefix string
}

// NewProvider ensures root exists. An empty root means os.TempDir().
func NewProvider(root, prefix string) (*Provider, error) {
	if root == "" {
		root = os.TempDir()
	}
	abs, err := EnsureDir(root)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "ws"
	}
	return &Provider{Root: abs, Prefix: prefix}, nil
}

// Acquire creates a new, empty workspace directory.
func (p *Provider) Acquire() (*Workspace, error) {
	name := p.Prefix + "-" + strconv.Itoa(os.Getpid()) + "-" + uuid.NewString()
	dir := filepath.Join(p.Root, name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{path: dir}, nil
}

// With acquires a workspace, runs fn and releases the workspace on every
// exit path, including a panic inside fn. A release failure is reported only
// when fn itself succeeded.
func (p *Provider) With(fn func(ws *Workspace) error) (err error) {
	ws, err := p.Acquire()
	if err != nil {
		return err
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(ws)
}
