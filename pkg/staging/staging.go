// Package staging manages the temporary workspace shared by the generation
// pass and the final pass of a compile.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultPrefix names workspaces <tmp>/kc-<random>
const DefaultPrefix = "kc"

// Subarea names
const (
	GeneratedSources = "generated-sources"
	GeneratedClasses = "generated-classes"
	GeneratedStubs   = "generated-stubs"
)

// Workspace is a uniquely named temporary directory with three subareas.
// Close removes the whole tree; it is safe to call more than once.
type Workspace struct {
	root string

	once     sync.Once
	closeErr error
}

// New creates a workspace under the system temp directory
func New(prefix string) (*Workspace, error) {
	return NewIn("", prefix)
}

// NewIn creates a workspace under dir ("" means the system temp directory)
func NewIn(dir, prefix string) (*Workspace, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	root, err := os.MkdirTemp(dir, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging workspace: %w", err)
	}

	ws := &Workspace{root: root}
	for _, sub := range []string{GeneratedSources, GeneratedClasses, GeneratedStubs} {
		if err := os.Mkdir(filepath.Join(root, sub), 0755); err != nil {
			ws.Close()
			return nil, fmt.Errorf("failed to create staging area %s: %w", sub, err)
		}
	}
	return ws, nil
}

// With runs fn with a fresh workspace and removes it on every exit path.
// A removal failure is returned only when fn succeeded.
func With(prefix string, fn func(*Workspace) error) (err error) {
	ws, err := New(prefix)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(ws)
}

// Root returns the workspace directory
func (w *Workspace) Root() string { return w.root }

// Sources is where the generation pass writes generated source files
func (w *Workspace) Sources() string { return filepath.Join(w.root, GeneratedSources) }

// Classes is where the generation pass writes processor-produced classes
func (w *Workspace) Classes() string { return filepath.Join(w.root, GeneratedClasses) }

// Stubs is where the generation pass writes declaration stubs
func (w *Workspace) Stubs() string { return filepath.Join(w.root, GeneratedStubs) }

// Close removes the workspace
func (w *Workspace) Close() error {
	w.once.Do(func() {
		if err := os.RemoveAll(w.root); err != nil {
			w.closeErr = fmt.Errorf("failed to remove staging workspace %s: %w", w.root, err)
		}
	})
	return w.closeErr
}
