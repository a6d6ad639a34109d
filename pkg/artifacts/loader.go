package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Class is a loaded class handle. Handles are unique per defining loader:
// loading the same name twice through one loader returns the same pointer.
type Class struct {
	Name   string
	Bytes  []byte
	Loader ClassLoader
}

func (c *Class) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Loader)
}

// ClassLoader resolves binary names to class handles
type ClassLoader interface {
	LoadClass(name string) (*Class, error)
	String() string
}

// Output is compiled output that can be read and queried by declaration name
type Output interface {
	ClassFiles() []string
	ReadClass(rel string) ([]byte, error)
}

// classPathOf maps a binary name to its relative class file path
func classPathOf(name string) string {
	return strings.ReplaceAll(name, ".", "/") + ".class"
}

// OutputLoader defines classes from compiled output. It delegates to its
// parent first and only defines a class itself when the parent does not
// know the name. Defined classes are kept for the loader's lifetime.
type OutputLoader struct {
	name   string
	parent ClassLoader
	output Output

	mu      sync.Mutex
	defined map[string]*Class
}

// NewOutputLoader layers a loader over parent (nil for none) backed by output
func NewOutputLoader(name string, parent ClassLoader, output Output) *OutputLoader {
	return &OutputLoader{
		name:    name,
		parent:  parent,
		output:  output,
		defined: make(map[string]*Class),
	}
}

// LoadClass implements ClassLoader
func (l *OutputLoader) LoadClass(name string) (*Class, error) {
	if l.parent != nil {
		c, err := l.parent.LoadClass(name)
		if err == nil {
			return c, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.defined[name]; ok {
		return c, nil
	}
	if l.output == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrClassNotFound)
	}

	data, err := l.output.ReadClass(classPathOf(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrClassNotFound)
		}
		return nil, err
	}

	c := &Class{Name: name, Bytes: data, Loader: l}
	l.defined[name] = c
	return c, nil
}

func (l *OutputLoader) String() string { return l.name }

// DirLoader loads classes from a directory of class files, parent first
type DirLoader struct {
	name   string
	parent ClassLoader
	root   string

	mu      sync.Mutex
	defined map[string]*Class
}

// NewDirLoader creates a loader reading classes under root
func NewDirLoader(name string, parent ClassLoader, root string) *DirLoader {
	return &DirLoader{name: name, parent: parent, root: root, defined: make(map[string]*Class)}
}

// LoadClass implements ClassLoader
func (l *DirLoader) LoadClass(name string) (*Class, error) {
	if l.parent != nil {
		c, err := l.parent.LoadClass(name)
		if err == nil || !isNotFound(err) {
			return c, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.defined[name]; ok {
		return c, nil
	}
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(classPathOf(name))))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrClassNotFound)
		}
		return nil, err
	}
	c := &Class{Name: name, Bytes: data, Loader: l}
	l.defined[name] = c
	return c, nil
}

func (l *DirLoader) String() string { return l.name }

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrClassNotFound)
}
