// Package artifacts exposes compiled classes to the running process. It
// scans compiled output, keeps the classes whose declaration a caller
// predicate accepts, and loads each through a loader layered on the
// caller's own.
package artifacts

import (
	"fmt"

	"github.com/poltergeist/conjure/pkg/classfile"
)

// Set maps loaded class handles to the declaration they were compiled from
type Set map[*Class]classfile.Declaration

// ByName returns the handle for a binary name
func (s Set) ByName(binaryName string) (*Class, bool) {
	for c := range s {
		if c.Name == binaryName {
			return c, true
		}
	}
	return nil, false
}

// Symbols looks up declarations of compiled output by flattened name
type Symbols interface {
	Lookup(name string) (classfile.Declaration, bool)
}

// Compiled is output together with its symbol table
type Compiled interface {
	Output
	Symbols
}

// ErrorReporter is the part of a diagnostics collector the loader needs
type ErrorReporter interface {
	HasErrors() bool
}

// Predicate selects declarations to expose
type Predicate func(classfile.Declaration) bool

// All accepts every declaration
func All(classfile.Declaration) bool { return true }

// Load builds the artifact set for out. It refuses to define anything when
// the compilation reported errors, and returns an empty set for empty output.
func Load(out Compiled, reporter ErrorReporter, parent ClassLoader, predicate Predicate) (Set, error) {
	if reporter != nil && reporter.HasErrors() {
		return nil, &LoadError{Err: ErrCompilationErrors}
	}
	if out == nil || len(out.ClassFiles()) == 0 {
		return Set{}, nil
	}
	if predicate == nil {
		predicate = All
	}

	loader := NewOutputLoader("compiled", parent, out)
	set := Set{}

	seen := make(map[string]bool)
	for _, rel := range out.ClassFiles() {
		name := classfile.DeclarationName(classfile.BinaryNameOf(rel))
		if seen[name] {
			continue
		}
		seen[name] = true

		decl, ok := out.Lookup(name)
		if !ok || !predicate(decl) {
			continue
		}

		c, err := loader.LoadClass(decl.BinaryName)
		if err != nil {
			return nil, &LoadError{Name: decl.BinaryName, Err: err}
		}
		if c.Name != decl.BinaryName {
			return nil, &LoadError{Name: decl.BinaryName, Err: fmt.Errorf("loader returned %s", c.Name)}
		}
		set[c] = decl
	}

	return set, nil
}
