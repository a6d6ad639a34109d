package artifacts

import (
	"errors"
	"fmt"
)

var (
	// ErrLoadFailed marks every failure to expose compiled classes
	ErrLoadFailed = errors.New("artifact load failed")

	// ErrClassNotFound is returned by a ClassLoader that cannot resolve a name
	ErrClassNotFound = errors.New("class not found")

	// ErrCompilationErrors means the compilation that produced the output reported errors
	ErrCompilationErrors = errors.New("compilation reported errors")
)

// LoadError wraps the reason an artifact set could not be built
type LoadError struct {
	Name string // binary name, empty when the failure is not tied to one class
	Err  error
}

func (e *LoadError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%v: %s: %v", ErrLoadFailed, e.Name, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrLoadFailed, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoadFailed, e.Err}
}
