package compiler

import (
	"errors"
	"fmt"
)

var (
	ErrCompilationFailed = errors.New("compilation failed")
	ErrNoEngine          = errors.New("no compiler engine configured")
	ErrNoDestination     = errors.New("no destination directory configured")
	ErrNotCompiled       = errors.New("session has not compiled anything")
)

// CompilationError reports a compile whose collector recorded errors
type CompilationError struct {
	Session string
	Passes  int
	Errors  int
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compilation failed: %d error(s) in %d pass(es)", e.Errors, e.Passes)
}

func (e *CompilationError) Unwrap() error { return ErrCompilationFailed }
