package compiler

//go:generate mockgen -destination=../mocks/mock_engine.go -package=mocks github.com/poltergeist/conjure/pkg/compiler Engine

import (
	"context"
	"time"

	"github.com/poltergeist/conjure/pkg/classfile"
	"github.com/poltergeist/conjure/pkg/diagnostics"
)

// Engine runs one compiler invocation. Messages are reported to the
// collector; a returned error means the invocation could not run at all.
type Engine interface {
	Exec(ctx context.Context, args Arguments, collector *diagnostics.Collector) (*Result, error)
}

// Result describes one finished invocation
type Result struct {
	Stage    Stage
	ExitCode int
	Duration time.Duration
	// Tree is the destination snapshot; generation passes leave it nil.
	Tree *classfile.Tree
}
