package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/poltergeist/conjure/pkg/logger"
)

// SafeGroup wraps errgroup.Group and turns panics in its goroutines into
// errors
type SafeGroup struct {
	group  *errgroup.Group
	logger logger.Logger
}

// NewSafeGroup creates a new SafeGroup with panic recovery
func NewSafeGroup(ctx context.Context, log logger.Logger) (*SafeGroup, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	return &SafeGroup{
		group:  g,
		logger: logger.OrNop(log),
	}, ctx
}

// Go runs fn in a new goroutine. A panic is logged with its stack and
// returned as the goroutine's error.
func (sg *SafeGroup) Go(fn func() error) {
	sg.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				sg.logger.Error("Goroutine panic recovered",
					logger.WithField("panic", r),
					logger.WithField("stack_trace", string(debug.Stack())))
				err = fmt.Errorf("goroutine panic: %v", r)
			}
		}()
		return fn()
	})
}

// SetLimit sets the maximum number of concurrent goroutines
func (sg *SafeGroup) SetLimit(n int) {
	sg.group.SetLimit(n)
}

// Wait blocks until all goroutines have completed and returns the first error
func (sg *SafeGroup) Wait() error {
	return sg.group.Wait()
}
