package engine

import (
	"time"
)

// Notifier is told about compiles run in watch mode.
// The desktop implementation lives in pkg/notifier.
type Notifier interface {
	NotifyCompileSuccess(module string, duration time.Duration)
	NotifyCompileFailure(module string, err error)
}
