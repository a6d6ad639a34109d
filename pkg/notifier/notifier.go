// Package notifier provides compile notification functionality
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/poltergeist/conjure/pkg/logger"
)

// CompileNotifier sends desktop notifications about compiles
type CompileNotifier struct {
	enabled      bool
	successSound string
	failureSound string
	logger       logger.Logger

	notify func(title, message string) error
	beep   func() error
}

// Config represents notification configuration
type Config struct {
	Enabled      bool
	SuccessSound string
	FailureSound string
}

// New creates a new compile notifier
func New(config Config, log logger.Logger) *CompileNotifier {
	return &CompileNotifier{
		enabled:      config.Enabled,
		successSound: config.SuccessSound,
		failureSound: config.FailureSound,
		logger:       logger.OrNop(log),
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		beep: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
	}
}

// NotifyCompileSuccess notifies that a module compiled
func (n *CompileNotifier) NotifyCompileSuccess(module string, duration time.Duration) {
	if !n.enabled {
		return
	}
	n.send("✅ Compile Succeeded", fmt.Sprintf("%s compiled in %s", module, formatDuration(duration)), n.successSound)
}

// NotifyCompileFailure notifies that a module failed to compile
func (n *CompileNotifier) NotifyCompileFailure(module string, err error) {
	if !n.enabled {
		return
	}
	n.send("❌ Compile Failed", fmt.Sprintf("%s: %v", module, err), n.failureSound)
}

func (n *CompileNotifier) send(title, message, sound string) {
	if err := n.notify(title, message); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", err))
		n.logger.Info(fmt.Sprintf("%s: %s", title, message))
	}
	if sound != "" {
		if err := n.beep(); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithField("error", err))
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
