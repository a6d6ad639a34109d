package notifier

// Stub replaces the desktop backends and records what would be shown
func (n *CompileNotifier) Stub(notify func(title, message string) error, beep func() error) {
	n.notify = notify
	n.beep = beep
}

var FormatDuration = formatDuration
