// Package diagnostics collects compiler messages across one or more engine
// invocations. Callers only ask whether an error was reported; the text of
// every message goes to the message sink as it arrives.
package diagnostics

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/poltergeist/conjure/pkg/logger"
)

// Severity of a diagnostic
type Severity int

const (
	SeverityOutput Severity = iota
	SeverityLogging
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityLogging:
		return "logging"
	default:
		return "output"
	}
}

// Diagnostic is one compiler message
type Diagnostic struct {
	Severity Severity
	Message  string
	File     string
	Line     int
	Column   int
	Pass     int
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
}

// kotlinc renders "[path:line:col: ]severity: message"
var linePattern = regexp.MustCompile(`^(?:(.+?):(\d+):(\d+): )?(error|exception|warning|info|logging|strong warning): (.*)$`)

// ParseLine classifies one line of compiler output. Lines that are not
// messages are returned with SeverityOutput.
func ParseLine(line string) Diagnostic {
	line = strings.TrimRight(line, "\r")
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return Diagnostic{Severity: SeverityOutput, Message: line}
	}

	d := Diagnostic{File: m[1], Message: m[5]}
	if m[1] != "" {
		d.Line, _ = strconv.Atoi(m[2])
		d.Column, _ = strconv.Atoi(m[3])
	}
	switch m[4] {
	case "error", "exception":
		d.Severity = SeverityError
	case "warning", "strong warning":
		d.Severity = SeverityWarning
	case "info":
		d.Severity = SeverityInfo
	default:
		d.Severity = SeverityLogging
	}
	return d
}

// Collector accumulates diagnostics; safe for concurrent use
type Collector struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
	errors      int
	sink        logger.Logger
}

// NewCollector creates a collector that renders every report to sink
func NewCollector(sink logger.Logger) *Collector {
	return &Collector{sink: logger.OrNop(sink)}
}

// Report records a diagnostic and renders it
func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	c.diagnostics = append(c.diagnostics, d)
	if d.Severity == SeverityError {
		c.errors++
	}
	c.mu.Unlock()

	fields := []logger.Field{logger.WithField("pass", d.Pass)}
	if d.File != "" {
		fields = append(fields, logger.WithField("at", fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)))
	}
	switch d.Severity {
	case SeverityError:
		c.sink.Error(d.Message, fields...)
	case SeverityWarning:
		c.sink.Warn(d.Message, fields...)
	default:
		c.sink.Debug(d.Message, fields...)
	}
}

// Errorf records an error-level diagnostic not tied to a source position
func (c *Collector) Errorf(pass int, format string, args ...interface{}) {
	c.Report(Diagnostic{Severity: SeverityError, Pass: pass, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any error-level diagnostic was recorded
func (c *Collector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors > 0
}

// ErrorCount returns the number of error-level diagnostics
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Diagnostics returns a copy of everything recorded so far
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Diagnostic(nil), c.diagnostics...)
}

// Writer returns an io.Writer that parses compiler output line by line
// into diagnostics tagged with pass.
func (c *Collector) Writer(pass int) *LineWriter {
	return &LineWriter{collector: c, pass: pass}
}

// LineWriter splits written bytes into lines and reports each one
type LineWriter struct {
	collector *Collector
	pass      int
	buf       []byte
	mu        sync.Mutex
}

// Write implements io.Writer
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	rest := w.buf
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		w.emit(string(rest[:i]))
		rest = rest[i+1:]
	}
	// keep only the partial line, reusing the buffer
	w.buf = append(w.buf[:0], rest...)
	return len(p), nil
}

// Flush reports a trailing partial line
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

func (w *LineWriter) emit(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	d := ParseLine(line)
	d.Pass = w.pass
	w.collector.Report(d)
}
