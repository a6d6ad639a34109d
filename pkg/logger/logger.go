// Package logger provides leveled, structured logging for compile sessions
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger interface for abstracted logging
type Logger interface {
	Info(message string, fields ...Field)
	Error(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Debug(message string, fields ...Field)
	Success(message string, fields ...Field)
	WithModule(module string) Logger
	With(fields ...Field) Logger
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// WithField creates a new field
func WithField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ModuleLogger implements Logger on top of logrus, tagging entries with a module name
type ModuleLogger struct {
	logger *logrus.Logger
	module string
	fields []Field
	mu     sync.RWMutex
}

// CustomFormatter renders one line per entry: "🔮 [time] LEVEL: [module] message {k=v}"
type CustomFormatter struct {
	TimestampFormat string
	DisableColors   bool
}

// Format implements logrus.Formatter
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)

	var levelColor *color.Color
	var levelText string

	switch entry.Level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		levelColor = color.New(color.FgRed, color.Bold)
		levelText = "ERROR"
	case logrus.WarnLevel:
		levelColor = color.New(color.FgYellow, color.Bold)
		levelText = "WARN"
	case logrus.InfoLevel:
		levelColor = color.New(color.FgCyan)
		levelText = "INFO"
	default:
		levelColor = color.New(color.FgWhite, color.Faint)
		levelText = "DEBUG"
	}

	data := make(logrus.Fields, len(entry.Data))
	for k, v := range entry.Data {
		data[k] = v
	}

	modulePrefix := ""
	if module, ok := data["module"]; ok {
		if f.DisableColors {
			modulePrefix = fmt.Sprintf("[%s] ", module)
		} else {
			modulePrefix = fmt.Sprintf("[%s] ", color.New(color.FgBlue).Sprint(module))
		}
		delete(data, "module")
	}

	var b strings.Builder
	if f.DisableColors {
		fmt.Fprintf(&b, "🔮 [%s] %s: %s%s", timestamp, levelText, modulePrefix, entry.Message)
	} else {
		fmt.Fprintf(&b, "🔮 [%s] %s: %s%s", timestamp, levelColor.Sprint(levelText), modulePrefix, entry.Message)
	}

	if len(data) > 0 {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, data[k]))
		}
		fields := " {" + strings.Join(pairs, ", ") + "}"
		if f.DisableColors {
			b.WriteString(fields)
		} else {
			b.WriteString(color.New(color.FgWhite, color.Faint).Sprint(fields))
		}
	}

	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// CreateLogger creates a new logger writing to stderr and, if logFile is set, to that file
func CreateLogger(logFile string, logLevel string) Logger {
	log := newLogrus(logLevel, false)

	var out io.Writer = os.Stderr
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			out = io.MultiWriter(os.Stderr, file)
		}
	}
	log.SetOutput(out)

	return &ModuleLogger{logger: log}
}

// CreateLoggerWithOutput creates a logger with custom output (for testing)
func CreateLoggerWithOutput(logLevel string, output io.Writer) Logger {
	log := newLogrus(logLevel, true)
	log.SetOutput(output)

	return &ModuleLogger{logger: log}
}

// Nop returns a logger that discards everything
func Nop() Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return &ModuleLogger{logger: log}
}

// OrNop returns log, or a discarding logger when log is nil
func OrNop(log Logger) Logger {
	if log == nil {
		return Nop()
	}
	return log
}

func newLogrus(logLevel string, disableColors bool) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.SetFormatter(&CustomFormatter{
		TimestampFormat: "15:04:05",
		DisableColors:   disableColors,
	})
	return log
}

// WithModule creates a new logger tagged with the module name
func (l *ModuleLogger) WithModule(module string) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &ModuleLogger{
		logger: l.logger,
		module: module,
		fields: l.fields,
	}
}

// With creates a new logger that attaches fields to every entry
func (l *ModuleLogger) With(fields ...Field) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &ModuleLogger{
		logger: l.logger,
		module: l.module,
		fields: merged,
	}
}

func (l *ModuleLogger) convertFields(fields []Field) logrus.Fields {
	result := make(logrus.Fields, len(l.fields)+len(fields)+1)
	if l.module != "" {
		result["module"] = l.module
	}
	for _, f := range l.fields {
		result[f.Key] = f.Value
	}
	for _, f := range fields {
		result[f.Key] = f.Value
	}
	return result
}

// Info logs an info message
func (l *ModuleLogger) Info(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Info(message)
}

// Error logs an error message
func (l *ModuleLogger) Error(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Error(message)
}

// Warn logs a warning message
func (l *ModuleLogger) Warn(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Warn(message)
}

// Debug logs a debug message
func (l *ModuleLogger) Debug(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Debug(message)
}

// Success logs a success message (info level with a check mark)
func (l *ModuleLogger) Success(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Info("✅ " + message)
}

// ConsoleLogger provides plain console output for CLI commands
type ConsoleLogger struct {
	out    io.Writer
	errOut io.Writer
}

// NewConsoleLogger creates a console logger for CLI output
func NewConsoleLogger(out, errOut io.Writer) *ConsoleLogger {
	return &ConsoleLogger{out: out, errOut: errOut}
}

// Info prints info message
func (c *ConsoleLogger) Info(message string) {
	fmt.Fprintf(c.out, "🔮 %s %s\n", color.CyanString("[conjure]"), message)
}

// Error prints error message
func (c *ConsoleLogger) Error(message string) {
	fmt.Fprintf(c.errOut, "🔮 %s %s\n", color.RedString("[conjure]"), message)
}

// Warn prints warning message
func (c *ConsoleLogger) Warn(message string) {
	fmt.Fprintf(c.out, "🔮 %s %s\n", color.YellowString("[conjure]"), message)
}

// Success prints success message
func (c *ConsoleLogger) Success(message string) {
	fmt.Fprintf(c.out, "🔮 %s ✅ %s\n", color.GreenString("[conjure]"), message)
}
