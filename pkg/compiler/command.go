package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/poltergeist/conjure/pkg/classfile"
	"github.com/poltergeist/conjure/pkg/diagnostics"
	"github.com/poltergeist/conjure/pkg/logger"
)

// DefaultCommand is the compiler executable used when none is configured
const DefaultCommand = "kotlinc"

// CommandEngine runs an external compiler process per invocation
type CommandEngine struct {
	// Command may carry leading arguments, e.g. "java -jar kotlin-compiler.jar".
	Command string
	Dir     string
	Env     map[string]string
	// LogFile receives the raw process output of every invocation, appended.
	LogFile string
	Logger  logger.Logger
}

// NewCommandEngine creates an engine for command
func NewCommandEngine(command string, log logger.Logger) *CommandEngine {
	if command == "" {
		command = DefaultCommand
	}
	return &CommandEngine{Command: command, Logger: logger.OrNop(log)}
}

// CommandLine returns the full argv for args
func (e *CommandEngine) CommandLine(args Arguments) []string {
	command := e.Command
	if command == "" {
		command = DefaultCommand
	}
	return append(strings.Fields(command), args.CommandLine()...)
}

// Exec runs the compiler and reports every output line to collector.
// A non-zero exit with no error message in the output is reported as an
// error diagnostic.
func (e *CommandEngine) Exec(ctx context.Context, args Arguments, collector *diagnostics.Collector) (*Result, error) {
	log := logger.OrNop(e.Logger)
	argv := e.CommandLine(args)
	pass := args.Stage.Pass()
	start := time.Now()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range e.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	out := collector.Writer(pass)
	var sink io.Writer = out
	logFile, err := e.openLogFile()
	if err != nil {
		log.Warn(fmt.Sprintf("Failed to open compiler log: %v", err))
	}
	if logFile != nil {
		defer logFile.Close()
		fmt.Fprintf(logFile, "\n=== %s pass started at %s ===\n%s\n",
			args.Stage, start.Format("2006-01-02 15:04:05"), strings.Join(argv, " "))
		sink = io.MultiWriter(out, logFile)
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	log.Debug("Executing compiler",
		logger.WithField("stage", args.Stage.String()),
		logger.WithField("command", argv[0]),
		logger.WithField("args", len(argv)-1))

	errorsBefore := collector.ErrorCount()
	runErr := cmd.Run()
	out.Flush()

	res := &Result{Stage: args.Stage, Duration: time.Since(start)}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to run %s: %w", argv[0], runErr)
		}
		res.ExitCode = exitErr.ExitCode()
		if collector.ErrorCount() == errorsBefore {
			collector.Errorf(pass, "%s exited with status %d", filepath.Base(argv[0]), res.ExitCode)
		}
	}

	if args.Stage != StageGeneration {
		tree, err := classfile.ScanTree(args.Destination)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", args.Destination, err)
		}
		res.Tree = tree
	}
	return res, nil
}

func (e *CommandEngine) openLogFile() (*os.File, error) {
	if e.LogFile == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(e.LogFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return os.OpenFile(e.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}
