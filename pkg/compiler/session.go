// Package compiler runs compilations of source trees into a destination
// directory. A session resolves its classpath once; every compile then runs
// either a single pass or, when a generation tool is configured, a
// generation pass followed by a final pass sharing a staging workspace.
package compiler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poltergeist/conjure/pkg/artifacts"
	"github.com/poltergeist/conjure/pkg/classfile"
	"github.com/poltergeist/conjure/pkg/classpath"
	"github.com/poltergeist/conjure/pkg/diagnostics"
	"github.com/poltergeist/conjure/pkg/logger"
	"github.com/poltergeist/conjure/pkg/staging"
)

// Options configures a Session
type Options struct {
	Engine      Engine
	Destination string

	// Providers supply classpath entries in order. When nil the default
	// providers are used: Loader, then CLASSPATH and BOOT_CLASSPATH.
	Providers []classpath.Provider
	Loader    classpath.Loader
	Lookup    classpath.LookupFunc

	// GenerationTool enables the two-pass mode when non-empty.
	GenerationTool string
	Processors     []string

	WorkspaceDir    string
	WorkspacePrefix string

	// ExtraArgs are appended to every invocation.
	ExtraArgs []string

	Logger logger.Logger
}

// Session is a configured compiler bound to one destination
type Session struct {
	id          string
	engine      Engine
	destination string
	classpath   *classpath.Resolution
	base        Arguments

	generationTool  string
	processors      []string
	workspaceDir    string
	workspacePrefix string

	log logger.Logger

	mu        sync.Mutex
	last      *Result
	collector *diagnostics.Collector
}

// New resolves the classpath and prepares the destination directory
func New(opts Options) (*Session, error) {
	if opts.Engine == nil {
		return nil, ErrNoEngine
	}
	if opts.Destination == "" {
		return nil, ErrNoDestination
	}

	destination, err := filepath.Abs(opts.Destination)
	if err != nil {
		return nil, fmt.Errorf("invalid destination %s: %w", opts.Destination, err)
	}
	if err := os.MkdirAll(destination, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}

	id := uuid.New().String()
	log := logger.OrNop(opts.Logger).With(logger.WithField("session", id[:8]))

	providers := opts.Providers
	if providers == nil {
		lookup := opts.Lookup
		if lookup == nil {
			lookup = os.LookupEnv
		}
		providers = classpath.DefaultProviders(opts.Loader, lookup)
	}
	resolution := classpath.NewResolver(log).Resolve(providers...)
	log.Debug("Resolved classpath",
		logger.WithField("entries", len(resolution.Entries)),
		logger.WithField("skipped", len(resolution.Skipped)),
		logger.WithField("missing", len(resolution.Missing)))

	base := NewArguments(destination, resolution.String())
	base.ExtraArgs = append([]string(nil), opts.ExtraArgs...)

	return &Session{
		id:              id,
		engine:          opts.Engine,
		destination:     destination,
		classpath:       resolution,
		base:            base,
		generationTool:  opts.GenerationTool,
		processors:      append([]string(nil), opts.Processors...),
		workspaceDir:    opts.WorkspaceDir,
		workspacePrefix: opts.WorkspacePrefix,
		log:             log,
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Destination returns the absolute destination directory
func (s *Session) Destination() string { return s.destination }

// Classpath returns the classpath resolved at construction
func (s *Session) Classpath() *classpath.Resolution { return s.classpath }

// Arguments returns the base configuration every pass derives from
func (s *Session) Arguments() Arguments { return s.base.clone() }

// Compile compiles sourceRoots into the destination. Class files left by
// earlier compiles are removed first; other files in the destination are
// kept. Both passes run to completion once started; cancelling ctx does not
// interrupt them. The returned error is a *CompilationError when any pass
// reported errors.
func (s *Session) Compile(ctx context.Context, sourceRoots []string) error {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)

	roots := make([]string, 0, len(sourceRoots))
	for _, r := range sourceRoots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return fmt.Errorf("invalid source root %s: %w", r, err)
		}
		roots = append(roots, abs)
	}

	collector := diagnostics.NewCollector(s.log)
	var (
		res    *Result
		passes int
	)
	removed, err := removeClassFiles(s.destination)
	if removed > 0 {
		s.log.Debug("Removed stale class files", logger.WithField("count", removed))
	}
	switch {
	case err != nil:
		err = fmt.Errorf("failed to clean destination: %w", err)
		collector.Errorf(1, "%v", err)
	case s.generationTool == "":
		passes = 1
		s.log.Info(fmt.Sprintf("Compiling %d source root(s)", len(roots)))
		res, err = s.exec(ctx, s.base.Single(roots), collector)
	default:
		s.log.Info(fmt.Sprintf("Compiling %d source root(s) with generation", len(roots)))
		res, passes, err = s.compileWithGeneration(ctx, roots, collector)
	}

	s.mu.Lock()
	s.last = res
	s.collector = collector
	s.mu.Unlock()

	if err != nil {
		s.log.Error("Compilation aborted", logger.WithField("error", err))
		return err
	}
	if collector.HasErrors() {
		cerr := &CompilationError{Session: s.id, Passes: passes, Errors: collector.ErrorCount()}
		s.log.Error(cerr.Error())
		return cerr
	}

	s.log.Success(fmt.Sprintf("Compiled in %s", time.Since(start).Round(time.Millisecond)))
	return nil
}

func (s *Session) compileWithGeneration(ctx context.Context, roots []string, collector *diagnostics.Collector) (res *Result, passes int, err error) {
	ws, err := staging.NewIn(s.workspaceDir, s.workspacePrefix)
	if err != nil {
		collector.Errorf(StageGeneration.Pass(), "%v", err)
		return nil, 0, err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			s.log.Warn("Failed to remove staging workspace", logger.WithField("path", ws.Root()))
			if err == nil {
				err = cerr
			}
		}
	}()
	s.log.Debug("Created staging workspace", logger.WithField("path", ws.Root()))

	passes = 1
	if _, err = s.exec(ctx, s.base.Generation(roots, s.generationTool, ws, s.processors), collector); err != nil {
		return nil, passes, err
	}
	passes = 2
	res, err = s.exec(ctx, s.base.Final(roots, ws.Sources()), collector)
	return res, passes, err
}

func (s *Session) exec(ctx context.Context, args Arguments, collector *diagnostics.Collector) (*Result, error) {
	res, err := s.engine.Exec(ctx, args, collector)
	if err != nil {
		collector.Errorf(args.Stage.Pass(), "%s pass could not run: %v", args.Stage, err)
		return nil, err
	}
	if res != nil {
		s.log.Debug("Pass finished",
			logger.WithField("stage", args.Stage.String()),
			logger.WithField("duration", res.Duration.Round(time.Millisecond)))
	}
	return res, nil
}

// removeClassFiles deletes the .class files under root and returns how many
// were removed
func removeClassFiles(root string) (int, error) {
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".class") {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}

// LastDiagnostics returns the messages of the most recent compile
func (s *Session) LastDiagnostics() []diagnostics.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collector == nil {
		return nil
	}
	return s.collector.Diagnostics()
}

// Artifacts loads the classes of the most recent compile whose declaration
// predicate accepts, delegating to parent first. It fails when that compile
// reported errors. Without a tree from the engine the destination is
// scanned; Compile clears old class files from it, so only classes of the
// most recent compile are found there.
func (s *Session) Artifacts(parent artifacts.ClassLoader, predicate artifacts.Predicate) (artifacts.Set, error) {
	s.mu.Lock()
	res, collector := s.last, s.collector
	s.mu.Unlock()

	if collector == nil {
		return nil, &artifacts.LoadError{Err: ErrNotCompiled}
	}
	if collector.HasErrors() {
		return artifacts.Load(nil, collector, parent, predicate)
	}

	var tree *classfile.Tree
	if res != nil {
		tree = res.Tree
	}
	if tree == nil {
		var err error
		if tree, err = classfile.ScanTree(s.destination); err != nil {
			return nil, &artifacts.LoadError{Err: err}
		}
	}
	return artifacts.Load(tree, collector, parent, predicate)
}

// ClassFile returns the path of the compiled class file for a binary name
func (s *Session) ClassFile(binaryName string) (string, bool) {
	rel := strings.ReplaceAll(binaryName, ".", string(filepath.Separator)) + ".class"
	path := filepath.Join(s.destination, rel)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// CompileAndLoad creates a session, compiles sourceRoots and loads the
// selected artifacts.
func CompileAndLoad(ctx context.Context, opts Options, sourceRoots []string, parent artifacts.ClassLoader, predicate artifacts.Predicate) (artifacts.Set, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := s.Compile(ctx, sourceRoots); err != nil {
		return nil, err
	}
	return s.Artifacts(parent, predicate)
}
