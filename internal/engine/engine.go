// Package engine compiles the modules of a project configuration, one
// compiler session per module, in parallel or continuously in watch mode.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/poltergeist/conjure/internal/state"
	"github.com/poltergeist/conjure/pkg/compiler"
	"github.com/poltergeist/conjure/pkg/config"
	"github.com/poltergeist/conjure/pkg/diagnostics"
	"github.com/poltergeist/conjure/pkg/logger"
	"github.com/poltergeist/conjure/pkg/watch"
)

// ErrModulesFailed is wrapped by CompileAll when any module failed
var ErrModulesFailed = errors.New("modules failed to compile")

// ModuleResult is the outcome of compiling one module
type ModuleResult struct {
	Module   string
	Err      error
	Duration time.Duration
}

// Engine owns the sessions of one project
type Engine struct {
	config      *config.Config
	projectRoot string
	logger      logger.Logger
	factory     *SessionFactory
	notifier    Notifier
	state       *state.Manager

	mu       sync.Mutex
	sessions map[string]*compiler.Session
}

// Option customizes an Engine
type Option func(*Engine)

// WithFactory replaces the default session factory
func WithFactory(f *SessionFactory) Option {
	return func(e *Engine) { e.factory = f }
}

// WithNotifier sets the watch mode notifier
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithState records every compile outcome in m
func WithState(m *state.Manager) Option {
	return func(e *Engine) { e.state = m }
}

// New creates an engine for the project at projectRoot
func New(cfg *config.Config, projectRoot string, log logger.Logger, opts ...Option) *Engine {
	if abs, err := filepath.Abs(projectRoot); err == nil {
		projectRoot = abs
	}
	e := &Engine{
		config:      cfg,
		projectRoot: projectRoot,
		logger:      logger.OrNop(log),
		sessions:    make(map[string]*compiler.Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.factory == nil {
		e.factory = NewSessionFactory(projectRoot, e.logger, cfg)
	}
	if e.notifier == nil {
		e.notifier = e.factory.CreateNotifier()
	}
	return e
}

// Select returns the named modules, or every enabled module when names is
// empty
func (e *Engine) Select(names []string) ([]config.Module, error) {
	if len(names) == 0 {
		var modules []config.Module
		for _, m := range e.config.Modules {
			if m.IsEnabled() {
				modules = append(modules, m)
			}
		}
		return modules, nil
	}

	modules := make([]config.Module, 0, len(names))
	for _, name := range names {
		m, ok := e.config.Module(name)
		if !ok {
			return nil, fmt.Errorf("unknown module: %s", name)
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// Session returns the session of module, creating it on first use
func (e *Engine) Session(module config.Module) (*compiler.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sessions[module.Name]; ok {
		return s, nil
	}
	s, err := e.factory.Create(module)
	if err != nil {
		return nil, fmt.Errorf("module '%s': %w", module.Name, err)
	}
	e.sessions[module.Name] = s
	return s, nil
}

// CompileAll compiles the selected modules, at most the configured
// parallelism at a time. Every module is compiled even when others fail.
func (e *Engine) CompileAll(ctx context.Context, names []string) ([]ModuleResult, error) {
	modules, err := e.Select(names)
	if err != nil {
		return nil, err
	}

	results := make([]ModuleResult, len(modules))
	group, _ := NewSafeGroup(ctx, e.logger)
	if e.config.Parallelism > 0 {
		group.SetLimit(e.config.Parallelism)
	}

	for i, module := range modules {
		group.Go(func() error {
			results[i] = e.compile(ctx, module)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d", ErrModulesFailed, failed, len(results))
	}
	return results, nil
}

func (e *Engine) compile(ctx context.Context, module config.Module) ModuleResult {
	start := time.Now()
	res := ModuleResult{Module: module.Name}

	s, err := e.Session(module)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}
	if e.state != nil {
		if err := e.state.Begin(module.Name, s.ID()); err != nil {
			e.logger.Warn("Failed to update state", logger.WithField("error", err))
		}
	}

	res.Err = s.Compile(ctx, e.factory.Sources(module))
	res.Duration = time.Since(start)
	e.record(module.Name, s, res.Err, res.Duration)
	return res
}

func (e *Engine) record(module string, s *compiler.Session, err error, d time.Duration) {
	if e.state == nil {
		return
	}
	o := state.Outcome{SessionID: s.ID(), Duration: d, Err: err}
	for _, diag := range s.LastDiagnostics() {
		switch diag.Severity {
		case diagnostics.SeverityError:
			o.Errors++
		case diagnostics.SeverityWarning:
			o.Warnings++
		}
	}
	if err := e.state.Record(module, o); err != nil {
		e.logger.Warn("Failed to update state", logger.WithField("error", err))
	}
}

// Watch compiles the selected modules once, then recompiles each module
// when its sources change, until ctx is done
func (e *Engine) Watch(ctx context.Context, names []string) error {
	modules, err := e.Select(names)
	if err != nil {
		return err
	}
	if len(modules) == 0 {
		return fmt.Errorf("no modules to watch")
	}

	if _, err := e.CompileAll(ctx, names); err != nil {
		e.logger.Warn("Initial compile failed", logger.WithField("error", err))
	}

	var watchers []*watch.Watcher
	defer func() {
		for _, w := range watchers {
			w.Stop()
		}
	}()

	group, gctx := NewSafeGroup(ctx, e.logger)
	for _, module := range modules {
		s, err := e.Session(module)
		if err != nil {
			return err
		}
		w := watch.New(s, watch.Options{
			Sources:     e.factory.Sources(module),
			Destination: s.Destination(),
			QuietPeriod: e.config.QuietPeriod(),
			Filter:      e.config.ResourceFilter(),
			Logger:      e.logger.WithModule(module.Name),
		})
		if err := w.Start(gctx); err != nil {
			return fmt.Errorf("module '%s': %w", module.Name, err)
		}
		watchers = append(watchers, w)

		group.Go(func() error {
			e.forward(gctx, module.Name, s, w)
			return nil
		})
	}

	e.logger.Info(fmt.Sprintf("Watching %d module(s)", len(watchers)))
	<-ctx.Done()
	return group.Wait()
}

func (e *Engine) forward(ctx context.Context, module string, s *compiler.Session, w *watch.Watcher) {
	log := e.logger.WithModule(module)
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-w.Compiled():
			e.record(module, s, res.Err, res.Duration)
			if res.Err != nil {
				log.Error("Auto-compile failed", logger.WithField("error", res.Err))
				if e.notifier != nil {
					e.notifier.NotifyCompileFailure(module, res.Err)
				}
				continue
			}
			if e.notifier != nil {
				e.notifier.NotifyCompileSuccess(module, res.Duration)
			}
		}
	}
}

// Modules returns the names of the sessions created so far
func (e *Engine) Modules() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.sessions))
	for name := range e.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
