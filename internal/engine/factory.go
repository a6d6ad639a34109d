package engine

import (
	"os"
	"path/filepath"

	"github.com/poltergeist/conjure/pkg/classpath"
	"github.com/poltergeist/conjure/pkg/compiler"
	"github.com/poltergeist/conjure/pkg/config"
	"github.com/poltergeist/conjure/pkg/logger"
	"github.com/poltergeist/conjure/pkg/notifier"
)

// SessionFactory turns module configuration into compiler sessions. Every
// path in the configuration is resolved against the project root.
type SessionFactory struct {
	projectRoot string
	logger      logger.Logger
	config      *config.Config

	engine compiler.Engine
	lookup classpath.LookupFunc
}

// NewSessionFactory creates a new session factory
func NewSessionFactory(projectRoot string, log logger.Logger, cfg *config.Config) *SessionFactory {
	return &SessionFactory{
		projectRoot: projectRoot,
		logger:      logger.OrNop(log),
		config:      cfg,
		lookup:      os.LookupEnv,
	}
}

// WithEngine replaces the command engine built from the configuration
func (f *SessionFactory) WithEngine(engine compiler.Engine) *SessionFactory {
	f.engine = engine
	return f
}

// WithLookup replaces the environment lookup for classpath properties
func (f *SessionFactory) WithLookup(lookup classpath.LookupFunc) *SessionFactory {
	f.lookup = lookup
	return f
}

// Options builds the session options for module
func (f *SessionFactory) Options(module config.Module) compiler.Options {
	log := f.logger.WithModule(module.Name)
	tool, processors := module.Generator(f.config.Compiler)

	return compiler.Options{
		Engine:          f.createEngine(log),
		Destination:     f.resolve(module.Destination),
		Providers:       f.Providers(module),
		GenerationTool:  f.resolve(tool),
		Processors:      f.resolveAll(processors),
		WorkspaceDir:    f.resolve(f.config.Workspace.Dir),
		WorkspacePrefix: f.config.Workspace.Prefix,
		ExtraArgs:       f.config.Compiler.Args,
		Logger:          log,
	}
}

// Loader returns the loader chain of module: its own entries, delegating to
// the shared entries
func (f *SessionFactory) Loader(module config.Module) classpath.Loader {
	shared := classpath.NewStaticLoader("config", nil, f.resolveAll(f.config.Classpath.Entries)...)
	return classpath.NewStaticLoader("module:"+module.Name, shared, f.resolveAll(module.Classpath)...)
}

// Providers lists the classpath sources of module in order: the loader
// chain (entries, then the Class-Path of their manifests), then the
// configured properties
func (f *SessionFactory) Providers(module config.Module) []classpath.Provider {
	providers := []classpath.Provider{classpath.LoaderProvider(f.Loader(module))}
	for _, property := range f.config.Classpath.Properties {
		providers = append(providers, classpath.PropertyProvider(property, f.lookup))
	}
	return providers
}

// Sources returns the absolute source roots of module
func (f *SessionFactory) Sources(module config.Module) []string {
	return f.resolveAll(module.Sources)
}

// Create builds a session for module
func (f *SessionFactory) Create(module config.Module) (*compiler.Session, error) {
	return compiler.New(f.Options(module))
}

// CreateNotifier builds the desktop notifier, or nil when disabled
func (f *SessionFactory) CreateNotifier() Notifier {
	if !f.config.NotificationsEnabled() {
		return nil
	}
	n := f.config.Notifications
	return notifier.New(notifier.Config{
		Enabled:      true,
		SuccessSound: n.SuccessSound,
		FailureSound: n.FailureSound,
	}, f.logger)
}

func (f *SessionFactory) createEngine(log logger.Logger) compiler.Engine {
	if f.engine != nil {
		return f.engine
	}
	e := compiler.NewCommandEngine(f.config.Compiler.Command, log)
	e.Dir = f.projectRoot
	e.Env = f.config.Compiler.Env
	e.LogFile = f.resolve(f.config.Compiler.LogFile)
	return e
}

func (f *SessionFactory) resolve(path string) string {
	return config.Resolve(f.projectRoot, path)
}

func (f *SessionFactory) resolveAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		out = append(out, filepath.Clean(f.resolve(p)))
	}
	return out
}
