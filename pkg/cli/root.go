// Package cli provides the command-line interface for conjure
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/poltergeist/conjure/internal/engine"
	"github.com/poltergeist/conjure/internal/state"
	"github.com/poltergeist/conjure/pkg/compiler"
	"github.com/poltergeist/conjure/pkg/config"
	"github.com/poltergeist/conjure/pkg/logger"
)

// CLI encapsulates the command-line interface without global state
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	logger   logger.Logger
	console  *logger.ConsoleLogger
	output   io.Writer
	errorOut io.Writer

	// engine replaces the configured compiler command when set
	engine compiler.Engine
	state  *state.Manager
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}
	c := &CLI{
		config:   cfg,
		viper:    viper.New(),
		output:   os.Stdout,
		errorOut: os.Stderr,
	}
	c.console = logger.NewConsoleLogger(c.output, c.errorOut)
	c.setupCommands()
	return c
}

// NewCLIWithOutput creates a CLI with custom output writers
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	c := NewCLI(cfg)
	c.output = output
	c.errorOut = errorOut
	c.console = logger.NewConsoleLogger(output, errorOut)
	c.rootCmd.SetOut(output)
	c.rootCmd.SetErr(errorOut)
	return c
}

// WithEngine makes every session use engine instead of the configured command
func (c *CLI) WithEngine(e compiler.Engine) *CLI {
	c.engine = e
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.Execute()
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "conjure",
		Short: "Compile source trees with annotation-driven code generation",
		Long: `🔮 conjure - two-pass compilation with generated sources

conjure resolves a classpath, runs the compiler (with an optional code
generation pass whose output is compiled together with your sources) and
keeps destination directories up to date while you edit.`,

		PersistentPreRunE: c.initializeConfig,
		SilenceUsage:      true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("🔮 conjure v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newCompileCmd())
	c.rootCmd.AddCommand(c.newWatchCmd())
	c.rootCmd.AddCommand(c.newClasspathCmd())
	c.rootCmd.AddCommand(c.newStatusCmd())
	c.rootCmd.AddCommand(c.newValidateCmd())
	c.rootCmd.AddCommand(c.newInitCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()
	flags.StringVar(&c.config.ConfigFile, "config", c.config.ConfigFile, "config file (default: conjure.json or conjure.yaml under --root)")
	flags.StringVar(&c.config.ProjectRoot, "root", c.config.ProjectRoot, "project root directory")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", c.config.Verbosity, "log level (debug, info, warn, error)")
	flags.IntVar(&c.config.Parallel, "parallel", c.config.Parallel, "modules compiled at once (default from config)")
}

// initializeConfig layers CONJURE_* environment variables under explicit flags
func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	v := c.viper
	v.SetEnvPrefix("CONJURE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	c.config.ConfigFile = v.GetString("config")
	c.config.ProjectRoot = v.GetString("root")
	c.config.Verbosity = v.GetString("verbosity")
	c.config.Parallel = v.GetInt("parallel")

	if c.errorOut == os.Stderr {
		c.logger = logger.CreateLogger("", c.config.Verbosity)
	} else {
		c.logger = logger.CreateLoggerWithOutput(c.config.Verbosity, c.errorOut)
	}
	return nil
}

func (c *CLI) getConfigPath() (string, error) {
	if c.config.ConfigFile != "" {
		return c.config.ConfigFile, nil
	}
	return config.FindConfig(c.config.ProjectRoot)
}

func (c *CLI) loadConfig() (*config.Config, string, error) {
	path, err := c.getConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.NewManager().LoadConfig(path)
	if err != nil {
		return nil, path, fmt.Errorf("%s: %w", path, err)
	}
	if c.config.Parallel > 0 {
		cfg.Parallelism = c.config.Parallel
	}
	c.logger.Debug("Using config file", logger.WithField("file", path))
	return cfg, path, nil
}

func (c *CLI) projectRoot() string {
	root, err := filepath.Abs(c.config.ProjectRoot)
	if err != nil {
		return c.config.ProjectRoot
	}
	return root
}

func (c *CLI) newEngine(cfg *config.Config) *engine.Engine {
	factory := engine.NewSessionFactory(c.projectRoot(), c.logger, cfg)
	if c.engine != nil {
		factory.WithEngine(c.engine)
	}
	return engine.New(cfg, c.projectRoot(), c.logger,
		engine.WithFactory(factory),
		engine.WithState(c.stateManager()))
}

func (c *CLI) stateManager() *state.Manager {
	if c.state == nil {
		c.state = state.NewManager(c.projectRoot(), c.logger)
	}
	return c.state
}

func (c *CLI) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.output, format, args...)
}

// ExecuteWithVersion runs the CLI on os.Args
func ExecuteWithVersion(version string) error {
	cfg := NewConfig()
	cfg.Version = version
	return NewCLI(cfg).Execute(os.Args[1:])
}
