package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/poltergeist/conjure/internal/engine"
	"github.com/poltergeist/conjure/pkg/classpath"
	"github.com/poltergeist/conjure/pkg/config"
)

func (c *CLI) newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile [module...]",
		Short: "Compile modules once",
		Long: `Compile the named modules, or every enabled module when none are given.
Modules with a generation tool run the generation pass first and compile
the generated sources together with the module sources.`,
		RunE: c.runCompile,
	}
}

func (c *CLI) runCompile(cmd *cobra.Command, args []string) error {
	cfg, _, err := c.loadConfig()
	if err != nil {
		return err
	}

	results, err := c.newEngine(cfg).CompileAll(cmd.Context(), args)
	for _, r := range results {
		if r.Err != nil {
			c.console.Error(fmt.Sprintf("%s: %v", r.Module, r.Err))
			continue
		}
		c.console.Success(fmt.Sprintf("%s compiled in %s", r.Module, r.Duration.Round(time.Millisecond)))
	}
	return err
}

func (c *CLI) newClasspathCmd() *cobra.Command {
	var showSkipped bool

	cmd := &cobra.Command{
		Use:   "classpath [module]",
		Short: "Print the resolved classpath of a module",
		Long: `Resolve the classpath of a module and print one entry per line with the
provider that contributed it. Without a module name the first enabled module
is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runClasspath(args, showSkipped)
		},
	}

	cmd.Flags().BoolVar(&showSkipped, "skipped", false, "also print missing and skipped items")
	return cmd
}

func (c *CLI) runClasspath(args []string, showSkipped bool) error {
	cfg, _, err := c.loadConfig()
	if err != nil {
		return err
	}

	module, err := pickModule(cfg, args)
	if err != nil {
		return err
	}

	factory := engine.NewSessionFactory(c.projectRoot(), c.logger, cfg)
	res := classpath.NewResolver(c.logger).Resolve(factory.Providers(module)...)

	for _, e := range res.Entries {
		c.printf("%s\t%s\n", e.Path, e.Source)
	}
	if showSkipped {
		for _, m := range res.Missing {
			c.printf("missing\t%s\n", m)
		}
		for _, s := range res.Skipped {
			c.printf("skipped\t%s\n", s)
		}
	}
	return nil
}

func pickModule(cfg *config.Config, args []string) (config.Module, error) {
	if len(args) == 1 {
		m, ok := cfg.Module(args[0])
		if !ok {
			return config.Module{}, fmt.Errorf("unknown module: %s", args[0])
		}
		return m, nil
	}
	for _, m := range cfg.Modules {
		if m.IsEnabled() {
			return m, nil
		}
	}
	return config.Module{}, errors.New("no enabled modules")
}

func (c *CLI) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE:  c.runValidate,
	}
}

func (c *CLI) runValidate(cmd *cobra.Command, args []string) error {
	path, err := c.getConfigPath()
	if err != nil {
		return err
	}
	c.console.Info(fmt.Sprintf("Validating %s", path))

	cfg, err := config.NewManager().LoadConfig(path)
	if err != nil {
		c.console.Error(fmt.Sprintf("Invalid configuration: %v", err))
		return err
	}

	var warnings []string
	root := c.projectRoot()
	for _, m := range cfg.Modules {
		status := "enabled"
		if !m.IsEnabled() {
			status = "disabled"
		}
		tool, processors := m.Generator(cfg.Compiler)
		if tool != "" {
			status += fmt.Sprintf(", generation with %d processor(s)", len(processors))
		}
		c.printf("  %s (%s)\n", m.Name, status)

		for _, src := range m.Sources {
			if _, err := os.Stat(config.Resolve(root, src)); err != nil {
				warnings = append(warnings, fmt.Sprintf("module %s: source root %s does not exist", m.Name, src))
			}
		}
	}

	for _, w := range warnings {
		c.console.Warn(w)
	}
	c.console.Success(fmt.Sprintf("Configuration is valid (%d module(s))", len(cfg.Modules)))
	return nil
}
