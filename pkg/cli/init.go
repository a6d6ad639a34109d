package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/poltergeist/conjure/pkg/config"
)

func (c *CLI) newInitCmd() *cobra.Command {
	var format string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a conjure configuration",
		Long: `Create a configuration file under the project root with a single module
compiling src/main/kotlin into build/classes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInit(format, force)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "configuration format (json, yaml)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

func (c *CLI) runInit(format string, force bool) error {
	if existing, err := config.FindConfig(c.config.ProjectRoot); err == nil && !force {
		return fmt.Errorf("configuration already exists at %s. Use --force to overwrite", existing)
	}

	cfg := config.NewManager().DefaultConfig()
	if dir := detectSourceRoot(c.config.ProjectRoot); dir != "" {
		cfg.Modules[0].Sources = []string{dir}
		c.console.Info(fmt.Sprintf("Detected source root: %s", dir))
	}

	var (
		data []byte
		name string
		err  error
	)
	switch format {
	case "json":
		name = "conjure.json"
		data, err = json.MarshalIndent(cfg, "", "  ")
	case "yaml", "yml":
		name = "conjure.yaml"
		data, err = yaml.Marshal(cfg)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(c.config.ProjectRoot, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	c.console.Success(fmt.Sprintf("Created configuration at %s", path))
	return nil
}

func detectSourceRoot(root string) string {
	for _, dir := range []string{"src/main/kotlin", "src/main/java", "src"} {
		if info, err := os.Stat(filepath.Join(root, filepath.FromSlash(dir))); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}
