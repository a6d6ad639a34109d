// Package config handles configuration loading and management
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the only supported configuration version
const Version = "1.0"

// File names searched for under a project root, in order
var FileNames = []string{"conjure.json", "conjure.yaml", "conjure.yml"}

// ErrNotFound is returned by FindConfig when no configuration file exists
var ErrNotFound = errors.New("no configuration file found")

// Config is the project configuration
type Config struct {
	Version       string              `json:"version" yaml:"version"`
	Compiler      CompilerConfig      `json:"compiler" yaml:"compiler"`
	Classpath     ClasspathConfig     `json:"classpath" yaml:"classpath"`
	Workspace     WorkspaceConfig     `json:"workspace" yaml:"workspace"`
	Watch         *WatchConfig        `json:"watch,omitempty" yaml:"watch,omitempty"`
	Notifications *NotificationConfig `json:"notifications,omitempty" yaml:"notifications,omitempty"`
	Parallelism   int                 `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
	Modules       []Module            `json:"modules" yaml:"modules"`
}

// CompilerConfig selects the compiler executable and generation setup
type CompilerConfig struct {
	Command        string            `json:"command" yaml:"command"`
	Args           []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	GenerationTool string            `json:"generationTool,omitempty" yaml:"generationTool,omitempty"`
	Processors     []string          `json:"processors,omitempty" yaml:"processors,omitempty"`
	LogFile        string            `json:"logFile,omitempty" yaml:"logFile,omitempty"`
}

// ClasspathConfig lists explicit entries and the path-list properties read
// from the environment
type ClasspathConfig struct {
	Entries    []string `json:"entries,omitempty" yaml:"entries,omitempty"`
	Properties []string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// WorkspaceConfig places staging workspaces
type WorkspaceConfig struct {
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// WatchConfig tunes auto-compilation
type WatchConfig struct {
	// QuietPeriod in milliseconds
	QuietPeriod int      `json:"quietPeriod,omitempty" yaml:"quietPeriod,omitempty"`
	Ignore      []string `json:"ignore,omitempty" yaml:"ignore,omitempty"`
}

// NotificationConfig enables desktop notifications in watch mode
type NotificationConfig struct {
	Enabled      *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	SuccessSound string `json:"successSound,omitempty" yaml:"successSound,omitempty"`
	FailureSound string `json:"failureSound,omitempty" yaml:"failureSound,omitempty"`
}

// Module is one compilation unit. Generation settings fall back to the
// compiler section when empty.
type Module struct {
	Name           string   `json:"name" yaml:"name"`
	Sources        []string `json:"sources" yaml:"sources"`
	Destination    string   `json:"destination" yaml:"destination"`
	Classpath      []string `json:"classpath,omitempty" yaml:"classpath,omitempty"`
	GenerationTool string   `json:"generationTool,omitempty" yaml:"generationTool,omitempty"`
	Processors     []string `json:"processors,omitempty" yaml:"processors,omitempty"`
	Enabled        *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the module takes part in compile-all runs
func (m Module) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Generator returns the effective generation tool and processors
func (m Module) Generator(c CompilerConfig) (string, []string) {
	tool, processors := m.GenerationTool, m.Processors
	if tool == "" {
		tool = c.GenerationTool
	}
	if len(processors) == 0 {
		processors = c.Processors
	}
	return tool, processors
}

// Module returns the named module
func (c *Config) Module(name string) (Module, bool) {
	for _, m := range c.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}

// QuietPeriod returns the watch quiet period
func (c *Config) QuietPeriod() time.Duration {
	if c.Watch == nil || c.Watch.QuietPeriod <= 0 {
		return DefaultQuietPeriod
	}
	return time.Duration(c.Watch.QuietPeriod) * time.Millisecond
}

// NotificationsEnabled reports whether desktop notifications are on
func (c *Config) NotificationsEnabled() bool {
	return c.Notifications != nil && c.Notifications.Enabled != nil && *c.Notifications.Enabled
}

// Defaults
const (
	DefaultCommand     = "kotlinc"
	DefaultPrefix      = "kc"
	DefaultQuietPeriod = 50 * time.Millisecond
	DefaultParallelism = 2
)

// DefaultProperties are the path-list properties contributing classpath entries
var DefaultProperties = []string{"CLASSPATH", "BOOT_CLASSPATH"}

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// LoadConfig loads configuration from a file
func (m *Manager) LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return m.ParseConfig(data)
}

// ParseConfig decodes JSON, falling back to YAML, then applies defaults
// and validates.
func (m *Manager) ParseConfig(data []byte) (*Config, error) {
	var cfg Config

	// Try JSON first
	if err := json.Unmarshal(data, &cfg); err == nil {
		return m.validateConfig(&cfg)
	}

	// YAML goes through JSON so both formats share one set of tags
	var yamlData map[string]interface{}
	if err := yaml.Unmarshal(data, &yamlData); err == nil {
		jsonData, err := json.Marshal(yamlData)
		if err == nil {
			cfg = Config{}
			if err := json.Unmarshal(jsonData, &cfg); err == nil {
				return m.validateConfig(&cfg)
			}
		}
	}

	return nil, fmt.Errorf("failed to parse config as JSON or YAML")
}

// ValidateConfig validates a configuration
func (m *Manager) ValidateConfig(config *Config) error {
	if config.Version != Version {
		return fmt.Errorf("unsupported config version: %s", config.Version)
	}
	if config.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative")
	}
	if config.Watch != nil && config.Watch.QuietPeriod < 0 {
		return fmt.Errorf("watch quiet period must not be negative")
	}

	if len(config.Modules) == 0 {
		return fmt.Errorf("no modules defined")
	}

	names := make(map[string]bool)
	destinations := make(map[string]string)
	for i, module := range config.Modules {
		if module.Name == "" {
			return fmt.Errorf("module %d: missing name", i)
		}
		if names[module.Name] {
			return fmt.Errorf("duplicate module name: %s", module.Name)
		}
		names[module.Name] = true

		if err := m.validateModule(module, config.Compiler); err != nil {
			return fmt.Errorf("module '%s': %w", module.Name, err)
		}

		// each compile clears the class files of its destination
		dest := filepath.Clean(module.Destination)
		if other, ok := destinations[dest]; ok {
			return fmt.Errorf("modules '%s' and '%s' share destination %s", other, module.Name, module.Destination)
		}
		destinations[dest] = module.Name
	}
	return nil
}

// DefaultConfig returns a configuration with one module compiling src
// into build/classes
func (m *Manager) DefaultConfig() *Config {
	cfg := &Config{
		Version: Version,
		Modules: []Module{{
			Name:        "main",
			Sources:     []string{"src/main/kotlin"},
			Destination: "build/classes",
		}},
	}
	applyDefaults(cfg)
	return cfg
}

// FindConfig returns the first configuration file present under root
func FindConfig(root string) (string, error) {
	for _, name := range FileNames {
		path := filepath.Join(root, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNotFound, root)
}

// Resolve makes path absolute relative to root
func Resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, filepath.FromSlash(path))
}

// Private methods

func (m *Manager) validateConfig(cfg *Config) (*Config, error) {
	applyDefaults(cfg)
	if err := m.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (m *Manager) validateModule(module Module, compiler CompilerConfig) error {
	if len(module.Sources) == 0 {
		return fmt.Errorf("no sources defined")
	}
	for _, s := range module.Sources {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("empty source root")
		}
	}
	if module.Destination == "" {
		return fmt.Errorf("missing destination")
	}

	tool, processors := module.Generator(compiler)
	if len(processors) > 0 && tool == "" {
		return fmt.Errorf("processors configured without a generation tool")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Compiler.Command == "" {
		cfg.Compiler.Command = DefaultCommand
	}
	if cfg.Classpath.Properties == nil {
		cfg.Classpath.Properties = append([]string(nil), DefaultProperties...)
	}
	if cfg.Workspace.Prefix == "" {
		cfg.Workspace.Prefix = DefaultPrefix
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = DefaultParallelism
	}
}
