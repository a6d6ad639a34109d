package config_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poltergeist/conjure/pkg/config"
)

func testConfig() map[string]interface{} {
	return map[string]interface{}{
		"version": "1.0",
		"compiler": map[string]interface{}{
			"generationTool": "/tools/kapt.jar",
			"processors":     []string{"/p/restx-annotations.jar"},
		},
		"modules": []map[string]interface{}{
			{
				"name":        "core",
				"sources":     []string{"src/main/kotlin"},
				"destination": "build/classes",
			},
		},
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "conjure.json")

	data, _ := json.Marshal(testConfig())
	os.WriteFile(configPath, data, 0644)

	cfg, err := config.NewManager().LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Version != "1.0" {
		t.Errorf("expected version 1.0, got %s", cfg.Version)
	}
	if len(cfg.Modules) != 1 || cfg.Modules[0].Name != "core" {
		t.Errorf("unexpected modules: %+v", cfg.Modules)
	}
	if cfg.Compiler.GenerationTool != "/tools/kapt.jar" {
		t.Errorf("unexpected generation tool %q", cfg.Compiler.GenerationTool)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "conjure.yaml")

	data, _ := yaml.Marshal(testConfig())
	os.WriteFile(configPath, data, 0644)

	cfg, err := config.NewManager().LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Modules) != 1 || cfg.Modules[0].Destination != "build/classes" {
		t.Errorf("unexpected modules: %+v", cfg.Modules)
	}
	if len(cfg.Compiler.Processors) != 1 {
		t.Errorf("expected 1 processor, got %d", len(cfg.Compiler.Processors))
	}
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	cfg, err := config.NewManager().ParseConfig([]byte(`
version: "1.0"
modules:
  - name: app
    sources: [src]
    destination: out
`))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	if cfg.Compiler.Command != config.DefaultCommand {
		t.Errorf("command = %q", cfg.Compiler.Command)
	}
	if cfg.Workspace.Prefix != "kc" {
		t.Errorf("prefix = %q", cfg.Workspace.Prefix)
	}
	if cfg.Parallelism != 2 {
		t.Errorf("parallelism = %d", cfg.Parallelism)
	}
	if strings.Join(cfg.Classpath.Properties, ",") != "CLASSPATH,BOOT_CLASSPATH" {
		t.Errorf("properties = %v", cfg.Classpath.Properties)
	}
	if cfg.QuietPeriod() != 50*time.Millisecond {
		t.Errorf("quiet period = %s", cfg.QuietPeriod())
	}
	if cfg.NotificationsEnabled() {
		t.Error("notifications should default to off")
	}
}

func TestLoadConfig_ExplicitEmptyPropertiesKept(t *testing.T) {
	cfg, err := config.NewManager().ParseConfig([]byte(`{
		"version": "1.0",
		"classpath": {"properties": []},
		"modules": [{"name": "app", "sources": ["src"], "destination": "out"}]
	}`))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if len(cfg.Classpath.Properties) != 0 {
		t.Errorf("properties = %v", cfg.Classpath.Properties)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "conjure.json")
	os.WriteFile(configPath, []byte("{invalid: [json"), 0644)

	if _, err := config.NewManager().LoadConfig(configPath); err == nil {
		t.Error("expected error for invalid config")
	}
	if _, err := config.NewManager().LoadConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateConfig(t *testing.T) {
	manager := config.NewManager()
	module := config.Module{Name: "core", Sources: []string{"src"}, Destination: "out"}

	tests := []struct {
		name    string
		config  *config.Config
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			config: &config.Config{Version: "1.0", Modules: []config.Module{module}},
		},
		{
			name:    "invalid version",
			config:  &config.Config{Version: "2.0", Modules: []config.Module{module}},
			wantErr: true,
			errMsg:  "unsupported config version",
		},
		{
			name:    "no modules",
			config:  &config.Config{Version: "1.0"},
			wantErr: true,
			errMsg:  "no modules defined",
		},
		{
			name:    "duplicate module names",
			config:  &config.Config{Version: "1.0", Modules: []config.Module{module, module}},
			wantErr: true,
			errMsg:  "duplicate module name",
		},
		{
			name: "shared destination",
			config: &config.Config{Version: "1.0", Modules: []config.Module{
				module,
				{Name: "api", Sources: []string{"api"}, Destination: "./out/"},
			}},
			wantErr: true,
			errMsg:  "share destination",
		},
		{
			name:    "module missing name",
			config:  &config.Config{Version: "1.0", Modules: []config.Module{{Sources: []string{"src"}, Destination: "out"}}},
			wantErr: true,
			errMsg:  "missing name",
		},
		{
			name:    "module without sources",
			config:  &config.Config{Version: "1.0", Modules: []config.Module{{Name: "a", Destination: "out"}}},
			wantErr: true,
			errMsg:  "no sources defined",
		},
		{
			name:    "module without destination",
			config:  &config.Config{Version: "1.0", Modules: []config.Module{{Name: "a", Sources: []string{"src"}}}},
			wantErr: true,
			errMsg:  "missing destination",
		},
		{
			name: "processors without generation tool",
			config: &config.Config{Version: "1.0", Modules: []config.Module{{
				Name: "a", Sources: []string{"src"}, Destination: "out", Processors: []string{"p.jar"},
			}}},
			wantErr: true,
			errMsg:  "without a generation tool",
		},
		{
			name:    "negative parallelism",
			config:  &config.Config{Version: "1.0", Parallelism: -1, Modules: []config.Module{module}},
			wantErr: true,
			errMsg:  "parallelism",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.ValidateConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing '%s', got '%s'", tt.errMsg, err.Error())
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	manager := config.NewManager()
	cfg := manager.DefaultConfig()

	if err := manager.ValidateConfig(cfg); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if _, ok := cfg.Module("main"); !ok {
		t.Error("expected a main module")
	}
}

func TestModule_Generator(t *testing.T) {
	compiler := config.CompilerConfig{GenerationTool: "/tools/kapt.jar", Processors: []string{"a.jar"}}

	tool, processors := config.Module{}.Generator(compiler)
	if tool != "/tools/kapt.jar" || len(processors) != 1 || processors[0] != "a.jar" {
		t.Errorf("inherited generator = %q %v", tool, processors)
	}

	tool, processors = config.Module{GenerationTool: "/other.jar", Processors: []string{"b.jar"}}.Generator(compiler)
	if tool != "/other.jar" || processors[0] != "b.jar" {
		t.Errorf("overridden generator = %q %v", tool, processors)
	}
}

func TestFindConfig(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := config.FindConfig(tmpDir); !errors.Is(err, config.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	os.WriteFile(filepath.Join(tmpDir, "conjure.yaml"), []byte("version: \"1.0\"\n"), 0644)
	path, err := config.FindConfig(tmpDir)
	if err != nil {
		t.Fatalf("FindConfig: %v", err)
	}
	if filepath.Base(path) != "conjure.yaml" {
		t.Errorf("found %s", path)
	}

	os.WriteFile(filepath.Join(tmpDir, "conjure.json"), []byte("{}"), 0644)
	if path, _ := config.FindConfig(tmpDir); filepath.Base(path) != "conjure.json" {
		t.Errorf("json should win, found %s", path)
	}
}

func TestResolve(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "project")
	abs := filepath.Join(string(filepath.Separator), "abs", "path")

	if got := config.Resolve(root, "src/main"); got != filepath.Join(root, "src", "main") {
		t.Errorf("relative: %s", got)
	}
	if got := config.Resolve(root, abs); got != abs {
		t.Errorf("absolute: %s", got)
	}
	if got := config.Resolve(root, ""); got != "" {
		t.Errorf("empty: %s", got)
	}
}

func TestResourceFilter(t *testing.T) {
	filter := config.NewResourceFilter("*.orig", "/build/")

	tests := []struct {
		path    string
		ignored bool
	}{
		{"src/app/settings.properties", false},
		{"src/app/Main.kt___jb_old___", true},
		{"src/app/Main.kt___jb_bak___", true},
		{"src/.svn/entries", true},
		{"src/app/Main.kt.orig", true},
		{"src/build/out.txt", true},
		{"src/builder/out.txt", false},
	}

	for _, tt := range tests {
		if got := filter.Ignored(tt.path); got != tt.ignored {
			t.Errorf("Ignored(%q) = %v, want %v", tt.path, got, tt.ignored)
		}
	}
}
