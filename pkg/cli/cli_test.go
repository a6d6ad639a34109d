package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poltergeist/conjure/pkg/compiler"
	"github.com/poltergeist/conjure/pkg/config"
	"github.com/poltergeist/conjure/pkg/diagnostics"
)

type stubEngine struct {
	fail  bool
	calls atomic.Int32
}

func (e *stubEngine) Exec(ctx context.Context, args compiler.Arguments, collector *diagnostics.Collector) (*compiler.Result, error) {
	e.calls.Add(1)
	if e.fail {
		collector.Errorf(args.Stage.Pass(), "unresolved reference: foo")
		return &compiler.Result{Stage: args.Stage, ExitCode: 1}, nil
	}
	return &compiler.Result{Stage: args.Stage}, nil
}

func newTestCLI(t *testing.T) (*CLI, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	cfg := NewConfig()
	cfg.Verbosity = "error"
	return NewCLIWithOutput(cfg, &out, &errOut), &out, &errOut
}

func writeJar(t *testing.T, path, manifest string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	if manifest != "" {
		w, err := zw.Create("META-INF/MANIFEST.MF")
		require.NoError(t, err)
		_, err = w.Write([]byte(manifest))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func writeProject(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conjure.json"), []byte(content), 0644))
	return dir
}

const projectConfig = `{
  "version": "1.0",
  "classpath": {
    "entries": ["libs/a.jar", "libs/missing.jar", "libs/a.jar"],
    "properties": []
  },
  "modules": [
    {"name": "core", "sources": ["core/src"], "destination": "core/out", "classpath": ["libs/b.jar"]},
    {"name": "app", "sources": ["app/src"], "destination": "app/out", "generationTool": "tools/gen.jar", "processors": ["p.Processor"]}
  ]
}`

func TestCLI_Version(t *testing.T) {
	var out bytes.Buffer
	cfg := NewConfig()
	cfg.Version = "1.2.3"
	c := NewCLIWithOutput(cfg, &out, &out)

	require.NoError(t, c.Execute([]string{"--version"}))
	assert.Contains(t, out.String(), "conjure v1.2.3")
}

func TestCLI_Init(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "main", "java"), 0755))

	c, out, _ := newTestCLI(t)
	require.NoError(t, c.Execute([]string{"init", "--root", dir}))

	path := filepath.Join(dir, "conjure.json")
	assert.Contains(t, out.String(), "Detected source root: src/main/java")
	assert.Contains(t, out.String(), "Created configuration at "+path)

	cfg, err := config.NewManager().LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Modules, 1)
	assert.Equal(t, []string{"src/main/java"}, cfg.Modules[0].Sources)

	c, _, _ = newTestCLI(t)
	err = c.Execute([]string{"init", "--root", dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	c, _, _ = newTestCLI(t)
	assert.NoError(t, c.Execute([]string{"init", "--root", dir, "--force"}))
}

func TestCLI_InitYAML(t *testing.T) {
	dir := t.TempDir()

	c, _, _ := newTestCLI(t)
	require.NoError(t, c.Execute([]string{"init", "--root", dir, "--format", "yaml"}))

	cfg, err := config.NewManager().LoadConfig(filepath.Join(dir, "conjure.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Modules[0].Name)
	assert.Equal(t, []string{"src/main/kotlin"}, cfg.Modules[0].Sources)

	c, _, _ = newTestCLI(t)
	err = c.Execute([]string{"init", "--root", t.TempDir(), "--format", "toml"})
	assert.ErrorContains(t, err, "unsupported format")
}

func TestCLI_Validate(t *testing.T) {
	dir := writeProject(t, projectConfig)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "core", "src"), 0755))

	c, out, _ := newTestCLI(t)
	require.NoError(t, c.Execute([]string{"validate", "--root", dir}))

	output := out.String()
	assert.Contains(t, output, "core (enabled)")
	assert.Contains(t, output, "app (enabled, generation with 1 processor(s))")
	assert.Contains(t, output, "source root app/src does not exist")
	assert.NotContains(t, output, "source root core/src")
	assert.Contains(t, output, "Configuration is valid (2 module(s))")
}

func TestCLI_ValidateInvalid(t *testing.T) {
	dir := writeProject(t, `{"version": "2.0", "modules": [{"name": "m", "sources": ["src"], "destination": "out"}]}`)

	c, _, errOut := newTestCLI(t)
	err := c.Execute([]string{"validate", "--root", dir})
	require.Error(t, err)
	assert.Contains(t, errOut.String(), "Invalid configuration")
}

func TestCLI_ValidateMissingConfig(t *testing.T) {
	c, _, _ := newTestCLI(t)
	err := c.Execute([]string{"validate", "--root", t.TempDir()})
	assert.ErrorIs(t, err, config.ErrNotFound)
}

func TestCLI_RootFromEnvironment(t *testing.T) {
	dir := writeProject(t, projectConfig)
	t.Setenv("CONJURE_ROOT", dir)

	c, out, _ := newTestCLI(t)
	require.NoError(t, c.Execute([]string{"validate"}))
	assert.Contains(t, out.String(), filepath.Join(dir, "conjure.json"))
}

func TestCLI_Classpath(t *testing.T) {
	dir := writeProject(t, projectConfig)
	libs := filepath.Join(dir, "libs")
	writeJar(t, filepath.Join(libs, "a.jar"), "")
	writeJar(t, filepath.Join(libs, "b.jar"), "Manifest-Version: 1.0\r\nClass-Path: c.jar\r\n\r\n")
	writeJar(t, filepath.Join(libs, "c.jar"), "")

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "first enabled module",
			args: []string{"classpath"},
			want: []string{
				filepath.Join(libs, "b.jar") + "\tloader",
				filepath.Join(libs, "a.jar") + "\tloader",
				filepath.Join(libs, "c.jar") + "\tloader",
			},
		},
		{
			name: "named module",
			args: []string{"classpath", "app"},
			want: []string{
				filepath.Join(libs, "a.jar") + "\tloader",
			},
		},
		{
			name: "with skipped",
			args: []string{"classpath", "app", "--skipped"},
			want: []string{
				filepath.Join(libs, "a.jar") + "\tloader",
				"missing\t" + filepath.Join(libs, "missing.jar"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, out, _ := newTestCLI(t)
			require.NoError(t, c.Execute(append(tt.args, "--root", dir)))

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			assert.Equal(t, tt.want, lines)
		})
	}

	c, _, _ := newTestCLI(t)
	err := c.Execute([]string{"classpath", "nope", "--root", dir})
	assert.ErrorContains(t, err, "unknown module: nope")
}

func TestCLI_Compile(t *testing.T) {
	dir := writeProject(t, projectConfig)

	engine := &stubEngine{}
	c, out, _ := newTestCLI(t)
	c.WithEngine(engine)

	require.NoError(t, c.Execute([]string{"compile", "--root", dir}))

	output := out.String()
	assert.Contains(t, output, "core compiled in")
	assert.Contains(t, output, "app compiled in")
	// core runs a single pass, app runs generation and final
	assert.Equal(t, int32(3), engine.calls.Load())
	assert.DirExists(t, filepath.Join(dir, "core", "out"))
	assert.DirExists(t, filepath.Join(dir, "app", "out"))
}

func TestCLI_CompileSelectedModule(t *testing.T) {
	dir := writeProject(t, projectConfig)

	engine := &stubEngine{}
	c, out, _ := newTestCLI(t)
	c.WithEngine(engine)

	require.NoError(t, c.Execute([]string{"compile", "core", "--root", dir, "--parallel", "1"}))
	assert.Contains(t, out.String(), "core compiled in")
	assert.NotContains(t, out.String(), "app compiled")
	assert.Equal(t, int32(1), engine.calls.Load())
}

func TestCLI_CompileFailure(t *testing.T) {
	dir := writeProject(t, projectConfig)

	c, out, errOut := newTestCLI(t)
	c.WithEngine(&stubEngine{fail: true})

	err := c.Execute([]string{"compile", "core", "--root", dir})
	require.Error(t, err)
	assert.Contains(t, errOut.String(), "core: compilation failed: 1 error(s) in 1 pass(es)")
	assert.NotContains(t, out.String(), "compiled in")
}

func TestCLI_Status(t *testing.T) {
	dir := writeProject(t, projectConfig)

	c, out, _ := newTestCLI(t)
	require.NoError(t, c.Execute([]string{"status", "--root", dir}))
	assert.Contains(t, out.String(), "No compiles recorded")

	c, _, _ = newTestCLI(t)
	c.WithEngine(&stubEngine{fail: true})
	require.Error(t, c.Execute([]string{"compile", "core", "--root", dir}))

	c, out, _ = newTestCLI(t)
	require.NoError(t, c.Execute([]string{"status", "--root", dir}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"MODULE", "STATUS", "LAST", "COMPILE", "DURATION", "ERRORS", "WARNINGS"}, strings.Fields(lines[0]))
	fields := strings.Fields(lines[1])
	assert.Equal(t, "core", fields[0])
	assert.Equal(t, "failed", fields[1])
	assert.Equal(t, "1", fields[len(fields)-2])
	assert.Equal(t, "core: compilation failed: 1 error(s) in 1 pass(es)", lines[2])
}
