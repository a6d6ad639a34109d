package compiler

import (
	"strings"
)

// KaptPluginID is the plugin id the generation options are addressed to
const KaptPluginID = "org.jetbrains.kotlin.kapt3"

// Generation modes understood by the generation plugin
const (
	AptModeStubsAndApt = "stubsAndApt"
)

// Stage identifies which pass an Arguments value configures
type Stage int

const (
	StageSingle Stage = iota
	StageGeneration
	StageFinal
)

func (s Stage) String() string {
	switch s {
	case StageGeneration:
		return "generation"
	case StageFinal:
		return "final"
	default:
		return "single"
	}
}

// Pass returns the 1-based pass number of the stage
func (s Stage) Pass() int {
	if s == StageFinal {
		return 2
	}
	return 1
}

// Layout names the staging directories a generation pass writes to
type Layout interface {
	Sources() string
	Classes() string
	Stubs() string
}

// Arguments configures one engine invocation. Values are never mutated in
// place: the stage methods return fresh copies derived from a base.
type Arguments struct {
	Stage       Stage
	Destination string
	Classpath   string
	// NoStdlib keeps the compiler from adding its own standard library.
	NoStdlib bool
	// UseJavac and CompileJava delegate mixed-language trees to javac.
	UseJavac         bool
	CompileJava      bool
	PluginClasspaths []string
	PluginOptions    []string
	// ExtraArgs are passed through verbatim ahead of the source roots.
	ExtraArgs []string
	FreeArgs  []string
}

// NewArguments creates the base configuration shared by every pass
func NewArguments(destination string, classpath string) Arguments {
	return Arguments{
		Stage:       StageSingle,
		Destination: destination,
		Classpath:   classpath,
		NoStdlib:    true,
		UseJavac:    true,
		CompileJava: true,
	}
}

func (a Arguments) clone() Arguments {
	c := a
	c.PluginClasspaths = append([]string(nil), a.PluginClasspaths...)
	c.PluginOptions = append([]string(nil), a.PluginOptions...)
	c.ExtraArgs = append([]string(nil), a.ExtraArgs...)
	c.FreeArgs = append([]string(nil), a.FreeArgs...)
	return c
}

// Single configures a pass without code generation
func (a Arguments) Single(sourceRoots []string) Arguments {
	c := a.clone()
	c.Stage = StageSingle
	c.PluginClasspaths = nil
	c.PluginOptions = nil
	c.FreeArgs = append([]string(nil), sourceRoots...)
	return c
}

// Generation configures pass 1: stubs and generated sources are written
// into layout by the generation tool running the given processors.
func (a Arguments) Generation(sourceRoots []string, tool string, layout Layout, processors []string) Arguments {
	c := a.clone()
	c.Stage = StageGeneration
	c.PluginClasspaths = []string{tool}
	c.PluginOptions = []string{
		KaptOption("verbose", "false"),
		KaptOption("aptMode", AptModeStubsAndApt),
		KaptOption("sources", layout.Sources()),
		KaptOption("classes", layout.Classes()),
		KaptOption("stubs", layout.Stubs()),
		KaptOption("apclasspath", strings.Join(processors, ",")),
	}
	c.FreeArgs = append([]string(nil), sourceRoots...)
	return c
}

// Final configures pass 2: generation is off and the generated sources
// directory is compiled with the original roots.
func (a Arguments) Final(sourceRoots []string, generatedSources string) Arguments {
	c := a.clone()
	c.Stage = StageFinal
	c.PluginClasspaths = nil
	c.PluginOptions = nil
	c.FreeArgs = append(append([]string(nil), sourceRoots...), generatedSources)
	return c
}

// KaptOption formats a generation plugin option
func KaptOption(key, value string) string {
	return "plugin:" + KaptPluginID + ":" + key + "=" + value
}

// PluginOption returns the value of a generation plugin option, if set
func (a Arguments) PluginOption(key string) (string, bool) {
	prefix := "plugin:" + KaptPluginID + ":" + key + "="
	for _, opt := range a.PluginOptions {
		if strings.HasPrefix(opt, prefix) {
			return strings.TrimPrefix(opt, prefix), true
		}
	}
	return "", false
}

// CommandLine renders the arguments as kotlinc flags
func (a Arguments) CommandLine() []string {
	var argv []string
	if a.Destination != "" {
		argv = append(argv, "-d", a.Destination)
	}
	if a.Classpath != "" {
		argv = append(argv, "-classpath", a.Classpath)
	}
	if a.NoStdlib {
		argv = append(argv, "-no-stdlib")
	}
	if a.UseJavac {
		argv = append(argv, "-Xuse-javac")
	}
	if a.CompileJava {
		argv = append(argv, "-Xcompile-java")
	}
	for _, p := range a.PluginClasspaths {
		argv = append(argv, "-Xplugin="+p)
	}
	for _, o := range a.PluginOptions {
		argv = append(argv, "-P", o)
	}
	argv = append(argv, a.ExtraArgs...)
	return append(argv, a.FreeArgs...)
}
