package cli

// Config holds all CLI configuration
type Config struct {
	ConfigFile  string
	ProjectRoot string
	Verbosity   string
	Parallel    int
	Version     string
}

// NewConfig creates a new CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		ProjectRoot: ".",
		Verbosity:   "info",
		Version:     "dev",
	}
}
