package app

import (
	"fwdctl/internal/config"
	"fwdctl/internal/process"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the settings file
	Debug bool

	// ConfigPath replaces the layered settings lookup with a single file
	ConfigPath string

	// Settings are filled in by NewApplication
	Settings *config.Settings

	// Runner spawns kubectl; nil uses os/exec
	Runner process.Runner
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
