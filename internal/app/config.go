package app

import (
	"os"

	"gavault/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the configured level.
	Debug bool

	// ConfigPath is the YAML file to load. Empty means defaults plus
	// environment only.
	ConfigPath string

	// Lookup reads the environment overlay. Defaults to os.LookupEnv.
	Lookup config.LookupFunc
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
		Lookup:     os.LookupEnv,
	}
}
