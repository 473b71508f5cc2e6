package config

import (
	"fmt"
	"strings"
)

// LoggingConfig selects the log level and output format. Values left empty
// fall back to LOG_LEVEL and APP_ENV.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level"`
	// Format is "json" or "console".
	Format string `json:"format"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	c.Level = strings.ToLower(c.Level)
	c.Format = strings.ToLower(c.Format)
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %s", c.Level)
	}
	if c.Format != "" && c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("logging: unknown format %s", c.Format)
	}
	return nil
}
