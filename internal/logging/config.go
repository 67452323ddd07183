package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum enabled level: trace, debug, info, warn, error.
	Level string
	// Format selects the encoder: json or console.
	Format string
}

// NewDefaultConfig returns a production-leaning default configuration.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := LevelFromString(c.Level); err != nil {
		return fmt.Errorf("invalid level %q: %w", c.Level, err)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid format %q (must be json or console)", c.Format)
	}
	return nil
}

// zapLevel returns the configured level as a zapcore.Level.
// Config must have been validated.
func (c *Config) zapLevel() zapcore.Level {
	l, err := LevelFromString(c.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}
