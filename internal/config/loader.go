package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ORCHESTRD_"

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ORCHESTRD_SERVER_HTTP_PORT, ...)
//  2. YAML config file
//  3. Defaults
//
// If configPath is empty the loader looks at ORCHESTRD_CONFIG, then falls
// back to defaults-plus-environment only.
//
// Environment variables strip the ORCHESTRD_ prefix, lowercase, and split
// on the first underscore into section.field:
//
//	ORCHESTRD_SERVER_HTTP_PORT      -> server.http_port
//	ORCHESTRD_PLANNER_BASE_URL      -> planner.base_url
//	ORCHESTRD_TIMEOUTS_TOOL_CALL    -> timeouts.tool_call
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = os.Getenv("ORCHESTRD_CONFIG")
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// ORCHESTRD_SERVER_HTTP_PORT -> server.http_port: lowercase,
		// strip the prefix, split on the first underscore only.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
