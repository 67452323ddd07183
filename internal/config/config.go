// Package config provides configuration loading for orchestrd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. It covers the HTTP server, logging, tool provider launch
// descriptors, agent discovery seeding, the planning delegate, and the
// per-operation timeout table.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete orchestrd configuration.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Logging   LoggingConfig             `koanf:"logging"`
	Providers map[string]ProviderConfig `koanf:"providers"`
	Discovery DiscoveryConfig           `koanf:"discovery"`
	Planner   PlannerConfig             `koanf:"planner"`
	Timeouts  TimeoutConfig             `koanf:"timeouts"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// ProviderConfig is the launch descriptor for one tool provider process.
//
// Env values may reference ambient environment variables with ${VAR}
// syntax; references are resolved at spawn time and an unset variable is
// a configuration error, not an empty string.
type ProviderConfig struct {
	Command     string            `koanf:"command"`
	Args        []string          `koanf:"args"`
	Env         map[string]string `koanf:"env"`
	Description string            `koanf:"description"`
}

// DiscoveryConfig seeds agent discovery.
type DiscoveryConfig struct {
	// Endpoints are base URLs of known or guessed specialist agents.
	Endpoints []string `koanf:"endpoints"`
	// RefreshInterval is the period of the background re-discovery loop.
	// Zero disables periodic refresh.
	RefreshInterval Duration `koanf:"refresh_interval"`
	// ProbesPerSecond bounds the rate at which probe requests are issued.
	ProbesPerSecond float64 `koanf:"probes_per_second"`
}

// PlannerConfig configures the LLM planning delegate.
type PlannerConfig struct {
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	APIKey      Secret  `koanf:"api_key"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
}

// TimeoutConfig is the per-operation timeout table.
type TimeoutConfig struct {
	AgentDiscovery     Duration `koanf:"agent_discovery"`
	HealthCheck        Duration `koanf:"health_check"`
	AgentCommunication Duration `koanf:"agent_communication"`
	ToolCall           Duration `koanf:"tool_call"`
	TaskProcessing     Duration `koanf:"task_processing"`
	ProviderShutdown   Duration `koanf:"provider_shutdown"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8800
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Discovery.ProbesPerSecond == 0 {
		cfg.Discovery.ProbesPerSecond = 20
	}

	if cfg.Planner.BaseURL == "" {
		cfg.Planner.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Planner.Model == "" {
		cfg.Planner.Model = "deepseek-ai/DeepSeek-V3"
	}
	if cfg.Planner.MaxTokens == 0 {
		cfg.Planner.MaxTokens = 4096
	}
	if cfg.Planner.Temperature == 0 {
		cfg.Planner.Temperature = 0.7
	}

	if cfg.Timeouts.AgentDiscovery == 0 {
		cfg.Timeouts.AgentDiscovery = Duration(5 * time.Second)
	}
	if cfg.Timeouts.HealthCheck == 0 {
		cfg.Timeouts.HealthCheck = Duration(3 * time.Second)
	}
	if cfg.Timeouts.AgentCommunication == 0 {
		cfg.Timeouts.AgentCommunication = Duration(2 * time.Minute)
	}
	if cfg.Timeouts.ToolCall == 0 {
		cfg.Timeouts.ToolCall = Duration(time.Minute)
	}
	if cfg.Timeouts.TaskProcessing == 0 {
		cfg.Timeouts.TaskProcessing = Duration(10 * time.Minute)
	}
	if cfg.Timeouts.ProviderShutdown == 0 {
		cfg.Timeouts.ProviderShutdown = Duration(5 * time.Second)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q (must be json or console)", c.Logging.Format)
	}

	for name, p := range c.Providers {
		if name == "" {
			return errors.New("provider name cannot be empty")
		}
		if p.Command == "" {
			return fmt.Errorf("provider %q: command is required", name)
		}
	}

	for _, ep := range c.Discovery.Endpoints {
		if ep == "" {
			return errors.New("discovery endpoint cannot be empty")
		}
	}
	if c.Discovery.ProbesPerSecond <= 0 {
		return errors.New("discovery probes_per_second must be positive")
	}

	if c.Planner.Model == "" {
		return errors.New("planner model is required")
	}

	return nil
}
