// Package config provides centralized configuration management for the MCP host.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"github.com/theapemachine/mcp-host-orchestrator/pkg/registry"
)

// EnvPrefix prefixes every environment override, e.g. MCPHOST_MODEL_PROVIDER.
const EnvPrefix = "MCPHOST"

// Config holds the complete configuration for the application
type Config struct {
	Environment string `mapstructure:"environment"`

	// Backend tool servers. Empty means the built-in defaults.
	Servers []registry.ServerDescriptor `mapstructure:"servers"`

	Timeouts Timeouts `mapstructure:"timeouts"`
	Agent    Agent    `mapstructure:"agent"`
	Model    Model    `mapstructure:"model"`
	Log      Log      `mapstructure:"log"`
	Metrics  Metrics  `mapstructure:"metrics"`
}

// Timeouts are independent per kind of call.
type Timeouts struct {
	Discovery  time.Duration `mapstructure:"discovery"`
	Invocation time.Duration `mapstructure:"invocation"`
	Model      time.Duration `mapstructure:"model"`
}

type Agent struct {
	MaxIterations int    `mapstructure:"maxIterations"`
	SystemPrompt  string `mapstructure:"systemPrompt"`
	Sequential    bool   `mapstructure:"sequential"`
}

// Model selects and configures the language model client.
type Model struct {
	Provider  string `mapstructure:"provider"`
	Name      string `mapstructure:"name"`
	APIKey    string `mapstructure:"apiKey"`
	BaseURL   string `mapstructure:"baseURL"`
	MaxTokens int64  `mapstructure:"maxTokens"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

type Metrics struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `mapstructure:"addr"`
}

const defaultSystemPrompt = "You are a helpful assistant with access to tools from several backend services. " +
	"Tool names have the form <server>/<tool>. Use tools when they help answer the user, " +
	"and answer directly when they do not."

// setDefaults registers every scalar key. AutomaticEnv only overrides keys
// viper already knows about when unmarshalling.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("timeouts.discovery", "10s")
	v.SetDefault("timeouts.invocation", "30s")
	v.SetDefault("timeouts.model", "60s")

	v.SetDefault("agent.maxIterations", 10)
	v.SetDefault("agent.systemPrompt", defaultSystemPrompt)
	v.SetDefault("agent.sequential", false)

	v.SetDefault("model.provider", "anthropic")
	v.SetDefault("model.name", "claude-3-5-sonnet-20240620")
	v.SetDefault("model.apiKey", "")
	v.SetDefault("model.baseURL", "")
	v.SetDefault("model.maxTokens", 4096)

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")
}

/*
Load reads configuration from defaults, then the config file, then the
environment. With an empty file it looks for mcphost.{yaml,json,toml} in the
working directory and in $HOME/.config/mcphost, and carries on without one.
*/
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	} else {
		v.SetConfigName("mcphost")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/mcphost")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "read config")
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if len(cfg.Servers) == 0 {
		cfg.Servers = registry.Defaults()
	}

	return cfg, nil
}

// Validate checks if all required configuration values are set
func (c *Config) Validate() error {
	var problems []string

	if c.Agent.MaxIterations < 1 {
		problems = append(problems, "agent.maxIterations must be at least 1")
	}

	for _, timeout := range []struct {
		name string
		d    time.Duration
	}{
		{"timeouts.discovery", c.Timeouts.Discovery},
		{"timeouts.invocation", c.Timeouts.Invocation},
		{"timeouts.model", c.Timeouts.Model},
	} {
		if timeout.d <= 0 {
			problems = append(problems, timeout.name+" must be positive")
		}
	}

	switch c.Model.Provider {
	case "anthropic", "openai":
	default:
		problems = append(problems, fmt.Sprintf("model.provider %q is not one of anthropic, openai", c.Model.Provider))
	}

	if c.Model.MaxTokens < 1 {
		problems = append(problems, "model.maxTokens must be at least 1")
	}

	if _, err := registry.New(c.Servers...); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.Newf("configuration validation failed: %s", strings.Join(problems, "; "))
	}

	return nil
}
