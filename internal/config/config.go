// Package config provides layered configuration for the MCP core: defaults,
// then an optional YAML file, then CODEX_MCP_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable the core reads at startup. CLI flags (owned by
// the embedded CLI, out of scope for this core) may only override fields
// already populated here.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Sessions SessionsConfig `mapstructure:"sessions" yaml:"sessions"`

	// Profile names the active profile, if any (set at startup by the
	// embedded CLI). setDefaultModel writes into Profiles[Profile] when
	// set, and into Model otherwise.
	Profile  string                 `mapstructure:"profile" yaml:"profile,omitempty"`
	Model    ModelConfig            `mapstructure:"model" yaml:"model,omitempty"`
	Profiles map[string]ModelConfig `mapstructure:"profiles" yaml:"profiles,omitempty"`

	mu   sync.Mutex
	path string
}

// ModelConfig is the persisted model/reasoning-effort override pair that
// setDefaultModel writes (spec.md §4.4.d).
type ModelConfig struct {
	Model           string `mapstructure:"model" yaml:"model,omitempty"`
	ReasoningEffort string `mapstructure:"reasoningEffort" yaml:"reasoningEffort,omitempty"`
}

// ServerConfig controls tool exposure and the auxiliary-agent pool.
type ServerConfig struct {
	ExposeAllTools bool `mapstructure:"exposeAllTools"`
	MaxAuxAgents   int  `mapstructure:"maxAuxAgents"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// SessionsConfig locates the rollout store used by listConversations,
// resumeConversation, and archiveConversation.
type SessionsConfig struct {
	CodexHome string `mapstructure:"codexHome"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.exposeAllTools", false)
	v.SetDefault("server.maxAuxAgents", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stderr")

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	v.SetDefault("sessions.codexHome", filepath.Join(home, ".codex"))
}

func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("CODEX_MCP_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// Load reads configuration from environment variables, an optional
// config.yaml, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the given directory (or default
// locations if empty).
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CODEX_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.path = v.ConfigFileUsed()
	if cfg.path == "" {
		dir := configPath
		if dir == "" {
			dir = "."
		}
		cfg.path = filepath.Join(dir, "config.yaml")
	}

	return &cfg, nil
}

// SetDefaultModel persists a model/reasoning-effort override to the on-disk
// config (spec.md §4.4.d "setDefaultModel"): it operates on Profiles[Profile]
// when a profile is active, or on the top-level Model otherwise, and writes
// the whole config back to c.path. Passing an empty value for either field
// clears that key, since the override struct is replaced wholesale and
// yaml's omitempty then drops it from the written file.
func (c *Config) SetDefaultModel(model, reasoningEffort string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	override := ModelConfig{Model: model, ReasoningEffort: reasoningEffort}
	if c.Profile != "" {
		if c.Profiles == nil {
			c.Profiles = map[string]ModelConfig{}
		}
		c.Profiles[c.Profile] = override
	} else {
		c.Model = override
	}
	return c.save()
}

// Path returns the file SetDefaultModel persists to.
func (c *Config) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// SetPath overrides where SetDefaultModel writes the config back to. Tests
// use this to point persistence at a scratch file instead of the process's
// working directory.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// ActiveModel returns the model override in effect: Profiles[Profile] if a
// profile is active and has an entry, otherwise the top-level Model.
func (c *Config) ActiveModel() ModelConfig {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Profile != "" {
		if m, ok := c.Profiles[c.Profile]; ok {
			return m
		}
	}
	return c.Model
}

func (c *Config) save() error {
	path := c.path
	if path == "" {
		path = "config.yaml"
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.MaxAuxAgents < 0 {
		errs = append(errs, "server.maxAuxAgents must be >= 0")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if cfg.Sessions.CodexHome == "" {
		errs = append(errs, "sessions.codexHome must be set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
