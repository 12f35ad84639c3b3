// Package config loads the runtime's layered configuration: built-in
// defaults, a global user config, a project-local config, then
// environment variables, each layer overriding the last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
	Database   DatabaseConfig   `mapstructure:"database"`
}

// LogConfig controls the zap logger built at startup.
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`       // json, console
	OutputPath string `mapstructure:"output_path"`  // stdout, stderr, or a file path
}

// WorkspaceConfig names the root directory every tool call is confined to.
type WorkspaceConfig struct {
	Root       string `mapstructure:"root"`
	ScratchDir string `mapstructure:"scratch_dir"` // Observation Funnel spill directory
}

// LLMConfig describes the single model endpoint the Controller calls.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RuntimeConfig bounds a single run: turn budget, retry policy, and the
// cost guard's token/duration ceilings.
type RuntimeConfig struct {
	MaxTurns        int           `mapstructure:"max_turns"`
	MaxTokenBudget  int64         `mapstructure:"max_token_budget"`
	MaxRunDuration  time.Duration `mapstructure:"max_run_duration"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBaseWait   time.Duration `mapstructure:"retry_base_wait"`
	ToolCacheTTL    time.Duration `mapstructure:"tool_cache_ttl"`
	ToolCacheSize   int           `mapstructure:"tool_cache_size"`
}

// GuardrailsConfig tunes the doom-loop detector.
type GuardrailsConfig struct {
	LoopWindowSize     int `mapstructure:"loop_window_size"`
	LoopExactThreshold int `mapstructure:"loop_exact_threshold"`
	LoopNameThreshold  int `mapstructure:"loop_name_threshold"`
}

// DatabaseConfig points at the run-replay store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // currently only "sqlite"
	DSN    string `mapstructure:"dsn"`
}

// Load resolves Config from, in increasing priority: built-in defaults,
// ~/.reactorctl/config.yaml (global), ./config.yaml (project-local), then
// REACTOR_-prefixed environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Layer 1: global config, shared across projects on this machine.
	globalDir := filepath.Join(os.Getenv("HOME"), ".reactorctl")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	// Layer 2: project-local config, merged on top of the global layer.
	if _, err := os.Stat("./config.yaml"); err == nil {
		local := viper.New()
		local.SetConfigFile("./config.yaml")
		if err := local.ReadInConfig(); err == nil {
			_ = v.MergeConfigMap(local.AllSettings())
		}
	}

	v.SetEnvPrefix("REACTOR")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("workspace.root", ".")
	v.SetDefault("workspace.scratch_dir", filepath.Join(os.TempDir(), "reactorctl-scratch"))

	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", "3m")

	v.SetDefault("runtime.max_turns", 25)
	v.SetDefault("runtime.max_token_budget", 0) // 0 = unlimited
	v.SetDefault("runtime.max_run_duration", "0s")
	v.SetDefault("runtime.max_retries", 2)
	v.SetDefault("runtime.retry_base_wait", "2s")
	v.SetDefault("runtime.tool_cache_ttl", "30s")
	v.SetDefault("runtime.tool_cache_size", 100)

	v.SetDefault("guardrails.loop_window_size", 8)
	v.SetDefault("guardrails.loop_exact_threshold", 3)
	v.SetDefault("guardrails.loop_name_threshold", 6)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "reactorctl.db")
}
