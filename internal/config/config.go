// Package config handles configuration loading and management for atomic.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the project-level override file searched for from the
// working directory upwards.
const ProjectConfigName = ".atomic.yaml"

// Config holds all configuration for atomic.
type Config struct {
	Anthropic AnthropicConfig   `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig      `mapstructure:"openai"`
	Pipeline  PipelineConfig    `mapstructure:"pipeline"`
	Timeouts  TimeoutsConfig    `mapstructure:"timeouts"`
	State     StateConfig       `mapstructure:"state"`
	Models    map[string]string `mapstructure:"models"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// OpenAIConfig holds OpenAI API settings, used by definitions with provider: openai.
type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// PipelineConfig holds settings for the coordinator loop and orchestrator.
type PipelineConfig struct {
	// AgentsDir is the directory containing agent definitions.
	AgentsDir string `mapstructure:"agents_dir"`
	// Coordinator is the name of the definition that drives the pipeline.
	Coordinator string `mapstructure:"coordinator"`
	// CoordinatorModel is the model hint for the coordinator.
	CoordinatorModel string `mapstructure:"coordinator_model"`
	// MaxTurns caps coordinator turns (0 disables the cap).
	MaxTurns int `mapstructure:"max_turns"`
	// MaxDuration caps wall-clock time for a run (0 disables the cap).
	MaxDuration time.Duration `mapstructure:"max_duration"`
	// MaxParallel bounds concurrent invocations within one run_many batch.
	MaxParallel int `mapstructure:"max_parallel"`
	// SummaryChars is the length of the output prefix returned to the coordinator.
	SummaryChars int `mapstructure:"summary_chars"`
	// BackgroundGrace is how long a finished run waits for background invocations.
	BackgroundGrace time.Duration `mapstructure:"background_grace"`
}

// TimeoutsConfig holds timeout settings.
type TimeoutsConfig struct {
	Invocation  time.Duration `mapstructure:"invocation"`
	Coordinator time.Duration `mapstructure:"coordinator"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `mapstructure:"driver"`
	// Path is the database path, relative paths resolve against the project dir.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, OPENAI_API_KEY)
// 2. Project config (.atomic.yaml in current directory or parent)
// 3. User config (~/.config/atomic/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.OpenAI.APIKey = os.ExpandEnv(cfg.OpenAI.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4.1")

	v.SetDefault("pipeline.agents_dir", "agents")
	v.SetDefault("pipeline.coordinator", "pipeline-orchestrator")
	v.SetDefault("pipeline.coordinator_model", "sonnet")
	v.SetDefault("pipeline.max_turns", 100)
	v.SetDefault("pipeline.max_duration", "2h")
	v.SetDefault("pipeline.max_parallel", 10)
	v.SetDefault("pipeline.summary_chars", 500)
	v.SetDefault("pipeline.background_grace", "30s")

	v.SetDefault("timeouts.invocation", "15m")
	v.SetDefault("timeouts.coordinator", "5m")

	v.SetDefault("state.driver", "sqlite")
	v.SetDefault("state.path", filepath.Join(".atomic", "state.db"))
}

// getUserConfigDir returns the XDG config directory for atomic.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "atomic")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "atomic")
	}
	return filepath.Join(home, ".config", "atomic")
}

// findProjectConfig searches for .atomic.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Model: "gpt-4.1",
		},
		Pipeline: PipelineConfig{
			AgentsDir:        "agents",
			Coordinator:      "pipeline-orchestrator",
			CoordinatorModel: "sonnet",
			MaxTurns:         100,
			MaxDuration:      2 * time.Hour,
			MaxParallel:      10,
			SummaryChars:     500,
			BackgroundGrace:  30 * time.Second,
		},
		Timeouts: TimeoutsConfig{
			Invocation:  15 * time.Minute,
			Coordinator: 5 * time.Minute,
		},
		State: StateConfig{
			Driver: "sqlite",
			Path:   filepath.Join(".atomic", "state.db"),
		},
	}
}

// StatePath returns the state database path resolved against projectDir.
func (c *Config) StatePath(projectDir string) string {
	if filepath.IsAbs(c.State.Path) {
		return c.State.Path
	}
	return filepath.Join(projectDir, c.State.Path)
}

// AgentsPath returns the agents directory resolved against baseDir.
func (c *Config) AgentsPath(baseDir string) string {
	if filepath.IsAbs(c.Pipeline.AgentsDir) {
		return c.Pipeline.AgentsDir
	}
	return filepath.Join(baseDir, c.Pipeline.AgentsDir)
}
