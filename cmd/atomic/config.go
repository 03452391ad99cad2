package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/atomic/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show configuration",
	Long: `Display the effective Atomic configuration.

Without arguments, displays every setting. With one argument (key), displays
the value for that key. API keys are masked.

Configuration is read from ~/.config/atomic/config.yaml, then
.atomic.yaml in the project (or a parent directory), then the environment.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if len(args) == 1 {
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		}
		displayAllConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

// configKeys lists the keys displayConfig prints, in order.
var configKeys = []string{
	"anthropic.api_key",
	"anthropic.key_source",
	"anthropic.use_bedrock",
	"anthropic.aws_region",
	"openai.api_key",
	"openai.model",
	"pipeline.agents_dir",
	"pipeline.coordinator",
	"pipeline.coordinator_model",
	"pipeline.max_turns",
	"pipeline.max_duration",
	"pipeline.max_parallel",
	"pipeline.summary_chars",
	"pipeline.background_grace",
	"timeouts.invocation",
	"timeouts.coordinator",
	"state.driver",
	"state.path",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Fprintf(w, "%s: %s\n", key, value)
	}

	aliases := make([]string, 0, len(cfg.Models))
	for alias := range cfg.Models {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		fmt.Fprintf(w, "models.%s: %s\n", alias, cfg.Models[alias])
	}
	if path := config.GetProjectConfigPath(); path != "" {
		fmt.Fprintf(w, "\n(project config: %s)\n", path)
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		k, _ := config.GetAPIKey(cfg)
		return config.MaskAPIKey(k), nil
	case "anthropic.key_source":
		return string(config.GetAPIKeySource(cfg)), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "openai.api_key":
		k, _ := config.GetOpenAIKey(cfg)
		return config.MaskAPIKey(k), nil
	case "openai.model":
		return cfg.OpenAI.Model, nil
	case "pipeline.agents_dir":
		return cfg.Pipeline.AgentsDir, nil
	case "pipeline.coordinator":
		return cfg.Pipeline.Coordinator, nil
	case "pipeline.coordinator_model":
		return cfg.Pipeline.CoordinatorModel, nil
	case "pipeline.max_turns":
		return strconv.Itoa(cfg.Pipeline.MaxTurns), nil
	case "pipeline.max_duration":
		return cfg.Pipeline.MaxDuration.String(), nil
	case "pipeline.max_parallel":
		return strconv.Itoa(cfg.Pipeline.MaxParallel), nil
	case "pipeline.summary_chars":
		return strconv.Itoa(cfg.Pipeline.SummaryChars), nil
	case "pipeline.background_grace":
		return cfg.Pipeline.BackgroundGrace.String(), nil
	case "timeouts.invocation":
		return cfg.Timeouts.Invocation.String(), nil
	case "timeouts.coordinator":
		return cfg.Timeouts.Coordinator.String(), nil
	case "state.driver":
		return cfg.State.Driver, nil
	case "state.path":
		return cfg.State.Path, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}
