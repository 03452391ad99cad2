package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no Anthropic API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// ErrNoOpenAIKey is returned when no OpenAI API key is configured.
var ErrNoOpenAIKey = errors.New("no OpenAI API key configured")

const (
	anthropicKeyEnv = "ANTHROPIC_API_KEY"
	openAIKeyEnv    = "OPENAI_API_KEY"
)

// GetAPIKey returns the Anthropic API key.
// It checks in order: environment variable, config file.
func GetAPIKey(cfg *Config) (string, error) {
	var configured string
	if cfg != nil {
		configured = cfg.Anthropic.APIKey
	}
	if key, _ := lookupKey(anthropicKeyEnv, configured); key != "" {
		return key, nil
	}
	return "", ErrNoAPIKey
}

// GetOpenAIKey returns the OpenAI API key.
func GetOpenAIKey(cfg *Config) (string, error) {
	var configured string
	if cfg != nil {
		configured = cfg.OpenAI.APIKey
	}
	if key, _ := lookupKey(openAIKeyEnv, configured); key != "" {
		return key, nil
	}
	return "", ErrNoOpenAIKey
}

// lookupKey resolves a key from the environment first, then from the
// configured value with ${VAR} references expanded. Unexpanded references
// count as unset.
func lookupKey(env, configured string) (string, KeySource) {
	if key := os.Getenv(env); key != "" {
		return key, KeySourceEnv
	}
	if configured != "" {
		key := os.ExpandEnv(configured)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, KeySourceConfig
		}
	}
	return "", KeySourceNone
}

// ValidateAPIKey performs basic validation on an Anthropic API key.
// It checks format but does not verify the key with Anthropic's API.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrNoAPIKey
	}

	if !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}

	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}

	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the Anthropic API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	var configured string
	if cfg != nil {
		configured = cfg.Anthropic.APIKey
	}
	_, source := lookupKey(anthropicKeyEnv, configured)
	return source
}
