package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAPIKey(t *testing.T) {
	t.Run("from environment variable", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key")

		key, err := GetAPIKey(&Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}})
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-test-key", key)
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		key, err := GetAPIKey(&Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}})
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-config-key", key)
	})

	t.Run("config reference to unset variable", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		t.Setenv("ATOMIC_TEST_UNSET", "")

		_, err := GetAPIKey(&Config{Anthropic: AnthropicConfig{APIKey: "${ATOMIC_TEST_UNSET}"}})
		assert.ErrorIs(t, err, ErrNoAPIKey)
	})

	t.Run("no key configured", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		_, err := GetAPIKey(nil)
		assert.ErrorIs(t, err, ErrNoAPIKey)
	})
}

func TestGetOpenAIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := GetOpenAIKey(&Config{})
	assert.ErrorIs(t, err, ErrNoOpenAIKey)

	t.Setenv("ATOMIC_TEST_OPENAI", "sk-from-ref")
	key, err := GetOpenAIKey(&Config{OpenAI: OpenAIConfig{APIKey: "${ATOMIC_TEST_OPENAI}"}})
	require.NoError(t, err)
	assert.Equal(t, "sk-from-ref", key)

	t.Setenv("OPENAI_API_KEY", "sk-env")
	key, err = GetOpenAIKey(&Config{})
	require.NoError(t, err)
	assert.Equal(t, "sk-env", key)
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "sk-ant-REDACTED", false},
		{"empty key", "", true},
		{"wrong prefix", "sk-openai-12345678901234567890", true},
		{"too short", "sk-ant-abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateAPIKey(%q) error = %v", tt.key, err)
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "sk-ant-...wxyz", MaskAPIKey("sk-ant-REDACTED"))
	assert.Equal(t, "(not set)", MaskAPIKey(""))
	assert.Equal(t, "***", MaskAPIKey("short"))
}

func TestGetAPIKeySource(t *testing.T) {
	t.Run("from environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "test-key")
		assert.Equal(t, KeySourceEnv, GetAPIKeySource(&Config{}))
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}}
		assert.Equal(t, KeySourceConfig, GetAPIKeySource(cfg))
	})

	t.Run("no key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		assert.Equal(t, KeySourceNone, GetAPIKeySource(&Config{}))
	})
}
