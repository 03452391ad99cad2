package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestModelTier_Valid(t *testing.T) {
	tests := []struct {
		name string
		tier ModelTier
		want bool
	}{
		{"haiku is valid", TierHaiku, true},
		{"sonnet is valid", TierSonnet, true},
		{"opus is valid", TierOpus, true},
		{"empty string is invalid", ModelTier(""), false},
		{"uppercase is invalid", ModelTier("SONNET"), false},
		{"model id is not a tier", ModelTier("claude-sonnet-4-5-20250929"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tier.Valid())
		})
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name      string
		hint      string
		overrides map[string]string
		want      string
	}{
		{"empty hint uses sonnet", "", nil, "claude-sonnet-4-5-20250929"},
		{"haiku alias", "haiku", nil, "claude-haiku-4-5-20251001"},
		{"alias is case insensitive", "Opus", nil, "claude-opus-4-1-20250805"},
		{"override wins", "sonnet", map[string]string{"sonnet": "custom-sonnet"}, "custom-sonnet"},
		{"empty override ignored", "haiku", map[string]string{"haiku": ""}, "claude-haiku-4-5-20251001"},
		{"custom alias from overrides", "fast", map[string]string{"fast": "gpt-4o-mini"}, "gpt-4o-mini"},
		{"unknown passes through", "claude-3-7-sonnet-20250219", nil, "claude-3-7-sonnet-20250219"},
		{"whitespace trimmed", "  haiku ", nil, "claude-haiku-4-5-20251001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveModel(tt.hint, tt.overrides))
		})
	}
}

func TestInvocation_Duration(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	inv := &Invocation{StartedAt: start}
	assert.Equal(t, time.Duration(0), inv.Duration(), "unfinished invocation has no duration")

	inv.EndedAt = start.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, inv.Duration())
	assert.True(t, inv.Succeeded())

	inv.Err = errors.New("boom")
	assert.False(t, inv.Succeeded())
}
