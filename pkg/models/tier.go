package models

import "strings"

// ModelTier is the model-tier hint carried by an agent definition.
type ModelTier string

const (
	// TierHaiku is the fast, cheap tier.
	TierHaiku ModelTier = "haiku"
	// TierSonnet is the default general-purpose tier.
	TierSonnet ModelTier = "sonnet"
	// TierOpus is the capable, expensive tier.
	TierOpus ModelTier = "opus"
)

// DefaultModelTier is used when a definition does not name a model.
const DefaultModelTier = TierSonnet

// defaultModelIDs maps tier aliases to concrete model identifiers.
var defaultModelIDs = map[ModelTier]string{
	TierHaiku:  "claude-haiku-4-5-20251001",
	TierSonnet: "claude-sonnet-4-5-20250929",
	TierOpus:   "claude-opus-4-1-20250805",
}

// Valid returns true if the tier is a known alias.
func (t ModelTier) Valid() bool {
	switch t {
	case TierHaiku, TierSonnet, TierOpus:
		return true
	default:
		return false
	}
}

// ResolveModel maps a model hint to a concrete model identifier.
// Aliases are matched case-insensitively and looked up in overrides first,
// then in the built-in table. Anything else is assumed to already be a model
// identifier and is returned unchanged. An empty hint resolves to the default tier.
func ResolveModel(hint string, overrides map[string]string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		hint = string(DefaultModelTier)
	}
	alias := strings.ToLower(hint)
	if id, ok := overrides[alias]; ok && id != "" {
		return id
	}
	if id, ok := defaultModelIDs[ModelTier(alias)]; ok {
		return id
	}
	return hint
}
