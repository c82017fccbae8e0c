package llm

import (
	"context"
	"fmt"
	"strings"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Provider ProviderType
	APIKey   string
	Model    string
}

// NewClient creates the client for the configured provider.
func NewClient(ctx context.Context, cfg ProviderConfig) (Client, error) {
	switch ProviderType(strings.ToLower(string(cfg.Provider))) {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	case ProviderClaude, "anthropic":
		return NewClaudeClient(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
