package ai

import (
	"context"
	"strings"
	"time"
)

// Settings carries what the built-in providers need; it mirrors the generation part of the
// process config without importing it.
type Settings struct {
	Timeout           time.Duration
	GeminiAPIKey      string
	GeminiBaseURL     string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OllamaBaseURL     string
}

// RegisterDefaults wires gemini, openai, openrouter and ollama into r.
func RegisterDefaults(r *Registry, s Settings) {
	r.Register("gemini", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewGeminiProvider(s.GeminiBaseURL, s.GeminiAPIKey, strings.TrimSpace(model), s.Timeout), nil
	})
	r.Register("openai", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewOpenAIProvider("openai", s.OpenAIBaseURL, s.OpenAIAPIKey, strings.TrimSpace(model), s.Timeout), nil
	})
	r.Register("openrouter", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = "openrouter/auto"
		}
		return NewOpenAIProvider("openrouter", s.OpenRouterBaseURL, s.OpenRouterAPIKey, m, s.Timeout), nil
	})
	r.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewOllamaProvider(s.OllamaBaseURL, strings.TrimSpace(model), s.Timeout), nil
	})
}
