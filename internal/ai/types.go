package ai

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrMissingCredential means the provider cannot be called at all. Callers surface it as
	// "service unavailable" instead of degrading to a fallback.
	ErrMissingCredential = errors.New("ai: missing credential")
	ErrUnknownProvider   = errors.New("ai: unknown provider")
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ListSchema asks the upstream for a JSON object holding one array of strings.
type ListSchema struct {
	Field    string
	MinItems int
	MaxItems int
}

// JSONSchema renders the schema in the JSON-Schema subset the providers accept.
func (s ListSchema) JSONSchema() map[string]any {
	items := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	if s.MinItems > 0 {
		items["minItems"] = s.MinItems
	}
	if s.MaxItems > 0 {
		items["maxItems"] = s.MaxItems
	}
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{s.Field: items},
		"required":   []string{s.Field},
	}
}

type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// Schema is a hint; providers without structured output ignore it.
	Schema *ListSchema
}

// Provider performs one non-streaming completion and returns the raw text of the first
// candidate. An empty string with a nil error means the upstream produced no candidate.
type Provider interface {
	Chat(ctx context.Context, req Request) (string, error)
}

// NormalizeRole maps upstream role names onto user/assistant/system.
func NormalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	switch r {
	case "model", "ai", "assistant", "duck":
		return RoleAssistant
	case "system":
		return RoleSystem
	default:
		return RoleUser
	}
}
