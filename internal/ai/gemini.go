package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	defaultGeminiBaseURL    = "https://generativelanguage.googleapis.com/"
	defaultGeminiAPIVersion = "v1beta"
	defaultGeminiModel      = "gemini-2.0-flash"
)

// GeminiProvider calls generateContent through the genai SDK. The key travels in the
// x-goog-api-key header, so transport errors never carry it.
type GeminiProvider struct {
	BaseURL    string
	APIVersion string
	APIKey     string
	Model      string
	Client     *http.Client
}

func NewGeminiProvider(baseURL, apiKey, model string, timeout time.Duration) *GeminiProvider {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &GeminiProvider{
		BaseURL:    baseURL,
		APIVersion: defaultGeminiAPIVersion,
		APIKey:     apiKey,
		Model:      model,
		Client:     &http.Client{Timeout: timeout},
	}
}

func (p *GeminiProvider) Chat(ctx context.Context, req Request) (string, error) {
	if p.Client == nil {
		return "", errors.New("gemini: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", fmt.Errorf("gemini: %w", ErrMissingCredential)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     p.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.Client,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    p.BaseURL,
			APIVersion: p.APIVersion,
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, p.Model, geminiContents(req.Messages), geminiConfig(req))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}

func geminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.Role(genai.RoleUser)
		if NormalizeRole(m.Role) == RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

func geminiConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = req.Schema.JSONSchema()
	}
	return cfg
}
