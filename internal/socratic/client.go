// Package socratic turns upstream generations into short question and prompt lists.
package socratic

import (
	"context"
	"errors"

	"github.com/ducktype/ducktype/internal/ai"
	"go.uber.org/zap"
)

// Temperature is kept low so repeated asks stay close to each other.
const Temperature = 0.2

type Options struct {
	Field     string
	MinItems  int
	MaxItems  int
	MaxTokens int
}

// Client wraps a provider so upstream failures degrade to empty text.
type Client struct {
	provider ai.Provider
	log      *zap.Logger
}

func NewClient(provider ai.Provider, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{provider: provider, log: log}
}

// Generate performs one upstream call. Only ai.ErrMissingCredential is returned to the caller;
// every other failure is logged and reported as "".
func (c *Client) Generate(ctx context.Context, instructions string, turns []ai.Message, opts Options) (string, error) {
	req := ai.Request{
		System:      instructions,
		Messages:    turns,
		MaxTokens:   opts.MaxTokens,
		Temperature: Temperature,
	}
	if opts.Field != "" {
		req.Schema = &ai.ListSchema{Field: opts.Field, MinItems: opts.MinItems, MaxItems: opts.MaxItems}
	}

	text, err := c.provider.Chat(ctx, req)
	if err != nil {
		if errors.Is(err, ai.ErrMissingCredential) {
			return "", err
		}
		c.log.Warn("generation failed", zap.String("field", opts.Field), zap.Error(err))
		return "", nil
	}
	if text == "" {
		c.log.Debug("generation returned no candidate", zap.String("field", opts.Field))
	}
	return text, nil
}
