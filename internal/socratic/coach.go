package socratic

import (
	"context"
	"fmt"
	"strings"

	"github.com/ducktype/ducktype/internal/ai"
	"github.com/ducktype/ducktype/internal/extract"
	"github.com/google/uuid"
)

const (
	QuestionsField = "questions"
	PromptsField   = "prompts"

	maxQuestions = 2

	questionTokens = 256
	promptTokens   = 128
)

const questionInstructions = "You are Rubber Duck AI.\n" +
	"You ONLY ask questions to help the user think.\n" +
	"NEVER provide answers, fixes, steps, or code.\n" +
	"Return ONLY valid JSON that matches the schema. No preamble, no markdown.\n" +
	"Ask 1-2 short questions maximum."

const promptInstructions = "You are Rubber Duck AI. Provide a short list (3-6) of concise starter prompts " +
	"(3-10 words each) that a user could ask to start a helpful conversation. " +
	"Return ONLY valid JSON that matches the schema. No preamble, no markdown, no code fences."

var (
	DefaultQuestions = []string{
		"What outcome are you expecting, and what are you observing instead?",
	}
	DefaultPrompts = []string{
		"What's confusing me right now?",
		"What assumption might be wrong?",
		"What changed since it last worked?",
		"What input case breaks this?",
	}
)

// Coach runs the two generation pipelines: Socratic replies and starter prompts.
type Coach struct {
	client *Client
	nonce  func() string
}

func NewCoach(client *Client) *Coach {
	return &Coach{client: client, nonce: uuid.NewString}
}

// Questions returns one or two clarifying questions for the conversation so far. It never
// retries; an unusable generation yields DefaultQuestions.
func (c *Coach) Questions(ctx context.Context, turns []ai.Message) ([]string, error) {
	raw, err := c.client.Generate(ctx, questionInstructions, turns, Options{
		Field:     QuestionsField,
		MinItems:  1,
		MaxItems:  maxQuestions,
		MaxTokens: questionTokens,
	})
	if err != nil {
		return nil, err
	}

	items := extract.Extract(raw, QuestionsField)
	if len(items) > maxQuestions {
		items = items[:maxQuestions]
	}
	return EnsureNonEmpty(ctx, items, nil, QuestionsField, DefaultQuestions), nil
}

// StarterPrompts returns 3 to 6 conversation openers. Summaries of recent conversations are
// only used for the single retry after an unusable first answer.
func (c *Coach) StarterPrompts(ctx context.Context, summaries []string) ([]string, error) {
	opts := Options{
		Field:     PromptsField,
		MinItems:  3,
		MaxItems:  extract.MaxItems,
		MaxTokens: promptTokens,
	}
	first := []ai.Message{{
		Role:    ai.RoleUser,
		Content: fmt.Sprintf("Provide starter prompts. nonce=%s", c.nonce()),
	}}
	raw, err := c.client.Generate(ctx, promptInstructions, first, opts)
	if err != nil {
		return nil, err
	}

	var retry RetryFunc
	if ctxt := summaryContext(summaries); ctxt != "" {
		retry = func(ctx context.Context) (string, error) {
			turns := []ai.Message{{
				Role: ai.RoleUser,
				Content: "Here are summaries of my recent conversations:\n" + ctxt +
					"\nBased on them, return a JSON object {\"prompts\": [...]} with 3 to 6 " +
					"short starter prompts I could ask next.",
			}}
			return c.client.Generate(ctx, promptInstructions, turns, opts)
		}
	}
	return EnsureNonEmpty(ctx, extract.Extract(raw, PromptsField), retry, PromptsField, DefaultPrompts), nil
}

func summaryContext(summaries []string) string {
	var b strings.Builder
	for _, s := range summaries {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return b.String()
}
