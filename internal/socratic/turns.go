package socratic

import (
	"strings"

	"github.com/ducktype/ducktype/internal/ai"
	"github.com/ducktype/ducktype/internal/conversation"
)

// Turns flattens stored messages into alternating user/assistant turns and appends next as
// the final user turn when it is not blank.
func Turns(history []conversation.Message, next string) []ai.Message {
	out := make([]ai.Message, 0, len(history)*2+1)
	for _, m := range history {
		if u := strings.TrimSpace(m.User); u != "" {
			out = append(out, ai.Message{Role: ai.RoleUser, Content: u})
		}
		if items := m.AI.Items(); len(items) > 0 {
			out = append(out, ai.Message{Role: ai.RoleAssistant, Content: strings.Join(items, "\n")})
		}
	}
	if next = strings.TrimSpace(next); next != "" {
		out = append(out, ai.Message{Role: ai.RoleUser, Content: next})
	}
	return out
}
