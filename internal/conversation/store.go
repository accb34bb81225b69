package conversation

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("conversation: not found")
	ErrInvalidID    = errors.New("conversation: invalid id")
	ErrInvalidInput = errors.New("conversation: invalid input")
)

// Patch is applied in one write together with the updatedAt bump. Nil fields are left alone.
type Patch struct {
	Title   *string
	Insight *Insight
}

// Store is the document-store contract. An empty owner means the call is not scoped.
// Every mutating method is a single atomic write.
type Store interface {
	ListConversations(ctx context.Context, owner string) ([]Conversation, error)
	CreateConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id, owner string) (*Conversation, error)
	UpdateConversation(ctx context.Context, id, owner string, p Patch, now time.Time) (*Conversation, error)
	AppendMessage(ctx context.Context, id, owner string, m Message) (*Message, error)
	DeleteConversation(ctx context.Context, id, owner string) error

	ListLegacyMessages(ctx context.Context) ([]LegacyMessage, error)
	InsertLegacyMessage(ctx context.Context, m *LegacyMessage) error
	DeleteLegacyMessage(ctx context.Context, id string) error
}
