package conversation

import (
	"context"
	"strings"
	"time"
)

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: defaultNow}
}

// Timestamps are UTC at millisecond precision so every backend round-trips them unchanged.
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *Service) List(ctx context.Context, owner string) ([]Conversation, error) {
	return s.store.ListConversations(ctx, strings.TrimSpace(owner))
}

// Create stores an empty conversation. A blank title becomes DefaultTitle.
func (s *Service) Create(ctx context.Context, owner, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	now := s.now()
	c := &Conversation{
		OwnerID:   strings.TrimSpace(owner),
		Title:     title,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id, owner string) (*Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidID
	}
	return s.store.GetConversation(ctx, id, strings.TrimSpace(owner))
}

// SetInsight replaces the conversation's insight wholesale; there is no history.
func (s *Service) SetInsight(ctx context.Context, id, owner, text string) (*Insight, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidID
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}
	now := s.now()
	c, err := s.store.UpdateConversation(ctx, id, strings.TrimSpace(owner), Patch{
		Insight: &Insight{Text: text, CreatedAt: now},
	}, now)
	if err != nil {
		return nil, err
	}
	return c.Insight, nil
}

func (s *Service) Rename(ctx context.Context, id, owner, title string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrInvalidID
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrInvalidInput
	}
	c, err := s.store.UpdateConversation(ctx, id, strings.TrimSpace(owner), Patch{Title: &title}, s.now())
	if err != nil {
		return "", err
	}
	return c.Title, nil
}

func (s *Service) Delete(ctx context.Context, id, owner string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidID
	}
	return s.store.DeleteConversation(ctx, id, strings.TrimSpace(owner))
}

// AppendMessage pushes one exchange and bumps updatedAt to the message's createdAt.
func (s *Service) AppendMessage(ctx context.Context, id, owner, user string, ai Reply) (*Message, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidID
	}
	if strings.TrimSpace(user) == "" || ai.IsZero() {
		return nil, ErrInvalidInput
	}
	return s.store.AppendMessage(ctx, id, strings.TrimSpace(owner), Message{
		User:      user,
		AI:        ai,
		CreatedAt: s.now(),
	})
}

func (s *Service) ListLegacy(ctx context.Context) ([]LegacyMessage, error) {
	return s.store.ListLegacyMessages(ctx)
}

func (s *Service) CreateLegacy(ctx context.Context, user string, ai Reply) (*LegacyMessage, error) {
	if strings.TrimSpace(user) == "" || ai.IsZero() {
		return nil, ErrInvalidInput
	}
	m := &LegacyMessage{User: user, AI: ai, CreatedAt: s.now()}
	if err := s.store.InsertLegacyMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) DeleteLegacy(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidID
	}
	return s.store.DeleteLegacyMessage(ctx, id)
}
