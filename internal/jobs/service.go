package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ducktype/ducktype/internal/common"
	"github.com/ducktype/ducktype/internal/conversation"
	"go.uber.org/zap"
)

type Service struct {
	store Store
	pub   Publisher
	convs *conversation.Service
	log   *zap.Logger
	now   func() time.Time
}

// NewService accepts nil store or publisher; every call then fails with ErrDisabled.
func NewService(store Store, pub Publisher, convs *conversation.Service, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, pub: pub, convs: convs, log: log, now: func() time.Time {
		return time.Now().UTC().Truncate(time.Millisecond)
	}}
}

func (s *Service) Enabled() bool {
	return s != nil && s.store != nil && s.pub != nil
}

// Enqueue records a queued job for the next user turn of a conversation and publishes it.
// A repeated idempotency key returns the job created the first time without publishing again.
func (s *Service) Enqueue(ctx context.Context, conversationID, owner, user, idempotencyKey string) (*Job, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, conversation.ErrInvalidInput
	}
	if _, err := s.convs.Get(ctx, conversationID, owner); err != nil {
		return nil, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	j := &Job{
		ID:             id,
		OwnerID:        owner,
		ConversationID: conversationID,
		Prompt:         user,
		Status:         StatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	// The record exists before the key points at it, so a duplicate never sees a dangling id.
	if err := s.store.SaveJob(ctx, j); err != nil {
		return nil, err
	}

	scope := owner + ":" + conversationID
	if idempotencyKey != "" {
		prev, err := s.claim(ctx, scope, idempotencyKey, id)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			return prev, nil
		}
	}

	if err := s.pub.PublishJob(ctx, j.ID); err != nil {
		if ferr := s.finish(ctx, j, nil, fmt.Errorf("enqueue: %w", err)); ferr != nil {
			s.log.Error("save failed job", zap.String("job_id", j.ID), zap.Error(ferr))
		}
		if idempotencyKey != "" {
			if rerr := s.store.Release(ctx, scope, idempotencyKey); rerr != nil {
				s.log.Error("release idempotency key", zap.String("job_id", j.ID), zap.Error(rerr))
			}
		}
		return nil, err
	}
	return j, nil
}

// claim binds key to id. It returns the job that already owns the key, or nil when id won.
// A key whose job record has expired is taken over.
func (s *Service) claim(ctx context.Context, scope, key, id string) (*Job, error) {
	for attempt := 0; attempt < 2; attempt++ {
		existing, claimed, err := s.store.Claim(ctx, scope, key, id)
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if claimed {
			return nil, nil
		}
		prev, err := s.store.GetJob(ctx, existing)
		if err == nil {
			return prev, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		s.log.Warn("idempotency key points at a missing job", zap.String("job_id", existing))
		if err := s.store.Release(ctx, scope, key); err != nil {
			return nil, fmt.Errorf("release idempotency key: %w", err)
		}
	}
	return nil, fmt.Errorf("claim idempotency key: %w", ErrNotFound)
}

// Get hides jobs that belong to another owner.
func (s *Service) Get(ctx context.Context, id, owner string) (*Job, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	if !common.IsULID(id) {
		return nil, conversation.ErrInvalidID
	}
	j, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != "" && j.OwnerID != owner {
		return nil, ErrNotFound
	}
	return j, nil
}

func (s *Service) finish(ctx context.Context, j *Job, questions []string, cause error) error {
	j.UpdatedAt = s.now()
	if cause != nil {
		j.Status = StatusFailed
		j.Error = cause.Error()
	} else {
		j.Status = StatusSucceeded
		j.Questions = questions
		j.Error = ""
	}
	return s.store.SaveJob(ctx, j)
}
