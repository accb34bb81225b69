// Package jobs runs Socratic replies out of band: the API records a job and enqueues it, a
// worker generates the questions and appends the exchange to the conversation.
package jobs

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var (
	ErrNotFound = errors.New("jobs: not found")
	// ErrDisabled means no job store or queue is configured.
	ErrDisabled = errors.New("jobs: async replies disabled")
)

type Job struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId,omitempty"`
	ConversationID string    `json:"conversationId"`
	Prompt         string    `json:"prompt"`
	Status         Status    `json:"status"`
	Questions      []string  `json:"questions,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Store interface {
	SaveJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	// Claim binds key to jobID unless the key is already taken, in which case it returns the
	// job id that owns it and false.
	Claim(ctx context.Context, scope, key, jobID string) (string, bool, error)
	// Release drops the binding so the key can be claimed again.
	Release(ctx context.Context, scope, key string) error
}

type Publisher interface {
	PublishJob(ctx context.Context, jobID string) error
}
