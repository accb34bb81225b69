package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ducktype/ducktype/internal/ai"
	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/ducktype/ducktype/internal/socratic"
	"go.uber.org/zap"
)

type Questioner interface {
	Questions(ctx context.Context, turns []ai.Message) ([]string, error)
}

// Retryable is false for failures another attempt cannot fix.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ai.ErrMissingCredential),
		errors.Is(err, ai.ErrUnknownProvider),
		errors.Is(err, ErrNotFound),
		errors.Is(err, conversation.ErrNotFound),
		errors.Is(err, conversation.ErrInvalidID),
		errors.Is(err, conversation.ErrInvalidInput):
		return false
	}
	return true
}

// Runner executes one job at a time; the worker runs several Runners' calls concurrently.
type Runner struct {
	svc   *Service
	coach Questioner
	log   *zap.Logger
}

func NewRunner(svc *Service, coach Questioner, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{svc: svc, coach: coach, log: log}
}

// Run moves a job from queued to succeeded or failed. The returned error is non-nil when the
// job failed so the caller can dead-letter the delivery.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	start := time.Now()
	store := r.svc.store
	if store == nil {
		return ErrDisabled
	}

	j, err := store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status == StatusSucceeded {
		// redelivery of a finished job
		return nil
	}
	// A job still marked running was interrupted; its exchange may already be stored.
	var resumedFrom time.Time
	if j.Status == StatusRunning {
		resumedFrom = j.UpdatedAt
	}
	j.Status = StatusRunning
	j.UpdatedAt = r.svc.now()
	if err := store.SaveJob(ctx, j); err != nil {
		return err
	}

	questions, runErr := r.run(ctx, j, resumedFrom)
	if err := r.svc.finish(ctx, j, questions, runErr); err != nil {
		r.log.Error("save job result", zap.String("job_id", jobID), zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	fields := []zap.Field{
		zap.String("job_id", jobID),
		zap.String("conversation_id", j.ConversationID),
		zap.Duration("cost", time.Since(start)),
	}
	if runErr != nil {
		r.log.Warn("job failed", append(fields, zap.Error(runErr))...)
		return runErr
	}
	r.log.Info("job succeeded", fields...)
	return nil
}

func (r *Runner) run(ctx context.Context, j *Job, resumedFrom time.Time) ([]string, error) {
	conv, err := r.svc.convs.Get(ctx, j.ConversationID, j.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if m, ok := appendedSince(conv, j.Prompt, resumedFrom); ok {
		r.log.Info("exchange already stored", zap.String("job_id", j.ID))
		return m.AI.Items(), nil
	}

	questions, err := r.coach.Questions(ctx, socratic.Turns(conv.Messages, j.Prompt))
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if _, err := r.svc.convs.AppendMessage(ctx, j.ConversationID, j.OwnerID, j.Prompt, conversation.ListReply(questions...)); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return questions, nil
}

// appendedSince reports the last message when it is prompt's exchange written at or after since.
func appendedSince(conv *conversation.Conversation, prompt string, since time.Time) (conversation.Message, bool) {
	if since.IsZero() || len(conv.Messages) == 0 {
		return conversation.Message{}, false
	}
	last := conv.Messages[len(conv.Messages)-1]
	if last.User != prompt || last.CreatedAt.Before(since) {
		return conversation.Message{}, false
	}
	return last, true
}
