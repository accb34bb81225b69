package main

import (
	"context"
	"time"

	"github.com/ducktype/ducktype/internal/jobs"
	"github.com/ducktype/ducktype/internal/store/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type jobRunner interface {
	Run(ctx context.Context, jobID string) error
}

type retryPublisher interface {
	PublishRetry(ctx context.Context, jobID string, attempt int) error
}

type deliveryHandler struct {
	runner  jobRunner
	retries retryPublisher
	// timeout bounds one job; in-flight jobs outlive the shutdown signal up to this limit.
	timeout time.Duration
}

// handle acks on success, parks transient failures on the retry queue and dead-letters the rest.
func (h *deliveryHandler) handle(ctx context.Context, log *zap.Logger, d amqp.Delivery) {
	if ctx.Err() != nil {
		// not started yet: give it back to the broker
		_ = d.Nack(false, true)
		return
	}

	jobID, err := rabbitmq.DecodeJob(d.Body)
	if err != nil {
		log.Warn("bad message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	timeout := h.timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	start := time.Now()
	err = h.runner.Run(runCtx, jobID)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Error("ack failed", zap.String("job_id", jobID), zap.Error(err))
		}
		return
	}

	attempt := rabbitmq.RetryCount(d)
	fields := []zap.Field{
		zap.String("job_id", jobID),
		zap.Int("attempt", attempt),
		zap.Duration("cost", time.Since(start)),
		zap.Error(err),
	}
	if jobs.Retryable(err) && attempt < rabbitmq.MaxRetries && h.retries != nil {
		perr := h.retries.PublishRetry(runCtx, jobID, attempt+1)
		if perr == nil {
			log.Warn("job failed, retry scheduled", fields...)
			_ = d.Ack(false)
			return
		}
		log.Error("schedule retry", zap.String("job_id", jobID), zap.Error(perr))
	}
	log.Warn("job failed", fields...)
	_ = d.Nack(false, false)
}
