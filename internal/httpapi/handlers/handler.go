package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ducktype/ducktype/internal/ai"
	"github.com/ducktype/ducktype/internal/common"
	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/ducktype/ducktype/internal/httpapi/middleware"
	"github.com/ducktype/ducktype/internal/jobs"
	"github.com/ducktype/ducktype/internal/socratic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxIdempotencyKey = 128

// MessageCache remembers appended messages by idempotency key.
type MessageCache interface {
	LookupMessage(ctx context.Context, scope, key string) (*conversation.Message, bool, error)
	PutMessage(ctx context.Context, scope, key string, m *conversation.Message) error
}

type Handler struct {
	Conversations *conversation.Service
	Coach         *socratic.Coach
	// Jobs and Idempotency are optional.
	Jobs        *jobs.Service
	Idempotency MessageCache
	Log         *zap.Logger
}

func NewHandler(convs *conversation.Service, coach *socratic.Coach, js *jobs.Service, idem MessageCache, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Conversations: convs, Coach: coach, Jobs: js, Idempotency: idem, Log: log}
}

// fail maps domain errors onto the HTTP taxonomy. Only unexpected errors are logged.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, conversation.ErrInvalidID):
		common.Fail(c, http.StatusBadRequest, "Invalid id")
	case errors.Is(err, conversation.ErrInvalidInput):
		common.Fail(c, http.StatusBadRequest, "Invalid input")
	case errors.Is(err, conversation.ErrNotFound), errors.Is(err, jobs.ErrNotFound):
		common.Fail(c, http.StatusNotFound, "Not found")
	case errors.Is(err, ai.ErrMissingCredential), errors.Is(err, ai.ErrUnknownProvider), errors.Is(err, jobs.ErrDisabled):
		h.Log.Warn(op+" unavailable", zap.Error(err), zap.String("request_id", c.GetString(middleware.RequestIDKey)))
		common.Fail(c, http.StatusServiceUnavailable, "generation service unavailable")
	default:
		h.Log.Error(op+" failed", zap.Error(err), zap.String("request_id", c.GetString(middleware.RequestIDKey)))
		common.Fail(c, http.StatusInternalServerError, "server error")
	}
}

// owner prefers the body value and falls back to the userId query parameter.
func owner(c *gin.Context, fromBody string) string {
	if v := strings.TrimSpace(fromBody); v != "" {
		return v
	}
	return strings.TrimSpace(c.Query("userId"))
}

func idempotencyKey(c *gin.Context) (string, bool) {
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(key) > maxIdempotencyKey {
		common.Fail(c, http.StatusBadRequest, "idempotency key too long")
		return "", false
	}
	return key, true
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	common.OK(c, gin.H{"status": "ok"})
}
