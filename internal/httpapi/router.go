package httpapi

import (
	"net/http"

	"github.com/ducktype/ducktype/internal/common"
	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/ducktype/ducktype/internal/httpapi/handlers"
	"github.com/ducktype/ducktype/internal/httpapi/middleware"
	"github.com/ducktype/ducktype/internal/jobs"
	"github.com/ducktype/ducktype/internal/socratic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Deps struct {
	Conversations *conversation.Service
	Coach         *socratic.Coach
	// optional
	Jobs        *jobs.Service
	Idempotency handlers.MessageCache
	Log         *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	h := handlers.NewHandler(d.Conversations, d.Coach, d.Jobs, d.Idempotency, log)

	r.GET("/healthz", h.Health)

	r.GET("/conversations", h.ListConversations)
	r.POST("/conversations", h.CreateConversation)
	r.GET("/conversations/:id", h.GetConversation)
	r.PATCH("/conversations/:id", h.PatchConversation)
	r.DELETE("/conversations/:id", h.DeleteConversation)
	r.POST("/conversations/:id/messages", h.AppendMessage)
	r.POST("/conversations/:id/replies", h.EnqueueReply)

	// legacy flat collection
	r.GET("/messages", h.ListMessages)
	r.POST("/messages", h.CreateMessage)
	r.DELETE("/messages/:id", h.DeleteMessage)

	r.POST("/gemini", h.Questions)
	r.POST("/gemini/prompts", h.StarterPrompts)

	r.GET("/jobs/:id", h.GetJob)
	return r
}
