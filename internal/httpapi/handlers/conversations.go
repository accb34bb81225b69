package handlers

import (
	"net/http"

	"github.com/ducktype/ducktype/internal/common"
	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /conversations
func (h *Handler) ListConversations(c *gin.Context) {
	list, err := h.Conversations.List(c.Request.Context(), owner(c, ""))
	if err != nil {
		h.fail(c, "list conversations", err)
		return
	}
	out := make([]conversationView, 0, len(list))
	for _, conv := range list {
		out = append(out, toConversationView(conv))
	}
	common.OK(c, out)
}

type createConversationReq struct {
	Title  string `json:"title"`
	UserID string `json:"userId"`
}

// POST /conversations
func (h *Handler) CreateConversation(c *gin.Context) {
	var req createConversationReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.Fail(c, http.StatusBadRequest, "invalid json")
			return
		}
	}

	conv, err := h.Conversations.Create(c.Request.Context(), owner(c, req.UserID), req.Title)
	if err != nil {
		h.fail(c, "create conversation", err)
		return
	}
	common.OK(c, gin.H{"insertedId": conv.ID})
}

// GET /conversations/:id
func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.Conversations.Get(c.Request.Context(), c.Param("id"), owner(c, ""))
	if err != nil {
		h.fail(c, "get conversation", err)
		return
	}
	common.OK(c, toConversationView(*conv))
}

type patchConversationReq struct {
	Text   *string `json:"text"`
	Title  *string `json:"title"`
	UserID string  `json:"userId"`
}

// PATCH /conversations/:id
// {text} replaces the aha moment, {title} renames. Exactly one of them per request.
func (h *Handler) PatchConversation(c *gin.Context) {
	var req patchConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	ctx := c.Request.Context()
	id, who := c.Param("id"), owner(c, req.UserID)

	switch {
	case req.Text != nil && req.Title != nil:
		common.Fail(c, http.StatusBadRequest, "Provide either text or title")
	case req.Text != nil:
		if *req.Text == "" {
			common.Fail(c, http.StatusBadRequest, "Missing text")
			return
		}
		insight, err := h.Conversations.SetInsight(ctx, id, who, *req.Text)
		if err != nil {
			h.fail(c, "set insight", err)
			return
		}
		common.OK(c, gin.H{"ahaMoment": toInsightView(insight)})
	case req.Title != nil:
		title, err := h.Conversations.Rename(ctx, id, who, *req.Title)
		if err != nil {
			h.fail(c, "rename conversation", err)
			return
		}
		common.OK(c, gin.H{"title": title})
	default:
		common.Fail(c, http.StatusBadRequest, "Missing text or title")
	}
}

// DELETE /conversations/:id
func (h *Handler) DeleteConversation(c *gin.Context) {
	id := c.Param("id")
	if err := h.Conversations.Delete(c.Request.Context(), id, owner(c, "")); err != nil {
		h.fail(c, "delete conversation", err)
		return
	}
	common.OK(c, gin.H{"deletedId": id})
}

type appendMessageReq struct {
	User   string             `json:"user"`
	AI     conversation.Reply `json:"ai"`
	UserID string             `json:"userId"`
}

// POST /conversations/:id/messages
// With an Idempotency-Key header and a configured cache, a replay returns the first result
// without appending again.
func (h *Handler) AppendMessage(c *gin.Context) {
	var req appendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.User == "" || req.AI.IsZero() {
		common.Fail(c, http.StatusBadRequest, "Missing user or ai")
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	id, who := c.Param("id"), owner(c, req.UserID)
	scope := who + ":" + id

	if key != "" && h.Idempotency != nil {
		prev, found, err := h.Idempotency.LookupMessage(ctx, scope, key)
		if err != nil {
			h.Log.Warn("idempotency lookup failed", zap.Error(err))
		} else if found {
			common.OK(c, gin.H{"message": toMessageView(*prev)})
			return
		}
	}

	m, err := h.Conversations.AppendMessage(ctx, id, who, req.User, req.AI)
	if err != nil {
		h.fail(c, "append message", err)
		return
	}
	if key != "" && h.Idempotency != nil {
		if err := h.Idempotency.PutMessage(ctx, scope, key, m); err != nil {
			h.Log.Warn("idempotency store failed", zap.Error(err))
		}
	}
	common.OK(c, gin.H{"message": toMessageView(*m)})
}
