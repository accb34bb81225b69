package handlers

import (
	"net/http"

	"github.com/ducktype/ducktype/internal/common"
	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/gin-gonic/gin"
)

// Flat message collection kept for older clients; unrelated to conversations.

// GET /messages
func (h *Handler) ListMessages(c *gin.Context) {
	list, err := h.Conversations.ListLegacy(c.Request.Context())
	if err != nil {
		h.fail(c, "list messages", err)
		return
	}
	out := make([]legacyMessageView, 0, len(list))
	for _, m := range list {
		out = append(out, toLegacyView(m))
	}
	common.OK(c, out)
}

type createMessageReq struct {
	User string             `json:"user"`
	AI   conversation.Reply `json:"ai"`
}

// POST /messages
func (h *Handler) CreateMessage(c *gin.Context) {
	var req createMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.User == "" || req.AI.IsZero() {
		common.Fail(c, http.StatusBadRequest, "Missing user or ai")
		return
	}
	m, err := h.Conversations.CreateLegacy(c.Request.Context(), req.User, req.AI)
	if err != nil {
		h.fail(c, "create message", err)
		return
	}
	common.OK(c, gin.H{"insertedId": m.ID})
}

// DELETE /messages/:id
func (h *Handler) DeleteMessage(c *gin.Context) {
	id := c.Param("id")
	if err := h.Conversations.DeleteLegacy(c.Request.Context(), id); err != nil {
		h.fail(c, "delete message", err)
		return
	}
	common.OK(c, gin.H{"deletedId": id})
}
