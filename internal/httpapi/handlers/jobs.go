package handlers

import (
	"net/http"

	"github.com/ducktype/ducktype/internal/common"
	"github.com/ducktype/ducktype/internal/jobs"
	"github.com/gin-gonic/gin"
)

type enqueueReplyReq struct {
	User   string `json:"user"`
	UserID string `json:"userId"`
}

// POST /conversations/:id/replies
func (h *Handler) EnqueueReply(c *gin.Context) {
	if !h.Jobs.Enabled() {
		h.fail(c, "enqueue reply", jobs.ErrDisabled)
		return
	}
	var req enqueueReplyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.User == "" {
		common.Fail(c, http.StatusBadRequest, "Missing user")
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	j, err := h.Jobs.Enqueue(c.Request.Context(), c.Param("id"), owner(c, req.UserID), req.User, key)
	if err != nil {
		h.fail(c, "enqueue reply", err)
		return
	}
	common.OK(c, gin.H{"jobId": j.ID})
}

// GET /jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	j, err := h.Jobs.Get(c.Request.Context(), c.Param("id"), owner(c, ""))
	if err != nil {
		h.fail(c, "get job", err)
		return
	}
	common.OK(c, gin.H{"job": toJobView(j)})
}
