package handlers

import (
	"net/http"
	"strings"

	"github.com/ducktype/ducktype/internal/ai"
	"github.com/ducktype/ducktype/internal/common"
	"github.com/gin-gonic/gin"
)

type turnPart struct {
	Text string `json:"text"`
}

// turn accepts both the generateContent shape {role, parts:[{text}]} and {role, content}.
type turn struct {
	Role    string     `json:"role"`
	Parts   []turnPart `json:"parts"`
	Content string     `json:"content"`
}

func (t turn) text() string {
	if len(t.Parts) == 0 {
		return strings.TrimSpace(t.Content)
	}
	texts := make([]string, 0, len(t.Parts))
	for _, p := range t.Parts {
		if s := strings.TrimSpace(p.Text); s != "" {
			texts = append(texts, s)
		}
	}
	return strings.Join(texts, "\n")
}

type questionsReq struct {
	Conversation []turn `json:"conversation"`
}

// POST /gemini
func (h *Handler) Questions(c *gin.Context) {
	var req questionsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "Missing conversation")
		return
	}
	turns := make([]ai.Message, 0, len(req.Conversation))
	for _, t := range req.Conversation {
		if text := t.text(); text != "" {
			turns = append(turns, ai.Message{Role: ai.NormalizeRole(t.Role), Content: text})
		}
	}
	if len(turns) == 0 {
		common.Fail(c, http.StatusBadRequest, "Missing conversation")
		return
	}

	questions, err := h.Coach.Questions(c.Request.Context(), turns)
	if err != nil {
		h.fail(c, "questions", err)
		return
	}
	common.OK(c, gin.H{"questions": questions})
}

type promptsReq struct {
	Summaries []string `json:"summaries"`
}

// POST /gemini/prompts
func (h *Handler) StarterPrompts(c *gin.Context) {
	common.NoStore(c)

	var req promptsReq
	_ = c.ShouldBindJSON(&req) // body is optional

	prompts, err := h.Coach.StarterPrompts(c.Request.Context(), req.Summaries)
	if err != nil {
		h.fail(c, "starter prompts", err)
		return
	}
	common.OK(c, gin.H{"prompts": prompts})
}
