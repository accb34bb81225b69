package handlers

import (
	"github.com/ducktype/ducktype/internal/common"
	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/ducktype/ducktype/internal/jobs"
)

type messageView struct {
	User      string             `json:"user"`
	AI        conversation.Reply `json:"ai"`
	CreatedAt string             `json:"createdAt"`
}

type insightView struct {
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

type conversationView struct {
	ID        string        `json:"_id"`
	UserID    string        `json:"userId,omitempty"`
	Title     string        `json:"title"`
	Messages  []messageView `json:"messages"`
	AhaMoment *insightView  `json:"ahaMoment,omitempty"`
	CreatedAt string        `json:"createdAt"`
	UpdatedAt string        `json:"updatedAt"`
}

type legacyMessageView struct {
	ID        string             `json:"_id"`
	User      string             `json:"user"`
	AI        conversation.Reply `json:"ai"`
	CreatedAt string             `json:"createdAt"`
}

type jobView struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversationId"`
	Status         string   `json:"status"`
	Questions      []string `json:"questions"`
	Error          string   `json:"error,omitempty"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt"`
}

func toMessageView(m conversation.Message) messageView {
	return messageView{User: m.User, AI: m.AI, CreatedAt: common.ISOTime(m.CreatedAt)}
}

func toInsightView(i *conversation.Insight) *insightView {
	if i == nil {
		return nil
	}
	return &insightView{Text: i.Text, CreatedAt: common.ISOTime(i.CreatedAt)}
}

func toConversationView(c conversation.Conversation) conversationView {
	v := conversationView{
		ID:        c.ID,
		UserID:    c.OwnerID,
		Title:     c.Title,
		Messages:  make([]messageView, 0, len(c.Messages)),
		AhaMoment: toInsightView(c.Insight),
		CreatedAt: common.ISOTime(c.CreatedAt),
		UpdatedAt: common.ISOTime(c.UpdatedAt),
	}
	for _, m := range c.Messages {
		v.Messages = append(v.Messages, toMessageView(m))
	}
	return v
}

func toLegacyView(m conversation.LegacyMessage) legacyMessageView {
	return legacyMessageView{ID: m.ID, User: m.User, AI: m.AI, CreatedAt: common.ISOTime(m.CreatedAt)}
}

func toJobView(j *jobs.Job) jobView {
	v := jobView{
		ID:             j.ID,
		ConversationID: j.ConversationID,
		Status:         string(j.Status),
		Questions:      j.Questions,
		Error:          j.Error,
		CreatedAt:      common.ISOTime(j.CreatedAt),
		UpdatedAt:      common.ISOTime(j.UpdatedAt),
	}
	if v.Questions == nil {
		v.Questions = []string{}
	}
	return v
}
