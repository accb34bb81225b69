// Package client is a typed HTTP client for the DuckType API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ducktype/ducktype/internal/conversation"
)

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type Insight struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	User      string             `json:"user"`
	AI        conversation.Reply `json:"ai"`
	CreatedAt time.Time          `json:"createdAt"`
}

type Conversation struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	AhaMoment *Insight  `json:"ahaMoment"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Turn is one entry of the conversation sent to the question endpoint.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client struct {
	baseURL string
	userID  string
	http    *http.Client
}

// New returns a client scoped to userID; an empty userID leaves requests unscoped.
func New(baseURL, userID string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) path(p string) string {
	u := c.baseURL + p
	if c.userID != "" {
		u += "?userId=" + url.QueryEscape(c.userID)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, p string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.path(p), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(b, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(b))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	err := c.do(ctx, http.MethodGet, "/conversations", nil, &out)
	return out, err
}

func (c *Client) CreateConversation(ctx context.Context, title string) (string, error) {
	var out struct {
		InsertedID string `json:"insertedId"`
	}
	in := map[string]string{"title": title}
	if c.userID != "" {
		in["userId"] = c.userID
	}
	err := c.do(ctx, http.MethodPost, "/conversations", in, &out)
	return out.InsertedID, err
}

func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var out Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetInsight(ctx context.Context, id, text string) (*Insight, error) {
	var out struct {
		AhaMoment *Insight `json:"ahaMoment"`
	}
	err := c.do(ctx, http.MethodPatch, "/conversations/"+url.PathEscape(id), map[string]string{"text": text}, &out)
	return out.AhaMoment, err
}

func (c *Client) Rename(ctx context.Context, id, title string) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	err := c.do(ctx, http.MethodPatch, "/conversations/"+url.PathEscape(id), map[string]string{"title": title}, &out)
	return out.Title, err
}

func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AppendMessage(ctx context.Context, id, user string, ai conversation.Reply) (*Message, error) {
	var out struct {
		Message Message `json:"message"`
	}
	in := struct {
		User string             `json:"user"`
		AI   conversation.Reply `json:"ai"`
	}{User: user, AI: ai}
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(id)+"/messages", in, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// Ask returns the duck's questions for the conversation so far.
func (c *Client) Ask(ctx context.Context, turns []Turn) ([]string, error) {
	var out struct {
		Questions []string `json:"questions"`
	}
	err := c.do(ctx, http.MethodPost, "/gemini", map[string]any{"conversation": turns}, &out)
	return out.Questions, err
}

func (c *Client) StarterPrompts(ctx context.Context, summaries []string) ([]string, error) {
	var out struct {
		Prompts []string `json:"prompts"`
	}
	err := c.do(ctx, http.MethodPost, "/gemini/prompts", map[string]any{"summaries": summaries}, &out)
	return out.Prompts, err
}
