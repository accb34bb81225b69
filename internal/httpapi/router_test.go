package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ducktype/ducktype/internal/ai"
	"github.com/ducktype/ducktype/internal/common"
	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/ducktype/ducktype/internal/jobs"
	"github.com/ducktype/ducktype/internal/socratic"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type fakeProvider struct {
	mu      sync.Mutex
	answers []string
	err     error
	calls   int
}

func (f *fakeProvider) Chat(_ context.Context, _ ai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if i < len(f.answers) {
		return f.answers[i], nil
	}
	return "", nil
}

type memCache struct {
	mu   sync.Mutex
	msgs map[string]conversation.Message
}

func (m *memCache) LookupMessage(_ context.Context, scope, key string) (*conversation.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[scope+"|"+key]
	if !ok {
		return nil, false, nil
	}
	return &msg, true, nil
}

func (m *memCache) PutMessage(_ context.Context, scope, key string, msg *conversation.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[scope+"|"+key] = *msg
	return nil
}

type testEnv struct {
	router   *gin.Engine
	provider *fakeProvider
	convs    *conversation.Service
}

func newTestEnv(t *testing.T, d Deps) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(conversation.Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	p := &fakeProvider{}
	if d.Conversations == nil {
		d.Conversations = conversation.NewService(conversation.NewRepo(db))
	}
	d.Coach = socratic.NewCoach(socratic.NewClient(p, nil))
	return &testEnv{router: NewRouter(d), provider: p, convs: d.Conversations}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode body %q: %v", w.Body.String(), err)
		}
	}
	return w, out
}

func (e *testEnv) createConversation(t *testing.T, body string) string {
	t.Helper()
	w, out := e.do(t, http.MethodPost, "/conversations", body)
	if w.Code != http.StatusOK {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	id, _ := out["insertedId"].(string)
	if id == "" {
		t.Fatalf("missing insertedId: %s", w.Body.String())
	}
	return id
}

func TestConversations_CreateListGet(t *testing.T) {
	e := newTestEnv(t, Deps{})

	id := e.createConversation(t, `{"userId":"u1"}`)
	e.createConversation(t, `{"title":"Other user","userId":"u2"}`)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations?userId=u1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0]["_id"] != id || list[0]["title"] != conversation.DefaultTitle {
		t.Fatalf("unexpected list: %s", w.Body.String())
	}

	w, got := e.do(t, http.MethodGet, "/conversations/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	for _, k := range []string{"createdAt", "updatedAt"} {
		if _, err := time.Parse(common.ISOLayout, got[k].(string)); err != nil {
			t.Fatalf("%s not ISO-8601: %v", k, got[k])
		}
	}
	if msgs, _ := got["messages"].([]any); msgs == nil || len(msgs) != 0 {
		t.Fatalf("expected empty messages array: %s", w.Body.String())
	}

	if w, _ := e.do(t, http.MethodGet, "/conversations/"+id+"?userId=u2", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other owner, got %d", w.Code)
	}
}

func TestAppendMessage_ScenarioC(t *testing.T) {
	e := newTestEnv(t, Deps{})
	id := e.createConversation(t, "")

	_, before := e.do(t, http.MethodGet, "/conversations/"+id, "")
	priorUpdated, _ := time.Parse(common.ISOLayout, before["updatedAt"].(string))

	w, out := e.do(t, http.MethodPost, "/conversations/"+id+"/messages", `{"user":"hi","ai":"line1\nline2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("append: %d %s", w.Code, w.Body.String())
	}
	if _, ok := out["message"].(map[string]any); !ok {
		t.Fatalf("missing message: %s", w.Body.String())
	}

	_, got := e.do(t, http.MethodGet, "/conversations/"+id, "")
	msgs := got["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0].(map[string]any)
	if m["user"] != "hi" || m["ai"] != "line1\nline2" {
		t.Fatalf("message did not round-trip: %v", m)
	}
	created, err := time.Parse(common.ISOLayout, m["createdAt"].(string))
	if err != nil {
		t.Fatalf("createdAt not ISO-8601: %v", m["createdAt"])
	}
	if created.Before(priorUpdated) {
		t.Fatalf("createdAt %s earlier than prior updatedAt %s", created, priorUpdated)
	}

	w, _ = e.do(t, http.MethodPost, "/conversations/"+id+"/messages", `{"user":"list","ai":["a?","b?"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("append list: %d", w.Code)
	}
	_, got = e.do(t, http.MethodGet, "/conversations/"+id, "")
	second := got["messages"].([]any)[1].(map[string]any)
	if ai, ok := second["ai"].([]any); !ok || len(ai) != 2 {
		t.Fatalf("list reply did not round-trip: %v", second["ai"])
	}
}

func TestAppendMessage_Validation(t *testing.T) {
	e := newTestEnv(t, Deps{})
	id := e.createConversation(t, "")

	cases := []struct {
		path, body string
		status     int
	}{
		{"/conversations/" + id + "/messages", `{"user":"hi"}`, http.StatusBadRequest},
		{"/conversations/" + id + "/messages", `{"ai":"x"}`, http.StatusBadRequest},
		{"/conversations/" + id + "/messages", `{"user":"hi","ai":{"nested":true}}`, http.StatusBadRequest},
		{"/conversations/" + id + "/messages", `not json`, http.StatusBadRequest},
		{"/conversations/missing/messages", `{"user":"hi","ai":"x"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		w, out := e.do(t, http.MethodPost, tc.path, tc.body)
		if w.Code != tc.status {
			t.Fatalf("%s %s: want %d got %d", tc.path, tc.body, tc.status, w.Code)
		}
		if _, ok := out["error"].(string); !ok {
			t.Fatalf("missing error envelope: %s", w.Body.String())
		}
	}

	long := strings.Repeat("k", 129)
	if w, _ := e.do(t, http.MethodPost, "/conversations/"+id+"/messages", `{"user":"hi","ai":"x"}`, "Idempotency-Key", long); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for long key, got %d", w.Code)
	}
}

func TestAppendMessage_Idempotent(t *testing.T) {
	e := newTestEnv(t, Deps{Idempotency: &memCache{msgs: map[string]conversation.Message{}}})
	id := e.createConversation(t, "")

	for i := 0; i < 2; i++ {
		w, _ := e.do(t, http.MethodPost, "/conversations/"+id+"/messages", `{"user":"hi","ai":"x"}`, "Idempotency-Key", "abc")
		if w.Code != http.StatusOK {
			t.Fatalf("append %d: %d", i, w.Code)
		}
	}
	_, got := e.do(t, http.MethodGet, "/conversations/"+id, "")
	if n := len(got["messages"].([]any)); n != 1 {
		t.Fatalf("replay appended again: %d messages", n)
	}
}

func TestDelete_ScenarioD(t *testing.T) {
	e := newTestEnv(t, Deps{})
	missing := "01HZZZZZZZZZZZZZZZZZZZZZZZ"

	w, out := e.do(t, http.MethodDelete, "/conversations/"+missing, "")
	if w.Code != http.StatusNotFound || out["error"] != "Not found" {
		t.Fatalf("delete missing: %d %s", w.Code, w.Body.String())
	}
	if w, _ := e.do(t, http.MethodGet, "/conversations/"+missing, ""); w.Code != http.StatusNotFound {
		t.Fatalf("get missing: %d", w.Code)
	}

	id := e.createConversation(t, "")
	w, out = e.do(t, http.MethodDelete, "/conversations/"+id, "")
	if w.Code != http.StatusOK || out["deletedId"] != id {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if w, _ := e.do(t, http.MethodGet, "/conversations/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", w.Code)
	}
}

func TestPatchConversation(t *testing.T) {
	e := newTestEnv(t, Deps{})
	id := e.createConversation(t, `{"userId":"u1"}`)

	w, out := e.do(t, http.MethodPatch, "/conversations/"+id+"?userId=u1", `{"text":"It was the cache"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch text: %d %s", w.Code, w.Body.String())
	}
	aha, _ := out["ahaMoment"].(map[string]any)
	if aha["text"] != "It was the cache" {
		t.Fatalf("unexpected ahaMoment: %v", out)
	}

	w, out = e.do(t, http.MethodPatch, "/conversations/"+id, `{"title":"Cache bug","userId":"u1"}`)
	if w.Code != http.StatusOK || out["title"] != "Cache bug" {
		t.Fatalf("patch title: %d %s", w.Code, w.Body.String())
	}

	_, got := e.do(t, http.MethodGet, "/conversations/"+id, "")
	if got["title"] != "Cache bug" || got["ahaMoment"].(map[string]any)["text"] != "It was the cache" {
		t.Fatalf("unexpected conversation: %v", got)
	}

	if w, _ := e.do(t, http.MethodPatch, "/conversations/"+id, `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty patch: %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodPatch, "/conversations/"+id+"?userId=u2", `{"text":"x"}`); w.Code != http.StatusNotFound {
		t.Fatalf("other owner patch: %d", w.Code)
	}
}

func TestLegacyMessages(t *testing.T) {
	e := newTestEnv(t, Deps{})

	w, out := e.do(t, http.MethodPost, "/messages", `{"user":"Integration Test","ai":["simulated"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	id := out["insertedId"].(string)

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/messages", nil))
	var list []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list) != 1 || list[0]["_id"] != id {
		t.Fatalf("unexpected list: %s", w.Body.String())
	}

	if w, _ := e.do(t, http.MethodDelete, "/messages/"+id, ""); w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodDelete, "/messages/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("delete again: %d", w.Code)
	}
}

func TestQuestionsEndpoint(t *testing.T) {
	e := newTestEnv(t, Deps{})
	e.provider.answers = []string{`{"questions":["What did you expect?"]}`}

	body := `{"conversation":[{"role":"user","parts":[{"text":"my loop never ends"}]}]}`
	w, out := e.do(t, http.MethodPost, "/gemini", body)
	if w.Code != http.StatusOK {
		t.Fatalf("questions: %d %s", w.Code, w.Body.String())
	}
	qs := out["questions"].([]any)
	if len(qs) != 1 || qs[0] != "What did you expect?" {
		t.Fatalf("unexpected questions: %v", qs)
	}

	// upstream garbage degrades to the fallback question
	w, out = e.do(t, http.MethodPost, "/gemini", `{"conversation":[{"role":"user","content":"still stuck"}]}`)
	if w.Code != http.StatusOK || len(out["questions"].([]any)) != 1 {
		t.Fatalf("fallback: %d %s", w.Code, w.Body.String())
	}

	for _, b := range []string{`{}`, `{"conversation":[]}`, `{"conversation":[{"role":"user","parts":[{"text":"  "}]}]}`} {
		w, out := e.do(t, http.MethodPost, "/gemini", b)
		if w.Code != http.StatusBadRequest || out["error"] != "Missing conversation" {
			t.Fatalf("%s: %d %s", b, w.Code, w.Body.String())
		}
	}
}

func TestPromptsEndpoint(t *testing.T) {
	e := newTestEnv(t, Deps{})
	e.provider.answers = []string{`Here you go: ["What changed?", "What did you try?"]`}

	w, out := e.do(t, http.MethodPost, "/gemini/prompts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("prompts: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Cache-Control"), "no-store") {
		t.Fatalf("missing no-store header: %v", w.Header())
	}
	if ps := out["prompts"].([]any); len(ps) != 2 || ps[0] != "What changed?" {
		t.Fatalf("unexpected prompts: %v", ps)
	}

	w, out = e.do(t, http.MethodPost, "/gemini/prompts", `{"summaries":[]}`)
	if w.Code != http.StatusOK || len(out["prompts"].([]any)) != len(socratic.DefaultPrompts) {
		t.Fatalf("fallback: %d %s", w.Code, w.Body.String())
	}
}

func TestGeneration_MissingCredential(t *testing.T) {
	e := newTestEnv(t, Deps{})
	e.provider.err = ai.ErrMissingCredential

	w, out := e.do(t, http.MethodPost, "/gemini/prompts", "")
	if w.Code != http.StatusServiceUnavailable || out["error"] == nil {
		t.Fatalf("expected 503, got %d %s", w.Code, w.Body.String())
	}
	// other handlers keep working
	if w, _ := e.do(t, http.MethodPost, "/conversations", ""); w.Code != http.StatusOK {
		t.Fatalf("create should still work: %d", w.Code)
	}
}

func TestRoutingErrors(t *testing.T) {
	e := newTestEnv(t, Deps{})

	w, out := e.do(t, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound || out["error"] != "route not found" {
		t.Fatalf("no route: %d %s", w.Code, w.Body.String())
	}
	w, out = e.do(t, http.MethodPut, "/conversations", "")
	if w.Code != http.StatusMethodNotAllowed || out["error"] != "method not allowed" {
		t.Fatalf("no method: %d %s", w.Code, w.Body.String())
	}
	if w, _ := e.do(t, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
}

type memJobStore struct {
	mu     sync.Mutex
	jobs   map[string]jobs.Job
	claims map[string]string
}

func (m *memJobStore) SaveJob(_ context.Context, j *jobs.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = *j
	return nil
}

func (m *memJobStore) GetJob(_ context.Context, id string) (*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return &j, nil
}

func (m *memJobStore) Claim(_ context.Context, scope, key, jobID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.claims[scope+"|"+key]; ok {
		return existing, false, nil
	}
	m.claims[scope+"|"+key] = jobID
	return jobID, true, nil
}

func (m *memJobStore) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, scope+"|"+key)
	return nil
}

type nopPublisher struct{}

func (nopPublisher) PublishJob(context.Context, string) error { return nil }

func TestReplies(t *testing.T) {
	disabled := newTestEnv(t, Deps{})
	id := disabled.createConversation(t, "")
	if w, _ := disabled.do(t, http.MethodPost, "/conversations/"+id+"/replies", `{"user":"hi"}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without queue, got %d", w.Code)
	}

	store := &memJobStore{jobs: map[string]jobs.Job{}, claims: map[string]string{}}
	convs := disabled.convs
	e := newTestEnv(t, Deps{Conversations: convs, Jobs: jobs.NewService(store, nopPublisher{}, convs, nil)})

	w, out := e.do(t, http.MethodPost, "/conversations/"+id+"/replies", `{"user":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("enqueue: %d %s", w.Code, w.Body.String())
	}
	jobID := out["jobId"].(string)

	w, out = e.do(t, http.MethodGet, "/jobs/"+jobID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get job: %d %s", w.Code, w.Body.String())
	}
	if job := out["job"].(map[string]any); job["status"] != "queued" || job["conversationId"] != id {
		t.Fatalf("unexpected job: %v", job)
	}
	if w, _ := e.do(t, http.MethodGet, "/jobs/01HZZZZZZZZZZZZZZZZZZZZZZZ", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing job: %d", w.Code)
	}
}
