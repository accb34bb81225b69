package jobs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ducktype/ducktype/internal/ai"
	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type memStore struct {
	mu     sync.Mutex
	jobs   map[string]Job
	claims map[string]string
	// saveErrs fail the next SaveJob calls in order.
	saveErrs []error
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]Job{}, claims: map[string]string{}}
}

func (m *memStore) SaveJob(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saveErrs) > 0 {
		err := m.saveErrs[0]
		m.saveErrs = m.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	m.jobs[j.ID] = *j
	return nil
}

func (m *memStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &j, nil
}

func (m *memStore) Claim(_ context.Context, scope, key, jobID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + "|" + key
	if existing, ok := m.claims[k]; ok {
		return existing, false, nil
	}
	m.claims[k] = jobID
	return jobID, true, nil
}

func (m *memStore) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, scope+"|"+key)
	return nil
}

type recordingPublisher struct {
	ids []string
	err error
}

func (p *recordingPublisher) PublishJob(_ context.Context, id string) error {
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}

type fakeCoach struct {
	turns     []ai.Message
	questions []string
	err       error
}

func (f *fakeCoach) Questions(_ context.Context, turns []ai.Message) ([]string, error) {
	f.turns = turns
	return f.questions, f.err
}

func newConversations(t *testing.T) *conversation.Service {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(conversation.Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return conversation.NewService(conversation.NewRepo(db))
}

func TestEnqueue_PublishesQueuedJob(t *testing.T) {
	ctx := context.Background()
	convs := newConversations(t)
	c, err := convs.Create(ctx, "u1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	store, pub := newMemStore(), &recordingPublisher{}
	svc := NewService(store, pub, convs, nil)

	j, err := svc.Enqueue(ctx, c.ID, "u1", "my loop hangs", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if j.Status != StatusQueued || j.ConversationID != c.ID || j.Prompt != "my loop hangs" {
		t.Fatalf("unexpected job: %+v", j)
	}
	if !reflect.DeepEqual(pub.ids, []string{j.ID}) {
		t.Fatalf("unexpected published ids: %v", pub.ids)
	}
}

func TestEnqueue_IdempotencyKey(t *testing.T) {
	ctx := context.Background()
	convs := newConversations(t)
	c, _ := convs.Create(ctx, "u1", "")
	store, pub := newMemStore(), &recordingPublisher{}
	svc := NewService(store, pub, convs, nil)

	first, err := svc.Enqueue(ctx, c.ID, "u1", "hello", "key-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := svc.Enqueue(ctx, c.ID, "u1", "hello", "key-1")
	if err != nil {
		t.Fatalf("enqueue again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same job, got %s and %s", first.ID, second.ID)
	}
	if len(pub.ids) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.ids))
	}
}

func TestEnqueue_Errors(t *testing.T) {
	ctx := context.Background()
	convs := newConversations(t)
	c, _ := convs.Create(ctx, "u1", "")

	if _, err := NewService(nil, nil, convs, nil).Enqueue(ctx, c.ID, "u1", "hi", ""); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}

	svc := NewService(newMemStore(), &recordingPublisher{}, convs, nil)
	if _, err := svc.Enqueue(ctx, c.ID, "u1", "   ", ""); !errors.Is(err, conversation.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Enqueue(ctx, c.ID, "intruder", "hi", ""); !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	store := newMemStore()
	failing := NewService(store, &recordingPublisher{err: errors.New("broker down")}, convs, nil)
	if _, err := failing.Enqueue(ctx, c.ID, "u1", "hi", ""); err == nil {
		t.Fatalf("expected publish error")
	}
	for _, j := range store.jobs {
		if j.Status != StatusFailed {
			t.Fatalf("unpublished job should be failed, got %s", j.Status)
		}
	}
}

func TestEnqueue_RetryAfterSaveFailure(t *testing.T) {
	ctx := context.Background()
	convs := newConversations(t)
	c, _ := convs.Create(ctx, "u1", "")
	store, pub := newMemStore(), &recordingPublisher{}
	store.saveErrs = []error{errors.New("redis blip")}
	svc := NewService(store, pub, convs, nil)

	if _, err := svc.Enqueue(ctx, c.ID, "u1", "hello", "key-1"); err == nil {
		t.Fatalf("expected save error")
	}
	j, err := svc.Enqueue(ctx, c.ID, "u1", "hello", "key-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if j == nil || j.Status != StatusQueued {
		t.Fatalf("unexpected job: %+v", j)
	}
	if !reflect.DeepEqual(pub.ids, []string{j.ID}) {
		t.Fatalf("unexpected published ids: %v", pub.ids)
	}
	again, err := svc.Enqueue(ctx, c.ID, "u1", "hello", "key-1")
	if err != nil || again.ID != j.ID {
		t.Fatalf("duplicate should return %s, got %+v %v", j.ID, again, err)
	}
}

func TestEnqueue_PublishFailureReleasesKey(t *testing.T) {
	ctx := context.Background()
	convs := newConversations(t)
	c, _ := convs.Create(ctx, "u1", "")
	store, pub := newMemStore(), &recordingPublisher{err: errors.New("broker down")}
	svc := NewService(store, pub, convs, nil)

	if _, err := svc.Enqueue(ctx, c.ID, "u1", "hello", "key-1"); err == nil {
		t.Fatalf("expected publish error")
	}
	pub.err = nil
	j, err := svc.Enqueue(ctx, c.ID, "u1", "hello", "key-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if j.Status != StatusQueued || !reflect.DeepEqual(pub.ids, []string{j.ID}) {
		t.Fatalf("retry should publish a fresh job, got %+v published=%v", j, pub.ids)
	}
}

func TestEnqueue_StaleClaimIsTakenOver(t *testing.T) {
	ctx := context.Background()
	convs := newConversations(t)
	c, _ := convs.Create(ctx, "u1", "")
	store, pub := newMemStore(), &recordingPublisher{}
	store.claims["u1:"+c.ID+"|key-1"] = "01HZZZZZZZZZZZZZZZZZZZZZZZ"
	svc := NewService(store, pub, convs, nil)

	j, err := svc.Enqueue(ctx, c.ID, "u1", "hello", "key-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if store.claims["u1:"+c.ID+"|key-1"] != j.ID || len(pub.ids) != 1 {
		t.Fatalf("claim not taken over: %v published=%v", store.claims, pub.ids)
	}
}

func TestGet_HidesOtherOwners(t *testing.T) {
	ctx := context.Background()
	convs := newConversations(t)
	c, _ := convs.Create(ctx, "u1", "")
	svc := NewService(newMemStore(), &recordingPublisher{}, convs, nil)

	j, err := svc.Enqueue(ctx, c.ID, "u1", "hi", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := svc.Get(ctx, j.ID, "u1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := svc.Get(ctx, j.ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(ctx, "nope", "u1"); !errors.Is(err, conversation.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestRunner_AppendsQuestions(t *testing.T) {
	ctx := context.Background()
	convs := newConversations(t)
	c, _ := convs.Create(ctx, "u1", "")
	if _, err := convs.AppendMessage(ctx, c.ID, "u1", "first", conversation.ListReply("What did you expect?")); err != nil {
		t.Fatalf("append: %v", err)
	}
	store := newMemStore()
	svc := NewService(store, &recordingPublisher{}, convs, nil)
	coach := &fakeCoach{questions: []string{"What changed?", "What did you try?"}}
	runner := NewRunner(svc, coach, nil)

	j, err := svc.Enqueue(ctx, c.ID, "u1", "second", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := runner.Run(ctx, j.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	wantTurns := []ai.Message{
		{Role: ai.RoleUser, Content: "first"},
		{Role: ai.RoleAssistant, Content: "What did you expect?"},
		{Role: ai.RoleUser, Content: "second"},
	}
	if !reflect.DeepEqual(coach.turns, wantTurns) {
		t.Fatalf("unexpected turns: %+v", coach.turns)
	}

	done, _ := store.GetJob(ctx, j.ID)
	if done.Status != StatusSucceeded || !reflect.DeepEqual(done.Questions, coach.questions) {
		t.Fatalf("unexpected job: %+v", done)
	}
	got, _ := convs.Get(ctx, c.ID, "u1")
	if len(got.Messages) != 2 || got.Messages[1].User != "second" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	if !reflect.DeepEqual(got.Messages[1].AI.Items(), coach.questions) {
		t.Fatalf("unexpected ai: %v", got.Messages[1].AI.Items())
	}

	// redelivery is a no-op
	if err := runner.Run(ctx, j.ID); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	got, _ = convs.Get(ctx, c.ID, "u1")
	if len(got.Messages) != 2 {
		t.Fatalf("redelivery appended again: %d messages", len(got.Messages))
	}
}

func TestRunner_InterruptedJobDoesNotAppendTwice(t *testing.T) {
	ctx := context.Background()
	convs := newConversations(t)
	c, _ := convs.Create(ctx, "u1", "")
	store := newMemStore()
	svc := NewService(store, &recordingPublisher{}, convs, nil)
	coach := &fakeCoach{questions: []string{"Should not be asked?"}}
	runner := NewRunner(svc, coach, nil)

	j, err := svc.Enqueue(ctx, c.ID, "u1", "why is it slow", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// a previous worker marked it running and stored the exchange, then died
	j.Status = StatusRunning
	j.UpdatedAt = svc.now()
	if err := store.SaveJob(ctx, j); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := convs.AppendMessage(ctx, c.ID, "u1", "why is it slow", conversation.ListReply("What did you measure?")); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := runner.Run(ctx, j.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if coach.turns != nil {
		t.Fatalf("coach should not be called again")
	}
	got, _ := convs.Get(ctx, c.ID, "u1")
	if len(got.Messages) != 1 {
		t.Fatalf("exchange appended twice: %d messages", len(got.Messages))
	}
	done, _ := store.GetJob(ctx, j.ID)
	if done.Status != StatusSucceeded || !reflect.DeepEqual(done.Questions, []string{"What did you measure?"}) {
		t.Fatalf("unexpected job: %+v", done)
	}
}

func TestRunner_MarksFailed(t *testing.T) {
	ctx := context.Background()
	convs := newConversations(t)
	c, _ := convs.Create(ctx, "u1", "")
	store := newMemStore()
	svc := NewService(store, &recordingPublisher{}, convs, nil)
	runner := NewRunner(svc, &fakeCoach{err: ai.ErrMissingCredential}, nil)

	j, err := svc.Enqueue(ctx, c.ID, "u1", "hi", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := runner.Run(ctx, j.ID); !errors.Is(err, ai.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	failed, _ := store.GetJob(ctx, j.ID)
	if failed.Status != StatusFailed || failed.Error == "" {
		t.Fatalf("unexpected job: %+v", failed)
	}
	if err := runner.Run(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	permanent := []error{
		ai.ErrMissingCredential,
		ErrNotFound,
		fmt.Errorf("load conversation: %w", conversation.ErrNotFound),
		fmt.Errorf("generate: %w", ai.ErrMissingCredential),
	}
	for _, err := range permanent {
		if Retryable(err) {
			t.Fatalf("%v should not be retried", err)
		}
	}
	if !Retryable(errors.New("append message: connection reset")) {
		t.Fatalf("transient errors should be retried")
	}
	if Retryable(nil) {
		t.Fatalf("nil is not a failure")
	}
}
