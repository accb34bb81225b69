// Package redisstore keeps short-lived records in Redis: idempotency keys for message appends
// and reply jobs.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/ducktype/ducktype/internal/jobs"
	"github.com/redis/go-redis/v9"
)

// TTL applies to every record this package writes.
const TTL = 24 * time.Hour

type Store struct {
	rdb *redis.Client
}

var _ jobs.Store = (*Store)(nil)

func New(addr, password string, db int) *Store {
	return NewFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func messageKey(scope, key string) string { return "idem:msg:" + scope + ":" + key }
func claimKey(scope, key string) string   { return "idem:job:" + scope + ":" + key }
func jobKey(id string) string             { return "job:" + id }

// LookupMessage returns the message stored under an idempotency key, if any.
func (s *Store) LookupMessage(ctx context.Context, scope, key string) (*conversation.Message, bool, error) {
	b, err := s.rdb.Get(ctx, messageKey(scope, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var m conversation.Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, false, err
	}
	return &m, true, nil
}

func (s *Store) PutMessage(ctx context.Context, scope, key string, m *conversation.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, messageKey(scope, key), b, TTL).Err()
}

func (s *Store) Claim(ctx context.Context, scope, key, jobID string) (string, bool, error) {
	ok, err := s.rdb.SetNX(ctx, claimKey(scope, key), jobID, TTL).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return jobID, true, nil
	}
	existing, err := s.rdb.Get(ctx, claimKey(scope, key)).Result()
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

func (s *Store) Release(ctx context.Context, scope, key string) error {
	return s.rdb.Del(ctx, claimKey(scope, key)).Err()
}

func (s *Store) SaveJob(ctx context.Context, j *jobs.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(j.ID), b, TTL).Err()
}

func (s *Store) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	b, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, jobs.ErrNotFound
		}
		return nil, err
	}
	var j jobs.Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
