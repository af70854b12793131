package cachestore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/coursereview/storage"
)

const keyPrefix = "coursereview:"

// Snapshots keeps documents under a key, optionally expiring after ttl (0 = never).
// Get reports a missing or expired key with ok == false and no error.
type Snapshots interface {
	Get(ctx context.Context, key string) (doc storage.Document, ok bool, err error)
	Set(ctx context.Context, key string, doc storage.Document, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memEntry struct {
	doc     storage.Document
	expires time.Time // zero = never
}

// MemorySnapshots is a per-process Snapshots.
type MemorySnapshots struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{entries: make(map[string]memEntry), now: time.Now}
}

func (m *MemorySnapshots) Get(_ context.Context, key string) (storage.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return storage.Document{}, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return storage.Document{}, false, nil
	}
	return e.doc.Clone(), true, nil
}

func (m *MemorySnapshots) Set(_ context.Context, key string, doc storage.Document, ttl time.Duration) error {
	e := memEntry{doc: doc.Clone()}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshots) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// RedisSnapshots shares snapshots between processes, JSON encoded.
type RedisSnapshots struct {
	client *redis.Client
}

func NewRedisSnapshots(client *redis.Client) *RedisSnapshots {
	return &RedisSnapshots{client: client}
}

func (r *RedisSnapshots) Get(ctx context.Context, key string) (storage.Document, bool, error) {
	var doc storage.Document
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return doc, false, nil
		}
		return doc, false, errors.Wrap(err, "redis get snapshot")
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, false, errors.Wrap(err, "decoding snapshot")
	}
	doc.Normalize()
	return doc, true, nil
}

func (r *RedisSnapshots) Set(ctx context.Context, key string, doc storage.Document, ttl time.Duration) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}
	return errors.Wrap(r.client.Set(ctx, keyPrefix+key, data, ttl).Err(), "redis set snapshot")
}

func (r *RedisSnapshots) Delete(ctx context.Context, key string) error {
	return errors.Wrap(r.client.Del(ctx, keyPrefix+key).Err(), "redis del snapshot")
}
