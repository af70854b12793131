// Package cachestore wraps a storage.Backend with a read-through snapshot cache, a call timeout
// and a circuit breaker. When the backend is unavailable, the last document it returned is served
// with Stale set.
package cachestore

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/storage"
)

// Snapshot keys
const (
	freshKey = "fresh"
	lastKey  = "last-known-good"
)

const (
	defaultTimeout = 20 * time.Second

	breakerMinRequests  = 5
	breakerFailureRatio = 0.5
	breakerOpenTimeout  = 30 * time.Second
)

var errStaleSave = errors.New("refusing to save a stale snapshot")

type (
	// Recorder observes store traffic.
	Recorder interface {
		CacheLookup(hit bool)
		StoreCall(op string, d time.Duration, err error)
		BreakerState(name string, state gobreaker.State)
	}

	Options struct {
		Name      string
		TTL       time.Duration // freshness of a cached snapshot; 0 reads through every time
		Timeout   time.Duration // bound on each backend call
		Snapshots Snapshots     // nil disables both the fresh and last-known-good snapshots
		Logger    core.Logger
		Recorder  Recorder // optional
	}

	Store struct {
		backend   storage.Backend
		name      string
		ttl       time.Duration
		timeout   time.Duration
		snapshots Snapshots
		logger    core.Logger
		recorder  Recorder
		breaker   *gobreaker.CircuitBreaker[storage.Document]
	}
)

var _ storage.Backend = (*Store)(nil)

func New(backend storage.Backend, opts Options) *Store {
	s := &Store{
		backend:   backend,
		name:      opts.Name,
		ttl:       opts.TTL,
		timeout:   opts.Timeout,
		snapshots: opts.Snapshots,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
	}
	if s.name == "" {
		s.name = "store"
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	s.breaker = gobreaker.NewCircuitBreaker[storage.Document](gobreaker.Settings{
		Name:        s.name,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= breakerFailureRatio
		},
		// only an unreachable store trips the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || !core.IsStoreUnavailable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn(fmt.Sprintf("store circuit breaker %s: %s -> %s", name, from, to))
			s.recorder.BreakerState(name, to)
		},
	})
	s.recorder.BreakerState(s.name, gobreaker.StateClosed)
	return s
}

// Load serves the fresh snapshot when there is one, otherwise reads the backend.
// A retryable backend failure falls back to the last-known-good snapshot, marked Stale.
func (s *Store) Load(ctx context.Context) (storage.Document, error) {
	if s.ttl > 0 {
		if doc, ok := s.getSnapshot(ctx, freshKey); ok {
			s.recorder.CacheLookup(true)
			return doc, nil
		}
		s.recorder.CacheLookup(false)
	}

	doc, err := s.call(ctx, "load", func(ctx context.Context) (storage.Document, error) {
		return s.backend.Load(ctx)
	})
	if err != nil {
		if !core.IsStoreUnavailable(err) {
			return storage.Document{}, err
		}
		last, ok := s.getSnapshot(ctx, lastKey)
		if !ok {
			return storage.Document{}, err
		}
		s.logger.Warn(fmt.Sprintf("serving last-known-good snapshot (version %d): %v", last.Version, err))
		last.Stale = true
		return last, nil
	}

	doc.Stale = false
	if s.ttl > 0 {
		s.setSnapshot(ctx, freshKey, doc, s.ttl)
	}
	s.setSnapshot(ctx, lastKey, doc, 0)
	return doc, nil
}

// Save writes through to the backend and drops the fresh snapshot, also when the save conflicts.
func (s *Store) Save(ctx context.Context, doc storage.Document) error {
	if doc.Stale {
		return core.NewStoreError("save", errStaleSave, false)
	}
	_, err := s.call(ctx, "save", func(ctx context.Context) (storage.Document, error) {
		return storage.Document{}, s.backend.Save(ctx, doc)
	})
	if err == nil || errors.Is(err, core.ErrConflict) {
		s.deleteSnapshot(ctx, freshKey)
	}
	if err != nil {
		return err
	}

	saved := doc.Clone()
	saved.Version++
	s.setSnapshot(ctx, lastKey, saved, 0)
	return nil
}

func (s *Store) Close() error { return s.backend.Close() }

// call runs fn through the breaker with a timeout.
func (s *Store) call(ctx context.Context, op string, fn func(ctx context.Context) (storage.Document, error)) (storage.Document, error) {
	start := time.Now()
	doc, err := s.breaker.Execute(func() (storage.Document, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		doc, err := fn(ctx)
		if err != nil && ctx.Err() != nil && !core.IsStoreUnavailable(err) && !core.IsStoreFatal(err) {
			err = core.NewStoreError(op, err, false)
		}
		return doc, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = core.NewStoreError(op, err, false)
	}
	s.recorder.StoreCall(op, time.Since(start), err)
	return doc, err
}

// Snapshot failures never fail a store call.

func (s *Store) getSnapshot(ctx context.Context, key string) (storage.Document, bool) {
	if s.snapshots == nil {
		return storage.Document{}, false
	}
	doc, ok, err := s.snapshots.Get(ctx, key)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("reading %s snapshot: %v", key, err))
		return storage.Document{}, false
	}
	return doc, ok
}

func (s *Store) setSnapshot(ctx context.Context, key string, doc storage.Document, ttl time.Duration) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Set(ctx, key, doc, ttl); err != nil {
		s.logger.Warn(fmt.Sprintf("writing %s snapshot: %v", key, err))
	}
}

func (s *Store) deleteSnapshot(ctx context.Context, key string) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Delete(ctx, key); err != nil {
		s.logger.Warn(fmt.Sprintf("dropping %s snapshot: %v", key, err))
	}
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(bool)                       {}
func (nopRecorder) StoreCall(string, time.Duration, error) {}
func (nopRecorder) BreakerState(string, gobreaker.State)   {}
