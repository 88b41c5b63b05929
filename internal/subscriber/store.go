package subscriber

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"mev-alerts/internal/model"
)

// ErrNotFound reports an operation on an unknown subscriber.
var ErrNotFound = errors.New("subscriber not found")

// PersistenceError reports a failed durable write. The in-memory state is
// not changed when it is returned.
type PersistenceError struct {
	SubscriberID string
	Err          error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist subscriber %s: %v", e.SubscriberID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Backend durably stores subscriber records.
type Backend interface {
	Load(ctx context.Context) ([]model.Subscriber, error)
	Put(ctx context.Context, sub model.Subscriber) error
	Close() error
}

// Store owns the mapping from subscriber ID to settings. Writes are
// serialized behind a single lock and reach the backend before they become
// visible to readers.
type Store struct {
	backend Backend
	now     func() time.Time

	mu   sync.RWMutex
	subs map[string]model.Subscriber
}

// Open loads persisted subscribers from backend.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	if backend == nil {
		return nil, errors.New("subscriber backend is required")
	}
	loaded, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}

	subs := make(map[string]model.Subscriber, len(loaded))
	for _, sub := range loaded {
		if !sub.Stage.Valid() {
			sub.Stage = model.StageUnconfigured
		}
		subs[sub.ID] = sub
	}

	return &Store{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
		subs:    subs,
	}, nil
}

// Get returns the subscriber with the given ID.
func (s *Store) Get(id string) (model.Subscriber, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	return sub, ok
}

// Upsert persists sub and then publishes it.
func (s *Store) Upsert(ctx context.Context, sub model.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, sub)
}

// Update runs fn against the current record (ok=false when absent) and
// commits its result, all under the write lock. If fn returns an error
// nothing is written.
func (s *Store) Update(ctx context.Context, id string, fn func(cur model.Subscriber, ok bool) (model.Subscriber, error)) (model.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.subs[id]
	next, err := fn(cur, ok)
	if err != nil {
		return cur, err
	}
	next.ID = id
	if err := s.commit(ctx, next); err != nil {
		return cur, err
	}
	return next, nil
}

func (s *Store) commit(ctx context.Context, sub model.Subscriber) error {
	if sub.ID == "" {
		return errors.New("subscriber id is required")
	}
	sub.UpdatedAt = s.now()
	if err := s.backend.Put(ctx, sub); err != nil {
		return &PersistenceError{SubscriberID: sub.ID, Err: err}
	}
	s.subs[sub.ID] = sub
	return nil
}

// AllActive returns subscribers with notifications enabled, ordered by ID.
func (s *Store) AllActive() []model.Subscriber {
	return s.filter(func(sub model.Subscriber) bool { return sub.NotificationsEnabled })
}

// All returns every subscriber ordered by ID.
func (s *Store) All() []model.Subscriber {
	return s.filter(func(model.Subscriber) bool { return true })
}

func (s *Store) filter(keep func(model.Subscriber) bool) []model.Subscriber {
	s.mu.RLock()
	out := make([]model.Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		if keep(sub) {
			out = append(out, sub)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close flushes and releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}
