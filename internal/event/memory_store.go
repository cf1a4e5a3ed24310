package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a Store backed by a slice, ordered by creation.
// Thread-safe.
type InMemoryStore struct {
	mu      sync.Mutex
	records []RawRecord
	subs    hub
	now     func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{now: time.Now}
}

// Subscribe implements Store.
func (s *InMemoryStore) Subscribe(ctx context.Context, filter Filter, fn func([]RawRecord)) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := newSubscription(filter, fn)

	s.mu.Lock()
	s.subs.add(sub)
	sub.push(filterRecords(s.records, filter))
	s.mu.Unlock()

	return s.subs.unsubscribe(sub), nil
}

// List implements Store.
func (s *InMemoryStore) List(ctx context.Context, filter Filter) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterRecords(s.records, filter), nil
}

// Create implements Store.
func (s *InMemoryStore) Create(ctx context.Context, ev NewEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.New().String()
	s.Put(ev.record(id, s.now().UTC()))
	return id, nil
}

// Put inserts r as-is, or replaces the record with the same id, and notifies
// subscribers. It accepts records a NewEvent cannot express, such as events
// that were never geocoded.
func (s *InMemoryStore) Put(r RawRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.records {
		if s.records[i].ID == r.ID {
			s.records[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		s.records = append(s.records, r)
	}
	s.broadcast()
}

// Delete removes the record with the given id and notifies subscribers.
// It reports whether a record was removed. It is a test hook: the service
// never deletes events.
func (s *InMemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			s.records = append(s.records[:i:i], s.records[i+1:]...)
			s.broadcast()
			return true
		}
	}
	return false
}

// Subscribers returns the number of live subscriptions. It is a test hook
// for checking that consumers release their subscription.
func (s *InMemoryStore) Subscribers() int {
	return s.subs.Len()
}

// broadcast must be called with s.mu held so pushes follow write order.
func (s *InMemoryStore) broadcast() {
	for _, sub := range s.subs.list() {
		sub.push(filterRecords(s.records, sub.filter))
	}
}
