package event

import (
	"context"
	"sync"
)

// Filter restricts a subscription or listing. The zero value matches every event.
type Filter struct {
	PartnerID string
}

// Matches reports whether r passes the filter.
func (f Filter) Matches(r RawRecord) bool {
	return f.PartnerID == "" || r.PartnerID == f.PartnerID
}

// Unsubscribe releases a subscription. It is safe to call more than once and
// returns only once the callback can no longer run. It must not be called from
// inside the callback.
type Unsubscribe func()

// Store is the live event data collaborator.
type Store interface {
	// Subscribe pushes the current matching set to fn right away and the full
	// matching set again after every change. Deliveries are serialized per
	// subscriber; when fn falls behind only the latest set is delivered.
	Subscribe(ctx context.Context, filter Filter, fn func([]RawRecord)) (Unsubscribe, error)

	// List returns the current matching set, oldest first.
	List(ctx context.Context, filter Filter) ([]RawRecord, error)

	// Create persists a new event and returns its generated id.
	Create(ctx context.Context, ev NewEvent) (string, error)
}

// subscription delivers record sets to one callback on its own goroutine.
type subscription struct {
	filter Filter
	fn     func([]RawRecord)

	mu      sync.Mutex
	pending []RawRecord
	ready   bool
	version uint64

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func newSubscription(filter Filter, fn func([]RawRecord)) *subscription {
	s := &subscription{
		filter: filter,
		fn:     fn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.run()
	return s
}

// push replaces any undelivered set with records.
func (s *subscription) push(records []RawRecord) {
	s.mu.Lock()
	s.pending = records
	s.ready = true
	s.mu.Unlock()
	s.signal()
}

// pushVersion is push for sets read by concurrent queries. version must be
// taken before the query starts; a set older than one already accepted is
// dropped so a slow query cannot overwrite a newer result. It reports whether
// records were accepted.
func (s *subscription) pushVersion(version uint64, records []RawRecord) bool {
	s.mu.Lock()
	if version < s.version {
		s.mu.Unlock()
		return false
	}
	s.version = version
	s.pending = records
	s.ready = true
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	defer close(s.exited)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		records, ready := s.pending, s.ready
		s.pending, s.ready = nil, false
		s.mu.Unlock()

		if !ready {
			continue
		}
		select {
		case <-s.done:
			return
		default:
		}
		s.fn(records)
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
	<-s.exited
}

// hub tracks the live subscriptions of a store.
type hub struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func (h *hub) add(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[*subscription]struct{})
	}
	h.subs[s] = struct{}{}
}

func (h *hub) remove(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

func (h *hub) list() []*subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*subscription, 0, len(h.subs))
	for s := range h.subs {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live subscriptions.
func (h *hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) unsubscribe(s *subscription) Unsubscribe {
	return func() {
		h.remove(s)
		s.stop()
	}
}

func filterRecords(records []RawRecord, f Filter) []RawRecord {
	out := make([]RawRecord, 0, len(records))
	for _, r := range records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
