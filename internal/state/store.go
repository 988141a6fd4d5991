// Package state holds in-flight multi-turn operator conversations.
//
// Each operator has at most one live entry per Category. Entries are volatile:
// a process restart drops every conversation.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Category names a kind of conversation.
type Category string

const (
	CategoryBulkUpdate   Category = "bulk-update"
	CategorySingleUpdate Category = "single-update"
	CategoryDeleteLinks  Category = "delete-links"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryBulkUpdate, CategorySingleUpdate, CategoryDeleteLinks:
		return true
	}
	return false
}

type key struct {
	cat     Category
	adminID int64
}

type entry struct {
	payload Payload
	touched time.Time
}

// Store is a concurrency-safe map of (category, admin) to payload.
type Store struct {
	mu      sync.Mutex
	entries map[key]entry
	now     func() time.Time
	onSize  func(int)
	log     zerolog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for last-touched bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSizeObserver registers a callback invoked with the entry count after every change.
func WithSizeObserver(fn func(int)) Option {
	return func(s *Store) { s.onSize = fn }
}

// New creates an empty Store.
func New(logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		entries: make(map[key]entry),
		now:     time.Now,
		onSize:  func(int) {},
		log:     logger.With().Str("component", "state").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Set stores p for adminID, replacing any live entry of the same category.
func (s *Store) Set(adminID int64, p Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key{p.Category(), adminID}] = entry{payload: p, touched: s.now()}
	s.onSize(len(s.entries))
}

// Get returns the payload for (cat, adminID) and refreshes its last-touched time.
// Unknown categories are never present.
func (s *Store) Get(cat Category, adminID int64) (Payload, bool) {
	if !cat.Valid() {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{cat, adminID}
	e, ok := s.entries[k]
	if !ok {
		return nil, false
	}
	e.touched = s.now()
	s.entries[k] = e
	return e.payload, true
}

// Has reports whether (cat, adminID) has a live entry.
func (s *Store) Has(cat Category, adminID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key{cat, adminID}]
	return ok
}

// Delete removes (cat, adminID) and reports whether an entry existed.
func (s *Store) Delete(cat Category, adminID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{cat, adminID}
	if _, ok := s.entries[k]; !ok {
		return false
	}
	delete(s.entries, k)
	s.onSize(len(s.entries))
	return true
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Expire drops entries untouched for longer than idle and returns how many were dropped.
func (s *Store) Expire(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-idle)
	n := 0
	for k, e := range s.entries {
		if e.touched.Before(cutoff) {
			delete(s.entries, k)
			s.log.Info().
				Str("category", string(k.cat)).
				Int64("admin_id", k.adminID).
				Msg("dropping idle conversation")
			n++
		}
	}
	if n > 0 {
		s.onSize(len(s.entries))
	}
	return n
}

// RunJanitor evicts idle entries every interval until ctx is cancelled.
// A non-positive idle disables eviction.
func (s *Store) RunJanitor(ctx context.Context, idle, interval time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Expire(idle)
		}
	}
}

// Lookup returns the typed payload of category P for adminID.
func Lookup[P Payload](s *Store, adminID int64) (P, bool) {
	var zero P
	p, ok := s.Get(zero.Category(), adminID)
	if !ok {
		return zero, false
	}
	typed, ok := p.(P)
	return typed, ok
}
