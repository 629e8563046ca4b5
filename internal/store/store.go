// Package store holds the authoritative, append-only event log of a board.
//
// A Store assigns sequence ids, keeps the log in memory and optionally writes
// every accepted event through to a durable Backend. Only the relay hub
// appends; readers get copies and never see the backing slice.
package store

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/shared-canvas/backend/internal/model"
)

// Backend persists a board's events. repository.EventRepository implements it.
type Backend interface {
	Insert(ctx context.Context, boardID string, ev model.BoardEvent) error
	Load(ctx context.Context, boardID string) ([]model.BoardEvent, uint64, error)
	DeleteBefore(ctx context.Context, boardID string, seq uint64) error
}

// Store is the session store of one board.
type Store struct {
	boardID          string
	backend          Backend
	compactThreshold int
	now              func() time.Time

	mu        sync.RWMutex
	events    []model.BoardEvent
	lastSeq   uint64
	lastClear int // index of the latest clear in events, -1 if none
}

// Option configures a Store.
type Option func(*Store)

// WithBackend writes every appended event through to b.
func WithBackend(b Backend) Option {
	return func(s *Store) { s.backend = b }
}

// WithCompactThreshold compacts automatically once at least n events sit
// before the latest clear. Zero disables automatic compaction.
func WithCompactThreshold(n int) Option {
	return func(s *Store) { s.compactThreshold = n }
}

// WithClock overrides the clock used to stamp AcceptedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store for a board.
func New(boardID string, opts ...Option) *Store {
	s := &Store{
		boardID:   boardID,
		now:       time.Now,
		lastClear: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a store and hydrates it from its backend, if any. Only the
// effective history is loaded; the sequence counter continues after the
// highest id the backend has seen.
func Open(ctx context.Context, boardID string, opts ...Option) (*Store, error) {
	s := New(boardID, opts...)
	if s.backend == nil {
		return s, nil
	}

	events, lastSeq, err := s.backend.Load(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load board %s: %w", boardID, err)
	}
	s.events = events
	s.lastSeq = lastSeq
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].IsClear() {
			s.lastClear = i
			break
		}
	}
	return s, nil
}

// BoardID returns the board this store belongs to.
func (s *Store) BoardID() string {
	return s.boardID
}

// Append assigns the next sequence id to ev and appends it. The returned
// event carries the id and acceptance time. When the backend fails nothing
// is appended and the id is not consumed.
func (s *Store) Append(ctx context.Context, ev model.BoardEvent) (model.BoardEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev = ev.Clone()
	ev.SequenceID = s.lastSeq + 1
	ev.AcceptedAt = s.now().UTC()

	if s.backend != nil {
		if err := s.backend.Insert(ctx, s.boardID, ev); err != nil {
			return model.BoardEvent{}, err
		}
	}

	s.events = append(s.events, ev)
	s.lastSeq = ev.SequenceID
	if ev.IsClear() {
		s.lastClear = len(s.events) - 1
		if s.compactThreshold > 0 && s.lastClear >= s.compactThreshold {
			if _, err := s.compactLocked(ctx); err != nil {
				log.Printf("Failed to compact board %s: %v", s.boardID, err)
			}
		}
	}

	return ev.Clone(), nil
}

// SnapshotSince returns the events after cursor in sequence order. With
// model.NoCursor it returns the effective history: everything from the
// latest clear onward, or the whole log if nothing was cleared.
func (s *Store) SnapshotSince(cursor uint64) []model.BoardEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var from int
	if cursor == model.NoCursor {
		from = max(s.lastClear, 0)
	} else {
		from = sort.Search(len(s.events), func(i int) bool {
			return s.events[i].SequenceID > cursor
		})
	}

	out := make([]model.BoardEvent, 0, len(s.events)-from)
	for _, ev := range s.events[from:] {
		out = append(out, ev.Clone())
	}
	return out
}

// Compact drops every event before the latest clear and returns how many
// were removed. The effective history is unchanged.
func (s *Store) Compact(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactLocked(ctx)
}

func (s *Store) compactLocked(ctx context.Context) (int, error) {
	if s.lastClear <= 0 {
		return 0, nil
	}

	if s.backend != nil {
		if err := s.backend.DeleteBefore(ctx, s.boardID, s.events[s.lastClear].SequenceID); err != nil {
			return 0, err
		}
	}

	removed := s.lastClear
	kept := make([]model.BoardEvent, len(s.events)-removed)
	copy(kept, s.events[removed:])
	s.events = kept
	s.lastClear = 0
	return removed, nil
}

// LastSequenceID returns the highest id assigned so far, 0 if none.
func (s *Store) LastSequenceID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq
}

// Len returns the number of retained events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
