// Package history keeps a bounded, ordered log of conversation turns per
// identity.
package history

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is the number of turns retained per identity.
const DefaultCapacity = 3

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrEmptyTurn is returned by NewTurn for blank content.
var ErrEmptyTurn = errors.New("turn content is empty")

// Turn is one role-tagged message. Values are never modified after creation.
type Turn struct {
	Role    Role
	Content string
}

// NewTurn validates content and builds a Turn.
func NewTurn(role Role, content string) (Turn, error) {
	if strings.TrimSpace(content) == "" {
		return Turn{}, ErrEmptyTurn
	}
	return Turn{Role: role, Content: content}, nil
}

// ring is a fixed-capacity FIFO. head indexes the oldest element.
type ring struct {
	buf     []Turn
	head    int
	size    int
	touched time.Time
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Turn, capacity)}
}

func (r *ring) push(t Turn) {
	capacity := len(r.buf)
	if r.size < capacity {
		r.buf[(r.head+r.size)%capacity] = t
		r.size++
		return
	}
	// full: overwrite the oldest slot and advance head
	r.buf[r.head] = t
	r.head = (r.head + 1) % capacity
}

func (r *ring) last() (Turn, bool) {
	if r.size == 0 {
		return Turn{}, false
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)], true
}

func (r *ring) items() []Turn {
	out := make([]Turn, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Store indexes one ring per identity. Logs never share state.
type Store struct {
	capacity int
	rings    map[string]*ring
	mu       sync.RWMutex
	now      func() time.Time
}

// NewStore creates a store retaining at most capacity turns per identity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		rings:    make(map[string]*ring),
		now:      time.Now,
	}
}

// Capacity returns K.
func (s *Store) Capacity() int {
	return s.capacity
}

// Append pushes turn at the tail of identity's log, evicting the oldest turn
// once the log is full.
func (s *Store) Append(identity string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[identity]
	if !ok {
		r = newRing(s.capacity)
		s.rings[identity] = r
	}
	r.push(turn)
	r.touched = s.now()
}

// Snapshot returns a copy of identity's log, oldest first.
func (s *Store) Snapshot(identity string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[identity]
	if !ok {
		return nil
	}
	return r.items()
}

// Last returns the most recently appended turn.
func (s *Store) Last(identity string) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[identity]
	if !ok {
		return Turn{}, false
	}
	return r.last()
}

// Len returns the number of turns held for identity.
func (s *Store) Len(identity string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.rings[identity]; ok {
		return r.size
	}
	return 0
}

// Clear drops identity's log.
func (s *Store) Clear(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, identity)
}

// Identities returns how many identities currently hold a log.
func (s *Store) Identities() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rings)
}

// PruneIdle drops logs whose last append is older than ttl and returns how
// many were removed. A non-positive ttl disables pruning.
func (s *Store) PruneIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, r := range s.rings {
		if r.touched.Before(cutoff) {
			delete(s.rings, id)
			removed++
		}
	}
	return removed
}
