package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is a copy of a conversation; mutating it does not affect the store.
type Session struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type entry struct {
	turns     []Turn
	createdAt time.Time
	updatedAt time.Time
	// serializes requests for the same session
	req sync.Mutex
	// requests holding or waiting for req, guarded by Store.mu
	lockers int
}

// Store keeps conversation history in process memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*entry), now: time.Now}
}

// NewID generates an identifier for a caller that did not supply one.
func NewID() string {
	return uuid.NewString()
}

func (s *Store) GetOrCreate(id string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(id)
	return Session{
		ID:        id,
		Turns:     append([]Turn(nil), e.turns...),
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
	}
}

func (s *Store) AppendTurn(id string, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(id)
	now := s.now()
	e.turns = append(e.turns, Turn{Role: role, Content: content, At: now})
	e.updatedAt = now
}

// Turns returns a copy of the session history, empty for unknown sessions.
func (s *Store) Turns(id string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return append([]Turn(nil), e.turns...)
}

// Lock blocks until no other request holds the session and returns the
// matching unlock. Callers hold it for a whole request so that two messages
// for one session cannot interleave their turns.
func (s *Store) Lock(id string) func() {
	s.mu.Lock()
	e := s.entryLocked(id)
	e.lockers++
	s.mu.Unlock()

	e.req.Lock()
	return func() {
		e.req.Unlock()
		s.mu.Lock()
		e.lockers--
		s.mu.Unlock()
	}
}

// Reset clears the session history. The entry itself stays so that a
// request holding the session lock keeps excluding newer ones.
func (s *Store) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return
	}
	e.turns = nil
	e.updatedAt = s.now()
}

// Sweep evicts sessions idle for longer than ttl. Sessions with a request
// holding or waiting for the lock are kept.
func (s *Store) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	removed := 0
	for id, e := range s.sessions {
		if e.updatedAt.After(cutoff) {
			continue
		}
		if e.lockers > 0 {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) entryLocked(id string) *entry {
	e, ok := s.sessions[id]
	if !ok {
		now := s.now()
		e = &entry{createdAt: now, updatedAt: now}
		s.sessions[id] = e
	}
	return e
}
