// Package auth holds the allowlist of Telegram users the bot serves.
package auth

import (
	"sort"
	"sync"
)

type Service struct {
	mu      sync.RWMutex
	allowed map[int64]struct{}
}

// New returns a service allowing exactly the given user IDs. An empty list
// allows nobody.
func New(ids []int64) *Service {
	s := &Service{allowed: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.allowed[id] = struct{}{}
	}
	return s
}

func (s *Service) IsAllowed(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.allowed[userID]
	return ok
}

func (s *Service) Allow(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[userID] = struct{}{}
}

func (s *Service) Remove(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allowed, userID)
}

// List returns the allowed IDs in ascending order.
func (s *Service) List() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.allowed))
	for id := range s.allowed {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
