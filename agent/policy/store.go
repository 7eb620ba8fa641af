package policy

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	ErrStateNotFound  = errors.New("policy state not found")
	ErrNilState       = errors.New("policy state is nil")
	ErrInvalidSession = errors.New("session id is empty")
)

// StateStore persists per-session compliance state.
type StateStore interface {
	Load(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, st *State) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStateStore keeps policy state in process memory.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]State)}
}

func (s *MemoryStateStore) Load(ctx context.Context, sessionID string) (*State, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[sessionID]
	if !ok {
		return nil, ErrStateNotFound
	}
	cp := st
	return &cp, nil
}

func (s *MemoryStateStore) Save(ctx context.Context, st *State) error {
	if st == nil {
		return ErrNilState
	}
	if strings.TrimSpace(st.SessionID) == "" {
		return ErrInvalidSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.SessionID] = *st
	return nil
}

func (s *MemoryStateStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	return nil
}
