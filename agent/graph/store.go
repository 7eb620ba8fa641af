package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrGraphNotFound  = errors.New("task graph not found")
	ErrNilGraph       = errors.New("task graph is nil")
	ErrInvalidSession = errors.New("session id is empty")
)

// Store is the persistence contract for per-session task graphs. Graphs are
// keyed strictly by session id and fully isolated across sessions.
type Store interface {
	Load(ctx context.Context, sessionID string) (*TaskGraph, error)
	Save(ctx context.Context, g *TaskGraph) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore keeps graphs in process memory. Used by tests and local
// runs; safe for concurrent sessions.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[string]*TaskGraph
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{graphs: make(map[string]*TaskGraph)}
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*TaskGraph, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.graphs[sessionID]
	if !ok {
		return nil, ErrGraphNotFound
	}
	return g.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, g *TaskGraph) error {
	if g == nil {
		return ErrNilGraph
	}
	if strings.TrimSpace(g.SessionID) == "" {
		return ErrInvalidSession
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid task graph: %w", err)
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[g.SessionID] = g.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.graphs, sessionID)
	return nil
}
