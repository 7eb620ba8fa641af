package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	upstashx "github.com/kittipos/Casemate-Support-Resolution-Engine/pkg/upstash"
)

const (
	defaultGraphKeyPrefix = "casemate:graph:"
	defaultGraphTTL       = 24 * time.Hour
)

// RedisOption customizes RedisStore.
type RedisOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// WithTTL sets the session expiry. This is the only reclamation mechanism
// besides an explicit cleanup signal; zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// RedisStore persists task graphs in Upstash Redis via REST, one JSON blob
// per session.
type RedisStore struct {
	client    *upstashx.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisStore(client *upstashx.Client, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("upstash client is required")
	}

	store := &RedisStore{
		client:    client,
		keyPrefix: defaultGraphKeyPrefix,
		ttl:       defaultGraphTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return store, nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*TaskGraph, error) {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return nil, err
	}

	encoded, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, upstashx.ErrKeyNotFound) {
			return nil, ErrGraphNotFound
		}
		return nil, err
	}

	var g TaskGraph
	if err := json.Unmarshal([]byte(encoded), &g); err != nil {
		return nil, fmt.Errorf("unmarshal task graph: %w", err)
	}

	g.EnsureMaps()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task graph loaded from store: %w", err)
	}
	return &g, nil
}

func (s *RedisStore) Save(ctx context.Context, g *TaskGraph) error {
	if g == nil {
		return ErrNilGraph
	}
	if strings.TrimSpace(g.SessionID) == "" {
		return ErrInvalidSession
	}
	g.EnsureMaps()
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid task graph: %w", err)
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now().UTC()
	} else {
		g.UpdatedAt = g.UpdatedAt.UTC()
	}

	key, err := s.redisKey(g.SessionID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal task graph: %w", err)
	}
	return s.client.Set(ctx, key, string(payload), s.ttl)
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, key)
}

func (s *RedisStore) redisKey(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return s.keyPrefix + sessionID, nil
}
