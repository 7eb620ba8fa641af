package policy

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
	defaultStateKeyPrefix = "casemate:policy:"
	defaultStateTTL       = 24 * time.Hour
)

// RedisStateStore persists policy state in Upstash Redis via REST.
type RedisStateStore struct {
	client    *upstashx.Client
	keyPrefix string
	ttl       time.Duration
}

type RedisStateOption func(*RedisStateStore)

func WithStateKeyPrefix(prefix string) RedisStateOption {
	return func(s *RedisStateStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithStateTTL(ttl time.Duration) RedisStateOption {
	return func(s *RedisStateStore) {
		s.ttl = ttl
	}
}

func NewRedisStateStore(client *upstashx.Client, opts ...RedisStateOption) (*RedisStateStore, error) {
	if client == nil {
		return nil, errors.New("upstash client is required")
	}
	store := &RedisStateStore{
		client:    client,
		keyPrefix: defaultStateKeyPrefix,
		ttl:       defaultStateTTL,
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

func (s *RedisStateStore) Load(ctx context.Context, sessionID string) (*State, error) {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return nil, err
	}

	encoded, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, upstashx.ErrKeyNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}

	var st State
	if err := json.Unmarshal([]byte(encoded), &st); err != nil {
		return nil, fmt.Errorf("unmarshal policy state: %w", err)
	}
	return &st, nil
}

func (s *RedisStateStore) Save(ctx context.Context, st *State) error {
	if st == nil {
		return ErrNilState
	}
	key, err := s.redisKey(st.SessionID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal policy state: %w", err)
	}
	return s.client.Set(ctx, key, string(payload), s.ttl)
}

func (s *RedisStateStore) Delete(ctx context.Context, sessionID string) error {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, key)
}

func (s *RedisStateStore) redisKey(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return s.keyPrefix + sessionID, nil
}
