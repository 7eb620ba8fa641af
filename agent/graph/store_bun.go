package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PostgresConfig configures the bun-backed graph store.
type PostgresConfig struct {
	DSN string `envconfig:"DSN" split_words:"true" required:"true"`
}

// NewPostgresDB opens a bun handle over pgdriver.
func NewPostgresDB(cfg PostgresConfig) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

type graphRecord struct {
	bun.BaseModel `bun:"table:task_graphs,alias:tg"`

	SessionID string          `bun:"session_id,pk"`
	Graph     json.RawMessage `bun:"graph,type:jsonb,notnull"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}

// BunStore persists task graphs in Postgres, one JSONB row per session.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(db *bun.DB) (*BunStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &BunStore{db: db}, nil
}

// Init creates the backing table if it does not exist.
func (s *BunStore) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*graphRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create task_graphs table: %w", err)
	}
	return nil
}

func (s *BunStore) Load(ctx context.Context, sessionID string) (*TaskGraph, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	rec := new(graphRecord)
	err := s.db.NewSelect().
		Model(rec).
		Where("session_id = ?", sessionID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGraphNotFound
		}
		return nil, fmt.Errorf("select task graph: %w", err)
	}

	var g TaskGraph
	if err := json.Unmarshal(rec.Graph, &g); err != nil {
		return nil, fmt.Errorf("unmarshal task graph: %w", err)
	}

	g.EnsureMaps()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task graph loaded from store: %w", err)
	}
	return &g, nil
}

func (s *BunStore) Save(ctx context.Context, g *TaskGraph) error {
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

	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal task graph: %w", err)
	}

	rec := &graphRecord{
		SessionID: g.SessionID,
		Graph:     payload,
		UpdatedAt: g.UpdatedAt,
	}
	_, err = s.db.NewInsert().
		Model(rec).
		On("CONFLICT (session_id) DO UPDATE").
		Set("graph = EXCLUDED.graph").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert task graph: %w", err)
	}
	return nil
}

func (s *BunStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	_, err := s.db.NewDelete().
		Model((*graphRecord)(nil)).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete task graph: %w", err)
	}
	return nil
}
