package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"configtrack/internal/store"
)

var _ store.Store = (*Client)(nil)

type Client struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{pool: pool}, nil
}

func (c *Client) Close(ctx context.Context) error {
	c.pool.Close()
	return nil
}

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS commits (
    environment  TEXT NOT NULL,
    hash         TEXT NOT NULL,
    parent       TEXT DEFAULT '',
    chat_id      TEXT DEFAULT '',
    message      TEXT NOT NULL,
    user_request TEXT DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL,
    changes      JSONB NOT NULL DEFAULT '[]',
    CONSTRAINT pk_commit PRIMARY KEY (environment, hash)
);

CREATE TABLE IF NOT EXISTS latest_commits (
    environment TEXT PRIMARY KEY,
    hash        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    environment TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    version_id  TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    data        JSONB NOT NULL DEFAULT '{}',
    CONSTRAINT pk_snapshot PRIMARY KEY (environment, entity_type, entity_id, version_id)
);

CREATE INDEX IF NOT EXISTS idx_commits_env_time ON commits (environment, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_entity_time ON snapshots (environment, entity_type, entity_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_env_time ON snapshots (environment, created_at);
`
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
