package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"configtrack/internal/change"
)

// SaveCommit writes the commit body and moves the latest pointer in one
// transaction. Postgres has no native key expiry; retention is enforced
// by the prune command.
func (c *Client) SaveCommit(ctx context.Context, commit *change.ConfigCommit) error {
	changesJSON, err := json.Marshal(commit.Changes)
	if err != nil {
		return fmt.Errorf("encoding commit changes: %w", err)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning commit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO commits (environment, hash, parent, chat_id, message, user_request, created_at, changes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`,
		commit.Environment,
		commit.Hash,
		commit.Parent,
		commit.ChatID,
		commit.Message,
		commit.UserRequest,
		commit.Timestamp,
		changesJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting commit: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO latest_commits (environment, hash) VALUES ($1, $2)
ON CONFLICT (environment) DO UPDATE SET hash = EXCLUDED.hash
`, commit.Environment, commit.Hash)
	if err != nil {
		return fmt.Errorf("updating latest pointer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing commit transaction: %w", err)
	}
	return nil
}

func (c *Client) GetCommit(ctx context.Context, environment, hash string) (*change.ConfigCommit, error) {
	row := c.pool.QueryRow(ctx, `
SELECT hash, parent, chat_id, message, user_request, created_at, changes
FROM commits
WHERE environment = $1 AND hash = $2
`, environment, hash)

	commit := change.ConfigCommit{Environment: environment}
	var changesBytes []byte
	err := row.Scan(
		&commit.Hash,
		&commit.Parent,
		&commit.ChatID,
		&commit.Message,
		&commit.UserRequest,
		&commit.Timestamp,
		&changesBytes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading commit: %w", err)
	}
	if err := json.Unmarshal(changesBytes, &commit.Changes); err != nil {
		return nil, fmt.Errorf("decoding commit changes: %w", err)
	}
	return &commit, nil
}

func (c *Client) LatestHash(ctx context.Context, environment string) (string, error) {
	var hash string
	err := c.pool.QueryRow(ctx, `SELECT hash FROM latest_commits WHERE environment = $1`, environment).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading latest hash: %w", err)
	}
	return hash, nil
}

func (c *Client) ListCommits(ctx context.Context, environment string, limit int) ([]change.ConfigCommit, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := c.pool.Query(ctx, `
SELECT hash, parent, chat_id, message, user_request, created_at, changes
FROM commits
WHERE environment = $1
ORDER BY created_at DESC
LIMIT $2
`, environment, limit)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	defer rows.Close()

	var commits []change.ConfigCommit
	for rows.Next() {
		commit := change.ConfigCommit{Environment: environment}
		var changesBytes []byte
		err := rows.Scan(
			&commit.Hash,
			&commit.Parent,
			&commit.ChatID,
			&commit.Message,
			&commit.UserRequest,
			&commit.Timestamp,
			&changesBytes,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning commit: %w", err)
		}
		if err := json.Unmarshal(changesBytes, &commit.Changes); err != nil {
			return nil, fmt.Errorf("decoding commit changes: %w", err)
		}
		commits = append(commits, commit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commit rows: %w", err)
	}
	return commits, nil
}

// PruneCommits deletes commits older than the cutoff, clearing the
// latest pointer when the commit it names no longer exists.
func (c *Client) PruneCommits(ctx context.Context, environment string, before time.Time) (int64, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning prune transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
DELETE FROM commits WHERE environment = $1 AND created_at < $2
`, environment, before)
	if err != nil {
		return 0, fmt.Errorf("pruning commits: %w", err)
	}

	_, err = tx.Exec(ctx, `
DELETE FROM latest_commits lc
WHERE lc.environment = $1
  AND NOT EXISTS (
    SELECT 1 FROM commits c WHERE c.environment = lc.environment AND c.hash = lc.hash
  )
`, environment)
	if err != nil {
		return 0, fmt.Errorf("clearing latest pointer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing prune transaction: %w", err)
	}
	return tag.RowsAffected(), nil
}
