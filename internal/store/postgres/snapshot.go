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

func (c *Client) SaveSnapshot(ctx context.Context, snapshot change.Snapshot) error {
	dataJSON, err := json.Marshal(snapshot.Data)
	if err != nil {
		return fmt.Errorf("encoding snapshot data: %w", err)
	}

	_, err = c.pool.Exec(ctx, `
INSERT INTO snapshots (environment, entity_type, entity_id, version_id, created_at, data)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (environment, entity_type, entity_id, version_id) DO UPDATE SET
    created_at = EXCLUDED.created_at,
    data = EXCLUDED.data
`,
		snapshot.Environment,
		snapshot.EntityType,
		snapshot.EntityID,
		snapshot.VersionID,
		snapshot.Timestamp,
		dataJSON,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (c *Client) GetSnapshot(ctx context.Context, environment, entityType, entityID, versionID string) (*change.Snapshot, error) {
	row := c.pool.QueryRow(ctx, `
SELECT version_id, created_at, data
FROM snapshots
WHERE environment = $1 AND entity_type = $2 AND entity_id = $3 AND version_id = $4
`, environment, entityType, entityID, versionID)
	return scanSnapshot(row, environment, entityType, entityID)
}

func (c *Client) GetSnapshotAt(ctx context.Context, environment, entityType, entityID string, asOf time.Time) (*change.Snapshot, error) {
	row := c.pool.QueryRow(ctx, `
SELECT version_id, created_at, data
FROM snapshots
WHERE environment = $1 AND entity_type = $2 AND entity_id = $3 AND created_at <= $4
ORDER BY created_at DESC
LIMIT 1
`, environment, entityType, entityID, asOf)
	return scanSnapshot(row, environment, entityType, entityID)
}

func (c *Client) GetEarliestSnapshot(ctx context.Context, environment, entityType, entityID string) (*change.Snapshot, error) {
	row := c.pool.QueryRow(ctx, `
SELECT version_id, created_at, data
FROM snapshots
WHERE environment = $1 AND entity_type = $2 AND entity_id = $3
ORDER BY created_at ASC
LIMIT 1
`, environment, entityType, entityID)
	return scanSnapshot(row, environment, entityType, entityID)
}

func (c *Client) ListSnapshotVersions(ctx context.Context, environment, entityType, entityID string, limit int) ([]change.Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := c.pool.Query(ctx, `
SELECT version_id, created_at, data
FROM snapshots
WHERE environment = $1 AND entity_type = $2 AND entity_id = $3
ORDER BY created_at DESC
LIMIT $4
`, environment, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot versions: %w", err)
	}
	defer rows.Close()

	var snapshots []change.Snapshot
	for rows.Next() {
		snapshot := change.Snapshot{Environment: environment, EntityType: entityType, EntityID: entityID}
		var dataBytes []byte
		if err := rows.Scan(&snapshot.VersionID, &snapshot.Timestamp, &dataBytes); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal(dataBytes, &snapshot.Data); err != nil {
			return nil, fmt.Errorf("decoding snapshot data: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot rows: %w", err)
	}
	return snapshots, nil
}

func (c *Client) PruneSnapshots(ctx context.Context, environment string, before time.Time) (int64, error) {
	tag, err := c.pool.Exec(ctx, `
DELETE FROM snapshots WHERE environment = $1 AND created_at < $2
`, environment, before)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSnapshot(row pgx.Row, environment, entityType, entityID string) (*change.Snapshot, error) {
	snapshot := change.Snapshot{Environment: environment, EntityType: entityType, EntityID: entityID}
	var dataBytes []byte
	err := row.Scan(&snapshot.VersionID, &snapshot.Timestamp, &dataBytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if err := json.Unmarshal(dataBytes, &snapshot.Data); err != nil {
		return nil, fmt.Errorf("decoding snapshot data: %w", err)
	}
	return &snapshot, nil
}
