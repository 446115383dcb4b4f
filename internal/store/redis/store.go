package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"configtrack/internal/change"
	"configtrack/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps commits and snapshots in redis with native per-key TTLs.
// A commit write is one pipelined transaction over the body, the
// chronological index and the latest pointer; index TTLs are refreshed on
// every write to an environment.
type Store struct {
	client      *redis.Client
	commitTTL   time.Duration
	snapshotTTL time.Duration
}

func New(client *redis.Client, commitTTL, snapshotTTL time.Duration) *Store {
	return &Store{client: client, commitTTL: commitTTL, snapshotTTL: snapshotTTL}
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}

func commitKey(env, hash string) string { return "commit:" + env + ":" + hash }
func commitIndexKey(env string) string  { return "commits:" + env }
func latestKey(env string) string       { return "latest:" + env }
func snapshotKey(env, t, id, v string) string {
	return "snapshot:" + env + ":" + t + ":" + id + ":" + v
}
func snapshotIndexKey(env, t, id string) string { return "snapshots:" + env + ":" + t + ":" + id }

func (s *Store) SaveCommit(ctx context.Context, commit *change.ConfigCommit) error {
	body, err := json.Marshal(commit)
	if err != nil {
		return fmt.Errorf("encoding commit: %w", err)
	}

	env := commit.Environment
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, commitKey(env, commit.Hash), body, s.commitTTL)
	pipe.ZAdd(ctx, commitIndexKey(env), redis.Z{
		Score:  float64(commit.Timestamp.UnixNano()),
		Member: commit.Hash,
	})
	pipe.Expire(ctx, commitIndexKey(env), s.commitTTL)
	pipe.Set(ctx, latestKey(env), commit.Hash, s.commitTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving commit: %w", err)
	}
	return nil
}

func (s *Store) GetCommit(ctx context.Context, environment, hash string) (*change.ConfigCommit, error) {
	raw, err := s.client.Get(ctx, commitKey(environment, hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading commit: %w", err)
	}
	var commit change.ConfigCommit
	if err := json.Unmarshal(raw, &commit); err != nil {
		return nil, fmt.Errorf("decoding commit: %w", err)
	}
	return &commit, nil
}

func (s *Store) LatestHash(ctx context.Context, environment string) (string, error) {
	hash, err := s.client.Get(ctx, latestKey(environment)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading latest hash: %w", err)
	}
	return hash, nil
}

func (s *Store) ListCommits(ctx context.Context, environment string, limit int) ([]change.ConfigCommit, error) {
	if limit <= 0 {
		limit = 10
	}
	hashes, err := s.client.ZRevRange(ctx, commitIndexKey(environment), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading commit index: %w", err)
	}

	commits := make([]change.ConfigCommit, 0, len(hashes))
	for _, hash := range hashes {
		commit, err := s.GetCommit(ctx, environment, hash)
		if err != nil {
			return nil, err
		}
		if commit == nil {
			// Body expired ahead of its index entry; skip it.
			continue
		}
		commits = append(commits, *commit)
	}
	return commits, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, snapshot change.Snapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	indexKey := snapshotIndexKey(snapshot.Environment, snapshot.EntityType, snapshot.EntityID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, snapshotKey(snapshot.Environment, snapshot.EntityType, snapshot.EntityID, snapshot.VersionID), body, s.snapshotTTL)
	pipe.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(snapshot.Timestamp.UnixNano()),
		Member: snapshot.VersionID,
	})
	pipe.Expire(ctx, indexKey, s.snapshotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, environment, entityType, entityID, versionID string) (*change.Snapshot, error) {
	raw, err := s.client.Get(ctx, snapshotKey(environment, entityType, entityID, versionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snapshot change.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *Store) GetSnapshotAt(ctx context.Context, environment, entityType, entityID string, asOf time.Time) (*change.Snapshot, error) {
	versions, err := s.client.ZRevRangeByScore(ctx, snapshotIndexKey(environment, entityType, entityID), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(asOf.UnixNano(), 10),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot index: %w", err)
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return s.GetSnapshot(ctx, environment, entityType, entityID, versions[0])
}

func (s *Store) GetEarliestSnapshot(ctx context.Context, environment, entityType, entityID string) (*change.Snapshot, error) {
	versions, err := s.client.ZRange(ctx, snapshotIndexKey(environment, entityType, entityID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot index: %w", err)
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return s.GetSnapshot(ctx, environment, entityType, entityID, versions[0])
}

func (s *Store) ListSnapshotVersions(ctx context.Context, environment, entityType, entityID string, limit int) ([]change.Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	versions, err := s.client.ZRevRange(ctx, snapshotIndexKey(environment, entityType, entityID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot index: %w", err)
	}

	snapshots := make([]change.Snapshot, 0, len(versions))
	for _, version := range versions {
		snapshot, err := s.GetSnapshot(ctx, environment, entityType, entityID, version)
		if err != nil {
			return nil, err
		}
		if snapshot == nil {
			continue
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, nil
}

// PruneCommits drops commit bodies and index entries older than the
// cutoff. The latest pointer is cleared when the commit it names was
// pruned.
func (s *Store) PruneCommits(ctx context.Context, environment string, before time.Time) (int64, error) {
	cutoff := strconv.FormatInt(before.UnixNano(), 10)
	indexKey := commitIndexKey(environment)

	expired, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + cutoff,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("reading commit index: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	latest, err := s.LatestHash(ctx, environment)
	if err != nil {
		return 0, err
	}

	pipe := s.client.TxPipeline()
	for _, hash := range expired {
		pipe.Del(ctx, commitKey(environment, hash))
		if hash == latest {
			pipe.Del(ctx, latestKey(environment))
		}
	}
	pipe.ZRemRangeByScore(ctx, indexKey, "-inf", "("+cutoff)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("pruning commits: %w", err)
	}
	return int64(len(expired)), nil
}

// PruneSnapshots drops index entries older than the cutoff. Snapshot
// bodies expire on their own TTL; this keeps the version indexes from
// accumulating members that point at expired bodies.
func (s *Store) PruneSnapshots(ctx context.Context, environment string, before time.Time) (int64, error) {
	var pruned int64
	cutoff := strconv.FormatInt(before.UnixNano(), 10)

	iter := s.client.Scan(ctx, 0, "snapshots:"+environment+":*", 100).Iterator()
	for iter.Next(ctx) {
		removed, err := s.client.ZRemRangeByScore(ctx, iter.Val(), "-inf", "("+cutoff).Result()
		if err != nil {
			return pruned, fmt.Errorf("pruning snapshot index %s: %w", iter.Val(), err)
		}
		pruned += removed
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("scanning snapshot indexes: %w", err)
	}
	return pruned, nil
}
