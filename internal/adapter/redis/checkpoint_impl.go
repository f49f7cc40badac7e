package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/internal/repository"
)

const progressPrefix = "crawl:progress:"

// Retention windows. Completed dimensions stay around longer so a
// follow-up run can skip them; running/failed entries expire soon enough
// to allow an eventual clean restart.
const (
	runningTTL  = 7 * 24 * time.Hour
	completeTTL = 30 * 24 * time.Hour
)

// CheckpointRepoImpl stores per-dimension crawl progress as Redis hashes.
type CheckpointRepoImpl struct {
	client *redis.Client
}

// NewCheckpointRepo creates a new instance of CheckpointRepoImpl.
func NewCheckpointRepo(client *redis.Client) *CheckpointRepoImpl {
	return &CheckpointRepoImpl{client: client}
}

func progressKey(source, dimension string) string {
	return fmt.Sprintf("%s%s:%s", progressPrefix, source, dimension)
}

// Get returns the checkpoint for a dimension, or nil when none exists.
func (r *CheckpointRepoImpl) Get(ctx context.Context, source, dimension string) (*entity.Checkpoint, error) {
	data, err := r.client.HGetAll(ctx, progressKey(source, dimension)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: reading checkpoint %s/%s: %v", repository.ErrStorageUnavailable, source, dimension, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	records, _ := strconv.ParseInt(data["records"], 10, 64)
	updated, _ := time.Parse(time.RFC3339, data["updated_at"])
	return &entity.Checkpoint{
		Source:    source,
		Dimension: dimension,
		Cursor:    data["cursor"],
		Status:    data["status"],
		Records:   records,
		UpdatedAt: updated,
	}, nil
}

// Put stores the checkpoint and refreshes its TTL by status.
func (r *CheckpointRepoImpl) Put(ctx context.Context, cp *entity.Checkpoint) error {
	key := progressKey(cp.Source, cp.Dimension)
	fields := map[string]any{
		"cursor":     cp.Cursor,
		"status":     cp.Status,
		"records":    strconv.FormatInt(cp.Records, 10),
		"updated_at": cp.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("%w: writing checkpoint %s/%s: %v", repository.ErrStorageUnavailable, cp.Source, cp.Dimension, err)
	}

	ttl := runningTTL
	if cp.Status == entity.CheckpointComplete {
		ttl = completeTTL
	}
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: setting checkpoint TTL %s/%s: %v", repository.ErrStorageUnavailable, cp.Source, cp.Dimension, err)
	}
	return nil
}

// Clear removes all progress for a source.
func (r *CheckpointRepoImpl) Clear(ctx context.Context, source string) error {
	pattern := fmt.Sprintf("%s%s:*", progressPrefix, source)

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: scanning checkpoints for %s: %v", repository.ErrStorageUnavailable, source, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: clearing checkpoints for %s: %v", repository.ErrStorageUnavailable, source, err)
	}
	return nil
}
