package repository

import (
	"context"

	"github.com/user/medcrawl/internal/entity"
)

// CheckpointRepository stores per-(source, dimension) crawl progress so an
// interrupted run can resume without re-emitting records already handed to
// storage.
type CheckpointRepository interface {
	// Get returns the checkpoint for a dimension, or nil if none exists.
	Get(ctx context.Context, source, dimension string) (*entity.Checkpoint, error)
	// Put stores the checkpoint. Implementations pick retention from the
	// checkpoint status (completed dimensions are kept longer).
	Put(ctx context.Context, cp *entity.Checkpoint) error
	// Clear removes all progress for a source. Explicit restart only.
	Clear(ctx context.Context, source string) error
}
