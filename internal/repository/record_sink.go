package repository

import (
	"context"

	"github.com/user/medcrawl/internal/entity"
)

// RecordSink is the storage capability validated records are handed to.
// Upsert must be idempotent on each record's natural key: the orchestrator
// delivers at least once.
type RecordSink interface {
	Upsert(ctx context.Context, records []entity.Record) error
}
