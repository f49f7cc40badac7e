package entity

import "time"

// Checkpoint statuses.
const (
	CheckpointRunning  = "running"
	CheckpointComplete = "complete"
	CheckpointFailed   = "failed"
)

// Checkpoint mirrors the per-dimension progress hash kept in Redis. While
// a dimension is running, Cursor is the next page to fetch: every page
// before it was durably handed to storage, so a resumed run picks up there
// without re-emitting committed pages. Progress only ever advances; Clear
// is the explicit restart path.
type Checkpoint struct {
	Source    string
	Dimension string
	Cursor    string
	Status    string
	Records   int64
	UpdatedAt time.Time
}
