package entity

import "time"

// RunState is the orchestrator's state machine position.
type RunState string

const (
	RunIdle           RunState = "idle"
	RunAuthenticating RunState = "authenticating"
	RunCrawling       RunState = "crawling"
	RunDraining       RunState = "draining"
	RunDone           RunState = "done"
	RunFailed         RunState = "failed"
)

// RunSummary is emitted at the end of every run, fatal ones included:
// progress already checkpointed is reported, not discarded.
type RunSummary struct {
	Source           string
	State            RunState
	Stored           int64
	DimensionsFailed []string
	ExtractionErrors int64
	StartedAt        time.Time
	FinishedAt       time.Time
	Err              string
}
