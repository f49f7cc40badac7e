package response

import "time"

// RunSummaryResponse is a DTO for a crawl run, mirroring entity.RunSummary.
type RunSummaryResponse struct {
	Source           string     `json:"source"`
	State            string     `json:"state"`
	Stored           int64      `json:"records_stored"`
	ExtractionErrors int64      `json:"extraction_errors"`
	DimensionsFailed []string   `json:"dimensions_failed,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Error            string     `json:"error,omitempty"`
}

type StartRunResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Source  string `json:"source"`
}
