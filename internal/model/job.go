package model

import "time"

const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// ExtractionJob records a single extraction attempt. It leaves the processing
// state exactly once.
type ExtractionJob struct {
	ID          string            `json:"id"`
	AccountID   int64             `json:"account_id"`
	URL         string            `json:"url"`
	Status      string            `json:"status"`
	Error       *string           `json:"error,omitempty"`
	DurationMS  *int64            `json:"duration_ms,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Product     *ExtractedProduct `json:"product,omitempty"`
}

// JobEvent is published when a job changes state.
type JobEvent struct {
	AccountID int64
	JobID     string
	Status    string
	URL       string
	Error     string
}
