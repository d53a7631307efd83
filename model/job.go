package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an indexing job.
type JobStatus string

const (
	JobStatusQueued         JobStatus = "queued"
	JobStatusClaimed        JobStatus = "claimed"
	JobStatusProcessing     JobStatus = "processing"
	JobStatusDone           JobStatus = "done"
	JobStatusFailed         JobStatus = "failed"
	JobStatusRetryScheduled JobStatus = "retry_scheduled"
)

// JobType identifies what triggered an indexing job.
type JobType string

const (
	JobTypeIndex   JobType = "index"
	JobTypeReindex JobType = "reindex"
)

// IndexingJob drives one document through the chunk -> embed -> upsert
// pipeline. Attempts is monotonically non-decreasing and bounded by
// MaxAttempts; LastError keeps the most recent failure for operators.
type IndexingJob struct {
	ID           int64      `json:"id"`
	RID          uuid.UUID  `json:"rid"`
	WorkspaceRID uuid.UUID  `json:"workspace_rid"`
	BaseRID      uuid.UUID  `json:"base_rid"`
	DocumentRID  uuid.UUID  `json:"document_rid"`
	JobType      JobType    `json:"job_type"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	ChunkCount   int        `json:"chunk_count"`
	TotalChars   int        `json:"total_chars"`
	TotalTokens  int        `json:"total_tokens"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j IndexingJob) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}
