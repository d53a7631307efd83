package database

import (
	"context"
	dbsql "database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/levkin/ragbase/helper"
	"github.com/levkin/ragbase/model"
	"github.com/levkin/ragbase/sql"
)

// ErrNoJob is returned by ClaimNextJob when no job is due.
var ErrNoJob = errors.New("no claimable job")

// JobsDBHandlerFunctions defines the interface for indexing job database operations.
type JobsDBHandlerFunctions interface {
	EnqueueJob(job *model.IndexingJob) error
	ClaimNextJob() (*model.IndexingJob, error)
	MarkJobProcessing(rid uuid.UUID) error
	MarkJobDone(rid uuid.UUID, chunkCount, totalChars, totalTokens int) error
	MarkJobFailed(rid uuid.UUID, lastError string) error
	ScheduleJobRetry(rid uuid.UUID, nextRetryAt time.Time, lastError string) error
	SelectJob(rid uuid.UUID) (*model.IndexingJob, error)
}

// JobsDBHandler handles indexing job database operations
type JobsDBHandler struct {
	db *helper.Database
}

// NewJobsDBHandler creates a new jobs database handler.
// It initializes the database connection and loads job-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewJobsDBHandler(db *helper.Database, force bool) (*JobsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	jobsDbHandler := &JobsDBHandler{
		db: db,
	}

	err := sql.LoadJobsSql(jobsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load jobs sql", err)
	}

	err = jobsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized JobsDBHandler")

	return jobsDbHandler, nil
}

// CreateTable creates the 'indexing_jobs' table in the database.
// If the table already exists, it does not create it again.
func (h *JobsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_jobs();`)
	if err != nil {
		log.Panicf("error initializing jobs table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table indexing_jobs")

	return nil
}

// EnqueueJob inserts a new indexing job. If an active job for the same
// document already exists, that job is returned instead of a new one.
func (h *JobsDBHandler) EnqueueJob(job *model.IndexingJob) error {
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 5
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM enqueue_job($1, $2, $3, $4, $5)`,
		job.WorkspaceRID,
		job.BaseRID,
		job.DocumentRID,
		job.JobType,
		job.MaxAttempts,
	)

	err := scanJob(row, job)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// ClaimNextJob claims the oldest due job and counts the attempt. Returns
// ErrNoJob when the queue is empty.
func (h *JobsDBHandler) ClaimNextJob() (*model.IndexingJob, error) {
	job := &model.IndexingJob{}
	row := h.db.Instance.QueryRow(`SELECT * FROM claim_next_job()`)

	err := scanJob(row, job)
	if errors.Is(err, dbsql.ErrNoRows) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return job, nil
}

// MarkJobProcessing moves a claimed job to the processing state
func (h *JobsDBHandler) MarkJobProcessing(rid uuid.UUID) error {
	job := &model.IndexingJob{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM mark_job_processing($1)`,
		rid,
	)

	err := scanJob(row, job)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// MarkJobDone finishes a job and records the indexing stats
func (h *JobsDBHandler) MarkJobDone(rid uuid.UUID, chunkCount, totalChars, totalTokens int) error {
	job := &model.IndexingJob{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM mark_job_done($1, $2, $3, $4)`,
		rid,
		chunkCount,
		totalChars,
		totalTokens,
	)

	err := scanJob(row, job)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// MarkJobFailed moves a job to the terminal failed state
func (h *JobsDBHandler) MarkJobFailed(rid uuid.UUID, lastError string) error {
	job := &model.IndexingJob{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM mark_job_failed($1, $2)`,
		rid,
		lastError,
	)

	err := scanJob(row, job)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// ScheduleJobRetry parks a job until nextRetryAt
func (h *JobsDBHandler) ScheduleJobRetry(rid uuid.UUID, nextRetryAt time.Time, lastError string) error {
	job := &model.IndexingJob{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM schedule_job_retry($1, $2, $3)`,
		rid,
		nextRetryAt,
		lastError,
	)

	err := scanJob(row, job)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectJob retrieves a job by RID
func (h *JobsDBHandler) SelectJob(rid uuid.UUID) (*model.IndexingJob, error) {
	job := &model.IndexingJob{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_job($1)`,
		rid,
	)

	err := scanJob(row, job)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return job, nil
}

func scanJob(row rowScanner, job *model.IndexingJob) error {
	return row.Scan(
		&job.ID,
		&job.RID,
		&job.WorkspaceRID,
		&job.BaseRID,
		&job.DocumentRID,
		&job.JobType,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.NextRetryAt,
		&job.LastError,
		&job.ChunkCount,
		&job.TotalChars,
		&job.TotalTokens,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}
