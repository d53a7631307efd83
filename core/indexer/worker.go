// Package indexer runs the background indexing pipeline: claim a job, chunk
// the document, embed the chunks, upsert the vectors and flip the latest
// chunk set.
package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/levkin/ragbase/core/chunker"
	"github.com/levkin/ragbase/database"
	"github.com/levkin/ragbase/embedding"
	"github.com/levkin/ragbase/model"
	"github.com/levkin/ragbase/render"
	"github.com/levkin/ragbase/vectorstore"
)

const defaultPollInterval = 5 * time.Second

// JobStore is the slice of job persistence the worker needs.
type JobStore interface {
	ClaimNextJob() (*model.IndexingJob, error)
	MarkJobProcessing(rid uuid.UUID) error
	MarkJobDone(rid uuid.UUID, chunkCount, totalChars, totalTokens int) error
	MarkJobFailed(rid uuid.UUID, lastError string) error
	ScheduleJobRetry(rid uuid.UUID, nextRetryAt time.Time, lastError string) error
}

// ChunkStore is the slice of chunk persistence the worker needs.
type ChunkStore interface {
	InsertChunkSet(documentRID uuid.UUID, set *model.ChunkSet) error
	InsertChunk(chunk *model.Chunk) error
	MarkChunkSetLatest(rid uuid.UUID) (*model.ChunkSet, error)
	SelectLatestChunkSet(documentRID uuid.UUID) (*model.ChunkSet, error)
	SelectChunksBySet(chunkSetRID uuid.UUID) ([]*model.Chunk, error)
	UpdateChunkVectorRecord(chunkRID uuid.UUID, vectorRecordID uuid.UUID) error
}

// Resolution is everything a job needs that lives outside the job row: the
// document with its content, the indexing policy of the knowledge base and
// the embedding provider the policy selects.
type Resolution struct {
	Document *model.Document
	Policy   model.IndexingPolicy
	Provider embedding.Provider
}

// Resolver loads the job context. A missing document or policy fails the job
// terminally; infrastructure failures during resolution are retried.
type Resolver interface {
	Resolve(ctx context.Context, job *model.IndexingJob) (*Resolution, error)
}

// Worker polls for indexing jobs and processes them one at a time.
type Worker struct {
	jobs     JobStore
	chunks   ChunkStore
	resolver Resolver
	vectors  vectorstore.Store
	renderer render.Renderer
	logger   *slog.Logger

	pollInterval time.Duration
	inFlight     atomic.Bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex
}

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval overrides the default 5s poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// NewWorker creates an indexing worker. It does not start polling.
func NewWorker(jobs JobStore, chunks ChunkStore, resolver Resolver, vectors vectorstore.Store, renderer render.Renderer, logger *slog.Logger, opts ...Option) *Worker {
	worker := &Worker{
		jobs:         jobs,
		chunks:       chunks,
		resolver:     resolver,
		vectors:      vectors,
		renderer:     renderer,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(worker)
	}
	return worker
}

// Start launches the poll loop. Calling Start on a running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("Indexing worker started", slog.Duration("poll_interval", w.pollInterval))
}

// Stop cancels the poll loop and waits for an in-flight job to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()

	w.logger.Info("Indexing worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Poll once immediately so tests and small deployments don't wait a
	// full interval for the first job.
	w.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll claims and processes at most one job. A poll arriving while a job is
// in flight is a no-op.
func (w *Worker) Poll(ctx context.Context) {
	if !w.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer w.inFlight.Store(false)

	job, err := w.jobs.ClaimNextJob()
	if err == database.ErrNoJob {
		return
	}
	if err != nil {
		w.logger.Error("Claiming indexing job failed", slog.String("error", err.Error()))
		return
	}

	w.logger.Info("Processing indexing job",
		slog.String("job_rid", job.RID.String()),
		slog.String("document_rid", job.DocumentRID.String()),
		slog.Int("attempt", job.Attempts))

	err = w.processJob(ctx, job)
	if err == nil {
		return
	}

	w.finishFailed(job, err)
}

// finishFailed decides between a scheduled retry and the terminal failed
// state, based on error kind and remaining attempts.
func (w *Worker) finishFailed(job *model.IndexingJob, jobErr error) {
	if Retryable(jobErr) && job.Attempts < job.MaxAttempts {
		retryAt := time.Now().Add(Backoff(job.Attempts))
		w.logger.Warn("Indexing job failed, retry scheduled",
			slog.String("job_rid", job.RID.String()),
			slog.Int("attempt", job.Attempts),
			slog.Time("next_retry_at", retryAt),
			slog.String("error", jobErr.Error()))

		if err := w.jobs.ScheduleJobRetry(job.RID, retryAt, jobErr.Error()); err != nil {
			w.logger.Error("Scheduling job retry failed", slog.String("error", err.Error()))
		}
		return
	}

	w.logger.Error("Indexing job failed terminally",
		slog.String("job_rid", job.RID.String()),
		slog.Int("attempts", job.Attempts),
		slog.String("error", jobErr.Error()))

	if err := w.jobs.MarkJobFailed(job.RID, jobErr.Error()); err != nil {
		w.logger.Error("Marking job failed failed", slog.String("error", err.Error()))
	}
}

func (w *Worker) processJob(ctx context.Context, job *model.IndexingJob) error {
	if err := w.jobs.MarkJobProcessing(job.RID); err != nil {
		return NewJobError(ErrKindTransient, "mark processing", err)
	}

	resolution, err := w.resolver.Resolve(ctx, job)
	if err != nil {
		// A missing document or policy is terminal, an unreachable
		// database is not.
		kind := ErrKindConfig
		if Retryable(err) {
			kind = ErrKindTransient
		}
		return NewJobError(kind, "resolve job", err)
	}
	if resolution.Provider == nil {
		return NewJobError(ErrKindConfig, "resolve job", fmt.Errorf("embedding provider %q not configured", resolution.Policy.EmbeddingProviderID))
	}

	doc := resolution.Document
	pieces := chunker.Chunk(doc.Content, resolution.Policy.Chunking)
	if len(pieces) == 0 {
		return NewJobError(ErrKindValidation, "chunk document", fmt.Errorf("document %s produced no chunks", doc.RID))
	}

	set := &model.ChunkSet{
		VersionID:  doc.VersionID,
		ConfigHash: resolution.Policy.Chunking.Hash(),
	}
	if err := w.chunks.InsertChunkSet(doc.RID, set); err != nil {
		return NewJobError(ErrKindTransient, "insert chunk set", err)
	}

	chunks := make([]*model.Chunk, len(pieces))
	totalChars := 0
	totalTokens := 0
	for i, piece := range pieces {
		chunk := &model.Chunk{
			ChunkSetID:  set.ID,
			Ordinal:     piece.Ordinal,
			Content:     piece.Content,
			StartChar:   piece.StartChar,
			EndChar:     piece.EndChar,
			TokenCount:  piece.TokenCount,
			SectionPath: piece.SectionPath,
			Heading:     piece.Heading,
			ContentHash: piece.ContentHash,
		}
		if err := w.chunks.InsertChunk(chunk); err != nil {
			return NewJobError(ErrKindTransient, "insert chunk", err)
		}
		chunks[i] = chunk
		totalChars += piece.EndChar - piece.StartChar
		totalTokens += piece.TokenCount
	}

	// Sequential embedding, first failure aborts the attempt.
	points := make([]vectorstore.Point, len(chunks))
	for i, chunk := range chunks {
		result, err := resolution.Provider.Embed(ctx, chunk.Content)
		if err != nil {
			kind := ErrKindConfig
			if Retryable(err) {
				kind = ErrKindTransient
			}
			return NewJobError(kind, fmt.Sprintf("embed chunk %d", chunk.Ordinal), err)
		}
		if len(result.Vector) == 0 {
			return NewJobError(ErrKindValidation, fmt.Sprintf("embed chunk %d", chunk.Ordinal), fmt.Errorf("provider returned an empty vector"))
		}

		payload, err := RenderPayload(w.renderer, resolution.Policy.PayloadSchema, doc, chunk)
		if err != nil {
			return NewJobError(ErrKindConfig, "render payload", err)
		}

		points[i] = vectorstore.Point{
			ID:      vectorstore.PointID(chunk.RID),
			Vector:  result.Vector,
			Payload: payload,
		}
	}

	// Remember which set the new one supersedes, so its points can be
	// removed once the latest flag has moved.
	previousSet, err := w.chunks.SelectLatestChunkSet(doc.RID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return NewJobError(ErrKindTransient, "load previous chunk set", err)
		}
		previousSet = nil
	}

	collection := vectorstore.CollectionName(job.WorkspaceRID)
	if err := w.vectors.EnsureCollection(ctx, collection, len(points[0].Vector)); err != nil {
		return NewJobError(ErrKindTransient, "ensure collection", err)
	}
	if err := w.vectors.Upsert(ctx, collection, points, true); err != nil {
		return NewJobError(ErrKindTransient, "upsert vectors", err)
	}

	for i, chunk := range chunks {
		if err := w.chunks.UpdateChunkVectorRecord(chunk.RID, points[i].ID); err != nil {
			return NewJobError(ErrKindTransient, "persist vector record", err)
		}
	}

	if _, err := w.chunks.MarkChunkSetLatest(set.RID); err != nil {
		return NewJobError(ErrKindTransient, "mark chunk set latest", err)
	}

	if previousSet != nil && previousSet.RID != set.RID {
		w.removeSupersededPoints(ctx, collection, previousSet)
	}

	if err := w.jobs.MarkJobDone(job.RID, len(chunks), totalChars, totalTokens); err != nil {
		return NewJobError(ErrKindTransient, "mark done", err)
	}

	w.logger.Info("Indexing job done",
		slog.String("job_rid", job.RID.String()),
		slog.Int("chunks", len(chunks)),
		slog.Int("total_tokens", totalTokens))

	return nil
}

// removeSupersededPoints drops the vector points of the chunk set that just
// lost the latest flag, so stale chunks stop surfacing in retrieval. The set
// rows stay in the database for history. A failure here is logged instead of
// retried because the new generation is already live.
func (w *Worker) removeSupersededPoints(ctx context.Context, collection string, set *model.ChunkSet) {
	chunks, err := w.chunks.SelectChunksBySet(set.RID)
	if err != nil {
		w.logger.Warn("Loading superseded chunks failed",
			slog.String("chunk_set_rid", set.RID.String()),
			slog.String("error", err.Error()))
		return
	}
	if len(chunks) == 0 {
		return
	}

	ids := make([]uuid.UUID, len(chunks))
	for i, chunk := range chunks {
		ids[i] = vectorstore.PointID(chunk.RID)
	}
	if err := w.vectors.DeletePoints(ctx, collection, ids); err != nil {
		w.logger.Warn("Removing superseded vector points failed",
			slog.String("chunk_set_rid", set.RID.String()),
			slog.String("error", err.Error()))
		return
	}

	w.logger.Info("Removed superseded vector points",
		slog.String("chunk_set_rid", set.RID.String()),
		slog.Int("points", len(ids)))
}
