package ragbase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/levkin/ragbase/core/chunker"
	"github.com/levkin/ragbase/core/indexer"
	"github.com/levkin/ragbase/core/pack"
	"github.com/levkin/ragbase/core/retrieval"
	"github.com/levkin/ragbase/core/rewrite"
	"github.com/levkin/ragbase/database"
	"github.com/levkin/ragbase/embedding"
	"github.com/levkin/ragbase/embedding/local"
	"github.com/levkin/ragbase/helper"
	"github.com/levkin/ragbase/llm"
	"github.com/levkin/ragbase/model"
	"github.com/levkin/ragbase/render"
	loadSql "github.com/levkin/ragbase/sql"
	"github.com/levkin/ragbase/vectorstore"
	"github.com/levkin/ragbase/vectorstore/pgvector"
	"github.com/levkin/ragbase/vectorstore/qdrant"
)

// RagBase provides a unified interface to the knowledge-base core: document
// ingestion, the background indexing worker, hybrid retrieval, query
// rewriting and context packing.
type RagBase struct {
	DB        *helper.Database
	Documents *database.DocumentsDBHandler
	Chunks    *database.ChunksDBHandler
	Jobs      *database.JobsDBHandler
	Search    *database.SearchDBHandler
	Vectors   vectorstore.Store
	Embedder  embedding.Provider
	Worker    *indexer.Worker
	Engine    *retrieval.Engine
	Rewriter  *rewrite.Rewriter
	Packer    *pack.Builder
	// Logging
	log      *slog.Logger
	resolver *registryResolver
}

type settings struct {
	logger         *slog.Logger
	vectors        vectorstore.Store
	embedder       embedding.Provider
	llmProvider    llm.Provider
	rewriteTimeout time.Duration
	pollInterval   time.Duration
	cacheSize      int
}

// Option configures a RagBase instance.
type Option func(*settings)

// WithLogger replaces the default pretty console logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithVectorStore replaces the default Qdrant store built from QDRANT_URL
// and QDRANT_API_KEY.
func WithVectorStore(store vectorstore.Store) Option {
	return func(s *settings) { s.vectors = store }
}

// WithEmbeddingProvider sets the default embedding provider. Without it a
// local ONNX sentence-transformer model is loaded.
func WithEmbeddingProvider(provider embedding.Provider) Option {
	return func(s *settings) { s.embedder = provider }
}

// WithLLMProvider enables the LLM-backed query rewriter. Without it the
// rewriter always falls back to the original query.
func WithLLMProvider(provider llm.Provider) Option {
	return func(s *settings) { s.llmProvider = provider }
}

// WithRewriteTimeout bounds the rewrite LLM call.
func WithRewriteTimeout(timeout time.Duration) Option {
	return func(s *settings) { s.rewriteTimeout = timeout }
}

// WithWorkerPollInterval overrides the indexing worker's poll interval.
func WithWorkerPollInterval(interval time.Duration) Option {
	return func(s *settings) { s.pollInterval = interval }
}

// WithEmbeddingCacheSize sizes the LRU cache in front of the embedding
// provider.
func WithEmbeddingCacheSize(size int) Option {
	return func(s *settings) { s.cacheSize = size }
}

// New creates a RagBase instance with all handlers initialized and the
// indexing worker wired but not started.
func New(config *helper.DatabaseConfiguration, opts ...Option) (*RagBase, error) {
	s := &settings{
		rewriteTimeout: rewrite.DefaultTimeout,
		cacheSize:      4096,
	}
	for _, opt := range opts {
		opt(s)
	}

	logger := s.logger
	if logger == nil {
		handlerOpts := helper.PrettyHandlerOptions{
			SlogOpts: slog.HandlerOptions{
				Level: slog.LevelInfo,
			},
		}
		logger = slog.New(helper.NewPrettyHandler(os.Stdout, handlerOpts))
	}

	// Initialize database
	db := helper.NewDatabase("ragbase", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers, documents first so the chunk and job tables can
	// reference them. force=false to not reload if functions already exist.
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	jobs, err := database.NewJobsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create jobs handler", err)
	}

	search, err := database.NewSearchDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create search handler", err)
	}

	// Default to Qdrant when QDRANT_URL is set, otherwise keep the vectors
	// in the same postgres instance via pgvector.
	vectors := s.vectors
	if vectors == nil {
		if url := os.Getenv("QDRANT_URL"); url != "" {
			vectors = qdrant.New(qdrant.Config{
				URL:    url,
				APIKey: os.Getenv("QDRANT_API_KEY"),
			})
		} else {
			vectors, err = pgvector.New(db)
			if err != nil {
				return nil, helper.NewError("create pgvector store", err)
			}
		}
	}

	embedder := s.embedder
	if embedder == nil {
		localProvider, err := local.New()
		if err != nil {
			return nil, helper.NewError("create local embedding provider", err)
		}
		embedder = localProvider
	}
	cached, err := embedding.NewCache(embedder, s.cacheSize)
	if err != nil {
		return nil, helper.NewError("create embedding cache", err)
	}

	resolver := newRegistryResolver(documents)
	resolver.setProvider(DefaultProviderID, cached)

	var workerOpts []indexer.Option
	if s.pollInterval > 0 {
		workerOpts = append(workerOpts, indexer.WithPollInterval(s.pollInterval))
	}
	worker := indexer.NewWorker(jobs, chunks, resolver, vectors, render.NewTemplateRenderer(), logger, workerOpts...)

	engine := retrieval.NewEngine(search, vectors, cached, logger)
	rewriter := rewrite.NewRewriter(s.llmProvider, s.rewriteTimeout, logger)

	return &RagBase{
		DB:        db,
		Documents: documents,
		Chunks:    chunks,
		Jobs:      jobs,
		Search:    search,
		Vectors:   vectors,
		Embedder:  cached,
		Worker:    worker,
		Engine:    engine,
		Rewriter:  rewriter,
		Packer:    pack.NewBuilder(),
		log:       logger,
		resolver:  resolver,
	}, nil
}

// RegisterEmbeddingProvider makes a named provider available to indexing
// policies via their EmbeddingProviderID.
func (r *RagBase) RegisterEmbeddingProvider(id string, provider embedding.Provider) {
	r.resolver.setProvider(id, provider)
}

// SetIndexingPolicy sets the chunking and embedding policy for a knowledge
// base. Bases without a policy use defaults.
func (r *RagBase) SetIndexingPolicy(baseRID uuid.UUID, policy model.IndexingPolicy) {
	r.resolver.setPolicy(baseRID, policy)
}

// Chunk splits normalized document text into budget-bounded pieces without
// touching the database.
func (r *RagBase) Chunk(text string, cfg model.ChunkingConfig) []chunker.Piece {
	return chunker.Chunk(text, cfg)
}

// IngestDocument inserts the document metadata, registers its content for
// the indexing worker and enqueues an indexing job. The content itself is
// not stored in the database.
func (r *RagBase) IngestDocument(doc *model.Document) (*model.IndexingJob, error) {
	if doc.Content == "" {
		return nil, helper.NewError("ingest document", fmt.Errorf("document content is empty"))
	}

	// Store content aside and clear it before the insert, the documents
	// table only holds metadata.
	content := doc.Content
	doc.Content = ""

	if err := r.Documents.InsertDocument(doc); err != nil {
		return nil, helper.NewError("insert document", err)
	}
	r.resolver.setContent(doc.RID, content)

	r.log.Info("Ingested document",
		slog.String("document_rid", doc.RID.String()),
		slog.String("title", doc.Title))

	job := &model.IndexingJob{
		WorkspaceRID: doc.WorkspaceRID,
		BaseRID:      doc.BaseRID,
		DocumentRID:  doc.RID,
		JobType:      model.JobTypeIndex,
	}
	if err := r.Jobs.EnqueueJob(job); err != nil {
		return nil, helper.NewError("enqueue indexing job", err)
	}
	return job, nil
}

// ReindexDocument enqueues a fresh indexing job for an already ingested
// document, producing a new chunk set once processed.
func (r *RagBase) ReindexDocument(doc *model.Document) (*model.IndexingJob, error) {
	if !r.resolver.hasContent(doc.RID) {
		return nil, helper.NewError("reindex document", fmt.Errorf("content for document %s is not registered", doc.RID))
	}

	job := &model.IndexingJob{
		WorkspaceRID: doc.WorkspaceRID,
		BaseRID:      doc.BaseRID,
		DocumentRID:  doc.RID,
		JobType:      model.JobTypeReindex,
	}
	if err := r.Jobs.EnqueueJob(job); err != nil {
		return nil, helper.NewError("enqueue reindexing job", err)
	}
	return job, nil
}

// StartIndexingWorker launches the background poll loop. Calling it on a
// running worker is a no-op.
func (r *RagBase) StartIndexingWorker(ctx context.Context) {
	r.Worker.Start(ctx)
}

// StopIndexingWorker stops the poll loop and waits for an in-flight job to
// finish.
func (r *RagBase) StopIndexingWorker() {
	r.Worker.Stop()
}

// HybridRetrieve runs the lexical and vector channels concurrently and
// returns the merged ranked results. A zero-value config uses the defaults.
func (r *RagBase) HybridRetrieve(ctx context.Context, scope retrieval.Scope, query string, cfg model.HybridConfig) ([]*model.RetrievalResult, error) {
	if cfg.Lexical.Weight == 0 && cfg.Vector.Weight == 0 {
		collection := cfg.Collection
		cfg = model.DefaultHybridConfig()
		cfg.Collection = collection
	}
	return r.Engine.Retrieve(ctx, scope, query, cfg)
}

// RewriteQuery resolves anaphoric follow-up questions against the
// conversation history. It never fails, degraded calls fall back to the
// original query.
func (r *RagBase) RewriteQuery(ctx context.Context, query string, history []model.HistoryMessage) model.RewriteResult {
	return r.Rewriter.Rewrite(ctx, query, history)
}

// BuildContextPack assembles retrieval results into a token-bounded context
// block with citations for the answering LLM.
func (r *RagBase) BuildContextPack(query string, results []*model.RetrievalResult, budgetTokens int) pack.Packed {
	return r.Packer.Build(query, results, budgetTokens)
}

// Close stops the worker, releases the embedding provider if it holds
// resources and closes the database connection.
func (r *RagBase) Close() error {
	if r.Worker != nil {
		r.Worker.Stop()
	}

	if closer, ok := r.Embedder.(io.Closer); ok {
		if err := closer.Close(); err != nil && r.log != nil {
			r.log.Warn("Closing embedding provider failed", slog.String("error", err.Error()))
		}
	}

	if r.DB != nil && r.DB.Instance != nil {
		return r.DB.Instance.Close()
	}
	return nil
}
