package ragbase

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/levkin/ragbase/core/indexer"
	"github.com/levkin/ragbase/database"
	"github.com/levkin/ragbase/embedding"
	"github.com/levkin/ragbase/model"
)

// DefaultProviderID is the embedding provider id used when a knowledge base
// has no explicit indexing policy.
const DefaultProviderID = "default"

// registryResolver loads job context from the documents table plus an
// in-process registry of document content, per-base indexing policies and
// named embedding providers. Document content is transient (the document
// store proper is an external collaborator), so it must be registered before
// a job for the document can be processed.
type registryResolver struct {
	documents *database.DocumentsDBHandler

	mu        sync.RWMutex
	contents  map[uuid.UUID]string
	policies  map[uuid.UUID]model.IndexingPolicy
	providers map[string]embedding.Provider
}

func newRegistryResolver(documents *database.DocumentsDBHandler) *registryResolver {
	return &registryResolver{
		documents: documents,
		contents:  map[uuid.UUID]string{},
		policies:  map[uuid.UUID]model.IndexingPolicy{},
		providers: map[string]embedding.Provider{},
	}
}

func (r *registryResolver) setContent(documentRID uuid.UUID, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contents[documentRID] = content
}

func (r *registryResolver) hasContent(documentRID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.contents[documentRID]
	return ok
}

func (r *registryResolver) dropContent(documentRID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contents, documentRID)
}

func (r *registryResolver) setPolicy(baseRID uuid.UUID, policy model.IndexingPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[baseRID] = policy
}

func (r *registryResolver) setProvider(id string, provider embedding.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[id] = provider
}

// Resolve implements indexer.Resolver. The cause is wrapped so the worker
// can tell a missing document from a database that is temporarily down.
func (r *registryResolver) Resolve(ctx context.Context, job *model.IndexingJob) (*indexer.Resolution, error) {
	doc, err := r.documents.SelectDocument(job.DocumentRID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", job.DocumentRID, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	content, ok := r.contents[doc.RID]
	if !ok {
		return nil, fmt.Errorf("content for document %s is not registered", doc.RID)
	}
	doc.Content = content

	policy, ok := r.policies[job.BaseRID]
	if !ok {
		policy = model.IndexingPolicy{
			Chunking:            model.DefaultChunkingConfig(),
			EmbeddingProviderID: DefaultProviderID,
		}
	}
	if policy.EmbeddingProviderID == "" {
		policy.EmbeddingProviderID = DefaultProviderID
	}

	// A missing provider is reported through a nil Provider so the worker
	// can name the provider id in the job's last error.
	return &indexer.Resolution{
		Document: doc,
		Policy:   policy,
		Provider: r.providers[policy.EmbeddingProviderID],
	}, nil
}
