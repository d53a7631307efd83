// Package vectorstore defines the vector database port used by indexing and
// retrieval, together with the deterministic point id derivation.
package vectorstore

import (
	"context"

	"github.com/google/uuid"
)

// Point is one vector record with its payload.
type Point struct {
	ID      uuid.UUID      `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ScoredPoint is a search hit with its similarity score.
type ScoredPoint struct {
	ID      uuid.UUID      `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Store is the vector database port. Collections are workspace-scoped;
// EnsureCollection is idempotent.
type Store interface {
	// EnsureCollection creates the collection for the given vector length
	// if it does not exist yet.
	EnsureCollection(ctx context.Context, collection string, vectorLength int) error
	// Upsert writes points in one batch. With wait set the call returns
	// only after the write is acknowledged.
	Upsert(ctx context.Context, collection string, points []Point, wait bool) error
	// Search returns the limit nearest points by cosine similarity.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]ScoredPoint, error)
	// DeletePoints removes the given points from the collection. Unknown
	// ids are ignored.
	DeletePoints(ctx context.Context, collection string, ids []uuid.UUID) error
	// DeleteCollection drops the collection and all its points.
	DeleteCollection(ctx context.Context, collection string) error
}

// pointNamespace is the UUID namespace for deterministic point ids.
var pointNamespace = uuid.MustParse("9f2c1c3e-5b7a-4d42-9c38-6e1f0a7d8b21")

// PointID derives a stable, collision-resistant point id for a chunk. The
// same chunk always maps to the same point, so re-indexing overwrites
// instead of duplicating.
func PointID(chunkRID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(pointNamespace, chunkRID[:])
}

// CollectionName builds the canonical per-workspace collection name.
func CollectionName(workspaceRID uuid.UUID) string {
	return "ws_" + workspaceRID.String()
}
