// Package pgvector implements the vectorstore port on PostgreSQL with the
// pgvector extension. Every collection is its own table with an HNSW cosine
// index, so workspaces stay physically separated.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/levkin/ragbase/helper"
	"github.com/levkin/ragbase/vectorstore"
)

// Store implements vectorstore.Store on a pgvector-enabled database.
type Store struct {
	db *helper.Database
}

// New creates a pgvector-backed store and installs the vector extension.
func New(db *helper.Database) (*Store, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", errors.New("database connection is nil"))
	}

	_, err := db.Instance.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`)
	if err != nil {
		return nil, helper.NewError("create vector extension", err)
	}

	db.Logger.Info("Initialized pgvector store")

	return &Store{db: db}, nil
}

// tableName maps a collection name onto a safe SQL identifier.
func tableName(collection string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, collection)
	return "vec_" + sanitized
}

// EnsureCollection creates the collection table and its HNSW index if absent.
func (s *Store) EnsureCollection(ctx context.Context, collection string, vectorLength int) error {
	if vectorLength <= 0 {
		return helper.NewError("ensure collection", fmt.Errorf("invalid vector length %d", vectorLength))
	}
	table := tableName(collection)

	_, err := s.db.Instance.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			embedding VECTOR(%d) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}'::jsonb
		);`, table, vectorLength))
	if err != nil {
		return helper.NewError("create collection table", err)
	}

	_, err = s.db.Instance.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops);`,
		table, table))
	if err != nil {
		return helper.NewError("create collection index", err)
	}

	s.db.Logger.Info("Checked/created vector collection", slog.String("collection", collection))

	return nil
}

// Upsert writes all points in one transaction; the commit is the write
// acknowledgment when wait is set.
func (s *Store) Upsert(ctx context.Context, collection string, points []vectorstore.Point, wait bool) error {
	if len(points) == 0 {
		return nil
	}
	table := tableName(collection)

	tx, err := s.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin upsert transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, embedding, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload;`, table))
	if err != nil {
		return helper.NewError("prepare upsert", err)
	}
	defer stmt.Close()

	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return helper.NewError("marshal payload", err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, pgvector.NewVector(p.Vector), payload); err != nil {
			return helper.NewError("upsert point", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit upsert", err)
	}

	_ = wait
	return nil
}

// Search returns the limit nearest points by cosine similarity.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int) ([]vectorstore.ScoredPoint, error) {
	if limit <= 0 {
		limit = 10
	}
	table := tableName(collection)

	rows, err := s.db.Instance.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, payload, 1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2;`, table),
		pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, helper.NewError("similarity search", err)
	}
	defer rows.Close()

	var results []vectorstore.ScoredPoint
	for rows.Next() {
		var (
			id      uuid.UUID
			payload []byte
			score   float64
		)
		if err := rows.Scan(&id, &payload, &score); err != nil {
			return nil, helper.NewError("scan", err)
		}
		point := vectorstore.ScoredPoint{ID: id, Score: score}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &point.Payload); err != nil {
				return nil, helper.NewError("unmarshal payload", err)
			}
		}
		results = append(results, point)
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("iterate rows", err)
	}

	return results, nil
}

// DeletePoints removes points by id. Unknown ids are ignored.
func (s *Store) DeletePoints(ctx context.Context, collection string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]string, len(ids))
	for i, id := range ids {
		pointIDs[i] = id.String()
	}

	_, err := s.db.Instance.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = ANY($1::uuid[]);`, tableName(collection)),
		pq.Array(pointIDs))
	if err != nil {
		return helper.NewError("delete points", err)
	}
	return nil
}

// DeleteCollection drops the collection table.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	_, err := s.db.Instance.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, tableName(collection)))
	if err != nil {
		return helper.NewError("drop collection", err)
	}
	return nil
}

var _ vectorstore.Store = (*Store)(nil)
