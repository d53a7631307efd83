package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/levkin/ragbase/helper"
	"github.com/levkin/ragbase/model"
	"github.com/levkin/ragbase/sql"
)

// ChunksDBHandlerFunctions defines the interface for chunk set database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunkSet(documentRID uuid.UUID, set *model.ChunkSet) error
	InsertChunk(chunk *model.Chunk) error
	MarkChunkSetLatest(rid uuid.UUID) (*model.ChunkSet, error)
	SelectLatestChunkSet(documentRID uuid.UUID) (*model.ChunkSet, error)
	SelectChunksBySet(chunkSetRID uuid.UUID) ([]*model.Chunk, error)
	UpdateChunkVectorRecord(chunkRID uuid.UUID, vectorRecordID uuid.UUID) error
	DeleteChunkSet(rid uuid.UUID) error
}

// ChunksDBHandler handles chunk set and chunk database operations
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := sql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunk_sets' and 'chunks' tables in the database.
// If the tables already exist, it does not create them again.
func (h *ChunksDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks();`)
	if err != nil {
		log.Panicf("error initializing chunks tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created tables chunk_sets and chunks")

	return nil
}

// InsertChunkSet inserts a new chunk set for a document. The set starts out
// without the latest flag; MarkChunkSetLatest flips it after indexing.
func (h *ChunksDBHandler) InsertChunkSet(documentRID uuid.UUID, set *model.ChunkSet) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_chunk_set($1, $2, $3)`,
		documentRID,
		set.VersionID,
		set.ConfigHash,
	)

	err := scanChunkSet(row, set)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// InsertChunk inserts a single chunk into a chunk set
func (h *ChunksDBHandler) InsertChunk(chunk *model.Chunk) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		chunk.ChunkSetID,
		chunk.Ordinal,
		chunk.Content,
		chunk.StartChar,
		chunk.EndChar,
		chunk.TokenCount,
		chunk.SectionPath,
		chunk.Heading,
		chunk.ContentHash,
	)

	err := scanChunk(row, chunk)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// MarkChunkSetLatest atomically moves the latest flag to the given set,
// clearing it from any sibling set of the same document.
func (h *ChunksDBHandler) MarkChunkSetLatest(rid uuid.UUID) (*model.ChunkSet, error) {
	set := &model.ChunkSet{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM mark_chunk_set_latest($1)`,
		rid,
	)

	err := scanChunkSet(row, set)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return set, nil
}

// SelectLatestChunkSet retrieves the latest chunk set of a document
func (h *ChunksDBHandler) SelectLatestChunkSet(documentRID uuid.UUID) (*model.ChunkSet, error) {
	set := &model.ChunkSet{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_latest_chunk_set($1)`,
		documentRID,
	)

	err := scanChunkSet(row, set)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return set, nil
}

// SelectChunksBySet retrieves all chunks of a set ordered by ordinal
func (h *ChunksDBHandler) SelectChunksBySet(chunkSetRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_set($1)`,
		chunkSetRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := scanChunk(rows, chunk)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// UpdateChunkVectorRecord stores the vector store point id of a chunk
func (h *ChunksDBHandler) UpdateChunkVectorRecord(chunkRID uuid.UUID, vectorRecordID uuid.UUID) error {
	chunk := &model.Chunk{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_chunk_vector_record($1, $2)`,
		chunkRID,
		vectorRecordID,
	)

	err := scanChunk(row, chunk)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// DeleteChunkSet deletes a chunk set and its chunks by RID
func (h *ChunksDBHandler) DeleteChunkSet(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_chunk_set($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanChunkSet(row rowScanner, set *model.ChunkSet) error {
	return row.Scan(
		&set.ID,
		&set.RID,
		&set.DocumentID,
		&set.VersionID,
		&set.ConfigHash,
		&set.IsLatest,
		&set.CreatedAt,
	)
}

func scanChunk(row rowScanner, chunk *model.Chunk) error {
	return row.Scan(
		&chunk.ID,
		&chunk.RID,
		&chunk.ChunkSetID,
		&chunk.Ordinal,
		&chunk.Content,
		&chunk.StartChar,
		&chunk.EndChar,
		&chunk.TokenCount,
		&chunk.SectionPath,
		&chunk.Heading,
		&chunk.ContentHash,
		&chunk.VectorRecordID,
		&chunk.CreatedAt,
	)
}
