package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/levkin/ragbase/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSearchableDocument(t *testing.T, database *DocumentsDBHandler, chunks *ChunksDBHandler, workspaceRID uuid.UUID, title string, contents []string) *model.Document {
	t.Helper()

	doc := &model.Document{
		WorkspaceRID: workspaceRID,
		BaseRID:      uuid.New(),
		Title:        title,
	}
	err := database.InsertDocument(doc)
	require.NoError(t, err)

	set := &model.ChunkSet{VersionID: doc.VersionID, ConfigHash: "hash"}
	err = chunks.InsertChunkSet(doc.RID, set)
	require.NoError(t, err)

	for i, content := range contents {
		chunk := &model.Chunk{
			ChunkSetID:  set.ID,
			Ordinal:     i,
			Content:     content,
			EndChar:     len([]rune(content)),
			TokenCount:  len([]rune(content)) / 4,
			Heading:     title,
			ContentHash: uuid.NewString(),
		}
		err = chunks.InsertChunk(chunk)
		require.NoError(t, err)
	}

	_, err = chunks.MarkChunkSetLatest(set.RID)
	require.NoError(t, err)

	return doc
}

func TestSearchNewSearchDBHandler(t *testing.T) {
	database := initDB(t)

	_, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)
	_, err = NewChunksDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Valid call NewSearchDBHandler", func(t *testing.T) {
		searchDbHandler, err := NewSearchDBHandler(database, true)
		assert.NoError(t, err, "Expected NewSearchDBHandler to not return an error")
		require.NotNil(t, searchDbHandler, "Expected NewSearchDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewSearchDBHandler with nil database", func(t *testing.T) {
		_, err := NewSearchDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating SearchDBHandler with nil database")
	})
}

func TestSearchLexical(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, true)
	require.NoError(t, err)
	searchDbHandler, err := NewSearchDBHandler(database, true)
	require.NoError(t, err)

	workspaceRID := uuid.New()
	doc := seedSearchableDocument(t, documentsDbHandler, chunksDbHandler, workspaceRID, "Установка", []string{
		"Установка системы выполняется через пакетный менеджер.",
		"Для обновления используйте команду из раздела настройки.",
	})

	t.Run("Full text search finds stemmed matches", func(t *testing.T) {
		results, err := searchDbHandler.SearchLexical(context.Background(), workspaceRID, "установка системы", []string{"установка системы"}, 10)
		assert.NoError(t, err, "Expected SearchLexical to not return an error")
		require.NotEmpty(t, results, "Expected the stemmer to match the installation chunk")
		assert.Equal(t, doc.RID, results[0].DocumentRID, "Expected result to reference the document")
		assert.Equal(t, model.SourceLexical, results[0].Source, "Expected lexical source")
		assert.Greater(t, results[0].LexicalScore, 0.0, "Expected a positive rank score")
		assert.Equal(t, 1, results[0].LexicalRank, "Expected ranks to start at 1")
		assert.Equal(t, "Установка", results[0].DocumentTitle, "Expected document title enrichment")
	})

	t.Run("Any variant can match", func(t *testing.T) {
		results, err := searchDbHandler.SearchLexical(context.Background(), workspaceRID, "апдейт", []string{"апдейт", "обновление"}, 10)
		assert.NoError(t, err)
		require.NotEmpty(t, results, "Expected the second variant to match the update chunk")
	})

	t.Run("Trigram fallback catches typos", func(t *testing.T) {
		// The stemmer cannot match this typo, trigram similarity can
		results, err := searchDbHandler.SearchLexical(context.Background(), workspaceRID, "устонавка системы выполняется через пакетный менеджер", nil, 10)
		assert.NoError(t, err)
		assert.NotEmpty(t, results, "Expected trigram fallback to find the near-match")
	})

	t.Run("Foreign workspace sees nothing", func(t *testing.T) {
		results, err := searchDbHandler.SearchLexical(context.Background(), uuid.New(), "установка", []string{"установка"}, 10)
		assert.NoError(t, err)
		assert.Empty(t, results, "Expected workspace isolation")
	})

	t.Run("No match in any tier returns empty without error", func(t *testing.T) {
		results, err := searchDbHandler.SearchLexical(context.Background(), workspaceRID, "xyzzyplugh", []string{"xyzzyplugh"}, 10)
		assert.NoError(t, err, "Expected no-match to not be an error")
		assert.Empty(t, results)
	})

	t.Run("First sentence matches outrank body matches", func(t *testing.T) {
		rankingWorkspace := uuid.New()
		rankedDoc := seedSearchableDocument(t, documentsDbHandler, chunksDbHandler, rankingWorkspace, "Справка", []string{
			"Резервное копирование выполняется по расписанию. Журналы хранятся отдельно.",
			"Система ведёт журналы операций. Администратор может включить резервное копирование позже.",
		})
		defer documentsDbHandler.DeleteDocument(rankedDoc.RID)

		results, err := searchDbHandler.SearchLexical(context.Background(), rankingWorkspace, "резервное копирование", []string{"резервное копирование"}, 10)
		assert.NoError(t, err)
		require.Len(t, results, 2, "Expected both chunks to match")
		assert.Contains(t, results[0].Content, "по расписанию", "Expected the first sentence match to rank first")
		assert.Greater(t, results[0].LexicalScore, results[1].LexicalScore, "Expected a strictly higher rank for the first sentence match")
	})

	t.Run("Superseded chunk sets are invisible", func(t *testing.T) {
		// Re-chunk the document; the old set loses the latest flag
		newSet := &model.ChunkSet{VersionID: uuid.New(), ConfigHash: "hash2"}
		err := chunksDbHandler.InsertChunkSet(doc.RID, newSet)
		require.NoError(t, err)
		chunk := &model.Chunk{
			ChunkSetID:  newSet.ID,
			Ordinal:     0,
			Content:     "Совсем другой текст про резервное копирование.",
			ContentHash: uuid.NewString(),
		}
		err = chunksDbHandler.InsertChunk(chunk)
		require.NoError(t, err)
		_, err = chunksDbHandler.MarkChunkSetLatest(newSet.RID)
		require.NoError(t, err)

		results, err := searchDbHandler.SearchLexical(context.Background(), workspaceRID, "установка системы", []string{"установка системы"}, 10)
		assert.NoError(t, err)
		assert.Empty(t, results, "Expected chunks of the superseded set to be excluded")

		backup, err := searchDbHandler.SearchLexical(context.Background(), workspaceRID, "резервное копирование", []string{"резервное копирование"}, 10)
		assert.NoError(t, err)
		assert.NotEmpty(t, backup, "Expected the new latest set to be searchable")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestSearchLexicalWithoutTrigram(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, true)
	require.NoError(t, err)

	_, err = database.Instance.Exec(`DROP EXTENSION IF EXISTS pg_trgm CASCADE;`)
	require.NoError(t, err)
	defer func() {
		// Restore the extension and the trigram index for the other tests
		_, err := database.Instance.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm;`)
		require.NoError(t, err)
		_, err = database.Instance.Exec(`SELECT init_search();`)
		require.NoError(t, err)
	}()

	searchDbHandler, err := NewSearchDBHandler(database, true)
	require.NoError(t, err, "Expected handler creation to work without pg_trgm")

	workspaceRID := uuid.New()
	doc := seedSearchableDocument(t, documentsDbHandler, chunksDbHandler, workspaceRID, "Установка", []string{
		"Установка системы выполняется через пакетный менеджер.",
	})
	defer documentsDbHandler.DeleteDocument(doc.RID)

	t.Run("Full text search still works", func(t *testing.T) {
		results, err := searchDbHandler.SearchLexical(context.Background(), workspaceRID, "установка системы", []string{"установка системы"}, 10)
		assert.NoError(t, err)
		assert.NotEmpty(t, results, "Expected the full text tier to be unaffected")
	})

	t.Run("Typo query returns empty instead of erroring", func(t *testing.T) {
		results, err := searchDbHandler.SearchLexical(context.Background(), workspaceRID, "устонавка системы выполняется через пакетный менеджер", nil, 10)
		assert.NoError(t, err, "Expected the missing trigram tier to be skipped, not to fail")
		assert.Empty(t, results)
	})

	t.Run("Substring fallback still matches", func(t *testing.T) {
		results, err := searchDbHandler.SearchLexical(context.Background(), workspaceRID, "акетный менедж", nil, 10)
		assert.NoError(t, err)
		assert.NotEmpty(t, results, "Expected the ILIKE tier to catch the substring")
	})
}
