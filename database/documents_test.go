package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/levkin/ragbase/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentsNewDocumentsDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewDocumentsDBHandler", func(t *testing.T) {
		documentsDbHandler, err := NewDocumentsDBHandler(database, true)
		assert.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")
		require.NotNil(t, documentsDbHandler, "Expected NewDocumentsDBHandler to return a non-nil instance")
		require.NotNil(t, documentsDbHandler.db, "Expected NewDocumentsDBHandler to have a non-nil database instance")
	})

	t.Run("Invalid call NewDocumentsDBHandler with nil database", func(t *testing.T) {
		_, err := NewDocumentsDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating DocumentsDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestDocumentsInsert(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

	t.Run("Insert document", func(t *testing.T) {
		doc := &model.Document{
			WorkspaceRID: uuid.New(),
			BaseRID:      uuid.New(),
			Title:        "Установка системы",
			Metadata:     map[string]interface{}{"author": "Test Author", "year": 2024},
		}

		err := documentsDbHandler.InsertDocument(doc)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.NotEmpty(t, doc.RID, "Expected inserted document to have a RID")
		assert.NotEmpty(t, doc.VersionID, "Expected inserted document to have a version id")
		assert.Equal(t, "установка-системы", doc.Slug, "Expected slug to be derived from the title")
		assert.WithinDuration(t, doc.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")

		// Cleanup
		documentsDbHandler.DeleteDocument(doc.RID)
	})

	t.Run("Insert document with duplicate slug in same workspace fails", func(t *testing.T) {
		workspaceRID := uuid.New()
		doc := &model.Document{
			WorkspaceRID: workspaceRID,
			BaseRID:      uuid.New(),
			Title:        "Duplicate",
		}
		err := documentsDbHandler.InsertDocument(doc)
		require.NoError(t, err)

		duplicate := &model.Document{
			WorkspaceRID: workspaceRID,
			BaseRID:      uuid.New(),
			Title:        "Duplicate",
		}
		err = documentsDbHandler.InsertDocument(duplicate)
		assert.Error(t, err, "Expected error for duplicate slug within one workspace")

		// Cleanup
		documentsDbHandler.DeleteDocument(doc.RID)
	})

	t.Run("Insert document with same slug in different workspaces succeeds", func(t *testing.T) {
		first := &model.Document{WorkspaceRID: uuid.New(), BaseRID: uuid.New(), Title: "Shared Title"}
		second := &model.Document{WorkspaceRID: uuid.New(), BaseRID: uuid.New(), Title: "Shared Title"}

		err := documentsDbHandler.InsertDocument(first)
		assert.NoError(t, err)
		err = documentsDbHandler.InsertDocument(second)
		assert.NoError(t, err, "Expected same slug in a different workspace to be allowed")

		// Cleanup
		documentsDbHandler.DeleteDocument(first.RID)
		documentsDbHandler.DeleteDocument(second.RID)
	})
}

func TestDocumentsGet(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	doc := &model.Document{
		WorkspaceRID: uuid.New(),
		BaseRID:      uuid.New(),
		Title:        "Test Document",
		Metadata:     map[string]interface{}{"key": "value"},
	}
	err = documentsDbHandler.InsertDocument(doc)
	require.NoError(t, err)

	retrievedDoc, err := documentsDbHandler.SelectDocument(doc.RID)
	assert.NoError(t, err, "Expected Get to not return an error")
	assert.NotNil(t, retrievedDoc, "Expected Get to return a non-nil document")
	assert.Equal(t, doc.RID, retrievedDoc.RID, "Expected document RIDs to match")
	assert.Equal(t, doc.Title, retrievedDoc.Title, "Expected titles to match")
	assert.Equal(t, doc.WorkspaceRID, retrievedDoc.WorkspaceRID, "Expected workspaces to match")

	bySlug, err := documentsDbHandler.SelectDocumentBySlug(doc.WorkspaceRID, doc.Slug)
	assert.NoError(t, err, "Expected SelectDocumentBySlug to not return an error")
	assert.Equal(t, doc.RID, bySlug.RID, "Expected slug lookup to find the same document")

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestDocumentsGetByWorkspace(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	workspaceRID := uuid.New()
	docCount := 5
	docs := make([]*model.Document, docCount)
	for i := 0; i < docCount; i++ {
		docs[i] = &model.Document{
			WorkspaceRID: workspaceRID,
			BaseRID:      uuid.New(),
			Title:        "Test Document " + string(rune('A'+i)),
		}
		err = documentsDbHandler.InsertDocument(docs[i])
		require.NoError(t, err)
	}

	retrievedDocs, err := documentsDbHandler.SelectDocumentsByWorkspace(workspaceRID, nil, 10)
	assert.NoError(t, err, "Expected SelectDocumentsByWorkspace to not return an error")
	assert.Len(t, retrievedDocs, docCount, "Expected to retrieve the inserted documents")

	// Documents of another workspace stay invisible
	otherDocs, err := documentsDbHandler.SelectDocumentsByWorkspace(uuid.New(), nil, 10)
	assert.NoError(t, err)
	assert.Empty(t, otherDocs, "Expected no documents for a foreign workspace")

	// Test pagination
	pageLength := 3
	paginatedDocs, err := documentsDbHandler.SelectDocumentsByWorkspace(workspaceRID, nil, pageLength)
	assert.NoError(t, err, "Expected SelectDocumentsByWorkspace to not return an error")
	assert.LessOrEqual(t, len(paginatedDocs), pageLength, "Expected at most pageLength documents")

	// Cleanup
	for _, doc := range docs {
		documentsDbHandler.DeleteDocument(doc.RID)
	}
}

func TestDocumentsUpdate(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	doc := &model.Document{
		WorkspaceRID: uuid.New(),
		BaseRID:      uuid.New(),
		Title:        "Original Title",
	}
	err = documentsDbHandler.InsertDocument(doc)
	require.NoError(t, err)

	originalVersion := doc.VersionID

	doc.Title = "Updated Title"
	doc.Slug = ""
	err = documentsDbHandler.UpdateDocument(doc)
	assert.NoError(t, err, "Expected Update to not return an error")
	assert.Equal(t, "Updated Title", doc.Title, "Expected title to be updated")
	assert.Equal(t, "updated-title", doc.Slug, "Expected slug to follow the new title")
	assert.NotEqual(t, originalVersion, doc.VersionID, "Expected update to bump the version id")

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestDocumentsDelete(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	doc := &model.Document{
		WorkspaceRID: uuid.New(),
		BaseRID:      uuid.New(),
		Title:        "To Delete",
	}
	err = documentsDbHandler.InsertDocument(doc)
	require.NoError(t, err)

	err = documentsDbHandler.DeleteDocument(doc.RID)
	assert.NoError(t, err, "Expected Delete to not return an error")

	_, err = documentsDbHandler.SelectDocument(doc.RID)
	assert.Error(t, err, "Expected Get after delete to return an error")
}
