package indexer

import (
	"github.com/levkin/ragbase/model"
	"github.com/levkin/ragbase/render"
)

// DefaultPayload is the point payload stored when a workspace declares no
// payload schema. The rid fields are what retrieval needs to map a scored
// point back to its chunk and document.
func DefaultPayload(doc *model.Document, chunk *model.Chunk) map[string]any {
	return map[string]any{
		"chunk_rid":    chunk.RID.String(),
		"document_rid": doc.RID.String(),
		"title":        doc.Title,
		"slug":         doc.Slug,
		"heading":      chunk.Heading,
		"section_path": chunk.SectionPath,
		"ordinal":      chunk.Ordinal,
		"token_count":  chunk.TokenCount,
		"content":      chunk.Content,
	}
}

// RenderPayload evaluates a workspace payload schema on top of the default
// payload. Rendered fields override defaults, but the rid fields always stay.
func RenderPayload(renderer render.Renderer, schema map[string]string, doc *model.Document, chunk *model.Chunk) (map[string]any, error) {
	payload := DefaultPayload(doc, chunk)
	if len(schema) == 0 || renderer == nil {
		return payload, nil
	}

	data := map[string]any{
		"Title":       doc.Title,
		"Slug":        doc.Slug,
		"Metadata":    map[string]any(doc.Metadata),
		"Content":     chunk.Content,
		"Heading":     chunk.Heading,
		"SectionPath": chunk.SectionPath,
		"Ordinal":     chunk.Ordinal,
		"TokenCount":  chunk.TokenCount,
	}
	rendered, err := renderer.Render(schema, data)
	if err != nil {
		return nil, err
	}

	for field, value := range rendered {
		payload[field] = value
	}
	payload["chunk_rid"] = chunk.RID.String()
	payload["document_rid"] = doc.RID.String()

	return payload, nil
}
