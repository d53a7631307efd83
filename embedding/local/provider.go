// Package local runs sentence transformer embeddings in-process via hugot,
// so small deployments need no external embedding service.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/levkin/ragbase/embedding"
	"github.com/levkin/ragbase/helper"
)

const (
	defaultModelName    = "sentence-transformers/all-MiniLM-L6-v2"
	defaultVectorLength = 384
)

// Provider embeds text with a local ONNX sentence transformer model.
type Provider struct {
	session      *hugot.Session
	pipeline     *pipelines.FeatureExtractionPipeline
	vectorLength int
	mu           sync.Mutex
}

// New downloads the default model on first use and initializes a hugot
// session with the Go backend.
func New() (*Provider, error) {
	return NewWithModel(defaultModelName, defaultVectorLength)
}

// NewWithModel initializes a provider for a specific sentence transformer
// model. vectorLength must match the model output dimension.
func NewWithModel(modelName string, vectorLength int) (*Provider, error) {
	modelPath, err := prepareModel(modelName)
	if err != nil {
		return nil, helper.NewError("local embedding model", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedding-pipeline",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	return &Provider{
		session:      session,
		pipeline:     pipeline,
		vectorLength: vectorLength,
	}, nil
}

// Embed runs the model on a single text. The hugot pipeline is not safe for
// concurrent inference, so runs are serialized.
func (p *Provider) Embed(ctx context.Context, text string) (embedding.Result, error) {
	if err := ctx.Err(); err != nil {
		return embedding.Result{}, err
	}

	p.mu.Lock()
	result, err := p.pipeline.RunPipeline([]string{text})
	p.mu.Unlock()
	if err != nil {
		return embedding.Result{}, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return embedding.Result{}, fmt.Errorf("no embedding generated")
	}

	return embedding.Result{
		Vector: result.Embeddings[0],
		// Rough estimate, the local model has no usage accounting.
		TokensUsed: (len([]rune(text)) + 3) / 4,
	}, nil
}

func (p *Provider) VectorLength() int {
	return p.vectorLength
}

// Close destroys the underlying hugot session.
func (p *Provider) Close() error {
	return p.session.Destroy()
}

// prepareModel downloads the model if it is not present and returns its path.
func prepareModel(modelName string) (string, error) {
	modelDir := "./models"
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := os.MkdirAll(modelDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create model directory: %w", err)
		}
		downloadOptions := hugot.NewDownloadOptions()
		downloadOptions.OnnxFilePath = "onnx/model.onnx"
		downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
		if err != nil {
			return "", fmt.Errorf("failed to download model: %w", err)
		}
		modelPath = downloadedPath
	}

	return modelPath, nil
}

var _ embedding.Provider = (*Provider)(nil)
