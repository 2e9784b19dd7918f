// Package embeddings wraps an embeddings provider for both the Chunker's
// breakpoint-detection windows and the Worker's child-chunk vectors (spec
// §4.4(d), §4.5 step 2) — there is no separate cheap model; the spec does
// not distinguish one.
package embeddings

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// batchSize is the maximum number of inputs embedded per provider call
// (spec §4.4(d)).
const batchSize = 2048

// Provider embeds batches of text via an OpenAI-compatible embeddings model.
type Provider struct {
	embedder       *embeddings.EmbedderImpl
	modelDimension int
}

// Config configures a Provider.
type Config struct {
	APIKey         string
	Model          string
	ModelDimension int
}

// New constructs a Provider.
func New(cfg Config) (*Provider, error) {
	llm, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating openai llm client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Provider{embedder: embedder, modelDimension: cfg.ModelDimension}, nil
}

// EmbedBatch embeds texts in batches of batchSize, validating each returned
// vector against ModelDimension before returning.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := p.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
		}

		for _, v := range vectors {
			if p.modelDimension > 0 && len(v) != p.modelDimension {
				return nil, fmt.Errorf("embedding returned dimension %d, want %d", len(v), p.modelDimension)
			}
			out = append(out, v)
		}
	}

	return out, nil
}

// Embed embeds a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding returned no vectors")
	}
	return vectors[0], nil
}
