package chunker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvexa/ingestord/internal/loader"
)

// stubEmbedder returns a deterministic vector per distinct input text so the
// chunking boundaries are reproducible without a real embeddings provider.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{1, 0, 0}
		}
		out[i] = v
	}
	return out, nil
}

func TestPercentileThreshold(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 3.0, percentile(values, 50))
	assert.Equal(t, 1.0, percentile(values, 0))
	assert.Equal(t, 5.0, percentile(values, 100))
}

func TestInterquartileThreshold(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	policy := Interquartile{K: 1.5}
	got := policy.Threshold(values)
	assert.Greater(t, got, percentile(values, 75))
}

func TestCosineDistanceIdentical(t *testing.T) {
	d, err := cosineDistance([]float32{1, 0, 0}, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-9)
}

func TestCosineDistanceOrthogonal(t *testing.T) {
	d, err := cosineDistance([]float32{1, 0, 0}, []float32{0, 1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1, d, 1e-9)
}

func TestChunkSingleSentenceParentReturnsItselfAsOnlyChild(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{}}
	c := New(DefaultConfig(), embedder)

	parents, err := c.Chunk(context.Background(), []loader.Unit{{Text: "Only one sentence here."}})
	require.NoError(t, err)
	require.Len(t, parents, 1)
	require.Len(t, parents[0].Children, 1)
	assert.Equal(t, 0, parents[0].Children[0].Index)
}

func TestChunkSplitsOnHighCosineDistance(t *testing.T) {
	// Two near-identical windows, then an orthogonal one: expect a boundary
	// right before the third sentence under the PERCENTILE(50) policy.
	embedder := &stubEmbedder{
		vectors: map[string][]float32{
			"Alpha sentence one.":                                        {1, 0, 0},
			"Alpha sentence one. Alpha sentence two.":                    {1, 0, 0},
			"Alpha sentence one. Alpha sentence two. Beta topic shift.":  {0, 1, 0},
		},
	}
	cfg := Config{ParentBufferSize: 3, ChildBufferSize: 1, ParentPolicy: Percentile{P: 50}, ChildPolicy: Percentile{P: 50}}
	c := New(cfg, embedder)

	groups, err := c.splitBySemantics(context.Background(), []string{"Alpha sentence one.", "Alpha sentence two.", "Beta topic shift."}, 3, Percentile{P: 50})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Alpha sentence one.", "Alpha sentence two."}, {"Beta topic shift."}}, groups)
}

func TestDefaultConfigMatchesSpec(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.ParentBufferSize)
	assert.Equal(t, 1, cfg.ChildBufferSize)
	assert.Equal(t, Interquartile{K: 1.5}, cfg.ParentPolicy)
	assert.Equal(t, Percentile{P: 85}, cfg.ChildPolicy)
}
