// Package chunker implements the parent-child semantic chunker (spec §4.5):
// sentences are grouped into rolling windows, adjacent windows are compared
// by cosine distance, and a breakpoint policy turns the distance series into
// chunk boundaries. The same algorithm runs twice — once with parent
// parameters over each loader unit, once with child parameters over each
// parent's text.
package chunker

import (
	"context"
	"fmt"
	"strings"

	"github.com/corvexa/ingestord/internal/loader"
)

// Embedder embeds a batch of texts, used for the windows fed into
// breakpoint detection.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChildChunk is one leaf chunk, indexed within its parent (spec's
// "chunk_index" in the deterministic vector id).
type ChildChunk struct {
	Index int
	Text  string
}

// ParentChunk is one coarse chunk together with its finer children.
type ParentChunk struct {
	Text     string
	Children []ChildChunk
}

// Config holds the buffer sizes and breakpoint policies for parent and
// child passes (spec §4.5 step 2/4).
type Config struct {
	ParentBufferSize int
	ChildBufferSize  int
	ParentPolicy     BreakpointPolicy
	ChildPolicy      BreakpointPolicy
}

// DefaultConfig returns buffer_size parent=3/child=1 and the spec's default
// policies (INTERQUARTILE k=1.5 parent, PERCENTILE p=85 child).
func DefaultConfig() Config {
	return Config{
		ParentBufferSize: 3,
		ChildBufferSize:  1,
		ParentPolicy:     DefaultParentPolicy(),
		ChildPolicy:      DefaultChildPolicy(),
	}
}

// Chunker splits loader units into parent/child chunk pairs.
type Chunker struct {
	cfg      Config
	embedder Embedder
}

// New constructs a Chunker.
func New(cfg Config, embedder Embedder) *Chunker {
	return &Chunker{cfg: cfg, embedder: embedder}
}

// Chunk runs the full parent-then-child algorithm over a sequence of
// loader units (spec §4.5 steps 1-6).
func (c *Chunker) Chunk(ctx context.Context, units []loader.Unit) ([]ParentChunk, error) {
	var parents []ParentChunk

	for _, unit := range units {
		sents := splitSentences(unit.Text)
		if len(sents) == 0 {
			continue
		}

		parentGroups, err := c.splitBySemantics(ctx, sents, c.cfg.ParentBufferSize, c.cfg.ParentPolicy)
		if err != nil {
			return nil, fmt.Errorf("splitting parents: %w", err)
		}

		for _, group := range parentGroups {
			parentText := strings.Join(group, " ")
			children, err := c.childChunks(ctx, group)
			if err != nil {
				return nil, fmt.Errorf("splitting children: %w", err)
			}
			parents = append(parents, ParentChunk{Text: parentText, Children: children})
		}
	}

	return parents, nil
}

// childChunks re-applies the algorithm to a parent's sentences with child
// parameters. A parent with only one sentence returns itself as its only
// child (spec §4.5 step 6).
func (c *Chunker) childChunks(ctx context.Context, parentSentences []string) ([]ChildChunk, error) {
	if len(parentSentences) == 1 {
		return []ChildChunk{{Index: 0, Text: parentSentences[0]}}, nil
	}

	childGroups, err := c.splitBySemantics(ctx, parentSentences, c.cfg.ChildBufferSize, c.cfg.ChildPolicy)
	if err != nil {
		return nil, err
	}

	children := make([]ChildChunk, 0, len(childGroups))
	for i, group := range childGroups {
		children = append(children, ChildChunk{Index: i, Text: strings.Join(group, " ")})
	}
	return children, nil
}

// splitBySemantics forms rolling windows of size bufferSize over sents,
// embeds each window, computes adjacent cosine distances, derives a
// threshold from policy, and cuts the sentence stream at every index whose
// distance exceeds it (spec §4.5 steps 2-5).
func (c *Chunker) splitBySemantics(ctx context.Context, sents []string, bufferSize int, policy BreakpointPolicy) ([][]string, error) {
	if len(sents) <= 1 {
		return [][]string{sents}, nil
	}

	windows := make([]string, len(sents))
	for i := range sents {
		start := i - bufferSize + 1
		if start < 0 {
			start = 0
		}
		windows[i] = strings.Join(sents[start:i+1], " ")
	}

	vectors, err := c.embedder.EmbedBatch(ctx, windows)
	if err != nil {
		return nil, fmt.Errorf("embedding windows: %w", err)
	}
	if len(vectors) != len(windows) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d windows", len(vectors), len(windows))
	}

	distances := make([]float64, 0, len(vectors)-1)
	for i := 0; i < len(vectors)-1; i++ {
		d, err := cosineDistance(vectors[i], vectors[i+1])
		if err != nil {
			return nil, fmt.Errorf("computing distance at window %d: %w", i, err)
		}
		distances = append(distances, d)
	}

	threshold := policy.Threshold(distances)

	var groups [][]string
	start := 0
	for i, d := range distances {
		if d > threshold {
			groups = append(groups, sents[start:i+1])
			start = i + 1
		}
	}
	groups = append(groups, sents[start:])

	return groups, nil
}
