// Package ingestworker is the Ingestion Worker (spec §4.4): a long-running
// consumer of the Message Queue Gateway, and a per-message processor that
// downloads, loads, chunks, embeds, and upserts each file under bounded
// concurrency before committing per-document and per-job status.
package ingestworker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/corvexa/ingestord/internal/chunker"
	"github.com/corvexa/ingestord/internal/ledger"
	"github.com/corvexa/ingestord/internal/loader"
	"github.com/corvexa/ingestord/internal/queue"
	"github.com/corvexa/ingestord/internal/vectorstore"
)

// Ledger is the subset of *ledger.Store the processor needs.
type Ledger interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	InsertParentChunkTx(ctx context.Context, tx pgx.Tx, documentID, kbDocID int64, content string) (int64, error)
	DeleteParentChunksByDocumentTx(ctx context.Context, tx pgx.Tx, documentID int64) error
	BulkUpdateLinkStatusesTx(ctx context.Context, tx pgx.Tx, results map[int64]ledger.LinkStatus) error
	ResolveDeleteLinksTx(ctx context.Context, tx pgx.Tx, succeeded, failed []int64) error
	UpdateIngestionJobStatusTx(ctx context.Context, tx pgx.Tx, id int64, status ledger.JobOpStatus) error
	UpdateIngestionJobStatus(ctx context.Context, id int64, status ledger.JobOpStatus) error
}

// ObjectStore is the subset of *objectstore.Gateway the processor needs.
type ObjectStore interface {
	Download(ctx context.Context, objectKey, dir string) (string, error)
}

// LoaderRegistry is the subset of *loader.Registry the processor needs.
type LoaderRegistry interface {
	Load(ctx context.Context, path string) ([]loader.Unit, error)
}

// Chunker is the subset of *chunker.Chunker the processor needs.
type Chunker interface {
	Chunk(ctx context.Context, units []loader.Unit) ([]chunker.ParentChunk, error)
}

// Embedder is the subset of *embeddings.Provider the processor needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the subset of *vectorstore.Gateway the processor needs.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, entities []vectorstore.Entity) error
	DeleteByFileID(ctx context.Context, collection string, fileID int64) error
}

// Queue is the subset of *queue.Gateway the consumer needs.
type Queue interface {
	Receive(ctx context.Context, maxN, waitSeconds int32, onParseError func(body string, err error)) ([]queue.Message, error)
	Ack(ctx context.Context, receiptHandle string) error
}

// Worker wires together the gateways and engines needed to process queued
// ingestion jobs.
type Worker struct {
	queue       Queue
	objectStore ObjectStore
	loaders     LoaderRegistry
	chunker     Chunker
	embedder    Embedder
	vectorStore VectorStore
	ledger      Ledger
	logger      *slog.Logger

	maxConcurrentFiles int64
	tempDir            string
	inflight           sync.WaitGroup
}

// Config configures a Worker.
type Config struct {
	MaxConcurrentFiles int64
	TempDir            string
}

// New constructs a Worker.
func New(cfg Config, q Queue, objectStore ObjectStore, loaders LoaderRegistry, ch Chunker, embedder Embedder, vs VectorStore, store Ledger, logger *slog.Logger) *Worker {
	maxConcurrent := cfg.MaxConcurrentFiles
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Worker{
		queue:              q,
		objectStore:        objectStore,
		loaders:            loaders,
		chunker:            ch,
		embedder:           embedder,
		vectorStore:        vs,
		ledger:             store,
		logger:             logger,
		maxConcurrentFiles: maxConcurrent,
		tempDir:            cfg.TempDir,
	}
}
