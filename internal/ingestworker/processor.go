package ingestworker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/corvexa/ingestord/internal/ledger"
	"github.com/corvexa/ingestord/internal/objectstore"
	"github.com/corvexa/ingestord/internal/queue"
	"github.com/corvexa/ingestord/internal/telemetry"
	"github.com/corvexa/ingestord/internal/vectorstore"
)

// ErrInvalidFileExtension is returned by indexOne when the object key's
// extension is not in the object store's content-type allow-list.
var ErrInvalidFileExtension = errors.New("invalid file extension")

// ErrDocumentNotLoaded is returned when the loader produces no text units.
var ErrDocumentNotLoaded = errors.New("document not loaded")

// fileResult is the per-file (kb_doc_id, status) pair the spec's step 2
// describes, carried alongside the document id needed for the delete path.
type fileResult struct {
	kbDocID    int64
	documentID int64
	success    bool
}

// ProcessMessage runs the full per-message algorithm (spec §4.4 steps 1-6):
// index and delete lists proceed concurrently under a semaphore, results are
// collected, and the final ledger commit decides the job's outcome.
func (w *Worker) ProcessMessage(ctx context.Context, env queue.Envelope) error {
	timer := prometheus.NewTimer(telemetry.IngestionProcessingDuration)
	defer timer.ObserveDuration()

	var indexResults, deleteResults []fileResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		indexResults = w.indexMany(gctx, env)
		return nil
	})
	g.Go(func() error {
		deleteResults = w.deleteMany(gctx, env)
		return nil
	})
	_ = g.Wait() // sub-tasks never return error; failures are per-item

	jobFailed := false
	linkStatuses := make(map[int64]ledger.LinkStatus, len(indexResults))
	for _, r := range indexResults {
		if r.success {
			linkStatuses[r.kbDocID] = ledger.LinkSuccess
			telemetry.IngestionFilesProcessedTotal.WithLabelValues("index", "success").Inc()
		} else {
			linkStatuses[r.kbDocID] = ledger.LinkFailed
			jobFailed = true
			telemetry.IngestionFilesProcessedTotal.WithLabelValues("index", "failed").Inc()
		}
	}

	var succeededDeletes, failedDeletes []int64
	for _, r := range deleteResults {
		if r.success {
			succeededDeletes = append(succeededDeletes, r.kbDocID)
			telemetry.IngestionFilesProcessedTotal.WithLabelValues("delete", "success").Inc()
		} else {
			failedDeletes = append(failedDeletes, r.kbDocID)
			jobFailed = true
			telemetry.IngestionFilesProcessedTotal.WithLabelValues("delete", "failed").Inc()
		}
	}

	finalStatus := ledger.JobSuccess
	if jobFailed {
		finalStatus = ledger.JobFailed
	}

	commitErr := w.ledger.WithTx(ctx, func(tx pgx.Tx) error {
		if err := w.ledger.BulkUpdateLinkStatusesTx(ctx, tx, linkStatuses); err != nil {
			return fmt.Errorf("bulk updating link statuses: %w", err)
		}
		if err := w.ledger.ResolveDeleteLinksTx(ctx, tx, succeededDeletes, failedDeletes); err != nil {
			return fmt.Errorf("resolving delete links: %w", err)
		}
		if err := w.ledger.UpdateIngestionJobStatusTx(ctx, tx, env.IngestionJobID, finalStatus); err != nil {
			return fmt.Errorf("updating ingestion job status: %w", err)
		}
		return nil
	})
	if commitErr != nil {
		if err := w.ledger.UpdateIngestionJobStatus(ctx, env.IngestionJobID, ledger.JobFailed); err != nil {
			w.logger.Error("best-effort job-failed mark also failed", "ingestion_job_id", env.IngestionJobID, "error", err)
		}
		telemetry.IngestionMessagesProcessedTotal.WithLabelValues("commit_failed").Inc()
		return fmt.Errorf("committing processor results for job %d: %w", env.IngestionJobID, commitErr)
	}

	if jobFailed {
		telemetry.IngestionMessagesProcessedTotal.WithLabelValues("partial_failure").Inc()
	} else {
		telemetry.IngestionMessagesProcessedTotal.WithLabelValues("success").Inc()
	}

	return nil
}

func (w *Worker) indexMany(ctx context.Context, env queue.Envelope) []fileResult {
	sem := semaphore.NewWeighted(w.maxConcurrentFiles)
	results := make([]fileResult, len(env.IndexKBDocID))

	var g errgroup.Group
	for i, entry := range env.IndexKBDocID {
		i, entry := i, entry
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = fileResult{kbDocID: entry.KBDocID, documentID: entry.DocID, success: false}
				return nil
			}
			defer sem.Release(1)

			err := w.indexOne(ctx, env, entry)
			if err != nil {
				w.logger.Warn("indexOne failed", "kb_doc_id", entry.KBDocID, "file_name", entry.FileName, "error", err)
			}
			results[i] = fileResult{kbDocID: entry.KBDocID, documentID: entry.DocID, success: err == nil}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (w *Worker) deleteMany(ctx context.Context, env queue.Envelope) []fileResult {
	sem := semaphore.NewWeighted(w.maxConcurrentFiles)
	results := make([]fileResult, len(env.DeleteKBDocID))

	var g errgroup.Group
	for i, entry := range env.DeleteKBDocID {
		i, entry := i, entry
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = fileResult{kbDocID: entry.KBDocID, documentID: entry.DocID, success: false}
				return nil
			}
			defer sem.Release(1)

			err := w.deleteOne(ctx, env, entry)
			if err != nil {
				w.logger.Warn("deleteOne failed", "kb_doc_id", entry.KBDocID, "file_name", entry.FileName, "error", err)
			}
			results[i] = fileResult{kbDocID: entry.KBDocID, documentID: entry.DocID, success: err == nil}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// indexOne runs steps a-g of the per-file indexing algorithm (spec §4.4).
func (w *Worker) indexOne(ctx context.Context, env queue.Envelope, entry queue.ManifestEntry) error {
	ext := strings.ToLower(filepath.Ext(entry.ObjectKey))
	if _, ok := objectstore.ContentTypeByExtension[ext]; !ok {
		return fmt.Errorf("file %q: %w", entry.FileName, ErrInvalidFileExtension)
	}

	path, err := w.objectStore.Download(ctx, entry.ObjectKey, w.tempDir)
	if err != nil {
		return fmt.Errorf("downloading %q: %w", entry.ObjectKey, err)
	}
	defer os.Remove(path)

	units, err := w.loaders.Load(ctx, path)
	if err != nil {
		return fmt.Errorf("loading %q: %w", entry.FileName, err)
	}
	if len(units) == 0 {
		return fmt.Errorf("file %q: %w", entry.FileName, ErrDocumentNotLoaded)
	}

	parents, err := w.chunker.Chunk(ctx, units)
	if err != nil {
		return fmt.Errorf("chunking %q: %w", entry.FileName, err)
	}
	if len(parents) == 0 {
		return fmt.Errorf("file %q: %w", entry.FileName, ErrDocumentNotLoaded)
	}

	return w.ledger.WithTx(ctx, func(tx pgx.Tx) error {
		var allEntities []vectorstore.Entity

		for _, parent := range parents {
			parentID, err := w.ledger.InsertParentChunkTx(ctx, tx, entry.DocID, entry.KBDocID, parent.Text)
			if err != nil {
				return fmt.Errorf("inserting parent chunk: %w", err)
			}

			texts := make([]string, len(parent.Children))
			for i, child := range parent.Children {
				texts[i] = child.Text
			}

			vectors, err := w.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fmt.Errorf("embedding children of parent %d: %w", parentID, err)
			}
			if len(vectors) != len(parent.Children) {
				return fmt.Errorf("embedder returned %d vectors for %d children", len(vectors), len(parent.Children))
			}

			for i, child := range parent.Children {
				allEntities = append(allEntities, vectorstore.Entity{
					ID:          vectorID(entry.FileName, parentID, child.Index),
					DenseVector: vectors[i],
					TextContent: child.Text,
					ObjectKey:   entry.ObjectKey,
					Category:    env.Category,
					FileName:    entry.FileName,
					UserID:      env.UserID,
					FileID:      entry.KBDocID,
					ParentID:    parentID,
				})
			}
		}

		if err := w.vectorStore.Upsert(ctx, env.CollectionName, allEntities); err != nil {
			return fmt.Errorf("upserting entities for %q: %w", entry.FileName, err)
		}

		return nil
	})
}

// deleteOne removes vector entities for the file and its parent-chunk rows
// (spec §4.4 deleteOne).
func (w *Worker) deleteOne(ctx context.Context, env queue.Envelope, entry queue.ManifestEntry) error {
	if err := w.vectorStore.DeleteByFileID(ctx, env.CollectionName, entry.KBDocID); err != nil {
		return fmt.Errorf("deleting vector entities for kb_doc %d: %w", entry.KBDocID, err)
	}

	return w.ledger.WithTx(ctx, func(tx pgx.Tx) error {
		return w.ledger.DeleteParentChunksByDocumentTx(ctx, tx, entry.DocID)
	})
}
