// Package reaper is the Orphan Reaper (spec §4.6): a daily scan that
// reconciles document rows whose locks/statuses are inconsistent with the
// object store, and ages out stuck ingestion jobs.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/corvexa/ingestord/internal/ledger"
	"github.com/corvexa/ingestord/internal/telemetry"
)

const (
	scanInterval  = 24 * time.Hour
	stuckJobMaxAge = 1 * time.Hour
)

// Ledger is the subset of *ledger.Store the reaper needs.
type Ledger interface {
	ListConflictedDocuments(ctx context.Context) ([]ledger.ConflictedDocument, error)
	ResolveConflictedDocumentPresent(ctx context.Context, id int64) error
	ResolveConflictedDocumentAbsent(ctx context.Context, id int64) error
	FailStuckJobs(ctx context.Context, maxAge time.Duration) (int64, error)
}

// ObjectStore is the subset of *objectstore.Gateway the reaper needs.
type ObjectStore interface {
	Exists(ctx context.Context, objectKey string) (bool, error)
}

// Reaper runs the periodic reconciliation passes.
type Reaper struct {
	ledger      Ledger
	objectStore ObjectStore
	logger      *slog.Logger

	triggerCh chan struct{}
}

// New constructs a Reaper.
func New(store Ledger, objectStore ObjectStore, logger *slog.Logger) *Reaper {
	return &Reaper{
		ledger:      store,
		objectStore: objectStore,
		logger:      logger,
		triggerCh:   make(chan struct{}, 1),
	}
}

// Trigger non-blockingly requests an immediate pass (coalesces with any
// already-pending signal).
func (r *Reaper) Trigger() {
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

// Run blocks, running a pass immediately and then on a daily schedule or
// whenever Trigger fires, until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) error {
	r.runPass(ctx)

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.runPass(ctx)
		case <-r.triggerCh:
			drain(r.triggerCh)
			r.runPass(ctx)
		}
	}
}

func (r *Reaper) runPass(ctx context.Context) {
	if err := r.reconcileConflictedDocuments(ctx); err != nil {
		r.logger.Error("conflicted-documents pass failed", "error", err)
		telemetry.ReaperJobsFailedTotal.Inc()
	}
	if err := r.failStuckJobs(ctx); err != nil {
		r.logger.Error("stuck-jobs pass failed", "error", err)
		telemetry.ReaperJobsFailedTotal.Inc()
	}
}

// reconcileConflictedDocuments is the first pass (spec §4.6): for every
// document whose (lock_status, op_status) is not the stable (false,
// SUCCESS) state, probe the object store and resolve accordingly.
func (r *Reaper) reconcileConflictedDocuments(ctx context.Context) error {
	docs, err := r.ledger.ListConflictedDocuments(ctx)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		present, err := r.objectStore.Exists(ctx, doc.ObjectKey)
		if err != nil {
			r.logger.Warn("probing object store for conflicted document", "document_id", doc.ID, "object_key", doc.ObjectKey, "error", err)
			continue
		}

		if present {
			if err := r.ledger.ResolveConflictedDocumentPresent(ctx, doc.ID); err != nil {
				r.logger.Error("resolving conflicted document as present", "document_id", doc.ID, "error", err)
				continue
			}
			telemetry.ReaperDocumentsReconciledTotal.WithLabelValues("present").Inc()
		} else {
			if err := r.ledger.ResolveConflictedDocumentAbsent(ctx, doc.ID); err != nil {
				r.logger.Error("resolving conflicted document as absent", "document_id", doc.ID, "error", err)
				continue
			}
			telemetry.ReaperDocumentsReconciledTotal.WithLabelValues("absent").Inc()
		}
	}

	return nil
}

// failStuckJobs is the second pass (spec §4.6).
func (r *Reaper) failStuckJobs(ctx context.Context) error {
	n, err := r.ledger.FailStuckJobs(ctx, stuckJobMaxAge)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Info("failed stuck ingestion jobs", "count", n)
	}
	return nil
}

func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
