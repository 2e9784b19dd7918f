// Package ingestion is the Ingestion Admission Service (spec §4.2): the
// synchronous path invoked by the API that validates a request, creates an
// ingestion-job row, upserts the document↔KB link rows to PENDING, and
// enqueues one message carrying the job descriptor and file manifest —
// all within a single transaction that rolls back if the publish fails.
package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/corvexa/ingestord/internal/ledger"
	"github.com/corvexa/ingestord/internal/queue"
)

// ErrKnowledgeBaseNotFound is returned when (kb_id, user_id) does not match
// an existing knowledge base.
var ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")

// ErrDocsNotFound is returned when one or more requested file ids are not
// usable (not owned by the caller, still locked, or not yet SUCCESS).
type ErrDocsNotFound struct {
	Missing []int64
}

func (e *ErrDocsNotFound) Error() string {
	return fmt.Sprintf("documents not found or not usable: %v", e.Missing)
}

// Ledger is the subset of *ledger.Store the admission service needs.
type Ledger interface {
	GetKnowledgeBaseWithCollection(ctx context.Context, kbID, userID int64) (*ledger.KnowledgeBaseWithCollection, error)
	GetUsableDocuments(ctx context.Context, ownerUserID int64, ids []int64) (map[int64]*ledger.Document, []int64, error)
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	CreateIngestionJobTx(ctx context.Context, tx pgx.Tx, kbID int64) (*ledger.IngestionJob, error)
	UpsertLinksPendingTx(ctx context.Context, tx pgx.Tx, kbID int64, docs map[int64]*ledger.Document) ([]ledger.ManifestEntry, error)
	MarkLinksPendingForDeleteTx(ctx context.Context, tx pgx.Tx, kbID int64, docIDs []int64) ([]ledger.ManifestEntry, error)
}

// Queue is the subset of *queue.Gateway the admission service needs.
type Queue interface {
	Send(ctx context.Context, env queue.Envelope) error
}

// Service implements the admission algorithm for both the index and delete
// endpoints.
type Service struct {
	ledger Ledger
	queue  Queue
}

// New constructs a Service.
func New(store Ledger, q Queue) *Service {
	return &Service{ledger: store, queue: q}
}

// AdmitIndex runs the index-path admission algorithm (spec §4.2 steps 1-7).
func (s *Service) AdmitIndex(ctx context.Context, userID, kbID int64, fileIDs []int64) (*ledger.IngestionJob, error) {
	kb, err := s.ledger.GetKnowledgeBaseWithCollection(ctx, kbID, userID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, ErrKnowledgeBaseNotFound
		}
		return nil, fmt.Errorf("looking up knowledge base %d: %w", kbID, err)
	}

	found, missing, err := s.ledger.GetUsableDocuments(ctx, userID, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("looking up usable documents: %w", err)
	}
	if len(missing) > 0 {
		return nil, &ErrDocsNotFound{Missing: missing}
	}

	var job *ledger.IngestionJob
	err = s.ledger.WithTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		job, txErr = s.ledger.CreateIngestionJobTx(ctx, tx, kbID)
		if txErr != nil {
			return fmt.Errorf("creating ingestion job: %w", txErr)
		}

		manifest, txErr := s.ledger.UpsertLinksPendingTx(ctx, tx, kbID, found)
		if txErr != nil {
			return fmt.Errorf("upserting kb_document links: %w", txErr)
		}

		if len(manifest) == 0 {
			return nil
		}

		env := queue.Envelope{
			IngestionJobID: job.ID,
			KBID:           kbID,
			CollectionName: kb.CollectionName,
			Category:       kb.Category,
			UserID:         userID,
			IndexKBDocID:   toQueueManifest(manifest),
		}
		if txErr := s.queue.Send(ctx, env); txErr != nil {
			return fmt.Errorf("publishing ingestion message: %w", txErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

// AdmitDelete runs the delete-path admission algorithm (SPEC_FULL §4.2
// [ADD]): identical transactional shape, but does not require the target
// documents to be SUCCESS/unlocked.
func (s *Service) AdmitDelete(ctx context.Context, userID, kbID int64, fileIDs []int64) (*ledger.IngestionJob, error) {
	kb, err := s.ledger.GetKnowledgeBaseWithCollection(ctx, kbID, userID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, ErrKnowledgeBaseNotFound
		}
		return nil, fmt.Errorf("looking up knowledge base %d: %w", kbID, err)
	}

	var job *ledger.IngestionJob
	err = s.ledger.WithTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		job, txErr = s.ledger.CreateIngestionJobTx(ctx, tx, kbID)
		if txErr != nil {
			return fmt.Errorf("creating ingestion job: %w", txErr)
		}

		manifest, txErr := s.ledger.MarkLinksPendingForDeleteTx(ctx, tx, kbID, fileIDs)
		if txErr != nil {
			return fmt.Errorf("marking kb_document links pending for delete: %w", txErr)
		}

		if len(manifest) == 0 {
			return nil
		}

		env := queue.Envelope{
			IngestionJobID: job.ID,
			KBID:           kbID,
			CollectionName: kb.CollectionName,
			Category:       kb.Category,
			UserID:         userID,
			DeleteKBDocID:  toQueueManifest(manifest),
		}
		if txErr := s.queue.Send(ctx, env); txErr != nil {
			return fmt.Errorf("publishing ingestion message: %w", txErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

func toQueueManifest(entries []ledger.ManifestEntry) []queue.ManifestEntry {
	out := make([]queue.ManifestEntry, len(entries))
	for i, e := range entries {
		out[i] = queue.ManifestEntry{
			KBDocID:   e.KBDocID,
			DocID:     e.DocID,
			FileName:  e.FileName,
			ObjectKey: e.ObjectKey,
		}
	}
	return out
}
