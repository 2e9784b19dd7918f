package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// LinkStatus is the lifecycle status of a KnowledgeBaseDocument link.
type LinkStatus string

const (
	LinkPending LinkStatus = "PENDING"
	LinkSuccess LinkStatus = "SUCCESS"
	LinkFailed  LinkStatus = "FAILED"
)

// KnowledgeBaseDocument mirrors the knowledge_base_documents table.
type KnowledgeBaseDocument struct {
	ID         int64
	KBID       int64
	DocumentID int64
	Status     LinkStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ManifestEntry is one row of the queue envelope's index/delete list,
// carrying everything the worker needs without a further ledger round-trip.
type ManifestEntry struct {
	KBDocID   int64
	DocID     int64
	FileName  string
	ObjectKey string
}

// UpsertLinksPendingTx upserts KnowledgeBaseDocument rows for each document
// id against kbID, set to PENDING (on conflict on the unique (kb_id,
// document_id) pair, reset to PENDING), admission step 4. Returns one
// ManifestEntry per upserted row built from the joined document fields.
func (s *Store) UpsertLinksPendingTx(ctx context.Context, tx pgx.Tx, kbID int64, docs map[int64]*Document) ([]ManifestEntry, error) {
	manifest := make([]ManifestEntry, 0, len(docs))

	for docID, doc := range docs {
		var linkID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO knowledge_base_documents (kb_id, document_id, status)
			VALUES ($1, $2, 'PENDING')
			ON CONFLICT (kb_id, document_id) DO UPDATE SET status = 'PENDING', updated_at = now()
			RETURNING id`,
			kbID, docID,
		).Scan(&linkID)
		if err != nil {
			return nil, fmt.Errorf("upserting kb_document link (kb=%d, doc=%d): %w", kbID, docID, err)
		}

		manifest = append(manifest, ManifestEntry{
			KBDocID:   linkID,
			DocID:     docID,
			FileName:  doc.FileName,
			ObjectKey: doc.ObjectKey,
		})
	}

	return manifest, nil
}

// MarkLinksPendingForDeleteTx sets link rows to PENDING ahead of the delete
// path (they need not be SUCCESS/unlocked — a document mid-ingestion may
// still be targeted for removal), returning one ManifestEntry per link.
func (s *Store) MarkLinksPendingForDeleteTx(ctx context.Context, tx pgx.Tx, kbID int64, docIDs []int64) ([]ManifestEntry, error) {
	rows, err := tx.Query(ctx, `
		UPDATE knowledge_base_documents kbd
		SET status = 'PENDING', updated_at = now()
		FROM documents d
		WHERE kbd.kb_id = $1 AND kbd.document_id = ANY($2) AND d.id = kbd.document_id
		RETURNING kbd.id, kbd.document_id, d.file_name, d.object_key`,
		kbID, docIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("marking kb_document links pending for delete (kb=%d): %w", kbID, err)
	}
	defer rows.Close()

	var manifest []ManifestEntry
	for rows.Next() {
		var m ManifestEntry
		if err := rows.Scan(&m.KBDocID, &m.DocID, &m.FileName, &m.ObjectKey); err != nil {
			return nil, fmt.Errorf("scanning delete-path link: %w", err)
		}
		manifest = append(manifest, m)
	}
	return manifest, rows.Err()
}

// BulkUpdateLinkStatusesTx updates the status of each (id -> status) pair in
// the index list, processor step 4.
func (s *Store) BulkUpdateLinkStatusesTx(ctx context.Context, tx pgx.Tx, results map[int64]LinkStatus) error {
	for id, status := range results {
		if _, err := tx.Exec(ctx,
			`UPDATE knowledge_base_documents SET status = $2, updated_at = now() WHERE id = $1`,
			id, status,
		); err != nil {
			return fmt.Errorf("updating link %d status to %s: %w", id, status, err)
		}
	}
	return nil
}

// ResolveDeleteLinksTx deletes link rows that succeeded removal and marks
// failed ones FAILED, processor step 4 for the delete list.
func (s *Store) ResolveDeleteLinksTx(ctx context.Context, tx pgx.Tx, succeeded, failed []int64) error {
	if len(succeeded) > 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM knowledge_base_documents WHERE id = ANY($1)`, succeeded,
		); err != nil {
			return fmt.Errorf("deleting succeeded links: %w", err)
		}
	}
	if len(failed) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE knowledge_base_documents SET status = 'FAILED', updated_at = now() WHERE id = ANY($1)`, failed,
		); err != nil {
			return fmt.Errorf("marking failed delete links: %w", err)
		}
	}
	return nil
}
