package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ParentChunk mirrors the parent_chunks table (§4.4 step e).
type ParentChunk struct {
	ID         int64
	DocumentID int64
	KBDocID    int64
	Content    string
	CreatedAt  time.Time
}

// InsertParentChunkTx inserts one parent-chunk row and returns its id.
func (s *Store) InsertParentChunkTx(ctx context.Context, tx pgx.Tx, documentID, kbDocID int64, content string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO parent_chunks (document_id, kb_doc_id, content)
		VALUES ($1, $2, $3)
		RETURNING id`,
		documentID, kbDocID, content,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting parent chunk for document %d: %w", documentID, err)
	}
	return id, nil
}

// DeleteParentChunksByDocumentTx deletes all parent-chunk rows for a
// document, deleteOne's ledger-side cleanup.
func (s *Store) DeleteParentChunksByDocumentTx(ctx context.Context, tx pgx.Tx, documentID int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM parent_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting parent chunks for document %d: %w", documentID, err)
	}
	return nil
}
