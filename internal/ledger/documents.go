package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DocumentOpStatus is the lifecycle status of a Document.
type DocumentOpStatus string

const (
	DocumentPending DocumentOpStatus = "PENDING"
	DocumentSuccess DocumentOpStatus = "SUCCESS"
	DocumentFailed  DocumentOpStatus = "FAILED"
)

// Document mirrors the documents table.
type Document struct {
	ID          int64
	OwnerUserID int64
	FileName    string
	ObjectKey   string
	LockStatus  bool
	OpStatus    DocumentOpStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateDocument inserts a new document row, locked and PENDING, as admission
// into the upload flow does.
func (s *Store) CreateDocument(ctx context.Context, ownerUserID int64, fileName, objectKey string) (*Document, error) {
	d := &Document{
		OwnerUserID: ownerUserID,
		FileName:    fileName,
		ObjectKey:   objectKey,
		LockStatus:  true,
		OpStatus:    DocumentPending,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (owner_user_id, file_name, object_key, lock_status, op_status)
		VALUES ($1, $2, $3, true, 'PENDING')
		RETURNING id, created_at, updated_at`,
		ownerUserID, fileName, objectKey,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating document %q: %w", fileName, err)
	}
	return d, nil
}

// FinalizeDocument applies the client upload-completion callback: clears the
// lock and sets the final op_status.
func (s *Store) FinalizeDocument(ctx context.Context, id int64, status DocumentOpStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET lock_status = false, op_status = $2, updated_at = now()
		WHERE id = $1`, id, status,
	)
	if err != nil {
		return fmt.Errorf("finalizing document %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalizing document %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetUsableDocuments returns, for the given owner, the subset of ids that are
// unlocked and SUCCESS — usable for ingestion admission — keyed by id, plus
// the set of requested ids that were not found usable.
func (s *Store) GetUsableDocuments(ctx context.Context, ownerUserID int64, ids []int64) (found map[int64]*Document, missing []int64, err error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_user_id, file_name, object_key, lock_status, op_status, created_at, updated_at
		FROM documents
		WHERE owner_user_id = $1 AND id = ANY($2) AND lock_status = false AND op_status = 'SUCCESS'`,
		ownerUserID, ids,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("querying usable documents: %w", err)
	}
	defer rows.Close()

	found = make(map[int64]*Document, len(ids))
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.OwnerUserID, &d.FileName, &d.ObjectKey, &d.LockStatus, &d.OpStatus, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("scanning document: %w", err)
		}
		found[d.ID] = &d
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating documents: %w", err)
	}

	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}

	return found, missing, nil
}

// ConflictedDocument is a document row needing Reaper reconciliation: any
// lock/status combination other than (lock=false, SUCCESS).
type ConflictedDocument struct {
	Document
}

// ListConflictedDocuments returns documents whose (lock_status, op_status) is
// not the single stable state (false, SUCCESS).
func (s *Store) ListConflictedDocuments(ctx context.Context) ([]ConflictedDocument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_user_id, file_name, object_key, lock_status, op_status, created_at, updated_at
		FROM documents
		WHERE lock_status = true OR op_status IN ('PENDING', 'FAILED')`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conflicted documents: %w", err)
	}
	defer rows.Close()

	var out []ConflictedDocument
	for rows.Next() {
		var d ConflictedDocument
		if err := rows.Scan(&d.ID, &d.OwnerUserID, &d.FileName, &d.ObjectKey, &d.LockStatus, &d.OpStatus, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conflicted document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ResolveConflictedDocumentPresent clears the lock and marks the document
// SUCCESS — the object was found present in the object store.
func (s *Store) ResolveConflictedDocumentPresent(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET lock_status = false, op_status = 'SUCCESS', updated_at = now()
		WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("resolving conflicted document %d (present): %w", id, err)
	}
	return nil
}

// ResolveConflictedDocumentAbsent removes the document row — the object was
// absent from the object store, so upload never completed.
func (s *Store) ResolveConflictedDocumentAbsent(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("resolving conflicted document %d (absent): %w", id, err)
	}
	return nil
}

// GetDocument fetches a document by id scoped to its owner.
func (s *Store) GetDocument(ctx context.Context, id, ownerUserID int64) (*Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_user_id, file_name, object_key, lock_status, op_status, created_at, updated_at
		FROM documents WHERE id = $1 AND owner_user_id = $2`,
		id, ownerUserID,
	).Scan(&d.ID, &d.OwnerUserID, &d.FileName, &d.ObjectKey, &d.LockStatus, &d.OpStatus, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting document %d: %w", id, err)
	}
	return &d, nil
}

// ListDocumentsByOwner returns a page of an owner's documents ordered newest
// first, plus the total count for pagination.
func (s *Store) ListDocumentsByOwner(ctx context.Context, ownerUserID int64, offset, limit int) ([]Document, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE owner_user_id = $1`, ownerUserID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting documents for owner %d: %w", ownerUserID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_user_id, file_name, object_key, lock_status, op_status, created_at, updated_at
		FROM documents
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		ownerUserID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing documents for owner %d: %w", ownerUserID, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.OwnerUserID, &d.FileName, &d.ObjectKey, &d.LockStatus, &d.OpStatus, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// LockDocumentForDelete claims a document for deletion: the first phase of
// the two-phase lock-then-remove (spec §3 Document). Only a document that is
// currently unlocked and SUCCESS is eligible.
func (s *Store) LockDocumentForDelete(ctx context.Context, id, ownerUserID int64) (*Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx, `
		UPDATE documents SET lock_status = true, updated_at = now()
		WHERE id = $1 AND owner_user_id = $2 AND lock_status = false AND op_status = 'SUCCESS'
		RETURNING id, owner_user_id, file_name, object_key, lock_status, op_status, created_at, updated_at`,
		id, ownerUserID,
	).Scan(&d.ID, &d.OwnerUserID, &d.FileName, &d.ObjectKey, &d.LockStatus, &d.OpStatus, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("document %d not eligible for delete: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("locking document %d for delete: %w", id, err)
	}
	return &d, nil
}

// DeleteDocumentRow removes the document row outright — the second phase of
// delete, called after the object store copy has been removed.
func (s *Store) DeleteDocumentRow(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document row %d: %w", id, err)
	}
	return nil
}

// GetDocumentTx fetches a document by id within a transaction.
func (s *Store) GetDocumentTx(ctx context.Context, tx pgx.Tx, id int64) (*Document, error) {
	var d Document
	err := tx.QueryRow(ctx, `
		SELECT id, owner_user_id, file_name, object_key, lock_status, op_status, created_at, updated_at
		FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.OwnerUserID, &d.FileName, &d.ObjectKey, &d.LockStatus, &d.OpStatus, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting document %d: %w", id, err)
	}
	return &d, nil
}
