package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// KnowledgeBase mirrors the knowledge_bases table.
type KnowledgeBase struct {
	ID           int64
	OwnerUserID  int64
	Name         string
	Category     string
	CollectionID int64
	CreatedAt    time.Time
}

// KnowledgeBaseWithCollection joins a KnowledgeBase to its bound collection's
// name, needed to populate the queue envelope's collection_name field.
type KnowledgeBaseWithCollection struct {
	KnowledgeBase
	CollectionName string
	CollectionStatus CollectionStatus
}

// GetKnowledgeBaseWithCollection joins KnowledgeBase→VectorCollection for
// (kb_id, user_id), admission step 1.
func (s *Store) GetKnowledgeBaseWithCollection(ctx context.Context, kbID, userID int64) (*KnowledgeBaseWithCollection, error) {
	var kb KnowledgeBaseWithCollection
	err := s.pool.QueryRow(ctx, `
		SELECT kb.id, kb.owner_user_id, kb.name, kb.category, kb.collection_id, kb.created_at,
		       vc.collection_name, vc.status
		FROM knowledge_bases kb
		JOIN vector_collections vc ON vc.id = kb.collection_id
		WHERE kb.id = $1 AND kb.owner_user_id = $2`,
		kbID, userID,
	).Scan(&kb.ID, &kb.OwnerUserID, &kb.Name, &kb.Category, &kb.CollectionID, &kb.CreatedAt,
		&kb.CollectionName, &kb.CollectionStatus)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("knowledge base %d: %w", kbID, ErrNotFound)
		}
		return nil, fmt.Errorf("getting knowledge base %d: %w", kbID, err)
	}
	return &kb, nil
}

// CreateKnowledgeBase binds an AVAILABLE collection and inserts the
// KnowledgeBase row in one transaction, per spec §4.1's "KB binding"
// operation. Returns ErrNoAvailableCollection if the pool is empty.
func (s *Store) CreateKnowledgeBase(ctx context.Context, ownerUserID int64, name, category string) (*KnowledgeBase, error) {
	var kb KnowledgeBase
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		collection, err := s.BindAvailableCollection(ctx, tx)
		if err != nil {
			return err
		}

		kb = KnowledgeBase{
			OwnerUserID:  ownerUserID,
			Name:         name,
			Category:     category,
			CollectionID: collection.ID,
		}
		return tx.QueryRow(ctx, `
			INSERT INTO knowledge_bases (owner_user_id, name, category, collection_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			ownerUserID, name, category, collection.ID,
		).Scan(&kb.ID, &kb.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &kb, nil
}

// ListKnowledgeBasesByOwner returns a page of an owner's knowledge bases
// ordered newest first, plus the total count for pagination.
func (s *Store) ListKnowledgeBasesByOwner(ctx context.Context, ownerUserID int64, offset, limit int) ([]KnowledgeBase, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM knowledge_bases WHERE owner_user_id = $1`, ownerUserID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting knowledge bases for owner %d: %w", ownerUserID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_user_id, name, category, collection_id, created_at
		FROM knowledge_bases
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		ownerUserID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing knowledge bases for owner %d: %w", ownerUserID, err)
	}
	defer rows.Close()

	var out []KnowledgeBase
	for rows.Next() {
		var kb KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.OwnerUserID, &kb.Name, &kb.Category, &kb.CollectionID, &kb.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning knowledge base: %w", err)
		}
		out = append(out, kb)
	}
	return out, total, rows.Err()
}

// DeleteKnowledgeBase marks the bound collection CLEANUP and removes the KB
// row in one transaction.
func (s *Store) DeleteKnowledgeBase(ctx context.Context, kbID, ownerUserID int64) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var collectionID int64
		err := tx.QueryRow(ctx,
			`SELECT collection_id FROM knowledge_bases WHERE id = $1 AND owner_user_id = $2`,
			kbID, ownerUserID,
		).Scan(&collectionID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return fmt.Errorf("knowledge base %d: %w", kbID, ErrNotFound)
			}
			return fmt.Errorf("looking up knowledge base %d: %w", kbID, err)
		}

		if err := s.MarkCollectionCleanup(ctx, tx, collectionID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM knowledge_bases WHERE id = $1`, kbID); err != nil {
			return fmt.Errorf("deleting knowledge base %d: %w", kbID, err)
		}

		return nil
	})
}
