package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// CollectionStatus is the lifecycle status of a VectorCollection.
type CollectionStatus string

const (
	CollectionProvisioning CollectionStatus = "PROVISIONING"
	CollectionAvailable    CollectionStatus = "AVAILABLE"
	CollectionAssigned     CollectionStatus = "ASSIGNED"
	CollectionCleanup      CollectionStatus = "CLEANUP"
	CollectionFailed       CollectionStatus = "FAILED"
)

// VectorCollection mirrors the vector_collections table.
type VectorCollection struct {
	ID             int64
	CollectionName string
	Status         CollectionStatus
	CreatedAt      time.Time
}

// InsertProvisioningCollection inserts a new row in PROVISIONING status,
// step (1) of provisionOne.
func (s *Store) InsertProvisioningCollection(ctx context.Context, collectionName string) (*VectorCollection, error) {
	c := &VectorCollection{CollectionName: collectionName, Status: CollectionProvisioning}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO vector_collections (collection_name, status)
		VALUES ($1, 'PROVISIONING')
		RETURNING id, created_at`,
		collectionName,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting provisioning collection %q: %w", collectionName, err)
	}
	return c, nil
}

// MarkCollectionAvailable transitions a PROVISIONING row to AVAILABLE, step
// (3) of provisionOne.
func (s *Store) MarkCollectionAvailable(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE vector_collections SET status = 'AVAILABLE' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking collection %d available: %w", id, err)
	}
	return nil
}

// DeleteCollectionRow removes a collection row outright — the compensating
// action when vector-store creation fails.
func (s *Store) DeleteCollectionRow(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM vector_collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting collection row %d: %w", id, err)
	}
	return nil
}

// CountAvailableAndRecentlyProvisioning returns A (AVAILABLE count) and P
// (PROVISIONING count with created_at within the threshold), for reconcile's
// A+P comparison against MIN_POOL_SIZE / MAX_POOL_SIZE.
func (s *Store) CountAvailableAndRecentlyProvisioning(ctx context.Context, threshold time.Duration) (available, provisioning int, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'AVAILABLE'),
			count(*) FILTER (WHERE status = 'PROVISIONING' AND created_at > $1)
		FROM vector_collections`,
		time.Now().Add(-threshold),
	).Scan(&available, &provisioning)
	if err != nil {
		return 0, 0, fmt.Errorf("counting pool collections: %w", err)
	}
	return available, provisioning, nil
}

// ListForCleanup selects collections eligible for the cleanup pass: FAILED,
// or stuck PROVISIONING past the given age, or CLEANUP with no referencing
// KnowledgeBase.
func (s *Store) ListForCleanup(ctx context.Context, provisioningMaxAge time.Duration) ([]VectorCollection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT vc.id, vc.collection_name, vc.status, vc.created_at
		FROM vector_collections vc
		WHERE vc.status = 'FAILED'
		   OR (vc.status = 'PROVISIONING' AND vc.created_at < $1)
		   OR (vc.status = 'CLEANUP' AND NOT EXISTS (
		         SELECT 1 FROM knowledge_bases kb WHERE kb.collection_id = vc.id
		       ))`,
		time.Now().Add(-provisioningMaxAge),
	)
	if err != nil {
		return nil, fmt.Errorf("listing collections for cleanup: %w", err)
	}
	defer rows.Close()

	var out []VectorCollection
	for rows.Next() {
		var c VectorCollection
		if err := rows.Scan(&c.ID, &c.CollectionName, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning cleanup candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ErrNoAvailableCollection is returned by BindAvailableCollection when the
// warm pool is empty.
var ErrNoAvailableCollection = fmt.Errorf("no available vector collection: %w", ErrNotFound)

// BindAvailableCollection selects one AVAILABLE collection with
// FOR UPDATE SKIP LOCKED and flips it to ASSIGNED, within the caller's
// transaction. Returns ErrNoAvailableCollection if the pool is empty.
func (s *Store) BindAvailableCollection(ctx context.Context, tx pgx.Tx) (*VectorCollection, error) {
	var c VectorCollection
	err := tx.QueryRow(ctx, `
		SELECT id, collection_name, status, created_at
		FROM vector_collections
		WHERE status = 'AVAILABLE'
		ORDER BY random()
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
	).Scan(&c.ID, &c.CollectionName, &c.Status, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoAvailableCollection
		}
		return nil, fmt.Errorf("binding available collection: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE vector_collections SET status = 'ASSIGNED' WHERE id = $1`, c.ID); err != nil {
		return nil, fmt.Errorf("assigning collection %d: %w", c.ID, err)
	}
	c.Status = CollectionAssigned

	return &c, nil
}

// MarkCollectionCleanup transitions a collection (normally ASSIGNED) to
// CLEANUP, called when its owning KnowledgeBase is deleted.
func (s *Store) MarkCollectionCleanup(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `UPDATE vector_collections SET status = 'CLEANUP' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking collection %d for cleanup: %w", id, err)
	}
	return nil
}
