package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// JobOpStatus is the lifecycle status of an IngestionJob.
type JobOpStatus string

const (
	JobPending JobOpStatus = "PENDING"
	JobSuccess JobOpStatus = "SUCCESS"
	JobFailed  JobOpStatus = "FAILED"
)

// IngestionJob mirrors the ingestion_jobs table.
type IngestionJob struct {
	ID         int64
	KBID       int64
	ResourceID uuid.UUID
	OpStatus   JobOpStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateIngestionJobTx inserts a PENDING IngestionJob row, admission step 3.
func (s *Store) CreateIngestionJobTx(ctx context.Context, tx pgx.Tx, kbID int64) (*IngestionJob, error) {
	job := &IngestionJob{KBID: kbID, ResourceID: uuid.New(), OpStatus: JobPending}
	err := tx.QueryRow(ctx, `
		INSERT INTO ingestion_jobs (kb_id, resource_id, op_status)
		VALUES ($1, $2, 'PENDING')
		RETURNING id, created_at, updated_at`,
		kbID, job.ResourceID,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating ingestion job for kb %d: %w", kbID, err)
	}
	return job, nil
}

// UpdateIngestionJobStatusTx sets the job's final op_status, processor step 4.
func (s *Store) UpdateIngestionJobStatusTx(ctx context.Context, tx pgx.Tx, id int64, status JobOpStatus) error {
	_, err := tx.Exec(ctx,
		`UPDATE ingestion_jobs SET op_status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("updating ingestion job %d status to %s: %w", id, status, err)
	}
	return nil
}

// UpdateIngestionJobStatus sets the job's op_status outside of a
// transaction — used for the best-effort mark-FAILED fallback (processor
// step 5) when the main transaction itself failed.
func (s *Store) UpdateIngestionJobStatus(ctx context.Context, id int64, status JobOpStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET op_status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("updating ingestion job %d status to %s: %w", id, status, err)
	}
	return nil
}

// FailStuckJobs updates IngestionJobs with op_status=PENDING and updated_at
// older than maxAge to FAILED, the Reaper's stuck-jobs pass. Returns the
// number of rows affected.
func (s *Store) FailStuckJobs(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ingestion_jobs
		SET op_status = 'FAILED', updated_at = now()
		WHERE op_status = 'PENDING' AND updated_at < $1`,
		time.Now().Add(-maxAge),
	)
	if err != nil {
		return 0, fmt.Errorf("failing stuck ingestion jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
