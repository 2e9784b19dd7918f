// Package ledger is the relational store of record: users, documents,
// knowledge bases, vector-collection records, document↔knowledge-base links,
// and ingestion jobs. It provides the transactional primitives every higher
// layer (admission, provisioner, worker, reaper) builds on.
package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a connection pool and exposes entity-scoped query methods.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pool, for callers that need to manage their
// own transaction.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any returned error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Sentinel error kinds per the error-handling taxonomy (spec §7). Each
// package layers its own named errors (e.g. ErrKnowledgeBaseNotFound) that
// wrap one of these via errors.Is, rather than a generic error-code
// framework.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation error")
	ErrInvariant  = errors.New("invariant violation")
)

// IsNotFound reports whether err is, or wraps, pgx.ErrNoRows or ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound)
}
