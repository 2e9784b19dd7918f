// Package knowledgebase implements knowledge base create/get/list/delete,
// the Collection Pool Provisioner's client-facing side (spec §4.1). Creation
// binds a warm AVAILABLE VectorCollection; deletion marks the bound
// collection for cleanup. Both trigger the pool provisioner afterward so the
// warm set is refilled or drained promptly rather than waiting on its
// periodic fallback.
package knowledgebase

import (
	"context"
	"errors"
	"fmt"

	"github.com/corvexa/ingestord/internal/ledger"
)

// ErrPoolExhausted is returned by Create when no AVAILABLE VectorCollection
// exists to bind, mapped by the handler to a 503-equivalent response.
var ErrPoolExhausted = errors.New("vector collection pool exhausted")

// Ledger is the subset of *ledger.Store the knowledge base service needs.
type Ledger interface {
	CreateKnowledgeBase(ctx context.Context, ownerUserID int64, name, category string) (*ledger.KnowledgeBase, error)
	DeleteKnowledgeBase(ctx context.Context, kbID, ownerUserID int64) error
	GetKnowledgeBaseWithCollection(ctx context.Context, kbID, userID int64) (*ledger.KnowledgeBaseWithCollection, error)
	ListKnowledgeBasesByOwner(ctx context.Context, ownerUserID int64, offset, limit int) ([]ledger.KnowledgeBase, int, error)
}

// PoolTrigger is the subset of *pool.Engine the knowledge base service needs
// to nudge after a binding change.
type PoolTrigger interface {
	TriggerReconcile(ctx context.Context)
	TriggerCleanup(ctx context.Context)
}

// Service implements knowledge base management.
type Service struct {
	ledger Ledger
	pool   PoolTrigger
}

// New constructs a Service.
func New(store Ledger, pool PoolTrigger) *Service {
	return &Service{ledger: store, pool: pool}
}

// Create binds an AVAILABLE collection and inserts the knowledge base row,
// then triggers the provisioner to top the warm pool back up.
func (s *Service) Create(ctx context.Context, ownerUserID int64, name, category string) (*ledger.KnowledgeBase, error) {
	kb, err := s.ledger.CreateKnowledgeBase(ctx, ownerUserID, name, category)
	if err != nil {
		if errors.Is(err, ledger.ErrNoAvailableCollection) {
			return nil, fmt.Errorf("creating knowledge base %q: %w", name, ErrPoolExhausted)
		}
		return nil, fmt.Errorf("creating knowledge base %q: %w", name, err)
	}

	s.pool.TriggerReconcile(ctx)
	return kb, nil
}

// Get fetches one knowledge base, joined to its bound collection, scoped to
// its owner.
func (s *Service) Get(ctx context.Context, kbID, ownerUserID int64) (*ledger.KnowledgeBaseWithCollection, error) {
	return s.ledger.GetKnowledgeBaseWithCollection(ctx, kbID, ownerUserID)
}

// List returns a page of an owner's knowledge bases.
func (s *Service) List(ctx context.Context, ownerUserID int64, offset, limit int) ([]ledger.KnowledgeBase, int, error) {
	return s.ledger.ListKnowledgeBasesByOwner(ctx, ownerUserID, offset, limit)
}

// Delete marks the bound collection for cleanup and removes the knowledge
// base row, then triggers the provisioner's cleanup worker to reclaim it
// promptly.
func (s *Service) Delete(ctx context.Context, kbID, ownerUserID int64) error {
	if err := s.ledger.DeleteKnowledgeBase(ctx, kbID, ownerUserID); err != nil {
		return fmt.Errorf("deleting knowledge base %d: %w", kbID, err)
	}

	s.pool.TriggerCleanup(ctx)
	return nil
}
