package knowledgebase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvexa/ingestord/internal/ledger"
)

type fakeLedger struct {
	nextID       int64
	createErr    error
	deleteErr    error
	deletedIDs   []int64
	detail       *ledger.KnowledgeBaseWithCollection
	detailErr    error
	listedOwner  int64
}

func (f *fakeLedger) CreateKnowledgeBase(ctx context.Context, ownerUserID int64, name, category string) (*ledger.KnowledgeBase, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	return &ledger.KnowledgeBase{ID: f.nextID, OwnerUserID: ownerUserID, Name: name, Category: category}, nil
}

func (f *fakeLedger) DeleteKnowledgeBase(ctx context.Context, kbID, ownerUserID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, kbID)
	return nil
}

func (f *fakeLedger) GetKnowledgeBaseWithCollection(ctx context.Context, kbID, userID int64) (*ledger.KnowledgeBaseWithCollection, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.detail, nil
}

func (f *fakeLedger) ListKnowledgeBasesByOwner(ctx context.Context, ownerUserID int64, offset, limit int) ([]ledger.KnowledgeBase, int, error) {
	f.listedOwner = ownerUserID
	return nil, 0, nil
}

type fakePoolTrigger struct {
	reconcileCalls int
	cleanupCalls   int
}

func (f *fakePoolTrigger) TriggerReconcile(ctx context.Context) { f.reconcileCalls++ }
func (f *fakePoolTrigger) TriggerCleanup(ctx context.Context)   { f.cleanupCalls++ }

func TestCreateTriggersReconcile(t *testing.T) {
	fl := &fakeLedger{}
	fp := &fakePoolTrigger{}
	s := New(fl, fp)

	kb, err := s.Create(context.Background(), 1, "docs", "support")
	require.NoError(t, err)
	assert.Equal(t, "docs", kb.Name)
	assert.Equal(t, 1, fp.reconcileCalls)
}

func TestCreatePoolExhaustedMapsToSentinel(t *testing.T) {
	fl := &fakeLedger{createErr: ledger.ErrNoAvailableCollection}
	fp := &fakePoolTrigger{}
	s := New(fl, fp)

	_, err := s.Create(context.Background(), 1, "docs", "support")
	require.ErrorIs(t, err, ErrPoolExhausted)
	assert.Zero(t, fp.reconcileCalls)
}

func TestDeleteTriggersCleanup(t *testing.T) {
	fl := &fakeLedger{}
	fp := &fakePoolTrigger{}
	s := New(fl, fp)

	require.NoError(t, s.Delete(context.Background(), 5, 1))
	assert.Equal(t, []int64{5}, fl.deletedIDs)
	assert.Equal(t, 1, fp.cleanupCalls)
}

func TestDeleteNotFoundSkipsCleanupTrigger(t *testing.T) {
	fl := &fakeLedger{deleteErr: ledger.ErrNotFound}
	fp := &fakePoolTrigger{}
	s := New(fl, fp)

	err := s.Delete(context.Background(), 5, 1)
	require.Error(t, err)
	assert.Zero(t, fp.cleanupCalls)
}
