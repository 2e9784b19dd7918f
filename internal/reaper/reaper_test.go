package reaper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvexa/ingestord/internal/ledger"
)

type fakeLedger struct {
	conflicted    []ledger.ConflictedDocument
	resolvedPresent []int64
	resolvedAbsent  []int64
	stuckJobCount   int64
}

func (f *fakeLedger) ListConflictedDocuments(ctx context.Context) ([]ledger.ConflictedDocument, error) {
	return f.conflicted, nil
}

func (f *fakeLedger) ResolveConflictedDocumentPresent(ctx context.Context, id int64) error {
	f.resolvedPresent = append(f.resolvedPresent, id)
	return nil
}

func (f *fakeLedger) ResolveConflictedDocumentAbsent(ctx context.Context, id int64) error {
	f.resolvedAbsent = append(f.resolvedAbsent, id)
	return nil
}

func (f *fakeLedger) FailStuckJobs(ctx context.Context, maxAge time.Duration) (int64, error) {
	return f.stuckJobCount, nil
}

type fakeObjectStore struct {
	present map[string]bool
}

func (f *fakeObjectStore) Exists(ctx context.Context, objectKey string) (bool, error) {
	return f.present[objectKey], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcileConflictedDocumentsPresentClearsLock(t *testing.T) {
	fl := &fakeLedger{
		conflicted: []ledger.ConflictedDocument{
			{Document: ledger.Document{ID: 1, ObjectKey: "a.txt"}},
		},
	}
	fo := &fakeObjectStore{present: map[string]bool{"a.txt": true}}
	r := New(fl, fo, testLogger())

	require.NoError(t, r.reconcileConflictedDocuments(context.Background()))
	assert.Equal(t, []int64{1}, fl.resolvedPresent)
	assert.Empty(t, fl.resolvedAbsent)
}

func TestReconcileConflictedDocumentsAbsentDeletesRow(t *testing.T) {
	fl := &fakeLedger{
		conflicted: []ledger.ConflictedDocument{
			{Document: ledger.Document{ID: 2, ObjectKey: "missing.txt"}},
		},
	}
	fo := &fakeObjectStore{present: map[string]bool{}}
	r := New(fl, fo, testLogger())

	require.NoError(t, r.reconcileConflictedDocuments(context.Background()))
	assert.Equal(t, []int64{2}, fl.resolvedAbsent)
	assert.Empty(t, fl.resolvedPresent)
}

func TestFailStuckJobsDelegatesToLedger(t *testing.T) {
	fl := &fakeLedger{stuckJobCount: 3}
	fo := &fakeObjectStore{}
	r := New(fl, fo, testLogger())

	require.NoError(t, r.failStuckJobs(context.Background()))
}

func TestTriggerCoalesces(t *testing.T) {
	fl := &fakeLedger{}
	fo := &fakeObjectStore{}
	r := New(fl, fo, testLogger())

	r.Trigger()
	r.Trigger()
	r.Trigger()
	assert.Len(t, r.triggerCh, 1)
}
