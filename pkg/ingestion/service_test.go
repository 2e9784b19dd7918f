package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvexa/ingestord/internal/ledger"
	"github.com/corvexa/ingestord/internal/queue"
)

type fakeLedger struct {
	kb          *ledger.KnowledgeBaseWithCollection
	kbErr       error
	usable      map[int64]*ledger.Document
	missing     []int64
	nextJobID   int64
	createdJobs []int64
	manifest    []ledger.ManifestEntry
	deleteIDs   []int64
}

func (f *fakeLedger) GetKnowledgeBaseWithCollection(ctx context.Context, kbID, userID int64) (*ledger.KnowledgeBaseWithCollection, error) {
	if f.kbErr != nil {
		return nil, f.kbErr
	}
	return f.kb, nil
}

func (f *fakeLedger) GetUsableDocuments(ctx context.Context, ownerUserID int64, ids []int64) (map[int64]*ledger.Document, []int64, error) {
	return f.usable, f.missing, nil
}

func (f *fakeLedger) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (f *fakeLedger) CreateIngestionJobTx(ctx context.Context, tx pgx.Tx, kbID int64) (*ledger.IngestionJob, error) {
	f.nextJobID++
	f.createdJobs = append(f.createdJobs, f.nextJobID)
	return &ledger.IngestionJob{ID: f.nextJobID, KBID: kbID, OpStatus: ledger.JobPending}, nil
}

func (f *fakeLedger) UpsertLinksPendingTx(ctx context.Context, tx pgx.Tx, kbID int64, docs map[int64]*ledger.Document) ([]ledger.ManifestEntry, error) {
	return f.manifest, nil
}

func (f *fakeLedger) MarkLinksPendingForDeleteTx(ctx context.Context, tx pgx.Tx, kbID int64, docIDs []int64) ([]ledger.ManifestEntry, error) {
	f.deleteIDs = docIDs
	return f.manifest, nil
}

type fakeQueue struct {
	sent    []queue.Envelope
	sendErr error
}

func (f *fakeQueue) Send(ctx context.Context, env queue.Envelope) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, env)
	return nil
}

func TestAdmitIndexHappyPath(t *testing.T) {
	fl := &fakeLedger{
		kb:       &ledger.KnowledgeBaseWithCollection{KnowledgeBase: ledger.KnowledgeBase{ID: 5}, CollectionName: "kb-x"},
		usable:   map[int64]*ledger.Document{10: {ID: 10}, 11: {ID: 11}},
		manifest: []ledger.ManifestEntry{{KBDocID: 1, DocID: 10}, {KBDocID: 2, DocID: 11}},
	}
	fq := &fakeQueue{}
	s := New(fl, fq)

	job, err := s.AdmitIndex(context.Background(), 1, 5, []int64{10, 11})
	require.NoError(t, err)
	assert.Equal(t, ledger.JobPending, job.OpStatus)
	require.Len(t, fq.sent, 1)
	assert.Len(t, fq.sent[0].IndexKBDocID, 2)
	assert.Nil(t, fq.sent[0].DeleteKBDocID)
}

func TestAdmitIndexMissingDocsFails(t *testing.T) {
	fl := &fakeLedger{
		kb:      &ledger.KnowledgeBaseWithCollection{KnowledgeBase: ledger.KnowledgeBase{ID: 5}},
		missing: []int64{999},
	}
	fq := &fakeQueue{}
	s := New(fl, fq)

	_, err := s.AdmitIndex(context.Background(), 1, 5, []int64{10, 999})
	var notFound *ErrDocsNotFound
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, []int64{999}, notFound.Missing)
	assert.Empty(t, fq.sent)
}

func TestAdmitIndexKnowledgeBaseNotFound(t *testing.T) {
	fl := &fakeLedger{kbErr: ledger.ErrNotFound}
	fq := &fakeQueue{}
	s := New(fl, fq)

	_, err := s.AdmitIndex(context.Background(), 1, 5, []int64{10})
	assert.ErrorIs(t, err, ErrKnowledgeBaseNotFound)
}

func TestAdmitIndexQueueFailureRollsBack(t *testing.T) {
	fl := &fakeLedger{
		kb:       &ledger.KnowledgeBaseWithCollection{KnowledgeBase: ledger.KnowledgeBase{ID: 5}},
		usable:   map[int64]*ledger.Document{10: {ID: 10}},
		manifest: []ledger.ManifestEntry{{KBDocID: 1, DocID: 10}},
	}
	fq := &fakeQueue{sendErr: errors.New("send failed")}
	s := New(fl, fq)

	_, err := s.AdmitIndex(context.Background(), 1, 5, []int64{10})
	require.Error(t, err)
	assert.Empty(t, fq.sent)
}

func TestAdmitDeletePopulatesDeleteList(t *testing.T) {
	fl := &fakeLedger{
		kb:       &ledger.KnowledgeBaseWithCollection{KnowledgeBase: ledger.KnowledgeBase{ID: 5}},
		manifest: []ledger.ManifestEntry{{KBDocID: 1, DocID: 10}},
	}
	fq := &fakeQueue{}
	s := New(fl, fq)

	_, err := s.AdmitDelete(context.Background(), 1, 5, []int64{10})
	require.NoError(t, err)
	require.Len(t, fq.sent, 1)
	assert.Len(t, fq.sent[0].DeleteKBDocID, 1)
	assert.Nil(t, fq.sent[0].IndexKBDocID)
	assert.Equal(t, []int64{10}, fl.deleteIDs)
}
