package ingestworker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvexa/ingestord/internal/chunker"
	"github.com/corvexa/ingestord/internal/ledger"
	"github.com/corvexa/ingestord/internal/loader"
	"github.com/corvexa/ingestord/internal/queue"
	"github.com/corvexa/ingestord/internal/vectorstore"
)

type fakeLedgerStore struct {
	mu            sync.Mutex
	linkStatuses  map[int64]ledger.LinkStatus
	deletedLinks  []int64
	failedLinks   []int64
	jobStatus     ledger.JobOpStatus
	parentChunks  int
	deletedDocIDs []int64
	failWithTx    bool
}

func (f *fakeLedgerStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if f.failWithTx {
		return errors.New("tx failed")
	}
	return fn(nil)
}

func (f *fakeLedgerStore) InsertParentChunkTx(ctx context.Context, tx pgx.Tx, documentID, kbDocID int64, content string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parentChunks++
	return int64(f.parentChunks), nil
}

func (f *fakeLedgerStore) DeleteParentChunksByDocumentTx(ctx context.Context, tx pgx.Tx, documentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedDocIDs = append(f.deletedDocIDs, documentID)
	return nil
}

func (f *fakeLedgerStore) BulkUpdateLinkStatusesTx(ctx context.Context, tx pgx.Tx, results map[int64]ledger.LinkStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkStatuses = results
	return nil
}

func (f *fakeLedgerStore) ResolveDeleteLinksTx(ctx context.Context, tx pgx.Tx, succeeded, failed []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedLinks = succeeded
	f.failedLinks = failed
	return nil
}

func (f *fakeLedgerStore) UpdateIngestionJobStatusTx(ctx context.Context, tx pgx.Tx, id int64, status ledger.JobOpStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobStatus = status
	return nil
}

func (f *fakeLedgerStore) UpdateIngestionJobStatus(ctx context.Context, id int64, status ledger.JobOpStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobStatus = status
	return nil
}

type fakeObjectStore struct{}

func (fakeObjectStore) Download(ctx context.Context, objectKey, dir string) (string, error) {
	return "/tmp/fake" + objectKey, nil
}

type fakeLoaderRegistry struct{ empty bool }

func (f fakeLoaderRegistry) Load(ctx context.Context, path string) ([]loader.Unit, error) {
	if f.empty {
		return nil, nil
	}
	return []loader.Unit{{Text: "hello world, this is a test document."}}, nil
}

type fakeChunker struct{}

func (fakeChunker) Chunk(ctx context.Context, units []loader.Unit) ([]chunker.ParentChunk, error) {
	return []chunker.ParentChunk{
		{Text: "parent text", Children: []chunker.ChildChunk{{Index: 0, Text: "child one"}, {Index: 1, Text: "child two"}}},
	}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeVectorStore struct {
	mu       sync.Mutex
	upserted []vectorstore.Entity
	deleted  []int64
}

func (f *fakeVectorStore) Upsert(ctx context.Context, collection string, entities []vectorstore.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, entities...)
	return nil
}

func (f *fakeVectorStore) DeleteByFileID(ctx context.Context, collection string, fileID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, fileID)
	return nil
}

func testWorker(t *testing.T, store *fakeLedgerStore, vs *fakeVectorStore) *Worker {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{MaxConcurrentFiles: 2}, nil, fakeObjectStore{}, fakeLoaderRegistry{}, fakeChunker{}, fakeEmbedder{}, vs, store, logger)
}

func TestProcessMessageHappyPathIndexesAllFiles(t *testing.T) {
	store := &fakeLedgerStore{}
	vs := &fakeVectorStore{}
	w := testWorker(t, store, vs)

	env := queue.Envelope{
		IngestionJobID: 1,
		CollectionName: "kb-x",
		Category:       "docs",
		UserID:         7,
		IndexKBDocID: []queue.ManifestEntry{
			{KBDocID: 10, DocID: 100, FileName: "a.txt", ObjectKey: "a.txt"},
			{KBDocID: 11, DocID: 101, FileName: "b.txt", ObjectKey: "b.txt"},
		},
	}

	require.NoError(t, w.ProcessMessage(context.Background(), env))
	assert.Equal(t, ledger.JobSuccess, store.jobStatus)
	assert.Equal(t, ledger.LinkSuccess, store.linkStatuses[10])
	assert.Equal(t, ledger.LinkSuccess, store.linkStatuses[11])
	assert.Len(t, vs.upserted, 4) // 2 children per file x 2 files
}

func TestProcessMessageInvalidExtensionFailsThatFileOnly(t *testing.T) {
	store := &fakeLedgerStore{}
	vs := &fakeVectorStore{}
	w := testWorker(t, store, vs)

	env := queue.Envelope{
		IngestionJobID: 2,
		CollectionName: "kb-x",
		IndexKBDocID: []queue.ManifestEntry{
			{KBDocID: 20, DocID: 200, FileName: "bad.exe", ObjectKey: "bad.exe"},
		},
	}

	require.NoError(t, w.ProcessMessage(context.Background(), env))
	assert.Equal(t, ledger.JobFailed, store.jobStatus)
	assert.Equal(t, ledger.LinkFailed, store.linkStatuses[20])
}

func TestProcessMessageDeleteList(t *testing.T) {
	store := &fakeLedgerStore{}
	vs := &fakeVectorStore{}
	w := testWorker(t, store, vs)

	env := queue.Envelope{
		IngestionJobID: 3,
		CollectionName: "kb-x",
		DeleteKBDocID: []queue.ManifestEntry{
			{KBDocID: 30, DocID: 300, FileName: "c.txt", ObjectKey: "c.txt"},
		},
	}

	require.NoError(t, w.ProcessMessage(context.Background(), env))
	assert.Equal(t, ledger.JobSuccess, store.jobStatus)
	assert.Contains(t, store.deletedLinks, int64(30))
	assert.Contains(t, vs.deleted, int64(30))
	assert.Contains(t, store.deletedDocIDs, int64(300))
}

func TestProcessMessageCommitFailureMarksJobFailedBestEffort(t *testing.T) {
	store := &fakeLedgerStore{failWithTx: true}
	vs := &fakeVectorStore{}
	w := testWorker(t, store, vs)

	env := queue.Envelope{
		IngestionJobID: 4,
		CollectionName: "kb-x",
		IndexKBDocID: []queue.ManifestEntry{
			{KBDocID: 40, DocID: 400, FileName: "d.txt", ObjectKey: "d.txt"},
		},
	}

	err := w.ProcessMessage(context.Background(), env)
	assert.Error(t, err)
	assert.Equal(t, ledger.JobFailed, store.jobStatus)
}

func TestVectorIDsDeterministicAcrossRedelivery(t *testing.T) {
	store1 := &fakeLedgerStore{}
	vs1 := &fakeVectorStore{}
	w1 := testWorker(t, store1, vs1)

	store2 := &fakeLedgerStore{}
	vs2 := &fakeVectorStore{}
	w2 := testWorker(t, store2, vs2)

	env := queue.Envelope{
		IngestionJobID: 5,
		CollectionName: "kb-x",
		IndexKBDocID: []queue.ManifestEntry{
			{KBDocID: 50, DocID: 500, FileName: "e.txt", ObjectKey: "e.txt"},
		},
	}

	require.NoError(t, w1.ProcessMessage(context.Background(), env))
	require.NoError(t, w2.ProcessMessage(context.Background(), env))

	require.Len(t, vs1.upserted, len(vs2.upserted))
	for i := range vs1.upserted {
		assert.Equal(t, vs1.upserted[i].ID, vs2.upserted[i].ID)
	}
}
