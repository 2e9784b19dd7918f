package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvexa/ingestord/internal/ledger"
)

type fakeLedger struct {
	mu            sync.Mutex
	nextID        int64
	collections   map[int64]*ledger.VectorCollection
	createFails   bool
	cleanupRows   []ledger.VectorCollection
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{collections: make(map[int64]*ledger.VectorCollection)}
}

func (f *fakeLedger) InsertProvisioningCollection(ctx context.Context, name string) (*ledger.VectorCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := &ledger.VectorCollection{ID: f.nextID, CollectionName: name, Status: ledger.CollectionProvisioning, CreatedAt: time.Now()}
	f.collections[c.ID] = c
	return c, nil
}

func (f *fakeLedger) MarkCollectionAvailable(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.collections[id]; ok {
		c.Status = ledger.CollectionAvailable
	}
	return nil
}

func (f *fakeLedger) DeleteCollectionRow(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, id)
	return nil
}

func (f *fakeLedger) CountAvailableAndRecentlyProvisioning(ctx context.Context, threshold time.Duration) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var available, provisioning int
	for _, c := range f.collections {
		switch c.Status {
		case ledger.CollectionAvailable:
			available++
		case ledger.CollectionProvisioning:
			provisioning++
		}
	}
	return available, provisioning, nil
}

func (f *fakeLedger) ListForCleanup(ctx context.Context, maxAge time.Duration) ([]ledger.VectorCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanupRows, nil
}

type fakeVectorStore struct {
	createFails bool
	created     []string
	dropped     []string
}

func (v *fakeVectorStore) CreateCollection(ctx context.Context, name string) error {
	if v.createFails {
		return errors.New("create failed")
	}
	v.created = append(v.created, name)
	return nil
}

func (v *fakeVectorStore) DropCollection(ctx context.Context, name string) error {
	v.dropped = append(v.dropped, name)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcileToppsUpToMinPoolSize(t *testing.T) {
	fl := newFakeLedger()
	fv := &fakeVectorStore{}
	e := New(Config{MinPoolSize: 3, MaxConcurrentProvisioner: 2, TimeThreshold: time.Minute}, fl, fv, nil, testLogger())

	require.NoError(t, e.reconcile(context.Background()))

	available, provisioning, err := fl.CountAvailableAndRecentlyProvisioning(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, available+provisioning)
	assert.Len(t, fv.created, 3)
}

func TestReconcileNoOpWhenAlreadyAtMinimum(t *testing.T) {
	fl := newFakeLedger()
	fl.nextID = 1
	fl.collections[1] = &ledger.VectorCollection{ID: 1, Status: ledger.CollectionAvailable}
	fv := &fakeVectorStore{}
	e := New(Config{MinPoolSize: 1, MaxConcurrentProvisioner: 2, TimeThreshold: time.Minute}, fl, fv, nil, testLogger())

	require.NoError(t, e.reconcile(context.Background()))
	assert.Empty(t, fv.created)
}

func TestReconcileReturnsErrorWhenAllProvisionsFail(t *testing.T) {
	fl := newFakeLedger()
	fv := &fakeVectorStore{createFails: true}
	e := New(Config{MinPoolSize: 2, MaxConcurrentProvisioner: 2, TimeThreshold: time.Minute}, fl, fv, nil, testLogger())

	err := e.reconcile(context.Background())
	assert.Error(t, err)
}

func TestCleanupDropsCandidatesAndDeletesRows(t *testing.T) {
	fl := newFakeLedger()
	fl.cleanupRows = []ledger.VectorCollection{
		{ID: 1, CollectionName: "kb-a", Status: ledger.CollectionFailed},
		{ID: 2, CollectionName: "kb-b", Status: ledger.CollectionCleanup},
	}
	fl.collections[1] = &fl.cleanupRows[0]
	fl.collections[2] = &fl.cleanupRows[1]
	fv := &fakeVectorStore{}
	e := New(Config{MaxConcurrentProvisioner: 2}, fl, fv, nil, testLogger())

	require.NoError(t, e.cleanup(context.Background()))
	assert.ElementsMatch(t, []string{"kb-a", "kb-b"}, fv.dropped)
	assert.Empty(t, fl.collections)
}

func TestTriggerLocalCoalescesSignals(t *testing.T) {
	ch := make(chan struct{}, 1)
	triggerLocal(ch)
	triggerLocal(ch)
	triggerLocal(ch)
	assert.Len(t, ch, 1)
}
