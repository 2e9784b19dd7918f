package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvexa/ingestord/internal/ledger"
)

type fakeLedger struct {
	nextID    int64
	created   []ledger.Document
	finalized map[int64]ledger.DocumentOpStatus
	docs      map[int64]*ledger.Document
	deleted   []int64
	lockFails bool
}

func (f *fakeLedger) CreateDocument(ctx context.Context, ownerUserID int64, fileName, objectKey string) (*ledger.Document, error) {
	f.nextID++
	d := ledger.Document{ID: f.nextID, OwnerUserID: ownerUserID, FileName: fileName, ObjectKey: objectKey, LockStatus: true, OpStatus: ledger.DocumentPending}
	f.created = append(f.created, d)
	if f.docs == nil {
		f.docs = map[int64]*ledger.Document{}
	}
	f.docs[d.ID] = &d
	return &d, nil
}

func (f *fakeLedger) FinalizeDocument(ctx context.Context, id int64, status ledger.DocumentOpStatus) error {
	if f.finalized == nil {
		f.finalized = map[int64]ledger.DocumentOpStatus{}
	}
	f.finalized[id] = status
	return nil
}

func (f *fakeLedger) GetDocument(ctx context.Context, id, ownerUserID int64) (*ledger.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return d, nil
}

func (f *fakeLedger) ListDocumentsByOwner(ctx context.Context, ownerUserID int64, offset, limit int) ([]ledger.Document, int, error) {
	return nil, 0, nil
}

func (f *fakeLedger) LockDocumentForDelete(ctx context.Context, id, ownerUserID int64) (*ledger.Document, error) {
	if f.lockFails {
		return nil, ledger.ErrNotFound
	}
	d, ok := f.docs[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return d, nil
}

func (f *fakeLedger) DeleteDocumentRow(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeObjectStore struct {
	uploadURL   string
	deletedKeys []string
}

func (f *fakeObjectStore) PresignUpload(ctx context.Context, objectKey, contentType string) (string, error) {
	return f.uploadURL, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, objectKey string) error {
	f.deletedKeys = append(f.deletedKeys, objectKey)
	return nil
}

func TestInitiateUploadRejectsUnsupportedExtension(t *testing.T) {
	fl := &fakeLedger{}
	fo := &fakeObjectStore{uploadURL: "https://example.com/upload"}
	s := New(fl, fo)

	_, err := s.InitiateUpload(context.Background(), 1, "malware.exe")
	require.Error(t, err)
	assert.Empty(t, fl.created)
}

func TestInitiateUploadHappyPath(t *testing.T) {
	fl := &fakeLedger{}
	fo := &fakeObjectStore{uploadURL: "https://example.com/upload"}
	s := New(fl, fo)

	init, err := s.InitiateUpload(context.Background(), 1, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/upload", init.UploadURL)
	assert.True(t, init.Document.LockStatus)
	assert.Equal(t, ledger.DocumentPending, init.Document.OpStatus)
}

func TestDeleteUnlocksObjectThenRow(t *testing.T) {
	fl := &fakeLedger{docs: map[int64]*ledger.Document{7: {ID: 7, ObjectKey: "1/a.txt", OpStatus: ledger.DocumentSuccess}}}
	fo := &fakeObjectStore{}
	s := New(fl, fo)

	require.NoError(t, s.Delete(context.Background(), 7, 1))
	assert.Equal(t, []string{"1/a.txt"}, fo.deletedKeys)
	assert.Equal(t, []int64{7}, fl.deleted)
}

func TestDeleteNotEligiblePropagatesNotFound(t *testing.T) {
	fl := &fakeLedger{lockFails: true}
	fo := &fakeObjectStore{}
	s := New(fl, fo)

	err := s.Delete(context.Background(), 7, 1)
	require.Error(t, err)
	assert.True(t, ledger.IsNotFound(err))
	assert.Empty(t, fo.deletedKeys)
}
