// Package document covers the document upload lifecycle: admission (issue a
// presigned upload URL and a locked PENDING row), the client's
// upload-completion callback, listing, and two-phase delete. Parsing the
// uploaded bytes themselves is the Loader registry's job (internal/loader),
// out of scope here per spec.md §1.
package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/corvexa/ingestord/internal/ledger"
	"github.com/corvexa/ingestord/internal/objectstore"
)

// Ledger is the subset of *ledger.Store the document service needs.
type Ledger interface {
	CreateDocument(ctx context.Context, ownerUserID int64, fileName, objectKey string) (*ledger.Document, error)
	FinalizeDocument(ctx context.Context, id int64, status ledger.DocumentOpStatus) error
	GetDocument(ctx context.Context, id, ownerUserID int64) (*ledger.Document, error)
	ListDocumentsByOwner(ctx context.Context, ownerUserID int64, offset, limit int) ([]ledger.Document, int, error)
	LockDocumentForDelete(ctx context.Context, id, ownerUserID int64) (*ledger.Document, error)
	DeleteDocumentRow(ctx context.Context, id int64) error
}

// ObjectStore is the subset of *objectstore.Gateway the document service
// needs.
type ObjectStore interface {
	PresignUpload(ctx context.Context, objectKey, contentType string) (string, error)
	Delete(ctx context.Context, objectKey string) error
}

// Service implements the document upload/finalize/delete operations.
type Service struct {
	ledger      Ledger
	objectStore ObjectStore
}

// New constructs a Service.
func New(store Ledger, objectStore ObjectStore) *Service {
	return &Service{ledger: store, objectStore: objectStore}
}

// UploadInit is the result of InitiateUpload: the new locked document row
// plus the presigned URL the client uploads bytes to directly.
type UploadInit struct {
	Document  *ledger.Document
	UploadURL string
}

// InitiateUpload validates the file extension, creates a locked PENDING
// document row, and issues a presigned upload URL.
func (s *Service) InitiateUpload(ctx context.Context, ownerUserID int64, fileName string) (*UploadInit, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	contentType, ok := objectstore.ContentTypeByExtension[ext]
	if !ok {
		return nil, fmt.Errorf("file %q: %w", fileName, objectstore.ErrUnsupportedExtension)
	}

	objectKey := fmt.Sprintf("%d/%s", ownerUserID, fileName)

	doc, err := s.ledger.CreateDocument(ctx, ownerUserID, fileName, objectKey)
	if err != nil {
		return nil, fmt.Errorf("creating document %q: %w", fileName, err)
	}

	url, err := s.objectStore.PresignUpload(ctx, objectKey, contentType)
	if err != nil {
		return nil, fmt.Errorf("presigning upload for %q: %w", fileName, err)
	}

	return &UploadInit{Document: doc, UploadURL: url}, nil
}

// FinalizeUpload applies the client's upload-completion callback.
func (s *Service) FinalizeUpload(ctx context.Context, id int64, success bool) error {
	status := ledger.DocumentSuccess
	if !success {
		status = ledger.DocumentFailed
	}
	return s.ledger.FinalizeDocument(ctx, id, status)
}

// Get fetches one document scoped to its owner.
func (s *Service) Get(ctx context.Context, id, ownerUserID int64) (*ledger.Document, error) {
	return s.ledger.GetDocument(ctx, id, ownerUserID)
}

// List returns a page of an owner's documents.
func (s *Service) List(ctx context.Context, ownerUserID int64, offset, limit int) ([]ledger.Document, int, error) {
	return s.ledger.ListDocumentsByOwner(ctx, ownerUserID, offset, limit)
}

// Delete runs the two-phase lock-then-remove: lock the row, delete the
// object, then delete the row. A crash between the object delete and the row
// delete is resolved by the Orphan Reaper's conflicted-documents pass (the
// object will be absent, so the reaper removes the row on its next pass).
func (s *Service) Delete(ctx context.Context, id, ownerUserID int64) error {
	doc, err := s.ledger.LockDocumentForDelete(ctx, id, ownerUserID)
	if err != nil {
		return fmt.Errorf("locking document %d for delete: %w", id, err)
	}

	if err := s.objectStore.Delete(ctx, doc.ObjectKey); err != nil {
		return fmt.Errorf("deleting object %q: %w", doc.ObjectKey, err)
	}

	if err := s.ledger.DeleteDocumentRow(ctx, id); err != nil {
		return fmt.Errorf("deleting document row %d: %w", id, err)
	}

	return nil
}
