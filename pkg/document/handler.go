package document

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/corvexa/ingestord/internal/audit"
	"github.com/corvexa/ingestord/internal/httpserver"
	"github.com/corvexa/ingestord/internal/ledger"
	"github.com/corvexa/ingestord/internal/objectstore"
)

// Handler provides HTTP handlers for the document upload lifecycle.
type Handler struct {
	service *Service
	audit   *audit.Writer
	logger  *slog.Logger
}

// NewHandler creates a document Handler.
func NewHandler(service *Service, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{service: service, audit: auditWriter, logger: logger}
}

// Routes returns a chi.Router with document routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleInitiateUpload)
	r.Get("/", h.handleList)
	r.Route("/{document_id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/finalize", h.handleFinalize)
		r.Delete("/", h.handleDelete)
	})
	return r
}

type initiateUploadRequest struct {
	FileName string `json:"file_name" validate:"required,min=1,max=255"`
}

type uploadInitResponse struct {
	Document  documentView `json:"document"`
	UploadURL string       `json:"upload_url"`
}

type finalizeRequest struct {
	Success bool `json:"success"`
}

type documentView struct {
	ID        int64  `json:"id"`
	FileName  string `json:"file_name"`
	Status    string `json:"status"`
	Locked    bool   `json:"locked"`
	CreatedAt string `json:"created_at"`
}

func toDocumentView(d *ledger.Document) documentView {
	return documentView{
		ID:        d.ID,
		FileName:  d.FileName,
		Status:    string(d.OpStatus),
		Locked:    d.LockStatus,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) handleInitiateUpload(w http.ResponseWriter, r *http.Request) {
	identity, ok := httpserver.IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req initiateUploadRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	init, err := h.service.InitiateUpload(r.Context(), identity.UserID, req.FileName)
	if err != nil {
		if errors.Is(err, objectstore.ErrUnsupportedExtension) {
			httpserver.RespondError(w, http.StatusUnprocessableEntity, "unsupported_extension", err.Error())
			return
		}
		h.logger.Error("initiating document upload", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to initiate upload")
		return
	}

	h.audit.LogFromRequest(r, identity.UserID, "document.upload_initiated", "document", init.Document.ID, nil)
	httpserver.Respond(w, http.StatusCreated, uploadInitResponse{
		Document:  toDocumentView(init.Document),
		UploadURL: init.UploadURL,
	})
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	identity, id, ok := h.identifyAndParseID(w, r)
	if !ok {
		return
	}

	var req finalizeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.FinalizeUpload(r.Context(), id, req.Success); err != nil {
		if ledger.IsNotFound(err) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		h.logger.Error("finalizing document upload", "document_id", id, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to finalize upload")
		return
	}

	h.audit.LogFromRequest(r, identity.UserID, "document.upload_finalized", "document", id, nil)
	httpserver.Respond(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	identity, id, ok := h.identifyAndParseID(w, r)
	if !ok {
		return
	}

	doc, err := h.service.Get(r.Context(), id, identity.UserID)
	if err != nil {
		if ledger.IsNotFound(err) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		h.logger.Error("getting document", "document_id", id, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get document")
		return
	}

	httpserver.Respond(w, http.StatusOK, toDocumentView(doc))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	identity, ok := httpserver.IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	docs, total, err := h.service.List(r.Context(), identity.UserID, params.Offset, params.PageSize)
	if err != nil {
		h.logger.Error("listing documents", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list documents")
		return
	}

	views := make([]documentView, len(docs))
	for i := range docs {
		views[i] = toDocumentView(&docs[i])
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(views, params, total))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	identity, id, ok := h.identifyAndParseID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, identity.UserID); err != nil {
		if ledger.IsNotFound(err) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "document not found or not eligible for delete")
			return
		}
		h.logger.Error("deleting document", "document_id", id, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete document")
		return
	}

	h.audit.LogFromRequest(r, identity.UserID, "document.deleted", "document", id, nil)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) identifyAndParseID(w http.ResponseWriter, r *http.Request) (httpserver.Identity, int64, bool) {
	identity, ok := httpserver.IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return httpserver.Identity{}, 0, false
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "document_id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid document_id")
		return httpserver.Identity{}, 0, false
	}

	return identity, id, true
}
