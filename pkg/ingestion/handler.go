package ingestion

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
)

// Handler provides HTTP handlers for ingestion admission.
type Handler struct {
	service *Service
	audit   *audit.Writer
	logger  *slog.Logger
}

// NewHandler creates an ingestion Handler.
func NewHandler(service *Service, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{service: service, audit: auditWriter, logger: logger}
}

// admitRequest is the shared request shape for both the index and delete
// endpoints (spec §4.2 request, §9 "Dynamic request models" → explicit
// structs with explicit validators).
type admitRequest struct {
	FileIDs []int64 `json:"file_ids" validate:"required,min=1,dive,gt=0"`
}

// Routes returns a chi.Router mounted at /knowledge-bases/{kb_id}/documents.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleAdmitIndex)
	r.Delete("/", h.handleAdmitDelete)
	return r
}

func (h *Handler) handleAdmitIndex(w http.ResponseWriter, r *http.Request) {
	identity, kbID, ok := h.identifyAndParseKB(w, r)
	if !ok {
		return
	}

	var req admitRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	job, err := h.service.AdmitIndex(r.Context(), identity.UserID, kbID, req.FileIDs)
	if err != nil {
		h.respondAdmitError(w, err)
		return
	}

	h.audit.LogFromRequest(r, identity.UserID, "ingest.admit_index", "knowledge_base", kbID, nil)
	httpserver.Respond(w, http.StatusAccepted, jobResponse(job))
}

func (h *Handler) handleAdmitDelete(w http.ResponseWriter, r *http.Request) {
	identity, kbID, ok := h.identifyAndParseKB(w, r)
	if !ok {
		return
	}

	var req admitRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	job, err := h.service.AdmitDelete(r.Context(), identity.UserID, kbID, req.FileIDs)
	if err != nil {
		h.respondAdmitError(w, err)
		return
	}

	h.audit.LogFromRequest(r, identity.UserID, "ingest.admit_delete", "knowledge_base", kbID, nil)
	httpserver.Respond(w, http.StatusAccepted, jobResponse(job))
}

func (h *Handler) identifyAndParseKB(w http.ResponseWriter, r *http.Request) (httpserver.Identity, int64, bool) {
	identity, ok := httpserver.IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return httpserver.Identity{}, 0, false
	}

	kbID, err := strconv.ParseInt(chi.URLParam(r, "kb_id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid kb_id")
		return httpserver.Identity{}, 0, false
	}

	return identity, kbID, true
}

func (h *Handler) respondAdmitError(w http.ResponseWriter, err error) {
	var docsNotFound *ErrDocsNotFound
	switch {
	case errors.Is(err, ErrKnowledgeBaseNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "knowledge base not found")
	case errors.As(err, &docsNotFound):
		httpserver.Respond(w, http.StatusNotFound, struct {
			Error   string  `json:"error"`
			Message string  `json:"message"`
			Missing []int64 `json:"missing"`
		}{"docs_not_found", "one or more documents are not usable", docsNotFound.Missing})
	default:
		h.logger.Error("admitting ingestion request", "error", err)
		httpserver.RespondError(w, http.StatusServiceUnavailable, "unavailable", "failed to admit ingestion request")
	}
}

type jobView struct {
	ID        int64  `json:"id"`
	KBID      int64  `json:"kb_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func jobResponse(job *ledger.IngestionJob) jobView {
	return jobView{
		ID:        job.ID,
		KBID:      job.KBID,
		Status:    string(job.OpStatus),
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
	}
}
