package knowledgebase

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

// Handler provides HTTP handlers for knowledge base management.
type Handler struct {
	service *Service
	audit   *audit.Writer
	logger  *slog.Logger
}

// NewHandler creates a knowledge base Handler.
func NewHandler(service *Service, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{service: service, audit: auditWriter, logger: logger}
}

// Routes returns a chi.Router with knowledge base routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{kb_id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
	})
	return r
}

type createRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=255"`
	Category string `json:"category" validate:"required,min=1,max=100"`
}

type knowledgeBaseView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	CreatedAt string `json:"created_at"`
}

func toKnowledgeBaseView(kb *ledger.KnowledgeBase) knowledgeBaseView {
	return knowledgeBaseView{
		ID:        kb.ID,
		Name:      kb.Name,
		Category:  kb.Category,
		CreatedAt: kb.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type knowledgeBaseDetailView struct {
	knowledgeBaseView
	CollectionName   string `json:"collection_name"`
	CollectionStatus string `json:"collection_status"`
}

func toKnowledgeBaseDetailView(kb *ledger.KnowledgeBaseWithCollection) knowledgeBaseDetailView {
	return knowledgeBaseDetailView{
		knowledgeBaseView: toKnowledgeBaseView(&kb.KnowledgeBase),
		CollectionName:    kb.CollectionName,
		CollectionStatus:  string(kb.CollectionStatus),
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := httpserver.IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	kb, err := h.service.Create(r.Context(), identity.UserID, req.Name, req.Category)
	if err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			httpserver.RespondError(w, http.StatusServiceUnavailable, "pool_exhausted", "no vector collection available, try again shortly")
			return
		}
		h.logger.Error("creating knowledge base", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create knowledge base")
		return
	}

	h.audit.LogFromRequest(r, identity.UserID, "knowledge_base.created", "knowledge_base", kb.ID, nil)
	httpserver.Respond(w, http.StatusCreated, toKnowledgeBaseView(kb))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	identity, id, ok := h.identifyAndParseID(w, r)
	if !ok {
		return
	}

	kb, err := h.service.Get(r.Context(), id, identity.UserID)
	if err != nil {
		if ledger.IsNotFound(err) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "knowledge base not found")
			return
		}
		h.logger.Error("getting knowledge base", "kb_id", id, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get knowledge base")
		return
	}

	httpserver.Respond(w, http.StatusOK, toKnowledgeBaseDetailView(kb))
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

	kbs, total, err := h.service.List(r.Context(), identity.UserID, params.Offset, params.PageSize)
	if err != nil {
		h.logger.Error("listing knowledge bases", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list knowledge bases")
		return
	}

	views := make([]knowledgeBaseView, len(kbs))
	for i := range kbs {
		views[i] = toKnowledgeBaseView(&kbs[i])
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
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "knowledge base not found")
			return
		}
		h.logger.Error("deleting knowledge base", "kb_id", id, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete knowledge base")
		return
	}

	h.audit.LogFromRequest(r, identity.UserID, "knowledge_base.deleted", "knowledge_base", id, nil)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) identifyAndParseID(w http.ResponseWriter, r *http.Request) (httpserver.Identity, int64, bool) {
	identity, ok := httpserver.IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return httpserver.Identity{}, 0, false
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "kb_id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid kb_id")
		return httpserver.Identity{}, 0, false
	}

	return identity, id, true
}
