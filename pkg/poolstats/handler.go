package poolstats

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corvexa/ingestord/internal/httpserver"
)

// Handler provides the read-only pool stats HTTP surface.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a pool stats Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router with the pool stats route mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleGet)
	return r
}

type statsView struct {
	Available            int `json:"available"`
	RecentlyProvisioning int `json:"recently_provisioning"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := httpserver.IdentityFromContext(r.Context()); !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	stats, err := h.service.Get(r.Context())
	if err != nil {
		h.logger.Error("getting pool stats", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get pool stats")
		return
	}

	httpserver.Respond(w, http.StatusOK, statsView{
		Available:            stats.Available,
		RecentlyProvisioning: stats.RecentlyProvisioning,
	})
}
