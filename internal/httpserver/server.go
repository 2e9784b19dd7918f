package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/corvexa/ingestord/internal/config"
)

// ObjectStorePinger is satisfied by the object store gateway for readiness checks.
type ObjectStorePinger interface {
	Ping(ctx context.Context) error
}

// QueuePinger is satisfied by the message queue gateway for readiness checks.
type QueuePinger interface {
	Ping(ctx context.Context) error
}

// VectorStorePinger is satisfied by the vector store gateway for readiness checks.
type VectorStorePinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP server dependencies.
type Server struct {
	Router      *chi.Mux
	APIRouter   chi.Router // /api/v1 sub-router; domain handlers mount here
	Logger      *slog.Logger
	DB          *pgxpool.Pool
	Redis       *redis.Client
	ObjectStore ObjectStorePinger
	Queue       QueuePinger
	VectorStore VectorStorePinger
	Metrics     *prometheus.Registry
	startedAt   time.Time
}

// NewServer creates an HTTP server with middleware and health/metrics endpoints.
// Domain handlers should be mounted on APIRouter after calling NewServer.
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, objectStore ObjectStorePinger, queue QueuePinger, vectorStore VectorStorePinger, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:      chi.NewRouter(),
		Logger:      logger,
		DB:          db,
		Redis:       rdb,
		ObjectStore: objectStore,
		Queue:       queue,
		VectorStore: vectorStore,
		Metrics:     metricsReg,
		startedAt:   time.Now(),
	}

	// Global middleware
	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)

	// Prometheus metrics
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			Respond(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// Store reference so domain handlers can be mounted externally.
		s.APIRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz checks connectivity to every external dependency the ingestion
// control plane owns: ledger (Postgres), Redis (provisioner trigger fan-out),
// object store, message queue, and vector store.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: ledger ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "ledger not ready")
		return
	}

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("readiness check: redis ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
		return
	}

	if s.ObjectStore != nil {
		if err := s.ObjectStore.Ping(ctx); err != nil {
			s.Logger.Error("readiness check: object store ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "object store not ready")
			return
		}
	}

	if s.Queue != nil {
		if err := s.Queue.Ping(ctx); err != nil {
			s.Logger.Error("readiness check: queue ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "queue not ready")
			return
		}
	}

	if s.VectorStore != nil {
		if err := s.VectorStore.Ping(ctx); err != nil {
			s.Logger.Error("readiness check: vector store ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "vector store not ready")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusResponse is the JSON shape returned by HandleStatus.
type statusResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Ledger        string `json:"ledger"`
	Redis         string `json:"redis"`
}

// HandleStatus returns system health information including dependency
// connectivity and process uptime.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uptime := time.Since(s.startedAt)

	resp := statusResponse{
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
	}

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("status check: ledger ping failed", "error", err)
		resp.Ledger = "error"
	} else {
		resp.Ledger = "ok"
	}

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("status check: redis ping failed", "error", err)
		resp.Redis = "error"
	} else {
		resp.Redis = "ok"
	}

	if resp.Ledger == "ok" && resp.Redis == "ok" {
		resp.Status = "ok"
	} else {
		resp.Status = "degraded"
	}

	Respond(w, http.StatusOK, resp)
}
