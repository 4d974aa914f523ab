package adminhttp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/logging"
	"github.com/molequeue-io/molequeue/internal/metrics"
	"github.com/molequeue-io/molequeue/internal/queue"
	"github.com/molequeue-io/molequeue/internal/store"
)

// RouterConfig holds every dependency NewRouter needs, passed as one
// struct so the constructor signature stays manageable as the admin
// surface grows (arkeep/server/internal/api/router.go's RouterConfig).
type RouterConfig struct {
	JobManager   *jobs.Manager
	QueueManager *queue.Manager
	Store        *store.Store
	Logging      *logging.Logger
	Metrics      *metrics.Metrics
	Hub          *Hub
	Logger       *zap.Logger
}

// NewRouter builds the admin HTTP surface: health, a live job/log
// snapshot, a Prometheus scrape endpoint, and a WebSocket feed of job
// state transitions. Unlike the teacher's /api/v1, nothing here requires
// authentication — this surface is for the broker's own operator, not a
// multi-tenant client.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	h := &handlers{cfg: cfg}

	r.Get("/healthz", h.healthz)
	r.Get("/debug/jobs", h.listJobs)
	r.Get("/debug/jobs/{id}/logs", h.jobLogs)
	r.Get("/debug/ws", h.serveWS)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	return r
}

type handlers struct {
	cfg RouterConfig
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}

	if h.cfg.Store != nil {
		if err := h.cfg.Store.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "store": err.Error()}
		}
	}

	writeJSON(w, status, body)
}

// listJobs reports every job currently known to the JobManager, ordered
// arbitrarily (map iteration) — this is a debug snapshot, not a paginated
// API, so that ordering is not guaranteed.
func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	all := h.cfg.JobManager.All()
	out := make([]map[string]any, 0, len(all))
	for id, data := range all {
		out = append(out, map[string]any{
			"moleQueueId": uint64(id),
			"queue":       data.Queue,
			"program":     data.Program,
			"state":       data.State.String(),
			"description": data.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) jobLogs(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	var entries []logging.Entry
	if h.cfg.Logging != nil {
		entries = h.cfg.Logging.Ring().ByJob(jobs.ID(n))
	}
	writeJSON(w, http.StatusOK, entries)
}

// serveWS upgrades the connection and subscribes it to the "jobs" topic,
// plus a specific "job:<id>" topic if ?job= is given.
func (h *handlers) serveWS(w http.ResponseWriter, r *http.Request) {
	topics := []string{allJobsTopic}
	if raw := r.URL.Query().Get("job"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			topics = append(topics, jobTopic(id))
		}
	}

	c, err := newWSClient(h.cfg.Hub, w, r, topics, h.cfg.Logger)
	if err != nil {
		h.cfg.Logger.Warn("adminhttp: websocket upgrade failed", zap.Error(err))
		return
	}
	c.run()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
