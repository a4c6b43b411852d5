package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with configured routes, middleware,
// and handlers. It sets up job routes, the event stream, health check,
// and Prometheus metrics endpoint.
func NewRouter(service JobServiceI, reader JobReaderI, events EventSourceI, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	jobHandler := NewJobHandler(service, reader, events, logger)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", jobHandler.SubmitJob)
		r.Get("/", jobHandler.ListJobs)
		r.Get("/{jobID}", jobHandler.GetJob)
		r.Get("/{jobID}/log", jobHandler.GetJobLog)
		r.Post("/{jobID}/pause", jobHandler.PauseJob)
		r.Post("/{jobID}/resume", jobHandler.ResumeJob)
		r.Post("/{jobID}/cancel", jobHandler.CancelJob)
		r.Delete("/{jobID}", jobHandler.RemoveJob)
	})

	r.Route("/settings/concurrency", func(r chi.Router) {
		r.Get("/", jobHandler.GetConcurrency)
		r.Put("/", jobHandler.SetConcurrency)
	})

	r.Get("/events", jobHandler.StreamEvents)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"can_pause": service.CanSuspend(),
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
