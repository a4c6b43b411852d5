package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dlstudio/ytdl-orchestrator/internal/domain"
	errpkg "github.com/dlstudio/ytdl-orchestrator/internal/errors"
	"github.com/dlstudio/ytdl-orchestrator/internal/validation"
)

// JobServiceI is the scheduler surface the HTTP layer drives.
type JobServiceI interface {
	Submit(opts domain.Options) (*domain.Job, error)
	Pause(id uuid.UUID) error
	Resume(id uuid.UUID) error
	Cancel(id uuid.UUID) error
	Remove(ctx context.Context, id uuid.UUID, force bool) error
	Limit() int
	SetLimit(n int) error
	CanSuspend() bool
}

// JobReaderI is the registry surface used for status queries.
type JobReaderI interface {
	Snapshot(id uuid.UUID) (*domain.Job, error)
	List() []*domain.Job
	LogTail(id uuid.UUID, n int) ([]string, error)
}

// EventSourceI is the push boundary streamed out over SSE.
type EventSourceI interface {
	Subscribe(buffer int) (<-chan domain.Event, func())
}

// JobHandler handles HTTP requests for jobs.
type JobHandler struct {
	service   JobServiceI
	reader    JobReaderI
	events    EventSourceI
	validator *validator.Validate
	logger    *slog.Logger
}

// NewJobHandler creates a new JobHandler with the provided service and logger.
func NewJobHandler(service JobServiceI, reader JobReaderI, events EventSourceI, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		service:   service,
		reader:    reader,
		events:    events,
		validator: validation.New(),
		logger:    logger,
	}
}

// SubmitJob handles the HTTP POST /jobs request to queue a new download.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.service.Submit(req.ToOptions())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("job submitted", "job_id", job.ID, "url", job.Options.URL)
	writeJSON(w, http.StatusCreated, domain.NewJobResponse(job))
}

// ListJobs handles GET /jobs.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.reader.List()
	out := make([]domain.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, domain.NewJobResponse(job))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetJob handles GET /jobs/{jobID}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.reader.Snapshot(id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewJobResponse(job))
}

// GetJobLog handles GET /jobs/{jobID}/log with an optional ?lines=
// bound on the returned tail.
func (h *JobHandler) GetJobLog(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	lines := 0
	if raw := r.URL.Query().Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = n
	}

	tail, err := h.reader.LogTail(id, lines)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.LogResponse{JobID: id, Lines: tail})
}

// PauseJob handles POST /jobs/{jobID}/pause.
func (h *JobHandler) PauseJob(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.Pause)
}

// ResumeJob handles POST /jobs/{jobID}/resume.
func (h *JobHandler) ResumeJob(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.Resume)
}

// CancelJob handles POST /jobs/{jobID}/cancel.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.Cancel)
}

// command runs a lifecycle verb and answers with a fresh snapshot.
func (h *JobHandler) command(w http.ResponseWriter, r *http.Request, verb func(uuid.UUID) error) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	if err := verb(id); err != nil {
		h.writeDomainError(w, err)
		return
	}

	job, err := h.reader.Snapshot(id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewJobResponse(job))
}

// RemoveJob handles DELETE /jobs/{jobID}. With ?force=true an active job
// is cancelled first and the removal waits for its process to stop.
func (h *JobHandler) RemoveJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	force := r.URL.Query().Get("force") == "true"
	if err := h.service.Remove(r.Context(), id, force); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type concurrencyRequest struct {
	Limit int `json:"limit" validate:"required,min=1"`
}

// GetConcurrency handles GET /settings/concurrency.
func (h *JobHandler) GetConcurrency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"limit": h.service.Limit()})
}

// SetConcurrency handles PUT /settings/concurrency.
func (h *JobHandler) SetConcurrency(w http.ResponseWriter, r *http.Request) {
	var req concurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.SetLimit(req.Limit); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.logger.Info("concurrency limit updated", "limit", req.Limit)
	writeJSON(w, http.StatusOK, map[string]int{"limit": req.Limit})
}

func (h *JobHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return uuid.Nil, false
	}
	return id, true
}

// writeDomainError maps domain sentinels onto HTTP status codes.
func (h *JobHandler) writeDomainError(w http.ResponseWriter, err error) {
	var verr *errpkg.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, errpkg.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, errpkg.ErrJobActive),
		errors.Is(err, errpkg.ErrJobFinished),
		errors.Is(err, errpkg.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errpkg.ErrUnsupportedOperation):
		writeError(w, http.StatusNotImplemented, "operation not supported on this platform")
	case errors.Is(err, errpkg.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "orchestrator is shutting down")
	default:
		h.logger.Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
