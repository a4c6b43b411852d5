package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/dlstudio/ytdl-orchestrator/internal/domain"
	"github.com/dlstudio/ytdl-orchestrator/internal/events"
)

// StreamEvents handles GET /events as a server-sent event stream. An
// optional ?job_id= narrows the stream to a single job. The connection
// stays open until the client goes away or the bus closes.
func (h *JobHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var filter uuid.UUID
	if raw := r.URL.Query().Get("job_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid job ID")
			return
		}
		filter = id
	}

	ch, cancel := h.events.Subscribe(events.DefaultBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if filter != uuid.Nil && ev.JobID != filter.String() {
				continue
			}
			if err := writeSSE(w, ev); err != nil {
				h.logger.Debug("event stream closed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev domain.Event) error {
	payload, err := json.Marshal(domain.NewJobResponse(ev.Job))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
	return err
}
