package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlstudio/ytdl-orchestrator/internal/domain"
	errpkg "github.com/dlstudio/ytdl-orchestrator/internal/errors"
	"github.com/dlstudio/ytdl-orchestrator/internal/events"
)

type fakeService struct {
	submitted  []domain.Options
	submitErr  error
	pauseErr   error
	resumeErr  error
	cancelErr  error
	removeErr  error
	limit      int
	canSuspend bool
	lastForce  bool
}

func (f *fakeService) Submit(opts domain.Options) (*domain.Job, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, opts)
	return &domain.Job{
		ID:          uuid.New(),
		Options:     opts,
		Status:      domain.StatusPending,
		SubmittedAt: time.Now(),
	}, nil
}

func (f *fakeService) Pause(id uuid.UUID) error  { return f.pauseErr }
func (f *fakeService) Resume(id uuid.UUID) error { return f.resumeErr }
func (f *fakeService) Cancel(id uuid.UUID) error { return f.cancelErr }

func (f *fakeService) Remove(ctx context.Context, id uuid.UUID, force bool) error {
	f.lastForce = force
	return f.removeErr
}

func (f *fakeService) Limit() int          { return f.limit }
func (f *fakeService) SetLimit(n int) error { f.limit = n; return nil }
func (f *fakeService) CanSuspend() bool    { return f.canSuspend }

type fakeReader struct {
	jobs map[uuid.UUID]*domain.Job
	logs map[uuid.UUID][]string
}

func newFakeReader() *fakeReader {
	return &fakeReader{jobs: make(map[uuid.UUID]*domain.Job), logs: make(map[uuid.UUID][]string)}
}

func (f *fakeReader) Snapshot(id uuid.UUID) (*domain.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, errpkg.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (f *fakeReader) List() []*domain.Job {
	out := make([]*domain.Job, 0, len(f.jobs))
	for _, job := range f.jobs {
		out = append(out, job.Clone())
	}
	return out
}

func (f *fakeReader) LogTail(id uuid.UUID, n int) ([]string, error) {
	if _, ok := f.jobs[id]; !ok {
		return nil, errpkg.ErrJobNotFound
	}
	return f.logs[id], nil
}

func newTestRouter(t *testing.T, svc *fakeService, reader *fakeReader) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(svc, reader, events.NewBus(), logger)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitJob(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(t, svc, newFakeReader())

	rec := doJSON(t, router, http.MethodPost, "/jobs", map[string]any{
		"url":           "https://example.com/watch?v=abc",
		"extract_audio": true,
		"audio_format":  "mp3",
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp domain.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatusPending, resp.Status)
	assert.Equal(t, "https://example.com/watch?v=abc", resp.URL)

	require.Len(t, svc.submitted, 1)
	assert.True(t, svc.submitted[0].ExtractAudio)
	assert.Equal(t, "mp3", svc.submitted[0].AudioFormat)
}

func TestSubmitJob_BadBody(t *testing.T) {
	router := newTestRouter(t, &fakeService{}, newFakeReader())

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJob_RejectsUnsafeURL(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(t, svc, newFakeReader())

	for _, url := range []string{"ftp://example.com/f", "http://127.0.0.1/admin", ""} {
		rec := doJSON(t, router, http.MethodPost, "/jobs", map[string]any{"url": url})
		assert.Equal(t, http.StatusBadRequest, rec.Code, url)
	}
	assert.Empty(t, svc.submitted)
}

func TestSubmitJob_SchedulerValidation(t *testing.T) {
	svc := &fakeService{submitErr: errpkg.NewValidation("rate_limit", "malformed")}
	router := newTestRouter(t, svc, newFakeReader())

	rec := doJSON(t, router, http.MethodPost, "/jobs", map[string]any{"url": "https://example.com/v"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	reader := newFakeReader()
	job := &domain.Job{ID: uuid.New(), Options: domain.Options{URL: "https://example.com/v"}, Status: domain.StatusDownloading, Percent: 42.5}
	reader.jobs[job.ID] = job
	router := newTestRouter(t, &fakeService{}, reader)

	rec := doJSON(t, router, http.MethodGet, "/jobs/"+job.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, job.ID, resp.ID)
	assert.Equal(t, 42.5, resp.Percent)
}

func TestGetJob_NotFound(t *testing.T) {
	router := newTestRouter(t, &fakeService{}, newFakeReader())

	rec := doJSON(t, router, http.MethodGet, "/jobs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJob_BadID(t *testing.T) {
	router := newTestRouter(t, &fakeService{}, newFakeReader())

	rec := doJSON(t, router, http.MethodGet, "/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobLog(t *testing.T) {
	reader := newFakeReader()
	job := &domain.Job{ID: uuid.New(), Status: domain.StatusDownloading}
	reader.jobs[job.ID] = job
	reader.logs[job.ID] = []string{"line one", "line two"}
	router := newTestRouter(t, &fakeService{}, reader)

	rec := doJSON(t, router, http.MethodGet, "/jobs/"+job.ID.String()+"/log?lines=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.LogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"line one", "line two"}, resp.Lines)

	rec = doJSON(t, router, http.MethodGet, "/jobs/"+job.ID.String()+"/log?lines=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLifecycleCommandErrors(t *testing.T) {
	id := uuid.New()
	reader := newFakeReader()
	reader.jobs[id] = &domain.Job{ID: id, Status: domain.StatusCompleted}

	tests := []struct {
		name string
		svc  *fakeService
		path string
		want int
	}{
		{"pause finished", &fakeService{pauseErr: errpkg.ErrJobFinished}, "/pause", http.StatusConflict},
		{"pause unsupported", &fakeService{pauseErr: errpkg.ErrUnsupportedOperation}, "/pause", http.StatusNotImplemented},
		{"resume not paused", &fakeService{resumeErr: errpkg.ErrInvalidTransition}, "/resume", http.StatusConflict},
		{"cancel finished", &fakeService{cancelErr: errpkg.ErrJobFinished}, "/cancel", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, tt.svc, reader)
			rec := doJSON(t, router, http.MethodPost, "/jobs/"+id.String()+tt.path, nil)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPauseJob_ReturnsSnapshot(t *testing.T) {
	id := uuid.New()
	reader := newFakeReader()
	reader.jobs[id] = &domain.Job{ID: id, Status: domain.StatusPaused}
	router := newTestRouter(t, &fakeService{canSuspend: true}, reader)

	rec := doJSON(t, router, http.MethodPost, "/jobs/"+id.String()+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatusPaused, resp.Status)
}

func TestRemoveJob(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{}
	router := newTestRouter(t, svc, newFakeReader())

	rec := doJSON(t, router, http.MethodDelete, "/jobs/"+id.String()+"?force=true", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, svc.lastForce)

	svc.removeErr = errpkg.ErrJobActive
	rec = doJSON(t, router, http.MethodDelete, "/jobs/"+id.String(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, svc.lastForce)
}

func TestConcurrencySettings(t *testing.T) {
	svc := &fakeService{limit: 2}
	router := newTestRouter(t, svc, newFakeReader())

	rec := doJSON(t, router, http.MethodGet, "/settings/concurrency", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"limit": 2}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodPut, "/settings/concurrency", map[string]int{"limit": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.limit)

	rec = doJSON(t, router, http.MethodPut, "/settings/concurrency", map[string]int{"limit": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &fakeService{canSuspend: true}, newFakeReader())

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok", "can_pause": true}`, rec.Body.String())
}

func TestStreamEvents(t *testing.T) {
	bus := events.NewBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(&fakeService{}, newFakeReader(), bus, logger)

	srv := httptest.NewServer(router)
	defer srv.Close()

	jobID := uuid.New()
	resp, err := http.Get(srv.URL + "/events?job_id=" + jobID.String())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Publish one event for the filtered job and one for another job;
	// only the former must come through.
	other := &domain.Job{ID: uuid.New(), Status: domain.StatusDownloading}
	bus.Publish(domain.Event{Kind: domain.EventProgress, JobID: other.ID.String(), Job: other})
	job := &domain.Job{ID: jobID, Status: domain.StatusDownloading, Percent: 12.5}
	bus.Publish(domain.Event{Kind: domain.EventProgress, JobID: jobID.String(), Job: job})

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	deadline := time.After(5 * time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "event: ") {
				eventLine = line
			}
			if strings.HasPrefix(line, "data: ") {
				dataLine = line
				return
			}
		}
	}()
	select {
	case <-done:
	case <-deadline:
		t.Fatal("no event received in time")
	}

	assert.Equal(t, "event: progress", eventLine)

	var payload domain.JobResponse
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &payload))
	assert.Equal(t, jobID, payload.ID)
	assert.Equal(t, 12.5, payload.Percent)
	bus.Close()
}
