// Package registry holds the authoritative in-memory table of all known
// jobs. Every component reads snapshots and mutates through this API;
// nothing else holds a mutable reference to a job record.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dlstudio/ytdl-orchestrator/internal/domain"
	errpkg "github.com/dlstudio/ytdl-orchestrator/internal/errors"
	"github.com/dlstudio/ytdl-orchestrator/internal/metrics"
)

// DefaultLogLimit is the number of output lines retained per job.
const DefaultLogLimit = 500

// Publisher receives one event per job-state mutation. The registry calls
// it while holding the job lock, so implementations must not block.
type Publisher interface {
	Publish(domain.Event)
}

// ProgressUpdate is a field-level merge applied to one stream role.
type ProgressUpdate struct {
	Role            domain.StreamRole
	Percent         float64
	Rate            float64
	ETASeconds      int
	DownloadedBytes int64
	TotalBytes      int64
	Finished        bool
}

type record struct {
	job domain.Job
	log *ring
}

// Registry is the thread-safe job table.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[uuid.UUID]*record
	logLimit  int
	stateFile string
	pub       Publisher
}

// New creates a registry. stateFile may be empty to disable the
// best-effort persistence; when set, previously persisted jobs are
// restored (non-terminal ones as failed, since their processes are gone).
func New(stateFile string, logLimit int, pub Publisher) (*Registry, error) {
	if logLimit <= 0 {
		logLimit = DefaultLogLimit
	}
	r := &Registry{
		jobs:      make(map[uuid.UUID]*record),
		logLimit:  logLimit,
		stateFile: filepath.Clean(stateFile),
		pub:       pub,
	}
	if stateFile == "" {
		r.stateFile = ""
		return r, nil
	}
	if err := r.restore(); err != nil {
		return nil, fmt.Errorf("restore job state: %w", err)
	}
	return r, nil
}

// Create registers a new pending job. A duplicate identifier is a
// programming error.
func (r *Registry) Create(job *domain.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		panic(fmt.Sprintf("registry: duplicate job id %s", job.ID))
	}
	rec := &record{job: *job.Clone(), log: newRing(r.logLimit)}
	r.jobs[job.ID] = rec

	r.publishLocked(domain.EventStatus, rec)
}

// Snapshot returns an immutable copy of the job.
func (r *Registry) Snapshot(id uuid.UUID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.jobs[id]
	if !ok {
		return nil, errpkg.ErrJobNotFound
	}
	return rec.job.Clone(), nil
}

// List returns snapshots of all jobs ordered by submission time.
func (r *Registry) List() []*domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Job, 0, len(r.jobs))
	for _, rec := range r.jobs {
		out = append(out, rec.job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// ApplyProgress merges a progress event into one stream role. Events on
// terminal jobs and events that would regress the role's percentage are
// discarded as noise; they never clobber a concurrent status transition.
func (r *Registry) ApplyProgress(id uuid.UUID, up ProgressUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return errpkg.ErrJobNotFound
	}
	job := &rec.job
	if job.Status.IsTerminal() {
		return nil
	}

	role := up.Role
	if role == "" {
		role = domain.RoleVideo
	}
	if job.Progress == nil {
		job.Progress = make(map[domain.StreamRole]domain.RoleProgress, 2)
	}
	prev := job.Progress[role]

	if up.Percent < prev.Percent {
		// Progress is monotonically non-decreasing within a process
		// lifetime; a lower value is parser noise.
		return nil
	}

	next := domain.RoleProgress{
		Percent:         up.Percent,
		Rate:            up.Rate,
		ETASeconds:      up.ETASeconds,
		DownloadedBytes: max(up.DownloadedBytes, prev.DownloadedBytes),
		TotalBytes:      prev.TotalBytes,
	}
	if up.TotalBytes > 0 {
		next.TotalBytes = up.TotalBytes
	}
	if up.Finished {
		next.Percent = 100
		next.Rate = 0
		next.ETASeconds = 0
	}
	job.Progress[role] = next

	prevDownloaded := job.DownloadedBytes
	r.recomputeAggregateLocked(job)
	job.Rate = next.Rate
	job.ETASeconds = next.ETASeconds

	metrics.ProgressEvents.Inc()
	if delta := job.DownloadedBytes - prevDownloaded; delta > 0 {
		metrics.DownloadedBytes.Add(float64(delta))
	}

	r.publishLocked(domain.EventProgress, rec)
	return nil
}

// recomputeAggregateLocked folds the per-role map into the aggregate
// fields. The aggregate percentage keeps its floor so it can never move
// backwards even when a new role appears mid-download.
func (r *Registry) recomputeAggregateLocked(job *domain.Job) {
	var pctSum float64
	var downloaded, total int64
	for _, p := range job.Progress {
		pctSum += p.Percent
		downloaded += p.DownloadedBytes
		total += p.TotalBytes
	}
	if n := len(job.Progress); n > 0 {
		if agg := pctSum / float64(n); agg > job.Percent {
			job.Percent = agg
		}
	}
	job.DownloadedBytes = downloaded
	job.TotalBytes = total
}

// SetStatus performs a lifecycle transition. Terminal states are
// immutable: further transitions return ErrJobFinished. Transitions that
// can only come from orchestrator bugs (double admission) panic.
func (r *Registry) SetStatus(id uuid.UUID, status domain.JobStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return errpkg.ErrJobNotFound
	}
	job := &rec.job

	if job.Status.IsTerminal() {
		return errpkg.ErrJobFinished
	}
	if status == domain.StatusDownloading && job.Status == domain.StatusDownloading {
		panic(fmt.Sprintf("registry: double admission of job %s", id))
	}
	if !validTransition(job.Status, status) {
		return fmt.Errorf("job is %s, cannot move to %s: %w", job.Status, status, errpkg.ErrInvalidTransition)
	}

	if job.Status == domain.StatusPending && status == domain.StatusDownloading {
		job.StartedAt = time.Now()
	}
	job.Status = status
	if errMsg != "" {
		job.Error = errMsg
	}

	if status.IsTerminal() {
		job.EndedAt = time.Now()
		job.Rate = 0
		job.ETASeconds = 0
		if status == domain.StatusCompleted {
			job.Percent = 100
		}
		switch status {
		case domain.StatusCompleted:
			metrics.JobsCompleted.Inc()
		case domain.StatusFailed:
			metrics.JobsFailed.Inc()
		case domain.StatusCancelled:
			metrics.JobsCancelled.Inc()
		}
		r.persistLocked()
	}

	r.publishLocked(domain.EventStatus, rec)
	return nil
}

func validTransition(from, to domain.JobStatus) bool {
	if to.IsTerminal() {
		return true
	}
	switch from {
	case domain.StatusPending:
		return to == domain.StatusDownloading
	case domain.StatusDownloading:
		return to == domain.StatusPaused || to == domain.StatusProcessing
	case domain.StatusPaused:
		return to == domain.StatusDownloading || to == domain.StatusProcessing
	case domain.StatusProcessing:
		// A merge step can be followed by another transfer (thumbnails,
		// subtitle conversion inputs), and a paused process resumes into
		// whatever phase it was stopped in.
		return to == domain.StatusDownloading || to == domain.StatusPaused
	default:
		return false
	}
}

// AppendLog stores one output line in the job's bounded log buffer.
// Terminal jobs accept no further log mutations.
func (r *Registry) AppendLog(id uuid.UUID, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok || rec.job.Status.IsTerminal() {
		return
	}
	rec.log.append(line)
}

// LogTail returns up to n most recent log lines, oldest first. n <= 0
// returns the whole retained buffer. Safe to call at any point after
// creation, including after the job reached a terminal state.
func (r *Registry) LogTail(id uuid.UUID, n int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.jobs[id]
	if !ok {
		return nil, errpkg.ErrJobNotFound
	}
	return rec.log.tail(n), nil
}

// Remove deletes a job record. Removal of a job in an active status is
// refused unless forced, so a running process can never be orphaned
// without a record.
func (r *Registry) Remove(id uuid.UUID, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return errpkg.ErrJobNotFound
	}
	if rec.job.Status.IsActive() && !force {
		return errpkg.ErrJobActive
	}
	if rec.job.Status == domain.StatusPending && !force {
		return errpkg.ErrJobActive
	}
	delete(r.jobs, id)
	r.persistLocked()
	return nil
}

// EvictOlderThan drops terminal jobs that ended before the cutoff and
// returns how many were removed.
func (r *Registry) EvictOlderThan(age time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-age)
	removed := 0
	for id, rec := range r.jobs {
		if rec.job.Status.IsTerminal() && rec.job.EndedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		r.persistLocked()
		slog.Info("evicted finished jobs", "count", removed)
	}
	return removed
}

func (r *Registry) publishLocked(kind domain.EventKind, rec *record) {
	if r.pub == nil {
		return
	}
	r.pub.Publish(domain.Event{
		Kind:  kind,
		JobID: rec.job.ID.String(),
		Job:   rec.job.Clone(),
	})
}

// persistLocked writes a best-effort JSON snapshot of all job records.
// Failures are logged, never surfaced: durability is not a guarantee of
// the orchestrator.
func (r *Registry) persistLocked() {
	if r.stateFile == "" {
		return
	}
	jobs := make([]*domain.Job, 0, len(r.jobs))
	for _, rec := range r.jobs {
		jobs = append(jobs, rec.job.Clone())
	}

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		slog.Error("marshal job state", "error", err)
		return
	}

	tmp := r.stateFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Error("write job state", "error", err)
		return
	}
	if err := os.Rename(tmp, r.stateFile); err != nil {
		slog.Error("replace job state file", "error", err)
	}
}

func (r *Registry) restore() error {
	data, err := os.ReadFile(r.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("no job state file, starting empty", "path", r.stateFile)
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var jobs []*domain.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("unmarshal state file: %w", err)
	}

	for _, job := range jobs {
		if !job.Status.IsTerminal() {
			// The process that backed this job died with the previous
			// orchestrator instance.
			job.Status = domain.StatusFailed
			job.Error = "interrupted by orchestrator restart"
			if job.EndedAt.IsZero() {
				job.EndedAt = time.Now()
			}
		}
		r.jobs[job.ID] = &record{job: *job, log: newRing(r.logLimit)}
	}
	slog.Info("restored job state", "path", r.stateFile, "jobs", len(jobs))
	return nil
}
