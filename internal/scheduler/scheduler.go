// Package scheduler admits submitted jobs into the bounded pool of
// concurrent downloads. Jobs queue in submission order and are promoted
// as slots free up; lowering the limit never preempts running work.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dlstudio/ytdl-orchestrator/internal/args"
	"github.com/dlstudio/ytdl-orchestrator/internal/domain"
	errpkg "github.com/dlstudio/ytdl-orchestrator/internal/errors"
	"github.com/dlstudio/ytdl-orchestrator/internal/metrics"
	"github.com/dlstudio/ytdl-orchestrator/internal/registry"
)

// DefaultLimit is the concurrent download cap used when none is
// configured.
const DefaultLimit = 2

// ProcessManager is the supervisor surface the scheduler drives.
type ProcessManager interface {
	Launch(job *domain.Job) error
	Pause(id uuid.UUID) error
	Resume(id uuid.UUID) error
	Cancel(id uuid.UUID) error
	Done(id uuid.UUID) <-chan struct{}
	CanSuspend() bool
	OnExit(fn func(id uuid.UUID))
	Shutdown(ctx context.Context) error
}

// Scheduler owns the admission queue and the concurrency limit.
type Scheduler struct {
	reg    *registry.Registry
	procs  ProcessManager
	logger *slog.Logger

	mu           sync.Mutex
	limit        int
	active       int
	queue        []uuid.UUID
	shuttingDown bool
}

// New wires a scheduler to the registry and process manager. The
// scheduler registers itself for process-exit notifications, so it must
// be the only OnExit consumer.
func New(reg *registry.Registry, procs ProcessManager, limit int, logger *slog.Logger) *Scheduler {
	if limit < 1 {
		limit = DefaultLimit
	}
	s := &Scheduler{
		reg:    reg,
		procs:  procs,
		logger: logger,
		limit:  limit,
	}
	procs.OnExit(s.handleExit)
	return s
}

// Submit validates the options, registers a pending job and admits it
// immediately when a slot is free.
func (s *Scheduler) Submit(opts domain.Options) (*domain.Job, error) {
	if err := args.Validate(opts); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil, errpkg.ErrShuttingDown
	}

	job := &domain.Job{
		ID:          uuid.New(),
		Options:     opts,
		Status:      domain.StatusPending,
		Progress:    make(map[domain.StreamRole]domain.RoleProgress),
		SubmittedAt: time.Now().UTC(),
	}
	s.reg.Create(job)
	metrics.JobsSubmitted.Inc()

	s.queue = append(s.queue, job.ID)
	metrics.QueuedJobs.Set(float64(len(s.queue)))
	s.fillSlotsLocked()
	s.mu.Unlock()

	return s.reg.Snapshot(job.ID)
}

// fillSlotsLocked promotes queued jobs while capacity remains. A job
// whose process fails to spawn is recorded as failed and its slot is
// handed to the next in line.
func (s *Scheduler) fillSlotsLocked() {
	for !s.shuttingDown && s.active < s.limit && len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		metrics.QueuedJobs.Set(float64(len(s.queue)))

		if err := s.reg.SetStatus(id, domain.StatusDownloading, ""); err != nil {
			// Cancelled while queued; skip without consuming a slot.
			continue
		}
		job, err := s.reg.Snapshot(id)
		if err != nil {
			continue
		}
		if err := s.procs.Launch(job); err != nil {
			s.logger.Error("spawning download process", "job_id", id, "error", err)
			if setErr := s.reg.SetStatus(id, domain.StatusFailed, err.Error()); setErr != nil {
				s.logger.Warn("recording spawn failure", "job_id", id, "error", setErr)
			}
			continue
		}
		s.active++
		metrics.ActiveJobs.Set(float64(s.active))
		s.logger.Info("job admitted", "job_id", id, "active", s.active, "limit", s.limit)
	}
}

func (s *Scheduler) handleExit(id uuid.UUID) {
	s.mu.Lock()
	s.active--
	metrics.ActiveJobs.Set(float64(s.active))
	s.fillSlotsLocked()
	s.mu.Unlock()
}

// Pause suspends a running job. Queued jobs cannot be paused, they are
// not consuming a slot yet.
func (s *Scheduler) Pause(id uuid.UUID) error {
	job, err := s.reg.Snapshot(id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return errpkg.ErrJobFinished
	}
	if job.Status == domain.StatusPending {
		return errpkg.ErrInvalidTransition
	}
	return s.procs.Pause(id)
}

// Resume continues a paused job.
func (s *Scheduler) Resume(id uuid.UUID) error {
	job, err := s.reg.Snapshot(id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return errpkg.ErrJobFinished
	}
	if job.Status == domain.StatusPending {
		return errpkg.ErrInvalidTransition
	}
	return s.procs.Resume(id)
}

// Cancel stops a job. A queued job is dequeued and marked cancelled
// directly; a running one goes through process termination.
func (s *Scheduler) Cancel(id uuid.UUID) error {
	job, err := s.reg.Snapshot(id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return errpkg.ErrJobFinished
	}

	if job.Status == domain.StatusPending {
		s.mu.Lock()
		dequeued := s.dequeueLocked(id)
		s.mu.Unlock()
		if dequeued {
			return s.reg.SetStatus(id, domain.StatusCancelled, "")
		}
		// Admitted between the snapshot and the lock; the job now has a
		// live process and must go through termination like any other.
	}
	return s.procs.Cancel(id)
}

func (s *Scheduler) dequeueLocked(id uuid.UUID) bool {
	for i, queued := range s.queue {
		if queued == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			metrics.QueuedJobs.Set(float64(len(s.queue)))
			return true
		}
	}
	return false
}

// Remove deletes a job record. Non-terminal jobs are refused unless
// force is set, in which case the job is cancelled and removal waits for
// the process to wind down.
func (s *Scheduler) Remove(ctx context.Context, id uuid.UUID, force bool) error {
	if !force {
		return s.reg.Remove(id, false)
	}

	err := s.Cancel(id)
	switch {
	case err == nil:
		select {
		case <-s.procs.Done(id):
		case <-ctx.Done():
			return ctx.Err()
		}
	case errors.Is(err, errpkg.ErrJobFinished):
		// Already terminal, nothing to stop.
	default:
		return err
	}
	return s.reg.Remove(id, true)
}

// CanSuspend reports whether pause and resume are available.
func (s *Scheduler) CanSuspend() bool {
	return s.procs.CanSuspend()
}

// Limit returns the current concurrency cap.
func (s *Scheduler) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// SetLimit changes the concurrency cap. Raising it promotes queued jobs
// at once; lowering it lets running jobs finish and only throttles new
// admissions.
func (s *Scheduler) SetLimit(n int) error {
	if n < 1 {
		return errpkg.NewValidation("concurrency_limit", "must be at least 1")
	}
	s.mu.Lock()
	s.limit = n
	s.fillSlotsLocked()
	s.mu.Unlock()
	s.logger.Info("concurrency limit changed", "limit", n)
	return nil
}

// Shutdown stops admitting, cancels queued jobs and tears down running
// processes within the context's deadline.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	queued := s.queue
	s.queue = nil
	metrics.QueuedJobs.Set(0)
	s.mu.Unlock()

	for _, id := range queued {
		if err := s.reg.SetStatus(id, domain.StatusCancelled, ""); err != nil {
			s.logger.Warn("cancelling queued job on shutdown", "job_id", id, "error", err)
		}
	}
	return s.procs.Shutdown(ctx)
}
