// Package supervisor owns the OS processes behind active jobs: it spawns
// the downloader, routes its output through the progress parser into the
// registry, delivers pause/resume/terminate signals, and reconciles exit
// status into a terminal job status.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dlstudio/ytdl-orchestrator/internal/args"
	"github.com/dlstudio/ytdl-orchestrator/internal/domain"
	errpkg "github.com/dlstudio/ytdl-orchestrator/internal/errors"
	"github.com/dlstudio/ytdl-orchestrator/internal/parse"
	"github.com/dlstudio/ytdl-orchestrator/internal/registry"
)

// DefaultGracePeriod bounds how long a cancelled process may linger
// between the graceful terminate and the forced kill.
const DefaultGracePeriod = 5 * time.Second

// stderrTailLines bounds the stderr kept for failure messages.
const stderrTailLines = 20

// JobStore is the registry surface the supervisor mutates through. The
// supervisor never touches a job record directly.
type JobStore interface {
	ApplyProgress(id uuid.UUID, up registry.ProgressUpdate) error
	SetStatus(id uuid.UUID, status domain.JobStatus, errMsg string) error
	AppendLog(id uuid.UUID, line string)
}

type handle struct {
	cmd *exec.Cmd

	// signalMu serializes pause/resume/cancel so back-to-back commands
	// cannot race the process into an inconsistent signal state.
	signalMu  sync.Mutex
	paused    bool
	cancelled atomic.Bool

	done chan struct{}
}

// Supervisor manages one process handle per active job.
type Supervisor struct {
	binPath string
	workDir string
	grace   time.Duration
	store   JobStore
	logger  *slog.Logger

	mu     sync.Mutex
	procs  map[uuid.UUID]*handle
	onExit func(id uuid.UUID)
	wg     sync.WaitGroup
}

// New creates a supervisor launching binPath with workDir as the download
// directory. grace <= 0 falls back to DefaultGracePeriod.
func New(binPath, workDir string, grace time.Duration, store JobStore, logger *slog.Logger) *Supervisor {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Supervisor{
		binPath: binPath,
		workDir: workDir,
		grace:   grace,
		store:   store,
		logger:  logger,
		procs:   make(map[uuid.UUID]*handle),
	}
}

// OnExit registers the callback invoked after a job's process exited and
// its terminal status was recorded. Must be set before the first Launch.
func (s *Supervisor) OnExit(fn func(id uuid.UUID)) {
	s.onExit = fn
}

// CanSuspend reports whether this platform supports cooperative process
// suspension for pause/resume.
func (s *Supervisor) CanSuspend() bool {
	return canSuspend
}

// Launch starts the downloader process for the job. A failure to spawn is
// returned as a *errors.SpawnError and leaves no handle behind; it is the
// caller's job to record the terminal failure.
func (s *Supervisor) Launch(job *domain.Job) error {
	tokens, err := args.Build(job.Options)
	if err != nil {
		return err
	}

	cmd := exec.Command(s.binPath, tokens...)
	cmd.Dir = s.workDir
	applyProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &errpkg.SpawnError{Path: s.binPath, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &errpkg.SpawnError{Path: s.binPath, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &errpkg.SpawnError{Path: s.binPath, Err: err}
	}

	h := &handle{cmd: cmd, done: make(chan struct{})}

	s.mu.Lock()
	if _, exists := s.procs[job.ID]; exists {
		s.mu.Unlock()
		panic("supervisor: second process handle for job " + job.ID.String())
	}
	s.procs[job.ID] = h
	s.mu.Unlock()

	s.logger.Info("process started", "job_id", job.ID, "pid", cmd.Process.Pid)

	s.wg.Add(1)
	go s.supervise(job.ID, h, stdout, stderr)
	return nil
}

// supervise reads both stdio streams until exhaustion, then reconciles
// the exit status into the job's terminal state.
func (s *Supervisor) supervise(id uuid.UUID, h *handle, stdout, stderr io.Reader) {
	defer s.wg.Done()

	var tailMu sync.Mutex
	var stderrTail []string

	keepTail := func(line string) {
		tailMu.Lock()
		stderrTail = append(stderrTail, line)
		if len(stderrTail) > stderrTailLines {
			stderrTail = stderrTail[len(stderrTail)-stderrTailLines:]
		}
		tailMu.Unlock()
	}

	read := func(r io.Reader, isStderr bool) error {
		var p parse.Parser
		buf := make([]byte, 32*1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, ev := range p.Feed(buf[:n]) {
					s.handleEvent(id, ev)
					if isStderr {
						keepTail(ev.Line)
					}
				}
			}
			if err != nil {
				for _, ev := range p.Flush() {
					s.handleEvent(id, ev)
					if isStderr {
						keepTail(ev.Line)
					}
				}
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
	}

	var g errgroup.Group
	g.Go(func() error { return read(stdout, false) })
	g.Go(func() error { return read(stderr, true) })
	if err := g.Wait(); err != nil {
		s.logger.Warn("reading process output", "job_id", id, "error", err)
	}

	waitErr := h.cmd.Wait()

	status := domain.StatusCompleted
	message := ""
	switch {
	case h.cancelled.Load():
		// A kill after an explicit cancel is not a real failure, whatever
		// exit code the OS reports.
		status = domain.StatusCancelled
	case waitErr != nil:
		status = domain.StatusFailed
		tailMu.Lock()
		message = strings.TrimSpace(strings.Join(stderrTail, "\n"))
		tailMu.Unlock()
		if message == "" {
			message = waitErr.Error()
		}
	}

	if err := s.store.SetStatus(id, status, message); err != nil {
		s.logger.Warn("recording terminal status", "job_id", id, "status", status, "error", err)
	}
	s.logger.Info("process exited", "job_id", id, "status", status)

	s.mu.Lock()
	delete(s.procs, id)
	s.mu.Unlock()
	close(h.done)

	if s.onExit != nil {
		s.onExit(id)
	}
}

func (s *Supervisor) handleEvent(id uuid.UUID, ev parse.Event) {
	s.store.AppendLog(id, ev.Line)

	switch ev.Kind {
	case parse.KindProgress:
		err := s.store.ApplyProgress(id, registry.ProgressUpdate{
			Role:            ev.Role,
			Percent:         ev.Percent,
			Rate:            ev.Rate,
			ETASeconds:      ev.ETASeconds,
			DownloadedBytes: ev.DownloadedBytes,
			TotalBytes:      ev.TotalBytes,
			Finished:        ev.Finished,
		})
		if err != nil {
			s.logger.Warn("applying progress", "job_id", id, "error", err)
		}
	case parse.KindPhase:
		// Post-download merge/transcode: no transfer, process still live.
		if err := s.store.SetStatus(id, domain.StatusProcessing, ""); err != nil &&
			!errors.Is(err, errpkg.ErrInvalidTransition) && !errors.Is(err, errpkg.ErrJobFinished) {
			s.logger.Warn("entering processing phase", "job_id", id, "error", err)
		}
	}
}

// Pause suspends the job's process. On platforms without cooperative
// suspend this fails with ErrUnsupportedOperation instead of pretending.
func (s *Supervisor) Pause(id uuid.UUID) error {
	if !canSuspend {
		return errpkg.ErrUnsupportedOperation
	}
	h, err := s.handleFor(id)
	if err != nil {
		return err
	}

	h.signalMu.Lock()
	defer h.signalMu.Unlock()

	if h.cancelled.Load() {
		return errpkg.ErrJobFinished
	}
	if h.paused {
		return errpkg.ErrInvalidTransition
	}
	if err := suspendProcess(h.cmd.Process); err != nil {
		return fmt.Errorf("suspend pid %d: %w", h.cmd.Process.Pid, err)
	}
	h.paused = true
	return s.store.SetStatus(id, domain.StatusPaused, "")
}

// Resume continues a paused process.
func (s *Supervisor) Resume(id uuid.UUID) error {
	if !canSuspend {
		return errpkg.ErrUnsupportedOperation
	}
	h, err := s.handleFor(id)
	if err != nil {
		return err
	}

	h.signalMu.Lock()
	defer h.signalMu.Unlock()

	if h.cancelled.Load() {
		return errpkg.ErrJobFinished
	}
	if !h.paused {
		return errpkg.ErrInvalidTransition
	}
	if err := resumeProcess(h.cmd.Process); err != nil {
		return fmt.Errorf("resume pid %d: %w", h.cmd.Process.Pid, err)
	}
	h.paused = false
	return s.store.SetStatus(id, domain.StatusDownloading, "")
}

// Cancel requests termination: graceful first, forced after the grace
// period. A paused process is resumed before signalling so the terminate
// can be delivered. Calling Cancel on a job already being cancelled is a
// no-op success, the cancellation is underway.
func (s *Supervisor) Cancel(id uuid.UUID) error {
	h, err := s.handleFor(id)
	if err != nil {
		return err
	}

	h.signalMu.Lock()
	defer h.signalMu.Unlock()

	if h.cancelled.Swap(true) {
		return nil
	}
	if h.paused {
		if err := resumeProcess(h.cmd.Process); err != nil {
			s.logger.Warn("resuming before terminate", "job_id", id, "error", err)
		}
		h.paused = false
	}
	if err := terminateProcess(h.cmd.Process); err != nil {
		s.logger.Warn("terminating process", "job_id", id, "error", err)
	}

	go func() {
		select {
		case <-h.done:
		case <-time.After(s.grace):
			s.logger.Warn("grace period expired, killing process", "job_id", id)
			_ = killProcess(h.cmd.Process)
		}
	}()
	return nil
}

// Done returns a channel closed once the job's process has exited and its
// terminal status is recorded. For jobs without a live handle the channel
// is already closed.
func (s *Supervisor) Done(id uuid.UUID) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.procs[id]; ok {
		return h.done
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Active returns the identifiers of all jobs holding a live handle.
func (s *Supervisor) Active() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uuid.UUID, 0, len(s.procs))
	for id := range s.procs {
		out = append(out, id)
	}
	return out
}

// Shutdown cancels every live process and waits for all supervision
// goroutines to drain or the context to expire.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	for _, id := range s.Active() {
		if err := s.Cancel(id); err != nil {
			s.logger.Warn("cancelling on shutdown", "job_id", id, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) handleFor(id uuid.UUID) (*handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.procs[id]
	if !ok {
		return nil, errpkg.ErrJobNotFound
	}
	return h, nil
}
