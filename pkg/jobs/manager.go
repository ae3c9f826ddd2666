package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"review-scraper/pkg/config"
	"review-scraper/pkg/lock"
	"review-scraper/pkg/models"
	"review-scraper/pkg/storage"
	"review-scraper/pkg/utils"
)

// Runner executes one admitted job to completion. Implementations must
// poll h.Cancelled cooperatively and wind down promptly when it fires.
type Runner interface {
	Run(ctx context.Context, h *Handle) error
}

// Manager owns the job registry and the single active-job slot. Jobs are
// admitted immediately, queued FIFO, and promoted one at a time.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*models.Job
	queue    []string // queued job IDs in admission order
	activeID string

	runner  Runner
	cfg     config.JobsConfig
	locks   *lock.Manager
	lockTTL time.Duration
	mirror  *storage.JobStore // optional, best-effort
	log     *logrus.Entry

	baseCtx context.Context
	wg      sync.WaitGroup

	// settle is swapped out in tests
	settle func(d time.Duration)
}

func NewManager(ctx context.Context, cfg config.JobsConfig, runner Runner, locks *lock.Manager, lockTTL time.Duration, mirror *storage.JobStore, log *logrus.Entry) *Manager {
	return &Manager{
		jobs:    make(map[string]*models.Job),
		runner:  runner,
		cfg:     cfg,
		locks:   locks,
		lockTTL: lockTTL,
		mirror:  mirror,
		log:     log,
		baseCtx: ctx,
		settle:  time.Sleep,
	}
}

// Submit admits a new job. Admission never waits: the job is queued and
// promoted as soon as the active slot frees up.
func (m *Manager) Submit(inputRef string, mode models.Mode) (models.Job, error) {
	if inputRef == "" {
		return models.Job{}, fmt.Errorf("%w: empty input reference", utils.ErrJobInput)
	}
	if mode == "" {
		mode = models.DefaultMode
	}
	if !mode.IsValid() {
		return models.Job{}, fmt.Errorf("%w: unknown mode %q", utils.ErrJobInput, mode)
	}

	now := time.Now()
	job := &models.Job{
		ID:        uuid.New().String(),
		Status:    models.JobStatusQueued,
		InputRef:  inputRef,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.queue = append(m.queue, job.ID)
	m.log.WithFields(logrus.Fields{
		"job_id": job.ID,
		"mode":   mode,
	}).Info("Job admitted")
	m.mirrorLocked(job)
	m.promoteLocked()
	snapshot := m.snapshotLocked(job)
	m.mu.Unlock()

	return snapshot, nil
}

// Status returns a point-in-time copy of the job including its queue
// position (1-based; 0 while active or terminal).
func (m *Manager) Status(id string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", utils.ErrJobNotFound, id)
	}
	return m.snapshotLocked(job), nil
}

// List returns snapshots of every known job
func (m *Manager) List() []models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, m.snapshotLocked(job))
	}
	return out
}

// Cancel requests cancellation. A queued job terminates immediately; an
// active job switches to cancelling and winds down cooperatively.
// Cancelling a terminal job is a no-op returning the current state.
func (m *Manager) Cancel(id string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", utils.ErrJobNotFound, id)
	}
	if job.Status.IsTerminal() {
		return m.snapshotLocked(job), nil
	}

	job.CancelRequested = true
	job.UpdatedAt = time.Now()

	if job.Status == models.JobStatusQueued {
		m.removeFromQueueLocked(id)
		job.Status = models.JobStatusCancelled
		job.FinishedAt = job.UpdatedAt
		m.log.WithField("job_id", id).Info("Queued job cancelled")
	} else {
		job.Status = models.JobStatusCancelling
		m.log.WithField("job_id", id).Info("Cancellation requested for active job")
	}
	m.mirrorLocked(job)
	return m.snapshotLocked(job), nil
}

// Wait blocks until every started job goroutine has returned
func (m *Manager) Wait() { m.wg.Wait() }

// StartJanitor evicts terminal jobs past the retention TTL until ctx ends
func (m *Manager) StartJanitor(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.JanitorInterval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.cfg.RetentionTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, job := range m.jobs {
		if job.Status.IsTerminal() && !job.FinishedAt.IsZero() && job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			if m.mirror != nil {
				if err := m.mirror.DeleteJob(id); err != nil {
					m.log.Warnf("Mirror eviction failed for %s: %v", id, err)
				}
			}
			m.log.WithField("job_id", id).Debug("Expired job evicted")
		}
	}
}

// promoteLocked starts the next queued job when the active slot is free.
// Caller holds m.mu.
func (m *Manager) promoteLocked() {
	if m.activeID != "" || len(m.queue) == 0 {
		return
	}

	id := m.queue[0]
	m.queue = m.queue[1:]
	job := m.jobs[id]
	if job == nil || job.Status != models.JobStatusQueued {
		// cancelled while queued; try the next one
		m.promoteLocked()
		return
	}

	if m.locks != nil {
		meta := map[string]string{"job_id": id}
		if err := m.locks.Acquire(lock.NameParser, m.lockTTL, meta); err != nil {
			m.log.Warnf("Parser lease refresh failed: %v", err)
		}
	}

	m.activeID = id
	now := time.Now()
	job.Status = models.JobStatusDownloading
	job.StartedAt = now
	job.UpdatedAt = now
	m.mirrorLocked(job)

	m.wg.Add(1)
	go m.run(id)
}

func (m *Manager) run(id string) {
	defer m.wg.Done()

	log := m.log.WithField("job_id", id)
	log.Info("Job started")

	h := &Handle{m: m, id: id}
	err := m.runner.Run(m.baseCtx, h)

	m.mu.Lock()
	job := m.jobs[id]
	now := time.Now()
	switch {
	case job.CancelRequested || errors.Is(err, utils.ErrCancelled):
		job.Status = models.JobStatusCancelled
	case err != nil:
		job.Status = models.JobStatusError
		if job.Error == "" {
			job.Error = err.Error()
		}
	default:
		job.Status = models.JobStatusCompleted
	}
	job.UpdatedAt = now
	job.FinishedAt = now
	finalStatus := job.Status
	m.mirrorLocked(job)
	m.activeID = ""
	queueEmpty := len(m.queue) == 0
	m.mu.Unlock()

	log.WithField("status", finalStatus).Info("Job finished")

	if queueEmpty && m.locks != nil {
		m.locks.Release(lock.NameParser)
	}

	// let the site settle before the next job hammers it
	m.settle(m.cfg.SettleDelay)

	m.mu.Lock()
	m.promoteLocked()
	m.mu.Unlock()
}

// removeFromQueueLocked drops id from the FIFO queue. Caller holds m.mu.
func (m *Manager) removeFromQueueLocked(id string) {
	for i, qid := range m.queue {
		if qid == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// snapshotLocked copies the job and computes its queue position.
// Caller holds m.mu.
func (m *Manager) snapshotLocked(job *models.Job) models.Job {
	snapshot := job.Snapshot()
	snapshot.QueuePosition = 0
	for i, qid := range m.queue {
		if qid == job.ID {
			snapshot.QueuePosition = i + 1
			break
		}
	}
	return snapshot
}

// mirrorLocked persists the job record best-effort. Caller holds m.mu.
func (m *Manager) mirrorLocked(job *models.Job) {
	if m.mirror == nil {
		return
	}
	if err := m.mirror.SaveJob(job.Snapshot()); err != nil {
		m.log.Warnf("Job mirror write failed for %s: %v", job.ID, err)
	}
}
