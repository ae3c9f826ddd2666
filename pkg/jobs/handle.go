package jobs

import (
	"time"

	"review-scraper/pkg/models"
)

// Handle is the runner's view of its job: progress updates, the
// cooperative cancellation flag and the per-job fingerprint set
type Handle struct {
	m  *Manager
	id string
}

func (h *Handle) ID() string { return h.id }

// Job returns a point-in-time copy of the job record
func (h *Handle) Job() models.Job {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.m.snapshotLocked(h.m.jobs[h.id])
}

// Cancelled reports whether cancellation was requested. Runners poll this
// at safe stopping points.
func (h *Handle) Cancelled() bool {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.m.jobs[h.id].CancelRequested
}

// Update mutates the job record under the registry lock and mirrors it
func (h *Handle) Update(fn func(*models.Job)) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	job := h.m.jobs[h.id]
	fn(job)
	job.UpdatedAt = time.Now()
	h.m.mirrorLocked(job)
}

// SetStatus advances the lifecycle state. Once cancellation is requested
// the cancelling state sticks until the runner winds down.
func (h *Handle) SetStatus(status models.JobStatus) {
	h.Update(func(job *models.Job) {
		if job.CancelRequested && !status.IsTerminal() {
			job.Status = models.JobStatusCancelling
			return
		}
		job.Status = status
	})
}

// Claim records a content fingerprint for url within this job. When the
// hash was already claimed by an earlier URL, that URL is returned and
// the claim is refused.
func (h *Handle) Claim(hash, url string) (string, bool) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	job := h.m.jobs[h.id]
	if earlier, dup := job.HasFingerprint(hash); dup {
		return earlier, true
	}
	job.ProcessedProducts = append(job.ProcessedProducts, models.ProcessedProduct{Hash: hash, URL: url})
	job.UpdatedAt = time.Now()
	h.m.mirrorLocked(job)
	return "", false
}
