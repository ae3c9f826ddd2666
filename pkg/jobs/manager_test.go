package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-scraper/pkg/config"
	"review-scraper/pkg/models"
	"review-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func testJobsConfig() config.JobsConfig {
	return config.JobsConfig{
		SettleDelay:     time.Millisecond,
		RetentionTTL:    24 * time.Hour,
		JanitorInterval: time.Hour,
	}
}

// fakeRunner blocks each job on release until the test lets it through
type fakeRunner struct {
	mu      sync.Mutex
	started []string
	release chan struct{}
	result  func(h *Handle) error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{release: make(chan struct{})}
}

func (r *fakeRunner) Run(ctx context.Context, h *Handle) error {
	r.mu.Lock()
	r.started = append(r.started, h.ID())
	r.mu.Unlock()

	<-r.release
	if r.result != nil {
		return r.result(h)
	}
	return nil
}

func (r *fakeRunner) startedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

func newTestManager(runner Runner) *Manager {
	m := NewManager(context.Background(), testJobsConfig(), runner, nil, 0, nil, testLogger())
	m.settle = func(d time.Duration) {}
	return m
}

func waitForStatus(t *testing.T, m *Manager, id string, want models.JobStatus) models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.Status(id)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := m.Status(id)
	t.Fatalf("job %s never reached %s (last: %s)", id, want, job.Status)
	return models.Job{}
}

func TestSubmitRunsToCompletion(t *testing.T) {
	runner := newFakeRunner()
	m := newTestManager(runner)

	job, err := m.Submit("input.xlsx", "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMode, job.Mode)

	close(runner.release)
	final := waitForStatus(t, m, job.ID, models.JobStatusCompleted)
	assert.False(t, final.FinishedAt.IsZero())
	assert.Zero(t, final.QueuePosition)
	m.Wait()
}

func TestSubmitValidation(t *testing.T) {
	m := newTestManager(newFakeRunner())

	_, err := m.Submit("", models.ModeAll)
	assert.ErrorIs(t, err, utils.ErrJobInput)

	_, err = m.Submit("input.xlsx", models.Mode("bogus"))
	assert.ErrorIs(t, err, utils.ErrJobInput)
}

func TestSingleActiveSlotAndQueueOrder(t *testing.T) {
	runner := newFakeRunner()
	m := newTestManager(runner)

	first, err := m.Submit("a.xlsx", models.ModeAll)
	require.NoError(t, err)
	second, err := m.Submit("b.xlsx", models.ModeAll)
	require.NoError(t, err)
	third, err := m.Submit("c.xlsx", models.ModeAll)
	require.NoError(t, err)

	waitForStatus(t, m, first.ID, models.JobStatusDownloading)
	assert.Equal(t, 1, runner.startedCount())

	s2, _ := m.Status(second.ID)
	s3, _ := m.Status(third.ID)
	assert.Equal(t, models.JobStatusQueued, s2.Status)
	assert.Equal(t, 1, s2.QueuePosition)
	assert.Equal(t, 2, s3.QueuePosition)

	close(runner.release)
	waitForStatus(t, m, third.ID, models.JobStatusCompleted)
	m.Wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, runner.started)
}

func TestCancelQueuedJob(t *testing.T) {
	runner := newFakeRunner()
	m := newTestManager(runner)

	first, err := m.Submit("a.xlsx", models.ModeAll)
	require.NoError(t, err)
	second, err := m.Submit("b.xlsx", models.ModeAll)
	require.NoError(t, err)
	third, err := m.Submit("c.xlsx", models.ModeAll)
	require.NoError(t, err)

	waitForStatus(t, m, first.ID, models.JobStatusDownloading)

	cancelled, err := m.Cancel(second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	assert.False(t, cancelled.FinishedAt.IsZero())

	// the third job moved up
	s3, _ := m.Status(third.ID)
	assert.Equal(t, 1, s3.QueuePosition)

	close(runner.release)
	waitForStatus(t, m, third.ID, models.JobStatusCompleted)
	m.Wait()
	assert.Equal(t, 2, runner.startedCount())
}

func TestCancelActiveJob(t *testing.T) {
	runner := newFakeRunner()
	runner.result = func(h *Handle) error {
		if h.Cancelled() {
			return utils.ErrCancelled
		}
		return nil
	}
	m := newTestManager(runner)

	job, err := m.Submit("a.xlsx", models.ModeAll)
	require.NoError(t, err)
	waitForStatus(t, m, job.ID, models.JobStatusDownloading)

	cancelling, err := m.Cancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelling, cancelling.Status)

	close(runner.release)
	waitForStatus(t, m, job.ID, models.JobStatusCancelled)
	m.Wait()
}

func TestCancelTerminalJobIsNoOp(t *testing.T) {
	runner := newFakeRunner()
	m := newTestManager(runner)

	job, err := m.Submit("a.xlsx", models.ModeAll)
	require.NoError(t, err)
	close(runner.release)
	waitForStatus(t, m, job.ID, models.JobStatusCompleted)
	m.Wait()

	after, err := m.Cancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, after.Status)
}

func TestStatusUnknownJob(t *testing.T) {
	m := newTestManager(newFakeRunner())
	_, err := m.Status("nope")
	assert.ErrorIs(t, err, utils.ErrJobNotFound)
}

func TestRunnerErrorSetsErrorStatus(t *testing.T) {
	runner := newFakeRunner()
	runner.result = func(h *Handle) error {
		return fmt.Errorf("%w: boom", utils.ErrJobInput)
	}
	m := newTestManager(runner)

	job, err := m.Submit("a.xlsx", models.ModeAll)
	require.NoError(t, err)
	close(runner.release)
	final := waitForStatus(t, m, job.ID, models.JobStatusError)
	assert.Contains(t, final.Error, "boom")
	m.Wait()
}

func TestHandleClaimDeduplicates(t *testing.T) {
	runner := newFakeRunner()
	var firstDup, secondDup bool
	var earlier string
	runner.result = func(h *Handle) error {
		_, firstDup = h.Claim("hash-1", "url-a")
		earlier, secondDup = h.Claim("hash-1", "url-b")
		return nil
	}
	m := newTestManager(runner)

	job, err := m.Submit("a.xlsx", models.ModeAll)
	require.NoError(t, err)
	close(runner.release)
	final := waitForStatus(t, m, job.ID, models.JobStatusCompleted)
	m.Wait()

	assert.False(t, firstDup)
	assert.True(t, secondDup)
	assert.Equal(t, "url-a", earlier)
	require.Len(t, final.ProcessedProducts, 1)
	assert.Equal(t, "url-a", final.ProcessedProducts[0].URL)
}

func TestSweepEvictsExpiredTerminalJobs(t *testing.T) {
	m := newTestManager(newFakeRunner())

	m.mu.Lock()
	m.jobs["old"] = &models.Job{
		ID:         "old",
		Status:     models.JobStatusCompleted,
		FinishedAt: time.Now().Add(-48 * time.Hour),
	}
	m.jobs["fresh"] = &models.Job{
		ID:         "fresh",
		Status:     models.JobStatusCompleted,
		FinishedAt: time.Now(),
	}
	m.mu.Unlock()

	m.sweep()

	_, err := m.Status("old")
	assert.ErrorIs(t, err, utils.ErrJobNotFound)
	_, err = m.Status("fresh")
	assert.NoError(t, err)
}
