// Package retry centralizes the bounded, jittered retry loops used by the
// fingerprint probe, the main page load and next-page detection. One helper,
// parameterized by attempts, delay, jitter and a retryable-vs-fatal
// classifier, replaces scattered ad hoc sleeps.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"review-scraper/pkg/utils"
)

// Policy bounds one retry loop
type Policy struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Sleep before each retry
	Jitter      time.Duration // Random extra sleep in [0, Jitter)
}

// Classifier reports whether an error is worth another attempt.
// Fatal errors are returned to the caller immediately.
type Classifier func(error) bool

// Do runs op up to p.MaxAttempts times. A nil return ends the loop; a fatal
// error (per retryable) is returned as-is; exhausting attempts wraps the
// last error in utils.ErrRetryFailed. The backoff sleep respects ctx.
func Do(ctx context.Context, p Policy, log *logrus.Entry, retryable Classifier, op func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("context cancelled (%v) during retry after error: %w", err, lastErr)
			}
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.BaseDelay
		if p.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(p.Jitter)))
		}
		log.WithFields(logrus.Fields{
			"attempt":  attempt,
			"max":      p.MaxAttempts,
			"delay":    delay,
			"category": utils.CategorizeError(lastErr),
		}).Warnf("Retrying after error: %v", lastErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", ctx.Err(), lastErr)
		}
	}

	return fmt.Errorf("%w (%d attempts): %w", utils.ErrRetryFailed, p.MaxAttempts, lastErr)
}
