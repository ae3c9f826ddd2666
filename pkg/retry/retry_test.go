package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-scraper/pkg/utils"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

func always(error) bool { return true }

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3}, testLog(), always, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, testLog(), always, func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_FatalErrorReturnsImmediately(t *testing.T) {
	calls := 0
	classifier := func(err error) bool { return !errors.Is(err, errFatal) }
	err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, testLog(), classifier, func() error {
		calls++
		return errFatal
	})
	require.ErrorIs(t, err, errFatal)
	assert.NotErrorIs(t, err, utils.ErrRetryFailed)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustionWrapsRetryFailed(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, testLog(), always, func() error {
		calls++
		return errTransient
	})
	require.ErrorIs(t, err, utils.ErrRetryFailed)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: 5 * time.Second}, testLog(), always, func() error {
		calls++
		return errTransient
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestDo_PreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Policy{MaxAttempts: 3}, testLog(), always, func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
