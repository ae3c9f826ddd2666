package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrBotChallenge))
	assert.True(t, IsTransient(ErrContainerNotYet))
	assert.True(t, IsTransient(ErrNextNotYet))
	assert.True(t, IsTransient(fmt.Errorf("%w: wrapped", ErrNavigation)))
	assert.True(t, IsTransient(context.DeadlineExceeded))

	assert.False(t, IsTransient(ErrChallengeFatal))
	assert.False(t, IsTransient(ErrPaginationLoop))
	assert.False(t, IsTransient(errors.New("something else")))
}

func TestIsProductFatal(t *testing.T) {
	assert.True(t, IsProductFatal(ErrPaginationLoop))
	assert.True(t, IsProductFatal(ErrPaginationSkip))
	assert.True(t, IsProductFatal(ErrChallengeFatal))
	assert.True(t, IsProductFatal(fmt.Errorf("%w (3 attempts): %w", ErrRetryFailed, ErrNextNotYet)))

	assert.False(t, IsProductFatal(ErrBotChallenge))
	assert.False(t, IsProductFatal(ErrJobInput))
	assert.False(t, IsProductFatal(nil))
}

func TestCategorizeError(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"nil":              {nil, "None"},
		"cancelled":        {ErrCancelled, "Cancelled"},
		"challenge fatal":  {fmt.Errorf("%w: redirected", ErrChallengeFatal), "Challenge_Fatal"},
		"pagination loop":  {ErrPaginationLoop, "Pagination_Loop"},
		"lock held":        {ErrLockHeld, "Lock_Held"},
		"context canceled": {context.Canceled, "System_ContextCanceled"},
		"timeout text":     {errors.New("dial tcp: i/o timeout"), "Network_TimeoutGeneric"},
		"unknown":          {errors.New("boom"), "Unknown"},
	}
	for name, tc := range cases {
		assert.Equal(t, tc.want, CategorizeError(tc.err), name)
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename(`a/b\c`))
	assert.Equal(t, "name", SanitizeFilename("__name__"))
	assert.Equal(t, "untitled", SanitizeFilename("///"))
	assert.Equal(t, "job-1", SanitizeFilename("job-1"))
}
