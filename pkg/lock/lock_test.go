package lock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	m, err := NewManager(t.TempDir(), logrus.NewEntry(logger))
	require.NoError(t, err)
	return m
}

func TestAcquireAndIsActive(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Acquire(NameParser, time.Minute, map[string]string{"job": "j1"}))
	assert.True(t, m.IsActive(NameParser))
	assert.False(t, m.IsActive(NameCookies))
}

func TestExpiredLeaseIsAbsentAndCleanedUp(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Acquire(NameParser, -time.Second, nil))
	assert.False(t, m.IsActive(NameParser))

	// Lazy cleanup removed the file
	_, err := os.Stat(filepath.Join(m.dir, NameParser+".lock"))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireOverwritesExisting(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Acquire(NameParser, -time.Second, nil))
	require.NoError(t, m.Acquire(NameParser, time.Minute, nil))
	assert.True(t, m.IsActive(NameParser))
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Acquire(NameCookies, time.Minute, nil))
	m.Release(NameCookies)
	assert.False(t, m.IsActive(NameCookies))

	// Second release of an absent lease must not panic or log an error
	m.Release(NameCookies)
}

func TestCorruptLeaseTreatedAsAbsent(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, os.WriteFile(filepath.Join(m.dir, NameParser+".lock"), []byte("not json"), 0644))
	assert.False(t, m.IsActive(NameParser))
}
