package watch

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-scraper/pkg/browser"
	"review-scraper/pkg/config"
	"review-scraper/pkg/lock"
	"review-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

type visitSession struct {
	visited []string
	closed  bool
}

func (s *visitSession) Navigate(ctx context.Context, url string) error {
	s.visited = append(s.visited, url)
	return nil
}
func (s *visitSession) CurrentURL(ctx context.Context) (string, error)       { return "", nil }
func (s *visitSession) Title(ctx context.Context) (string, error)            { return "", nil }
func (s *visitSession) Exists(ctx context.Context, sel string) (bool, error) { return false, nil }
func (s *visitSession) WaitVisible(ctx context.Context, sel string, d time.Duration) error {
	return nil
}
func (s *visitSession) InnerHTML(ctx context.Context, sel string) (string, error) { return "", nil }
func (s *visitSession) Evaluate(ctx context.Context, script string, out interface{}) error {
	if b, ok := out.(*bool); ok {
		*b = true // report the page bottom immediately
	}
	return nil
}
func (s *visitSession) Screenshot(ctx context.Context, path string) error  { return nil }
func (s *visitSession) MoveMouse(ctx context.Context, x, y float64) error  { return nil }
func (s *visitSession) ScrollBy(ctx context.Context, deltaY float64) error { return nil }
func (s *visitSession) PressKey(ctx context.Context, key string) error     { return nil }
func (s *visitSession) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	return nil, nil
}
func (s *visitSession) Close() error {
	s.closed = true
	return nil
}

func newTestRefresher(t *testing.T, session *visitSession) (*Refresher, *lock.Manager) {
	t.Helper()
	locks, err := lock.NewManager(t.TempDir(), testLogger())
	require.NoError(t, err)

	cfg := config.WatchConfig{ProfileURL: "https://www.ozon.ru/my/main"}
	lockCfg := config.LockConfig{ParserTTL: time.Minute, CookieTTL: time.Minute}
	r := NewRefresher(cfg, lockCfg, nil, locks, testLogger())
	r.newSession = func(ctx context.Context) (browser.Session, error) {
		return session, nil
	}
	return r, locks
}

func TestRefreshOnceVisitsProfile(t *testing.T) {
	session := &visitSession{}
	r, locks := newTestRefresher(t, session)

	require.NoError(t, r.RefreshOnce(context.Background()))
	assert.Equal(t, []string{"https://www.ozon.ru/my/main"}, session.visited)
	assert.True(t, session.closed)
	// the cookie lease is released afterwards
	assert.False(t, locks.IsActive(lock.NameCookies))
}

func TestRefreshOnceYieldsToActiveCrawl(t *testing.T) {
	session := &visitSession{}
	r, locks := newTestRefresher(t, session)
	require.NoError(t, locks.Acquire(lock.NameParser, time.Minute, nil))

	require.NoError(t, r.RefreshOnce(context.Background()))
	assert.Empty(t, session.visited)
}

func TestRefreshOnceRefusesConcurrentRefresh(t *testing.T) {
	session := &visitSession{}
	r, locks := newTestRefresher(t, session)
	require.NoError(t, locks.Acquire(lock.NameCookies, time.Minute, nil))

	err := r.RefreshOnce(context.Background())
	assert.ErrorIs(t, err, utils.ErrLockHeld)
	assert.Empty(t, session.visited)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	session := &visitSession{}
	r, _ := newTestRefresher(t, session)
	r.cfg.CookieRefreshSchedule = "not a cron expression"

	err := r.Start(context.Background())
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestStartWithoutScheduleIsNoOp(t *testing.T) {
	session := &visitSession{}
	r, _ := newTestRefresher(t, session)

	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}
