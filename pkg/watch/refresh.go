package watch

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"review-scraper/pkg/browser"
	"review-scraper/pkg/config"
	"review-scraper/pkg/lock"
	"review-scraper/pkg/utils"
)

// Refresher keeps the persisted cookie jar warm by periodically visiting
// the account profile page with a full browser session. A warm jar makes
// the next crawl start from an already-trusted browsing identity.
type Refresher struct {
	cfg      config.WatchConfig
	launcher *browser.Launcher
	locks    *lock.Manager
	lockCfg  config.LockConfig
	log      *logrus.Entry
	cron     *cron.Cron

	// newSession is swapped out in tests
	newSession func(ctx context.Context) (browser.Session, error)
}

func NewRefresher(cfg config.WatchConfig, lockCfg config.LockConfig, launcher *browser.Launcher, locks *lock.Manager, log *logrus.Entry) *Refresher {
	r := &Refresher{
		cfg:      cfg,
		launcher: launcher,
		locks:    locks,
		lockCfg:  lockCfg,
		log:      log,
	}
	r.newSession = func(ctx context.Context) (browser.Session, error) {
		return launcher.NewSession(ctx)
	}
	return r
}

// Start registers the cron schedule and begins firing refreshes. It is a
// no-op when no schedule is configured.
func (r *Refresher) Start(ctx context.Context) error {
	if r.cfg.CookieRefreshSchedule == "" {
		r.log.Info("Cookie refresh schedule not configured, skipping")
		return nil
	}

	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.cfg.CookieRefreshSchedule, func() {
		if err := r.RefreshOnce(ctx); err != nil {
			r.log.Warnf("Scheduled cookie refresh failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: bad cookie refresh schedule %q: %v", utils.ErrConfigValidation, r.cfg.CookieRefreshSchedule, err)
	}

	r.cron.Start()
	r.log.WithField("schedule", r.cfg.CookieRefreshSchedule).Info("Cookie refresh scheduled")
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish
func (r *Refresher) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RefreshOnce performs a single refresh run. It yields to an active crawl
// (the parser lease wins) and to a concurrent refresh.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	if r.locks.IsActive(lock.NameParser) {
		r.log.Info("Crawl in progress, skipping cookie refresh")
		return nil
	}
	if r.locks.IsActive(lock.NameCookies) {
		r.log.Info("Another cookie refresh is running, skipping")
		return fmt.Errorf("%w: %s", utils.ErrLockHeld, lock.NameCookies)
	}

	if err := r.locks.Acquire(lock.NameCookies, r.lockCfg.CookieTTL, map[string]string{"reason": "refresh"}); err != nil {
		return err
	}
	defer r.locks.Release(lock.NameCookies)

	session, err := r.newSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Navigate(ctx, r.cfg.ProfileURL); err != nil {
		return err
	}

	human := browser.NewHumanizer(session, r.log)
	human.Wander(ctx)
	if err := human.ScrollThrough(ctx); err != nil {
		r.log.Debugf("Refresh scroll aborted: %v", err)
	}

	// Close persists the refreshed cookie set into the shared jar
	r.log.Info("Cookie refresh visit complete")
	return nil
}
