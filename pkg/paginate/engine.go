package paginate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"review-scraper/pkg/browser"
	"review-scraper/pkg/config"
	"review-scraper/pkg/extract"
	"review-scraper/pkg/fingerprint"
	"review-scraper/pkg/models"
	"review-scraper/pkg/retry"
	"review-scraper/pkg/utils"
)

// titleCountRe pulls the declared review total out of the listing page
// title, e.g. "1 374 отзыва о товаре ..."
var titleCountRe = regexp.MustCompile(`([\d\s]+)\s+отзыв`)

// Humanizer is the interaction-noise layer applied before each page read
type Humanizer interface {
	Wander(ctx context.Context)
	ScrollThrough(ctx context.Context) error
	ExpandSpoilers(ctx context.Context) (int, error)
}

// Engine walks a product's review listing page by page, applying the
// evasion layer and collecting extracted reviews
type Engine struct {
	session     browser.Session
	human       Humanizer
	detector    *browser.ChallengeDetector
	extractor   *extract.Extractor
	crawl       config.CrawlConfig
	selTimeout  time.Duration
	artifactDir string
	log         *logrus.Entry

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration)
}

func NewEngine(session browser.Session, human Humanizer, detector *browser.ChallengeDetector,
	crawl config.CrawlConfig, browserCfg config.BrowserConfig, artifactDir string, log *logrus.Entry) *Engine {
	return &Engine{
		session:     session,
		human:       human,
		detector:    detector,
		extractor:   extract.New(log),
		crawl:       crawl,
		selTimeout:  browserCfg.SelectorTimeout,
		artifactDir: artifactDir,
		log:         log,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (e *Engine) retryPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   e.crawl.RetryBaseDelay,
		Jitter:      e.crawl.RetryJitter,
	}
}

// checkChallenge fails hard when the session has been redirected to an
// anti-bot interstitial
func (e *Engine) checkChallenge(ctx context.Context) error {
	location, err := e.session.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if e.detector.IsChallengeURL(location) {
		return fmt.Errorf("%w: redirected to %s", utils.ErrChallengeFatal, location)
	}
	return nil
}

// HashProbe loads the review listing in a fixed cheap-first ordering and
// fingerprints its first page, so identical products entered under
// different URLs can be recognized before a full crawl
func (e *Engine) HashProbe(ctx context.Context, productURL string) (string, error) {
	reviewsURL, err := ReviewsURL(productURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrJobInput, err)
	}
	probeURL, err := WithSort(reviewsURL, SortCheapestFirst)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrJobInput, err)
	}

	log := e.log.WithField("url", probeURL)
	var hash string

	err = retry.Do(ctx, e.retryPolicy(e.crawl.ProbeAttempts), log, utils.IsTransient, func() error {
		if err := e.session.Navigate(ctx, probeURL); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrNavigation, err)
		}
		// A challenge during the probe is retried like render lag; it only
		// turns fatal on the main content load
		location, err := e.session.CurrentURL(ctx)
		if err != nil {
			return err
		}
		if e.detector.IsChallengeURL(location) {
			return fmt.Errorf("%w: redirected to %s", utils.ErrBotChallenge, location)
		}
		if err := e.session.WaitVisible(ctx, e.crawl.ReviewContainerSelector, e.selTimeout); err != nil {
			e.captureDebug(ctx, "debug_hash.png")
			return err
		}

		markup, err := e.session.InnerHTML(ctx, e.crawl.ReviewContainerSelector)
		if err != nil {
			return err
		}
		result, err := e.extractor.Extract(markup, models.ModeAll)
		if err != nil {
			return err
		}
		hash = fingerprint.FromReviews(result.Reviews)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", utils.ErrFingerprintProbe, err)
	}

	log.WithField("hash", hash[:12]).Debug("Fingerprint probe complete")
	return hash, nil
}

// MainLoad navigates to the review listing in its default ordering and
// waits for the review container. It returns the listing URL and the
// review total declared in the page title (0 when absent).
func (e *Engine) MainLoad(ctx context.Context, productURL string) (string, int, error) {
	reviewsURL, err := ReviewsURL(productURL)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", utils.ErrJobInput, err)
	}
	log := e.log.WithField("url", reviewsURL)

	err = retry.Do(ctx, e.retryPolicy(e.crawl.ProbeAttempts), log, utils.IsTransient, func() error {
		if err := e.session.Navigate(ctx, reviewsURL); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrNavigation, err)
		}
		if err := e.checkChallenge(ctx); err != nil {
			return err
		}
		if err := e.session.WaitVisible(ctx, e.crawl.ReviewContainerSelector, e.selTimeout); err != nil {
			e.captureDebug(ctx, "debug_reviews.png")
			return err
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	e.captureDebug(ctx, "debug_reviews.png")

	total := 0
	if title, err := e.session.Title(ctx); err == nil {
		total = parseTitleCount(title)
	}
	log.WithField("declared_total", total).Info("Review listing loaded")
	return reviewsURL, total, nil
}

// parseTitleCount extracts the review total from a page title. Thousands
// are space-grouped in the source markup.
func parseTitleCount(title string) int {
	m := titleCountRe.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, m[1])
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// PageLoop walks the listing from the current page to its end, returning
// every review extracted along the way. cancelled is polled at the top of
// each page and before advancing; a positive poll aborts with ErrCancelled.
// onPage, when non-nil, is told each page number as it is entered.
func (e *Engine) PageLoop(ctx context.Context, cancelled func() bool, mode models.Mode, onPage func(page int)) ([]models.Review, error) {
	defer e.captureDebug(ctx, "debug_final.png")

	var all []models.Review
	current := 1
	if loc, err := e.session.CurrentURL(ctx); err == nil {
		current = PageNumber(loc)
	}

	for {
		if cancelled() {
			return all, utils.ErrCancelled
		}
		if onPage != nil {
			onPage(current)
		}
		log := e.log.WithField("page", current)

		e.human.Wander(ctx)
		if err := e.human.ScrollThrough(ctx); err != nil {
			return all, err
		}
		if _, err := e.human.ExpandSpoilers(ctx); err != nil {
			log.Debugf("Spoiler expansion failed: %v", err)
		}

		markup, err := e.session.InnerHTML(ctx, e.crawl.ReviewContainerSelector)
		if err != nil {
			return all, err
		}
		result, err := e.extractor.Extract(markup, mode)
		if err != nil {
			return all, err
		}
		all = append(all, result.Reviews...)
		log.WithField("collected", len(all)).Info("Page extracted")

		if len(result.Reviews) == 0 {
			log.Info("Page yielded no reviews, listing ended")
			return all, nil
		}
		if result.Stop {
			log.Info("Mode stop condition reached")
			return all, nil
		}
		if current >= e.crawl.MaxPagesPerProduct {
			log.Warn("Page cap reached, stopping crawl")
			return all, nil
		}

		if cancelled() {
			return all, utils.ErrCancelled
		}

		nextURL, found, err := e.findNext(ctx)
		if err != nil {
			return all, err
		}
		if !found {
			log.Info("No further pages")
			return all, nil
		}

		next := PageNumber(nextURL)
		if next == current {
			return all, fmt.Errorf("%w: next control still points at page %d", utils.ErrPaginationLoop, current)
		}
		if next != current+1 {
			return all, fmt.Errorf("%w: page %d followed by %d", utils.ErrPaginationSkip, current, next)
		}

		if err := e.session.Navigate(ctx, nextURL); err != nil {
			return all, err
		}
		if err := e.checkChallenge(ctx); err != nil {
			return all, err
		}
		e.sleep(ctx, e.crawl.PageDelay)
		current = next
	}
}

// nextLinkScript finds the forward pagination anchor by its visible label
const nextLinkScript = `(() => {
	const anchors = document.querySelectorAll('a');
	for (const a of anchors) {
		const t = (a.textContent || '').trim().toLowerCase();
		if (t === 'дальше' || t === 'вперёд') return a.getAttribute('href') || '';
	}
	return '';
})()`

// findNext locates the next-page link, retrying while it has not rendered
// yet. A control still absent after the retries means the listing ended.
func (e *Engine) findNext(ctx context.Context) (string, bool, error) {
	var href string
	err := retry.Do(ctx, e.retryPolicy(e.crawl.NextPageAttempts), e.log, utils.IsTransient, func() error {
		if err := e.session.Evaluate(ctx, nextLinkScript, &href); err != nil {
			return err
		}
		if href == "" {
			return utils.ErrNextNotYet
		}
		return nil
	})
	if err != nil {
		// retries exhausted with the control still absent: natural end of
		// the listing, not an error
		if errors.Is(err, utils.ErrNextNotYet) && ctx.Err() == nil {
			return "", false, nil
		}
		return "", false, err
	}

	absolute, err := e.resolve(ctx, href)
	if err != nil {
		return "", false, err
	}
	return absolute, true, nil
}

// resolve makes a relative pagination href absolute against the page URL
func (e *Engine) resolve(ctx context.Context, href string) (string, error) {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href, nil
	}
	base, err := e.session.CurrentURL(ctx)
	if err != nil {
		return "", err
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing page url %s: %w", base, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parsing next href %s: %w", href, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// captureDebug takes a best-effort screenshot for post-mortem analysis
func (e *Engine) captureDebug(ctx context.Context, name string) {
	path := filepath.Join(e.artifactDir, name)
	if err := e.session.Screenshot(ctx, path); err != nil {
		e.log.Debugf("Debug screenshot failed: %v", err)
		return
	}
	e.log.WithField("path", path).Debug("Debug screenshot captured")
}
