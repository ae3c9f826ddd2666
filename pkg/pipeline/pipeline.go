package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	applog "review-scraper/pkg/log"
	"review-scraper/pkg/models"
	"review-scraper/pkg/paginate"
	"review-scraper/pkg/utils"
)

// Deduper claims a content fingerprint for a URL within the running job.
// When the hash was already claimed it returns the earlier URL instead.
type Deduper interface {
	Claim(hash, url string) (existingURL string, duplicate bool)
}

// Progress receives live counters while a product is being crawled
type Progress interface {
	ProductStarted(url string, declaredTotal int)
	PageReached(page int)
	ReviewsCollected(count int)
}

// Engine is the per-product pagination surface the crawler drives
type Engine interface {
	HashProbe(ctx context.Context, productURL string) (string, error)
	MainLoad(ctx context.Context, productURL string) (string, int, error)
	PageLoop(ctx context.Context, cancelled func() bool, mode models.Mode, onPage func(page int)) ([]models.Review, error)
}

var _ Engine = (*paginate.Engine)(nil)

// Crawler turns one product URL into a finished ProductResult
type Crawler struct {
	engine  Engine
	capture *applog.CaptureBuffer // optional; drained into each result
	log     *logrus.Entry
}

func NewCrawler(engine Engine, capture *applog.CaptureBuffer, log *logrus.Entry) *Crawler {
	return &Crawler{engine: engine, capture: capture, log: log}
}

// CrawlProduct runs the full per-product sequence: fingerprint probe,
// duplicate check, main load and the page loop. Product-level failures are
// folded into the result; only cancellation is returned as an error.
func (c *Crawler) CrawlProduct(ctx context.Context, url string, mode models.Mode, dedup Deduper, progress Progress, cancelled func() bool) (models.ProductResult, error) {
	result := models.ProductResult{
		URL:         url,
		ProductName: paginate.ProductName(url),
	}
	log := c.log.WithField("product", result.ProductName)

	defer func() {
		if c.capture != nil {
			result.Logs = append(result.Logs, c.capture.Drain()...)
		}
	}()

	if cancelled() {
		return result, utils.ErrCancelled
	}

	hash, err := c.engine.HashProbe(ctx, url)
	if err != nil {
		if errors.Is(err, utils.ErrCancelled) || ctx.Err() != nil {
			return result, utils.ErrCancelled
		}
		return c.fail(result, log, err), nil
	}

	if earlier, dup := dedup.Claim(hash, url); dup {
		log.WithField("duplicate_of", earlier).Info("Product already processed under another URL, skipping")
		result.Skipped = true
		result.DuplicateOfURL = earlier
		return result, nil
	}

	_, total, err := c.engine.MainLoad(ctx, url)
	if err != nil {
		if errors.Is(err, utils.ErrCancelled) || ctx.Err() != nil {
			return result, utils.ErrCancelled
		}
		return c.fail(result, log, err), nil
	}
	result.TotalCount = total
	if progress != nil {
		progress.ProductStarted(url, total)
	}

	var onPage func(int)
	if progress != nil {
		onPage = progress.PageReached
	}
	reviews, err := c.engine.PageLoop(ctx, cancelled, mode, onPage)
	result.Reviews = annotate(reviews, hash, url)
	if progress != nil {
		progress.ReviewsCollected(len(result.Reviews))
	}
	if err != nil {
		if errors.Is(err, utils.ErrCancelled) || ctx.Err() != nil {
			return result, utils.ErrCancelled
		}
		// partial reviews are kept alongside the recorded failure
		return c.fail(result, log, err), nil
	}

	log.WithField("reviews", len(result.Reviews)).Info("Product crawl complete")
	return result, nil
}

// fail records err on the result and returns it
func (c *Crawler) fail(result models.ProductResult, log *logrus.Entry, err error) models.ProductResult {
	log.WithField("category", utils.CategorizeError(err)).Errorf("Product crawl failed: %v", err)
	result.ErrorOccurred = true
	result.Error = err.Error()
	return result
}

// annotate stamps the shared fingerprint, source URL and final ordinal
// onto every collected review
func annotate(reviews []models.Review, hash, url string) []models.Review {
	total := len(reviews)
	for i := range reviews {
		reviews[i].FingerprintHash = hash
		reviews[i].SourceURL = url
		reviews[i].Ordinal = fmt.Sprintf("%d/%d", i+1, total)
	}
	return reviews
}
