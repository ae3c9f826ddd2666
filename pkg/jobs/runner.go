package jobs

import (
	"context"
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"review-scraper/pkg/browser"
	"review-scraper/pkg/config"
	applog "review-scraper/pkg/log"
	"review-scraper/pkg/models"
	"review-scraper/pkg/paginate"
	"review-scraper/pkg/pipeline"
	"review-scraper/pkg/storage"
	"review-scraper/pkg/utils"
)

// CrawlRunner is the production Runner: it materializes the input
// workbook, walks every product URL through the crawl pipeline and always
// leaves a result workbook behind, errors included.
type CrawlRunner struct {
	cfg       *config.AppConfig
	fetcher   *storage.Fetcher
	writer    *storage.Writer
	artifacts *storage.Artifacts
	capture   *applog.CaptureBuffer
	log       *logrus.Entry

	// seams for tests; production wiring uses chromedp
	newSession func(ctx context.Context) (browser.Session, error)
	newEngine  func(s browser.Session) pipeline.Engine
}

func NewCrawlRunner(cfg *config.AppConfig, launcher *browser.Launcher, capture *applog.CaptureBuffer, log *logrus.Entry) *CrawlRunner {
	r := &CrawlRunner{
		cfg:       cfg,
		fetcher:   storage.NewFetcher(log),
		writer:    storage.NewWriter(cfg.Storage.OutputDir, log),
		artifacts: storage.NewArtifacts(cfg.Storage.ArtifactDir, log),
		capture:   capture,
		log:       log,
	}
	r.newSession = func(ctx context.Context) (browser.Session, error) {
		return launcher.NewSession(ctx)
	}
	r.newEngine = func(s browser.Session) pipeline.Engine {
		human := browser.NewHumanizer(s, log)
		return paginate.NewEngine(s, human, launcher.Detector(), cfg.Crawl, cfg.Browser, cfg.Storage.ArtifactDir, log)
	}
	return r
}

// progressReporter feeds live pipeline counters back into the job record
type progressReporter struct{ h *Handle }

func (p progressReporter) ProductStarted(url string, declaredTotal int) {
	p.h.Update(func(job *models.Job) {
		job.TotalReviewsCount += declaredTotal
	})
}

func (p progressReporter) PageReached(page int) {
	p.h.Update(func(job *models.Job) {
		job.CurrentPage = page
	})
}

func (p progressReporter) ReviewsCollected(count int) {
	p.h.Update(func(job *models.Job) {
		job.CollectedReviews += count
	})
}

// Run implements Runner
func (r *CrawlRunner) Run(ctx context.Context, h *Handle) error {
	log := r.log.WithField("job_id", h.ID())
	job := h.Job()

	links, err := r.readInput(ctx, job.InputRef, log)
	if err != nil {
		r.finish(h, nil, err.Error(), log)
		return err
	}
	h.Update(func(j *models.Job) { j.TotalURLs = len(links) })

	if h.Cancelled() {
		r.finish(h, nil, "", log)
		return utils.ErrCancelled
	}

	session, err := r.newSession(ctx)
	if err != nil {
		log.Errorf("Browser session failed: %v", err)
		r.finish(h, nil, err.Error(), log)
		return err
	}
	defer session.Close()

	h.SetStatus(models.JobStatusParsing)
	crawler := pipeline.NewCrawler(r.newEngine(session), r.capture, log)

	var results []models.ProductResult
	var cancelled bool
	for _, url := range links {
		if h.Cancelled() {
			cancelled = true
			break
		}
		h.Update(func(j *models.Job) { j.CurrentURL = url })

		result, err := crawler.CrawlProduct(ctx, url, job.Mode, h, progressReporter{h}, h.Cancelled)
		results = append(results, result)
		h.Update(func(j *models.Job) {
			j.ProcessedURLs++
			j.CurrentURL = ""
			j.CurrentPage = 0
			// first error wins; later product failures never overwrite it
			if result.ErrorOccurred && j.Error == "" {
				j.Error = result.Error
			}
		})

		if errors.Is(err, utils.ErrCancelled) {
			cancelled = true
			break
		}
	}

	r.finish(h, results, "", log)
	if cancelled {
		return utils.ErrCancelled
	}
	return nil
}

// readInput materializes the referenced workbook and extracts its links
func (r *CrawlRunner) readInput(ctx context.Context, inputRef string, log *logrus.Entry) ([]string, error) {
	path, err := r.fetcher.Fetch(ctx, inputRef, os.TempDir())
	if err != nil {
		log.Errorf("Input fetch failed: %v", err)
		return nil, err
	}

	links, err := storage.ReadLinks(path, r.cfg.Crawl.ProductURLPrefix)
	if err != nil {
		log.Errorf("Input read failed: %v", err)
		return nil, err
	}

	log.WithField("links", len(links)).Info("Input workbook read")
	return links, nil
}

// finish writes the result workbook and archives debug artifacts. Output
// failures are logged but never replace an earlier recorded error.
func (r *CrawlRunner) finish(h *Handle, results []models.ProductResult, jobErr string, log *logrus.Entry) {
	path, err := r.writer.Write(results, jobErr)
	if err != nil {
		log.Errorf("Result workbook failed: %v", err)
	} else {
		h.Update(func(j *models.Job) { j.OutputRef = path })
	}
	r.artifacts.Archive(h.ID(), r.cfg.Storage.OutputDir)
}
