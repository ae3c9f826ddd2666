package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"review-scraper/pkg/browser"
	"review-scraper/pkg/config"
	"review-scraper/pkg/jobs"
	applog "review-scraper/pkg/log"
	"review-scraper/pkg/lock"
	"review-scraper/pkg/models"
	"review-scraper/pkg/server"
	"review-scraper/pkg/storage"
	"review-scraper/pkg/utils"
	"review-scraper/pkg/watch"
)

const version = "0.4.1"

const usage = `Usage: review-scraper <command> [flags]

Commands:
  serve            Run the HTTP API and job orchestrator
  crawl            Run a single job from the command line and exit
  refresh-cookies  Perform one cookie refresh visit and exit
  validate         Load and validate the configuration, then exit
  version          Print the version and exit
`

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]
	if command == "version" {
		fmt.Println("review-scraper " + version)
		return
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configFlag := fs.String("config", "config.yaml", "Path to YAML config file")
	logLevelFlag := fs.String("loglevel", "", "Log level override (debug, info, warn, error)")
	inputFlag := fs.String("input", "", "Input workbook path or URL (crawl only)")
	modeFlag := fs.String("mode", "", "Extraction mode: all, text-only or strict-text (crawl only)")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	level := cfg.LogLevel
	if *logLevelFlag != "" {
		level = *logLevelFlag
	}
	if parsed, err := logrus.ParseLevel(level); err != nil {
		log.Warnf("Invalid log level '%s', using 'info'", level)
	} else {
		log.SetLevel(parsed)
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Configuration invalid: %v", err)
	}

	if command == "validate" {
		log.Infof("Configuration %s is valid (%d warnings)", *configFlag, len(warnings))
		os.Exit(0)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	entry := logrus.NewEntry(log)
	app, err := buildApp(ctx, cfg, log, entry)
	if err != nil {
		log.Fatalf("Initialization failed: %v", err)
	}
	defer app.close()

	switch command {
	case "serve":
		err = app.serve(ctx, cfg.ListenAddr)
	case "crawl":
		err = app.crawlOnce(ctx, *inputFlag, models.Mode(*modeFlag))
	case "refresh-cookies":
		err = app.refresher.RefreshOnce(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, utils.ErrCancelled) {
			log.Warn("Stopped by request")
			os.Exit(0)
		}
		log.Errorf("Finished with error: %v", err)
		os.Exit(1)
	}
	log.Info("Done")
}

// signalContext cancels on SIGINT/SIGTERM; a second signal forces exit
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Shutting down...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded. Forcing exit.")
			os.Exit(1)
		}
	}()
	return ctx, cancel
}

// application bundles the wired components behind each subcommand
type application struct {
	cfg       *config.AppConfig
	manager   *jobs.Manager
	refresher *watch.Refresher
	mirror    *storage.JobStore
	log       *logrus.Entry
}

func buildApp(ctx context.Context, cfg *config.AppConfig, root *logrus.Logger, log *logrus.Entry) (*application, error) {
	for _, dir := range []string{cfg.Storage.OutputDir, cfg.Storage.ArtifactDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: creating %s: %v", utils.ErrFilesystem, dir, err)
		}
	}

	locks, err := lock.NewManager(cfg.Lock.Dir, log.WithField("component", "lock"))
	if err != nil {
		return nil, err
	}

	var mirror *storage.JobStore
	if cfg.Storage.MirrorJobs {
		mirror, err = storage.OpenJobStore(cfg.Storage.StateDir, log.WithField("component", "jobstore"))
		if err != nil {
			// history is a convenience; the orchestrator works without it
			log.Warnf("Job history mirror unavailable: %v", err)
			mirror = nil
		}
	}

	capture := applog.NewCaptureBuffer()
	root.AddHook(capture)

	launcher := browser.NewLauncher(cfg.Browser, log.WithField("component", "browser"))
	runner := jobs.NewCrawlRunner(cfg, launcher, capture, log.WithField("component", "runner"))
	manager := jobs.NewManager(ctx, cfg.Jobs, runner, locks, cfg.Lock.ParserTTL, mirror, log.WithField("component", "jobs"))
	refresher := watch.NewRefresher(cfg.Watch, cfg.Lock, launcher, locks, log.WithField("component", "watch"))

	return &application{
		cfg:       cfg,
		manager:   manager,
		refresher: refresher,
		mirror:    mirror,
		log:       log,
	}, nil
}

func (a *application) close() {
	a.refresher.Stop()
	a.manager.Wait()
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.log.Warnf("Closing job store: %v", err)
		}
	}
}

// serve runs the orchestrator, the janitor, the cookie refresh schedule
// and the HTTP API until the context ends
func (a *application) serve(ctx context.Context, addr string) error {
	a.manager.StartJanitor(ctx)
	if err := a.refresher.Start(ctx); err != nil {
		return err
	}

	srv := server.New(a.manager, a.log.WithField("component", "api"))
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.WithField("addr", addr).Info("HTTP API listening")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// crawlOnce submits a single job and blocks until it terminates
func (a *application) crawlOnce(ctx context.Context, inputRef string, mode models.Mode) error {
	if inputRef == "" {
		return fmt.Errorf("%w: -input is required for crawl", utils.ErrJobInput)
	}

	job, err := a.manager.Submit(inputRef, mode)
	if err != nil {
		return err
	}
	a.log.WithField("job_id", job.ID).Info("Job submitted")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if _, err := a.manager.Cancel(job.ID); err != nil {
				a.log.Warnf("Cancel on shutdown failed: %v", err)
			}
			a.manager.Wait()
			return utils.ErrCancelled
		case <-ticker.C:
			current, err := a.manager.Status(job.ID)
			if err != nil {
				return err
			}
			if !current.Status.IsTerminal() {
				continue
			}
			a.log.WithFields(logrus.Fields{
				"status":  current.Status,
				"reviews": current.CollectedReviews,
				"output":  current.OutputRef,
			}).Info("Job finished")
			if current.Status == models.JobStatusError {
				return errors.New(current.Error)
			}
			return nil
		}
	}
}
