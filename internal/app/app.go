// Package app wires the crawl engine together and runs one crawl to
// completion.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/comic-archive-crawler/internal/api"
	"github.com/JakeFAU/comic-archive-crawler/internal/clock/system"
	"github.com/JakeFAU/comic-archive-crawler/internal/config"
	"github.com/JakeFAU/comic-archive-crawler/internal/crawler"
	"github.com/JakeFAU/comic-archive-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/comic-archive-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/comic-archive-crawler/internal/id/uuid"
	"github.com/JakeFAU/comic-archive-crawler/internal/metrics"
	"github.com/JakeFAU/comic-archive-crawler/internal/queue/memory"
	"github.com/JakeFAU/comic-archive-crawler/internal/storage/local"
	"github.com/JakeFAU/comic-archive-crawler/internal/storage/postgres"
	"github.com/JakeFAU/comic-archive-crawler/internal/worker"
)

// Run phases reported by the status server.
const (
	PhaseIdle        = "idle"
	PhaseDiscovering = "discovering"
	PhaseDraining    = "draining"
	PhaseDone        = "done"
)

// Options overrides collaborators, mainly for tests. Zero values select the
// production implementations derived from the config.
type Options struct {
	Fs          afero.Fs
	PageFetcher crawler.PageFetcher
	FileFetcher crawler.FileFetcher
	Recorder    crawler.Recorder
	IDGenerator crawler.IDGenerator
	Clock       crawler.Clock
}

// Summary reports how a run ended.
type Summary struct {
	RunID      string
	Discovery  crawler.DiscoveryStats
	Downloaded int64
	Skipped    int64
	Failed     int64
	Duration   time.Duration
}

// App owns every component of one crawl run.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	runID   string
	clock   crawler.Clock
	planner *local.Planner
	queue   *memory.Queue
	pool    *dispatcher.Pool
	crawler *crawler.Crawler
	tally   *tally
	status  *api.Server

	phase     atomic.Value
	startedAt time.Time
	closers   []func()
	closeOnce sync.Once
}

// New builds an App from cfg. Close releases the manifest pool if one was
// opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	idGen := opts.IDGenerator
	if idGen == nil {
		idGen = uuid.New()
	}
	runID, err := idGen.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))

	clock := opts.Clock
	if clock == nil {
		clock = system.New()
	}

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	planner, err := local.NewWithFs(fs, local.Config{
		BaseDir:   cfg.Storage.OutputDir,
		Extension: cfg.Archive.ImageExtension,
	})
	if err != nil {
		return nil, fmt.Errorf("create path planner: %w", err)
	}

	pageFetcher, fileFetcher := opts.PageFetcher, opts.FileFetcher
	if pageFetcher == nil || fileFetcher == nil {
		httpFetcher := collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       cfg.RequestTimeout(),
			MaxBodySize:   cfg.HTTP.MaxBodyBytes,
		})
		if pageFetcher == nil {
			pageFetcher = httpFetcher
		}
		if fileFetcher == nil {
			fileFetcher = httpFetcher
		}
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		runID:   runID,
		clock:   clock,
		planner: planner,
	}
	a.phase.Store(PhaseIdle)

	recorder := opts.Recorder
	if recorder == nil && cfg.Manifest.DSN != "" {
		store, err := postgres.NewManifestStore(ctx, postgres.ManifestStoreConfig{
			DSN:      cfg.Manifest.DSN,
			Table:    cfg.Manifest.Table,
			MaxConns: cfg.Manifest.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open manifest: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		recorder = store
		logger.Info("manifest enabled", zap.String("table", cfg.Manifest.Table))
	}

	retry := crawler.NewExponentialRetryPolicy(cfg.HTTP.MaxAttempts, cfg.BackoffInitial(), cfg.BackoffMax())

	a.queue = memory.NewQueue(memory.WithOutstandingHook(metrics.SetQueueOutstanding))
	downloader := worker.NewDownloader(planner, fileFetcher, retry, recorder, clock, runID, logger.Named("downloader"))
	a.tally = &tally{next: downloader}
	a.pool = dispatcher.New(a.queue, a.tally, cfg.Crawler.Workers, logger.Named("worker"))

	extractor := crawler.NewExtractor(crawler.ExtractorConfig{
		PathSegment:    cfg.Archive.PathSegment,
		ImageExtension: cfg.Archive.ImageExtension,
		Months:         cfg.Archive.Months,
		Blocklist:      cfg.Archive.Blocklist,
	})
	a.crawler, err = crawler.New(crawler.Config{
		BaseURL:              cfg.Archive.BaseURL,
		RootURL:              cfg.Archive.RootURL,
		DiscoveryConcurrency: cfg.Crawler.DiscoveryConcurrency,
	}, pageFetcher, extractor, a.queue, planner, retry, logger.Named("discovery"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create crawler: %w", err)
	}

	if cfg.Status.Addr != "" {
		a.status = api.NewServer(a, logger.Named("status"))
	}
	return a, nil
}

// RunID returns the identifier attached to every log line and manifest row.
func (a *App) RunID() string {
	return a.runID
}

// Run crawls the archive once. Discovery and downloads overlap; Run returns
// after discovery has finished and every enqueued job has been processed.
// A *crawler.ArchiveUnreachableError or a root FilesystemError is fatal;
// individual page and image failures only show up in the Summary.
func (a *App) Run(ctx context.Context) (Summary, error) {
	a.startedAt = a.clock.Now()
	summary := Summary{RunID: a.runID}

	if err := a.planner.EnsureRoot(); err != nil {
		return summary, fmt.Errorf("prepare output root: %w", err)
	}

	statusCtx, stopStatus := context.WithCancel(ctx)
	defer stopStatus()
	var g errgroup.Group
	if a.status != nil {
		g.Go(func() error {
			return a.status.ListenAndServe(statusCtx, a.cfg.Status.Addr)
		})
	}

	a.logger.Info("crawl starting",
		zap.String("root_url", a.cfg.Archive.RootURL),
		zap.String("output_dir", a.planner.Root()),
		zap.Int("workers", a.pool.Size()),
	)
	a.pool.Start(ctx)

	a.phase.Store(PhaseDiscovering)
	stats, discoverErr := a.crawler.Discover(ctx)

	a.phase.Store(PhaseDraining)
	drainErr := a.queue.Drain(ctx)
	a.queue.Close()
	a.pool.Wait()
	a.phase.Store(PhaseDone)

	stopStatus()
	if err := g.Wait(); err != nil {
		a.logger.Warn("status server stopped with error", zap.Error(err))
	}

	summary.Discovery = stats
	summary.Downloaded = a.tally.downloaded.Load()
	summary.Skipped = a.tally.skipped.Load()
	summary.Failed = a.tally.failed.Load()
	summary.Duration = a.clock.Now().Sub(a.startedAt)

	if discoverErr != nil {
		return summary, discoverErr
	}
	if drainErr != nil {
		return summary, fmt.Errorf("wait for downloads: %w", drainErr)
	}
	a.logger.Info("crawl complete",
		zap.Int("jobs", stats.Jobs),
		zap.Int64("downloaded", summary.Downloaded),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("failed", summary.Failed),
		zap.Int("pages_failed", stats.PagesFailed),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// Snapshot implements api.StatusSource.
func (a *App) Snapshot() api.Snapshot {
	stats := a.crawler.Stats()
	phase, _ := a.phase.Load().(string)
	return api.Snapshot{
		RunID:       a.runID,
		Phase:       phase,
		StartedAt:   a.startedAt,
		Outstanding: a.queue.Outstanding(),
		Discovered:  int64(stats.Jobs),
		Downloaded:  a.tally.downloaded.Load(),
		Skipped:     a.tally.skipped.Load(),
		Failed:      a.tally.failed.Load(),
		PagesFailed: int64(stats.PagesFailed),
	}
}

// Close releases resources opened by New.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
	})
}

// IsFatal reports whether err ended the run before any download could
// happen, as opposed to a cancellation.
func IsFatal(err error) bool {
	var unreachable *crawler.ArchiveUnreachableError
	var fsErr *crawler.FilesystemError
	return errors.As(err, &unreachable) || errors.As(err, &fsErr)
}

// tally counts outcomes for the summary and the status server.
type tally struct {
	next       crawler.Processor
	downloaded atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
}

func (t *tally) Process(ctx context.Context, job crawler.ImageJob) crawler.Outcome {
	out := t.next.Process(ctx, job)
	switch out.Status {
	case crawler.OutcomeDownloaded:
		t.downloaded.Add(1)
	case crawler.OutcomeSkipped:
		t.skipped.Add(1)
	case crawler.OutcomeFailed:
		t.failed.Add(1)
	}
	return out
}
