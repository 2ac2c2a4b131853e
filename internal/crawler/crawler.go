package crawler

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/comic-archive-crawler/internal/metrics"
)

// Config holds the discovery settings.
type Config struct {
	// BaseURL resolves year and month hrefs.
	BaseURL string
	// RootURL is the archive landing page listing the years.
	RootURL string
	// DiscoveryConcurrency bounds how many years are walked at once.
	DiscoveryConcurrency int
}

// Crawler walks the archive top-down and enqueues image jobs as each page's
// images are found, so downloads run while discovery continues.
type Crawler struct {
	cfg       Config
	base      *url.URL
	fetcher   PageFetcher
	extractor *Extractor
	queue     Queue
	planner   PathPlanner
	retry     RetryPolicy
	logger    *zap.Logger

	years       atomic.Int64
	pages       atomic.Int64
	pagesFailed atomic.Int64
	jobs        atomic.Int64
}

// New constructs a Crawler.
func New(
	cfg Config,
	fetcher PageFetcher,
	extractor *Extractor,
	queue Queue,
	planner PathPlanner,
	retry RetryPolicy,
	logger *zap.Logger,
) (*Crawler, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.DiscoveryConcurrency <= 0 {
		cfg.DiscoveryConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:       cfg,
		base:      base,
		fetcher:   fetcher,
		extractor: extractor,
		queue:     queue,
		planner:   planner,
		retry:     retry,
		logger:    logger,
	}, nil
}

// Discover walks every year and month reachable from the archive root. It
// returns *ArchiveUnreachableError when the root itself cannot be fetched;
// every other page failure is logged and its subtree skipped. Discover does
// not wait for the queue to drain.
func (c *Crawler) Discover(ctx context.Context) (DiscoveryStats, error) {
	root, err := c.fetchPage(ctx, metrics.PageRoot, c.cfg.RootURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c.Stats(), fmt.Errorf("discovery canceled: %w", ctxErr)
		}
		return c.Stats(), &ArchiveUnreachableError{URL: c.cfg.RootURL, Err: err}
	}

	years := c.extractor.ExtractYearLinks(root)
	c.logger.Info("found year links", zap.Int("count", len(years)))

	var g errgroup.Group
	g.SetLimit(c.cfg.DiscoveryConcurrency)
	for _, year := range years {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c.crawlYear(ctx, year)
			return nil
		})
	}
	_ = g.Wait()

	stats := c.Stats()
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("discovery canceled: %w", err)
	}
	c.logger.Info("discovery complete",
		zap.Int("years", stats.Years),
		zap.Int("pages", stats.Pages),
		zap.Int("pages_failed", stats.PagesFailed),
		zap.Int("jobs", stats.Jobs),
	)
	return stats, nil
}

func (c *Crawler) crawlYear(ctx context.Context, year YearLink) {
	log := c.logger.With(zap.String("year", year.Label))
	yearURL, err := resolveURL(c.base, year.URL)
	if err != nil {
		log.Warn("skipping year with bad link", zap.String("href", year.URL), zap.Error(err))
		return
	}
	c.years.Add(1)

	if _, err := strconv.Atoi(year.Label); err == nil {
		if err := c.planner.EnsureDir(filepath.Join(c.planner.Root(), year.Label)); err != nil {
			log.Warn("failed to create year directory", zap.Error(err))
		}
	}

	visited := newVisitTracker()
	visited.MarkIfNew(yearURL)

	content, err := c.fetchPage(ctx, metrics.PageYear, yearURL)
	if err != nil {
		log.Error("failed to fetch year page; skipping year", zap.String("url", yearURL), zap.Error(err))
		return
	}
	c.enqueueImages(yearURL, content, log)

	for _, month := range c.extractor.ExtractMonthLinks(content) {
		if ctx.Err() != nil {
			return
		}
		monthURL, err := resolveURL(c.base, month.URL)
		if err != nil {
			log.Warn("skipping month with bad link", zap.String("month", month.Label), zap.Error(err))
			continue
		}
		if !visited.MarkIfNew(monthURL) {
			continue
		}
		page, err := c.fetchPage(ctx, metrics.PageMonth, monthURL)
		if err != nil {
			log.Error("failed to fetch month page; skipping month",
				zap.String("month", month.Label),
				zap.String("url", monthURL),
				zap.Error(err),
			)
			continue
		}
		c.enqueueImages(monthURL, page, log.With(zap.String("month", month.Label)))
	}
}

func (c *Crawler) enqueueImages(pageURL, content string, log *zap.Logger) {
	pageBase, err := url.Parse(pageURL)
	if err != nil {
		pageBase = c.base
	}
	images := c.extractor.ExtractImages(content)
	for _, img := range images {
		src, err := resolveURL(pageBase, img.Src)
		if err != nil {
			log.Warn("skipping image with bad src", zap.String("src", img.Src), zap.Error(err))
			continue
		}
		if err := c.queue.Push(ImageJob{SourceURL: src, AltText: img.Alt}); err != nil {
			log.Error("failed to enqueue image", zap.String("src", src), zap.Error(err))
			return
		}
		c.jobs.Add(1)
		metrics.ObserveJobDiscovered()
	}
	log.Debug("enqueued page images", zap.String("url", pageURL), zap.Int("images", len(images)))
}

func (c *Crawler) fetchPage(ctx context.Context, kind, rawURL string) (string, error) {
	var content string
	err := WithRetry(ctx, c.retry, func() error {
		var ferr error
		content, ferr = c.fetcher.FetchPage(ctx, rawURL)
		return ferr
	})
	c.pages.Add(1)
	if err != nil {
		c.pagesFailed.Add(1)
		metrics.ObservePage(kind, "failed")
		return "", err
	}
	metrics.ObservePage(kind, "ok")
	return content, nil
}

// Stats reports discovery progress so far. It is safe to call concurrently with Discover.
func (c *Crawler) Stats() DiscoveryStats {
	return DiscoveryStats{
		Years:       int(c.years.Load()),
		Pages:       int(c.pages.Load()),
		PagesFailed: int(c.pagesFailed.Load()),
		Jobs:        int(c.jobs.Load()),
	}
}
