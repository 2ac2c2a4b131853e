// Package worker implements the image download pipeline and the loop that
// feeds it from the work queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/comic-archive-crawler/internal/crawler"
	"github.com/JakeFAU/comic-archive-crawler/internal/metrics"
)

// Downloader turns one ImageJob into a file on disk. It implements
// crawler.Processor.
type Downloader struct {
	planner  crawler.PathPlanner
	fetcher  crawler.FileFetcher
	retry    crawler.RetryPolicy
	recorder crawler.Recorder
	clock    crawler.Clock
	runID    string
	logger   *zap.Logger
}

// NewDownloader constructs a Downloader. A nil recorder discards records and
// a nil retry policy makes a single attempt.
func NewDownloader(
	planner crawler.PathPlanner,
	fetcher crawler.FileFetcher,
	retry crawler.RetryPolicy,
	recorder crawler.Recorder,
	clock crawler.Clock,
	runID string,
	logger *zap.Logger,
) *Downloader {
	if recorder == nil {
		recorder = crawler.NopRecorder{}
	}
	if clock == nil {
		clock = utcClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		planner:  planner,
		fetcher:  fetcher,
		retry:    retry,
		recorder: recorder,
		clock:    clock,
		runID:    runID,
		logger:   logger,
	}
}

// Process downloads job unless its target file already exists. Failures are
// reported in the Outcome and never leave a partial file at the target path.
func (d *Downloader) Process(ctx context.Context, job crawler.ImageJob) crawler.Outcome {
	log := d.logger.With(zap.String("url", job.SourceURL))
	outcome := d.process(ctx, job, log)

	switch outcome.Status {
	case crawler.OutcomeDownloaded:
		log.Info("downloaded", zap.String("path", outcome.Path), zap.Int64("bytes", outcome.Bytes))
	case crawler.OutcomeSkipped:
		log.Info("skipping", zap.String("path", outcome.Path))
	case crawler.OutcomeFailed:
		log.Warn("failed", zap.String("path", outcome.Path), zap.Error(outcome.Err))
	}
	metrics.ObserveDownload(job.SourceURL, string(outcome.Status), outcome.Bytes)
	d.record(ctx, job, outcome, log)
	return outcome
}

func (d *Downloader) process(ctx context.Context, job crawler.ImageJob, log *zap.Logger) crawler.Outcome {
	date, err := crawler.ParseAltText(job.AltText)
	if err != nil {
		return crawler.Outcome{Status: crawler.OutcomeFailed, Err: err}
	}
	path := d.planner.TargetPath(date)

	exists, err := d.planner.Exists(path)
	if err != nil {
		return crawler.Outcome{Status: crawler.OutcomeFailed, Path: path, Err: err}
	}
	if exists {
		return crawler.Outcome{Status: crawler.OutcomeSkipped, Path: path}
	}
	if err := d.planner.EnsureParentDir(path); err != nil {
		return crawler.Outcome{Status: crawler.OutcomeFailed, Path: path, Err: err}
	}

	log.Info("downloading", zap.String("path", path), zap.Stringer("date", date))
	var written int64
	err = crawler.WithRetry(ctx, d.retry, func() error {
		n, placeErr := d.planner.Place(path, func(w io.Writer) error {
			return d.fetcher.FetchTo(ctx, job.SourceURL, w)
		})
		written = n
		var fetchErr *crawler.FetchError
		if placeErr != nil && errors.As(placeErr, &fetchErr) {
			log.Debug("fetch attempt failed", zap.Int("status", fetchErr.StatusCode), zap.Error(placeErr))
		}
		return placeErr
	})
	if err != nil {
		return crawler.Outcome{Status: crawler.OutcomeFailed, Path: path, Err: fmt.Errorf("download %s: %w", job.SourceURL, err)}
	}
	return crawler.Outcome{Status: crawler.OutcomeDownloaded, Path: path, Bytes: written}
}

// record writes the outcome to the manifest, which is keyed by target path.
// Jobs that never resolved to a path are only logged.
func (d *Downloader) record(ctx context.Context, job crawler.ImageJob, outcome crawler.Outcome, log *zap.Logger) {
	if outcome.Path == "" {
		return
	}
	rec := crawler.DownloadRecord{
		RunID:      d.runID,
		SourceURL:  job.SourceURL,
		Path:       outcome.Path,
		Status:     outcome.Status,
		Bytes:      outcome.Bytes,
		RecordedAt: d.clock.Now(),
	}
	if outcome.Err != nil {
		rec.ErrorText = outcome.Err.Error()
	}
	if err := d.recorder.Record(ctx, rec); err != nil {
		log.Error("manifest record failed", zap.Error(err))
	}
}

// Worker consumes queue items and hands each to a Processor.
type Worker struct {
	id        int
	queue     crawler.Queue
	processor crawler.Processor
	logger    *zap.Logger
}

// New constructs a Worker.
func New(id int, queue crawler.Queue, processor crawler.Processor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:        id,
		queue:     queue,
		processor: processor,
		logger:    logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming jobs until the queue is closed and empty or ctx ends.
// Every popped job is marked done exactly once whatever its outcome.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, crawler.ErrQueueClosed) || ctx.Err() != nil {
				w.logger.Debug("worker exiting", zap.Error(err))
				return
			}
			w.logger.Error("queue pop failed", zap.Error(err))
			continue
		}
		w.handle(ctx, job)
	}
}

func (w *Worker) handle(ctx context.Context, job crawler.ImageJob) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer w.queue.MarkDone()
	w.processor.Process(ctx, job)
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
