package crawler

import (
	"context"
	"io"
	"time"
)

// PageFetcher retrieves an archive page as text.
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string) (string, error)
}

// FileFetcher streams the body at rawURL into w.
type FileFetcher interface {
	FetchTo(ctx context.Context, rawURL string, w io.Writer) error
}

// Queue is the shared work queue between discovery and the worker pool.
type Queue interface {
	Push(job ImageJob) error
	Pop(ctx context.Context) (ImageJob, error)
	MarkDone()
	Drain(ctx context.Context) error
	Close()
}

// PathPlanner maps dates to on-disk paths and owns the output tree.
type PathPlanner interface {
	TargetPath(date ParsedDate) string
	Exists(path string) (bool, error)
	EnsureParentDir(path string) error
	EnsureDir(dir string) error
	Place(path string, fill func(w io.Writer) error) (int64, error)
	Root() string
}

// Processor handles one job to completion.
type Processor interface {
	Process(ctx context.Context, job ImageJob) Outcome
}

// Recorder persists download outcomes for auditing.
type Recorder interface {
	Record(ctx context.Context, rec DownloadRecord) error
}

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// NopRecorder discards every record.
type NopRecorder struct{}

// Record does nothing.
func (NopRecorder) Record(context.Context, DownloadRecord) error { return nil }

// Clock supplies timestamps for manifest records.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
