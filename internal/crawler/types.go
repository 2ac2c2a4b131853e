package crawler

import (
	"fmt"
	"time"
)

// ImageJob is one discovered strip image awaiting download.
type ImageJob struct {
	SourceURL string
	AltText   string
}

// ParsedDate is the calendar date carried by an image's alt text.
type ParsedDate struct {
	Day   int
	Month int
	Year  int
}

// String renders the date in the archive's D/M/Y form.
func (d ParsedDate) String() string {
	return fmt.Sprintf("%d/%d/%d", d.Day, d.Month, d.Year)
}

// YearLink is an anchor on the archive root that leads to a year landing page.
type YearLink struct {
	URL   string
	Label string
}

// MonthLink is an anchor on a year page that leads to one month of strips.
type MonthLink struct {
	URL   string
	Label string
}

// ImageCandidate is an img element that passed the extension and blocklist checks.
type ImageCandidate struct {
	Src string
	Alt string
}

// OutcomeStatus classifies how a job finished.
type OutcomeStatus string

// Outcome status values reported by the downloader.
const (
	OutcomeDownloaded OutcomeStatus = "downloaded"
	OutcomeSkipped    OutcomeStatus = "skipped"
	OutcomeFailed     OutcomeStatus = "failed"
)

// Outcome is the result of processing a single ImageJob.
type Outcome struct {
	Status OutcomeStatus
	Path   string
	Bytes  int64
	Err    error
}

// DownloadRecord is written to the optional audit manifest for each processed job.
type DownloadRecord struct {
	RunID      string
	SourceURL  string
	Path       string
	Status     OutcomeStatus
	Bytes      int64
	ErrorText  string
	RecordedAt time.Time
}

// DiscoveryStats summarises one discovery pass.
type DiscoveryStats struct {
	Years       int
	Pages       int
	PagesFailed int
	Jobs        int
}
