package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMonths are the month labels used by the archive's navigation.
var DefaultMonths = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// ExtractorConfig configures the page predicates.
type ExtractorConfig struct {
	PathSegment    string
	ImageExtension string
	Months         []string
	Blocklist      []string
}

// Extractor selects year links, month links and strip images from archive
// pages. Parsing is lenient: broken markup yields whatever elements survive.
type Extractor struct {
	pathSegment string
	extension   string
	months      map[string]struct{}
	blocklist   *sourceBlocklist
}

// NewExtractor builds an Extractor. An empty month list falls back to DefaultMonths.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	months := cfg.Months
	if len(months) == 0 {
		months = DefaultMonths
	}
	set := make(map[string]struct{}, len(months))
	for _, m := range months {
		set[m] = struct{}{}
	}
	return &Extractor{
		pathSegment: cfg.PathSegment,
		extension:   cfg.ImageExtension,
		months:      set,
		blocklist:   newSourceBlocklist(cfg.Blocklist),
	}
}

// ExtractYearLinks returns anchors whose href contains the archive path segment.
func (e *Extractor) ExtractYearLinks(content string) []YearLink {
	var links []YearLink
	eachElement(content, "a[href]", func(s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.Contains(href, e.pathSegment) {
			return
		}
		links = append(links, YearLink{URL: href, Label: strings.TrimSpace(s.Text())})
	})
	return links
}

// ExtractMonthLinks returns anchors whose label is exactly a month name.
func (e *Extractor) ExtractMonthLinks(content string) []MonthLink {
	var links []MonthLink
	eachElement(content, "a[href]", func(s *goquery.Selection) {
		label := s.Text()
		if _, ok := e.months[label]; !ok {
			return
		}
		href, _ := s.Attr("href")
		links = append(links, MonthLink{URL: href, Label: label})
	})
	return links
}

// ExtractImages returns img elements whose src ends with the image extension
// and is not blocklisted.
func (e *Extractor) ExtractImages(content string) []ImageCandidate {
	var images []ImageCandidate
	eachElement(content, "img[src]", func(s *goquery.Selection) {
		src, _ := s.Attr("src")
		if !strings.HasSuffix(src, e.extension) || e.blocklist.IsBlocked(src) {
			return
		}
		alt, _ := s.Attr("alt")
		images = append(images, ImageCandidate{Src: src, Alt: alt})
	})
	return images
}

func eachElement(content, selector string, fn func(*goquery.Selection)) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return
	}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		fn(s)
	})
}
