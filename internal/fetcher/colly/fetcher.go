// Package collyfetcher implements the archive page and image fetchers using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/comic-archive-crawler/internal/crawler"
)

const defaultTimeout = 15 * time.Second

// ErrBodyTruncated reports a response body that was cut short, either by the
// body size cap or by a connection that delivered less than Content-Length.
var ErrBodyTruncated = errors.New("response body truncated")

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodySize caps response bodies in bytes; 0 keeps colly's default.
	// A body that reaches the cap is rejected rather than returned short.
	MaxBodySize int
}

// Fetcher implements crawler.PageFetcher and crawler.FileFetcher. Each fetch
// runs on a clone of one base collector so transport connections are shared.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	// Retries and reruns fetch the same URL again.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.WithTransport(newHTTPTransport())
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.SetRequestTimeout(timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// FetchPage returns the body at rawURL as text.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (string, error) {
	body, err := f.fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchTo writes the body at rawURL to w. Fetch failures are *crawler.FetchError;
// write failures are returned wrapped as-is.
func (f *Fetcher) FetchTo(ctx context.Context, rawURL string, w io.Writer) error {
	body, err := f.fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &crawler.FetchError{URL: rawURL, Err: err}
	}
	collector := f.baseCollector.Clone()

	done := make(chan fetchResult, 1)
	go func() {
		var res fetchResult
		configureCollectorHooks(collector, &res, collector.MaxBodySize)
		if err := collector.Visit(rawURL); err != nil && res.err == nil {
			res.err = err
		}
		done <- res
	}()

	select {
	case <-ctx.Done():
		return nil, &crawler.FetchError{URL: rawURL, Err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case res := <-done:
		if res.err != nil {
			return nil, &crawler.FetchError{URL: rawURL, StatusCode: res.status, Err: res.err}
		}
		if res.body == nil {
			return nil, &crawler.FetchError{URL: rawURL, StatusCode: res.status, Err: errors.New("colly fetch produced no response")}
		}
		return res.body, nil
	}
}

func configureCollectorHooks(hooks collectorHooks, res *fetchResult, maxBodySize int) {
	hooks.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		if err := checkBodyComplete(r, maxBodySize); err != nil {
			res.err = err
			return
		}
		res.body = append([]byte{}, r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.status = r.StatusCode
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		res.err = err
	})
}

// checkBodyComplete rejects bodies colly cut at maxBodySize without an error,
// and bodies shorter or longer than the declared Content-Length.
func checkBodyComplete(r *colly.Response, maxBodySize int) error {
	if maxBodySize > 0 && len(r.Body) >= maxBodySize {
		return fmt.Errorf("%w: reached %d byte limit", ErrBodyTruncated, maxBodySize)
	}
	if r.Headers == nil || r.Headers.Get("Content-Encoding") != "" {
		return nil
	}
	declared := r.Headers.Get("Content-Length")
	if declared == "" {
		return nil
	}
	want, err := strconv.Atoi(declared)
	if err != nil || want == len(r.Body) {
		return nil
	}
	return fmt.Errorf("%w: got %d of %d bytes", ErrBodyTruncated, len(r.Body), want)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}
