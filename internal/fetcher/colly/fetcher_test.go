package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/comic-archive-crawler/internal/crawler"
)

func newArchiveServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/garfield/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-agent", r.UserAgent())
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/garfield/1978/">1978</a></body></html>`))
	})
	mux.HandleFunc("/ga780619.gif", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write([]byte("GIF89a-strip"))
	})
	mux.HandleFunc("/slow.gif", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPage(t *testing.T) {
	t.Parallel()

	srv := newArchiveServer(t)
	f := New(Config{UserAgent: "test-agent", Timeout: time.Second})

	content, err := f.FetchPage(context.Background(), srv.URL+"/garfield/")
	require.NoError(t, err)
	require.Contains(t, content, `href="/garfield/1978/"`)

	// Revisits are allowed so reruns and retries can fetch again.
	_, err = f.FetchPage(context.Background(), srv.URL+"/garfield/")
	require.NoError(t, err)
}

func TestFetchTo(t *testing.T) {
	t.Parallel()

	srv := newArchiveServer(t)
	f := New(Config{UserAgent: "test-agent"})

	var buf bytes.Buffer
	require.NoError(t, f.FetchTo(context.Background(), srv.URL+"/ga780619.gif", &buf))
	require.Equal(t, "GIF89a-strip", buf.String())
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	t.Parallel()

	srv := newArchiveServer(t)
	f := New(Config{})

	var buf bytes.Buffer
	err := f.FetchTo(context.Background(), srv.URL+"/missing.gif", &buf)
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	require.Zero(t, buf.Len(), "nothing is written on failure")
}

func TestFetchConnectionError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).FetchPage(context.Background(), addr+"/garfield/")
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Zero(t, fetchErr.StatusCode)
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()

	srv := newArchiveServer(t)
	f := New(Config{Timeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.FetchPage(ctx, srv.URL+"/slow.gif")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = f.FetchPage(ctx, srv.URL+"/garfield/")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchToWriteError(t *testing.T) {
	t.Parallel()

	srv := newArchiveServer(t)
	err := New(Config{UserAgent: "test-agent"}).FetchTo(context.Background(), srv.URL+"/ga780619.gif", failingWriter{})
	require.ErrorContains(t, err, "write body")
	var fetchErr *crawler.FetchError
	require.False(t, errors.As(err, &fetchErr), "write failures are not fetch failures")
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	var res fetchResult
	hooks := &stubHooks{}
	configureCollectorHooks(hooks, &res, 0)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	require.Equal(t, http.StatusOK, res.status)
	require.Equal(t, "body", string(res.body))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("boom"))
	require.Equal(t, http.StatusBadGateway, res.status)
	require.EqualError(t, res.err, "boom")

	hooks.onError(nil, nil)
	require.EqualError(t, res.err, "unknown colly error")
}

func TestFetchToRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write(bytes.Repeat([]byte("x"), 4096))
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	err := New(Config{MaxBodySize: 1024}).FetchTo(context.Background(), srv.URL+"/ga780619.gif", &buf)
	require.ErrorIs(t, err, ErrBodyTruncated)
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusOK, fetchErr.StatusCode)
	require.Zero(t, buf.Len(), "a cut-off body must not be written")
}

func TestFetchToAcceptsBodyUnderLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 1023))
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	require.NoError(t, New(Config{MaxBodySize: 1024}).FetchTo(context.Background(), srv.URL+"/ga780619.gif", &buf))
	require.Equal(t, 1023, buf.Len())
}

func TestConfigureCollectorHooksIncompleteBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		limit   int
		headers http.Header
		body    string
		wantErr bool
	}{
		{name: "at limit", limit: 4, body: "abcd", wantErr: true},
		{name: "under limit", limit: 5, body: "abcd"},
		{name: "short of content length", headers: http.Header{"Content-Length": {"10"}}, body: "abcd", wantErr: true},
		{name: "matches content length", headers: http.Header{"Content-Length": {"4"}}, body: "abcd"},
		{name: "encoded body", headers: http.Header{"Content-Length": {"10"}, "Content-Encoding": {"gzip"}}, body: "abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var res fetchResult
			hooks := &stubHooks{}
			configureCollectorHooks(hooks, &res, tt.limit)
			resp := &colly.Response{StatusCode: http.StatusOK, Body: []byte(tt.body)}
			if tt.headers != nil {
				resp.Headers = &tt.headers
			}
			hooks.onResponse(resp)
			if tt.wantErr {
				require.ErrorIs(t, res.err, ErrBodyTruncated)
				require.Nil(t, res.body)
				return
			}
			require.NoError(t, res.err)
			require.Equal(t, tt.body, string(res.body))
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
