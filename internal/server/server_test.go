package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KarpelesLab/smartmedia"
	"github.com/KarpelesLab/smartmedia/httpsrc"
	"github.com/KarpelesLab/smartmedia/manifest"
	"github.com/KarpelesLab/smartmedia/metrics"
)

// mapResolver serves a fixed set of ids, each backed by one upstream url.
type mapResolver struct {
	resolver *httpsrc.Resolver
	urls     map[string]string
}

func (r *mapResolver) Resolve(ctx context.Context, id string) (*smartmedia.Metadata, error) {
	u, ok := r.urls[id]
	if !ok {
		return nil, errors.Wrap(manifest.ErrUnknownMedia, id)
	}
	return r.resolver.Resolve(ctx, u)
}

type fixture struct {
	data    []byte
	reg     *prometheus.Registry
	backend *httptest.Server
	srv     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	data := make([]byte, 100*1024)
	rand.Read(data)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(backend.Close)

	reg := prometheus.NewRegistry()
	f := httpsrc.NewFetcher()
	opts := smartmedia.DefaultOptions()
	opts.Fetcher = f
	opts.Resolver = &mapResolver{
		resolver: httpsrc.NewResolver(f),
		urls:     map[string]string{"clips/intro.mp4": backend.URL},
	}
	opts.Metrics = metrics.New(reg)
	opts.TmpDir = t.TempDir()

	m, err := smartmedia.NewManager(opts)
	require.NoError(t, err)
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	logger := &log.Logger{Handler: discard.Default, Level: log.DebugLevel}
	srv := httptest.NewServer(New(m, reg, logger).Router())
	t.Cleanup(srv.Close)

	return &fixture{data: data, reg: reg, backend: backend, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, body
}

func TestServeMediaRange(t *testing.T) {
	f := newFixture(t)

	res, body := f.do(t, http.MethodGet, "/media/clips/intro.mp4", http.Header{"Range": {"bytes=1000-1999"}})
	assert.Equal(t, http.StatusPartialContent, res.StatusCode)
	assert.Equal(t, "bytes 1000-1999/102400", res.Header.Get("Content-Range"))
	assert.Equal(t, "stream", res.Header.Get("X-Smartmedia-Mode"))
	assert.Equal(t, f.data[1000:2000], body)
}

func TestServeMediaFull(t *testing.T) {
	f := newFixture(t)

	res, body := f.do(t, http.MethodGet, "/media/clips/intro.mp4", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, f.data, body)
}

func TestServeMediaHead(t *testing.T) {
	f := newFixture(t)

	res, body := f.do(t, http.MethodHead, "/media/clips/intro.mp4", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int64(len(f.data)), res.ContentLength)
	assert.Empty(t, body)
}

func TestServeMediaUnknown(t *testing.T) {
	f := newFixture(t)

	res, _ := f.do(t, http.MethodGet, "/media/nope", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	res, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok\n", string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, "/media/clips/intro.mp4", http.Header{"Range": {"bytes=0-99"}})

	res, body := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, strings.Contains(string(body), "smartmedia_reads_total"), "metrics output: %s", body)
	assert.True(t, strings.Contains(string(body), "smartmedia_fetch_bytes_total"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&smartmedia.MetadataError{ID: "x", Err: manifest.ErrUnknownMedia}, http.StatusNotFound},
		{smartmedia.ErrManagerClosed, http.StatusServiceUnavailable},
		{&smartmedia.MergeError{ID: "x", Err: errors.New("boom")}, http.StatusBadGateway},
		{&smartmedia.MetadataError{ID: "x", Err: errors.New("boom")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
