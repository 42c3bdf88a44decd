// Package httpsrc fetches media over HTTP. Fetcher implements
// smartmedia.RangeFetcher and Resolver implements smartmedia.MetadataResolver
// for ids that are plain http(s) URLs.
package httpsrc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/KarpelesLab/smartmedia"
)

// ErrRangeUnsupported is returned when a server ignores a range request and
// the requested offset is too far in to skip to.
var ErrRangeUnsupported = errors.New("server does not support range requests")

// Fetcher issues HTTP range requests.
type Fetcher struct {
	// Client is the http client used for every request. Default is
	// http.DefaultClient
	Client *http.Client

	// MaxDataJump is the maximum data that can be read & dropped when a
	// server answers a range request with the whole object. Default is 512kB
	MaxDataJump int64

	// UserAgent is sent with every request when set.
	UserAgent string

	// Logger receives request logs. nil disables logging.
	Logger log.Interface
}

// NewFetcher returns a Fetcher with default settings.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:      http.DefaultClient,
		MaxDataJump: 512 * 1024,
	}
}

func (f *Fetcher) client() *http.Client {
	if f.Client == nil {
		return http.DefaultClient
	}
	return f.Client
}

func (f *Fetcher) logf(msg string, args ...any) {
	if f.Logger == nil {
		return
	}
	f.Logger.Debugf(msg, args...)
}

func (f *Fetcher) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	return req, nil
}

// FetchRange requests r from url. A 206 answer is trusted for the range it
// declares in Content-Range. A 200 answer carries the whole object; when r
// starts within MaxDataJump bytes the leading data is dropped, otherwise
// the request fails with ErrRangeUnsupported.
func (f *Fetcher) FetchRange(ctx context.Context, url string, r smartmedia.ByteRange) (io.ReadCloser, smartmedia.ByteRange, error) {
	req, err := f.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, smartmedia.ByteRange{}, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", r.Start, r.End-1))

	f.logf("requesting %s %s", url, r)

	res, err := f.client().Do(req)
	if err != nil {
		return nil, smartmedia.ByteRange{}, err
	}

	switch res.StatusCode {
	case http.StatusPartialContent:
		actual, _, err := ParseContentRange(res.Header.Get("Content-Range"))
		if err != nil {
			// no usable Content-Range, assume the request was honored
			actual = smartmedia.ByteRange{Start: r.Start, End: r.Start + max(res.ContentLength, 0)}
			if res.ContentLength < 0 {
				actual.End = r.End
			}
		}
		return res.Body, actual, nil
	case http.StatusOK:
		if r.Start > f.MaxDataJump {
			res.Body.Close()
			return nil, smartmedia.ByteRange{}, ErrRangeUnsupported
		}
		if r.Start > 0 {
			if _, err := io.CopyN(io.Discard, res.Body, r.Start); err != nil {
				res.Body.Close()
				return nil, smartmedia.ByteRange{}, errors.Wrap(err, "failed to skip to range start")
			}
		}
		actual := smartmedia.ByteRange{Start: r.Start, End: r.End}
		if res.ContentLength >= 0 && res.ContentLength < actual.End {
			actual.End = res.ContentLength
		}
		return res.Body, actual, nil
	default:
		res.Body.Close()
		return nil, smartmedia.ByteRange{}, errors.Errorf("failed to download: %s", res.Status)
	}
}

// FetchAll downloads the whole of url.
func (f *Fetcher) FetchAll(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := f.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}

	f.logf("downloading %s", url)

	res, err := f.client().Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode > 299 {
		res.Body.Close()
		return nil, errors.Errorf("failed to download: %s", res.Status)
	}
	return res.Body, nil
}

// ParseContentRange parses a "bytes a-b/total" header into the half-open
// range it covers and the total size, or -1 when the total is "*".
func ParseContentRange(h string) (smartmedia.ByteRange, int64, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(h), "bytes ")
	if !ok {
		return smartmedia.ByteRange{}, 0, errors.Errorf("invalid Content-Range %q", h)
	}

	span, total, ok := strings.Cut(spec, "/")
	if !ok {
		return smartmedia.ByteRange{}, 0, errors.Errorf("invalid Content-Range %q", h)
	}

	size := int64(-1)
	if total != "*" {
		n, err := strconv.ParseInt(total, 10, 64)
		if err != nil {
			return smartmedia.ByteRange{}, 0, errors.Wrapf(err, "invalid Content-Range %q", h)
		}
		size = n
	}

	first, last, ok := strings.Cut(span, "-")
	if !ok {
		return smartmedia.ByteRange{}, size, errors.Errorf("invalid Content-Range %q", h)
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return smartmedia.ByteRange{}, size, errors.Wrapf(err, "invalid Content-Range %q", h)
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return smartmedia.ByteRange{}, size, errors.Wrapf(err, "invalid Content-Range %q", h)
	}

	r, err := smartmedia.NewByteRange(start, end+1)
	if err != nil {
		return smartmedia.ByteRange{}, size, err
	}
	return r, size, nil
}

var _ smartmedia.RangeFetcher = (*Fetcher)(nil)
