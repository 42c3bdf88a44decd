package httpsrc

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/KarpelesLab/smartmedia"
)

// Resolver treats media ids as URLs of a single combined source.
type Resolver struct {
	Fetcher *Fetcher
}

// NewResolver returns a Resolver issuing its requests through f.
func NewResolver(f *Fetcher) *Resolver {
	return &Resolver{Fetcher: f}
}

// Resolve returns the size of the object at id, which must be a URL.
func (r *Resolver) Resolve(ctx context.Context, id string) (*smartmedia.Metadata, error) {
	size, err := r.Size(ctx, id)
	if err != nil {
		return nil, err
	}
	return &smartmedia.Metadata{
		Size:    size,
		Sources: []smartmedia.Source{{Role: smartmedia.RoleCombined, URL: id}},
	}, nil
}

// Size fetches the size of url via a HEAD request. Servers that refuse
// HEAD (signed S3 urls for example) are asked for the first byte instead,
// and the size is taken from Content-Range. A size of 0 means unknown.
func (r *Resolver) Size(ctx context.Context, url string) (int64, error) {
	f := r.Fetcher
	if f == nil {
		f = NewFetcher()
	}

	req, err := f.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return 0, err
	}
	res, err := f.client().Do(req)
	if err != nil {
		return 0, err
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK && res.ContentLength >= 0 {
		return res.ContentLength, nil
	}
	if res.StatusCode == http.StatusNotFound {
		return 0, errors.Errorf("failed to stat %s: %s", url, res.Status)
	}

	// fallback to a one byte range request
	req, err = f.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")
	res, err = f.client().Do(req)
	if err != nil {
		return 0, err
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusPartialContent:
		_, total, err := ParseContentRange(res.Header.Get("Content-Range"))
		if err != nil {
			return 0, err
		}
		if total < 0 {
			return 0, nil
		}
		return total, nil
	case http.StatusOK:
		return max(res.ContentLength, 0), nil
	default:
		return 0, errors.Errorf("failed to stat %s: %s", url, res.Status)
	}
}

var _ smartmedia.MetadataResolver = (*Resolver)(nil)
