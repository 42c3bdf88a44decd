package smartmedia

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
)

var (
	errEmptyResponse     = errors.New("empty response")
	errMisplacedResponse = errors.New("response does not cover the start of the requested range")
)

// dispatch starts one fetch unit per reserved span.
func (r *Resource) dispatch(spans []ByteRange) {
	for _, span := range spans {
		r.m.logger().WithField("id", r.id).WithField("range", span.String()).Debug("fetching")
		r.tasks.Go(func() error {
			got, err := r.transfer(span)
			r.finish(span, got, err)
			return nil
		})
	}
}

// transfer fetches reserved into the backing store and returns the span
// that was actually written, which follows what the server delivered.
func (r *Resource) transfer(reserved ByteRange) (ByteRange, error) {
	ctx := r.ctx
	url := r.plan.combined.URL

	if err := r.m.sem.Acquire(ctx, 1); err != nil {
		return ByteRange{}, &FetchError{URL: url, Range: reserved, Err: err}
	}
	defer r.m.sem.Release(1)

	start := time.Now()
	body, actual, err := r.m.opts.Fetcher.FetchRange(ctx, url, reserved)
	if err != nil {
		r.m.opts.Metrics.ObserveFetch(0, time.Since(start), err)
		return ByteRange{}, &FetchError{URL: url, Range: reserved, Err: err}
	}
	defer body.Close()

	if !actual.Valid() {
		actual = reserved
	}
	// the reservation must advance from its start, or the read would ask again forever
	if actual.Start > reserved.Start || actual.End <= reserved.Start {
		r.m.opts.Metrics.ObserveFetch(0, time.Since(start), errMisplacedResponse)
		return ByteRange{}, &FetchError{URL: url, Range: reserved, Err: errors.Wrapf(errMisplacedResponse, "got %s", actual)}
	}

	n, err := copyChunks(ctx, io.NewOffsetWriter(r.store, actual.Start), io.LimitReader(body, actual.Len()), r.m.opts.ChunkSize)
	got := ByteRange{Start: actual.Start, End: actual.Start + n}
	r.m.opts.Metrics.ObserveFetch(n, time.Since(start), err)

	switch {
	case err != nil:
		return got, &FetchError{URL: url, Range: reserved, Err: err}
	case n == 0:
		return got, &FetchError{URL: url, Range: reserved, Err: errEmptyResponse}
	case got.End <= reserved.Start:
		return got, &FetchError{URL: url, Range: reserved, Err: errors.Wrapf(errMisplacedResponse, "got %s", got)}
	}
	return got, nil
}

// finish publishes the outcome of a fetch unit. Whatever was written
// becomes available, and the reservation is always released so that a
// later read can try the span again.
func (r *Resource) finish(reserved, got ByteRange, err error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	if r.hasSize {
		got = got.clamp(0, r.size)
	}
	if got.Len() > 0 {
		r.avail.set.Extend(got)
	}
	r.processing.Remove(reserved)
	r.avail.notify()

	switch {
	case err != nil:
		r.m.logger().WithField("id", r.id).WithField("range", reserved.String()).WithError(err).Warn("fetch failed")
		r.avail.fail(reserved, err)
	case !got.Contains(reserved):
		r.m.logger().WithField("id", r.id).WithField("range", reserved.String()).WithField("got", got.String()).Debug("short fetch")
		r.avail.retry(reserved)
	}
}

// copyChunks copies src to dst in chunks of size bytes, checking ctx
// before each chunk.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, size int) (int64, error) {
	buf := make([]byte, size)
	var n int64

	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		nr, rerr := io.ReadFull(src, buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			n += int64(nw)
			if werr != nil {
				return n, werr
			}
		}

		switch rerr {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return n, nil
		default:
			return n, rerr
		}
	}
}
