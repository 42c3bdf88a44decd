package smartmedia

import (
	"bytes"
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
)

// awaitPreload starts the preload of r if none is running and blocks until
// the whole object is resident. Concurrent callers share one preload and
// wait on the whole-object range.
func (r *Resource) awaitPreload(ctx context.Context) error {
	r.lk.Lock()
	for {
		switch r.preload {
		case preloadDone:
			r.lk.Unlock()
			return nil
		case preloadIdle, preloadFailed:
			r.startPreloadLocked()
		}

		w := r.avail.register(ByteRange{Start: 0, End: r.sizeLocked()})
		r.lk.Unlock()

		if w != nil {
			if _, err := r.avail.wait(ctx, &r.lk, w); err != nil {
				return err
			}
		}
		r.lk.Lock()
	}
}

// startPreloadLocked moves the preload state to Fetching and runs the
// transfer as a task of r, bound to the lifetime of r rather than to the
// caller that triggered it.
func (r *Resource) startPreloadLocked() {
	r.preload = preloadFetching
	r.preloadErr = nil
	p := r.plan

	r.m.logger().WithField("id", r.id).WithField("merge", p.merge).Info("preloading")

	r.tasks.Go(func() error {
		n, err := r.materialize(r.ctx, p)
		r.finishPreload(n, err)
		return nil
	})
}

func (r *Resource) finishPreload(n int64, err error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	if err != nil {
		r.preload = preloadFailed
		r.preloadErr = err
		r.m.logger().WithField("id", r.id).WithError(err).Warn("preload failed")
		r.avail.fail(everything, err)
		return
	}

	r.size, r.hasSize = n, true
	r.preload = preloadDone
	if n > 0 {
		r.avail.extend(ByteRange{Start: 0, End: n})
	}
	// waiters registered against a provisional size re-evaluate
	r.avail.retry(ByteRange{})

	r.m.logger().WithField("id", r.id).WithField("bytes", n).Info("preloaded")
}

// materialize writes the whole object described by p into the backing store
// and returns its length.
func (r *Resource) materialize(ctx context.Context, p plan) (int64, error) {
	if !p.merge {
		return r.fetchAll(ctx, p.combined.URL, io.NewOffsetWriter(r.store, 0))
	}

	if r.m.opts.Muxer == nil {
		return 0, &MergeError{ID: r.id, Err: ErrNoMuxer}
	}

	var video, audio bytes.Buffer
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := r.fetchAll(gctx, p.video.URL, &video)
		return err
	})
	g.Go(func() error {
		_, err := r.fetchAll(gctx, p.audio.URL, &audio)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, &MergeError{ID: r.id, Err: err}
	}

	start := time.Now()
	out, err := r.m.opts.Muxer.Merge(ctx, video.Bytes(), audio.Bytes())
	r.m.opts.Metrics.ObserveMerge(time.Since(start), err)
	if err != nil {
		return 0, &MergeError{ID: r.id, Err: err}
	}

	if _, err := r.store.WriteAt(out, 0); err != nil {
		return 0, &MergeError{ID: r.id, Err: err}
	}
	return int64(len(out)), nil
}

// fetchAll copies the whole of url into dst.
func (r *Resource) fetchAll(ctx context.Context, url string, dst io.Writer) (int64, error) {
	if err := r.m.sem.Acquire(ctx, 1); err != nil {
		return 0, &FetchError{URL: url, Err: err}
	}
	defer r.m.sem.Release(1)

	start := time.Now()
	body, err := r.m.opts.Fetcher.FetchAll(ctx, url)
	if err != nil {
		r.m.opts.Metrics.ObserveFetch(0, time.Since(start), err)
		return 0, &FetchError{URL: url, Err: err}
	}
	defer body.Close()

	n, err := copyChunks(ctx, dst, body, r.m.opts.ChunkSize)
	r.m.opts.Metrics.ObserveFetch(n, time.Since(start), err)
	if err != nil {
		return n, &FetchError{URL: url, Err: err}
	}
	return n, nil
}
