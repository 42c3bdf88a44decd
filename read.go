package smartmedia

import (
	"context"
	"time"
)

// readAt fills p with the bytes of r at off, fetching what is missing. It
// returns fewer than len(p) bytes only when the read reaches the end of
// the object.
func (r *Resource) readAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &InvalidRangeError{Start: off, End: off + int64(len(p))}
	}
	if !r.beginRead() {
		return 0, ErrResourceClosed
	}
	defer r.endRead()

	start := time.Now()

	r.lk.Lock()
	ready, mode, done := r.state == stateReady, r.plan.mode, r.preload == preloadDone
	r.lk.Unlock()

	if !ready {
		return 0, ErrNotReady
	}
	if mode == ModePreload && !done {
		if err := r.awaitPreload(ctx); err != nil {
			return 0, err
		}
	}

	r.lk.Lock()
	size := r.sizeLocked()
	r.lk.Unlock()

	if off >= size || len(p) == 0 {
		return 0, nil
	}
	cur := ByteRange{Start: off, End: min(off+int64(len(p)), size)}

	blocked, err := r.ensure(ctx, cur, int64(len(p)))
	if err != nil {
		return 0, err
	}

	n, err := r.store.ReadAt(p[:cur.Len()], off)
	r.m.opts.Metrics.ObserveRead(int64(n), time.Since(start), blocked)
	return n, err
}

// ensure makes cur resident. Missing bytes of the prefetch window around
// cur are reserved and fetched, then the caller waits for cur itself. It
// reports whether the caller had to wait.
func (r *Resource) ensure(ctx context.Context, cur ByteRange, length int64) (bool, error) {
	blocked := false

	for {
		r.lk.Lock()
		w := r.avail.register(cur)
		if w == nil {
			r.lk.Unlock()
			return blocked, nil
		}
		missing := r.reserveLocked(cur, length)
		r.lk.Unlock()

		blocked = true
		r.dispatch(missing)

		// a retry means a fetch came back short: compute what is missing again
		if _, err := r.avail.wait(ctx, &r.lk, w); err != nil {
			return blocked, err
		}
	}
}

// reserveLocked computes the bytes of the prefetch window around cur that
// are neither resident nor being fetched, and reserves them in processing.
func (r *Resource) reserveLocked(cur ByteRange, length int64) []ByteRange {
	window := ByteRange{
		Start: cur.Start - max(r.m.opts.BackMargin, 0)*length,
		End:   cur.End + max(r.m.opts.ForwardMargin, 0)*length,
	}.clamp(0, r.sizeLocked())
	if window.Len() == 0 {
		return nil
	}

	missing := RangeSet{ranges: []ByteRange{window}}.SubSet(r.avail.set).SubSet(r.processing)
	r.processing.ExtendSet(missing)
	return missing.Ranges()
}

// complete fetches every byte of r that is not resident yet.
func (r *Resource) complete(ctx context.Context) error {
	if !r.beginRead() {
		return ErrResourceClosed
	}
	defer r.endRead()

	r.lk.Lock()
	ready, mode := r.state == stateReady, r.plan.mode
	size := r.sizeLocked()
	r.lk.Unlock()

	if !ready {
		return ErrNotReady
	}
	if mode == ModePreload {
		return r.awaitPreload(ctx)
	}
	if size == 0 {
		return nil
	}

	_, err := r.ensure(ctx, ByteRange{Start: 0, End: size}, size)
	return err
}
