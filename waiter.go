package smartmedia

import (
	"context"
	"sync"
)

// waiter is a blocked reader's interest in one target range. Readers asking
// for the identical range share a waiter.
type waiter struct {
	target ByteRange
	done   chan struct{}
	refs   int

	// set when done is closed
	retry bool
	err   error
}

func (w *waiter) signal(retry bool, err error) {
	w.retry = retry
	w.err = err
	close(w.done)
}

// availability is the set of resident bytes together with the readers
// waiting for parts of it. Every method must be called with the owning
// resource's lock held, except wait which takes the lock itself.
type availability struct {
	set     RangeSet
	waiters map[ByteRange]*waiter
}

// register returns a waiter for target, or nil if target is already
// resident.
func (a *availability) register(target ByteRange) *waiter {
	if a.set.FullyContains(target) {
		return nil
	}
	if a.waiters == nil {
		a.waiters = make(map[ByteRange]*waiter)
	}
	w, ok := a.waiters[target]
	if !ok {
		w = &waiter{target: target, done: make(chan struct{})}
		a.waiters[target] = w
	}
	w.refs++
	return w
}

// unregister drops one reference to w. Signaled waiters are already gone
// from the map.
func (a *availability) unregister(w *waiter) {
	w.refs--
	if w.refs > 0 {
		return
	}
	if cur, ok := a.waiters[w.target]; ok && cur == w {
		delete(a.waiters, w.target)
	}
}

// extend adds r to the resident set and wakes satisfied waiters.
func (a *availability) extend(r ByteRange) {
	a.set.Extend(r)
	a.notify()
}

// notify wakes every waiter whose target is now fully resident.
func (a *availability) notify() {
	for k, w := range a.waiters {
		if a.set.FullyContains(k) {
			delete(a.waiters, k)
			w.signal(false, nil)
		}
	}
}

// fail wakes the waiters whose target overlaps span with err.
func (a *availability) fail(span ByteRange, err error) {
	for k, w := range a.waiters {
		if k.Overlap(span) > 0 {
			delete(a.waiters, k)
			w.signal(false, err)
		}
	}
}

// retry wakes the waiters whose target overlaps span so they re-evaluate
// what is missing. A zero span wakes everyone.
func (a *availability) retry(span ByteRange) {
	for k, w := range a.waiters {
		if span.Len() == 0 || k.Overlap(span) > 0 {
			delete(a.waiters, k)
			w.signal(true, nil)
		}
	}
}

// wait blocks until w is signaled or ctx is done. It reports whether the
// caller has to re-evaluate its request. lk is the lock guarding a.
func (a *availability) wait(ctx context.Context, lk sync.Locker, w *waiter) (bool, error) {
	select {
	case <-w.done:
		return w.retry, w.err
	case <-ctx.Done():
	}

	lk.Lock()
	defer lk.Unlock()

	select {
	case <-w.done:
		// signaled while we were reacquiring the lock
		return w.retry, w.err
	default:
	}
	a.unregister(w)
	return false, ctx.Err()
}
