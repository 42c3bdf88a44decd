package smartmedia

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type resourceState int

const (
	stateUninitialized resourceState = iota
	stateResolving
	stateReady
	stateClosed
)

type preloadState int

const (
	preloadIdle preloadState = iota
	preloadFetching
	preloadDone
	preloadFailed
)

// everything overlaps every range a waiter can be registered on.
var everything = ByteRange{Start: 0, End: math.MaxInt64}

// Resource is the shared state of one media object: what is resident, what
// is being fetched and who is waiting for it. Resources are created and
// owned by a Manager.
type Resource struct {
	id string
	m  *Manager

	lk    sync.Mutex
	cd    *sync.Cond // signals state changes
	state resourceState
	plan  plan
	mtime time.Time

	size    int64
	hasSize bool

	avail      availability
	processing RangeSet
	store      *spool

	handles int
	active  int // reads in progress
	closing bool

	preload    preloadState
	preloadErr error

	ctx    context.Context
	cancel context.CancelFunc
	tasks  errgroup.Group
}

func newResource(m *Manager, id string) *Resource {
	r := &Resource{
		id:    id,
		m:     m,
		store: newSpool(m.opts.TmpDir, m.opts.PageSize, max(m.opts.SpillThreshold, 0)),
	}
	r.cd = sync.NewCond(&r.lk)
	r.ctx, r.cancel = context.WithCancel(m.ctx)
	return r
}

// ID returns the media id of r.
func (r *Resource) ID() string {
	return r.id
}

// Size returns the best known size of r. Until the real size is known this
// is the provisional size, so two calls may disagree.
func (r *Resource) Size() int64 {
	r.lk.Lock()
	defer r.lk.Unlock()
	return r.sizeLocked()
}

func (r *Resource) sizeLocked() int64 {
	if !r.hasSize {
		return r.m.opts.ProvisionalSize
	}
	return r.size
}

// knownSize returns the size of r and whether it is final.
func (r *Resource) knownSize() (int64, bool) {
	r.lk.Lock()
	defer r.lk.Unlock()
	return r.sizeLocked(), r.hasSize
}

// Mode returns the fetch strategy chosen for r. It is only meaningful once
// r has been opened.
func (r *Resource) Mode() Mode {
	r.lk.Lock()
	defer r.lk.Unlock()
	return r.plan.mode
}

// ModTime returns when r became ready.
func (r *Resource) ModTime() time.Time {
	r.lk.Lock()
	defer r.lk.Unlock()
	return r.mtime
}

// Available returns the set of resident bytes.
func (r *Resource) Available() RangeSet {
	r.lk.Lock()
	defer r.lk.Unlock()
	return r.avail.set
}

// Processing returns the set of bytes reserved by in-flight fetches.
func (r *Resource) Processing() RangeSet {
	r.lk.Lock()
	defer r.lk.Unlock()
	return r.processing
}

// WaitFor blocks until every byte of br is resident, ctx is done or a fetch
// covering br fails. It does not start any fetch by itself.
func (r *Resource) WaitFor(ctx context.Context, br ByteRange) error {
	if !br.Valid() {
		return &InvalidRangeError{Start: br.Start, End: br.End}
	}

	for {
		r.lk.Lock()
		w := r.avail.register(br)
		r.lk.Unlock()
		if w == nil {
			return nil
		}

		if _, err := r.avail.wait(ctx, &r.lk, w); err != nil {
			return err
		}
	}
}

func (r *Resource) broadcast() {
	r.lk.Lock()
	r.cd.Broadcast()
	r.lk.Unlock()
}

// open resolves r if needed and, for preloaded resources, waits until the
// whole object is resident.
func (r *Resource) open(ctx context.Context) error {
	if err := r.resolve(ctx); err != nil {
		return err
	}

	r.lk.Lock()
	mode := r.plan.mode
	r.lk.Unlock()

	if mode == ModePreload {
		return r.awaitPreload(ctx)
	}
	return nil
}

// resolve runs metadata resolution exactly once across concurrent openers.
// The resolver itself is called without holding the lock.
func (r *Resource) resolve(ctx context.Context) error {
	r.lk.Lock()
	defer r.lk.Unlock()

	stop := context.AfterFunc(ctx, r.broadcast)
	defer stop()

	for {
		switch r.state {
		case stateReady:
			return nil
		case stateClosed:
			return ErrResourceClosed
		case stateResolving:
			if err := ctx.Err(); err != nil {
				return err
			}
			r.cd.Wait()
			continue
		}

		r.state = stateResolving
		r.lk.Unlock()

		meta, err := r.m.opts.Resolver.Resolve(ctx, r.id)
		var p plan
		if err == nil {
			p, err = selectPlan(meta, r.m.opts.Preload)
		}

		r.lk.Lock()
		r.cd.Broadcast()

		if r.state != stateResolving {
			return ErrResourceClosed
		}
		if err != nil {
			// a later open may try again
			r.state = stateUninitialized
			return &MetadataError{ID: r.id, Err: err}
		}

		r.plan = p
		if meta.Size > 0 {
			r.size, r.hasSize = meta.Size, true
		}
		r.mtime = time.Now()
		r.state = stateReady

		r.m.logger().WithField("id", r.id).WithField("size", r.sizeLocked()).WithField("mode", p.mode.String()).Debug("resolved")
		return nil
	}
}

// retain reserves a handle on r. It fails once r has been torn down.
func (r *Resource) retain() bool {
	r.lk.Lock()
	defer r.lk.Unlock()

	if r.state == stateClosed {
		return false
	}
	r.handles++
	return true
}

// revive cancels a pending teardown and reserves a handle on r.
func (r *Resource) revive() bool {
	r.lk.Lock()
	defer r.lk.Unlock()

	if r.state == stateClosed {
		return false
	}
	r.closing = false
	r.handles++
	return true
}

// release drops a handle and reports whether r must now be torn down.
func (r *Resource) release() bool {
	r.lk.Lock()
	defer r.lk.Unlock()

	r.handles--
	return r.retireLocked()
}

// markClosing flags r for teardown and reports whether it can happen now.
func (r *Resource) markClosing() bool {
	r.lk.Lock()
	defer r.lk.Unlock()

	r.closing = true
	return r.retireLocked()
}

// beginRead registers an outstanding read, which holds off teardown.
func (r *Resource) beginRead() bool {
	r.lk.Lock()
	defer r.lk.Unlock()

	if r.state == stateClosed {
		return false
	}
	r.active++
	return true
}

func (r *Resource) endRead() {
	r.lk.Lock()
	r.active--
	retire := r.retireLocked()
	r.lk.Unlock()

	if retire {
		r.m.retire(r)
	}
}

// retireLocked moves r to Closed when it is flagged for teardown and
// nothing uses it anymore. It returns true exactly once.
func (r *Resource) retireLocked() bool {
	if !r.closing || r.handles > 0 || r.active > 0 || r.state == stateClosed {
		return false
	}
	r.state = stateClosed
	r.cd.Broadcast()
	return true
}

// teardown stops every fetch unit of r, waits for them up to JoinTimeout
// and frees the backing store.
func (r *Resource) teardown() {
	log := r.m.logger().WithField("id", r.id)

	r.cancel()

	r.lk.Lock()
	r.avail.fail(everything, ErrResourceClosed)
	r.lk.Unlock()

	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.m.opts.JoinTimeout):
		log.Warn("fetch units still running after join timeout")
	}

	if err := r.store.Close(); err != nil {
		log.WithError(err).Warn("failed to release backing store")
	}
	log.Debug("released")
}
