package smartmedia

import (
	"context"
	"sync"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Manager exposes remote media objects as seekable, partially fetched byte
// streams. It keeps one Resource per media id and bounds the number of
// concurrent transfers.
type Manager struct {
	opts Options

	lk        sync.Mutex
	resources *lru.Cache[string, *Resource]
	draining  map[string]*Resource // evicted but still held by handles
	closed    bool

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	tearing map[*Resource]chan struct{} // teardowns in progress
}

var silentLogger log.Interface = &log.Logger{Handler: discard.New(), Level: log.FatalLevel}

// NewManager returns a Manager configured with opts.
func NewManager(opts Options) (*Manager, error) {
	if opts.Resolver == nil {
		return nil, errors.New("smartmedia: a MetadataResolver is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("smartmedia: a RangeFetcher is required")
	}
	opts.applyDefaults()

	m := &Manager{
		opts:     opts,
		draining: make(map[string]*Resource),
		tearing:  make(map[*Resource]chan struct{}),
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	cache, err := lru.NewWithEvict[string, *Resource](opts.MaxResources, m.onEvict)
	if err != nil {
		return nil, errors.Wrap(err, "smartmedia: failed to create resource cache")
	}
	m.resources = cache

	return m, nil
}

func (m *Manager) logger() log.Interface {
	if m.opts.Logger == nil {
		return silentLogger
	}
	return m.opts.Logger
}

// Open returns a new handle on media id, resolving its metadata on first
// use. For resources that must be preloaded, Open returns once the whole
// object is resident.
func (m *Manager) Open(ctx context.Context, id string) (*Handle, error) {
	r, err := m.acquire(id)
	if err != nil {
		return nil, err
	}

	if err := r.open(ctx); err != nil {
		m.release(r)
		m.logger().WithError(err).WithField("id", id).Warn("open failed")
		return nil, err
	}

	h := newHandle(m, r)
	m.logger().WithFields(log.Fields{"id": id, "handle": h.id}).Debug("opened")
	return h, nil
}

// Read returns up to length bytes of h at off. The result is shorter than
// length only when it reaches the end of the object.
func (m *Manager) Read(ctx context.Context, h *Handle, off, length int64) ([]byte, error) {
	if off < 0 || length < 0 {
		return nil, &InvalidRangeError{Start: off, End: off + length}
	}

	size, known := h.r.knownSize()
	if !known {
		// settles a pending preload, after which the size is final
		if _, err := h.readAt(ctx, nil, off); err != nil {
			return nil, err
		}
		size = h.r.Size()
	}
	length = min(length, max(size-off, 0))

	p := make([]byte, length)
	n, err := h.readAt(ctx, p, off)
	if err != nil {
		return nil, err
	}
	return p[:n], nil
}

// Close releases h. It is the same as h.Close().
func (m *Manager) Close(h *Handle) error {
	return h.Close()
}

// Size returns the best known size of id: the provisional size until its
// metadata has been resolved.
func (m *Manager) Size(id string) int64 {
	m.lk.Lock()
	r, ok := m.resources.Peek(id)
	if !ok {
		r, ok = m.draining[id]
	}
	m.lk.Unlock()

	if !ok {
		return m.opts.ProvisionalSize
	}
	return r.Size()
}

// Resource returns the live resource for id, if any.
func (m *Manager) Resource(id string) (*Resource, bool) {
	m.lk.Lock()
	defer m.lk.Unlock()

	if r, ok := m.resources.Peek(id); ok {
		return r, true
	}
	r, ok := m.draining[id]
	return r, ok
}

// Release marks id for teardown. Its backing store is freed once the last
// handle on it is closed.
func (m *Manager) Release(id string) {
	m.lk.Lock()
	defer m.lk.Unlock()

	m.resources.Remove(id)
	m.reportResources()
}

// Shutdown releases every resource, aborts in-flight fetches and waits for
// the resulting teardowns to finish or ctx to expire. Resources still held
// by handles are torn down when those handles close.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.lk.Lock()
	if m.closed {
		m.lk.Unlock()
		return nil
	}
	m.closed = true
	m.resources.Purge()
	m.reportResources()

	pending := make([]chan struct{}, 0, len(m.tearing))
	for _, done := range m.tearing {
		pending = append(pending, done)
	}
	m.lk.Unlock()

	m.cancel()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// acquire returns the resource for id with one handle reserved on it.
func (m *Manager) acquire(id string) (*Resource, error) {
	m.lk.Lock()
	defer m.lk.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	if r, ok := m.resources.Get(id); ok && r.retain() {
		return r, nil
	}

	if r, ok := m.draining[id]; ok {
		delete(m.draining, id)
		if r.revive() {
			m.resources.Add(id, r)
			m.reportResources()
			return r, nil
		}
	}

	r := newResource(m, id)
	r.retain()
	m.resources.Add(id, r)
	m.reportResources()
	return r, nil
}

// release drops a handle reservation taken by acquire.
func (m *Manager) release(r *Resource) {
	if r.release() {
		m.retire(r)
	}
}

// retire tears down a resource whose last handle or read is gone.
func (m *Manager) retire(r *Resource) {
	m.lk.Lock()
	defer m.lk.Unlock()

	if cur, ok := m.draining[r.id]; ok && cur == r {
		delete(m.draining, r.id)
	}
	m.reportResources()
	m.spawnTeardown(r)
}

// onEvict runs with m.lk held, from the cache's Add, Remove and Purge. It
// must not call back into the cache.
func (m *Manager) onEvict(id string, r *Resource) {
	if r.markClosing() {
		m.spawnTeardown(r)
	} else {
		m.draining[id] = r
		m.logger().WithField("id", id).Debug("resource evicted while in use, draining")
	}
}

// spawnTeardown must be called with m.lk held.
func (m *Manager) spawnTeardown(r *Resource) {
	done := make(chan struct{})
	m.tearing[r] = done

	go func() {
		r.teardown()

		m.lk.Lock()
		delete(m.tearing, r)
		m.lk.Unlock()
		close(done)
	}()
}

// reportResources must be called with m.lk held.
func (m *Manager) reportResources() {
	m.opts.Metrics.SetResources(m.resources.Len() + len(m.draining))
}
