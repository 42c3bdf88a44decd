package smartmedia

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Handle is an open reader on a media object. It implements io.Reader,
// io.ReaderAt, io.Seeker and io.Closer, so remote media can be used as if
// it were a local file. Reads block until the requested bytes have been
// fetched.
//
// ReadAt may be called concurrently. Read and Seek share the handle's
// position and are serialized.
type Handle struct {
	id uuid.UUID
	m  *Manager
	r  *Resource

	lk     sync.Mutex
	pos    int64 // read position
	closed atomic.Bool
}

func newHandle(m *Manager, r *Resource) *Handle {
	return &Handle{id: uuid.New(), m: m, r: r}
}

// ID identifies h in logs.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// MediaID returns the id h was opened with.
func (h *Handle) MediaID() string {
	return h.r.id
}

// Size returns the size of the object.
func (h *Handle) Size() int64 {
	return h.r.Size()
}

// ModTime returns the time the object was resolved.
func (h *Handle) ModTime() time.Time {
	return h.r.ModTime()
}

// Mode returns the fetch strategy of the object.
func (h *Handle) Mode() Mode {
	return h.r.Mode()
}

func (h *Handle) readAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}
	return h.r.readAt(ctx, p, off)
}

// ReadAt reads len(p) bytes at off. It returns io.EOF along with the bytes
// read when the end of the object is reached first.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	return h.ReadAtContext(context.Background(), p, off)
}

// ReadAtContext is ReadAt with a context bounding the wait for data. A
// cancelled read does not stop the fetches it started.
func (h *Handle) ReadAtContext(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := h.readAt(ctx, p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Read reads from the current position.
func (h *Handle) Read(p []byte) (int, error) {
	return h.read(context.Background(), p)
}

func (h *Handle) read(ctx context.Context, p []byte) (int, error) {
	h.lk.Lock()
	defer h.lk.Unlock()

	if len(p) == 0 {
		return 0, nil
	}

	n, err := h.readAt(ctx, p, h.pos)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	h.pos += int64(n)
	return n, nil
}

// Seek sets the position of the next Read. io.SeekEnd is relative to the
// best known size of the object.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	h.lk.Lock()
	defer h.lk.Unlock()

	switch whence {
	case io.SeekStart:
		if offset < 0 {
			return h.pos, errors.New("invalid seek")
		}
		h.pos = offset
		return h.pos, nil
	case io.SeekCurrent:
		if h.pos+offset < 0 {
			return h.pos, errors.New("invalid seek")
		}
		h.pos += offset
		return h.pos, nil
	case io.SeekEnd:
		size := h.r.Size()
		if size+offset < 0 {
			return h.pos, errors.New("invalid seek")
		}
		h.pos = size + offset
		return h.pos, nil
	default:
		return h.pos, errors.New("invalid seek whence")
	}
}

// Complete fetches the whole object, returning once every byte is resident.
func (h *Handle) Complete(ctx context.Context) error {
	if h.closed.Load() {
		return ErrClosed
	}
	return h.r.complete(ctx)
}

// Reader returns a view of h whose reads are bound to ctx. It shares the
// position of h.
func (h *Handle) Reader(ctx context.Context) io.ReadSeeker {
	return &contextReader{h: h, ctx: ctx}
}

// Close releases h. Reads already in progress complete normally.
func (h *Handle) Close() error {
	if h.closed.Swap(true) {
		return ErrClosed
	}
	h.m.release(h.r)
	h.m.logger().WithField("id", h.r.id).WithField("handle", h.id).Debug("closed")
	return nil
}

type contextReader struct {
	h   *Handle
	ctx context.Context
}

func (c *contextReader) Read(p []byte) (int, error) {
	return c.h.read(c.ctx, p)
}

func (c *contextReader) Seek(offset int64, whence int) (int64, error) {
	return c.h.Seek(offset, whence)
}

var (
	_ io.ReadSeekCloser = (*Handle)(nil)
	_ io.ReaderAt       = (*Handle)(nil)
)
