package smartmedia

import (
	"io"
	"os"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/pkg/errors"
)

// spool is the backing store of a resource. Data is kept in fixed size
// memory pages until the resident footprint exceeds limit, then everything
// moves to a temporary file and later I/O goes straight to disk.
type spool struct {
	mu       sync.RWMutex
	pageSize int64
	limit    int64 // 0 disables spilling
	dir      string

	// resident holds the indices of the pages in memory. pages is ordered
	// by index, so page i lives at pages[resident.Rank(i)-1].
	resident *roaring.Bitmap
	pages    [][]byte

	file   *os.File
	closed bool
}

func newSpool(dir string, pageSize, limit int64) *spool {
	return &spool{
		pageSize: pageSize,
		limit:    limit,
		dir:      dir,
		resident: roaring.New(),
	}
}

// WriteAt stores p at off.
func (s *spool) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, os.ErrClosed
	}
	if s.file != nil {
		return s.file.WriteAt(p, off)
	}

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		idx := uint32(pos / s.pageSize)
		page := s.page(idx)
		if page == nil {
			page = make([]byte, s.pageSize)
			s.resident.Add(idx)
			s.pages = slices.Insert(s.pages, int(s.resident.Rank(idx))-1, page)
		}
		n += copy(page[pos%s.pageSize:], p[n:])
	}

	if s.limit > 0 && s.footprint() > s.limit {
		if err := s.spill(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadAt fills p from off. Pages never written read as zeroes; callers only
// read spans they know to be resident.
func (s *spool) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, os.ErrClosed
	}
	if s.file != nil {
		return s.file.ReadAt(p, off)
	}

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		within := pos % s.pageSize
		page := s.page(uint32(pos / s.pageSize))
		if page == nil {
			end := min(len(p), n+int(s.pageSize-within))
			clear(p[n:end])
			n = end
			continue
		}
		n += copy(p[n:], page[within:])
	}
	return n, nil
}

// page returns the memory page idx, or nil when it was never written.
func (s *spool) page(idx uint32) []byte {
	if !s.resident.Contains(idx) {
		return nil
	}
	return s.pages[s.resident.Rank(idx)-1]
}

// footprint returns the number of bytes held in memory.
func (s *spool) footprint() int64 {
	return int64(s.resident.GetCardinality()) * s.pageSize
}

// spill moves every resident page into a temporary file.
func (s *spool) spill() error {
	f, err := os.CreateTemp(s.dir, "smartmedia-*.bin")
	if err != nil {
		return errors.Wrap(err, "failed to create spool file")
	}

	it := s.resident.Iterator()
	for i := 0; it.HasNext(); i++ {
		idx := it.Next()
		if _, err := f.WriteAt(s.pages[i], int64(idx)*s.pageSize); err != nil {
			f.Close()
			os.Remove(f.Name())
			return errors.Wrap(err, "failed to spill page")
		}
	}

	s.file = f
	s.pages = nil
	s.resident.Clear()
	return nil
}

// Spilled reports whether the data has moved to disk.
func (s *spool) Spilled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file != nil
}

// Close releases memory and removes the spool file, if any.
func (s *spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.pages = nil
	s.resident.Clear()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	os.Remove(s.file.Name())
	return err
}

var (
	_ io.ReaderAt = (*spool)(nil)
	_ io.WriterAt = (*spool)(nil)
)
