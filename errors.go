package smartmedia

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned when using a handle after Close.
	ErrClosed = errors.New("smartmedia: handle already closed")

	// ErrResourceClosed is returned when a resource was torn down while
	// being opened.
	ErrResourceClosed = errors.New("smartmedia: resource closed")

	// ErrManagerClosed is returned by Open after Shutdown.
	ErrManagerClosed = errors.New("smartmedia: manager shut down")

	// ErrNoMuxer is returned when a resource needs merging and no Muxer
	// was configured.
	ErrNoMuxer = errors.New("smartmedia: no muxer configured")

	// ErrNotReady is returned when reading a resource whose metadata has
	// not been resolved.
	ErrNotReady = errors.New("smartmedia: resource not ready")
)

// InvalidRangeError reports a malformed byte range.
type InvalidRangeError struct {
	Start int64
	End   int64
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("smartmedia: invalid range [%d, %d)", e.Start, e.End)
}

// MetadataError reports that a media id could not be resolved.
type MetadataError struct {
	ID  string
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("smartmedia: resource %s unavailable: %s", e.ID, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// FetchError reports a failed transfer of one span of a source.
type FetchError struct {
	URL   string
	Range ByteRange
	Err   error
}

func (e *FetchError) Error() string {
	if e.Range.Len() == 0 {
		return fmt.Sprintf("smartmedia: fetch %s failed: %s", e.URL, e.Err)
	}
	return fmt.Sprintf("smartmedia: fetch %s %s failed: %s", e.URL, e.Range, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MergeError reports a failed preload+merge of a resource.
type MergeError struct {
	ID  string
	Err error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("smartmedia: merge of %s failed: %s", e.ID, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }
