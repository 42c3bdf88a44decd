package smartmedia

import "fmt"

// ByteRange is a half-open interval [Start, End) of byte offsets.
type ByteRange struct {
	Start int64
	End   int64
}

// NewByteRange returns the range [start, end). It fails with an
// *InvalidRangeError if start is negative or end is not past start.
func NewByteRange(start, end int64) (ByteRange, error) {
	r := ByteRange{Start: start, End: end}
	if !r.Valid() {
		return ByteRange{}, &InvalidRangeError{Start: start, End: end}
	}
	return r, nil
}

// At returns the range covering the single byte at offset i.
func At(i int64) (ByteRange, error) {
	return NewByteRange(i, i+1)
}

// Valid reports whether r is a non-empty range of non-negative offsets.
func (r ByteRange) Valid() bool {
	return r.Start >= 0 && r.End > r.Start
}

// Len returns the number of bytes in r.
func (r ByteRange) Len() int64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Overlap returns the number of bytes r and o have in common.
func (r ByteRange) Overlap(o ByteRange) int64 {
	start := max(r.Start, o.Start)
	end := min(r.End, o.End)
	if end <= start {
		return 0
	}
	return end - start
}

// Touches reports whether r and o overlap or are directly adjacent.
func (r ByteRange) Touches(o ByteRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// Contains reports whether o lies entirely within r.
func (r ByteRange) Contains(o ByteRange) bool {
	return o.Start >= r.Start && o.End <= r.End
}

// clamp restricts r to [lo, hi). The result may be empty.
func (r ByteRange) clamp(lo, hi int64) ByteRange {
	if r.Start < lo {
		r.Start = lo
	}
	if r.End > hi {
		r.End = hi
	}
	return r
}

func (r ByteRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}
