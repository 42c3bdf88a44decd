package smartmedia

import (
	"sort"
	"strings"
)

// RangeSet is a set of byte offsets stored as sorted ranges that neither
// overlap nor touch. The zero value is an empty set.
//
// Add, AddSet, Sub and SubSet return new sets and never share storage with
// the receiver. Extend, ExtendSet, Remove and RemoveSet modify it in place.
// A RangeSet is not safe for concurrent use; Resource guards its sets with
// its own lock.
type RangeSet struct {
	ranges []ByteRange
}

// NewRangeSet builds a set from the union of rs. Every range must be valid.
func NewRangeSet(rs ...ByteRange) (RangeSet, error) {
	for _, r := range rs {
		if !r.Valid() {
			return RangeSet{}, &InvalidRangeError{Start: r.Start, End: r.End}
		}
	}

	s := RangeSet{ranges: append([]ByteRange(nil), rs...)}
	s.optimize()
	return s, nil
}

// optimize restores the sorted, disjoint, non-adjacent representation.
func (s *RangeSet) optimize() {
	if len(s.ranges) < 2 {
		return
	}

	sort.Slice(s.ranges, func(i, j int) bool {
		if s.ranges[i].Start == s.ranges[j].Start {
			return s.ranges[i].End < s.ranges[j].End
		}
		return s.ranges[i].Start < s.ranges[j].Start
	})

	out := s.ranges[:1]
	for _, r := range s.ranges[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	s.ranges = out
}

// span returns the index interval [i, j) of stored ranges that overlap or
// touch r. Stored ranges are sorted, so matches are always contiguous.
func (s RangeSet) span(r ByteRange) (int, int) {
	i := sort.Search(len(s.ranges), func(k int) bool { return s.ranges[k].End >= r.Start })
	j := i
	for j < len(s.ranges) && s.ranges[j].Start <= r.End {
		j++
	}
	return i, j
}

// Contains returns how many bytes of r are in the set.
func (s RangeSet) Contains(r ByteRange) int64 {
	var n int64
	i := sort.Search(len(s.ranges), func(k int) bool { return s.ranges[k].End > r.Start })
	for ; i < len(s.ranges) && s.ranges[i].Start < r.End; i++ {
		n += r.Overlap(s.ranges[i])
	}
	return n
}

// FullyContains reports whether every byte of r is in the set. An empty
// range is always contained.
func (s RangeSet) FullyContains(r ByteRange) bool {
	return s.Contains(r) == r.Len()
}

// Match returns the stored ranges that overlap or touch r.
func (s RangeSet) Match(r ByteRange) []ByteRange {
	i, j := s.span(r)
	if i == j {
		return nil
	}
	return append([]ByteRange(nil), s.ranges[i:j]...)
}

// Add returns the union of s and r.
func (s RangeSet) Add(r ByteRange) RangeSet {
	s.Extend(r)
	return s
}

// AddSet returns the union of s and o.
func (s RangeSet) AddSet(o RangeSet) RangeSet {
	s.ExtendSet(o)
	return s
}

// Extend adds r to the set. Empty ranges are ignored.
//
// Mutations always rebuild the backing slice, so copies of a RangeSet taken
// by value are never affected.
func (s *RangeSet) Extend(r ByteRange) {
	if r.Len() == 0 {
		return
	}
	s.ranges = append(s.Ranges(), r)
	s.optimize()
}

// ExtendSet adds every range of o to the set.
func (s *RangeSet) ExtendSet(o RangeSet) {
	if len(o.ranges) == 0 {
		return
	}
	s.ranges = append(s.Ranges(), o.ranges...)
	s.optimize()
}

// Sub returns s without the bytes of r.
func (s RangeSet) Sub(r ByteRange) RangeSet {
	s.Remove(r)
	return s
}

// SubSet returns s without the bytes of o.
func (s RangeSet) SubSet(o RangeSet) RangeSet {
	s.RemoveSet(o)
	return s
}

// Remove deletes the bytes of r from the set.
func (s *RangeSet) Remove(r ByteRange) {
	s.removeBatch([]ByteRange{r})
}

// RemoveSet deletes the bytes of o from the set.
func (s *RangeSet) RemoveSet(o RangeSet) {
	s.removeBatch(o.ranges)
}

// removeBatch cuts each range of batch independently: the stored ranges
// touching it are replaced by the slivers left on either side. Separate
// cuts can leave slivers that touch each other, so the batch always ends
// with an optimize pass.
func (s *RangeSet) removeBatch(batch []ByteRange) {
	s.ranges = s.Ranges()
	for _, v := range batch {
		if v.Len() == 0 {
			continue
		}
		i, j := s.span(v)
		if i == j {
			continue
		}

		minStart := s.ranges[i].Start
		maxEnd := s.ranges[j-1].End

		slivers := make([]ByteRange, 0, 2)
		if minStart < v.Start {
			slivers = append(slivers, ByteRange{Start: minStart, End: v.Start})
		}
		if maxEnd > v.End {
			slivers = append(slivers, ByteRange{Start: v.End, End: maxEnd})
		}

		tail := append(slivers, s.ranges[j:]...)
		s.ranges = append(s.ranges[:i], tail...)
	}
	s.optimize()
}

// Len returns the total number of bytes in the set.
func (s RangeSet) Len() int64 {
	var n int64
	for _, r := range s.ranges {
		n += r.Len()
	}
	return n
}

// Count returns the number of disjoint ranges in the set.
func (s RangeSet) Count() int {
	return len(s.ranges)
}

// IsEmpty reports whether the set holds no bytes.
func (s RangeSet) IsEmpty() bool {
	return len(s.ranges) == 0
}

// Equal reports whether s and o hold the same bytes.
func (s RangeSet) Equal(o RangeSet) bool {
	if len(s.ranges) != len(o.ranges) {
		return false
	}
	for i := range s.ranges {
		if s.ranges[i] != o.ranges[i] {
			return false
		}
	}
	return true
}

// Ranges returns a copy of the stored ranges in ascending order.
func (s RangeSet) Ranges() []ByteRange {
	return append([]ByteRange(nil), s.ranges...)
}

func (s RangeSet) String() string {
	parts := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
