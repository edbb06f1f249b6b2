package ports

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

// Interval is a half-open range of ports [Start, End).
type Interval struct {
	Start uint32
	End   uint32
}

// Len returns the number of ports in the interval.
func (iv Interval) Len() int { return int(iv.End - iv.Start) }

func (iv Interval) String() string {
	if iv.Len() == 1 {
		return strconv.FormatUint(uint64(iv.Start), 10)
	}
	return strconv.FormatUint(uint64(iv.Start), 10) + "-" + strconv.FormatUint(uint64(iv.End-1), 10)
}

// Set is a sparse set of ports kept as ascending, disjoint, non-touching
// intervals. The zero value is an empty set ready to use. Port 0 is never a
// member; it is the "no more ports" sentinel returned by Next and RandomPick.
type Set struct {
	ivs   []Interval
	count int
}

// Insert adds the inclusive range [first, last] to the set, merging every
// interval it overlaps or touches into a single run.
func (s *Set) Insert(first, last uint16) {
	if first > last {
		first, last = last, first
	}
	if first == 0 {
		if last == 0 {
			return
		}
		first = 1
	}
	lo, hi := uint32(first), uint32(last)+1

	// i: first interval that ends at or after lo (could touch or overlap).
	i := 0
	for i < len(s.ivs) && s.ivs[i].End < lo {
		i++
	}
	// j: first interval that starts strictly after hi (cannot touch).
	j := i
	for j < len(s.ivs) && s.ivs[j].Start <= hi {
		if s.ivs[j].Start < lo {
			lo = s.ivs[j].Start
		}
		if s.ivs[j].End > hi {
			hi = s.ivs[j].End
		}
		s.count -= s.ivs[j].Len()
		j++
	}
	merged := Interval{Start: lo, End: hi}
	s.count += merged.Len()

	switch {
	case i == j:
		s.ivs = append(s.ivs, Interval{})
		copy(s.ivs[i+1:], s.ivs[i:])
		s.ivs[i] = merged
	default:
		s.ivs[i] = merged
		s.ivs = append(s.ivs[:i+1], s.ivs[j:]...)
	}
}

// Remove deletes a single port from the set, splitting its interval if needed.
func (s *Set) Remove(port uint16) {
	p := uint32(port)
	for i, iv := range s.ivs {
		if p < iv.Start {
			return
		}
		if p >= iv.End {
			continue
		}
		s.count--
		switch {
		case iv.Len() == 1:
			s.ivs = append(s.ivs[:i], s.ivs[i+1:]...)
		case p == iv.Start:
			s.ivs[i].Start++
		case p == iv.End-1:
			s.ivs[i].End--
		default:
			s.ivs = append(s.ivs, Interval{})
			copy(s.ivs[i+2:], s.ivs[i+1:])
			s.ivs[i] = Interval{Start: iv.Start, End: p}
			s.ivs[i+1] = Interval{Start: p + 1, End: iv.End}
		}
		return
	}
}

// Count returns the number of ports in the set.
func (s *Set) Count() int { return s.count }

// Contains reports whether port is a member.
func (s *Set) Contains(port uint16) bool {
	p := uint32(port)
	for _, iv := range s.ivs {
		if p < iv.Start {
			return false
		}
		if p < iv.End {
			return true
		}
	}
	return false
}

// Next returns the smallest member strictly greater than port, or 0 when
// there is none. Next(0) returns the smallest member.
func (s *Set) Next(port uint16) uint16 {
	p := uint32(port) + 1
	for _, iv := range s.ivs {
		if p < iv.Start {
			return uint16(iv.Start)
		}
		if p < iv.End {
			return uint16(p)
		}
	}
	return 0
}

// RandomPick returns a member chosen uniformly at random, or 0 if the set is
// empty. The port is not removed.
func (s *Set) RandomPick() uint16 {
	if s.count == 0 {
		return 0
	}
	n := rand.IntN(s.count)
	for _, iv := range s.ivs {
		if n < iv.Len() {
			return uint16(iv.Start + uint32(n))
		}
		n -= iv.Len()
	}
	return 0
}

// Intervals returns a copy of the set's intervals in ascending order.
func (s *Set) Intervals() []Interval {
	out := make([]Interval, len(s.ivs))
	copy(out, s.ivs)
	return out
}

func (s *Set) String() string {
	parts := make([]string, len(s.ivs))
	for i, iv := range s.ivs {
		parts[i] = iv.String()
	}
	return strings.Join(parts, ",")
}
