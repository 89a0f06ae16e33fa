// Package rkhset implements the priority-ready set: a two-level bitmap that
// tracks which active objects currently have a pending event, giving O(1)
// highest-priority lookup for the scheduler.
package rkhset

import "math/bits"

// MaxPriority is the highest priority value the set can track. Priorities
// run 0..MaxPriority, a comfortable margin over the "up to 64, extendable"
// baseline while remaining a fixed-size, allocation-free structure.
const MaxPriority = groups*64 - 1

const groups = 64

// Set is a hierarchical bitmap: a summary word whose bit g is set iff any
// bit in detail[g] is set. Zero value is a valid, empty set.
type Set struct {
	summary uint64
	detail  [groups]uint64
}

// MarkReady sets priority p ready. Higher priority values denote higher
// urgency.
func (s *Set) MarkReady(p uint16) {
	g, bit := split(p)
	s.detail[g] |= 1 << bit
	s.summary |= 1 << g
}

// ClearReady clears priority p.
func (s *Set) ClearReady(p uint16) {
	g, bit := split(p)
	s.detail[g] &^= 1 << bit
	if s.detail[g] == 0 {
		s.summary &^= 1 << g
	}
}

// IsReady reports whether priority p is currently marked ready.
func (s *Set) IsReady(p uint16) bool {
	g, bit := split(p)
	return s.detail[g]&(1<<bit) != 0
}

// NoneReady is returned by Highest when the set is empty.
const NoneReady = -1

// Highest returns the highest ready priority, or NoneReady if the set is
// empty. Runs in O(1): one lookup into the summary word, one into the
// corresponding detail word.
func (s *Set) Highest() int {
	if s.summary == 0 {
		return NoneReady
	}
	g := bits.Len64(s.summary) - 1
	bit := bits.Len64(s.detail[g]) - 1
	return g*64 + bit
}

// Empty reports whether no priority is currently ready.
func (s *Set) Empty() bool {
	return s.summary == 0
}

func split(p uint16) (group int, bit uint) {
	if int(p) > MaxPriority {
		panic("rkhset: priority exceeds MaxPriority")
	}
	return int(p) / 64, uint(p) % 64
}
