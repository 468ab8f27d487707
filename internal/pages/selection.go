// Package pages tracks which pages of a document are going to be printed.
package pages

import (
	"iter"
	"sort"
)

// Interval is a half-open span of zero-based page indices [Start, Stop).
type Interval struct {
	Start int
	Stop  int
}

func (iv Interval) Len() int {
	return iv.Stop - iv.Start
}

func (iv Interval) empty() bool {
	return iv.Start >= iv.Stop
}

// Selection is an ordered set of disjoint, non-touching intervals over
// [0, total) together with the N-up factor used to lay pages on sheets.
type Selection struct {
	total     int
	intervals []Interval
	perPage   int
}

// New returns a selection covering the whole document.
func New(total int) *Selection {
	if total < 0 {
		total = 0
	}
	s := &Selection{total: total, perPage: 1}
	if total > 0 {
		s.intervals = []Interval{{Start: 0, Stop: total}}
	}
	return s
}

func (s *Selection) Total() int {
	return s.total
}

func (s *Selection) PerPage() int {
	return s.perPage
}

// SetPerPage changes the N-up factor. Values below one are treated as one.
func (s *Selection) SetPerPage(n int) {
	if n < 1 {
		n = 1
	}
	s.perPage = n
}

// Intervals returns a copy of the current intervals in ascending order.
func (s *Selection) Intervals() []Interval {
	out := make([]Interval, len(s.intervals))
	copy(out, s.intervals)
	return out
}

func (s *Selection) Empty() bool {
	return len(s.intervals) == 0
}

// IsAll reports whether every page of a non-empty document is selected.
func (s *Selection) IsAll() bool {
	return len(s.intervals) == 1 && s.intervals[0] == Interval{Start: 0, Stop: s.total}
}

func (s *Selection) clip(start, stop int) Interval {
	left := max(start, 0)
	right := min(stop, s.total)
	return Interval{Start: left, Stop: max(left, right)}
}

// search returns the index of the first interval ordered strictly after r,
// comparing by (Start, Stop).
func (s *Selection) search(r Interval) int {
	return sort.Search(len(s.intervals), func(i int) bool {
		iv := s.intervals[i]
		return iv.Start > r.Start || (iv.Start == r.Start && iv.Stop > r.Stop)
	})
}

// Add includes the pages in [start, stop). Out-of-range parts are clipped
// and an empty result is ignored.
func (s *Selection) Add(start, stop int) {
	r := s.clip(start, stop)
	if r.empty() {
		return
	}

	idx := s.search(r)
	if idx > 0 && r.Start <= s.intervals[idx-1].Stop {
		s.intervals[idx-1].Stop = max(s.intervals[idx-1].Stop, r.Stop)
	} else {
		s.intervals = append(s.intervals, Interval{})
		copy(s.intervals[idx+1:], s.intervals[idx:])
		s.intervals[idx] = r
		idx++
	}

	// intervals[idx-1] now holds r; absorb everything it reaches.
	for idx < len(s.intervals) {
		next := s.intervals[idx]
		if next.Start > s.intervals[idx-1].Stop {
			break
		}
		s.intervals[idx-1].Stop = max(s.intervals[idx-1].Stop, next.Stop)
		s.intervals = append(s.intervals[:idx], s.intervals[idx+1:]...)
	}

	s.check()
}

// Remove excludes the pages in [start, stop). Out-of-range parts are clipped
// and an empty result is ignored.
func (s *Selection) Remove(start, stop int) {
	r := s.clip(start, stop)
	if r.empty() || len(s.intervals) == 0 {
		return
	}

	idx := s.search(r)
	if idx > 0 && r.Start < s.intervals[idx-1].Stop {
		left := s.intervals[idx-1]
		var fragments []Interval
		if left.Start < r.Start {
			fragments = append(fragments, Interval{Start: left.Start, Stop: r.Start})
		}
		if r.Stop < left.Stop {
			fragments = append(fragments, Interval{Start: r.Stop, Stop: left.Stop})
		}
		s.splice(idx-1, idx, fragments)
		idx = idx - 1 + len(fragments)
	}

	for idx < len(s.intervals) {
		next := s.intervals[idx]
		if r.Stop <= next.Start {
			break
		}
		if next.Stop <= r.Stop {
			s.intervals = append(s.intervals[:idx], s.intervals[idx+1:]...)
			continue
		}
		s.intervals[idx].Start = r.Stop
		break
	}

	s.check()
}

// splice replaces intervals[from:to] with repl.
func (s *Selection) splice(from, to int, repl []Interval) {
	tail := append([]Interval(nil), s.intervals[to:]...)
	s.intervals = append(append(s.intervals[:from], repl...), tail...)
}

// check panics when the disjointness invariant is broken. A violation is a
// bug in Add or Remove, never a user error.
func (s *Selection) check() {
	for i, iv := range s.intervals {
		if iv.empty() || iv.Start < 0 || iv.Stop > s.total {
			panic("pages: interval out of bounds")
		}
		if i > 0 && s.intervals[i-1].Stop >= iv.Start {
			panic("pages: intervals overlap or touch")
		}
	}
}

// Contains reports whether page is selected.
func (s *Selection) Contains(page int) bool {
	idx := sort.Search(len(s.intervals), func(i int) bool {
		return s.intervals[i].Stop > page
	})
	return idx < len(s.intervals) && s.intervals[idx].Start <= page
}

// Count returns the number of selected pages.
func (s *Selection) Count() int {
	n := 0
	for _, iv := range s.intervals {
		n += iv.Len()
	}
	return n
}

// ToPrint returns the number of physical sheet sides the selection needs,
// before duplex is applied.
func (s *Selection) ToPrint() int {
	return (s.Count() + s.perPage - 1) / s.perPage
}

// Pages yields the selected page indices in ascending order. The sequence
// reads the selection lazily and can be ranged over again.
func (s *Selection) Pages() iter.Seq[int] {
	return func(yield func(int) bool) {
		for _, iv := range s.intervals {
			for p := iv.Start; p < iv.Stop; p++ {
				if !yield(p) {
					return
				}
			}
		}
	}
}

// Groups yields the selected pages in chunks of PerPage, in document order.
// The last chunk may be shorter.
func (s *Selection) Groups() iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		group := make([]int, 0, s.perPage)
		for p := range s.Pages() {
			group = append(group, p)
			if len(group) == s.perPage {
				if !yield(group) {
					return
				}
				group = make([]int, 0, s.perPage)
			}
		}
		if len(group) > 0 {
			yield(group)
		}
	}
}

// Clone returns an independent copy.
func (s *Selection) Clone() *Selection {
	return &Selection{
		total:     s.total,
		intervals: s.Intervals(),
		perPage:   s.perPage,
	}
}
