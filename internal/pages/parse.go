package pages

import (
	"regexp"
	"strconv"
)

var rangePattern = regexp.MustCompile(`([0-9]+)(?:\s*[-–]\s*([0-9]+))?`)

// ParseRanges extracts page ranges written the way people type them
// ("1", "4-5", "2 – 10", "1, 3-4") and returns them as zero-based half-open
// intervals. Nothing is clipped here; Add and Remove do that.
func ParseRanges(text string) []Interval {
	var out []Interval
	for _, m := range rangePattern.FindAllStringSubmatch(text, -1) {
		first, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		last := first
		if m[2] != "" {
			if last, err = strconv.Atoi(m[2]); err != nil {
				continue
			}
		}
		out = append(out, Interval{Start: first - 1, Stop: last})
	}
	return out
}

// HasRanges reports whether text contains anything ParseRanges would return.
func HasRanges(text string) bool {
	return rangePattern.MatchString(text)
}

// AddRanges adds every interval in ivs and reports whether the selection changed.
func (s *Selection) AddRanges(ivs []Interval) bool {
	before := s.Compact()
	for _, iv := range ivs {
		s.Add(iv.Start, iv.Stop)
	}
	return s.Compact() != before
}

// RemoveRanges removes every interval in ivs and reports whether the selection changed.
func (s *Selection) RemoveRanges(ivs []Interval) bool {
	before := s.Compact()
	for _, iv := range ivs {
		s.Remove(iv.Start, iv.Stop)
	}
	return s.Compact() != before
}
