package pages

import (
	"strconv"
	"strings"
)

const (
	// None is the rendering of an empty selection.
	None      = "None"
	allSuffix = " (all)"
)

// String renders the selection for people: 1-based, en-dash ranges, with an
// "(all)" note when the whole document is selected.
func (s *Selection) String() string {
	if len(s.intervals) == 0 {
		return None
	}
	out := s.join(", ", "–")
	if s.IsAll() {
		out += allSuffix
	}
	return out
}

// Compact renders the selection in the 1-based inclusive form understood by
// the print system, e.g. "1-3,5".
func (s *Selection) Compact() string {
	return s.join(",", "-")
}

// Ranges returns the Compact form split per interval.
func (s *Selection) Ranges() []string {
	out := make([]string, 0, len(s.intervals))
	for _, iv := range s.intervals {
		out = append(out, formatInterval(iv, "-"))
	}
	return out
}

func (s *Selection) join(sep, dash string) string {
	var b strings.Builder
	for i, iv := range s.intervals {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(formatInterval(iv, dash))
	}
	return b.String()
}

func formatInterval(iv Interval, dash string) string {
	if iv.Len() == 1 {
		return strconv.Itoa(iv.Start + 1)
	}
	return strconv.Itoa(iv.Start+1) + dash + strconv.Itoa(iv.Stop)
}
