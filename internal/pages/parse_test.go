package pages

import (
	"reflect"
	"testing"
)

func TestParseRanges(t *testing.T) {
	tests := []struct {
		in   string
		want []Interval
	}{
		{"1", []Interval{{0, 1}}},
		{"4-5", []Interval{{3, 5}}},
		{"2 – 10", []Interval{{1, 10}}},
		{"1, 2-24, 26, 28", []Interval{{0, 1}, {1, 24}, {25, 26}, {27, 28}}},
		{"pages 3 to 4 please", []Interval{{2, 3}, {3, 4}}},
		{"nothing here", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseRanges(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAddRanges_ReportsChange(t *testing.T) {
	s := New(10)
	if s.AddRanges(ParseRanges("1-3")) {
		t.Error("adding already selected pages should not report a change")
	}
	if !s.RemoveRanges(ParseRanges("1-3, 7")) {
		t.Error("expected a change")
	}
	if got := s.String(); got != "4–6, 8–10" {
		t.Errorf("unexpected selection %q", got)
	}
	if !s.AddRanges(ParseRanges("7")) {
		t.Error("expected a change")
	}
	if got := s.String(); got != "4–10" {
		t.Errorf("unexpected selection %q", got)
	}
}

func TestHasRanges(t *testing.T) {
	if HasRanges("print it all") {
		t.Error("expected no ranges")
	}
	if !HasRanges("only 5") {
		t.Error("expected ranges")
	}
}
