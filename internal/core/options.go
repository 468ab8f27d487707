package core

import (
	"strconv"

	"github.com/orrn/printdesk/internal/layout"
	"github.com/orrn/printdesk/internal/pages"
)

// Option names understood by the print service.
const (
	OptionCopies         = "copies"
	OptionPrintQuality   = "print-quality"
	OptionNumberUp       = "number-up"
	OptionNumberUpLayout = "number-up-layout"
	OptionSides          = "sides"
	OptionPageRanges     = "page-ranges"
)

const (
	QualityDraft  = 3
	QualityNormal = 5

	SidesOneSided     = "one-sided"
	SidesTwoLongEdge  = "two-sided-long-edge"
	SidesTwoShortEdge = "two-sided-short-edge"

	numberUpLayout = "lrtb"
)

type printSettings struct {
	copies      int
	tonerSave   bool
	duplex      bool
	orientation Orientation
}

func sheetOrientation(l layout.Layout) Orientation {
	if l.Portrait {
		return Portrait
	}
	return Landscape
}

// sides picks the duplex edge: pages that keep their orientation on the
// sheet flip on the long edge, rotated pages flip on the short edge.
func sides(duplex bool, doc Orientation, l layout.Layout) string {
	if !duplex {
		return SidesOneSided
	}
	if doc == sheetOrientation(l) {
		return SidesTwoLongEdge
	}
	return SidesTwoShortEdge
}

// buildOptions derives the printer option map. With N-up above one the
// page-range filter would apply to composed sheets, so it is left out and
// the document is rewritten instead.
func buildOptions(sel *pages.Selection, s printSettings, l layout.Layout) map[string]string {
	quality := QualityNormal
	if s.tonerSave {
		quality = QualityDraft
	}

	opts := map[string]string{
		OptionCopies:         strconv.Itoa(s.copies),
		OptionPrintQuality:   strconv.Itoa(quality),
		OptionNumberUp:       strconv.Itoa(sel.PerPage()),
		OptionNumberUpLayout: numberUpLayout,
		OptionSides:          sides(s.duplex, s.orientation, l),
	}
	if sel.PerPage() == 1 {
		opts[OptionPageRanges] = sel.Compact()
	}
	return opts
}
