// Package events turns print-system notification text into job operations
// and routes them to the job they belong to.
package events

import (
	"regexp"
	"strconv"
)

type Operation int

const (
	OpUnknown Operation = iota
	OpHeld
	OpProcessing
	OpPagePrinted
	OpCompleted
	OpFailed
)

func (o Operation) String() string {
	switch o {
	case OpHeld:
		return "held"
	case OpProcessing:
		return "processing"
	case OpPagePrinted:
		return "page-printed"
	case OpCompleted:
		return "completed"
	case OpFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var operationWords = map[string]Operation{
	"held":       OpHeld,
	"processing": OpProcessing,
	"started":    OpProcessing,
	"printed":    OpPagePrinted,
	"printing":   OpPagePrinted,
	"completed":  OpCompleted,
	"stopped":    OpFailed,
	"aborted":    OpFailed,
	"canceled":   OpFailed,
	"cancelled":  OpFailed,
	"failed":     OpFailed,
}

// Notification is one raw message from the print system.
type Notification struct {
	Title string
	Text  string
}

var (
	titlePattern        = regexp.MustCompile(`^Print Job: [\w-]+ \(([0-9a-f]+)\) (\w+)$`)
	printedPagesPattern = regexp.MustCompile(`Printed (\d+) page\(s\)\.`)
)

// Match is the result of parsing a notification title.
type Match struct {
	JobID     string
	Word      string
	Operation Operation
}

// ParseTitle matches a notification title against the job template. Titles
// that do not fit the template return ok == false. A matching title with an
// unrecognised word returns OpUnknown.
func ParseTitle(title string) (Match, bool) {
	m := titlePattern.FindStringSubmatch(title)
	if m == nil {
		return Match{}, false
	}
	return Match{
		JobID:     m[1],
		Word:      m[2],
		Operation: operationWords[m[2]],
	}, true
}

// PrintedPages extracts the page count from a page-printed notification body.
func PrintedPages(text string) (int, bool) {
	m := printedPagesPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
