package core

import (
	"context"
	"errors"
)

var (
	ErrNotEditable         = errors.New("job can no longer be edited")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrSubmissionFailed    = errors.New("print service rejected the job")
	ErrEmptySelection      = errors.New("no pages selected")
	ErrUnsupportedLayout   = errors.New("unsupported pages-per-sheet value")
	ErrInvalidCopies       = errors.New("invalid number of copies")
	ErrNoRanges            = errors.New("no page ranges found")
	ErrJobNotFound         = errors.New("job not found")
	ErrDuplexNotApplicable = errors.New("duplex is not available for single-page documents")
)

type State int

const (
	StatePreparing State = iota
	StateSent
	StateInProgress
	StateDone
	StateCanceled
	StateExpired
	StateError
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateSent:
		return "sent"
	case StateInProgress:
		return "in_progress"
	case StateDone:
		return "done"
	case StateCanceled:
		return "canceled"
	case StateExpired:
		return "expired"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal states accept no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateCanceled, StateExpired, StateError:
		return true
	}
	return false
}

type Orientation int

const (
	Portrait Orientation = iota
	Landscape
)

func (o Orientation) String() string {
	if o == Landscape {
		return "landscape"
	}
	return "portrait"
}

// PageGeometry is the size and rotation of one source page.
type PageGeometry struct {
	Width    float64
	Height   float64
	Rotation int
}

// Document is what ingestion hands to a new job.
type Document struct {
	Path      string
	Name      string
	Pages     []PageGeometry
	Converted bool
}

// PrintService is the external print system.
type PrintService interface {
	Submit(ctx context.Context, path, title string, options map[string]string) (string, error)
	Cancel(ctx context.Context, reference string, purge bool) error
}

// DocumentRewriter produces a copy of a document holding only the given
// 1-based page ranges.
type DocumentRewriter interface {
	Keep(ctx context.Context, src string, ranges []string) (string, error)
}
