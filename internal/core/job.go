package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orrn/printdesk/internal/events"
	"github.com/orrn/printdesk/internal/layout"
	"github.com/orrn/printdesk/internal/pages"
)

// Hooks are called after a transition, outside the job lock.
type Hooks struct {
	// OnTransition runs on every state change.
	OnTransition func(j *Job, from, to State)
	// OnDone runs exactly once, when the job reaches StateDone.
	OnDone func(j *Job)
	// OnRelease runs exactly once, when the job reaches any terminal state.
	OnRelease func(j *Job)
}

type JobConfig struct {
	Owner     string
	Caption   string
	TonerSave bool
	MaxCopies int
	Layouts   *layout.Catalog
	Service   PrintService
	Rewriter  DocumentRewriter
	Hooks     Hooks
	Logger    *slog.Logger
	Now       func() time.Time
}

// Job is one document on its way to the printer. All methods are safe for
// concurrent use; mutations of a single job are serialized.
type Job struct {
	mu sync.Mutex

	id        string
	owner     string
	doc       Document
	caption   string
	createdAt time.Time

	pages       *pages.Selection
	copies      int
	maxCopies   int
	tonerSave   bool
	duplex      bool
	orientation Orientation

	state     State
	progress  int
	started   bool
	reference string
	stripped  string
	failure   string

	layouts  *layout.Catalog
	service  PrintService
	rewriter DocumentRewriter
	hooks    Hooks
	logger   *slog.Logger
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewJob(doc Document, cfg JobConfig) *Job {
	if cfg.Layouts == nil {
		cfg.Layouts = layout.Default().Intersect(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	id := newJobID()
	return &Job{
		id:          id,
		owner:       cfg.Owner,
		doc:         doc,
		caption:     cfg.Caption,
		createdAt:   cfg.Now(),
		pages:       pages.New(len(doc.Pages)),
		copies:      1,
		maxCopies:   cfg.MaxCopies,
		tonerSave:   cfg.TonerSave,
		duplex:      len(doc.Pages) > 1,
		orientation: InferOrientation(doc.Pages),
		state:       StatePreparing,
		layouts:     cfg.Layouts,
		service:     cfg.Service,
		rewriter:    cfg.Rewriter,
		hooks:       cfg.Hooks,
		logger:      cfg.Logger.With("job_id", id),
	}
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Owner() string {
	return j.owner
}

func (j *Job) CreatedAt() time.Time {
	return j.createdAt
}

func (j *Job) Document() Document {
	return j.doc
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Progress returns the printed page count and whether printing has started.
func (j *Job) Progress() (int, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress, j.started
}

func (j *Job) Reference() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reference
}

// Files returns the paths owned by the job.
func (j *Job) Files() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	files := []string{j.doc.Path}
	if j.stripped != "" {
		files = append(files, j.stripped)
	}
	return files
}

// edit runs fn under the lock if the job is still being prepared.
func (j *Job) edit(fn func() error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatePreparing {
		return ErrNotEditable
	}
	return fn()
}

// AddPages parses ranges from text and adds them. It reports whether the
// selection changed.
func (j *Job) AddPages(text string) (bool, error) {
	return j.editRanges(text, true)
}

// RemovePages parses ranges from text and removes them.
func (j *Job) RemovePages(text string) (bool, error) {
	return j.editRanges(text, false)
}

func (j *Job) editRanges(text string, add bool) (bool, error) {
	ranges := pages.ParseRanges(text)
	if len(ranges) == 0 {
		return false, ErrNoRanges
	}
	var changed bool
	err := j.edit(func() error {
		if add {
			changed = j.pages.AddRanges(ranges)
		} else {
			changed = j.pages.RemoveRanges(ranges)
		}
		return nil
	})
	return changed, err
}

func (j *Job) SelectAll() error {
	return j.edit(func() error {
		j.pages.Add(0, j.pages.Total())
		return nil
	})
}

func (j *Job) SelectNone() error {
	return j.edit(func() error {
		j.pages.Remove(0, j.pages.Total())
		return nil
	})
}

// ExcludeTitle drops the first page.
func (j *Job) ExcludeTitle() error {
	return j.edit(func() error {
		j.pages.Remove(0, 1)
		return nil
	})
}

// UseCaption replaces the selection with the ranges written in the caption
// the document was uploaded with.
func (j *Job) UseCaption() error {
	ranges := pages.ParseRanges(j.caption)
	if len(ranges) == 0 {
		return ErrNoRanges
	}
	return j.edit(func() error {
		j.pages.Remove(0, j.pages.Total())
		j.pages.AddRanges(ranges)
		return nil
	})
}

func (j *Job) SetCopies(n int) error {
	return j.edit(func() error {
		if n < 1 || (j.maxCopies > 0 && n > j.maxCopies) {
			return fmt.Errorf("%w: %d", ErrInvalidCopies, n)
		}
		j.copies = n
		return nil
	})
}

func (j *Job) SetDuplex(on bool) error {
	return j.edit(func() error {
		if on && j.pages.Total() <= 1 {
			return ErrDuplexNotApplicable
		}
		j.duplex = on
		return nil
	})
}

func (j *Job) SetTonerSave(on bool) error {
	return j.edit(func() error {
		j.tonerSave = on
		return nil
	})
}

func (j *Job) SetPerPage(n int) error {
	return j.edit(func() error {
		if !j.layouts.Supports(n) {
			return fmt.Errorf("%w: %d", ErrUnsupportedLayout, n)
		}
		j.pages.SetPerPage(n)
		return nil
	})
}

func (j *Job) settings() printSettings {
	return printSettings{
		copies:      j.copies,
		tonerSave:   j.tonerSave,
		duplex:      j.duplex,
		orientation: j.orientation,
	}
}

// Options returns the printer options the job would be submitted with now.
func (j *Job) Options() (map[string]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	l, ok := j.layouts.Lookup(j.pages.PerPage())
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedLayout, j.pages.PerPage())
	}
	return buildOptions(j.pages, j.settings(), l), nil
}

// Submit freezes the options and hands the document to the print service.
// On failure the job stays in StatePreparing and can be submitted again.
func (j *Job) Submit(ctx context.Context) error {
	j.mu.Lock()
	if j.state != StatePreparing {
		j.mu.Unlock()
		return fmt.Errorf("%w: submit from %s", ErrInvalidTransition, j.state)
	}
	if err := j.submitLocked(ctx); err != nil {
		j.mu.Unlock()
		return err
	}
	j.state = StateSent
	j.mu.Unlock()

	j.logger.Info("job submitted", "reference", j.Reference())
	j.after(StatePreparing, StateSent)
	return nil
}

func (j *Job) submitLocked(ctx context.Context) error {
	if j.pages.Empty() {
		return ErrEmptySelection
	}
	l, ok := j.layouts.Lookup(j.pages.PerPage())
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedLayout, j.pages.PerPage())
	}
	opts := buildOptions(j.pages, j.settings(), l)
	// The print service receives a document holding only the selected pages,
	// so page-ranges stays in Options but is never sent.
	delete(opts, OptionPageRanges)

	path := j.doc.Path
	if !j.pages.IsAll() {
		if j.rewriter == nil {
			return fmt.Errorf("%w: no document rewriter for a partial selection", ErrSubmissionFailed)
		}
		stripped, err := j.rewriter.Keep(ctx, j.doc.Path, j.pages.Ranges())
		if err != nil {
			return fmt.Errorf("failed to strip unselected pages: %w", err)
		}
		path = stripped
	}

	ref, err := j.service.Submit(ctx, path, j.id, opts)
	if err != nil {
		if path != j.doc.Path {
			j.discard(path)
		}
		return fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if path != j.doc.Path {
		j.stripped = path
	}
	j.reference = ref
	return nil
}

// discard removes a stripped copy the job will not keep.
func (j *Job) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		j.logger.Warn("failed to remove stripped document", "path", path, "error", err)
	}
}

// Cancel stops a job that has been sent and asks the print service to purge it.
func (j *Job) Cancel(ctx context.Context) error {
	j.mu.Lock()
	from := j.state
	if from != StateSent && from != StateInProgress {
		j.mu.Unlock()
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, from)
	}
	ref := j.reference
	j.state = StateCanceled
	j.mu.Unlock()

	if err := j.service.Cancel(ctx, ref, true); err != nil {
		j.logger.Warn("cancel request failed", "reference", ref, "error", err)
	}
	j.logger.Info("job canceled")
	j.after(from, StateCanceled)
	return nil
}

// Expire moves a job that was never sent to StateExpired. It reports whether
// the job expired.
func (j *Job) Expire() bool {
	j.mu.Lock()
	if j.state != StatePreparing {
		j.mu.Unlock()
		return false
	}
	j.state = StateExpired
	j.mu.Unlock()

	j.logger.Info("job expired")
	j.after(StatePreparing, StateExpired)
	return true
}

// ProcessEvent applies a notification from the print system. Notifications
// arriving after a terminal state are ignored.
func (j *Job) ProcessEvent(n events.Notification, op events.Operation) {
	j.mu.Lock()
	from := j.state
	if from.Terminal() {
		j.mu.Unlock()
		return
	}
	j.apply(n, op)
	to := j.state
	j.mu.Unlock()

	j.after(from, to)
}

func (j *Job) apply(n events.Notification, op events.Operation) {
	switch j.state {
	case StateSent:
		switch op {
		case events.OpHeld:
		case events.OpProcessing:
			j.state = StateInProgress
			j.progress = 0
			j.started = true
		case events.OpCompleted:
			j.state = StateDone
		default:
			j.fail("unexpected %s while sent", op)
		}
	case StateInProgress:
		switch op {
		case events.OpPagePrinted:
			j.pagePrinted(n)
		case events.OpCompleted:
			j.state = StateDone
		default:
			j.fail("unexpected %s while printing", op)
		}
	default:
		j.fail("unexpected %s while %s", op, j.state)
	}
}

func (j *Job) pagePrinted(n events.Notification) {
	reported, ok := events.PrintedPages(n.Text)
	if !ok {
		j.fail("page notification without a page count: %q", n.Text)
		return
	}

	divisor := 1
	if j.duplex {
		divisor = 2
	}

	switch {
	case reported == (j.progress+1)/divisor:
		if j.progress+1 > j.expectedTotal() {
			j.fail("printed more than the %d expected pages", j.expectedTotal())
			return
		}
		j.progress++
	case j.progress > 0 && reported == j.progress/divisor:
		j.logger.Debug("duplicate page notification", "reported", reported, "progress", j.progress)
	default:
		j.fail("page count %d does not follow progress %d", reported, j.progress)
	}
}

func (j *Job) fail(format string, args ...any) {
	j.failure = fmt.Sprintf(format, args...)
	j.state = StateError
	j.logger.Warn("job failed", "reason", j.failure)
}

// expectedTotal is the number of composed pages the printer will report.
func (j *Job) expectedTotal() int {
	return j.pages.ToPrint() * j.copies
}

func (j *Job) after(from, to State) {
	if from == to {
		return
	}
	if j.hooks.OnTransition != nil {
		j.hooks.OnTransition(j, from, to)
	}
	if to == StateDone && j.hooks.OnDone != nil {
		j.hooks.OnDone(j)
	}
	if to.Terminal() && j.hooks.OnRelease != nil {
		j.hooks.OnRelease(j)
	}
}
