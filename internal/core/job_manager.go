package core

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/orrn/printdesk/internal/events"
)

// Archiver stores a final snapshot of a job that left the active set.
type Archiver interface {
	Archive(ctx context.Context, v View) error
}

type ManagerConfig struct {
	Retention time.Duration
	Printer   *PrinterManager
	Service   PrintService
	Rewriter  DocumentRewriter
	Archiver  Archiver
	Logger    *slog.Logger
	Now       func() time.Time
}

// CreateOptions carries per-job settings supplied by the caller.
type CreateOptions struct {
	Owner     string
	Caption   string
	TonerSave bool
	// OnDone runs once when the job finishes printing.
	OnDone func(j *Job)
}

// JobManager owns the set of active jobs keyed by identifier. Jobs leave the
// set when they reach a terminal state.
type JobManager struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	retention time.Duration
	printer   *PrinterManager
	service   PrintService
	rewriter  DocumentRewriter
	archiver  Archiver
	logger    *slog.Logger
	now       func() time.Time

	listenerMu sync.RWMutex
	listeners  []func(v View, from, to State)
}

func NewJobManager(cfg ManagerConfig) *JobManager {
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Printer == nil {
		cfg.Printer = NewPrinterManager(nil, 0, cfg.Logger)
	}
	return &JobManager{
		jobs:      make(map[string]*Job),
		retention: cfg.Retention,
		printer:   cfg.Printer,
		service:   cfg.Service,
		rewriter:  cfg.Rewriter,
		archiver:  cfg.Archiver,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// OnTransition registers a listener for every job state change.
func (m *JobManager) OnTransition(fn func(v View, from, to State)) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Create registers a new job for doc.
func (m *JobManager) Create(doc Document, opts CreateOptions) *Job {
	j := NewJob(doc, JobConfig{
		Owner:     opts.Owner,
		Caption:   opts.Caption,
		TonerSave: opts.TonerSave,
		MaxCopies: m.printer.MaxCopies(),
		Layouts:   m.printer.Catalog(),
		Service:   m.service,
		Rewriter:  m.rewriter,
		Logger:    m.logger,
		Now:       m.now,
		Hooks: Hooks{
			OnTransition: m.notify,
			OnDone:       opts.OnDone,
			OnRelease:    m.release,
		},
	})

	m.mu.Lock()
	m.jobs[j.ID()] = j
	m.mu.Unlock()

	m.logger.Info("job created", "job_id", j.ID(), "owner", opts.Owner, "pages", len(doc.Pages), "converted", doc.Converted)
	return j
}

func (m *JobManager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// Handler lets the event reconciler look jobs up without owning them.
func (m *JobManager) Handler(id string) (events.Handler, bool) {
	j, err := m.Get(id)
	if err != nil {
		return nil, false
	}
	return j, true
}

// List returns the active jobs of owner, oldest first. An empty owner lists all.
func (m *JobManager) List(owner string) []*Job {
	m.mu.RLock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if owner == "" || j.Owner() == owner {
			jobs = append(jobs, j)
		}
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt().Before(jobs[b].CreatedAt())
	})
	return jobs
}

func (m *JobManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// Sweep expires jobs that have waited in preparation longer than the
// retention window and returns their identifiers.
func (m *JobManager) Sweep() []string {
	limit := m.now().Add(-m.retention)

	var expired []string
	for _, j := range m.List("") {
		if !j.CreatedAt().Before(limit) {
			continue
		}
		if j.Expire() {
			expired = append(expired, j.ID())
		}
	}
	return expired
}

func (m *JobManager) notify(j *Job, from, to State) {
	m.listenerMu.RLock()
	listeners := make([]func(View, State, State), len(m.listeners))
	copy(listeners, m.listeners)
	m.listenerMu.RUnlock()

	if len(listeners) == 0 {
		return
	}
	v := j.View()
	for _, fn := range listeners {
		fn(v, from, to)
	}
}

// release drops a terminal job from the active set, archives it and deletes
// its files.
func (m *JobManager) release(j *Job) {
	m.mu.Lock()
	delete(m.jobs, j.ID())
	m.mu.Unlock()

	if m.archiver != nil {
		if err := m.archiver.Archive(context.Background(), j.View()); err != nil {
			m.logger.Error("failed to archive job", "job_id", j.ID(), "error", err)
		}
	}

	for _, path := range j.Files() {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("failed to remove job file", "job_id", j.ID(), "path", path, "error", err)
		}
	}
}
