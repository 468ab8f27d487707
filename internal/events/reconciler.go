package events

import (
	"log/slog"
)

// Handler applies an operation to a single job.
type Handler interface {
	ProcessEvent(n Notification, op Operation)
}

// Directory resolves a job identifier to its handler. The reconciler only
// borrows it; the owner keeps the active job collection.
type Directory interface {
	Handler(jobID string) (Handler, bool)
}

type Reconciler struct {
	jobs   Directory
	logger *slog.Logger
}

func NewReconciler(jobs Directory, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{jobs: jobs, logger: logger}
}

// Handle routes n to its job. It reports whether the notification was
// delivered; unmatched titles and unknown jobs are dropped.
func (r *Reconciler) Handle(n Notification) bool {
	m, ok := ParseTitle(n.Title)
	if !ok {
		r.logger.Debug("notification does not match job template", "title", n.Title)
		return false
	}

	h, ok := r.jobs.Handler(m.JobID)
	if !ok {
		r.logger.Debug("notification for unknown job", "job_id", m.JobID, "word", m.Word)
		return false
	}

	h.ProcessEvent(n, m.Operation)
	return true
}
