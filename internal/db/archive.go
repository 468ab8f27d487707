package db

import (
	"context"
	"time"

	"github.com/orrn/printdesk/internal/core"
)

// JobArchiver records finished jobs in the history table and counts printed
// pages per day. It implements core.Archiver.
type JobArchiver struct {
	now func() time.Time
}

func NewJobArchiver(now func() time.Time) *JobArchiver {
	if now == nil {
		now = time.Now
	}
	return &JobArchiver{now: now}
}

func (a *JobArchiver) Archive(ctx context.Context, v core.View) error {
	finished := a.now()
	printed := 0
	if v.Progress != nil {
		printed = *v.Progress
	}
	if v.State == core.StateDone.String() {
		printed = v.Expected
	}

	record := &JobRecord{
		JobID:      v.ID,
		Owner:      v.Owner,
		Name:       v.Name,
		State:      v.State,
		Pages:      v.PageRanges,
		TotalPages: v.TotalPages,
		Copies:     v.Copies,
		PerPage:    v.PerPage,
		Duplex:     v.Duplex,
		TonerSave:  v.TonerSave,
		Printed:    printed,
		Expected:   v.Expected,
		Reference:  v.Reference,
		Failure:    v.Failure,
		CreatedAt:  v.CreatedAt,
		FinishedAt: finished.UTC(),
	}
	inserted, err := History.RecordJob(ctx, record)
	if err != nil {
		return err
	}

	if !inserted || v.State != core.StateDone.String() {
		return nil
	}
	return Counters.AddJob(ctx, finished, printed)
}
