package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type PreferenceOperations struct{}

// GetTonerSave returns the user's toner-save default, or def when the user
// never changed it.
func (o *PreferenceOperations) GetTonerSave(ctx context.Context, user string, def bool) (bool, error) {
	var tonerSave bool
	var updated time.Time
	err := GetDB().QueryRowContext(ctx, GetPreference, user).Scan(&tonerSave, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return def, fmt.Errorf("failed to get preference: %w", err)
	}
	return tonerSave, nil
}

func (o *PreferenceOperations) SetTonerSave(ctx context.Context, user string, on bool) error {
	_, err := GetDB().ExecContext(ctx, SetPreference, user, on)
	if err != nil {
		return fmt.Errorf("failed to set preference: %w", err)
	}
	return nil
}

type HistoryOperations struct{}

// RecordJob stores a finished job and reports whether it was new. Recording
// the same job twice leaves the first record in place.
func (o *HistoryOperations) RecordJob(ctx context.Context, r *JobRecord) (bool, error) {
	result, err := GetDB().ExecContext(ctx, InsertJobRecord,
		r.JobID, r.Owner, r.Name, r.State, r.Pages, r.TotalPages, r.Copies, r.PerPage,
		r.Duplex, r.TonerSave, r.Printed, r.Expected, r.Reference, r.Failure,
		r.CreatedAt, r.FinishedAt)
	if err != nil {
		return false, fmt.Errorf("failed to record job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get job record id: %w", err)
	}
	r.ID = id
	return true, nil
}

func (o *HistoryOperations) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	r, err := scanJobRecord(GetDB().QueryRowContext(ctx, GetJobRecord, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}
	return r, nil
}

func (o *HistoryOperations) ListJobs(ctx context.Context, filter JobFilter) ([]*JobRecord, error) {
	var conditions []string
	var args []interface{}

	if filter.Owner != "" {
		conditions = append(conditions, "owner = ?")
		args = append(args, filter.Owner)
	}
	if filter.State != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, filter.State)
	}
	if filter.FromDate != nil {
		conditions = append(conditions, "finished_at >= ?")
		args = append(args, *filter.FromDate)
	}
	if filter.ToDate != nil {
		conditions = append(conditions, "finished_at <= ?")
		args = append(args, *filter.ToDate)
	}

	query := "SELECT " + jobRecordColumns + " FROM job_history"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY finished_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}
	defer rows.Close()

	var records []*JobRecord
	for rows.Next() {
		r, err := scanJobRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (o *HistoryOperations) CountByState(ctx context.Context, state string) (int64, error) {
	var count int64
	if err := GetDB().QueryRowContext(ctx, CountJobRecordsByState, state).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count job records: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobRecord(row rowScanner) (*JobRecord, error) {
	r := &JobRecord{}
	err := row.Scan(
		&r.ID, &r.JobID, &r.Owner, &r.Name, &r.State, &r.Pages, &r.TotalPages, &r.Copies, &r.PerPage,
		&r.Duplex, &r.TonerSave, &r.Printed, &r.Expected, &r.Reference, &r.Failure,
		&r.CreatedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

type CounterOperations struct{}

// AddJob counts one finished job and its printed pages on date.
func (o *CounterOperations) AddJob(ctx context.Context, date time.Time, pages int) error {
	_, err := GetDB().ExecContext(ctx, AddPrintCounter, date.Format(dateLayout), pages)
	if err != nil {
		return fmt.Errorf("failed to increment daily counter: %w", err)
	}
	return nil
}

func (o *CounterOperations) GetCounters(ctx context.Context, from, to time.Time) ([]*PrintCounter, error) {
	rows, err := GetDB().QueryContext(ctx, GetPrintCountersByDateRange, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get counters: %w", err)
	}
	defer rows.Close()

	var counters []*PrintCounter
	for rows.Next() {
		c := &PrintCounter{}
		var dateStr string
		if err := rows.Scan(&dateStr, &c.Jobs, &c.Pages); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		c.Date, _ = time.Parse(dateLayout, dateStr)
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

type WebhookOperations struct{}

func (o *WebhookOperations) CreateWebhook(ctx context.Context, w *Webhook) error {
	result, err := GetDB().ExecContext(ctx, InsertWebhook,
		w.Owner, w.URL, w.Secret, w.EventsJSON, w.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get webhook id: %w", err)
	}
	w.ID = id
	return nil
}

func (o *WebhookOperations) GetWebhookByID(ctx context.Context, id int64) (*Webhook, error) {
	w := &Webhook{}
	err := GetDB().QueryRowContext(ctx, GetWebhookByID, id).Scan(
		&w.ID, &w.Owner, &w.URL, &w.Secret, &w.EventsJSON, &w.Enabled, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

func (o *WebhookOperations) ListWebhooks(ctx context.Context, owner string) ([]*Webhook, error) {
	rows, err := GetDB().QueryContext(ctx, ListWebhooksByOwner, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()
	return scanWebhooks(rows)
}

// ListActiveWebhooksForEvent returns the enabled webhooks of owner that
// subscribe to event.
func (o *WebhookOperations) ListActiveWebhooksForEvent(ctx context.Context, owner, event string) ([]*Webhook, error) {
	pattern := "%\"" + event + "\"%"
	rows, err := GetDB().QueryContext(ctx, ListWebhooksForEvent, owner, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks for event: %w", err)
	}
	defer rows.Close()
	return scanWebhooks(rows)
}

func scanWebhooks(rows *sql.Rows) ([]*Webhook, error) {
	var webhooks []*Webhook
	for rows.Next() {
		w := &Webhook{}
		if err := rows.Scan(
			&w.ID, &w.Owner, &w.URL, &w.Secret, &w.EventsJSON, &w.Enabled, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func (o *WebhookOperations) UpdateWebhook(ctx context.Context, w *Webhook) error {
	_, err := GetDB().ExecContext(ctx, UpdateWebhook,
		w.URL, w.Secret, w.EventsJSON, w.Enabled, w.ID)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return nil
}

func (o *WebhookOperations) DeleteWebhook(ctx context.Context, id int64) error {
	_, err := GetDB().ExecContext(ctx, DeleteWebhook, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

type AuditOperations struct{}

func (o *AuditOperations) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	result, err := GetDB().ExecContext(ctx, InsertAuditLog,
		log.Action, log.User, log.JobID, log.Details, log.IPAddress)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit log id: %w", err)
	}
	log.ID = id
	return nil
}

func (o *AuditOperations) ListByJob(ctx context.Context, jobID string) ([]*AuditLog, error) {
	rows, err := GetDB().QueryContext(ctx, ListAuditLogByJob, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*AuditLog
	for rows.Next() {
		log := &AuditLog{}
		if err := rows.Scan(
			&log.ID, &log.Action, &log.User, &log.JobID,
			&log.Details, &log.IPAddress, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

var (
	Preferences = &PreferenceOperations{}
	History     = &HistoryOperations{}
	Counters    = &CounterOperations{}
	Webhooks    = &WebhookOperations{}
	Audit       = &AuditOperations{}
)
