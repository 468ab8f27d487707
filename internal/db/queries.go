package db

const (
	GetPreference = `SELECT toner_save, updated_at FROM preferences WHERE user = ?`

	SetPreference = `
		INSERT INTO preferences (user, toner_save, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user) DO UPDATE SET toner_save = excluded.toner_save, updated_at = CURRENT_TIMESTAMP
	`
)

const (
	InsertJobRecord = `
		INSERT INTO job_history (job_id, owner, name, state, pages, total_pages, copies, per_page,
			duplex, toner_save, printed, expected, reference, failure, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING
	`

	jobRecordColumns = `id, job_id, owner, name, state, pages, total_pages, copies, per_page,
		duplex, toner_save, printed, expected, reference, failure, created_at, finished_at`

	GetJobRecord = `SELECT ` + jobRecordColumns + ` FROM job_history WHERE job_id = ?`

	CountJobRecordsByState = `SELECT COUNT(*) FROM job_history WHERE state = ?`
)

const (
	AddPrintCounter = `
		INSERT INTO print_counters (date, jobs, pages)
		VALUES (?, 1, ?)
		ON CONFLICT(date) DO UPDATE SET jobs = jobs + 1, pages = pages + excluded.pages
	`

	GetPrintCountersByDateRange = `
		SELECT date, jobs, pages
		FROM print_counters WHERE date >= ? AND date <= ? ORDER BY date ASC
	`
)

const (
	InsertWebhook = `
		INSERT INTO webhooks (owner, url, secret, events_json, enabled)
		VALUES (?, ?, ?, ?, ?)
	`

	GetWebhookByID = `
		SELECT id, owner, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE id = ?
	`

	ListWebhooksByOwner = `
		SELECT id, owner, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE owner = ? ORDER BY id ASC
	`

	ListWebhooksForEvent = `
		SELECT id, owner, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE enabled = 1 AND owner = ? AND events_json LIKE ?
	`

	UpdateWebhook = `
		UPDATE webhooks SET url = ?, secret = ?, events_json = ?, enabled = ?
		WHERE id = ?
	`

	DeleteWebhook = `DELETE FROM webhooks WHERE id = ?`
)

const (
	InsertAuditLog = `
		INSERT INTO audit_log (action, user, job_id, details, ip_address)
		VALUES (?, ?, ?, ?, ?)
	`

	ListAuditLogByJob = `
		SELECT id, action, user, job_id, details, ip_address, created_at
		FROM audit_log WHERE job_id = ? ORDER BY id ASC
	`
)

const (
	GetAppliedMigrations = `
		SELECT version FROM schema_migrations
	`
)
