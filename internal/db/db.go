package db

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

var (
	db   *sql.DB
	once sync.Once
)

type Config struct {
	Path string
}

func Init(cfg Config) error {
	var initErr error
	once.Do(func() {
		db, initErr = sql.Open("sqlite3", cfg.Path+"?_foreign_keys=on&_busy_timeout=5000")
		if initErr != nil {
			return
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		initErr = runMigrations(db)
	})
	return initErr
}

func GetDB() *sql.DB {
	return db
}

func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

type Migration struct {
	Version string
	SQL     string
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.Query(GetAppliedMigrations)
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
	}

	return nil
}

// migrations are applied in order; never edit a released entry.
var migrations = []Migration{
	{
		Version: "001_preferences",
		SQL: `
			CREATE TABLE preferences (
				user TEXT PRIMARY KEY,
				toner_save BOOLEAN NOT NULL DEFAULT 1,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
	{
		Version: "002_job_history",
		SQL: `
			CREATE TABLE job_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				job_id TEXT NOT NULL UNIQUE,
				owner TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL DEFAULT '',
				state TEXT NOT NULL,
				pages TEXT NOT NULL DEFAULT '',
				total_pages INTEGER NOT NULL DEFAULT 0,
				copies INTEGER NOT NULL DEFAULT 1,
				per_page INTEGER NOT NULL DEFAULT 1,
				duplex BOOLEAN NOT NULL DEFAULT 0,
				toner_save BOOLEAN NOT NULL DEFAULT 0,
				printed INTEGER NOT NULL DEFAULT 0,
				expected INTEGER NOT NULL DEFAULT 0,
				reference TEXT NOT NULL DEFAULT '',
				failure TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				finished_at DATETIME NOT NULL
			);
			CREATE INDEX idx_job_history_owner ON job_history(owner, finished_at);
			CREATE INDEX idx_job_history_state ON job_history(state);
		`,
	},
	{
		Version: "003_print_counters",
		SQL: `
			CREATE TABLE print_counters (
				date TEXT PRIMARY KEY,
				jobs INTEGER NOT NULL DEFAULT 0,
				pages INTEGER NOT NULL DEFAULT 0
			);
		`,
	},
	{
		Version: "004_webhooks",
		SQL: `
			CREATE TABLE webhooks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				owner TEXT NOT NULL,
				url TEXT NOT NULL,
				secret TEXT NOT NULL DEFAULT '',
				events_json TEXT NOT NULL DEFAULT '[]',
				enabled BOOLEAN NOT NULL DEFAULT 1,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_webhooks_owner ON webhooks(owner);
		`,
	},
	{
		Version: "005_audit_log",
		SQL: `
			CREATE TABLE audit_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				action TEXT NOT NULL,
				user TEXT NOT NULL DEFAULT '',
				job_id TEXT NOT NULL DEFAULT '',
				details TEXT NOT NULL DEFAULT '',
				ip_address TEXT NOT NULL DEFAULT '',
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_audit_log_job ON audit_log(job_id);
		`,
	},
}
