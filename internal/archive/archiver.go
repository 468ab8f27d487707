// Package archive moves old job history out of the main database into
// monthly SQLite files.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Archiver struct {
	db          *sql.DB
	archivePath string
	archiveDays int
	interval    time.Duration
	now         func() time.Time
	logger      *slog.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	mu      sync.Mutex
	runMu   sync.Mutex
}

type ArchiveFile struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	JobCount  int       `json:"job_count"`
}

type ArchiveConfig struct {
	// ArchiveDays is how long finished jobs stay in the main database.
	ArchiveDays int
	ArchivePath string
	Interval    time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

type archivedJob struct {
	id         int64
	jobID      string
	owner      string
	name       string
	state      string
	pages      string
	totalPages int
	copies     int
	perPage    int
	duplex     bool
	tonerSave  bool
	printed    int
	expected   int
	reference  string
	failure    string
	createdAt  time.Time
	finishedAt time.Time
}

const archiveSchema = `
	CREATE TABLE IF NOT EXISTS job_history (
		original_id INTEGER PRIMARY KEY,
		job_id TEXT NOT NULL UNIQUE,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		state TEXT NOT NULL,
		pages TEXT NOT NULL,
		total_pages INTEGER NOT NULL,
		copies INTEGER NOT NULL,
		per_page INTEGER NOT NULL,
		duplex BOOLEAN NOT NULL,
		toner_save BOOLEAN NOT NULL,
		printed INTEGER NOT NULL,
		expected INTEGER NOT NULL,
		reference TEXT NOT NULL,
		failure TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS archive_metadata (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		archived_at DATETIME NOT NULL
	);
`

func NewArchiver(db *sql.DB, config ArchiveConfig) (*Archiver, error) {
	if config.ArchivePath == "" {
		config.ArchivePath = "./data/archives"
	}
	if config.ArchiveDays <= 0 {
		config.ArchiveDays = 90
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	if err := os.MkdirAll(config.ArchivePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &Archiver{
		db:          db,
		archivePath: config.ArchivePath,
		archiveDays: config.ArchiveDays,
		interval:    config.Interval,
		now:         config.Now,
		logger:      config.Logger,
	}, nil
}

func (a *Archiver) Start() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.loop(a.stopCh, a.doneCh)
}

func (a *Archiver) Stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return
	}
	a.running = false
	close(a.stopCh)
	<-a.doneCh
}

func (a *Archiver) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := a.RunArchive(context.Background())
			if err != nil {
				a.logger.Error("history archive failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Info("history archived", "jobs", n)
			}
		}
	}
}

// RunArchive moves jobs finished before the retention cutoff into the file
// for the month they finished in and returns how many were moved.
func (a *Archiver) RunArchive(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().AddDate(0, 0, -a.archiveDays).UTC()
	jobs, err := a.getJobsForArchival(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to get jobs for archival: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]*archivedJob)
	for _, j := range jobs {
		name := fmt.Sprintf("archive_%s.db", j.finishedAt.UTC().Format("2006_01"))
		byMonth[name] = append(byMonth[name], j)
	}

	for name, group := range byMonth {
		if err := a.writeArchive(ctx, filepath.Join(a.archivePath, name), group); err != nil {
			return 0, err
		}
	}

	if err := a.deleteArchivedJobs(ctx, jobs); err != nil {
		return 0, fmt.Errorf("failed to delete archived jobs: %w", err)
	}
	return len(jobs), nil
}

func (a *Archiver) getJobsForArchival(ctx context.Context, cutoff time.Time) ([]*archivedJob, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, job_id, owner, name, state, pages, total_pages, copies, per_page,
			duplex, toner_save, printed, expected, reference, failure, created_at, finished_at
		FROM job_history WHERE finished_at < ? ORDER BY id
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*archivedJob
	for rows.Next() {
		j := &archivedJob{}
		if err := rows.Scan(&j.id, &j.jobID, &j.owner, &j.name, &j.state, &j.pages,
			&j.totalPages, &j.copies, &j.perPage, &j.duplex, &j.tonerSave, &j.printed,
			&j.expected, &j.reference, &j.failure, &j.createdAt, &j.finishedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (a *Archiver) openArchiveDB(path string) (*sql.DB, error) {
	archiveDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := archiveDB.Exec(archiveSchema); err != nil {
		archiveDB.Close()
		return nil, err
	}
	return archiveDB, nil
}

func (a *Archiver) writeArchive(ctx context.Context, path string, jobs []*archivedJob) error {
	archiveDB, err := a.openArchiveDB(path)
	if err != nil {
		return fmt.Errorf("failed to open archive database: %w", err)
	}
	defer archiveDB.Close()

	tx, err := archiveDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}

	for _, j := range jobs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO job_history (original_id, job_id, owner, name, state, pages,
				total_pages, copies, per_page, duplex, toner_save, printed, expected,
				reference, failure, created_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, j.id, j.jobID, j.owner, j.name, j.state, j.pages, j.totalPages, j.copies,
			j.perPage, j.duplex, j.tonerSave, j.printed, j.expected, j.reference,
			j.failure, j.createdAt, j.finishedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert job to archive: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO archive_metadata (id, archived_at) VALUES (1, ?)
	`, a.now().UTC()); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update archive metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}
	return nil
}

// deleteArchivedJobs drops the moved rows and the audit entries of those jobs.
func (a *Archiver) deleteArchivedJobs(ctx context.Context, jobs []*archivedJob) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if _, err := tx.ExecContext(ctx, "DELETE FROM job_history WHERE id = ?", j.id); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM audit_log WHERE job_id = ?", j.jobID); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListArchives returns the archive files, oldest month first.
func (a *Archiver) ListArchives() ([]*ArchiveFile, error) {
	entries, err := os.ReadDir(a.archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var files []*ArchiveFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "archive_") || filepath.Ext(e.Name()) != ".db" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		count, err := a.getArchiveJobCount(filepath.Join(a.archivePath, e.Name()))
		if err != nil {
			a.logger.Warn("unreadable archive", "file", e.Name(), "error", err)
		}
		files = append(files, &ArchiveFile{
			Filename:  e.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			JobCount:  count,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return files, nil
}

func (a *Archiver) getArchiveJobCount(path string) (int, error) {
	archiveDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return 0, err
	}
	defer archiveDB.Close()

	var count int
	err = archiveDB.QueryRow("SELECT COUNT(*) FROM job_history").Scan(&count)
	return count, err
}
