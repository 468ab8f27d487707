package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orrn/printdesk/internal/core"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "printdesk-db-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := Init(Config{Path: filepath.Join(dir, "test.db")}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := m.Run()
	Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	if err := runMigrations(GetDB()); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
	var count int
	if err := GetDB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != len(migrations) {
		t.Errorf("expected %d applied migrations, got %d", len(migrations), count)
	}
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()

	on, err := Preferences.GetTonerSave(ctx, "pref-user", true)
	if err != nil || !on {
		t.Fatalf("expected default true, got %v %v", on, err)
	}

	if err := Preferences.SetTonerSave(ctx, "pref-user", false); err != nil {
		t.Fatal(err)
	}
	on, err = Preferences.GetTonerSave(ctx, "pref-user", true)
	if err != nil || on {
		t.Errorf("expected stored false, got %v %v", on, err)
	}

	if err := Preferences.SetTonerSave(ctx, "pref-user", true); err != nil {
		t.Fatal(err)
	}
	if on, _ := Preferences.GetTonerSave(ctx, "pref-user", false); !on {
		t.Error("expected updated preference")
	}
}

func TestJobArchiver(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	a := NewJobArchiver(func() time.Time { return day })

	progress := 6
	done := core.View{
		ID: "aa01", Owner: "archiver-user", Name: "thesis.pdf", State: "done",
		PageRanges: "1-6", TotalPages: 6, Copies: 2, PerPage: 2, Duplex: true,
		Expected: 6, Progress: &progress, Reference: "17",
		CreatedAt: day.Add(-time.Hour),
	}
	failed := core.View{
		ID: "aa02", Owner: "archiver-user", State: "error", Failure: "page count 5 does not follow progress 3",
		Expected: 10, Copies: 1, PerPage: 1, CreatedAt: day,
	}

	for _, v := range []core.View{done, failed, done} {
		if err := a.Archive(ctx, v); err != nil {
			t.Fatalf("archive %s failed: %v", v.ID, err)
		}
	}

	r, err := History.GetJob(ctx, "aa01")
	if err != nil {
		t.Fatal(err)
	}
	if r.Printed != 6 || r.Copies != 2 || !r.Duplex || r.Pages != "1-6" || r.Name != "thesis.pdf" {
		t.Errorf("unexpected record %+v", r)
	}
	if !r.FinishedAt.Equal(day) {
		t.Errorf("unexpected finish time %v", r.FinishedAt)
	}

	counters, err := Counters.GetCounters(ctx, day, day)
	if err != nil {
		t.Fatal(err)
	}
	if len(counters) != 1 || counters[0].Jobs != 1 || counters[0].Pages != 6 {
		t.Errorf("expected one counted job with 6 pages, got %+v", counters)
	}

	records, err := History.ListJobs(ctx, JobFilter{Owner: "archiver-user"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two records, got %d", len(records))
	}

	failures, err := History.ListJobs(ctx, JobFilter{Owner: "archiver-user", State: "error"})
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 1 || failures[0].Failure == "" {
		t.Errorf("unexpected failures %+v", failures)
	}

	if n, err := History.CountByState(ctx, "error"); err != nil || n < 1 {
		t.Errorf("expected at least one failed job, got %d %v", n, err)
	}

	if _, err := History.GetJob(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestWebhooks(t *testing.T) {
	ctx := context.Background()
	w := &Webhook{Owner: "alice", URL: "http://example.invalid/hook", EventsJSON: `["job.completed","job.failed"]`, Enabled: true}
	if err := Webhooks.CreateWebhook(ctx, w); err != nil {
		t.Fatal(err)
	}
	if w.ID == 0 {
		t.Fatal("expected an id")
	}

	hooks, err := Webhooks.ListActiveWebhooksForEvent(ctx, "alice", "job.failed")
	if err != nil {
		t.Fatal(err)
	}
	if len(hooks) != 1 || hooks[0].URL != w.URL || hooks[0].Owner != "alice" {
		t.Errorf("unexpected hooks %+v", hooks)
	}
	if got := hooks[0].Events(); len(got) != 2 || got[1] != "job.failed" {
		t.Errorf("unexpected events %v", got)
	}
	if hooks, _ := Webhooks.ListActiveWebhooksForEvent(ctx, "alice", "job.sent"); len(hooks) != 0 {
		t.Errorf("expected no hooks for job.sent, got %d", len(hooks))
	}
	if hooks, _ := Webhooks.ListActiveWebhooksForEvent(ctx, "bob", "job.failed"); len(hooks) != 0 {
		t.Errorf("hooks of alice must not fire for bob, got %d", len(hooks))
	}
	if mine, _ := Webhooks.ListWebhooks(ctx, "bob"); len(mine) != 0 {
		t.Errorf("bob should see no webhooks, got %d", len(mine))
	}

	w.Enabled = false
	if err := Webhooks.UpdateWebhook(ctx, w); err != nil {
		t.Fatal(err)
	}
	if hooks, _ := Webhooks.ListActiveWebhooksForEvent(ctx, "alice", "job.failed"); len(hooks) != 0 {
		t.Error("disabled hooks should not be listed")
	}

	if err := Webhooks.DeleteWebhook(ctx, w.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := Webhooks.GetWebhookByID(ctx, w.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestAudit(t *testing.T) {
	ctx := context.Background()
	for _, action := range []string{"job.submit", "job.cancel"} {
		if err := Audit.CreateAuditLog(ctx, &AuditLog{Action: action, User: "auditor", JobID: "bb01", IPAddress: "10.0.0.1"}); err != nil {
			t.Fatal(err)
		}
	}
	logs, err := Audit.ListByJob(ctx, "bb01")
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 || logs[0].Action != "job.submit" || logs[1].Action != "job.cancel" {
		t.Errorf("unexpected audit logs %+v", logs)
	}
}
