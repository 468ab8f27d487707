package notify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orrn/printdesk/internal/events"
)

type collector struct {
	mu    sync.Mutex
	seen  []events.Notification
	notes chan struct{}
}

func newCollector() *collector {
	return &collector{notes: make(chan struct{}, 100)}
}

func (c *collector) Handle(n events.Notification) bool {
	c.mu.Lock()
	c.seen = append(c.seen, n)
	c.mu.Unlock()
	c.notes <- struct{}{}
	return true
}

func (c *collector) wait(t *testing.T, count int) []events.Notification {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		c.mu.Lock()
		if len(c.seen) >= count {
			out := append([]events.Notification(nil), c.seen...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.notes:
		case <-deadline:
			t.Fatalf("timed out waiting for %d notifications", count)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line  string
		title string
		text  string
	}{
		{"Print Job: office (ab12) printed\tPrinted 3 page(s).\n", "Print Job: office (ab12) printed", "Printed 3 page(s)."},
		{"Print Job: office (ab12) completed", "Print Job: office (ab12) completed", ""},
		{"title\tbody\twith tab\r\n", "title", "body\twith tab"},
	}
	for _, tt := range tests {
		n := ParseLine(tt.line)
		if n.Title != tt.title || n.Text != tt.text {
			t.Errorf("ParseLine(%q) = %+v", tt.line, n)
		}
	}
}

func TestReadLines(t *testing.T) {
	input := "Print Job: office (ab12) processing\n\n  \nPrint Job: office (ab12) printed\tPrinted 1 page(s).\n"
	c := newCollector()
	if err := ReadLines(context.Background(), strings.NewReader(input), c); err != nil {
		t.Fatal(err)
	}
	if len(c.seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(c.seen))
	}
	if c.seen[1].Text != "Printed 1 page(s)." {
		t.Errorf("unexpected body %q", c.seen[1].Text)
	}
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		t.Fatal(err)
	}
}

func TestFileSource_Follows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.log")
	appendLine(t, path, "Print Job: office (00) held\n")

	c := newCollector()
	src := NewFileSource(path, false, c, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	appendLine(t, path, "Print Job: office (ab12) printed\tPrinted ")
	appendLine(t, path, "1 page(s).\n")
	seen := c.wait(t, 1)
	if seen[0].Title != "Print Job: office (ab12) printed" || seen[0].Text != "Printed 1 page(s)." {
		t.Errorf("unexpected notification %+v", seen[0])
	}

	// Recreate the file as log rotation would.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	appendLine(t, path, "Print Job: office (ab12) completed\n")
	seen = c.wait(t, 2)
	if seen[1].Title != "Print Job: office (ab12) completed" {
		t.Errorf("unexpected notification after rotation %+v", seen[1])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("source did not stop")
	}

	for _, n := range seen {
		if strings.Contains(n.Title, "(00)") {
			t.Error("lines present before start should be skipped")
		}
	}
}
