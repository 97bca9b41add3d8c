package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/taktline/takt/internal/journal"
)

func TestSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	s, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = s.Close() }()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	if err := s.Send(context.Background(), journal.Event{
		Type: journal.EventPause, OccurredAt: now, ProcessID: "p1", Justification: "material shortage",
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.Send(context.Background(), journal.Event{
		Type: journal.EventResume, OccurredAt: now.Add(time.Minute), ProcessID: "p1",
	}); err != nil {
		t.Fatalf("send: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var e journal.Event
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Type != journal.EventPause || e.Justification != "material shortage" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestNewRequiresPath(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for missing path")
	}
}
