package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/taktline/takt/internal/journal"
)

func TestSinkAppends(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	events := []journal.Event{
		{Type: journal.EventCheckIn, OccurredAt: now, ProcessID: "p1", WorkerID: "w1", Actor: "lead"},
		{Type: journal.EventBulkExit, OccurredAt: now.Add(time.Hour), ProcessID: "p1", Actor: "super", Justification: "shift change", Count: 3},
	}
	for _, e := range events {
		if err := s.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}

	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM process_journal WHERE process_id = ?;`, "p1")
	if err := row.Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}

	var count int
	row = s.db.QueryRowContext(ctx, `SELECT count FROM process_journal WHERE type = ?;`, "bulk_exit")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("bulk row: %v", err)
	}
	if count != 3 {
		t.Fatalf("bulk exit count = %d, want 3", count)
	}
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
