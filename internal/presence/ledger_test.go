package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taktline/takt/internal/clock"
	"github.com/taktline/takt/internal/store"
)

type recordingLifecycle struct {
	rebases    []string
	crews      []int
	departures []bool
}

func (r *recordingLifecycle) RebaseCheckpoint(ctx context.Context, processID string) error {
	r.rebases = append(r.rebases, processID)
	return nil
}

func (r *recordingLifecycle) CrewChanged(ctx context.Context, processID string, coreWorkers, totalWorkers int, coreDeparture bool, actor string) error {
	r.crews = append(r.crews, coreWorkers)
	r.departures = append(r.departures, coreDeparture)
	return nil
}

func newTestLedger(t *testing.T) (*Ledger, *recordingLifecycle, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	l := NewLedger(store.NewMemory(), nil, fake)
	lc := &recordingLifecycle{}
	l.SetLifecycle(lc)
	return l, lc, fake
}

func TestCheckInCheckOut(t *testing.T) {
	ctx := context.Background()
	l, lc, fake := newTestLedger(t)

	rec, err := l.CheckIn(ctx, "w-1", "pack-1", store.RoleCore, "w-1")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if rec.ID == "" || !rec.Active() {
		t.Fatalf("bad record: %+v", rec)
	}
	if n, _ := l.CoreCount(ctx, "pack-1"); n != 1 {
		t.Fatalf("core count = %d, want 1", n)
	}
	if len(lc.rebases) != 1 || lc.rebases[0] != "pack-1" {
		t.Fatalf("rebase not called before insert: %v", lc.rebases)
	}
	if len(lc.crews) != 1 || lc.crews[0] != 1 {
		t.Fatalf("crew hook = %v, want [1]", lc.crews)
	}
	if lc.departures[0] {
		t.Fatalf("check-in reported as departure")
	}

	fake.Advance(30 * time.Minute)
	out, err := l.CheckOut(ctx, "w-1", "end of shift", "w-1")
	if err != nil {
		t.Fatalf("check out: %v", err)
	}
	if out.CheckOutAt == nil || !out.CheckOutAt.Equal(rec.CheckInAt.Add(30*time.Minute)) {
		t.Fatalf("check-out time wrong: %+v", out)
	}
	if n, _ := l.CoreCount(ctx, "pack-1"); n != 0 {
		t.Fatalf("core count after checkout = %d, want 0", n)
	}
	if lc.crews[len(lc.crews)-1] != 0 {
		t.Fatalf("crew hook after checkout = %v", lc.crews)
	}
	if !lc.departures[len(lc.departures)-1] {
		t.Fatalf("check-out not reported as departure")
	}
}

func TestCheckInExclusive(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)

	if _, err := l.CheckIn(ctx, "w-1", "pack-1", store.RoleCore, "w-1"); err != nil {
		t.Fatalf("check in: %v", err)
	}
	// same process
	if _, err := l.CheckIn(ctx, "w-1", "pack-1", store.RoleCore, "w-1"); !errors.Is(err, ErrPresenceConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
	// different process
	if _, err := l.CheckIn(ctx, "w-1", "pack-2", store.RoleSupport, "w-1"); !errors.Is(err, ErrPresenceConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
	// moving requires an explicit check-out first
	if _, err := l.CheckOut(ctx, "w-1", "moved to line 2", "w-1"); err != nil {
		t.Fatalf("check out: %v", err)
	}
	if _, err := l.CheckIn(ctx, "w-1", "pack-2", store.RoleCore, "w-1"); err != nil {
		t.Fatalf("check in after move: %v", err)
	}
}

func TestCheckOutRequiresJustification(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)

	if _, err := l.CheckIn(ctx, "w-1", "pack-1", store.RoleCore, "w-1"); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := l.CheckOut(ctx, "w-1", "", "w-1"); err == nil {
		t.Fatal("empty justification accepted")
	}
	if _, err := l.CheckOut(ctx, "w-9", "break", "w-9"); !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("want not checked in, got %v", err)
	}
}

func TestSupportRoleDoesNotCount(t *testing.T) {
	ctx := context.Background()
	l, lc, _ := newTestLedger(t)

	if _, err := l.CheckIn(ctx, "w-1", "pack-1", store.RoleSupport, "w-1"); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if n, _ := l.CoreCount(ctx, "pack-1"); n != 0 {
		t.Fatalf("support counted as core: %d", n)
	}
	if lc.crews[len(lc.crews)-1] != 0 {
		t.Fatalf("crew hook saw support as core: %v", lc.crews)
	}

	if _, err := l.CheckOut(ctx, "w-1", "reassigned", "w-1"); err != nil {
		t.Fatalf("check out: %v", err)
	}
	if lc.departures[len(lc.departures)-1] {
		t.Fatalf("support check-out reported as core departure")
	}
}

func TestCheckOutAll(t *testing.T) {
	ctx := context.Background()
	l, lc, _ := newTestLedger(t)

	for _, w := range []string{"w-1", "w-2", "w-3"} {
		if _, err := l.CheckIn(ctx, w, "pack-1", store.RoleCore, w); err != nil {
			t.Fatalf("check in %s: %v", w, err)
		}
	}
	if _, err := l.CheckIn(ctx, "w-4", "pack-2", store.RoleCore, "w-4"); err != nil {
		t.Fatalf("check in w-4: %v", err)
	}

	n, err := l.CheckOutAll(ctx, "pack-1", "fire drill", "sup-1")
	if err != nil {
		t.Fatalf("check out all: %v", err)
	}
	if n != 3 {
		t.Fatalf("closed %d, want 3", n)
	}
	if c, _ := l.CoreCount(ctx, "pack-1"); c != 0 {
		t.Fatalf("crew remains: %d", c)
	}
	// unrelated process untouched
	if c, _ := l.CoreCount(ctx, "pack-2"); c != 1 {
		t.Fatalf("pack-2 crew = %d, want 1", c)
	}
	if lc.crews[len(lc.crews)-1] != 0 {
		t.Fatalf("crew hook after bulk = %v", lc.crews)
	}

	hist, err := l.History(ctx, "pack-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("history len = %d", len(hist))
	}
	for _, rec := range hist {
		if rec.Active() || rec.Justification != "fire drill" {
			t.Fatalf("record not closed with shared justification: %+v", rec)
		}
	}
}
