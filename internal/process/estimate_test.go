package process

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func packagingSnap() Snapshot {
	s := New(Spec{
		ID:                     "line-1",
		Name:                   "line 1",
		Kind:                   KindPackaging,
		TargetUnits:            1000,
		RatePerWorkerPerMinute: 10,
	}, t0)
	s.State = StateRunning
	return s
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestComputeTheoreticalProgress(t *testing.T) {
	s := packagingSnap()

	// 2 core workers, 30 minutes elapsed: 10*2/60 * 1800s = 600 units,
	// 400 remaining at 20/min = 20min work + 15min allowance.
	est := Compute(s, 2, t0.Add(30*time.Minute))
	if !almostEqual(est.CompletedUnits, 600) {
		t.Fatalf("completed = %v, want 600", est.CompletedUnits)
	}
	if !almostEqual(est.RemainingUnits, 400) {
		t.Fatalf("remaining units = %v, want 400", est.RemainingUnits)
	}
	if !almostEqual(est.RemainingSeconds, 35*60) {
		t.Fatalf("remaining seconds = %v, want %v", est.RemainingSeconds, 35*60)
	}
	if !almostEqual(est.PercentComplete, 60) {
		t.Fatalf("percent = %v, want 60", est.PercentComplete)
	}
	if est.RatePerMinute != 20 {
		t.Fatalf("rate = %v, want 20", est.RatePerMinute)
	}
}

func TestComputeMonotonic(t *testing.T) {
	s := packagingSnap()
	prev := -1.0
	for m := 0; m <= 120; m += 7 {
		est := Compute(s, 3, t0.Add(time.Duration(m)*time.Minute))
		if est.CompletedUnits < prev {
			t.Fatalf("progress went backwards at %dm: %v < %v", m, est.CompletedUnits, prev)
		}
		prev = est.CompletedUnits
	}
}

func TestComputeDeterministic(t *testing.T) {
	s := packagingSnap()
	now := t0.Add(13 * time.Minute)
	a := Compute(s, 2, now)
	b := Compute(s, 2, now)
	if a != b {
		t.Fatalf("same inputs produced different estimates: %+v vs %+v", a, b)
	}
}

func TestComputeDoesNotAdvance(t *testing.T) {
	now := t0.Add(time.Hour)

	paused := packagingSnap()
	paused.State = StatePaused
	paused.CompletedUnits = 120
	if est := Compute(paused, 2, now); est.CompletedUnits != 120 || est.RatePerMinute != 0 {
		t.Fatalf("paused process advanced: %+v", est)
	}

	annex := packagingSnap()
	annex.Kind = KindAnnex
	if est := Compute(annex, 2, now); est.CompletedUnits != 0 || est.RatePerMinute != 0 {
		t.Fatalf("annex process advanced: %+v", est)
	}

	// Running with no core staff: checkpoint frozen, sentinel raised.
	noStaff := packagingSnap()
	noStaff.CompletedUnits = 50
	est := Compute(noStaff, 0, now)
	if est.CompletedUnits != 50 {
		t.Fatalf("staffless process advanced: %+v", est)
	}
	if !est.StaffRequired {
		t.Fatalf("expected StaffRequired sentinel, got %+v", est)
	}
}

func TestComputeClampsNegativeElapsed(t *testing.T) {
	s := packagingSnap()
	s.CompletedUnits = 10
	est := Compute(s, 2, t0.Add(-time.Minute))
	if est.CompletedUnits != 10 {
		t.Fatalf("negative elapsed contributed progress: %v", est.CompletedUnits)
	}
}

func TestComputeGraceCountdown(t *testing.T) {
	// Grace activated at T+50min; the countdown ignores rate from there on.
	s := packagingSnap()
	s.CompletedUnits = 1000
	grace := t0.Add(50 * time.Minute)
	s.GraceStartedAt = &grace
	s.CheckpointAt = grace

	est := Compute(s, 2, t0.Add(64*time.Minute))
	if !est.GracePeriod {
		t.Fatalf("expected grace period: %+v", est)
	}
	if !almostEqual(est.RemainingSeconds, 60) {
		t.Fatalf("remaining = %v, want 60", est.RemainingSeconds)
	}
	if est.Overtime {
		t.Fatalf("not yet overtime: %+v", est)
	}

	est = Compute(s, 2, t0.Add(66*time.Minute))
	if !est.Overtime {
		t.Fatalf("expected overtime: %+v", est)
	}
	if !almostEqual(est.OvertimeSeconds, 120) {
		t.Fatalf("overtime = %v, want 120", est.OvertimeSeconds)
	}
	if est.RemainingSeconds != 0 {
		t.Fatalf("remaining must not go negative: %v", est.RemainingSeconds)
	}
}

func TestComputeGraceCountdownWithoutCrew(t *testing.T) {
	// The countdown does not depend on the crew: zero core workers must
	// still report the grace period, not the staff-required sentinel.
	s := packagingSnap()
	s.CompletedUnits = 1000
	grace := t0.Add(50 * time.Minute)
	s.GraceStartedAt = &grace
	s.CheckpointAt = grace

	est := Compute(s, 0, t0.Add(64*time.Minute))
	if !est.GracePeriod {
		t.Fatalf("expected grace period: %+v", est)
	}
	if est.StaffRequired {
		t.Fatalf("grace countdown flagged staff required: %+v", est)
	}
	if !almostEqual(est.RemainingSeconds, 60) {
		t.Fatalf("remaining = %v, want 60", est.RemainingSeconds)
	}

	est = Compute(s, 0, t0.Add(66*time.Minute))
	if !est.Overtime || !almostEqual(est.OvertimeSeconds, 120) {
		t.Fatalf("overtime = %+v, want 120s", est)
	}
}

func TestComputeZeroTarget(t *testing.T) {
	s := packagingSnap()
	s.TargetUnits = 0
	est := Compute(s, 1, t0.Add(time.Minute))
	if est.PercentComplete != 0 {
		t.Fatalf("percent for zero target = %v, want 0", est.PercentComplete)
	}
}

func TestComputePercentCapped(t *testing.T) {
	s := packagingSnap()
	s.CompletedUnits = 5000
	est := Compute(s, 1, t0)
	if est.PercentComplete != 100 {
		t.Fatalf("percent = %v, want capped at 100", est.PercentComplete)
	}
	if est.RemainingUnits != 0 {
		t.Fatalf("remaining units = %v, want 0", est.RemainingUnits)
	}
}
