package process

import (
	"errors"
	"testing"
	"time"
)

func TestSubTimerAccumulateOnPause(t *testing.T) {
	var st SubTimer
	if err := st.Start(t0, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if st.Phase != TimerRunning || st.RunningSince == nil {
		t.Fatalf("unexpected state after start: %+v", st)
	}
	if err := st.Pause(t0.Add(90 * time.Second)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if st.AccumulatedSeconds != 90 {
		t.Fatalf("accumulated = %d, want 90", st.AccumulatedSeconds)
	}
	if st.RunningSince != nil {
		t.Fatalf("running_since not cleared on pause")
	}
	// resume and finish
	if err := st.Start(t0.Add(2*time.Minute), false); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := st.Finish(t0.Add(3 * time.Minute)); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if st.AccumulatedSeconds != 150 {
		t.Fatalf("accumulated = %d, want 150", st.AccumulatedSeconds)
	}
	if st.Phase != TimerDone {
		t.Fatalf("phase = %s, want done", st.Phase)
	}
}

func TestSubTimerDoneIsOneWay(t *testing.T) {
	var st SubTimer
	_ = st.Start(t0, false)
	_ = st.Finish(t0.Add(time.Minute))
	if err := st.Start(t0.Add(2*time.Minute), false); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("restart after done = %v, want ErrInvalidTransition", err)
	}
}

func TestSubTimerReworkCyclesAccumulate(t *testing.T) {
	// Rework re-arms after Done: repeated cycles keep adding to one total.
	var st SubTimer
	_ = st.Start(t0, true)
	_ = st.Finish(t0.Add(30 * time.Second))
	if err := st.Start(t0.Add(time.Hour), true); err != nil {
		t.Fatalf("rearm: %v", err)
	}
	_ = st.Finish(t0.Add(time.Hour + 45*time.Second))
	if st.AccumulatedSeconds != 75 {
		t.Fatalf("accumulated = %d, want 75", st.AccumulatedSeconds)
	}
}

func TestSubTimerElapsedIncludesOpenSpan(t *testing.T) {
	var st SubTimer
	_ = st.Start(t0, false)
	_ = st.Pause(t0.Add(time.Minute))
	_ = st.Start(t0.Add(10*time.Minute), false)
	got := st.Elapsed(t0.Add(10*time.Minute + 20*time.Second))
	if got != 80*time.Second {
		t.Fatalf("elapsed = %v, want 80s", got)
	}
}

func TestSubTimerInvalidOps(t *testing.T) {
	var st SubTimer
	if err := st.Pause(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pause idle = %v, want ErrInvalidTransition", err)
	}
	if err := st.Finish(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("finish idle = %v, want ErrInvalidTransition", err)
	}
	_ = st.Start(t0, false)
	if err := st.Start(t0, false); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double start = %v, want ErrInvalidTransition", err)
	}
}

func TestQualityWorkflow(t *testing.T) {
	var q Quality
	if err := q.Call(t0); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := q.Elapsed(t0.Add(40 * time.Second)); got != 40*time.Second {
		t.Fatalf("waiting elapsed = %v, want 40s", got)
	}
	if err := q.Arrive(t0.Add(time.Minute)); err != nil {
		t.Fatalf("arrive: %v", err)
	}
	if got := q.Elapsed(t0.Add(90 * time.Second)); got != 30*time.Second {
		t.Fatalf("inspecting elapsed = %v, want 30s", got)
	}
	if err := q.Approve(t0.Add(2 * time.Minute)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if q.State != QualityApproved || q.ApprovedAt == nil {
		t.Fatalf("unexpected final state: %+v", q)
	}

	q.Reset()
	if q.State != QualityNone || q.CalledAt != nil || q.ArrivedAt != nil || q.ApprovedAt != nil {
		t.Fatalf("reset did not clear timestamps: %+v", q)
	}
}

func TestQualityOutOfOrder(t *testing.T) {
	var q Quality
	if err := q.Arrive(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("arrive before call = %v, want ErrInvalidTransition", err)
	}
	_ = q.Call(t0)
	if err := q.Approve(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("approve before arrive = %v, want ErrInvalidTransition", err)
	}
	if err := q.Call(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double call = %v, want ErrInvalidTransition", err)
	}
}
