package process

import (
	"fmt"
	"time"
)

// TimerPhase is the phase of a start/pause/accumulate sub-timer.
type TimerPhase string

const (
	TimerIdle    TimerPhase = "idle"
	TimerRunning TimerPhase = "running"
	TimerPaused  TimerPhase = "paused"
	TimerDone    TimerPhase = "done"
)

// SubTimer is a generic accumulate-on-pause counter that runs alongside the
// main process clock. Setup uses the full Idle/Running/Paused/Done cycle;
// rework skips Paused and re-arms after Done so repeated cycles keep adding
// to the same accumulator.
type SubTimer struct {
	Phase              TimerPhase `json:"phase"`
	AccumulatedSeconds int64      `json:"accumulated_seconds"`
	RunningSince       *time.Time `json:"running_since,omitempty"`
}

// Start moves the timer to Running. Restarting from Done is allowed only
// when rearm is set (the rework pattern).
func (t *SubTimer) Start(now time.Time, rearm bool) error {
	switch t.Phase {
	case "", TimerIdle, TimerPaused:
	case TimerDone:
		if !rearm {
			return fmt.Errorf("%w: sub-timer already done", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: sub-timer already running", ErrInvalidTransition)
	}
	u := now.UTC()
	t.Phase = TimerRunning
	t.RunningSince = &u
	return nil
}

// Pause folds the running span into the accumulator and stops the clock.
func (t *SubTimer) Pause(now time.Time) error {
	if t.Phase != TimerRunning {
		return fmt.Errorf("%w: sub-timer not running", ErrInvalidTransition)
	}
	t.accumulate(now)
	t.Phase = TimerPaused
	return nil
}

// Finish performs the final accumulation and marks the timer Done.
// Finishing from Paused is allowed; the accumulator already holds the total.
func (t *SubTimer) Finish(now time.Time) error {
	switch t.Phase {
	case TimerRunning:
		t.accumulate(now)
	case TimerPaused:
	default:
		return fmt.Errorf("%w: sub-timer not started", ErrInvalidTransition)
	}
	t.Phase = TimerDone
	return nil
}

func (t *SubTimer) accumulate(now time.Time) {
	if t.RunningSince != nil {
		d := now.UTC().Sub(*t.RunningSince)
		if d > 0 {
			t.AccumulatedSeconds += int64(d.Seconds())
		}
		t.RunningSince = nil
	}
}

// Elapsed returns accumulated time plus the open running span, if any.
func (t SubTimer) Elapsed(now time.Time) time.Duration {
	d := time.Duration(t.AccumulatedSeconds) * time.Second
	if t.Phase == TimerRunning && t.RunningSince != nil {
		if open := now.UTC().Sub(*t.RunningSince); open > 0 {
			d += open
		}
	}
	return d
}
