package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taktline/takt/internal/clock"
	"github.com/taktline/takt/internal/journal"
	"github.com/taktline/takt/internal/metrics"
	"github.com/taktline/takt/internal/process"
)

// CtrlType enumerates control message kinds handled by handler.
type CtrlType int

const (
	CtrlStart CtrlType = iota
	CtrlPause
	CtrlResume
	CtrlFinish
	CtrlAdjust
	CtrlEdit
	CtrlRebase
	CtrlCrew
	CtrlTimer
	CtrlTick
	CtrlShutdown
)

// CtrlMsg is a control-plane message sent to a handler to serialize
// lifecycle ops. One handler goroutine owns all transitions for its process,
// so transition + rebase are indivisible from the caller's point of view.
type CtrlMsg struct {
	Type          CtrlType
	Actor         string
	Justification string
	Delta         float64
	Core          int
	Total         int
	CoreDeparture bool
	Auto          bool
	Timer         TimerOp
	Edit          ProcessEdit
	Reply         chan error
}

// ProcessEdit updates the mutable identity and target fields of a process.
// Nil fields are left unchanged.
type ProcessEdit struct {
	Name                   *string  `json:"name,omitempty"`
	TargetUnits            *float64 `json:"target_units,omitempty"`
	RatePerWorkerPerMinute *float64 `json:"rate_per_worker_per_minute,omitempty"`
}

// TimerOp selects a sub-timer operation carried by a CtrlTimer message.
type TimerOp string

const (
	TimerSetupStart    TimerOp = "setup_start"
	TimerSetupPause    TimerOp = "setup_pause"
	TimerSetupFinish   TimerOp = "setup_finish"
	TimerQualityCall   TimerOp = "quality_call"
	TimerQualityArrive TimerOp = "quality_arrive"
	TimerQualityOK     TimerOp = "quality_approve"
	TimerQualityReset  TimerOp = "quality_reset"
	TimerReworkStart   TimerOp = "rework_start"
	TimerReworkFinish  TimerOp = "rework_finish"
)

// handler owns the control path for a single process.
type handler struct {
	mu   sync.RWMutex
	snap process.Snapshot
	ctrl chan CtrlMsg

	clock clock.Clock
	// injected callbacks (no direct Manager dependency)
	persist   func(ctx context.Context, snap process.Snapshot) error
	emit      func(ctx context.Context, e journal.Event)
	crewCount func(ctx context.Context, processID string) (int, error)
}

func newHandler(snap process.Snapshot, clk clock.Clock,
	persist func(context.Context, process.Snapshot) error,
	emit func(context.Context, journal.Event),
	crewCount func(context.Context, string) (int, error),
) *handler {
	return &handler{
		snap:      snap,
		ctrl:      make(chan CtrlMsg, 16),
		clock:     clk,
		persist:   persist,
		emit:      emit,
		crewCount: crewCount,
	}
}

func (h *handler) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.ctrl:
			var err error
			switch msg.Type {
			case CtrlStart:
				err = h.start(ctx, msg)
			case CtrlPause:
				err = h.pause(ctx, msg)
			case CtrlResume:
				err = h.resume(ctx, msg)
			case CtrlFinish:
				err = h.finish(ctx, msg)
			case CtrlAdjust:
				err = h.adjust(ctx, msg)
			case CtrlEdit:
				err = h.edit(ctx, msg)
			case CtrlRebase:
				err = h.rebaseOnly(ctx)
			case CtrlCrew:
				err = h.crewChanged(ctx, msg)
			case CtrlTimer:
				err = h.timer(ctx, msg)
			case CtrlTick:
				err = h.tick(ctx)
			case CtrlShutdown:
				if msg.Reply != nil {
					msg.Reply <- nil
				}
				return
			}
			if msg.Reply != nil {
				msg.Reply <- err
			}
		}
	}
}

// Snapshot returns a copy of the current persisted state.
func (h *handler) Snapshot() process.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap.Clone()
}

// commit persists next and only then swaps it in. A store failure leaves the
// prior in-memory state intact, so readers never observe a torn transition.
func (h *handler) commit(ctx context.Context, next process.Snapshot, now time.Time) error {
	next.UpdatedAt = now
	if err := h.persist(ctx, next); err != nil {
		return fmt.Errorf("persist %s: %w", next.ID, err)
	}
	h.mu.Lock()
	prev := h.snap.State
	h.snap = next
	h.mu.Unlock()
	if prev != next.State {
		metrics.RecordStateTransition(next.ID, string(prev), string(next.State))
		metrics.SetCurrentState(next.ID, string(prev), false)
		metrics.SetCurrentState(next.ID, string(next.State), true)
	}
	metrics.SetCompletedUnits(next.ID, next.CompletedUnits)
	return nil
}

// rebase folds elapsed theoretical progress into the checkpoint and moves
// checkpointTime to now. While paused, the checkpoint shift is instead
// credited to the grace deadline, so paused time never counts against the
// grace window; repeated pause/resume cycles accumulate exactly.
// Returns whether the grace countdown activated during this rebase.
func (h *handler) rebase(ctx context.Context, next *process.Snapshot, now time.Time) (bool, error) {
	if next.State == process.StatePaused && next.GraceStartedAt != nil {
		shifted := next.GraceStartedAt.Add(now.Sub(next.CheckpointAt))
		next.GraceStartedAt = &shifted
	}
	if next.State == process.StateRunning && next.Kind.TimeBased() {
		crew, err := h.crewCount(ctx, next.ID)
		if err != nil {
			return false, fmt.Errorf("crew count %s: %w", next.ID, err)
		}
		est := process.Compute(*next, crew, now)
		next.CompletedUnits = est.CompletedUnits
	}
	next.CheckpointAt = now
	return h.ensureGrace(next, now), nil
}

// ensureGrace starts the fixed countdown the first time remaining units
// reach zero while running. Once set it is never cleared, only shifted by
// pause compensation.
func (h *handler) ensureGrace(next *process.Snapshot, now time.Time) bool {
	if next.State != process.StateRunning || !next.Kind.TimeBased() {
		return false
	}
	if next.GraceStartedAt != nil || next.TargetUnits <= 0 {
		return false
	}
	if next.CompletedUnits < next.TargetUnits {
		return false
	}
	u := now
	next.GraceStartedAt = &u
	return true
}

func (h *handler) start(ctx context.Context, msg CtrlMsg) error {
	now := h.clock.Now()
	next := h.snap.Clone()
	if next.State != process.StateRegistered {
		return fmt.Errorf("%w: cannot start process in state %s", process.ErrInvalidTransition, next.State)
	}
	next.State = process.StateRunning
	if next.StartedAt == nil {
		u := now
		next.StartedAt = &u
	}
	next.CheckpointAt = now
	activated := h.ensureGrace(&next, now)
	if err := h.commit(ctx, next, now); err != nil {
		return err
	}
	detail := ""
	if msg.Auto {
		detail = "auto"
	}
	h.emit(ctx, journal.Event{Type: journal.EventStart, OccurredAt: now, ProcessID: next.ID, Actor: msg.Actor, Detail: detail})
	h.emitGrace(ctx, next.ID, now, activated)
	return nil
}

func (h *handler) pause(ctx context.Context, msg CtrlMsg) error {
	now := h.clock.Now()
	next := h.snap.Clone()
	if next.State != process.StateRunning {
		return fmt.Errorf("%w: cannot pause process in state %s", process.ErrInvalidTransition, next.State)
	}
	if !msg.Auto && msg.Justification == "" {
		return fmt.Errorf("pause requires a justification")
	}
	activated, err := h.rebase(ctx, &next, now)
	if err != nil {
		return err
	}
	next.State = process.StatePaused
	next.AutoPaused = msg.Auto
	if err := h.commit(ctx, next, now); err != nil {
		return err
	}
	typ := journal.EventPause
	if msg.Auto {
		typ = journal.EventAutoPause
	}
	h.emit(ctx, journal.Event{Type: typ, OccurredAt: now, ProcessID: next.ID, Actor: msg.Actor, Justification: msg.Justification})
	h.emitGrace(ctx, next.ID, now, activated)
	return nil
}

func (h *handler) resume(ctx context.Context, msg CtrlMsg) error {
	now := h.clock.Now()
	next := h.snap.Clone()
	if next.State != process.StatePaused {
		return fmt.Errorf("%w: cannot resume process in state %s", process.ErrInvalidTransition, next.State)
	}
	// rebase while paused applies grace compensation and moves the
	// checkpoint; completed units are unchanged.
	if _, err := h.rebase(ctx, &next, now); err != nil {
		return err
	}
	next.State = process.StateRunning
	next.AutoPaused = false
	if next.StartedAt == nil {
		u := now
		next.StartedAt = &u
	}
	if err := h.commit(ctx, next, now); err != nil {
		return err
	}
	typ := journal.EventResume
	if msg.Auto {
		typ = journal.EventAutoResume
	}
	h.emit(ctx, journal.Event{Type: typ, OccurredAt: now, ProcessID: next.ID, Actor: msg.Actor})
	return nil
}

func (h *handler) finish(ctx context.Context, msg CtrlMsg) error {
	now := h.clock.Now()
	next := h.snap.Clone()
	if next.State != process.StateRunning && next.State != process.StatePaused {
		return fmt.Errorf("%w: cannot finish process in state %s", process.ErrInvalidTransition, next.State)
	}
	if _, err := h.rebase(ctx, &next, now); err != nil {
		return err
	}
	next.State = process.StateFinished
	u := now
	next.FinishedAt = &u
	if err := h.commit(ctx, next, now); err != nil {
		return err
	}
	h.emit(ctx, journal.Event{Type: journal.EventFinish, OccurredAt: now, ProcessID: next.ID, Actor: msg.Actor})
	return nil
}

// adjust writes the delta directly against the checkpoint, not the live
// estimate, and moves checkpointTime to now so the delta is not
// re-integrated by the next estimate call.
func (h *handler) adjust(ctx context.Context, msg CtrlMsg) error {
	now := h.clock.Now()
	next := h.snap.Clone()
	if next.State == process.StateFinished {
		return fmt.Errorf("%w: cannot adjust a finished process", process.ErrInvalidTransition)
	}
	units := next.CompletedUnits + msg.Delta
	if units < 0 {
		return fmt.Errorf("adjustment of %+g would make completed units negative", msg.Delta)
	}
	next.CompletedUnits = units
	next.CheckpointAt = now
	activated := h.ensureGrace(&next, now)
	if err := h.commit(ctx, next, now); err != nil {
		return err
	}
	h.emit(ctx, journal.Event{
		Type:       journal.EventAdjust,
		OccurredAt: now,
		ProcessID:  next.ID,
		Actor:      msg.Actor,
		Detail:     fmt.Sprintf("%+g", msg.Delta),
	})
	h.emitGrace(ctx, next.ID, now, activated)
	return nil
}

// edit changes name, target or rate. The checkpoint is rebased first so
// units produced under the old rate stay banked under it.
func (h *handler) edit(ctx context.Context, msg CtrlMsg) error {
	now := h.clock.Now()
	next := h.snap.Clone()
	if next.State == process.StateFinished {
		return fmt.Errorf("%w: cannot edit a finished process", process.ErrInvalidTransition)
	}
	if _, err := h.rebase(ctx, &next, now); err != nil {
		return err
	}
	if msg.Edit.Name != nil {
		next.Name = *msg.Edit.Name
	}
	if msg.Edit.TargetUnits != nil {
		if *msg.Edit.TargetUnits < 0 {
			return fmt.Errorf("target_units must be >= 0")
		}
		next.TargetUnits = *msg.Edit.TargetUnits
	}
	if msg.Edit.RatePerWorkerPerMinute != nil {
		if *msg.Edit.RatePerWorkerPerMinute < 0 {
			return fmt.Errorf("rate_per_worker_per_minute must be >= 0")
		}
		next.RatePerWorkerPerMinute = *msg.Edit.RatePerWorkerPerMinute
	}
	activated := h.ensureGrace(&next, now)
	if err := h.commit(ctx, next, now); err != nil {
		return err
	}
	h.emit(ctx, journal.Event{Type: journal.EventAdjust, OccurredAt: now, ProcessID: next.ID, Actor: msg.Actor, Detail: "edit"})
	h.emitGrace(ctx, next.ID, now, activated)
	return nil
}

func (h *handler) rebaseOnly(ctx context.Context) error {
	now := h.clock.Now()
	next := h.snap.Clone()
	if next.State == process.StateFinished {
		return nil
	}
	activated, err := h.rebase(ctx, &next, now)
	if err != nil {
		return err
	}
	if err := h.commit(ctx, next, now); err != nil {
		return err
	}
	h.emitGrace(ctx, next.ID, now, activated)
	return nil
}

// crewChanged applies the automatic transitions driven by presence changes.
// The checkpoint was already rebased before the presence record changed, so
// the units produced under the previous crew are banked.
// Only a core check-out may auto-pause: a running process with no core
// workers whose crew grows by a check-in stays running and reports
// StaffRequired instead.
func (h *handler) crewChanged(ctx context.Context, msg CtrlMsg) error {
	snap := h.Snapshot()
	switch {
	case snap.State == process.StateRegistered && msg.Total > 0 && snap.Kind.AutoStarts():
		return h.start(ctx, CtrlMsg{Actor: msg.Actor, Auto: true})
	case snap.State == process.StateRunning && msg.CoreDeparture && msg.Core == 0:
		return h.pause(ctx, CtrlMsg{Actor: msg.Actor, Auto: true})
	case snap.State == process.StatePaused && snap.AutoPaused && msg.Core > 0:
		return h.resume(ctx, CtrlMsg{Actor: msg.Actor, Auto: true})
	}
	return nil
}

func (h *handler) timer(ctx context.Context, msg CtrlMsg) error {
	now := h.clock.Now()
	next := h.snap.Clone()
	if next.State == process.StateFinished {
		return fmt.Errorf("%w: process already finished", process.ErrInvalidTransition)
	}

	var err error
	var typ journal.EventType
	switch msg.Timer {
	case TimerSetupStart:
		err, typ = next.Setup.Start(now, false), journal.EventSetupStart
	case TimerSetupPause:
		err, typ = next.Setup.Pause(now), journal.EventSetupPause
	case TimerSetupFinish:
		err, typ = next.Setup.Finish(now), journal.EventSetupFinish
	case TimerQualityCall:
		err, typ = next.Quality.Call(now), journal.EventQualityCall
	case TimerQualityArrive:
		err, typ = next.Quality.Arrive(now), journal.EventQualityArrive
	case TimerQualityOK:
		err, typ = next.Quality.Approve(now), journal.EventQualityOK
	case TimerQualityReset:
		next.Quality.Reset()
		typ = journal.EventQualityReset
	case TimerReworkStart:
		err, typ = next.Rework.Start(now, true), journal.EventReworkStart
	case TimerReworkFinish:
		err, typ = next.Rework.Finish(now), journal.EventReworkFinish
	default:
		return fmt.Errorf("unknown timer op %q", msg.Timer)
	}
	if err != nil {
		return err
	}
	if err := h.commit(ctx, next, now); err != nil {
		return err
	}
	h.emit(ctx, journal.Event{Type: typ, OccurredAt: now, ProcessID: next.ID, Actor: msg.Actor})
	return nil
}

// tick is the reconciler pass: detect grace activation between explicit
// transitions and refresh derived gauges.
func (h *handler) tick(ctx context.Context) error {
	now := h.clock.Now()
	snap := h.Snapshot()
	if snap.State == process.StateFinished {
		return nil
	}
	crew := 0
	if snap.Kind.TimeBased() {
		var err error
		crew, err = h.crewCount(ctx, snap.ID)
		if err != nil {
			return fmt.Errorf("crew count %s: %w", snap.ID, err)
		}
	}
	est := process.Compute(snap, crew, now)
	metrics.SetOvertime(snap.ID, est.Overtime)
	metrics.SetActiveCoreWorkers(snap.ID, crew)

	if snap.State == process.StateRunning && snap.Kind.TimeBased() &&
		snap.GraceStartedAt == nil && snap.TargetUnits > 0 && est.RemainingUnits <= 0 {
		return h.rebaseOnly(ctx)
	}
	return nil
}

func (h *handler) emitGrace(ctx context.Context, processID string, now time.Time, activated bool) {
	if !activated {
		return
	}
	metrics.IncGraceActivation(processID)
	h.emit(ctx, journal.Event{Type: journal.EventGrace, OccurredAt: now, ProcessID: processID})
}
