package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taktline/takt/internal/clock"
	"github.com/taktline/takt/internal/journal"
	"github.com/taktline/takt/internal/presence"
	"github.com/taktline/takt/internal/process"
	"github.com/taktline/takt/internal/store"
)

// Status is the derived view of one process served to displays: the
// persisted snapshot plus the live estimate and current crew.
type Status struct {
	Snapshot    process.Snapshot `json:"snapshot"`
	Estimate    process.Estimate `json:"estimate"`
	CoreWorkers int              `json:"core_workers"`
	Crew        int              `json:"crew"`
}

// Manager owns the lifecycle of all tracked processes. Every transition for
// a process goes through its handler goroutine; the store write is
// acknowledged before the in-memory state changes.
type Manager struct {
	mu     sync.RWMutex
	st     store.Store
	sink   journal.Sink
	clk    clock.Clock
	ledger *presence.Ledger

	entries map[string]*procEntry
	cron    *cron.Cron
	cronID  cron.EntryID
}

type procEntry struct {
	h      *handler
	done   <-chan struct{}
	cancel context.CancelFunc
}

func NewManager(st store.Store, sink journal.Sink, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Manager{
		st:      st,
		sink:    sink,
		clk:     clk,
		entries: make(map[string]*procEntry),
	}
}

// SetLedger wires the presence ledger. The manager and the ledger reference
// each other, so both sides are injected after construction:
//
//	m := manager.NewManager(st, sink, clk)
//	l := presence.NewLedger(st, sink, clk)
//	m.SetLedger(l)
//	l.SetLifecycle(m)
func (m *Manager) SetLedger(l *presence.Ledger) { m.ledger = l }

// Load restores handlers for every persisted process, so transitions keep
// working across restarts without re-registration.
func (m *Manager) Load(ctx context.Context) error {
	snaps, err := m.st.ListProcesses(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range snaps {
		if _, ok := m.entries[snap.ID]; ok {
			continue
		}
		m.spawnLocked(snap)
	}
	return nil
}

// Register creates and persists a new process in the Registered state.
func (m *Manager) Register(ctx context.Context, spec process.Spec, actor string) (process.Snapshot, error) {
	if err := spec.Validate(); err != nil {
		return process.Snapshot{}, err
	}
	m.mu.Lock()
	if _, ok := m.entries[spec.ID]; ok {
		m.mu.Unlock()
		return process.Snapshot{}, fmt.Errorf("process %s already registered", spec.ID)
	}
	now := m.clk.Now()
	snap := process.New(spec, now)
	if err := m.st.SaveProcess(ctx, snap); err != nil {
		m.mu.Unlock()
		return process.Snapshot{}, err
	}
	m.spawnLocked(snap)
	m.mu.Unlock()

	m.emit(ctx, journal.Event{Type: journal.EventRegister, OccurredAt: now, ProcessID: snap.ID, Actor: actor})
	return snap, nil
}

func (m *Manager) spawnLocked(snap process.Snapshot) {
	h := newHandler(snap, m.clk, m.st.SaveProcess, m.emit, m.crewCount)
	ctx, cancel := context.WithCancel(context.Background())
	m.entries[snap.ID] = &procEntry{h: h, done: ctx.Done(), cancel: cancel}
	go h.run(ctx)
}

func (m *Manager) crewCount(ctx context.Context, processID string) (int, error) {
	return m.ledger.CoreCount(ctx, processID)
}

func (m *Manager) emit(ctx context.Context, e journal.Event) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Send(ctx, e); err != nil {
		slog.Warn("journal send failed", "type", string(e.Type), "process", e.ProcessID, "err", err)
	}
}

func (m *Manager) getHandler(id string) *handler {
	m.mu.RLock()
	e := m.entries[id]
	m.mu.RUnlock()
	if e != nil {
		return e.h
	}
	return nil
}

func (m *Manager) send(id string, msg CtrlMsg) error {
	m.mu.RLock()
	e := m.entries[id]
	m.mu.RUnlock()
	if e == nil {
		return fmt.Errorf("unknown process: %s", id)
	}
	reply := make(chan error, 1)
	msg.Reply = reply
	// The done guard keeps callers from parking on a stopped handler's
	// full ctrl buffer after Shutdown.
	select {
	case e.h.ctrl <- msg:
	case <-e.done:
		return fmt.Errorf("process %s: handler stopped", id)
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		select {
		case err := <-reply:
			return err
		default:
		}
		return fmt.Errorf("process %s: handler stopped", id)
	}
}

// Start moves a registered process to Running and stamps the actual start
// time on the first start.
func (m *Manager) Start(ctx context.Context, id, actor string) error {
	return m.send(id, CtrlMsg{Type: CtrlStart, Actor: actor})
}

// Pause suspends a running process. A justification is required.
func (m *Manager) Pause(ctx context.Context, id, justification, actor string) error {
	return m.send(id, CtrlMsg{Type: CtrlPause, Justification: justification, Actor: actor})
}

// Resume returns a paused process to Running, compensating the grace
// deadline for the paused time.
func (m *Manager) Resume(ctx context.Context, id, actor string) error {
	return m.send(id, CtrlMsg{Type: CtrlResume, Actor: actor})
}

// Finish closes the process irreversibly and checks out every worker still
// present.
func (m *Manager) Finish(ctx context.Context, id, actor string) error {
	if err := m.send(id, CtrlMsg{Type: CtrlFinish, Actor: actor}); err != nil {
		return err
	}
	if _, err := m.ledger.CheckOutAll(ctx, id, "production finished", actor); err != nil {
		return fmt.Errorf("finish %s: close presence: %w", id, err)
	}
	return nil
}

// Adjust nudges the checkpoint's completed units by a signed delta.
func (m *Manager) Adjust(ctx context.Context, id string, delta float64, actor string) error {
	return m.send(id, CtrlMsg{Type: CtrlAdjust, Delta: delta, Actor: actor})
}

// Edit updates the mutable fields of a process.
func (m *Manager) Edit(ctx context.Context, id string, edit ProcessEdit, actor string) error {
	return m.send(id, CtrlMsg{Type: CtrlEdit, Edit: edit, Actor: actor})
}

// Timer drives one of the setup, quality or rework sub-timers. Finishing
// setup also checks out everyone still present: the line is ready, and the
// headcount restarts so time-keeping stays accurate.
func (m *Manager) Timer(ctx context.Context, id string, op TimerOp, actor string) error {
	if err := m.send(id, CtrlMsg{Type: CtrlTimer, Timer: op, Actor: actor}); err != nil {
		return err
	}
	if op == TimerSetupFinish {
		if _, err := m.ledger.CheckOutAll(ctx, id, "setup completed", actor); err != nil {
			return fmt.Errorf("setup finish %s: close presence: %w", id, err)
		}
	}
	return nil
}

// RebaseCheckpoint folds elapsed theoretical progress into the checkpoint
// before a presence change, so time already elapsed is banked under the
// crew size that produced it. Part of presence.Lifecycle.
func (m *Manager) RebaseCheckpoint(ctx context.Context, processID string) error {
	return m.send(processID, CtrlMsg{Type: CtrlRebase})
}

// CrewChanged applies auto start/pause/resume after a presence change.
// Part of presence.Lifecycle.
func (m *Manager) CrewChanged(ctx context.Context, processID string, coreWorkers, totalWorkers int, coreDeparture bool, actor string) error {
	return m.send(processID, CtrlMsg{Type: CtrlCrew, Core: coreWorkers, Total: totalWorkers, CoreDeparture: coreDeparture, Actor: actor})
}

// Status returns the snapshot plus the live estimate for one process.
// Read-only: safe to poll from a display loop.
func (m *Manager) Status(ctx context.Context, id string) (Status, error) {
	h := m.getHandler(id)
	if h == nil {
		return Status{}, fmt.Errorf("unknown process: %s", id)
	}
	snap := h.Snapshot()
	crew, err := m.ledger.Crew(ctx, id)
	if err != nil {
		return Status{}, err
	}
	core := store.CountCore(crew)
	return Status{
		Snapshot:    snap,
		Estimate:    process.Compute(snap, core, m.clk.Now()),
		CoreWorkers: core,
		Crew:        len(crew),
	}, nil
}

// StatusAll returns statuses for every known process, ordered by id.
func (m *Manager) StatusAll(ctx context.Context) ([]Status, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		st, err := m.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// ReconcileOnce runs one reconciler pass over every process: grace
// activation between explicit transitions plus gauge refresh.
func (m *Manager) ReconcileOnce(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		if err := m.send(id, CtrlMsg{Type: CtrlTick}); err != nil {
			slog.Warn("reconcile tick failed", "process", id, "err", err)
		}
	}
}

// StartReconciler schedules ReconcileOnce at the given interval using a
// seconds-resolution cron. Calling it twice is a no-op.
func (m *Manager) StartReconciler(interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return nil
	}
	c := cron.New(cron.WithSeconds())
	id, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		m.ReconcileOnce(context.Background())
	})
	if err != nil {
		return err
	}
	m.cron = c
	m.cronID = id
	c.Start()
	return nil
}

// StopReconciler stops the background reconcile loop if running.
func (m *Manager) StopReconciler() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Shutdown stops the reconciler and every handler goroutine.
func (m *Manager) Shutdown() {
	m.StopReconciler()
	m.mu.Lock()
	entries := make([]*procEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.entries = make(map[string]*procEntry)
	m.mu.Unlock()
	for _, e := range entries {
		reply := make(chan error, 1)
		select {
		case e.h.ctrl <- CtrlMsg{Type: CtrlShutdown, Reply: reply}:
			select {
			case <-reply:
			case <-time.After(2 * time.Second):
			}
		default:
		}
		e.cancel()
	}
}
