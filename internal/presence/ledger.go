package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/taktline/takt/internal/clock"
	"github.com/taktline/takt/internal/journal"
	"github.com/taktline/takt/internal/metrics"
	"github.com/taktline/takt/internal/store"
)

// ErrPresenceConflict is returned when a worker with an open presence record
// tries to check in again. The worker must check out first; there is never
// more than one open record per worker.
var ErrPresenceConflict = errors.New("worker already checked in")

// ErrNotCheckedIn is returned when a check-out targets a worker with no open
// record.
var ErrNotCheckedIn = errors.New("worker not checked in")

// Lifecycle receives crew-change notifications. RebaseCheckpoint runs before
// the record changes, while the pre-change crew count still holds, so the
// units produced under the old crew are banked at the old rate. CrewChanged
// runs after, with the new counts, and drives auto start/pause/resume.
// coreDeparture is true when the change was a core worker checking out: only
// a check-out that drains the core crew may auto-pause. A check-in, or a
// support check-out, never does.
type Lifecycle interface {
	RebaseCheckpoint(ctx context.Context, processID string) error
	CrewChanged(ctx context.Context, processID string, coreWorkers, totalWorkers int, coreDeparture bool, actor string) error
}

// Ledger manages worker presence records. All movement goes through check-in
// and check-out; records are closed, never deleted.
type Ledger struct {
	store store.Store
	sink  journal.Sink
	clock clock.Clock

	mu        sync.Mutex
	workerMu  map[string]*sync.Mutex
	lifecycle Lifecycle
}

func NewLedger(st store.Store, sink journal.Sink, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Ledger{
		store:    st,
		sink:     sink,
		clock:    clk,
		workerMu: make(map[string]*sync.Mutex),
	}
}

// SetLifecycle installs the crew-change receiver. Called once at wiring time;
// the ledger and the process manager reference each other, so one side is
// injected late.
func (l *Ledger) SetLifecycle(lc Lifecycle) { l.lifecycle = lc }

func (l *Ledger) lockWorker(workerID string) *sync.Mutex {
	l.mu.Lock()
	m, ok := l.workerMu[workerID]
	if !ok {
		m = &sync.Mutex{}
		l.workerMu[workerID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m
}

// CheckIn opens a presence record for the worker on the process. A worker
// with any open record anywhere is rejected with ErrPresenceConflict.
func (l *Ledger) CheckIn(ctx context.Context, workerID, processID string, role store.Role, actor string) (store.PresenceRecord, error) {
	if workerID == "" || processID == "" {
		return store.PresenceRecord{}, fmt.Errorf("check-in requires worker and process")
	}
	if role != store.RoleCore && role != store.RoleSupport {
		return store.PresenceRecord{}, fmt.Errorf("unknown role %q", role)
	}
	m := l.lockWorker(workerID)
	defer m.Unlock()

	open, found, err := l.store.ActiveByWorker(ctx, workerID)
	if err != nil {
		return store.PresenceRecord{}, err
	}
	if found {
		return store.PresenceRecord{}, fmt.Errorf("%w (process %s)", ErrPresenceConflict, open.ProcessID)
	}

	if err := l.lifecycle.RebaseCheckpoint(ctx, processID); err != nil {
		return store.PresenceRecord{}, err
	}

	rec := store.PresenceRecord{
		ID:        uuid.NewString(),
		WorkerID:  workerID,
		ProcessID: processID,
		Role:      role,
		CheckInAt: l.clock.Now(),
	}
	if err := l.store.InsertPresence(ctx, rec); err != nil {
		return store.PresenceRecord{}, err
	}

	l.notifyCrewChanged(ctx, processID, actor, false)
	metrics.IncCheckIn(processID, string(role))
	l.emit(ctx, journal.Event{
		Type:       journal.EventCheckIn,
		OccurredAt: rec.CheckInAt,
		ProcessID:  processID,
		WorkerID:   workerID,
		Actor:      actor,
		Detail:     string(role),
	})
	return rec, nil
}

// CheckOut closes the worker's open record. A justification is required; the
// canned texts come from the catalog, free text is allowed.
func (l *Ledger) CheckOut(ctx context.Context, workerID, justification, actor string) (store.PresenceRecord, error) {
	if justification == "" {
		return store.PresenceRecord{}, fmt.Errorf("check-out requires a justification")
	}
	m := l.lockWorker(workerID)
	defer m.Unlock()

	rec, found, err := l.store.ActiveByWorker(ctx, workerID)
	if err != nil {
		return store.PresenceRecord{}, err
	}
	if !found {
		return store.PresenceRecord{}, ErrNotCheckedIn
	}

	if err := l.lifecycle.RebaseCheckpoint(ctx, rec.ProcessID); err != nil {
		return store.PresenceRecord{}, err
	}

	now := l.clock.Now()
	if err := l.store.ClosePresence(ctx, rec.ID, now, justification); err != nil {
		return store.PresenceRecord{}, err
	}
	rec.CheckOutAt = &now
	rec.Justification = justification

	l.notifyCrewChanged(ctx, rec.ProcessID, actor, rec.Role == store.RoleCore)
	l.emit(ctx, journal.Event{
		Type:          journal.EventCheckOut,
		OccurredAt:    now,
		ProcessID:     rec.ProcessID,
		WorkerID:      workerID,
		Actor:         actor,
		Justification: justification,
	})
	return rec, nil
}

// CheckOutAll closes every open record on the process with one shared
// justification and returns how many were closed. Records already closed by
// a racing check-out are skipped. No per-worker journal events are emitted;
// callers record the aggregate.
func (l *Ledger) CheckOutAll(ctx context.Context, processID, justification, actor string) (int, error) {
	if err := l.lifecycle.RebaseCheckpoint(ctx, processID); err != nil {
		return 0, err
	}

	active, err := l.store.ActiveByProcess(ctx, processID)
	if err != nil {
		return 0, err
	}
	now := l.clock.Now()
	closed := 0
	coreLeft := false
	for _, rec := range active {
		m := l.lockWorker(rec.WorkerID)
		err := l.store.ClosePresence(ctx, rec.ID, now, justification)
		m.Unlock()
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return closed, err
		}
		closed++
		if rec.Role == store.RoleCore {
			coreLeft = true
		}
	}

	l.notifyCrewChanged(ctx, processID, actor, coreLeft)
	return closed, nil
}

// ActiveProcess returns the worker's open record, if any.
func (l *Ledger) ActiveProcess(ctx context.Context, workerID string) (store.PresenceRecord, bool, error) {
	return l.store.ActiveByWorker(ctx, workerID)
}

// Crew returns the open records on a process.
func (l *Ledger) Crew(ctx context.Context, processID string) ([]store.PresenceRecord, error) {
	return l.store.ActiveByProcess(ctx, processID)
}

// CoreCount returns how many core workers are currently checked in.
func (l *Ledger) CoreCount(ctx context.Context, processID string) (int, error) {
	recs, err := l.store.ActiveByProcess(ctx, processID)
	if err != nil {
		return 0, err
	}
	return store.CountCore(recs), nil
}

// History returns the full movement log for a process, open and closed.
func (l *Ledger) History(ctx context.Context, processID string) ([]store.PresenceRecord, error) {
	return l.store.PresenceHistory(ctx, processID)
}

func (l *Ledger) notifyCrewChanged(ctx context.Context, processID, actor string, coreDeparture bool) {
	recs, err := l.store.ActiveByProcess(ctx, processID)
	if err != nil {
		slog.Warn("crew count failed", "process", processID, "err", err)
		return
	}
	core := store.CountCore(recs)
	metrics.SetActiveCoreWorkers(processID, core)
	if err := l.lifecycle.CrewChanged(ctx, processID, core, len(recs), coreDeparture, actor); err != nil {
		slog.Warn("crew change hook failed", "process", processID, "err", err)
	}
}

func (l *Ledger) emit(ctx context.Context, e journal.Event) {
	if l.sink == nil {
		return
	}
	if err := l.sink.Send(ctx, e); err != nil {
		slog.Warn("journal send failed", "type", string(e.Type), "process", e.ProcessID, "err", err)
	}
}
