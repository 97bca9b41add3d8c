package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/taktline/takt/internal/process"
)

// Memory is an in-memory Store used by tests and the default CLI setup.
type Memory struct {
	mu        sync.RWMutex
	processes map[string]process.Snapshot
	presence  map[string]PresenceRecord
	seq       []string // presence insertion order for stable history
}

func NewMemory() *Memory {
	return &Memory{
		processes: make(map[string]process.Snapshot),
		presence:  make(map[string]PresenceRecord),
	}
}

func (m *Memory) EnsureSchema(_ context.Context) error { return nil }
func (m *Memory) Close() error                         { return nil }

func (m *Memory) SaveProcess(_ context.Context, snap process.Snapshot) error {
	m.mu.Lock()
	m.processes[snap.ID] = snap.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetProcess(_ context.Context, id string) (process.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.processes[id]
	if !ok {
		return process.Snapshot{}, fmt.Errorf("process %s: %w", id, ErrNotFound)
	}
	return snap.Clone(), nil
}

func (m *Memory) ListProcesses(_ context.Context) ([]process.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]process.Snapshot, 0, len(m.processes))
	for _, snap := range m.processes {
		out = append(out, snap.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) InsertPresence(_ context.Context, rec PresenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.presence[rec.ID]; ok {
		return fmt.Errorf("presence record %s already exists", rec.ID)
	}
	m.presence[rec.ID] = rec
	m.seq = append(m.seq, rec.ID)
	return nil
}

func (m *Memory) ClosePresence(_ context.Context, recordID string, at time.Time, justification string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.presence[recordID]
	if !ok || !rec.Active() {
		return fmt.Errorf("open presence record %s: %w", recordID, ErrNotFound)
	}
	u := at.UTC()
	rec.CheckOutAt = &u
	rec.Justification = justification
	m.presence[recordID] = rec
	return nil
}

func (m *Memory) ActiveByProcess(_ context.Context, processID string) ([]PresenceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PresenceRecord
	for _, id := range m.seq {
		rec := m.presence[id]
		if rec.ProcessID == processID && rec.Active() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) ActiveByWorker(_ context.Context, workerID string) (PresenceRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.presence {
		if rec.WorkerID == workerID && rec.Active() {
			return rec, true, nil
		}
	}
	return PresenceRecord{}, false, nil
}

func (m *Memory) PresenceHistory(_ context.Context, processID string) ([]PresenceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PresenceRecord
	for _, id := range m.seq {
		rec := m.presence[id]
		if rec.ProcessID == processID {
			out = append(out, rec)
		}
	}
	return out, nil
}
