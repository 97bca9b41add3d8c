package store

import (
	"context"
	"errors"
	"time"

	"github.com/taktline/takt/internal/process"
)

// ErrNotFound is returned when a process or presence record does not exist
// (or, for ClosePresence, is no longer open).
var ErrNotFound = errors.New("not found")

// Role classifies a worker's presence on a process. Only core workers count
// toward the theoretical production rate.
type Role string

const (
	RoleCore    Role = "core"
	RoleSupport Role = "support"
)

// PresenceRecord is one worker's attendance span on one process. Records are
// created on check-in, closed exactly once on check-out and never deleted,
// so the full movement log per process is recoverable.
type PresenceRecord struct {
	ID            string     `json:"id"`
	WorkerID      string     `json:"worker_id"`
	ProcessID     string     `json:"process_id"`
	Role          Role       `json:"role"`
	CheckInAt     time.Time  `json:"check_in_at"`
	CheckOutAt    *time.Time `json:"check_out_at,omitempty"`
	Justification string     `json:"justification,omitempty"`
}

// Active reports whether the record is still open.
func (r PresenceRecord) Active() bool { return r.CheckOutAt == nil }

// Store is the persistence collaborator: a checkpoint document per process
// plus the presence ledger. The store is the serialization point for
// checkpoint writes; the engine never mutates in-memory state before a
// write is acknowledged.
type Store interface {
	EnsureSchema(ctx context.Context) error

	SaveProcess(ctx context.Context, snap process.Snapshot) error
	GetProcess(ctx context.Context, id string) (process.Snapshot, error)
	ListProcesses(ctx context.Context) ([]process.Snapshot, error)

	InsertPresence(ctx context.Context, rec PresenceRecord) error
	// ClosePresence sets the check-out time of an open record. Closing a
	// record that is already closed returns ErrNotFound.
	ClosePresence(ctx context.Context, recordID string, at time.Time, justification string) error
	ActiveByProcess(ctx context.Context, processID string) ([]PresenceRecord, error)
	ActiveByWorker(ctx context.Context, workerID string) (PresenceRecord, bool, error)
	PresenceHistory(ctx context.Context, processID string) ([]PresenceRecord, error)

	Close() error
}

// CountCore returns how many of the given records are open core presences.
func CountCore(recs []PresenceRecord) int {
	n := 0
	for _, r := range recs {
		if r.Active() && r.Role == RoleCore {
			n++
		}
	}
	return n
}
