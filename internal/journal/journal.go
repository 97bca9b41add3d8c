package journal

import (
	"context"
	"time"
)

// EventType identifies a lifecycle or presence event.
type EventType string

const (
	EventRegister   EventType = "register"
	EventStart      EventType = "start"
	EventPause      EventType = "pause"
	EventResume     EventType = "resume"
	EventAutoPause  EventType = "auto_pause"
	EventAutoResume EventType = "auto_resume"
	EventGrace      EventType = "grace"
	EventAdjust     EventType = "adjust"
	EventFinish     EventType = "finish"

	EventCheckIn  EventType = "check_in"
	EventCheckOut EventType = "check_out"
	// EventBulkExit is a single aggregate event for a mass checkout; the
	// Count field carries how many workers were checked out.
	EventBulkExit EventType = "bulk_exit"

	EventSetupStart    EventType = "setup_start"
	EventSetupPause    EventType = "setup_pause"
	EventSetupFinish   EventType = "setup_finish"
	EventQualityCall   EventType = "quality_call"
	EventQualityArrive EventType = "quality_arrive"
	EventQualityOK     EventType = "quality_approve"
	EventQualityReset  EventType = "quality_reset"
	EventReworkStart   EventType = "rework_start"
	EventReworkFinish  EventType = "rework_finish"
)

// Event is one entry in the append-only per-process log.
type Event struct {
	Type          EventType `json:"type"`
	OccurredAt    time.Time `json:"occurred_at"`
	ProcessID     string    `json:"process_id"`
	WorkerID      string    `json:"worker_id,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Justification string    `json:"justification,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	Count         int       `json:"count,omitempty"`
}

// Sink is a destination for journal events. Implementations must be safe
// for concurrent use. Send failures are logged by the caller, never fatal:
// the journal is observability, not the system of record.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Fanout sends every event to each sink, returning the first error.
type Fanout []Sink

func (f Fanout) Send(ctx context.Context, e Event) error {
	var first error
	for _, s := range f {
		if err := s.Send(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
