package process

import (
	"fmt"
	"time"
)

// QualityState is the inspection workflow state.
type QualityState string

const (
	QualityNone       QualityState = "none"
	QualityWaiting    QualityState = "waiting"
	QualityInspecting QualityState = "inspecting"
	QualityApproved   QualityState = "approved"
)

// Quality tracks the inspection call/arrive/approve workflow with one
// timestamp per step. Reset returns to None and clears all three.
type Quality struct {
	State      QualityState `json:"state"`
	CalledAt   *time.Time   `json:"called_at,omitempty"`
	ArrivedAt  *time.Time   `json:"arrived_at,omitempty"`
	ApprovedAt *time.Time   `json:"approved_at,omitempty"`
}

// Call requests an inspection. Only valid from None.
func (q *Quality) Call(now time.Time) error {
	if q.State != "" && q.State != QualityNone {
		return fmt.Errorf("%w: inspection already %s", ErrInvalidTransition, q.State)
	}
	u := now.UTC()
	q.State = QualityWaiting
	q.CalledAt = &u
	return nil
}

// Arrive records the inspector's arrival.
func (q *Quality) Arrive(now time.Time) error {
	if q.State != QualityWaiting {
		return fmt.Errorf("%w: inspection not waiting", ErrInvalidTransition)
	}
	u := now.UTC()
	q.State = QualityInspecting
	q.ArrivedAt = &u
	return nil
}

// Approve completes the inspection.
func (q *Quality) Approve(now time.Time) error {
	if q.State != QualityInspecting {
		return fmt.Errorf("%w: inspection not in progress", ErrInvalidTransition)
	}
	u := now.UTC()
	q.State = QualityApproved
	q.ApprovedAt = &u
	return nil
}

// Reset clears the workflow from any state.
func (q *Quality) Reset() {
	q.State = QualityNone
	q.CalledAt = nil
	q.ArrivedAt = nil
	q.ApprovedAt = nil
}

// Elapsed is the display timer: time waiting for the inspector while
// Waiting, time under inspection while Inspecting, zero otherwise.
func (q Quality) Elapsed(now time.Time) time.Duration {
	switch q.State {
	case QualityWaiting:
		if q.CalledAt != nil {
			return now.UTC().Sub(*q.CalledAt)
		}
	case QualityInspecting:
		if q.ArrivedAt != nil {
			return now.UTC().Sub(*q.ArrivedAt)
		}
	}
	return 0
}
