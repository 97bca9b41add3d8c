package process

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle state of a tracked production process.
type State string

const (
	StateRegistered State = "registered"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateFinished   State = "finished"
)

// Kind classifies a process. Only packaging lines compute time-based
// progress; other/annex processes are tracked for presence and timers only.
type Kind string

const (
	KindPackaging Kind = "packaging"
	KindOther     Kind = "other"
	KindAnnex     Kind = "annex"
)

// TimeBased reports whether theoretical progress is computed for this kind.
func (k Kind) TimeBased() bool { return k == KindPackaging }

// AutoStarts reports whether the first check-in starts a registered process.
func (k Kind) AutoStarts() bool { return k == KindOther || k == KindAnnex }

// ErrInvalidTransition is returned when an operation is not legal in the
// current lifecycle state (e.g. acting on a finished process). It is always
// reported to the caller, never fatal.
var ErrInvalidTransition = errors.New("invalid transition")

// Spec describes a production process to register.
type Spec struct {
	ID                     string  `json:"id" mapstructure:"id"`
	Name                   string  `json:"name" mapstructure:"name"`
	Kind                   Kind    `json:"kind" mapstructure:"kind"`
	TargetUnits            float64 `json:"target_units" mapstructure:"target_units"`
	RatePerWorkerPerMinute float64 `json:"rate_per_worker_per_minute" mapstructure:"rate_per_worker_per_minute"`
}

// Validate checks spec constraints before registration.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("spec requires id")
	}
	switch s.Kind {
	case KindPackaging, KindOther, KindAnnex:
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	if s.TargetUnits < 0 {
		return fmt.Errorf("target_units must be >= 0")
	}
	if s.RatePerWorkerPerMinute < 0 {
		return fmt.Errorf("rate_per_worker_per_minute must be >= 0")
	}
	return nil
}

// Snapshot is the full persisted state of one process: identity, target,
// checkpoint, lifecycle and the three sub-timers. The checkpoint pair
// (CompletedUnits, CheckpointAt) is the only basis for extrapolating
// progress; every state-changing transition rebases it.
type Snapshot struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Kind                   Kind       `json:"kind"`
	State                  State      `json:"state"`
	TargetUnits            float64    `json:"target_units"`
	RatePerWorkerPerMinute float64    `json:"rate_per_worker_per_minute"`
	CompletedUnits         float64    `json:"completed_units"`
	CheckpointAt           time.Time  `json:"checkpoint_at"`
	AutoPaused             bool       `json:"auto_paused"`
	GraceStartedAt         *time.Time `json:"grace_started_at,omitempty"`
	StartedAt              *time.Time `json:"started_at,omitempty"`
	FinishedAt             *time.Time `json:"finished_at,omitempty"`
	Setup                  SubTimer   `json:"setup"`
	Rework                 SubTimer   `json:"rework"`
	Quality                Quality    `json:"quality"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// New builds the initial snapshot for a spec. The process starts registered
// with a zero checkpoint taken at now.
func New(spec Spec, now time.Time) Snapshot {
	return Snapshot{
		ID:                     spec.ID,
		Name:                   spec.Name,
		Kind:                   spec.Kind,
		State:                  StateRegistered,
		TargetUnits:            spec.TargetUnits,
		RatePerWorkerPerMinute: spec.RatePerWorkerPerMinute,
		CheckpointAt:           now.UTC(),
		UpdatedAt:              now.UTC(),
	}
}

// Clone returns a deep copy; pointer timestamp fields are duplicated so the
// copy can be mutated and persisted without touching the original.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.GraceStartedAt = copyTime(s.GraceStartedAt)
	c.StartedAt = copyTime(s.StartedAt)
	c.FinishedAt = copyTime(s.FinishedAt)
	c.Setup.RunningSince = copyTime(s.Setup.RunningSince)
	c.Rework.RunningSince = copyTime(s.Rework.RunningSince)
	c.Quality.CalledAt = copyTime(s.Quality.CalledAt)
	c.Quality.ArrivedAt = copyTime(s.Quality.ArrivedAt)
	c.Quality.ApprovedAt = copyTime(s.Quality.ApprovedAt)
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
