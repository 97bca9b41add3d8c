package process

import "time"

// GraceWindow is the fixed trailing window that starts once remaining units
// first reach zero. While it runs, remaining time is a countdown that no
// longer depends on the production rate.
const GraceWindow = 15 * time.Minute

// graceAllowance is the standing 15-minute allowance folded into every
// non-grace remaining-time estimate. The source system always reported
// remaining time this way; kept for behavioral parity.
const graceAllowance = 15 * time.Minute

// Estimate is the derived view of a process at one instant. It is computed,
// never stored; two calls with identical inputs return identical values.
type Estimate struct {
	CompletedUnits   float64 `json:"completed_units"`
	RemainingUnits   float64 `json:"remaining_units"`
	RemainingSeconds float64 `json:"remaining_seconds"`
	PercentComplete  float64 `json:"percent_complete"`
	RatePerMinute    float64 `json:"rate_per_minute"`
	GracePeriod      bool    `json:"grace_period"`
	Overtime         bool    `json:"overtime"`
	OvertimeSeconds  float64 `json:"overtime_seconds"`
	// StaffRequired is set when the process is running but has no core
	// workers, so no remaining time can be estimated.
	StaffRequired bool `json:"staff_required"`
}

// Compute extrapolates progress from the checkpoint. Pure: no side effects,
// safe to call from a 1 Hz display loop.
//
// Progress only advances while the process is running, is of a time-based
// kind, and has at least one core worker; otherwise the checkpoint value is
// reported unchanged.
func Compute(s Snapshot, coreWorkers int, now time.Time) Estimate {
	now = now.UTC()
	est := Estimate{CompletedUnits: s.CompletedUnits}

	advancing := s.State == StateRunning && s.Kind.TimeBased() && coreWorkers > 0
	if advancing {
		elapsed := now.Sub(s.CheckpointAt)
		if elapsed < 0 {
			elapsed = 0
		}
		est.RatePerMinute = s.RatePerWorkerPerMinute * float64(coreWorkers)
		est.CompletedUnits = s.CompletedUnits + est.RatePerMinute/60*elapsed.Seconds()
	} else if s.State == StateRunning && s.Kind.TimeBased() && coreWorkers == 0 {
		// the grace countdown below does not need a crew; only the
		// rate-based estimate does
		est.StaffRequired = s.GraceStartedAt == nil
	}

	est.RemainingUnits = s.TargetUnits - est.CompletedUnits
	if est.RemainingUnits < 0 {
		est.RemainingUnits = 0
	}
	if s.TargetUnits > 0 {
		est.PercentComplete = est.CompletedUnits / s.TargetUnits * 100
		if est.PercentComplete > 100 {
			est.PercentComplete = 100
		}
	}

	// Remaining time: a fixed countdown once grace has started, otherwise
	// work time at the current rate plus the standing grace allowance.
	// The grace countdown is rate-independent and runs while the process
	// is running, with or without core workers.
	var remaining time.Duration
	switch {
	case s.State == StateRunning && s.GraceStartedAt != nil:
		est.GracePeriod = true
		remaining = s.GraceStartedAt.Add(GraceWindow).Sub(now)
	case !advancing:
		return est
	case est.RatePerMinute > 0:
		work := est.RemainingUnits / est.RatePerMinute // minutes
		remaining = time.Duration(work*float64(time.Minute)) + graceAllowance
	default:
		return est
	}

	if remaining < 0 {
		est.Overtime = true
		est.OvertimeSeconds = -remaining.Seconds()
	} else {
		est.RemainingSeconds = remaining.Seconds()
	}
	return est
}
