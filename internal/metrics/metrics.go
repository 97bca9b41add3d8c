package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "takt",
			Subsystem: "process",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between different process states.",
		}, []string{"process", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "takt",
			Subsystem: "process",
			Name:      "current_state",
			Help:      "Current state of processes (1 = active state, 0 = inactive).",
		}, []string{"process", "state"},
	)
	completedUnits = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "takt",
			Subsystem: "process",
			Name:      "completed_units",
			Help:      "Units completed at the last checkpoint per process.",
		}, []string{"process"},
	)
	activeCoreWorkers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "takt",
			Subsystem: "presence",
			Name:      "active_core_workers",
			Help:      "Core workers currently checked in per process.",
		}, []string{"process"},
	)
	overtimeProcesses = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "takt",
			Subsystem: "process",
			Name:      "overtime",
			Help:      "Whether the process estimate is past due (1) or not (0).",
		}, []string{"process"},
	)
	graceActivations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "takt",
			Subsystem: "process",
			Name:      "grace_activations_total",
			Help:      "Number of grace countdown activations.",
		}, []string{"process"},
	)
	bulkExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "takt",
			Subsystem: "presence",
			Name:      "bulk_exits_total",
			Help:      "Number of authorized bulk exits.",
		}, []string{"process"},
	)
	checkIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "takt",
			Subsystem: "presence",
			Name:      "check_ins_total",
			Help:      "Number of worker check-ins per process.",
		}, []string{"process", "role"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{stateTransitions, currentStates, completedUnits, activeCoreWorkers, overtimeProcesses, graceActivations, bulkExits, checkIns}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordStateTransition(process, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(process, from, to).Inc()
	}
}

func SetCurrentState(process, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(process, state).Set(value)
	}
}

func SetCompletedUnits(process string, units float64) {
	if regOK.Load() {
		completedUnits.WithLabelValues(process).Set(units)
	}
}

func SetActiveCoreWorkers(process string, n int) {
	if regOK.Load() {
		activeCoreWorkers.WithLabelValues(process).Set(float64(n))
	}
}

func SetOvertime(process string, overtime bool) {
	if regOK.Load() {
		var value float64
		if overtime {
			value = 1
		}
		overtimeProcesses.WithLabelValues(process).Set(value)
	}
}

func IncGraceActivation(process string) {
	if regOK.Load() {
		graceActivations.WithLabelValues(process).Inc()
	}
}

func IncBulkExit(process string) {
	if regOK.Load() {
		bulkExits.WithLabelValues(process).Inc()
	}
}

func IncCheckIn(process, role string) {
	if regOK.Load() {
		checkIns.WithLabelValues(process, role).Inc()
	}
}
