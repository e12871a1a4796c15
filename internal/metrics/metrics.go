package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels work that completed as intended.
	OutcomeSuccess = "success"
	// OutcomeError labels failed work, including rollbacks and denied steps.
	OutcomeError = "error"
)

var (
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_autopilot",
			Name:      "ticks_total",
			Help:      "Controller ticks, partitioned by pipeline path and outcome.",
		},
		[]string{"path", "outcome"},
	)

	tickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_autopilot",
			Name:      "tick_seconds",
			Help:      "Controller tick latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	plansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_autopilot",
			Name:      "plans_total",
			Help:      "Executed remediation plans by origin (forecast, diagnosis) and outcome.",
		},
		[]string{"origin", "outcome"},
	)

	planStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_autopilot",
			Name:      "plan_steps_total",
			Help:      "Executed plan steps by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	rollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_autopilot",
			Name:      "rollbacks_total",
			Help:      "Rollbacks attempted after a failed step, by outcome.",
		},
		[]string{"outcome"},
	)

	safetyDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_autopilot",
			Name:      "safety_denials_total",
			Help:      "Plan steps rejected by the safety policy.",
		},
		[]string{"action"},
	)

	incidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_autopilot",
			Name:      "incidents_total",
			Help:      "Incident records by status transition.",
		},
		[]string{"status"},
	)

	ticksDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_autopilot",
			Name:      "ticks_dropped_total",
			Help:      "Ticks skipped because a remediation was already in flight for the service.",
		},
		[]string{"service"},
	)

	reliabilityState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mirador_autopilot",
			Name:      "reliability_state",
			Help:      "1 for the current reliability state of each service, 0 otherwise.",
		},
		[]string{"service", "state"},
	)
)

// Register attaches autopilot collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		ticksTotal,
		tickDurationSeconds,
		plansTotal,
		planStepsTotal,
		rollbacksTotal,
		safetyDenialsTotal,
		incidentsTotal,
		ticksDroppedTotal,
		reliabilityState,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func outcomeLabel(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeError
}

// ObserveTick records a tick duration along with the path it took.
func ObserveTick(duration time.Duration, path string, ok bool) {
	ticksTotal.WithLabelValues(path, outcomeLabel(ok)).Inc()
	if duration < 0 {
		duration = 0
	}
	tickDurationSeconds.Observe(duration.Seconds())
}

// ObservePlan counts one plan execution.
func ObservePlan(origin string, ok bool) {
	plansTotal.WithLabelValues(origin, outcomeLabel(ok)).Inc()
}

// ObserveStep counts one executed plan step.
func ObserveStep(action string, ok bool) {
	planStepsTotal.WithLabelValues(action, outcomeLabel(ok)).Inc()
}

// ObserveRollback counts one rollback attempt.
func ObserveRollback(ok bool) {
	rollbacksTotal.WithLabelValues(outcomeLabel(ok)).Inc()
}

// ObserveDenial counts a safety policy rejection.
func ObserveDenial(action string) {
	safetyDenialsTotal.WithLabelValues(action).Inc()
}

// ObserveIncident counts an incident entering status.
func ObserveIncident(status string) {
	incidentsTotal.WithLabelValues(status).Inc()
}

// ObserveDroppedTick counts a tick skipped for service.
func ObserveDroppedTick(service string) {
	ticksDroppedTotal.WithLabelValues(service).Inc()
}

// SetState flags current as the active state for service and clears the others.
func SetState(service, current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		reliabilityState.WithLabelValues(service, s).Set(v)
	}
}
