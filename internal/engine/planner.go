package engine

import (
	"strings"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// PlanContext carries exactly one of a forecast or a diagnosis.
type PlanContext struct {
	Forecast  *models.Forecast
	Diagnosis *models.Diagnosis
}

// Origin names the context shape, used as a metrics label.
func (c PlanContext) Origin() string {
	switch {
	case c.Forecast != nil && c.Diagnosis == nil:
		return "forecast"
	case c.Diagnosis != nil && c.Forecast == nil:
		return "diagnosis"
	default:
		return "none"
	}
}

// Planner turns a forecast or diagnosis into an ordered remediation plan.
type Planner struct{}

// NewPlanner returns a Planner.
func NewPlanner() Planner { return Planner{} }

// Plan returns an empty plan unless exactly one context shape is present.
func (Planner) Plan(pc PlanContext) models.Plan {
	switch pc.Origin() {
	case "forecast":
		return forecastPlan(*pc.Forecast)
	case "diagnosis":
		return diagnosisPlan(*pc.Diagnosis)
	default:
		return models.Plan{}
	}
}

func forecastPlan(fc models.Forecast) models.Plan {
	plan := models.Plan{models.ActionCreateSnapshot}
	switch fc.Metric {
	case models.MetricMemory:
		plan = append(plan, models.ActionRestartService)
	case models.MetricCPU, models.MetricLatency:
		plan = append(plan, models.ActionScaleUp)
	}
	return append(plan, models.ActionValidateHealth)
}

// diagnosisPlan matches on the root cause label, so a cause that names neither
// memory nor load escalates even when the diagnosis recommended something else.
func diagnosisPlan(d models.Diagnosis) models.Plan {
	plan := models.Plan{models.ActionCreateSnapshot}
	cause := strings.ToLower(d.RootCause)
	switch {
	case strings.Contains(cause, "memory"):
		plan = append(plan, models.ActionRestartService)
	case strings.Contains(cause, "load"):
		plan = append(plan, models.ActionScaleUp)
	default:
		plan = append(plan, models.ActionEscalate)
	}
	return append(plan, models.ActionValidateHealth)
}
