package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

func TestPlannerForecastPlans(t *testing.T) {
	cases := map[models.MetricName]models.Plan{
		models.MetricMemory:  {models.ActionCreateSnapshot, models.ActionRestartService, models.ActionValidateHealth},
		models.MetricCPU:     {models.ActionCreateSnapshot, models.ActionScaleUp, models.ActionValidateHealth},
		models.MetricLatency: {models.ActionCreateSnapshot, models.ActionScaleUp, models.ActionValidateHealth},
	}
	for metric, want := range cases {
		got := NewPlanner().Plan(PlanContext{Forecast: &models.Forecast{Metric: metric}})
		assert.Equal(t, want, got, string(metric))
	}
}

func TestPlannerDiagnosisPlans(t *testing.T) {
	cases := []struct {
		cause string
		want  models.Plan
	}{
		{"Memory Leak / OOM", models.Plan{models.ActionCreateSnapshot, models.ActionRestartService, models.ActionValidateHealth}},
		{"High Traffic Load", models.Plan{models.ActionCreateSnapshot, models.ActionScaleUp, models.ActionValidateHealth}},
		// matched on the label, not on the recommended action
		{"Dependency Failure", models.Plan{models.ActionCreateSnapshot, models.ActionEscalate, models.ActionValidateHealth}},
		{"Unknown", models.Plan{models.ActionCreateSnapshot, models.ActionEscalate, models.ActionValidateHealth}},
	}
	for _, tc := range cases {
		d := models.Diagnosis{RootCause: tc.cause, RecommendedAction: models.ActionRestartService}
		assert.Equal(t, tc.want, NewPlanner().Plan(PlanContext{Diagnosis: &d}), tc.cause)
	}
}

func TestPlannerPlansAreFramed(t *testing.T) {
	contexts := []PlanContext{
		{Forecast: &models.Forecast{Metric: models.MetricCPU}},
		{Forecast: &models.Forecast{Metric: models.MetricErrorRate}},
		{Diagnosis: &models.Diagnosis{RootCause: "anything"}},
	}
	gate := NewSafetyGate(nil)
	known := []models.Action{
		models.ActionCreateSnapshot, models.ActionRestartService, models.ActionScaleUp,
		models.ActionValidateHealth, models.ActionEscalate,
	}
	for _, pc := range contexts {
		plan := NewPlanner().Plan(pc)
		assert.Equal(t, models.ActionCreateSnapshot, plan[0])
		assert.Equal(t, models.ActionValidateHealth, plan[len(plan)-1])
		for _, step := range plan {
			assert.Contains(t, known, step)
			if !step.IsFramework() {
				assert.True(t, gate.Validate(step, "checkout"))
			}
		}
	}
}

func TestPlannerRejectsAmbiguousContext(t *testing.T) {
	assert.Empty(t, NewPlanner().Plan(PlanContext{}))
	assert.Empty(t, NewPlanner().Plan(PlanContext{
		Forecast:  &models.Forecast{Metric: models.MetricCPU},
		Diagnosis: &models.Diagnosis{RootCause: "High Traffic Load"},
	}))
}
