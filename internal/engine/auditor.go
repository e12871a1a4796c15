package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-autopilot/internal/metrics"
	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// Auditor keeps the incident record for one detection-to-resolution cycle.
type Auditor struct {
	sink TicketSink
	opts options
}

// NewAuditor wraps a ticket sink.
func NewAuditor(sink TicketSink, opts ...Option) *Auditor {
	return &Auditor{sink: sink, opts: buildOptions(opts)}
}

// LogIncident opens a High priority record for the detected issues.
func (a *Auditor) LogIncident(ctx context.Context, service string, issues []models.Issue) (string, error) {
	titles := make([]string, 0, len(issues))
	for _, issue := range issues {
		titles = append(titles, issue.Description())
	}
	title := fmt.Sprintf("Incident: %s - %s", service, strings.Join(titles, ", "))
	description := fmt.Sprintf("Detected issues in %s. Initiating automated resolution.", service)

	id, err := a.sink.Create(ctx, title, description, models.PriorityHigh)
	if err != nil {
		return "", fmt.Errorf("create incident: %w", err)
	}
	metrics.ObserveIncident(string(models.IncidentOpen))
	a.opts.recorder.Record(ctx, a.opts.event(service, EventIncident, "incident opened", map[string]string{
		"ticket": id,
		"title":  title,
	}))
	return id, nil
}

// LogDiagnosis appends the diagnosis without touching status.
func (a *Auditor) LogDiagnosis(ctx context.Context, id string, d models.Diagnosis) error {
	comment := fmt.Sprintf("Diagnosis Complete.\nRoot Cause: %s\nReasoning: %s\nRecommended Action: %s",
		d.RootCause, d.Reasoning, d.RecommendedAction)
	if err := a.sink.Update(ctx, id, models.CommentUpdate(comment)); err != nil {
		return fmt.Errorf("log diagnosis on %s: %w", id, err)
	}
	return nil
}

// LogAction closes the record. A successful escalation is Escalated rather than Resolved.
func (a *Auditor) LogAction(ctx context.Context, id string, plan models.Plan, success bool) error {
	status := OutcomeStatus(plan, success)
	comment := fmt.Sprintf("Action Execution: %s\nResult: %s", PrimaryAction(plan), resultWord(success))
	if err := a.sink.Update(ctx, id, models.StatusUpdate(status, comment)); err != nil {
		return fmt.Errorf("log action on %s: %w", id, err)
	}
	metrics.ObserveIncident(string(status))
	return nil
}

// OutcomeStatus maps an executed plan and its result to the closing incident status.
func OutcomeStatus(plan models.Plan, success bool) models.IncidentStatus {
	switch {
	case !success:
		return models.IncidentFailed
	case plan.Contains(models.ActionEscalate):
		return models.IncidentEscalated
	default:
		return models.IncidentResolved
	}
}

// PrimaryAction is the first remediation step of a plan, ignoring framework steps.
func PrimaryAction(plan models.Plan) models.Action {
	for _, step := range plan {
		if !step.IsFramework() {
			return step
		}
	}
	if len(plan) > 0 {
		return plan[len(plan)-1]
	}
	return ""
}
