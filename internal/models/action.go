package models

import "strings"

// Action is one remediation step kind.
type Action string

const (
	ActionCreateSnapshot Action = "create_snapshot"
	ActionRestartService Action = "restart_service"
	ActionScaleUp        Action = "scale_up"
	ActionValidateHealth Action = "validate_health"
	ActionEscalate       Action = "escalate"
)

// IsFramework reports whether the step is owned by the executor itself
// rather than subject to the safety policy.
func (a Action) IsFramework() bool {
	return a == ActionCreateSnapshot || a == ActionValidateHealth
}

// Plan is an ordered remediation sequence. Treat it as immutable once built.
type Plan []Action

// Contains reports whether the plan includes the action.
func (p Plan) Contains(a Action) bool {
	for _, step := range p {
		if step == a {
			return true
		}
	}
	return false
}

// Strings returns the step names in order.
func (p Plan) Strings() []string {
	out := make([]string, 0, len(p))
	for _, step := range p {
		out = append(out, string(step))
	}
	return out
}

func (p Plan) String() string {
	return "[" + strings.Join(p.Strings(), ", ") + "]"
}
