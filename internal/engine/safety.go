package engine

import (
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

// Action names the gate knows about beyond the executable set.
const (
	ActionClearCache      models.Action = "clear_cache"
	ActionDeleteDatabase  models.Action = "delete_database"
	ActionShutdownCluster models.Action = "shutdown_cluster"
	ActionRmRfRoot        models.Action = "rm_rf_root"
)

// SafetyGate is a stateless allow/deny policy consulted before every non-framework step.
type SafetyGate struct {
	allow  map[models.Action]struct{}
	deny   map[models.Action]struct{}
	logger *slog.Logger
}

// NewSafetyGate builds the fixed policy.
func NewSafetyGate(logger *slog.Logger) *SafetyGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &SafetyGate{
		allow:  actionSet(models.ActionRestartService, models.ActionScaleUp, ActionClearCache, models.ActionEscalate),
		deny:   actionSet(ActionDeleteDatabase, ActionShutdownCluster, ActionRmRfRoot),
		logger: logger,
	}
}

func actionSet(actions ...models.Action) map[models.Action]struct{} {
	set := make(map[models.Action]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

// Validate reports whether action may run against service.
func (g *SafetyGate) Validate(action models.Action, service string) bool {
	return g.Check(action, service) == nil
}

// Check returns an error wrapping utils.ErrPolicyDenied for denied or unrecognised actions.
func (g *SafetyGate) Check(action models.Action, service string) error {
	if _, denied := g.deny[action]; denied {
		g.logger.Warn("blocked destructive action", slog.String("action", string(action)), slog.String("service", service))
		return fmt.Errorf("%w: %s is forbidden", utils.ErrPolicyDenied, action)
	}
	if _, ok := g.allow[action]; ok {
		g.logger.Debug("action allowed", slog.String("action", string(action)), slog.String("service", service))
		return nil
	}
	g.logger.Warn("blocked unknown action", slog.String("action", string(action)), slog.String("service", service))
	return fmt.Errorf("%w: %s is not recognised", utils.ErrPolicyDenied, action)
}
