package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/miradorstack/mirador-autopilot/internal/api"
	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// StateReader exposes controller state.
type StateReader interface {
	State(service string) (models.ServiceState, bool)
	States() []models.ServiceState
}

// IncidentReader reads the incident store.
type IncidentReader interface {
	Get(ctx context.Context, id string) (models.IncidentRecord, error)
	List(ctx context.Context) ([]models.IncidentRecord, error)
}

// EventReader reads the per-service cycle log.
type EventReader interface {
	Events(service string, limit int) []engine.Event
}

// Trigger runs a tick on demand.
type Trigger interface {
	Trigger(ctx context.Context, service string) (engine.TickReport, error)
}

// AutopilotService implements the Autopilot gRPC service.
type AutopilotService struct {
	api.UnimplementedAutopilotServer

	logger    *slog.Logger
	states    StateReader
	incidents IncidentReader
	events    EventReader
	trigger   Trigger
	known     map[string]struct{}
}

// NewAutopilotService constructs the service facade. services restricts which names RunTick accepts.
func NewAutopilotService(logger *slog.Logger, states StateReader, incidents IncidentReader, events EventReader, trigger Trigger, services []string) *AutopilotService {
	if logger == nil {
		logger = slog.Default()
	}
	known := make(map[string]struct{}, len(services))
	for _, s := range services {
		known[s] = struct{}{}
	}
	return &AutopilotService{
		logger:    logger,
		states:    states,
		incidents: incidents,
		events:    events,
		trigger:   trigger,
		known:     known,
	}
}

func serviceArg(req *wrapperspb.StringValue, what string) (string, error) {
	if req == nil {
		return "", status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	v := strings.TrimSpace(req.GetValue())
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", what)
	}
	return v, nil
}

func (s *AutopilotService) GetState(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	service, err := serviceArg(req, "service")
	if err != nil {
		return nil, err
	}
	st, ok := s.states.State(service)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no state recorded for %s", service)
	}
	return api.ToProtoState(st), nil
}

func (s *AutopilotService) ListStates(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return api.ToProtoStates(s.states.States()), nil
}

func (s *AutopilotService) ListIncidents(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.incidents == nil {
		return nil, status.Error(codes.FailedPrecondition, "incident store not configured")
	}
	recs, err := s.incidents.List(ctx)
	if err != nil {
		s.logger.Error("list incidents failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to list incidents")
	}
	return api.ToProtoIncidents(recs), nil
}

func (s *AutopilotService) GetIncident(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := serviceArg(req, "incident id")
	if err != nil {
		return nil, err
	}
	if s.incidents == nil {
		return nil, status.Error(codes.FailedPrecondition, "incident store not configured")
	}
	rec, err := s.incidents.Get(ctx, id)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "incident %s not found", id)
	}
	if err != nil {
		s.logger.Error("get incident failed", slog.String("id", id), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to read incident")
	}
	return api.ToProtoIncident(rec), nil
}

func (s *AutopilotService) ListEvents(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	service := strings.TrimSpace(req.GetFields()["service"].GetStringValue())
	if service == "" {
		return nil, status.Error(codes.InvalidArgument, "service is required")
	}
	limit := int(req.GetFields()["limit"].GetNumberValue())
	switch {
	case limit <= 0:
		limit = defaultEventLimit
	case limit > maxEventLimit:
		limit = maxEventLimit
	}
	if s.events == nil {
		return api.ToProtoEvents(nil), nil
	}
	return api.ToProtoEvents(s.events.Events(service, limit)), nil
}

// RunTick evaluates one service immediately and returns the tick report.
func (s *AutopilotService) RunTick(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	service, err := serviceArg(req, "service")
	if err != nil {
		return nil, err
	}
	if _, ok := s.known[service]; !ok {
		return nil, status.Errorf(codes.NotFound, "service %s is not supervised", service)
	}
	if s.trigger == nil {
		return nil, status.Error(codes.FailedPrecondition, "tick trigger not configured")
	}

	s.logger.Debug("RunTick called", slog.String("service", service))
	report, err := s.trigger.Trigger(ctx, service)
	switch {
	case errors.Is(err, utils.ErrInFlight):
		return nil, status.Errorf(codes.Aborted, "remediation already in flight for %s", service)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, status.FromContextError(err).Err()
	case err != nil:
		s.logger.Error("run tick failed", slog.String("service", service), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "tick failed")
	}
	return api.ToProtoReport(report), nil
}
