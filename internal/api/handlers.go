package api

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/models"
)

type fields map[string]*structpb.Value

func str(s string) *structpb.Value    { return structpb.NewStringValue(s) }
func num(f float64) *structpb.Value   { return structpb.NewNumberValue(f) }
func boolean(b bool) *structpb.Value  { return structpb.NewBoolValue(b) }
func object(f fields) *structpb.Value { return structpb.NewStructValue(&structpb.Struct{Fields: f}) }

func timestamp(t time.Time) *structpb.Value {
	if t.IsZero() {
		return structpb.NewNullValue()
	}
	return str(t.UTC().Format(time.RFC3339Nano))
}

func list(values []*structpb.Value) *structpb.Value {
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func strList(items []string) *structpb.Value {
	values := make([]*structpb.Value, 0, len(items))
	for _, s := range items {
		values = append(values, str(s))
	}
	return list(values)
}

// wrap puts values under key in a top-level response message.
func wrap(key string, values []*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: fields{key: list(values)}}
}

// ToProtoState renders a service's reliability state.
func ToProtoState(s models.ServiceState) *structpb.Struct {
	return &structpb.Struct{Fields: stateFields(s)}
}

func stateFields(s models.ServiceState) fields {
	return fields{
		"service":    str(s.Service),
		"state":      str(string(s.State)),
		"last_path":  str(string(s.LastPath)),
		"updated_at": timestamp(s.UpdatedAt),
	}
}

// ToProtoStates renders every tracked service.
func ToProtoStates(states []models.ServiceState) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(states))
	for _, s := range states {
		values = append(values, object(stateFields(s)))
	}
	return wrap("states", values)
}

// ToProtoIncident renders an incident record with its comment log.
func ToProtoIncident(rec models.IncidentRecord) *structpb.Struct {
	return &structpb.Struct{Fields: incidentFields(rec)}
}

func incidentFields(rec models.IncidentRecord) fields {
	comments := make([]*structpb.Value, 0, len(rec.Comments))
	for _, c := range rec.Comments {
		comments = append(comments, object(fields{"timestamp": timestamp(c.Timestamp), "text": str(c.Text)}))
	}
	return fields{
		"id":          str(rec.ID),
		"title":       str(rec.Title),
		"description": str(rec.Description),
		"priority":    str(string(rec.Priority)),
		"status":      str(string(rec.Status)),
		"created_at":  timestamp(rec.CreatedAt),
		"comments":    list(comments),
	}
}

// ToProtoIncidents renders a list of incidents.
func ToProtoIncidents(recs []models.IncidentRecord) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(recs))
	for _, rec := range recs {
		values = append(values, object(incidentFields(rec)))
	}
	return wrap("incidents", values)
}

// ToProtoEvents renders cycle log entries.
func ToProtoEvents(events []engine.Event) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(events))
	for _, ev := range events {
		f := fields{
			"time":    timestamp(ev.Time),
			"service": str(ev.Service),
			"kind":    str(string(ev.Kind)),
			"message": str(ev.Message),
		}
		if len(ev.Fields) > 0 {
			extra := make(fields, len(ev.Fields))
			for k, v := range ev.Fields {
				extra[k] = str(v)
			}
			f["fields"] = object(extra)
		}
		values = append(values, object(f))
	}
	return wrap("events", values)
}

// ToProtoReport renders the outcome of one tick.
func ToProtoReport(r engine.TickReport) *structpb.Struct {
	f := fields{
		"service":     str(r.Service),
		"path":        str(string(r.Path)),
		"state":       str(string(r.State)),
		"ok":          boolean(r.OK()),
		"plan":        strList(r.Plan.Strings()),
		"duration_ms": num(float64(r.Duration) / float64(time.Millisecond)),
	}
	if r.Forecast != nil {
		f["forecast"] = object(fields{
			"metric":          str(string(r.Forecast.Metric)),
			"ticks_to_breach": num(r.Forecast.TicksToBreach),
			"current_value":   num(r.Forecast.CurrentValue),
			"slope":           num(r.Forecast.Slope),
			"risk_level":      str(string(r.Forecast.RiskLevel)),
		})
	}
	if len(r.Issues) > 0 {
		issues := make([]string, 0, len(r.Issues))
		for _, i := range r.Issues {
			issues = append(issues, i.Description())
		}
		f["issues"] = strList(issues)
	}
	if r.Diagnosis != nil {
		f["diagnosis"] = object(fields{
			"root_cause":         str(r.Diagnosis.RootCause),
			"recommended_action": str(string(r.Diagnosis.RecommendedAction)),
			"confidence":         num(r.Diagnosis.Confidence),
			"reasoning":          str(r.Diagnosis.Reasoning),
		})
	}
	if r.Execution != nil {
		exec := fields{
			"success":     boolean(r.Execution.Success),
			"state":       str(string(r.Execution.State)),
			"rolled_back": boolean(r.Execution.RolledBack),
		}
		if r.Execution.FailedStep != "" {
			exec["failed_step"] = str(string(r.Execution.FailedStep))
		}
		if r.Execution.Err != nil {
			exec["error"] = str(r.Execution.Err.Error())
		}
		f["execution"] = object(exec)
	}
	if r.IncidentID != "" {
		f["incident_id"] = str(r.IncidentID)
	}
	if r.Err != nil {
		f["error"] = str(r.Err.Error())
	}
	return &structpb.Struct{Fields: f}
}
