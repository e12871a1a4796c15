package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

type fakeTelemetry struct {
	mu        sync.Mutex
	snapshots map[string]models.MetricSnapshot
	history   map[string]map[models.MetricName][]float64
	logs      map[string][]string
	logsErr   error
	histErr   error
	logLines  int
	snapCalls int
}

func newFakeTelemetry() *fakeTelemetry {
	return &fakeTelemetry{
		snapshots: map[string]models.MetricSnapshot{},
		history:   map[string]map[models.MetricName][]float64{},
		logs:      map[string][]string{},
	}
}

func (f *fakeTelemetry) set(service string, snap models.MetricSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[service] = snap
}

func (f *fakeTelemetry) setMetric(service string, metric models.MetricName, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[service][metric] = v
}

func (f *fakeTelemetry) trend(service string, metric models.MetricName, values ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.history[service] == nil {
		f.history[service] = map[models.MetricName][]float64{}
	}
	f.history[service][metric] = values
}

func (f *fakeTelemetry) CurrentSnapshot(_ context.Context, service string) (models.MetricSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapCalls++
	snap, ok := f.snapshots[service]
	if !ok {
		return nil, utils.NotFound("fake.snapshot", service)
	}
	return snap.Clone(), nil
}

func (f *fakeTelemetry) History(_ context.Context, service string, metric models.MetricName, window int) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.histErr != nil {
		return nil, f.histErr
	}
	h := f.history[service][metric]
	if len(h) > window {
		h = h[len(h)-window:]
	}
	return append([]float64(nil), h...), nil
}

func (f *fakeTelemetry) RecentLogs(_ context.Context, service string, maxLines int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logLines = maxLines
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return append([]string(nil), f.logs[service]...), nil
}

type fakeInfra struct {
	mu         sync.Mutex
	replicas   map[string]int
	snapshots  map[models.SnapshotID]snapshotState
	calls      []string
	restored   []models.SnapshotID
	restartErr error
	blockOn    string
	onRestart  func(service string)
	onScale    func(service string, replicas int)
	seq        int
}

type snapshotState struct {
	service  string
	replicas int
}

func newFakeInfra() *fakeInfra {
	return &fakeInfra{
		replicas:  map[string]int{"checkout": 2},
		snapshots: map[models.SnapshotID]snapshotState{},
	}
}

func (f *fakeInfra) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeInfra) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeInfra) block(ctx context.Context, op string) error {
	if f.blockOn == op {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeInfra) Status(ctx context.Context, service string) (models.ServiceStatus, error) {
	f.record("status")
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.ServiceStatus{Service: service, State: "Running", Replicas: f.replicas[service]}, nil
}

func (f *fakeInfra) Restart(ctx context.Context, service string) error {
	f.record("restart")
	if err := f.block(ctx, "restart"); err != nil {
		return err
	}
	if f.restartErr != nil {
		return f.restartErr
	}
	if f.onRestart != nil {
		f.onRestart(service)
	}
	return nil
}

func (f *fakeInfra) Scale(ctx context.Context, service string, replicas int) error {
	f.record(fmt.Sprintf("scale:%d", replicas))
	if err := f.block(ctx, "scale"); err != nil {
		return err
	}
	f.mu.Lock()
	f.replicas[service] = replicas
	f.mu.Unlock()
	if f.onScale != nil {
		f.onScale(service, replicas)
	}
	return nil
}

func (f *fakeInfra) Snapshot(ctx context.Context, service string) (models.SnapshotID, error) {
	f.record("snapshot")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := models.SnapshotID(fmt.Sprintf("snap-%d", f.seq))
	f.snapshots[id] = snapshotState{service: service, replicas: f.replicas[service]}
	return id, nil
}

func (f *fakeInfra) Restore(ctx context.Context, id models.SnapshotID) (bool, error) {
	f.record("restore")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, id)
	st, ok := f.snapshots[id]
	if !ok {
		return false, nil
	}
	f.replicas[st.service] = st.replicas
	return true, nil
}

type fakeTicket struct {
	title, description string
	priority           models.Priority
	status             models.IncidentStatus
	comments           []string
}

type fakeSink struct {
	mu        sync.Mutex
	tickets   map[string]*fakeTicket
	order     []string
	createErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{tickets: map[string]*fakeTicket{}}
}

func (f *fakeSink) Create(_ context.Context, title, description string, priority models.Priority) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	id := fmt.Sprintf("TICKET-%d", 1001+len(f.order))
	f.tickets[id] = &fakeTicket{title: title, description: description, priority: priority, status: models.IncidentOpen}
	f.order = append(f.order, id)
	return id, nil
}

func (f *fakeSink) Update(_ context.Context, id string, update models.TicketUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return utils.NotFound("fake.update", id)
	}
	if update.Status != nil {
		t.status = *update.Status
	}
	if update.Comment != "" {
		t.comments = append(t.comments, update.Comment)
	}
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func (f *fakeSink) get(id string) fakeTicket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.tickets[id]
}

type staticValidator bool

func (v staticValidator) Validate(context.Context, string) bool { return bool(v) }

func healthy() models.MetricSnapshot {
	return models.MetricSnapshot{
		models.MetricCPU:       20,
		models.MetricMemory:    40,
		models.MetricLatency:   0.05,
		models.MetricErrorRate: 0,
	}
}
