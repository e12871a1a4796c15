package tickets

import (
	"context"
	"sync"

	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

// MemoryStore keeps incident records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	clock   utils.Clock
	next    uint64
	records map[string]*models.IncidentRecord
}

// NewMemoryStore returns an empty store; nil clock uses wall time.
func NewMemoryStore(clock utils.Clock) *MemoryStore {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &MemoryStore{clock: clock, next: firstID, records: make(map[string]*models.IncidentRecord)}
}

func (s *MemoryStore) Create(_ context.Context, title, description string, priority models.Priority) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := formatID(s.next)
	s.next++
	rec := newRecord(id, title, description, priority, s.clock.Now())
	s.records[id] = &rec
	return id, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, update models.TicketUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return utils.NotFound("tickets.update", "ticket "+id)
	}
	return apply(rec, update, s.clock.Now())
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.IncidentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return models.IncidentRecord{}, utils.NotFound("tickets.get", "ticket "+id)
	}
	return cloneRecord(*rec), nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.IncidentRecord, error) {
	s.mu.RLock()
	out := make([]models.IncidentRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(*rec))
	}
	s.mu.RUnlock()
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
