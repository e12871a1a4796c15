// Package tickets stores incident records.
package tickets

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

const (
	idPrefix = "TICKET-"
	firstID  = 1001
)

// Store creates, updates and reads incident records.
type Store interface {
	Create(ctx context.Context, title, description string, priority models.Priority) (string, error)
	Update(ctx context.Context, id string, update models.TicketUpdate) error
	Get(ctx context.Context, id string) (models.IncidentRecord, error)
	List(ctx context.Context) ([]models.IncidentRecord, error)
	Close() error
}

func formatID(seq uint64) string {
	return idPrefix + strconv.FormatUint(seq, 10)
}

func idNumber(id string) uint64 {
	n, _ := strconv.ParseUint(strings.TrimPrefix(id, idPrefix), 10, 64)
	return n
}

func newRecord(id, title, description string, priority models.Priority, now time.Time) models.IncidentRecord {
	return models.IncidentRecord{
		ID:          id,
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      models.IncidentOpen,
		CreatedAt:   now,
		Comments:    []models.Comment{},
	}
}

// apply mutates rec in place. Status changes must follow the incident lifecycle.
func apply(rec *models.IncidentRecord, update models.TicketUpdate, now time.Time) error {
	if update.Status != nil {
		if !rec.Status.CanTransition(*update.Status) {
			return fmt.Errorf("%s %s -> %s: %w", rec.ID, rec.Status, *update.Status, utils.ErrInvalidTransition)
		}
		rec.Status = *update.Status
	}
	if update.Comment != "" {
		rec.Comments = append(rec.Comments, models.Comment{Timestamp: now, Text: update.Comment})
	}
	return nil
}

func sortRecords(recs []models.IncidentRecord) {
	sort.Slice(recs, func(i, j int) bool { return idNumber(recs[i].ID) < idNumber(recs[j].ID) })
}

func cloneRecord(rec models.IncidentRecord) models.IncidentRecord {
	rec.Comments = append([]models.Comment(nil), rec.Comments...)
	return rec
}
