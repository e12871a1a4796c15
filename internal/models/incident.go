package models

import "time"

// IncidentStatus is the lifecycle state of an incident record.
type IncidentStatus string

const (
	IncidentOpen      IncidentStatus = "Open"
	IncidentResolved  IncidentStatus = "Resolved"
	IncidentEscalated IncidentStatus = "Escalated"
	IncidentFailed    IncidentStatus = "Failed"
)

// Terminal reports whether the status closes the cycle.
func (s IncidentStatus) Terminal() bool {
	return s == IncidentResolved || s == IncidentEscalated || s == IncidentFailed
}

// CanTransition enforces Open -> {Resolved|Escalated|Failed}; a closed record never reopens.
func (s IncidentStatus) CanTransition(to IncidentStatus) bool {
	if s == to {
		return true
	}
	return s == IncidentOpen && to.Terminal()
}

// Priority grades incident urgency.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Comment is one entry of an incident's ordered comment log.
type Comment struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// IncidentRecord is the audit trail for one detection-to-resolution cycle.
type IncidentRecord struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    Priority       `json:"priority"`
	Status      IncidentStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	Comments    []Comment      `json:"comments"`
}

// TicketUpdate carries an optional status change and an optional comment.
type TicketUpdate struct {
	Status  *IncidentStatus
	Comment string
}

// StatusUpdate builds an update that changes status and appends a comment.
func StatusUpdate(status IncidentStatus, comment string) TicketUpdate {
	return TicketUpdate{Status: &status, Comment: comment}
}

// CommentUpdate builds an update that only appends a comment.
func CommentUpdate(comment string) TicketUpdate {
	return TicketUpdate{Comment: comment}
}
