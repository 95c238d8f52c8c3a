package scheduling

import (
	"time"
)

// EventType names a committed appointment change.
type EventType string

const (
	EventCreated   EventType = "appointment.created"
	EventUpdated   EventType = "appointment.updated"
	EventCancelled EventType = "appointment.cancelled"
	EventDeleted   EventType = "appointment.deleted"
)

// Event is published after the transaction that produced it commits.
type Event struct {
	Type        EventType   `json:"type"`
	Appointment Appointment `json:"appointment"`
	Actor       string      `json:"actor"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
