package events

import (
	"time"

	"github.com/medsupport/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketUpdated   EventType = "ticket_updated"
	EventTicketEscalated EventType = "ticket_escalated"
	EventTicketCommented EventType = "ticket_commented"
)

// Actor identifies who triggered an event. A nil UserID means the system.
type Actor struct {
	UserID   *string `json:"user_id,omitempty"`
	Username string  `json:"username,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
}

// TicketUpdatedPayload lists the human-readable changes of one update.
type TicketUpdatedPayload struct {
	Title       string                `json:"title"`
	Changes     []string              `json:"changes"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	CreatorID   string                `json:"creator_id"`
	AssigneeID  *string               `json:"assignee_id,omitempty"`
	NewAssignee bool                  `json:"new_assignee"`
}

// TicketEscalatedPayload summarises an SLA escalation.
type TicketEscalatedPayload struct {
	Recipients []string `json:"recipients"`
	Sent       int      `json:"sent"`
	Failed     int      `json:"failed"`
}

// TicketCommentedPayload carries a new comment and the people it concerns.
type TicketCommentedPayload struct {
	Title      string  `json:"title"`
	Comment    string  `json:"comment"`
	CreatorID  string  `json:"creator_id"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}
