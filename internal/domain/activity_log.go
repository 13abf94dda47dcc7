package domain

import "time"

// Action labels written to the activity log.
const (
	ActionCreated           = "Created"
	ActionStatusChanged     = "Status Changed"
	ActionAssignmentChanged = "Assignment Changed"
	ActionPriorityChanged   = "Priority Changed"
	ActionSLAEscalated      = "SLA Escalated"
	ActionCommentAdded      = "Comment Added"
)

// ActivityLog is an immutable audit trail entry attached to a ticket.
type ActivityLog struct {
	ID          string
	TicketID    string
	Action      string
	Description string
	Timestamp   time.Time
	// UserID is nil for entries written by the system (sweeps, CLI).
	UserID *string
}
