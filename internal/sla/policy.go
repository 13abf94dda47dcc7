// Package sla holds the priority based SLA policy and breach rules.
package sla

import (
	"math"
	"time"

	"github.com/medsupport/helpdesk/internal/domain"
)

// DefaultHours applies to priorities missing from the policy table.
const DefaultHours = 48

var hoursByPriority = map[domain.TicketPriority]int{
	domain.TicketPriorityLow:    72,
	domain.TicketPriorityMedium: 48,
	domain.TicketPriorityHigh:   24,
	domain.TicketPriorityUrgent: 8,
}

// State is the derived SLA view of a ticket at a point in time.
type State struct {
	SLAHours         int
	DueAt            *time.Time
	IsActive         bool
	IsBreached       bool
	RemainingSeconds int64
}

// Hours returns the SLA duration in hours for a priority.
func Hours(priority domain.TicketPriority) int {
	if h, ok := hoursByPriority[priority]; ok {
		return h
	}
	return DefaultHours
}

// DueAt returns the SLA deadline. ok is false when the ticket has no creation time.
func DueAt(ticket *domain.Ticket) (due time.Time, ok bool) {
	if ticket == nil || ticket.CreatedAt.IsZero() {
		return time.Time{}, false
	}
	return ticket.CreatedAt.UTC().Add(time.Duration(Hours(ticket.Priority)) * time.Hour), true
}

// IsActive reports whether the SLA clock is running for the ticket.
func IsActive(ticket *domain.Ticket) bool {
	if ticket == nil {
		return false
	}
	return ticket.Status == domain.TicketStatusOpen || ticket.Status == domain.TicketStatusInProgress
}

// IsBreached reports whether an active ticket is past its deadline.
// A ticket exactly at its deadline is not breached yet.
func IsBreached(ticket *domain.Ticket, now time.Time) bool {
	due, ok := DueAt(ticket)
	if !ok || !IsActive(ticket) {
		return false
	}
	return now.UTC().After(due)
}

// RemainingSeconds returns floor(due - now) in seconds. The value goes
// negative once the deadline has passed and is 0 when there is no deadline.
func RemainingSeconds(ticket *domain.Ticket, now time.Time) int64 {
	due, ok := DueAt(ticket)
	if !ok {
		return 0
	}
	return int64(math.Floor(due.Sub(now.UTC()).Seconds()))
}

// Evaluate bundles every SLA property of the ticket at now.
func Evaluate(ticket *domain.Ticket, now time.Time) State {
	state := State{
		IsActive:         IsActive(ticket),
		IsBreached:       IsBreached(ticket, now),
		RemainingSeconds: RemainingSeconds(ticket, now),
	}
	if ticket != nil {
		state.SLAHours = Hours(ticket.Priority)
	}
	if due, ok := DueAt(ticket); ok {
		state.DueAt = &due
	}
	return state
}
