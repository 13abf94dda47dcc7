package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/events"
	"github.com/medsupport/helpdesk/internal/notify"
	"github.com/medsupport/helpdesk/internal/observability"
	"github.com/medsupport/helpdesk/internal/repository"
	"github.com/medsupport/helpdesk/internal/sla"
)

// EscalationOutcome classifies one SLA check.
type EscalationOutcome string

const (
	OutcomeNotBreached      EscalationOutcome = "not_breached"
	OutcomeAlreadyEscalated EscalationOutcome = "already_escalated"
	OutcomeEscalated        EscalationOutcome = "escalated"
)

const (
	escalationBody = "The SLA for this ticket has been breached. Please take immediate action."
)

// EscalationResult reports what a check did.
type EscalationResult struct {
	Outcome    EscalationOutcome
	Recipients []string
	Sent       int
	Failed     int
}

// SweepSummary aggregates a pass over every active ticket.
type SweepSummary struct {
	Checked          int `json:"checked"`
	Escalated        int `json:"escalated"`
	AlreadyEscalated int `json:"already_escalated"`
	Errors           int `json:"errors"`
	NotificationsOK  int `json:"notifications_sent"`
	NotificationsBad int `json:"notifications_failed"`
}

// EscalationService detects SLA breaches and escalates each ticket once.
type EscalationService struct {
	tickets    repository.TicketRepository
	logs       repository.ActivityLogRepository
	users      repository.UserRepository
	notifier   notify.Notifier
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// EscalationDependencies bundles collaborators for the escalation service.
type EscalationDependencies struct {
	TicketRepo      repository.TicketRepository
	ActivityLogRepo repository.ActivityLogRepository
	UserRepo        repository.UserRepository
	Notifier        notify.Notifier
	Dispatcher      events.Dispatcher
	Metrics         *observability.Metrics
	Logger          *zap.Logger
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		tickets:    deps.TicketRepo,
		logs:       deps.ActivityLogRepo,
		users:      deps.UserRepo,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// EscalationSubject is the subject line for breach notifications.
func EscalationSubject(ticket *domain.Ticket) string {
	return fmt.Sprintf("SLA Breached: Ticket #%s - %s", ticket.ID, ticket.Title)
}

// CheckAndEscalate escalates ticket if it is breached at now and has never
// been escalated before. The escalation log entry is the guard: whoever
// inserts it sends the notifications, everyone else gets OutcomeAlreadyEscalated.
// Failed sends are counted, not retried, and never undo the log entry.
func (s *EscalationService) CheckAndEscalate(ctx context.Context, ticket *domain.Ticket, actorID *string, now time.Time) (EscalationResult, error) {
	result := EscalationResult{Outcome: OutcomeNotBreached, Recipients: []string{}}
	if ticket == nil {
		return result, errors.New("check escalation: nil ticket")
	}
	if !sla.IsBreached(ticket, now) {
		s.metrics.RecordEscalation(string(result.Outcome))
		return result, nil
	}

	entry := &domain.ActivityLog{
		TicketID:    ticket.ID,
		Action:      domain.ActionSLAEscalated,
		Description: fmt.Sprintf("SLA breached for ticket %s. Escalating.", ticket.ID),
		Timestamp:   now.UTC(),
		UserID:      actorID,
	}
	created, err := s.logs.CreateOnce(ctx, entry)
	if err != nil {
		return result, fmt.Errorf("record escalation for ticket %s: %w", ticket.ID, err)
	}
	if !created {
		result.Outcome = OutcomeAlreadyEscalated
		s.metrics.RecordEscalation(string(result.Outcome))
		return result, nil
	}
	result.Outcome = OutcomeEscalated
	s.metrics.RecordEscalation(string(result.Outcome))

	recipients, lookupErr := s.recipients(ctx, ticket)
	result.Recipients = recipients

	subject := EscalationSubject(ticket)
	for _, to := range recipients {
		if s.notifier != nil && s.notifier.Send(ctx, to, subject, escalationBody) {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	s.logger.Warn("sla escalated",
		zap.String("ticket_id", ticket.ID),
		zap.Int("recipients", len(recipients)),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
	)
	s.publish(ctx, ticket, actorID, now, result)

	if lookupErr != nil {
		return result, fmt.Errorf("resolve escalation recipients for ticket %s: %w", ticket.ID, lookupErr)
	}
	return result, nil
}

// EvaluateAndEscalate returns ticket's SLA state at now, escalating on the way.
// Escalation problems are logged and never surface to the caller.
func (s *EscalationService) EvaluateAndEscalate(ctx context.Context, ticket *domain.Ticket, actorID *string, now time.Time) sla.State {
	state := sla.Evaluate(ticket, now)
	if ticket == nil {
		return state
	}
	if _, err := s.CheckAndEscalate(ctx, ticket, actorID, now); err != nil {
		s.logger.Error("sla check failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	return state
}

// EvaluateMany evaluates each ticket independently; the result is index-aligned.
func (s *EscalationService) EvaluateMany(ctx context.Context, tickets []domain.Ticket, actorID *string, now time.Time) []sla.State {
	states := make([]sla.State, len(tickets))
	for i := range tickets {
		states[i] = s.EvaluateAndEscalate(ctx, &tickets[i], actorID, now)
	}
	return states
}

// Sweep checks every open or in-progress ticket.
func (s *EscalationService) Sweep(ctx context.Context, actorID *string, now time.Time) (SweepSummary, error) {
	var summary SweepSummary
	active, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress},
	})
	if err != nil {
		return summary, fmt.Errorf("list active tickets: %w", err)
	}

	for i := range active {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Checked++
		result, err := s.CheckAndEscalate(ctx, &active[i], actorID, now)
		if err != nil {
			summary.Errors++
			s.logger.Error("sla sweep check failed", zap.String("ticket_id", active[i].ID), zap.Error(err))
		}
		switch result.Outcome {
		case OutcomeEscalated:
			summary.Escalated++
		case OutcomeAlreadyEscalated:
			summary.AlreadyEscalated++
		}
		summary.NotificationsOK += result.Sent
		summary.NotificationsBad += result.Failed
	}
	return summary, nil
}

// recipients returns every admin address plus the assignee's, without blanks
// or duplicates, in that order.
func (s *EscalationService) recipients(ctx context.Context, ticket *domain.Ticket) ([]string, error) {
	var errs []error
	candidates := []string{}

	admins, err := s.users.ListByRole(ctx, domain.UserRoleAdmin)
	if err != nil {
		errs = append(errs, fmt.Errorf("list admins: %w", err))
	}
	for _, admin := range admins {
		candidates = append(candidates, admin.Email)
	}

	if ticket.AssigneeID != nil {
		assignee, err := s.users.GetByID(ctx, *ticket.AssigneeID)
		switch {
		case err == nil:
			candidates = append(candidates, assignee.Email)
		case errors.Is(err, repository.ErrNotFound):
		default:
			errs = append(errs, fmt.Errorf("load assignee: %w", err))
		}
	}

	return uniqueNonEmpty(candidates), errors.Join(errs...)
}

func (s *EscalationService) publish(ctx context.Context, ticket *domain.Ticket, actorID *string, now time.Time, result EscalationResult) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        newEventID(now),
		Type:      events.EventTicketEscalated,
		TicketID:  ticket.ID,
		Actor:     events.Actor{UserID: actorID},
		Timestamp: now.UTC(),
		Payload: events.TicketEscalatedPayload{
			Recipients: result.Recipients,
			Sent:       result.Sent,
			Failed:     result.Failed,
		},
	})
}
