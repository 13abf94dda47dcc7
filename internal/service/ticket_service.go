package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/events"
	"github.com/medsupport/helpdesk/internal/repository"
	"github.com/medsupport/helpdesk/internal/sla"
	apperrors "github.com/medsupport/helpdesk/pkg/util/errorutil"
)

const maxCommentLength = 4000

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	logs       repository.ActivityLogRepository
	users      repository.UserRepository
	categories repository.CategoryRepository
	escalation *EscalationService
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo      repository.TicketRepository
	ActivityLogRepo repository.ActivityLogRepository
	UserRepo        repository.UserRepository
	CategoryRepo    repository.CategoryRepository
	Escalation      *EscalationService
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	CategoryID  *string
}

// TicketUpdateInput describes a partial update. Nil fields are left alone;
// SetAssignee and SetCategory allow clearing with a nil value.
type TicketUpdateInput struct {
	Status      *domain.TicketStatus
	Priority    *domain.TicketPriority
	SetAssignee bool
	AssigneeID  *string
	SetCategory bool
	CategoryID  *string
}

// TicketListFilter narrows a listing within the caller's scope.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Limit      int
	Offset     int
}

// TicketView pairs a ticket with its SLA state at display time.
type TicketView struct {
	Ticket domain.Ticket
	SLA    sla.State
}

// TicketDetail is a ticket with its activity, newest first.
type TicketDetail struct {
	TicketView
	Activity []domain.ActivityLog
}

// DashboardStats summarises the tickets a caller can see.
type DashboardStats struct {
	Total  int `json:"total"`
	Open   int `json:"open"`
	Closed int `json:"closed"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		logs:       deps.ActivityLogRepo,
		users:      deps.UserRepo,
		categories: deps.CategoryRepo,
		escalation: deps.Escalation,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// CreateTicket opens a ticket on behalf of actor.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.User, input TicketCreateInput, now time.Time) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", map[string]any{"field": "title"})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	if err := s.ensureCategory(ctx, input.CategoryID); err != nil {
		return nil, err
	}

	now = now.UTC()
	ticket := &domain.Ticket{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		CreatedByID: actor.ID,
		CategoryID:  input.CategoryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.logActivity(ctx, ticket.ID, actor, domain.ActionCreated, fmt.Sprintf("Ticket created by %s", actor.Username), now); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		Actor:     userActor(actor),
		Timestamp: now,
		Payload: events.TicketCreatedPayload{
			Title:       ticket.Title,
			Description: ticket.Description,
			Priority:    ticket.Priority,
		},
	})
	return ticket, nil
}

// ListTickets returns the tickets actor may see, newest first, each with its
// SLA state, plus dashboard counts over the whole scope.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, filter TicketListFilter, now time.Time) ([]TicketView, DashboardStats, error) {
	if actor == nil {
		return nil, DashboardStats{}, apperrors.NewUnauthorized("authentication required")
	}
	scope := scopeFor(actor)

	var stats DashboardStats
	var err error
	if stats.Total, err = s.tickets.Count(ctx, scope); err != nil {
		return nil, stats, err
	}
	openScope := scope
	openScope.Statuses = []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress}
	if stats.Open, err = s.tickets.Count(ctx, openScope); err != nil {
		return nil, stats, err
	}
	closedScope := scope
	closedScope.Statuses = []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed}
	if stats.Closed, err = s.tickets.Count(ctx, closedScope); err != nil {
		return nil, stats, err
	}

	listFilter := scope
	listFilter.Statuses = filter.Statuses
	listFilter.Priorities = filter.Priorities
	listFilter.Limit = filter.Limit
	listFilter.Offset = filter.Offset
	tickets, err := s.tickets.ListWithFilter(ctx, listFilter)
	if err != nil {
		return nil, stats, err
	}

	states := s.evaluate(ctx, tickets, actor, now)
	views := make([]TicketView, len(tickets))
	for i := range tickets {
		views[i] = TicketView{Ticket: tickets[i], SLA: states[i]}
	}
	return views, stats, nil
}

// GetTicket returns one ticket with its activity if actor may view it.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, ticketID string, now time.Time) (*TicketDetail, error) {
	ticket, err := s.loadAccessible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	state := s.evaluate(ctx, []domain.Ticket{*ticket}, actor, now)[0]

	activity, err := s.logs.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(activity)-1; i < j; i, j = i+1, j-1 {
		activity[i], activity[j] = activity[j], activity[i]
	}
	return &TicketDetail{TicketView: TicketView{Ticket: *ticket, SLA: state}, Activity: activity}, nil
}

// UpdateTicket applies input. Creators may only change status; priority,
// assignee and category need a technician or admin.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, ticketID string, input TicketUpdateInput, now time.Time) (*domain.Ticket, error) {
	ticket, err := s.loadAccessible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.IsTechnician() && (input.Priority != nil || input.SetAssignee || input.SetCategory) {
		return nil, apperrors.NewForbidden("only technicians can change priority, assignee or category")
	}

	oldStatus, oldPriority, oldAssignee := ticket.Status, ticket.Priority, ticket.AssigneeID

	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *input.Status})
		}
		ticket.Status = *input.Status
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *input.Priority})
		}
		ticket.Priority = *input.Priority
	}
	var assignee *domain.User
	if input.SetAssignee {
		assignee, err = s.resolveAssignee(ctx, input.AssigneeID)
		if err != nil {
			return nil, err
		}
		ticket.AssigneeID = input.AssigneeID
	}
	categoryChanged := false
	if input.SetCategory {
		if err := s.ensureCategory(ctx, input.CategoryID); err != nil {
			return nil, err
		}
		categoryChanged = !equalStringPtr(ticket.CategoryID, input.CategoryID)
		ticket.CategoryID = input.CategoryID
	}

	statusChanged := oldStatus != ticket.Status
	priorityChanged := oldPriority != ticket.Priority
	assigneeChanged := !equalStringPtr(oldAssignee, ticket.AssigneeID)
	if !statusChanged && !priorityChanged && !assigneeChanged && !categoryChanged {
		return ticket, nil
	}

	now = now.UTC()
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	var changes []string
	if statusChanged {
		changes = append(changes, fmt.Sprintf("Status changed from %s to %s", oldStatus, ticket.Status))
		if err := s.logActivity(ctx, ticket.ID, actor, domain.ActionStatusChanged,
			fmt.Sprintf("Status updated to %s by %s", ticket.Status, actor.Username), now); err != nil {
			return nil, err
		}
	}
	if assigneeChanged {
		name := "Unassigned"
		if assignee != nil {
			name = assignee.Username
		}
		changes = append(changes, fmt.Sprintf("Assigned to %s", name))
		if err := s.logActivity(ctx, ticket.ID, actor, domain.ActionAssignmentChanged,
			fmt.Sprintf("Ticket assigned to %s by %s", name, actor.Username), now); err != nil {
			return nil, err
		}
	}
	if priorityChanged {
		changes = append(changes, fmt.Sprintf("Priority changed to %s", ticket.Priority))
		if err := s.logActivity(ctx, ticket.ID, actor, domain.ActionPriorityChanged,
			fmt.Sprintf("Priority updated to %s by %s", ticket.Priority, actor.Username), now); err != nil {
			return nil, err
		}
	}

	if len(changes) > 0 {
		s.publishEvent(ctx, events.Event{
			Type:      events.EventTicketUpdated,
			TicketID:  ticket.ID,
			Actor:     userActor(actor),
			Timestamp: now,
			Payload: events.TicketUpdatedPayload{
				Title:       ticket.Title,
				Changes:     changes,
				Status:      ticket.Status,
				Priority:    ticket.Priority,
				CreatorID:   ticket.CreatedByID,
				AssigneeID:  ticket.AssigneeID,
				NewAssignee: assigneeChanged,
			},
		})
	}
	return ticket, nil
}

// AddComment records a comment on a ticket actor can view and notifies the
// creator and assignee. Comments live in the activity log as "Comment Added".
func (s *TicketService) AddComment(ctx context.Context, actor *domain.User, ticketID, comment string, now time.Time) (*domain.ActivityLog, error) {
	ticket, err := s.loadAccessible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, apperrors.NewValidationError("comment is required", map[string]any{"field": "comment"})
	}
	if len(comment) > maxCommentLength {
		return nil, apperrors.NewValidationError("comment is too long", map[string]any{"max_length": maxCommentLength})
	}

	now = now.UTC()
	entry := &domain.ActivityLog{
		TicketID:    ticket.ID,
		Action:      domain.ActionCommentAdded,
		Description: fmt.Sprintf("%s: %s", actor.Username, comment),
		Timestamp:   now,
		UserID:      stringPtr(actor.ID),
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCommented,
		TicketID:  ticket.ID,
		Actor:     userActor(actor),
		Timestamp: now,
		Payload: events.TicketCommentedPayload{
			Title:      ticket.Title,
			Comment:    comment,
			CreatorID:  ticket.CreatedByID,
			AssigneeID: ticket.AssigneeID,
		},
	})
	return entry, nil
}

// CanView reports whether actor may see ticket: technicians and admins see
// everything, users only their own.
func CanView(actor *domain.User, ticket *domain.Ticket) bool {
	if actor == nil || ticket == nil {
		return false
	}
	return actor.IsTechnician() || ticket.CreatedByID == actor.ID
}

// scopeFor is the listing scope per role: admins see all, technicians their
// own and unassigned tickets, users the tickets they filed.
func scopeFor(actor *domain.User) repository.TicketFilter {
	switch actor.Role {
	case domain.UserRoleAdmin:
		return repository.TicketFilter{}
	case domain.UserRoleTechnician:
		id := actor.ID
		return repository.TicketFilter{AssigneeID: &id, IncludeUnassigned: true}
	default:
		id := actor.ID
		return repository.TicketFilter{CreatedByID: &id}
	}
}

func (s *TicketService) loadAccessible(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, err
	}
	if !CanView(actor, ticket) {
		return nil, apperrors.NewForbidden("you do not have permission to access this ticket")
	}
	return ticket, nil
}

func (s *TicketService) evaluate(ctx context.Context, tickets []domain.Ticket, actor *domain.User, now time.Time) []sla.State {
	if s.escalation == nil {
		states := make([]sla.State, len(tickets))
		for i := range tickets {
			states[i] = sla.Evaluate(&tickets[i], now)
		}
		return states
	}
	return s.escalation.EvaluateMany(ctx, tickets, &actor.ID, now)
}

func (s *TicketService) resolveAssignee(ctx context.Context, id *string) (*domain.User, error) {
	if id == nil {
		return nil, nil
	}
	user, err := s.users.GetByID(ctx, *id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewValidationError("assignee does not exist", map[string]any{"assignee_id": *id})
		}
		return nil, err
	}
	if !user.IsTechnician() {
		return nil, apperrors.NewValidationError("assignee must be a technician or admin", map[string]any{"assignee_id": *id})
	}
	return user, nil
}

func (s *TicketService) ensureCategory(ctx context.Context, id *string) error {
	if id == nil {
		return nil
	}
	if _, err := s.categories.GetByID(ctx, *id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewValidationError("category does not exist", map[string]any{"category_id": *id})
		}
		return err
	}
	return nil
}

func (s *TicketService) logActivity(ctx context.Context, ticketID string, actor *domain.User, action, description string, now time.Time) error {
	return s.logs.Create(ctx, &domain.ActivityLog{
		TicketID:    ticketID,
		Action:      action,
		Description: description,
		Timestamp:   now,
		UserID:      stringPtr(actor.ID),
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = newEventID(event.Timestamp)
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("type", string(event.Type)), zap.String("ticket_id", event.TicketID), zap.Error(err))
	}
}

func userActor(user *domain.User) events.Actor {
	return events.Actor{UserID: stringPtr(user.ID), Username: user.Username}
}
