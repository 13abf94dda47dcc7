package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/events"
	"github.com/medsupport/helpdesk/internal/notify"
	"github.com/medsupport/helpdesk/internal/repository"
)

// NotificationService turns ticket events into emails.
type NotificationService struct {
	dispatcher events.Dispatcher
	users      repository.UserRepository
	notifier   notify.Notifier
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, users repository.UserRepository, notifier notify.Notifier, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		users:      users,
		notifier:   notifier,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketUpdated, n.handleTicketUpdated)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventTicketCommented, n.handleTicketCommented)
}

// handleTicketCreated tells every technician and admin about the new ticket.
func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("ticket_created: unexpected payload %T", event.Payload)
	}
	staff, err := n.users.ListByRole(ctx, domain.UserRoleAdmin, domain.UserRoleTechnician)
	if err != nil {
		return fmt.Errorf("ticket_created: list staff: %w", err)
	}

	subject := "New Ticket Created: " + payload.Title
	body := fmt.Sprintf("A new ticket has been created by %s.\n\nTitle: %s\nPriority: %s\nDescription: %s\n\nPlease log in to view and manage this ticket.",
		event.Actor.Username, payload.Title, payload.Priority, payload.Description)

	addresses := make([]string, 0, len(staff))
	for _, u := range staff {
		addresses = append(addresses, u.Email)
	}
	sent := n.sendAll(ctx, uniqueNonEmpty(addresses), subject, body)
	n.logger.Info("ticket created notifications", zap.String("ticket_id", event.TicketID), zap.Int("sent", sent))
	return nil
}

// handleTicketUpdated notifies the creator and the assignee unless they made the change.
func (n *NotificationService) handleTicketUpdated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketUpdatedPayload)
	if !ok {
		return fmt.Errorf("ticket_updated: unexpected payload %T", event.Payload)
	}
	actorID := ""
	if event.Actor.UserID != nil {
		actorID = *event.Actor.UserID
	}

	var errs []error
	if payload.CreatorID != "" && payload.CreatorID != actorID {
		creator, err := n.users.GetByID(ctx, payload.CreatorID)
		switch {
		case err == nil:
			n.sendAll(ctx, uniqueNonEmpty([]string{creator.Email}),
				"Ticket Updated: "+payload.Title,
				fmt.Sprintf("Your ticket has been updated.\n\nChanges: %s\n\nUpdated by: %s",
					strings.Join(payload.Changes, ", "), event.Actor.Username))
		case !errors.Is(err, repository.ErrNotFound):
			errs = append(errs, fmt.Errorf("ticket_updated: load creator: %w", err))
		}
	}

	if payload.AssigneeID != nil && *payload.AssigneeID != actorID {
		assignee, err := n.users.GetByID(ctx, *payload.AssigneeID)
		switch {
		case err == nil:
			n.sendAll(ctx, uniqueNonEmpty([]string{assignee.Email}),
				"Ticket Assigned: "+payload.Title,
				fmt.Sprintf("A ticket has been assigned to you.\n\nTitle: %s\nPriority: %s\nStatus: %s\nAssigned by: %s",
					payload.Title, payload.Priority, payload.Status, event.Actor.Username))
		case !errors.Is(err, repository.ErrNotFound):
			errs = append(errs, fmt.Errorf("ticket_updated: load assignee: %w", err))
		}
	}
	return errors.Join(errs...)
}

// handleTicketCommented mails the creator and the assignee, skipping the
// commenter and sending once per address.
func (n *NotificationService) handleTicketCommented(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCommentedPayload)
	if !ok {
		return fmt.Errorf("ticket_commented: unexpected payload %T", event.Payload)
	}
	actorID := ""
	if event.Actor.UserID != nil {
		actorID = *event.Actor.UserID
	}

	ids := []string{payload.CreatorID}
	if payload.AssigneeID != nil {
		ids = append(ids, *payload.AssigneeID)
	}
	var addresses []string
	var errs []error
	for _, id := range ids {
		if id == "" || id == actorID {
			continue
		}
		user, err := n.users.GetByID(ctx, id)
		switch {
		case err == nil:
			addresses = append(addresses, user.Email)
		case !errors.Is(err, repository.ErrNotFound):
			errs = append(errs, fmt.Errorf("ticket_commented: load user %s: %w", id, err))
		}
	}

	sent := n.sendAll(ctx, uniqueNonEmpty(addresses),
		"New Comment on Ticket: "+payload.Title,
		fmt.Sprintf("A new comment has been added to your ticket.\n\nComment by %s: %s\n\nTicket: %s",
			event.Actor.Username, payload.Comment, payload.Title))
	n.logger.Debug("comment notifications", zap.String("ticket_id", event.TicketID), zap.Int("sent", sent))
	return errors.Join(errs...)
}

func (n *NotificationService) handleTicketEscalated(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketEscalatedPayload)
	if !ok {
		return fmt.Errorf("ticket_escalated: unexpected payload %T", event.Payload)
	}
	n.logger.Info("TicketEscalated",
		zap.String("ticket_id", event.TicketID),
		zap.Strings("recipients", payload.Recipients),
		zap.Int("failed", payload.Failed))
	return nil
}

func (n *NotificationService) sendAll(ctx context.Context, to []string, subject, body string) int {
	if n.notifier == nil {
		return 0
	}
	sent := 0
	for _, addr := range to {
		if n.notifier.Send(ctx, addr, subject, body) {
			sent++
		}
	}
	return sent
}
