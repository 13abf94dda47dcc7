package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/repository"
	apperrors "github.com/medsupport/helpdesk/pkg/util/errorutil"
)

const maxCategoryNameLength = 100

// ApplicationMetrics is the application half of the admin health view.
type ApplicationMetrics struct {
	TotalTickets        int `json:"total_tickets"`
	TotalUsers          int `json:"total_users"`
	TotalCategories     int `json:"total_categories"`
	UrgentOpenTickets   int `json:"urgent_open_tickets"`
	RecentActivityCount int `json:"recent_activity_count"`
}

// AdminService covers the user and category management an administrator
// performs outside ticket workflows.
type AdminService struct {
	users      repository.UserRepository
	categories repository.CategoryRepository
	tickets    repository.TicketRepository
	logs       repository.ActivityLogRepository
	logger     *zap.Logger
}

// AdminServiceDependencies bundles repositories for the admin service.
type AdminServiceDependencies struct {
	UserRepo        repository.UserRepository
	CategoryRepo    repository.CategoryRepository
	TicketRepo      repository.TicketRepository
	ActivityLogRepo repository.ActivityLogRepository
	Logger          *zap.Logger
}

func NewAdminService(deps AdminServiceDependencies) *AdminService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{
		users:      deps.UserRepo,
		categories: deps.CategoryRepo,
		tickets:    deps.TicketRepo,
		logs:       deps.ActivityLogRepo,
		logger:     logger,
	}
}

// CreateCategory adds a category. Names are unique; a duplicate is a 409.
func (s *AdminService) CreateCategory(ctx context.Context, name, description string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", map[string]any{"field": "name"})
	}
	if len(name) > maxCategoryNameLength {
		return nil, apperrors.NewValidationError("name is too long", map[string]any{"max_length": maxCategoryNameLength})
	}
	category := &domain.Category{Name: name, Description: strings.TrimSpace(description)}
	if err := s.categories.Create(ctx, category); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("category already exists", map[string]any{"name": name})
		}
		return nil, err
	}
	s.logger.Info("category created", zap.String("category_id", category.ID), zap.String("name", name))
	return category, nil
}

// ListUsers returns every account ordered by username.
func (s *AdminService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.ListByRole(ctx)
}

// UpdateUserRole assigns role to the user with userID. The stored role is
// what authorization reads, so the change applies to the user's next request.
func (s *AdminService) UpdateUserRole(ctx context.Context, actor *domain.User, userID string, role domain.UserRole) (*domain.User, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role specified", map[string]any{"role": role})
	}
	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.String("user_id", userID), zap.String("role", string(role))}
	if actor != nil {
		fields = append(fields, zap.String("by", actor.ID))
	}
	s.logger.Info("user role updated", fields...)
	return user, nil
}

// ApplicationMetrics counts what an administrator checks first: open urgent
// tickets and activity over the last 24 hours.
func (s *AdminService) ApplicationMetrics(ctx context.Context, now time.Time) (*ApplicationMetrics, error) {
	dayAgo := now.UTC().Add(-24 * time.Hour)

	var m ApplicationMetrics
	var err error
	if m.TotalTickets, err = s.tickets.Count(ctx, repository.TicketFilter{}); err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}
	if m.UrgentOpenTickets, err = s.tickets.Count(ctx, repository.TicketFilter{
		Statuses:   []domain.TicketStatus{domain.TicketStatusOpen},
		Priorities: []domain.TicketPriority{domain.TicketPriorityUrgent},
	}); err != nil {
		return nil, fmt.Errorf("count urgent tickets: %w", err)
	}
	users, err := s.users.ListByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	m.TotalUsers = len(users)
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	m.TotalCategories = len(categories)
	if m.RecentActivityCount, err = s.logs.Count(ctx, repository.ActivityLogFilter{From: &dayAgo}); err != nil {
		return nil, fmt.Errorf("count activity: %w", err)
	}
	return &m, nil
}
