package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/medsupport/helpdesk/internal/auth"
	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/repository"
)

// DefaultCategories are created on every seed run when missing.
var DefaultCategories = []domain.Category{
	{Name: "Hardware", Description: "Hardware-related issues"},
	{Name: "Software", Description: "Software-related issues"},
	{Name: "Network", Description: "Network and connectivity issues"},
	{Name: "Account", Description: "User account and access issues"},
	{Name: "Other", Description: "Other miscellaneous issues"},
}

type seedUser struct {
	username string
	email    string
	password string
	role     domain.UserRole
}

// defaultUsers are only created into an empty user table.
var defaultUsers = []seedUser{
	{username: "admin", email: "admin@example.com", password: "admin123", role: domain.UserRoleAdmin},
	{username: "technician", email: "tech@example.com", password: "tech123", role: domain.UserRoleTechnician},
	{username: "user", email: "user@example.com", password: "user123", role: domain.UserRoleUser},
}

// SeedResult reports what a seed run created.
type SeedResult struct {
	Categories int
	Users      int
}

// SeedService installs default reference data.
type SeedService struct {
	users      repository.UserRepository
	categories repository.CategoryRepository
	bcryptCost int
	logger     *zap.Logger
}

// NewSeedService constructs the service.
func NewSeedService(users repository.UserRepository, categories repository.CategoryRepository, bcryptCost int, logger *zap.Logger) *SeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeedService{users: users, categories: categories, bcryptCost: bcryptCost, logger: logger}
}

// Seed is idempotent: existing categories are skipped and users are only
// created when none exist.
func (s *SeedService) Seed(ctx context.Context) (SeedResult, error) {
	var result SeedResult
	for _, c := range DefaultCategories {
		if _, err := s.categories.GetByName(ctx, c.Name); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return result, fmt.Errorf("lookup category %s: %w", c.Name, err)
		}
		category := c
		if err := s.categories.Create(ctx, &category); err != nil {
			return result, fmt.Errorf("create category %s: %w", c.Name, err)
		}
		result.Categories++
	}

	existing, err := s.users.ListByRole(ctx)
	if err != nil {
		return result, fmt.Errorf("list users: %w", err)
	}
	if len(existing) == 0 {
		for _, u := range defaultUsers {
			hash, err := auth.HashPassword(u.password, s.bcryptCost)
			if err != nil {
				return result, fmt.Errorf("hash password for %s: %w", u.username, err)
			}
			user := &domain.User{Username: u.username, Email: u.email, PasswordHash: hash, Role: u.role}
			if err := s.users.Create(ctx, user); err != nil {
				return result, fmt.Errorf("create user %s: %w", u.username, err)
			}
			result.Users++
		}
	}

	s.logger.Info("seed complete", zap.Int("categories", result.Categories), zap.Int("users", result.Users))
	return result, nil
}
