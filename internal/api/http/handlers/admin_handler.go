package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/medsupport/helpdesk/internal/analytics"
	"github.com/medsupport/helpdesk/internal/api/dto"
	"github.com/medsupport/helpdesk/internal/auth"
	"github.com/medsupport/helpdesk/internal/clock"
	"github.com/medsupport/helpdesk/internal/service"
	apperrors "github.com/medsupport/helpdesk/pkg/util/errorutil"
)

// AdminHandler serves the administrator endpoints.
type AdminHandler struct {
	analytics    *service.AnalyticsService
	reports      *service.ReportService
	maintenance  *service.MaintenanceService
	escalation   *service.EscalationService
	admin        *service.AdminService
	checks       map[string]Pinger
	clock        clock.Clock
	defaultRange string
}

// AdminDependencies bundles services for the admin handler.
type AdminDependencies struct {
	Analytics    *service.AnalyticsService
	Reports      *service.ReportService
	Maintenance  *service.MaintenanceService
	Escalation   *service.EscalationService
	Admin        *service.AdminService
	// Checks are the storage dependencies reported by SystemHealth.
	Checks       map[string]Pinger
	Clock        clock.Clock
	DefaultRange string
}

// NewAdminHandler constructs handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	rng := deps.DefaultRange
	if rng == "" {
		rng = "week"
	}
	return &AdminHandler{
		analytics:    deps.Analytics,
		reports:      deps.Reports,
		maintenance:  deps.Maintenance,
		escalation:   deps.Escalation,
		admin:        deps.Admin,
		checks:       deps.Checks,
		clock:        clk,
		defaultRange: rng,
	}
}

// Analytics GET /admin/analytics?range=week|month. Any other range value
// falls back to the month window.
func (h *AdminHandler) Analytics(c *fiber.Ctx) error {
	days := analytics.DaysForRange(c.Query("range", h.defaultRange))
	report, err := h.analytics.BuildReport(c.UserContext(), days, h.clock.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Report GET /admin/report.
func (h *AdminHandler) Report(c *fiber.Ctx) error {
	report, err := h.reports.GenerateReport(c.UserContext(), h.clock.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Purge POST /admin/maintenance/purge.
func (h *AdminHandler) Purge(c *fiber.Ctx) error {
	result, err := h.maintenance.PurgeActivityLogs(c.UserContext(), h.clock.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Sweep POST /admin/sla/sweep escalates every breached ticket now.
func (h *AdminHandler) Sweep(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	actorID := user.ID
	summary, err := h.escalation.Sweep(c.UserContext(), &actorID, h.clock.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

// CreateCategory POST /admin/categories.
func (h *AdminHandler) CreateCategory(c *fiber.Ctx) error {
	var req dto.CreateCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	category, err := h.admin.CreateCategory(c.UserContext(), req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCategoryResponse(category)})
}

// ListUsers GET /admin/users.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.admin.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponses(users)})
}

// UpdateUserRole PATCH /admin/users/:id/role.
func (h *AdminHandler) UpdateUserRole(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.admin.UpdateUserRole(c.UserContext(), actor, c.Params("id"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// SystemHealth GET /admin/system/health combines storage checks with
// application counters. overall_status is "warning" when a check fails.
func (h *AdminHandler) SystemHealth(c *fiber.Ctx) error {
	now := h.clock.Now().UTC()
	metrics, err := h.admin.ApplicationMetrics(c.UserContext(), now)
	if err != nil {
		return err
	}
	checks := checkAll(c.UserContext(), h.checks)
	overall := "healthy"
	if !allOK(checks) {
		overall = "warning"
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"timestamp":           now,
		"overall_status":      overall,
		"dependencies":        checks,
		"application_metrics": metrics,
	}})
}
