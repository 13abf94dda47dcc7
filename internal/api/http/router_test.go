package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/medsupport/helpdesk/internal/api/http/handlers"
	"github.com/medsupport/helpdesk/internal/auth"
	"github.com/medsupport/helpdesk/internal/clock"
	"github.com/medsupport/helpdesk/internal/config"
	"github.com/medsupport/helpdesk/internal/events"
	"github.com/medsupport/helpdesk/internal/notify"
	"github.com/medsupport/helpdesk/internal/observability"
	"github.com/medsupport/helpdesk/internal/repository/memory"
	"github.com/medsupport/helpdesk/internal/service"
)

type testServer struct {
	app  *fiber.App
	mu   sync.Mutex
	now  time.Time
	sent []string
}

func (s *testServer) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *testServer) subjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	srv := &testServer{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	clk := clock.Func(func() time.Time {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.now
	})
	notifier := notify.Func(func(_ context.Context, _, subject, _ string) bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		srv.sent = append(srv.sent, subject)
		return true
	})

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, store.Users(), notifier, logger).RegisterHandlers()

	_, err := service.NewSeedService(store.Users(), store.Categories(), bcrypt.MinCost, logger).Seed(context.Background())
	require.NoError(t, err)

	escalation := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo:      store.Tickets(),
		ActivityLogRepo: store.ActivityLogs(),
		UserRepo:        store.Users(),
		Notifier:        notifier,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Logger:          logger,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:      store.Tickets(),
		ActivityLogRepo: store.ActivityLogs(),
		UserRepo:        store.Users(),
		CategoryRepo:    store.Categories(),
		Escalation:      escalation,
		Dispatcher:      dispatcher,
		Logger:          logger,
	})
	authService := service.NewAuthService(config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 60, BcryptCost: bcrypt.MinCost}, store.Users())

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:  handlers.NewHealthHandler("helpdesk", "test", nil),
		Auth:    handlers.NewAuthHandler(authService),
		Tickets: handlers.NewTicketsHandler(tickets, store.Categories(), clk),
		Admin: handlers.NewAdminHandler(handlers.AdminDependencies{
			Analytics: service.NewAnalyticsService(service.AnalyticsDependencies{
				TicketRepo:      store.Tickets(),
				ActivityLogRepo: store.ActivityLogs(),
				UserRepo:        store.Users(),
				CategoryRepo:    store.Categories(),
				Metrics:         metrics,
			}),
			Reports: service.NewReportService(service.ReportDependencies{
				TicketRepo:      store.Tickets(),
				ActivityLogRepo: store.ActivityLogs(),
				UserRepo:        store.Users(),
				CategoryRepo:    store.Categories(),
			}),
			Maintenance: service.NewMaintenanceService(store.ActivityLogs(), 0, metrics, logger),
			Escalation:  escalation,
			Admin: service.NewAdminService(service.AdminServiceDependencies{
				UserRepo:        store.Users(),
				CategoryRepo:    store.Categories(),
				TicketRepo:      store.Tickets(),
				ActivityLogRepo: store.ActivityLogs(),
				Logger:          logger,
			}),
			Clock: clk,
		}),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Users()),
		Metrics:        metrics.Handler(),
	})
	srv.app = app
	return srv
}

func (s *testServer) countSubjects(prefix string) int {
	n := 0
	for _, subject := range s.subjects() {
		if strings.HasPrefix(subject, prefix) {
			n++
		}
	}
	return n
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Stats map[string]int  `json:"stats"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *testServer) login(t *testing.T, login, password string) string {
	t.Helper()
	status, env := s.do(t, fiber.MethodPost, "/auth/login", "", map[string]string{"login": login, "password": password})
	require.Equal(t, fiber.StatusOK, status, env.Error.Message)
	var data struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Auth.Token)
	return data.Auth.Token
}

type ticketBody struct {
	ID       string `json:"id"`
	Priority string `json:"priority"`
	SLA      *struct {
		Hours      int  `json:"sla_hours"`
		IsBreached bool `json:"is_breached"`
	} `json:"sla"`
	Activity []struct {
		Action string `json:"action"`
	} `json:"activity"`
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	status, _ := srv.do(t, fiber.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = srv.do(t, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusOK, status)

	resp, err := srv.app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "helpdesk_http_requests_total")
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	status, env := srv.do(t, fiber.MethodGet, "/nope", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)
	srv.login(t, "user", "user123")
	srv.login(t, "admin@example.com", "admin123")

	status, env := srv.do(t, fiber.MethodPost, "/auth/login", "", map[string]string{"login": "user", "password": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, env = srv.do(t, fiber.MethodPost, "/auth/login", "", map[string]string{"password": "x"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	srv := newTestServer(t)
	status, env := srv.do(t, fiber.MethodGet, "/tickets", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = srv.do(t, fiber.MethodGet, "/tickets", "garbage", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestTicketLifecycleEscalatesOnView(t *testing.T) {
	srv := newTestServer(t)
	userToken := srv.login(t, "user", "user123")
	techToken := srv.login(t, "technician", "tech123")
	adminToken := srv.login(t, "admin", "admin123")

	status, env := srv.do(t, fiber.MethodPost, "/tickets", userToken, map[string]string{
		"title":       "Printer on fire",
		"description": "third floor",
		"priority":    "urgent",
	})
	require.Equal(t, fiber.StatusCreated, status, env.Error.Message)
	var created ticketBody
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Contains(t, srv.subjects(), "New Ticket Created: Printer on fire")

	status, env = srv.do(t, fiber.MethodGet, "/tickets", userToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var listed []ticketBody
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, 8, listed[0].SLA.Hours)
	assert.False(t, listed[0].SLA.IsBreached)
	assert.Equal(t, 1, env.Stats["total"])
	assert.Equal(t, 1, env.Stats["open"])

	status, env = srv.do(t, fiber.MethodPatch, "/tickets/"+created.ID, userToken, map[string]string{"priority": "low"})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	srv.advance(9 * time.Hour)
	status, env = srv.do(t, fiber.MethodGet, "/tickets/"+created.ID, techToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var detail ticketBody
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.True(t, detail.SLA.IsBreached)
	require.NotEmpty(t, detail.Activity)
	assert.Equal(t, "SLA Escalated", detail.Activity[0].Action)

	escalations := 0
	for _, s := range srv.subjects() {
		if strings.HasPrefix(s, "SLA Breached: ") {
			escalations++
		}
	}
	assert.Equal(t, 1, escalations, "one admin, no assignee")

	status, env = srv.do(t, fiber.MethodPost, "/admin/sla/sweep", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var summary service.SweepSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.AlreadyEscalated)
	assert.Equal(t, 0, summary.Escalated)

	status, env = srv.do(t, fiber.MethodPatch, "/tickets/"+created.ID, techToken, map[string]any{"status": "resolved"})
	require.Equal(t, fiber.StatusOK, status, env.Error.Message)
	assert.Contains(t, srv.subjects(), "Ticket Updated: Printer on fire")
}

func TestTicketNotVisibleToOtherUsers(t *testing.T) {
	srv := newTestServer(t)
	techToken := srv.login(t, "technician", "tech123")
	userToken := srv.login(t, "user", "user123")

	status, env := srv.do(t, fiber.MethodPost, "/tickets", techToken, map[string]string{"title": "internal"})
	require.Equal(t, fiber.StatusCreated, status)
	var created ticketBody
	require.NoError(t, json.Unmarshal(env.Data, &created))

	status, _ = srv.do(t, fiber.MethodGet, "/tickets/"+created.ID, userToken, nil)
	assert.Contains(t, []int{fiber.StatusForbidden, fiber.StatusNotFound}, status)
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t)
	token := srv.login(t, "user", "user123")

	status, env := srv.do(t, fiber.MethodGet, "/categories", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	var categories []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &categories))
	assert.Len(t, categories, len(service.DefaultCategories))
}

func TestAdminRoutes(t *testing.T) {
	srv := newTestServer(t)
	userToken := srv.login(t, "user", "user123")
	adminToken := srv.login(t, "admin", "admin123")

	status, env := srv.do(t, fiber.MethodGet, "/admin/report", userToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = srv.do(t, fiber.MethodGet, "/admin/report", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var report service.SystemReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 3, report.TotalUsers)

	for rng, labels := range map[string]int{"week": 8, "month": 31, "": 8, "year": 31} {
		status, env = srv.do(t, fiber.MethodGet, "/admin/analytics?range="+rng, adminToken, nil)
		require.Equal(t, fiber.StatusOK, status, rng)
		var analytics struct {
			VolumeByDay struct {
				Labels []string `json:"labels"`
			} `json:"volume_by_day"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &analytics))
		assert.Len(t, analytics.VolumeByDay.Labels, labels, rng)
	}

	status, env = srv.do(t, fiber.MethodPost, "/admin/maintenance/purge", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var purge service.PurgeResult
	require.NoError(t, json.Unmarshal(env.Data, &purge))
	assert.Equal(t, int64(0), purge.Removed)
}

func (s *testServer) userID(t *testing.T, adminToken, username string) string {
	t.Helper()
	status, env := s.do(t, fiber.MethodGet, "/admin/users", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var users []struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &users))
	for _, u := range users {
		if u.Username == username {
			return u.ID
		}
	}
	t.Fatalf("user %s not listed", username)
	return ""
}

func TestTicketComments(t *testing.T) {
	srv := newTestServer(t)
	userToken := srv.login(t, "user", "user123")
	techToken := srv.login(t, "technician", "tech123")
	adminToken := srv.login(t, "admin", "admin123")
	techID := srv.userID(t, adminToken, "technician")

	status, env := srv.do(t, fiber.MethodPost, "/tickets", userToken, map[string]string{"title": "VPN drops"})
	require.Equal(t, fiber.StatusCreated, status)
	var created ticketBody
	require.NoError(t, json.Unmarshal(env.Data, &created))
	status, env = srv.do(t, fiber.MethodPatch, "/tickets/"+created.ID, adminToken, map[string]any{"assigned_to_id": techID})
	require.Equal(t, fiber.StatusOK, status, env.Error.Message)

	status, env = srv.do(t, fiber.MethodPost, "/tickets/"+created.ID+"/comments", techToken, map[string]string{"comment": "  Reinstall the client  "})
	require.Equal(t, fiber.StatusCreated, status, env.Error.Message)
	var entry struct {
		Action      string `json:"action"`
		Description string `json:"description"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, "Comment Added", entry.Action)
	assert.Equal(t, "technician: Reinstall the client", entry.Description)
	assert.Equal(t, 1, srv.countSubjects("New Comment on Ticket: VPN drops"), "creator only; the commenter is the assignee")

	status, _ = srv.do(t, fiber.MethodPost, "/tickets/"+created.ID+"/comments", userToken, map[string]string{"comment": "Still failing"})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, 2, srv.countSubjects("New Comment on Ticket: VPN drops"), "assignee only; the commenter is the creator")

	status, _ = srv.do(t, fiber.MethodPost, "/tickets/"+created.ID+"/comments", adminToken, map[string]string{"comment": "Escalating to network team"})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, 4, srv.countSubjects("New Comment on Ticket: VPN drops"), "creator and assignee")

	status, env = srv.do(t, fiber.MethodPost, "/tickets/"+created.ID+"/comments", userToken, map[string]string{"comment": "   "})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = srv.do(t, fiber.MethodGet, "/tickets/"+created.ID, userToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var detail ticketBody
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	comments := 0
	for _, a := range detail.Activity {
		if a.Action == "Comment Added" {
			comments++
		}
	}
	assert.Equal(t, 3, comments)

	status, env = srv.do(t, fiber.MethodPost, "/tickets", techToken, map[string]string{"title": "internal"})
	require.Equal(t, fiber.StatusCreated, status)
	var internal ticketBody
	require.NoError(t, json.Unmarshal(env.Data, &internal))
	status, env = srv.do(t, fiber.MethodPost, "/tickets/"+internal.ID+"/comments", userToken, map[string]string{"comment": "me too"})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestAdminCreatesCategories(t *testing.T) {
	srv := newTestServer(t)
	userToken := srv.login(t, "user", "user123")
	adminToken := srv.login(t, "admin", "admin123")

	body := map[string]string{"name": "Facilities", "description": "Desks and doors"}
	status, _ := srv.do(t, fiber.MethodPost, "/admin/categories", userToken, body)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, env := srv.do(t, fiber.MethodPost, "/admin/categories", adminToken, body)
	require.Equal(t, fiber.StatusCreated, status, env.Error.Message)
	var category struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &category))
	assert.NotEmpty(t, category.ID)
	assert.Equal(t, "Facilities", category.Name)

	status, env = srv.do(t, fiber.MethodPost, "/admin/categories", adminToken, body)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, env = srv.do(t, fiber.MethodPost, "/admin/categories", adminToken, map[string]string{"name": " "})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = srv.do(t, fiber.MethodGet, "/categories", userToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var categories []struct{}
	require.NoError(t, json.Unmarshal(env.Data, &categories))
	assert.Len(t, categories, len(service.DefaultCategories)+1)
}

func TestAdminUpdatesUserRoles(t *testing.T) {
	srv := newTestServer(t)
	userToken := srv.login(t, "user", "user123")
	adminToken := srv.login(t, "admin", "admin123")
	userID := srv.userID(t, adminToken, "user")

	status, _ := srv.do(t, fiber.MethodGet, "/admin/report", userToken, nil)
	require.Equal(t, fiber.StatusForbidden, status)

	status, env := srv.do(t, fiber.MethodPatch, "/admin/users/"+userID+"/role", adminToken, map[string]string{"role": "superuser"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = srv.do(t, fiber.MethodPatch, "/admin/users/missing/role", adminToken, map[string]string{"role": "admin"})
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = srv.do(t, fiber.MethodPatch, "/admin/users/"+userID+"/role", adminToken, map[string]string{"role": "admin"})
	require.Equal(t, fiber.StatusOK, status, env.Error.Message)
	var updated struct {
		Role string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "admin", updated.Role)

	status, _ = srv.do(t, fiber.MethodGet, "/admin/report", userToken, nil)
	assert.Equal(t, fiber.StatusOK, status, "the stored role applies to tokens issued before the change")
}

func TestAdminSystemHealth(t *testing.T) {
	srv := newTestServer(t)
	userToken := srv.login(t, "user", "user123")
	adminToken := srv.login(t, "admin", "admin123")

	status, _ := srv.do(t, fiber.MethodGet, "/admin/system/health", userToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = srv.do(t, fiber.MethodPost, "/tickets", userToken, map[string]string{"title": "Server down", "priority": "urgent"})
	require.Equal(t, fiber.StatusCreated, status)
	status, _ = srv.do(t, fiber.MethodPost, "/tickets", userToken, map[string]string{"title": "Mouse sticky", "priority": "low"})
	require.Equal(t, fiber.StatusCreated, status)

	status, env := srv.do(t, fiber.MethodGet, "/admin/system/health", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error.Message)
	var health struct {
		OverallStatus string                     `json:"overall_status"`
		Metrics       service.ApplicationMetrics `json:"application_metrics"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "healthy", health.OverallStatus)
	assert.Equal(t, service.ApplicationMetrics{
		TotalTickets:        2,
		TotalUsers:          3,
		TotalCategories:     len(service.DefaultCategories),
		UrgentOpenTickets:   1,
		RecentActivityCount: 2,
	}, health.Metrics)
}
