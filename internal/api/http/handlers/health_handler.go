package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readinessTimeout = 2 * time.Second

// Pinger is anything readiness can ping: the Postgres pool, the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

type checkResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthHandler serves /health/live and /health/ready.
type HealthHandler struct {
	name    string
	version string
	started time.Time
	deps    map[string]Pinger
}

// NewHealthHandler checks only the dependencies passed in deps; the in-memory
// store has none.
func NewHealthHandler(name, version string, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{name: name, version: version, started: time.Now(), deps: deps}
}

func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "alive",
		"service":        h.name,
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// Ready pings every dependency in parallel and answers 503 if any fails.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	results := h.check(c.UserContext())
	if allOK(results) {
		return c.JSON(fiber.Map{"status": "ready", "dependencies": results})
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": results,
		},
	})
}

func (h *HealthHandler) check(parent context.Context) map[string]checkResult {
	return checkAll(parent, h.deps)
}

func checkAll(parent context.Context, deps map[string]Pinger) map[string]checkResult {
	ctx, cancel := context.WithTimeout(parent, readinessTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]checkResult, len(deps))
	)
	for name, dep := range deps {
		wg.Add(1)
		go func(name string, dep Pinger) {
			defer wg.Done()
			start := time.Now()
			err := dep.Ping(ctx)
			r := checkResult{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				r.Status = "unavailable"
				r.Error = err.Error()
			}
			mu.Lock()
			results[name] = r
			mu.Unlock()
		}(name, dep)
	}
	wg.Wait()
	return results
}

func allOK(results map[string]checkResult) bool {
	for _, r := range results {
		if r.Status != "ok" {
			return false
		}
	}
	return true
}
