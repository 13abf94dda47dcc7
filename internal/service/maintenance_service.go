package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medsupport/helpdesk/internal/observability"
	"github.com/medsupport/helpdesk/internal/repository"
)

// PurgeResult reports a retention pass.
type PurgeResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Removed int64     `json:"removed"`
}

// MaintenanceService runs housekeeping jobs.
type MaintenanceService struct {
	logs      repository.ActivityLogRepository
	retention time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewMaintenanceService constructs the service. Non-positive retention falls
// back to 90 days.
func NewMaintenanceService(logs repository.ActivityLogRepository, retention time.Duration, metrics *observability.Metrics, logger *zap.Logger) *MaintenanceService {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{logs: logs, retention: retention, metrics: metrics, logger: logger}
}

// PurgeActivityLogs deletes activity entries older than the retention window.
// SLA escalation entries survive so a ticket is never escalated twice.
func (s *MaintenanceService) PurgeActivityLogs(ctx context.Context, now time.Time) (PurgeResult, error) {
	cutoff := now.UTC().Add(-s.retention)
	removed, err := s.logs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return PurgeResult{Cutoff: cutoff}, fmt.Errorf("purge activity logs: %w", err)
	}
	s.metrics.RecordPurge(removed)
	s.logger.Info("activity logs purged", zap.Time("cutoff", cutoff), zap.Int64("removed", removed))
	return PurgeResult{Cutoff: cutoff, Removed: removed}, nil
}
