package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/medsupport/helpdesk/internal/clock"
	"github.com/medsupport/helpdesk/internal/service"
)

// Sweeper runs one SLA pass.
type Sweeper interface {
	Sweep(ctx context.Context, actorID *string, now time.Time) (service.SweepSummary, error)
}

// SLASweeper periodically escalates breached tickets nobody is looking at.
type SLASweeper struct {
	sweeper  Sweeper
	interval time.Duration
	clock    clock.Clock
	actorID  *string
	logger   *zap.Logger
}

// NewSLASweeper builds a sweeper. A non-positive interval disables Run.
func NewSLASweeper(sweeper Sweeper, interval time.Duration, clk clock.Clock, actorID *string, logger *zap.Logger) *SLASweeper {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLASweeper{sweeper: sweeper, interval: interval, clock: clk, actorID: actorID, logger: logger}
}

// Enabled reports whether Run does anything.
func (s *SLASweeper) Enabled() bool {
	return s.interval > 0
}

// Run sweeps every interval until ctx is cancelled.
func (s *SLASweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sla sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sla sweeper stopped")
			return
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep at the clock's current time.
func (s *SLASweeper) RunOnce(ctx context.Context) (service.SweepSummary, error) {
	summary, err := s.sweeper.Sweep(ctx, s.actorID, s.clock.Now())
	if err != nil {
		s.logger.Error("sla sweep failed", zap.Error(err))
		return summary, err
	}
	s.logger.Info("sla sweep complete",
		zap.Int("checked", summary.Checked),
		zap.Int("escalated", summary.Escalated),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}
