package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/medsupport/helpdesk/internal/notify"
	"github.com/medsupport/helpdesk/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// Popper is the slice of the redis client the worker needs.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// NotificationWorker drains the notification queue into a delivery channel.
type NotificationWorker struct {
	queue      Popper
	key        string
	delivery   notify.Notifier
	limiter    *rate.Limiter
	logger     *zap.Logger
	popTimeout time.Duration
	backoff    time.Duration
}

// NewNotificationWorker builds a worker. ratePerSecond <= 0 disables throttling.
func NewNotificationWorker(queue Popper, key string, delivery notify.Notifier, ratePerSecond float64, logger *zap.Logger) *NotificationWorker {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		queue:      queue,
		key:        key,
		delivery:   delivery,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		popTimeout: 5 * time.Second,
		backoff:    time.Second,
	}
}

// Run processes messages until ctx is cancelled.
func (w *NotificationWorker) Run(ctx context.Context) {
	w.logger.Info("notification worker started", zap.String("queue", w.key))
	for {
		if ctx.Err() != nil {
			w.logger.Info("notification worker stopped")
			return
		}
		if _, err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("notification queue error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.backoff):
			}
		}
	}
}

// ProcessOne waits for one queued message and delivers it. It reports whether
// a message was taken off the queue. Undecodable payloads are dropped.
func (w *NotificationWorker) ProcessOne(ctx context.Context) (bool, error) {
	res, err := w.queue.BLPop(ctx, w.popTimeout, w.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pop notification: %w", err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("pop notification: unexpected reply %v", res)
	}

	msg, err := notify.Decode(res[1])
	if err != nil {
		w.logger.Error("dropping undecodable notification", zap.Error(err))
		return true, nil
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return true, err
	}
	if !w.delivery.Send(ctx, msg.To, msg.Subject, msg.Body) {
		w.logger.Warn("notification delivery failed", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	}
	return true, nil
}
