package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Pusher is the slice of the redis client the queue notifier needs.
type Pusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// QueueNotifier hands messages to a Redis list for the notification worker.
type QueueNotifier struct {
	client Pusher
	key    string
	logger *zap.Logger
}

// NewQueueNotifier builds a QueueNotifier writing to key.
func NewQueueNotifier(client Pusher, key string, logger *zap.Logger) *QueueNotifier {
	return &QueueNotifier{client: client, key: key, logger: logger}
}

// Send enqueues the message. True means it was queued, not delivered.
func (n *QueueNotifier) Send(ctx context.Context, to, subject, body string) bool {
	payload, err := json.Marshal(Message{To: to, Subject: subject, Body: body})
	if err != nil {
		n.logger.Warn("encode notification", zap.Error(err))
		return false
	}
	if err := n.client.RPush(ctx, n.key, payload).Err(); err != nil {
		n.logger.Warn("enqueue notification failed", zap.String("to", to), zap.Error(err))
		return false
	}
	return true
}

// Decode parses a queued payload.
func Decode(raw string) (Message, error) {
	var msg Message
	err := json.Unmarshal([]byte(raw), &msg)
	return msg, err
}
