// Package notify delivers outbound email notifications.
package notify

import (
	"context"
	"strings"
)

// Notifier sends a single message and reports whether it was accepted.
// Implementations never return errors; failures are logged and reported as false.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) bool
}

// Message is the unit of delivery carried on the queue.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, to, subject, body string) bool

// Send calls f.
func (f Func) Send(ctx context.Context, to, subject, body string) bool {
	return f(ctx, to, subject, body)
}

// Recorder observes delivery attempts.
type Recorder interface {
	ObserveNotification(channel string, delivered bool)
}

type instrumented struct {
	next     Notifier
	channel  string
	recorder Recorder
}

// WithRecorder reports every Send on next to recorder under channel.
func WithRecorder(next Notifier, channel string, recorder Recorder) Notifier {
	if recorder == nil {
		return next
	}
	return &instrumented{next: next, channel: channel, recorder: recorder}
}

func (n *instrumented) Send(ctx context.Context, to, subject, body string) bool {
	ok := n.next.Send(ctx, to, subject, body)
	n.recorder.ObserveNotification(n.channel, ok)
	return ok
}

// sanitizeHeader strips CR and LF so values cannot inject headers.
func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	v = strings.ReplaceAll(v, "\n", "")
	return strings.TrimSpace(v)
}
