package notify

import (
	"bytes"
	"context"
	"net/smtp"

	"go.uber.org/zap"
)

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig describes the mail relay.
type SMTPConfig struct {
	Addr     string
	Host     string
	Username string
	Password string
	From     string
}

// SMTPNotifier delivers plain-text mail through an SMTP relay.
type SMTPNotifier struct {
	cfg      SMTPConfig
	logger   *zap.Logger
	sendMail SendMailFunc
}

// NewSMTPNotifier builds a notifier. A nil send uses smtp.SendMail.
func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger, send SendMailFunc) *SMTPNotifier {
	if send == nil {
		send = smtp.SendMail
	}
	return &SMTPNotifier{cfg: cfg, logger: logger, sendMail: send}
}

// Send makes one delivery attempt. Messages are not sent without credentials.
func (n *SMTPNotifier) Send(_ context.Context, to, subject, body string) bool {
	if n.cfg.Username == "" || n.cfg.Password == "" {
		n.logger.Warn("smtp credentials not configured; dropping notification", zap.String("to", to))
		return false
	}
	to = sanitizeHeader(to)
	if to == "" {
		return false
	}
	from := sanitizeHeader(n.cfg.From)

	var msg bytes.Buffer
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	if err := n.sendMail(n.cfg.Addr, auth, from, []string{to}, msg.Bytes()); err != nil {
		n.logger.Warn("smtp send failed", zap.String("to", to), zap.Error(err))
		return false
	}
	return true
}
