// Package notifier implements the notifier collaborator (spec §6): a
// notify(summary, body, urgency, icon, timeout_ms) sink for human-visible
// alerts. The default MultiNotifier fans out to a best-effort desktop
// notification and the teacher's email/webhook sender shapes
// (server/internal/notification/sender_email.go, sender_webhook.go),
// simplified from the teacher's per-recipient DB fan-out (this domain has
// no user/admin table) down to a single configured destination per
// channel. Every sender's errors are logged, never propagated — spec §7
// requires that notifier failures never abort the caller.
package notifier

import (
	"go.uber.org/zap"
)

// Urgency is the closed urgency enum (spec §6).
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyCritical Urgency = "critical"
)

// Icon is the closed icon enum (spec §6), mapped to freedesktop.org icon
// names by iconName.
type Icon string

const (
	IconInfo    Icon = "info"
	IconWarning Icon = "warning"
	IconError   Icon = "error"
)

func iconName(icon Icon) string {
	switch icon {
	case IconWarning:
		return "dialog-warning"
	case IconError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}

// Notifier is the notify sink the core consumes for human-visible alerts.
type Notifier interface {
	Notify(summary, body string, urgency Urgency, icon Icon, timeoutMs int)
}

// sender is implemented by each delivery channel. Send errors are
// swallowed by MultiNotifier and only ever logged.
type sender interface {
	send(summary, body string, urgency Urgency, icon Icon, timeoutMs int) error
	name() string
}

// MultiNotifier fans a single notify call out to every configured
// channel. Construct with New and WithX options; channels left unset are
// simply not exercised.
type MultiNotifier struct {
	senders []sender
	logger  *zap.Logger
}

// Option configures a MultiNotifier at construction.
type Option func(*MultiNotifier)

// WithDesktop enables best-effort desktop notifications via notify-send.
func WithDesktop() Option {
	return func(m *MultiNotifier) { m.senders = append(m.senders, newDesktopSender()) }
}

// WithEmail enables email delivery through the given SMTP configuration.
func WithEmail(cfg SMTPConfig) Option {
	return func(m *MultiNotifier) { m.senders = append(m.senders, newEmailSender(cfg)) }
}

// WithWebhook enables outbound webhook delivery.
func WithWebhook(cfg WebhookConfig) Option {
	return func(m *MultiNotifier) { m.senders = append(m.senders, newWebhookSender(cfg)) }
}

// New constructs a MultiNotifier with the given channels.
func New(logger *zap.Logger, opts ...Option) *MultiNotifier {
	m := &MultiNotifier{logger: logger.Named("notifier")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Notify fans out to every configured channel. timeoutMs is honored only
// by the desktop channel (notify-send's own expire-time argument); it is
// accepted here so the signature matches spec §6's sink exactly.
func (m *MultiNotifier) Notify(summary, body string, urgency Urgency, icon Icon, timeoutMs int) {
	for _, s := range m.senders {
		if err := s.send(summary, body, urgency, icon, timeoutMs); err != nil {
			m.logger.Warn("notification delivery failed",
				zap.String("channel", s.name()),
				zap.Error(err),
			)
		}
	}
}
