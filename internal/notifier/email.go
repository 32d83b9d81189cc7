package notifier

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig holds the static SMTP destination for the email channel.
// Unlike the teacher's sender_email.go, which reloads SMTPConfig from the
// settings repository on every Send so changes made through its admin API
// take effect without a restart, this domain has no settings store — the
// config is captured once at New and held for the process lifetime.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string // recipients notified on every alert
	TLS      bool     // true = implicit TLS (SMTPS); false = plaintext/STARTTLS
}

// emailSender delivers notifications via SMTP, following the teacher's two
// connection modes keyed on SMTPConfig.TLS.
type emailSender struct {
	cfg SMTPConfig
}

func newEmailSender(cfg SMTPConfig) *emailSender {
	return &emailSender{cfg: cfg}
}

func (s *emailSender) name() string { return "email" }

func (s *emailSender) send(summary, body string, urgency Urgency, icon Icon, timeoutMs int) error {
	subject := summary
	if urgency == UrgencyCritical {
		subject = "[critical] " + subject
	}

	msg := buildEmail(s.cfg.From, s.cfg.To, subject, body)
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	if s.cfg.TLS {
		return s.sendTLS(addr, s.cfg.To, msg)
	}
	return s.sendPlain(addr, s.cfg.To, msg)
}

func (s *emailSender) sendPlain(addr string, to []string, msg []byte) error {
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, to, msg); err != nil {
		return fmt.Errorf("smtp.SendMail: %w", err)
	}
	return nil
}

func (s *emailSender) sendTLS(addr string, to []string, msg []byte) error {
	tlsCfg := &tls.Config{
		ServerName: s.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsCfg)
	if err != nil {
		return fmt.Errorf("tls.Dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp.NewClient: %w", err)
	}
	defer client.Close()

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, r := range to {
		if err := client.Rcpt(r); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", r, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}

	return client.Quit()
}

// buildEmail composes a minimal RFC 5322 email message.
func buildEmail(from string, to []string, subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}
