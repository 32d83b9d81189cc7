package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookConfig holds the static outbound webhook destination. As with
// SMTPConfig, this is captured once at New rather than reloaded per-send
// from a settings store.
type WebhookConfig struct {
	URL     string
	Secret  string // optional HMAC-SHA256 signing secret
	Enabled bool
}

// webhookPayload is the JSON body posted to the configured webhook URL,
// kept Slack/Discord-compatible via the "text" field.
type webhookPayload struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"text"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// webhookSender delivers notifications via an outbound HTTP POST, signing
// the body with HMAC-SHA256 when a secret is configured.
type webhookSender struct {
	client *http.Client
	cfg    WebhookConfig
}

func newWebhookSender(cfg WebhookConfig) *webhookSender {
	return &webhookSender{
		client: &http.Client{Timeout: 10 * time.Second},
		cfg:    cfg,
	}
}

func (s *webhookSender) name() string { return "webhook" }

func (s *webhookSender) send(summary, body string, urgency Urgency, icon Icon, timeoutMs int) error {
	if !s.cfg.Enabled || s.cfg.URL == "" {
		return nil
	}

	data, err := json.Marshal(webhookPayload{
		Type:      string(urgency),
		Title:     summary,
		Body:      body,
		Payload:   map[string]any{"icon": string(icon), "timeout_ms": timeoutMs},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hostfleetd-webhook/1.0")

	// Signature convention follows GitHub/Stripe: X-<Name>-Signature: sha256=<hex>.
	if s.cfg.Secret != "" {
		req.Header.Set("X-Hostfleetd-Signature", "sha256="+hmacSHA256(data, s.cfg.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status %d", resp.StatusCode)
	}
	return nil
}

func hmacSHA256(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
