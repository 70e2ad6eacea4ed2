package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom)
	WebhookURL string
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string
	// Enabled controls whether alerts are sent
	Enabled bool
	// MinFailuresBeforeAlert is the number of consecutive degraded
	// cycles a subscription must accumulate before the first alert
	MinFailuresBeforeAlert int
	// Timeout for HTTP requests
	Timeout time.Duration

	// Email channel (optional, sendgrid).
	SendgridAPIKey string
	EmailFrom      string
	EmailTo        string
}

// DefaultAlertConfig returns config from environment variables.
func DefaultAlertConfig() AlertConfig {
	cfg := AlertConfig{
		WebhookURL:             os.Getenv("ALERT_WEBHOOK_URL"),
		WebhookType:            os.Getenv("ALERT_WEBHOOK_TYPE"),
		SendgridAPIKey:         os.Getenv("SENDGRID_API_KEY"),
		EmailFrom:              os.Getenv("ALERT_EMAIL_FROM"),
		EmailTo:                os.Getenv("ALERT_EMAIL_TO"),
		MinFailuresBeforeAlert: 1,
		Timeout:                10 * time.Second,
	}

	cfg.Enabled = cfg.WebhookURL != "" || (cfg.SendgridAPIKey != "" && cfg.EmailTo != "")

	if cfg.WebhookType == "" {
		// Auto-detect from URL
		if strings.Contains(cfg.WebhookURL, "slack.com") {
			cfg.WebhookType = "slack"
		} else if strings.Contains(cfg.WebhookURL, "discord.com") {
			cfg.WebhookType = "discord"
		} else {
			cfg.WebhookType = "generic"
		}
	}

	if v := os.Getenv("ALERT_MIN_FAILURES"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			cfg.MinFailuresBeforeAlert = n
		}
	}

	return cfg
}

// Alerter sends degraded-acquisition and recovery notices.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg AlertConfig) *Alerter {
	return &Alerter{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// AcquisitionAlert describes one subscription whose acquisition cycle
// landed on a fallback tier instead of live data.
type AcquisitionAlert struct {
	Subscription        string
	Provider            string
	Tier                string // cache, static, empty
	Error               string
	Attempts            int
	ConsecutiveFailures int
	Timestamp           time.Time
}

// SendAcquisitionAlert notifies the configured channels that a tariff
// is being served from a fallback tier. Below the consecutive-failure
// threshold it is a no-op.
func (a *Alerter) SendAcquisitionAlert(ctx context.Context, alert AcquisitionAlert) error {
	if !a.cfg.Enabled {
		return nil
	}
	if alert.ConsecutiveFailures < a.cfg.MinFailuresBeforeAlert {
		log.Printf("alerting: %s at %d consecutive failures, below threshold %d",
			alert.Subscription, alert.ConsecutiveFailures, a.cfg.MinFailuresBeforeAlert)
		return nil
	}

	subject := fmt.Sprintf("Tariff acquisition degraded: %s", alert.Subscription)
	body := fmt.Sprintf("Subscription %s (provider %s) is serving %s data after %d attempts: %s",
		alert.Subscription, alert.Provider, alert.Tier, alert.Attempts, alert.Error)

	var payload []byte
	var err error
	switch a.cfg.WebhookType {
	case "slack":
		payload, err = a.buildSlackPayload(alert)
	case "discord":
		payload, err = a.buildDiscordPayload(alert)
	default:
		payload, err = a.buildGenericPayload("acquisition_degraded", alert)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}
	if err := a.deliver(ctx, payload, subject, body); err != nil {
		return err
	}
	log.Printf("alerting: sent degraded alert for %s (tier=%s)", alert.Subscription, alert.Tier)
	return nil
}

// SendRecovery notifies that a previously degraded subscription is
// back on live data.
func (a *Alerter) SendRecovery(ctx context.Context, subscription, provider string) error {
	if !a.cfg.Enabled {
		return nil
	}
	alert := AcquisitionAlert{
		Subscription: subscription,
		Provider:     provider,
		Tier:         "live",
		Timestamp:    time.Now(),
	}
	payload, err := a.buildGenericPayload("acquisition_recovered", alert)
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}
	subject := fmt.Sprintf("Tariff acquisition recovered: %s", subscription)
	body := fmt.Sprintf("Subscription %s (provider %s) is serving live data again.", subscription, provider)
	if err := a.deliver(ctx, payload, subject, body); err != nil {
		return err
	}
	log.Printf("alerting: sent recovery notice for %s", subscription)
	return nil
}

func (a *Alerter) deliver(ctx context.Context, webhookPayload []byte, subject, body string) error {
	if a.cfg.WebhookURL != "" {
		req, err := http.NewRequestWithContext(ctx, "POST", a.cfg.WebhookURL, bytes.NewReader(webhookPayload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
	}
	if a.cfg.SendgridAPIKey != "" && a.cfg.EmailTo != "" {
		if err := a.sendEmail(subject, body); err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	}
	return nil
}

func (a *Alerter) sendEmail(subject, body string) error {
	from := mail.NewEmail("tariffd", a.cfg.EmailFrom)
	to := mail.NewEmail("", a.cfg.EmailTo)
	message := mail.NewSingleEmail(from, subject, to, body, body)
	client := sendgrid.NewSendClient(a.cfg.SendgridAPIKey)
	resp, err := client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (a *Alerter) buildSlackPayload(alert AcquisitionAlert) ([]byte, error) {
	emoji := ":warning:"
	if alert.Tier == "empty" {
		emoji = ":x:"
	}

	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Tariff Acquisition Alert: %s", emoji, alert.Subscription),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Provider:*\n%s", alert.Provider)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Serving:*\n%s data", alert.Tier)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Attempts:*\n%d", alert.Attempts)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Consecutive failures:*\n%d", alert.ConsecutiveFailures)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Last error:*\n%s", alert.Error),
				},
			},
		},
	}

	return json.Marshal(payload)
}

func (a *Alerter) buildDiscordPayload(alert AcquisitionAlert) ([]byte, error) {
	color := 16776960 // Yellow
	if alert.Tier == "empty" {
		color = 16711680 // Red
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Tariff Acquisition Alert: %s", alert.Subscription),
				"description": fmt.Sprintf("Serving %s data", alert.Tier),
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Provider", "value": alert.Provider, "inline": true},
					{"name": "Attempts", "value": fmt.Sprintf("%d", alert.Attempts), "inline": true},
					{"name": "Consecutive failures", "value": fmt.Sprintf("%d", alert.ConsecutiveFailures), "inline": true},
					{"name": "Last error", "value": alert.Error, "inline": false},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}

	return json.Marshal(payload)
}

func (a *Alerter) buildGenericPayload(alertType string, alert AcquisitionAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":           alertType,
		"subscription":         alert.Subscription,
		"provider":             alert.Provider,
		"tier":                 alert.Tier,
		"error":                alert.Error,
		"attempts":             alert.Attempts,
		"consecutive_failures": alert.ConsecutiveFailures,
		"timestamp":            alert.Timestamp.Format(time.RFC3339),
	}

	return json.Marshal(payload)
}
