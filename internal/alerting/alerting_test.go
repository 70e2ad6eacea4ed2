package alerting

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendAcquisitionAlert_Generic(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("invalid payload: %v", err)
		}
	}))
	defer srv.Close()

	a := NewAlerter(AlertConfig{
		WebhookURL:             srv.URL,
		WebhookType:            "generic",
		Enabled:                true,
		MinFailuresBeforeAlert: 2,
		Timeout:                5 * time.Second,
	})

	alert := AcquisitionAlert{
		Subscription:        "home",
		Provider:            "xcel_energy",
		Tier:                "static",
		Error:               "HTTP 503",
		Attempts:            3,
		ConsecutiveFailures: 2,
		Timestamp:           time.Now(),
	}
	if err := a.SendAcquisitionAlert(context.Background(), alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["alert_type"] != "acquisition_degraded" {
		t.Errorf("unexpected alert_type: %v", got["alert_type"])
	}
	if got["tier"] != "static" {
		t.Errorf("unexpected tier: %v", got["tier"])
	}
}

func TestSendAcquisitionAlert_BelowThreshold(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	a := NewAlerter(AlertConfig{
		WebhookURL:             srv.URL,
		WebhookType:            "generic",
		Enabled:                true,
		MinFailuresBeforeAlert: 3,
		Timeout:                5 * time.Second,
	})
	alert := AcquisitionAlert{Subscription: "home", ConsecutiveFailures: 1}
	if err := a.SendAcquisitionAlert(context.Background(), alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Errorf("expected no webhook below threshold")
	}
}

func TestSendAcquisitionAlert_Disabled(t *testing.T) {
	a := NewAlerter(AlertConfig{Enabled: false})
	alert := AcquisitionAlert{Subscription: "home", ConsecutiveFailures: 10}
	if err := a.SendAcquisitionAlert(context.Background(), alert); err != nil {
		t.Fatalf("disabled alerter should be a no-op, got %v", err)
	}
}

func TestSendAcquisitionAlert_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(AlertConfig{
		WebhookURL:             srv.URL,
		WebhookType:            "slack",
		Enabled:                true,
		MinFailuresBeforeAlert: 1,
		Timeout:                5 * time.Second,
	})
	alert := AcquisitionAlert{Subscription: "home", ConsecutiveFailures: 1}
	if err := a.SendAcquisitionAlert(context.Background(), alert); err == nil {
		t.Fatalf("expected error on HTTP 500")
	}
}

func TestSendRecovery(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	a := NewAlerter(AlertConfig{
		WebhookURL:  srv.URL,
		WebhookType: "generic",
		Enabled:     true,
		Timeout:     5 * time.Second,
	})
	if err := a.SendRecovery(context.Background(), "home", "xcel_energy"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["alert_type"] != "acquisition_recovered" {
		t.Errorf("unexpected alert_type: %v", got["alert_type"])
	}
}

func TestDefaultAlertConfig_TypeDetection(t *testing.T) {
	t.Setenv("ALERT_WEBHOOK_URL", "https://hooks.slack.com/services/T000/B000/XXX")
	t.Setenv("ALERT_WEBHOOK_TYPE", "")
	t.Setenv("ALERT_MIN_FAILURES", "4")
	t.Setenv("SENDGRID_API_KEY", "")
	t.Setenv("ALERT_EMAIL_TO", "")
	t.Setenv("ALERT_EMAIL_FROM", "")

	cfg := DefaultAlertConfig()
	if !cfg.Enabled {
		t.Errorf("expected enabled with webhook url set")
	}
	if cfg.WebhookType != "slack" {
		t.Errorf("expected slack detection, got %q", cfg.WebhookType)
	}
	if cfg.MinFailuresBeforeAlert != 4 {
		t.Errorf("expected threshold 4, got %d", cfg.MinFailuresBeforeAlert)
	}
}
