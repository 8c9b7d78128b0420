// Package alerts delivers health transition notifications to webhooks.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

var (
	errWebhookDisabled = fmt.Errorf("webhook alerter is disabled")
	errWebhookCooldown = fmt.Errorf("alert is within cooldown period")
	errWebhookStatus   = fmt.Errorf("webhook returned non-2xx status")
)

// AlertLevel grades the severity of an alert.
type AlertLevel string

const (
	Warning AlertLevel = "warning"
	Error   AlertLevel = "error"
)

// Alert describes one component health transition.
type Alert struct {
	Level     AlertLevel `json:"level"`
	Component string     `json:"component"`
	Detail    string     `json:"detail"`
	Timestamp string     `json:"timestamp"`
}

// Alerter delivers alerts somewhere external.
type Alerter interface {
	Alert(ctx context.Context, alert *Alert) error
	IsEnabled() bool
}

// Header is a custom HTTP header attached to webhook requests.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WebhookConfig configures one webhook destination.
type WebhookConfig struct {
	Enabled  bool          `json:"enabled"`
	URL      string        `json:"url"`
	Headers  []Header      `json:"headers,omitempty"`
	Cooldown time.Duration `json:"cooldown,omitempty"`
}

// UnmarshalJSON parses the cooldown from a duration string.
func (w *WebhookConfig) UnmarshalJSON(data []byte) error {
	type Alias WebhookConfig

	aux := &struct {
		Cooldown string `json:"cooldown"`
		*Alias
	}{
		Alias: (*Alias)(w),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Cooldown != "" {
		duration, err := time.ParseDuration(aux.Cooldown)
		if err != nil {
			return fmt.Errorf("invalid cooldown format: %w", err)
		}

		w.Cooldown = duration
	}

	return nil
}

// WebhookAlerter posts alerts as JSON to a configured URL, suppressing
// repeats of the same component within the cooldown window.
type WebhookAlerter struct {
	config         WebhookConfig
	client         *http.Client
	mu             sync.Mutex
	lastAlertTimes map[string]time.Time
}

// NewWebhookAlerter creates an alerter for the given destination.
func NewWebhookAlerter(config WebhookConfig) *WebhookAlerter {
	return &WebhookAlerter{
		config: config,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		lastAlertTimes: make(map[string]time.Time),
	}
}

// IsEnabled reports whether this destination is active.
func (w *WebhookAlerter) IsEnabled() bool {
	return w.config.Enabled
}

// Alert delivers one alert, honouring the cooldown.
func (w *WebhookAlerter) Alert(ctx context.Context, alert *Alert) error {
	if !w.IsEnabled() {
		return errWebhookDisabled
	}

	if err := w.checkCooldown(alert.Component); err != nil {
		return err
	}

	if alert.Timestamp == "" {
		alert.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	return w.sendRequest(ctx, payload)
}

func (w *WebhookAlerter) checkCooldown(component string) error {
	if w.config.Cooldown <= 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	last, exists := w.lastAlertTimes[component]
	if exists && time.Since(last) < w.config.Cooldown {
		return errWebhookCooldown
	}

	w.lastAlertTimes[component] = time.Now()

	return nil
}

func (w *WebhookAlerter) sendRequest(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for _, h := range w.config.Headers {
		req.Header.Set(h.Key, h.Value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status=%d body=%s", errWebhookStatus, resp.StatusCode, body)
	}

	return nil
}
