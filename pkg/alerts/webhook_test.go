package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertPostsJSON(t *testing.T) {
	var received atomic.Pointer[Alert]

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		received.Store(&alert)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	alerter := NewWebhookAlerter(WebhookConfig{
		Enabled: true,
		URL:     server.URL,
		Headers: []Header{{Key: "Authorization", Value: "Bearer token"}},
	})

	err := alerter.Alert(context.Background(), &Alert{
		Level:     Error,
		Component: "sensor_gateway",
		Detail:    "connection error",
	})
	require.NoError(t, err)

	alert := received.Load()
	require.NotNil(t, alert)
	assert.Equal(t, "sensor_gateway", alert.Component)
	assert.NotEmpty(t, alert.Timestamp)
}

func TestAlertDisabled(t *testing.T) {
	alerter := NewWebhookAlerter(WebhookConfig{Enabled: false})

	assert.False(t, alerter.IsEnabled())
	assert.ErrorIs(t, alerter.Alert(context.Background(), &Alert{Component: "x"}), errWebhookDisabled)
}

func TestCooldownSuppressesRepeats(t *testing.T) {
	var calls atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	alerter := NewWebhookAlerter(WebhookConfig{
		Enabled:  true,
		URL:      server.URL,
		Cooldown: time.Hour,
	})

	require.NoError(t, alerter.Alert(context.Background(), &Alert{Component: "sensor_gateway"}))
	assert.ErrorIs(t, alerter.Alert(context.Background(), &Alert{Component: "sensor_gateway"}), errWebhookCooldown)

	// A different component is not in cooldown.
	require.NoError(t, alerter.Alert(context.Background(), &Alert{Component: "video_relay"}))

	assert.EqualValues(t, 2, calls.Load())
}

func TestNon2xxStatusIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	alerter := NewWebhookAlerter(WebhookConfig{Enabled: true, URL: server.URL})

	assert.ErrorIs(t, alerter.Alert(context.Background(), &Alert{Component: "x"}), errWebhookStatus)
}

func TestWebhookConfigCooldownParsing(t *testing.T) {
	var cfg WebhookConfig
	require.NoError(t, json.Unmarshal([]byte(`{"enabled":true,"url":"http://x","cooldown":"90s"}`), &cfg))

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Cooldown)
}
