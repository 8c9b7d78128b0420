package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrolink/fieldgate/pkg/cache"
	"github.com/agrolink/fieldgate/pkg/health"
	"github.com/agrolink/fieldgate/pkg/models"
)

func newTestAPI(t *testing.T) (*Server, *health.Monitor, *cache.TelemetryCache) {
	t.Helper()

	monitor := health.NewMonitor(filepath.Join(t.TempDir(), "health.json"), time.Hour)
	telemetryCache := cache.New(10)

	return NewServer(monitor, telemetryCache), monitor, telemetryCache
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, req)

	return recorder
}

func TestGetHealth(t *testing.T) {
	s, monitor, _ := newTestAPI(t)

	monitor.Update("sensor_gateway", true, "Modbus connected")

	recorder := get(t, s, "/api/health")
	require.Equal(t, http.StatusOK, recorder.Code)

	var states map[string]models.HealthState
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &states))
	require.Contains(t, states, "sensor_gateway")
	assert.True(t, states["sensor_gateway"].Healthy)
}

func TestGetTelemetryChannel(t *testing.T) {
	s, _, telemetryCache := newTestAPI(t)

	telemetryCache.Store(models.ChannelHistoricalEnvironment, models.Reading{
		Label:     models.LabelHistoricalEnv,
		Timestamp: "2025-06-01 09:00:00",
	})

	recorder := get(t, s, "/api/telemetry/historical_env")
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		Channel  models.Channel   `json:"channel"`
		Readings []models.Reading `json:"readings"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, models.ChannelHistoricalEnvironment, payload.Channel)
	require.Len(t, payload.Readings, 1)
	assert.Equal(t, models.LabelHistoricalEnv, payload.Readings[0].Label)
}

func TestGetTelemetryUnknownChannel(t *testing.T) {
	s, _, _ := newTestAPI(t)

	recorder := get(t, s, "/api/telemetry/bogus")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
