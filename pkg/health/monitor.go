// Package health pkg/health/monitor.go tracks per-component health and
// periodically persists a snapshot to disk.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agrolink/fieldgate/pkg/alerts"
	"github.com/agrolink/fieldgate/pkg/models"
)

const alertTimeout = 10 * time.Second

// fileEntry is the on-disk shape of one component's state.
type fileEntry struct {
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Monitor is a thread-safe registry of component health states with a
// background writer that snapshots the registry to a JSON file.
type Monitor struct {
	filePath string
	interval time.Duration
	alerters []alerts.Alerter

	mu     sync.Mutex
	states map[string]models.HealthState

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	running  bool
	runMu    sync.Mutex
}

// NewMonitor creates a registry that writes to filePath every interval.
// Alerters, if any, are notified when a component turns unhealthy.
func NewMonitor(filePath string, interval time.Duration, alerters ...alerts.Alerter) *Monitor {
	return &Monitor{
		filePath: filePath,
		interval: interval,
		alerters: alerters,
		states:   make(map[string]models.HealthState),
		done:     make(chan struct{}),
	}
}

// Start launches the periodic writer. Repeated calls are no-ops.
func (m *Monitor) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return
	}

	m.running = true

	m.wg.Add(1)
	go m.writerLoop()
}

// Stop halts the writer after one final flush.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

// Update replaces the entry for component and stamps it with the current
// wall time. Last writer wins.
func (m *Monitor) Update(component string, healthy bool, detail string) {
	m.mu.Lock()
	prev, existed := m.states[component]
	m.states[component] = models.HealthState{
		Healthy:   healthy,
		Detail:    detail,
		UpdatedAt: time.Now(),
	}
	m.mu.Unlock()

	if !healthy && (!existed || prev.Healthy) {
		m.fireAlerts(component, detail)
	}
}

// Snapshot returns a consistent copy of the registry.
func (m *Monitor) Snapshot() map[string]models.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]models.HealthState, len(m.states))
	for component, state := range m.states {
		snapshot[component] = state
	}

	return snapshot
}

func (m *Monitor) writerLoop() {
	defer m.wg.Done()

	for {
		m.flushToDisk()

		select {
		case <-m.done:
			m.flushToDisk()
			return
		case <-time.After(m.interval):
		}
	}
}

func (m *Monitor) flushToDisk() {
	snapshot := m.Snapshot()

	entries := make(map[string]fileEntry, len(snapshot))
	for component, state := range snapshot {
		entries[component] = fileEntry{
			Healthy:   state.Healthy,
			Detail:    state.Detail,
			UpdatedAt: state.UpdatedAt.Unix(),
		}
	}

	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		log.Printf("Failed to render health snapshot: %v", err)
		return
	}

	if dir := filepath.Dir(m.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("Failed to create health status directory %s: %v", dir, err)
			return
		}
	}

	if err := os.WriteFile(m.filePath, data, 0o644); err != nil {
		log.Printf("Failed to persist health information: %v", err)
	}
}

func (m *Monitor) fireAlerts(component, detail string) {
	if len(m.alerters) == 0 {
		return
	}

	alert := &alerts.Alert{
		Level:     alerts.Error,
		Component: component,
		Detail:    detail,
	}

	for _, alerter := range m.alerters {
		if !alerter.IsEnabled() {
			continue
		}

		go func(a alerts.Alerter) {
			ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
			defer cancel()

			if err := a.Alert(ctx, alert); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Failed to deliver health alert for %s: %v", component, err)
			}
		}(alerter)
	}
}
