// Package cache pkg/cache/cache.go provides the per-channel bounded
// telemetry reading cache.
package cache

import (
	"sync"

	"github.com/agrolink/fieldgate/pkg/models"
)

// TelemetryCache keeps the most recent readings per channel, up to a
// fixed capacity. Overflow drops the oldest reading.
type TelemetryCache struct {
	capacity int

	mu      sync.Mutex
	buffers map[models.Channel][]models.Reading
}

// New creates a cache with the given per-channel capacity.
func New(capacityPerChannel int) *TelemetryCache {
	return &TelemetryCache{
		capacity: capacityPerChannel,
		buffers:  make(map[models.Channel][]models.Reading),
	}
}

// Store appends a reading to the channel's buffer, evicting the oldest
// entry when the buffer is full.
func (c *TelemetryCache) Store(channel models.Channel, reading models.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buffer := append(c.buffers[channel], reading)
	if len(buffer) > c.capacity {
		buffer = buffer[len(buffer)-c.capacity:]
	}

	c.buffers[channel] = buffer
}

// Snapshot returns an independent copy of the channel's buffer, oldest
// reading first.
func (c *TelemetryCache) Snapshot(channel models.Channel) []models.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()

	buffer := c.buffers[channel]
	snapshot := make([]models.Reading, len(buffer))
	copy(snapshot, buffer)

	return snapshot
}

// SnapshotAll returns every cached reading across channels. Channel
// order is unspecified; within a channel readings stay oldest first.
func (c *TelemetryCache) SnapshotAll() []models.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()

	var snapshot []models.Reading
	for _, buffer := range c.buffers {
		snapshot = append(snapshot, buffer...)
	}

	return snapshot
}
