package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrolink/fieldgate/pkg/models"
)

func reading(n int) models.Reading {
	return models.Reading{
		Label:     models.LabelRealtime,
		Timestamp: fmt.Sprintf("2025-06-01 10:00:%02d", n),
		Soil:      float64(n),
	}
}

func TestStoreAndSnapshot(t *testing.T) {
	c := New(3)

	for i := 0; i < 2; i++ {
		c.Store(models.ChannelRealtime, reading(i))
	}

	snapshot := c.Snapshot(models.ChannelRealtime)
	require.Len(t, snapshot, 2)
	assert.Equal(t, reading(0), snapshot[0])
	assert.Equal(t, reading(1), snapshot[1])
}

func TestOverflowDropsOldest(t *testing.T) {
	const capacity = 3

	c := New(capacity)

	for i := 0; i < 10; i++ {
		c.Store(models.ChannelRealtime, reading(i))
	}

	snapshot := c.Snapshot(models.ChannelRealtime)
	require.Len(t, snapshot, capacity)

	for i, r := range snapshot {
		assert.Equal(t, reading(10-capacity+i), r)
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	c := New(5)

	c.Store(models.ChannelRealtime, reading(1))
	c.Store(models.ChannelHistoricalEnvironment, reading(2))

	assert.Len(t, c.Snapshot(models.ChannelRealtime), 1)
	assert.Len(t, c.Snapshot(models.ChannelHistoricalEnvironment), 1)
	assert.Empty(t, c.Snapshot(models.ChannelHistoricalSoil))
}

func TestSnapshotDoesNotAliasInternalStorage(t *testing.T) {
	c := New(5)
	c.Store(models.ChannelRealtime, reading(1))

	snapshot := c.Snapshot(models.ChannelRealtime)
	snapshot[0].Soil = 999

	fresh := c.Snapshot(models.ChannelRealtime)
	assert.Equal(t, float64(1), fresh[0].Soil)
}

func TestSnapshotAll(t *testing.T) {
	c := New(5)

	c.Store(models.ChannelRealtime, reading(1))
	c.Store(models.ChannelHistoricalEnvironment, reading(2))
	c.Store(models.ChannelHistoricalSoil, reading(3))

	assert.Len(t, c.SnapshotAll(), 3)
}

func TestConcurrentAccess(t *testing.T) {
	c := New(10)
	done := make(chan bool)

	const goroutines = 8

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				c.Store(models.ChannelRealtime, reading(id*100+j))
				_ = c.Snapshot(models.ChannelRealtime)
			}
			done <- true
		}(i)
	}

	for i := 0; i < goroutines; i++ {
		<-done
	}

	assert.Len(t, c.Snapshot(models.ChannelRealtime), 10)
}
