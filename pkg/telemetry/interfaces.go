// Package telemetry pkg/telemetry/interfaces.go
package telemetry

import "github.com/agrolink/fieldgate/pkg/models"

// SensorReader provides realtime samples from the sensor cluster.
type SensorReader interface {
	ReadRealtime() (*models.Reading, error)
}

// HistoryLoader reads the two history relations, oldest first.
type HistoryLoader interface {
	LoadEnvironmental(limit int) ([]models.Reading, error)
	LoadSoilAndAir(limit int) ([]models.Reading, error)
}

// FramePublisher fans frames out to connected subscribers.
type FramePublisher interface {
	Publish(frame models.Frame)
	HasSubscribers() bool
	SetSnapshotProvider(provider func() []models.Frame)
}
