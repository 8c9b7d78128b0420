package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agrolink/fieldgate/pkg/models"
)

func TestEnvReadingDecodesRelationColumns(t *testing.T) {
	row := historyRow{
		time: sql.NullString{String: "2025-06-01 09:00:00", Valid: true},
		a:    sql.NullFloat64{Float64: 21.5, Valid: true},
		b:    sql.NullFloat64{Float64: 48.2, Valid: true},
		c:    sql.NullFloat64{Float64: 812.3, Valid: true},
	}

	reading := envReading(row)

	assert.Equal(t, models.LabelHistoricalEnv, reading.Label)
	assert.Equal(t, "2025-06-01 09:00:00", reading.Timestamp)
	assert.Equal(t, 21.5, reading.Temperature)
	assert.Equal(t, 48.2, reading.Humidity)
	assert.Equal(t, 812.3, reading.Light)

	// Columns the relation does not carry stay zero.
	assert.Zero(t, reading.Soil)
	assert.Zero(t, reading.Gas)
	assert.Zero(t, reading.Raindrop)
}

func TestSoilReadingDecodesRelationColumns(t *testing.T) {
	row := historyRow{
		time: sql.NullString{String: "2025-06-01 09:05:00", Valid: true},
		a:    sql.NullFloat64{Float64: 33.1, Valid: true},
		b:    sql.NullFloat64{Float64: 1.02, Valid: true},
		c:    sql.NullFloat64{Float64: 0.4, Valid: true},
	}

	reading := soilReading(row)

	assert.Equal(t, models.LabelHistoricalSoil, reading.Label)
	assert.Equal(t, 33.1, reading.Soil)
	assert.Equal(t, 1.02, reading.Gas)
	assert.Equal(t, 0.4, reading.Raindrop)
	assert.Zero(t, reading.Temperature)
}

func TestNullCellsBecomeZeroAndNA(t *testing.T) {
	reading := envReading(historyRow{})

	assert.Equal(t, "N/A", reading.Timestamp)
	assert.Zero(t, reading.Temperature)
	assert.Zero(t, reading.Humidity)
	assert.Zero(t, reading.Light)
}

func TestReverseYieldsChronologicalOrder(t *testing.T) {
	// Query order is newest first (ORDER BY time DESC).
	readings := []models.Reading{
		{Timestamp: "2025-06-01 09:03:00"},
		{Timestamp: "2025-06-01 09:02:00"},
		{Timestamp: "2025-06-01 09:01:00"},
	}

	reverse(readings)

	assert.Equal(t, "2025-06-01 09:01:00", readings[0].Timestamp)
	assert.Equal(t, "2025-06-01 09:02:00", readings[1].Timestamp)
	assert.Equal(t, "2025-06-01 09:03:00", readings[2].Timestamp)
}

func TestReverseHandlesShortSlices(t *testing.T) {
	var empty []models.Reading
	reverse(empty)
	assert.Empty(t, empty)

	one := []models.Reading{{Timestamp: "2025-06-01 09:00:00"}}
	reverse(one)
	assert.Equal(t, "2025-06-01 09:00:00", one[0].Timestamp)
}

func TestDSN(t *testing.T) {
	dsn := DSN("devuser", "secret", "192.168.31.250", 3306, "testdb")
	assert.Equal(t, "devuser:secret@tcp(192.168.31.250:3306)/testdb", dsn)
}
