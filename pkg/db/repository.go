// Package db pkg/db/repository.go reads the two history relations.
package db

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/agrolink/fieldgate/pkg/config"
	"github.com/agrolink/fieldgate/pkg/health"
	"github.com/agrolink/fieldgate/pkg/models"
)

const healthComponent = "telemetry_repository"

const (
	queryEnvironmental = `SELECT time, temperature, humidity, light
FROM environmental_conditions ORDER BY time DESC LIMIT ?`
	querySoilAndAir = `SELECT time, soil, gas, raindrop
FROM soil_and_air_quality ORDER BY time DESC LIMIT ?`
)

// Repository loads historical readings from the external SQL store.
// The telemetry pipeline is its sole caller.
type Repository struct {
	cfg     config.DatabaseConfig
	monitor *health.Monitor
	db      *DB
}

// NewRepository connects to the historical store. A connect failure here
// is startup-fatal for the process.
func NewRepository(cfg config.DatabaseConfig, monitor *health.Monitor) (*Repository, error) {
	database, err := Open(DSN(cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Schema))
	if err != nil {
		return nil, err
	}

	monitor.Update(healthComponent, true, "Database connected")

	return &Repository{cfg: cfg, monitor: monitor, db: database}, nil
}

// Close releases the database handle.
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}

	return r.db.Close()
}

// LoadEnvironmental reads up to limit environment records, oldest first.
func (r *Repository) LoadEnvironmental(limit int) ([]models.Reading, error) {
	return r.load(queryEnvironmental, limit, envReading)
}

// LoadSoilAndAir reads up to limit soil/air records, oldest first.
func (r *Repository) LoadSoilAndAir(limit int) ([]models.Reading, error) {
	return r.load(querySoilAndAir, limit, soilReading)
}

func (r *Repository) load(query string, limit int, build func(row historyRow) models.Reading) ([]models.Reading, error) {
	r.refreshConnection()

	if r.db == nil {
		return nil, errFailedToQuery
	}

	rows, err := r.db.Query(query, limit)
	if err != nil {
		r.monitor.Update(healthComponent, false, fmt.Sprintf("query failed: %v", err))
		return nil, fmt.Errorf("%w: %w", errFailedToQuery, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("telemetry_repository: failed to close rows: %v", err)
		}
	}()

	var readings []models.Reading

	for rows.Next() {
		var row historyRow
		if err := rows.Scan(&row.time, &row.a, &row.b, &row.c); err != nil {
			r.monitor.Update(healthComponent, false, fmt.Sprintf("scan failed: %v", err))
			return nil, fmt.Errorf("%w: %w", errFailedToScan, err)
		}

		readings = append(readings, build(row))
	}

	if err := rows.Err(); err != nil {
		r.monitor.Update(healthComponent, false, fmt.Sprintf("row iteration failed: %v", err))
		return nil, fmt.Errorf("%w: %w", errFailedToQuery, err)
	}

	reverse(readings)
	r.monitor.Update(healthComponent, true, "History query succeeded")

	return readings, nil
}

// refreshConnection pings the store and reopens the handle once if the
// connection is down.
func (r *Repository) refreshConnection() {
	if r.db != nil {
		if err := r.db.Ping(); err == nil {
			return
		}
	}

	log.Printf("telemetry_repository: refreshing database connection")

	if r.db != nil {
		_ = r.db.Close()
		r.db = nil
	}

	database, err := Open(DSN(r.cfg.User, r.cfg.Password, r.cfg.Host, r.cfg.Port, r.cfg.Schema))
	if err != nil {
		r.monitor.Update(healthComponent, false, fmt.Sprintf("reconnect failed: %v", err))
		return
	}

	r.db = database
	r.monitor.Update(healthComponent, true, "Database reconnected")
}

// historyRow carries one scanned row: the time column plus the three
// measurement columns in relation order.
type historyRow struct {
	time    sql.NullString
	a, b, c sql.NullFloat64
}

func envReading(row historyRow) models.Reading {
	return models.Reading{
		Label:       models.LabelHistoricalEnv,
		Timestamp:   timestampOrNA(row.time),
		Temperature: row.a.Float64,
		Humidity:    row.b.Float64,
		Light:       row.c.Float64,
	}
}

func soilReading(row historyRow) models.Reading {
	return models.Reading{
		Label:     models.LabelHistoricalSoil,
		Timestamp: timestampOrNA(row.time),
		Soil:      row.a.Float64,
		Gas:       row.b.Float64,
		Raindrop:  row.c.Float64,
	}
}

func timestampOrNA(value sql.NullString) string {
	if !value.Valid {
		return "N/A"
	}

	return value.String
}

// reverse flips newest-first query results into chronological order.
func reverse(readings []models.Reading) {
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
}
