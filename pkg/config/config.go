// Package config pkg/config/config.go loads and tracks the gateway configuration.
package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agrolink/fieldgate/pkg/alerts"
)

// DatabaseConfig holds the connection settings for the historical store.
type DatabaseConfig struct {
	Host         string `json:"host"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Schema       string `json:"schema"`
	Port         int    `json:"port"`
	RecentLimit  int    `json:"recentLimit"`
	RetrySeconds int    `json:"retrySeconds"`
}

// SensorConfig holds the Modbus/TCP endpoint settings.
type SensorConfig struct {
	Endpoint     string `json:"endpoint"`
	Port         int    `json:"port"`
	RetrySeconds int    `json:"retrySeconds"`
	Registers    int    `json:"registers"`
}

// PublisherConfig holds the framed TCP server settings. WorkerThreads is
// accepted for compatibility with older deployments; each connection is
// handled by its own goroutine.
type PublisherConfig struct {
	BindAddress    string `json:"bindAddress"`
	Port           int    `json:"port"`
	WorkerThreads  int    `json:"workerThreads"`
	MaxConnections int    `json:"maxConnections"`
}

// VideoConfig holds the video relay settings.
type VideoConfig struct {
	Port int `json:"port"`
}

// HealthConfig holds the health registry settings.
type HealthConfig struct {
	StatusFile      string                 `json:"statusFile"`
	IntervalSeconds int                    `json:"intervalSeconds"`
	Webhooks        []alerts.WebhookConfig `json:"webhooks,omitempty"`
}

// PipelineConfig holds the sampling cadences and cache capacity.
type PipelineConfig struct {
	RealtimeIntervalSeconds   int `json:"realtimeSeconds"`
	HistoricalIntervalSeconds int `json:"historicalSeconds"`
	CacheSize                 int `json:"cacheSize"`
}

// APIConfig holds the optional read-only status API settings. An empty
// listen address disables the server.
type APIConfig struct {
	ListenAddr string `json:"listenAddr"`
}

// Config aggregates every section of the configuration file.
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Sensor    SensorConfig    `json:"sensor"`
	Publisher PublisherConfig `json:"publisher"`
	Video     VideoConfig     `json:"video"`
	Health    HealthConfig    `json:"health"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	API       APIConfig       `json:"api"`
}

// Default returns the built-in configuration used when the file is
// missing or unparsable.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Host:         "127.0.0.1",
			User:         "root",
			Password:     "password",
			Schema:       "testdb",
			Port:         3306,
			RecentLimit:  50,
			RetrySeconds: 5,
		},
		Sensor: SensorConfig{
			Endpoint:     "127.0.0.1",
			Port:         502,
			RetrySeconds: 5,
			Registers:    6,
		},
		Publisher: PublisherConfig{
			BindAddress:    "0.0.0.0",
			Port:           5555,
			WorkerThreads:  4,
			MaxConnections: 200,
		},
		Video: VideoConfig{
			Port: 6000,
		},
		Health: HealthConfig{
			StatusFile:      "artifacts/health_status.json",
			IntervalSeconds: 10,
		},
		Pipeline: PipelineConfig{
			RealtimeIntervalSeconds:   5,
			HistoricalIntervalSeconds: 60,
			CacheSize:                 120,
		},
	}
}

// Manager owns the configuration file: it loads it at construction,
// writes a default template when the file is missing, and re-parses it
// when the modification time changes.
type Manager struct {
	path string

	mu           sync.RWMutex
	config       Config
	lastModTime  time.Time
	lastModKnown bool
}

// NewManager loads the configuration from path. A missing file is not an
// error: a default template is written and defaults are used.
func NewManager(path string) *Manager {
	m := &Manager{path: path, config: Default()}
	m.loadFromDisk()

	return m
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.config
}

// Path returns the configuration file location.
func (m *Manager) Path() string {
	return m.path
}

// ReloadIfChanged re-parses the file when its modification time differs
// from the last observed one. It reports whether a reload happened.
func (m *Manager) ReloadIfChanged() bool {
	info, err := os.Stat(m.path)
	if err != nil {
		return false
	}

	m.mu.RLock()
	unchanged := m.lastModKnown && info.ModTime().Equal(m.lastModTime)
	m.mu.RUnlock()

	if unchanged {
		return false
	}

	m.loadFromDisk()

	return true
}

func (m *Manager) loadFromDisk() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.writeDefaultTemplate()
			return
		}

		log.Printf("Failed to read configuration %s: %v. Using defaults.", m.path, err)

		return
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("Failed to parse configuration %s: %v. Using defaults.", m.path, err)

		cfg = Default()
	}

	m.store(cfg)
}

func (m *Manager) writeDefaultTemplate() {
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("Failed to create configuration directory %s: %v", dir, err)
			return
		}
	}

	data, err := json.MarshalIndent(Default(), "", "    ")
	if err != nil {
		log.Printf("Failed to render default configuration: %v", err)
		return
	}

	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		log.Printf("Failed to write default configuration %s: %v", m.path, err)
		return
	}

	log.Printf("Configuration file missing. A default template was created at %s", m.path)

	m.store(Default())
}

func (m *Manager) store(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = cfg

	if info, err := os.Stat(m.path); err == nil {
		m.lastModTime = info.ModTime()
		m.lastModKnown = true
	}
}
