// cmd/fieldgate/main.go
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/agrolink/fieldgate/pkg/alerts"
	"github.com/agrolink/fieldgate/pkg/api"
	"github.com/agrolink/fieldgate/pkg/command"
	"github.com/agrolink/fieldgate/pkg/config"
	"github.com/agrolink/fieldgate/pkg/db"
	"github.com/agrolink/fieldgate/pkg/health"
	"github.com/agrolink/fieldgate/pkg/lifecycle"
	"github.com/agrolink/fieldgate/pkg/publisher"
	"github.com/agrolink/fieldgate/pkg/sensor"
	"github.com/agrolink/fieldgate/pkg/telemetry"
	"github.com/agrolink/fieldgate/pkg/video"
)

const logFile = "logs/fieldgate.log"

func main() {
	configPath := flag.String("config", "config/app_config.json", "Path to config file")
	flag.Parse()

	setupLogging()

	manager := config.NewManager(*configPath)
	cfg := manager.Get()

	var alerters []alerts.Alerter
	for _, webhook := range cfg.Health.Webhooks {
		alerters = append(alerters, alerts.NewWebhookAlerter(webhook))
	}

	monitor := health.NewMonitor(cfg.Health.StatusFile,
		time.Duration(cfg.Health.IntervalSeconds)*time.Second, alerters...)
	monitor.Start()

	repository, err := db.NewRepository(cfg.Database, monitor)
	if err != nil {
		log.Printf("CRITICAL: failed to connect to database: %v", err)
		monitor.Stop()
		os.Exit(1)
	}

	gateway := sensor.NewGateway(cfg.Sensor, monitor)

	var reloadRequested atomic.Bool

	// The publisher variable is captured before assignment; the
	// diagnostics provider nil-checks it and only calls lock-safe reads.
	var pub *publisher.Server

	diagnostics := func() any {
		subscribers := false
		if pub != nil {
			subscribers = pub.HasSubscribers()
		}

		return map[string]any{
			"telemetry": map[string]any{
				"subscribers": subscribers,
			},
			"pipeline": map[string]any{
				"realtimeSeconds":   cfg.Pipeline.RealtimeIntervalSeconds,
				"historicalSeconds": cfg.Pipeline.HistoricalIntervalSeconds,
			},
		}
	}

	router := command.NewRouter(gateway, monitor, diagnostics, func() {
		reloadRequested.Store(true)
	})

	pub = publisher.NewServer(cfg.Publisher, router, monitor)
	if err := pub.Start(); err != nil {
		log.Printf("CRITICAL: failed to start telemetry publisher: %v", err)
		monitor.Stop()
		os.Exit(1)
	}

	service := telemetry.NewService(cfg.Pipeline, repository, gateway, pub, monitor)
	service.Start()

	relay := video.NewRelay(monitor)
	if err := relay.Start(cfg.Video.Port); err != nil {
		log.Printf("WARN: video relay failed to start: %v", err)
	}

	statusAPI := api.NewServer(monitor, service.Cache())
	if cfg.API.ListenAddr != "" {
		if err := statusAPI.Start(cfg.API.ListenAddr); err != nil {
			log.Printf("WARN: status API failed to start: %v", err)
		}
	}

	log.Printf("fieldgate backend is running")

	lifecycle.Run(context.Background(), &lifecycle.Options{
		Poll: func() {
			if reloadRequested.Swap(false) {
				if manager.ReloadIfChanged() {
					log.Printf("Configuration reload requested but runtime hot-reload not implemented for all services.")
				}
			} else {
				manager.ReloadIfChanged()
			}
		},
		ShutdownOrder: []lifecycle.Component{
			{Name: "video_relay", Stopper: relay},
			{Name: "telemetry_service", Stopper: service},
			{Name: "telemetry_publisher", Stopper: pub},
			{Name: "status_api", Stopper: stopperFunc(statusAPI.Stop)},
			{Name: "health_monitor", Stopper: monitor},
		},
	})

	gateway.Close()

	if err := repository.Close(); err != nil {
		log.Printf("Failed to close repository: %v", err)
	}
}

type stopperFunc func()

func (f stopperFunc) Stop() { f() }

// setupLogging tees log output to the log file and stderr.
func setupLogging() {
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		log.Printf("Failed to create log directory: %v", err)
		return
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("Failed to open log file: %v", err)
		return
	}

	log.SetOutput(io.MultiWriter(os.Stderr, f))
}
