// Package telemetry pkg/telemetry/service.go drives the sampling pipeline:
// realtime reads on the fast cadence, history loads on the slow one.
package telemetry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agrolink/fieldgate/pkg/cache"
	"github.com/agrolink/fieldgate/pkg/config"
	"github.com/agrolink/fieldgate/pkg/health"
	"github.com/agrolink/fieldgate/pkg/models"
)

const healthComponent = "telemetry_service"

// Service is the pipeline worker. It owns the telemetry cache and is the
// only producer of frames.
type Service struct {
	cfg       config.PipelineConfig
	repo      HistoryLoader
	sensor    SensorReader
	publisher FramePublisher
	monitor   *health.Monitor
	cache     *cache.TelemetryCache

	correlation atomic.Uint64

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewService wires the pipeline and registers the snapshot-on-join
// provider with the publisher.
func NewService(cfg config.PipelineConfig, repo HistoryLoader, sensor SensorReader,
	publisher FramePublisher, monitor *health.Monitor) *Service {
	s := &Service{
		cfg:       cfg,
		repo:      repo,
		sensor:    sensor,
		publisher: publisher,
		monitor:   monitor,
		cache:     cache.New(cfg.CacheSize),
	}

	publisher.SetSnapshotProvider(func() []models.Frame {
		return []models.Frame{
			s.buildSnapshot(models.ChannelRealtime),
			s.buildSnapshot(models.ChannelHistoricalEnvironment),
			s.buildSnapshot(models.ChannelHistoricalSoil),
		}
	})

	return s
}

// Cache exposes the telemetry cache for read-only snapshot consumers.
func (s *Service) Cache() *cache.TelemetryCache {
	return s.cache
}

// Start launches the pipeline worker.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.runLoop(s.done)
}

// Stop halts the worker and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Service) runLoop(done chan struct{}) {
	defer s.wg.Done()

	realtimeInterval := time.Duration(s.cfg.RealtimeIntervalSeconds) * time.Second
	historicalInterval := time.Duration(s.cfg.HistoricalIntervalSeconds) * time.Second

	// Backdated so the first iteration runs the historical tick.
	lastHistorical := time.Now().Add(-historicalInterval)

	for {
		select {
		case <-done:
			return
		default:
		}

		start := time.Now()

		s.processRealtime()

		if time.Since(lastHistorical) >= historicalInterval {
			s.processHistorical()
			lastHistorical = time.Now()
		}

		wait := realtimeInterval - time.Since(start)
		if wait > 0 {
			select {
			case <-done:
				return
			case <-time.After(wait):
			}
		}
	}
}

func (s *Service) processRealtime() {
	reading, err := s.sensor.ReadRealtime()
	if err != nil {
		s.monitor.Update(healthComponent, false, fmt.Sprintf("realtime read failed: %v", err))
		return
	}

	s.cache.Store(models.ChannelRealtime, *reading)

	if s.publisher.HasSubscribers() {
		s.publisher.Publish(models.Frame{
			Channel:       models.ChannelRealtime,
			Snapshot:      false,
			CorrelationID: s.nextCorrelationID(),
			Readings:      []models.Reading{*reading},
		})
	}

	s.monitor.Update(healthComponent, true, "Realtime frame published")
}

func (s *Service) processHistorical() {
	env, err := s.repo.LoadEnvironmental(s.cfg.CacheSize)
	if err != nil {
		env = nil
	}

	soil, err := s.repo.LoadSoilAndAir(s.cfg.CacheSize)
	if err != nil {
		soil = nil
	}

	for _, reading := range env {
		s.cache.Store(models.ChannelHistoricalEnvironment, reading)
	}

	for _, reading := range soil {
		s.cache.Store(models.ChannelHistoricalSoil, reading)
	}

	if s.publisher.HasSubscribers() {
		if len(env) > 0 {
			s.publisher.Publish(s.buildFrame(models.ChannelHistoricalEnvironment, env))
		}

		if len(soil) > 0 {
			s.publisher.Publish(s.buildFrame(models.ChannelHistoricalSoil, soil))
		}
	}

	s.monitor.Update(healthComponent, true, "Historical frames published")
}

func (s *Service) buildSnapshot(channel models.Channel) models.Frame {
	return s.buildFrame(channel, s.cache.Snapshot(channel))
}

// buildFrame wraps readings for delivery. Historical pushes share this
// path with join-time snapshots, so both carry snapshot=true; clients
// treat the flag as a hint only.
func (s *Service) buildFrame(channel models.Channel, readings []models.Reading) models.Frame {
	if readings == nil {
		readings = []models.Reading{}
	}

	return models.Frame{
		Channel:       channel,
		Snapshot:      true,
		CorrelationID: s.nextCorrelationID(),
		Readings:      readings,
	}
}

func (s *Service) nextCorrelationID() string {
	return fmt.Sprintf("frame-%d", s.correlation.Add(1))
}
