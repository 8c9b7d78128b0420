// Package sensor pkg/sensor/gateway.go
package sensor

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/agrolink/fieldgate/pkg/config"
	"github.com/agrolink/fieldgate/pkg/health"
	"github.com/agrolink/fieldgate/pkg/models"
)

const healthComponent = "sensor_gateway"

var errNotConnected = errors.New("sensor endpoint unavailable")

// Fixed register schema of the sensor cluster: each register holds the
// physical value scaled by 100.
const (
	regSoil = iota
	regGas
	regRaindrop
	regTemperature
	regHumidity
	regLight
	minRegisters
)

// Gateway serialises all Modbus operations against the sensor cluster.
// The connection is opened lazily; after a failure, reconnect attempts
// are throttled to one per retry window.
type Gateway struct {
	cfg     config.SensorConfig
	monitor *health.Monitor
	factory ClientFactory
	now     func() time.Time

	mu          sync.Mutex
	client      Client
	lastAttempt time.Time
}

// NewGateway creates a gateway for the configured endpoint.
func NewGateway(cfg config.SensorConfig, monitor *health.Monitor) *Gateway {
	return &Gateway{
		cfg:     cfg,
		monitor: monitor,
		factory: newModbusClient,
		now:     time.Now,
	}
}

// ReadRealtime reads one sample from the sensor registers. The returned
// reading carries the current local timestamp. Register values are wire
// integers scaled by 100.
func (g *Gateway) ReadRealtime() (*models.Reading, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.ensureConnection() {
		return nil, errNotConnected
	}

	registers, err := g.client.ReadHoldingRegisters(0, uint16(g.cfg.Registers))
	if err != nil {
		g.handleFailure(fmt.Sprintf("readRegisters failed: %v", err))
		return nil, err
	}

	reading := &models.Reading{
		Label:     models.LabelRealtime,
		Timestamp: g.now().Format(models.TimestampLayout),
	}

	if len(registers) >= minRegisters {
		reading.Soil = float64(registers[regSoil]) / 100
		reading.Gas = float64(registers[regGas]) / 100
		reading.Raindrop = float64(registers[regRaindrop]) / 100
		reading.Temperature = float64(registers[regTemperature]) / 100
		reading.Humidity = float64(registers[regHumidity]) / 100
		reading.Light = float64(registers[regLight]) / 100
	}

	g.monitor.Update(healthComponent, true, "Realtime sample collected")

	return reading, nil
}

// WriteRegister writes one 16-bit register. The caller composes any
// physical-to-wire scaling; no schema is applied here.
func (g *Gateway) WriteRegister(address, value uint16) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.ensureConnection() {
		return errNotConnected
	}

	if err := g.client.WriteSingleRegister(address, value); err != nil {
		g.handleFailure(fmt.Sprintf("writeRegister failed: %v", err))
		return err
	}

	g.monitor.Update(healthComponent, true, "Register write successful")

	return nil
}

// Close releases the Modbus connection.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dropClient()
}

// ensureConnection opens the Modbus channel when absent, at most once
// per retry window. Callers must hold the mutex.
func (g *Gateway) ensureConnection() bool {
	if g.client != nil {
		return true
	}

	if g.now().Sub(g.lastAttempt) < time.Duration(g.cfg.RetrySeconds)*time.Second {
		return false
	}

	g.lastAttempt = g.now()

	client := g.factory(g.cfg.Endpoint, g.cfg.Port)
	if err := client.Connect(); err != nil {
		g.handleFailure(fmt.Sprintf("connection error: %v", err))
		return false
	}

	g.client = client
	g.monitor.Update(healthComponent, true, "Modbus connected")
	log.Printf("Connected to Modbus sensor at %s:%d", g.cfg.Endpoint, g.cfg.Port)

	return true
}

// handleFailure records the error and drops the connection so the next
// operation goes through the retry throttle.
func (g *Gateway) handleFailure(reason string) {
	log.Printf("sensor_gateway: %s", reason)
	g.monitor.Update(healthComponent, false, reason)
	g.dropClient()
}

func (g *Gateway) dropClient() {
	if g.client == nil {
		return
	}

	if err := g.client.Close(); err != nil {
		log.Printf("sensor_gateway: close failed: %v", err)
	}

	g.client = nil
}
