// Package command pkg/command/router.go parses line-delimited JSON
// commands from subscriber connections and applies them to the device.
package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/agrolink/fieldgate/pkg/health"
)

const healthComponent = "command_router"

// Device register map for control commands. Scaled registers hold the
// physical value times 100.
const (
	regThresholdSoil  = 10
	regThresholdRain  = 11
	regThresholdTemp  = 12
	regThresholdLight = 13
	regLightControl   = 14
	regModeSelect     = 15
)

// Canned single-line ACK bodies.
const (
	ackThreshold      = `{"status":"ok","message":"threshold updated"}`
	ackLightControl   = `{"status":"ok","message":"light control updated"}`
	ackModeSelect     = `{"status":"ok","message":"mode updated"}`
	ackWriteRegister  = `{"status":"ok","message":"register write queued"}`
	ackConfigReload   = `{"status":"ok","message":"configuration reload requested"}`
	ackUnknownCommand = `{"status":"error","message":"unknown command"}`
	ackInvalidPayload = `{"status":"error","message":"invalid payload"}`
)

// RegisterWriter applies raw 16-bit register writes to the device.
type RegisterWriter interface {
	WriteRegister(address, value uint16) error
}

// DiagnosticsProvider returns the diagnostics document served to the
// `diagnostics` command. It must only touch lock-safe read methods.
type DiagnosticsProvider func() any

// Router splits inbound byte chunks into lines per connection and
// dispatches each line as one JSON command.
type Router struct {
	gateway     RegisterWriter
	monitor     *health.Monitor
	diagnostics DiagnosticsProvider
	reload      func()

	mu      sync.Mutex
	buffers map[uint64][]byte
}

// NewRouter creates a router bound to the given device gateway.
func NewRouter(gateway RegisterWriter, monitor *health.Monitor,
	diagnostics DiagnosticsProvider, reload func()) *Router {
	return &Router{
		gateway:     gateway,
		monitor:     monitor,
		diagnostics: diagnostics,
		reload:      reload,
		buffers:     make(map[uint64][]byte),
	}
}

// Feed appends a chunk to the connection's buffer and dispatches every
// complete line. Partial lines persist across calls.
func (r *Router) Feed(connID uint64, chunk []byte, respond func(reply string)) {
	lines := r.extractLines(connID, chunk)

	for _, line := range lines {
		reply := r.dispatch(line)
		if reply != "" && respond != nil {
			respond(reply)
		}
	}
}

// extractLines buffers the chunk and returns every newline-terminated
// line, leaving any trailing partial line buffered.
func (r *Router) extractLines(connID uint64, chunk []byte) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	buffer := append(r.buffers[connID], chunk...)

	var lines [][]byte

	for {
		idx := bytes.IndexByte(buffer, '\n')
		if idx < 0 {
			break
		}

		line := make([]byte, idx)
		copy(line, buffer[:idx])
		lines = append(lines, line)

		buffer = buffer[idx+1:]
	}

	r.buffers[connID] = buffer

	return lines
}

// commandEnvelope is one decoded command line. Missing numeric fields
// stay zero; a missing address stays -1 so the write is ignored.
type commandEnvelope struct {
	Type    string  `json:"type"`
	Soil    float64 `json:"soil"`
	Rain    float64 `json:"rain"`
	Temp    float64 `json:"temp"`
	Light   float64 `json:"light"`
	Mode    int     `json:"mode"`
	Address int     `json:"address"`
	Value   int     `json:"value"`
}

func (r *Router) dispatch(line []byte) string {
	cmd := commandEnvelope{Address: -1}
	if err := json.Unmarshal(line, &cmd); err != nil {
		r.monitor.Update(healthComponent, false, fmt.Sprintf("invalid command payload: %v", err))
		return ackInvalidPayload
	}

	switch cmd.Type {
	case "threshold":
		r.handleThreshold(cmd)
		return ackThreshold
	case "light_control":
		r.writeScaled(regLightControl, cmd.Light)
		r.monitor.Update(healthComponent, true, "light control updated")
		return ackLightControl
	case "mode_select":
		r.write(regModeSelect, uint16(int64(cmd.Mode)))
		r.monitor.Update(healthComponent, true, "mode updated")
		return ackModeSelect
	case "write_register":
		if cmd.Address >= 0 {
			r.write(uint16(int64(cmd.Address)), uint16(int64(cmd.Value)))
		}
		return ackWriteRegister
	case "diagnostics":
		return r.renderDiagnostics()
	case "config_reload":
		if r.reload != nil {
			r.reload()
		}
		return ackConfigReload
	default:
		return ackUnknownCommand
	}
}

func (r *Router) handleThreshold(cmd commandEnvelope) {
	r.writeScaled(regThresholdSoil, cmd.Soil)
	r.writeScaled(regThresholdRain, cmd.Rain)
	r.writeScaled(regThresholdTemp, cmd.Temp)
	r.writeScaled(regThresholdLight, cmd.Light)
	r.monitor.Update(healthComponent, true, "threshold updated")
}

// writeScaled converts a physical value to its wire integer (value*100,
// truncated to 16 bits) and writes it.
func (r *Router) writeScaled(address uint16, physical float64) {
	r.write(address, uint16(int64(physical*100)))
}

func (r *Router) write(address, value uint16) {
	if err := r.gateway.WriteRegister(address, value); err != nil {
		log.Printf("command_router: register %d write failed: %v", address, err)
	}
}

func (r *Router) renderDiagnostics() string {
	if r.diagnostics == nil {
		return ackUnknownCommand
	}

	data, err := json.Marshal(r.diagnostics())
	if err != nil {
		r.monitor.Update(healthComponent, false, fmt.Sprintf("diagnostics render failed: %v", err))
		return ackInvalidPayload
	}

	return string(data)
}
