// Package sensor pkg/sensor/client.go wraps the Modbus/TCP client library.
package sensor

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

const modbusTimeout = 5 * time.Second

var errShortResponse = fmt.Errorf("short register response")

// modbusClient implements Client using goburrow/modbus.
type modbusClient struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// newModbusClient creates a Client for the given Modbus/TCP endpoint.
func newModbusClient(endpoint string, port int) Client {
	handler := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", endpoint, port))
	handler.Timeout = modbusTimeout

	return &modbusClient{
		handler: handler,
		client:  modbus.NewClient(handler),
	}
}

func (c *modbusClient) Connect() error {
	if err := c.handler.Connect(); err != nil {
		return fmt.Errorf("modbus connect failed: %w", err)
	}

	return nil
}

func (c *modbusClient) ReadHoldingRegisters(address, quantity uint16) ([]uint16, error) {
	raw, err := c.client.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return nil, fmt.Errorf("modbus read failed: %w", err)
	}

	if len(raw) < int(quantity)*2 {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", errShortResponse, len(raw), int(quantity)*2)
	}

	registers := make([]uint16, quantity)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(raw[i*2:])
	}

	return registers, nil
}

func (c *modbusClient) WriteSingleRegister(address, value uint16) error {
	if _, err := c.client.WriteSingleRegister(address, value); err != nil {
		return fmt.Errorf("modbus write failed: %w", err)
	}

	return nil
}

func (c *modbusClient) Close() error {
	return c.handler.Close()
}
