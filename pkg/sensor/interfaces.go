// Package sensor pkg/sensor/interfaces.go
package sensor

//go:generate mockgen -destination=mock_sensor.go -package=sensor github.com/agrolink/fieldgate/pkg/sensor Client

// Client defines the Modbus operations the gateway needs.
type Client interface {
	// Connect establishes the Modbus/TCP connection
	Connect() error
	// ReadHoldingRegisters reads quantity 16-bit registers starting at address
	ReadHoldingRegisters(address, quantity uint16) ([]uint16, error)
	// WriteSingleRegister writes one 16-bit register
	WriteSingleRegister(address, value uint16) error
	// Close releases the connection
	Close() error
}

// ClientFactory creates a Client for an endpoint. The gateway calls it
// lazily on first use and again after a connection is dropped.
type ClientFactory func(endpoint string, port int) Client
