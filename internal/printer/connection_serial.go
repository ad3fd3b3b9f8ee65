package printer

import (
	"sync"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud is used when no baud rate is configured
const DefaultBaud = 9600

// SerialConnection represents a serial printer connection
type SerialConnection struct {
	port *serial.Port
	mu   sync.Mutex
}

// ConnectSerial connects to a serial printer
func ConnectSerial(device string, baud int) (*SerialConnection, error) {
	if baud == 0 {
		baud = DefaultBaud
	}

	config := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: 2 * time.Second,
	}

	port, err := serial.OpenPort(config)
	if err != nil {
		return nil, wrapDriverError("open", err)
	}

	return &SerialConnection{
		port: port,
	}, nil
}

// Write sends data to the serial printer
func (c *SerialConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.port.Write(data)
}

// Read reads status bytes sent back by the printer
func (c *SerialConnection) Read(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.port.Read(buf)
}

// Close closes the serial connection
func (c *SerialConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != nil {
		return c.port.Close()
	}

	return nil
}
