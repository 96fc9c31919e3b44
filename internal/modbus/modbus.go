// Package modbus wraps a goburrow modbus client that can reach a device
// either over Modbus-TCP or over an RTU serial line.
package modbus

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

type modbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

type Client struct {
	// Addr creates a Modbus-TCP connection (host:port)
	Addr string
	// Port and BaudRate create a local serial connection
	Port string
	// BaudRate defaults to 19200
	BaudRate int
	SlaveId  byte
	Timeout  time.Duration

	mu      sync.Mutex
	handler modbusHandler
	client  modbus.Client
}

func (c *Client) target() string {
	if c.Addr != "" {
		return c.Addr
	}
	return c.Port
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 1 * time.Second
	}
	return c.Timeout
}

// connect opens the transport if it is not already open. c.mu must be held.
func (c *Client) connect() error {
	if c.handler != nil {
		return nil
	}
	var handler modbusHandler
	switch {
	case c.Addr != "":
		h := modbus.NewTCPClientHandler(c.Addr)
		h.Timeout = c.timeout()
		h.SlaveId = c.SlaveId
		handler = h
	case c.Port != "":
		h := modbus.NewRTUClientHandler(c.Port)
		h.BaudRate = c.BaudRate
		if h.BaudRate == 0 {
			h.BaudRate = 19200
		}
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.Timeout = c.timeout()
		h.SlaveId = c.SlaveId
		handler = h
	default:
		return fmt.Errorf("modbus: no address or port configured")
	}
	if err := handler.Connect(); err != nil {
		return fmt.Errorf("opening %q: %w", c.target(), err)
	}
	c.handler = handler
	c.client = modbus.NewClient(handler)
	return nil
}

// ReadInputRegisters reads quantity registers starting at address,
// connecting first if needed. A failed read drops the connection so the
// next call reconnects.
func (c *Client) ReadInputRegisters(address, quantity uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(); err != nil {
		return nil, err
	}
	b, err := c.client.ReadInputRegisters(address, quantity)
	if err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("reading %q: %w", c.target(), err)
	}
	regs := BytesToRegisters(b)
	if len(regs) != int(quantity) {
		return nil, fmt.Errorf("reading %q: got %d registers, want %d", c.target(), len(regs), quantity)
	}
	return regs, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.handler == nil {
		return nil
	}
	err := c.handler.Close()
	c.handler = nil
	c.client = nil
	return err
}

// BytesToRegisters decodes big-endian 16-bit registers.
func BytesToRegisters(bs []byte) []uint16 {
	out := make([]uint16, 0, len(bs)/2)
	for i := 0; i+1 < len(bs); i += 2 {
		out = append(out, binary.BigEndian.Uint16(bs[i:]))
	}
	return out
}
