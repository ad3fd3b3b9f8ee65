package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
)

const usbReadTimeout = 2 * time.Second

// USBConnection is a claimed printer interface with its bulk endpoints
type USBConnection struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	iface  *gousb.Interface
	done   func()
	out    *gousb.OutEndpoint
	in     *gousb.InEndpoint
	mu     sync.Mutex
}

// ConnectUSB opens the device at bus/address and claims the first interface
// that has a bulk OUT endpoint
func ConnectUSB(bus, address int) (*USBConnection, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == bus && desc.Address == address
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, wrapDriverError("open", err)
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("USB device %03d/%03d not found", bus, address)
	}

	dev := devs[0]
	for _, extra := range devs[1:] {
		extra.Close()
	}
	dev.SetAutoDetach(true)

	conn := &USBConnection{ctx: ctx, device: dev}

	// Interface 0 of the active config works for most printers
	if iface, done, err := dev.DefaultInterface(); err == nil {
		if conn.claim(iface) {
			conn.done = done
			return conn, nil
		}
		done()
	}

	var lastErr error
	for num, cfgDesc := range dev.Desc.Configs {
		cfg, err := dev.Config(num)
		if err != nil {
			lastErr = fmt.Errorf("failed to set config %d: %w", num, err)
			continue
		}

		for _, ifaceDesc := range cfgDesc.Interfaces {
			iface, err := cfg.Interface(ifaceDesc.Number, 0)
			if err != nil {
				lastErr = fmt.Errorf("failed to claim interface %d: %w", ifaceDesc.Number, err)
				continue
			}
			if conn.claim(iface) {
				conn.config = cfg
				return conn, nil
			}
			iface.Close()
		}
		cfg.Close()
	}

	dev.Close()
	ctx.Close()

	if lastErr != nil {
		return nil, wrapDriverError("open", lastErr)
	}
	return nil, fmt.Errorf("no interface with a bulk OUT endpoint on USB device %03d/%03d", bus, address)
}

// claim keeps iface when it has an OUT endpoint
func (c *USBConnection) claim(iface *gousb.Interface) bool {
	var out *gousb.OutEndpoint
	var in *gousb.InEndpoint

	for _, ep := range iface.Setting.Endpoints {
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if out == nil {
				out, _ = iface.OutEndpoint(ep.Number)
			}
		case gousb.EndpointDirectionIn:
			if in == nil {
				in, _ = iface.InEndpoint(ep.Number)
			}
		}
	}
	if out == nil {
		return false
	}

	c.iface = iface
	c.out = out
	c.in = in
	return true
}

// Write sends data to the printer
func (c *USBConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.out.Write(data)
}

// Read reads from the IN endpoint, giving up after a short timeout
func (c *USBConnection) Read(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.in == nil {
		return 0, errors.New("USB printer has no IN endpoint")
	}

	ctx, cancel := context.WithTimeout(context.Background(), usbReadTimeout)
	defer cancel()
	return c.in.ReadContext(ctx, buf)
}

// Close releases the interface and the device
func (c *USBConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		c.done()
	} else {
		if c.iface != nil {
			c.iface.Close()
		}
		if c.config != nil {
			c.config.Close()
		}
	}

	var err error
	if c.device != nil {
		err = c.device.Close()
	}
	if c.ctx != nil {
		c.ctx.Close()
	}
	return err
}
