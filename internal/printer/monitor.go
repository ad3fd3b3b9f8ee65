package printer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/thereceipt/ticketprint/internal/permission"
)

// Monitor polls for vendor devices being plugged in or removed
type Monitor struct {
	lister   permission.Lister
	vendorID uint16
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	previous map[string]permission.Device

	onAdded   func(permission.Device)
	onRemoved func(permission.Device)
}

// NewMonitor creates a new device monitor
func NewMonitor(lister permission.Lister, vendorID uint16, interval time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		lister:   lister,
		vendorID: vendorID,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		previous: make(map[string]permission.Device),
	}
}

// OnAdded sets a callback for when a device is attached
func (m *Monitor) OnAdded(callback func(permission.Device)) {
	m.onAdded = callback
}

// OnRemoved sets a callback for when a device is detached
func (m *Monitor) OnRemoved(callback func(permission.Device)) {
	m.onRemoved = callback
}

// Start begins polling
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.checkChanges()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.checkChanges()
			}
		}
	}()
}

// Stop stops the monitor
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) checkChanges() {
	devices, err := m.lister.Devices(m.ctx)
	if err != nil {
		if m.ctx.Err() == nil {
			log.Printf("printer: device scan failed: %v", err)
		}
		return
	}

	current := make(map[string]permission.Device)
	for _, d := range devices {
		if d.VendorID == m.vendorID {
			current[d.Name] = d
		}
	}

	for name, d := range current {
		if _, exists := m.previous[name]; !exists {
			log.Printf("printer: device added %s (%04X:%04X)", name, d.VendorID, d.ProductID)
			if m.onAdded != nil {
				m.onAdded(d)
			}
		}
	}

	for name, d := range m.previous {
		if _, exists := current[name]; !exists {
			log.Printf("printer: device removed %s", name)
			if m.onRemoved != nil {
				m.onRemoved(d)
			}
		}
	}

	m.previous = current
}
