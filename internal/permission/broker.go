package permission

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Outcome is the result of a permission request or check
type Outcome string

const (
	NoMatchingDevice       Outcome = "no_matching_device"
	AlreadyGranted         Outcome = "already_granted"
	Granted                Outcome = "granted"
	Denied                 Outcome = "denied"
	AllGranted             Outcome = "all_granted"
	PartiallyOrNoneGranted Outcome = "partially_or_none_granted"
)

var (
	ErrNoMatchingDevice     = errors.New("no USB device matches the vendor id")
	ErrPermissionDenied     = errors.New("USB permission denied")
	ErrRequestPending       = errors.New("a permission request is already pending")
	ErrUnregisteredReceiver = errors.New("permission receiver was not registered")
)

// request is the single in-flight permission request
type request struct {
	id     string
	device Device
	done   chan bool
}

// Broker requests access to vendor devices and waits for the authority's
// answer. At most one request is pending at a time.
type Broker struct {
	lister    Lister
	authority Authority

	mu      sync.Mutex
	pending *request

	onResolved func(Device, bool)
}

// NewBroker creates a broker and registers it with the authority
func NewBroker(lister Lister, authority Authority) *Broker {
	b := &Broker{
		lister:    lister,
		authority: authority,
	}
	authority.Register(b)
	return b
}

// OnResolved sets a callback for every resolved request
func (b *Broker) OnResolved(callback func(Device, bool)) {
	b.mu.Lock()
	b.onResolved = callback
	b.mu.Unlock()
}

// Devices enumerates attached devices and fills in their permission state
func (b *Broker) Devices(ctx context.Context) ([]Device, error) {
	devices, err := b.lister.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	for i := range devices {
		if b.authority.HasPermission(devices[i]) {
			devices[i].State = StateGranted
		} else if devices[i].State == "" {
			devices[i].State = StateUnknown
		}
	}
	return devices, nil
}

// RequestPermission asks for access to the first matching device that is
// not yet authorized and blocks until the authority answers or ctx is done.
func (b *Broker) RequestPermission(ctx context.Context, vendorID uint16) (Outcome, error) {
	devices, err := b.lister.Devices(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to enumerate devices: %w", err)
	}

	matches := matching(devices, vendorID)
	if len(matches) == 0 {
		return NoMatchingDevice, nil
	}

	var target *Device
	for i := range matches {
		if !b.authority.HasPermission(matches[i]) {
			target = &matches[i]
			break
		}
	}
	if target == nil {
		return AlreadyGranted, nil
	}

	req := &request{
		id:     uuid.New().String(),
		device: *target,
		done:   make(chan bool, 1),
	}

	b.mu.Lock()
	if b.pending != nil {
		b.mu.Unlock()
		return "", ErrRequestPending
	}
	b.pending = req
	b.mu.Unlock()

	log.Printf("permission: requesting access to %s (%04X:%04X) request=%s",
		req.device.Name, req.device.VendorID, req.device.ProductID, req.id)

	if err := b.authority.RequestPermission(req.device); err != nil {
		b.abandon(req)
		return "", fmt.Errorf("failed to request permission for %s: %w", req.device.Name, err)
	}

	select {
	case granted := <-req.done:
		if granted {
			return Granted, nil
		}
		return Denied, nil
	case <-ctx.Done():
		b.abandon(req)
		log.Printf("permission: request %s abandoned: %v", req.id, ctx.Err())
		return "", ctx.Err()
	}
}

// CheckPermission reports whether every matching device is authorized
func (b *Broker) CheckPermission(ctx context.Context, vendorID uint16) (Outcome, error) {
	devices, err := b.lister.Devices(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to enumerate devices: %w", err)
	}

	matches := matching(devices, vendorID)
	if len(matches) == 0 {
		return NoMatchingDevice, nil
	}

	for _, d := range matches {
		if !b.authority.HasPermission(d) {
			return PartiallyOrNoneGranted, nil
		}
	}
	return AllGranted, nil
}

// OnPermissionResult resolves the pending request for device. Results with
// no pending request, or for another device, are dropped.
func (b *Broker) OnPermissionResult(device Device, granted bool) {
	b.mu.Lock()
	req := b.pending
	if req == nil {
		b.mu.Unlock()
		log.Printf("permission: no pending request, dropping result for %s", device.Name)
		return
	}
	if req.device.Name != device.Name {
		b.mu.Unlock()
		log.Printf("permission: result for %s does not match pending %s, dropping", device.Name, req.device.Name)
		return
	}
	b.pending = nil
	onResolved := b.onResolved
	b.mu.Unlock()

	log.Printf("permission: request %s for %s resolved granted=%v", req.id, device.Name, granted)
	req.done <- granted

	if onResolved != nil {
		onResolved(req.device, granted)
	}
}

// Pending returns the device of the in-flight request, if any
func (b *Broker) Pending() (Device, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		return Device{}, false
	}
	return b.pending.device, true
}

// Close unregisters the broker from the authority. Failures are logged only.
func (b *Broker) Close() {
	if err := b.authority.Unregister(b); err != nil {
		if !errors.Is(err, ErrUnregisteredReceiver) {
			err = fmt.Errorf("%w: %v", ErrUnregisteredReceiver, err)
		}
		log.Printf("permission: %v", err)
	}
}

// abandon clears the slot if it still belongs to req
func (b *Broker) abandon(req *request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == req {
		b.pending = nil
	}
}
