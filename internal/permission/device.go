// Package permission negotiates access to USB printers before they are opened
package permission

import (
	"context"
	"fmt"
)

// State is the authorization state of a device
type State string

const (
	StateUnknown State = "unknown"
	StateGranted State = "granted"
	StateDenied  State = "denied"
)

// Device describes an attached USB device. Devices are enumerated on every
// call and never persisted.
type Device struct {
	ID          string `json:"id,omitempty"`
	VendorID    uint16 `json:"vendor_id"`
	ProductID   uint16 `json:"product_id"`
	Name        string `json:"name"` // OS device name, /dev/bus/usb/BBB/DDD
	Bus         int    `json:"bus"`
	Address     int    `json:"address"`
	Description string `json:"description"`
	Alias       string `json:"alias,omitempty"` // Custom user-set name
	Printer     bool   `json:"printer"`
	State       State  `json:"state"`
}

// DeviceName returns the OS device name for a bus and address
func DeviceName(bus, address int) string {
	return fmt.Sprintf("/dev/bus/usb/%03d/%03d", bus, address)
}

// Lister enumerates attached devices
type Lister interface {
	Devices(ctx context.Context) ([]Device, error)
}

// Receiver is notified when the authority decides a request
type Receiver interface {
	OnPermissionResult(device Device, granted bool)
}

// Authority grants or denies access to devices. RequestPermission returns
// as soon as the request is issued; the decision arrives later through
// every registered Receiver.
type Authority interface {
	HasPermission(device Device) bool
	RequestPermission(device Device) error
	Register(r Receiver)
	Unregister(r Receiver) error
}

func matching(devices []Device, vendorID uint16) []Device {
	var out []Device
	for _, d := range devices {
		if d.VendorID == vendorID {
			out = append(out, d)
		}
	}
	return out
}
