package permission

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// USBLister enumerates devices through libusb. Only descriptors are read;
// no device is opened.
type USBLister struct {
	// Label, when set, fills in the registry id and alias of a device
	Label func(*Device)
}

// Devices lists every attached USB device
func (l *USBLister) Devices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	usb := gousb.NewContext()
	defer usb.Close()

	var devices []Device
	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		d := Device{
			VendorID:    uint16(desc.Vendor),
			ProductID:   uint16(desc.Product),
			Name:        DeviceName(desc.Bus, desc.Address),
			Bus:         desc.Bus,
			Address:     desc.Address,
			Description: fmt.Sprintf("USB: %04X:%04X", uint16(desc.Vendor), uint16(desc.Product)),
			Printer:     isPrinter(desc),
			State:       StateUnknown,
		}
		if l.Label != nil {
			l.Label(&d)
		}
		devices = append(devices, d)
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	return devices, nil
}

// isPrinter checks the device class and every interface class
func isPrinter(desc *gousb.DeviceDesc) bool {
	if desc.Class == gousb.ClassPrinter {
		return true
	}

	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}
