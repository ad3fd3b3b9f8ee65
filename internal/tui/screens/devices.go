package screens

import (
	"context"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/thereceipt/ticketprint/internal/permission"
	"github.com/thereceipt/ticketprint/internal/service"
)

// DeviceEditor lists attached USB devices and names them
type DeviceEditor struct {
	app     *tview.Application
	svc     *service.Service
	form    *tview.Form
	list    *tview.List
	details *tview.TextView
	layout  *tview.Flex

	devices  []permission.Device
	selected string
}

// NewDeviceEditor creates the device screen
func NewDeviceEditor(app *tview.Application, svc *service.Service) *DeviceEditor {
	d := &DeviceEditor{
		app: app,
		svc: svc,
	}

	d.setupUI()
	return d
}

func (d *DeviceEditor) setupUI() {
	d.list = tview.NewList()
	d.list.SetBorder(true)
	d.list.SetTitle("USB Devices")
	d.list.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		d.selectDevice(index)
	})

	d.details = tview.NewTextView()
	d.details.SetBorder(true)
	d.details.SetTitle("Device Details")
	d.details.SetDynamicColors(true)

	d.form = tview.NewForm()
	d.form.SetBorder(true)
	d.form.SetTitle("Device Name")
	d.form.AddInputField("Name", "", 30, nil, nil)
	d.form.AddButton("Save", d.saveName)
	d.form.AddButton("Cancel", func() {
		d.app.SetFocus(d.list)
	})

	rightPanel := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.details, 0, 1, false).
		AddItem(d.form, 0, 1, true)

	d.layout = tview.NewFlex().
		AddItem(d.list, 0, 1, true).
		AddItem(rightPanel, 0, 2, false)

	d.list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() != tcell.KeyRune {
			return event
		}
		switch event.Rune() {
		case 'r':
			d.Refresh()
			return nil
		case 'e':
			if d.list.GetItemCount() > 0 {
				d.selectDevice(d.list.GetCurrentItem())
				d.app.SetFocus(d.form)
			}
			return nil
		}
		return event
	})

	d.Refresh()
}

// Refresh re-enumerates the devices
func (d *DeviceEditor) Refresh() {
	d.list.Clear()

	devices, err := d.svc.Devices(context.Background())
	if err != nil {
		d.devices = nil
		d.list.AddItem("Error listing devices", err.Error(), 0, nil)
		return
	}
	d.devices = devices

	if len(devices) == 0 {
		d.list.AddItem("No USB devices", "", 0, nil)
		return
	}

	for _, dev := range devices {
		d.list.AddItem(
			fmt.Sprintf("%s %s", StateIcon(dev.State), DisplayName(dev)),
			fmt.Sprintf("%04X:%04X • %s", dev.VendorID, dev.ProductID, dev.Name),
			0, nil)
	}
}

func (d *DeviceEditor) selectDevice(index int) {
	if index < 0 || index >= len(d.devices) {
		return
	}
	dev := d.devices[index]

	d.details.SetText(fmt.Sprintf(`[yellow]ID:[white] %s
[yellow]Device:[white] %s
[yellow]Vendor:[white] %04X  [yellow]Product:[white] %04X
[yellow]Description:[white] %s
[yellow]Printer class:[white] %t
[yellow]Permission:[white] %s
[yellow]Name:[white] %s

[yellow]Press 'e' to edit name`,
		dev.ID, dev.Name, dev.VendorID, dev.ProductID,
		dev.Description, dev.Printer, dev.State, dev.Alias))

	d.form.GetFormItem(0).(*tview.InputField).SetText(dev.Alias)
	d.selected = dev.ID
}

func (d *DeviceEditor) saveName() {
	if d.selected == "" {
		d.details.SetText("[red]✗ No device selected[white]")
		return
	}

	name := strings.TrimSpace(d.form.GetFormItem(0).(*tview.InputField).GetText())
	if err := d.svc.RenameDevice(d.selected, name); err != nil {
		d.details.SetText(fmt.Sprintf("[red]✗ %v[white]\n\n[yellow]Press 'r' to refresh[white]", err))
		return
	}

	d.Refresh()
	for i, dev := range d.devices {
		if dev.ID == d.selected {
			d.list.SetCurrentItem(i)
			d.selectDevice(i)
			break
		}
	}
	d.app.SetFocus(d.list)
}

// GetRoot returns the root primitive for this screen
func (d *DeviceEditor) GetRoot() tview.Primitive {
	return d.layout
}

// DisplayName prefers the alias, then the description, then the OS name
func DisplayName(dev permission.Device) string {
	switch {
	case dev.Alias != "":
		return dev.Alias
	case dev.Description != "":
		return dev.Description
	default:
		return dev.Name
	}
}

// StateIcon marks the permission state of a device
func StateIcon(state permission.State) string {
	switch state {
	case permission.StateGranted:
		return "🟢"
	case permission.StateDenied:
		return "🔴"
	default:
		return "⚪"
	}
}
