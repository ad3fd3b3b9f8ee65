// Package service is the command surface shared by the HTTP API, the
// WebSocket hub, the command executor and the dashboard
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/thereceipt/ticketprint/internal/config"
	"github.com/thereceipt/ticketprint/internal/layout"
	"github.com/thereceipt/ticketprint/internal/permission"
	"github.com/thereceipt/ticketprint/internal/preview"
	"github.com/thereceipt/ticketprint/internal/printer"
	"github.com/thereceipt/ticketprint/internal/registry"
	"github.com/thereceipt/ticketprint/pkg/ticketformat"
)

// Document kinds
const (
	KindTest    = "test"
	KindTickets = "tickets"
	KindReceipt = "receipt"
	KindVoid    = "void"
	KindBarcode = "barcode"
)

var (
	// ErrUnknownKind is returned for a document kind no layout handles
	ErrUnknownKind = errors.New("unknown document kind")

	// ErrUnknownDevice is returned when renaming a device the registry does not know
	ErrUnknownDevice = errors.New("unknown device")
)

// Target is what Connect opens
type Target struct {
	Transport string             `json:"transport"`
	Device    *permission.Device `json:"device,omitempty"`
	Serial    string             `json:"serial,omitempty"`
	Baud      int                `json:"baud,omitempty"`
	Host      string             `json:"host,omitempty"`
	Port      int                `json:"port,omitempty"`
}

func (t Target) String() string {
	switch t.Transport {
	case config.TransportUSB:
		if t.Device != nil {
			return "usb:" + t.Device.Name
		}
		return "usb"
	case config.TransportSerial:
		return "serial:" + t.Serial
	case config.TransportNetwork:
		return fmt.Sprintf("network:%s:%d", t.Host, t.Port)
	}
	return t.Transport
}

// DialFunc opens a driver for a target
type DialFunc func(ctx context.Context, t Target) (printer.Driver, error)

// Dial opens an ESC/POS driver over the target's transport
func Dial(ctx context.Context, t Target) (printer.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var conn printer.Conn
	var err error
	switch t.Transport {
	case config.TransportUSB:
		if t.Device == nil {
			return nil, permission.ErrNoMatchingDevice
		}
		conn, err = printer.ConnectUSB(t.Device.Bus, t.Device.Address)
	case config.TransportSerial:
		conn, err = printer.ConnectSerial(t.Serial, t.Baud)
	case config.TransportNetwork:
		conn, err = printer.ConnectNetwork(t.Host, t.Port)
	default:
		return nil, fmt.Errorf("unknown transport %q", t.Transport)
	}
	if err != nil {
		return nil, err
	}
	return printer.NewEscposDriver(conn), nil
}

// Options wires a Service
type Options struct {
	Config    config.Config
	Broker    *permission.Broker
	Authority *permission.PromptAuthority
	Station   *printer.Station
	Registry  *registry.Registry // optional
	Dial      DialFunc           // defaults to Dial
	Now       func() time.Time   // defaults to time.Now
}

// Service runs caller commands against the broker and the station
type Service struct {
	cfg       config.Config
	broker    *permission.Broker
	authority *permission.PromptAuthority
	station   *printer.Station
	registry  *registry.Registry
	dial      DialFunc
	now       func() time.Time
}

// New creates a service
func New(opts Options) *Service {
	s := &Service{
		cfg:       opts.Config,
		broker:    opts.Broker,
		authority: opts.Authority,
		station:   opts.Station,
		registry:  opts.Registry,
		dial:      opts.Dial,
		now:       opts.Now,
	}
	if s.station == nil {
		s.station = printer.NewStation(nil)
	}
	if s.dial == nil {
		s.dial = Dial
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Config returns the configuration the service runs with
func (s *Service) Config() config.Config {
	return s.cfg
}

// Jobs returns the print job log
func (s *Service) Jobs() *printer.JobLog {
	return s.station.Jobs()
}

// Devices lists attached USB devices with their permission state
func (s *Service) Devices(ctx context.Context) ([]permission.Device, error) {
	return s.broker.Devices(ctx)
}

// RenameDevice sets the friendly name of a registered device
func (s *Service) RenameDevice(id, name string) error {
	if s.registry == nil || !s.registry.SetName(id, name) {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return nil
}

// RequestPermission asks for access to the configured vendor's printer and
// blocks until it is decided. Denied and no-device outcomes come back with
// the matching error.
func (s *Service) RequestPermission(ctx context.Context) (permission.Outcome, error) {
	outcome, err := s.broker.RequestPermission(ctx, s.cfg.VendorID)
	if err != nil {
		return outcome, err
	}

	switch outcome {
	case permission.NoMatchingDevice:
		return outcome, permission.ErrNoMatchingDevice
	case permission.Denied:
		return outcome, permission.ErrPermissionDenied
	}
	return outcome, nil
}

// CheckPermission reports whether every vendor device is authorized
func (s *Service) CheckPermission(ctx context.Context) (permission.Outcome, error) {
	outcome, err := s.broker.CheckPermission(ctx, s.cfg.VendorID)
	if err != nil {
		return outcome, err
	}
	if outcome == permission.NoMatchingDevice {
		return outcome, permission.ErrNoMatchingDevice
	}
	return outcome, nil
}

// AnswerPermission decides an outstanding prompt
func (s *Service) AnswerPermission(deviceName string, granted bool) error {
	if s.authority == nil {
		return permission.ErrNoPrompt
	}
	return s.authority.Answer(deviceName, granted)
}

// Prompts returns the outstanding permission prompts
func (s *Service) Prompts() []permission.Prompt {
	if s.authority == nil {
		return nil
	}
	return s.authority.Prompts()
}

// Pending returns the device of the in-flight permission request
func (s *Service) Pending() (permission.Device, bool) {
	return s.broker.Pending()
}

// Connect opens the configured transport. USB needs a granted vendor device.
func (s *Service) Connect(ctx context.Context) (Target, error) {
	target, err := s.target(ctx)
	if err != nil {
		return target, err
	}

	driver, err := s.dial(ctx, target)
	if err != nil {
		return target, fmt.Errorf("failed to open %s: %w", target, err)
	}

	if err := s.station.Connect(ctx, driver, target.String()); err != nil {
		return target, err
	}
	return target, nil
}

func (s *Service) target(ctx context.Context) (Target, error) {
	t := Target{Transport: s.cfg.Transport}

	switch s.cfg.Transport {
	case config.TransportSerial:
		t.Serial = s.cfg.Serial.Device
		t.Baud = s.cfg.Serial.Baud
		return t, nil
	case config.TransportNetwork:
		t.Host = s.cfg.Network.Host
		t.Port = s.cfg.Network.Port
		return t, nil
	case config.TransportUSB:
	default:
		return t, fmt.Errorf("unknown transport %q", s.cfg.Transport)
	}

	devices, err := s.broker.Devices(ctx)
	if err != nil {
		return t, err
	}

	found := false
	for i := range devices {
		if devices[i].VendorID != s.cfg.VendorID {
			continue
		}
		found = true
		if devices[i].State == permission.StateGranted {
			t.Device = &devices[i]
			return t, nil
		}
	}
	if !found {
		return t, permission.ErrNoMatchingDevice
	}
	return t, permission.ErrPermissionDenied
}

// IsConnected verifies the connection with a status query
func (s *Service) IsConnected(ctx context.Context) bool {
	return s.station.IsConnected(ctx)
}

// Target returns the current connection target, "" when disconnected
func (s *Service) Target() string {
	return s.station.Target()
}

// Disconnect closes the printer connection
func (s *Service) Disconnect() error {
	return s.station.Disconnect()
}

// TestPageRequest is the optional body of a test page print
type TestPageRequest struct {
	OrderID string `json:"orderId"`
}

// BarcodeRequest is the body of a barcode label print
type BarcodeRequest struct {
	Value   string `json:"value"`
	Caption string `json:"caption"`
}

// Layout formats a document of the given kind. Nothing is emitted when the
// input is malformed.
func (s *Service) Layout(kind string, data []byte) ([]layout.Document, error) {
	cfg := s.cfg.Layout

	switch kind {
	case KindTest:
		var req TestPageRequest
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, fmt.Errorf("%w: %v", ticketformat.ErrMalformedInput, err)
			}
		}
		return []layout.Document{layout.TestPage(cfg, layout.TestPageData{OrderID: req.OrderID, Time: s.now()})}, nil

	case KindTickets:
		batch, err := ticketformat.ParseBatch(data)
		if err != nil {
			return nil, err
		}
		return layout.TicketBatch(cfg, batch), nil

	case KindReceipt, KindVoid:
		receipt, err := ticketformat.ParseReceipt(data)
		if err != nil {
			return nil, err
		}
		if kind == KindVoid {
			return []layout.Document{layout.VoidReceipt(cfg, receipt)}, nil
		}
		return []layout.Document{layout.Receipt(cfg, receipt)}, nil

	case KindBarcode:
		var req BarcodeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", ticketformat.ErrMalformedInput, err)
		}
		doc, err := layout.BarcodeLabel(cfg, req.Value, req.Caption)
		if err != nil {
			return nil, err
		}
		return []layout.Document{doc}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Print formats and prints a document of the given kind as one job
func (s *Service) Print(ctx context.Context, kind string, data []byte) (printer.PrintJob, error) {
	docs, err := s.Layout(kind, data)
	if err != nil {
		log.Printf("service: rejected %s document: %v", kind, err)
		return printer.PrintJob{}, err
	}
	return s.station.Print(ctx, kind, docs)
}

// PrintTestPage prints the self-test page
func (s *Service) PrintTestPage(ctx context.Context, orderID string) (printer.PrintJob, error) {
	data, _ := json.Marshal(TestPageRequest{OrderID: orderID})
	return s.Print(ctx, KindTest, data)
}

// PrintTickets prints a ticket batch; the whole batch is sent once
func (s *Service) PrintTickets(ctx context.Context, data []byte) (printer.PrintJob, error) {
	return s.Print(ctx, KindTickets, data)
}

// PrintReceipt prints an itemized receipt
func (s *Service) PrintReceipt(ctx context.Context, data []byte) (printer.PrintJob, error) {
	return s.Print(ctx, KindReceipt, data)
}

// PrintVoidReceipt prints a void receipt
func (s *Service) PrintVoidReceipt(ctx context.Context, data []byte) (printer.PrintJob, error) {
	return s.Print(ctx, KindVoid, data)
}

// PrintBarcode prints a caption and a single barcode
func (s *Service) PrintBarcode(ctx context.Context, value, caption string) (printer.PrintJob, error) {
	data, _ := json.Marshal(BarcodeRequest{Value: value, Caption: caption})
	return s.Print(ctx, KindBarcode, data)
}

// DryRun returns the directives a print would emit, without a printer
func (s *Service) DryRun(ctx context.Context, kind string, data []byte) ([]layout.Directive, error) {
	docs, err := s.Layout(kind, data)
	if err != nil {
		return nil, err
	}

	rec := printer.NewRecorder()
	if err := printer.Emit(ctx, rec, docs); err != nil {
		return nil, err
	}
	return rec.Sent(), nil
}

// Preview writes a PNG rendering of a document to w
func (s *Service) Preview(w io.Writer, kind string, data []byte) error {
	docs, err := s.Layout(kind, data)
	if err != nil {
		return err
	}
	return preview.PNG(w, docs, s.cfg.PaperWidth)
}

// Close releases the printer and the permission receiver
func (s *Service) Close() {
	if err := s.station.Disconnect(); err != nil {
		log.Printf("service: disconnect: %v", err)
	}
	s.broker.Close()
}
