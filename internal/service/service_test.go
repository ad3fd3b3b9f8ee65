package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/thereceipt/ticketprint/internal/config"
	"github.com/thereceipt/ticketprint/internal/layout"
	"github.com/thereceipt/ticketprint/internal/permission"
	"github.com/thereceipt/ticketprint/internal/printer"
	"github.com/thereceipt/ticketprint/pkg/ticketformat"
)

const epson = 0x04B8

type fakeLister struct {
	devices []permission.Device
}

func (f *fakeLister) Devices(ctx context.Context) ([]permission.Device, error) {
	out := make([]permission.Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func usbPrinter(addr int, vendor uint16) permission.Device {
	return permission.Device{
		VendorID:  vendor,
		ProductID: 0x0202,
		Name:      permission.DeviceName(1, addr),
		Bus:       1,
		Address:   addr,
		Printer:   true,
	}
}

type harness struct {
	svc       *Service
	authority *permission.PromptAuthority
	recorder  *printer.Recorder
	dialed    []Target
}

func newHarness(t *testing.T, devices ...permission.Device) *harness {
	t.Helper()

	h := &harness{
		authority: permission.NewPromptAuthority(),
		recorder:  printer.NewRecorder(),
	}
	broker := permission.NewBroker(&fakeLister{devices: devices}, h.authority)

	cfg := config.Default()
	h.svc = New(Options{
		Config:    cfg,
		Broker:    broker,
		Authority: h.authority,
		Dial: func(ctx context.Context, target Target) (printer.Driver, error) {
			h.dialed = append(h.dialed, target)
			return h.recorder, nil
		},
		Now: func() time.Time { return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC) },
	})
	t.Cleanup(h.svc.Close)
	return h
}

// answerPrompts decides every prompt from another goroutine, the way an
// operator would
func (h *harness) answerPrompts(granted bool) (cancel func()) {
	return h.authority.Subscribe(func(p permission.Prompt) {
		go h.authority.Answer(p.Device.Name, granted)
	})
}

func TestRequestPermission(t *testing.T) {
	tests := []struct {
		name     string
		devices  []permission.Device
		granted  bool
		expected permission.Outcome
		wantErr  error
	}{
		{"granted", []permission.Device{usbPrinter(2, epson)}, true, permission.Granted, nil},
		{"denied", []permission.Device{usbPrinter(2, epson)}, false, permission.Denied, permission.ErrPermissionDenied},
		{"no device", []permission.Device{usbPrinter(2, 0x1234)}, true, permission.NoMatchingDevice, permission.ErrNoMatchingDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.devices...)
			defer h.answerPrompts(tt.granted)()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			outcome, err := h.svc.RequestPermission(ctx)
			if outcome != tt.expected {
				t.Errorf("Outcome = %s, want %s", outcome, tt.expected)
			}
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("Error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckPermission(t *testing.T) {
	h := newHarness(t, usbPrinter(2, epson))

	outcome, err := h.svc.CheckPermission(context.Background())
	if err != nil || outcome != permission.PartiallyOrNoneGranted {
		t.Fatalf("CheckPermission() = %s, %v", outcome, err)
	}

	defer h.answerPrompts(true)()
	if _, err := h.svc.RequestPermission(context.Background()); err != nil {
		t.Fatal(err)
	}

	outcome, err = h.svc.CheckPermission(context.Background())
	if err != nil || outcome != permission.AllGranted {
		t.Errorf("CheckPermission() = %s, %v", outcome, err)
	}

	empty := newHarness(t)
	if _, err := empty.svc.CheckPermission(context.Background()); !errors.Is(err, permission.ErrNoMatchingDevice) {
		t.Errorf("Expected ErrNoMatchingDevice, got %v", err)
	}
}

func TestConnect_USBRequiresGrant(t *testing.T) {
	h := newHarness(t, usbPrinter(2, epson))

	if _, err := h.svc.Connect(context.Background()); !errors.Is(err, permission.ErrPermissionDenied) {
		t.Fatalf("Connect() error = %v, want ErrPermissionDenied", err)
	}
	if len(h.dialed) != 0 {
		t.Error("Nothing should be opened without permission")
	}

	defer h.answerPrompts(true)()
	if _, err := h.svc.RequestPermission(context.Background()); err != nil {
		t.Fatal(err)
	}

	target, err := h.svc.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if target.Device == nil || target.Device.Name != permission.DeviceName(1, 2) {
		t.Errorf("Unexpected target %+v", target)
	}
	if !h.svc.IsConnected(context.Background()) {
		t.Error("Should be connected")
	}
	if h.svc.Target() != "usb:/dev/bus/usb/001/002" {
		t.Errorf("Target() = %q", h.svc.Target())
	}

	if err := h.svc.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if h.svc.IsConnected(context.Background()) {
		t.Error("Should be disconnected")
	}
}

func TestConnect_NoDevice(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Connect(context.Background()); !errors.Is(err, permission.ErrNoMatchingDevice) {
		t.Errorf("Connect() error = %v, want ErrNoMatchingDevice", err)
	}
}

func TestConnect_Network(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.Transport = config.TransportNetwork
	h.svc.cfg.Network.Host = "10.0.0.5"

	target, err := h.svc.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if target.String() != "network:10.0.0.5:9100" {
		t.Errorf("Target = %s", target)
	}
}

func connected(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	h.svc.cfg.Transport = config.TransportNetwork
	h.svc.cfg.Network.Host = "printer.local"
	if _, err := h.svc.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	return h
}

const receiptJSON = `{"ticketData":{"name":"Dubai Aquarium","saleNumber":"S-1","items":[{"qty":1,"description":"Adult Ticket","amount":"120.00"}],"totalExclVat":"114.29","vatAmount":"5.71","totalInclVat":"120.00"}}`

func TestPrint(t *testing.T) {
	h := connected(t)

	job, err := h.svc.PrintReceipt(context.Background(), []byte(receiptJSON))
	if err != nil {
		t.Fatalf("PrintReceipt() error = %v", err)
	}
	if job.Status != printer.JobCompleted || job.Kind != KindReceipt {
		t.Errorf("Unexpected job %+v", job)
	}

	sent := h.recorder.Sent()
	if len(sent) == 0 || sent[len(sent)-1].Kind != layout.KindCut {
		t.Error("Receipt should be sent ending with a cut")
	}
	if h.recorder.Sends() != 1 {
		t.Errorf("Sends = %d, want 1", h.recorder.Sends())
	}
}

func TestPrintTickets_SingleSend(t *testing.T) {
	h := connected(t)

	data := `{"ticketData":[{"eventName":"A","barcodeValue":["111"]},{"eventName":"B","barcodeValue":["222"]}]}`
	job, err := h.svc.PrintTickets(context.Background(), []byte(data))
	if err != nil {
		t.Fatalf("PrintTickets() error = %v", err)
	}
	if job.Documents != 2 {
		t.Errorf("Documents = %d, want 2", job.Documents)
	}

	cuts := 0
	for _, d := range h.recorder.Sent() {
		if d.Kind == layout.KindCut {
			cuts++
		}
	}
	if cuts != 2 || h.recorder.Sends() != 1 {
		t.Errorf("cuts = %d, sends = %d", cuts, h.recorder.Sends())
	}
}

func TestPrint_MalformedEmitsNothing(t *testing.T) {
	h := connected(t)

	_, err := h.svc.PrintTickets(context.Background(), []byte(`{"ticketData":"not-an-object"}`))
	if !errors.Is(err, ticketformat.ErrMalformedInput) {
		t.Fatalf("Expected ErrMalformedInput, got %v", err)
	}
	if len(h.recorder.Sent()) != 0 || len(h.recorder.Buffered()) != 0 {
		t.Error("No directive should be emitted for malformed input")
	}
	if len(h.svc.Jobs().GetAllJobs()) != 0 {
		t.Error("No job should be recorded for malformed input")
	}
}

func TestPrint_NotConnected(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.PrintTestPage(context.Background(), ""); !errors.Is(err, printer.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestPrintBarcode(t *testing.T) {
	h := connected(t)

	if _, err := h.svc.PrintBarcode(context.Background(), "", "caption"); !errors.Is(err, layout.ErrEmptyBarcode) {
		t.Errorf("Expected ErrEmptyBarcode, got %v", err)
	}

	if _, err := h.svc.PrintBarcode(context.Background(), "TKT-1", "Gate"); err != nil {
		t.Fatal(err)
	}
	var bc *layout.Barcode
	for _, d := range h.recorder.Sent() {
		if d.Kind == layout.KindBarcode {
			bc = d.Barcode
		}
	}
	if bc == nil || bc.Value != "TKT-1" || bc.Symbology != layout.CODE128 {
		t.Errorf("Unexpected barcode %+v", bc)
	}
}

func TestDryRun(t *testing.T) {
	h := newHarness(t)

	directives, err := h.svc.DryRun(context.Background(), KindTest, []byte(`{"orderId":"42"}`))
	if err != nil {
		t.Fatalf("DryRun() error = %v", err)
	}

	var sawBarcode, sawTime bool
	for _, d := range directives {
		if d.Kind == layout.KindBarcode && d.Barcode.Value == "42" {
			sawBarcode = true
		}
		if d.Kind == layout.KindText && d.Text == "Time: 2024-03-01 10:30:00" {
			sawTime = true
		}
	}
	if !sawBarcode || !sawTime {
		t.Errorf("Unexpected directives %v", directives)
	}

	if _, err := h.svc.DryRun(context.Background(), "menu", nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	h := newHarness(t)

	var buf bytes.Buffer
	if err := h.svc.Preview(&buf, KindVoid, []byte(receiptJSON)); err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("Preview should be a PNG")
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err      error
		expected string
		status   int
	}{
		{permission.ErrNoMatchingDevice, CodeNoDevice, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", permission.ErrPermissionDenied), CodePermissionDenied, http.StatusForbidden},
		{permission.ErrRequestPending, CodePermissionPending, http.StatusConflict},
		{printer.ErrNotConnected, CodeNotConnected, http.StatusConflict},
		{ticketformat.ErrMalformedInput, CodeMalformedInput, http.StatusBadRequest},
		{fmt.Errorf("send: %w", &printer.DriverError{Op: "send", Code: -7}), CodeDriverError, http.StatusBadGateway},
		{errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			code := Code(tt.err)
			if code != tt.expected {
				t.Errorf("Code() = %s, want %s", code, tt.expected)
			}
			if HTTPStatus(code) != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", HTTPStatus(code), tt.status)
			}
		})
	}
	if Code(nil) != "" {
		t.Error("nil error should have no code")
	}
}
