package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/thereceipt/ticketprint/internal/command"
	"github.com/thereceipt/ticketprint/internal/config"
	"github.com/thereceipt/ticketprint/internal/layout"
	"github.com/thereceipt/ticketprint/internal/permission"
	"github.com/thereceipt/ticketprint/internal/printer"
	"github.com/thereceipt/ticketprint/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLister struct {
	devices []permission.Device
}

func (f *fakeLister) Devices(ctx context.Context) ([]permission.Device, error) {
	out := make([]permission.Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

type fixture struct {
	server    *Server
	svc       *service.Service
	authority *permission.PromptAuthority
	recorder  *printer.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		authority: permission.NewPromptAuthority(),
		recorder:  printer.NewRecorder(),
	}
	lister := &fakeLister{devices: []permission.Device{{
		VendorID:  0x04B8,
		ProductID: 0x0202,
		Name:      permission.DeviceName(1, 4),
		Bus:       1,
		Address:   4,
		Printer:   true,
	}}}

	f.svc = service.New(service.Options{
		Config:    config.Default(),
		Broker:    permission.NewBroker(lister, f.authority),
		Authority: f.authority,
		Dial: func(ctx context.Context, target service.Target) (printer.Driver, error) {
			return f.recorder, nil
		},
	})
	t.Cleanup(f.svc.Close)

	f.server = NewServer(f.svc, command.NewExecutor(f.svc))
	return f
}

func (f *fixture) do(method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	var out map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

// grant walks the permission flow the way a host app would
func (f *fixture) grant(t *testing.T) {
	t.Helper()
	cancel := f.authority.Subscribe(func(p permission.Prompt) {
		go f.authority.Answer(p.Device.Name, true)
	})
	defer cancel()

	w, body := f.do("POST", "/permission/request", "")
	if w.Code != http.StatusOK || body["outcome"] != string(permission.Granted) {
		t.Fatalf("Permission request: %d %v", w.Code, body)
	}
}

const receiptBody = `{"ticketData":{"name":"Dubai Aquarium","items":[{"qty":2,"description":"Adult","amount":"240.00"}],"vatAmount":"0.00","totalInclVat":"240.00"}}`

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w, body := f.do("GET", "/health", "")
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("Health: %d %v", w.Code, body)
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	w, _ := f.do("OPTIONS", "/print/test", "")
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Preflight: %d %v", w.Code, w.Header())
	}
}

func TestPermissionAndConnectFlow(t *testing.T) {
	f := newFixture(t)

	w, body := f.do("POST", "/connect", "")
	if w.Code != http.StatusForbidden || body["code"] != service.CodePermissionDenied {
		t.Fatalf("Connect without permission: %d %v", w.Code, body)
	}

	f.grant(t)

	w, body = f.do("GET", "/devices", "")
	devices := body["devices"].([]interface{})
	if w.Code != http.StatusOK || devices[0].(map[string]interface{})["state"] != string(permission.StateGranted) {
		t.Errorf("Devices: %d %v", w.Code, body)
	}

	w, body = f.do("POST", "/connect", "")
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("Connect: %d %v", w.Code, body)
	}

	_, body = f.do("GET", "/connected", "")
	if body["connected"] != true || body["target"] != "usb:/dev/bus/usb/001/004" {
		t.Errorf("Connected: %v", body)
	}

	w, _ = f.do("POST", "/disconnect", "")
	if w.Code != http.StatusOK {
		t.Errorf("Disconnect: %d", w.Code)
	}
	_, body = f.do("GET", "/connected", "")
	if body["connected"] != false {
		t.Errorf("Connected after disconnect: %v", body)
	}
}

func TestPermissionResult(t *testing.T) {
	f := newFixture(t)

	w, body := f.do("POST", "/permission/result", `{"device":"/dev/bus/usb/001/004","granted":true}`)
	if w.Code != http.StatusNotFound || body["code"] != service.CodeNoDevice {
		t.Errorf("Result without prompt: %d %v", w.Code, body)
	}

	w, _ = f.do("POST", "/permission/result", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Empty result: %d", w.Code)
	}

	done := make(chan int, 1)
	go func() {
		w, _ := f.do("POST", "/permission/request", "")
		done <- w.Code
	}()

	var pending map[string]interface{}
	for pending == nil {
		_, body := f.do("GET", "/permission", "")
		if p, ok := body["pending"].(map[string]interface{}); ok {
			pending = p
		} else {
			time.Sleep(time.Millisecond)
		}
	}

	w, body = f.do("POST", "/permission/result", `{"device":"`+pending["name"].(string)+`","granted":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Answer: %d %v", w.Code, body)
	}
	if code := <-done; code != http.StatusForbidden {
		t.Errorf("Denied request status = %d, want 403", code)
	}
}

func TestPrintEndpoints(t *testing.T) {
	f := newFixture(t)

	w, body := f.do("POST", "/print/receipt", receiptBody)
	if w.Code != http.StatusConflict || body["code"] != service.CodeNotConnected {
		t.Fatalf("Print before connect: %d %v", w.Code, body)
	}

	f.grant(t)
	if w, _ := f.do("POST", "/connect", ""); w.Code != http.StatusOK {
		t.Fatal("connect failed")
	}

	w, body = f.do("POST", "/print/receipt", receiptBody)
	if w.Code != http.StatusOK || body["job_id"] == "" {
		t.Fatalf("Print receipt: %d %v", w.Code, body)
	}
	for _, line := range layout.Document(f.recorder.Sent()).Lines() {
		if strings.HasPrefix(line, "VAT") {
			t.Errorf("Zero VAT should be suppressed, got %q", line)
		}
	}

	jobID := body["job_id"].(string)
	w, body = f.do("GET", "/job/"+jobID, "")
	if w.Code != http.StatusOK || body["status"] != printer.JobCompleted {
		t.Errorf("Job: %d %v", w.Code, body)
	}
	if w, _ := f.do("GET", "/job/unknown", ""); w.Code != http.StatusNotFound {
		t.Errorf("Unknown job: %d", w.Code)
	}
	_, body = f.do("GET", "/jobs", "")
	if jobs := body["jobs"].([]interface{}); len(jobs) != 1 {
		t.Errorf("Jobs: %v", jobs)
	}

	w, body = f.do("POST", "/print/tickets", `{"ticketData":"not-an-object"}`)
	if w.Code != http.StatusBadRequest || body["code"] != service.CodeMalformedInput {
		t.Errorf("Malformed tickets: %d %v", w.Code, body)
	}

	w, _ = f.do("POST", "/print/test", "")
	if w.Code != http.StatusOK {
		t.Errorf("Test page: %d", w.Code)
	}
}

func TestPrint_DriverError(t *testing.T) {
	f := newFixture(t)
	f.grant(t)
	f.do("POST", "/connect", "")

	f.recorder.FailSend(&printer.DriverError{Op: "send", Code: -7})
	w, body := f.do("POST", "/print/barcode", `{"value":"TKT-1","caption":"Gate"}`)
	if w.Code != http.StatusBadGateway || body["code"] != service.CodeDriverError || body["job_id"] == nil {
		t.Errorf("Driver error: %d %v", w.Code, body)
	}
}

func TestDryRun(t *testing.T) {
	f := newFixture(t)

	w, body := f.do("POST", "/print/void?dry_run=true", receiptBody)
	if w.Code != http.StatusOK {
		t.Fatalf("Dry run: %d %v", w.Code, body)
	}
	directives := body["directives"].([]interface{})
	last := directives[len(directives)-1].(map[string]interface{})
	if last["kind"] != string(layout.KindCut) {
		t.Errorf("Last directive = %v", last)
	}
	if f.recorder.Sends() != 0 {
		t.Error("Dry run must not touch the printer")
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do("POST", "/preview/receipt", receiptBody)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("Preview: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("Preview body is not a PNG")
	}

	if w, _ := f.do("POST", "/preview/menu", "{}"); w.Code != http.StatusBadRequest {
		t.Errorf("Unknown kind: %d", w.Code)
	}
}

func TestCommandEndpoint(t *testing.T) {
	f := newFixture(t)

	w, body := f.do("POST", "/command", `{"command":"help"}`)
	if w.Code != http.StatusOK || body["success"] != true {
		t.Errorf("Help: %d %v", w.Code, body)
	}

	w, body = f.do("POST", "/command", `{"command":"print test"}`)
	if w.Code != http.StatusConflict || body["code"] != service.CodeNotConnected {
		t.Errorf("Print test: %d %v", w.Code, body)
	}

	if w, _ := f.do("POST", "/command", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("Missing command: %d", w.Code)
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Waiting for %s: %v", event, err)
		}
		if msg.Event != event {
			continue
		}
		var data map[string]interface{}
		json.Unmarshal(msg.Data, &data)
		return data
	}
}

func TestWebSocket(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	conn := dialWS(t, srv)

	// a reply proves the client is registered with the hub
	conn.WriteJSON(WSMessage{Event: "bogus"})
	if data := readEvent(t, conn, EventError); !strings.Contains(data["error"].(string), "unknown event") {
		t.Fatalf("Unexpected error event %v", data)
	}

	f.authority.Subscribe(f.server.Hub().BroadcastPrompt)

	done := make(chan int, 1)
	go func() {
		w, _ := f.do("POST", "/permission/request", "")
		done <- w.Code
	}()

	prompt := readEvent(t, conn, EventPermissionPrompt)
	device := prompt["device"].(map[string]interface{})["name"].(string)

	answer, _ := json.Marshal(PermissionResult{Device: device, Granted: true})
	conn.WriteJSON(WSMessage{Event: EventPermissionResult, Data: answer})
	if data := readEvent(t, conn, EventResponse); data["success"] != true {
		t.Errorf("Answer response %v", data)
	}
	if code := <-done; code != http.StatusOK {
		t.Errorf("Request status = %d", code)
	}

	printMsg, _ := json.Marshal(PrintRequest{Kind: service.KindTest, DryRun: true})
	conn.WriteJSON(WSMessage{Event: EventPrint, Data: printMsg})
	if data := readEvent(t, conn, EventResponse); data["directives"] == nil {
		t.Errorf("Dry run response %v", data)
	}

	f.server.Hub().BroadcastJob(printer.PrintJob{ID: "job-1", Status: printer.JobCompleted})
	if data := readEvent(t, conn, EventJob); data["id"] != "job-1" {
		t.Errorf("Job event %v", data)
	}
}
