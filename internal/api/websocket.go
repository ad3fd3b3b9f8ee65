package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/thereceipt/ticketprint/internal/permission"
	"github.com/thereceipt/ticketprint/internal/printer"
	"github.com/thereceipt/ticketprint/internal/service"
)

// WebSocket message types
const (
	EventPermissionPrompt   = "permission_prompt"
	EventPermissionResolved = "permission_resolved"
	EventPermissionResult   = "permission_result"
	EventDeviceAdded        = "device_added"
	EventDeviceRemoved      = "device_removed"
	EventJob                = "job"
	EventPrint              = "print"
	EventResponse           = "response"
	EventError              = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// PermissionResult answers a permission prompt
type PermissionResult struct {
	Device  string `json:"device"`
	Granted bool   `json:"granted"`
}

// PrintRequest prints a document over the socket
type PrintRequest struct {
	Kind     string          `json:"kind"`
	Document json.RawMessage `json:"document"`
	DryRun   bool            `json:"dry_run"`
}

func newMessage(event string, data interface{}) WSMessage {
	raw, err := json.Marshal(data)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"error": err.Error()})
		event = EventError
	}
	return WSMessage{Event: event, Data: raw}
}

// Hub tracks connected clients and fans events out to them
type Hub struct {
	clients map[*WSClient]bool
	mu      sync.RWMutex
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*WSClient]bool)}
}

func (h *Hub) add(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

func (h *Hub) remove(client *WSClient) {
	h.mu.Lock()
	if h.clients[client] {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

// Clients returns how many clients are connected
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client. Clients with a full buffer
// miss the event. Broadcast never blocks.
func (h *Hub) Broadcast(event string, data interface{}) {
	message := newMessage(event, data)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
		}
	}
}

// BroadcastPrompt announces a permission prompt
func (h *Hub) BroadcastPrompt(p permission.Prompt) {
	h.Broadcast(EventPermissionPrompt, p)
}

// BroadcastResolved announces a decided permission request
func (h *Hub) BroadcastResolved(d permission.Device, granted bool) {
	h.Broadcast(EventPermissionResolved, map[string]interface{}{
		"device":  d,
		"granted": granted,
	})
}

// BroadcastDeviceAdded announces an attached vendor device
func (h *Hub) BroadcastDeviceAdded(d permission.Device) {
	h.Broadcast(EventDeviceAdded, d)
}

// BroadcastDeviceRemoved announces a detached vendor device
func (h *Hub) BroadcastDeviceRemoved(d permission.Device) {
	h.Broadcast(EventDeviceRemoved, d)
}

// BroadcastJob announces a job state change
func (h *Hub) BroadcastJob(job printer.PrintJob) {
	h.Broadcast(EventJob, job)
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	server *Server
	ctx    context.Context
	cancel context.CancelFunc
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("api: websocket upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &WSClient{
		conn:   conn,
		send:   make(chan WSMessage, 256),
		server: s,
		ctx:    ctx,
		cancel: cancel,
	}

	s.hub.add(client)
	log.Printf("api: websocket client connected")

	go client.readPump()
	go client.writePump()
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Printf("api: websocket write error: %v", err)
			return
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.cancel()
		c.server.hub.remove(c)
		c.conn.Close()
		log.Printf("api: websocket client disconnected")
	}()

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("api: websocket error: %v", err)
			}
			return
		}

		c.handleMessage(&msg)
	}
}

func (c *WSClient) handleMessage(msg *WSMessage) {
	switch msg.Event {
	case EventPermissionResult:
		c.handlePermissionResult(msg.Data)
	case EventPrint:
		c.handlePrint(msg.Data)
	default:
		c.sendError(fmt.Errorf("unknown event: %s", msg.Event), nil)
	}
}

// handlePermissionResult lets a remote host app answer the prompt
func (c *WSClient) handlePermissionResult(data json.RawMessage) {
	var req PermissionResult
	if err := json.Unmarshal(data, &req); err != nil || req.Device == "" {
		c.reply(newMessage(EventError, map[string]interface{}{
			"code":  service.CodeMalformedInput,
			"error": "device is required",
		}))
		return
	}

	if err := c.server.svc.AnswerPermission(req.Device, req.Granted); err != nil {
		c.sendError(err, nil)
		return
	}
	c.reply(newMessage(EventResponse, map[string]interface{}{"success": true}))
}

func (c *WSClient) handlePrint(data json.RawMessage) {
	var req PrintRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Kind == "" {
		c.reply(newMessage(EventError, map[string]interface{}{
			"code":  service.CodeMalformedInput,
			"error": "kind is required",
		}))
		return
	}

	svc := c.server.svc
	if req.DryRun {
		directives, err := svc.DryRun(c.ctx, req.Kind, req.Document)
		if err != nil {
			c.sendError(err, nil)
			return
		}
		c.reply(newMessage(EventResponse, map[string]interface{}{
			"success":    true,
			"directives": directives,
		}))
		return
	}

	job, err := svc.Print(c.ctx, req.Kind, req.Document)
	if err != nil {
		var extra map[string]interface{}
		if job.ID != "" {
			extra = map[string]interface{}{"job_id": job.ID}
		}
		c.sendError(err, extra)
		return
	}
	c.reply(newMessage(EventResponse, map[string]interface{}{
		"success": true,
		"job_id":  job.ID,
	}))
}

// reply queues a message for this client only. It runs on the read pump,
// before the client is removed, so send is still open.
func (c *WSClient) reply(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		log.Printf("api: websocket client buffer full, dropping %s", msg.Event)
	}
}

func (c *WSClient) sendError(err error, extra map[string]interface{}) {
	data := map[string]interface{}{
		"success": false,
		"code":    service.Code(err),
		"error":   err.Error(),
	}
	for k, v := range extra {
		data[k] = v
	}
	c.reply(newMessage(EventError, data))
}
