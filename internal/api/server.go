// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/thereceipt/ticketprint/internal/command"
	"github.com/thereceipt/ticketprint/internal/service"
)

// Server is the API server
type Server struct {
	router   *gin.Engine
	svc      *service.Service
	executor *command.Executor
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(svc *service.Service, executor *command.Executor) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	server := &Server{
		router:   router,
		svc:      svc,
		executor: executor,
		hub:      NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.router.GET("/devices", s.handleGetDevices)
	s.router.POST("/device/:id/name", s.handleSetDeviceName)

	s.router.GET("/permission", s.handleGetPermission)
	s.router.POST("/permission/request", s.handleRequestPermission)
	s.router.POST("/permission/result", s.handlePermissionResult)

	s.router.POST("/connect", s.handleConnect)
	s.router.POST("/disconnect", s.handleDisconnect)
	s.router.GET("/connected", s.handleConnected)

	for _, kind := range []string{service.KindTest, service.KindTickets, service.KindReceipt, service.KindVoid, service.KindBarcode} {
		s.router.POST("/print/"+kind, s.handlePrint(kind))
	}
	s.router.POST("/preview/:kind", s.handlePreview)

	s.router.GET("/jobs", s.handleGetJobs)
	s.router.GET("/job/:id", s.handleGetJob)

	s.router.POST("/command", s.handleCommand)

	s.router.GET("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the WebSocket event hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run starts the API server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// respondError writes the error shape shared by every endpoint
func respondError(c *gin.Context, err error, extra gin.H) {
	code := service.Code(err)
	body := gin.H{
		"success": false,
		"code":    code,
		"error":   err.Error(),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(service.HTTPStatus(code), body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"code":    service.CodeMalformedInput,
		"error":   message,
	})
}

func (s *Server) handleGetDevices(c *gin.Context) {
	devices, err := s.svc.Devices(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (s *Server) handleSetDeviceName(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}

	if err := s.svc.RenameDevice(c.Param("id"), req.Name); err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleGetPermission(c *gin.Context) {
	body := gin.H{
		"pending": nil,
		"prompts": s.svc.Prompts(),
	}
	if d, ok := s.svc.Pending(); ok {
		body["pending"] = d
	}
	c.JSON(http.StatusOK, body)
}

// handleRequestPermission blocks until the prompt is answered. A client
// that goes away abandons the request.
func (s *Server) handleRequestPermission(c *gin.Context) {
	outcome, err := s.svc.RequestPermission(c.Request.Context())
	if err != nil {
		respondError(c, err, gin.H{"outcome": outcome})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "outcome": outcome})
}

func (s *Server) handlePermissionResult(c *gin.Context) {
	var req PermissionResult
	if err := c.ShouldBindJSON(&req); err != nil || req.Device == "" {
		badRequest(c, "device is required")
		return
	}

	if err := s.svc.AnswerPermission(req.Device, req.Granted); err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleConnect(c *gin.Context) {
	target, err := s.svc.Connect(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "target": target})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.svc.Disconnect(); err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleConnected(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected": s.svc.IsConnected(c.Request.Context()),
		"target":    s.svc.Target(),
	})
}

// handlePrint prints the request body as a document of kind. With
// ?dry_run=true the directives are returned instead.
func (s *Server) handlePrint(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			badRequest(c, "failed to read body")
			return
		}
		data = bytes.TrimSpace(data)

		if c.Query("dry_run") == "true" {
			directives, err := s.svc.DryRun(c.Request.Context(), kind, data)
			if err != nil {
				respondError(c, err, nil)
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "directives": directives})
			return
		}

		job, err := s.svc.Print(c.Request.Context(), kind, data)
		if err != nil {
			var extra gin.H
			if job.ID != "" {
				extra = gin.H{"job_id": job.ID}
			}
			respondError(c, err, extra)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "job_id": job.ID, "job": job})
	}
}

func (s *Server) handlePreview(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "failed to read body")
		return
	}

	var buf bytes.Buffer
	if err := s.svc.Preview(&buf, c.Param("kind"), bytes.TrimSpace(data)); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) handleGetJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.svc.Jobs().GetAllJobs()})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job := s.svc.Jobs().GetJob(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "command is required")
		return
	}

	result := s.executor.Execute(c.Request.Context(), req.Command)
	if !result.Success {
		status := http.StatusBadRequest
		if result.Code != "" && result.Code != service.CodeMalformedInput {
			status = service.HTTPStatus(result.Code)
		}
		c.JSON(status, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
