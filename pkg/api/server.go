// Package api is the HTTP/SSE surface spec.md §6.1 describes: gin routes
// for POST /start-process, GET /stream-updates/{process_id}, POST
// /cancel/{process_id}, GET /available-tools, plus the ambient /health
// and /metrics endpoints the teacher's cmd/tarsy/main.go wires inline.
//
// Grounded on the teacher's cmd/tarsy/main.go router.GET("/health", ...)
// gin.Default()/gin.H handler shape (this repo standardizes on gin — see
// DESIGN.md's "gin vs echo" entry — rather than the teacher's
// pkg/api/server.go, which actually imports echo, an inconsistency in
// the retrieved snapshot) for route registration, and on that same
// file's database.Health(reqCtx, dbClient.DB()) composition for the
// health handler.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/database"
	"github.com/fctr-io/okta-query-engine/pkg/events"
	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/phaseagent"
	"github.com/fctr-io/okta-query-engine/pkg/process"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Driver is the subset of *process.Driver the server calls — declared
// here, at the consumer, continuing this repo's standing
// forward-reference-avoidance convention.
type Driver interface {
	StartProcess(ctx context.Context, rawText, userIdentity string) (process.PlanResponse, error)
	Execute(correlationID string) error
	Cancel(correlationID string) bool
	Lookup(ctx context.Context, correlationID string) (*database.ProcessRecord, error)
}

// EventStreamer is the SSE half of the surface — satisfied by
// *events.Manager.
type EventStreamer interface {
	Stream(ctx context.Context, processID string, out events.Flusher) error
}

// ToolCatalog is the registered special-tools lookup GET /available-tools
// reads — satisfied by *phaseagent.Registry.
type ToolCatalog interface {
	AllTools() []phaseagent.ToolDescriptor
}

// Server wires a gin.Engine over the query driver, the SSE manager, the
// special-tools registry, and the database client's health check.
type Server struct {
	driver   Driver
	events   EventStreamer
	tools    ToolCatalog
	dbClient *database.Client

	engine *gin.Engine
}

// NewServer builds a Server and registers its routes. allowedCORSOrigin
// may be empty, in which case no CORS header is added (spec.md is silent
// on cross-origin access; the teacher's own /health handler sets none).
func NewServer(driver Driver, streamer EventStreamer, tools ToolCatalog, dbClient *database.Client, allowedCORSOrigin string) *Server {
	s := &Server{driver: driver, events: streamer, tools: tools, dbClient: dbClient}
	s.engine = gin.Default()
	s.setupRoutes(allowedCORSOrigin)
	return s
}

// Engine exposes the underlying gin.Engine, e.g. for httptest.Server in
// tests or http.ListenAndServe in cmd/oktaqueryd.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) setupRoutes(allowedCORSOrigin string) {
	if allowedCORSOrigin != "" {
		s.engine.Use(func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", allowedCORSOrigin)
			c.Next()
		})
	}

	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.POST("/start-process", s.handleStartProcess)
	s.engine.GET("/stream-updates/:process_id", s.handleStreamUpdates)
	s.engine.POST("/cancel/:process_id", s.handleCancel)
	s.engine.GET("/available-tools", s.handleAvailableTools)
}

// startProcessRequest is POST /start-process's body (spec.md §6.1).
type startProcessRequest struct {
	Query        string `json:"query" binding:"required"`
	UserIdentity string `json:"user_identity"`
}

// stepResponse is one PlanStep, in the wire shape spec.md §6.1 names.
type stepResponse struct {
	ID        string `json:"id"`
	ToolName  string `json:"tool_name"`
	Entity    string `json:"entity,omitempty"`
	Operation string `json:"operation,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Critical  bool   `json:"critical"`
	Status    string `json:"status"`
}

type planResponse struct {
	Reasoning  string         `json:"reasoning"`
	Confidence int            `json:"confidence,omitempty"`
	Steps      []stepResponse `json:"steps"`
}

type startProcessResponse struct {
	ProcessID string       `json:"process_id"`
	Plan      planResponse `json:"plan"`
}

// handleStartProcess implements POST /start-process: "Creates a new
// query, runs Router + Planner synchronously, stores the plan, returns
// it" (spec.md §6.1).
func (s *Server) handleStartProcess(c *gin.Context) {
	var req startProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "query is required"})
		return
	}

	plan, err := s.driver.StartProcess(c.Request.Context(), req.Query, req.UserIdentity)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"message": err.Error(), "status": string(models.CodeOf(err))})
		return
	}

	steps := make([]stepResponse, 0, len(plan.Steps))
	for _, st := range plan.Steps {
		steps = append(steps, stepResponse{
			ID:        st.ID,
			ToolName:  st.ToolName,
			Entity:    st.Entity,
			Operation: st.Operation,
			Reason:    st.Reason,
			Critical:  st.Critical,
			Status:    st.Status,
		})
	}

	c.JSON(http.StatusOK, startProcessResponse{
		ProcessID: plan.ProcessID,
		Plan: planResponse{
			Reasoning:  plan.Reasoning,
			Confidence: plan.Confidence,
			Steps:      steps,
		},
	})
}

// handleStreamUpdates implements GET /stream-updates/{process_id}:
// "Starts execution (if not already running)" then streams the five SSE
// event shapes (spec.md §6.1). Reconnecting to a terminal query replays
// its final event — handled entirely inside events.Manager.Stream.
func (s *Server) handleStreamUpdates(c *gin.Context) {
	processID := c.Param("process_id")

	if err := s.driver.Execute(processID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeaderNow()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "streaming unsupported"})
		return
	}

	out := &ginFlusher{w: c.Writer, flusher: flusher}
	if err := s.events.Stream(c.Request.Context(), processID, out); err != nil && !errors.Is(err, context.Canceled) {
		// The client is gone or the stream failed mid-flight; nothing more
		// can be written to this response.
		return
	}
}

// ginFlusher adapts gin.ResponseWriter to events.Flusher.
type ginFlusher struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (g *ginFlusher) Write(p []byte) (int, error) { return g.w.Write(p) }
func (g *ginFlusher) Flush()                       { g.flusher.Flush() }

// handleCancel implements POST /cancel/{process_id}: "Sets the cancel
// flag and best-effort kills running sandboxes" (spec.md §6.1).
func (s *Server) handleCancel(c *gin.Context) {
	processID := c.Param("process_id")
	if ok := s.driver.Cancel(processID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "process is not active", "status": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested", "status": "cancelling"})
}

type toolResponse struct {
	Category   string   `json:"category"`
	Operation  string   `json:"operation"`
	EntityName string   `json:"entity_name"`
	Summary    string   `json:"summary"`
	Parameters []string `json:"parameters,omitempty"`
}

// handleAvailableTools implements GET /available-tools: "the current
// catalog, sorted by category and tool name" (spec.md §6.1).
func (s *Server) handleAvailableTools(c *gin.Context) {
	all := s.tools.AllTools()
	out := make([]toolResponse, 0, len(all))
	for _, d := range all {
		params := make([]string, 0, len(d.Parameters))
		for _, p := range d.Parameters {
			params = append(params, p.Name)
		}
		out = append(out, toolResponse{
			Category:   d.Category,
			Operation:  d.Operation,
			EntityName: d.EntityName,
			Summary:    d.Summary,
			Parameters: params,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tools": out})
}

// handleHealth reports an overall status plus database.Health's
// connectivity and pool stats, following the teacher's cmd/tarsy/main.go
// /health handler built on database.Health(reqCtx, dbClient.DB()).
func (s *Server) handleHealth(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
	})
}

// statusForError maps a pipeline ErrCode to an HTTP status for
// POST /start-process's failure response. Everything else the pipeline
// could produce surfaces as a 500 — spec.md's terminal failure message
// is delivered over SSE, not in this synchronous response body.
func statusForError(err error) int {
	switch models.CodeOf(err) {
	case models.ErrCodeCancelled:
		return http.StatusConflict
	case models.ErrCodeCatalogMiss, models.ErrCodeSchemaViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
