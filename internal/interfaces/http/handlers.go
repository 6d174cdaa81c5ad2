package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/application/service"
	"github.com/garyjia/demande-workflow/internal/application/workflow"
	domainwf "github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine         workflow.Engine
	demandeService service.DemandeService
	health         HealthChecker
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine workflow.Engine,
	demandeService service.DemandeService,
	health HealthChecker,
	logger Logger,
) *Handlers {
	return &Handlers{
		engine:         engine,
		demandeService: demandeService,
		health:         health,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ListDemandesRequest represents query parameters for listing demandes
type ListDemandesRequest struct {
	Status    string `form:"status"`
	Type      string `form:"type"`
	ProjectID string `form:"project_id"`
	CreatorID string `form:"creator_id"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// SetPricesRequest is the body of PUT /demandes/:id/prices
type SetPricesRequest struct {
	Prices []workflow.PriceInput `json:"prices"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Database:  "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	if h.health == nil {
		response.Database = "memory"
	} else if err := h.health.PingContext(c.Request.Context()); err != nil {
		h.logger.Error("Health check failed", "error", err)
		response.Status = "unhealthy"
		response.Database = "unreachable"
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: response})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// CreateDemande handles POST /api/v1/demandes
func (h *Handlers) CreateDemande(c *gin.Context) {
	var req service.CreateDraftInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	req.CreatorID = actorID(c)

	d, err := h.demandeService.CreateDraft(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "create demande", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: d})
}

// ListDemandes handles GET /api/v1/demandes
func (h *Handlers) ListDemandes(c *gin.Context) {
	var req ListDemandesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	filter := port.DemandeFilter{
		Type:      domainwf.RequestType(req.Type),
		ProjectID: req.ProjectID,
		CreatorID: req.CreatorID,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	if req.Status != "" {
		status, err := domainwf.ParseState(req.Status)
		if err != nil {
			h.writeError(c, "list demandes", err)
			return
		}
		filter.Status = status
	}
	if req.Type != "" && !filter.Type.IsValid() {
		badRequest(c, "unknown request type "+req.Type)
		return
	}

	demandes, err := h.demandeService.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, "list demandes", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: demandes})
}

// GetDemande handles GET /api/v1/demandes/:id
func (h *Handlers) GetDemande(c *gin.Context) {
	d, err := h.demandeService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get demande", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: d})
}

// DeleteDemande handles DELETE /api/v1/demandes/:id
func (h *Handlers) DeleteDemande(c *gin.Context) {
	if err := h.demandeService.DeleteDraft(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		h.writeError(c, "delete demande", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ModifyDemande handles PATCH /api/v1/demandes/:id
func (h *Handlers) ModifyDemande(c *gin.Context) {
	var mod workflow.Modification
	if err := c.ShouldBindJSON(&mod); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	d, err := h.engine.Modify(c.Request.Context(), c.Param("id"), actorID(c), mod)
	if err != nil {
		h.writeError(c, "modify demande", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: d})
}

// SubmitDemande handles POST /api/v1/demandes/:id/submit
func (h *Handlers) SubmitDemande(c *gin.Context) {
	d, err := h.engine.Submit(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		h.writeError(c, "submit demande", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: d})
}

// Act handles POST /api/v1/demandes/:id/actions/:action. The body is optional.
func (h *Handlers) Act(c *gin.Context) {
	action, err := workflow.ParseAction(c.Param("action"))
	if err != nil {
		h.writeError(c, "act", err)
		return
	}

	var in workflow.ActionInput
	if !bindOptionalJSON(c, &in) {
		return
	}

	result, err := h.engine.Act(c.Request.Context(), c.Param("id"), actorID(c), action, in)
	if err != nil {
		h.writeError(c, "act "+string(action), err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// RecordDelivery handles POST /api/v1/demandes/:id/deliveries
func (h *Handlers) RecordDelivery(c *gin.Context) {
	var in workflow.DeliveryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.engine.RecordDelivery(c.Request.Context(), c.Param("id"), actorID(c), in)
	if err != nil {
		h.writeError(c, "record delivery", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: result})
}

// ListDeliveries handles GET /api/v1/demandes/:id/deliveries
func (h *Handlers) ListDeliveries(c *gin.Context) {
	deliveries, err := h.demandeService.Deliveries(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "list deliveries", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: deliveries})
}

// SetPrices handles PUT /api/v1/demandes/:id/prices
func (h *Handlers) SetPrices(c *gin.Context) {
	var req SetPricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.engine.SetPrices(c.Request.Context(), c.Param("id"), actorID(c), req.Prices)
	if err != nil {
		h.writeError(c, "set prices", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetHistory handles GET /api/v1/demandes/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	history, err := h.demandeService.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get history", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// GetSignatures handles GET /api/v1/demandes/:id/signatures
func (h *Handlers) GetSignatures(c *gin.Context) {
	signatures, err := h.demandeService.Signatures(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get signatures", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: signatures})
}

// bindOptionalJSON decodes the body when there is one. It writes the 400 itself and reports false on failure.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}
