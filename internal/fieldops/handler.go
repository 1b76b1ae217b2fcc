package fieldops

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/httperr"
)

// Handler handles HTTP requests for field measurements
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new fieldops handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers measurement routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	measurements := router.Group("/measurements")
	{
		measurements.POST("", h.saveOffline)
		measurements.POST("/sync", h.syncPending)
		measurements.GET("/:id", h.getMeasurement)
	}
	router.GET("/projects/:id/measurements", h.listByProject)
}

func (h *Handler) saveOffline(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	var req SaveMeasurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.service.SaveOffline(c.Request.Context(), actor, req)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"measurement_id": id})
}

type syncRequest struct {
	DeviceID string `json:"device_id"`
}

func (h *Handler) syncPending(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.service.SyncPending(c.Request.Context(), actor, req.DeviceID)
	if err != nil {
		// a partial report is still worth returning alongside the error
		if report != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"report": report, "error": err.Error()})
			return
		}
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) getMeasurement(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid measurement id"})
		return
	}

	m, err := h.service.GetMeasurement(c.Request.Context(), actor, id)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, m)
}

func (h *Handler) listByProject(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	measurements, err := h.service.ListByProject(c.Request.Context(), actor, projectID)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, measurements)
}
