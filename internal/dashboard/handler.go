package dashboard

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/verification"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/httperr"
)

// Handler handles HTTP requests for dashboard queries
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new dashboard handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers dashboard routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	dashboard := router.Group("/dashboard")
	{
		dashboard.GET("/overview", h.overview)
		dashboard.GET("/projects/:id", h.projectSummary)
		dashboard.GET("/projects/:id/ledger.xlsx", h.exportLedger)
		dashboard.GET("/verification-queue", h.verificationQueue)
		dashboard.GET("/balance", h.balance)
	}
}

func (h *Handler) overview(c *gin.Context) {
	user, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	overview, err := h.service.Overview(c.Request.Context(), user)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

func (h *Handler) projectSummary(c *gin.Context) {
	user, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	summary, err := h.service.ProjectSummary(c.Request.Context(), user, id)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) exportLedger(c *gin.Context) {
	user, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	workbook, err := h.service.ExportLedger(c.Request.Context(), user, id)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=ledger-%s.xlsx", id))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", workbook)
}

func (h *Handler) verificationQueue(c *gin.Context) {
	if _, ok := identity.CurrentUser(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	filter := verification.QueueFilter{Status: verification.Status(c.Query("status"))}
	if raw := c.Query("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
			return
		}
		filter.ProjectID = id
	}

	records, err := h.service.VerificationQueue(c.Request.Context(), filter)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

func (h *Handler) balance(c *gin.Context) {
	user, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	balance, err := h.service.CreditBalance(c.Request.Context(), user)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}
