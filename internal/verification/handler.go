package verification

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/httperr"
)

// Handler handles HTTP requests for the verification workflow
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new verification handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers verification routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	verifications := router.Group("/verifications")
	{
		verifications.POST("", h.openReview)
		verifications.GET("/queue", h.getQueue)
		verifications.GET("/:id", h.getRecord)
		verifications.PUT("/:id/findings", h.recordFindings)
		verifications.POST("/:id/evidence", h.addEvidence)
		verifications.POST("/:id/evidence/:evidenceId/verify", h.verifyEvidence)
		verifications.POST("/:id/approve", h.approve)
		verifications.POST("/:id/reject", h.reject)
		verifications.POST("/:id/request-data", h.requestData)
		verifications.POST("/:id/resubmit", h.resubmit)
	}
}

func (h *Handler) openReview(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	var req OpenReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.OpenReview(c.Request.Context(), actor, req)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (h *Handler) getQueue(c *gin.Context) {
	filter := QueueFilter{Status: Status(c.Query("status"))}
	if pid := c.Query("project_id"); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
			return
		}
		filter.ProjectID = id
	}

	records, err := h.service.Queue(c.Request.Context(), filter)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

func (h *Handler) getRecord(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verification id"})
		return
	}

	record, err := h.service.GetRecord(c.Request.Context(), id)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) recordFindings(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}

	var findings Findings
	if err := c.ShouldBindJSON(&findings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.RecordFindings(c.Request.Context(), actor, id, findings)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) addEvidence(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}

	var items []EvidenceItem
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.AddEvidence(c.Request.Context(), actor, id, items)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) verifyEvidence(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}

	evidenceID, err := uuid.Parse(c.Param("evidenceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid evidence id"})
		return
	}

	record, err := h.service.VerifyEvidence(c.Request.Context(), actor, id, evidenceID)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) approve(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}

	record, err := h.service.Approve(c.Request.Context(), actor, id)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) reject(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}

	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.Reject(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) requestData(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}

	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.RequestAdditionalData(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) resubmit(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}

	record, err := h.service.Resubmit(c.Request.Context(), actor, id)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) actorAndID(c *gin.Context) (*identity.User, uuid.UUID, bool) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verification id"})
		return nil, uuid.Nil, false
	}
	return actor, id, true
}
