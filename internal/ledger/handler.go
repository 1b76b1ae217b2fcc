package ledger

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/httperr"
)

// Handler handles HTTP requests for the credit ledger. Minting has no
// route: tokens are created only through the verification workflow.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers ledger routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	credits := router.Group("/credits")
	{
		credits.GET("/:id", h.getToken)
		credits.GET("/:id/history", h.getHistory)
		credits.POST("/:id/transfer", h.transfer)
		credits.POST("/:id/retire", h.retire)
		credits.GET("/balance", h.balance)
	}

	certificates := router.Group("/certificates")
	{
		certificates.GET("", h.listCertificates)
		certificates.GET("/:id", h.getCertificate)
		certificates.GET("/:id/pdf", h.certificatePDF)
	}

	router.GET("/projects/:id/credits", h.projectTokens)
}

func (h *Handler) getToken(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	id, ok := parseID(c, c.Param("id"), "token")
	if !ok {
		return
	}

	token, err := h.service.GetToken(c.Request.Context(), actor, id)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

func (h *Handler) getHistory(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	id, ok := parseID(c, c.Param("id"), "token")
	if !ok {
		return
	}

	history, err := h.service.History(c.Request.Context(), actor, id)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

func (h *Handler) transfer(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	id, ok := parseID(c, c.Param("id"), "token")
	if !ok {
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.service.Transfer(c.Request.Context(), actor, id, req)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

func (h *Handler) retire(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	id, ok := parseID(c, c.Param("id"), "token")
	if !ok {
		return
	}

	var req RetireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cert, err := h.service.Retire(c.Request.Context(), actor, id, req)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, cert)
}

func (h *Handler) balance(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	ownerID := actor.OrganizationID
	if raw := c.Query("owner_id"); raw != "" && actor.Role.SeesAllProjects() {
		id, ok := parseID(c, raw, "owner")
		if !ok {
			return
		}
		ownerID = id
	}

	balance, err := h.service.OwnerBalance(c.Request.Context(), ownerID)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

func (h *Handler) projectTokens(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	id, ok := parseID(c, c.Param("id"), "project")
	if !ok {
		return
	}

	tokens, err := h.service.TokensForProject(c.Request.Context(), actor, id)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

func (h *Handler) listCertificates(c *gin.Context) {
	actor, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	certs, err := h.service.CertificatesForOwner(c.Request.Context(), actor.OrganizationID)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, certs)
}

func (h *Handler) getCertificate(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"), "certificate")
	if !ok {
		return
	}

	cert, err := h.service.GetCertificate(c.Request.Context(), id)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, cert)
}

func (h *Handler) certificatePDF(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"), "certificate")
	if !ok {
		return
	}

	pdf, err := h.service.CertificatePDF(c.Request.Context(), id)
	if err != nil {
		httperr.Respond(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=certificate-%s.pdf", id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func parseID(c *gin.Context, raw, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label + " id"})
		return uuid.Nil, false
	}
	return id, true
}
