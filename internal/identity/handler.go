package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// Handler handles HTTP requests for authentication and the org directory
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new identity handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type loginRequest struct {
	Email      string `json:"email"`
	Credential string `json:"credential"`
}

// Login handles POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.service.Login(c.Request.Context(), req.Email, req.Credential)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownAccount):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown account"})
		case errors.Is(err, domain.ErrInvalidCredential):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
		default:
			h.logger.Error("Login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	c.JSON(http.StatusOK, session)
}

// Logout handles POST /auth/logout
func (h *Handler) Logout(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if err := h.service.Logout(c.Request.Context(), token); err != nil {
		h.logger.Error("Logout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me handles GET /auth/me
func (h *Handler) Me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListOrganizations handles GET /api/v1/organizations
func (h *Handler) ListOrganizations(c *gin.Context) {
	orgs, err := h.service.ListOrganizations(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list organizations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list organizations"})
		return
	}
	c.JSON(http.StatusOK, orgs)
}

// RegisterRoutes registers auth routes on the engine and directory routes on
// the authenticated API group.
func (h *Handler) RegisterRoutes(r *gin.Engine, api *gin.RouterGroup) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/logout", h.Logout)
	}
	api.GET("/me", h.Me)
	api.GET("/organizations", h.ListOrganizations)
}
