package httperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// Respond maps typed domain errors to HTTP statuses. Anything unrecognized
// is logged and reported as a 500 without leaking internals.
func Respond(c *gin.Context, logger *zap.Logger, err error) {
	var verrs *domain.ValidationErrors
	var verr *domain.ValidationError
	var authErr *domain.AuthorizationError
	var stateErr *domain.StateConflictError
	var syncErr *domain.TransientSyncError

	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"violations": verrs.Violations})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"violations": []domain.ValidationError{*verr}})
	case errors.As(err, &authErr):
		c.JSON(http.StatusForbidden, gin.H{"error": authErr.Error(), "capability": authErr.Capability})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
	case errors.As(err, &syncErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": syncErr.Error(), "retryable": true})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrPartialRetirementUnsupported),
		errors.Is(err, domain.ErrIncompleteEvidence),
		errors.Is(err, domain.ErrOutstandingCompliance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnknownAccount),
		errors.Is(err, domain.ErrInvalidCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		logger.Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
