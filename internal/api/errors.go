package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/source-registry/internal/config"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/registry"
	"github.com/jonesrussell/north-cloud/source-registry/internal/storage"
)

// errValidation marks request errors answered with 400.
var errValidation = errors.New("invalid request")

// statusFor maps service errors to HTTP status codes and error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errValidation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, config.ErrSeedNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, registry.ErrActivationBlocked):
		return http.StatusConflict, "activation_blocked"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondError writes {"error", "message"} for err. Server errors are
// attached to the context so the request log records them.
func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	} else {
		logger.FromContext(c.Request.Context(), nil).Debug("Request rejected",
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
