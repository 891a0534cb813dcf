package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/keeper/core"
)

// statusOf maps an error of the core to an HTTP status and a client message
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, core.ErrTokenInvalid):
		return http.StatusUnauthorized, "token invalid"
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized, core.ErrUnauthenticated.Error()
	case errors.Is(err, core.ErrBondInvalidRoles),
		errors.Is(err, core.ErrBondLimitReached),
		errors.Is(err, core.ErrBondAlreadyAssigned),
		errors.Is(err, core.ErrInvalidRole):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrUnauthorizedOperation):
		return http.StatusForbidden, core.ErrUnauthorizedOperation.Error()
	case errors.Is(err, core.ErrUserNotFound):
		return http.StatusNotFound, core.ErrUserNotFound.Error()
	default:
		return http.StatusInternalServerError, "An unexpected error has occurred"
	}
}

func abortWithError(c *gin.Context, err error) {
	status, msg := statusOf(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
