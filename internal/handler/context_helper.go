package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/slotbook-api/internal/middleware"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

// hostIDFromContext returns the authenticated host, or an UNAUTHORIZED error.
func hostIDFromContext(c *gin.Context) (string, error) {
	claims := middleware.HostFromContext(c)
	if claims == nil || claims.HostID == "" {
		return "", appErrors.ErrUnauthorized
	}
	return claims.HostID, nil
}

func validationError(err error, message string) error {
	e := appErrors.Clone(appErrors.ErrValidation, message)
	e.Err = err
	return e
}
