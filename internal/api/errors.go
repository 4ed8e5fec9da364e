package api

import (
	"errors"
	"net/http"

	"ecoquest_miniapp/internal/service"
	"ecoquest_miniapp/pkg/auth"
	"ecoquest_miniapp/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type apiError struct {
	status  int
	code    string
	message string
}

var errorTable = []struct {
	target error
	apiError
}{
	{service.ErrUserNotFound, apiError{http.StatusNotFound, "not_found", "user not found"}},
	{service.ErrNotFound, apiError{http.StatusNotFound, "not_found", "mission not found"}},
	{service.ErrAlreadyClaimed, apiError{http.StatusConflict, "already_claimed", "mission already claimed"}},
	{service.ErrInsufficientLevel, apiError{http.StatusForbidden, "insufficient_level", "level too low for this mission"}},
	{service.ErrMissionIncomplete, apiError{http.StatusConflict, "mission_incomplete", "mission is not completed yet"}},
	{service.ErrValidation, apiError{http.StatusBadRequest, "validation_error", "invalid request"}},
	{service.ErrStoreUnavailable, apiError{http.StatusServiceUnavailable, "store_unavailable", "service temporarily unavailable"}},
}

var errInternal = apiError{http.StatusInternalServerError, "internal_error", "internal server error"}

func classify(err error) apiError {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.apiError
		}
	}
	return errInternal
}

// writeError maps a service error to a stable message and code. The
// underlying error is only logged.
func writeError(c *gin.Context, op string, err error) {
	log := logger.Logger()

	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		log.Error(op+" failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		log.Info(op+" rejected", zap.String("code", e.code), zap.Error(err))
	}

	body := gin.H{"error": e.message, "code": e.code}
	if e.code == "validation_error" {
		// Validation messages are built from caller input only.
		body["error"] = err.Error()
	}
	c.AbortWithStatusJSON(e.status, body)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message, "code": "validation_error"})
}

// principal returns the caller or aborts with 401.
func principal(c *gin.Context) (*auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		logger.Logger().Error("principal not found in context")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
		return nil, false
	}
	return p, true
}
