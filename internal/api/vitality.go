package api

import (
	"context"
	"net/http"
	"time"

	"ecoquest_miniapp/internal/middleware"
	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/pkg/auth"

	"github.com/gin-gonic/gin"
)

type VitalityServiceI interface {
	Get(ctx context.Context, userID int64, now time.Time) (*model.VitalityStatus, error)
	Decay(ctx context.Context, now time.Time) (int64, error)
}

type vitalityRoutes struct {
	vs    VitalityServiceI
	clock period.Clock
}

func NewVitalityRoutes(handler *gin.RouterGroup, vs VitalityServiceI, a *auth.TelegramAuth, clock period.Clock) {
	r := &vitalityRoutes{vs: vs, clock: clock}
	h := handler.Group("/vitality")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.GET("", r.GetVitality)
	}
}

// NewInternalRoutes mounts the scheduler-only endpoints. They belong on the
// internal listener, never on the public router.
func NewInternalRoutes(handler gin.IRouter, vs VitalityServiceI, authz *middleware.Authorization, clock period.Clock) {
	r := &vitalityRoutes{vs: vs, clock: clock}
	h := handler.Group("/internal")
	h.Use(authz.InternalOnly())
	{
		h.POST("/vitality/reset", r.ResetVitality)
	}
}

type VitalityResponse struct {
	Vitality          int64 `json:"vitality"`
	LifetimeTotal     int64 `json:"lifetimeTotal"`
	SecondsUntilDecay int64 `json:"secondsUntilDecay"`
}

func (r *vitalityRoutes) GetVitality(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	status, err := r.vs.Get(c.Request.Context(), p.UserID, r.clock.Now())
	if err != nil {
		writeError(c, "get vitality", err)
		return
	}

	c.JSON(http.StatusOK, VitalityResponse{
		Vitality:          status.Value,
		LifetimeTotal:     status.LifetimeTotal,
		SecondsUntilDecay: status.SecondsUntilDecay,
	})
}

func (r *vitalityRoutes) ResetVitality(c *gin.Context) {
	affected, err := r.vs.Decay(c.Request.Context(), r.clock.Now())
	if err != nil {
		writeError(c, "reset vitality", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "decayed": affected})
}
