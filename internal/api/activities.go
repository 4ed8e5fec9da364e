package api

import (
	"context"
	"net/http"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/internal/service"
	"ecoquest_miniapp/pkg/auth"
	"ecoquest_miniapp/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ActivityServiceI interface {
	Log(ctx context.Context, userID int64, in service.ActivityInput, now time.Time) (*model.UserStats, error)
}

type activityRoutes struct {
	as    ActivityServiceI
	clock period.Clock
}

func NewActivityRoutes(handler *gin.RouterGroup, as ActivityServiceI, a *auth.TelegramAuth, clock period.Clock) {
	r := &activityRoutes{as: as, clock: clock}
	h := handler.Group("/activities")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.POST("", r.LogActivity)
	}
}

type LogActivityRequest struct {
	ActivityID     int64   `json:"activityId" binding:"required"`
	InputValue     float64 `json:"inputValue"`
	CarbonSaved    float64 `json:"carbonSaved"`
	CarbonProduced float64 `json:"carbonProduced"`
	LogDate        string  `json:"logDate"`
}

func (r *activityRoutes) LogActivity(c *gin.Context) {
	log := logger.Logger()

	p, ok := principal(c)
	if !ok {
		return
	}

	var req LogActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Info("failed to bind request", zap.Error(err))
		badRequest(c, "invalid request body")
		return
	}

	stats, err := r.as.Log(c.Request.Context(), p.UserID, service.ActivityInput{
		ActivityID:     req.ActivityID,
		InputValue:     req.InputValue,
		CarbonSaved:    req.CarbonSaved,
		CarbonProduced: req.CarbonProduced,
		LogDate:        req.LogDate,
	}, r.clock.Now())
	if err != nil {
		writeError(c, "log activity", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"streak":      stats.Streak,
		"lastLogDate": stats.LastLogDate,
	})
}
