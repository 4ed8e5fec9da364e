package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/service"
	"ecoquest_miniapp/pkg/auth"

	"github.com/gin-gonic/gin"
)

type UserServiceI interface {
	RegisterUser(ctx context.Context, user *model.User) (*model.User, error)
	GetSummary(ctx context.Context, userID int64) (*service.UserSummary, error)
	GetLeaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error)
}

type userRoutes struct {
	us UserServiceI
	a  *auth.TelegramAuth
}

func NewUserRoutes(handler *gin.RouterGroup, us UserServiceI, a *auth.TelegramAuth) {
	r := &userRoutes{us: us, a: a}
	h := handler.Group("/users")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.POST("", r.RegisterUser)
		h.GET("/me/stats", r.GetStats)
		h.GET("/leaderboard", r.GetLeaderboard)
	}
}

type UserResponse struct {
	UserID           int64     `json:"userId"`
	Username         string    `json:"username"`
	RegistrationDate time.Time `json:"registrationDate"`
	AuthDate         time.Time `json:"authDate"`
}

func (r *userRoutes) RegisterUser(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	now := time.Now().UTC()
	authDate := p.AuthDate
	if authDate.IsZero() {
		authDate = now
	}

	user, err := r.us.RegisterUser(c.Request.Context(), &model.User{
		UserID:           p.UserID,
		Username:         p.Username,
		RegistrationDate: now,
		AuthDate:         authDate,
	})
	if err != nil {
		writeError(c, "register user", err)
		return
	}

	c.JSON(http.StatusCreated, UserResponse{
		UserID:           user.UserID,
		Username:         user.Username,
		RegistrationDate: user.RegistrationDate,
		AuthDate:         user.AuthDate,
	})
}

type StatsResponse struct {
	UserID      int64   `json:"userId"`
	TotalXP     int64   `json:"totalXp"`
	Level       int     `json:"level"`
	Vitality    int     `json:"vitality"`
	Streak      int     `json:"streak"`
	LastLogDate *string `json:"lastLogDate,omitempty"`
	CO2Saved    float64 `json:"co2Saved"`
}

func (r *userRoutes) GetStats(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	summary, err := r.us.GetSummary(c.Request.Context(), p.UserID)
	if err != nil {
		writeError(c, "get stats", err)
		return
	}

	s := summary.Stats
	c.JSON(http.StatusOK, StatsResponse{
		UserID:      s.UserID,
		TotalXP:     s.TotalXP,
		Level:       s.CurrentLevel,
		Vitality:    s.Vitality,
		Streak:      s.Streak,
		LastLogDate: s.LastLogDate,
		CO2Saved:    summary.CO2Saved,
	})
}

type LeaderboardEntryResponse struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	TotalXP  int64  `json:"totalXp"`
	Level    int    `json:"level"`
	Streak   int    `json:"streak"`
}

func (r *userRoutes) GetLeaderboard(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := r.us.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		writeError(c, "get leaderboard", err)
		return
	}

	out := make([]LeaderboardEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = LeaderboardEntryResponse{
			Rank:     i + 1,
			Username: e.Username,
			TotalXP:  e.TotalXP,
			Level:    e.CurrentLevel,
			Streak:   e.Streak,
		}
	}

	c.JSON(http.StatusOK, out)
}
