package api

import (
	"context"
	"net/http"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/pkg/auth"

	"github.com/gin-gonic/gin"
)

type MissionServiceI interface {
	ListMissions(ctx context.Context, userID int64, track model.Track, now time.Time) (*model.MissionList, error)
	ListAll(ctx context.Context, userID int64, now time.Time) ([]*model.MissionList, error)
}

type ClaimServiceI interface {
	Claim(ctx context.Context, userID int64, ref model.MissionRef) (*model.ClaimResult, error)
}

type missionRoutes struct {
	ms    MissionServiceI
	cs    ClaimServiceI
	clock period.Clock
}

func NewMissionRoutes(handler *gin.RouterGroup, ms MissionServiceI, cs ClaimServiceI, a *auth.TelegramAuth, clock period.Clock) {
	r := &missionRoutes{ms: ms, cs: cs, clock: clock}
	h := handler.Group("/missions")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.GET("", r.ListMissions)
		h.POST("/:track/:id/claim", r.ClaimMission)
	}
}

type MissionResponse struct {
	ID             string     `json:"id"`
	Track          string     `json:"track"`
	DefinitionID   int64      `json:"definitionId"`
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Difficulty     string     `json:"difficulty"`
	TargetValue    float64    `json:"targetValue"`
	PeriodKey      string     `json:"periodKey,omitempty"`
	Status         string     `json:"status"`
	ClaimedAt      *time.Time `json:"claimedAt,omitempty"`
	XPReward       int        `json:"xpReward"`
	VitalityReward int        `json:"vitalityReward"`
	MinLevel       int        `json:"minLevel"`
	Progress       float64    `json:"progress"`
	Percentage     float64    `json:"percentage"`
	ProgressText   string     `json:"progressText"`
	IsCompleted    bool       `json:"isCompleted"`
	Locked         bool       `json:"locked"`
	Claimable      bool       `json:"claimable"`
}

type MissionListResponse struct {
	Track             string            `json:"track"`
	Missions          []MissionResponse `json:"missions"`
	SecondsUntilReset int64             `json:"secondsUntilReset"`
}

func newMissionListResponse(list *model.MissionList) MissionListResponse {
	out := MissionListResponse{
		Track:             string(list.Track),
		Missions:          make([]MissionResponse, len(list.Missions)),
		SecondsUntilReset: list.SecondsUntilReset,
	}
	for i, v := range list.Missions {
		m := MissionResponse{
			ID:             v.Ref.ID,
			Track:          string(v.Ref.Track),
			PeriodKey:      v.PeriodKey,
			Status:         string(v.Status),
			ClaimedAt:      v.ClaimedAt,
			XPReward:       v.XPReward,
			VitalityReward: v.VitalityReward,
			Progress:       v.Progress,
			Percentage:     v.Percentage,
			ProgressText:   v.ProgressText,
			IsCompleted:    v.IsCompleted,
			Locked:         v.Locked,
			Claimable:      v.Claimable(),
		}
		if d := v.Definition; d != nil {
			m.DefinitionID = d.ID
			m.Type = string(d.Type)
			m.Title = d.Title
			m.Description = d.Description
			m.Difficulty = string(d.Difficulty)
			m.TargetValue = d.TargetValue
			m.MinLevel = d.MinLevel
		}
		out.Missions[i] = m
	}
	return out
}

func (r *missionRoutes) ListMissions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	now := r.clock.Now()

	raw := c.Query("period")
	if raw == "" {
		lists, err := r.ms.ListAll(c.Request.Context(), p.UserID, now)
		if err != nil {
			writeError(c, "list missions", err)
			return
		}
		out := make([]MissionListResponse, len(lists))
		for i, l := range lists {
			out[i] = newMissionListResponse(l)
		}
		c.JSON(http.StatusOK, gin.H{"tracks": out})
		return
	}

	track, ok := model.ParseTrack(raw)
	if !ok {
		badRequest(c, "period must be one of daily, weekly, persistent")
		return
	}

	list, err := r.ms.ListMissions(c.Request.Context(), p.UserID, track, now)
	if err != nil {
		writeError(c, "list missions", err)
		return
	}

	c.JSON(http.StatusOK, newMissionListResponse(list))
}

type ClaimResponse struct {
	Success       bool    `json:"success"`
	XPAdded       int     `json:"xpAdded"`
	VitalityAdded int     `json:"vitalityAdded"`
	NewXP         int64   `json:"newXP"`
	NewLevel      int     `json:"newLevel"`
	LeveledUp     bool    `json:"leveledUp"`
	NewVitality   int64   `json:"newVitality"`
	Percentage    float64 `json:"percentage"`
}

func (r *missionRoutes) ClaimMission(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	track, ok := model.ParseTrack(c.Param("track"))
	if !ok {
		badRequest(c, "unknown mission track")
		return
	}
	id := c.Param("id")
	if id == "" {
		badRequest(c, "mission id is required")
		return
	}

	res, err := r.cs.Claim(c.Request.Context(), p.UserID, model.MissionRef{Track: track, ID: id})
	if err != nil {
		writeError(c, "claim mission", err)
		return
	}

	c.JSON(http.StatusOK, ClaimResponse{
		Success:       true,
		XPAdded:       res.XPAdded,
		VitalityAdded: res.VitalityAdded,
		NewXP:         res.NewXP,
		NewLevel:      res.NewLevel,
		LeveledUp:     res.LeveledUp,
		NewVitality:   res.NewVitality,
		Percentage:    res.Percentage,
	})
}
