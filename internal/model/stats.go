package model

import (
	"time"
)

const (
	DefaultXPPerLevel  = 100
	DefaultVitalityMax = 100
)

type UserStats struct {
	UserID       int64   `json:"user_id"`
	TotalXP      int64   `json:"total_xp"`
	CurrentLevel int     `json:"current_level"`
	Vitality     int     `json:"vitality"`
	Streak       int     `json:"streak"`
	LastLogDate  *string `json:"last_log_date,omitempty"`
}

// LevelForXP derives the level from total XP: floor(xp / xpPerLevel) + 1.
func LevelForXP(totalXP int64, xpPerLevel int) int {
	if xpPerLevel <= 0 {
		xpPerLevel = DefaultXPPerLevel
	}
	if totalXP < 0 {
		totalXP = 0
	}
	return int(totalXP/int64(xpPerLevel)) + 1
}

// Clamp bounds v to [0, max]. A non-positive max means no ceiling.
func Clamp(v, max int64) int64 {
	if v < 0 {
		return 0
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// NextStreak returns the streak after a log on today, given the previous
// last-log date.
func NextStreak(current int, lastLogDate *string, today string) int {
	if lastLogDate == nil || *lastLogDate == "" {
		return 1
	}
	if *lastLogDate == today {
		if current < 1 {
			return 1
		}
		return current
	}
	last, err := time.Parse(DateLayout, *lastLogDate)
	if err != nil {
		return 1
	}
	if last.AddDate(0, 0, 1).Format(DateLayout) == today {
		return current + 1
	}
	return 1
}

// ClaimCommit carries everything the durable store needs to commit a claim
// in one transaction.
type ClaimCommit struct {
	UserID         int64
	Ref            MissionRef
	XPReward       int
	VitalityReward int
	MinLevel       int
	ClaimedAt      time.Time
}

type ClaimResult struct {
	XPAdded       int
	VitalityAdded int
	OldXP         int64
	OldLevel      int
	NewXP         int64
	NewLevel      int
	LeveledUp     bool
	NewVitality   int64
	Percentage    float64
	Stats         *UserStats
}

type Vitality struct {
	UserID        int64
	Value         int64
	LifetimeTotal int64
	LastDecayDate *string
	LastDecayAt   *time.Time
}

type VitalityStatus struct {
	Value             int64
	LifetimeTotal     int64
	SecondsUntilDecay int64
}
