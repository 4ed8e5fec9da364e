package model

import (
	"time"

	"github.com/google/uuid"
)

type MissionType string

const (
	MissionCO2Saved         MissionType = "co2_saved"
	MissionCO2Produced      MissionType = "co2_produced"
	MissionSpecificActivity MissionType = "specific_activity"
	MissionActivityCount    MissionType = "activity_count"
	MissionConsecutiveDays  MissionType = "consecutive_days"
	MissionTotalDistance    MissionType = "total_distance"
)

// MissionTypes lists every mission type the engine understands.
func MissionTypes() []MissionType {
	return []MissionType{
		MissionCO2Saved,
		MissionCO2Produced,
		MissionSpecificActivity,
		MissionActivityCount,
		MissionConsecutiveDays,
		MissionTotalDistance,
	}
}

func (t MissionType) Valid() bool {
	for _, known := range MissionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

func Difficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert}
}

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

// CatalogTrack tells which pool a definition belongs to. Periodic definitions
// feed both the daily and the weekly tracks.
type CatalogTrack string

const (
	CatalogPersistent CatalogTrack = "persistent"
	CatalogPeriodic   CatalogTrack = "periodic"
)

type Track string

const (
	TrackPersistent Track = "persistent"
	TrackDaily      Track = "daily"
	TrackWeekly     Track = "weekly"
)

func Tracks() []Track {
	return []Track{TrackDaily, TrackWeekly, TrackPersistent}
}

func ParseTrack(s string) (Track, bool) {
	switch Track(s) {
	case TrackPersistent, TrackDaily, TrackWeekly:
		return Track(s), true
	}
	return "", false
}

// Periodic reports whether the track is bucketed by a period key.
func (t Track) Periodic() bool {
	return t == TrackDaily || t == TrackWeekly
}

type MissionStatus string

const (
	StatusPending MissionStatus = "pending"
	StatusClaimed MissionStatus = "claimed"
)

type MissionDefinition struct {
	ID                  int64
	Track               CatalogTrack
	Type                MissionType
	Title               string
	Description         string
	TargetValue         float64
	DurationDays        int
	RequiredActivityIDs []int64
	XPReward            int
	VitalityReward      int
	MinLevel            int
	Difficulty          Difficulty
}

type MissionInstance struct {
	ID             uuid.UUID
	UserID         int64
	DefinitionID   int64
	Track          Track
	PeriodKey      string
	Status         MissionStatus
	ClaimedAt      *time.Time
	XPReward       int
	VitalityReward int
	CreatedAt      time.Time
}

type PersistentProgress struct {
	UserID       int64
	DefinitionID int64
	Status       MissionStatus
	ClaimedAt    *time.Time
}

// MissionRef addresses a claimable mission: an instance id for the daily and
// weekly tracks, a definition id for the persistent track.
type MissionRef struct {
	Track Track
	ID    string
}

// ClaimTarget is a mission resolved for a claim attempt.
type ClaimTarget struct {
	Ref            MissionRef
	UserID         int64
	Definition     *MissionDefinition
	PeriodKey      string
	Status         MissionStatus
	XPReward       int
	VitalityReward int
}

// MissionView is a mission augmented with its current progress.
type MissionView struct {
	Ref            MissionRef
	Definition     *MissionDefinition
	PeriodKey      string
	Status         MissionStatus
	ClaimedAt      *time.Time
	XPReward       int
	VitalityReward int
	Progress       float64
	IsCompleted    bool
	Percentage     float64
	ProgressText   string
	Locked         bool
}

func (v MissionView) Claimable() bool {
	return v.Status == StatusPending && v.IsCompleted && !v.Locked
}

type MissionList struct {
	Track             Track
	PeriodKey         string
	Missions          []MissionView
	SecondsUntilReset int64
}
