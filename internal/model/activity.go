package model

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar-date format used for log dates and period keys.
const DateLayout = "2006-01-02"

type ActivityLog struct {
	ID             uuid.UUID
	UserID         int64
	ActivityID     int64
	InputValue     float64
	CarbonSaved    float64
	CarbonProduced float64
	LogDate        string
	CreatedAt      time.Time
}

type ActivityTotals struct {
	InputValue     float64
	CarbonSaved    float64
	CarbonProduced float64
	Count          int64
}

type DayTotal struct {
	Date        string
	CarbonSaved float64
}

// LogAggregate is the per-request summary of a user's log window.
type LogAggregate struct {
	From       string
	To         string
	ByActivity map[int64]ActivityTotals
	Days       []DayTotal
}

func NewLogAggregate(from, to string) *LogAggregate {
	return &LogAggregate{
		From:       from,
		To:         to,
		ByActivity: make(map[int64]ActivityTotals),
	}
}

func (a *LogAggregate) TotalSaved() float64 {
	var total float64
	for _, t := range a.ByActivity {
		total += t.CarbonSaved
	}
	return total
}

func (a *LogAggregate) TotalProduced() float64 {
	var total float64
	for _, t := range a.ByActivity {
		total += t.CarbonProduced
	}
	return total
}
