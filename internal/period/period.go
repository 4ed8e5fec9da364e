// Package period buckets wall-clock time into the calendar periods used by
// the mission tracks: local days and Monday-based weeks.
package period

import (
	"fmt"
	"time"

	"ecoquest_miniapp/internal/model"
)

// AllTime is the lower bound of the persistent track window.
const AllTime = "0001-01-01"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

type Calendar struct {
	loc *time.Location
}

func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc}
}

// LoadCalendar builds a calendar for an IANA zone name; empty means UTC.
func LoadCalendar(zone string) (*Calendar, error) {
	if zone == "" {
		return NewCalendar(time.UTC), nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, err
	}
	return NewCalendar(loc), nil
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) startOfDay(now time.Time) time.Time {
	local := now.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

func (c *Calendar) Today(now time.Time) string {
	return now.In(c.loc).Format(model.DateLayout)
}

// WeekStart returns the Monday that opens the week containing now.
func (c *Calendar) WeekStart(now time.Time) string {
	return c.weekStart(now).Format(model.DateLayout)
}

func (c *Calendar) weekStart(now time.Time) time.Time {
	day := c.startOfDay(now)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Key returns the period key for a track. The persistent track has none.
func (c *Calendar) Key(track model.Track, now time.Time) string {
	switch track {
	case model.TrackDaily:
		return c.Today(now)
	case model.TrackWeekly:
		return c.WeekStart(now)
	}
	return ""
}

// Days is the length of a track's period in days; zero for the persistent track.
func Days(track model.Track) int {
	switch track {
	case model.TrackDaily:
		return 1
	case model.TrackWeekly:
		return 7
	}
	return 0
}

// Window returns the inclusive [from, to] log-date range for a track.
func (c *Calendar) Window(track model.Track, now time.Time) (string, string) {
	today := c.Today(now)
	switch track {
	case model.TrackDaily:
		return today, today
	case model.TrackWeekly:
		return c.WeekStart(now), today
	}
	return AllTime, today
}

// KeyWindow returns the full [from, to] range of the period identified by key.
// It is used for instances whose period may already have ended.
func KeyWindow(track model.Track, key string) (string, string, error) {
	start, err := time.Parse(model.DateLayout, key)
	if err != nil {
		return "", "", fmt.Errorf("invalid period key %q: %w", key, err)
	}
	days := Days(track)
	if days == 0 {
		return "", "", fmt.Errorf("track %q has no period", track)
	}
	return key, start.AddDate(0, 0, days-1).Format(model.DateLayout), nil
}

// SecondsUntilMidnight counts down to the next local midnight.
func (c *Calendar) SecondsUntilMidnight(now time.Time) int64 {
	next := c.startOfDay(now).AddDate(0, 0, 1)
	return secondsUntil(now, next)
}

func (c *Calendar) SecondsUntilReset(track model.Track, now time.Time) int64 {
	switch track {
	case model.TrackDaily:
		return c.SecondsUntilMidnight(now)
	case model.TrackWeekly:
		return secondsUntil(now, c.weekStart(now).AddDate(0, 0, 7))
	}
	return 0
}

func secondsUntil(now, next time.Time) int64 {
	d := next.Sub(now)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}
