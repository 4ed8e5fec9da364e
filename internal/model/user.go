package model

import "time"

type User struct {
	UserID           int64
	Username         string
	RegistrationDate time.Time
	AuthDate         time.Time
}

type LeaderboardEntry struct {
	UserID       int64
	Username     string
	TotalXP      int64
	CurrentLevel int
	Streak       int
}
