package models

import "time"

// PlannedRace is one entry of the day's racecard: where the race runs and
// when it is off, which anchors the pre-race decision windows.
type PlannedRace struct {
	MeetingID string    `json:"meeting_id"`
	RaceID    string    `json:"race_id"`
	StartAt   time.Time `json:"start_at"`
}
