package models

import "time"

// RaceResult carries the official arrival order and dividends for a race,
// supplied by the results collaborator for RESULT-phase reconciliation.
type RaceResult struct {
	MeetingID   string             `json:"meeting_id" validate:"required"`
	RaceID      string             `json:"race_id" validate:"required"`
	Arrival     []string           `json:"arrival"`
	WinDividend float64            `json:"win_dividend"`
	Dividends   map[string]float64 `json:"dividends"`
	OfficialAt  time.Time          `json:"official_at"`
}

// Winner returns the runner id of the first arrival, or empty when the
// arrival order is missing.
func (r *RaceResult) Winner() string {
	if len(r.Arrival) == 0 {
		return ""
	}
	return r.Arrival[0]
}

// Placed reports whether a runner finished within the place positions
// (top 3, or top 2 for small fields per operator convention).
func (r *RaceResult) Placed(runnerID string, placePositions int) bool {
	if placePositions <= 0 {
		placePositions = 3
	}
	for i, id := range r.Arrival {
		if i >= placePositions {
			return false
		}
		if id == runnerID {
			return true
		}
	}
	return false
}
