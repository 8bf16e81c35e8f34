package models

import (
	"fmt"
	"time"
)

// Runner represents a single runner within a race snapshot
type Runner struct {
	ID        string   `json:"id" validate:"required"`
	Number    int      `json:"number" validate:"required,gt=0"`
	Name      string   `json:"name"`
	WinOdds   float64  `json:"win_odds"`
	PlaceOdds *float64 `json:"place_odds"`
	Scratched bool     `json:"scratched"`
}

// GetPlaceOdds returns the place odds or 0 if not quoted
func (r *Runner) GetPlaceOdds() float64 {
	if r.PlaceOdds == nil {
		return 0
	}
	return *r.PlaceOdds
}

// ImpliedProbability returns the win probability implied by market odds.
// Biased by the overround; use calibrated probabilities for EV work.
func (r *Runner) ImpliedProbability() float64 {
	if r.WinOdds <= 0 {
		return 0
	}
	return 1.0 / r.WinOdds
}

// Enrichment holds the H-5 supplementary data required before any EV
// computation is attempted
type Enrichment struct {
	JockeyStats  bool      `json:"jockey_stats"`
	TrainerStats bool      `json:"trainer_stats"`
	Chrono       bool      `json:"chrono"`
	CollectedAt  time.Time `json:"collected_at"`
}

// Complete reports whether every enrichment input is present
func (e *Enrichment) Complete() bool {
	return e != nil && e.JockeyStats && e.TrainerStats && e.Chrono
}

// RaceSnapshot is a normalized point-in-time view of a race market,
// supplied by the acquisition collaborator and treated as read-only
type RaceSnapshot struct {
	MeetingID  string      `json:"meeting_id" validate:"required"`
	RaceID     string      `json:"race_id" validate:"required"`
	Phase      Phase       `json:"phase" validate:"required"`
	CapturedAt time.Time   `json:"captured_at" validate:"required"`
	RaceType   string      `json:"race_type"`
	Runners    []Runner    `json:"runners" validate:"required,min=2"`
	Enrichment *Enrichment `json:"enrichment,omitempty"`
}

// Validate checks structural invariants: known phase, no duplicate runner
// IDs, at least two runners still engaged.
func (s *RaceSnapshot) Validate() error {
	if !s.Phase.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, s.Phase)
	}
	if s.RaceID == "" || s.MeetingID == "" {
		return fmt.Errorf("%w: snapshot missing race identifiers", ErrDataUnavailable)
	}
	if s.CapturedAt.IsZero() {
		return fmt.Errorf("%w: snapshot missing capture time", ErrDataUnavailable)
	}
	seen := make(map[string]struct{}, len(s.Runners))
	for _, r := range s.Runners {
		if r.ID == "" {
			return fmt.Errorf("%w: runner without id in race %s", ErrDataUnavailable, s.RaceID)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate runner id %s in race %s", ErrDuplicateKey, r.ID, s.RaceID)
		}
		seen[r.ID] = struct{}{}
	}
	if len(s.ActiveRunners()) < 2 {
		return fmt.Errorf("%w: fewer than two active runners in race %s", ErrDataUnavailable, s.RaceID)
	}
	return nil
}

// ActiveRunners returns the runners still engaged. Scratched runners are
// retained in the snapshot for audit but excluded here.
func (s *RaceSnapshot) ActiveRunners() []Runner {
	active := make([]Runner, 0, len(s.Runners))
	for _, r := range s.Runners {
		if !r.Scratched {
			active = append(active, r)
		}
	}
	return active
}

// Starters returns the number of non-scratched runners
func (s *RaceSnapshot) Starters() int {
	return len(s.ActiveRunners())
}

// Overround recomputes the market margin as the sum of implied win
// probabilities over active runners. Never trusted from upstream.
func (s *RaceSnapshot) Overround() float64 {
	sum := 0.0
	for _, r := range s.ActiveRunners() {
		sum += r.ImpliedProbability()
	}
	return sum
}

// RunnerByID finds an active runner by id
func (s *RaceSnapshot) RunnerByID(id string) (*Runner, bool) {
	for i := range s.Runners {
		if s.Runners[i].ID == id && !s.Runners[i].Scratched {
			return &s.Runners[i], true
		}
	}
	return nil, false
}

// IsHandicap reports whether the race type is a handicap
func (s *RaceSnapshot) IsHandicap() bool {
	return s.RaceType == "HANDICAP"
}
