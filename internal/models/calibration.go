package models

import (
	"fmt"
	"time"
)

// Calibration holds model-calibrated probabilities for a race, produced by
// the external estimator collaborator. CalibratedAt feeds the freshness
// guardrail.
type Calibration struct {
	RaceID             string             `json:"race_id" validate:"required"`
	CalibratedAt       time.Time          `json:"calibrated_at" validate:"required"`
	WinProbabilities   map[string]float64 `json:"win_probabilities"`
	PlaceProbabilities map[string]float64 `json:"place_probabilities"`
}

// WinProbability returns the calibrated win probability for a runner.
// A missing or non-positive value fails closed with ErrEstimation: the
// estimator must never substitute a default.
func (c *Calibration) WinProbability(runnerID string) (float64, error) {
	p, ok := c.WinProbabilities[runnerID]
	if !ok {
		return 0, fmt.Errorf("%w: no calibrated win probability for runner %s", ErrEstimation, runnerID)
	}
	if p <= 0 || p > 1 {
		return 0, fmt.Errorf("%w: calibrated win probability %.4f out of range for runner %s", ErrEstimation, p, runnerID)
	}
	return p, nil
}

// PlaceProbability returns the calibrated place probability for a runner,
// with the same fail-closed semantics as WinProbability.
func (c *Calibration) PlaceProbability(runnerID string) (float64, error) {
	p, ok := c.PlaceProbabilities[runnerID]
	if !ok {
		return 0, fmt.Errorf("%w: no calibrated place probability for runner %s", ErrEstimation, runnerID)
	}
	if p <= 0 || p > 1 {
		return 0, fmt.Errorf("%w: calibrated place probability %.4f out of range for runner %s", ErrEstimation, p, runnerID)
	}
	return p, nil
}
