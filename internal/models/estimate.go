package models

import "math"

// BetKind represents the kind of ticket (single pick or combination)
type BetKind string

const (
	BetKindSP    BetKind = "SP"
	BetKindCombo BetKind = "COMBO"
)

// Estimate carries the expected value and projected return for one bet
// candidate. Ratios are fractions of stake, never percentages; rounding
// happens only at artifact boundaries. Estimates are recomputed from the
// current snapshot at every phase, never carried over.
type Estimate struct {
	Kind           BetKind  `json:"kind"`
	EVRatio        float64  `json:"ev_ratio"`
	ROIRatio       float64  `json:"roi_ratio"`
	ExpectedPayout float64  `json:"expected_payout"`
	Probability    float64  `json:"probability"`
	Odds           float64  `json:"odds"`
	Runners        []string `json:"runners"`
}

// Viable reports whether the estimate carries usable numbers. A rejected
// estimate (NaN or -Inf sentinel) must never pass a guardrail.
func (e *Estimate) Viable() bool {
	if math.IsNaN(e.EVRatio) || math.IsInf(e.EVRatio, -1) {
		return false
	}
	if math.IsNaN(e.ROIRatio) || math.IsInf(e.ROIRatio, -1) {
		return false
	}
	return len(e.Runners) > 0
}

// Involves reports whether the estimate covers the given runner
func (e *Estimate) Involves(runnerID string) bool {
	for _, id := range e.Runners {
		if id == runnerID {
			return true
		}
	}
	return false
}
