// Package guardrail implements the pre-stake guardrail cascade. Every check
// is a pure function of its inputs: no side effects, no clock reads, safe to
// re-run for the same race and phase.
package guardrail

import (
	"fmt"
	"math"
	"time"

	"github.com/yourusername/turfpilot/internal/config"
	"github.com/yourusername/turfpilot/internal/models"
)

// Policy is the immutable subset of thresholds the cascade consults. It is
// copied per invocation; guardrail code never reads ambient configuration.
type Policy struct {
	FreshnessMaxAge          time.Duration
	OverroundCeiling         float64
	OverroundCeilingHandicap float64
	HandicapStartersMin      int
	EVMinSP                  float64
	ROIMinSP                 float64
	SPMaxProbability         float64
	EVMinCombo               float64
	ROIMinCombo              float64
	MinComboPayout           float64
	EVMinGlobal              float64
}

// PolicyFromConfig copies guardrail thresholds out of the validated config
func PolicyFromConfig(gpi *config.GPIConfig) Policy {
	return Policy{
		FreshnessMaxAge:          gpi.FreshnessMaxAge(),
		OverroundCeiling:         gpi.OverroundCeiling,
		OverroundCeilingHandicap: gpi.OverroundCeilingHandicap,
		HandicapStartersMin:      gpi.HandicapStartersMin,
		EVMinSP:                  gpi.EVMinSP,
		ROIMinSP:                 gpi.ROIMinSP,
		SPMaxProbability:         gpi.SPMaxProbability,
		EVMinCombo:               gpi.EVMinCombo,
		ROIMinCombo:              gpi.ROIMinCombo,
		MinComboPayout:           gpi.MinComboPayout,
		EVMinGlobal:              gpi.EVMinGlobal,
	}
}

// OverroundCeilingFor selects the ceiling applicable to a race. Large
// handicap fields get the stricter ceiling; the predicate lives here so no
// call site hardcodes the variant.
func (p Policy) OverroundCeilingFor(snapshot *models.RaceSnapshot) float64 {
	if snapshot.IsHandicap() && snapshot.Starters() >= p.HandicapStartersMin {
		return p.OverroundCeilingHandicap
	}
	return p.OverroundCeiling
}

// CheckFreshness verifies every mandatory input was captured within the
// freshness window. Calibration may be nil when the stage runs before EV
// work (H-30), in which case only the snapshot is checked.
func CheckFreshness(snapshot *models.RaceSnapshot, calibration *models.Calibration, now time.Time, maxAge time.Duration) models.GuardrailVerdict {
	var reasons []string

	if snapshot.CapturedAt.IsZero() {
		reasons = append(reasons, "stale input: odds snapshot missing capture time")
	} else if now.Sub(snapshot.CapturedAt) > maxAge {
		reasons = append(reasons, fmt.Sprintf("stale input: odds snapshot captured %s ago",
			now.Sub(snapshot.CapturedAt).Truncate(time.Second)))
	}

	if calibration != nil {
		if calibration.CalibratedAt.IsZero() {
			reasons = append(reasons, "stale input: calibration curve missing timestamp")
		} else if now.Sub(calibration.CalibratedAt) > maxAge {
			reasons = append(reasons, fmt.Sprintf("stale input: calibration curve calibrated %s ago",
				now.Sub(calibration.CalibratedAt).Truncate(time.Second)))
		}
	}

	if len(reasons) > 0 {
		return models.Reject(reasons...)
	}
	return models.Pass()
}

// CheckOverround verifies the recomputed market margin against the ceiling
// applicable to the race type.
func CheckOverround(snapshot *models.RaceSnapshot, p Policy) models.GuardrailVerdict {
	overround := snapshot.Overround()
	ceiling := p.OverroundCeilingFor(snapshot)
	if overround > ceiling {
		return models.Reject(fmt.Sprintf("overround %.4f above ceiling %.2f", overround, ceiling))
	}
	return models.Pass()
}

// CheckSP applies the single-pick thresholds: minimum EV, minimum ROI and a
// probability cap that rejects overly short-priced favorites.
func CheckSP(est *models.Estimate, p Policy) models.GuardrailVerdict {
	var reasons []string

	if math.IsNaN(est.ROIRatio) {
		return models.Reject("sp roi missing")
	}
	if !est.Viable() {
		return models.Reject("sp estimate not viable")
	}
	if est.EVRatio < p.EVMinSP {
		reasons = append(reasons, fmt.Sprintf("sp ev %.4f below minimum %.2f", est.EVRatio, p.EVMinSP))
	}
	if est.ROIRatio < p.ROIMinSP {
		reasons = append(reasons, fmt.Sprintf("sp roi %.4f below minimum %.2f", est.ROIRatio, p.ROIMinSP))
	}
	if est.Probability > p.SPMaxProbability {
		reasons = append(reasons, fmt.Sprintf("sp probability %.4f above cap %.2f", est.Probability, p.SPMaxProbability))
	}

	if len(reasons) > 0 {
		return models.Reject(reasons...)
	}
	return models.Pass()
}

// CheckCombo applies the combination thresholds. EV and ROI are distinct
// required metrics; a missing ROI fails closed rather than being substituted
// by EV.
func CheckCombo(est *models.Estimate, p Policy) models.GuardrailVerdict {
	var reasons []string

	if math.IsNaN(est.ROIRatio) {
		return models.Reject("combo roi missing")
	}
	if !est.Viable() {
		return models.Reject("combo estimate not viable")
	}
	if est.EVRatio < p.EVMinCombo {
		reasons = append(reasons, fmt.Sprintf("combo ev %.4f below minimum %.2f", est.EVRatio, p.EVMinCombo))
	}
	if est.ROIRatio < p.ROIMinCombo {
		reasons = append(reasons, fmt.Sprintf("combo roi %.4f below minimum %.2f", est.ROIRatio, p.ROIMinCombo))
	}
	if est.ExpectedPayout < p.MinComboPayout {
		reasons = append(reasons, fmt.Sprintf("combo payout %.2f below minimum %.2f", est.ExpectedPayout, p.MinComboPayout))
	}

	if len(reasons) > 0 {
		return models.Reject(reasons...)
	}
	return models.Pass()
}

// CheckGlobal applies the aggregate EV gate. It only runs when a combo is
// proposed; SP-only races skip it.
func CheckGlobal(evGlobal float64, p Policy) models.GuardrailVerdict {
	if math.IsNaN(evGlobal) {
		return models.Reject("global ev missing")
	}
	if evGlobal < p.EVMinGlobal {
		return models.Reject(fmt.Sprintf("global ev %.4f below minimum %.2f", evGlobal, p.EVMinGlobal))
	}
	return models.Pass()
}

// EVGlobal aggregates the expected value across the proposed estimates,
// weighted by expected payout so the larger basket dominates.
func EVGlobal(estimates []*models.Estimate) float64 {
	totalWeight := 0.0
	weighted := 0.0
	for _, est := range estimates {
		if est == nil {
			continue
		}
		w := est.ExpectedPayout
		if w <= 0 {
			w = 1
		}
		weighted += est.EVRatio * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return math.NaN()
	}
	return weighted / totalWeight
}

// Evaluate runs the full cascade in its fixed order. Freshness and
// overround are verified before any EV figure is trusted and short-circuit
// the rest; the EV/ROI/payout checks then accumulate every distinct reason.
// sp and combo may be nil when the corresponding leg is not considered.
func Evaluate(snapshot *models.RaceSnapshot, calibration *models.Calibration, sp, combo *models.Estimate, p Policy, now time.Time) models.GuardrailVerdict {
	if v := CheckFreshness(snapshot, calibration, now, p.FreshnessMaxAge); !v.Passed {
		return v
	}
	if v := CheckOverround(snapshot, p); !v.Passed {
		return v
	}

	verdict := models.Pass()
	if sp != nil {
		verdict = verdict.Merge(CheckSP(sp, p))
	}
	if combo != nil {
		verdict = verdict.Merge(CheckCombo(combo, p))
		verdict = verdict.Merge(CheckGlobal(EVGlobal([]*models.Estimate{sp, combo}), p))
	}
	return verdict
}
