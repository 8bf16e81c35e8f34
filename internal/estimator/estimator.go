// Package estimator computes expected value and projected ROI for single-pick
// and combination bet candidates from calibrated probabilities. All ratios
// are fractions of stake; nothing is rounded mid-computation.
package estimator

import (
	"fmt"
	"math"

	"github.com/yourusername/turfpilot/internal/config"
	"github.com/yourusername/turfpilot/internal/models"
)

// PayoutModel projects combination dividends for a basket of runners, per
// unit of base stake. The expected figure feeds EV; the conservative figure
// (a lower quantile of the dividend distribution) feeds ROI, keeping the two
// gates distinct.
type PayoutModel interface {
	ExpectedDividend(runnerIDs []string) (float64, error)
	ConservativeDividend(runnerIDs []string) (float64, error)
}

// Estimator produces Estimates for bet candidates. It is stateless apart
// from the simulation settings, so concurrent use across races is safe.
type Estimator struct {
	mcIterations int
	mcSeed       int64
}

// New creates an estimator with the configured simulation settings
func New(gpi *config.GPIConfig) *Estimator {
	return &Estimator{
		mcIterations: gpi.MonteCarloIterations,
		mcSeed:       gpi.MonteCarloSeed,
	}
}

// EstimateSP computes the single-pick estimate for a runner.
//
// EV comes from the win leg using the calibrated win probability, never the
// market-implied one (which is inflated by the overround):
//
//	ev = p*(odds-1) - (1-p)
//
// ROI is the distinct secondary gate, projected from the place leg with the
// calibrated place probability. Missing or non-positive inputs fail closed
// with ErrEstimation; no default probability is ever substituted.
func (e *Estimator) EstimateSP(snapshot *models.RaceSnapshot, runnerID string, calibration *models.Calibration) (*models.Estimate, error) {
	runner, ok := snapshot.RunnerByID(runnerID)
	if !ok {
		return nil, fmt.Errorf("%w: runner %s not in snapshot %s", models.ErrEstimation, runnerID, snapshot.RaceID)
	}
	if runner.WinOdds <= 1.0 {
		return nil, fmt.Errorf("%w: non-positive win odds %.2f for runner %s", models.ErrEstimation, runner.WinOdds, runnerID)
	}

	pWin, err := calibration.WinProbability(runnerID)
	if err != nil {
		return nil, err
	}

	ev := pWin*(runner.WinOdds-1) - (1 - pWin)

	// ROI stays NaN when the place leg is unquoted; the guardrail then
	// rejects with "roi missing" instead of reusing EV.
	roi := math.NaN()
	if placeOdds := runner.GetPlaceOdds(); placeOdds > 1.0 {
		if pPlace, perr := calibration.PlaceProbability(runnerID); perr == nil {
			roi = pPlace*placeOdds - 1
		}
	}

	return &models.Estimate{
		Kind:           models.BetKindSP,
		EVRatio:        ev,
		ROIRatio:       roi,
		ExpectedPayout: pWin * runner.WinOdds,
		Probability:    pWin,
		Odds:           runner.WinOdds,
		Runners:        []string{runnerID},
	}, nil
}

// EstimateCombo computes the combination estimate for a basket of runners.
// The basket probability is the chance that every leg finishes inside the
// first len(legs) positions: closed-form Harville expansion for 2 or 3
// legs, seeded Monte Carlo above that (see combo.go).
func (e *Estimator) EstimateCombo(snapshot *models.RaceSnapshot, runnerIDs []string, calibration *models.Calibration, payouts PayoutModel) (*models.Estimate, error) {
	if len(runnerIDs) < 2 {
		return nil, fmt.Errorf("%w: combo requires at least two legs, got %d", models.ErrEstimation, len(runnerIDs))
	}

	probs := make([]float64, 0, len(runnerIDs))
	oddsProduct := 1.0
	for _, id := range runnerIDs {
		runner, ok := snapshot.RunnerByID(id)
		if !ok {
			return nil, fmt.Errorf("%w: runner %s not in snapshot %s", models.ErrEstimation, id, snapshot.RaceID)
		}
		if runner.WinOdds <= 1.0 {
			return nil, fmt.Errorf("%w: non-positive win odds %.2f for runner %s", models.ErrEstimation, runner.WinOdds, id)
		}
		p, err := calibration.WinProbability(id)
		if err != nil {
			return nil, err
		}
		probs = append(probs, p)
		oddsProduct *= runner.WinOdds
	}

	pBasket, err := e.basketProbability(probs)
	if err != nil {
		return nil, err
	}

	expectedDividend, err := payouts.ExpectedDividend(runnerIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEstimation, err)
	}
	if expectedDividend <= 1.0 {
		return nil, fmt.Errorf("%w: expected dividend %.2f not positive for basket %v", models.ErrEstimation, expectedDividend, runnerIDs)
	}

	roi := math.NaN()
	if conservative, cerr := payouts.ConservativeDividend(runnerIDs); cerr == nil && conservative > 1.0 {
		roi = pBasket*conservative - 1
	}

	return &models.Estimate{
		Kind:           models.BetKindCombo,
		EVRatio:        pBasket*expectedDividend - 1,
		ROIRatio:       roi,
		ExpectedPayout: expectedDividend,
		Probability:    pBasket,
		Odds:           oddsProduct,
		Runners:        append([]string(nil), runnerIDs...),
	}, nil
}

// SelectBest picks the single best candidate of a kind: highest EV, ties
// broken by highest expected payout.
func SelectBest(candidates []*models.Estimate) *models.Estimate {
	var best *models.Estimate
	for _, c := range candidates {
		if c == nil || !c.Viable() {
			continue
		}
		if best == nil ||
			c.EVRatio > best.EVRatio ||
			(c.EVRatio == best.EVRatio && c.ExpectedPayout > best.ExpectedPayout) {
			best = c
		}
	}
	return best
}
