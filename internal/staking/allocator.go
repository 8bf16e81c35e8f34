// Package staking converts qualifying estimates into concrete ticket stakes
// under a fractional-Kelly policy with a per-runner exposure cap.
package staking

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yourusername/turfpilot/internal/config"
	"github.com/yourusername/turfpilot/internal/models"
)

// Policy is the immutable staking configuration for one allocation
type Policy struct {
	Budget              float64
	KellyFraction       float64
	ExposureCapFraction float64
	MinStakeIncrement   float64
	MaxTicketsPerRace   int
}

// PolicyFromConfig copies staking thresholds out of the validated config
func PolicyFromConfig(gpi *config.GPIConfig) Policy {
	return Policy{
		Budget:              gpi.Budget,
		KellyFraction:       gpi.KellyFraction,
		ExposureCapFraction: gpi.ExposureCapFraction,
		MinStakeIncrement:   gpi.MinStakeIncrement,
		MaxTicketsPerRace:   gpi.MaxTicketsPerRace,
	}
}

func (p Policy) validate() error {
	if p.Budget <= 0 {
		return fmt.Errorf("%w: budget %.2f not positive", models.ErrAllocation, p.Budget)
	}
	if p.MinStakeIncrement <= 0 {
		return fmt.Errorf("%w: stake increment %.2f not positive", models.ErrAllocation, p.MinStakeIncrement)
	}
	if p.KellyFraction <= 0 || p.KellyFraction > 1 {
		return fmt.Errorf("%w: kelly fraction %.2f out of range", models.ErrAllocation, p.KellyFraction)
	}
	if p.ExposureCapFraction <= 0 || p.ExposureCapFraction > 1 {
		return fmt.Errorf("%w: exposure cap fraction %.2f out of range", models.ErrAllocation, p.ExposureCapFraction)
	}
	if p.MaxTicketsPerRace <= 0 || p.MaxTicketsPerRace > 2 {
		return fmt.Errorf("%w: max tickets per race %d out of range", models.ErrAllocation, p.MaxTicketsPerRace)
	}
	return nil
}

// kellyStake sizes one candidate with the fractional-Kelly formula against
// the binary outcome: f* = (p*b - (1-p)) / b, b = net odds, stake clamped
// to [0, budget].
func kellyStake(est *models.Estimate, p Policy) float64 {
	b := netOdds(est)
	if b <= 0 || est.Probability <= 0 {
		return 0
	}
	fStar := (est.Probability*b - (1 - est.Probability)) / b
	if fStar <= 0 {
		return 0
	}
	stake := p.Budget * p.KellyFraction * fStar
	if stake > p.Budget {
		stake = p.Budget
	}
	return stake
}

// netOdds returns the net odds b for Kelly sizing: market win odds for a
// single pick, the projected dividend for a basket.
func netOdds(est *models.Estimate) float64 {
	if est.Kind == models.BetKindCombo {
		return est.ExpectedPayout - 1
	}
	return est.Odds - 1
}

// floorToIncrement rounds a stake down to the nearest increment. Rounding
// is always down so the effective budget is never exceeded.
func floorToIncrement(stake, increment float64) float64 {
	s := decimal.NewFromFloat(stake)
	inc := decimal.NewFromFloat(increment)
	v, _ := s.Div(inc).Floor().Mul(inc).Float64()
	return v
}

// Allocate sizes at most one SP and one COMBO ticket within the budget.
// Either candidate may be nil. Returned reasons describe dropped or scaled
// legs; a leg whose stake rounds to zero is an abstention for that leg, not
// an error. Only a malformed policy returns an error.
func Allocate(sp, combo *models.Estimate, p Policy) ([]models.Ticket, []string, error) {
	if err := p.validate(); err != nil {
		return nil, nil, err
	}

	var reasons []string
	exposureCap := p.ExposureCapFraction * p.Budget

	spStake := 0.0
	if sp != nil {
		spStake = kellyStake(sp, p)
		if spStake > exposureCap {
			reasons = append(reasons, fmt.Sprintf("sp stake %.2f clamped to exposure cap %.2f", spStake, exposureCap))
			spStake = exposureCap
		}
	}

	comboStake := 0.0
	if combo != nil {
		comboStake = kellyStake(combo, p)
		// Cumulative exposure on any runner shared with the SP leg must
		// stay under the cap; the SP leg keeps priority.
		for _, id := range combo.Runners {
			limit := exposureCap
			if sp != nil && sp.Involves(id) {
				limit = exposureCap - spStake
			}
			if limit < 0 {
				limit = 0
			}
			if comboStake > limit {
				reasons = append(reasons, fmt.Sprintf("combo stake %.2f clamped to %.2f by exposure on runner %s", comboStake, limit, id))
				comboStake = limit
			}
		}
	}

	// SP is the priority leg: the combo shrinks first when the pair would
	// exceed the budget.
	if spStake+comboStake > p.Budget {
		scaled := p.Budget - spStake
		if scaled < 0 {
			scaled = 0
		}
		reasons = append(reasons, fmt.Sprintf("combo stake %.2f scaled to %.2f to honor budget %.2f", comboStake, scaled, p.Budget))
		comboStake = scaled
	}
	if spStake > p.Budget {
		spStake = p.Budget
	}

	tickets := make([]models.Ticket, 0, p.MaxTicketsPerRace)

	if sp != nil {
		floored := floorToIncrement(spStake, p.MinStakeIncrement)
		if floored >= p.MinStakeIncrement {
			tickets = append(tickets, models.Ticket{
				Kind:     models.BetKindSP,
				Stake:    floored,
				Runners:  append([]string(nil), sp.Runners...),
				Estimate: *sp,
			})
		} else {
			reasons = append(reasons, fmt.Sprintf("sp stake %.2f below minimum increment %.2f, leg abstained", spStake, p.MinStakeIncrement))
		}
	}

	if combo != nil && len(tickets) >= p.MaxTicketsPerRace {
		reasons = append(reasons, fmt.Sprintf("combo leg dropped by ticket cap %d", p.MaxTicketsPerRace))
	}
	if combo != nil && len(tickets) < p.MaxTicketsPerRace {
		floored := floorToIncrement(comboStake, p.MinStakeIncrement)
		if floored >= p.MinStakeIncrement {
			tickets = append(tickets, models.Ticket{
				Kind:     models.BetKindCombo,
				Stake:    floored,
				Runners:  append([]string(nil), combo.Runners...),
				Estimate: *combo,
			})
		} else {
			reasons = append(reasons, fmt.Sprintf("combo stake %.2f below minimum increment %.2f, leg abstained", comboStake, p.MinStakeIncrement))
		}
	}

	return tickets, reasons, nil
}
