package models

// Ticket is a concrete stake committed to a bet candidate. At most one SP
// and one COMBO ticket may exist per race per phase.
type Ticket struct {
	Kind     BetKind  `json:"kind"`
	Stake    float64  `json:"stake"`
	Runners  []string `json:"runners"`
	Estimate Estimate `json:"estimate"`
}

// Involves reports whether the ticket stakes the given runner
func (t *Ticket) Involves(runnerID string) bool {
	for _, id := range t.Runners {
		if id == runnerID {
			return true
		}
	}
	return false
}

// TotalStake sums the stakes of a set of tickets
func TotalStake(tickets []Ticket) float64 {
	total := 0.0
	for _, t := range tickets {
		total += t.Stake
	}
	return total
}

// RunnerExposure sums the stake committed to a single runner across tickets
func RunnerExposure(tickets []Ticket, runnerID string) float64 {
	total := 0.0
	for _, t := range tickets {
		if t.Involves(runnerID) {
			total += t.Stake
		}
	}
	return total
}
