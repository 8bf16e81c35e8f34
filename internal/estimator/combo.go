package estimator

import (
	"fmt"
	"math/rand"

	"github.com/yourusername/turfpilot/internal/models"
)

// basketProbability returns the probability that every selected runner
// finishes inside the first N positions, N being the number of legs.
//
// For 2 and 3 legs the Harville conditional expansion is exact and cheap:
// the chance runner j finishes second given i won is p_j / (1 - p_i), and
// the sum runs over all arrival permutations of the basket. For larger
// baskets the permutation count grows and the field interaction matters, so
// a seeded Plackett-Luce simulation is used instead; the fixed seed keeps
// re-runs reproducible.
func (e *Estimator) basketProbability(probs []float64) (float64, error) {
	sum := 0.0
	for _, p := range probs {
		if p <= 0 || p >= 1 {
			return 0, fmt.Errorf("%w: leg probability %.4f out of range", models.ErrEstimation, p)
		}
		sum += p
	}
	// The Harville denominators assume the basket leaves probability mass to
	// the rest of the field. Calibrated legs summing to 1 or more are an
	// inconsistent input and would inflate the result past a probability.
	if sum >= 1 {
		return 0, fmt.Errorf("%w: leg probabilities sum to %.4f, no field mass left", models.ErrEstimation, sum)
	}

	var pBasket float64
	switch len(probs) {
	case 2:
		pBasket = harvilleTop2(probs[0], probs[1])
	case 3:
		pBasket = harvilleTop3(probs[0], probs[1], probs[2])
	default:
		if len(probs) < 2 {
			return 0, fmt.Errorf("%w: basket needs at least two legs", models.ErrEstimation)
		}
		pBasket = e.simulateTopN(probs)
	}

	if pBasket <= 0 || pBasket > 1 {
		return 0, fmt.Errorf("%w: basket probability %.4f out of range", models.ErrEstimation, pBasket)
	}
	return pBasket, nil
}

// harvilleTop2 is P(both runners fill the first two places), summed over
// the two arrival orders.
func harvilleTop2(pa, pb float64) float64 {
	return pa*pb/(1-pa) + pb*pa/(1-pb)
}

// harvilleTop3 is P(all three runners fill the first three places), summed
// over the six arrival orders.
func harvilleTop3(pa, pb, pc float64) float64 {
	perms := [][3]float64{
		{pa, pb, pc}, {pa, pc, pb},
		{pb, pa, pc}, {pb, pc, pa},
		{pc, pa, pb}, {pc, pb, pa},
	}
	total := 0.0
	for _, perm := range perms {
		first, second, third := perm[0], perm[1], perm[2]
		total += first * (second / (1 - first)) * (third / (1 - first - second))
	}
	return total
}

// simulateTopN estimates the basket probability for baskets of four or more
// legs by sampling arrival orders without replacement, weighted by the leg
// win probabilities against the residual field mass.
func (e *Estimator) simulateTopN(probs []float64) float64 {
	iterations := e.mcIterations
	if iterations <= 0 {
		iterations = 10000
	}
	rng := rand.New(rand.NewSource(e.mcSeed))

	n := len(probs)
	fieldMass := 0.0
	for _, p := range probs {
		fieldMass += p
	}
	// Residual mass represents the rest of the field as a single pseudo
	// runner competing for each position.
	residual := 1 - fieldMass
	if residual < 0 {
		residual = 0
	}

	hits := 0
	weights := make([]float64, n+1)
	taken := make([]bool, n+1)

	for it := 0; it < iterations; it++ {
		copy(weights, probs)
		weights[n] = residual
		for i := range taken {
			taken[i] = false
		}

		allIn := true
		for pos := 0; pos < n; pos++ {
			total := 0.0
			for i, w := range weights {
				if !taken[i] {
					total += w
				}
			}
			if total <= 0 {
				allIn = false
				break
			}
			draw := rng.Float64() * total
			picked := -1
			for i, w := range weights {
				if taken[i] {
					continue
				}
				draw -= w
				if draw <= 0 {
					picked = i
					break
				}
			}
			if picked == -1 || picked == n {
				// The pseudo field runner took a position: basket broken.
				allIn = false
				break
			}
			taken[picked] = true
		}
		if allIn {
			hits++
		}
	}

	return float64(hits) / float64(iterations)
}
