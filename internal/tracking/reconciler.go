// Package tracking settles emitted decisions against official results and
// maintains the realized performance ledger.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/turfpilot/internal/logger"
	"github.com/yourusername/turfpilot/internal/metrics"
	"github.com/yourusername/turfpilot/internal/models"
	"github.com/yourusername/turfpilot/internal/pipeline"
	"github.com/yourusername/turfpilot/internal/repository"
)

// Reconciler joins H-5 decisions with official arrivals and records the
// realized outcome of every ticket. It never mutates past decisions.
type Reconciler struct {
	decisions repository.DecisionRepository
	results   repository.ResultRepository
	ledger    repository.TrackingRepository
	log       *logrus.Logger
	audit     *logger.AuditLogger
}

// NewReconciler creates a reconciler over the persistence layer
func NewReconciler(
	decisions repository.DecisionRepository,
	results repository.ResultRepository,
	ledger repository.TrackingRepository,
	log *logrus.Logger,
) *Reconciler {
	return &Reconciler{
		decisions: decisions,
		results:   results,
		ledger:    ledger,
		log:       log,
		audit:     logger.NewAuditLogger(log),
	}
}

// Reconcile stores the official result and settles the H-5 decision for the
// race, if one committed any stake.
func (r *Reconciler) Reconcile(ctx context.Context, ref pipeline.RaceRef, result *models.RaceResult) error {
	if err := r.results.Upsert(ctx, result); err != nil {
		return fmt.Errorf("failed to store official result for %s: %w", ref.RaceID, err)
	}

	decision, err := r.decisions.GetByRaceAndPhase(ctx, ref.MeetingID, ref.RaceID, models.PhaseH5, result.OfficialAt)
	if errors.Is(err, models.ErrNotFound) {
		r.log.WithField("race_id", ref.RaceID).Debug("No H-5 decision to settle")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load decision for %s: %w", ref.RaceID, err)
	}
	if !decision.HasBet() {
		return nil
	}

	totalPL := 0.0
	for i := range decision.Tickets {
		ticket := &decision.Tickets[i]
		pl := settleTicket(ticket, result)
		totalPL += pl

		roi := 0.0
		if ticket.Stake > 0 {
			roi = pl / ticket.Stake
		}
		settlement := &repository.Settlement{
			RaceID:     ref.RaceID,
			Kind:       ticket.Kind,
			Stake:      ticket.Stake,
			ProfitLoss: pl,
			ROI:        roi,
			SettledAt:  result.OfficialAt,
		}
		if err := r.ledger.RecordSettlement(ctx, settlement); err != nil {
			return fmt.Errorf("failed to record settlement for %s: %w", ref.RaceID, err)
		}
	}

	stake := decision.TotalStake()
	raceROI := 0.0
	if stake > 0 {
		raceROI = totalPL / stake
	}
	r.audit.LogReconciliation(ref.RaceID, totalPL, raceROI)

	if daily, err := r.ledger.GetDailyProfitLoss(ctx, result.OfficialAt); err == nil {
		metrics.DailyProfitLoss.Set(daily)
	}

	return nil
}

// settleTicket computes the realized profit or loss for one ticket. Winning
// tickets pay the official dividend when published, falling back to the
// odds the estimate was priced at.
func settleTicket(ticket *models.Ticket, result *models.RaceResult) float64 {
	switch ticket.Kind {
	case models.BetKindSP:
		if len(ticket.Runners) == 1 && ticket.Runners[0] == result.Winner() {
			dividend := result.WinDividend
			if dividend <= 1 {
				dividend = ticket.Estimate.Odds
			}
			return ticket.Stake * (dividend - 1)
		}
		return -ticket.Stake
	case models.BetKindCombo:
		positions := len(ticket.Runners)
		for _, id := range ticket.Runners {
			if !result.Placed(id, positions) {
				return -ticket.Stake
			}
		}
		dividend, ok := result.Dividends[basketKey(ticket.Runners)]
		if !ok || dividend <= 1 {
			dividend = ticket.Estimate.ExpectedPayout
		}
		return ticket.Stake * (dividend - 1)
	default:
		return 0
	}
}

// basketKey builds the dividend lookup key for a basket: sorted runner ids
// joined by a dash, matching the results feed convention.
func basketKey(runnerIDs []string) string {
	ids := append([]string(nil), runnerIDs...)
	sort.Strings(ids)
	return strings.Join(ids, "-")
}
