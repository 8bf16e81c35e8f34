package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/turfpilot/internal/guardrail"
	"github.com/yourusername/turfpilot/internal/metrics"
	"github.com/yourusername/turfpilot/internal/models"
	"github.com/yourusername/turfpilot/internal/staking"
)

// runH30 captures and annotates the preliminary checkpoint. Only the
// freshness and overround gates run; EV is never computed and no ticket can
// be emitted. The phase is terminal whatever the guardrail outcome: a bad
// H-30 annotates the race, it never aborts the day.
func (p *Pipeline) runH30(ctx context.Context, ref RaceRef) (*models.Decision, error) {
	now := p.clock()

	snapshot, err := p.snapshots.FetchSnapshot(ctx, ref, models.PhaseH30)
	if err != nil {
		p.log.WithError(err).WithField("race_id", ref.RaceID).Warn("H-30 snapshot unavailable")
		metrics.DecisionsTotal.WithLabelValues(models.PhaseH30.String(), "abstain").Inc()
		return p.emit(ctx, p.abstainDecision(models.PhaseH30, ref, models.ReasonDataUnavailable,
			fmt.Sprintf("snapshot unavailable: %v", err), now))
	}
	if err := snapshot.Validate(); err != nil {
		return p.emit(ctx, p.abstainDecision(models.PhaseH30, ref, models.ReasonDataUnavailable,
			fmt.Sprintf("snapshot invalid: %v", err), snapshot.CapturedAt))
	}

	verdict := guardrail.CheckFreshness(snapshot, nil, now, p.guardPolicy.FreshnessMaxAge).
		Merge(guardrail.CheckOverround(snapshot, p.guardPolicy))

	if err := p.sink.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to persist preliminary snapshot for %s: %w", ref.RaceID, err)
	}

	decision := p.abstainDecision(models.PhaseH30, ref, models.ReasonNone, "preliminary checkpoint recorded", snapshot.CapturedAt)
	decision.Overround = snapshot.Overround()
	decision.Verdicts = []models.GuardrailVerdict{verdict}
	if !verdict.Passed {
		decision.ReasonCode = models.ReasonGuardrailRejected
		decision.Message = strings.Join(verdict.Reasons, "; ")
		p.audit.LogGuardrailRejection(ref.RaceID, models.PhaseH30, verdict)
		for range verdict.Reasons {
			metrics.GuardrailRejectionsTotal.WithLabelValues(models.PhaseH30.String()).Inc()
		}
	}
	metrics.DecisionsTotal.WithLabelValues(models.PhaseH30.String(), "abstain").Inc()
	return p.emit(ctx, decision)
}

// runH5 is the only phase that can commit stakes. Enrichment is a hard
// precondition: without it the race is abstained before the estimator is
// ever invoked.
func (p *Pipeline) runH5(ctx context.Context, ref RaceRef) (*models.Decision, error) {
	now := p.clock()

	snapshot, err := p.snapshots.FetchSnapshot(ctx, ref, models.PhaseH5)
	if err != nil {
		metrics.DecisionsTotal.WithLabelValues(models.PhaseH5.String(), "abstain").Inc()
		return p.emit(ctx, p.abstainDecision(models.PhaseH5, ref, models.ReasonDataUnavailable,
			fmt.Sprintf("snapshot unavailable: %v", err), now))
	}
	if err := snapshot.Validate(); err != nil {
		metrics.DecisionsTotal.WithLabelValues(models.PhaseH5.String(), "abstain").Inc()
		return p.emit(ctx, p.abstainDecision(models.PhaseH5, ref, models.ReasonDataUnavailable,
			fmt.Sprintf("snapshot invalid: %v", err), snapshot.CapturedAt))
	}

	if !snapshot.Enrichment.Complete() {
		metrics.DecisionsTotal.WithLabelValues(models.PhaseH5.String(), "abstain").Inc()
		decision := p.abstainDecision(models.PhaseH5, ref, models.ReasonEnrichmentMissing, "enrichment missing", snapshot.CapturedAt)
		decision.Overround = snapshot.Overround()
		return p.emit(ctx, decision)
	}

	calibration, err := p.calibration.FetchCalibration(ctx, ref.RaceID)
	if err != nil {
		metrics.DecisionsTotal.WithLabelValues(models.PhaseH5.String(), "abstain").Inc()
		decision := p.abstainDecision(models.PhaseH5, ref, models.ReasonDataUnavailable,
			fmt.Sprintf("calibration unavailable: %v", err), snapshot.CapturedAt)
		decision.Overround = snapshot.Overround()
		return p.emit(ctx, decision)
	}

	// Freshness and overround gate the race before any EV figure is
	// trusted.
	gate := guardrail.CheckFreshness(snapshot, calibration, now, p.guardPolicy.FreshnessMaxAge)
	code := models.ReasonStaleInput
	if gate.Passed {
		gate = guardrail.CheckOverround(snapshot, p.guardPolicy)
		code = models.ReasonGuardrailRejected
	}
	if !gate.Passed {
		p.audit.LogGuardrailRejection(ref.RaceID, models.PhaseH5, gate)
		metrics.GuardrailRejectionsTotal.WithLabelValues(models.PhaseH5.String()).Inc()
		metrics.DecisionsTotal.WithLabelValues(models.PhaseH5.String(), "abstain").Inc()
		decision := p.abstainDecision(models.PhaseH5, ref, code, strings.Join(gate.Reasons, "; "), snapshot.CapturedAt)
		decision.Overround = snapshot.Overround()
		decision.Verdicts = []models.GuardrailVerdict{gate}
		return p.emit(ctx, decision)
	}

	sp, combo, verdicts, legReasons := p.qualifyCandidates(ctx, snapshot, calibration)

	if sp == nil && combo == nil {
		metrics.DecisionsTotal.WithLabelValues(models.PhaseH5.String(), "abstain").Inc()
		decision := p.abstainDecision(models.PhaseH5, ref, models.ReasonGuardrailRejected,
			joinOrDefault(legReasons, "no candidate passed the guardrails"), snapshot.CapturedAt)
		decision.Overround = snapshot.Overround()
		decision.Verdicts = verdicts
		return p.emit(ctx, decision)
	}

	tickets, allocReasons, err := p.allocate(ref, sp, combo)
	if err != nil {
		// Allocation failures are fatal configuration errors, not a
		// per-race abstention.
		return nil, err
	}
	legReasons = append(legReasons, allocReasons...)

	decision := &models.Decision{
		ID:         models.NewDecisionID(ref.MeetingID, ref.RaceID, p.clock(), models.PhaseH5),
		Phase:      models.PhaseH5,
		MeetingID:  ref.MeetingID,
		RaceID:     ref.RaceID,
		Tickets:    tickets,
		Overround:  snapshot.Overround(),
		EVGlobal:   guardrail.EVGlobal([]*models.Estimate{sp, combo}),
		Verdicts:   verdicts,
		CapturedAt: snapshot.CapturedAt,
		DecidedAt:  p.clock(),
	}

	if len(tickets) == 0 {
		decision.Abstain = true
		decision.Tickets = []models.Ticket{}
		decision.ReasonCode = models.ReasonNoQualifyingBet
		decision.Message = joinOrDefault(legReasons, "no stake above minimum increment")
		metrics.DecisionsTotal.WithLabelValues(models.PhaseH5.String(), "abstain").Inc()
		return p.emit(ctx, decision)
	}

	decision.Message = fmt.Sprintf("%d ticket(s), total stake %.2f", len(tickets), models.TotalStake(tickets))
	for i := range tickets {
		p.audit.LogTicket(ref.RaceID, models.PhaseH5, &tickets[i])
		metrics.StakeAllocated.WithLabelValues(string(tickets[i].Kind)).Add(tickets[i].Stake)
	}
	metrics.DecisionsTotal.WithLabelValues(models.PhaseH5.String(), "bet").Inc()
	return p.emit(ctx, decision)
}

// runResult reconciles official results. It never produces tickets and
// never mutates previously emitted decisions; reconciliation failures are
// reported in the artifact message only.
func (p *Pipeline) runResult(ctx context.Context, ref RaceRef) (*models.Decision, error) {
	now := p.clock()
	decision := p.abstainDecision(models.PhaseResult, ref, models.ReasonResultPhase, "result checkpoint", now)

	if p.results == nil {
		decision.Message = "result source not configured"
		metrics.DecisionsTotal.WithLabelValues(models.PhaseResult.String(), "abstain").Inc()
		return p.emit(ctx, decision)
	}

	result, err := p.results.FetchResult(ctx, ref)
	if err != nil {
		decision.Message = fmt.Sprintf("official result unavailable: %v", err)
		p.log.WithError(err).WithField("race_id", ref.RaceID).Warn("Result reconciliation skipped")
		metrics.DecisionsTotal.WithLabelValues(models.PhaseResult.String(), "abstain").Inc()
		return p.emit(ctx, decision)
	}

	if p.reconciler != nil {
		if err := p.reconciler.Reconcile(ctx, ref, result); err != nil {
			decision.Message = fmt.Sprintf("reconciliation failed: %v", err)
			p.log.WithError(err).WithField("race_id", ref.RaceID).Error("Result reconciliation failed")
			metrics.DecisionsTotal.WithLabelValues(models.PhaseResult.String(), "abstain").Inc()
			return p.emit(ctx, decision)
		}
		decision.Message = fmt.Sprintf("reconciled against arrival %v", result.Arrival)
	}

	metrics.DecisionsTotal.WithLabelValues(models.PhaseResult.String(), "abstain").Inc()
	return p.emit(ctx, decision)
}

// qualifyCandidates builds the best SP and COMBO candidates and screens
// them through the EV/ROI/payout guardrails. A failing leg degrades that
// leg only; its reasons are carried into the decision message.
func (p *Pipeline) qualifyCandidates(ctx context.Context, snapshot *models.RaceSnapshot, calibration *models.Calibration) (sp, combo *models.Estimate, verdicts []models.GuardrailVerdict, reasons []string) {
	sp = p.bestSPCandidate(snapshot, calibration)
	if sp != nil {
		v := guardrail.CheckSP(sp, p.guardPolicy)
		verdicts = append(verdicts, v)
		if !v.Passed {
			p.audit.LogGuardrailRejection(snapshot.RaceID, models.PhaseH5, v)
			metrics.GuardrailRejectionsTotal.WithLabelValues(models.PhaseH5.String()).Inc()
			reasons = append(reasons, v.Reasons...)
			sp = nil
		}
	} else {
		reasons = append(reasons, "no viable sp candidate")
	}

	combo = p.bestComboCandidate(ctx, snapshot, calibration)
	if combo != nil {
		v := guardrail.CheckCombo(combo, p.guardPolicy)
		if v.Passed {
			v = v.Merge(guardrail.CheckGlobal(guardrail.EVGlobal([]*models.Estimate{sp, combo}), p.guardPolicy))
		}
		verdicts = append(verdicts, v)
		if !v.Passed {
			p.audit.LogGuardrailRejection(snapshot.RaceID, models.PhaseH5, v)
			metrics.GuardrailRejectionsTotal.WithLabelValues(models.PhaseH5.String()).Inc()
			reasons = append(reasons, v.Reasons...)
			combo = nil
		}
	}

	return sp, combo, verdicts, reasons
}

// bestSPCandidate estimates every active runner and keeps the best by EV,
// ties broken by expected payout. Estimation failures degrade the single
// runner, never the race.
func (p *Pipeline) bestSPCandidate(snapshot *models.RaceSnapshot, calibration *models.Calibration) *models.Estimate {
	var best *models.Estimate
	for _, runner := range snapshot.ActiveRunners() {
		est, err := p.estimator.EstimateSP(snapshot, runner.ID, calibration)
		if err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"race_id":   snapshot.RaceID,
				"runner_id": runner.ID,
			}).Debug("SP estimation failed for runner")
			continue
		}
		if !est.Viable() {
			continue
		}
		if best == nil ||
			est.EVRatio > best.EVRatio ||
			(est.EVRatio == best.EVRatio && est.ExpectedPayout > best.ExpectedPayout) {
			best = est
		}
	}
	return best
}

// bestComboCandidate builds baskets from the runners with the highest
// calibrated win probabilities (pair of the top two, trio of the top three)
// and keeps the better estimate.
func (p *Pipeline) bestComboCandidate(ctx context.Context, snapshot *models.RaceSnapshot, calibration *models.Calibration) *models.Estimate {
	if p.calibration == nil {
		return nil
	}
	payouts, err := p.calibration.PayoutModel(ctx, snapshot.RaceID)
	if err != nil {
		p.log.WithError(err).WithField("race_id", snapshot.RaceID).Debug("Payout model unavailable, combo leg skipped")
		return nil
	}

	ranked := runnersByProbability(snapshot, calibration)
	var best *models.Estimate
	for _, size := range []int{2, 3} {
		if len(ranked) < size {
			break
		}
		est, err := p.estimator.EstimateCombo(snapshot, ranked[:size], calibration, payouts)
		if err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"race_id": snapshot.RaceID,
				"legs":    size,
			}).Debug("Combo estimation failed for basket")
			continue
		}
		if !est.Viable() {
			continue
		}
		if best == nil ||
			est.EVRatio > best.EVRatio ||
			(est.EVRatio == best.EVRatio && est.ExpectedPayout > best.ExpectedPayout) {
			best = est
		}
	}
	return best
}

// allocate sizes the surviving candidates and logs dropped legs
func (p *Pipeline) allocate(ref RaceRef, sp, combo *models.Estimate) ([]models.Ticket, []string, error) {
	tickets, reasons, err := staking.Allocate(sp, combo, p.stakePolicy)
	if err != nil {
		return nil, nil, err
	}
	for _, reason := range reasons {
		kind := models.BetKindSP
		if strings.HasPrefix(reason, "combo") {
			kind = models.BetKindCombo
		}
		p.audit.LogAllocationDrop(ref.RaceID, kind, reason)
	}
	return tickets, reasons, nil
}

// runnersByProbability returns active runner ids ordered by calibrated win
// probability, highest first. Runners without a calibrated probability are
// excluded.
func runnersByProbability(snapshot *models.RaceSnapshot, calibration *models.Calibration) []string {
	type ranked struct {
		id string
		p  float64
	}
	list := make([]ranked, 0, len(snapshot.Runners))
	for _, r := range snapshot.ActiveRunners() {
		p, err := calibration.WinProbability(r.ID)
		if err != nil {
			continue
		}
		list = append(list, ranked{id: r.ID, p: p})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].p > list[j].p })
	ids := make([]string, len(list))
	for i, r := range list {
		ids[i] = r.id
	}
	return ids
}

func joinOrDefault(reasons []string, fallback string) string {
	if len(reasons) == 0 {
		return fallback
	}
	return strings.Join(reasons, "; ")
}
