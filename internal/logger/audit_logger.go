// Package logger provides audit logging.
package logger

import (
	"github.com/sirupsen/logrus"

	"github.com/yourusername/turfpilot/internal/models"
)

// AuditLogger provides a dedicated audit trail for every decision the
// engine emits, bet or abstention alike.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogDecision records an emitted decision with its full guardrail trail.
func (al *AuditLogger) LogDecision(d *models.Decision) {
	fields := logrus.Fields{
		"decision_id": d.ID.String(),
		"phase":       d.Phase.String(),
		"meeting_id":  d.MeetingID,
		"race_id":     d.RaceID,
		"abstain":     d.Abstain,
		"reason_code": string(d.ReasonCode),
		"tickets":     len(d.Tickets),
		"total_stake": d.TotalStake(),
		"ev_global":   models.RoundRatio(d.EVGlobal),
		"overround":   models.RoundRatio(d.Overround),
		"captured_at": d.CapturedAt.Unix(),
		"decided_at":  d.DecidedAt.Unix(),
	}
	if d.Abstain {
		al.WithFields(fields).Info("Abstention recorded")
		return
	}
	al.WithFields(fields).Info("Bet decision recorded")
}

// LogTicket records a single allocated ticket.
func (al *AuditLogger) LogTicket(raceID string, phase models.Phase, t *models.Ticket) {
	al.WithFields(logrus.Fields{
		"race_id":         raceID,
		"phase":           phase.String(),
		"kind":            string(t.Kind),
		"stake":           t.Stake,
		"runners":         t.Runners,
		"ev_ratio":        models.RoundRatio(t.Estimate.EVRatio),
		"roi_ratio":       models.RoundRatio(t.Estimate.ROIRatio),
		"expected_payout": models.RoundRatio(t.Estimate.ExpectedPayout),
	}).Info("Ticket allocated")
}

// LogGuardrailRejection records a failed guardrail stage.
func (al *AuditLogger) LogGuardrailRejection(raceID string, phase models.Phase, verdict models.GuardrailVerdict) {
	al.WithFields(logrus.Fields{
		"race_id": raceID,
		"phase":   phase.String(),
		"reasons": verdict.Reasons,
	}).Warn("Guardrail rejection recorded")
}

// LogAllocationDrop records a ticket dropped during stake allocation.
func (al *AuditLogger) LogAllocationDrop(raceID string, kind models.BetKind, reason string) {
	al.WithFields(logrus.Fields{
		"race_id": raceID,
		"kind":    string(kind),
		"reason":  reason,
	}).Warn("Ticket dropped during allocation")
}

// LogReconciliation records RESULT-phase reconciliation of a past decision.
func (al *AuditLogger) LogReconciliation(raceID string, profitLoss float64, roi float64) {
	al.WithFields(logrus.Fields{
		"race_id":     raceID,
		"profit_loss": profitLoss,
		"roi":         models.RoundRatio(roi),
	}).Info("Race reconciled")
}
