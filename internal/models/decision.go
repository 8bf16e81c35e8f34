package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReasonCode is a machine-readable abstention category attached to every
// decision alongside the human-readable message.
type ReasonCode string

const (
	ReasonNone              ReasonCode = ""
	ReasonDataUnavailable   ReasonCode = "DATA_UNAVAILABLE"
	ReasonStaleInput        ReasonCode = "STALE_INPUT"
	ReasonEnrichmentMissing ReasonCode = "ENRICHMENT_MISSING"
	ReasonGuardrailRejected ReasonCode = "GUARDRAIL_REJECTED"
	ReasonNoQualifyingBet   ReasonCode = "NO_QUALIFYING_BET"
	ReasonResultPhase       ReasonCode = "RESULT_PHASE"
)

// decisionNamespace seeds deterministic decision IDs so that re-running a
// phase for the same race yields the same artifact identifier.
var decisionNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Decision is the per-race, per-phase artifact. Created fresh each
// invocation, never mutated after emission.
type Decision struct {
	ID         uuid.UUID          `json:"id"`
	Phase      Phase              `json:"phase"`
	MeetingID  string             `json:"meeting_id"`
	RaceID     string             `json:"race_id"`
	Abstain    bool               `json:"abstain"`
	Tickets    []Ticket           `json:"tickets"`
	ReasonCode ReasonCode         `json:"reason_code"`
	Message    string             `json:"message"`
	EVGlobal   float64            `json:"ev_global"`
	Overround  float64            `json:"overround"`
	Verdicts   []GuardrailVerdict `json:"verdicts,omitempty"`
	CapturedAt time.Time          `json:"captured_at"`
	DecidedAt  time.Time          `json:"decided_at"`
}

// NewDecisionID derives a stable identifier from the meeting, race, calendar
// day and phase, so a retried invocation with unchanged inputs reproduces the
// same artifact. Race labels recur daily and across meetings, so the day and
// meeting are part of the key to keep past artifacts immutable.
func NewDecisionID(meetingID, raceID string, day time.Time, phase Phase) uuid.UUID {
	key := meetingID + ":" + raceID + ":" + day.UTC().Format("2006-01-02") + ":" + string(phase)
	return uuid.NewSHA1(decisionNamespace, []byte(key))
}

// HasBet reports whether the decision commits any stake
func (d *Decision) HasBet() bool {
	return !d.Abstain && len(d.Tickets) > 0
}

// TotalStake returns the total committed stake
func (d *Decision) TotalStake() float64 {
	return TotalStake(d.Tickets)
}

// RoundRatio rounds a fraction to two decimal places for presentation.
// Internal computations keep full precision; this is only for artifact
// and log boundaries.
func RoundRatio(ratio float64) float64 {
	v, _ := decimal.NewFromFloat(ratio).Round(2).Float64()
	return v
}
