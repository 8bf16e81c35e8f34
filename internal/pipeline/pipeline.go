// Package pipeline implements the per-race decision state machine over the
// H-30, H-5 and RESULT checkpoints. Each invocation is stateless across
// races, reads an immutable policy, and either hands a complete Decision to
// the sink or persists nothing.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/turfpilot/internal/config"
	"github.com/yourusername/turfpilot/internal/estimator"
	"github.com/yourusername/turfpilot/internal/guardrail"
	"github.com/yourusername/turfpilot/internal/logger"
	"github.com/yourusername/turfpilot/internal/metrics"
	"github.com/yourusername/turfpilot/internal/models"
	"github.com/yourusername/turfpilot/internal/staking"
)

// RaceRef identifies a race within a meeting
type RaceRef struct {
	MeetingID string
	RaceID    string
}

func (r RaceRef) String() string {
	return r.MeetingID + "/" + r.RaceID
}

// SnapshotSource provides normalized market snapshots for a race and phase
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, ref RaceRef, phase models.Phase) (*models.RaceSnapshot, error)
}

// CalibrationSource provides calibrated probabilities and the combination
// payout model for a race
type CalibrationSource interface {
	FetchCalibration(ctx context.Context, raceID string) (*models.Calibration, error)
	PayoutModel(ctx context.Context, raceID string) (estimator.PayoutModel, error)
}

// ResultSource provides official race results for RESULT-phase reconciliation
type ResultSource interface {
	FetchResult(ctx context.Context, ref RaceRef) (*models.RaceResult, error)
}

// DecisionSink persists decision artifacts and preliminary snapshots. The
// pipeline hands over complete artifacts only; it never writes partial state.
type DecisionSink interface {
	SaveDecision(ctx context.Context, decision *models.Decision) error
	SaveSnapshot(ctx context.Context, snapshot *models.RaceSnapshot) error
}

// Reconciler settles emitted decisions against official results
type Reconciler interface {
	Reconcile(ctx context.Context, ref RaceRef, result *models.RaceResult) error
}

// EstimatorService is the EV/ROI computation surface the pipeline drives.
// Kept as an interface so tests can verify it is never invoked on the
// fail-closed paths.
type EstimatorService interface {
	EstimateSP(snapshot *models.RaceSnapshot, runnerID string, calibration *models.Calibration) (*models.Estimate, error)
	EstimateCombo(snapshot *models.RaceSnapshot, runnerIDs []string, calibration *models.Calibration, payouts estimator.PayoutModel) (*models.Estimate, error)
}

// Pipeline orchestrates guardrails, estimation and staking for one race at
// a time
type Pipeline struct {
	guardPolicy guardrail.Policy
	stakePolicy staking.Policy
	estimator   EstimatorService
	snapshots   SnapshotSource
	calibration CalibrationSource
	results     ResultSource
	sink        DecisionSink
	reconciler  Reconciler
	log         *logrus.Logger
	audit       *logger.AuditLogger
	clock       func() time.Time
}

// Options bundles the pipeline collaborators
type Options struct {
	Config      *config.GPIConfig
	Estimator   EstimatorService
	Snapshots   SnapshotSource
	Calibration CalibrationSource
	Results     ResultSource
	Sink        DecisionSink
	Reconciler  Reconciler
	Logger      *logrus.Logger
	Clock       func() time.Time
}

// New creates a pipeline from validated configuration. A nil clock defaults
// to time.Now; tests inject a fixed clock for reproducible artifacts.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: missing GPI thresholds", models.ErrConfigInvalid)
	}
	if opts.Estimator == nil || opts.Snapshots == nil || opts.Sink == nil {
		return nil, fmt.Errorf("%w: missing pipeline collaborators", models.ErrConfigInvalid)
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{
		guardPolicy: guardrail.PolicyFromConfig(opts.Config),
		stakePolicy: staking.PolicyFromConfig(opts.Config),
		estimator:   opts.Estimator,
		snapshots:   opts.Snapshots,
		calibration: opts.Calibration,
		results:     opts.Results,
		sink:        opts.Sink,
		reconciler:  opts.Reconciler,
		log:         log,
		audit:       logger.NewAuditLogger(log),
		clock:       clock,
	}, nil
}

// Run executes one phase for one race. The phase argument is dispatched
// exhaustively; an unrecognized value is a typed error, never a silent
// no-op.
func (p *Pipeline) Run(ctx context.Context, phase models.Phase, ref RaceRef) (*models.Decision, error) {
	timer := prometheus.NewTimer(metrics.PipelineDuration.WithLabelValues(phase.String()))
	defer timer.ObserveDuration()

	switch phase {
	case models.PhaseH30:
		return p.runH30(ctx, ref)
	case models.PhaseH5:
		return p.runH5(ctx, ref)
	case models.PhaseResult:
		return p.runResult(ctx, ref)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownPhase, phase)
	}
}

// emit finalizes and persists a decision. Cancellation is honored before
// the sink write so a cancelled invocation leaves no artifact behind.
func (p *Pipeline) emit(ctx context.Context, decision *models.Decision) (*models.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.sink.SaveDecision(ctx, decision); err != nil {
		return nil, fmt.Errorf("failed to persist decision for %s: %w", decision.RaceID, err)
	}
	p.audit.LogDecision(decision)
	return decision, nil
}

// abstainDecision builds an abstention artifact
func (p *Pipeline) abstainDecision(phase models.Phase, ref RaceRef, code models.ReasonCode, message string, capturedAt time.Time) *models.Decision {
	return &models.Decision{
		ID:         models.NewDecisionID(ref.MeetingID, ref.RaceID, p.clock(), phase),
		Phase:      phase,
		MeetingID:  ref.MeetingID,
		RaceID:     ref.RaceID,
		Abstain:    true,
		Tickets:    []models.Ticket{},
		ReasonCode: code,
		Message:    message,
		CapturedAt: capturedAt,
		DecidedAt:  p.clock(),
	}
}
