package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/turfpilot/internal/config"
	"github.com/yourusername/turfpilot/internal/metrics"
	"github.com/yourusername/turfpilot/internal/models"
	"github.com/yourusername/turfpilot/internal/pipeline"
)

// DayPlanner lists the racecard for a calendar day
type DayPlanner interface {
	FetchDayPlan(ctx context.Context, day time.Time) ([]models.PlannedRace, error)
}

// PhaseRunner executes one decision phase for one race
type PhaseRunner interface {
	Run(ctx context.Context, phase models.Phase, ref pipeline.RaceRef) (*models.Decision, error)
}

// Scheduler anchors the pre-race decision windows to race start times. A
// daily cron job pulls the racecard and arms one-shot timers for the H-30
// and H-5 runs of every race; a second cron job sweeps settled races
// through the RESULT phase.
type Scheduler struct {
	cron    *cron.Cron
	planner DayPlanner
	runner  PhaseRunner
	cfg     *config.SchedulerConfig
	logger  *logrus.Logger

	mu           sync.Mutex
	isRunning    bool
	jobIDs       []cron.EntryID
	timers       []*time.Timer
	armed        map[string]bool
	swept        map[string]bool
	phaseTimeout time.Duration
}

// New creates a scheduler
func New(cfg *config.SchedulerConfig, planner DayPlanner, runner PhaseRunner, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:         cron.New(cron.WithLocation(time.UTC)),
		planner:      planner,
		runner:       runner,
		cfg:          cfg,
		logger:       logger,
		jobIDs:       make([]cron.EntryID, 0),
		armed:        make(map[string]bool),
		swept:        make(map[string]bool),
		phaseTimeout: 2 * time.Minute,
	}
}

// ScheduleJobs registers the day-plan and result-sweep cron jobs
func (s *Scheduler) ScheduleJobs() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule jobs while scheduler is running")
	}

	planID, err := s.cron.AddFunc(s.cfg.DayPlanCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.phaseTimeout)
		defer cancel()
		if err := s.PlanDay(ctx, time.Now().UTC()); err != nil {
			s.logger.WithError(err).Error("Day planning failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add day plan job: %w", err)
	}
	s.jobIDs = append(s.jobIDs, planID)

	sweepID, err := s.cron.AddFunc(s.cfg.ResultSweepCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.phaseTimeout)
		defer cancel()
		if err := s.sweepResults(ctx, time.Now().UTC()); err != nil {
			s.logger.WithError(err).Error("Result sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add result sweep job: %w", err)
	}
	s.jobIDs = append(s.jobIDs, sweepID)

	s.logger.WithFields(logrus.Fields{
		"day_plan_cron":     s.cfg.DayPlanCron,
		"result_sweep_cron": s.cfg.ResultSweepCron,
	}).Info("Scheduler jobs registered")

	return nil
}

// PlanDay fetches the racecard for a day and arms the per-race phase timers.
// Races already armed, and windows already in the past, are skipped so the
// plan can be refreshed without double-firing.
func (s *Scheduler) PlanDay(ctx context.Context, day time.Time) error {
	races, err := s.planner.FetchDayPlan(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to fetch day plan: %w", err)
	}

	h30Lead := time.Duration(s.cfg.H30LeadMinutes) * time.Minute
	h5Lead := time.Duration(s.cfg.H5LeadMinutes) * time.Minute

	s.mu.Lock()
	defer s.mu.Unlock()

	armed := 0
	for _, race := range races {
		if s.armed[race.RaceID] {
			continue
		}
		s.armed[race.RaceID] = true
		armed++

		ref := pipeline.RaceRef{MeetingID: race.MeetingID, RaceID: race.RaceID}
		s.armPhase(ref, models.PhaseH30, race.StartAt.Add(-h30Lead))
		s.armPhase(ref, models.PhaseH5, race.StartAt.Add(-h5Lead))
	}

	metrics.RacesScheduled.Set(float64(len(s.armed)))
	s.logger.WithFields(logrus.Fields{
		"day":   day.Format("2006-01-02"),
		"races": len(races),
		"armed": armed,
	}).Info("Day plan scheduled")

	return nil
}

// armPhase installs a one-shot timer for a phase run. Caller holds s.mu.
func (s *Scheduler) armPhase(ref pipeline.RaceRef, phase models.Phase, at time.Time) {
	delay := time.Until(at)
	if delay < 0 {
		s.logger.WithFields(logrus.Fields{
			"race_id": ref.RaceID,
			"phase":   phase,
		}).Warn("Phase window already past, skipping")
		return
	}

	timer := time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.phaseTimeout)
		defer cancel()
		s.runPhase(ctx, phase, ref)
	})
	s.timers = append(s.timers, timer)
}

func (s *Scheduler) runPhase(ctx context.Context, phase models.Phase, ref pipeline.RaceRef) {
	log := s.logger.WithFields(logrus.Fields{
		"meeting_id": ref.MeetingID,
		"race_id":    ref.RaceID,
		"phase":      phase,
	})
	log.Info("Running scheduled phase")

	decision, err := s.runner.Run(ctx, phase, ref)
	if err != nil {
		log.WithError(err).Error("Phase run failed")
		return
	}
	log.WithFields(logrus.Fields{
		"decision_id": decision.ID,
		"abstain":     decision.Abstain,
		"tickets":     len(decision.Tickets),
	}).Info("Phase run completed")
}

// sweepResults runs the RESULT phase for every race of the day whose start
// time is far enough in the past that an official result can exist.
func (s *Scheduler) sweepResults(ctx context.Context, now time.Time) error {
	races, err := s.planner.FetchDayPlan(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to fetch day plan for sweep: %w", err)
	}

	for _, race := range races {
		if now.Sub(race.StartAt) < 10*time.Minute {
			continue
		}

		s.mu.Lock()
		done := s.swept[race.RaceID]
		s.mu.Unlock()
		if done {
			continue
		}

		ref := pipeline.RaceRef{MeetingID: race.MeetingID, RaceID: race.RaceID}
		if _, err := s.runner.Run(ctx, models.PhaseResult, ref); err != nil {
			s.logger.WithError(err).WithField("race_id", race.RaceID).Warn("Result sweep run failed")
			continue
		}

		s.mu.Lock()
		s.swept[race.RaceID] = true
		s.mu.Unlock()
	}

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop gracefully stops the cron loop and cancels armed phase timers
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = nil

	<-s.cron.Stop().Done()
	s.isRunning = false
	s.logger.Info("Scheduler stopped")

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled cron run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return time.Time{}
	}

	next := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() && (next.IsZero() || entry.Next.Before(next)) {
			next = entry.Next
		}
	}
	return next
}
