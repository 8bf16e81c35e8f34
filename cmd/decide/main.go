// Package main provides a one-shot CLI that runs a single decision phase
// for a single race, useful for replaying a window by hand.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/turfpilot/internal/config"
	"github.com/yourusername/turfpilot/internal/database"
	"github.com/yourusername/turfpilot/internal/datasource"
	"github.com/yourusername/turfpilot/internal/estimator"
	"github.com/yourusername/turfpilot/internal/logger"
	"github.com/yourusername/turfpilot/internal/models"
	"github.com/yourusername/turfpilot/internal/pipeline"
	"github.com/yourusername/turfpilot/internal/repository"
	"github.com/yourusername/turfpilot/internal/tracking"
)

var (
	configFile string
	phaseArg   string
	meetingID  string
	raceID     string

	cfg    *config.Config
	appLog *logrus.Logger
	db     *database.DB
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.Flags().StringVar(&phaseArg, "phase", "", "Decision phase to run (H30, H5 or RESULT)")
	rootCmd.Flags().StringVar(&meetingID, "meeting", "", "Meeting identifier")
	rootCmd.Flags().StringVar(&raceID, "race", "", "Race identifier")
	rootCmd.MarkFlagRequired("phase")
	rootCmd.MarkFlagRequired("meeting")
	rootCmd.MarkFlagRequired("race")
}

var rootCmd = &cobra.Command{
	Use:   "decide",
	Short: "Run one decision phase for one race",
	Long:  `Runs a single H-30, H-5 or RESULT window for the given race and prints the persisted decision.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadWithDefaults(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		appLog = logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhase()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func runPhase() error {
	phase, err := models.ParsePhase(phaseArg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err = database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	sink := repository.NewSink(db)
	resultRepo := repository.NewPostgresResultRepository(db)
	trackingRepo := repository.NewPostgresTrackingRepository(db)

	provider := datasource.NewProviderClient(&cfg.Provider, appLog)
	calibration := datasource.NewCalibrationClient(&cfg.Provider, appLog)
	reconciler := tracking.NewReconciler(sink.Decisions(), resultRepo, trackingRepo, appLog)

	pipe, err := pipeline.New(pipeline.Options{
		Config:      &cfg.GPI,
		Estimator:   estimator.New(&cfg.GPI),
		Snapshots:   provider,
		Calibration: calibration,
		Results:     provider,
		Sink:        sink,
		Reconciler:  reconciler,
		Logger:      appLog,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	decision, err := pipe.Run(ctx, phase, pipeline.RaceRef{MeetingID: meetingID, RaceID: raceID})
	if err != nil {
		return fmt.Errorf("phase run failed: %w", err)
	}

	fmt.Printf("Decision %s (%s / %s)\n", decision.ID, decision.RaceID, decision.Phase)
	if decision.Abstain {
		fmt.Printf("  abstain: %s", decision.ReasonCode)
		if decision.Message != "" {
			fmt.Printf(" (%s)", decision.Message)
		}
		fmt.Println()
	}
	for _, ticket := range decision.Tickets {
		fmt.Printf("  ticket: %-5s stake=%.2f runners=%v ev=%.3f roi=%.3f\n",
			ticket.Kind, ticket.Stake, ticket.Runners, ticket.Estimate.EVRatio, ticket.Estimate.ROIRatio)
	}
	return nil
}
