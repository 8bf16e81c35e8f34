// Package repository provides PostgreSQL persistence for decision artifacts,
// preliminary snapshots, official results and post-race tracking.
package repository

import (
	"context"
	"time"

	"github.com/yourusername/turfpilot/internal/models"
)

// DecisionRepository defines the interface for decision artifact access
type DecisionRepository interface {
	Upsert(ctx context.Context, decision *models.Decision) error
	GetByRaceAndPhase(ctx context.Context, meetingID, raceID string, phase models.Phase, day time.Time) (*models.Decision, error)
	GetByDate(ctx context.Context, day time.Time) ([]*models.Decision, error)
}

// SnapshotRepository defines the interface for preliminary snapshot storage
type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *models.RaceSnapshot) error
	GetLatest(ctx context.Context, raceID string, phase models.Phase) (*models.RaceSnapshot, error)
}

// ResultRepository defines the interface for official result storage
type ResultRepository interface {
	Upsert(ctx context.Context, result *models.RaceResult) error
	GetByRaceID(ctx context.Context, raceID string) (*models.RaceResult, error)
}

// TrackingRepository defines the interface for realized performance rows
type TrackingRepository interface {
	RecordSettlement(ctx context.Context, settlement *Settlement) error
	GetDailyProfitLoss(ctx context.Context, day time.Time) (float64, error)
}

// Settlement is one reconciled ticket outcome
type Settlement struct {
	RaceID     string
	Kind       models.BetKind
	Stake      float64
	ProfitLoss float64
	ROI        float64
	SettledAt  time.Time
}
