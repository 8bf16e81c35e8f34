package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/turfpilot/internal/database"
)

// PostgresTrackingRepository implements TrackingRepository for PostgreSQL
type PostgresTrackingRepository struct {
	db *database.DB
}

// NewPostgresTrackingRepository creates a new tracking repository
func NewPostgresTrackingRepository(db *database.DB) TrackingRepository {
	return &PostgresTrackingRepository{db: db}
}

// RecordSettlement inserts a reconciled ticket outcome
func (r *PostgresTrackingRepository) RecordSettlement(ctx context.Context, settlement *Settlement) error {
	query := `
		INSERT INTO settlements (race_id, kind, stake, profit_loss, roi, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (race_id, kind) DO UPDATE SET
			stake = EXCLUDED.stake,
			profit_loss = EXCLUDED.profit_loss,
			roi = EXCLUDED.roi,
			settled_at = EXCLUDED.settled_at
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		settlement.RaceID, settlement.Kind, settlement.Stake,
		settlement.ProfitLoss, settlement.ROI, settlement.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record settlement: %w", err)
	}

	return nil
}

// GetDailyProfitLoss sums realized profit and loss for the given day
func (r *PostgresTrackingRepository) GetDailyProfitLoss(ctx context.Context, day time.Time) (float64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	query := `
		SELECT COALESCE(SUM(profit_loss), 0)
		FROM settlements
		WHERE settled_at >= $1 AND settled_at < $2
	`

	var total float64
	if err := r.db.GetPool().QueryRow(ctx, query, start, end).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum daily profit loss: %w", err)
	}

	return total, nil
}
