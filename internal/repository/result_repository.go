package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/turfpilot/internal/database"
	"github.com/yourusername/turfpilot/internal/models"
)

// PostgresResultRepository implements ResultRepository for PostgreSQL
type PostgresResultRepository struct {
	db *database.DB
}

// NewPostgresResultRepository creates a new result repository
func NewPostgresResultRepository(db *database.DB) ResultRepository {
	return &PostgresResultRepository{db: db}
}

// Upsert inserts or replaces an official result
func (r *PostgresResultRepository) Upsert(ctx context.Context, result *models.RaceResult) error {
	arrival, err := json.Marshal(result.Arrival)
	if err != nil {
		return fmt.Errorf("failed to marshal arrival: %w", err)
	}
	dividends, err := json.Marshal(result.Dividends)
	if err != nil {
		return fmt.Errorf("failed to marshal dividends: %w", err)
	}

	query := `
		INSERT INTO results (meeting_id, race_id, arrival, win_dividend, dividends, official_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (race_id) DO UPDATE SET
			arrival = EXCLUDED.arrival,
			win_dividend = EXCLUDED.win_dividend,
			dividends = EXCLUDED.dividends,
			official_at = EXCLUDED.official_at
	`

	_, err = r.db.GetPool().Exec(ctx, query,
		result.MeetingID, result.RaceID, arrival, result.WinDividend, dividends, result.OfficialAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert result: %w", err)
	}

	return nil
}

// GetByRaceID retrieves the official result for a race
func (r *PostgresResultRepository) GetByRaceID(ctx context.Context, raceID string) (*models.RaceResult, error) {
	query := `
		SELECT meeting_id, race_id, arrival, win_dividend, dividends, official_at
		FROM results WHERE race_id = $1
	`

	result := &models.RaceResult{}
	var arrival, dividends []byte

	err := r.db.GetPool().QueryRow(ctx, query, raceID).Scan(
		&result.MeetingID, &result.RaceID, &arrival, &result.WinDividend, &dividends, &result.OfficialAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	if err := json.Unmarshal(arrival, &result.Arrival); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arrival: %w", err)
	}
	if len(dividends) > 0 && string(dividends) != "null" {
		if err := json.Unmarshal(dividends, &result.Dividends); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dividends: %w", err)
		}
	}

	return result, nil
}
