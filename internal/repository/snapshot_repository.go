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

// PostgresSnapshotRepository implements SnapshotRepository for PostgreSQL
type PostgresSnapshotRepository struct {
	db *database.DB
}

// NewPostgresSnapshotRepository creates a new snapshot repository
func NewPostgresSnapshotRepository(db *database.DB) SnapshotRepository {
	return &PostgresSnapshotRepository{db: db}
}

// Save persists a snapshot as a preliminary audit artifact
func (r *PostgresSnapshotRepository) Save(ctx context.Context, snapshot *models.RaceSnapshot) error {
	runners, err := json.Marshal(snapshot.Runners)
	if err != nil {
		return fmt.Errorf("failed to marshal runners: %w", err)
	}
	enrichment, err := json.Marshal(snapshot.Enrichment)
	if err != nil {
		return fmt.Errorf("failed to marshal enrichment: %w", err)
	}

	query := `
		INSERT INTO snapshots (meeting_id, race_id, phase, race_type, captured_at, overround, runners, enrichment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (race_id, phase, captured_at) DO NOTHING
	`

	_, err = r.db.GetPool().Exec(ctx, query,
		snapshot.MeetingID, snapshot.RaceID, snapshot.Phase, snapshot.RaceType,
		snapshot.CapturedAt, snapshot.Overround(), runners, enrichment,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// GetLatest retrieves the most recent snapshot for a race and phase
func (r *PostgresSnapshotRepository) GetLatest(ctx context.Context, raceID string, phase models.Phase) (*models.RaceSnapshot, error) {
	query := `
		SELECT meeting_id, race_id, phase, race_type, captured_at, runners, enrichment
		FROM snapshots
		WHERE race_id = $1 AND phase = $2
		ORDER BY captured_at DESC
		LIMIT 1
	`

	snapshot := &models.RaceSnapshot{}
	var runners, enrichment []byte

	err := r.db.GetPool().QueryRow(ctx, query, raceID, phase).Scan(
		&snapshot.MeetingID, &snapshot.RaceID, &snapshot.Phase, &snapshot.RaceType,
		&snapshot.CapturedAt, &runners, &enrichment,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if err := json.Unmarshal(runners, &snapshot.Runners); err != nil {
		return nil, fmt.Errorf("failed to unmarshal runners: %w", err)
	}
	if len(enrichment) > 0 && string(enrichment) != "null" {
		if err := json.Unmarshal(enrichment, &snapshot.Enrichment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal enrichment: %w", err)
		}
	}

	return snapshot, nil
}
