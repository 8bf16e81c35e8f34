package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/turfpilot/internal/database"
	"github.com/yourusername/turfpilot/internal/models"
)

// PostgresDecisionRepository implements DecisionRepository for PostgreSQL.
// Decisions are keyed by their deterministic id, so a retried phase
// invocation overwrites its own artifact instead of duplicating it.
type PostgresDecisionRepository struct {
	db *database.DB
}

// NewPostgresDecisionRepository creates a new decision repository
func NewPostgresDecisionRepository(db *database.DB) DecisionRepository {
	return &PostgresDecisionRepository{db: db}
}

// Upsert inserts or replaces a decision artifact
func (r *PostgresDecisionRepository) Upsert(ctx context.Context, decision *models.Decision) error {
	tickets, err := json.Marshal(decision.Tickets)
	if err != nil {
		return fmt.Errorf("failed to marshal tickets: %w", err)
	}
	verdicts, err := json.Marshal(decision.Verdicts)
	if err != nil {
		return fmt.Errorf("failed to marshal verdicts: %w", err)
	}

	query := `
		INSERT INTO decisions (id, phase, meeting_id, race_id, abstain, tickets, reason_code,
		                       message, ev_global, overround, verdicts, captured_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			abstain = EXCLUDED.abstain,
			tickets = EXCLUDED.tickets,
			reason_code = EXCLUDED.reason_code,
			message = EXCLUDED.message,
			ev_global = EXCLUDED.ev_global,
			overround = EXCLUDED.overround,
			verdicts = EXCLUDED.verdicts,
			captured_at = EXCLUDED.captured_at,
			decided_at = EXCLUDED.decided_at
	`

	_, err = r.db.GetPool().Exec(ctx, query,
		decision.ID, decision.Phase, decision.MeetingID, decision.RaceID, decision.Abstain,
		tickets, decision.ReasonCode, decision.Message, decision.EVGlobal, decision.Overround,
		verdicts, decision.CapturedAt, decision.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert decision: %w", err)
	}

	return nil
}

// GetByRaceAndPhase retrieves the decision for a meeting, race, phase and
// calendar day. Race labels recur daily, so the lookup is day-scoped to never
// resolve a past meeting's artifact.
func (r *PostgresDecisionRepository) GetByRaceAndPhase(ctx context.Context, meetingID, raceID string, phase models.Phase, day time.Time) (*models.Decision, error) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	query := `
		SELECT id, phase, meeting_id, race_id, abstain, tickets, reason_code, message,
		       ev_global, overround, verdicts, captured_at, decided_at
		FROM decisions
		WHERE meeting_id = $1 AND race_id = $2 AND phase = $3
		  AND decided_at >= $4 AND decided_at < $5
	`

	return r.scanDecision(r.db.GetPool().QueryRow(ctx, query, meetingID, raceID, phase, start, end))
}

// GetByDate retrieves every decision captured on the given day
func (r *PostgresDecisionRepository) GetByDate(ctx context.Context, day time.Time) ([]*models.Decision, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	query := `
		SELECT id, phase, meeting_id, race_id, abstain, tickets, reason_code, message,
		       ev_global, overround, verdicts, captured_at, decided_at
		FROM decisions
		WHERE decided_at >= $1 AND decided_at < $2
		ORDER BY decided_at
	`

	rows, err := r.db.GetPool().Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions by date: %w", err)
	}
	defer rows.Close()

	var decisions []*models.Decision
	for rows.Next() {
		decision, err := r.scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, decision)
	}

	return decisions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresDecisionRepository) scanDecision(row rowScanner) (*models.Decision, error) {
	decision := &models.Decision{}
	var tickets, verdicts []byte

	err := row.Scan(
		&decision.ID, &decision.Phase, &decision.MeetingID, &decision.RaceID, &decision.Abstain,
		&tickets, &decision.ReasonCode, &decision.Message, &decision.EVGlobal, &decision.Overround,
		&verdicts, &decision.CapturedAt, &decision.DecidedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan decision: %w", err)
	}

	if err := json.Unmarshal(tickets, &decision.Tickets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tickets: %w", err)
	}
	if len(verdicts) > 0 {
		if err := json.Unmarshal(verdicts, &decision.Verdicts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal verdicts: %w", err)
		}
	}

	return decision, nil
}
