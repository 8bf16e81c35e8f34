package repository

import (
	"context"

	"github.com/yourusername/turfpilot/internal/database"
	"github.com/yourusername/turfpilot/internal/models"
)

// Sink bundles the decision and snapshot repositories behind the artifact
// sink surface the pipeline writes to.
type Sink struct {
	decisions DecisionRepository
	snapshots SnapshotRepository
}

// NewSink creates the artifact sink over PostgreSQL
func NewSink(db *database.DB) *Sink {
	return &Sink{
		decisions: NewPostgresDecisionRepository(db),
		snapshots: NewPostgresSnapshotRepository(db),
	}
}

// SaveDecision persists a complete decision artifact
func (s *Sink) SaveDecision(ctx context.Context, decision *models.Decision) error {
	return s.decisions.Upsert(ctx, decision)
}

// SaveSnapshot persists a preliminary snapshot artifact
func (s *Sink) SaveSnapshot(ctx context.Context, snapshot *models.RaceSnapshot) error {
	return s.snapshots.Save(ctx, snapshot)
}

// Decisions exposes the decision repository for tracking reads
func (s *Sink) Decisions() DecisionRepository {
	return s.decisions
}
