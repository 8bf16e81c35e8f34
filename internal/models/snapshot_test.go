package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSnapshot() *RaceSnapshot {
	return &RaceSnapshot{
		MeetingID:  "M1",
		RaceID:     "R1",
		Phase:      PhaseH5,
		CapturedAt: time.Now(),
		Runners: []Runner{
			{ID: "r1", Number: 1, WinOdds: 2.0},
			{ID: "r2", Number: 2, WinOdds: 4.0},
			{ID: "r3", Number: 3, WinOdds: 8.0},
		},
	}
}

func TestSnapshotValidate(t *testing.T) {
	t.Run("valid snapshot", func(t *testing.T) {
		assert.NoError(t, validSnapshot().Validate())
	})

	t.Run("unknown phase", func(t *testing.T) {
		s := validSnapshot()
		s.Phase = Phase("H7")
		assert.ErrorIs(t, s.Validate(), ErrUnknownPhase)
	})

	t.Run("duplicate runner id", func(t *testing.T) {
		s := validSnapshot()
		s.Runners[1].ID = "r1"
		assert.ErrorIs(t, s.Validate(), ErrDuplicateKey)
	})

	t.Run("missing capture time", func(t *testing.T) {
		s := validSnapshot()
		s.CapturedAt = time.Time{}
		assert.ErrorIs(t, s.Validate(), ErrDataUnavailable)
	})

	t.Run("fewer than two active runners", func(t *testing.T) {
		s := validSnapshot()
		s.Runners[0].Scratched = true
		s.Runners[1].Scratched = true
		assert.ErrorIs(t, s.Validate(), ErrDataUnavailable)
	})
}

func TestSnapshotOverround(t *testing.T) {
	s := validSnapshot()
	// 1/2 + 1/4 + 1/8
	assert.InDelta(t, 0.875, s.Overround(), 1e-9)

	s.Runners[0].Scratched = true
	assert.InDelta(t, 0.375, s.Overround(), 1e-9)
}

func TestSnapshotRunnerByID(t *testing.T) {
	s := validSnapshot()

	runner, ok := s.RunnerByID("r2")
	require.True(t, ok)
	assert.Equal(t, 2, runner.Number)

	s.Runners[1].Scratched = true
	_, ok = s.RunnerByID("r2")
	assert.False(t, ok, "scratched runners are not addressable")

	_, ok = s.RunnerByID("zz")
	assert.False(t, ok)
}

func TestEnrichmentComplete(t *testing.T) {
	var nilEnrichment *Enrichment
	assert.False(t, nilEnrichment.Complete())

	partial := &Enrichment{JockeyStats: true, TrainerStats: true}
	assert.False(t, partial.Complete())

	full := &Enrichment{JockeyStats: true, TrainerStats: true, Chrono: true}
	assert.True(t, full.Complete())
}

func TestIsHandicap(t *testing.T) {
	s := validSnapshot()
	assert.False(t, s.IsHandicap())

	s.RaceType = "HANDICAP"
	assert.True(t, s.IsHandicap())
}
