package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePhase(t *testing.T) {
	tests := []struct {
		input   string
		want    Phase
		wantErr bool
	}{
		{"H30", PhaseH30, false},
		{"h30", PhaseH30, false},
		{"H5", PhaseH5, false},
		{"RESULT", PhaseResult, false},
		{"result", PhaseResult, false},
		{"H7", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePhase(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownPhase)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPhaseProducesTickets(t *testing.T) {
	assert.False(t, PhaseH30.ProducesTickets())
	assert.True(t, PhaseH5.ProducesTickets())
	assert.False(t, PhaseResult.ProducesTickets())
}

func TestNewDecisionIDDeterministic(t *testing.T) {
	day := time.Date(2026, 6, 15, 14, 25, 0, 0, time.UTC)

	a := NewDecisionID("M1", "R1", day, PhaseH5)
	b := NewDecisionID("M1", "R1", day, PhaseH5)
	assert.Equal(t, a, b)

	// Any time within the same UTC day keys the same artifact.
	assert.Equal(t, a, NewDecisionID("M1", "R1", day.Add(3*time.Hour), PhaseH5))

	assert.NotEqual(t, a, NewDecisionID("M1", "R1", day, PhaseH30))
	assert.NotEqual(t, a, NewDecisionID("M1", "R2", day, PhaseH5))
}

func TestNewDecisionIDScopedByMeetingAndDay(t *testing.T) {
	day := time.Date(2026, 6, 15, 14, 25, 0, 0, time.UTC)
	a := NewDecisionID("M1", "R1C3", day, PhaseH5)

	// The same race label the next day, or at another meeting, is a
	// different artifact.
	assert.NotEqual(t, a, NewDecisionID("M1", "R1C3", day.AddDate(0, 0, 1), PhaseH5))
	assert.NotEqual(t, a, NewDecisionID("M2", "R1C3", day, PhaseH5))
}

func TestDecisionHasBet(t *testing.T) {
	d := &Decision{Abstain: true}
	assert.False(t, d.HasBet())

	d = &Decision{Tickets: []Ticket{{Kind: BetKindSP, Stake: 2.0}}}
	assert.True(t, d.HasBet())

	d = &Decision{}
	assert.False(t, d.HasBet())
}

func TestRoundRatio(t *testing.T) {
	assert.Equal(t, 0.27, RoundRatio(0.26710))
	assert.Equal(t, -0.12, RoundRatio(-0.1249))
	assert.Equal(t, 1.0, RoundRatio(0.999))
}

func TestResultPlaced(t *testing.T) {
	r := &RaceResult{Arrival: []string{"r1", "r2", "r3", "r4"}}

	assert.Equal(t, "r1", r.Winner())
	assert.True(t, r.Placed("r2", 3))
	assert.False(t, r.Placed("r4", 3))
	assert.False(t, r.Placed("r3", 2))
	// Zero positions falls back to the top three convention.
	assert.True(t, r.Placed("r3", 0))

	empty := &RaceResult{}
	assert.Empty(t, empty.Winner())
	assert.False(t, empty.Placed("r1", 3))
}
