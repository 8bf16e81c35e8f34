package guardrail

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/turfpilot/internal/models"
)

func testPolicy() Policy {
	return Policy{
		FreshnessMaxAge:          420 * time.Second,
		OverroundCeiling:         1.30,
		OverroundCeilingHandicap: 1.25,
		HandicapStartersMin:      14,
		EVMinSP:                  0.15,
		ROIMinSP:                 0.10,
		SPMaxProbability:         0.60,
		EVMinCombo:               0.40,
		ROIMinCombo:              0.20,
		MinComboPayout:           10.0,
		EVMinGlobal:              0.35,
	}
}

func snapshotWithOdds(odds ...float64) *models.RaceSnapshot {
	s := &models.RaceSnapshot{
		MeetingID:  "M1",
		RaceID:     "R1",
		Phase:      models.PhaseH5,
		RaceType:   "FLAT",
		CapturedAt: time.Now(),
	}
	for i, o := range odds {
		s.Runners = append(s.Runners, models.Runner{
			ID:      string(rune('a' + i)),
			Number:  i + 1,
			WinOdds: o,
		})
	}
	return s
}

func spEst(ev, roi, prob float64) *models.Estimate {
	return &models.Estimate{
		Kind:           models.BetKindSP,
		EVRatio:        ev,
		ROIRatio:       roi,
		Probability:    prob,
		ExpectedPayout: prob * 5.0,
		Odds:           5.0,
		Runners:        []string{"a"},
	}
}

func comboEst(ev, roi, payout float64) *models.Estimate {
	return &models.Estimate{
		Kind:           models.BetKindCombo,
		EVRatio:        ev,
		ROIRatio:       roi,
		Probability:    0.05,
		ExpectedPayout: payout,
		Odds:           24.0,
		Runners:        []string{"a", "b"},
	}
}

func TestCheckFreshness(t *testing.T) {
	now := time.Date(2026, 6, 15, 14, 0, 0, 0, time.UTC)
	maxAge := 420 * time.Second

	tests := []struct {
		name         string
		capturedAt   time.Time
		calibratedAt time.Time
		withCalib    bool
		wantPass     bool
	}{
		{
			name:       "fresh snapshot without calibration",
			capturedAt: now.Add(-time.Minute),
			wantPass:   true,
		},
		{
			name:       "snapshot just inside window",
			capturedAt: now.Add(-419 * time.Second),
			wantPass:   true,
		},
		{
			name:       "snapshot beyond window",
			capturedAt: now.Add(-421 * time.Second),
			wantPass:   false,
		},
		{
			name:       "snapshot missing capture time",
			capturedAt: time.Time{},
			wantPass:   false,
		},
		{
			name:         "stale calibration fails even with fresh snapshot",
			capturedAt:   now.Add(-time.Minute),
			withCalib:    true,
			calibratedAt: now.Add(-10 * time.Minute),
			wantPass:     false,
		},
		{
			name:         "fresh snapshot and calibration",
			capturedAt:   now.Add(-time.Minute),
			withCalib:    true,
			calibratedAt: now.Add(-2 * time.Minute),
			wantPass:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := snapshotWithOdds(2.0, 4.0, 8.0)
			snapshot.CapturedAt = tt.capturedAt

			var calibration *models.Calibration
			if tt.withCalib {
				calibration = &models.Calibration{RaceID: "R1", CalibratedAt: tt.calibratedAt}
			}

			verdict := CheckFreshness(snapshot, calibration, now, maxAge)
			assert.Equal(t, tt.wantPass, verdict.Passed)
			if !tt.wantPass {
				require.NotEmpty(t, verdict.Reasons)
				assert.Contains(t, verdict.Reasons[0], "stale input")
			}
		})
	}
}

func TestCheckOverround(t *testing.T) {
	p := testPolicy()

	t.Run("market inside ceiling passes", func(t *testing.T) {
		// Implied sum = 1/2 + 1/4 + 1/8 = 0.875
		snapshot := snapshotWithOdds(2.0, 4.0, 8.0)
		assert.True(t, CheckOverround(snapshot, p).Passed)
	})

	t.Run("market above ceiling rejects", func(t *testing.T) {
		// Implied sum = 4 * 1/2 = 2.0
		snapshot := snapshotWithOdds(2.0, 2.0, 2.0, 2.0)
		verdict := CheckOverround(snapshot, p)
		assert.False(t, verdict.Passed)
		assert.Contains(t, verdict.Reasons[0], "overround")
	})

	t.Run("scratched runners excluded from margin", func(t *testing.T) {
		snapshot := snapshotWithOdds(2.0, 2.0, 2.0, 2.0)
		snapshot.Runners[2].Scratched = true
		snapshot.Runners[3].Scratched = true
		assert.True(t, CheckOverround(snapshot, p).Passed)
	})
}

func TestOverroundCeilingFor(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name     string
		raceType string
		starters int
		want     float64
	}{
		{"flat race uses standard ceiling", "FLAT", 16, 1.30},
		{"small handicap uses standard ceiling", "HANDICAP", 13, 1.30},
		{"large handicap uses strict ceiling", "HANDICAP", 14, 1.25},
		{"very large handicap uses strict ceiling", "HANDICAP", 20, 1.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			odds := make([]float64, tt.starters)
			for i := range odds {
				odds[i] = 20.0
			}
			snapshot := snapshotWithOdds(odds...)
			snapshot.RaceType = tt.raceType
			assert.Equal(t, tt.want, p.OverroundCeilingFor(snapshot))
		})
	}
}

func TestCheckSP(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name     string
		est      *models.Estimate
		wantPass bool
		reason   string
	}{
		{
			name:     "all thresholds met",
			est:      spEst(0.20, 0.12, 0.30),
			wantPass: true,
		},
		{
			name:     "ev below minimum",
			est:      spEst(0.10, 0.12, 0.30),
			wantPass: false,
			reason:   "sp ev",
		},
		{
			name:     "roi below minimum",
			est:      spEst(0.20, 0.05, 0.30),
			wantPass: false,
			reason:   "sp roi",
		},
		{
			name:     "probability above cap",
			est:      spEst(0.20, 0.12, 0.65),
			wantPass: false,
			reason:   "sp probability",
		},
		{
			name:     "missing roi fails closed",
			est:      spEst(0.50, math.NaN(), 0.30),
			wantPass: false,
			reason:   "sp roi missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := CheckSP(tt.est, p)
			assert.Equal(t, tt.wantPass, verdict.Passed)
			if tt.reason != "" {
				require.NotEmpty(t, verdict.Reasons)
				assert.Contains(t, verdict.Reasons[0], tt.reason)
			}
		})
	}
}

func TestCheckSPAccumulatesAllReasons(t *testing.T) {
	p := testPolicy()

	verdict := CheckSP(spEst(0.01, 0.01, 0.80), p)
	require.False(t, verdict.Passed)
	assert.Len(t, verdict.Reasons, 3)
}

func TestCheckCombo(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name     string
		est      *models.Estimate
		wantPass bool
		reason   string
	}{
		{
			name:     "all thresholds met",
			est:      comboEst(0.50, 0.25, 15.0),
			wantPass: true,
		},
		{
			name:     "payout below minimum",
			est:      comboEst(0.50, 0.25, 8.0),
			wantPass: false,
			reason:   "combo payout",
		},
		{
			name:     "missing roi fails closed",
			est:      comboEst(0.50, math.NaN(), 15.0),
			wantPass: false,
			reason:   "combo roi missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := CheckCombo(tt.est, p)
			assert.Equal(t, tt.wantPass, verdict.Passed)
			if tt.reason != "" {
				require.NotEmpty(t, verdict.Reasons)
				assert.Contains(t, verdict.Reasons[0], tt.reason)
			}
		})
	}
}

func TestCheckGlobal(t *testing.T) {
	p := testPolicy()

	assert.True(t, CheckGlobal(0.40, p).Passed)
	assert.False(t, CheckGlobal(0.30, p).Passed)
	assert.False(t, CheckGlobal(math.NaN(), p).Passed)
}

func TestEVGlobal(t *testing.T) {
	t.Run("weighted by expected payout", func(t *testing.T) {
		sp := &models.Estimate{EVRatio: 0.20, ExpectedPayout: 2.0}
		combo := &models.Estimate{EVRatio: 0.50, ExpectedPayout: 18.0}

		got := EVGlobal([]*models.Estimate{sp, combo})
		want := (0.20*2.0 + 0.50*18.0) / 20.0
		assert.InDelta(t, want, got, 1e-9)
	})

	t.Run("no estimates yields NaN", func(t *testing.T) {
		assert.True(t, math.IsNaN(EVGlobal(nil)))
		assert.True(t, math.IsNaN(EVGlobal([]*models.Estimate{nil})))
	})
}

func TestEvaluateCascadeOrder(t *testing.T) {
	p := testPolicy()
	now := time.Date(2026, 6, 15, 14, 0, 0, 0, time.UTC)

	t.Run("stale input short-circuits before estimate checks", func(t *testing.T) {
		snapshot := snapshotWithOdds(2.0, 4.0, 8.0)
		snapshot.CapturedAt = now.Add(-time.Hour)

		verdict := Evaluate(snapshot, nil, spEst(-1, -1, 0.99), nil, p, now)
		require.False(t, verdict.Passed)
		require.Len(t, verdict.Reasons, 1)
		assert.Contains(t, verdict.Reasons[0], "stale input")
	})

	t.Run("overround short-circuits before estimate checks", func(t *testing.T) {
		snapshot := snapshotWithOdds(2.0, 2.0, 2.0, 2.0)
		snapshot.CapturedAt = now.Add(-time.Minute)

		verdict := Evaluate(snapshot, nil, spEst(-1, -1, 0.99), nil, p, now)
		require.False(t, verdict.Passed)
		require.Len(t, verdict.Reasons, 1)
		assert.Contains(t, verdict.Reasons[0], "overround")
	})

	t.Run("global gate only runs when combo proposed", func(t *testing.T) {
		snapshot := snapshotWithOdds(2.0, 4.0, 8.0)
		snapshot.CapturedAt = now.Add(-time.Minute)
		// EV below the global minimum but above the SP minimum.
		verdict := Evaluate(snapshot, nil, spEst(0.20, 0.12, 0.30), nil, p, now)
		assert.True(t, verdict.Passed)
	})

	t.Run("combo triggers global gate", func(t *testing.T) {
		snapshot := snapshotWithOdds(2.0, 4.0, 8.0)
		snapshot.CapturedAt = now.Add(-time.Minute)
		sp := spEst(0.16, 0.12, 0.30)
		sp.ExpectedPayout = 1.0
		combo := comboEst(0.41, 0.25, 15.0)

		verdict := Evaluate(snapshot, nil, sp, combo, p, now)
		// Weighted global EV = (0.16*1 + 0.41*15)/16 is above 0.35.
		assert.True(t, verdict.Passed)
	})
}
