package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/turfpilot/internal/models"
	"github.com/yourusername/turfpilot/internal/pipeline"
	"github.com/yourusername/turfpilot/internal/repository"
)

type MockDecisionRepository struct {
	mock.Mock
}

func (m *MockDecisionRepository) Upsert(ctx context.Context, decision *models.Decision) error {
	args := m.Called(ctx, decision)
	return args.Error(0)
}

func (m *MockDecisionRepository) GetByRaceAndPhase(ctx context.Context, meetingID, raceID string, phase models.Phase, day time.Time) (*models.Decision, error) {
	args := m.Called(ctx, meetingID, raceID, phase, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Decision), args.Error(1)
}

func (m *MockDecisionRepository) GetByDate(ctx context.Context, day time.Time) ([]*models.Decision, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Decision), args.Error(1)
}

type MockResultRepository struct {
	mock.Mock
}

func (m *MockResultRepository) Upsert(ctx context.Context, result *models.RaceResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockResultRepository) GetByRaceID(ctx context.Context, raceID string) (*models.RaceResult, error) {
	args := m.Called(ctx, raceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RaceResult), args.Error(1)
}

type MockTrackingRepository struct {
	mock.Mock
}

func (m *MockTrackingRepository) RecordSettlement(ctx context.Context, settlement *repository.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

func (m *MockTrackingRepository) GetDailyProfitLoss(ctx context.Context, day time.Time) (float64, error) {
	args := m.Called(ctx, day)
	return args.Get(0).(float64), args.Error(1)
}

func testResult() *models.RaceResult {
	return &models.RaceResult{
		MeetingID:   "M1",
		RaceID:      "R1",
		Arrival:     []string{"r1", "r2", "r3", "r4"},
		WinDividend: 3.4,
		Dividends:   map[string]float64{"r1-r2": 14.2},
		OfficialAt:  time.Date(2026, 6, 15, 14, 20, 0, 0, time.UTC),
	}
}

func TestSettleTicket(t *testing.T) {
	result := testResult()

	tests := []struct {
		name   string
		ticket models.Ticket
		want   float64
	}{
		{
			name: "sp winner paid at official dividend",
			ticket: models.Ticket{
				Kind: models.BetKindSP, Stake: 10.0, Runners: []string{"r1"},
				Estimate: models.Estimate{Odds: 3.2},
			},
			want: 10.0 * (3.4 - 1),
		},
		{
			name: "sp loser forfeits stake",
			ticket: models.Ticket{
				Kind: models.BetKindSP, Stake: 10.0, Runners: []string{"r2"},
				Estimate: models.Estimate{Odds: 4.5},
			},
			want: -10.0,
		},
		{
			name: "combo with both legs placed paid at basket dividend",
			ticket: models.Ticket{
				Kind: models.BetKindCombo, Stake: 4.0, Runners: []string{"r2", "r1"},
				Estimate: models.Estimate{ExpectedPayout: 10.5},
			},
			want: 4.0 * (14.2 - 1),
		},
		{
			name: "combo missing dividend falls back to projected payout",
			ticket: models.Ticket{
				Kind: models.BetKindCombo, Stake: 4.0, Runners: []string{"r1", "r2", "r3"},
				Estimate: models.Estimate{ExpectedPayout: 10.5},
			},
			want: 4.0 * (10.5 - 1),
		},
		{
			name: "combo with a leg outside the window forfeits stake",
			ticket: models.Ticket{
				Kind: models.BetKindCombo, Stake: 4.0, Runners: []string{"r1", "r4"},
				Estimate: models.Estimate{ExpectedPayout: 10.5},
			},
			want: -4.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, settleTicket(&tt.ticket, result), 1e-9)
		})
	}
}

func TestSettleTicketDividendFallback(t *testing.T) {
	result := testResult()
	result.WinDividend = 0

	ticket := models.Ticket{
		Kind: models.BetKindSP, Stake: 10.0, Runners: []string{"r1"},
		Estimate: models.Estimate{Odds: 3.2},
	}
	assert.InDelta(t, 10.0*(3.2-1), settleTicket(&ticket, result), 1e-9)
}

func TestBasketKeySortsRunners(t *testing.T) {
	assert.Equal(t, "r1-r2", basketKey([]string{"r2", "r1"}))
	assert.Equal(t, "r1-r2", basketKey([]string{"r1", "r2"}))
}

func TestReconcile(t *testing.T) {
	ref := pipeline.RaceRef{MeetingID: "M1", RaceID: "R1"}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	t.Run("settles every ticket of the H-5 decision", func(t *testing.T) {
		decisions := new(MockDecisionRepository)
		results := new(MockResultRepository)
		ledger := new(MockTrackingRepository)

		result := testResult()
		decision := &models.Decision{
			ID: models.NewDecisionID("M1", "R1", time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), models.PhaseH5), Phase: models.PhaseH5, RaceID: "R1",
			Tickets: []models.Ticket{
				{Kind: models.BetKindSP, Stake: 10.0, Runners: []string{"r1"}, Estimate: models.Estimate{Odds: 3.2}},
				{Kind: models.BetKindCombo, Stake: 4.0, Runners: []string{"r1", "r2"}, Estimate: models.Estimate{ExpectedPayout: 10.5}},
			},
		}

		results.On("Upsert", mock.Anything, result).Return(nil)
		decisions.On("GetByRaceAndPhase", mock.Anything, "M1", "R1", models.PhaseH5, result.OfficialAt).Return(decision, nil)
		ledger.On("RecordSettlement", mock.Anything, mock.MatchedBy(func(s *repository.Settlement) bool {
			return s.RaceID == "R1"
		})).Return(nil).Times(2)
		ledger.On("GetDailyProfitLoss", mock.Anything, result.OfficialAt).Return(67.8, nil)

		r := NewReconciler(decisions, results, ledger, log)
		err := r.Reconcile(context.Background(), ref, result)
		require.NoError(t, err)

		decisions.AssertExpectations(t)
		results.AssertExpectations(t)
		ledger.AssertExpectations(t)
	})

	t.Run("no H-5 decision is a clean skip", func(t *testing.T) {
		decisions := new(MockDecisionRepository)
		results := new(MockResultRepository)
		ledger := new(MockTrackingRepository)

		result := testResult()
		results.On("Upsert", mock.Anything, result).Return(nil)
		decisions.On("GetByRaceAndPhase", mock.Anything, "M1", "R1", models.PhaseH5, result.OfficialAt).Return(nil, models.ErrNotFound)

		r := NewReconciler(decisions, results, ledger, log)
		err := r.Reconcile(context.Background(), ref, result)
		require.NoError(t, err)
		ledger.AssertNotCalled(t, "RecordSettlement", mock.Anything, mock.Anything)
	})

	t.Run("abstained decision records nothing", func(t *testing.T) {
		decisions := new(MockDecisionRepository)
		results := new(MockResultRepository)
		ledger := new(MockTrackingRepository)

		result := testResult()
		abstained := &models.Decision{ID: models.NewDecisionID("M1", "R1", time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), models.PhaseH5), Phase: models.PhaseH5, RaceID: "R1", Abstain: true}
		results.On("Upsert", mock.Anything, result).Return(nil)
		decisions.On("GetByRaceAndPhase", mock.Anything, "M1", "R1", models.PhaseH5, result.OfficialAt).Return(abstained, nil)

		r := NewReconciler(decisions, results, ledger, log)
		err := r.Reconcile(context.Background(), ref, result)
		require.NoError(t, err)
		ledger.AssertNotCalled(t, "RecordSettlement", mock.Anything, mock.Anything)
	})
}
