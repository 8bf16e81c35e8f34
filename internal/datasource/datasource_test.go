package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/turfpilot/internal/config"
	"github.com/yourusername/turfpilot/internal/models"
	"github.com/yourusername/turfpilot/internal/pipeline"
)

func testProviderConfig(baseURL string) *config.ProviderConfig {
	return &config.ProviderConfig{
		BaseURL:               baseURL,
		APIKey:                "test-key",
		TimeoutSeconds:        5,
		RetryAttempts:         1,
		RateLimitPerSecond:    100.0,
		CalibrationTTLSeconds: 60,
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestFetchSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"meeting_id": "M1",
			"race_id": "R1",
			"race_type": "HANDICAP",
			"captured_at": "2026-06-15T13:55:00Z",
			"runners": [
				{"id": "r1", "number": 1, "name": "Alpha", "win_odds": "3.2", "place_odds": "1.7"},
				{"id": "r2", "number": 2, "name": "Beta", "win_odds": "4.5"},
				{"id": "r3", "number": 3, "name": "Gamma", "win_odds": "15.0", "scratched": true}
			],
			"enrichment": {"jockey_stats": true, "trainer_stats": true, "chrono": true}
		}`))
	}))
	defer server.Close()

	client := NewProviderClient(testProviderConfig(server.URL), quietLogger())
	ref := pipeline.RaceRef{MeetingID: "M1", RaceID: "R1"}

	snapshot, err := client.FetchSnapshot(context.Background(), ref, models.PhaseH5)
	require.NoError(t, err)

	assert.Equal(t, "M1", snapshot.MeetingID)
	assert.Equal(t, "R1", snapshot.RaceID)
	assert.Equal(t, models.PhaseH5, snapshot.Phase)
	assert.True(t, snapshot.IsHandicap())
	require.Len(t, snapshot.Runners, 3)

	assert.InDelta(t, 3.2, snapshot.Runners[0].WinOdds, 1e-9)
	require.NotNil(t, snapshot.Runners[0].PlaceOdds)
	assert.InDelta(t, 1.7, *snapshot.Runners[0].PlaceOdds, 1e-9)
	assert.Nil(t, snapshot.Runners[1].PlaceOdds)
	assert.True(t, snapshot.Runners[2].Scratched)
	assert.True(t, snapshot.Enrichment.Complete())
}

func TestFetchSnapshotRejectsMalformedOdds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"meeting_id": "M1", "race_id": "R1", "captured_at": "2026-06-15T13:55:00Z",
			"runners": [
				{"id": "r1", "number": 1, "win_odds": "3,2"},
				{"id": "r2", "number": 2, "win_odds": "4.5"}
			]
		}`))
	}))
	defer server.Close()

	client := NewProviderClient(testProviderConfig(server.URL), quietLogger())
	_, err := client.FetchSnapshot(context.Background(), pipeline.RaceRef{MeetingID: "M1", RaceID: "R1"}, models.PhaseH5)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
}

func TestFetchSnapshotProviderDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewProviderClient(testProviderConfig(server.URL), quietLogger())
	_, err := client.FetchSnapshot(context.Background(), pipeline.RaceRef{MeetingID: "M1", RaceID: "R1"}, models.PhaseH30)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
}

func TestFetchResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"meeting_id": "M1", "race_id": "R1",
			"arrival": ["r2", "r1", "r3"],
			"win_dividend": "4.6",
			"dividends": {"r1-r2": "14.2"},
			"official_at": "2026-06-15T14:20:00Z"
		}`))
	}))
	defer server.Close()

	client := NewProviderClient(testProviderConfig(server.URL), quietLogger())
	result, err := client.FetchResult(context.Background(), pipeline.RaceRef{MeetingID: "M1", RaceID: "R1"})
	require.NoError(t, err)

	assert.Equal(t, "r2", result.Winner())
	assert.InDelta(t, 4.6, result.WinDividend, 1e-9)
	assert.InDelta(t, 14.2, result.Dividends["r1-r2"], 1e-9)
}

func TestFetchDayPlan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-06-15", r.URL.Query().Get("day"))
		w.Write([]byte(`{
			"day": "2026-06-15",
			"races": [
				{"meeting_id": "M1", "race_id": "R1", "start_at": "2026-06-15T14:25:00Z"},
				{"meeting_id": "M1", "race_id": "R2", "start_at": "2026-06-15T15:00:00Z"},
				{"meeting_id": "M2", "race_id": "R9"}
			]
		}`))
	}))
	defer server.Close()

	client := NewProviderClient(testProviderConfig(server.URL), quietLogger())
	day := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)

	races, err := client.FetchDayPlan(context.Background(), day)
	require.NoError(t, err)

	// The entry without a start time is dropped.
	require.Len(t, races, 2)
	assert.Equal(t, "R1", races[0].RaceID)
	assert.Equal(t, "R2", races[1].RaceID)
}

func TestCalibrationClientCachesByRace(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{
			"race_id": "R1",
			"calibrated_at": "2026-06-15T13:50:00Z",
			"win_probabilities": {"r1": 0.38, "r2": 0.24},
			"place_probabilities": {"r1": 0.72},
			"dividends": [
				{"runners": ["r1", "r2"], "expected": 10.5, "conservative": 8.0}
			]
		}`))
	}))
	defer server.Close()

	client := NewCalibrationClient(testProviderConfig(server.URL), quietLogger())

	first, err := client.FetchCalibration(context.Background(), "R1")
	require.NoError(t, err)
	second, err := client.FetchCalibration(context.Background(), "R1")
	require.NoError(t, err)

	assert.Equal(t, first.WinProbabilities, second.WinProbabilities)
	assert.Equal(t, int64(1), hits.Load(), "second fetch must be served from cache")

	p, err := first.WinProbability("r1")
	require.NoError(t, err)
	assert.InDelta(t, 0.38, p, 1e-9)
}

func TestCalibrationPayoutModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"race_id": "R1",
			"calibrated_at": "2026-06-15T13:50:00Z",
			"win_probabilities": {"r1": 0.38},
			"dividends": [
				{"runners": ["r2", "r1"], "expected": 10.5, "conservative": 8.0}
			]
		}`))
	}))
	defer server.Close()

	client := NewCalibrationClient(testProviderConfig(server.URL), quietLogger())
	model, err := client.PayoutModel(context.Background(), "R1")
	require.NoError(t, err)

	// Quote lookup is order-insensitive.
	expected, err := model.ExpectedDividend([]string{"r1", "r2"})
	require.NoError(t, err)
	assert.InDelta(t, 10.5, expected, 1e-9)

	conservative, err := model.ConservativeDividend([]string{"r2", "r1"})
	require.NoError(t, err)
	assert.InDelta(t, 8.0, conservative, 1e-9)

	_, err = model.ExpectedDividend([]string{"r1", "r3"})
	assert.ErrorIs(t, err, models.ErrEstimation)
}

func TestCalibrationMissingProbabilitiesFailsClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"race_id": "R1", "calibrated_at": "2026-06-15T13:50:00Z", "win_probabilities": {}}`))
	}))
	defer server.Close()

	client := NewCalibrationClient(testProviderConfig(server.URL), quietLogger())
	_, err := client.FetchCalibration(context.Background(), "R1")
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultHTTPClientConfig()
	cfg.MaxRetries = 0
	cfg.RateLimit = 1000
	cfg.CircuitBreakerMax = 2
	client := NewRateLimitedHTTPClient(cfg, quietLogger())

	for i := 0; i < 2; i++ {
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		_, err = client.Do(context.Background(), req)
		require.Error(t, err)
	}

	require.True(t, client.IsOpen())

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	_, err = client.Do(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")

	client.Reset()
	assert.False(t, client.IsOpen())
}
