package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/turfpilot/internal/config"
	"github.com/yourusername/turfpilot/internal/estimator"
	"github.com/yourusername/turfpilot/internal/metrics"
	"github.com/yourusername/turfpilot/internal/models"
)

type calibrationPayload struct {
	RaceID             string             `json:"race_id"`
	CalibratedAt       time.Time          `json:"calibrated_at"`
	WinProbabilities   map[string]float64 `json:"win_probabilities"`
	PlaceProbabilities map[string]float64 `json:"place_probabilities"`
	Dividends          []dividendPayload  `json:"dividends"`
}

type dividendPayload struct {
	Runners      []string `json:"runners"`
	Expected     float64  `json:"expected"`
	Conservative float64  `json:"conservative"`
}

// CalibrationClient fetches calibrated probabilities and combination payout
// quotes from the calibration service, with a TTL cache in front so repeated
// phase runs for the same race do not hammer the provider.
type CalibrationClient struct {
	baseURL string
	apiKey  string
	http    *RateLimitedHTTPClient
	cache   *gocache.Cache
	logger  *logrus.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCalibrationClient creates a calibration client from configuration
func NewCalibrationClient(cfg *config.ProviderConfig, logger *logrus.Logger) *CalibrationClient {
	httpCfg := DefaultHTTPClientConfig()
	httpCfg.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	httpCfg.MaxRetries = cfg.RetryAttempts
	httpCfg.RateLimit = cfg.RateLimitPerSecond

	ttl := time.Duration(cfg.CalibrationTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &CalibrationClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    NewRateLimitedHTTPClient(httpCfg, logger),
		cache:   gocache.New(ttl, 2*ttl),
		logger:  logger,
	}
}

// FetchCalibration returns calibrated win and place probabilities for a race
func (c *CalibrationClient) FetchCalibration(ctx context.Context, raceID string) (*models.Calibration, error) {
	payload, err := c.fetch(ctx, raceID)
	if err != nil {
		return nil, err
	}

	return &models.Calibration{
		RaceID:             payload.RaceID,
		CalibratedAt:       payload.CalibratedAt,
		WinProbabilities:   payload.WinProbabilities,
		PlaceProbabilities: payload.PlaceProbabilities,
	}, nil
}

// PayoutModel returns the combination dividend model quoted for a race
func (c *CalibrationClient) PayoutModel(ctx context.Context, raceID string) (estimator.PayoutModel, error) {
	payload, err := c.fetch(ctx, raceID)
	if err != nil {
		return nil, err
	}

	model := &quotedPayoutModel{
		expected:     make(map[string]float64, len(payload.Dividends)),
		conservative: make(map[string]float64, len(payload.Dividends)),
	}
	for _, d := range payload.Dividends {
		key := basketKey(d.Runners)
		model.expected[key] = d.Expected
		model.conservative[key] = d.Conservative
	}
	return model, nil
}

func (c *CalibrationClient) fetch(ctx context.Context, raceID string) (*calibrationPayload, error) {
	if cached, found := c.cache.Get(raceID); found {
		c.hits.Add(1)
		c.publishHitRatio()
		return cached.(*calibrationPayload), nil
	}
	c.misses.Add(1)
	c.publishHitRatio()

	url := fmt.Sprintf("%s/races/%s/calibration", c.baseURL, raceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	metrics.ProviderLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: no calibration published for race %s", models.ErrDataUnavailable, raceID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: calibration service returned status %d", models.ErrDataUnavailable, resp.StatusCode)
	}

	var payload calibrationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: malformed calibration payload: %v", models.ErrDataUnavailable, err)
	}
	if len(payload.WinProbabilities) == 0 {
		return nil, fmt.Errorf("%w: calibration for race %s carries no win probabilities", models.ErrDataUnavailable, raceID)
	}

	c.cache.SetDefault(raceID, &payload)
	return &payload, nil
}

func (c *CalibrationClient) publishHitRatio() {
	hits := float64(c.hits.Load())
	total := hits + float64(c.misses.Load())
	if total > 0 {
		metrics.CalibrationCacheHitRatio.Set(hits / total)
	}
}

// quotedPayoutModel serves dividend quotes keyed by the sorted runner basket.
// A basket the provider never quoted is an estimation failure, not a zero.
type quotedPayoutModel struct {
	expected     map[string]float64
	conservative map[string]float64
}

func (m *quotedPayoutModel) ExpectedDividend(runnerIDs []string) (float64, error) {
	return m.lookup(m.expected, runnerIDs)
}

func (m *quotedPayoutModel) ConservativeDividend(runnerIDs []string) (float64, error) {
	return m.lookup(m.conservative, runnerIDs)
}

func (m *quotedPayoutModel) lookup(table map[string]float64, runnerIDs []string) (float64, error) {
	dividend, ok := table[basketKey(runnerIDs)]
	if !ok {
		return 0, fmt.Errorf("%w: no dividend quoted for basket %s", models.ErrEstimation, basketKey(runnerIDs))
	}
	return dividend, nil
}

func basketKey(runnerIDs []string) string {
	ids := make([]string, len(runnerIDs))
	copy(ids, runnerIDs)
	sort.Strings(ids)
	return strings.Join(ids, "-")
}
