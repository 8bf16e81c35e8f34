package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/turfpilot/internal/config"
	"github.com/yourusername/turfpilot/internal/metrics"
	"github.com/yourusername/turfpilot/internal/models"
	"github.com/yourusername/turfpilot/internal/pipeline"
)

// wire formats: the provider quotes odds as decimal strings, which are
// parsed exactly before conversion to float64.

type snapshotPayload struct {
	MeetingID  string             `json:"meeting_id"`
	RaceID     string             `json:"race_id"`
	RaceType   string             `json:"race_type"`
	CapturedAt time.Time          `json:"captured_at"`
	Runners    []runnerPayload    `json:"runners"`
	Enrichment *models.Enrichment `json:"enrichment"`
}

type runnerPayload struct {
	ID        string `json:"id"`
	Number    int    `json:"number"`
	Name      string `json:"name"`
	WinOdds   string `json:"win_odds"`
	PlaceOdds string `json:"place_odds"`
	Scratched bool   `json:"scratched"`
}

type resultPayload struct {
	MeetingID   string            `json:"meeting_id"`
	RaceID      string            `json:"race_id"`
	Arrival     []string          `json:"arrival"`
	WinDividend string            `json:"win_dividend"`
	Dividends   map[string]string `json:"dividends"`
	OfficialAt  time.Time         `json:"official_at"`
}

// ProviderClient fetches normalized snapshots and official results from the
// odds provider HTTP API. It implements pipeline.SnapshotSource and
// pipeline.ResultSource.
type ProviderClient struct {
	baseURL string
	apiKey  string
	http    *RateLimitedHTTPClient
	logger  *logrus.Logger
}

// NewProviderClient creates a provider client from configuration
func NewProviderClient(cfg *config.ProviderConfig, logger *logrus.Logger) *ProviderClient {
	httpCfg := DefaultHTTPClientConfig()
	httpCfg.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	httpCfg.MaxRetries = cfg.RetryAttempts
	httpCfg.RateLimit = cfg.RateLimitPerSecond

	return &ProviderClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    NewRateLimitedHTTPClient(httpCfg, logger),
		logger:  logger,
	}
}

// FetchSnapshot retrieves the current market snapshot for a race and phase
func (c *ProviderClient) FetchSnapshot(ctx context.Context, ref pipeline.RaceRef, phase models.Phase) (*models.RaceSnapshot, error) {
	url := fmt.Sprintf("%s/meetings/%s/races/%s/snapshot?phase=%s", c.baseURL, ref.MeetingID, ref.RaceID, phase)

	body, err := c.get(ctx, url)
	if err != nil {
		metrics.SnapshotFetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrDataUnavailable, err)
	}

	var payload snapshotPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.SnapshotFetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: malformed snapshot payload: %v", models.ErrDataUnavailable, err)
	}

	snapshot := &models.RaceSnapshot{
		MeetingID:  payload.MeetingID,
		RaceID:     payload.RaceID,
		Phase:      phase,
		RaceType:   payload.RaceType,
		CapturedAt: payload.CapturedAt,
		Enrichment: payload.Enrichment,
		Runners:    make([]models.Runner, 0, len(payload.Runners)),
	}

	for _, rp := range payload.Runners {
		runner := models.Runner{
			ID:        rp.ID,
			Number:    rp.Number,
			Name:      rp.Name,
			Scratched: rp.Scratched,
		}
		if rp.WinOdds != "" {
			odds, err := decimal.NewFromString(rp.WinOdds)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid win odds %q for runner %s", models.ErrDataUnavailable, rp.WinOdds, rp.ID)
			}
			runner.WinOdds, _ = odds.Float64()
		}
		if rp.PlaceOdds != "" {
			odds, err := decimal.NewFromString(rp.PlaceOdds)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid place odds %q for runner %s", models.ErrDataUnavailable, rp.PlaceOdds, rp.ID)
			}
			v, _ := odds.Float64()
			runner.PlaceOdds = &v
		}
		snapshot.Runners = append(snapshot.Runners, runner)
	}

	if err := snapshot.Validate(); err != nil {
		metrics.SnapshotFetchesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	metrics.SnapshotFetchesTotal.WithLabelValues("ok").Inc()
	return snapshot, nil
}

// FetchResult retrieves the official result for a race
func (c *ProviderClient) FetchResult(ctx context.Context, ref pipeline.RaceRef) (*models.RaceResult, error) {
	url := fmt.Sprintf("%s/meetings/%s/races/%s/result", c.baseURL, ref.MeetingID, ref.RaceID)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDataUnavailable, err)
	}

	var payload resultPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed result payload: %v", models.ErrDataUnavailable, err)
	}

	result := &models.RaceResult{
		MeetingID:  payload.MeetingID,
		RaceID:     payload.RaceID,
		Arrival:    payload.Arrival,
		OfficialAt: payload.OfficialAt,
		Dividends:  make(map[string]float64, len(payload.Dividends)),
	}
	if payload.WinDividend != "" {
		d, err := decimal.NewFromString(payload.WinDividend)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid win dividend %q", models.ErrDataUnavailable, payload.WinDividend)
		}
		result.WinDividend, _ = d.Float64()
	}
	for key, raw := range payload.Dividends {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid dividend %q for basket %s", models.ErrDataUnavailable, raw, key)
		}
		result.Dividends[key], _ = d.Float64()
	}

	return result, nil
}

func (c *ProviderClient) get(ctx context.Context, url string) ([]byte, error) {
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
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d for %s", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}
