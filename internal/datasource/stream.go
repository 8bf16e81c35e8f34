package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/turfpilot/internal/config"
	"github.com/yourusername/turfpilot/internal/metrics"
)

// OddsUpdate is a single market move pushed by the provider stream
type OddsUpdate struct {
	MeetingID string    `json:"meeting_id"`
	RaceID    string    `json:"race_id"`
	RunnerID  string    `json:"runner_id"`
	WinOdds   float64   `json:"win_odds"`
	PlaceOdds float64   `json:"place_odds"`
	Scratched bool      `json:"scratched"`
	At        time.Time `json:"at"`
}

// OddsHandler consumes stream updates. Handlers must be fast; a slow handler
// stalls the read loop and risks a provider-side disconnect.
type OddsHandler func(update OddsUpdate)

// OddsStream maintains a websocket subscription to the provider's live odds
// feed, reconnecting with a fixed backoff when the connection drops.
type OddsStream struct {
	url            string
	apiKey         string
	reconnectDelay time.Duration
	logger         *logrus.Logger
	handler        OddsHandler
}

// NewOddsStream creates a stream client from configuration
func NewOddsStream(cfg *config.ProviderConfig, logger *logrus.Logger, handler OddsHandler) *OddsStream {
	delay := time.Duration(cfg.StreamReconnectSeconds) * time.Second
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &OddsStream{
		url:            cfg.StreamURL,
		apiKey:         cfg.APIKey,
		reconnectDelay: delay,
		logger:         logger,
		handler:        handler,
	}
}

// Run connects and consumes updates until the context is cancelled. Transient
// failures are logged and retried; only context cancellation ends the loop.
func (s *OddsStream) Run(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("stream URL not configured")
	}

	first := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !first {
			metrics.StreamReconnectsTotal.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.reconnectDelay):
			}
		}
		first = false

		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WithError(err).Warn("Odds stream disconnected, reconnecting")
		}
	}
}

func (s *OddsStream) consume(ctx context.Context) error {
	header := map[string][]string{}
	if s.apiKey != "" {
		header["Authorization"] = []string{"Bearer " + s.apiKey}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("failed to dial odds stream: %w", err)
	}
	defer conn.Close()

	s.logger.WithField("url", s.url).Info("Odds stream connected")

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read failed: %w", err)
		}

		var update OddsUpdate
		if err := json.Unmarshal(message, &update); err != nil {
			s.logger.WithError(err).Warn("Skipping malformed stream message")
			continue
		}
		if s.handler != nil {
			s.handler(update)
		}
	}
}
