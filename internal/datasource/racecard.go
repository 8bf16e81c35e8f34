package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yourusername/turfpilot/internal/models"
)

type racecardPayload struct {
	Day   string               `json:"day"`
	Races []models.PlannedRace `json:"races"`
}

// FetchDayPlan retrieves the racecard for a calendar day. Races with no
// start time are dropped, since nothing can be anchored to them.
func (c *ProviderClient) FetchDayPlan(ctx context.Context, day time.Time) ([]models.PlannedRace, error) {
	url := fmt.Sprintf("%s/racecard?day=%s", c.baseURL, day.Format("2006-01-02"))

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDataUnavailable, err)
	}

	var payload racecardPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed racecard payload: %v", models.ErrDataUnavailable, err)
	}

	races := make([]models.PlannedRace, 0, len(payload.Races))
	for _, race := range payload.Races {
		if race.StartAt.IsZero() {
			c.logger.WithField("race_id", race.RaceID).Warn("Racecard entry without start time, skipping")
			continue
		}
		races = append(races, race)
	}
	return races, nil
}
