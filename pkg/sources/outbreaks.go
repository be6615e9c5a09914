package sources

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/afrostorm/hazardwatch/pkg/hazard"
)

// outbreakRecord is the surveillance provider's wire record.
type outbreakRecord struct {
	EventID  string    `json:"event_id"`
	Disease  string    `json:"disease"`
	Country  string    `json:"country"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Cases    int       `json:"cases"`
	Deaths   int       `json:"deaths"`
	Reported time.Time `json:"reported"`
	Source   string    `json:"source"`
}

// OutbreakAdapter pulls disease-surveillance events and grades them by case
// counts and case-fatality ratio.
type OutbreakAdapter struct {
	c        *client
	lookback time.Duration
}

// NewOutbreaks builds the surveillance adapter. lookback widens the query
// window beyond the cycle interval, since outbreaks evolve over weeks.
func NewOutbreaks(baseURL string, lookback, timeout time.Duration, log zerolog.Logger) *OutbreakAdapter {
	return &OutbreakAdapter{c: newClient("outbreaks", baseURL, timeout, log), lookback: lookback}
}

func (a *OutbreakAdapter) Name() string { return "outbreaks" }

// Fetch returns the outbreaks reported inside the window, graded and sorted
// by id.
func (a *OutbreakAdapter) Fetch(ctx context.Context, w Window) (*Batch, error) {
	var payload struct {
		Events []outbreakRecord `json:"events"`
	}
	start := w.Start
	if a.lookback > 0 {
		start = w.End.Add(-a.lookback)
	}
	path := fmt.Sprintf("/events?start=%s&end=%s",
		start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
	if err := a.c.getJSON(ctx, path, &payload); err != nil {
		return &Batch{}, err
	}

	batch := &Batch{}
	for _, e := range payload.Events {
		if e.EventID == "" || e.Cases < 0 || e.Deaths < 0 || e.Deaths > e.Cases {
			a.c.log.Warn().Str("event", e.EventID).Msg("dropping malformed surveillance record")
			continue
		}
		src := e.Source
		if src == "" {
			src = "surveillance"
		}
		batch.Outbreaks = append(batch.Outbreaks, hazard.Outbreak{
			ID:       e.EventID,
			Disease:  strings.ToLower(e.Disease),
			Country:  strings.ToLower(e.Country),
			Location: hazard.Location{Lat: e.Lat, Lon: e.Lon},
			Cases:    e.Cases,
			Deaths:   e.Deaths,
			Severity: GradeOutbreak(e.Cases, e.Deaths),
			Date:     e.Reported,
			Source:   src,
		})
	}
	sort.Slice(batch.Outbreaks, func(i, j int) bool {
		return batch.Outbreaks[i].ID < batch.Outbreaks[j].ID
	})
	return batch, nil
}

// GradeOutbreak maps case counts and case-fatality ratio onto the severity
// ladder. CFR dominates: a small but lethal outbreak still grades high.
func GradeOutbreak(cases, deaths int) hazard.OutbreakSeverity {
	var cfr float64
	if cases > 0 {
		cfr = float64(deaths) / float64(cases)
	}
	switch {
	case cfr > 0.15 || cases > 100:
		return hazard.OutbreakHigh
	case cfr > 0.05 || cases > 50:
		return hazard.OutbreakMedium
	default:
		return hazard.OutbreakLow
	}
}
