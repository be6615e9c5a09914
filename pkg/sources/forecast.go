package sources

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/afrostorm/hazardwatch/pkg/hazard"
)

// forecastStorm is the provider's wire record for one tropical system.
type forecastStorm struct {
	StormID     string  `json:"storm_id"`
	Name        string  `json:"name"`
	Basin       string  `json:"basin"`
	Probability float64 `json:"probability"`
	Track       []struct {
		Time        time.Time `json:"time"`
		Lat         float64   `json:"lat"`
		Lon         float64   `json:"lon"`
		WindMS      float64   `json:"wind_ms"`
		PressureHPa float64   `json:"pressure_hpa"`
	} `json:"track"`
}

// ForecastAdapter pulls active tropical-system forecast tracks and
// normalizes them into cyclone records.
type ForecastAdapter struct {
	c *client
}

// NewForecast builds the forecast-track adapter.
func NewForecast(baseURL string, timeout time.Duration, log zerolog.Logger) *ForecastAdapter {
	return &ForecastAdapter{c: newClient("forecast", baseURL, timeout, log)}
}

func (a *ForecastAdapter) Name() string { return "forecast" }

// Fetch returns the cyclones active within the window. The canonical id is
// the provider storm id, so re-fetching the same window yields the same ids.
func (a *ForecastAdapter) Fetch(ctx context.Context, w Window) (*Batch, error) {
	var payload struct {
		Storms []forecastStorm `json:"storms"`
	}
	path := fmt.Sprintf("/storms?start=%s&end=%s",
		w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
	if err := a.c.getJSON(ctx, path, &payload); err != nil {
		return &Batch{}, err
	}

	batch := &Batch{}
	for _, s := range payload.Storms {
		if len(s.Track) == 0 {
			a.c.log.Warn().Str("storm", s.StormID).Msg("storm has empty track, skipping")
			continue
		}
		cyc, err := normalizeStorm(s, w.End)
		if err != nil {
			a.c.log.Warn().Err(err).Str("storm", s.StormID).Msg("dropping malformed storm")
			continue
		}
		batch.Cyclones = append(batch.Cyclones, *cyc)
	}
	sort.Slice(batch.Cyclones, func(i, j int) bool {
		return batch.Cyclones[i].ID < batch.Cyclones[j].ID
	})
	return batch, nil
}

func normalizeStorm(s forecastStorm, asOf time.Time) (*hazard.Cyclone, error) {
	track := make([]hazard.TrackPoint, 0, len(s.Track))
	var maxWindMS, minPressure float64
	for _, p := range s.Track {
		if p.WindMS > maxWindMS {
			maxWindMS = p.WindMS
		}
		if p.PressureHPa > 0 && (minPressure == 0 || p.PressureHPa < minPressure) {
			minPressure = p.PressureHPa
		}
		track = append(track, hazard.TrackPoint{
			Time:        p.Time,
			Lat:         p.Lat,
			Lon:         p.Lon,
			WindKt:      p.WindMS * hazard.KnotsPerMS,
			PressureHPa: p.PressureHPa,
		})
	}
	sort.Slice(track, func(i, j int) bool { return track[i].Time.Before(track[j].Time) })

	// a track with no pressure observations contributes a neutral pressure
	// term instead of reading 0 hPa as a record-deep low
	confPressure := minPressure
	if confPressure == 0 {
		confPressure = 1010
	}

	maxWindKt := maxWindMS * hazard.KnotsPerMS
	cyc := &hazard.Cyclone{
		ID:               s.StormID,
		Location:         hazard.Location{Lat: track[0].Lat, Lon: track[0].Lon},
		DetectionTime:    asOf,
		Source:           "forecast",
		Confidence:       hazard.ConfidenceFromPressureWind(confPressure, maxWindMS),
		ThreatLevel:      hazard.ThreatFromWindKt(maxWindKt),
		MaxWindKt:        maxWindKt,
		MaxWindMS:        maxWindMS,
		MinPressureHPa:   minPressure,
		TrackProbability: s.Probability,
		Track:            track,
	}
	if err := cyc.Validate(); err != nil {
		return nil, err
	}
	return cyc, nil
}
