// Package sources contains the upstream provider adapters. Each adapter
// normalizes one external feed into canonical observation records, times out
// within its configured budget, and degrades to an empty result on transient
// failure so a dead provider never aborts a cycle.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/afrostorm/hazardwatch/pkg/hazard"
)

// Window is the observation interval an adapter is asked for. Re-fetching
// the same window must yield observations with matching canonical ids.
type Window struct {
	Start time.Time
	End   time.Time
}

// GridField is a regular lat/lon grid of mean-sea-level pressure (Pa) and
// 10 m wind components (m/s) at one analysis time.
type GridField struct {
	Time time.Time   `json:"time"`
	Lats []float64   `json:"lats"`
	Lons []float64   `json:"lons"`
	MSL  [][]float64 `json:"msl"`
	U10  [][]float64 `json:"u10"`
	V10  [][]float64 `json:"v10"`
}

// FloodFeature is a raw flood polygon from the SAR/optical provider.
type FloodFeature struct {
	Ring          []hazard.Location `json:"ring"`
	AreaKm2       float64           `json:"area_km2"`
	WaterFraction float64           `json:"water_fraction"`
	Severity      string            `json:"severity"`
	Source        string            `json:"source"`
	ObservedAt    time.Time         `json:"observed_at"`
}

// TerrainCell is one DEM+rainfall cell: slope and 24 h accumulation.
type TerrainCell struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	SlopeDeg   float64 `json:"slope_deg"`
	RainfallMM float64 `json:"rainfall_mm"`
}

// Batch is the tagged union an adapter returns; each adapter fills exactly
// one slice.
type Batch struct {
	Cyclones  []hazard.Cyclone
	Grids     []GridField
	Floods    []FloodFeature
	Terrain   []TerrainCell
	Outbreaks []hazard.Outbreak
}

// Empty reports whether the batch carries no observations.
func (b *Batch) Empty() bool {
	return len(b.Cyclones) == 0 && len(b.Grids) == 0 && len(b.Floods) == 0 &&
		len(b.Terrain) == 0 && len(b.Outbreaks) == 0
}

// Adapter is the provider contract. Fetch never panics into the cycle; a
// transient failure returns an empty batch together with the error so the
// monitor can annotate the run log.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, w Window) (*Batch, error)
}

// client wraps an HTTP endpoint with a timeout and a circuit breaker, the
// shared plumbing under every network adapter.
type client struct {
	name    string
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func newClient(name, baseURL string, timeout time.Duration, log zerolog.Logger) *client {
	return &client{
		name:    name,
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 2 * time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
		log: log.With().Str("adapter", name).Logger(),
	}
}

// getJSON fetches path relative to the base URL and decodes the body into v.
func (c *client) getJSON(ctx context.Context, path string, v any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%s: no endpoint configured", c.name)
	}

	_, err := c.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}
		return nil, json.NewDecoder(resp.Body).Decode(v)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}
