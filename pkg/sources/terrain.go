package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/afrostorm/hazardwatch/pkg/geo"
)

// TerrainAdapter pulls the joined DEM-slope and 24 h rainfall grid used by
// the landslide detector.
type TerrainAdapter struct {
	c     *client
	basin geo.BBox
}

// NewTerrain builds the terrain-and-rainfall adapter.
func NewTerrain(baseURL string, basin geo.BBox, timeout time.Duration, log zerolog.Logger) *TerrainAdapter {
	return &TerrainAdapter{c: newClient("terrain", baseURL, timeout, log), basin: basin}
}

func (a *TerrainAdapter) Name() string { return "terrain" }

// Fetch returns the per-cell slope and rainfall values for the basin. Cells
// with negative slope or rainfall are provider artifacts and are dropped.
func (a *TerrainAdapter) Fetch(ctx context.Context, w Window) (*Batch, error) {
	var payload struct {
		Cells []TerrainCell `json:"cells"`
	}
	path := fmt.Sprintf("/cells?at=%s&n=%.2f&s=%.2f&w=%.2f&e=%.2f",
		w.End.UTC().Format(time.RFC3339),
		a.basin.MaxLat, a.basin.MinLat, a.basin.MinLon, a.basin.MaxLon)
	if err := a.c.getJSON(ctx, path, &payload); err != nil {
		return &Batch{}, err
	}

	batch := &Batch{}
	for _, c := range payload.Cells {
		if c.SlopeDeg < 0 || c.RainfallMM < 0 {
			continue
		}
		batch.Terrain = append(batch.Terrain, c)
	}
	return batch, nil
}
