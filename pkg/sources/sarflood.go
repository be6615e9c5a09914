package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/afrostorm/hazardwatch/pkg/geo"
)

// SARFloodAdapter pulls flood polygons derived from SAR and optical imagery.
// Polygons are passed through raw; the flood detector applies the area floor
// and severity mapping.
type SARFloodAdapter struct {
	c     *client
	basin geo.BBox
}

// NewSARFlood builds the flood-extent adapter.
func NewSARFlood(baseURL string, basin geo.BBox, timeout time.Duration, log zerolog.Logger) *SARFloodAdapter {
	return &SARFloodAdapter{c: newClient("sar_flood", baseURL, timeout, log), basin: basin}
}

func (a *SARFloodAdapter) Name() string { return "sar_flood" }

// Fetch returns flood features observed inside the window.
func (a *SARFloodAdapter) Fetch(ctx context.Context, w Window) (*Batch, error) {
	var payload struct {
		Features []FloodFeature `json:"features"`
	}
	path := fmt.Sprintf("/floods?start=%s&end=%s&n=%.2f&s=%.2f&w=%.2f&e=%.2f",
		w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339),
		a.basin.MaxLat, a.basin.MinLat, a.basin.MinLon, a.basin.MaxLon)
	if err := a.c.getJSON(ctx, path, &payload); err != nil {
		return &Batch{}, err
	}

	batch := &Batch{}
	for _, f := range payload.Features {
		if n := len(f.Ring); n < 4 || f.Ring[0] != f.Ring[n-1] {
			a.c.log.Warn().Int("vertices", len(f.Ring)).Msg("dropping open flood ring")
			continue
		}
		if f.Source == "" {
			f.Source = "sar_flood"
		}
		batch.Floods = append(batch.Floods, f)
	}
	return batch, nil
}
