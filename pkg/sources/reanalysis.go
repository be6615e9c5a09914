package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/afrostorm/hazardwatch/pkg/geo"
)

// ReanalysisAdapter pulls gridded surface analyses (mean-sea-level pressure
// and 10 m winds) for the monitored basin. The grid is scanned by the
// cyclone detector rather than interpreted here.
type ReanalysisAdapter struct {
	c     *client
	basin geo.BBox
}

// NewReanalysis builds the gridded-analysis adapter. Archive retrievals can
// queue for minutes, so timeout should be the archive budget.
func NewReanalysis(baseURL string, basin geo.BBox, timeout time.Duration, log zerolog.Logger) *ReanalysisAdapter {
	return &ReanalysisAdapter{c: newClient("reanalysis", baseURL, timeout, log), basin: basin}
}

func (a *ReanalysisAdapter) Name() string { return "reanalysis" }

// Fetch returns the analysis fields valid inside the window, oldest first.
func (a *ReanalysisAdapter) Fetch(ctx context.Context, w Window) (*Batch, error) {
	var payload struct {
		Fields []GridField `json:"fields"`
	}
	path := fmt.Sprintf("/fields?start=%s&end=%s&n=%.2f&s=%.2f&w=%.2f&e=%.2f",
		w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339),
		a.basin.MaxLat, a.basin.MinLat, a.basin.MinLon, a.basin.MaxLon)
	if err := a.c.getJSON(ctx, path, &payload); err != nil {
		return &Batch{}, err
	}

	batch := &Batch{}
	for _, f := range payload.Fields {
		if err := validateGrid(&f); err != nil {
			a.c.log.Warn().Err(err).Time("field", f.Time).Msg("dropping malformed field")
			continue
		}
		batch.Grids = append(batch.Grids, f)
	}
	return batch, nil
}

// validateGrid rejects ragged or mismatched grids before they reach the
// detector.
func validateGrid(f *GridField) error {
	rows, cols := len(f.Lats), len(f.Lons)
	if rows == 0 || cols == 0 {
		return fmt.Errorf("empty grid axes")
	}
	for name, m := range map[string][][]float64{"msl": f.MSL, "u10": f.U10, "v10": f.V10} {
		if len(m) != rows {
			return fmt.Errorf("%s: %d rows, want %d", name, len(m), rows)
		}
		for i, row := range m {
			if len(row) != cols {
				return fmt.Errorf("%s: row %d has %d cols, want %d", name, i, len(row), cols)
			}
		}
	}
	return nil
}
