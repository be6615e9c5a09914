// Package detect turns normalized observations into hazard records: cyclone
// candidates from gridded analyses, flood extents from SAR polygons, and
// landslide risk zones from slope and rainfall. Detectors are pure functions
// of their inputs so a re-run over the same batch yields identical records.
package detect

import (
	"fmt"
	"math"

	"github.com/afrostorm/hazardwatch/pkg/geo"
	"github.com/afrostorm/hazardwatch/pkg/hazard"
	"github.com/afrostorm/hazardwatch/pkg/sources"
)

// CycloneParams bounds the grid scan.
type CycloneParams struct {
	Basin          geo.BBox
	MinPressureHPa float64
	MinWindMS      float64
}

// CyclonesFromGrid reduces one analysis field to at most one closed-low
// detection: the field-wide pressure minimum must fall below the threshold,
// the field-wide wind maximum must reach gale force, and the minimum cell
// must sit inside the basin. A field whose deepest low lies outside the
// basin emits nothing, even when shallower in-basin lows exist. The id
// derives from the analysis time and the minimum's coordinates, so the same
// field always yields the same record.
func CyclonesFromGrid(f *sources.GridField, p CycloneParams) []hazard.Cyclone {
	rows, cols := len(f.Lats), len(f.Lons)
	if rows == 0 || cols == 0 {
		return nil
	}

	mi, mj := 0, 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if f.MSL[i][j] < f.MSL[mi][mj] {
				mi, mj = i, j
			}
		}
	}
	hpa := f.MSL[mi][mj] / 100
	if hpa >= p.MinPressureHPa {
		return nil
	}

	var windMS float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if w := math.Hypot(f.U10[i][j], f.V10[i][j]); w > windMS {
				windMS = w
			}
		}
	}
	if windMS < p.MinWindMS {
		return nil
	}

	loc := hazard.Location{Lat: f.Lats[mi], Lon: f.Lons[mj]}
	if !p.Basin.Contains(loc) {
		return nil
	}

	windKt := windMS * hazard.KnotsPerMS
	return []hazard.Cyclone{{
		ID:             gridCycloneID(f, loc),
		Location:       loc,
		DetectionTime:  f.Time,
		Source:         "reanalysis",
		Confidence:     hazard.ConfidenceFromPressureWind(hpa, windMS),
		ThreatLevel:    hazard.ThreatFromWindKt(windKt),
		MaxWindKt:      windKt,
		MaxWindMS:      windMS,
		MinPressureHPa: hpa,
	}}
}

func gridCycloneID(f *sources.GridField, loc hazard.Location) string {
	return fmt.Sprintf("grid-%s-%.2f_%.2f",
		f.Time.UTC().Format("20060102T1504"), loc.Lat, loc.Lon)
}
