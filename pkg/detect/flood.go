package detect

import (
	"fmt"
	"sort"

	"github.com/afrostorm/hazardwatch/pkg/geo"
	"github.com/afrostorm/hazardwatch/pkg/hazard"
	"github.com/afrostorm/hazardwatch/pkg/sources"
)

// FloodParams bounds the flood aggregation.
type FloodParams struct {
	MinAreaKm2 float64
}

var validFloodSeverity = map[hazard.FloodSeverity]bool{
	hazard.FloodMinor: true, hazard.FloodModerate: true,
	hazard.FloodMajor: true, hazard.FloodCatastrophic: true,
}

// FloodsFromFeatures normalizes provider polygons into flood records.
// Features below the area floor are rejected. When the provider supplies no
// usable severity it is inferred from the flooded area and water fraction.
func FloodsFromFeatures(feats []sources.FloodFeature, p FloodParams) []hazard.Flood {
	var out []hazard.Flood
	for _, f := range feats {
		area := f.AreaKm2
		if area <= 0 {
			area = geo.RingAreaKm2(f.Ring)
		}
		if area < p.MinAreaKm2 {
			continue
		}

		sev := hazard.FloodSeverity(f.Severity)
		if !validFloodSeverity[sev] {
			sev = inferFloodSeverity(area, f.WaterFraction)
		}
		centroid := geo.Centroid(f.Ring)
		fl := hazard.Flood{
			ID: fmt.Sprintf("flood-%s-%.3f_%.3f",
				f.ObservedAt.UTC().Format("20060102T1504"), centroid.Lat, centroid.Lon),
			Location:      centroid,
			DetectionTime: f.ObservedAt,
			Source:        f.Source,
			Confidence:    floodConfidence(f.WaterFraction),
			Polygon:       f.Ring,
			AreaKm2:       area,
			Severity:      sev,
			WaterFraction: f.WaterFraction,
		}
		if err := fl.Validate(); err != nil {
			continue
		}
		out = append(out, fl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// inferFloodSeverity grades by flooded area, with a floor of major for
// near-total inundation regardless of extent.
func inferFloodSeverity(areaKm2, waterFraction float64) hazard.FloodSeverity {
	var sev hazard.FloodSeverity
	switch {
	case areaKm2 >= 500:
		sev = hazard.FloodCatastrophic
	case areaKm2 >= 100:
		sev = hazard.FloodMajor
	case areaKm2 >= 10:
		sev = hazard.FloodModerate
	default:
		sev = hazard.FloodMinor
	}
	if waterFraction > 0.9 && sev.Rank() < hazard.FloodMajor.Rank() {
		sev = hazard.FloodMajor
	}
	return sev
}

// floodConfidence scores a feature by its water fraction when present; a
// polygon without the attribute still counts as a firm detection.
func floodConfidence(waterFraction float64) float64 {
	if waterFraction <= 0 {
		return 0.7
	}
	return 0.5 + 0.5*waterFraction
}

// MaxFloodSeverity returns the strongest severity in the set, or minor for
// an empty set.
func MaxFloodSeverity(floods []hazard.Flood) hazard.FloodSeverity {
	max := hazard.FloodMinor
	for _, f := range floods {
		if f.Severity.Rank() > max.Rank() {
			max = f.Severity
		}
	}
	return max
}
