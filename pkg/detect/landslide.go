package detect

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/afrostorm/hazardwatch/pkg/geo"
	"github.com/afrostorm/hazardwatch/pkg/hazard"
	"github.com/afrostorm/hazardwatch/pkg/sources"
)

// LandslideParams bounds the landslide assessment.
type LandslideParams struct {
	TopN int
}

// clusterDeg collapses risk zones closer than this, keeping the strongest.
const clusterDeg = 0.5

// slopeFactor steps terrain steepness into susceptibility.
func slopeFactor(slopeDeg float64) float64 {
	switch {
	case slopeDeg >= 35:
		return 1.0
	case slopeDeg >= 25:
		return 0.8
	case slopeDeg >= 15:
		return 0.5
	case slopeDeg >= 10:
		return 0.2
	default:
		return 0
	}
}

// rainFactor steps 24 h rainfall accumulation into trigger likelihood.
func rainFactor(rainMM float64) float64 {
	switch {
	case rainMM >= 400:
		return 1.0
	case rainMM >= 200:
		return 0.8
	case rainMM >= 100:
		return 0.5
	case rainMM >= 50:
		return 0.2
	default:
		return 0
	}
}

// RiskFromScore grades the combined score.
func RiskFromScore(score float64) hazard.RiskLevel {
	switch {
	case score >= 0.8:
		return hazard.RiskExtreme
	case score >= 0.5:
		return hazard.RiskHigh
	case score >= 0.3:
		return hazard.RiskMedium
	case score >= 0.1:
		return hazard.RiskLow
	default:
		return hazard.RiskMinimal
	}
}

var riskActions = map[hazard.RiskLevel]string{
	hazard.RiskExtreme: "Evacuate settlements on or below steep slopes immediately",
	hazard.RiskHigh:    "Pre-position response teams and warn communities on steep slopes",
}

// LandslidesFromTerrain scores every cell as the geometric mean of slope and
// rainfall factors, keeps only HIGH and EXTREME zones, collapses clusters
// closer than half a degree to the strongest member, and returns at most
// TopN zones ordered by score. Ties order by confidence then id so the
// output is stable across runs. Ids derive from the cell coordinates alone,
// so re-assessing unchanged terrain reproduces the same ids and the alert
// dedup window can match them.
func LandslidesFromTerrain(cells []sources.TerrainCell, asOf time.Time, p LandslideParams) []hazard.LandslideRisk {
	var zones []hazard.LandslideRisk
	for _, c := range cells {
		score := math.Sqrt(slopeFactor(c.SlopeDeg) * rainFactor(c.RainfallMM))
		level := RiskFromScore(score)
		if level != hazard.RiskHigh && level != hazard.RiskExtreme {
			continue
		}
		loc := hazard.Location{Lat: c.Lat, Lon: c.Lon}
		zones = append(zones, hazard.LandslideRisk{
			ID:            fmt.Sprintf("slide-%.3f_%.3f", c.Lat, c.Lon),
			Location:      loc,
			DetectionTime: asOf,
			Source:        "terrain",
			Confidence:    score,
			RiskLevel:     level,
			RiskScore:     score,
			SlopeDeg:      c.SlopeDeg,
			RainfallMM:    c.RainfallMM,
			Reason: fmt.Sprintf("%.0f deg slope with %.0f mm rainfall in 24h",
				c.SlopeDeg, c.RainfallMM),
			RecommendedAction: riskActions[level],
		})
	}

	sort.Slice(zones, func(i, j int) bool {
		if zones[i].RiskScore != zones[j].RiskScore {
			return zones[i].RiskScore > zones[j].RiskScore
		}
		if zones[i].Confidence != zones[j].Confidence {
			return zones[i].Confidence > zones[j].Confidence
		}
		return zones[i].ID < zones[j].ID
	})

	var out []hazard.LandslideRisk
	for _, z := range zones {
		clustered := false
		for _, kept := range out {
			if geo.WithinDegrees(z.Location, kept.Location, clusterDeg) {
				clustered = true
				break
			}
		}
		if clustered {
			continue
		}
		out = append(out, z)
		if p.TopN > 0 && len(out) >= p.TopN {
			break
		}
	}
	return out
}

// AreaAtRiskKm2 approximates the ground area covered by the zones, one
// half-degree cell per zone.
func AreaAtRiskKm2(zones []hazard.LandslideRisk) float64 {
	const cellKm2 = 55.66 * 55.66 // 0.5 deg at the equator
	var total float64
	for _, z := range zones {
		total += cellKm2 * math.Cos(z.Location.Lat*math.Pi/180)
	}
	return total
}
