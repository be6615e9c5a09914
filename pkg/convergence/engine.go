// Package convergence pairs active cyclones with disease outbreaks in their
// path. A pair within the configured geodesic distance becomes a compound
// hazard scored by proximity, outbreak severity, track confidence and case
// load.
package convergence

import (
	"fmt"
	"sort"

	"github.com/afrostorm/hazardwatch/pkg/geo"
	"github.com/afrostorm/hazardwatch/pkg/hazard"
)

// Params bounds the pairing.
type Params struct {
	MaxDistanceKm float64
}

// severityScore weights outbreak severity in the risk formula.
var severityScore = map[hazard.OutbreakSeverity]float64{
	hazard.OutbreakLow:    0.2,
	hazard.OutbreakMedium: 0.5,
	hazard.OutbreakHigh:   0.8,
}

// caseSaturation is the case count at which the caseload term maxes out.
const caseSaturation = 200

// highPriorityKm is the proximity below which a convergence alerts HIGH.
const highPriorityKm = 200

// Detect returns every cyclone-outbreak pair within MaxDistanceKm. The
// record id is derived from the pair ids, so re-running over the same inputs
// yields the same records rather than duplicates. Output is ordered by risk
// score, strongest first, with ties broken by id.
func Detect(cyclones []hazard.Cyclone, outbreaks []hazard.Outbreak, p Params) []hazard.Convergence {
	var out []hazard.Convergence
	for _, cyc := range cyclones {
		for _, ob := range outbreaks {
			d := geo.Haversine(cyc.Location, ob.Location)
			if d >= p.MaxDistanceKm {
				continue
			}
			out = append(out, score(cyc, ob, d, p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func score(cyc hazard.Cyclone, ob hazard.Outbreak, distanceKm float64, p Params) hazard.Convergence {
	caseload := float64(ob.Cases) / caseSaturation
	if caseload > 1 {
		caseload = 1
	}
	risk := 0.3*(1-distanceKm/p.MaxDistanceKm) +
		0.3*severityScore[ob.Severity] +
		0.2*cyc.TrackProbability +
		0.2*caseload

	priority := hazard.PriorityMedium
	if distanceKm < highPriorityKm {
		priority = hazard.PriorityHigh
	}

	return hazard.Convergence{
		ID:            fmt.Sprintf("conv-%s-%s", cyc.ID, ob.ID),
		CycloneID:     cyc.ID,
		OutbreakID:    ob.ID,
		Location:      ob.Location,
		Disease:       ob.Disease,
		ThreatLevel:   cyc.ThreatLevel,
		DistanceKm:    distanceKm,
		RiskScore:     risk,
		AlertPriority: priority,
		DetectedAt:    cyc.DetectionTime,
	}
}
