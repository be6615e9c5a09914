// Package hazard defines the canonical data model shared by every stage of
// the pipeline: detections produced by the detector set, outbreak records
// from surveillance, and the convergence records derived from both. Records
// are immutable once created; corrections are new records with new ids.
package hazard

import (
	"fmt"
	"time"
)

// Kind tags a hazard variant.
type Kind string

const (
	KindCyclone     Kind = "cyclone"
	KindFlood       Kind = "flood"
	KindLandslide   Kind = "landslide"
	KindConvergence Kind = "convergence"
	KindWaterlogged Kind = "waterlogged"
)

// Location is a WGS84 point in decimal degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinates are inside the WGS84 envelope.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// ThreatLevel is the Saffir-Simpson wind class, TD through CAT5.
type ThreatLevel string

const (
	ThreatTD   ThreatLevel = "TD"
	ThreatTS   ThreatLevel = "TS"
	ThreatCAT1 ThreatLevel = "CAT1"
	ThreatCAT2 ThreatLevel = "CAT2"
	ThreatCAT3 ThreatLevel = "CAT3"
	ThreatCAT4 ThreatLevel = "CAT4"
	ThreatCAT5 ThreatLevel = "CAT5"
)

// ThreatFromWindKt classifies sustained wind (knots) on the Saffir-Simpson
// scale.
func ThreatFromWindKt(kt float64) ThreatLevel {
	switch {
	case kt >= 137:
		return ThreatCAT5
	case kt >= 113:
		return ThreatCAT4
	case kt >= 96:
		return ThreatCAT3
	case kt >= 83:
		return ThreatCAT2
	case kt >= 64:
		return ThreatCAT1
	case kt >= 34:
		return ThreatTS
	default:
		return ThreatTD
	}
}

// KnotsPerMS converts wind speed from m/s to knots.
const KnotsPerMS = 1.9438

// ConfidenceFromPressureWind scores a detection from pressure deficit and
// sustained wind, each clipped to [0,1] and weighted equally. 1010 hPa is
// treated as ambient; 33 m/s (hurricane force) saturates the wind term.
func ConfidenceFromPressureWind(pressureHPa, windMS float64) float64 {
	p := (1010 - pressureHPa) / 30
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	w := windMS / 33
	if w < 0 {
		w = 0
	} else if w > 1 {
		w = 1
	}
	return p*0.5 + w*0.5
}

var threatRank = map[ThreatLevel]int{
	ThreatTD: 1, ThreatTS: 2, ThreatCAT1: 3, ThreatCAT2: 4,
	ThreatCAT3: 5, ThreatCAT4: 6, ThreatCAT5: 7,
}

// Rank orders threat levels; unknown levels rank below TD.
func (t ThreatLevel) Rank() int { return threatRank[t] }

// TrackPoint is one fix on a forecast or analysed cyclone track.
type TrackPoint struct {
	Time        time.Time `json:"time"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	WindKt      float64   `json:"wind_kt,omitempty"`
	PressureHPa float64   `json:"pressure_hpa,omitempty"`
}

// Cyclone is a tropical system detection.
type Cyclone struct {
	ID               string       `json:"id"`
	Location         Location     `json:"location"`
	DetectionTime    time.Time    `json:"detection_time"`
	Source           string       `json:"source"`
	Confidence       float64      `json:"confidence"`
	ThreatLevel      ThreatLevel  `json:"threat_level"`
	MaxWindKt        float64      `json:"max_wind_kt,omitempty"`
	MaxWindMS        float64      `json:"max_wind_ms,omitempty"`
	MinPressureHPa   float64      `json:"min_pressure_hpa,omitempty"`
	TrackProbability float64      `json:"track_probability,omitempty"`
	Track            []TrackPoint `json:"track,omitempty"`
}

// Validate checks the cyclone invariants: coordinates in range, track times
// strictly increasing, and threat level consistent with max wind.
func (c *Cyclone) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("cyclone: missing id")
	}
	if !c.Location.Valid() {
		return fmt.Errorf("cyclone %s: location out of range (%.3f, %.3f)", c.ID, c.Location.Lat, c.Location.Lon)
	}
	if c.TrackProbability < 0 || c.TrackProbability > 1 {
		return fmt.Errorf("cyclone %s: track_probability %.3f outside [0,1]", c.ID, c.TrackProbability)
	}
	for i := 1; i < len(c.Track); i++ {
		if !c.Track[i].Time.After(c.Track[i-1].Time) {
			return fmt.Errorf("cyclone %s: track times not strictly increasing at index %d", c.ID, i)
		}
	}
	if c.MaxWindKt > 0 && ThreatFromWindKt(c.MaxWindKt) != c.ThreatLevel {
		return fmt.Errorf("cyclone %s: threat_level %s inconsistent with %.1f kt", c.ID, c.ThreatLevel, c.MaxWindKt)
	}
	return nil
}

// FloodSeverity ladder, weakest first.
type FloodSeverity string

const (
	FloodMinor        FloodSeverity = "minor"
	FloodModerate     FloodSeverity = "moderate"
	FloodMajor        FloodSeverity = "major"
	FloodCatastrophic FloodSeverity = "catastrophic"
)

var floodRank = map[FloodSeverity]int{
	FloodMinor: 1, FloodModerate: 2, FloodMajor: 3, FloodCatastrophic: 4,
}

// Rank orders flood severities.
func (s FloodSeverity) Rank() int { return floodRank[s] }

// Flood is a satellite-derived flood extent. Polygon is a closed ring
// (first == last vertex); Location is the ring centroid.
type Flood struct {
	ID            string        `json:"id"`
	Location      Location      `json:"location"`
	DetectionTime time.Time     `json:"detection_time"`
	Source        string        `json:"source"`
	Confidence    float64       `json:"confidence"`
	Polygon       []Location    `json:"polygon,omitempty"`
	AreaKm2       float64       `json:"area_km2"`
	Severity      FloodSeverity `json:"severity"`
	WaterFraction float64       `json:"water_fraction,omitempty"`
}

// Validate checks the flood invariants.
func (f *Flood) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("flood: missing id")
	}
	if !f.Location.Valid() {
		return fmt.Errorf("flood %s: location out of range", f.ID)
	}
	if f.AreaKm2 < 0 {
		return fmt.Errorf("flood %s: negative area", f.ID)
	}
	if n := len(f.Polygon); n > 0 {
		if n < 4 || f.Polygon[0] != f.Polygon[n-1] {
			return fmt.Errorf("flood %s: polygon ring not closed", f.ID)
		}
	}
	if f.WaterFraction < 0 || f.WaterFraction > 1 {
		return fmt.Errorf("flood %s: water_fraction %.3f outside [0,1]", f.ID, f.WaterFraction)
	}
	return nil
}

// RiskLevel grades landslide susceptibility.
type RiskLevel string

const (
	RiskMinimal RiskLevel = "MINIMAL"
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskExtreme RiskLevel = "EXTREME"
)

// LandslideRisk is a per-cell slope-and-rainfall risk assessment.
type LandslideRisk struct {
	ID                string    `json:"id"`
	Location          Location  `json:"location"`
	DetectionTime     time.Time `json:"detection_time"`
	Source            string    `json:"source"`
	Confidence        float64   `json:"confidence"`
	RiskLevel         RiskLevel `json:"risk_level"`
	RiskScore         float64   `json:"risk_score"`
	SlopeDeg          float64   `json:"slope_deg"`
	RainfallMM        float64   `json:"rainfall_mm"`
	Reason            string    `json:"reason"`
	RecommendedAction string    `json:"recommended_action"`
}

// OutbreakSeverity grades a surveillance record.
type OutbreakSeverity string

const (
	OutbreakLow    OutbreakSeverity = "low"
	OutbreakMedium OutbreakSeverity = "medium"
	OutbreakHigh   OutbreakSeverity = "high"
)

// Outbreak is a normalized disease-surveillance record.
type Outbreak struct {
	ID       string           `json:"id"`
	Disease  string           `json:"disease"`
	Country  string           `json:"country"`
	Location Location         `json:"location"`
	Cases    int              `json:"cases"`
	Deaths   int              `json:"deaths"`
	Severity OutbreakSeverity `json:"severity"`
	Date     time.Time        `json:"date"`
	Source   string           `json:"source"`
}

// AlertPriority grades a convergence for alert routing.
type AlertPriority string

const (
	PriorityLow      AlertPriority = "LOW"
	PriorityMedium   AlertPriority = "MEDIUM"
	PriorityHigh     AlertPriority = "HIGH"
	PriorityCritical AlertPriority = "CRITICAL"
)

// Convergence is a cyclone-outbreak pair within the configured geodesic
// distance. Content-addressed: the pair (CycloneID, OutbreakID) identifies
// the record.
type Convergence struct {
	ID            string        `json:"id"`
	CycloneID     string        `json:"cyclone_id"`
	OutbreakID    string        `json:"outbreak_id"`
	Location      Location      `json:"location"`
	Disease       string        `json:"disease"`
	ThreatLevel   ThreatLevel   `json:"threat_level"`
	DistanceKm    float64       `json:"distance_km"`
	RiskScore     float64       `json:"risk_score"`
	AlertPriority AlertPriority `json:"alert_priority"`
	DetectedAt    time.Time     `json:"detected_at"`
}
