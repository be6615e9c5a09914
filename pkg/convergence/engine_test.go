package convergence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrostorm/hazardwatch/pkg/hazard"
)

func testCyclone(lat, lon float64) hazard.Cyclone {
	return hazard.Cyclone{
		ID:               "SWIO-2026-04",
		Location:         hazard.Location{Lat: lat, Lon: lon},
		DetectionTime:    time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		ThreatLevel:      hazard.ThreatTS,
		TrackProbability: 1.0,
	}
}

func choleraOutbreak(lat, lon float64) hazard.Outbreak {
	return hazard.Outbreak{
		ID:       "ob-cholera-1",
		Disease:  "cholera",
		Country:  "madagascar",
		Location: hazard.Location{Lat: lat, Lon: lon},
		Cases:    156,
		Severity: hazard.OutbreakHigh,
	}
}

func TestDetectScoring(t *testing.T) {
	out := Detect(
		[]hazard.Cyclone{testCyclone(-19.5, 47.25)},
		[]hazard.Outbreak{choleraOutbreak(-18.9, 47.5)},
		Params{MaxDistanceKm: 500},
	)
	require.Len(t, out, 1)

	c := out[0]
	assert.InDelta(t, 71.4, c.DistanceKm, 0.5)
	assert.InDelta(t, 0.853, c.RiskScore, 0.001)
	assert.Equal(t, hazard.PriorityHigh, c.AlertPriority)
	assert.Equal(t, "cholera", c.Disease)
	assert.Equal(t, hazard.ThreatTS, c.ThreatLevel)
	assert.Equal(t, "conv-SWIO-2026-04-ob-cholera-1", c.ID)
}

func TestDetectOutOfRange(t *testing.T) {
	// Antananarivo to Beira is well over 500 km
	out := Detect(
		[]hazard.Cyclone{testCyclone(-18.9, 47.5)},
		[]hazard.Outbreak{choleraOutbreak(-19.8, 34.9)},
		Params{MaxDistanceKm: 500},
	)
	assert.Empty(t, out)
}

func TestPriorityBoundary(t *testing.T) {
	cyc := testCyclone(-19.5, 47.25)

	// just under 200 km: 1.79 deg of latitude away
	near := choleraOutbreak(-19.5+1.79, 47.25)
	out := Detect([]hazard.Cyclone{cyc}, []hazard.Outbreak{near}, Params{MaxDistanceKm: 500})
	require.Len(t, out, 1)
	assert.Less(t, out[0].DistanceKm, 200.0)
	assert.Equal(t, hazard.PriorityHigh, out[0].AlertPriority)

	// just over 200 km
	far := choleraOutbreak(-19.5+1.81, 47.25)
	out = Detect([]hazard.Cyclone{cyc}, []hazard.Outbreak{far}, Params{MaxDistanceKm: 500})
	require.Len(t, out, 1)
	assert.Greater(t, out[0].DistanceKm, 200.0)
	assert.Equal(t, hazard.PriorityMedium, out[0].AlertPriority)
}

func TestDetectDeterministicIDs(t *testing.T) {
	cyc := []hazard.Cyclone{testCyclone(-19.5, 47.25)}
	ob := []hazard.Outbreak{choleraOutbreak(-18.9, 47.5)}
	p := Params{MaxDistanceKm: 500}

	first := Detect(cyc, ob, p)
	second := Detect(cyc, ob, p)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].RiskScore, second[0].RiskScore)
}
