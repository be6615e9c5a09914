package hazard

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreatFromWindKt(t *testing.T) {
	assert.Equal(t, ThreatCAT1, ThreatFromWindKt(64.0))
	assert.Equal(t, ThreatTS, ThreatFromWindKt(63.9))
	assert.Equal(t, ThreatCAT5, ThreatFromWindKt(137))
	assert.Equal(t, ThreatCAT4, ThreatFromWindKt(113))
	assert.Equal(t, ThreatCAT3, ThreatFromWindKt(96))
	assert.Equal(t, ThreatCAT2, ThreatFromWindKt(83))
	assert.Equal(t, ThreatTS, ThreatFromWindKt(34))
	assert.Equal(t, ThreatTD, ThreatFromWindKt(33.9))
}

func TestThreatRank(t *testing.T) {
	assert.Greater(t, ThreatCAT5.Rank(), ThreatCAT1.Rank())
	assert.Greater(t, ThreatTS.Rank(), ThreatTD.Rank())
	assert.Zero(t, ThreatLevel("bogus").Rank())
}

func TestConfidenceFromPressureWind(t *testing.T) {
	// ambient pressure and calm wind
	assert.Zero(t, ConfidenceFromPressureWind(1010, 0))
	// both terms saturated
	assert.InDelta(t, 1.0, ConfidenceFromPressureWind(980, 33), 1e-9)
	// midpoints
	assert.InDelta(t, 0.5, ConfidenceFromPressureWind(995, 16.5), 1e-9)
	// pressure above ambient clips at zero
	assert.InDelta(t, 0.25, ConfidenceFromPressureWind(1020, 16.5), 1e-9)
}

func validCyclone() Cyclone {
	return Cyclone{
		ID:               "SWIO-2026-04",
		Location:         Location{Lat: -19.5, Lon: 47.25},
		DetectionTime:    time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		Source:           "forecast",
		Confidence:       0.9,
		ThreatLevel:      ThreatCAT2,
		MaxWindKt:        88,
		MaxWindMS:        45.3,
		MinPressureHPa:   955,
		TrackProbability: 0.85,
		Track: []TrackPoint{
			{Time: time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC), Lat: -19.2, Lon: 47.8},
			{Time: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC), Lat: -19.5, Lon: 47.25},
		},
	}
}

func TestCycloneValidate(t *testing.T) {
	c := validCyclone()
	assert.NoError(t, c.Validate())

	missing := validCyclone()
	missing.ID = ""
	assert.Error(t, missing.Validate())

	badLoc := validCyclone()
	badLoc.Location.Lat = -95
	assert.Error(t, badLoc.Validate())

	badProb := validCyclone()
	badProb.TrackProbability = 1.5
	assert.Error(t, badProb.Validate())

	badTrack := validCyclone()
	badTrack.Track[1].Time = badTrack.Track[0].Time
	assert.Error(t, badTrack.Validate())

	inconsistent := validCyclone()
	inconsistent.ThreatLevel = ThreatTD
	assert.ErrorContains(t, inconsistent.Validate(), "inconsistent")
}

func TestCycloneJSONRoundTrip(t *testing.T) {
	c := validCyclone()
	data, err := json.Marshal(c)
	require.NoError(t, err)

	var back Cyclone
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c, back)
}

func TestFloodValidate(t *testing.T) {
	ring := []Location{
		{Lat: -19.5, Lon: 34.5}, {Lat: -19.5, Lon: 34.7},
		{Lat: -19.7, Lon: 34.7}, {Lat: -19.5, Lon: 34.5},
	}
	f := Flood{
		ID: "f1", Location: Location{Lat: -19.6, Lon: 34.6},
		DetectionTime: time.Now(), Source: "sar_flood",
		Polygon: ring, AreaKm2: 120, Severity: FloodMajor, WaterFraction: 0.8,
	}
	assert.NoError(t, f.Validate())

	open := f
	open.Polygon = ring[:3]
	assert.ErrorContains(t, open.Validate(), "not closed")

	wet := f
	wet.WaterFraction = 1.2
	assert.Error(t, wet.Validate())

	negative := f
	negative.AreaKm2 = -1
	assert.Error(t, negative.Validate())
}

func TestFloodSeverityRank(t *testing.T) {
	assert.Greater(t, FloodCatastrophic.Rank(), FloodMajor.Rank())
	assert.Greater(t, FloodModerate.Rank(), FloodMinor.Rank())
}
