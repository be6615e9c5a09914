package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/afrostorm/hazardwatch/pkg/hazard"
)

func TestHaversine(t *testing.T) {
	a := hazard.Location{Lat: -19.5, Lon: 47.25}
	b := hazard.Location{Lat: -18.9, Lon: 47.5}

	d := Haversine(a, b)
	assert.InDelta(t, 71.4, d, 0.5)

	// symmetric within a meter, zero on identity
	assert.InDelta(t, d, Haversine(b, a), 0.001)
	assert.Zero(t, Haversine(a, a))
}

func TestHaversineKnownDistance(t *testing.T) {
	// Beira to Antananarivo, roughly 1530 km
	beira := hazard.Location{Lat: -19.84, Lon: 34.84}
	tana := hazard.Location{Lat: -18.88, Lon: 47.51}
	assert.InDelta(t, 1330, Haversine(beira, tana), 20)
}

func TestBBox(t *testing.T) {
	basin := BBox{MinLat: -35, MaxLat: 0, MinLon: 20, MaxLon: 80}
	assert.True(t, basin.Contains(hazard.Location{Lat: -19.5, Lon: 47.25}))
	assert.True(t, basin.Contains(hazard.Location{Lat: 0, Lon: 20})) // inclusive edges
	assert.False(t, basin.Contains(hazard.Location{Lat: 1, Lon: 47}))
	assert.NoError(t, basin.Validate())

	assert.Error(t, BBox{MinLat: 10, MaxLat: -10}.Validate())
	assert.Error(t, BBox{MinLat: -95, MaxLat: 0, MinLon: 0, MaxLon: 10}.Validate())
}

func TestCentroidExcludesClosingVertex(t *testing.T) {
	ring := []hazard.Location{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 2}, {Lat: 2, Lon: 2}, {Lat: 2, Lon: 0},
		{Lat: 0, Lon: 0},
	}
	c := Centroid(ring)
	assert.InDelta(t, 1.0, c.Lat, 1e-9)
	assert.InDelta(t, 1.0, c.Lon, 1e-9)

	assert.Equal(t, hazard.Location{}, Centroid(nil))
}

func TestRingAreaKm2(t *testing.T) {
	// one-degree square at the equator: about 111.32 x 111.32 km
	ring := []hazard.Location{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 0},
		{Lat: 0, Lon: 0},
	}
	assert.InDelta(t, 111.32*111.32, RingAreaKm2(ring), 100)

	assert.Zero(t, RingAreaKm2(ring[:3]))
}

func TestWithinDegrees(t *testing.T) {
	a := hazard.Location{Lat: -19.5, Lon: 47.25}
	assert.True(t, WithinDegrees(a, hazard.Location{Lat: -19.7, Lon: 47.3}, 0.5))
	assert.False(t, WithinDegrees(a, hazard.Location{Lat: -20.1, Lon: 47.3}, 0.5))
}
