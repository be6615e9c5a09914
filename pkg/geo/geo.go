// Package geo provides the geodesic primitives the detectors and the
// convergence engine share: haversine distance, bounding boxes, ring
// centroids and areas.
package geo

import (
	"fmt"
	"math"

	"github.com/afrostorm/hazardwatch/pkg/hazard"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

const kmPerDegree = 111.32

// Haversine returns the great-circle distance between two points in km.
func Haversine(a, b hazard.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// BBox is a rectangular lat/lon region.
type BBox struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

// Contains reports whether the point is inside the box (inclusive).
func (b BBox) Contains(l hazard.Location) bool {
	return l.Lat >= b.MinLat && l.Lat <= b.MaxLat &&
		l.Lon >= b.MinLon && l.Lon <= b.MaxLon
}

// Validate checks the box is well-formed.
func (b BBox) Validate() error {
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return fmt.Errorf("bbox: min exceeds max (%v)", b)
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("bbox: outside WGS84 envelope (%v)", b)
	}
	return nil
}

// Centroid returns the arithmetic mean of the ring vertices. The closing
// vertex is excluded when the ring is closed so it is not counted twice.
func Centroid(ring []hazard.Location) hazard.Location {
	if len(ring) == 0 {
		return hazard.Location{}
	}
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		n--
	}
	var lat, lon float64
	for _, p := range ring[:n] {
		lat += p.Lat
		lon += p.Lon
	}
	return hazard.Location{Lat: lat / float64(n), Lon: lon / float64(n)}
}

// RingAreaKm2 computes the approximate area of a closed ring by the shoelace
// formula on a local equirectangular projection around the ring centroid.
// Adequate for the sub-degree flood polygons the SAR provider returns.
func RingAreaKm2(ring []hazard.Location) float64 {
	n := len(ring)
	if n < 4 {
		return 0
	}
	c := Centroid(ring)
	cosLat := math.Cos(c.Lat * math.Pi / 180)

	var sum float64
	for i := 0; i < n-1; i++ {
		x1 := ring[i].Lon * kmPerDegree * cosLat
		y1 := ring[i].Lat * kmPerDegree
		x2 := ring[i+1].Lon * kmPerDegree * cosLat
		y2 := ring[i+1].Lat * kmPerDegree
		sum += x1*y2 - x2*y1
	}
	return math.Abs(sum) / 2
}

// WithinDegrees reports whether two points are within d degrees on both axes.
func WithinDegrees(a, b hazard.Location, d float64) bool {
	return math.Abs(a.Lat-b.Lat) < d && math.Abs(a.Lon-b.Lon) < d
}
