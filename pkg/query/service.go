package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afrostorm/hazardwatch/pkg/convergence"
	"github.com/afrostorm/hazardwatch/pkg/geo"
	"github.com/afrostorm/hazardwatch/pkg/hazard"
	"github.com/afrostorm/hazardwatch/pkg/store"
)

// dedupDeg collapses same-kind hazards whose locations are within this many
// degrees on both axes; the first record wins.
const dedupDeg = 0.5

// waterloggedFraction is the water-fraction threshold above which a flood
// counts as persistent waterlogging.
const waterloggedFraction = 0.7

// Params are the query-layer knobs.
type Params struct {
	CacheTTL         time.Duration
	CycloneLookback  time.Duration
	FloodLookback    time.Duration
	WaterlogLookback time.Duration
	ConvergenceKm    float64
}

// Summary is the counts snapshot in every composite response.
type Summary struct {
	Cyclones      int    `json:"cyclones"`
	Floods        int    `json:"floods"`
	Landslides    int    `json:"landslides"`
	Waterlogged   int    `json:"waterlogged"`
	TotalActive   int    `json:"totalActive"`
	HighestThreat string `json:"highest_threat"`
}

// Feed is the unified hazard response.
type Feed struct {
	Cyclones     []hazard.Cyclone       `json:"cyclones"`
	Floods       []hazard.Flood         `json:"floods"`
	Landslides   []hazard.LandslideRisk `json:"landslides"`
	Waterlogged  []hazard.Flood         `json:"waterlogged"`
	Convergences []hazard.Convergence   `json:"convergences"`
	Summary      Summary                `json:"summary"`
	LastUpdated  time.Time              `json:"lastUpdated"`
}

// Service answers the unified hazard queries from the store and the latest
// outbreak snapshot.
type Service struct {
	store  *store.Store
	params Params
	cache  *ttlCache
	log    zerolog.Logger

	mu        sync.RWMutex
	outbreaks []hazard.Outbreak

	now func() time.Time
}

// NewService builds the query service.
func NewService(st *store.Store, p Params, log zerolog.Logger) *Service {
	return &Service{
		store:  st,
		params: p,
		cache:  newTTLCache(p.CacheTTL),
		log:    log.With().Str("component", "query").Logger(),
		now:    time.Now,
	}
}

// SetOutbreaks replaces the outbreak snapshot used for on-demand
// convergence recomputation. Called by the monitor after each cycle.
func (s *Service) SetOutbreaks(obs []hazard.Outbreak) {
	s.mu.Lock()
	s.outbreaks = obs
	s.mu.Unlock()
}

// Invalidate drops every cached response. Called after new detections are
// persisted.
func (s *Service) Invalidate() { s.cache.invalidate() }

// Cyclones returns deduplicated cyclone detections over the window.
func (s *Service) Cyclones(ctx context.Context, window time.Duration) ([]hazard.Cyclone, error) {
	if window <= 0 {
		window = s.params.CycloneLookback
	}
	v, err := s.cache.do(cacheKey("cyclones", window), func() (any, error) {
		rows, err := s.store.ListDetections(ctx, s.now().Add(-window))
		if err != nil {
			return nil, err
		}
		return dedupCyclones(rows), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]hazard.Cyclone), nil
}

// Floods returns deduplicated flood detections over the window.
func (s *Service) Floods(ctx context.Context, window time.Duration) ([]hazard.Flood, error) {
	if window <= 0 {
		window = s.params.FloodLookback
	}
	v, err := s.cache.do(cacheKey("floods", window), func() (any, error) {
		rows, err := s.store.ListFloods(ctx, s.now().Add(-window))
		if err != nil {
			return nil, err
		}
		return dedupFloods(rows), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]hazard.Flood), nil
}

// Landslides returns deduplicated landslide risk zones over the cyclone
// lookback window.
func (s *Service) Landslides(ctx context.Context) ([]hazard.LandslideRisk, error) {
	window := s.params.CycloneLookback
	v, err := s.cache.do(cacheKey("landslides", window), func() (any, error) {
		rows, err := s.store.ListLandslides(ctx, s.now().Add(-window))
		if err != nil {
			return nil, err
		}
		return dedupLandslides(rows), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]hazard.LandslideRisk), nil
}

// Waterlogged derives persistently waterlogged areas from high
// water-fraction floods over the long lookback.
func (s *Service) Waterlogged(ctx context.Context) ([]hazard.Flood, error) {
	window := s.params.WaterlogLookback
	v, err := s.cache.do(cacheKey("waterlogged", window), func() (any, error) {
		rows, err := s.store.ListFloods(ctx, s.now().Add(-window))
		if err != nil {
			return nil, err
		}
		var wet []hazard.Flood
		for _, f := range rows {
			if f.WaterFraction > waterloggedFraction {
				wet = append(wet, f)
			}
		}
		return dedupFloods(wet), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]hazard.Flood), nil
}

// Convergences recomputes cyclone-outbreak pairs from active cyclones and
// the current outbreak snapshot. Not persisted, not cached: the inputs are
// already cheap and the pairing is content-addressed.
func (s *Service) Convergences(ctx context.Context, window time.Duration) ([]hazard.Convergence, error) {
	cyclones, err := s.Cyclones(ctx, window)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	obs := s.outbreaks
	s.mu.RUnlock()
	return convergence.Detect(cyclones, obs, convergence.Params{MaxDistanceKm: s.params.ConvergenceKm}), nil
}

// Realtime returns the composite feed. The assembled feed is cached per
// (window, bbox) so repeated requests inside the TTL get the identical
// response, LastUpdated included. A nil bbox returns everything.
func (s *Service) Realtime(ctx context.Context, window time.Duration, bbox *geo.BBox) (*Feed, error) {
	key := cacheKey("realtime", window)
	if bbox != nil {
		key = fmt.Sprintf("%s|%.4f,%.4f,%.4f,%.4f",
			key, bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon)
	}
	v, err := s.cache.do(key, func() (any, error) {
		return s.assembleFeed(ctx, window, bbox)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Feed), nil
}

func (s *Service) assembleFeed(ctx context.Context, window time.Duration, bbox *geo.BBox) (*Feed, error) {
	cyclones, err := s.Cyclones(ctx, window)
	if err != nil {
		return nil, err
	}
	floods, err := s.Floods(ctx, 0)
	if err != nil {
		return nil, err
	}
	slides, err := s.Landslides(ctx)
	if err != nil {
		return nil, err
	}
	wet, err := s.Waterlogged(ctx)
	if err != nil {
		return nil, err
	}
	convs, err := s.Convergences(ctx, window)
	if err != nil {
		return nil, err
	}

	if bbox != nil {
		cyclones = filterCyclones(cyclones, *bbox)
		floods = filterFloods(floods, *bbox)
		slides = filterLandslides(slides, *bbox)
		wet = filterFloods(wet, *bbox)
		convs = filterConvergences(convs, *bbox)
	}

	feed := &Feed{
		Cyclones:     cyclones,
		Floods:       floods,
		Landslides:   slides,
		Waterlogged:  wet,
		Convergences: convs,
		LastUpdated:  s.now().UTC(),
	}
	feed.Summary = summarize(feed)
	return feed, nil
}

func summarize(f *Feed) Summary {
	sum := Summary{
		Cyclones:    len(f.Cyclones),
		Floods:      len(f.Floods),
		Landslides:  len(f.Landslides),
		Waterlogged: len(f.Waterlogged),
	}
	sum.TotalActive = sum.Cyclones + sum.Floods + sum.Landslides + len(f.Convergences)

	highest := hazard.ThreatLevel("")
	for _, c := range f.Cyclones {
		if c.ThreatLevel.Rank() > highest.Rank() {
			highest = c.ThreatLevel
		}
	}
	sum.HighestThreat = string(highest)
	if sum.HighestThreat == "" {
		sum.HighestThreat = "none"
	}
	return sum
}

func dedupCyclones(in []hazard.Cyclone) []hazard.Cyclone {
	out := in[:0:0]
	for _, c := range in {
		dup := false
		for _, kept := range out {
			if geo.WithinDegrees(c.Location, kept.Location, dedupDeg) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

func dedupFloods(in []hazard.Flood) []hazard.Flood {
	out := in[:0:0]
	for _, f := range in {
		dup := false
		for _, kept := range out {
			if geo.WithinDegrees(f.Location, kept.Location, dedupDeg) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}
	return out
}

func dedupLandslides(in []hazard.LandslideRisk) []hazard.LandslideRisk {
	out := in[:0:0]
	for _, z := range in {
		dup := false
		for _, kept := range out {
			if geo.WithinDegrees(z.Location, kept.Location, dedupDeg) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, z)
		}
	}
	return out
}

func filterCyclones(in []hazard.Cyclone, b geo.BBox) []hazard.Cyclone {
	out := in[:0:0]
	for _, c := range in {
		if b.Contains(c.Location) {
			out = append(out, c)
		}
	}
	return out
}

func filterFloods(in []hazard.Flood, b geo.BBox) []hazard.Flood {
	out := in[:0:0]
	for _, f := range in {
		if b.Contains(f.Location) {
			out = append(out, f)
		}
	}
	return out
}

func filterLandslides(in []hazard.LandslideRisk, b geo.BBox) []hazard.LandslideRisk {
	out := in[:0:0]
	for _, z := range in {
		if b.Contains(z.Location) {
			out = append(out, z)
		}
	}
	return out
}

func filterConvergences(in []hazard.Convergence, b geo.BBox) []hazard.Convergence {
	out := in[:0:0]
	for _, c := range in {
		if b.Contains(c.Location) {
			out = append(out, c)
		}
	}
	return out
}
