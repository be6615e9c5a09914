package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrostorm/hazardwatch/pkg/alerts"
	"github.com/afrostorm/hazardwatch/pkg/config"
	"github.com/afrostorm/hazardwatch/pkg/hazard"
	"github.com/afrostorm/hazardwatch/pkg/query"
	"github.com/afrostorm/hazardwatch/pkg/sources"
	"github.com/afrostorm/hazardwatch/pkg/store"
)

// stubAdapter returns a fixed batch, optionally failing.
type stubAdapter struct {
	name  string
	batch *sources.Batch
	err   error
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Fetch(ctx context.Context, w sources.Window) (*sources.Batch, error) {
	if s.err != nil {
		return &sources.Batch{}, s.err
	}
	return s.batch, nil
}

type sinkChannel struct{ sent int }

func (s *sinkChannel) Send(ctx context.Context, r alerts.Recipient, m alerts.Message) error {
	s.sent++
	return nil
}

func beiraCyclone() hazard.Cyclone {
	return hazard.Cyclone{
		ID:               "SWIO-2026-04",
		Location:         hazard.Location{Lat: -19.8, Lon: 34.9},
		DetectionTime:    time.Now().UTC().Add(-time.Hour),
		Source:           "forecast",
		Confidence:       0.9,
		ThreatLevel:      hazard.ThreatCAT2,
		MaxWindKt:        88,
		MaxWindMS:        45.3,
		MinPressureHPa:   955,
		TrackProbability: 1.0,
	}
}

func newTestMonitor(t *testing.T, adapters []sources.Adapter) (*Monitor, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "hazards.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	pipeline := alerts.NewPipeline(st, &alerts.EnglishRenderer{},
		map[string]alerts.Channel{"email": &sinkChannel{}},
		cfg.Alerts.DedupWindow, nil, zerolog.Nop())
	qs := query.NewService(st, query.Params{
		CacheTTL:         cfg.Query.CacheTTL,
		CycloneLookback:  cfg.Query.CycloneLookback,
		FloodLookback:    cfg.Query.FloodLookback,
		WaterlogLookback: cfg.Query.WaterlogLookback,
		ConvergenceKm:    cfg.Detection.ConvergenceKm,
	}, zerolog.Nop())
	return New(cfg, adapters, st, pipeline, qs, zerolog.Nop()), st
}

func TestRunOnceRecordsExactlyOneRun(t *testing.T) {
	m, st := newTestMonitor(t, []sources.Adapter{
		&stubAdapter{name: "forecast", batch: &sources.Batch{Cyclones: []hazard.Cyclone{beiraCyclone()}}},
	})
	ctx := context.Background()

	res, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, 1, res.Cyclones)
	assert.Equal(t, 2, res.AlertsSent) // mozambique + regional

	run, err := st.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "success", run.Status)
	assert.Equal(t, 1, run.DetectionsCount)
}

func TestDedupAcrossCycles(t *testing.T) {
	m, st := newTestMonitor(t, []sources.Adapter{
		&stubAdapter{name: "forecast", batch: &sources.Batch{Cyclones: []hazard.Cyclone{beiraCyclone()}}},
	})
	ctx := context.Background()

	first, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.AlertsSent)

	// identical upstream state an hour later emits nothing new
	second, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.AlertsSent)

	all, err := st.ListAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLandslideDedupAcrossCycles(t *testing.T) {
	cell := sources.TerrainCell{Lat: -19.8, Lon: 34.9, SlopeDeg: 40, RainfallMM: 450}
	m, st := newTestMonitor(t, []sources.Adapter{
		&stubAdapter{name: "terrain", batch: &sources.Batch{Terrain: []sources.TerrainCell{cell}}},
	})
	ctx := context.Background()

	first, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Landslides)
	assert.Equal(t, 2, first.AlertsSent) // mozambique + regional

	// unchanged terrain an hour later reproduces the same zone id
	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	second, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Landslides)
	assert.Equal(t, 0, second.AlertsSent)

	all, err := st.ListAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSourceFailureIsNotFatal(t *testing.T) {
	m, st := newTestMonitor(t, []sources.Adapter{
		&stubAdapter{name: "forecast", batch: &sources.Batch{Cyclones: []hazard.Cyclone{beiraCyclone()}}},
		&stubAdapter{name: "outbreaks", err: context.DeadlineExceeded},
	})
	ctx := context.Background()

	res, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Contains(t, res.Error, "outbreaks")
	assert.Equal(t, 1, res.Cyclones)

	run, err := st.LastRun(ctx)
	require.NoError(t, err)
	assert.Contains(t, run.Error, "outbreaks")
}

func TestOverlapSkipRecorded(t *testing.T) {
	m, st := newTestMonitor(t, nil)
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	res, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "skipped", res.Status)

	run, err := st.LastRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "skipped", run.Status)
}

func TestSleepInterruptible(t *testing.T) {
	m, _ := newTestMonitor(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.sleepInterruptible(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("sleep did not observe cancellation")
	}
}

func TestStatusSnapshot(t *testing.T) {
	m, _ := newTestMonitor(t, []sources.Adapter{
		&stubAdapter{name: "forecast", batch: &sources.Batch{}},
	})
	ctx := context.Background()

	snap, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "IDLE", snap.State)
	assert.Nil(t, snap.LastRun)

	_, err = m.RunOnce(ctx)
	require.NoError(t, err)

	snap, err = m.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.LastRun)
	assert.Equal(t, "success", snap.LastRun.Status)
}
