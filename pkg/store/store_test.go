package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrostorm/hazardwatch/pkg/geo"
	"github.com/afrostorm/hazardwatch/pkg/hazard"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "hazards.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCyclone(id string, at time.Time) *hazard.Cyclone {
	return &hazard.Cyclone{
		ID:               id,
		Location:         hazard.Location{Lat: -19.5, Lon: 47.25},
		DetectionTime:    at,
		Source:           "forecast",
		Confidence:       0.9,
		ThreatLevel:      hazard.ThreatCAT2,
		MaxWindKt:        88,
		MaxWindMS:        45.3,
		MinPressureHPa:   955,
		TrackProbability: 0.85,
		Track: []hazard.TrackPoint{
			{Time: at.Add(-6 * time.Hour), Lat: -19.2, Lon: 47.8, WindKt: 80},
			{Time: at, Lat: -19.5, Lon: 47.25, WindKt: 88},
		},
	}
}

func TestDetectionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	id, err := s.InsertDetection(ctx, sampleCyclone("SWIO-2026-04", at))
	require.NoError(t, err)
	assert.Positive(t, id)

	out, err := s.ListDetections(ctx, at.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.Equal(t, "SWIO-2026-04", got.ID)
	assert.Equal(t, hazard.ThreatCAT2, got.ThreatLevel)
	assert.InDelta(t, 955, got.MinPressureHPa, 1e-9)
	assert.InDelta(t, 0.85, got.TrackProbability, 1e-9)
	require.Len(t, got.Track, 2)
	assert.True(t, got.DetectionTime.Equal(at))
}

func TestInsertDetectionRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	bad := sampleCyclone("x", time.Now())
	bad.Location.Lat = -120
	_, err := s.InsertDetection(context.Background(), bad)
	assert.Error(t, err)
}

func TestListDetectionsWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.InsertDetection(ctx, sampleCyclone("old", now.Add(-48*time.Hour)))
	require.NoError(t, err)
	_, err = s.InsertDetection(ctx, sampleCyclone("new", now.Add(-time.Hour)))
	require.NoError(t, err)

	out, err := s.ListDetections(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].ID)

	n, err := s.CountDetectionsSince(ctx, now.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFloodAssessmentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 9, 6, 0, 0, 0, time.UTC)

	_, err := s.InsertFloodAssessment(ctx, &FloodAssessment{
		DetectionTime: at,
		Region:        "basin",
		BBox:          geo.BBox{MinLat: -35, MaxLat: 0, MinLon: 20, MaxLon: 80},
		Floods: []hazard.Flood{{
			ID: "f1", Location: hazard.Location{Lat: -19.8, Lon: 34.9},
			DetectionTime: at, Source: "sar_flood",
			AreaKm2: 120, Severity: hazard.FloodMajor, WaterFraction: 0.8,
		}},
		TotalAreaKm2: 120,
		MaxSeverity:  hazard.FloodMajor,
	})
	require.NoError(t, err)

	floods, err := s.ListFloods(ctx, at.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, floods, 1)
	assert.Equal(t, "f1", floods[0].ID)
	assert.Equal(t, hazard.FloodMajor, floods[0].Severity)
	assert.InDelta(t, 0.8, floods[0].WaterFraction, 1e-9)
}

func TestLandslideAssessmentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.InsertLandslideAssessment(ctx, &LandslideAssessment{
		AssessmentTime: at,
		Region:         "basin",
		BBox:           geo.BBox{MinLat: -35, MaxLat: 0, MinLon: 20, MaxLon: 80},
		RainfallMM:     450,
		Risks: []hazard.LandslideRisk{{
			ID: "slide-1", Location: hazard.Location{Lat: -18.9, Lon: 47.5},
			DetectionTime: at, Source: "terrain", Confidence: 1.0,
			RiskLevel: hazard.RiskExtreme, RiskScore: 1.0,
			SlopeDeg: 40, RainfallMM: 450,
		}},
		HighRiskZones: 1,
		AreaAtRiskKm2: 2900,
	})
	require.NoError(t, err)

	risks, err := s.ListLandslides(ctx, at.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, risks, 1)
	assert.Equal(t, hazard.RiskExtreme, risks[0].RiskLevel)
}

func TestAlertUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := &SentAlert{
		AlertID: "a1", HazardType: "cyclone", HazardID: "SWIO-2026-04",
		Country: "mozambique", SentAt: time.Now().UTC(), TrackingID: "deadbeefdeadbeef",
	}
	require.NoError(t, s.InsertAlert(ctx, a))
	assert.Error(t, s.InsertAlert(ctx, a))
}

func TestHasRecentAlert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertAlert(ctx, &SentAlert{
		AlertID: "a1", HazardType: "cyclone", HazardID: "SWIO-2026-04",
		Country: "mozambique", SentAt: time.Now().UTC().Add(-time.Hour),
		TrackingID: "deadbeefdeadbeef",
	}))

	dup, err := s.HasRecentAlert(ctx, "SWIO-2026-04", "mozambique", 6*time.Hour)
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = s.HasRecentAlert(ctx, "SWIO-2026-04", "malawi", 6*time.Hour)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = s.HasRecentAlert(ctx, "SWIO-2026-04", "mozambique", 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestRecordOpenIdempotentFirstOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sentAt := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.InsertAlert(ctx, &SentAlert{
		AlertID: "a1", HazardType: "cyclone", HazardID: "h",
		Country: "mozambique", SentAt: sentAt, TrackingID: "deadbeefdeadbeef",
	}))

	first := sentAt.Add(30 * time.Minute)
	require.NoError(t, s.RecordOpen(ctx, "deadbeefdeadbeef", first, "10.0.0.1", "curl"))
	require.NoError(t, s.RecordOpen(ctx, "deadbeefdeadbeef", first.Add(time.Minute), "", ""))

	a, err := s.GetAlert(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, a.OpenedAt)
	assert.True(t, a.OpenedAt.Equal(first))
	assert.False(t, a.OpenedAt.Before(a.SentAt))
}

func TestGetAlertNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAlert(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestMonitorRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	last, err := s.LastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, s.InsertRun(ctx, &MonitorRun{
		RunTime: time.Now().UTC(), DataSources: "forecast,outbreaks",
		DetectionsCount: 3, AlertsSent: 2, DurationSeconds: 12.5, Status: "success",
	}))
	require.NoError(t, s.InsertRun(ctx, &MonitorRun{
		RunTime: time.Now().UTC(), DataSources: "forecast,outbreaks",
		Status: "skipped", Error: "previous cycle still running",
	}))

	last, err = s.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "skipped", last.Status)
}

func TestValidationStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sentAt := time.Now().UTC().Add(-100 * time.Hour)

	for _, id := range []string{"a1", "a2"} {
		require.NoError(t, s.InsertAlert(ctx, &SentAlert{
			AlertID: id, HazardType: "cyclone", HazardID: "h",
			Country: "mozambique", SentAt: sentAt, TrackingID: id + "00000000000000",
		}))
	}
	require.NoError(t, s.RecordOpen(ctx, "a100000000000000", sentAt.Add(time.Hour), "", ""))
	require.NoError(t, s.RecordValidation(ctx, &ValidationEvent{
		AlertID: "a1", EventType: "landfall",
		EventDate: sentAt.Add(84 * time.Hour), LeadTimeHours: 84,
	}))

	st, err := s.ValidationStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalAlerts)
	assert.Equal(t, 1, st.OpenedAlerts)
	assert.InDelta(t, 0.5, st.OpenRate, 1e-9)
	assert.Equal(t, 1, st.ValidatedAlerts)
	assert.InDelta(t, 84, st.MeanLeadTimeHours, 0.05)
}
