package alerts

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrostorm/hazardwatch/pkg/hazard"
	"github.com/afrostorm/hazardwatch/pkg/metrics"
	"github.com/afrostorm/hazardwatch/pkg/store"
)

func TestRoute(t *testing.T) {
	// Mozambique coast
	got := Route(hazard.Location{Lat: -22.0, Lon: 35.3})
	assert.Equal(t, []string{"mozambique", RegionalRoute}, got)

	// Antananarivo
	got = Route(hazard.Location{Lat: -18.9, Lon: 47.5})
	assert.Equal(t, []string{"madagascar", RegionalRoute}, got)

	// null island is outside every box including the basin catch-all
	assert.Empty(t, Route(hazard.Location{Lat: 0, Lon: 0}))

	// open ocean inside the basin routes regional only
	got = Route(hazard.Location{Lat: -15, Lon: 60})
	assert.Equal(t, []string{RegionalRoute}, got)
}

func TestRecipientsFor(t *testing.T) {
	moz := RecipientsFor("mozambique")
	require.Len(t, moz, 3)
	assert.Equal(t, "INAM", moz[0].Name)
	assert.Equal(t, 1, moz[0].Priority)

	assert.Nil(t, RecipientsFor("atlantis"))

	// callers get a copy, not the table
	moz[0].Name = "mutated"
	assert.Equal(t, "INAM", RecipientsFor("mozambique")[0].Name)
}

func TestTrackingID(t *testing.T) {
	at := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	id := TrackingID("SWIO-2026-04", "mozambique", at)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), id)

	// deterministic for the same inputs, distinct across countries
	assert.Equal(t, id, TrackingID("SWIO-2026-04", "mozambique", at))
	assert.NotEqual(t, id, TrackingID("SWIO-2026-04", "malawi", at))
}

func TestEnglishRendererPixel(t *testing.T) {
	r := &EnglishRenderer{PixelBase: "https://alerts.example.org/track"}
	n := Notice{
		HazardType: "cyclone",
		HazardID:   "SWIO-2026-04",
		Headline:   "Tropical system SWIO-2026-04 (CAT2)",
		Lines:      []string{"Position: -19.50, 47.25"},
		IssuedAt:   time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
	msg, err := r.Render(n, "en", "deadbeefdeadbeef")
	require.NoError(t, err)
	assert.Contains(t, msg.Subject, "CYCLONE")
	assert.Contains(t, msg.HTML, "https://alerts.example.org/track/deadbeefdeadbeef.png")
	assert.Contains(t, msg.Text, "Position: -19.50, 47.25")

	_, err = r.Render(n, "sw", "deadbeefdeadbeef")
	assert.Error(t, err)
}

// stubChannel scripts per-address outcomes and counts attempts.
type stubChannel struct {
	fail     map[string]error
	attempts map[string]int
}

func (s *stubChannel) Send(ctx context.Context, r Recipient, m Message) error {
	if s.attempts == nil {
		s.attempts = map[string]int{}
	}
	s.attempts[r.Address]++
	return s.fail[r.Address]
}

func newTestPipeline(t *testing.T, ch Channel) (*Pipeline, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "hazards.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p := NewPipeline(st, &EnglishRenderer{PixelBase: "http://x/track"},
		map[string]Channel{"email": ch}, 6*time.Hour, nil, zerolog.Nop())
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p, st
}

func cycloneNotice() (Notice, hazard.Location) {
	loc := hazard.Location{Lat: -19.8, Lon: 34.9}
	cyc := &hazard.Cyclone{
		ID:             "SWIO-2026-04",
		Location:       loc,
		DetectionTime:  time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		ThreatLevel:    hazard.ThreatCAT2,
		MaxWindKt:      88,
		MaxWindMS:      45,
		MinPressureHPa: 955,
		Confidence:     0.9,
	}
	return NoticeFromCyclone(cyc, ""), loc
}

func TestDispatchDedupWindow(t *testing.T) {
	ch := &stubChannel{}
	p, st := newTestPipeline(t, ch)
	n, loc := cycloneNotice()
	ctx := context.Background()

	sent, err := p.Dispatch(ctx, n, loc)
	require.NoError(t, err)
	assert.Equal(t, 2, sent) // mozambique + regional

	// identical cycle an hour later emits nothing new
	sent, err = p.Dispatch(ctx, n, loc)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	alerts, err := st.ListAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestDeliveryOutcomeCounters(t *testing.T) {
	ch := &stubChannel{fail: map[string]error{
		"info@ingd.gov.mz": errors.New("provider_timeout"),
	}}
	p, _ := newTestPipeline(t, ch)
	n, _ := cycloneNotice()

	sentBefore := testutil.ToFloat64(metrics.AlertsTotal.WithLabelValues("sent"))
	failedBefore := testutil.ToFloat64(metrics.AlertsTotal.WithLabelValues("failed"))

	require.NoError(t, p.SendTo(context.Background(), n, "mozambique", RecipientsFor("mozambique")))

	assert.InDelta(t, sentBefore+2,
		testutil.ToFloat64(metrics.AlertsTotal.WithLabelValues("sent")), 1e-9)
	assert.InDelta(t, failedBefore+1,
		testutil.ToFloat64(metrics.AlertsTotal.WithLabelValues("failed")), 1e-9)
}

func TestDispatchPartialFailure(t *testing.T) {
	ch := &stubChannel{fail: map[string]error{
		"info@ingd.gov.mz": errors.New("provider_timeout"),
	}}
	p, st := newTestPipeline(t, ch)
	n, _ := cycloneNotice()
	ctx := context.Background()

	require.NoError(t, p.SendTo(ctx, n, "mozambique", RecipientsFor("mozambique")))

	alerts, err := st.ListAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Len(t, alerts[0].Recipients, 3)

	byAddr := map[string]store.RecipientOutcome{}
	for _, o := range alerts[0].Recipients {
		byAddr[o.Address] = o
	}
	assert.Equal(t, "sent", byAddr["geral@inam.gov.mz"].Outcome)
	assert.Equal(t, "failed", byAddr["info@ingd.gov.mz"].Outcome)
	assert.Contains(t, byAddr["info@ingd.gov.mz"].Error, "provider_timeout")

	// two retries after the initial attempt
	assert.Equal(t, 3, ch.attempts["info@ingd.gov.mz"])
	assert.Equal(t, 1, ch.attempts["geral@inam.gov.mz"])
}

func TestDispatchNoProvider(t *testing.T) {
	p, st := newTestPipeline(t, &EmailChannel{}) // no host configured
	n, _ := cycloneNotice()
	ctx := context.Background()

	require.NoError(t, p.SendTo(ctx, n, "malawi", RecipientsFor("malawi")))
	alerts, err := st.ListAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	for _, o := range alerts[0].Recipients {
		assert.Equal(t, "no_provider", o.Outcome)
	}
}

func TestDispatchOutsideAllRoutes(t *testing.T) {
	ch := &stubChannel{}
	p, st := newTestPipeline(t, ch)
	n, _ := cycloneNotice()

	sent, err := p.Dispatch(context.Background(), n, hazard.Location{Lat: 0, Lon: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	alerts, err := st.ListAlerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestArchivePrune(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArchive(dir, 2, zerolog.Nop())
	require.NoError(t, err)

	base := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		_, err := a.Save(&store.SentAlert{
			AlertID:    "a",
			TrackingID: string(rune('a'+i)) + "000000000000000",
			SentAt:     base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	left, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, left, 2)
}
