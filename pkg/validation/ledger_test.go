package validation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrostorm/hazardwatch/pkg/store"
)

func newTestLedger(t *testing.T) (*Ledger, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "hazards.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewLedger(st, zerolog.Nop()), st
}

func seedAlert(t *testing.T, st *store.Store, alertID string, sentAt time.Time) {
	t.Helper()
	require.NoError(t, st.InsertAlert(context.Background(), &store.SentAlert{
		AlertID:    alertID,
		HazardType: "cyclone",
		HazardID:   "SWIO-2026-04",
		Country:    "mozambique",
		Subject:    "[HAZARD ALERT] CYCLONE",
		SentAt:     sentAt,
		TrackingID: "deadbeefdeadbeef",
	}))
}

func TestReconcileLeadTime(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()
	sentAt := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	seedAlert(t, st, "cyclone-mozambique-deadbeefdeadbeef", sentAt)

	ev, err := l.Reconcile(ctx, "cyclone-mozambique-deadbeefdeadbeef",
		"landfall", sentAt.Add(84*time.Hour), "CAT2 landfall near Beira", "")
	require.NoError(t, err)
	assert.InDelta(t, 84.0, ev.LeadTimeHours, 0.05)

	alert, err := st.GetAlert(ctx, "cyclone-mozambique-deadbeefdeadbeef")
	require.NoError(t, err)
	assert.True(t, alert.Validated)

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ValidatedAlerts)
	assert.InDelta(t, 84.0, stats.MeanLeadTimeHours, 0.05)
}

func TestReconcileRejectsEventBeforeAlert(t *testing.T) {
	l, st := newTestLedger(t)
	sentAt := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	seedAlert(t, st, "a1", sentAt)

	_, err := l.Reconcile(context.Background(), "a1", "landfall",
		sentAt.Add(-time.Hour), "", "")
	assert.ErrorContains(t, err, "precedes")
}

func TestReconcileUnknownAlert(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Reconcile(context.Background(), "missing", "landfall",
		time.Now(), "", "")
	assert.ErrorIs(t, err, store.ErrAlertNotFound)
}

func TestPending(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()
	sentAt := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	seedAlert(t, st, "a1", sentAt)

	pending, err := l.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = l.Reconcile(ctx, "a1", "landfall", sentAt.Add(time.Hour), "", "")
	require.NoError(t, err)

	pending, err = l.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
