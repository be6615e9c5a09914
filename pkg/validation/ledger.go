// Package validation reconciles sent alerts with ground-truth outcomes.
// Every dispatched alert is an implicit pending prediction; attaching an
// observed event computes the lead time and feeds the accuracy statistics.
package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/afrostorm/hazardwatch/pkg/store"
)

// Ledger attaches ground-truth events to alerts and aggregates accuracy.
type Ledger struct {
	store *store.Store
	log   zerolog.Logger
}

// NewLedger builds the validation ledger.
func NewLedger(st *store.Store, log zerolog.Logger) *Ledger {
	return &Ledger{store: st, log: log.With().Str("component", "validation").Logger()}
}

// Reconcile records that the predicted event occurred. Lead time is the gap
// between the alert's dispatch and the observed event.
func (l *Ledger) Reconcile(ctx context.Context, alertID, eventType string, eventTime time.Time, actualImpact, notes string) (*store.ValidationEvent, error) {
	alert, err := l.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if eventTime.Before(alert.SentAt) {
		return nil, fmt.Errorf("event at %s precedes alert sent at %s",
			eventTime.UTC().Format(time.RFC3339), alert.SentAt.UTC().Format(time.RFC3339))
	}

	ev := &store.ValidationEvent{
		AlertID:       alertID,
		EventType:     eventType,
		EventDate:     eventTime,
		ActualImpact:  actualImpact,
		LeadTimeHours: eventTime.Sub(alert.SentAt).Hours(),
		AccuracyNotes: notes,
	}
	if err := l.store.RecordValidation(ctx, ev); err != nil {
		return nil, err
	}
	l.log.Info().Str("alert", alertID).Str("event", eventType).
		Float64("lead_time_hours", ev.LeadTimeHours).
		Msg("alert validated against ground truth")
	return ev, nil
}

// Pending lists dispatched alerts not yet reconciled, newest first.
func (l *Ledger) Pending(ctx context.Context, limit int) ([]store.SentAlert, error) {
	alerts, err := l.store.ListAlerts(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := alerts[:0:0]
	for _, a := range alerts {
		if !a.Validated {
			out = append(out, a)
		}
	}
	return out, nil
}

// Stats returns open rate, validated rate, and mean lead time.
func (l *Ledger) Stats(ctx context.Context) (*store.Stats, error) {
	return l.store.ValidationStats(ctx)
}
