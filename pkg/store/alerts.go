package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RecipientOutcome is the per-recipient result of one dispatch.
type RecipientOutcome struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Channel string `json:"channel"`
	Outcome string `json:"outcome"` // sent | failed | no_provider
	Error   string `json:"error,omitempty"`
}

// SentAlert is one (hazard, country) alert record.
type SentAlert struct {
	AlertID         string
	HazardType      string
	HazardID        string
	Country         string
	Recipients      []RecipientOutcome
	Subject         string
	SentAt          time.Time
	TrackingID      string
	OpenedAt        *time.Time
	Validated       bool
	ValidationNotes string
}

// ValidationEvent reconciles a sent alert with a ground-truth outcome.
type ValidationEvent struct {
	AlertID       string
	EventType     string
	EventDate     time.Time
	ActualImpact  string
	LeadTimeHours float64
	AccuracyNotes string
}

// MonitorRun is the per-cycle run record.
type MonitorRun struct {
	RunTime         time.Time `json:"run_time"`
	DataSources     string    `json:"data_sources"`
	DetectionsCount int       `json:"detections_count"`
	AlertsSent      int       `json:"alerts_sent"`
	DurationSeconds float64   `json:"duration_seconds"`
	Status          string    `json:"status"` // success | error | skipped
	Error           string    `json:"error,omitempty"`
}

// Stats aggregates the validation ledger.
type Stats struct {
	TotalAlerts       int     `json:"total_alerts_sent"`
	OpenedAlerts      int     `json:"alerts_opened"`
	OpenRate          float64 `json:"open_rate"`
	ValidatedAlerts   int     `json:"validated_events"`
	ValidatedRate     float64 `json:"validated_rate"`
	MeanLeadTimeHours float64 `json:"average_lead_time_hours"`
}

// ErrAlertNotFound is returned when an alert id or tracking id is unknown.
var ErrAlertNotFound = errors.New("alert not found")

// InsertAlert writes a sent-alert record. The alert_id and tracking id are
// assigned by the caller; the UNIQUE constraint on alert_id makes a replayed
// insert fail rather than duplicate.
func (s *Store) InsertAlert(ctx context.Context, a *SentAlert) error {
	recips, err := json.Marshal(a.Recipients)
	if err != nil {
		return fmt.Errorf("encode recipients: %w", err)
	}
	_, err = s.execRetry(ctx, `
        INSERT INTO sent_alerts (
            alert_id, hazard_type, hazard_id, country, recipients_json,
            subject, sent_at, tracking_pixel_id
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AlertID, a.HazardType, a.HazardID, a.Country, string(recips),
		a.Subject, a.SentAt.UTC().Format(timeLayout), a.TrackingID)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// HasRecentAlert reports whether an alert for (hazardID, country) was sent
// within the window ending now. This is the dedup check.
func (s *Store) HasRecentAlert(ctx context.Context, hazardID, country string, window time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-window)
	var n int
	err := s.db.GetContext(ctx, &n, `
        SELECT COUNT(*) FROM sent_alerts
        WHERE hazard_id = ? AND country = ? AND sent_at > ?`,
		hazardID, country, cutoff.Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("dedup query: %w", err)
	}
	return n > 0, nil
}

// RecordOpen inserts a tracking-open event and sets the alert's first
// opened_at. Repeated opens add rows but leave opened_at untouched.
func (s *Store) RecordOpen(ctx context.Context, trackingID string, at time.Time, ip, ua string) error {
	ts := at.UTC().Format(timeLayout)
	if _, err := s.execRetry(ctx, `
        INSERT INTO tracking_opens (tracking_id, opened_at, ip_address, user_agent)
        VALUES (?, ?, ?, ?)`,
		trackingID, ts, nullString(ip), nullString(ua)); err != nil {
		return fmt.Errorf("insert tracking open: %w", err)
	}
	if _, err := s.execRetry(ctx, `
        UPDATE sent_alerts SET opened_at = ?
        WHERE tracking_pixel_id = ? AND opened_at IS NULL`,
		ts, trackingID); err != nil {
		return fmt.Errorf("update opened_at: %w", err)
	}
	return nil
}

// RecordValidation appends a validation event and marks the alert validated.
func (s *Store) RecordValidation(ctx context.Context, ev *ValidationEvent) error {
	if _, err := s.execRetry(ctx, `
        INSERT INTO validation_events (
            alert_id, event_type, event_date, actual_impact,
            lead_time_hours, accuracy_notes
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.AlertID, ev.EventType, ev.EventDate.UTC().Format(timeLayout),
		nullString(ev.ActualImpact), ev.LeadTimeHours, nullString(ev.AccuracyNotes)); err != nil {
		return fmt.Errorf("insert validation event: %w", err)
	}
	if _, err := s.execRetry(ctx, `
        UPDATE sent_alerts SET validated = TRUE, validation_notes = ?
        WHERE alert_id = ?`,
		nullString(ev.AccuracyNotes), ev.AlertID); err != nil {
		return fmt.Errorf("mark alert validated: %w", err)
	}
	return nil
}

type sentAlertRow struct {
	ID              int64          `db:"id"`
	AlertID         string         `db:"alert_id"`
	HazardType      string         `db:"hazard_type"`
	HazardID        sql.NullString `db:"hazard_id"`
	Country         string         `db:"country"`
	RecipientsJSON  sql.NullString `db:"recipients_json"`
	Subject         sql.NullString `db:"subject"`
	SentAt          string         `db:"sent_at"`
	TrackingID      sql.NullString `db:"tracking_pixel_id"`
	OpenedAt        sql.NullString `db:"opened_at"`
	Validated       bool           `db:"validated"`
	ValidationNotes sql.NullString `db:"validation_notes"`
	CreatedAt       sql.NullString `db:"created_at"`
}

func (r *sentAlertRow) toAlert() SentAlert {
	a := SentAlert{
		AlertID:         r.AlertID,
		HazardType:      r.HazardType,
		HazardID:        r.HazardID.String,
		Country:         r.Country,
		Subject:         r.Subject.String,
		TrackingID:      r.TrackingID.String,
		Validated:       r.Validated,
		ValidationNotes: r.ValidationNotes.String,
	}
	if t, err := time.Parse(timeLayout, r.SentAt); err == nil {
		a.SentAt = t
	}
	if r.OpenedAt.Valid {
		if t, err := time.Parse(timeLayout, r.OpenedAt.String); err == nil {
			a.OpenedAt = &t
		}
	}
	if r.RecipientsJSON.Valid {
		_ = json.Unmarshal([]byte(r.RecipientsJSON.String), &a.Recipients)
	}
	return a
}

// GetAlert returns the alert with the given alert id.
func (s *Store) GetAlert(ctx context.Context, alertID string) (*SentAlert, error) {
	var row sentAlertRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM sent_alerts WHERE alert_id = ?`, alertID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	a := row.toAlert()
	return &a, nil
}

// ListAlerts returns the most recent alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]SentAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []sentAlertRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM sent_alerts ORDER BY sent_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	out := make([]SentAlert, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toAlert())
	}
	return out, nil
}

// InsertRun appends a monitor-run record. Every cycle produces exactly one.
func (s *Store) InsertRun(ctx context.Context, r *MonitorRun) error {
	_, err := s.execRetry(ctx, `
        INSERT INTO monitor_runs (
            run_time, data_source, detections_count, alerts_sent,
            duration_seconds, status, error
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunTime.UTC().Format(timeLayout), r.DataSources, r.DetectionsCount,
		r.AlertsSent, r.DurationSeconds, r.Status, nullString(r.Error))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// LastRun returns the most recent monitor run, or nil when none exists.
func (s *Store) LastRun(ctx context.Context) (*MonitorRun, error) {
	var row struct {
		RunTime         string          `db:"run_time"`
		DataSource      sql.NullString  `db:"data_source"`
		DetectionsCount sql.NullInt64   `db:"detections_count"`
		AlertsSent      sql.NullInt64   `db:"alerts_sent"`
		DurationSeconds sql.NullFloat64 `db:"duration_seconds"`
		Status          sql.NullString  `db:"status"`
		Error           sql.NullString  `db:"error"`
	}
	err := s.db.GetContext(ctx, &row, `
        SELECT run_time, data_source, detections_count, alerts_sent,
               duration_seconds, status, error
        FROM monitor_runs ORDER BY id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	run := MonitorRun{
		DataSources:     row.DataSource.String,
		DetectionsCount: int(row.DetectionsCount.Int64),
		AlertsSent:      int(row.AlertsSent.Int64),
		DurationSeconds: row.DurationSeconds.Float64,
		Status:          row.Status.String,
		Error:           row.Error.String,
	}
	if t, err := time.Parse(timeLayout, row.RunTime); err == nil {
		run.RunTime = t
	}
	return &run, nil
}

// ValidationStats computes the aggregate counters for the validation ledger.
func (s *Store) ValidationStats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.db.GetContext(ctx, &st.TotalAlerts,
		`SELECT COUNT(*) FROM sent_alerts`); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if err := s.db.GetContext(ctx, &st.OpenedAlerts,
		`SELECT COUNT(*) FROM sent_alerts WHERE opened_at IS NOT NULL`); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if err := s.db.GetContext(ctx, &st.ValidatedAlerts,
		`SELECT COUNT(*) FROM sent_alerts WHERE validated = TRUE`); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	var mean sql.NullFloat64
	if err := s.db.GetContext(ctx, &mean,
		`SELECT AVG(lead_time_hours) FROM validation_events`); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	st.MeanLeadTimeHours = mean.Float64
	if st.TotalAlerts > 0 {
		st.OpenRate = float64(st.OpenedAlerts) / float64(st.TotalAlerts)
		st.ValidatedRate = float64(st.ValidatedAlerts) / float64(st.TotalAlerts)
	}
	return &st, nil
}
