// Package store is the durable hazard store: detections, flood and landslide
// assessments, sent alerts, tracking opens, validation events, and monitor
// runs. It is the only mutable shared resource in the pipeline; every writer
// uses a short transaction per record and every reader gets a snapshot.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/afrostorm/hazardwatch/pkg/geo"
	"github.com/afrostorm/hazardwatch/pkg/hazard"
)

// Schema uses CREATE IF NOT EXISTS so reopening an existing database is a
// no-op migration.
const schema = `
CREATE TABLE IF NOT EXISTS detections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    hazard_id TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    detection_time TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    min_pressure_hpa REAL,
    max_wind_ms REAL,
    max_wind_kt REAL,
    confidence REAL,
    source TEXT,
    track_probability REAL,
    threat_level TEXT,
    track_json TEXT,
    created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_detections_time ON detections(detection_time);

CREATE TABLE IF NOT EXISTS floods (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    detection_time TEXT NOT NULL,
    region TEXT,
    bbox_json TEXT,
    total_flooded_areas INTEGER,
    total_area_km2 REAL,
    max_severity TEXT,
    geojson TEXT
);
CREATE INDEX IF NOT EXISTS idx_floods_time ON floods(detection_time);

CREATE TABLE IF NOT EXISTS landslide_risks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    assessment_time TEXT NOT NULL,
    region TEXT,
    bbox_json TEXT,
    rainfall_mm REAL,
    total_zones INTEGER,
    high_risk_zones INTEGER,
    area_at_risk_km2 REAL,
    geojson TEXT
);
CREATE INDEX IF NOT EXISTS idx_landslides_time ON landslide_risks(assessment_time);

CREATE TABLE IF NOT EXISTS sent_alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    alert_id TEXT UNIQUE NOT NULL,
    hazard_type TEXT NOT NULL,
    hazard_id TEXT,
    country TEXT NOT NULL,
    recipients_json TEXT,
    subject TEXT,
    sent_at TEXT NOT NULL,
    tracking_pixel_id TEXT,
    opened_at TEXT,
    validated BOOLEAN DEFAULT FALSE,
    validation_notes TEXT,
    created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sent_alerts_hazard ON sent_alerts(hazard_id, country);
CREATE INDEX IF NOT EXISTS idx_sent_alerts_tracking ON sent_alerts(tracking_pixel_id);

CREATE TABLE IF NOT EXISTS tracking_opens (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tracking_id TEXT NOT NULL,
    opened_at TEXT NOT NULL,
    ip_address TEXT,
    user_agent TEXT
);

CREATE TABLE IF NOT EXISTS validation_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    alert_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    event_date TEXT NOT NULL,
    actual_impact TEXT,
    lead_time_hours REAL,
    accuracy_notes TEXT,
    created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS monitor_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_time TEXT NOT NULL,
    data_source TEXT,
    detections_count INTEGER,
    alerts_sent INTEGER,
    duration_seconds REAL,
    status TEXT,
    error TEXT
);
`

// Store wraps the SQLite database.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens the hazard database at path, applies the schema,
// and enables WAL so acknowledged writes survive a crash.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer keeps SQLite's locking out of the picture.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// execRetry runs a write, retrying once on failure per the persistence
// error policy.
func (s *Store) execRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err == nil {
		return res, nil
	}
	res, err2 := s.db.ExecContext(ctx, query, args...)
	if err2 != nil {
		return nil, fmt.Errorf("write failed after retry: %w (first attempt: %v)", err2, err)
	}
	return res, nil
}

const timeLayout = time.RFC3339Nano

// InsertDetection persists a cyclone detection. Returns the generated row id.
func (s *Store) InsertDetection(ctx context.Context, c *hazard.Cyclone) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	var trackJSON []byte
	if len(c.Track) > 0 {
		var err error
		trackJSON, err = json.Marshal(c.Track)
		if err != nil {
			return 0, fmt.Errorf("encode track: %w", err)
		}
	}

	res, err := s.execRetry(ctx, `
        INSERT INTO detections (
            kind, hazard_id, timestamp, detection_time, lat, lon,
            min_pressure_hpa, max_wind_ms, max_wind_kt, confidence,
            source, track_probability, threat_level, track_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(hazard.KindCyclone), c.ID,
		c.DetectionTime.UTC().Format(timeLayout),
		c.DetectionTime.UTC().Format(timeLayout),
		c.Location.Lat, c.Location.Lon,
		nullFloat(c.MinPressureHPa), nullFloat(c.MaxWindMS), nullFloat(c.MaxWindKt),
		c.Confidence, c.Source, c.TrackProbability, string(c.ThreatLevel),
		nullString(string(trackJSON)),
	)
	if err != nil {
		return 0, fmt.Errorf("insert detection: %w", err)
	}
	return res.LastInsertId()
}

type detectionRow struct {
	ID               int64           `db:"id"`
	Kind             string          `db:"kind"`
	HazardID         string          `db:"hazard_id"`
	Timestamp        string          `db:"timestamp"`
	DetectionTime    string          `db:"detection_time"`
	Lat              float64         `db:"lat"`
	Lon              float64         `db:"lon"`
	MinPressureHPa   sql.NullFloat64 `db:"min_pressure_hpa"`
	MaxWindMS        sql.NullFloat64 `db:"max_wind_ms"`
	MaxWindKt        sql.NullFloat64 `db:"max_wind_kt"`
	Confidence       sql.NullFloat64 `db:"confidence"`
	Source           sql.NullString  `db:"source"`
	TrackProbability sql.NullFloat64 `db:"track_probability"`
	ThreatLevel      sql.NullString  `db:"threat_level"`
	TrackJSON        sql.NullString  `db:"track_json"`
	CreatedAt        sql.NullString  `db:"created_at"`
}

// ListDetections returns cyclone detections newer than since, newest first.
func (s *Store) ListDetections(ctx context.Context, since time.Time) ([]hazard.Cyclone, error) {
	var rows []detectionRow
	err := s.db.SelectContext(ctx, &rows, `
        SELECT * FROM detections
        WHERE detection_time > ?
        ORDER BY detection_time DESC`,
		since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}

	out := make([]hazard.Cyclone, 0, len(rows))
	for _, r := range rows {
		dt, err := time.Parse(timeLayout, r.DetectionTime)
		if err != nil {
			continue
		}
		c := hazard.Cyclone{
			ID:               r.HazardID,
			Location:         hazard.Location{Lat: r.Lat, Lon: r.Lon},
			DetectionTime:    dt,
			Source:           r.Source.String,
			Confidence:       r.Confidence.Float64,
			ThreatLevel:      hazard.ThreatLevel(r.ThreatLevel.String),
			MaxWindKt:        r.MaxWindKt.Float64,
			MaxWindMS:        r.MaxWindMS.Float64,
			MinPressureHPa:   r.MinPressureHPa.Float64,
			TrackProbability: r.TrackProbability.Float64,
		}
		if r.TrackJSON.Valid && r.TrackJSON.String != "" {
			_ = json.Unmarshal([]byte(r.TrackJSON.String), &c.Track)
		}
		out = append(out, c)
	}
	return out, nil
}

// CountDetectionsSince returns the number of detections newer than since.
func (s *Store) CountDetectionsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM detections WHERE detection_time > ?`,
		since.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return n, nil
}

// FloodAssessment is one cycle's flood detection product.
type FloodAssessment struct {
	DetectionTime time.Time
	Region        string
	BBox          geo.BBox
	Floods        []hazard.Flood
	TotalAreaKm2  float64
	MaxSeverity   hazard.FloodSeverity
}

// InsertFloodAssessment persists a flood assessment document.
func (s *Store) InsertFloodAssessment(ctx context.Context, a *FloodAssessment) (int64, error) {
	doc, err := json.Marshal(a.Floods)
	if err != nil {
		return 0, fmt.Errorf("encode floods: %w", err)
	}
	bbox, err := json.Marshal(a.BBox)
	if err != nil {
		return 0, fmt.Errorf("encode bbox: %w", err)
	}
	res, err := s.execRetry(ctx, `
        INSERT INTO floods (
            detection_time, region, bbox_json, total_flooded_areas,
            total_area_km2, max_severity, geojson
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.DetectionTime.UTC().Format(timeLayout), a.Region, string(bbox),
		len(a.Floods), a.TotalAreaKm2, string(a.MaxSeverity), string(doc))
	if err != nil {
		return 0, fmt.Errorf("insert flood assessment: %w", err)
	}
	return res.LastInsertId()
}

// ListFloods returns individual flood extents newer than since, newest
// assessment first.
func (s *Store) ListFloods(ctx context.Context, since time.Time) ([]hazard.Flood, error) {
	var rows []struct {
		ID            int64          `db:"id"`
		DetectionTime string         `db:"detection_time"`
		GeoJSON       sql.NullString `db:"geojson"`
	}
	err := s.db.SelectContext(ctx, &rows, `
        SELECT id, detection_time, geojson FROM floods
        WHERE detection_time > ?
        ORDER BY detection_time DESC`,
		since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list floods: %w", err)
	}

	var out []hazard.Flood
	for _, r := range rows {
		if !r.GeoJSON.Valid {
			continue
		}
		var floods []hazard.Flood
		if err := json.Unmarshal([]byte(r.GeoJSON.String), &floods); err != nil {
			continue
		}
		out = append(out, floods...)
	}
	return out, nil
}

// LandslideAssessment is one cycle's landslide risk product.
type LandslideAssessment struct {
	AssessmentTime time.Time
	Region         string
	BBox           geo.BBox
	RainfallMM     float64
	Risks          []hazard.LandslideRisk
	HighRiskZones  int
	AreaAtRiskKm2  float64
}

// InsertLandslideAssessment persists a landslide assessment document.
func (s *Store) InsertLandslideAssessment(ctx context.Context, a *LandslideAssessment) (int64, error) {
	doc, err := json.Marshal(a.Risks)
	if err != nil {
		return 0, fmt.Errorf("encode risks: %w", err)
	}
	bbox, err := json.Marshal(a.BBox)
	if err != nil {
		return 0, fmt.Errorf("encode bbox: %w", err)
	}
	res, err := s.execRetry(ctx, `
        INSERT INTO landslide_risks (
            assessment_time, region, bbox_json, rainfall_mm,
            total_zones, high_risk_zones, area_at_risk_km2, geojson
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AssessmentTime.UTC().Format(timeLayout), a.Region, string(bbox),
		a.RainfallMM, len(a.Risks), a.HighRiskZones, a.AreaAtRiskKm2, string(doc))
	if err != nil {
		return 0, fmt.Errorf("insert landslide assessment: %w", err)
	}
	return res.LastInsertId()
}

// ListLandslides returns landslide risks newer than since, newest first.
func (s *Store) ListLandslides(ctx context.Context, since time.Time) ([]hazard.LandslideRisk, error) {
	var rows []struct {
		ID             int64          `db:"id"`
		AssessmentTime string         `db:"assessment_time"`
		GeoJSON        sql.NullString `db:"geojson"`
	}
	err := s.db.SelectContext(ctx, &rows, `
        SELECT id, assessment_time, geojson FROM landslide_risks
        WHERE assessment_time > ?
        ORDER BY assessment_time DESC`,
		since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list landslides: %w", err)
	}

	var out []hazard.LandslideRisk
	for _, r := range rows {
		if !r.GeoJSON.Valid {
			continue
		}
		var risks []hazard.LandslideRisk
		if err := json.Unmarshal([]byte(r.GeoJSON.String), &risks); err != nil {
			continue
		}
		out = append(out, risks...)
	}
	return out, nil
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
