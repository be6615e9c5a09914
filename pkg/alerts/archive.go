package alerts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/afrostorm/hazardwatch/pkg/store"
)

// Archive keeps a JSON file per dispatched alert alongside the database, so
// operators can inspect what went out without SQL access. Old files are
// pruned down to the configured count.
type Archive struct {
	dir       string
	keepLastN int
	log       zerolog.Logger
}

// NewArchive creates the alert-log directory if needed.
func NewArchive(dir string, keepLastN int, log zerolog.Logger) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create alert log dir: %w", err)
	}
	return &Archive{dir: dir, keepLastN: keepLastN, log: log}, nil
}

type archivedAlert struct {
	AlertID    string                   `json:"alert_id"`
	HazardType string                   `json:"hazard_type"`
	HazardID   string                   `json:"hazard_id"`
	Country    string                   `json:"country"`
	Subject    string                   `json:"subject"`
	SentAt     time.Time                `json:"sent_at"`
	TrackingID string                   `json:"tracking_id"`
	Recipients []store.RecipientOutcome `json:"recipients"`
}

// Save writes one alert record as alert-<timestamp>-<id>.json and prunes.
func (a *Archive) Save(rec *store.SentAlert) (string, error) {
	name := fmt.Sprintf("alert-%s-%s.json",
		rec.SentAt.UTC().Format("20060102-150405"), rec.TrackingID)
	path := filepath.Join(a.dir, name)

	data, err := json.MarshalIndent(archivedAlert{
		AlertID:    rec.AlertID,
		HazardType: rec.HazardType,
		HazardID:   rec.HazardID,
		Country:    rec.Country,
		Subject:    rec.Subject,
		SentAt:     rec.SentAt,
		TrackingID: rec.TrackingID,
		Recipients: rec.Recipients,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal alert log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write alert log: %w", err)
	}

	if a.keepLastN > 0 {
		if err := a.prune(); err != nil {
			a.log.Warn().Err(err).Msg("alert log prune failed")
		}
	}
	return path, nil
}

// prune removes the oldest alert files beyond keepLastN. Filenames embed
// the timestamp, so lexical order is chronological.
func (a *Archive) prune() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) <= a.keepLastN {
		return nil
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-a.keepLastN] {
		if err := os.Remove(filepath.Join(a.dir, name)); err != nil {
			a.log.Warn().Err(err).Str("file", name).Msg("could not remove old alert log")
		}
	}
	return nil
}
