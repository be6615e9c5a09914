package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/afrostorm/hazardwatch/pkg/alerts"
	"github.com/afrostorm/hazardwatch/pkg/config"
	"github.com/afrostorm/hazardwatch/pkg/logging"
	"github.com/afrostorm/hazardwatch/pkg/monitor"
	"github.com/afrostorm/hazardwatch/pkg/query"
	"github.com/afrostorm/hazardwatch/pkg/sources"
	"github.com/afrostorm/hazardwatch/pkg/store"
	"github.com/afrostorm/hazardwatch/pkg/validation"
)

// app holds the wired collaborators shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *store.Store
	adapters []sources.Adapter
	pipeline *alerts.Pipeline
	query    *query.Service
	ledger   *validation.Ledger
	monitor  *monitor.Monitor
}

// buildApp loads configuration and wires the pipeline. Configuration errors
// refuse to start.
func buildApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	level := cfg.Framework.LogLevel
	if verbose {
		level = "debug"
	}
	log := logging.New(logging.Config{
		Level:  level,
		Format: logging.Format(cfg.Framework.LogFormat),
		Output: os.Stderr,
	})

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	basin := cfg.Detection.Basin
	adapters := []sources.Adapter{
		sources.NewForecast(cfg.Sources.ForecastURL, cfg.Sources.FetchTimeout, log),
		sources.NewReanalysis(cfg.Sources.ReanalysisURL, basin, cfg.Sources.ArchiveTimeout, log),
		sources.NewSARFlood(cfg.Sources.FloodURL, basin, cfg.Sources.FetchTimeout, log),
		sources.NewTerrain(cfg.Sources.TerrainURL, basin, cfg.Sources.FetchTimeout, log),
		sources.NewOutbreaks(cfg.Sources.OutbreakURL, cfg.Sources.OutbreakLookback,
			cfg.Sources.FetchTimeout, log),
	}

	var archive *alerts.Archive
	if cfg.Monitor.AlertLogDir != "" {
		archive, err = alerts.NewArchive(cfg.Monitor.AlertLogDir, cfg.Monitor.AlertLogKeepN, log)
		if err != nil {
			st.Close()
			return nil, err
		}
	}
	channels := map[string]alerts.Channel{
		"email": &alerts.EmailChannel{
			Host:     cfg.Alerts.SMTPHost,
			Port:     cfg.Alerts.SMTPPort,
			User:     cfg.Alerts.SMTPUser,
			Password: cfg.Alerts.SMTPPassword,
			From:     cfg.Alerts.SMTPFrom,
			Timeout:  cfg.Alerts.SMTPTimeout,
		},
		"webhook": &alerts.WebhookChannel{Timeout: cfg.Alerts.WebhookTimeout},
	}
	pipeline := alerts.NewPipeline(st,
		&alerts.EnglishRenderer{PixelBase: cfg.Alerts.TrackingPixelBase},
		channels, cfg.Alerts.DedupWindow, archive, log)

	qs := query.NewService(st, query.Params{
		CacheTTL:         cfg.Query.CacheTTL,
		CycloneLookback:  cfg.Query.CycloneLookback,
		FloodLookback:    cfg.Query.FloodLookback,
		WaterlogLookback: cfg.Query.WaterlogLookback,
		ConvergenceKm:    cfg.Detection.ConvergenceKm,
	}, log)

	return &app{
		cfg:      cfg,
		log:      log,
		store:    st,
		adapters: adapters,
		pipeline: pipeline,
		query:    qs,
		ledger:   validation.NewLedger(st, log),
		monitor:  monitor.New(cfg, adapters, st, pipeline, qs, log),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("store close failed")
	}
}

func (a *app) adapterNames() []string {
	names := make([]string, 0, len(a.adapters))
	for _, ad := range a.adapters {
		names = append(names, ad.Name())
	}
	return names
}
