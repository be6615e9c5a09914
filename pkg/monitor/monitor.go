// Package monitor drives the pipeline: a serial per-cycle state machine
// that fetches from every adapter, runs the detector set, persists the
// results, dispatches alerts, and records exactly one run row per cycle.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/afrostorm/hazardwatch/pkg/alerts"
	"github.com/afrostorm/hazardwatch/pkg/config"
	"github.com/afrostorm/hazardwatch/pkg/convergence"
	"github.com/afrostorm/hazardwatch/pkg/detect"
	"github.com/afrostorm/hazardwatch/pkg/hazard"
	"github.com/afrostorm/hazardwatch/pkg/metrics"
	"github.com/afrostorm/hazardwatch/pkg/query"
	"github.com/afrostorm/hazardwatch/pkg/sources"
	"github.com/afrostorm/hazardwatch/pkg/store"
)

// State is the per-cycle pipeline state.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateDetecting
	StatePersisting
	StateAlerting
	StateSummarizing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetching:
		return "FETCHING"
	case StateDetecting:
		return "DETECTING"
	case StatePersisting:
		return "PERSISTING"
	case StateAlerting:
		return "ALERTING"
	case StateSummarizing:
		return "SUMMARIZING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// sleepChunk bounds how long the daemon sleeps before re-checking for
// cancellation.
const sleepChunk = 60 * time.Second

// Result summarizes one completed cycle.
type Result struct {
	RunTime      time.Time `json:"run_time"`
	Cyclones     int       `json:"cyclones"`
	Floods       int       `json:"floods"`
	Landslides   int       `json:"landslides"`
	Convergences int       `json:"convergences"`
	AlertsSent   int       `json:"alerts_sent"`
	Duration     float64   `json:"duration_seconds"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
}

// Snapshot is the live view served by monitor --status.
type Snapshot struct {
	State   string            `json:"state"`
	LastRun *store.MonitorRun `json:"last_run,omitempty"`
}

// Monitor owns one pipeline instance.
type Monitor struct {
	cfg      *config.Config
	adapters []sources.Adapter
	store    *store.Store
	pipeline *alerts.Pipeline
	query    *query.Service
	log      zerolog.Logger

	mu      sync.Mutex
	state   State
	running bool

	now func() time.Time
}

// New assembles the monitor.
func New(cfg *config.Config, adapters []sources.Adapter, st *store.Store,
	pipeline *alerts.Pipeline, qs *query.Service, log zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		adapters: adapters,
		store:    st,
		pipeline: pipeline,
		query:    qs,
		log:      log.With().Str("component", "monitor").Logger(),
		state:    StateIdle,
		now:      time.Now,
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Status reports the current state and the last recorded run.
func (m *Monitor) Status(ctx context.Context) (*Snapshot, error) {
	last, err := m.store.LastRun(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	s := m.state
	m.mu.Unlock()
	return &Snapshot{State: s.String(), LastRun: last}, nil
}

// fetched carries one adapter's batch through the cycle.
type fetched struct {
	name  string
	batch *sources.Batch
}

// RunOnce executes a single cycle. Cycles are strictly serial: if one is
// already in flight the call records a skipped run and returns. Every
// invocation inserts exactly one monitor_runs row.
func (m *Monitor) RunOnce(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return m.recordSkip(ctx)
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.state = StateIdle
		m.mu.Unlock()
	}()

	start := m.now()
	res := &Result{RunTime: start.UTC(), Status: "success"}

	// fetching: adapters overlap their I/O, nothing else runs yet
	m.setState(StateFetching)
	window := sources.Window{Start: start.Add(-m.cfg.Monitor.CheckInterval), End: start}
	batches := make([]fetched, len(m.adapters))
	fetchErrs := make([]string, len(m.adapters))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range m.adapters {
		g.Go(func() error {
			b, err := a.Fetch(gctx, window)
			if err != nil {
				metrics.SourceErrorsTotal.WithLabelValues(a.Name()).Inc()
				m.log.Warn().Err(err).Str("adapter", a.Name()).Msg("source fetch failed")
				fetchErrs[i] = fmt.Sprintf("%s: %v", a.Name(), err)
			}
			batches[i] = fetched{name: a.Name(), batch: b}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return m.failCycle(ctx, res, start, err)
	}
	var sourceErrs []string
	for _, e := range fetchErrs {
		if e != "" {
			sourceErrs = append(sourceErrs, e)
		}
	}
	if err := ctx.Err(); err != nil {
		return m.failCycle(ctx, res, start, err)
	}

	// detecting: single worker, pure computation
	m.setState(StateDetecting)
	cyclones, floods, slides, outbreaks := m.detectAll(batches)
	convs := convergence.Detect(cyclones, outbreaks,
		convergence.Params{MaxDistanceKm: m.cfg.Detection.ConvergenceKm})
	res.Cyclones = len(cyclones)
	res.Floods = len(floods)
	res.Landslides = len(slides)
	res.Convergences = len(convs)

	// persisting: source order preserved, abort the cycle on failure
	m.setState(StatePersisting)
	if err := m.persistAll(ctx, start, cyclones, floods, slides); err != nil {
		return m.failCycle(ctx, res, start, err)
	}

	// alerting happens only after every detection of the cycle is durable
	m.setState(StateAlerting)
	res.AlertsSent = m.alertAll(ctx, cyclones, floods, slides, convs)

	m.setState(StateSummarizing)
	m.query.SetOutbreaks(outbreaks)
	m.query.Invalidate()

	res.Duration = m.now().Sub(start).Seconds()
	if len(sourceErrs) > 0 {
		res.Error = strings.Join(sourceErrs, "; ")
	}
	run := &store.MonitorRun{
		RunTime:         res.RunTime,
		DataSources:     m.sourceNames(),
		DetectionsCount: res.Cyclones + res.Floods + res.Landslides,
		AlertsSent:      res.AlertsSent,
		DurationSeconds: res.Duration,
		Status:          res.Status,
		Error:           res.Error,
	}
	if err := m.store.InsertRun(ctx, run); err != nil {
		m.log.Error().Err(err).Msg("could not record run")
	}
	metrics.CyclesTotal.WithLabelValues(res.Status).Inc()
	metrics.CycleDuration.Observe(res.Duration)

	if res.Duration > m.cfg.Monitor.CycleBudget.Seconds() {
		m.log.Warn().Float64("duration_s", res.Duration).Msg("cycle exceeded its budget")
	}
	m.log.Info().Int("cyclones", res.Cyclones).Int("floods", res.Floods).
		Int("landslides", res.Landslides).Int("convergences", res.Convergences).
		Int("alerts", res.AlertsSent).Float64("duration_s", res.Duration).
		Msg("cycle complete")
	return res, nil
}

func (m *Monitor) recordSkip(ctx context.Context) (*Result, error) {
	res := &Result{RunTime: m.now().UTC(), Status: "skipped", Error: "previous cycle still running"}
	run := &store.MonitorRun{
		RunTime: res.RunTime, DataSources: m.sourceNames(),
		Status: res.Status, Error: res.Error,
	}
	if err := m.store.InsertRun(ctx, run); err != nil {
		m.log.Error().Err(err).Msg("could not record skipped run")
	}
	metrics.CyclesTotal.WithLabelValues("skipped").Inc()
	m.log.Warn().Msg("cycle skipped, previous cycle still running")
	return res, nil
}

func (m *Monitor) failCycle(ctx context.Context, res *Result, start time.Time, cause error) (*Result, error) {
	m.setState(StateFailed)
	res.Status = "error"
	res.Error = cause.Error()
	res.Duration = m.now().Sub(start).Seconds()
	run := &store.MonitorRun{
		RunTime:         res.RunTime,
		DataSources:     m.sourceNames(),
		DetectionsCount: res.Cyclones + res.Floods + res.Landslides,
		AlertsSent:      res.AlertsSent,
		DurationSeconds: res.Duration,
		Status:          res.Status,
		Error:           res.Error,
	}
	if err := m.store.InsertRun(ctx, run); err != nil {
		m.log.Error().Err(err).Msg("could not record failed run")
	}
	metrics.CyclesTotal.WithLabelValues("error").Inc()
	m.log.Error().Err(cause).Msg("cycle failed")
	return res, cause
}

func (m *Monitor) sourceNames() string {
	names := make([]string, 0, len(m.adapters))
	for _, a := range m.adapters {
		names = append(names, a.Name())
	}
	return strings.Join(names, ",")
}

// detectAll runs the detector set over the fetched batches.
func (m *Monitor) detectAll(batches []fetched) ([]hazard.Cyclone, []hazard.Flood, []hazard.LandslideRisk, []hazard.Outbreak) {
	var (
		cyclones  []hazard.Cyclone
		floods    []hazard.Flood
		slides    []hazard.LandslideRisk
		outbreaks []hazard.Outbreak
	)
	cp := detect.CycloneParams{
		Basin:          m.cfg.Detection.Basin,
		MinPressureHPa: m.cfg.Detection.MinPressureHPa,
		MinWindMS:      m.cfg.Detection.MinWindMS,
	}
	for _, f := range batches {
		if f.batch == nil {
			continue
		}
		for _, c := range f.batch.Cyclones {
			if m.cfg.Detection.Basin.Contains(c.Location) {
				cyclones = append(cyclones, c)
			}
		}
		for i := range f.batch.Grids {
			cyclones = append(cyclones, detect.CyclonesFromGrid(&f.batch.Grids[i], cp)...)
		}
		if len(f.batch.Floods) > 0 {
			floods = append(floods, detect.FloodsFromFeatures(f.batch.Floods,
				detect.FloodParams{MinAreaKm2: m.cfg.Detection.MinFloodAreaKm2})...)
		}
		if len(f.batch.Terrain) > 0 {
			slides = append(slides, detect.LandslidesFromTerrain(f.batch.Terrain,
				m.now().UTC(), detect.LandslideParams{TopN: m.cfg.Detection.LandslideTopN})...)
		}
		outbreaks = append(outbreaks, f.batch.Outbreaks...)
	}
	return cyclones, floods, slides, outbreaks
}

// persistAll writes the cycle's detections in adapter order.
func (m *Monitor) persistAll(ctx context.Context, start time.Time,
	cyclones []hazard.Cyclone, floods []hazard.Flood, slides []hazard.LandslideRisk) error {
	for i := range cyclones {
		if _, err := m.store.InsertDetection(ctx, &cyclones[i]); err != nil {
			return fmt.Errorf("persist cyclone %s: %w", cyclones[i].ID, err)
		}
		metrics.DetectionsTotal.WithLabelValues(string(hazard.KindCyclone)).Inc()
	}
	if len(floods) > 0 {
		var total float64
		for _, f := range floods {
			total += f.AreaKm2
		}
		assessment := &store.FloodAssessment{
			DetectionTime: start.UTC(),
			Region:        "basin",
			BBox:          m.cfg.Detection.Basin,
			Floods:        floods,
			TotalAreaKm2:  total,
			MaxSeverity:   detect.MaxFloodSeverity(floods),
		}
		if _, err := m.store.InsertFloodAssessment(ctx, assessment); err != nil {
			return fmt.Errorf("persist flood assessment: %w", err)
		}
		metrics.DetectionsTotal.WithLabelValues(string(hazard.KindFlood)).Add(float64(len(floods)))
	}
	if len(slides) > 0 {
		high := 0
		var maxRain float64
		for _, z := range slides {
			if z.RiskLevel == hazard.RiskHigh || z.RiskLevel == hazard.RiskExtreme {
				high++
			}
			if z.RainfallMM > maxRain {
				maxRain = z.RainfallMM
			}
		}
		assessment := &store.LandslideAssessment{
			AssessmentTime: start.UTC(),
			Region:         "basin",
			BBox:           m.cfg.Detection.Basin,
			RainfallMM:     maxRain,
			Risks:          slides,
			HighRiskZones:  high,
			AreaAtRiskKm2:  detect.AreaAtRiskKm2(slides),
		}
		if _, err := m.store.InsertLandslideAssessment(ctx, assessment); err != nil {
			return fmt.Errorf("persist landslide assessment: %w", err)
		}
		metrics.DetectionsTotal.WithLabelValues(string(hazard.KindLandslide)).Add(float64(len(slides)))
	}
	return nil
}

// alertAll fans out notices for every alert-worthy detection. Alert failures
// never fail the cycle.
func (m *Monitor) alertAll(ctx context.Context,
	cyclones []hazard.Cyclone, floods []hazard.Flood,
	slides []hazard.LandslideRisk, convs []hazard.Convergence) int {
	sent := 0
	for i := range cyclones {
		if cyclones[i].Confidence < m.cfg.Detection.AlertConfidence {
			continue
		}
		n, err := m.pipeline.Dispatch(ctx, alerts.NoticeFromCyclone(&cyclones[i], ""), cyclones[i].Location)
		if err != nil {
			m.log.Warn().Err(err).Str("hazard", cyclones[i].ID).Msg("cyclone alert failed")
		}
		sent += n
	}
	for i := range floods {
		if floods[i].Severity.Rank() < hazard.FloodMajor.Rank() {
			continue
		}
		n, err := m.pipeline.Dispatch(ctx, alerts.NoticeFromFlood(&floods[i], ""), floods[i].Location)
		if err != nil {
			m.log.Warn().Err(err).Str("hazard", floods[i].ID).Msg("flood alert failed")
		}
		sent += n
	}
	for i := range slides {
		n, err := m.pipeline.Dispatch(ctx, alerts.NoticeFromLandslide(&slides[i], ""), slides[i].Location)
		if err != nil {
			m.log.Warn().Err(err).Str("hazard", slides[i].ID).Msg("landslide alert failed")
		}
		sent += n
	}
	for i := range convs {
		n, err := m.pipeline.Dispatch(ctx, alerts.NoticeFromConvergence(&convs[i], ""), convs[i].Location)
		if err != nil {
			m.log.Warn().Err(err).Str("hazard", convs[i].ID).Msg("convergence alert failed")
		}
		sent += n
	}
	return sent
}

// RunContinuous cycles until the context is cancelled. The inter-cycle
// sleep is chunked so cancellation is observed within sleepChunk.
func (m *Monitor) RunContinuous(ctx context.Context) error {
	m.log.Info().Dur("interval", m.cfg.Monitor.CheckInterval).Msg("monitor daemon started")
	for {
		if _, err := m.RunOnce(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.sleepInterruptible(ctx, m.cfg.Monitor.CheckInterval); err != nil {
			m.log.Info().Msg("monitor daemon stopping")
			return nil
		}
	}
}

func (m *Monitor) sleepInterruptible(ctx context.Context, d time.Duration) error {
	for remaining := d; remaining > 0; remaining -= sleepChunk {
		chunk := sleepChunk
		if remaining < chunk {
			chunk = remaining
		}
		t := time.NewTimer(chunk)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
