package alerts

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afrostorm/hazardwatch/pkg/hazard"
	"github.com/afrostorm/hazardwatch/pkg/metrics"
	"github.com/afrostorm/hazardwatch/pkg/store"
)

// retryBackoff is the per-recipient retry schedule within one dispatch.
var retryBackoff = []time.Duration{time.Second, 5 * time.Second}

// Pipeline fans hazard notices out to the routed recipient sets. One
// sent_alerts row is written per (hazard, country) regardless of how many
// recipients succeed.
type Pipeline struct {
	store       *store.Store
	renderer    MessageRenderer
	channels    map[string]Channel
	dedupWindow time.Duration
	archive     *Archive
	log         zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline assembles the dispatch pipeline. The archive may be nil when
// the alert-log directory is disabled.
func NewPipeline(st *store.Store, r MessageRenderer, channels map[string]Channel,
	dedupWindow time.Duration, archive *Archive, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:       st,
		renderer:    r,
		channels:    channels,
		dedupWindow: dedupWindow,
		archive:     archive,
		log:         log.With().Str("component", "alerts").Logger(),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TrackingID derives the opaque 16-character token for one (hazard,
// country) dispatch.
func TrackingID(hazardID, country string, at time.Time) string {
	sum := md5.Sum([]byte(hazardID + "|" + country + "|" + at.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])[:16]
}

// Dispatch routes the notice by location and sends one alert per affected
// country, skipping countries already alerted for this hazard inside the
// dedup window. It returns the number of alerts written.
func (p *Pipeline) Dispatch(ctx context.Context, n Notice, loc hazard.Location) (int, error) {
	routes := Route(loc)
	if len(routes) == 0 {
		p.log.Debug().Str("hazard", n.HazardID).
			Float64("lat", loc.Lat).Float64("lon", loc.Lon).
			Msg("location outside all routes, no alert")
		return 0, nil
	}

	sent := 0
	var firstErr error
	for _, country := range routes {
		dup, err := p.store.HasRecentAlert(ctx, n.HazardID, country, p.dedupWindow)
		if err != nil {
			return sent, err
		}
		if dup {
			p.log.Debug().Str("hazard", n.HazardID).Str("country", country).
				Msg("alert suppressed by dedup window")
			continue
		}
		n.Country = country
		if err := p.send(ctx, n, country, RecipientsFor(country)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}
	return sent, firstErr
}

// SendTo dispatches the notice to an explicit recipient list, bypassing
// routing and dedup but not bookkeeping. Used by the administrative API.
func (p *Pipeline) SendTo(ctx context.Context, n Notice, country string, rcpts []Recipient) error {
	return p.send(ctx, n, country, rcpts)
}

func (p *Pipeline) send(ctx context.Context, n Notice, country string, rcpts []Recipient) error {
	now := p.now().UTC()
	trackingID := TrackingID(n.HazardID, country, now)

	msg, err := p.renderer.Render(n, n.Language, trackingID)
	if err != nil {
		return fmt.Errorf("render alert: %w", err)
	}

	outcomes := make([]store.RecipientOutcome, 0, len(rcpts))
	for _, r := range rcpts {
		outcomes = append(outcomes, p.deliver(ctx, r, msg))
	}

	rec := &store.SentAlert{
		AlertID:    uuid.NewString(),
		HazardType: n.HazardType,
		HazardID:   n.HazardID,
		Country:    country,
		Recipients: outcomes,
		Subject:    msg.Subject,
		SentAt:     now,
		TrackingID: trackingID,
	}
	if err := p.store.InsertAlert(ctx, rec); err != nil {
		return err
	}
	if p.archive != nil {
		if _, err := p.archive.Save(rec); err != nil {
			p.log.Warn().Err(err).Str("alert", rec.AlertID).Msg("alert archive write failed")
		}
	}

	okCount := 0
	for _, o := range outcomes {
		if o.Outcome == "sent" {
			okCount++
		}
	}
	p.log.Info().Str("alert", rec.AlertID).Str("country", country).
		Int("sent", okCount).Int("recipients", len(outcomes)).
		Msg("alert dispatched")
	return nil
}

// deliver sends to one recipient, retrying per the backoff schedule. A
// missing channel provider is a terminal no_provider outcome, not an error.
func (p *Pipeline) deliver(ctx context.Context, r Recipient, msg Message) (out store.RecipientOutcome) {
	out = store.RecipientOutcome{
		Name: r.Name, Address: r.Address, Channel: r.Channel,
	}
	defer func() { metrics.AlertsTotal.WithLabelValues(out.Outcome).Inc() }()
	ch, ok := p.channels[r.Channel]
	if !ok {
		out.Outcome = "no_provider"
		return out
	}

	var lastErr error
	for attempt := 0; attempt <= len(retryBackoff); attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, retryBackoff[attempt-1]); err != nil {
				lastErr = err
				break
			}
		}
		lastErr = ch.Send(ctx, r, msg)
		if lastErr == nil {
			out.Outcome = "sent"
			return out
		}
		if errors.Is(lastErr, ErrNoProvider) {
			out.Outcome = "no_provider"
			return out
		}
		p.log.Warn().Err(lastErr).Str("recipient", r.Name).
			Int("attempt", attempt+1).Msg("alert delivery failed")
	}
	out.Outcome = "failed"
	if lastErr != nil {
		out.Error = lastErr.Error()
	}
	return out
}

// Preview renders a notice without dispatching or persisting anything.
func (p *Pipeline) Preview(n Notice, language string) (Message, error) {
	return p.renderer.Render(n, language, "preview")
}
