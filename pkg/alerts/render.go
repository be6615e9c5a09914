package alerts

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/afrostorm/hazardwatch/pkg/hazard"
)

// Notice is the channel-agnostic content of one alert before rendering.
// Language selects the rendered locale; empty means English.
type Notice struct {
	HazardType string
	HazardID   string
	Country    string
	Headline   string
	Lines      []string
	Language   string
	IssuedAt   time.Time
}

// Message is one rendered variant of a notice.
type Message struct {
	Language string `json:"language"`
	Subject  string `json:"subject"`
	Text     string `json:"text"`
	HTML     string `json:"html"`
}

// MessageRenderer renders a notice into a (plain, html) pair for a language.
// The built-in renderer covers English; additional locales come from an
// external template collaborator implementing the same interface.
type MessageRenderer interface {
	Render(n Notice, language, trackingID string) (Message, error)
}

// EnglishRenderer is the built-in renderer. The HTML variant embeds a 1x1
// tracking pixel at {pixelBase}/{trackingID}.png when a pixel base is set.
type EnglishRenderer struct {
	PixelBase string
}

func (r *EnglishRenderer) Render(n Notice, language, trackingID string) (Message, error) {
	if language != "" && language != "en" {
		return Message{}, fmt.Errorf("language %q not available, external renderer required", language)
	}

	subject := fmt.Sprintf("[HAZARD ALERT] %s - %s", strings.ToUpper(n.HazardType), n.Headline)

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n", n.Headline)
	for _, l := range n.Lines {
		fmt.Fprintf(&text, "%s\n", l)
	}
	fmt.Fprintf(&text, "\nIssued %s by the AfroStorm hazard watch.\n",
		n.IssuedAt.UTC().Format(time.RFC1123))

	var body strings.Builder
	fmt.Fprintf(&body, "<h2>%s</h2>\n<ul>\n", html.EscapeString(n.Headline))
	for _, l := range n.Lines {
		fmt.Fprintf(&body, "<li>%s</li>\n", html.EscapeString(l))
	}
	fmt.Fprintf(&body, "</ul>\n<p>Issued %s by the AfroStorm hazard watch.</p>\n",
		n.IssuedAt.UTC().Format(time.RFC1123))
	if r.PixelBase != "" && trackingID != "" {
		fmt.Fprintf(&body, `<img src="%s/%s.png" width="1" height="1" alt=""/>`,
			strings.TrimRight(r.PixelBase, "/"), trackingID)
	}

	return Message{Language: "en", Subject: subject, Text: text.String(), HTML: body.String()}, nil
}

// NoticeFromCyclone summarizes a cyclone detection.
func NoticeFromCyclone(c *hazard.Cyclone, country string) Notice {
	return Notice{
		HazardType: string(hazard.KindCyclone),
		HazardID:   c.ID,
		Country:    country,
		Headline:   fmt.Sprintf("Tropical system %s (%s)", c.ID, c.ThreatLevel),
		Lines: []string{
			fmt.Sprintf("Position: %.2f, %.2f", c.Location.Lat, c.Location.Lon),
			fmt.Sprintf("Max sustained wind: %.0f kt (%.0f m/s)", c.MaxWindKt, c.MaxWindMS),
			fmt.Sprintf("Central pressure: %.0f hPa", c.MinPressureHPa),
			fmt.Sprintf("Detection confidence: %.0f%%", c.Confidence*100),
		},
		IssuedAt: c.DetectionTime,
	}
}

// NoticeFromFlood summarizes a flood detection.
func NoticeFromFlood(f *hazard.Flood, country string) Notice {
	return Notice{
		HazardType: string(hazard.KindFlood),
		HazardID:   f.ID,
		Country:    country,
		Headline:   fmt.Sprintf("Flooding detected (%s)", f.Severity),
		Lines: []string{
			fmt.Sprintf("Centroid: %.2f, %.2f", f.Location.Lat, f.Location.Lon),
			fmt.Sprintf("Flooded area: %.1f km2", f.AreaKm2),
			fmt.Sprintf("Water fraction: %.0f%%", f.WaterFraction*100),
		},
		IssuedAt: f.DetectionTime,
	}
}

// NoticeFromLandslide summarizes a landslide risk zone.
func NoticeFromLandslide(z *hazard.LandslideRisk, country string) Notice {
	return Notice{
		HazardType: string(hazard.KindLandslide),
		HazardID:   z.ID,
		Country:    country,
		Headline:   fmt.Sprintf("Landslide risk %s", z.RiskLevel),
		Lines: []string{
			fmt.Sprintf("Zone: %.2f, %.2f", z.Location.Lat, z.Location.Lon),
			z.Reason,
			z.RecommendedAction,
		},
		IssuedAt: z.DetectionTime,
	}
}

// NoticeFromConvergence summarizes a cyclone-outbreak convergence.
func NoticeFromConvergence(c *hazard.Convergence, country string) Notice {
	return Notice{
		HazardType: string(hazard.KindConvergence),
		HazardID:   c.ID,
		Country:    country,
		Headline: fmt.Sprintf("Cyclone-%s convergence (%s priority)",
			c.Disease, c.AlertPriority),
		Lines: []string{
			fmt.Sprintf("Outbreak location: %.2f, %.2f", c.Location.Lat, c.Location.Lon),
			fmt.Sprintf("Cyclone %s (%s) is %.0f km from the outbreak", c.CycloneID, c.ThreatLevel, c.DistanceKm),
			fmt.Sprintf("Compound risk score: %.2f", c.RiskScore),
			"Health infrastructure in the storm path may be disrupted",
		},
		IssuedAt: c.DetectedAt,
	}
}
