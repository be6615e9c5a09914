// Package alerts routes hazard events to institutional recipients: country
// resolution by bounding box, message rendering behind a swappable
// MessageRenderer, multi-channel dispatch with retries, a 6-hour dedup
// window, and tracking-id bookkeeping for open tracking.
package alerts

import (
	"sort"

	"github.com/afrostorm/hazardwatch/pkg/geo"
	"github.com/afrostorm/hazardwatch/pkg/hazard"
)

// Recipient is one institutional contact.
type Recipient struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Channel  string `json:"channel"` // email | webhook | sms
	Role     string `json:"role"`    // meteorological | disaster_management | health
	Priority int    `json:"priority"`
}

// RegionalRoute is the catch-all route for basin-wide events.
const RegionalRoute = "regional"

// countryBoxes are the static routing rectangles. The regional box covers
// the South Indian Ocean basin and is appended to every in-basin route.
var countryBoxes = map[string]geo.BBox{
	"mozambique":  {MinLat: -27, MaxLat: -10, MinLon: 30, MaxLon: 42},
	"madagascar":  {MinLat: -26, MaxLat: -12, MinLon: 43, MaxLon: 51},
	"malawi":      {MinLat: -17, MaxLat: -9, MinLon: 32, MaxLon: 36},
	"zimbabwe":    {MinLat: -23, MaxLat: -15, MinLon: 25, MaxLon: 34},
	RegionalRoute: {MinLat: -30, MaxLat: 0, MinLon: 30, MaxLon: 80},
}

// recipients is the ordered institutional contact table per route.
var recipients = map[string][]Recipient{
	"mozambique": {
		{Name: "INAM", Address: "geral@inam.gov.mz", Channel: "email", Role: "meteorological", Priority: 1},
		{Name: "INGD", Address: "info@ingd.gov.mz", Channel: "email", Role: "disaster_management", Priority: 1},
		{Name: "WHO Mozambique", Address: "wrmozambique@who.int", Channel: "email", Role: "health", Priority: 2},
	},
	"madagascar": {
		{Name: "Meteo Madagascar", Address: "direction@meteo.mg", Channel: "email", Role: "meteorological", Priority: 1},
		{Name: "BNGRC", Address: "bngrc@bngrc.mg", Channel: "email", Role: "disaster_management", Priority: 1},
		{Name: "WHO Madagascar", Address: "wrmadagascar@who.int", Channel: "email", Role: "health", Priority: 2},
	},
	"malawi": {
		{Name: "DoDMA", Address: "info@dodma.gov.mw", Channel: "email", Role: "disaster_management", Priority: 1},
		{Name: "WHO Malawi", Address: "wrmalawi@who.int", Channel: "email", Role: "health", Priority: 2},
	},
	"zimbabwe": {
		{Name: "MSD Zimbabwe", Address: "info@weather.co.zw", Channel: "email", Role: "meteorological", Priority: 1},
		{Name: "Civil Protection", Address: "dcp@civilprotection.gov.zw", Channel: "email", Role: "disaster_management", Priority: 1},
	},
	RegionalRoute: {
		{Name: "ACMAD", Address: "acmad@acmad.org", Channel: "email", Role: "meteorological", Priority: 1},
		{Name: "ICPAC", Address: "info@icpac.net", Channel: "email", Role: "meteorological", Priority: 2},
		{Name: "WHO AFRO", Address: "afrflashinfo@who.int", Channel: "email", Role: "health", Priority: 2},
	},
}

// Route resolves the countries affected by a hazard location. Routes are
// sorted with the regional catch-all last. A point outside every box,
// including the basin catch-all, routes nowhere and no alert is dispatched.
func Route(loc hazard.Location) []string {
	var out []string
	for country, box := range countryBoxes {
		if country == RegionalRoute {
			continue
		}
		if box.Contains(loc) {
			out = append(out, country)
		}
	}
	sort.Strings(out)
	if countryBoxes[RegionalRoute].Contains(loc) {
		out = append(out, RegionalRoute)
	}
	return out
}

// BoxFor returns the routing rectangle for a route.
func BoxFor(route string) (geo.BBox, bool) {
	b, ok := countryBoxes[route]
	return b, ok
}

// RecipientsFor returns the ordered recipient list for a route, or nil for
// an unknown route.
func RecipientsFor(route string) []Recipient {
	src := recipients[route]
	if src == nil {
		return nil
	}
	out := make([]Recipient, len(src))
	copy(out, src)
	return out
}

// Routes lists every configured route, regional last.
func Routes() []string {
	var out []string
	for r := range recipients {
		if r != RegionalRoute {
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return append(out, RegionalRoute)
}
