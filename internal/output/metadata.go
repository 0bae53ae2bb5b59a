package output

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/broker"
	"github.com/waypointhq/waypoint/internal/core/fallback"
)

// Scraped pairs a metadata result with its provenance for JSON output.
type Scraped[T any] struct {
	Result     T               `json:"result"`
	Provenance core.Provenance `json:"provenance"`
}

// LinkMetadata renders a link preview.
func LinkMetadata(format Format, m broker.LinkMetadata, prov core.Provenance) (string, error) {
	sheet := Sheet{
		Title:  "Link Metadata",
		Header: table.Row{"Field", "Value"},
		Rows: []table.Row{
			{"url", m.URL},
			{"title", field(m.Title, identity)},
			{"description", field(m.Description, identity)},
			{"image", field(m.Image, identity)},
			{"site_name", field(m.SiteName, identity)},
			{"location", field(m.Location, func(p core.LatLng) string {
				return fmt.Sprintf("%.6f, %.6f", p.Lat, p.Lng)
			})},
		},
	}
	if addr, ok := m.Address.Get(); ok {
		sheet.Rows = append(sheet.Rows, table.Row{"address", addr.Formatted})
	}
	sheet.Footer = provenanceFooter(prov)
	return Render(format, sheet, Scraped[broker.LinkMetadata]{Result: m, Provenance: prov})
}

// RouteMetadata renders a scraped route summary.
func RouteMetadata(format Format, m broker.RouteMetadata, prov core.Provenance) (string, error) {
	sheet := Sheet{
		Title:  "Route Metadata",
		Header: table.Row{"Field", "Value"},
		Rows: []table.Row{
			{"url", m.URL},
			{"source", m.Source},
			{"distance_km", field(m.DistanceKm, func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) })},
			{"elevation_gain_m", field(m.ElevationGainM, strconv.Itoa)},
			{"duration", field(m.Duration, identity)},
			{"difficulty", field(m.Difficulty, identity)},
			{"extraction_method", field(m.Method, identity)},
		},
	}
	sheet.Footer = provenanceFooter(prov)
	return Render(format, sheet, Scraped[broker.RouteMetadata]{Result: m, Provenance: prov})
}

func provenanceFooter(prov core.Provenance) table.Row {
	source := "live"
	if prov.FromCache {
		source = "cache"
	}
	profile := prov.Profile
	if profile == "" {
		profile = "-"
	}
	return table.Row{source, fmt.Sprintf("profile=%s attempts=%d", profile, prov.Attempts)}
}

func identity(s string) string { return s }

func field[T any](f fallback.Field[T], format func(T) string) string {
	v, ok := f.Get()
	if !ok {
		return "-"
	}
	return format(v)
}
