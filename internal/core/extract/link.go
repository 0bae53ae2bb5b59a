package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/fallback"
)

// Address is a postal address taken from schema.org markup.
type Address struct {
	Street     string `json:"street,omitempty"`
	Locality   string `json:"locality,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Formatted  string `json:"formatted,omitempty"`
}

// Link is the metadata preview for a shared URL.
type Link struct {
	Title       fallback.Field[string]      `json:"title"`
	Description fallback.Field[string]      `json:"description"`
	Image       fallback.Field[string]      `json:"image"`
	SiteName    fallback.Field[string]      `json:"site_name"`
	Location    fallback.Field[core.LatLng] `json:"location"`
	Address     fallback.Field[Address]     `json:"address"`
}

// Merge fills empty fields from next.
func (l Link) Merge(next Link) Link {
	return Link{
		Title:       l.Title.Or(next.Title),
		Description: l.Description.Or(next.Description),
		Image:       l.Image.Or(next.Image),
		SiteName:    l.SiteName.Or(next.SiteName),
		Location:    l.Location.Or(next.Location),
		Address:     l.Address.Or(next.Address),
	}
}

// HasSignal reports whether anything was extracted.
func (l Link) HasSignal() bool {
	return l.Title.IsSet() || l.Description.IsSet() || l.Image.IsSet() ||
		l.SiteName.IsSet() || l.Location.IsSet() || l.Address.IsSet()
}

// Complete reports whether both a title and an image are known.
func (l Link) Complete() bool {
	return l.Title.IsSet() && l.Image.IsSet()
}

var lodgingTypes = map[string]bool{
	"Hotel":           true,
	"LodgingBusiness": true,
	"Hostel":          true,
	"Campground":      true,
	"BedAndBreakfast": true,
	"Resort":          true,
}

// ParseLink extracts link metadata from a page fetched from pageURL.
func ParseLink(doc *Document, pageURL *url.URL) Link {
	ld := pickLodging(ldObjects(doc.JSONLD))

	siteName := doc.MetaValue("og:site_name", "application-name")
	title := firstNonEmpty(ldString(ld["name"]), doc.MetaValue("og:title", "twitter:title"), doc.Title)
	description := firstNonEmpty(ldString(ld["description"]), doc.MetaValue("og:description", "twitter:description", "description"))
	image := firstNonEmpty(ldImage(ld["image"]), doc.MetaValue("og:image", "og:image:url", "twitter:image", "twitter:image:src"))

	link := Link{
		Title:       fallback.Text(CleanTitle(title, siteName)),
		Description: fallback.Text(FilterDescription(description)),
		Image:       fallback.Text(ResolveURL(image, pageURL)),
		SiteName:    fallback.Text(siteName),
	}
	if loc, ok := ldCoordinates(ld); ok {
		link.Location = fallback.Some(loc)
	} else if loc, ok := metaCoordinates(doc); ok {
		link.Location = fallback.Some(loc)
	}
	if addr, ok := ldAddress(ld["address"]); ok {
		link.Address = fallback.Some(addr)
	}
	return link
}

// SalvageLink pulls an image out of a page that was classified as blocked.
func SalvageLink(body []byte, pageURL *url.URL) (Link, bool) {
	if len(body) <= 100 {
		return Link{}, false
	}
	doc := Parse(body)
	image := ResolveURL(doc.MetaValue("og:image", "twitter:image"), pageURL)
	if image == "" {
		return Link{}, false
	}
	return Link{Image: fallback.Some(image)}, true
}

func pickLodging(objects []map[string]any) map[string]any {
	for _, obj := range objects {
		for _, t := range ldTypes(obj) {
			if lodgingTypes[t] {
				return obj
			}
		}
	}
	for _, obj := range objects {
		if ldString(obj["name"]) != "" {
			return obj
		}
	}
	return nil
}

var (
	leadingStars    = regexp.MustCompile(`^[★☆]+\s*`)
	bookingCitySufx = regexp.MustCompile(`,\s*[^,]+,\s*[^,]+$`)
	dashStars       = regexp.MustCompile(`(?i)[-–]\s*\d+(\.\d+)?\s*stars?\s*$`)
	parenStars      = regexp.MustCompile(`(?i)\(\s*\d+(\.\d+)?\s*stars?\s*\)\s*$`)
)

// CleanTitle strips star ratings, booking.com location suffixes and a
// trailing site name.
func CleanTitle(title, siteName string) string {
	cleaned := strings.TrimSpace(title)
	if cleaned == "" {
		return ""
	}
	cleaned = leadingStars.ReplaceAllString(cleaned, "")
	if strings.Contains(strings.ToLower(siteName), "booking.com") {
		cleaned = bookingCitySufx.ReplaceAllString(cleaned, "")
	}
	cleaned = dashStars.ReplaceAllString(cleaned, "")
	cleaned = parenStars.ReplaceAllString(cleaned, "")

	site := strings.TrimSpace(siteName)
	if site != "" && strings.HasSuffix(strings.ToLower(cleaned), strings.ToLower(site)) {
		suffix := regexp.MustCompile(`(?i)\s*[-|–]\s*` + regexp.QuoteMeta(site) + `\s*$`)
		cleaned = suffix.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(cleaned)
}

var boilerplatePrefixes = []string{"let op:", "note:", "warning:", "attention:", "important:", "by using", "please note"}

// FilterDescription drops descriptions that are too short, mostly
// punctuation, or legal and warning boilerplate.
func FilterDescription(desc string) string {
	trimmed := strings.TrimSpace(desc)
	length := utf8.RuneCountInString(trimmed)
	if length < 20 {
		return ""
	}
	letters := 0
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if float64(letters) < float64(length)*0.3 {
		return ""
	}
	lower := strings.ToLower(trimmed)
	for _, prefix := range boilerplatePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}
	if strings.Contains(lower, "terms and conditions") || strings.Contains(lower, "privacy policy") {
		return ""
	}
	return trimmed
}

// ResolveURL resolves ref against base. Unparseable references are dropped.
func ResolveURL(ref string, base *url.URL) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func ldImage(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return firstNonEmpty(ldImage(t["url"]), ldImage(t["contentUrl"]), ldImage(t["@id"]))
	case []any:
		for _, item := range t {
			if s := ldImage(item); s != "" {
				return s
			}
		}
	}
	return ""
}

func ldCoordinates(ld map[string]any) (core.LatLng, bool) {
	geo, ok := ld["geo"].(map[string]any)
	if !ok {
		return core.LatLng{}, false
	}
	lat, latOK := ldFloat(geo["latitude"])
	lng, lngOK := ldFloat(geo["longitude"])
	return validPair(lat, lng, latOK && lngOK)
}

func metaCoordinates(doc *Document) (core.LatLng, bool) {
	if lat, lng := doc.MetaValue("place:location:latitude"), doc.MetaValue("place:location:longitude"); lat != "" && lng != "" {
		if p, ok := parsePair(lat, lng); ok {
			return p, true
		}
	}
	if pos := doc.MetaValue("geo.position"); pos != "" {
		if parts := strings.Split(pos, ";"); len(parts) == 2 {
			if p, ok := parsePair(parts[0], parts[1]); ok {
				return p, true
			}
		}
	}
	if icbm := doc.MetaValue("icbm"); icbm != "" {
		if parts := strings.Split(icbm, ","); len(parts) == 2 {
			if p, ok := parsePair(parts[0], parts[1]); ok {
				return p, true
			}
		}
	}
	return core.LatLng{}, false
}

func parsePair(latRaw, lngRaw string) (core.LatLng, bool) {
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
	return validPair(lat, lng, err1 == nil && err2 == nil)
}

func validPair(lat, lng float64, ok bool) (core.LatLng, bool) {
	if !ok {
		return core.LatLng{}, false
	}
	p := core.LatLng{Lat: lat, Lng: lng}
	if p.Validate() != nil {
		return core.LatLng{}, false
	}
	return p, true
}

func ldFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func ldAddress(v any) (Address, bool) {
	var addr Address
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return Address{}, false
		}
		return Address{Street: s, Formatted: s}, true
	case map[string]any:
		addr = Address{
			Street:     ldString(t["streetAddress"]),
			Locality:   ldString(t["addressLocality"]),
			Region:     firstNonEmpty(ldString(t["addressRegion"]), ldString(t["addressState"])),
			PostalCode: ldString(t["postalCode"]),
			Country:    ldString(t["addressCountry"]),
		}
	default:
		return Address{}, false
	}

	var parts []string
	for _, p := range []string{addr.Street, addr.Locality, addr.Region, addr.PostalCode, addr.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return Address{}, false
	}
	addr.Formatted = strings.Join(parts, ", ")
	return addr, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
