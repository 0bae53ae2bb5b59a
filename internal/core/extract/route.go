package extract

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/waypointhq/waypoint/internal/core/fallback"
)

// Route sources.
const (
	SourceKomoot    = "komoot"
	SourceAllTrails = "alltrails"
)

// Extraction methods, in priority order.
const (
	MethodJSONLD      = "json_ld"
	MethodMetaTags    = "meta_tags"
	MethodHTMLParsing = "html_parsing"
)

// Difficulty grades.
const (
	DifficultyEasy     = "easy"
	DifficultyModerate = "moderate"
	DifficultyHard     = "hard"
)

// Route is the summary of a hiking or cycling route page.
type Route struct {
	DistanceKm     fallback.Field[float64] `json:"distance_km"`
	ElevationGainM fallback.Field[int]     `json:"elevation_gain_m"`
	Duration       fallback.Field[string]  `json:"duration"`
	Difficulty     fallback.Field[string]  `json:"difficulty"`
	Method         fallback.Field[string]  `json:"extraction_method"`
}

// Merge fills empty fields from next.
func (r Route) Merge(next Route) Route {
	return Route{
		DistanceKm:     r.DistanceKm.Or(next.DistanceKm),
		ElevationGainM: r.ElevationGainM.Or(next.ElevationGainM),
		Duration:       r.Duration.Or(next.Duration),
		Difficulty:     r.Difficulty.Or(next.Difficulty),
		Method:         r.Method.Or(next.Method),
	}
}

// HasSignal reports whether any route figure was extracted. The method alone
// does not count.
func (r Route) HasSignal() bool {
	return r.DistanceKm.IsSet() || r.ElevationGainM.IsSet() || r.Duration.IsSet() || r.Difficulty.IsSet()
}

// Complete reports whether distance, elevation gain and duration are known.
func (r Route) Complete() bool {
	return r.DistanceKm.IsSet() && r.ElevationGainM.IsSet() && r.Duration.IsSet()
}

func (r Route) withMethod(method string) Route {
	if r.HasSignal() {
		r.Method = fallback.Some(method)
	}
	return r
}

// RouteSource maps a URL to its route site, or reports false for sites that
// are not supported.
func RouteSource(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "alltrails.com" || strings.HasSuffix(host, ".alltrails.com"):
		return SourceAllTrails, true
	case host == "komoot.com" || strings.HasSuffix(host, ".komoot.com") ||
		host == "komoot.de" || strings.HasSuffix(host, ".komoot.de"):
		return SourceKomoot, true
	}
	return "", false
}

// ParseRoute runs JSON-LD, meta tag and site-specific text extraction in
// that order and merges the results per field.
func ParseRoute(doc *Document, source string) Route {
	route := routeFromJSONLD(doc).withMethod(MethodJSONLD)
	route = route.Merge(routeFromMeta(doc).withMethod(MethodMetaTags))

	var text Route
	if source == SourceAllTrails {
		text = routeFromAllTrailsText(doc.Text)
	} else {
		text = routeFromKomootText(doc.Text)
	}
	return route.Merge(text.withMethod(MethodHTMLParsing))
}

var (
	kmPattern        = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:km|kilometer)`)
	lengthPattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(km|kilometer|m|meter)`)
	metersPattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:m|meter|meters)\b`)
	ogKmPattern      = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*km`)
	ogElevPattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*m\s*(?:elevation|ascent|gain)`)
	atLengthPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*km\s*(?:length|distance)`)
	atElevPattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*m\s*(?:elevation\s*gain|ascent)`)
	atRangePattern   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*[-–]\s*(\d+(?:\.\d+)?)\s*h(?:r|ours?)?`)
	atHoursPattern   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*h(?:r|ours?)?\b`)
	atGradePattern   = regexp.MustCompile(`(?i)\b(easy|moderate|hard|intermediate|expert|challenging|beginner)\b`)
	komootKmPattern  = regexp.MustCompile(`(?i)(\d+(?:[,.]\d+)?)\s*km`)
	komootElev       = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*m\b`)
	clockPattern     = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	isoDuration      = regexp.MustCompile(`(?i)^P(?:(\d+)D)?T?(?:(\d+(?:\.\d+)?)H)?(?:(\d+)M)?(?:\d+(?:\.\d+)?S)?$`)
	hoursMinutes     = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*h(?:ours?|r)?`)
	minutesOnly      = regexp.MustCompile(`(?i)(\d+)\s*m(?:in(?:utes?)?)?\b`)
	hoursRange       = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)\s*h(?:ours?|r)?`)
	wholeClock       = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

func routeFromJSONLD(doc *Document) Route {
	for _, obj := range ldObjects(doc.JSONLD) {
		if !isRouteType(ldTypes(obj)) {
			continue
		}
		var r Route
		if m := kmPattern.FindStringSubmatch(ldString(obj["distance"])); m != nil {
			r.DistanceKm = someFloat(m[1])
		}
		if m := lengthPattern.FindStringSubmatch(ldString(obj["length"])); m != nil && !r.DistanceKm.IsSet() {
			v, _ := strconv.ParseFloat(m[1], 64)
			unit := strings.ToLower(m[2])
			if strings.HasPrefix(unit, "k") {
				r.DistanceKm = fallback.Some(v)
			} else if v > 100 {
				r.DistanceKm = fallback.Some(v / 1000)
			}
		}
		elev := firstNonEmpty(ldString(obj["elevationGain"]), ldString(obj["elevation"]))
		if m := metersPattern.FindStringSubmatch(elev); m != nil {
			r.ElevationGainM = roundMeters(m[1])
		}
		if d := firstNonEmpty(ldString(obj["duration"]), ldString(obj["timeRequired"])); d != "" {
			if minutes, ok := ParseMinutes(d); ok {
				r.Duration = fallback.Some(FormatMinutes(minutes))
			} else {
				r.Duration = fallback.Some(d)
			}
		}
		if d := NormalizeDifficulty(firstNonEmpty(ldString(obj["difficulty"]), ldString(obj["difficultyLevel"]))); d != "" {
			r.Difficulty = fallback.Some(d)
		}
		if r.HasSignal() {
			return r
		}
	}
	return Route{}
}

func isRouteType(types []string) bool {
	for _, t := range types {
		if strings.Contains(t, "Trail") || strings.Contains(t, "Route") || t == "Thing" {
			return true
		}
	}
	return false
}

func routeFromMeta(doc *Document) Route {
	desc := doc.MetaValue("og:description", "description")
	if desc == "" {
		return Route{}
	}
	var r Route
	if m := ogKmPattern.FindStringSubmatch(desc); m != nil {
		r.DistanceKm = someFloat(strings.Replace(m[1], ",", ".", 1))
	}
	if m := ogElevPattern.FindStringSubmatch(desc); m != nil {
		r.ElevationGainM = roundMeters(m[1])
	}
	if d := NormalizeDifficulty(desc); d != "" {
		r.Difficulty = fallback.Some(d)
	}
	return r
}

func routeFromAllTrailsText(text string) Route {
	var r Route
	if m := atLengthPattern.FindStringSubmatch(text); m != nil {
		r.DistanceKm = someFloat(m[1])
	}
	if m := atElevPattern.FindStringSubmatch(text); m != nil {
		r.ElevationGainM = roundMeters(m[1])
	}
	if m := atRangePattern.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		r.Duration = fallback.Some(FormatMinutes(int(math.Round((lo + hi) / 2 * 60))))
	} else if m := atHoursPattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.ParseFloat(m[1], 64)
		if minutes := int(math.Round(h * 60)); minutes > 0 {
			r.Duration = fallback.Some(FormatMinutes(minutes))
		}
	}
	if m := atGradePattern.FindStringSubmatch(text); m != nil {
		r.Difficulty = fallback.Text(NormalizeDifficulty(m[1]))
	}
	return r
}

func routeFromKomootText(text string) Route {
	var r Route
	if m := komootKmPattern.FindStringSubmatch(text); m != nil {
		r.DistanceKm = someFloat(strings.Replace(m[1], ",", ".", 1))
	}
	if m := komootElev.FindStringSubmatch(text); m != nil {
		r.ElevationGainM = roundMeters(m[1])
	}
	if m := clockPattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		if total := h*60 + mins; total > 0 {
			r.Duration = fallback.Some(FormatMinutes(total))
		}
	}
	r.Difficulty = fallback.Text(NormalizeDifficulty(text))
	return r
}

type gradeWords struct {
	grade string
	words []string
}

// Checked in order: English, Dutch, German. "mittelschwer" must be tested
// before "schwer".
var difficultyWords = []gradeWords{
	{DifficultyEasy, []string{"easy", "beginner"}},
	{DifficultyModerate, []string{"moderate", "intermediate", "medium"}},
	{DifficultyHard, []string{"hard", "difficult", "expert", "challenging"}},
	{DifficultyEasy, []string{"makkelijk", "eenvoudig"}},
	{DifficultyModerate, []string{"gemiddeld", "normaal"}},
	{DifficultyHard, []string{"zwaar", "moeilijk"}},
	{DifficultyEasy, []string{"leicht", "einfach"}},
	{DifficultyModerate, []string{"mittelschwer", "mittel"}},
	{DifficultyHard, []string{"schwer", "schwierig"}},
}

// NormalizeDifficulty maps free text in English, Dutch or German to easy,
// moderate or hard. Unknown text yields "".
func NormalizeDifficulty(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return ""
	}
	for _, g := range difficultyWords {
		for _, w := range g.words {
			if strings.Contains(lower, w) {
				return g.grade
			}
		}
	}
	return ""
}

// ParseMinutes understands "06:43", ISO 8601 durations such as "PT4H30M",
// "6h 43m" and ranges like "4-4.5 hr" (averaged).
func ParseMinutes(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if m := wholeClock.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		return positive(h*60 + mins)
	}
	if m := isoDuration.FindStringSubmatch(s); m != nil && len(s) > 1 {
		total := 0.0
		if m[1] != "" {
			d, _ := strconv.Atoi(m[1])
			total += float64(d) * 24 * 60
		}
		if m[2] != "" {
			h, _ := strconv.ParseFloat(m[2], 64)
			total += h * 60
		}
		if m[3] != "" {
			mins, _ := strconv.Atoi(m[3])
			total += float64(mins)
		}
		return positive(int(math.Round(total)))
	}
	if m := hoursRange.FindStringSubmatch(s); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		return positive(int(math.Round((lo + hi) / 2 * 60)))
	}
	total := 0
	if m := hoursMinutes.FindStringSubmatch(s); m != nil {
		h, _ := strconv.ParseFloat(m[1], 64)
		total += int(math.Round(h * 60))
	}
	if m := minutesOnly.FindStringSubmatch(s); m != nil {
		mins, _ := strconv.Atoi(m[1])
		total += mins
	}
	return positive(total)
}

// FormatMinutes renders a duration as "6h 43m", "6h" or "43m".
func FormatMinutes(minutes int) string {
	if minutes <= 0 {
		return ""
	}
	h, m := minutes/60, minutes%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

func positive(n int) (int, bool) {
	return n, n > 0
}

func someFloat(raw string) fallback.Field[float64] {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback.None[float64]()
	}
	return fallback.Some(v)
}

func roundMeters(raw string) fallback.Field[int] {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback.None[int]()
	}
	return fallback.Some(int(math.Round(v)))
}
