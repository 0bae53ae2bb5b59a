// Package overpass queries OpenStreetMap data through Overpass interpreters.
package overpass

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/waypointhq/waypoint/internal/core"
)

// poiType maps a public POI type to Overpass node selectors and the tag test
// used to recognise it in results.
type poiType struct {
	selectors []string
	match     func(tags map[string]string) bool
}

func tagIs(key, value string) func(map[string]string) bool {
	return func(tags map[string]string) bool { return tags[key] == value }
}

// Ordered for detection: the first matching type wins.
var poiOrder = []string{
	"campsite", "hut", "viewpoint", "water", "shelter", "parking", "trailhead",
	"picnicSite", "toilets", "informationBoard", "peakSummit", "waterfall",
	"cave", "bench", "rangerStation", "emergencyPhone", "guidepost",
}

var poiTypes = map[string]poiType{
	"campsite": {[]string{`node["tourism"="camp_site"]`}, tagIs("tourism", "camp_site")},
	"hut": {[]string{`node["tourism"~"wilderness_hut|alpine_hut"]`}, func(t map[string]string) bool {
		return t["tourism"] == "wilderness_hut" || t["tourism"] == "alpine_hut"
	}},
	"viewpoint": {[]string{`node["tourism"="viewpoint"]`}, tagIs("tourism", "viewpoint")},
	"water": {[]string{`node["amenity"="drinking_water"]`, `node["natural"="spring"]`}, func(t map[string]string) bool {
		return t["amenity"] == "drinking_water" || t["natural"] == "spring"
	}},
	"shelter":    {[]string{`node["amenity"="shelter"]`}, tagIs("amenity", "shelter")},
	"parking":    {[]string{`node["amenity"="parking"]["access"!="private"]`}, tagIs("amenity", "parking")},
	"trailhead":  {[]string{`node["highway"="trailhead"]`}, tagIs("highway", "trailhead")},
	"picnicSite": {[]string{`node["tourism"="picnic_site"]`}, tagIs("tourism", "picnic_site")},
	"toilets":    {[]string{`node["amenity"="toilets"]`}, tagIs("amenity", "toilets")},
	"informationBoard": {[]string{`node["tourism"="information"]["information"="board"]`}, func(t map[string]string) bool {
		return t["tourism"] == "information" && t["information"] == "board"
	}},
	"peakSummit":     {[]string{`node["natural"="peak"]`}, tagIs("natural", "peak")},
	"waterfall":      {[]string{`node["natural"="waterfall"]`}, tagIs("natural", "waterfall")},
	"cave":           {[]string{`node["natural"="cave_entrance"]`}, tagIs("natural", "cave_entrance")},
	"bench":          {[]string{`node["amenity"="bench"]`}, tagIs("amenity", "bench")},
	"rangerStation":  {[]string{`node["amenity"="ranger_station"]`}, tagIs("amenity", "ranger_station")},
	"emergencyPhone": {[]string{`node["emergency"="phone"]`}, tagIs("emergency", "phone")},
	"guidepost":      {[]string{`node["information"="guidepost"]`}, tagIs("information", "guidepost")},
}

// TypeOther is reported for elements that match no known type.
const TypeOther = "other"

// KnownType reports whether t is a supported POI type.
func KnownType(t string) bool {
	_, ok := poiTypes[t]
	return ok
}

// KnownTypes lists the supported POI types in sorted order.
func KnownTypes() []string {
	out := make([]string, 0, len(poiTypes))
	for name := range poiTypes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DetectType classifies an element by its tags.
func DetectType(tags map[string]string) string {
	for _, name := range poiOrder {
		if poiTypes[name].match(tags) {
			return name
		}
	}
	return TypeOther
}

// BuildQuery renders Overpass QL for the requested types inside bounds.
// Unknown types are skipped.
func BuildQuery(bounds core.BoundingBox, types []string, limit int, timeoutSeconds int) string {
	bbox := fmt.Sprintf("%s,%s,%s,%s", coord(bounds.South), coord(bounds.West), coord(bounds.North), coord(bounds.East))

	var lines []string
	seen := map[string]bool{}
	for _, t := range types {
		def, ok := poiTypes[t]
		if !ok || seen[t] {
			continue
		}
		seen[t] = true
		for _, sel := range def.selectors {
			lines = append(lines, "  "+sel+"("+bbox+");")
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", timeoutSeconds)
	b.WriteString(strings.Join(lines, "\n"))
	fmt.Fprintf(&b, "\n);\nout body qt %d;", limit)
	return b.String()
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
