package overpass

import "strconv"

// FeatureCollection is a GeoJSON collection of POI points.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON point feature.
type Feature struct {
	Type       string     `json:"type"`
	Geometry   Point      `json:"geometry"`
	Properties Properties `json:"properties"`
}

// Point is a GeoJSON point with [lng, lat] coordinates.
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Properties describe a POI.
type Properties struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Tags        map[string]string `json:"tags"`
}

// ToFeatureCollection converts Overpass nodes to GeoJSON. Elements without
// coordinates are dropped.
func ToFeatureCollection(resp Response) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	for _, el := range resp.Elements {
		if el.Lat == 0 && el.Lon == 0 {
			continue
		}
		tags := el.Tags
		if tags == nil {
			tags = map[string]string{}
		}
		name := firstTag(tags, "name", "name:en", "name:sv")
		if name == "" {
			name = "Unnamed"
		}
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: Point{Type: "Point", Coordinates: [2]float64{el.Lon, el.Lat}},
			Properties: Properties{
				ID:          strconv.FormatInt(el.ID, 10),
				Type:        DetectType(tags),
				Name:        name,
				Description: firstTag(tags, "description", "note"),
				Tags:        tags,
			},
		})
	}
	return fc
}

func firstTag(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return ""
}
