package broker

import (
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/fallback"
)

// Capabilities lists, per operation, the upstream profiles the broker will
// try in order. An operation with no profiles always fails with
// upstream_exhausted.
func (b *Broker) Capabilities() map[string][]string {
	caps := make(map[string][]string, len(core.Operations))
	for _, op := range core.Operations {
		caps[op] = []string{}
	}

	for _, r := range b.Routers {
		caps[core.OpDirections] = append(caps[core.OpDirections], r.Name())
	}
	for _, p := range b.MatrixProviders {
		caps[core.OpDistanceMatrix] = append(caps[core.OpDistanceMatrix], p.Name())
	}
	for _, m := range b.Matchers {
		caps[core.OpRouteMatch] = append(caps[core.OpRouteMatch], m.Name())
	}
	for _, g := range b.Geocoders {
		caps[core.OpPlacesGeocode] = append(caps[core.OpPlacesGeocode], g.Name())
	}
	if b.Places != nil {
		caps[core.OpPlacesSearch] = []string{placesProfile}
		caps[core.OpPlacesDetails] = []string{placesProfile}
		caps[core.OpPlacesPhoto] = []string{placesProfile}
	}
	if b.Terrain != nil {
		caps[core.OpElevation] = append(caps[core.OpElevation], b.TerrainSources...)
	}
	if b.Overpass != nil {
		caps[core.OpPOIs] = append(caps[core.OpPOIs], b.OverpassEndpoints...)
	}
	if b.Pages != nil {
		caps[core.OpLinkMetadata] = profileNames(b.Catalog.LinkMetadata.Profiles)
		caps[core.OpRouteMetadata] = profileNames(b.Catalog.RouteMetadata.Profiles)
	}
	if b.Travel != nil {
		caps[core.OpTravelContext] = append(caps[core.OpTravelContext], b.TravelModels...)
	}
	return caps
}

func profileNames(profiles []fallback.Profile) []string {
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	return names
}
