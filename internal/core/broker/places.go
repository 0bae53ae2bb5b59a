package broker

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/fallback"
	"github.com/waypointhq/waypoint/internal/upstream/blob"
	"github.com/waypointhq/waypoint/internal/upstream/google"
)

const (
	placesProfile = "google"

	// MinQueryLength is the shortest accepted search query, in runes.
	MinQueryLength = 2

	DefaultPhotoWidth = 800
	MaxPhotoWidth     = 1600

	photoContentType  = "image/jpeg"
	photoCacheControl = "public, max-age=31536000"
)

var photoNameUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SearchInput is a place autocomplete query.
type SearchInput struct {
	Query string       `json:"query"`
	Bias  *core.LatLng `json:"bias,omitempty"`
	Types []string     `json:"types,omitempty"`
}

// SearchResult lists autocomplete predictions.
type SearchResult struct {
	Predictions []google.Prediction `json:"predictions"`
}

// DetailsInput names a place.
type DetailsInput struct {
	PlaceID string `json:"place_id"`
}

// GeocodeInput is a free-text address.
type GeocodeInput struct {
	Address string `json:"address"`
}

// GeocodeResult carries coordinates when Found is true.
type GeocodeResult struct {
	Found    bool    `json:"found"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Provider string  `json:"provider,omitempty"`
}

// PhotoInput references a place photo.
type PhotoInput struct {
	Reference string `json:"reference"`
	MaxWidth  int    `json:"max_width"`
}

// PhotoResult is the public address of the stored photo.
type PhotoResult struct {
	URL    string `json:"url"`
	Stored bool   `json:"stored"`
}

// SearchPlaces returns autocomplete predictions for a query.
func (b *Broker) SearchPlaces(ctx context.Context, callerID string, in SearchInput) (SearchResult, core.Provenance, error) {
	prov, err := requireCaller(core.OpPlacesSearch, callerID)
	if err != nil {
		return SearchResult{}, prov, err
	}
	query := strings.TrimSpace(in.Query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return SearchResult{}, prov, core.InvalidInput("query must be at least %d characters", MinQueryLength)
	}
	if in.Bias != nil {
		if err := in.Bias.Validate(); err != nil {
			return SearchResult{}, prov, core.InvalidInput("bias: %v", err)
		}
	}
	req := google.AutocompleteRequest{Query: query, Bias: in.Bias, Types: engine.SortedSet(in.Types)}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[SearchResult]{
		Name:     core.OpPlacesSearch,
		CallerID: callerID,
		Key: struct {
			Query string       `json:"query"`
			Bias  *core.LatLng `json:"bias"`
			Types []string     `json:"types"`
		}{strings.ToLower(query), req.Bias, req.Types},
		Run: func(ctx context.Context) (SearchResult, fallback.Report, error) {
			return runWhole(ctx, wholePipeline(b, core.OpPlacesSearch, b.placesProfiles(),
				func(ctx context.Context, _ fallback.Profile) (SearchResult, error) {
					predictions, err := b.Places.Autocomplete(ctx, req)
					if err != nil {
						return SearchResult{}, err
					}
					if predictions == nil {
						predictions = []google.Prediction{}
					}
					return SearchResult{Predictions: predictions}, nil
				}))
		},
	})
}

// PlaceDetails returns the record of one place.
func (b *Broker) PlaceDetails(ctx context.Context, callerID string, in DetailsInput) (google.Place, core.Provenance, error) {
	if prov, err := requireCaller(core.OpPlacesDetails, callerID); err != nil {
		return google.Place{}, prov, err
	}
	id := strings.TrimSpace(in.PlaceID)
	if id == "" {
		return google.Place{}, core.Provenance{Operation: core.OpPlacesDetails}, core.InvalidInput("place_id is required")
	}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[google.Place]{
		Name:     core.OpPlacesDetails,
		CallerID: callerID,
		Key:      id,
		Run: func(ctx context.Context) (google.Place, fallback.Report, error) {
			return runWhole(ctx, wholePipeline(b, core.OpPlacesDetails, b.placesProfiles(),
				func(ctx context.Context, _ fallback.Profile) (google.Place, error) {
					return b.Places.Details(ctx, id)
				}))
		},
	})
}

// Geocode resolves an address with the geocoders in order. A provider with
// no match hands over to the next; when none matches the result has Found
// false and is not cached.
func (b *Broker) Geocode(ctx context.Context, callerID string, in GeocodeInput) (GeocodeResult, core.Provenance, error) {
	if prov, err := requireCaller(core.OpPlacesGeocode, callerID); err != nil {
		return GeocodeResult{}, prov, err
	}
	address := strings.Join(strings.Fields(in.Address), " ")
	if address == "" {
		return GeocodeResult{}, core.Provenance{Operation: core.OpPlacesGeocode}, core.InvalidInput("address is required")
	}

	geocoders := make(map[string]Geocoder, len(b.Geocoders))
	names := make([]string, 0, len(b.Geocoders))
	for _, g := range b.Geocoders {
		geocoders[g.Name()] = g
		names = append(names, g.Name())
	}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[GeocodeResult]{
		Name:     core.OpPlacesGeocode,
		CallerID: callerID,
		Key:      strings.ToLower(address),
		Run: func(ctx context.Context) (GeocodeResult, fallback.Report, error) {
			misses := 0
			pipeline := wholePipeline(b, core.OpPlacesGeocode, namedProfiles(names...),
				func(ctx context.Context, p fallback.Profile) (GeocodeResult, error) {
					loc, found, err := geocoders[p.Name].Geocode(ctx, address)
					if err != nil {
						return GeocodeResult{}, err
					}
					if !found {
						misses++
						return GeocodeResult{}, core.SoftBlock(p.Name + ": no match")
					}
					if err := loc.Validate(); err != nil {
						return GeocodeResult{}, core.SoftBlock(fmt.Sprintf("%s: %v", p.Name, err))
					}
					return GeocodeResult{Found: true, Lat: loc.Lat, Lng: loc.Lng, Provider: p.Name}, nil
				})

			result, report, err := runWhole(ctx, pipeline)
			if err != nil && len(names) > 0 && misses == len(report.Attempts) && len(report.Attempts) == len(names) {
				return GeocodeResult{Found: false}, report, nil
			}
			return result, report, err
		},
		Cacheable: func(r GeocodeResult) bool {
			return r.Found
		},
	})
}

// Photo stores a place photo in the blob store and returns its public URL.
// A photo that is already stored is returned without rate limiting.
func (b *Broker) Photo(ctx context.Context, callerID string, in PhotoInput) (PhotoResult, core.Provenance, error) {
	prov, err := requireCaller(core.OpPlacesPhoto, callerID)
	if err != nil {
		return PhotoResult{}, prov, err
	}
	ref := strings.Trim(strings.TrimSpace(in.Reference), "/")
	if ref == "" {
		return PhotoResult{}, prov, core.InvalidInput("reference is required")
	}
	width := in.MaxWidth
	if width == 0 {
		width = DefaultPhotoWidth
	}
	if width < 1 || width > MaxPhotoWidth {
		return PhotoResult{}, prov, core.InvalidInput("max_width must be between 1 and %d", MaxPhotoWidth)
	}
	if b.Blobs == nil {
		return PhotoResult{}, prov, core.StorageFailure(fmt.Errorf("blob store is not configured"))
	}

	key := b.Blobs.Key(photoName(ref) + ".jpg")
	exists, err := b.Blobs.Exists(ctx, key)
	if err != nil {
		b.logger().Warn("Photo lookup failed, fetching again", zap.String("key", key), zap.Error(err))
	}
	if exists {
		prov.FromCache = true
		return PhotoResult{URL: b.Blobs.PublicURL(key), Stored: true}, prov, nil
	}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[PhotoResult]{
		Name:     core.OpPlacesPhoto,
		CallerID: callerID,
		Run: func(ctx context.Context) (PhotoResult, fallback.Report, error) {
			data, report, err := runWhole(ctx, wholePipeline(b, core.OpPlacesPhoto, b.placesProfiles(),
				func(ctx context.Context, _ fallback.Profile) ([]byte, error) {
					data, _, err := b.Places.Photo(ctx, ref, width)
					if err != nil {
						return nil, err
					}
					if len(data) == 0 {
						return nil, core.SoftBlock("empty photo body")
					}
					return data, nil
				}))
			if err != nil {
				return PhotoResult{}, report, err
			}
			err = b.Blobs.Put(ctx, blob.Object{
				Key:          key,
				Data:         data,
				ContentType:  photoContentType,
				CacheControl: photoCacheControl,
				Metadata:     map[string]string{"reference": ref},
			})
			if err != nil {
				return PhotoResult{}, report, core.StorageFailure(err)
			}
			return PhotoResult{URL: b.Blobs.PublicURL(key), Stored: true}, report, nil
		},
	})
}

func (b *Broker) placesProfiles() []fallback.Profile {
	if b.Places == nil {
		return nil
	}
	return namedProfiles(placesProfile)
}

// photoName derives a stable object name from the last reference segment.
func photoName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	name := photoNameUnsafe.ReplaceAllString(ref, "_")
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}
