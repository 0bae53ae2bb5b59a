package handlers

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/broker"
	apperrors "github.com/waypointhq/waypoint/internal/errors"
	"github.com/waypointhq/waypoint/internal/server/middleware"
)

// Provenance headers set on every successful operation response.
const (
	HeaderCache    = "X-Waypoint-Cache"
	HeaderProfile  = "X-Waypoint-Profile"
	HeaderAttempts = "X-Waypoint-Attempts"
)

// DefaultMaxBodyBytes bounds request bodies when Operations.MaxBodyBytes is
// unset.
const DefaultMaxBodyBytes = 1 << 20

// Operations exposes the broker over HTTP. Every handler decodes a JSON
// body, takes the caller from the request context and writes the result
// fields as the response body.
type Operations struct {
	Broker       *broker.Broker
	MaxBodyBytes int64
}

func (o *Operations) Directions(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, call[broker.DirectionsInput](func(ctx context.Context, caller string, in broker.DirectionsInput) (any, core.Provenance, error) {
		out, prov, err := o.Broker.Directions(ctx, caller, in)
		if err == nil && out.Error != "" {
			return map[string]string{"error": out.Error}, prov, nil
		}
		return out, prov, err
	}))
}

func (o *Operations) DistanceMatrix(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, adapt(o.Broker.DistanceMatrix))
}

func (o *Operations) RouteMatch(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, call[broker.RouteMatchInput](func(ctx context.Context, caller string, in broker.RouteMatchInput) (any, core.Provenance, error) {
		out, prov, err := o.Broker.RouteMatch(ctx, caller, in)
		if err == nil && out.Error != "" {
			return map[string]string{"error": out.Error}, prov, nil
		}
		return out, prov, err
	}))
}

func (o *Operations) PlacesSearch(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, adapt(o.Broker.SearchPlaces))
}

func (o *Operations) PlacesDetails(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, adapt(o.Broker.PlaceDetails))
}

func (o *Operations) PlacesGeocode(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, call[broker.GeocodeInput](func(ctx context.Context, caller string, in broker.GeocodeInput) (any, core.Provenance, error) {
		out, prov, err := o.Broker.Geocode(ctx, caller, in)
		if err == nil && !out.Found {
			return map[string]bool{"found": false}, prov, nil
		}
		return out, prov, err
	}))
}

func (o *Operations) PlacesPhoto(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, adapt(o.Broker.Photo))
}

func (o *Operations) Elevation(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, adapt(o.Broker.Elevation))
}

func (o *Operations) POIs(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, adapt(o.Broker.POIs))
}

func (o *Operations) LinkMetadata(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, adapt(o.Broker.LinkMetadata))
}

func (o *Operations) RouteMetadata(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, adapt(o.Broker.RouteMetadata))
}

func (o *Operations) TravelContext(w http.ResponseWriter, r *http.Request) {
	handle(o, w, r, adapt(o.Broker.TravelContext))
}

type call[In any] func(ctx context.Context, caller string, in In) (any, core.Provenance, error)

func adapt[In, Out any](fn func(context.Context, string, In) (Out, core.Provenance, error)) call[In] {
	return func(ctx context.Context, caller string, in In) (any, core.Provenance, error) {
		out, prov, err := fn(ctx, caller, in)
		return out, prov, err
	}
}

func handle[In any](o *Operations, w http.ResponseWriter, r *http.Request, fn call[In]) {
	var in In
	if err := o.decode(w, r, &in); err != nil {
		respondWithError(w, r, err)
		return
	}

	out, prov, err := fn(r.Context(), middleware.CallerFromContext(r.Context()), in)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	cache := "miss"
	if prov.FromCache {
		cache = "hit"
	}
	w.Header().Set(HeaderCache, cache)
	if prov.Profile != "" {
		w.Header().Set(HeaderProfile, prov.Profile)
	}
	w.Header().Set(HeaderAttempts, strconv.Itoa(prov.Attempts))
	writeJSON(w, http.StatusOK, out)
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

func (o *Operations) decode(w http.ResponseWriter, r *http.Request, v any) error {
	limit := o.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return apperrors.NewPayloadTooLargeError("request body exceeds " + strconv.FormatInt(limit, 10) + " bytes")
		}
		return core.InvalidInput("unreadable request body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return core.InvalidInput("request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return core.InvalidInput("malformed JSON body")
	}
	return nil
}
