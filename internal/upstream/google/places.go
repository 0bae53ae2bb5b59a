package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/upstream"
)

const (
	biasRadiusMeters = 50000.0
	maxPredictions   = 5
)

// AutocompleteRequest is a place search query.
type AutocompleteRequest struct {
	Query string
	Bias  *core.LatLng
	Types []string
}

// Prediction is one autocomplete suggestion.
type Prediction struct {
	PlaceID string `json:"place_id"`
	Text    string `json:"text"`
}

// Place is the subset of place details exposed to callers.
type Place struct {
	PlaceID        string      `json:"place_id"`
	Name           string      `json:"name"`
	Address        string      `json:"address,omitempty"`
	Location       core.LatLng `json:"location"`
	Rating         float64     `json:"rating,omitempty"`
	Website        string      `json:"website,omitempty"`
	Phone          string      `json:"phone,omitempty"`
	Types          []string    `json:"types"`
	PhotoReference string      `json:"photo_reference,omitempty"`
}

// Autocomplete returns up to five predictions for the query.
func (c *Client) Autocomplete(ctx context.Context, req AutocompleteRequest) ([]Prediction, error) {
	body := map[string]any{"input": strings.TrimSpace(req.Query)}
	if req.Bias != nil {
		body["locationBias"] = map[string]any{
			"circle": map[string]any{
				"center": map[string]float64{"latitude": req.Bias.Lat, "longitude": req.Bias.Lng},
				"radius": biasRadiusMeters,
			},
		}
	}
	var types []string
	for _, t := range req.Types {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	if len(types) > 0 {
		body["includedPrimaryTypes"] = types
	}

	var payload struct {
		Suggestions []struct {
			PlacePrediction *struct {
				PlaceID string `json:"placeId"`
				Text    struct {
					Text string `json:"text"`
				} `json:"text"`
			} `json:"placePrediction"`
		} `json:"suggestions"`
	}
	headers := map[string]string{
		"X-Goog-Api-Key":   c.APIKey,
		"X-Goog-FieldMask": "suggestions.placePrediction.placeId,suggestions.placePrediction.text",
	}
	if err := c.postJSON(ctx, c.placesURL("places:autocomplete"), headers, body, &payload); err != nil {
		return nil, err
	}

	predictions := []Prediction{}
	for _, s := range payload.Suggestions {
		if s.PlacePrediction == nil {
			continue
		}
		predictions = append(predictions, Prediction{PlaceID: s.PlacePrediction.PlaceID, Text: s.PlacePrediction.Text.Text})
		if len(predictions) == maxPredictions {
			break
		}
	}
	return predictions, nil
}

// Details fetches a place by id.
func (c *Client) Details(ctx context.Context, placeID string) (Place, error) {
	var payload struct {
		ID          string `json:"id"`
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string `json:"formattedAddress"`
		Location         struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
		Rating              float64  `json:"rating"`
		WebsiteURI          string   `json:"websiteUri"`
		NationalPhoneNumber string   `json:"nationalPhoneNumber"`
		Types               []string `json:"types"`
		Photos              []struct {
			Name string `json:"name"`
		} `json:"photos"`
	}
	headers := map[string]string{
		"X-Goog-Api-Key":   c.APIKey,
		"X-Goog-FieldMask": "id,displayName,formattedAddress,location,rating,websiteUri,nationalPhoneNumber,types,photos",
	}
	if err := c.getJSON(ctx, c.placesURL("places/"+url.PathEscape(placeID)), headers, &payload); err != nil {
		return Place{}, err
	}

	place := Place{
		PlaceID:  payload.ID,
		Name:     payload.DisplayName.Text,
		Address:  payload.FormattedAddress,
		Location: core.LatLng{Lat: payload.Location.Latitude, Lng: payload.Location.Longitude},
		Rating:   payload.Rating,
		Website:  payload.WebsiteURI,
		Phone:    payload.NationalPhoneNumber,
		Types:    payload.Types,
	}
	if place.Types == nil {
		place.Types = []string{}
	}
	if len(payload.Photos) > 0 {
		place.PhotoReference = payload.Photos[0].Name
	}
	return place, nil
}

// Geocode resolves an address. found is false when Google has no match.
func (c *Client) Geocode(ctx context.Context, address string) (core.LatLng, bool, error) {
	query := url.Values{}
	query.Set("address", address)

	var payload struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		Results      []struct {
			Geometry struct {
				Location core.LatLng `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := c.getJSON(ctx, c.mapsURL("geocode/json", query), nil, &payload); err != nil {
		return core.LatLng{}, false, err
	}
	if err := statusError(payload.Status, payload.ErrorMessage); err != nil {
		if core.IsKind(err, core.KindNoRoute) {
			return core.LatLng{}, false, nil
		}
		return core.LatLng{}, false, err
	}
	if len(payload.Results) == 0 {
		return core.LatLng{}, false, nil
	}
	return payload.Results[0].Geometry.Location, true, nil
}

// Photo downloads the media for a photo reference such as
// "places/<id>/photos/<ref>".
func (c *Client) Photo(ctx context.Context, reference string, maxWidth int) ([]byte, string, error) {
	if !c.Configured() {
		return nil, "", core.TransportFailure(fmt.Errorf("google api key is not configured"))
	}
	query := url.Values{}
	query.Set("maxWidthPx", strconv.Itoa(maxWidth))
	query.Set("key", c.APIKey)
	endpoint := c.placesURL(strings.TrimPrefix(reference, "/")+"/media") + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := upstream.HTTPClient(c.HTTP, 0).Do(req)
	if err != nil {
		return nil, "", core.TransportFailure(err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return nil, "", upstream.StatusError(providerName, resp)
	}
	data, err := upstream.ReadBody(resp, maxPhotoBytes)
	if err != nil {
		return nil, "", core.TransportFailure(err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}
