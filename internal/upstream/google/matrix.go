package google

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/upstream"
)

type matrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value float64 `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value float64 `json:"value"`
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

// DistanceMatrix returns one row per origin with one cell per destination.
// Pairs Google cannot route are nil.
func (c *Client) DistanceMatrix(ctx context.Context, req upstream.MatrixRequest) ([][]*upstream.MatrixCell, error) {
	if len(req.Origins) == 0 || len(req.Destinations) == 0 {
		return nil, core.InvalidInput("origins and destinations are required")
	}

	query := url.Values{}
	query.Set("origins", joinLatLngs(req.Origins))
	query.Set("destinations", joinLatLngs(req.Destinations))
	if req.Mode != "" {
		query.Set("mode", req.Mode)
	}

	var payload matrixResponse
	if err := c.getJSON(ctx, c.mapsURL("distancematrix/json", query), nil, &payload); err != nil {
		return nil, err
	}
	if err := statusError(payload.Status, payload.ErrorMessage); err != nil {
		return nil, err
	}
	if len(payload.Rows) == 0 {
		return nil, core.TransportFailure(errors.New("google returned no distance matrix rows"))
	}

	rows := make([][]*upstream.MatrixCell, 0, len(payload.Rows))
	for _, row := range payload.Rows {
		cells := make([]*upstream.MatrixCell, 0, len(row.Elements))
		for _, el := range row.Elements {
			if el.Status != "OK" {
				cells = append(cells, nil)
				continue
			}
			cells = append(cells, &upstream.MatrixCell{DistanceM: el.Distance.Value, DurationS: el.Duration.Value})
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func joinLatLngs(points []core.LatLng) string {
	parts := make([]string, 0, len(points))
	for _, p := range points {
		parts = append(parts, formatLatLng(p))
	}
	return strings.Join(parts, "|")
}
