package broker

import (
	"context"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/fallback"
	"github.com/waypointhq/waypoint/internal/upstream"
)

// Matrix bounds accepted by the Distance Matrix API.
const (
	MaxMatrixSide     = 25
	MaxMatrixElements = 100
)

// MatrixProvider computes travel costs between point sets.
type MatrixProvider interface {
	Name() string
	DistanceMatrix(ctx context.Context, req upstream.MatrixRequest) ([][]*upstream.MatrixCell, error)
}

// DistanceMatrixInput is the distance matrix request payload.
type DistanceMatrixInput struct {
	Origins      []core.LatLng `json:"origins"`
	Destinations []core.LatLng `json:"destinations"`
	Mode         string        `json:"mode"`
}

// DistanceMatrix has one row per origin and one cell per destination. A nil
// cell marks a pair the provider could not route.
type DistanceMatrix struct {
	Rows     [][]*upstream.MatrixCell `json:"rows"`
	Provider string                   `json:"provider,omitempty"`
}

// DistanceMatrix returns travel distance and duration between every origin
// and destination, typically consecutive stops of a trip.
func (b *Broker) DistanceMatrix(ctx context.Context, callerID string, in DistanceMatrixInput) (DistanceMatrix, core.Provenance, error) {
	prov, err := requireCaller(core.OpDistanceMatrix, callerID)
	if err != nil {
		return DistanceMatrix{}, prov, err
	}
	if err := validatePoints("origins", in.Origins, 1, MaxMatrixSide); err != nil {
		return DistanceMatrix{}, prov, err
	}
	if err := validatePoints("destinations", in.Destinations, 1, MaxMatrixSide); err != nil {
		return DistanceMatrix{}, prov, err
	}
	if n := len(in.Origins) * len(in.Destinations); n > MaxMatrixElements {
		return DistanceMatrix{}, prov, core.InvalidInput("matrix of %d pairs exceeds %d", n, MaxMatrixElements)
	}
	mode, err := b.travelMode(in.Mode)
	if err != nil {
		return DistanceMatrix{}, prov, err
	}
	req := upstream.MatrixRequest{
		Origins:      append([]core.LatLng(nil), in.Origins...),
		Destinations: append([]core.LatLng(nil), in.Destinations...),
		Mode:         mode,
	}

	providers := make(map[string]MatrixProvider, len(b.MatrixProviders))
	names := make([]string, 0, len(b.MatrixProviders))
	for _, p := range b.MatrixProviders {
		providers[p.Name()] = p
		names = append(names, p.Name())
	}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[DistanceMatrix]{
		Name:     core.OpDistanceMatrix,
		CallerID: callerID,
		Key:      req,
		Run: func(ctx context.Context) (DistanceMatrix, fallback.Report, error) {
			return runWhole(ctx, wholePipeline(b, core.OpDistanceMatrix, namedProfiles(names...),
				func(ctx context.Context, p fallback.Profile) (DistanceMatrix, error) {
					rows, err := providers[p.Name].DistanceMatrix(ctx, req)
					if err != nil {
						return DistanceMatrix{}, err
					}
					if len(rows) != len(req.Origins) {
						return DistanceMatrix{}, core.SoftBlock(p.Name + ": matrix does not cover every origin")
					}
					return DistanceMatrix{Rows: rows, Provider: p.Name}, nil
				}))
		},
	})
}
