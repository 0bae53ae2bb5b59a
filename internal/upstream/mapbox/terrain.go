package mapbox

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"

	"golang.org/x/image/webp"

	"github.com/waypointhq/waypoint/internal/upstream"
)

// Terrain tile sources.
const (
	TerrainPNGRaw = "pngraw"
	TerrainWebP   = "webp"
)

// TileSize is the pixel width and height of a terrain tile.
const TileSize = 256

// TerrainTile fetches and decodes one terrain-RGB tile.
func (c *Client) TerrainTile(ctx context.Context, source string, z, x, y int) (image.Image, error) {
	key := fmt.Sprintf("%s/%d/%d/%d", source, z, x, y)
	if c.tiles != nil {
		if cached, ok := c.tiles.Get(key); ok {
			return cached.(image.Image), nil
		}
	}

	var (
		path   string
		decode func([]byte) (image.Image, error)
	)
	switch source {
	case TerrainPNGRaw:
		path = fmt.Sprintf("v4/mapbox.terrain-rgb/%d/%d/%d.pngraw", z, x, y)
		decode = func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) }
	case TerrainWebP:
		path = fmt.Sprintf("v4/mapbox.mapbox-terrain-dem-v1/%d/%d/%d.webp", z, x, y)
		decode = func(b []byte) (image.Image, error) { return webp.Decode(bytes.NewReader(b)) }
	default:
		return nil, fmt.Errorf("unknown terrain source %q", source)
	}

	resp, err := c.get(ctx, c.endpoint(path, nil))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return nil, upstream.StatusError(providerName, resp)
	}
	data, err := upstream.ReadBody(resp, maxTileBytes)
	if err != nil {
		return nil, err
	}
	img, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s tile: %w", source, err)
	}
	if c.tiles != nil {
		c.tiles.SetDefault(key, img)
	}
	return img, nil
}

// ElevationAt decodes the terrain-RGB height of pixel (px, py).
func ElevationAt(img image.Image, px, py int) float64 {
	b := img.Bounds()
	r, g, bl, _ := img.At(b.Min.X+px, b.Min.Y+py).RGBA()
	return DecodeElevation(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
}

// DecodeElevation converts a terrain-RGB pixel to meters.
func DecodeElevation(r, g, b uint8) float64 {
	return -10000 + float64(int(r)*65536+int(g)*256+int(b))*0.1
}
