package web

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/waypointhq/waypoint/internal/core/fallback"
)

//go:embed profiles.yaml
var defaultProfiles []byte

// Catalog holds the scraping profile sets per operation.
type Catalog struct {
	LinkMetadata  ProfileSet `yaml:"link_metadata"`
	RouteMetadata ProfileSet `yaml:"route_metadata"`
}

// ProfileSet is an ordered list of profiles plus the rules that decide when
// a response counts as blocked.
type ProfileSet struct {
	BlockStatuses []int              `yaml:"block_statuses"`
	BlockMarkers  []string           `yaml:"block_markers"`
	Profiles      []fallback.Profile `yaml:"profiles"`
}

// DefaultCatalog returns the built-in profile catalog.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultProfiles)
}

// LoadCatalog reads a catalog file. An empty path returns the default.
// Sets missing from the file keep their defaults.
func LoadCatalog(path string) (Catalog, error) {
	catalog, err := DefaultCatalog()
	if err != nil {
		return Catalog{}, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read profiles file: %w", err)
	}
	override, err := ParseCatalog(data)
	if err != nil {
		return Catalog{}, err
	}
	if len(override.LinkMetadata.Profiles) > 0 {
		catalog.LinkMetadata = override.LinkMetadata
	}
	if len(override.RouteMetadata.Profiles) > 0 {
		catalog.RouteMetadata = override.RouteMetadata
	}
	return catalog, nil
}

// ParseCatalog decodes catalog YAML and validates profile names.
func ParseCatalog(data []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse profiles: %w", err)
	}
	for _, set := range []ProfileSet{catalog.LinkMetadata, catalog.RouteMetadata} {
		seen := map[string]bool{}
		for _, p := range set.Profiles {
			if strings.TrimSpace(p.Name) == "" {
				return Catalog{}, fmt.Errorf("profile name is required")
			}
			if seen[p.Name] {
				return Catalog{}, fmt.Errorf("duplicate profile %q", p.Name)
			}
			seen[p.Name] = true
		}
	}
	return catalog, nil
}

// Classify returns a soft block error when resp should not be parsed with
// profile p.
func (s ProfileSet) Classify(p fallback.Profile, resp *Response) error {
	if resp == nil {
		return fmt.Errorf("empty response")
	}
	statuses := s.BlockStatuses
	if raw := p.Option("block_statuses", ""); raw != "" {
		statuses = parseStatuses(raw)
	}
	for _, status := range statuses {
		if resp.Status == status {
			return fmt.Errorf("blocked status %d", resp.Status)
		}
	}
	if resp.Status >= 300 {
		return fmt.Errorf("unexpected status %d", resp.Status)
	}

	if minBytes, err := strconv.Atoi(p.Option("min_bytes", "0")); err == nil && len(resp.Body) < minBytes {
		return fmt.Errorf("body too small (%d < %d bytes)", len(resp.Body), minBytes)
	}

	if len(s.BlockMarkers) > 0 {
		lower := strings.ToLower(string(resp.Body))
		for _, marker := range s.BlockMarkers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				return fmt.Errorf("challenge page (%s)", marker)
			}
		}
	}
	return nil
}

func parseStatuses(raw string) []int {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
