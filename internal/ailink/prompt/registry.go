package prompt

import (
	"fmt"
	"slices"
	"strings"
)

// Registry resolves prompts by slug.
type Registry interface {
	Get(slug string) (*Prompt, error)
}

// requiresSections lists slugs whose answers are judged complete by their
// required_sections. An override that drops them would let every partial
// answer be treated as complete and cached.
var requiresSections = map[string]bool{
	TravelContextSlug: true,
}

// InMemoryRegistry holds the built-in prompts plus operator overrides.
type InMemoryRegistry struct {
	prompts map[string]*Prompt
}

// NewRegistry indexes prompts by slug. Duplicate slugs are rejected.
func NewRegistry(prompts []*Prompt) (*InMemoryRegistry, error) {
	reg := &InMemoryRegistry{prompts: make(map[string]*Prompt, len(prompts))}
	for _, p := range prompts {
		if p == nil {
			continue
		}
		slug := strings.TrimSpace(p.Config.Slug)
		if _, ok := reg.prompts[slug]; ok {
			return nil, fmt.Errorf("duplicate prompt slug: %s", slug)
		}
		if err := checkSections(p); err != nil {
			return nil, err
		}
		reg.prompts[slug] = p
	}
	return reg, nil
}

// Override replaces built-in prompts by slug. Unknown slugs are rejected so
// a typo in an override file does not silently leave the default active.
func (r *InMemoryRegistry) Override(prompts []*Prompt) error {
	for _, p := range prompts {
		if p == nil {
			continue
		}
		slug := strings.TrimSpace(p.Config.Slug)
		if _, ok := r.prompts[slug]; !ok {
			return fmt.Errorf("%s: unknown prompt slug %q (known: %s)", p.Source, slug, strings.Join(r.Slugs(), ", "))
		}
		if err := checkSections(p); err != nil {
			return err
		}
	}
	for _, p := range prompts {
		if p != nil {
			r.prompts[strings.TrimSpace(p.Config.Slug)] = p
		}
	}
	return nil
}

func (r *InMemoryRegistry) Get(slug string) (*Prompt, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry not configured")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, fmt.Errorf("prompt slug is required")
	}
	p, ok := r.prompts[slug]
	if !ok {
		return nil, fmt.Errorf("prompt %q not found", slug)
	}
	return p, nil
}

// Slugs returns the registered slugs in sorted order.
func (r *InMemoryRegistry) Slugs() []string {
	if r == nil {
		return nil
	}
	slugs := make([]string, 0, len(r.prompts))
	for slug := range r.prompts {
		slugs = append(slugs, slug)
	}
	slices.Sort(slugs)
	return slugs
}

func checkSections(p *Prompt) error {
	if requiresSections[p.Config.Slug] && len(p.Config.RequiredSections) == 0 {
		return fmt.Errorf("%s: prompt %q must declare required_sections", p.Source, p.Config.Slug)
	}
	return nil
}
