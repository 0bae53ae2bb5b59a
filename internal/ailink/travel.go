// Package ailink generates travel context through a chat completion driver
// and a versioned prompt.
package ailink

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/waypointhq/waypoint/internal/ailink/driver"
	"github.com/waypointhq/waypoint/internal/ailink/prompt"
	"github.com/waypointhq/waypoint/internal/core"
)

// Input defaults.
const (
	DefaultActivityType      = "multi_activity"
	DefaultAccommodationType = "mixed"
)

// TravelRequest is the payload sent to the model.
type TravelRequest struct {
	Location          string `json:"location"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	ActivityType      string `json:"activity_type"`
	AccommodationType string `json:"accommodation_type"`
	Dates             string `json:"dates,omitempty"`
}

// Normalize trims fields, applies defaults and rejects missing required
// fields.
func (r TravelRequest) Normalize() (TravelRequest, error) {
	r.Location = strings.TrimSpace(r.Location)
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.ActivityType = strings.TrimSpace(r.ActivityType)
	r.AccommodationType = strings.TrimSpace(r.AccommodationType)
	r.Dates = strings.TrimSpace(r.Dates)

	var missing []string
	if r.Location == "" {
		missing = append(missing, "location")
	}
	if r.Title == "" {
		missing = append(missing, "title")
	}
	if r.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return r, core.InvalidInput("missing required fields: %s", strings.Join(missing, ", "))
	}
	if r.ActivityType == "" {
		r.ActivityType = DefaultActivityType
	}
	if r.AccommodationType == "" {
		r.AccommodationType = DefaultAccommodationType
	}
	return r, nil
}

// TravelContext maps section names to their keyed entries.
type TravelContext map[string]map[string]json.RawMessage

// Merge keeps existing entries and adds keys the receiver lacks.
func (c TravelContext) Merge(next TravelContext) TravelContext {
	out := make(TravelContext, len(c)+len(next))
	for section, entries := range c {
		copied := make(map[string]json.RawMessage, len(entries))
		for k, v := range entries {
			copied[k] = v
		}
		out[section] = copied
	}
	for section, entries := range next {
		target, ok := out[section]
		if !ok {
			target = make(map[string]json.RawMessage, len(entries))
			out[section] = target
		}
		for k, v := range entries {
			if _, exists := target[k]; !exists {
				target[k] = v
			}
		}
	}
	return out
}

// HasSignal reports whether any section carries an entry.
func (c TravelContext) HasSignal() bool {
	for _, entries := range c {
		if len(entries) > 0 {
			return true
		}
	}
	return false
}

// HasSections reports whether every named section is present and non-empty.
func (c TravelContext) HasSections(names []string) bool {
	for _, name := range names {
		if len(c[name]) == 0 {
			return false
		}
	}
	return true
}

// StripFences removes a surrounding markdown code fence.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	default:
		return s
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeTravelContext parses model output. Invalid JSON or a missing
// required section is a soft block so the next model is tried.
func DecodeTravelContext(text string, required []string) (TravelContext, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(StripFences(text)), &top); err != nil {
		return nil, core.SoftBlock(fmt.Sprintf("model output is not a JSON object: %v", err))
	}

	out := TravelContext{}
	for name, raw := range top {
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
			continue
		}
		out[name] = entries
	}

	var missing []string
	for _, name := range required {
		if len(out[name]) == 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, core.SoftBlock("model output missing sections: " + strings.Join(missing, ", "))
	}
	if len(required) > 0 {
		keep := TravelContext{}
		for _, name := range required {
			keep[name] = out[name]
		}
		out = keep
	}
	return out, nil
}

// Service renders the travel context prompt and sends it to the driver.
type Service struct {
	Driver      driver.Driver
	Prompts     prompt.Registry
	Temperature float64
	MaxTokens   int
	Logger      core.Logger
}

// RequiredSections returns the sections the active prompt demands.
func (s *Service) RequiredSections() []string {
	def, err := s.Prompts.Get(prompt.TravelContextSlug)
	if err != nil {
		return nil
	}
	return def.Config.RequiredSections
}

// Generate asks model for the context of req. req must be normalized.
func (s *Service) Generate(ctx context.Context, model string, req TravelRequest) (TravelContext, error) {
	if s == nil || s.Driver == nil || s.Prompts == nil {
		return nil, fmt.Errorf("travel context service not configured")
	}
	def, err := s.Prompts.Get(prompt.TravelContextSlug)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode travel request: %w", err)
	}
	system, user, err := prompt.Render(def, map[string]string{"input": string(payload)})
	if err != nil {
		return nil, err
	}

	temperature := s.Temperature
	if temperature <= 0 && def.Config.Temperature != nil {
		temperature = *def.Config.Temperature
	}
	maxTokens := s.MaxTokens
	if maxTokens <= 0 && def.Config.MaxTokens != nil {
		maxTokens = *def.Config.MaxTokens
	}

	resp, err := s.Driver.Complete(ctx, &driver.Request{
		Model: model,
		Messages: []driver.Message{
			{Role: driver.RoleSystem, Text: system},
			{Role: driver.RoleUser, Text: user},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		PromptSlug:  def.Config.Slug,
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.String("model", model), zap.String("finish_reason", resp.FinishReason)}
	if resp.Usage != nil {
		fields = append(fields, zap.Int("total_tokens", resp.Usage.TotalTokens))
	}
	core.LoggerOrNop(s.Logger).Debug("Travel context completion received", fields...)

	text := StripFences(resp.Text)
	if err := def.ValidateResponse([]byte(text)); err != nil {
		return nil, core.SoftBlock(fmt.Sprintf("model %s: %v", model, err))
	}
	return DecodeTravelContext(text, def.Config.RequiredSections)
}
