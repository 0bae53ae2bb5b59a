package prompt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	variablePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// Load parses and validates a prompt definition. The markdown body becomes
// the system template unless the frontmatter sets one.
func Load(source string, data []byte) (*Prompt, error) {
	config, body, err := parseYAMLWithFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}

	if strings.TrimSpace(config.SystemTemplate) == "" {
		config.SystemTemplate = strings.TrimSpace(body)
	}

	if strings.TrimSpace(config.SystemTemplate) == "" {
		return nil, fmt.Errorf("prompt %s missing system_template", source)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("validate prompt %s: %w", source, err)
	}

	p := &Prompt{Config: config, Source: source}
	if err := p.compileResponseSchema(); err != nil {
		return nil, fmt.Errorf("prompt %s: %w", source, err)
	}
	return p, nil
}

// LoadFromDir reads all prompt files (.md with YAML frontmatter) from a directory.
func LoadFromDir(dir string) ([]*Prompt, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("scan prompts: %w", err)
	}
	results := make([]*Prompt, 0, len(entries))
	for _, path := range entries {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-configured prompt directory
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", path, err)
		}
		prompt, err := Load(path, data)
		if err != nil {
			return nil, err
		}
		results = append(results, prompt)
	}
	return results, nil
}

// parseYAMLWithFrontmatter accepts either a markdown file opening with a
// "---" delimited YAML block or a plain YAML document.
func parseYAMLWithFrontmatter(data []byte) (Config, string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Config{}, "", fmt.Errorf("empty prompt")
	}

	var cfg Config
	rest, hasFront := bytes.CutPrefix(trimmed, []byte("---"))
	if !hasFront {
		if err := yaml.Unmarshal(trimmed, &cfg); err != nil {
			return Config{}, "", fmt.Errorf("invalid yaml: %w", err)
		}
		return cfg, "", nil
	}

	front, body, closed := bytes.Cut(rest, []byte("\n---"))
	if !closed {
		return Config{}, "", fmt.Errorf("unterminated frontmatter")
	}
	if err := yaml.Unmarshal(front, &cfg); err != nil {
		return Config{}, "", fmt.Errorf("invalid frontmatter: %w", err)
	}
	// Drop the remainder of the closing delimiter line.
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return cfg, string(body), nil
}

func validateConfig(cfg Config) error {
	if !slugPattern.MatchString(cfg.Slug) {
		return fmt.Errorf("slug %q must be lowercase words joined by hyphens", cfg.Slug)
	}
	seen := map[string]bool{}
	for _, name := range append(append([]string{}, cfg.Input.RequiredVariables...), cfg.Input.OptionalVariables...) {
		if !variablePattern.MatchString(name) {
			return fmt.Errorf("invalid variable name %q", name)
		}
		if seen[name] {
			return fmt.Errorf("variable %q declared twice", name)
		}
		seen[name] = true
	}
	for _, section := range cfg.RequiredSections {
		if strings.TrimSpace(section) == "" {
			return fmt.Errorf("required_sections contains an empty name")
		}
	}
	if cfg.Temperature != nil && (*cfg.Temperature < 0 || *cfg.Temperature > 2) {
		return fmt.Errorf("temperature %v out of range 0..2", *cfg.Temperature)
	}
	if cfg.MaxTokens != nil && *cfg.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}
