package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// Render substitutes {{name}} placeholders in both templates. Every required
// variable must be present and non-blank. The user template defaults to
// "{{input}}".
func Render(def *Prompt, vars map[string]string) (string, string, error) {
	if def == nil {
		return "", "", errors.New("prompt is required")
	}
	for _, name := range def.Config.Input.RequiredVariables {
		if strings.TrimSpace(vars[name]) == "" {
			return "", "", fmt.Errorf("prompt %s requires variable %q", def.Config.Slug, name)
		}
	}

	system := applyVars(def.Config.SystemTemplate, vars)
	user := def.Config.UserTemplate
	if strings.TrimSpace(user) == "" {
		user = "{{input}}"
	}
	user = applyVars(user, vars)

	if strings.TrimSpace(system) == "" {
		return "", "", errors.New("system prompt is required")
	}
	return system, user, nil
}

func applyVars(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
