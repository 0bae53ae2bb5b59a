package prompt

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/schema"
	"github.com/goccy/go-json"
)

func (p *Prompt) compileResponseSchema() error {
	if len(p.Config.ResponseSchema) == 0 {
		return nil
	}
	raw, err := json.Marshal(p.Config.ResponseSchema)
	if err != nil {
		return fmt.Errorf("encode response_schema: %w", err)
	}
	validator, err := schema.NewValidator(raw)
	if err != nil {
		return fmt.Errorf("compile response_schema: %w", err)
	}
	p.validate = func(payload []byte) error {
		diagnostics, err := validator.ValidateJSON(payload)
		if err != nil {
			return err
		}
		if len(diagnostics) > 0 {
			return fmt.Errorf("response schema validation failed: %s", diagnostics[0].Message)
		}
		return nil
	}
	return nil
}

// ValidateResponse checks a model answer against the prompt's
// response_schema. Prompts without a schema accept anything.
func (p *Prompt) ValidateResponse(payload []byte) error {
	if p == nil || p.validate == nil {
		return nil
	}
	return p.validate(payload)
}
