package main

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const maxBatchFixes = 500

// positionBatchSchema describes the body of POST /api/sessions/{id}/positions.
var positionBatchSchema = fmt.Sprintf(`{
	"type": "object",
	"required": ["positions"],
	"additionalProperties": false,
	"properties": {
		"positions": {
			"type": "array",
			"minItems": 1,
			"maxItems": %d,
			"items": {
				"type": "object",
				"required": ["lat", "lng"],
				"additionalProperties": false,
				"properties": {
					"lat": {"type": "number", "minimum": -90, "maximum": 90},
					"lng": {"type": "number", "minimum": -180, "maximum": 180},
					"ts":  {"type": "integer", "minimum": 0}
				}
			}
		}
	}
}`, maxBatchFixes)

// PositionBatch is a validated REST upload of runner fixes
type PositionBatch struct {
	Positions []PosMsg `json:"positions"`
}

// Validator checks request bodies against a compiled JSON schema
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the schema.
func NewValidator(schema string) (*Validator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// ValidateBytes validates raw JSON bytes.
func (v *Validator) ValidateBytes(data []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
	}
	return nil
}
