// Package validation checks architecture documents before they are stored.
package validation

import (
	"github.com/rendis/archflow/internal/expressions"
	"github.com/rendis/archflow/pkg/schema"
)

// Validator checks architecture models for correctness before import.
type Validator interface {
	ValidateDocument(raw []byte) error
	Validate(model *schema.ArchitectureModel) *schema.ValidationResult
}

// ModelValidator runs the two-stage pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (references, focus expressions, cycles) as warnings
type ModelValidator struct {
	jsonSchema *JSONSchemaValidator
	cel        *expressions.CELEngine
}

// NewModelValidator creates a ModelValidator. cel may be nil to skip focus
// expression checks.
func NewModelValidator(cel *expressions.CELEngine) (*ModelValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &ModelValidator{jsonSchema: jsv, cel: cel}, nil
}

// Validate runs the full pipeline. Structural errors short-circuit the
// semantic stage.
func (mv *ModelValidator) Validate(model *schema.ArchitectureModel) *schema.ValidationResult {
	if model == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "architecture model is nil")
		return r
	}

	result := validateStructural(mv.jsonSchema, model)
	if !result.Valid() {
		return result
	}
	result.Merge(validateSemantic(model, mv.cel))
	return result
}

// ValidateDocument delegates to the JSON Schema validator.
func (mv *ModelValidator) ValidateDocument(raw []byte) error {
	return mv.jsonSchema.ValidateDocument(raw)
}

// validateStructural converts the schema validator's error into result entries.
func validateStructural(v *JSONSchemaValidator, model *schema.ArchitectureModel) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateModel(model)
	if err == nil {
		return result
	}

	aErr, ok := err.(*schema.ArchflowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := aErr.Details["violations"].([]string); ok {
		for _, v := range violations {
			result.AddError("/", schema.ErrCodeValidation, v)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, aErr.Message)
	return result
}

var _ Validator = (*ModelValidator)(nil)
