package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/archflow/pkg/schema"
)

const modelSchemaURL = "https://archflow.dev/schemas/architecture.json"

// modelSchemaJSON is the JSON Schema for architecture documents.
const modelSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://archflow.dev/schemas/architecture.json",
  "type": "object",
  "required": ["title", "nodes", "edges", "scenarios"],
  "properties": {
    "slug": {
      "type": "string",
      "pattern": "^[a-z0-9][a-z0-9-]*$"
    },
    "title": { "type": "string" },
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    },
    "groups": {
      "type": "array",
      "items": { "$ref": "#/$defs/group" }
    },
    "scenarios": {
      "type": "array",
      "items": { "$ref": "#/$defs/scenario" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "title"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "title": { "type": "string" },
        "subtitle": { "type": "string" },
        "tone": { "enum": ["", "neutral", "accent", "warn"] },
        "badge": { "type": "string" }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["from", "to"],
      "properties": {
        "id": { "type": "string" },
        "from": { "type": "string", "minLength": 1 },
        "to": { "type": "string", "minLength": 1 },
        "label": { "type": "string" },
        "lane": { "enum": ["", "request", "async", "control"] }
      },
      "additionalProperties": false
    },
    "group": {
      "type": "object",
      "required": ["id", "label", "node_ids"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "label": { "type": "string" },
        "node_ids": {
          "type": "array",
          "items": { "type": "string" }
        }
      },
      "additionalProperties": false
    },
    "scenario": {
      "type": "object",
      "required": ["id", "label", "note"],
      "properties": {
        "id": { "enum": ["baseline", "spike", "failover", "cache"] },
        "label": { "type": "string" },
        "focus_edge_lanes": {
          "type": "array",
          "items": { "enum": ["request", "async", "control"] }
        },
        "focus_expr": { "type": "string" },
        "note": { "type": "string" },
        "timeline": {
          "type": "array",
          "items": { "$ref": "#/$defs/step" }
        }
      },
      "additionalProperties": false
    },
    "step": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": { "enum": ["edge", "parallel"] },
        "edge_id": { "type": "string" },
        "edges": {
          "type": "array",
          "items": { "type": "string" }
        }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks architecture documents against the model schema.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	modelSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the model schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(modelSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal model schema: %w", err)
	}
	if err := c.AddResource(modelSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add model schema resource: %w", err)
	}
	compiled, err := c.Compile(modelSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile model schema: %w", err)
	}
	return &JSONSchemaValidator{modelSchema: compiled}, nil
}

// ValidateDocument validates raw JSON bytes.
func (v *JSONSchemaValidator) ValidateDocument(raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "document is empty")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "document is not valid JSON").WithCause(err)
	}
	if err := v.modelSchema.Validate(doc); err != nil {
		return toArchflowError(err)
	}
	return nil
}

// ValidateModel validates a decoded model in its JSON form. Models decoded from
// YAML go through here.
func (v *JSONSchemaValidator) ValidateModel(model *schema.ArchitectureModel) error {
	if model == nil {
		return schema.NewError(schema.ErrCodeValidation, "architecture model is nil")
	}
	raw, err := json.Marshal(withEmptySlices(*model))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize model").WithCause(err)
	}
	return v.ValidateDocument(raw)
}

// withEmptySlices replaces nil slices that encode as null with empty ones.
func withEmptySlices(m schema.ArchitectureModel) schema.ArchitectureModel {
	if m.Nodes == nil {
		m.Nodes = []schema.Node{}
	}
	if m.Edges == nil {
		m.Edges = []schema.Edge{}
	}
	if m.Scenarios == nil {
		m.Scenarios = []schema.Scenario{}
	}
	if len(m.Groups) > 0 {
		groups := make([]schema.Group, len(m.Groups))
		for i, g := range m.Groups {
			if g.NodeIDs == nil {
				g.NodeIDs = []string{}
			}
			groups[i] = g
		}
		m.Groups = groups
	}
	return m
}

// toArchflowError flattens a jsonschema.ValidationError into one error whose
// details list every leaf violation with its instance location.
func toArchflowError(err error) *schema.ArchflowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
