package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/varflow/varflow/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for Workflow document validation.
// Embedded as a constant to avoid filesystem dependencies.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://varflow.dev/schemas/workflow.json",
  "type": "object",
  "required": ["id", "state", "steps"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "name": { "type": "string" },
    "status": {
      "type": "string",
      "enum": ["draft", "active", "completed", "failed"]
    },
    "state": {
      "type": "array",
      "items": { "$ref": "#/$defs/variable" }
    },
    "steps": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    },
    "jumps": {
      "type": "object",
      "additionalProperties": { "type": "integer", "minimum": 0 }
    },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "variable": {
      "type": "object",
      "required": ["name", "schema", "io_type"],
      "properties": {
        "id": { "type": "string" },
        "name": { "type": "string", "minLength": 1 },
        "schema": { "$ref": "#/$defs/value_schema" },
        "io_type": {
          "type": "string",
          "enum": ["input", "output", "evaluation"]
        },
        "required": { "type": "boolean" },
        "value": {}
      },
      "additionalProperties": false
    },
    "value_schema": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["string", "number", "boolean", "object", "file"]
        },
        "is_array": { "type": "boolean" },
        "fields": {
          "type": "object",
          "additionalProperties": { "$ref": "#/$defs/value_schema" }
        }
      },
      "additionalProperties": false
    },
    "step": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "sequence_number": { "type": "integer", "minimum": 0 },
        "name": { "type": "string" },
        "type": {
          "type": "string",
          "enum": ["ACTION", "EVALUATION"]
        },
        "tool": { "$ref": "#/$defs/tool" },
        "parameter_mappings": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "output_mappings": {
          "type": "object",
          "additionalProperties": { "$ref": "#/$defs/output_mapping" }
        },
        "evaluation_config": { "$ref": "#/$defs/evaluation_config" }
      },
      "additionalProperties": false
    },
    "tool": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": { "type": "string" },
        "prompt_template": { "type": "string" }
      },
      "additionalProperties": false
    },
    "output_mapping": {
      "oneOf": [
        { "type": "string", "minLength": 1 },
        {
          "type": "object",
          "required": ["variable"],
          "properties": {
            "variable": { "type": "string", "minLength": 1 },
            "operation": {
              "type": "string",
              "enum": ["assign", "append"]
            },
            "transform": { "type": "string" }
          },
          "additionalProperties": false
        }
      ]
    },
    "evaluation_config": {
      "type": "object",
      "required": ["conditions"],
      "properties": {
        "conditions": {
          "type": "array",
          "items": { "$ref": "#/$defs/condition" }
        },
        "default_action": {
          "type": "string",
          "enum": ["continue", "jump", "end"]
        },
        "maximum_jumps": { "type": "integer", "minimum": 0 },
        "engine": {
          "type": "string",
          "enum": ["expr", "cel"]
        }
      },
      "additionalProperties": false
    },
    "condition": {
      "type": "object",
      "properties": {
        "variable": { "type": "string" },
        "operator": {
          "type": "string",
          "enum": ["equals", "not_equals", "greater_than", "less_than", "contains", "not_contains"]
        },
        "value": {},
        "expression": { "type": "string" },
        "target_step_index": { "type": "integer", "minimum": 0 },
        "action": {
          "type": "string",
          "enum": ["continue", "jump", "end"]
        }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates workflow documents against the embedded
// JSON Schema (Draft 2020-12). It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with the workflow schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource("https://varflow.dev/schemas/workflow.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	wfSchema, err := c.Compile("https://varflow.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &JSONSchemaValidator{workflowSchema: wfSchema}, nil
}

// ValidateDocument validates a workflow document against the workflow JSON Schema.
func (v *JSONSchemaValidator) ValidateDocument(wf *schema.Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}

	doc, err := toJSONValue(wf)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow").WithCause(err)
	}

	if err := v.workflowSchema.Validate(doc); err != nil {
		return toFlowError(err)
	}

	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError converts a jsonschema.ValidationError into a FlowError with
// clear, actionable messages.
func toFlowError(err error) *schema.FlowError {
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

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
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
