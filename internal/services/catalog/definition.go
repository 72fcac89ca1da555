// Package catalog loads permission definitions into the catalog table.
//
// Definitions arrive as a JSON document, are checked against an embedded
// JSON Schema before anything touches the store, and are applied as
// idempotent upserts keyed by canonical permission name. The catalog is
// the canonical source for clearance requirements; the static hierarchy
// table only backstops permissions that never made it here.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/J41RO/MeStore-sub006/internal/db/models"
)

// Definition is one permission as written in a catalog document. Field
// names follow the JSON wire form; Name is canonicalized during Apply.
type Definition struct {
	Name              string              `json:"name"`
	Description       string              `json:"description,omitempty"`
	RequiredClearance int                 `json:"required_clearance"`
	Inheritable       bool                `json:"inheritable,omitempty"`
	Delegatable       bool                `json:"delegatable,omitempty"`
	RequiresMFA       bool                `json:"requires_mfa,omitempty"`
	RequiresApproval  bool                `json:"requires_approval,omitempty"`
	RiskLevel         string              `json:"risk_level,omitempty"`
	Conditions        models.ConditionSet `json:"conditions,omitempty"`
}

// document is the top-level shape of a catalog file.
type document struct {
	Permissions []Definition `json:"permissions"`
}

// definitionSchemaJSON is the contract for catalog documents. Structural
// problems (missing fields, out-of-range clearance, unknown keys) are
// reported from here with JSON paths; semantic validation (scope names,
// risk enums) happens again in Apply on the typed values.
const definitionSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Permission catalog definitions",
  "type": "object",
  "required": ["permissions"],
  "additionalProperties": false,
  "properties": {
    "permissions": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/definitions/permission" }
    }
  },
  "definitions": {
    "permission": {
      "type": "object",
      "required": ["name", "required_clearance"],
      "additionalProperties": false,
      "properties": {
        "name": {
          "type": "string",
          "pattern": "^[a-z][a-z0-9_-]*\\.[a-z][a-z0-9_-]*\\.[a-zA-Z_]+$"
        },
        "description": { "type": "string" },
        "required_clearance": { "type": "integer", "minimum": 1, "maximum": 5 },
        "inheritable": { "type": "boolean" },
        "delegatable": { "type": "boolean" },
        "requires_mfa": { "type": "boolean" },
        "requires_approval": { "type": "boolean" },
        "risk_level": { "type": "string", "enum": ["LOW", "MEDIUM", "HIGH", "CRITICAL"] },
        "conditions": { "$ref": "#/definitions/conditions" }
      }
    },
    "conditions": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "time_window": {
          "type": "object",
          "required": ["start", "end"],
          "additionalProperties": false,
          "properties": {
            "start": { "type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$" },
            "end": { "type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$" },
            "days": {
              "type": "array",
              "items": {
                "type": "string",
                "enum": ["mon", "tue", "wed", "thu", "fri", "sat", "sun"]
              }
            }
          }
        },
        "ip_allowlist": { "type": "array", "items": { "type": "string" } },
        "department_allowlist": { "type": "array", "items": { "type": "string" } },
        "attribute_expr": { "type": "string" }
      }
    }
  }
}`

var definitionSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("catalog: parse embedded schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)
	if err := compiler.AddResource("permissions.schema.json", parsed); err != nil {
		panic(fmt.Sprintf("catalog: add schema resource: %v", err))
	}
	schema, err := compiler.Compile("permissions.schema.json")
	if err != nil {
		panic(fmt.Sprintf("catalog: compile schema: %v", err))
	}
	return schema
}

// ParseFile reads and parses a catalog document from disk.
func ParseFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return defs, nil
}

// ParseDefinitions validates raw JSON against the embedded schema and
// decodes it into typed definitions.
func ParseDefinitions(data []byte) ([]Definition, error) {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse catalog JSON: %w", err)
	}

	if err := definitionSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("catalog document invalid: %s", formatSchemaError(err))
	}

	var doc document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &doc,
	})
	if err != nil {
		return nil, fmt.Errorf("build catalog decoder: %w", err)
	}
	if err := decoder.Decode(instance); err != nil {
		return nil, fmt.Errorf("decode catalog document: %w", err)
	}

	return doc.Permissions, nil
}

// formatSchemaError renders a validation error with its JSON path, so an
// operator can find the offending definition in a large document.
func formatSchemaError(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}

	path := "$"
	if len(ve.InstanceLocation) > 0 {
		path = "$." + strings.Join(ve.InstanceLocation, ".")
	}

	msg := ve.Error()
	if len(msg) > 200 {
		msg = msg[:200] + "... (truncated)"
	}
	return fmt.Sprintf("at '%s': %s", path, msg)
}
