package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// CollectionMetaSchema describes the staleness descriptor published next to
// every reference collection.
const CollectionMetaSchema = `{
  "type": "object",
  "properties": {
    "fecha_creacion":     {"type": ["string", "null"]},
    "fecha_modificacion": {"type": ["string", "null"]}
  },
  "anyOf": [
    {"required": ["fecha_creacion"]},
    {"required": ["fecha_modificacion"]}
  ]
}`

// ClientCreatedSchema is the minimum shape of a successful POST /clientes
// response: it must carry the server-assigned identifier.
const ClientCreatedSchema = `{
  "type": "object",
  "required": ["idCliente"],
  "properties": {
    "idCliente": {"type": ["integer", "string"], "minLength": 1}
  }
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (r *ValidationResult) Error() error {
	if r.Valid {
		return nil
	}
	if len(r.Errors) == 0 {
		return fmt.Errorf("document does not match schema")
	}
	first := r.Errors[0]
	return fmt.Errorf("%s: %s", first.Field, first.Message)
}

// ValidateDocument checks doc (any JSON-compatible Go value) against a JSON
// schema given as text.
func ValidateDocument(schema string, doc interface{}) *ValidationResult {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: err.Error(),
				Code:    "SCHEMA_ERROR",
			}},
		}
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    e.Type(),
		})
	}
	return out
}

func ValidateCollectionMeta(doc interface{}) *ValidationResult {
	return ValidateDocument(CollectionMetaSchema, doc)
}

func ValidateClientCreated(doc interface{}) *ValidationResult {
	return ValidateDocument(ClientCreatedSchema, doc)
}
