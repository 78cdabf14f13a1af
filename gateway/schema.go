package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// analysisSchemaJSON is the structured-output schema for the Analyze
// operation. It is sent to the service as the response schema and enforced
// locally against whatever comes back; the service's conformance is not
// trusted.
const analysisSchemaJSON = `{
	"type": "object",
	"properties": {
		"language": {"type": "string"},
		"genre": {"type": "string"},
		"bpm": {"type": "number", "minimum": 1},
		"emotion": {"type": "string"},
		"gender": {"type": "string", "enum": ["MALE", "FEMALE", "UNKNOWN"]},
		"lyrics": {
			"type": "array",
			"items": {"type": "string"},
			"minItems": 1
		},
		"summary": {"type": "string"}
	},
	"required": ["language", "genre", "bpm", "emotion", "gender", "lyrics", "summary"]
}`

// translationSchemaJSON is the structured-output schema for the Translate
// operation: an ordered array of original/translated pairs.
const translationSchemaJSON = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"original": {"type": "string"},
			"translated": {"type": "string"}
		},
		"required": ["original", "translated"]
	},
	"minItems": 1
}`

var (
	analysisSchema    = gojsonschema.NewStringLoader(analysisSchemaJSON)
	translationSchema = gojsonschema.NewStringLoader(translationSchemaJSON)
)

// validateAgainstSchema checks a returned JSON document against the expected
// schema. Both malformed JSON and shape mismatches are schema violations:
// either way the service did not honor the requested structure.
func validateAgainstSchema(schema gojsonschema.JSONLoader, doc string) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(details, "; "))
	}
	return nil
}

// responseSchemaFor parses a schema document into the form the service
// expects in its generation config.
func responseSchemaFor(schemaJSON string) interface{} {
	var schema interface{}
	// Schema constants are validated by tests; a parse failure here would
	// be a programming error.
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		panic(fmt.Sprintf("gateway: invalid embedded schema: %v", err))
	}
	return schema
}
