package llmagent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// validateAgainstSchema checks raw JSON output against schema, returning a
// descriptive error (destined to become models.ErrCodeSchemaViolation) on
// any validation failure. Structured-output failures are not retried at
// this layer (spec.md §4.3).
func validateAgainstSchema(raw []byte, schema Schema) error {
	if len(schema) == 0 {
		if !json.Valid(raw) {
			return fmt.Errorf("output is not valid JSON")
		}
		return nil
	}

	schemaDoc, err := json.Marshal(map[string]any(schema))
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaDoc)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("output failed schema validation: %s", strings.Join(msgs, "; "))
}
