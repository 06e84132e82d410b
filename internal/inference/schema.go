package inference

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// detectionSchemaJSON constrains one stream record. Unknown types and
// out-of-range confidences are rejected here so handlers never see them.
const detectionSchemaJSON = `{
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"enum": ["question", "action", "action_update", "answer"]},
		"id": {"type": "string"},
		"text": {"type": "string"},
		"speaker": {"type": "string"},
		"owner": {"type": "string"},
		"deadline": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"question_id": {"type": "string"}
	}
}`

var detectionSchema = gojsonschema.NewStringLoader(detectionSchemaJSON)

// validateDetection checks one raw JSON line against the detection schema.
func validateDetection(line []byte) error {
	result, err := gojsonschema.Validate(detectionSchema, gojsonschema.NewBytesLoader(line))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid detection record: %s", errs[0])
		}
		return fmt.Errorf("invalid detection record")
	}
	return nil
}
