package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
)

// cleanModelJSON strips markdown fences and surrounding prose, keeping only
// the outermost JSON object. Models sometimes ignore the "raw JSON only"
// instruction, so this runs on every response.
func cleanModelJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}

	return text[startIdx : endIdx+1], nil
}

// parseBillJSON decodes and validates a model response into a BillRecord.
// Validation happens against the compiled bill schema before the typed decode,
// so a structurally wrong response is rejected rather than silently coerced.
func parseBillJSON(text string) (*BillRecord, error) {
	clean, err := cleanModelJSON(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var untyped interface{}
	if err := json.Unmarshal([]byte(clean), &untyped); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling json: %w", ErrMalformedResponse, err)
	}

	if err := billSchema.Validate(untyped); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}

	var record BillRecord
	if err := json.Unmarshal([]byte(clean), &record); err != nil {
		return nil, fmt.Errorf("%w: decoding record: %w", ErrSchemaViolation, err)
	}

	// Keep items non-nil so an empty bill still serializes as an array
	if record.Items == nil {
		record.Items = []LineItem{}
	}

	return &record, nil
}
