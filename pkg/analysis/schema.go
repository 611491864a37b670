package analysis

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ProcessedMemorySchema is the structured-output contract the Memory
// Pipeline asks the analysis LLM to honor (spec.md §4.3 step 2): a
// summary, searchable content, category, importance, classification,
// promotion eligibility, and an entity list.
const ProcessedMemorySchema = `{
	"type": "object",
	"required": ["summary", "searchable_content", "category", "importance", "classification", "promotion_eligible"],
	"properties": {
		"summary": {"type": "string", "maxLength": 500},
		"searchable_content": {"type": "string", "maxLength": 5000},
		"category": {"type": "string", "enum": ["fact", "preference", "skill", "context", "rule"]},
		"importance": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
		"classification": {"type": "string", "enum": ["essential", "conscious-info", "conversational"]},
		"promotion_eligible": {"type": "boolean"},
		"entities": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "value"],
				"properties": {
					"type": {"type": "string", "enum": ["person", "technology", "topic", "skill", "project", "keyword", "location", "organization"]},
					"value": {"type": "string"}
				}
			}
		}
	}
}`

// Validate checks candidateJSON against schemaJSON, returning a combined
// error describing every violation (xeipuuv/gojsonschema collects all
// failures in one pass rather than stopping at the first).
func Validate(schemaJSON, candidateJSON string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	docLoader := gojsonschema.NewStringLoader(candidateJSON)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("analysis: schema validation failed to run: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return &ProviderError{
		Kind: ErrKindInvalidOutput,
		Err:  fmt.Errorf("analysis: output failed schema validation: %s", strings.Join(msgs, "; ")),
	}
}
