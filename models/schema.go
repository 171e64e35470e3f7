package models

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// RuleSchema is the JSON Schema for a candidate rule document
//
//go:embed rule_schema.json
var RuleSchema []byte

var ruleSchema = mustCompileSchema(RuleSchema)

func mustCompileSchema(doc []byte) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("models: invalid rule schema: %v", err))
	}
	return schema
}

// ValidateDocument checks a raw rule document against RuleSchema. The
// returned messages are empty when the document conforms. An error is
// returned only when doc is not JSON.
func ValidateDocument(doc []byte) ([]FieldMessage, error) {
	result, err := ruleSchema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("invalid rule document: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	msgs := make([]FieldMessage, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		// Branch selectors of if/then report noise of their own
		switch re.Type() {
		case "number_any_of", "number_all_of", "condition_then", "condition_else":
			continue
		}
		field := re.Field()
		if field == "(root)" {
			field = ""
		}
		msgs = append(msgs, FieldMessage{Field: field, Message: re.Description()})
	}
	if len(msgs) == 0 {
		msgs = append(msgs, FieldMessage{Message: "document does not match the rule schema"})
	}
	return msgs, nil
}
