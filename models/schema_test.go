package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "token limit with top-level type",
			doc:  `{"name":"a","type":"token_limit","priority":1,"conditions":{"limit_type":"daily","max_tokens":10,"scope":"user"}}`,
		},
		{
			name: "discriminant only inside conditions",
			doc:  `{"name":"a","conditions":{"type":"hard_block","keywords":["x"]}}`,
		},
		{
			name:    "missing name",
			doc:     `{"type":"hard_block","conditions":{"keywords":["x"]}}`,
			wantErr: true,
		},
		{
			name:    "no discriminant anywhere",
			doc:     `{"name":"a","conditions":{"keywords":["x"]}}`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			doc:     `{"name":"a","type":"quota","conditions":{}}`,
			wantErr: true,
		},
		{
			name:    "token limit missing max_tokens",
			doc:     `{"name":"a","type":"token_limit","conditions":{"limit_type":"daily","scope":"user"}}`,
			wantErr: true,
		},
		{
			name:    "custom redaction without regex",
			doc:     `{"name":"a","type":"redaction","conditions":{"pattern_type":"custom","apply_to":"both"}}`,
			wantErr: true,
		},
		{
			name:    "cost control without caps",
			doc:     `{"name":"a","type":"cost_control","conditions":{}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := ValidateDocument([]byte(tt.doc))
			require.NoError(t, err)
			if tt.wantErr {
				assert.NotEmpty(t, msgs)
			} else {
				assert.Empty(t, msgs)
			}
		})
	}
}

func TestValidateDocument_MarshalledInputConforms(t *testing.T) {
	in := NewRuleInput("Spend", 3, CostControlCondition{DailyCostCap: floatPtr(10)})
	in.Tags = []string{"finance"}

	doc, err := json.Marshal(in)
	require.NoError(t, err)

	msgs, err := ValidateDocument(doc)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestValidateDocument_NotJSON(t *testing.T) {
	_, err := ValidateDocument([]byte(`{not json`))
	assert.Error(t, err)
}
