package client

import (
	"context"
	"net/http"

	"github.com/upb/tenant-rules-admin/models"
)

// ValidateRule asks the backend to check a candidate rule without saving it.
// An invalid rule is a successful call: inspect IsValid and Errors.
func (c *Client) ValidateRule(ctx context.Context, tenantID string, candidate models.RuleInput) (*models.RuleValidation, error) {
	if err := requireID("tenantId", tenantID); err != nil {
		return nil, err
	}

	res, err := doJSON[models.RuleValidation](ctx, c, call{
		op:     "validate_rule",
		method: http.MethodPost,
		url:    c.endpoint(tenantID, "validate"),
		body:   candidate,
	})
	if err != nil {
		return nil, err
	}
	if res.Errors == nil {
		res.Errors = []models.FieldMessage{}
	}
	if res.Warnings == nil {
		res.Warnings = []models.FieldMessage{}
	}
	return res, nil
}
