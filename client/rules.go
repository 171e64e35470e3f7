package client

import (
	"context"
	"net/http"
	"strconv"

	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/services"
)

// ListRules returns the tenant's rules in the order the backend serves them
func (c *Client) ListRules(ctx context.Context, tenantID string) ([]models.TenantRule, error) {
	if err := requireID("tenantId", tenantID); err != nil {
		return nil, err
	}

	rules, err := doJSON[[]models.TenantRule](ctx, c, call{
		op:     "list_rules",
		method: http.MethodGet,
		url:    c.endpoint(tenantID),
	})
	if err != nil {
		return nil, err
	}
	if *rules == nil {
		return []models.TenantRule{}, nil
	}
	return *rules, nil
}

// GetRule fetches one rule
func (c *Client) GetRule(ctx context.Context, tenantID, ruleID string) (*models.TenantRule, error) {
	if err := requireIDs(tenantID, ruleID); err != nil {
		return nil, err
	}

	return doJSON[models.TenantRule](ctx, c, call{
		op:     "get_rule",
		method: http.MethodGet,
		url:    c.endpoint(tenantID, ruleID),
	})
}

// CreateRule creates a rule. The backend assigns id, tenantId,
// schemaVersion, timestamps and version.
func (c *Client) CreateRule(ctx context.Context, tenantID string, input models.RuleInput) (*models.TenantRule, error) {
	if err := requireID("tenantId", tenantID); err != nil {
		return nil, err
	}
	if c.validateLocally {
		if res := models.Validate(input); !res.IsValid {
			return nil, services.NewValidationError("rule failed local validation", res.Errors)
		}
	}

	return doJSON[models.TenantRule](ctx, c, call{
		op:     "create_rule",
		method: http.MethodPost,
		url:    c.endpoint(tenantID),
		body:   input,
	})
}

// UpdateOption customises UpdateRule
type UpdateOption func(*updateOptions)

type updateOptions struct {
	expectedVersion int
}

// WithExpectedVersion makes the update conditional on the stored version.
// A mismatch surfaces as a conflict error.
func WithExpectedVersion(version int) UpdateOption {
	return func(o *updateOptions) {
		o.expectedVersion = version
	}
}

// UpdateRule applies a partial update; only non-nil patch fields change
func (c *Client) UpdateRule(ctx context.Context, tenantID, ruleID string, patch models.RulePatch, opts ...UpdateOption) (*models.TenantRule, error) {
	if err := requireIDs(tenantID, ruleID); err != nil {
		return nil, err
	}

	var o updateOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	var header http.Header
	if o.expectedVersion > 0 {
		header = http.Header{"If-Match": []string{strconv.Quote(strconv.Itoa(o.expectedVersion))}}
	}

	return doJSON[models.TenantRule](ctx, c, call{
		op:     "update_rule",
		method: http.MethodPut,
		url:    c.endpoint(tenantID, ruleID),
		body:   patch,
		header: header,
	})
}

// DeleteRule removes a rule. Deleting twice may fail with not found.
func (c *Client) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	if err := requireIDs(tenantID, ruleID); err != nil {
		return err
	}

	_, err := c.send(ctx, call{
		op:     "delete_rule",
		method: http.MethodDelete,
		url:    c.endpoint(tenantID, ruleID),
	})
	return err
}

// SetRuleEnabled enables or disables a rule
func (c *Client) SetRuleEnabled(ctx context.Context, tenantID, ruleID string, enabled bool) (*models.TenantRule, error) {
	if err := requireIDs(tenantID, ruleID); err != nil {
		return nil, err
	}

	return doJSON[models.TenantRule](ctx, c, call{
		op:     "set_rule_enabled",
		method: http.MethodPatch,
		url:    c.endpoint(tenantID, ruleID, "status"),
		body:   models.StatusRequest{Enabled: &enabled},
	})
}

func requireIDs(tenantID, ruleID string) error {
	if err := requireID("tenantId", tenantID); err != nil {
		return err
	}
	return requireID("ruleId", ruleID)
}
