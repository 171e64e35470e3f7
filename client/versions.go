package client

import (
	"context"
	"net/http"
	"strconv"

	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/services"
)

// RuleHistory lists recorded versions of a rule, newest first as served
func (c *Client) RuleHistory(ctx context.Context, tenantID, ruleID string) ([]models.RuleVersion, error) {
	if err := requireIDs(tenantID, ruleID); err != nil {
		return nil, err
	}

	versions, err := doJSON[[]models.RuleVersion](ctx, c, call{
		op:     "rule_history",
		method: http.MethodGet,
		url:    c.endpoint(tenantID, ruleID, "history"),
	})
	if err != nil {
		return nil, err
	}
	if *versions == nil {
		return []models.RuleVersion{}, nil
	}
	return *versions, nil
}

// GetRuleVersion returns the read-only snapshot of one version
func (c *Client) GetRuleVersion(ctx context.Context, tenantID, ruleID string, version int) (*models.TenantRule, error) {
	if err := requireIDs(tenantID, ruleID); err != nil {
		return nil, err
	}
	if err := requireVersion(version); err != nil {
		return nil, err
	}

	return doJSON[models.TenantRule](ctx, c, call{
		op:     "get_rule_version",
		method: http.MethodGet,
		url:    c.endpoint(tenantID, ruleID, "versions", strconv.Itoa(version)),
	})
}

// RollbackRule makes the content of version the new live state. History is
// kept and a new version is recorded.
func (c *Client) RollbackRule(ctx context.Context, tenantID, ruleID string, version int, reason string) (*models.TenantRule, error) {
	if err := requireIDs(tenantID, ruleID); err != nil {
		return nil, err
	}
	if err := requireVersion(version); err != nil {
		return nil, err
	}

	return doJSON[models.TenantRule](ctx, c, call{
		op:     "rollback_rule",
		method: http.MethodPost,
		url:    c.endpoint(tenantID, ruleID, "rollback", strconv.Itoa(version)),
		body:   models.RollbackRequest{Reason: reason},
	})
}

func requireVersion(version int) error {
	if version < 1 {
		return services.NewValidationError("version must be at least 1", []models.FieldMessage{
			{Field: "version", Message: "version must be at least 1"},
		})
	}
	return nil
}
