package client

import (
	"context"
	"net/http"

	"github.com/upb/tenant-rules-admin/models"
	"golang.org/x/sync/errgroup"
)

// TestRules dry-runs rules against sample text. An empty RuleIDs evaluates
// every enabled rule of the tenant. Nothing is persisted.
func (c *Client) TestRules(ctx context.Context, tenantID string, req models.RuleTestRequest) (*models.RuleTestResult, error) {
	if err := requireID("tenantId", tenantID); err != nil {
		return nil, err
	}
	if err := requireID("sample_prompt", req.SamplePrompt); err != nil {
		return nil, err
	}

	res, err := doJSON[models.RuleTestResult](ctx, c, call{
		op:     "test_rules",
		method: http.MethodPost,
		url:    c.endpoint(tenantID, "test"),
		body:   req,
	})
	if err != nil {
		return nil, err
	}
	if res.TriggeredRules == nil {
		res.TriggeredRules = []models.TriggeredRule{}
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	return res, nil
}

// PreflightResult pairs the validation and dry-run outcomes of a save
type PreflightResult struct {
	Validation *models.RuleValidation
	Test       *models.RuleTestResult
}

// Preflight runs ValidateRule and TestRules concurrently. The calls are
// independent; the first failure cancels the other.
func (c *Client) Preflight(ctx context.Context, tenantID string, candidate models.RuleInput, sample models.RuleTestRequest) (*PreflightResult, error) {
	var out PreflightResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := c.ValidateRule(gctx, tenantID, candidate)
		if err != nil {
			return err
		}
		out.Validation = v
		return nil
	})

	g.Go(func() error {
		t, err := c.TestRules(gctx, tenantID, sample)
		if err != nil {
			return err
		}
		out.Test = t
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
