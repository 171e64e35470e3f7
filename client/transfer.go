package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/services"
)

// ImportRules submits a batch. Per-item failures are reported in the result;
// only transport or whole-request failures are returned as errors.
func (c *Client) ImportRules(ctx context.Context, tenantID string, req models.ImportRequest) (*models.ImportResult, error) {
	if err := requireID("tenantId", tenantID); err != nil {
		return nil, err
	}
	if req.Rules == nil {
		req.Rules = []models.RuleInput{}
	}

	res, err := doJSON[models.ImportResult](ctx, c, call{
		op:     "import_rules",
		method: http.MethodPost,
		url:    c.endpoint(tenantID, "import"),
		body:   req,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ExportRules exports rules as decoded JSON or as an opaque CSV payload
func (c *Client) ExportRules(ctx context.Context, tenantID string, opts models.ExportOptions) (*models.ExportResult, error) {
	if err := requireID("tenantId", tenantID); err != nil {
		return nil, err
	}

	format := opts.Format
	if format == "" {
		format = models.ExportFormatJSON
	}
	if format != models.ExportFormatJSON && format != models.ExportFormatCSV {
		return nil, services.NewValidationError("unsupported export format", []models.FieldMessage{
			{Field: "format", Message: "format must be one of: json, csv"},
		})
	}

	u := c.endpoint(tenantID, "export")
	q := u.Query()
	if len(opts.RuleIDs) > 0 {
		q.Set("rule_ids", strings.Join(opts.RuleIDs, ","))
	}
	if opts.IncludeDisabled {
		q.Set("include_disabled", "true")
	}
	q.Set("format", string(format))
	u.RawQuery = q.Encode()

	cl := call{
		op:     "export_rules",
		method: http.MethodGet,
		url:    u,
	}
	if format == models.ExportFormatCSV {
		cl.header = http.Header{"Accept": []string{"text/csv, */*"}}
	}

	resp, err := c.send(ctx, cl)
	if err != nil {
		return nil, err
	}

	out := &models.ExportResult{
		Format:      format,
		ContentType: resp.header.Get("Content-Type"),
	}
	if format == models.ExportFormatCSV {
		out.Raw = resp.body
		return out, nil
	}

	var rules []models.TenantRule
	if err := decode(resp, &rules); err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []models.TenantRule{}
	}
	out.Rules = rules
	out.Raw = resp.body
	return out, nil
}
