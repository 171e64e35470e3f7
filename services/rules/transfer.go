package rules

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/services"
	"go.uber.org/zap"
)

// ImportBatch is an import request whose items are still undecoded, so each
// item can fail on its own
type ImportBatch struct {
	Rules             []json.RawMessage `json:"rules"`
	OverwriteExisting bool              `json:"overwrite_existing"`
	SkipValidation    bool              `json:"skip_validation"`
}

// Import stores each item independently. A failing item is reported in the
// result and never aborts the rest of the batch. Items are matched to
// existing rules by name; matches are updated only with OverwriteExisting.
func (s *RuleService) Import(ctx context.Context, tenantID, actor string, batch ImportBatch) (*models.ImportResult, error) {
	res := &models.ImportResult{Errors: []models.ImportError{}}

	for i, raw := range batch.Rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := itemName(raw, i)
		if err := s.importOne(ctx, tenantID, actor, raw, batch); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, models.ImportError{RuleName: name, Error: importMessage(err)})
			continue
		}
		res.Imported++
	}

	s.logger.Info("rules imported",
		zap.String("tenant_id", tenantID),
		zap.Int("imported", res.Imported),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *RuleService) importOne(ctx context.Context, tenantID, actor string, raw json.RawMessage, batch ImportBatch) error {
	if !batch.SkipValidation {
		msgs, err := models.ValidateDocument(raw)
		if err != nil {
			return services.NewValidationError("rule is not valid JSON", nil)
		}
		if len(msgs) > 0 {
			return services.NewValidationError("rule does not match the rule schema", msgs)
		}
	}

	var in models.RuleInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return services.NewValidationError(err.Error(), nil)
	}
	if in.Conditions.IsZero() {
		return services.NewValidationError(models.ErrMissingConditions.Error(), nil)
	}

	if !batch.SkipValidation {
		if res := models.ValidateAt(in, s.now()); !res.IsValid {
			return services.NewValidationError("rule failed validation", res.Errors)
		}
	}

	// the name lookup and the write share one transaction so concurrent
	// imports cannot both create the same name
	return services.WithTransaction(ctx, s.txMgr, func(ctx context.Context) error {
		existing, err := s.repo.GetByName(ctx, tenantID, in.Name)
		switch {
		case err == nil && !batch.OverwriteExisting:
			return services.ErrDuplicateName
		case err == nil:
			return s.replace(ctx, existing, in, actor)
		case !services.IsNotFoundError(err):
			return err
		}

		return s.insert(ctx, s.newRule(tenantID, actor, in, s.now()), "Created by import")
	})
}

// replace overwrites an existing rule's content with in as a new version.
// It joins the caller's transaction when there is one.
func (s *RuleService) replace(ctx context.Context, existing *models.TenantRule, in models.RuleInput, actor string) error {
	return services.WithTransaction(ctx, s.txMgr, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, existing.TenantID, existing.ID)
		if err != nil {
			return err
		}
		in = in.Clone()
		next := current.Clone()
		next.Name = in.Name
		next.Priority = in.Priority
		next.Enabled = in.Enabled
		next.Conditions = in.Conditions
		next.Parameters = in.Parameters
		next.Description = in.Description
		next.Tags = in.Tags
		next.EffectiveStart = in.EffectiveStart
		next.EffectiveEnd = in.EffectiveEnd
		_, err = s.commitVersion(ctx, current, next, actor, "Overwritten by import", s.now())
		return err
	})
}

func itemName(raw json.RawMessage, i int) string {
	var named struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &named); err == nil && named.Name != "" {
		return named.Name
	}
	return fmt.Sprintf("rules[%d]", i)
}

func importMessage(err error) string {
	fields := services.GetFieldErrors(err)
	if len(fields) == 0 {
		var domainErr *services.DomainError
		if errors.As(err, &domainErr) {
			return domainErr.Message
		}
		return err.Error()
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// Export returns the tenant's rules in evaluation order. Disabled rules are
// left out unless includeDisabled; a non-empty ruleIDs restricts the set.
func (s *RuleService) Export(ctx context.Context, tenantID string, ruleIDs []string, includeDisabled bool) ([]*models.TenantRule, error) {
	all, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	var wanted map[string]bool
	if len(ruleIDs) > 0 {
		wanted = make(map[string]bool, len(ruleIDs))
		for _, id := range ruleIDs {
			wanted[id] = true
		}
	}

	out := make([]*models.TenantRule, 0, len(all))
	for _, r := range all {
		if wanted != nil && !wanted[r.ID] {
			continue
		}
		if !r.Enabled && !includeDisabled {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// CSVHeader is the column order of CSV exports
var CSVHeader = []string{
	"id", "name", "type", "priority", "enabled", "version",
	"description", "tags", "conditions", "parameters",
	"effective_start", "effective_end", "created_by", "createdDate", "updatedDate",
}

// WriteCSV encodes rules as CSV. Conditions and parameters are embedded as
// JSON; tags are joined with ';'.
func WriteCSV(w io.Writer, rules []*models.TenantRule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	for _, r := range rules {
		conds, err := json.Marshal(r.Conditions)
		if err != nil {
			return fmt.Errorf("failed to encode conditions of %s: %w", r.ID, err)
		}
		params := []byte("{}")
		if len(r.Parameters) > 0 {
			if params, err = json.Marshal(r.Parameters); err != nil {
				return fmt.Errorf("failed to encode parameters of %s: %w", r.ID, err)
			}
		}

		record := []string{
			r.ID,
			r.Name,
			string(r.Type()),
			strconv.Itoa(r.Priority),
			strconv.FormatBool(r.Enabled),
			strconv.Itoa(r.Version),
			r.Description,
			strings.Join(r.Tags, ";"),
			string(conds),
			string(params),
			formatTime(r.EffectiveStart),
			formatTime(r.EffectiveEnd),
			r.CreatedBy,
			r.CreatedDate.Format(time.RFC3339),
			r.UpdatedDate.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
