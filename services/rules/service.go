// Package rules implements the tenant rule backend served by the mock API:
// lifecycle, optimistic versioning, validation, dry runs and bulk transfer.
package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/repositories"
	"github.com/upb/tenant-rules-admin/services"
	"go.uber.org/zap"
)

// RuleService handles rule management for all tenants
type RuleService struct {
	repo   repositories.RuleRepository
	txMgr  repositories.TransactionManager
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewRuleService creates a new RuleService instance
func NewRuleService(repo repositories.RuleRepository, txMgr repositories.TransactionManager, logger *zap.Logger) *RuleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleService{
		repo:   repo,
		txMgr:  txMgr,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return "rule-" + uuid.NewString() },
	}
}

// WithClock replaces the time source. Used by tests and fixtures.
func (s *RuleService) WithClock(now func() time.Time) *RuleService {
	s.now = now
	return s
}

// List returns the tenant's rules in evaluation order
func (s *RuleService) List(ctx context.Context, tenantID string) ([]*models.TenantRule, error) {
	rules, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// Get returns one rule
func (s *RuleService) Get(ctx context.Context, tenantID, ruleID string) (*models.TenantRule, error) {
	return s.repo.GetByID(ctx, tenantID, ruleID)
}

// Create validates and stores a new rule at version 1
func (s *RuleService) Create(ctx context.Context, tenantID, actor string, in models.RuleInput) (*models.TenantRule, error) {
	now := s.now()
	if res := models.ValidateAt(in, now); !res.IsValid {
		return nil, services.NewValidationError("rule failed validation", res.Errors)
	}

	rule := s.newRule(tenantID, actor, in, now)
	if err := s.insert(ctx, rule, "Initial rule creation"); err != nil {
		return nil, err
	}

	s.logger.Info("rule created",
		zap.String("tenant_id", tenantID),
		zap.String("rule_id", rule.ID),
		zap.String("type", string(rule.Type())),
	)
	return rule, nil
}

// insert stores a new rule together with its version 1 history entry
func (s *RuleService) insert(ctx context.Context, rule *models.TenantRule, desc string) error {
	return services.WithTransaction(ctx, s.txMgr, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, rule); err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}
		if err := s.repo.AppendVersion(ctx, rule.TenantID, &models.RuleVersion{
			Version:           rule.Version,
			RuleID:            rule.ID,
			Snapshot:          rule.Clone(),
			ChangedBy:         rule.CreatedBy,
			ChangedAt:         rule.CreatedDate,
			ChangeDescription: desc,
		}); err != nil {
			return fmt.Errorf("failed to record version: %w", err)
		}
		return nil
	})
}

func (s *RuleService) newRule(tenantID, actor string, in models.RuleInput, now time.Time) *models.TenantRule {
	in = in.Clone()
	createdBy := in.CreatedBy
	if createdBy == "" {
		createdBy = actor
	}
	if in.Parameters == nil {
		in.Parameters = map[string]any{}
	}
	return &models.TenantRule{
		ID:             s.newID(),
		TenantID:       tenantID,
		SchemaVersion:  models.SchemaVersion,
		CreatedDate:    now,
		UpdatedDate:    now,
		Name:           in.Name,
		Priority:       in.Priority,
		Enabled:        in.Enabled,
		Conditions:     in.Conditions,
		Parameters:     in.Parameters,
		Description:    in.Description,
		Tags:           in.Tags,
		Version:        1,
		EffectiveStart: in.EffectiveStart,
		EffectiveEnd:   in.EffectiveEnd,
		CreatedBy:      createdBy,
	}
}

// Update merges a patch into the stored rule as a new version, recorded in
// history with its author. expectedVersion > 0 makes the update conditional.
// An empty patch still counts as a save and bumps the version.
func (s *RuleService) Update(ctx context.Context, tenantID, ruleID, actor string, patch models.RulePatch, expectedVersion int) (*models.TenantRule, error) {
	return services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context) (*models.TenantRule, error) {
		current, err := s.repo.GetByID(ctx, tenantID, ruleID)
		if err != nil {
			return nil, err
		}
		if expectedVersion > 0 && current.Version != expectedVersion {
			return nil, versionConflict(ruleID, expectedVersion, current.Version)
		}

		next := current.Clone()
		if err := patch.Apply(&next); err != nil {
			return nil, patchError(err)
		}

		now := s.now()
		if res := models.ValidateAt(next.Input(), now); !res.IsValid {
			return nil, services.NewValidationError("rule failed validation", res.Errors)
		}

		desc := "Updated " + strings.Join(patchedFields(patch), ", ")
		if patch.IsEmpty() {
			desc = "Saved without changes"
		}
		return s.commitVersion(ctx, current, next, actor, desc, now)
	})
}

// commitVersion stores next as version current+1 and records that version
// in history with its own author, time and description
func (s *RuleService) commitVersion(ctx context.Context, current *models.TenantRule, next models.TenantRule, actor, desc string, now time.Time) (*models.TenantRule, error) {
	next.Version = current.Version + 1
	next.UpdatedDate = now
	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}

	if err := s.repo.AppendVersion(ctx, next.TenantID, &models.RuleVersion{
		Version:           next.Version,
		RuleID:            next.ID,
		Snapshot:          next.Clone(),
		ChangedBy:         actor,
		ChangedAt:         now,
		ChangeDescription: desc,
	}); err != nil {
		return nil, fmt.Errorf("failed to record version: %w", err)
	}

	s.logger.Info("rule version committed",
		zap.String("tenant_id", next.TenantID),
		zap.String("rule_id", next.ID),
		zap.Int("version", next.Version),
	)
	return &next, nil
}

// Delete removes a rule and its history
func (s *RuleService) Delete(ctx context.Context, tenantID, ruleID string) error {
	if err := s.repo.Delete(ctx, tenantID, ruleID); err != nil {
		return err
	}
	s.logger.Info("rule deleted",
		zap.String("tenant_id", tenantID),
		zap.String("rule_id", ruleID),
	)
	return nil
}

// SetEnabled toggles a rule. The version is not changed and no history
// entry is written.
func (s *RuleService) SetEnabled(ctx context.Context, tenantID, ruleID string, enabled bool) (*models.TenantRule, error) {
	return services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context) (*models.TenantRule, error) {
		rule, err := s.repo.GetByID(ctx, tenantID, ruleID)
		if err != nil {
			return nil, err
		}
		if rule.Enabled == enabled {
			return rule, nil
		}
		rule.Enabled = enabled
		rule.UpdatedDate = s.now()
		if err := s.repo.Update(ctx, rule); err != nil {
			return nil, fmt.Errorf("failed to update rule status: %w", err)
		}
		return rule, nil
	})
}

// History returns every recorded version newest first. The live version is
// the first entry.
func (s *RuleService) History(ctx context.Context, tenantID, ruleID string) ([]*models.RuleVersion, error) {
	return s.repo.ListVersions(ctx, tenantID, ruleID)
}

// GetVersion returns the rule as it was at version. The live version is
// served from the rule itself.
func (s *RuleService) GetVersion(ctx context.Context, tenantID, ruleID string, version int) (*models.TenantRule, error) {
	current, err := s.repo.GetByID(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	if version == current.Version {
		return current, nil
	}
	return s.findVersion(ctx, tenantID, ruleID, version)
}

func (s *RuleService) findVersion(ctx context.Context, tenantID, ruleID string, version int) (*models.TenantRule, error) {
	versions, err := s.repo.ListVersions(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Version == version {
			snap := v.Snapshot.Clone()
			return &snap, nil
		}
	}
	return nil, services.NewVersionNotFound(ruleID, version)
}

// Rollback makes the content of version, including its enabled flag, the
// new live state. Identity and authorship of the live rule are kept.
func (s *RuleService) Rollback(ctx context.Context, tenantID, ruleID, actor string, version int, reason string) (*models.TenantRule, error) {
	return services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context) (*models.TenantRule, error) {
		current, err := s.repo.GetByID(ctx, tenantID, ruleID)
		if err != nil {
			return nil, err
		}

		target := current
		if version != current.Version {
			target, err = s.findVersion(ctx, tenantID, ruleID, version)
			if err != nil {
				return nil, err
			}
		}

		next := current.Clone()
		content := target.Clone()
		next.Name = content.Name
		next.Priority = content.Priority
		next.Enabled = content.Enabled
		next.Conditions = content.Conditions
		next.Parameters = content.Parameters
		next.Description = content.Description
		next.Tags = content.Tags
		next.EffectiveStart = content.EffectiveStart
		next.EffectiveEnd = content.EffectiveEnd

		desc := fmt.Sprintf("Rolled back to version %d", version)
		if reason != "" {
			desc += ": " + reason
		}
		return s.commitVersion(ctx, current, next, actor, desc, s.now())
	})
}

func versionConflict(ruleID string, expected, current int) *services.DomainError {
	return services.NewDomainError(services.ErrorTypeConflict, services.ErrVersionConflict.Message, nil).
		WithDetail("rule_id", ruleID).
		WithDetail("expected_version", expected).
		WithDetail("current_version", current)
}

func patchError(err error) error {
	field := "conditions"
	message := "conditions type does not match rule type"
	if errors.Is(err, models.ErrFieldNotClearable) {
		field = ""
		message = "patch clears a required field"
	}
	return services.NewValidationError(message, []models.FieldMessage{{Field: field, Message: err.Error()}})
}

func patchedFields(p models.RulePatch) []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Priority != nil {
		fields = append(fields, "priority")
	}
	if p.Enabled != nil {
		fields = append(fields, "enabled")
	}
	if p.Conditions != nil {
		fields = append(fields, "conditions")
	}
	if p.Parameters != nil {
		fields = append(fields, "parameters")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Tags != nil {
		fields = append(fields, "tags")
	}
	if p.EffectiveStart != nil {
		fields = append(fields, "effective_start")
	}
	if p.EffectiveEnd != nil {
		fields = append(fields, "effective_end")
	}
	for _, name := range p.Clear {
		if !slices.Contains(fields, name) {
			fields = append(fields, name)
		}
	}
	return fields
}
