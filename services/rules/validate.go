package rules

import (
	"context"
	"fmt"

	"github.com/upb/tenant-rules-admin/models"
)

// Validate checks a candidate rule without storing it. On top of the
// structural checks it warns about enabled rules that already use the same
// priority or name.
func (s *RuleService) Validate(ctx context.Context, tenantID string, in models.RuleInput) (*models.RuleValidation, error) {
	res := models.ValidateAt(in, s.now())

	existing, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	for _, r := range existing {
		if r.Name == in.Name && in.Name != "" {
			res.Warnings = append(res.Warnings, models.FieldMessage{
				Field:   "name",
				Message: fmt.Sprintf("A rule named %q already exists (%s).", r.Name, r.ID),
			})
		}
		if r.Enabled && r.Priority == in.Priority {
			res.Warnings = append(res.Warnings, models.FieldMessage{
				Field:   "priority",
				Message: fmt.Sprintf("Priority %d is already used by rule %q.", r.Priority, r.Name),
			})
		}
	}

	return &res, nil
}
