package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/repositories"
)

// SeedTenantID owns the fixture rules
const SeedTenantID = "tenant-123"

const seedAuthor = "admin@acme.com"

func seedTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedTimePtr(s string) *time.Time {
	t := seedTime(s)
	return &t
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// Fixtures returns the demo rules of SeedTenantID and their history, oldest
// entry first. rule-1 is at version 2.
func Fixtures() ([]models.TenantRule, []models.RuleVersion) {
	rules := []models.TenantRule{
		{
			ID:          "rule-1",
			Name:        "Daily Token Limit",
			Priority:    1,
			Enabled:     true,
			CreatedDate: seedTime("2025-01-05T00:00:00Z"),
			UpdatedDate: seedTime("2026-01-15T00:00:00Z"),
			Conditions: models.NewConditions(models.TokenLimitCondition{
				LimitType: "daily",
				MaxTokens: 50000,
				Scope:     "user",
			}),
			Parameters:     map[string]any{"block_message": "Daily token limit exceeded. Please try again tomorrow."},
			Description:    "Enforce daily token limits for all users",
			Tags:           []string{"production", "token-management"},
			Version:        2,
			EffectiveStart: seedTimePtr("2025-01-05T00:00:00Z"),
		},
		{
			ID:          "rule-2",
			Name:        "Premium Model Restriction",
			Priority:    2,
			Enabled:     true,
			CreatedDate: seedTime("2025-01-10T00:00:00Z"),
			UpdatedDate: seedTime("2026-01-20T00:00:00Z"),
			Conditions: models.NewConditions(models.ModelRestrictionCondition{
				RestrictionType: "allowlist",
				Models:          []string{"gpt-4", "claude-3-opus"},
			}),
			Parameters: map[string]any{
				"block_message":  "You do not have access to premium models. Contact admin for upgrade.",
				"apply_to_roles": []any{"admin", "power-user"},
			},
			Description: "Restrict premium models to authorized roles",
			Tags:        []string{"production", "model-access"},
			Version:     1,
		},
		{
			ID:          "rule-3",
			Name:        "Rate Limit - Heavy Users",
			Priority:    3,
			Enabled:     true,
			CreatedDate: seedTime("2025-02-01T00:00:00Z"),
			UpdatedDate: seedTime("2026-02-01T00:00:00Z"),
			Conditions: models.NewConditions(models.RateLimitCondition{
				RequestsPerMinute: intPtr(10),
				RequestsPerHour:   intPtr(100),
				Scope:             "user",
			}),
			Parameters:  map[string]any{"block_message": "Rate limit exceeded. Please slow down your requests."},
			Description: "Prevent API abuse with rate limiting",
			Tags:        []string{"production", "rate-limiting"},
			Version:     1,
		},
		{
			ID:          "rule-4",
			Name:        "Block Sensitive Content",
			Priority:    4,
			Enabled:     true,
			CreatedDate: seedTime("2026-01-15T00:00:00Z"),
			UpdatedDate: seedTime("2026-01-15T00:00:00Z"),
			Conditions: models.NewConditions(models.HardBlockCondition{
				Keywords: []string{"password", "api_key", "secret", "private_key"},
			}),
			Parameters:  map[string]any{"block_message": "Request blocked: Sensitive content detected."},
			Description: "Block requests containing sensitive keywords",
			Tags:        []string{"security", "content-filtering"},
			Version:     1,
		},
		{
			ID:          "rule-5",
			Name:        "PII Redaction",
			Priority:    5,
			Enabled:     false,
			CreatedDate: seedTime("2026-01-20T00:00:00Z"),
			UpdatedDate: seedTime("2026-01-20T00:00:00Z"),
			Conditions: models.NewConditions(models.RedactionCondition{
				PatternType: "email",
				Replacement: models.DefaultReplacement,
				ApplyTo:     "both",
			}),
			Description: "Automatically redact PII from requests and responses",
			Tags:        []string{"security", "privacy", "pii"},
			Version:     1,
		},
		{
			ID:          "rule-6",
			Name:        "Monthly Cost Budget",
			Priority:    6,
			Enabled:     true,
			CreatedDate: seedTime("2026-01-25T00:00:00Z"),
			UpdatedDate: seedTime("2026-01-25T00:00:00Z"),
			Conditions: models.NewConditions(models.CostControlCondition{
				MonthlyCostCap: floatPtr(5000),
			}),
			Parameters: map[string]any{
				"block_when_exceeded":     true,
				"alert_threshold_percent": float64(80),
				"notification_emails":     []any{"admin@acme.com", "finance@acme.com"},
			},
			Description: "Enforce monthly cost budget and send alerts",
			Tags:        []string{"production", "cost-management"},
			Version:     1,
		},
	}

	for i := range rules {
		rules[i].TenantID = SeedTenantID
		rules[i].SchemaVersion = models.SchemaVersion
		rules[i].CreatedBy = seedAuthor
	}

	var history []models.RuleVersion
	for _, r := range rules {
		snap := r.Clone()
		changedAt := r.CreatedDate
		if r.ID == "rule-1" {
			snap.Version = 1
			snap.UpdatedDate = r.CreatedDate
			snap.Conditions = models.NewConditions(models.TokenLimitCondition{
				LimitType: "daily",
				MaxTokens: 30000,
				Scope:     "user",
			})
		} else {
			changedAt = r.UpdatedDate
		}
		history = append(history, models.RuleVersion{
			Version:           1,
			RuleID:            r.ID,
			Snapshot:          snap,
			ChangedBy:         seedAuthor,
			ChangedAt:         changedAt,
			ChangeDescription: "Initial rule creation",
		})
	}
	history = append(history, models.RuleVersion{
		Version:           2,
		RuleID:            "rule-1",
		Snapshot:          rules[0].Clone(),
		ChangedBy:         seedAuthor,
		ChangedAt:         rules[0].UpdatedDate,
		ChangeDescription: "Increased daily token limit from 30000 to 50000",
	})
	return rules, history
}

// Seed loads the fixtures into repo
func Seed(ctx context.Context, repo repositories.RuleRepository) error {
	rules, history := Fixtures()
	for i := range rules {
		if err := repo.Create(ctx, &rules[i]); err != nil {
			return fmt.Errorf("failed to seed %s: %w", rules[i].ID, err)
		}
	}
	for i := range history {
		if err := repo.AppendVersion(ctx, SeedTenantID, &history[i]); err != nil {
			return fmt.Errorf("failed to seed history of %s: %w", history[i].RuleID, err)
		}
	}
	return nil
}
