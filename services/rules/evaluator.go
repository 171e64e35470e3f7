package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/tenant-rules-admin/internal/prompt"
	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/services"
	"go.uber.org/zap"
)

// Test dry-runs rules against sample text. Only hard_block and redaction
// rules can be decided from text; other types are reported as warnings.
// Rules are evaluated in priority order and every selected rule is visited.
func (s *RuleService) Test(ctx context.Context, tenantID string, req models.RuleTestRequest) (*models.RuleTestResult, error) {
	if req.SamplePrompt == "" {
		return nil, services.NewValidationError("sample_prompt is required", []models.FieldMessage{
			{Field: "sample_prompt", Message: "sample_prompt is required"},
		})
	}

	selected, warnings, err := s.selectRules(ctx, tenantID, req.RuleIDs)
	if err != nil {
		return nil, err
	}

	ev := newEvaluation(req, s.now())
	ev.result.Warnings = append(ev.result.Warnings, warnings...)
	for _, r := range selected {
		ev.apply(r)
	}

	s.logger.Debug("dry run evaluated",
		zap.String("tenant_id", tenantID),
		zap.Int("rules", len(selected)),
		zap.Int("triggered", len(ev.result.TriggeredRules)),
		zap.Bool("blocked", ev.result.IsBlocked),
	)
	return ev.finish(), nil
}

// selectRules returns the explicit rules in priority order or, when ids is
// empty, every enabled rule
func (s *RuleService) selectRules(ctx context.Context, tenantID string, ids []string) ([]*models.TenantRule, []string, error) {
	all, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list rules: %w", err)
	}

	if len(ids) == 0 {
		out := make([]*models.TenantRule, 0, len(all))
		for _, r := range all {
			if r.Enabled {
				out = append(out, r)
			}
		}
		return out, nil, nil
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var (
		out      []*models.TenantRule
		warnings []string
	)
	for _, r := range all {
		if !wanted[r.ID] {
			continue
		}
		delete(wanted, r.ID)
		if !r.Enabled {
			warnings = append(warnings, fmt.Sprintf("Rule %q is disabled; evaluated because it was requested explicitly.", r.Name))
		}
		out = append(out, r)
	}
	for _, id := range ids {
		if wanted[id] {
			warnings = append(warnings, fmt.Sprintf("Rule %s was not found and was skipped.", id))
			delete(wanted, id)
		}
	}
	return out, warnings, nil
}

type evaluation struct {
	now         time.Time
	prompt      string
	response    string
	hasResponse bool
	promptHit   bool
	responseHit bool
	result      models.RuleTestResult
}

func newEvaluation(req models.RuleTestRequest, now time.Time) *evaluation {
	return &evaluation{
		now:         now,
		prompt:      req.SamplePrompt,
		response:    req.SampleResponse,
		hasResponse: req.SampleResponse != "",
		result: models.RuleTestResult{
			TriggeredRules: []models.TriggeredRule{},
			Warnings:       []string{},
		},
	}
}

func (e *evaluation) warn(format string, args ...any) {
	e.result.Warnings = append(e.result.Warnings, fmt.Sprintf(format, args...))
}

func (e *evaluation) trigger(r *models.TenantRule, action models.RuleAction) {
	e.result.TriggeredRules = append(e.result.TriggeredRules, models.TriggeredRule{
		RuleID:   r.ID,
		RuleName: r.Name,
		Action:   action,
	})
}

func (e *evaluation) apply(r *models.TenantRule) {
	if r.EffectiveStart != nil && e.now.Before(*r.EffectiveStart) {
		e.warn("Rule %q is not effective yet and was skipped.", r.Name)
		return
	}
	if r.EffectiveEnd != nil && !e.now.Before(*r.EffectiveEnd) {
		e.warn("Rule %q has expired and was skipped.", r.Name)
		return
	}

	switch c := r.Conditions.Condition.(type) {
	case models.HardBlockCondition:
		e.applyHardBlock(r, c)
	case models.RedactionCondition:
		e.applyRedaction(r, c)
	case nil:
		e.warn("Rule %q has no conditions and was skipped.", r.Name)
	default:
		e.warn("Rule %q (%s) depends on live usage data and cannot be evaluated in a dry run.", r.Name, r.Type())
	}
}

func (e *evaluation) applyHardBlock(r *models.TenantRule, c models.HardBlockCondition) {
	opts := prompt.KeywordOptions{CaseSensitive: c.CaseSensitive, WholeWordOnly: c.WholeWordOnly}

	_, hit := prompt.FindKeyword(e.prompt, c.Keywords, opts)
	if !hit && e.hasResponse {
		_, hit = prompt.FindKeyword(e.response, c.Keywords, opts)
	}
	if !hit {
		return
	}

	e.trigger(r, models.RuleActionBlock)
	if !e.result.IsBlocked {
		e.result.IsBlocked = true
		e.result.BlockReason = blockReason(r, c)
	}
}

func blockReason(r *models.TenantRule, c models.HardBlockCondition) string {
	if c.CustomMessage != "" {
		return c.CustomMessage
	}
	if msg, ok := r.Parameters["block_message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("Request blocked by rule %q.", r.Name)
}

func (e *evaluation) applyRedaction(r *models.TenantRule, c models.RedactionCondition) {
	m, err := prompt.MatcherFor(c.PatternType, c.CustomRegex)
	if err != nil {
		e.warn("Rule %q has an invalid custom_regex and was skipped.", r.Name)
		return
	}

	replacement := c.Replacement
	if replacement == "" {
		replacement = models.DefaultReplacement
	}

	redacted := 0
	if c.ApplyTo != "response" {
		out, n := prompt.Redact(e.prompt, m, replacement)
		if n > 0 {
			e.prompt = out
			e.promptHit = true
			redacted += n
		}
	}
	if c.ApplyTo != "prompt" && e.hasResponse {
		out, n := prompt.Redact(e.response, m, replacement)
		if n > 0 {
			e.response = out
			e.responseHit = true
			redacted += n
		}
	}

	if redacted > 0 {
		e.trigger(r, models.RuleActionRedact)
	}
}

func (e *evaluation) finish() *models.RuleTestResult {
	if e.promptHit {
		p := e.prompt
		e.result.ModifiedPrompt = &p
	}
	if e.responseHit {
		r := e.response
		e.result.ModifiedResponse = &r
	}
	return &e.result
}
