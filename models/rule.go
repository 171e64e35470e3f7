package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// SchemaVersion is the document schema version assigned to new rules
const SchemaVersion = "1.0"

// RuleAction is the outcome a triggered rule produces
type RuleAction string

const (
	RuleActionBlock  RuleAction = "block"
	RuleActionAlert  RuleAction = "alert"
	RuleActionRedact RuleAction = "redact"
)

// TenantRule is a named policy unit scoped to one tenant.
// The rule type is always derived from Conditions; see Type.
type TenantRule struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	SchemaVersion string    `json:"schemaVersion"`
	CreatedDate   time.Time `json:"createdDate"`
	UpdatedDate   time.Time `json:"updatedDate"`

	Name           string         `json:"name"`
	Priority       int            `json:"priority"` // Lower = evaluated first
	Enabled        bool           `json:"enabled"`
	Conditions     Conditions     `json:"conditions"`
	Parameters     map[string]any `json:"parameters"`
	Description    string         `json:"description,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Version        int            `json:"version"`
	EffectiveStart *time.Time     `json:"effective_start,omitempty"`
	EffectiveEnd   *time.Time     `json:"effective_end,omitempty"`
	CreatedBy      string         `json:"created_by,omitempty"`
}

// Type returns the rule type carried by the conditions variant
func (r TenantRule) Type() RuleType {
	return r.Conditions.Type()
}

// MarshalJSON emits the top-level "type" from the conditions variant
func (r TenantRule) MarshalJSON() ([]byte, error) {
	type alias TenantRule
	return json.Marshal(struct {
		Type RuleType `json:"type"`
		alias
	}{Type: r.Type(), alias: alias(r)})
}

// UnmarshalJSON decodes conditions using the top-level "type" as discriminant
func (r *TenantRule) UnmarshalJSON(data []byte) error {
	type alias TenantRule
	aux := struct {
		Type       RuleType        `json:"type"`
		Conditions json.RawMessage `json:"conditions"`
		*alias
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	conds, err := decodeRuleConditions(aux.Conditions, aux.Type)
	if err != nil {
		return err
	}
	r.Conditions = conds
	return nil
}

// Input returns the client-editable part of the rule
func (r TenantRule) Input() RuleInput {
	c := r.Clone()
	return RuleInput{
		Name:           c.Name,
		Priority:       c.Priority,
		Enabled:        c.Enabled,
		Conditions:     c.Conditions,
		Parameters:     c.Parameters,
		Description:    c.Description,
		Tags:           c.Tags,
		EffectiveStart: c.EffectiveStart,
		EffectiveEnd:   c.EffectiveEnd,
		CreatedBy:      c.CreatedBy,
	}
}

// Clone returns a deep copy of the rule
func (r TenantRule) Clone() TenantRule {
	out := r
	out.Conditions = r.Conditions.Clone()
	out.Parameters = maps.Clone(r.Parameters)
	out.Tags = slices.Clone(r.Tags)
	out.EffectiveStart = cloneTime(r.EffectiveStart)
	out.EffectiveEnd = cloneTime(r.EffectiveEnd)
	return out
}

// RuleInput is the create payload. Server-assigned fields (id, tenantId,
// schemaVersion, createdDate, updatedDate, version) are absent.
type RuleInput struct {
	Name           string         `json:"name" validate:"required,max=200"`
	Priority       int            `json:"priority" validate:"gte=0"`
	Enabled        bool           `json:"enabled"`
	Conditions     Conditions     `json:"conditions" validate:"-"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Description    string         `json:"description,omitempty" validate:"max=2000"`
	Tags           []string       `json:"tags,omitempty" validate:"omitempty,unique,dive,required"`
	EffectiveStart *time.Time     `json:"effective_start,omitempty"`
	EffectiveEnd   *time.Time     `json:"effective_end,omitempty"`
	CreatedBy      string         `json:"created_by,omitempty"`
}

// NewRuleInput builds an enabled rule input for the given condition variant
func NewRuleInput(name string, priority int, cond Condition) RuleInput {
	return RuleInput{
		Name:       name,
		Priority:   priority,
		Enabled:    true,
		Conditions: NewConditions(cond),
	}
}

// Type returns the rule type carried by the conditions variant
func (in RuleInput) Type() RuleType {
	return in.Conditions.Type()
}

// Clone returns a deep copy of the input
func (in RuleInput) Clone() RuleInput {
	out := in
	out.Conditions = in.Conditions.Clone()
	out.Parameters = maps.Clone(in.Parameters)
	out.Tags = slices.Clone(in.Tags)
	out.EffectiveStart = cloneTime(in.EffectiveStart)
	out.EffectiveEnd = cloneTime(in.EffectiveEnd)
	return out
}

// MarshalJSON emits the top-level "type" from the conditions variant
func (in RuleInput) MarshalJSON() ([]byte, error) {
	type alias RuleInput
	return json.Marshal(struct {
		Type RuleType `json:"type"`
		alias
	}{Type: in.Type(), alias: alias(in)})
}

// UnmarshalJSON decodes conditions using the top-level "type" as discriminant
func (in *RuleInput) UnmarshalJSON(data []byte) error {
	type alias RuleInput
	aux := struct {
		Type       RuleType        `json:"type"`
		Conditions json.RawMessage `json:"conditions"`
		*alias
	}{alias: (*alias)(in)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	conds, err := decodeRuleConditions(aux.Conditions, aux.Type)
	if err != nil {
		return err
	}
	in.Conditions = conds
	return nil
}

// RulePatch is a partial update. Nil fields are left untouched; fields named
// in Clear are removed from the rule and travel as explicit JSON nulls.
type RulePatch struct {
	Name           *string        `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Priority       *int           `json:"priority,omitempty" validate:"omitempty,gte=0"`
	Enabled        *bool          `json:"enabled,omitempty"`
	Conditions     *Conditions    `json:"conditions,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Description    *string        `json:"description,omitempty"`
	Tags           *[]string      `json:"tags,omitempty"`
	EffectiveStart *time.Time     `json:"effective_start,omitempty"`
	EffectiveEnd   *time.Time     `json:"effective_end,omitempty"`

	// Clear holds the JSON names of optional fields to remove. See
	// ClearableFields.
	Clear []string `json:"-"`
}

// ClearableFields are the optional rule fields a patch may set to null
var ClearableFields = []string{"parameters", "description", "tags", "effective_start", "effective_end"}

// requiredPatchFields may be omitted from a patch but never nulled
var requiredPatchFields = []string{"name", "priority", "enabled", "conditions", "type"}

// ErrFieldNotClearable is returned for a null or Clear entry on a field
// that cannot be removed
var ErrFieldNotClearable = errors.New("field cannot be cleared")

// IsEmpty reports whether the patch changes nothing
func (p RulePatch) IsEmpty() bool {
	return p.Name == nil && p.Priority == nil && p.Enabled == nil &&
		p.Conditions == nil && p.Parameters == nil && p.Description == nil &&
		p.Tags == nil && p.EffectiveStart == nil && p.EffectiveEnd == nil &&
		len(p.Clear) == 0
}

// Clears reports whether field is named in Clear
func (p RulePatch) Clears(field string) bool {
	return slices.Contains(p.Clear, field)
}

// MarshalJSON adds the "type" discriminant when conditions are patched and
// writes a null for every cleared field
func (p RulePatch) MarshalJSON() ([]byte, error) {
	type alias RulePatch
	var typ RuleType
	if p.Conditions != nil {
		typ = p.Conditions.Type()
	}
	data, err := json.Marshal(struct {
		Type RuleType `json:"type,omitempty"`
		alias
	}{Type: typ, alias: alias(p)})
	if err != nil || len(p.Clear) == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for _, name := range p.Clear {
		fields[name] = json.RawMessage("null")
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes patched conditions using "type" as discriminant and
// records explicit nulls in Clear
func (p *RulePatch) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var clear []string
	for _, name := range requiredPatchFields {
		if isNull(fields[name]) {
			return fmt.Errorf("%w: %s", ErrFieldNotClearable, name)
		}
	}
	for _, name := range ClearableFields {
		if isNull(fields[name]) {
			clear = append(clear, name)
		}
	}

	type alias RulePatch
	aux := struct {
		Type       RuleType        `json:"type"`
		Conditions json.RawMessage `json:"conditions"`
		*alias
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Clear = clear

	p.Conditions = nil
	if len(aux.Conditions) == 0 {
		if aux.Type != "" {
			return fmt.Errorf("%w: type %q given without conditions", ErrConditionTypeMismatch, aux.Type)
		}
		return nil
	}
	conds, err := DecodeConditions(aux.Conditions, aux.Type)
	if err != nil {
		return err
	}
	if !conds.IsZero() {
		p.Conditions = &conds
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return raw != nil && string(bytes.TrimSpace(raw)) == "null"
}

// Apply merges the patch into r. A patched conditions variant must keep the
// rule type. Cleared fields are removed after the set fields are merged.
func (p RulePatch) Apply(r *TenantRule) error {
	if p.Conditions != nil && p.Conditions.Type() != r.Type() {
		return fmt.Errorf("%w: rule type %q, conditions type %q", ErrConditionTypeMismatch, r.Type(), p.Conditions.Type())
	}
	for _, name := range p.Clear {
		if !slices.Contains(ClearableFields, name) {
			return fmt.Errorf("%w: %s", ErrFieldNotClearable, name)
		}
	}

	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if p.Conditions != nil {
		r.Conditions = p.Conditions.Clone()
	}
	if p.Parameters != nil {
		r.Parameters = maps.Clone(p.Parameters)
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Tags != nil {
		r.Tags = slices.Clone(*p.Tags)
	}
	if p.EffectiveStart != nil {
		r.EffectiveStart = cloneTime(p.EffectiveStart)
	}
	if p.EffectiveEnd != nil {
		r.EffectiveEnd = cloneTime(p.EffectiveEnd)
	}

	for _, name := range p.Clear {
		switch name {
		case "parameters":
			r.Parameters = map[string]any{}
		case "description":
			r.Description = ""
		case "tags":
			r.Tags = nil
		case "effective_start":
			r.EffectiveStart = nil
		case "effective_end":
			r.EffectiveEnd = nil
		}
	}
	return nil
}

// RuleVersion is an immutable snapshot recorded by the backend
type RuleVersion struct {
	Version           int        `json:"version"`
	RuleID            string     `json:"rule_id"`
	Snapshot          TenantRule `json:"snapshot"`
	ChangedBy         string     `json:"changed_by"`
	ChangedAt         time.Time  `json:"changed_at"`
	ChangeDescription string     `json:"change_description,omitempty"`
}

// TriggeredRule identifies a rule that fired during a dry run
type TriggeredRule struct {
	RuleID   string     `json:"rule_id"`
	RuleName string     `json:"rule_name"`
	Action   RuleAction `json:"action"`
}

// RuleTestRequest asks the backend to evaluate rules against sample data.
// An empty RuleIDs evaluates every enabled rule of the tenant.
type RuleTestRequest struct {
	RuleIDs        []string `json:"rule_ids,omitempty"`
	SamplePrompt   string   `json:"sample_prompt" validate:"required"`
	SampleResponse string   `json:"sample_response,omitempty"`
}

// RuleTestResult is the ephemeral outcome of a dry run
type RuleTestResult struct {
	TriggeredRules   []TriggeredRule `json:"triggered_rules"`
	ModifiedPrompt   *string         `json:"modified_prompt,omitempty"`
	ModifiedResponse *string         `json:"modified_response,omitempty"`
	IsBlocked        bool            `json:"is_blocked"`
	BlockReason      string          `json:"block_reason,omitempty"`
	Warnings         []string        `json:"warnings"`
}

// Triggered reports whether the rule with the given ID fired
func (r RuleTestResult) Triggered(ruleID string) bool {
	for _, t := range r.TriggeredRules {
		if t.RuleID == ruleID {
			return true
		}
	}
	return false
}

// FieldMessage is a field-level validation message
type FieldMessage struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RuleValidation is the ephemeral outcome of a validation check
type RuleValidation struct {
	IsValid  bool           `json:"is_valid"`
	Errors   []FieldMessage `json:"errors"`
	Warnings []FieldMessage `json:"warnings"`
}

// ImportRequest carries a batch of candidate rules
type ImportRequest struct {
	Rules             []RuleInput `json:"rules"`
	OverwriteExisting bool        `json:"overwrite_existing,omitempty"`
	SkipValidation    bool        `json:"skip_validation,omitempty"`
}

// ImportError reports why one candidate was not imported
type ImportError struct {
	RuleName string `json:"rule_name"`
	Error    string `json:"error"`
}

// ImportResult summarises a batch import. Imported+Failed equals the batch size.
type ImportResult struct {
	Imported int           `json:"imported"`
	Failed   int           `json:"failed"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// ExportFormat selects the export representation
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
)

// ExportOptions filters an export
type ExportOptions struct {
	RuleIDs         []string
	IncludeDisabled bool
	Format          ExportFormat
}

// ExportResult holds either decoded rules (json) or the opaque payload (csv)
type ExportResult struct {
	Format      ExportFormat
	Rules       []TenantRule
	Raw         []byte
	ContentType string
}

func decodeRuleConditions(raw json.RawMessage, typ RuleType) (Conditions, error) {
	conds, err := DecodeConditions(raw, typ)
	if err != nil {
		return Conditions{}, err
	}
	if conds.IsZero() && typ != "" {
		return Conditions{}, fmt.Errorf("%w for %s rule", ErrMissingConditions, typ)
	}
	return conds, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
