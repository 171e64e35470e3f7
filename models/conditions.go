package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// RuleType represents the kind of a tenant rule
type RuleType string

const (
	RuleTypeTokenLimit       RuleType = "token_limit"
	RuleTypeModelRestriction RuleType = "model_restriction"
	RuleTypeRateLimit        RuleType = "rate_limit"
	RuleTypeHardBlock        RuleType = "hard_block"
	RuleTypeRedaction        RuleType = "redaction"
	RuleTypeCostControl      RuleType = "cost_control"
)

// RuleTypes lists every supported rule type in display order
var RuleTypes = []RuleType{
	RuleTypeTokenLimit,
	RuleTypeModelRestriction,
	RuleTypeRateLimit,
	RuleTypeHardBlock,
	RuleTypeRedaction,
	RuleTypeCostControl,
}

// Valid reports whether t is one of the six known rule types
func (t RuleType) Valid() bool {
	for _, known := range RuleTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DefaultReplacement is the redaction replacement used when none is given
const DefaultReplacement = "[REDACTED]"

var (
	// ErrMissingConditions is returned when a rule carries no conditions payload
	ErrMissingConditions = errors.New("rule conditions are required")

	// ErrUnknownRuleType is returned for a discriminant outside the six rule types
	ErrUnknownRuleType = errors.New("unknown rule type")

	// ErrConditionTypeMismatch is returned when conditions.type differs from the rule type
	ErrConditionTypeMismatch = errors.New("conditions type does not match rule type")
)

// Condition is one variant of the rule conditions union.
// The set of implementations is closed to this package.
type Condition interface {
	RuleType() RuleType
	isCondition()
}

// TokenLimitCondition caps token consumption over a window
type TokenLimitCondition struct {
	LimitType string `json:"limit_type" validate:"required,oneof=daily monthly hourly"`
	MaxTokens int64  `json:"max_tokens" validate:"gt=0"`
	Scope     string `json:"scope" validate:"required,oneof=user tenant"`
}

// ModelRestrictionCondition allows or blocks a set of models
type ModelRestrictionCondition struct {
	RestrictionType string   `json:"restriction_type" validate:"required,oneof=allowlist blocklist"`
	Models          []string `json:"models" validate:"required,min=1,unique,dive,required"`
}

// RateLimitCondition limits request frequency. At least one limit must be set.
type RateLimitCondition struct {
	RequestsPerMinute *int   `json:"requests_per_minute,omitempty" validate:"omitempty,gt=0"`
	RequestsPerHour   *int   `json:"requests_per_hour,omitempty" validate:"omitempty,gt=0"`
	Scope             string `json:"scope" validate:"required,oneof=user tenant"`
}

// HardBlockCondition blocks requests containing any of the keywords
type HardBlockCondition struct {
	Keywords      []string `json:"keywords" validate:"required,min=1,dive,required"`
	CaseSensitive bool     `json:"case_sensitive"`
	WholeWordOnly bool     `json:"whole_word_only"`
	CustomMessage string   `json:"custom_message,omitempty"`
}

// RedactionCondition replaces matched PII in prompts and/or responses
type RedactionCondition struct {
	PatternType string `json:"pattern_type" validate:"required,oneof=email phone ssn credit_card custom"`
	CustomRegex string `json:"custom_regex,omitempty" validate:"required_if=PatternType custom"`
	Replacement string `json:"replacement"`
	ApplyTo     string `json:"apply_to" validate:"required,oneof=prompt response both"`
}

// CostControlCondition bounds spend. At least one cap must be set.
type CostControlCondition struct {
	MaxCostPerRequest *float64 `json:"max_cost_per_request,omitempty" validate:"omitempty,gt=0"`
	DailyCostCap      *float64 `json:"daily_cost_cap,omitempty" validate:"omitempty,gt=0"`
	MonthlyCostCap    *float64 `json:"monthly_cost_cap,omitempty" validate:"omitempty,gt=0"`
}

func (TokenLimitCondition) RuleType() RuleType       { return RuleTypeTokenLimit }
func (ModelRestrictionCondition) RuleType() RuleType { return RuleTypeModelRestriction }
func (RateLimitCondition) RuleType() RuleType        { return RuleTypeRateLimit }
func (HardBlockCondition) RuleType() RuleType        { return RuleTypeHardBlock }
func (RedactionCondition) RuleType() RuleType        { return RuleTypeRedaction }
func (CostControlCondition) RuleType() RuleType      { return RuleTypeCostControl }

func (TokenLimitCondition) isCondition()       {}
func (ModelRestrictionCondition) isCondition() {}
func (RateLimitCondition) isCondition()        {}
func (HardBlockCondition) isCondition()        {}
func (RedactionCondition) isCondition()        {}
func (CostControlCondition) isCondition()      {}

// Conditions holds exactly one Condition variant and owns its JSON codec.
// On the wire the variant fields are flattened next to a "type" discriminant.
type Conditions struct {
	Condition Condition
}

// NewConditions wraps a condition variant
func NewConditions(c Condition) Conditions {
	return Conditions{Condition: c}
}

// Type returns the discriminant of the wrapped variant, or "" when empty
func (c Conditions) Type() RuleType {
	if c.Condition == nil {
		return ""
	}
	return c.Condition.RuleType()
}

// IsZero reports whether no variant is set
func (c Conditions) IsZero() bool {
	return c.Condition == nil
}

// Clone returns a copy that shares no slices or pointers with c
func (c Conditions) Clone() Conditions {
	switch v := c.Condition.(type) {
	case ModelRestrictionCondition:
		v.Models = slices.Clone(v.Models)
		return Conditions{Condition: v}
	case HardBlockCondition:
		v.Keywords = slices.Clone(v.Keywords)
		return Conditions{Condition: v}
	case RateLimitCondition:
		v.RequestsPerMinute = clonePtr(v.RequestsPerMinute)
		v.RequestsPerHour = clonePtr(v.RequestsPerHour)
		return Conditions{Condition: v}
	case CostControlCondition:
		v.MaxCostPerRequest = clonePtr(v.MaxCostPerRequest)
		v.DailyCostCap = clonePtr(v.DailyCostCap)
		v.MonthlyCostCap = clonePtr(v.MonthlyCostCap)
		return Conditions{Condition: v}
	default:
		return c
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MarshalJSON writes the variant with its discriminant
func (c Conditions) MarshalJSON() ([]byte, error) {
	if c.Condition == nil {
		return []byte("null"), nil
	}

	cond := c.Condition
	if r, ok := cond.(RedactionCondition); ok && r.Replacement == "" {
		r.Replacement = DefaultReplacement
		cond = r
	}

	body, err := json.Marshal(cond)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s conditions: %w", c.Type(), err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	typ, _ := json.Marshal(c.Type())
	buf.Write(typ)
	if inner := bytes.TrimSpace(body); len(inner) > 2 {
		buf.WriteByte(',')
		buf.Write(inner[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON requires the conditions object to carry its own "type"
func (c *Conditions) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeConditions(data, "")
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// DecodeConditions decodes a conditions object. When the object has no
// "type" field the fallback discriminant is used; when both are present they
// must agree.
func DecodeConditions(data []byte, fallback RuleType) (Conditions, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Conditions{}, nil
	}

	var head struct {
		Type RuleType `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return Conditions{}, fmt.Errorf("invalid conditions payload: %w", err)
	}

	typ := head.Type
	switch {
	case typ == "" && fallback == "":
		return Conditions{}, fmt.Errorf("%w: conditions carry no type", ErrUnknownRuleType)
	case typ == "":
		typ = fallback
	case fallback != "" && typ != fallback:
		return Conditions{}, fmt.Errorf("%w: rule type %q, conditions type %q", ErrConditionTypeMismatch, fallback, typ)
	}

	var cond Condition
	switch typ {
	case RuleTypeTokenLimit:
		var v TokenLimitCondition
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return Conditions{}, conditionDecodeError(typ, err)
		}
		cond = v
	case RuleTypeModelRestriction:
		var v ModelRestrictionCondition
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return Conditions{}, conditionDecodeError(typ, err)
		}
		cond = v
	case RuleTypeRateLimit:
		var v RateLimitCondition
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return Conditions{}, conditionDecodeError(typ, err)
		}
		cond = v
	case RuleTypeHardBlock:
		var v HardBlockCondition
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return Conditions{}, conditionDecodeError(typ, err)
		}
		cond = v
	case RuleTypeRedaction:
		var v RedactionCondition
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return Conditions{}, conditionDecodeError(typ, err)
		}
		if v.Replacement == "" {
			v.Replacement = DefaultReplacement
		}
		cond = v
	case RuleTypeCostControl:
		var v CostControlCondition
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return Conditions{}, conditionDecodeError(typ, err)
		}
		cond = v
	default:
		return Conditions{}, fmt.Errorf("%w: %q", ErrUnknownRuleType, typ)
	}

	return Conditions{Condition: cond}, nil
}

func conditionDecodeError(t RuleType, err error) error {
	return fmt.Errorf("invalid %s conditions: %w", t, err)
}
