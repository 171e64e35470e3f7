package models

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// HighTokenLimit is the max_tokens value above which validation warns
const HighTokenLimit = 1_000_000

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}

// Validate checks a candidate rule locally. It never performs I/O and its
// outcome is advisory; the backend remains authoritative.
func Validate(in RuleInput) RuleValidation {
	return ValidateAt(in, time.Now())
}

// ValidateAt is Validate with an explicit clock for time-window warnings
func ValidateAt(in RuleInput, now time.Time) RuleValidation {
	var result RuleValidation

	if err := validate.Struct(in); err != nil {
		result.Errors = append(result.Errors, fieldMessages(err, "")...)
	}

	if in.Conditions.IsZero() {
		result.Errors = append(result.Errors, FieldMessage{Field: "conditions", Message: ErrMissingConditions.Error()})
	} else {
		if err := validate.Struct(in.Conditions.Condition); err != nil {
			result.Errors = append(result.Errors, fieldMessages(err, "conditions.")...)
		}
		errs, warns := checkCondition(in.Conditions.Condition)
		result.Errors = append(result.Errors, errs...)
		result.Warnings = append(result.Warnings, warns...)
	}

	if in.EffectiveStart != nil && in.EffectiveEnd != nil && !in.EffectiveEnd.After(*in.EffectiveStart) {
		result.Errors = append(result.Errors, FieldMessage{
			Field:   "effective_end",
			Message: "effective_end must be after effective_start",
		})
	}
	if in.EffectiveEnd != nil && in.EffectiveEnd.Before(now) {
		result.Warnings = append(result.Warnings, FieldMessage{
			Field:   "effective_end",
			Message: "Rule has already expired and will never take effect.",
		})
	}

	result.IsValid = len(result.Errors) == 0
	if result.Errors == nil {
		result.Errors = []FieldMessage{}
	}
	if result.Warnings == nil {
		result.Warnings = []FieldMessage{}
	}
	return result
}

// checkCondition covers the cross-field constraints struct tags cannot express
func checkCondition(c Condition) (errs, warns []FieldMessage) {
	switch v := c.(type) {
	case TokenLimitCondition:
		if v.MaxTokens > HighTokenLimit {
			warns = append(warns, FieldMessage{
				Field:   "conditions.max_tokens",
				Message: "Token limit is very high (>1M). Consider if this is intentional.",
			})
		}
	case RateLimitCondition:
		if v.RequestsPerMinute == nil && v.RequestsPerHour == nil {
			errs = append(errs, FieldMessage{
				Field:   "conditions",
				Message: "at least one of requests_per_minute or requests_per_hour is required",
			})
		}
	case CostControlCondition:
		if v.MaxCostPerRequest == nil && v.DailyCostCap == nil && v.MonthlyCostCap == nil {
			errs = append(errs, FieldMessage{
				Field:   "conditions",
				Message: "at least one cost cap is required",
			})
		}
	case RedactionCondition:
		if v.PatternType == "custom" && v.CustomRegex != "" {
			if _, err := regexp.Compile(v.CustomRegex); err != nil {
				errs = append(errs, FieldMessage{
					Field:   "conditions.custom_regex",
					Message: fmt.Sprintf("custom_regex does not compile: %v", err),
				})
			}
		}
		if v.PatternType != "custom" && v.CustomRegex != "" {
			warns = append(warns, FieldMessage{
				Field:   "conditions.custom_regex",
				Message: "custom_regex is ignored unless pattern_type is custom",
			})
		}
	case HardBlockCondition:
		seen := make(map[string]struct{}, len(v.Keywords))
		for _, kw := range v.Keywords {
			key := kw
			if !v.CaseSensitive {
				key = strings.ToLower(kw)
			}
			if _, dup := seen[key]; dup {
				warns = append(warns, FieldMessage{
					Field:   "conditions.keywords",
					Message: fmt.Sprintf("keyword %q is listed more than once", kw),
				})
				continue
			}
			seen[key] = struct{}{}
		}
	}
	return errs, warns
}

func fieldMessages(err error, prefix string) []FieldMessage {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldMessage{{Field: strings.TrimSuffix(prefix, "."), Message: err.Error()}}
	}

	out := make([]FieldMessage, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out = append(out, FieldMessage{Field: prefix + field, Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, strings.Replace(fe.Param(), " ", " is ", 1))
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", field)
	default:
		return fmt.Sprintf("%s validation failed on '%s' tag", field, fe.Tag())
	}
}
