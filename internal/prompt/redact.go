// Package prompt holds the text matchers used by the dry-run evaluator:
// built-in PII patterns for redaction rules and keyword matching for
// hard-block rules.
package prompt

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// Email pattern - RFC 5322 simplified
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	// Phone patterns - US and international formats
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\b[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s][0-9]{4}\b`),
		regexp.MustCompile(`\+[0-9]{1,4}[-.\s][0-9]{1,4}[-.\s][0-9]{3,4}[-.\s]?[0-9]{3,9}\b`),
	}

	// SSN pattern - XXX-XX-XXXX
	ssnPattern = regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`)

	// Credit card candidates, 13 to 19 digits optionally grouped; Luhn decides
	creditCardPattern = regexp.MustCompile(`\b(?:[0-9][ -]?){12,18}[0-9]\b`)
)

// Match is a half-open byte range in the scanned text
type Match struct {
	Start int
	End   int
}

// Matcher finds redactable spans in text
type Matcher interface {
	FindAll(text string) []Match
}

type regexpMatcher struct {
	patterns []*regexp.Regexp
	accept   func(string) bool
}

func (m regexpMatcher) FindAll(text string) []Match {
	var out []Match
	for _, p := range m.patterns {
		for _, loc := range p.FindAllStringIndex(text, -1) {
			if loc[0] == loc[1] {
				continue
			}
			if m.accept != nil && !m.accept(text[loc[0]:loc[1]]) {
				continue
			}
			out = append(out, Match{Start: loc[0], End: loc[1]})
		}
	}
	return out
}

// MatcherFor returns the matcher of a redaction pattern type. For custom
// patterns customRegex is compiled; an invalid expression is returned as
// the error.
func MatcherFor(patternType, customRegex string) (Matcher, error) {
	switch patternType {
	case "email":
		return regexpMatcher{patterns: []*regexp.Regexp{emailPattern}}, nil
	case "phone":
		return regexpMatcher{patterns: phonePatterns}, nil
	case "ssn":
		return regexpMatcher{patterns: []*regexp.Regexp{ssnPattern}}, nil
	case "credit_card":
		return regexpMatcher{patterns: []*regexp.Regexp{creditCardPattern}, accept: luhnCheck}, nil
	default:
		re, err := regexp.Compile(customRegex)
		if err != nil {
			return nil, err
		}
		return regexpMatcher{patterns: []*regexp.Regexp{re}}, nil
	}
}

// Redact replaces every match with replacement and reports how many spans
// were replaced. Overlapping matches are merged.
func Redact(text string, m Matcher, replacement string) (string, int) {
	matches := m.FindAll(text)
	if len(matches) == 0 {
		return text, 0
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})

	merged := matches[:1]
	for _, cur := range matches[1:] {
		last := &merged[len(merged)-1]
		if cur.Start < last.End {
			if cur.End > last.End {
				last.End = cur.End
			}
			continue
		}
		merged = append(merged, cur)
	}

	var b strings.Builder
	prev := 0
	for _, span := range merged {
		b.WriteString(text[prev:span.Start])
		b.WriteString(replacement)
		prev = span.End
	}
	b.WriteString(text[prev:])
	return b.String(), len(merged)
}

// luhnCheck validates a credit card number using the Luhn algorithm
func luhnCheck(cardNumber string) bool {
	cardNumber = strings.ReplaceAll(cardNumber, " ", "")
	cardNumber = strings.ReplaceAll(cardNumber, "-", "")

	if len(cardNumber) < 13 || len(cardNumber) > 19 {
		return false
	}

	sum := 0
	isSecond := false

	// Traverse from right to left
	for i := len(cardNumber) - 1; i >= 0; i-- {
		digit := int(cardNumber[i] - '0')

		if isSecond {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}

		sum += digit
		isSecond = !isSecond
	}

	return sum%10 == 0
}
