package prompt

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeywordOptions controls keyword matching
type KeywordOptions struct {
	CaseSensitive bool
	WholeWordOnly bool
}

// FindKeyword returns the first keyword, in list order, that occurs in text
func FindKeyword(text string, keywords []string, opts KeywordOptions) (string, bool) {
	haystack := text
	if !opts.CaseSensitive {
		haystack = strings.ToLower(text)
	}

	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		needle := kw
		if !opts.CaseSensitive {
			needle = strings.ToLower(kw)
		}
		if containsKeyword(haystack, needle, opts.WholeWordOnly) {
			return kw, true
		}
	}
	return "", false
}

func containsKeyword(haystack, needle string, wholeWord bool) bool {
	if !wholeWord {
		return strings.Contains(haystack, needle)
	}

	offset := 0
	for {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(needle)
		if boundaryBefore(haystack, start) && boundaryAfter(haystack, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(haystack[start:])
		offset = start + size
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
