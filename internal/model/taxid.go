package model

import "strings"

// NormalizeTaxID canonicalizes a counterparty tax identifier for comparison:
// dash and whitespace characters are removed, letters are upper-cased, and a
// leading two-letter country prefix (e.g. "PL") is stripped. Applying the
// function twice is a no-op.
func NormalizeTaxID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch r {
		case '-', ' ', '\t':
			continue
		}
		b.WriteRune(r)
	}
	s := strings.ToUpper(b.String())
	if len(s) > 2 && isUpperLetter(s[0]) && isUpperLetter(s[1]) {
		s = s[2:]
	}
	return s
}

func isUpperLetter(c byte) bool {
	return c >= 'A' && c <= 'Z'
}
