// Package isbn validates and normalizes ISBN-10/13 identifiers. All
// functions are pure and total: bad input yields an empty string or false,
// never an error.
package isbn

import (
	"regexp"
	"strings"
)

// Normalize strips everything except digits and the X check character, then
// requires the remainder to be exactly 10 or 13 characters long. The result
// is uppercased; an empty string signals invalid input. Idempotent.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'X' || r == 'x':
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	if len(cleaned) != 10 && len(cleaned) != 13 {
		return ""
	}
	return strings.ToUpper(cleaned)
}

// ValidateChecksum reports whether code carries a consistent ISBN check
// digit. ISBN-10 uses the mod-11 scheme with X standing for 10 in the last
// position; ISBN-13 uses alternating 1,3 weights mod 10. Any other length
// is invalid.
func ValidateChecksum(code string) bool {
	switch len(code) {
	case 10:
		return validISBN10(code)
	case 13:
		return validISBN13(code)
	default:
		return false
	}
}

func validISBN10(code string) bool {
	sum := 0
	for i := 0; i < 9; i++ {
		c := code[i]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * (10 - i)
	}

	last := code[9]
	switch {
	case last == 'X':
		sum += 10
	case last >= '0' && last <= '9':
		sum += int(last - '0')
	default:
		return false
	}
	return sum%11 == 0
}

func validISBN13(code string) bool {
	sum := 0
	for i := 0; i < 13; i++ {
		c := code[i]
		if c < '0' || c > '9' {
			return false
		}
		weight := 1
		if i%2 == 1 {
			weight = 3
		}
		sum += int(c-'0') * weight
	}
	return sum%10 == 0
}

// Candidate patterns for ISBNs embedded in free text, most specific first.
var extractPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ISBN[\s:-]*([\dXx-]{10,17})`),
	regexp.MustCompile(`\b(\d{3}[\s-]?\d{1,5}[\s-]?\d{1,7}[\s-]?\d{1,6}[\s-]?[\dXx])\b`),
	regexp.MustCompile(`\b(\d{1,5}[\s-]?\d{1,7}[\s-]?\d{1,6}[\s-]?[\dXx])\b`),
}

// ExtractFromText scans free text (typically OCR output) for something that
// normalizes to a well-formed ISBN and returns the first hit, or "".
func ExtractFromText(text string) string {
	for _, pattern := range extractPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			if normalized := Normalize(match[1]); normalized != "" {
				return normalized
			}
		}
	}
	return ""
}
