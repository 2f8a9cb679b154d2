// Package pii scrubs personal data out of text before it is written to
// logs.
package pii

import (
	"regexp"
	"strings"
)

// Kind identifies a category of personal data
type Kind string

const (
	KindEmail      Kind = "email"
	KindCreditCard Kind = "credit_card"
	KindSSN        Kind = "ssn"
	KindIPAddress  Kind = "ip_address"
	KindPhone      Kind = "phone"
)

type rule struct {
	kind     Kind
	patterns []*regexp.Regexp
	// valid filters pattern matches; nil accepts every match.
	valid func(string) bool
}

// rules run in order; each replacement is invisible to later patterns.
var rules = []rule{
	{
		kind:     KindEmail,
		patterns: []*regexp.Regexp{regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	},
	{
		kind: KindCreditCard,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b4[0-9]{12}(?:[0-9]{3})?\b`),     // Visa
			regexp.MustCompile(`\b5[1-5][0-9]{14}\b`),             // MasterCard
			regexp.MustCompile(`\b3[47][0-9]{13}\b`),              // American Express
			regexp.MustCompile(`\b6(?:011|5[0-9]{2})[0-9]{12}\b`), // Discover
		},
		valid: luhnCheck,
	},
	{
		kind:     KindSSN,
		patterns: []*regexp.Regexp{regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`)},
		valid:    looksLikeSSN,
	},
	{
		kind: KindIPAddress,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`),
			regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`),
		},
	},
	{
		kind:     KindPhone,
		patterns: []*regexp.Regexp{regexp.MustCompile(`(?:\+?1[-. ]?)?\(?\b[0-9]{3}\)?[-. ]?[0-9]{3}[-. ][0-9]{4}\b`)},
	},
}

// Placeholder returns the text substituted for a match of kind k
func Placeholder(k Kind) string {
	return "[" + strings.ToUpper(string(k)) + "_REDACTED]"
}

// Redact replaces personal data in text with placeholders and reports
// which kinds were found, in rule order.
func Redact(text string) (string, []Kind) {
	var found []Kind
	for _, r := range rules {
		hit := false
		for _, p := range r.patterns {
			text = p.ReplaceAllStringFunc(text, func(match string) string {
				if r.valid != nil && !r.valid(match) {
					return match
				}
				hit = true
				return Placeholder(r.kind)
			})
		}
		if hit {
			found = append(found, r.kind)
		}
	}
	return text, found
}

// Contains reports whether text holds any personal data Redact would remove
func Contains(text string) bool {
	_, found := Redact(text)
	return len(found) > 0
}

// looksLikeSSN rejects numbers the SSA never issues
func looksLikeSSN(s string) bool {
	digits := strings.ReplaceAll(s, "-", "")
	if len(digits) != 9 {
		return false
	}
	if digits[:3] == "000" || digits[3:5] == "00" || digits[5:] == "0000" {
		return false
	}
	return !strings.HasPrefix(digits, "666") && !strings.HasPrefix(digits, "9")
}

// luhnCheck validates a card number with the Luhn checksum
func luhnCheck(number string) bool {
	if len(number) < 13 || len(number) > 19 {
		return false
	}

	sum := 0
	second := false
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if second {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		second = !second
	}
	return sum%10 == 0
}
