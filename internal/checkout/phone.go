package checkout

import (
	"regexp"
	"strings"
	"sync"
)

const DefaultCountryCode = "254"

var (
	patternsMu sync.Mutex
	patterns   = map[string]*regexp.Regexp{}
)

func phonePattern(countryCode string) *regexp.Regexp {
	patternsMu.Lock()
	defer patternsMu.Unlock()
	if re, ok := patterns[countryCode]; ok {
		return re
	}
	re := regexp.MustCompile("^" + regexp.QuoteMeta(countryCode) + `(7|1)\d{8}$`)
	patterns[countryCode] = re
	return re
}

// NormalizePhone strips everything but digits, drops a leading trunk "0" from a
// ten digit local number and prefixes nine digit numbers with the country code.
func NormalizePhone(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 && digits[0] == '0' {
		digits = digits[1:]
	}
	if len(digits) == 9 {
		digits = countryCode + digits
	}
	return digits
}

// ValidatePhone returns the normalized number or ErrInvalidPhone.
func ValidatePhone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	normalized := NormalizePhone(raw, countryCode)
	if !phonePattern(countryCode).MatchString(normalized) {
		return "", ErrInvalidPhone
	}
	return normalized, nil
}
