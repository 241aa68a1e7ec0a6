package types

import (
	"regexp"
	"strings"
)

// mobilePattern matches a 10-digit Indian mobile number without country code
var mobilePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// NormalizePhone strips whitespace and a leading +91 or 0 prefix
func NormalizePhone(phone string) string {
	p := strings.Join(strings.Fields(phone), "")
	p = strings.TrimPrefix(p, "+91")
	if len(p) == 11 && strings.HasPrefix(p, "0") {
		p = p[1:]
	}
	return p
}

// IsValidMobile reports whether phone is a valid 10-digit mobile number.
// The phone must already be normalized.
func IsValidMobile(phone string) bool {
	return mobilePattern.MatchString(phone)
}
