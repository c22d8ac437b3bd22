package payment

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

const rwandaCountryCode = "250"

// NormalizeMSISDN returns the phone number in international form (250XXXXXXXXX),
// or "" when it cannot be a Rwandan mobile number.
func NormalizeMSISDN(s string) string {
	s = nonDigits.ReplaceAllString(s, "")
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "0") {
		s = rwandaCountryCode + s[1:]
	} else if !strings.HasPrefix(s, rwandaCountryCode) {
		s = rwandaCountryCode + s
	}
	if len(s) != 12 {
		return ""
	}
	return s
}

// localMSISDN strips the country code, as some rails expect.
func localMSISDN(s string) string {
	n := NormalizeMSISDN(s)
	if n == "" {
		return ""
	}
	return strings.TrimPrefix(n, rwandaCountryCode)
}
