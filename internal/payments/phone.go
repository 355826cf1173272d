package payments

import (
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^254[0-9]{9}$`)

// NormalizePhone strips non-digit characters and rewrites a Kenyan MSISDN
// into 254-prefixed international form: "0712345678" and "712345678" both
// become "254712345678"; already-prefixed numbers pass through unchanged.
func NormalizePhone(phoneNumber string) string {
	var b strings.Builder
	for _, r := range phoneNumber {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	switch {
	case strings.HasPrefix(cleaned, "0"):
		return "254" + cleaned[1:]
	case !strings.HasPrefix(cleaned, "254"):
		return "254" + cleaned
	default:
		return cleaned
	}
}

// ValidPhone reports whether phoneNumber is in 254XXXXXXXXX form.
func ValidPhone(phoneNumber string) bool {
	return phonePattern.MatchString(phoneNumber)
}
