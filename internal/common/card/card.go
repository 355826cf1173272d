// Package card validates payment card details: number (Luhn), brand
// classification, expiry and CVC. All functions are pure.
package card

import (
	"regexp"
	"strings"
	"time"
)

// Type is the card brand derived from the number prefix. It is always
// recomputed from the number, never stored.
type Type string

const (
	TypeVisa       Type = "visa"
	TypeMastercard Type = "mastercard"
	TypeAmex       Type = "amex"
	TypeDiscover   Type = "discover"
	TypeUnknown    Type = "unknown"
)

// Ordered prefix/length patterns; first match wins.
var typePatterns = []struct {
	t  Type
	re *regexp.Regexp
}{
	{TypeVisa, regexp.MustCompile(`^4[0-9]{12}(?:[0-9]{3})?(?:[0-9]{3})?$`)},
	{TypeMastercard, regexp.MustCompile(`^5[1-5][0-9]{14}$`)},
	{TypeAmex, regexp.MustCompile(`^3[47][0-9]{13}$`)},
	{TypeDiscover, regexp.MustCompile(`^6(?:011|5[0-9]{2})[0-9]{12}$`)},
}

// Strip removes space and dash separators from a card number.
func Strip(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r != ' ' && r != '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidNumber reports whether number is a 16-digit card number passing the
// Luhn checksum. Separators (spaces, dashes) are stripped first.
func ValidNumber(number string) bool {
	cleaned := Strip(number)
	if len(cleaned) != 16 {
		return false
	}

	sum := 0
	double := false
	for i := len(cleaned) - 1; i >= 0; i-- {
		c := cleaned[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}

// Classify returns the card brand for a number, TypeUnknown if no pattern
// matches. Classification does not imply the number is valid.
func Classify(number string) Type {
	cleaned := Strip(number)
	for _, p := range typePatterns {
		if p.re.MatchString(cleaned) {
			return p.t
		}
	}
	return TypeUnknown
}

// ValidExpiry reports whether the month/two-digit-year pair is not in the
// past; the current month is valid. Years are compared on their last two
// digits only, so dates beyond the next century rollover are rejected.
func ValidExpiry(month, year2 int) bool {
	return validExpiryAt(month, year2, time.Now())
}

func validExpiryAt(month, year2 int, now time.Time) bool {
	if month < 1 || month > 12 {
		return false
	}
	if year2 < 0 || year2 > 99 {
		return false
	}

	currentYear := now.Year() % 100
	currentMonth := int(now.Month())

	if year2 < currentYear {
		return false
	}
	if year2 == currentYear && month < currentMonth {
		return false
	}
	return true
}

var cvcPattern = regexp.MustCompile(`^[0-9]{3,4}$`)

// ValidCVC reports whether cvc is exactly 3 or 4 digits.
func ValidCVC(cvc string) bool {
	return cvcPattern.MatchString(cvc)
}
