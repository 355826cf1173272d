package card

import (
	"testing"
	"time"
)

func TestValidNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   bool
	}{
		{"valid test card", "4242424242424242", true},
		{"checksum off by one", "4242424242424241", false},
		{"valid with spaces", "4242 4242 4242 4242", true},
		{"valid with dashes", "4242-4242-4242-4242", true},
		{"valid mastercard", "5555555555554444", true},
		{"too short", "424242424242424", false},
		{"too long", "42424242424242424", false},
		{"non-digit", "424242424242424a", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidNumber(tt.number); got != tt.want {
				t.Errorf("ValidNumber(%q) = %v, want %v", tt.number, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		number string
		want   Type
	}{
		{"4242424242424242", TypeVisa},
		{"4222222222222", TypeVisa}, // 13-digit visa
		{"5555555555554444", TypeMastercard},
		{"5105105105105100", TypeMastercard},
		{"378282246310005", TypeAmex},
		{"341111111111111", TypeAmex},
		{"6011111111111117", TypeDiscover},
		{"6511111111111117", TypeDiscover},
		{"1234567812345678", TypeUnknown},
		{"", TypeUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.number); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.number, got, tt.want)
		}
	}
}

func TestValidExpiry(t *testing.T) {
	now := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		month int
		year2 int
		want  bool
	}{
		{"current month is valid", 8, 26, true},
		{"one month in the past", 7, 26, false},
		{"next month", 9, 26, true},
		{"next year", 1, 27, true},
		{"previous year", 12, 25, false},
		{"month 13 invalid", 13, 30, false},
		{"month 0 invalid", 0, 30, false},
		{"negative year", 5, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validExpiryAt(tt.month, tt.year2, now); got != tt.want {
				t.Errorf("validExpiryAt(%d, %d) = %v, want %v", tt.month, tt.year2, got, tt.want)
			}
		})
	}
}

func TestValidCVC(t *testing.T) {
	tests := []struct {
		cvc  string
		want bool
	}{
		{"123", true},
		{"1234", true},
		{"12", false},
		{"12345", false},
		{"12a", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidCVC(tt.cvc); got != tt.want {
			t.Errorf("ValidCVC(%q) = %v, want %v", tt.cvc, got, tt.want)
		}
	}
}
