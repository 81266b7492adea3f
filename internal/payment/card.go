package payment

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

type CardType string

const (
	CardTypeVisa       CardType = "visa"
	CardTypeMastercard CardType = "mastercard"
	CardTypeAmex       CardType = "amex"
	CardTypeDiscover   CardType = "discover"
	CardTypeUnknown    CardType = "unknown"
)

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateCardNumber requires 13 to 19 digits passing the Luhn checksum.
func ValidateCardNumber(input string) bool {
	digits := stripSpaces(input)
	if len(digits) < 13 || len(digits) > 19 || !allDigits(digits) {
		return false
	}
	return luhn(digits)
}

func luhn(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ValidateExpiryDate accepts MM/YY not earlier than the month of now.
func ValidateExpiryDate(input string, now time.Time) bool {
	if len(input) != 5 || input[2] != '/' {
		return false
	}
	mm, yy := input[:2], input[3:]
	if !allDigits(mm) || !allDigits(yy) {
		return false
	}
	month, _ := strconv.Atoi(mm)
	year, _ := strconv.Atoi(yy)
	if month < 1 || month > 12 {
		return false
	}

	currentYear := now.Year() % 100
	currentMonth := int(now.Month())
	if year < currentYear {
		return false
	}
	if year == currentYear && month < currentMonth {
		return false
	}
	return true
}

func ValidateCVV(input string) bool {
	return (len(input) == 3 || len(input) == 4) && allDigits(input)
}

// ValidateCardholderName accepts letters, spaces and . ' - with at least two characters.
func ValidateCardholderName(input string) bool {
	name := strings.TrimSpace(input)
	if len([]rune(name)) < 2 {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) || r == ' ' || r == '.' || r == '\'' || r == '-' {
			continue
		}
		return false
	}
	return true
}

// GetCardType classifies by IIN prefix. It is informational only.
func GetCardType(number string) CardType {
	digits := stripSpaces(number)
	if !allDigits(digits) {
		return CardTypeUnknown
	}

	prefix := func(n int) int {
		if len(digits) < n {
			return -1
		}
		v, _ := strconv.Atoi(digits[:n])
		return v
	}

	switch {
	case strings.HasPrefix(digits, "4"):
		return CardTypeVisa
	case prefix(2) >= 51 && prefix(2) <= 55,
		prefix(4) >= 2221 && prefix(4) <= 2720:
		return CardTypeMastercard
	case prefix(2) == 34 || prefix(2) == 37:
		return CardTypeAmex
	case prefix(4) == 6011, prefix(2) == 65,
		prefix(3) >= 644 && prefix(3) <= 649:
		return CardTypeDiscover
	}
	return CardTypeUnknown
}

// FormatCardNumber groups digits into blocks of four, capped at 19 characters.
func FormatCardNumber(input string) string {
	var b strings.Builder
	n := 0
	for _, r := range input {
		if r < '0' || r > '9' {
			continue
		}
		if n > 0 && n%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		n++
	}
	out := b.String()
	if len(out) > 19 {
		out = strings.TrimRight(out[:19], " ")
	}
	return out
}

// FormatExpiryDate keeps up to four digits and inserts a slash after the month.
func FormatExpiryDate(input string) string {
	var digits []byte
	for i := 0; i < len(input) && len(digits) < 4; i++ {
		if input[i] >= '0' && input[i] <= '9' {
			digits = append(digits, input[i])
		}
	}
	if len(digits) <= 2 {
		return string(digits)
	}
	return string(digits[:2]) + "/" + string(digits[2:])
}

// MaskCardNumber keeps the last four digits.
func MaskCardNumber(input string) string {
	digits := stripSpaces(input)
	if len(digits) <= 4 {
		return digits
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
