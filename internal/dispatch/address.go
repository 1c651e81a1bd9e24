package dispatch

import (
	"fmt"
	"strings"
)

// ChatSuffix is the addressing suffix the channel expects for individual chats.
const ChatSuffix = "@c.us"

const (
	minAddressDigits = 8
	maxAddressDigits = 15

	// nationalMaxDigits is the longest number treated as lacking a country code.
	nationalMaxDigits = 9
)

// NormalizeAddress turns a stored contact into the channel's chat address.
//
// Formatting characters are removed. An international prefix ("+" or "00")
// is dropped; a single trunk "0", or a short national number, gets
// countryCode prepended. The result must have 8 to 15 digits.
func NormalizeAddress(contact, countryCode string) (string, error) {
	raw := strings.TrimSpace(contact)
	if raw == "" {
		return "", ErrMissingContact
	}
	raw = strings.TrimSuffix(raw, ChatSuffix)

	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.', r == '(', r == ')', r == '/':
		default:
			return "", fmt.Errorf("%w: unexpected %q in %q", ErrInvalidAddress, r, contact)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "+"):
		digits = digits[1:]
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		digits = countryCode + digits[1:]
	case len(digits) <= nationalMaxDigits:
		digits = countryCode + digits
	}

	if n := len(digits); n < minAddressDigits || n > maxAddressDigits {
		return "", fmt.Errorf("%w: %q has %d digits", ErrInvalidAddress, contact, n)
	}
	return digits + ChatSuffix, nil
}
