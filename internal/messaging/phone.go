package messaging

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const whatsappPrefix = "whatsapp:"

// NormalizePhone parses a raw phone number and returns it in E.164 format.
// defaultRegion (e.g. "MX") is used when the number has no country code.
func NormalizePhone(raw, defaultRegion string) (string, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, whatsappPrefix))
	if raw == "" {
		return "", fmt.Errorf("messaging: empty phone number")
	}
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("messaging: parse phone %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("messaging: invalid phone number %q", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// WhatsAppAddress prefixes an E.164 number with the whatsapp: scheme Twilio
// expects. Already-prefixed addresses pass through unchanged.
func WhatsAppAddress(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}

// BareNumber strips the whatsapp: scheme, leaving the E.164 number.
func BareNumber(address string) string {
	return strings.TrimPrefix(strings.TrimSpace(address), whatsappPrefix)
}
