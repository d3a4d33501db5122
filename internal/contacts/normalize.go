package contacts

import "strings"

// NormalizePhone normalizes a phone number to E.164-ish form, assuming a
// US/Canada default region for bare national numbers. chat.db records handles
// this way, so address book numbers must match it to be looked up at all.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// Keep + and digits only
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	out := b.String()

	if strings.HasPrefix(out, "+") {
		return out
	}
	digits := out
	if len(digits) == 10 {
		return "+1" + digits
	}
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		return "+" + digits
	}
	// International numbers without +, just prepend +
	if len(digits) > 10 {
		return "+" + digits
	}
	return out
}

// NormalizeIdentifier returns the canonical lookup key for a phone or email
// handle: lowercased for emails, E.164-ish for phone numbers.
func NormalizeIdentifier(identifier string) string {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return ""
	}
	if strings.Contains(id, "@") {
		return strings.ToLower(id)
	}
	return NormalizePhone(id)
}
