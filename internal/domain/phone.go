package domain

import "strings"

const shortIDDigits = 15

// NormalizePhone keeps digits and '+' characters and guarantees a leading '+'.
// It is idempotent.
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + 1)
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if !strings.HasPrefix(out, "+") {
		out = "+" + out
	}
	return out
}

// Digits strips everything that is not an ASCII digit.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ShortID is the channel-scoped source id of a phone: its last 15 digits.
func ShortID(phone string) string {
	d := Digits(phone)
	if len(d) > shortIDDigits {
		d = d[len(d)-shortIDDigits:]
	}
	return d
}

// PlausiblePhone reports whether the digit count falls within E.164 bounds.
func PlausiblePhone(s string) bool {
	n := len(Digits(s))
	return n >= 7 && n <= 15
}
