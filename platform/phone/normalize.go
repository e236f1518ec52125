// Package phone provides phone number and WhatsApp chat-id utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	// DefaultRegion is used when a number carries no country prefix.
	DefaultRegion = "MX"

	userSuffix  = "@c.us"
	groupSuffix = "@g.us"
)

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// Digits strips everything except 0-9 from input.
func Digits(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ChatID returns the canonical WhatsApp chat id for a conversation.
// A JID already carrying a domain is lowercased and kept; a bare number is
// normalized to E.164 and rendered as "<digits>@c.us". Returns "" when
// neither argument yields an id.
func ChatID(jid, number, region string) string {
	jid = strings.ToLower(strings.TrimSpace(jid))
	if strings.HasSuffix(jid, groupSuffix) {
		return jid
	}
	if at := strings.IndexByte(jid, '@'); at > 0 {
		if digits := Digits(jid[:at]); digits != "" {
			return digits + jid[at:]
		}
	}

	source := jid
	if source == "" {
		source = number
	}
	if strings.TrimSpace(source) == "" {
		return ""
	}
	if !strings.HasPrefix(strings.TrimSpace(source), "+") && len(Digits(source)) > 10 {
		source = "+" + Digits(source)
	}

	digits := Digits(NormalizeE164(source, region))
	if digits == "" {
		return ""
	}
	return digits + userSuffix
}
